package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"FightPool/internal/config"
	"FightPool/internal/observability"
	"FightPool/internal/persistence"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: migrate [-config file.toml] [-dir migrations] <up|down>")
	fmt.Fprintln(os.Stderr, "  up   - apply all pending migrations")
	fmt.Fprintln(os.Stderr, "  down - roll back the last migration")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "The DSN comes from the config file or "+config.EnvPrefix+"POSTGRES_DSN.")
	fmt.Fprintln(os.Stderr, "Without -dir the migrations compiled into the binary are used.")
}

func main() {
	configPath := flag.String("config", os.Getenv(config.EnvPrefix+"CONFIG"), "path to a TOML config file")
	dir := flag.String("dir", "", "read migrations from this directory instead of the embedded set")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(1)
	}

	logger := observability.NewConsoleLogger("migrate", zerolog.InfoLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()

	ctx := context.Background()
	migrator := persistence.NewMigrator(db, nil)
	if *dir != "" {
		migrator = persistence.NewMigrator(db, os.DirFS(*dir))
	}

	switch flag.Arg(0) {
	case "up":
		if err := migrator.Up(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migrate up")
		}
		logger.Info().Msg("all migrations applied")

	case "down":
		if err := migrator.Down(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migrate down")
		}
		logger.Info().Msg("last migration rolled back")

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s (use 'up' or 'down')\n", flag.Arg(0))
		os.Exit(1)
	}
}
