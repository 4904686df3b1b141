package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FightPool/internal/cluster"
	"FightPool/internal/config"
	"FightPool/internal/core"
	"FightPool/internal/ingestion"
	"FightPool/internal/observability"
	"FightPool/internal/persistence"
	"FightPool/internal/query"
	"FightPool/internal/server"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	leaderRetry     = 2 * time.Second
	channelGaugeTic = 5 * time.Second
)

func main() {
	configPath := flag.String("config", os.Getenv(config.EnvPrefix+"CONFIG"), "path to a TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: config: %v\n", err)
		os.Exit(1)
	}
	logger := observability.NewLoggerWithLevel("main", observability.ParseLogLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("FightPool stopped")
	}
	logger.Info().Msg("FightPool shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	logger.Info().Msg("FightPool starting")

	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker()

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("postgres open: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime.Duration)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	health.SetDependency("postgres", true)

	if err := persistence.NewMigrator(db, nil).Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info().Msg("migrations applied")

	// --- Snapshot archive ---
	var archiver *persistence.SnapshotArchiver
	if cfg.S3.Enabled {
		archiver, err = persistence.NewSnapshotArchiver(ctx, persistence.S3Config{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			Prefix:         cfg.S3.Prefix,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return err
		}
		if err := archiver.Health(ctx); err != nil {
			logger.Warn().Err(err).Msg("snapshot archive unreachable, archiving will be retried per snapshot")
		}
		health.SetDependency("s3", true)
	}

	// --- NATS ---
	var js jetstream.JetStream
	if cfg.NATS.Enabled {
		var nc *nats.Conn
		nc, js, err = ingestion.ConnectNATS(cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()
		if err := ingestion.EnsureCommandStream(ctx, js, cfg.NATS.CommandStream); err != nil {
			return err
		}
		if err := ingestion.EnsureNotifyStream(ctx, js, cfg.NATS.NotifyStream); err != nil {
			return err
		}
		health.SetDependency("nats", true)
	}

	// --- Leader lock ---
	var lock *cluster.LeaderLock
	if cfg.Redis.Enabled {
		rdb, err := cluster.Connect(ctx, cluster.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
		lock = cluster.NewLeaderLock(rdb, cfg.Redis.LockKey, cfg.Redis.LockTTL.Duration, metrics)
		health.SetDependency("redis", true)
	}

	// --- Core and its shell ---
	p := newPipeline(cfg, metrics)
	gate := &writeGate{lock: lock}

	escrow := core.NewEscrowCore(p.persistCore, p.projectionCore,
		persistence.NewPostgresIdempotencyChecker(db), cfg.Core.IdempotencyLRU, metrics)
	snapMgr := persistence.NewSnapshotManager(db)
	snapshotter := persistence.NewSnapshotter(escrow, snapMgr, archiver, metrics)
	commands := ingestion.NewCommandService(p.submit)

	api := server.NewAPI(server.Deps{
		DB:          db,
		Commands:    commands,
		Queries:     query.NewQueryService(db, escrow),
		Snapshotter: snapshotter,
		EventLog:    snapMgr,
		Leader:      gate,
		StartTime:   time.Now(),
	})
	hub := server.NewHub(p.stream, metrics)
	grpcServer := server.NewGRPCServer(cfg.Server.GRPCAddr, api, metrics)
	grpcServer.SetServing(false)
	gateway, err := server.NewHTTPGateway(server.HTTPConfig{
		Addr:      cfg.Server.HTTPAddr,
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
	}, api, hub, health, metrics)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	// Read side: serves from the first moment, leader or not.
	g.Go(func() error { return grpcServer.Start(gctx) })
	g.Go(func() error { return gateway.Start(gctx) })
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return serveMetrics(gctx, cfg.Server.MetricsAddr, logger) })
	g.Go(func() error { return p.reportChannels(gctx, channelGaugeTic) })

	// Write side: only once this instance owns the core.
	g.Go(func() error {
		if lock != nil {
			logger.Info().Str("key", cfg.Redis.LockKey).Msg("campaigning for leadership")
			if err := lock.Campaign(gctx, leaderRetry); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
		}

		replayed, err := persistence.Recover(gctx, escrow, snapMgr, cfg.Core.LRUWarmKeys, metrics)
		if err != nil {
			return fmt.Errorf("recovery: %w", err)
		}

		w := &writer{
			cfg:         cfg,
			db:          db,
			core:        escrow,
			pipeline:    p,
			commands:    commands,
			snapshotter: snapshotter,
			lock:        lock,
			js:          js,
			metrics:     metrics,
			logger:      logger,
			onReady: func() {
				gate.ready.Store(true)
				grpcServer.SetServing(true)
				health.SetReady(true)
				hash := escrow.GetStateHash()
				logger.Info().
					Int64("sequence", escrow.LastSequence()).
					Int64("replayed", replayed).
					Hex("state_hash", hash[:]).
					Str("grpc", cfg.Server.GRPCAddr).
					Str("http", cfg.Server.HTTPAddr).
					Msg("FightPool ready")
			},
		}
		err = w.run(gctx)
		gate.ready.Store(false)
		health.SetReady(false)
		return err
	})

	return g.Wait()
}

func serveMetrics(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
