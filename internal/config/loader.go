package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FIGHTPOOL_"

// Load merges the TOML file at path over Defaults, loads .env if present and
// applies FIGHTPOOL_* overrides. An empty path skips the file. The result is
// not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Missing .env is fine.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.LogLevel, "LOG_LEVEL")

	setStr(&cfg.Postgres.DSN, "POSTGRES_DSN")
	setInt(&cfg.Postgres.MaxOpenConns, "POSTGRES_MAX_OPEN_CONNS")
	setInt(&cfg.Postgres.MaxIdleConns, "POSTGRES_MAX_IDLE_CONNS")

	setBool(&cfg.NATS.Enabled, "NATS_ENABLED")
	setStr(&cfg.NATS.URL, "NATS_URL")
	setDuration(&cfg.NATS.AckWait, "NATS_ACK_WAIT")

	setBool(&cfg.Redis.Enabled, "REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setDuration(&cfg.Redis.LockTTL, "REDIS_LOCK_TTL")

	setBool(&cfg.S3.Enabled, "S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setStr(&cfg.S3.Region, "S3_REGION")
	setStr(&cfg.S3.Bucket, "S3_BUCKET")
	setStr(&cfg.S3.Prefix, "S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "S3_FORCE_PATH_STYLE")

	setStr(&cfg.Server.GRPCAddr, "GRPC_ADDR")
	setStr(&cfg.Server.HTTPAddr, "HTTP_ADDR")
	setStr(&cfg.Server.MetricsAddr, "METRICS_ADDR")
	setFloat64(&cfg.Server.RateLimit, "RATE_LIMIT")
	setInt(&cfg.Server.RateBurst, "RATE_BURST")

	setInt(&cfg.Core.PersistChanSize, "PERSIST_CHAN_SIZE")
	setInt(&cfg.Core.ProjectionChanSize, "PROJECTION_CHAN_SIZE")
	setInt(&cfg.Core.PersistBatchSize, "PERSIST_BATCH_SIZE")
	setInt64(&cfg.Core.SnapshotInterval, "SNAPSHOT_INTERVAL")
	setInt(&cfg.Core.IdempotencyLRU, "IDEMPOTENCY_LRU_CAPACITY")
}

// Each setter only touches dst when the variable is set and parses.

func lookup(key string) (string, bool) {
	v := os.Getenv(EnvPrefix + key)
	return v, v != ""
}

func setStr(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v, ok := lookup(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v, ok := lookup(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v, ok := lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
