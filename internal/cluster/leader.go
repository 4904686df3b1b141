// Package cluster coordinates which process instance owns the escrow core.
// Exactly one instance may apply commands; the rest serve reads.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"FightPool/internal/observability"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	// ErrLockHeld is returned when another instance owns the lock.
	ErrLockHeld = errors.New("leader lock held by another instance")

	// ErrLeadershipLost is returned by Hold when the lock expired or was
	// taken over. The core must stop applying commands.
	ErrLeadershipLost = errors.New("leader lock lost")
)

// releaseLua deletes the key only while it still carries our token.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// renewLua extends the TTL only while the key still carries our token.
const renewLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// RedisConfig holds connection parameters for the lock store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Connect opens and pings a Redis client.
func Connect(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// LeaderLock is a single-holder lease on a Redis key: SET NX with a TTL,
// renewed while held, released with a compare-and-delete.
type LeaderLock struct {
	rdb     *redis.Client
	key     string
	ttl     time.Duration
	token   string
	held    atomic.Bool
	release *redis.Script
	renew   *redis.Script
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewLeaderLock(rdb *redis.Client, key string, ttl time.Duration, metrics *observability.Metrics) *LeaderLock {
	return &LeaderLock{
		rdb:     rdb,
		key:     key,
		ttl:     ttl,
		token:   uuid.NewString(),
		release: redis.NewScript(releaseLua),
		renew:   redis.NewScript(renewLua),
		metrics: metrics,
		logger:  observability.NewLogger("leader"),
	}
}

// Token identifies this instance in the lock value.
func (l *LeaderLock) Token() string { return l.token }

// IsLeader reports whether the lock is currently held.
func (l *LeaderLock) IsLeader() bool { return l.held.Load() }

func (l *LeaderLock) setHeld(held bool) {
	l.held.Store(held)
	if l.metrics != nil {
		v := 0.0
		if held {
			v = 1
		}
		l.metrics.LeaderStatus.Set(v)
	}
}

// TryAcquire takes the lock once. It returns ErrLockHeld if another
// instance owns it.
func (l *LeaderLock) TryAcquire(ctx context.Context) error {
	ok, err := l.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if !ok {
		return ErrLockHeld
	}
	l.setHeld(true)
	l.logger.Info().Str("key", l.key).Str("token", l.token).Msg("leader lock acquired")
	return nil
}

// Campaign retries TryAcquire every retry interval until it succeeds or ctx
// is done.
func (l *LeaderLock) Campaign(ctx context.Context, retry time.Duration) error {
	ticker := time.NewTicker(retry)
	defer ticker.Stop()
	for {
		err := l.TryAcquire(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrLockHeld) {
			l.logger.Warn().Err(err).Msg("leader campaign attempt failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Renew extends the lease. It returns ErrLeadershipLost if the key no
// longer carries this instance's token.
func (l *LeaderLock) Renew(ctx context.Context) error {
	n, err := l.renew.Run(ctx, l.rdb, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("renew %s: %w", l.key, err)
	}
	if n == 0 {
		l.setHeld(false)
		return ErrLeadershipLost
	}
	return nil
}

// Hold renews the lease every third of its TTL until ctx is done, then
// releases it. A lost lease or a lease that could not be renewed before it
// expired ends Hold with ErrLeadershipLost.
func (l *LeaderLock) Hold(ctx context.Context) error {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	lastRenewed := time.Now()

	for {
		select {
		case <-ctx.Done():
			l.Release()
			return nil
		case <-ticker.C:
			err := l.Renew(ctx)
			switch {
			case err == nil:
				lastRenewed = time.Now()
			case errors.Is(err, ErrLeadershipLost):
				l.logger.Error().Str("key", l.key).Msg("leader lock taken over")
				return err
			case time.Since(lastRenewed) >= l.ttl:
				l.setHeld(false)
				l.logger.Error().Err(err).Msg("leader lock expired while unreachable")
				return ErrLeadershipLost
			default:
				l.logger.Warn().Err(err).Msg("leader lock renewal failed")
			}
		}
	}
}

// Release gives the lock up if this instance still holds it.
func (l *LeaderLock) Release() {
	if !l.held.Load() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.release.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil {
		l.logger.Warn().Err(err).Msg("leader lock release failed")
	}
	l.setHeld(false)
}
