package cluster_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"FightPool/internal/cluster"
	"FightPool/internal/testutil"

	"github.com/google/uuid"
)

func TestLeaderLock_Redis(t *testing.T) {
	testutil.RequireIntegration(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rdb, err := cluster.Connect(ctx, cluster.RedisConfig{Addr: testutil.TestRedisAddr()})
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	defer rdb.Close()

	key := "fightpool:test:leader:" + uuid.NewString()
	defer rdb.Del(context.Background(), key)

	a := cluster.NewLeaderLock(rdb, key, 2*time.Second, nil)
	b := cluster.NewLeaderLock(rdb, key, 2*time.Second, nil)

	if err := a.TryAcquire(ctx); err != nil {
		t.Fatalf("a acquire: %v", err)
	}
	if !a.IsLeader() {
		t.Error("a should lead")
	}
	if err := b.TryAcquire(ctx); !errors.Is(err, cluster.ErrLockHeld) {
		t.Errorf("b acquire: got %v, want ErrLockHeld", err)
	}
	if b.IsLeader() {
		t.Error("b should not lead")
	}

	if err := a.Renew(ctx); err != nil {
		t.Errorf("a renew: %v", err)
	}
	if err := b.Renew(ctx); !errors.Is(err, cluster.ErrLeadershipLost) {
		t.Errorf("b renew: got %v, want ErrLeadershipLost", err)
	}

	// b's release must not remove a's key.
	b.Release()
	if got, _ := rdb.Get(ctx, key).Result(); got != a.Token() {
		t.Errorf("key value after foreign release: %q", got)
	}

	a.Release()
	if a.IsLeader() {
		t.Error("a still leads after release")
	}

	campaignCtx, campaignCancel := context.WithTimeout(ctx, 2*time.Second)
	defer campaignCancel()
	if err := b.Campaign(campaignCtx, 50*time.Millisecond); err != nil {
		t.Fatalf("b campaign: %v", err)
	}
	if !b.IsLeader() {
		t.Error("b should lead after campaign")
	}
	b.Release()
}

func TestLeaderLock_HoldDetectsTakeover(t *testing.T) {
	testutil.RequireIntegration(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rdb, err := cluster.Connect(ctx, cluster.RedisConfig{Addr: testutil.TestRedisAddr()})
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	defer rdb.Close()

	key := "fightpool:test:leader:" + uuid.NewString()
	defer rdb.Del(context.Background(), key)

	lock := cluster.NewLeaderLock(rdb, key, 300*time.Millisecond, nil)
	if err := lock.TryAcquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if err := rdb.Set(ctx, key, "intruder", time.Minute).Err(); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := lock.Hold(ctx); !errors.Is(err, cluster.ErrLeadershipLost) {
		t.Errorf("hold: got %v, want ErrLeadershipLost", err)
	}
	if lock.IsLeader() {
		t.Error("still leader after takeover")
	}
}
