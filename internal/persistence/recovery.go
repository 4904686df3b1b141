package persistence

import (
	"context"
	"fmt"
	"time"

	"FightPool/internal/core"
	"FightPool/internal/observability"
)

// replayBatchSize bounds how many log rows are read per query.
const replayBatchSize = 1000

// Recover rebuilds the core from the newest verified snapshot (if any) and
// replays the event log after it. Every replayed command must reproduce its
// logged state hash. It returns the number of commands replayed.
func Recover(ctx context.Context, c *core.EscrowCore, mgr *SnapshotManager, lruWarm int, metrics *observability.Metrics) (int64, error) {
	logger := observability.NewLogger("recovery")
	start := time.Now()

	snap, err := mgr.LoadLatestSnapshot(ctx)
	if err != nil {
		return 0, err
	}
	from := int64(1)
	if snap != nil {
		coreSnap, err := snap.ToCore()
		if err != nil {
			return 0, err
		}
		if err := c.RestoreFromSnapshot(coreSnap); err != nil {
			return 0, fmt.Errorf("restore snapshot %d: %w", snap.Sequence, err)
		}
		from = snap.Sequence + 1
		logger.Info().Int64("sequence", snap.Sequence).Int("matches", len(snap.Matches)).Msg("restored snapshot")
	} else {
		logger.Info().Msg("no snapshot found, replaying full log")
	}

	var replayed int64
	for {
		rows, err := mgr.LoadEventsFrom(ctx, from, replayBatchSize)
		if err != nil {
			return replayed, fmt.Errorf("load events from seq %d: %w", from, err)
		}
		if len(rows) == 0 {
			break
		}
		for _, row := range rows {
			env, err := row.Envelope()
			if err != nil {
				return replayed, err
			}
			if err := c.Replay(env); err != nil {
				return replayed, err
			}
			replayed++
		}
		from = rows[len(rows)-1].Sequence + 1
	}

	// A snapshot only carries the LRU as it was; top it up from the log tail.
	if lruWarm > 0 {
		keys, err := mgr.RecentIdempotencyKeys(ctx, lruWarm)
		if err != nil {
			logger.Warn().Err(err).Msg("LRU warm-up skipped")
		} else {
			c.WarmLRU(keys)
		}
	}

	if err := c.CheckIntegrity(); err != nil {
		return replayed, fmt.Errorf("post-recovery integrity: %w", err)
	}

	if metrics != nil {
		metrics.ReplayEventsTotal.Add(float64(replayed))
		metrics.ReplayDuration.Set(time.Since(start).Seconds())
		metrics.CoreSequence.Set(float64(c.LastSequence()))
	}
	hash := c.GetStateHash()
	logger.Info().
		Int64("replayed", replayed).
		Int64("sequence", c.LastSequence()).
		Hex("state_hash", hash[:]).
		Msg("recovery complete")
	return replayed, nil
}
