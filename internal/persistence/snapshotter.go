package persistence

import (
	"context"
	"fmt"
	"time"

	"FightPool/internal/core"
	"FightPool/internal/observability"

	"github.com/rs/zerolog"
)

// Snapshotter captures the core's state, stores it, and optionally archives
// it to object storage.
type Snapshotter struct {
	core     *core.EscrowCore
	mgr      *SnapshotManager
	archiver *SnapshotArchiver // nil disables archiving
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

func NewSnapshotter(c *core.EscrowCore, mgr *SnapshotManager, archiver *SnapshotArchiver, metrics *observability.Metrics) *Snapshotter {
	return &Snapshotter{
		core:     c,
		mgr:      mgr,
		archiver: archiver,
		metrics:  metrics,
		logger:   observability.NewLogger("snapshot"),
	}
}

// Take snapshots the live core. A snapshot built from live state is
// verified on write. Archive failures are logged and do not fail the call.
func (s *Snapshotter) Take(ctx context.Context) (*SnapshotData, error) {
	start := time.Now()

	data := SnapshotFromCore(s.core.CreateSnapshotState(), time.Now().UTC())
	encoded, err := s.mgr.SaveSnapshot(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	if err := s.mgr.MarkVerified(ctx, data.Sequence); err != nil {
		return nil, fmt.Errorf("mark snapshot verified: %w", err)
	}

	if s.metrics != nil {
		s.metrics.SnapshotTaken.Inc()
		s.metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		s.metrics.SnapshotSizeBytes.Set(float64(len(encoded)))
		s.metrics.SnapshotLastSeq.Set(float64(data.Sequence))
	}

	if s.archiver != nil {
		s.archive(ctx, data.Sequence, encoded)
	}
	s.logger.Info().Int64("sequence", data.Sequence).Int("bytes", len(encoded)).Msg("snapshot taken")
	return data, nil
}

func (s *Snapshotter) archive(ctx context.Context, sequence int64, encoded []byte) {
	outcome := "ok"
	defer func() {
		if s.metrics != nil {
			s.metrics.SnapshotArchived.WithLabelValues(outcome).Inc()
		}
	}()

	key, err := s.archiver.Archive(ctx, sequence, encoded)
	if err != nil {
		outcome = "error"
		s.logger.Warn().Err(err).Int64("sequence", sequence).Msg("snapshot archive failed")
		return
	}
	if err := s.mgr.SetArchivedKey(ctx, sequence, key); err != nil {
		outcome = "unrecorded"
		s.logger.Warn().Err(err).Str("key", key).Msg("archived snapshot key not recorded")
	}
}

// RunPeriodic takes a snapshot whenever at least interval commands were
// applied since the last one. It checks every tick until ctx is done.
func (s *Snapshotter) RunPeriodic(ctx context.Context, interval int64, tick time.Duration) error {
	if interval <= 0 {
		interval = 100_000
	}
	last := s.core.LastSequence()

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			current := s.core.LastSequence()
			if current-last < interval {
				continue
			}
			if _, err := s.Take(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("periodic snapshot failed")
				continue
			}
			last = current
		}
	}
}
