package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"FightPool/internal/cluster"
	"FightPool/internal/config"
	"FightPool/internal/core"
	"FightPool/internal/ingestion"
	"FightPool/internal/observability"
	"FightPool/internal/persistence"
	"FightPool/internal/projection"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// writeGate admits commands only while this instance holds the lock and
// the core has finished recovering.
type writeGate struct {
	lock  *cluster.LeaderLock // nil when running without Redis
	ready atomic.Bool
}

func (g *writeGate) IsLeader() bool {
	if !g.ready.Load() {
		return false
	}
	return g.lock == nil || g.lock.IsLeader()
}

// pipeline holds the channels between the core and its workers.
type pipeline struct {
	submit         chan core.Submission
	persistCore    chan core.CoreOutput
	projectionCore chan core.CoreOutput
	persistOut     chan persistence.CoreOutput
	projectionOut  chan projection.ProjectionOutput
	publish        chan ingestion.PublishableEvent
	stream         chan ingestion.PublishableEvent
	metrics        *observability.Metrics
}

func newPipeline(cfg *config.Config, metrics *observability.Metrics) *pipeline {
	c := cfg.Core
	p := &pipeline{
		submit:         make(chan core.Submission, c.SubmitChanSize),
		persistCore:    make(chan core.CoreOutput, c.PersistChanSize),
		projectionCore: make(chan core.CoreOutput, c.ProjectionChanSize),
		persistOut:     make(chan persistence.CoreOutput, c.PersistChanSize),
		projectionOut:  make(chan projection.ProjectionOutput, c.ProjectionChanSize),
		stream:         make(chan ingestion.PublishableEvent, c.NotifyChanSize),
		metrics:        metrics,
	}
	if cfg.NATS.Enabled {
		p.publish = make(chan ingestion.PublishableEvent, c.NotifyChanSize)
	}
	return p
}

// bridge converts core outputs into worker inputs. Persistence gets a
// blocking send; projections and notifications drop when their consumer
// falls behind. It closes every output once both inputs are closed.
func (p *pipeline) bridge() {
	defer func() {
		close(p.persistOut)
		close(p.projectionOut)
		close(p.stream)
		if p.publish != nil {
			close(p.publish)
		}
	}()

	persistIn, projectionIn := p.persistCore, p.projectionCore
	for persistIn != nil || projectionIn != nil {
		select {
		case out, ok := <-persistIn:
			if !ok {
				persistIn = nil
				continue
			}
			p.persistOut <- persistence.RowsFromOutput(out)
			if len(out.Notifications) > 0 {
				p.notify(ingestion.PublishableFromOutput(out))
			}

		case out, ok := <-projectionIn:
			if !ok {
				projectionIn = nil
				continue
			}
			select {
			case p.projectionOut <- projection.FromCoreOutput(out):
			default:
				if p.metrics != nil {
					p.metrics.ProjectionDrops.WithLabelValues("bridge").Inc()
				}
			}
		}
	}
}

func (p *pipeline) notify(evt ingestion.PublishableEvent) {
	if p.publish != nil {
		select {
		case p.publish <- evt:
		default:
			if p.metrics != nil {
				p.metrics.PublishDrops.Inc()
			}
		}
	}
	select {
	case p.stream <- evt:
	default:
		if p.metrics != nil {
			p.metrics.StreamDrops.Inc()
		}
	}
}

func (p *pipeline) reportChannels(ctx context.Context, every time.Duration) error {
	if p.metrics == nil {
		return nil
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.metrics.SetChannelMetrics("submit", len(p.submit), cap(p.submit))
			p.metrics.SetChannelMetrics("persist", len(p.persistCore), cap(p.persistCore))
			p.metrics.SetChannelMetrics("projection", len(p.projectionCore), cap(p.projectionCore))
			p.metrics.SetChannelMetrics("stream", len(p.stream), cap(p.stream))
		}
	}
}

// writer runs the core and everything that consumes its output for as long
// as this instance leads.
type writer struct {
	cfg         *config.Config
	db          *sql.DB
	core        *core.EscrowCore
	pipeline    *pipeline
	commands    *ingestion.CommandService
	snapshotter *persistence.Snapshotter
	lock        *cluster.LeaderLock
	js          jetstream.JetStream
	metrics     *observability.Metrics
	logger      zerolog.Logger
	onReady     func()
}

// run blocks until ctx is done or leadership is lost. Shutdown order: stop
// intake, stop the core, drain the workers, take a final snapshot, then
// release the lock so no other instance writes while the log is still
// being flushed.
func (w *writer) run(ctx context.Context) error {
	p := w.pipeline

	// Workers outlive ctx: they stop when their input channels close.
	drainCtx, stopDrain := context.WithCancel(context.WithoutCancel(ctx))
	defer stopDrain()

	coreCtx, stopCore := context.WithCancel(ctx)
	defer stopCore()

	var lost atomic.Bool
	holdDone := make(chan error, 1)
	if w.lock != nil {
		go func() {
			err := w.lock.Hold(drainCtx)
			if err != nil {
				lost.Store(true)
				stopCore()
			}
			holdDone <- err
		}()
	} else {
		holdDone <- nil
	}

	var workers errgroup.Group
	workers.Go(func() error {
		pw := persistence.NewPersistenceWorker(w.db, p.persistOut,
			w.cfg.Core.PersistBatchSize, w.cfg.Core.PersistFlushTimeout.Duration, w.metrics)
		return pw.Run(drainCtx)
	})
	workers.Go(func() error {
		return projection.NewProjectionWorker(w.db, p.projectionOut, w.metrics).Run(drainCtx)
	})
	workers.Go(func() error {
		p.bridge()
		return nil
	})
	if p.publish != nil {
		workers.Go(func() error {
			return ingestion.NewOutboundPublisher(w.js, p.publish).Run(drainCtx)
		})
	}

	var subscriber *ingestion.NATSSubscriber
	if w.js != nil {
		subscriber = ingestion.NewNATSSubscriber(w.js, w.commands)
		if err := subscriber.Subscribe(coreCtx, ingestion.SubscriberConfig{
			Stream:     w.cfg.NATS.CommandStream,
			Consumer:   w.cfg.NATS.ConsumerPrefix + "-core",
			AckWait:    w.cfg.NATS.AckWait.Duration,
			MaxDeliver: w.cfg.NATS.MaxDeliver,
		}); err != nil {
			stopCore()
			close(p.persistCore)
			close(p.projectionCore)
			_ = workers.Wait()
			return fmt.Errorf("nats subscribe: %w", err)
		}
	}

	snapDone := make(chan struct{})
	go func() {
		defer close(snapDone)
		_ = w.snapshotter.RunPeriodic(coreCtx, w.cfg.Core.SnapshotInterval, w.cfg.Core.SnapshotCheck.Duration)
	}()

	coreDone := make(chan error, 1)
	go func() { coreDone <- w.core.Run(coreCtx, p.submit) }()

	w.onReady()

	<-coreCtx.Done()
	if subscriber != nil {
		subscriber.Stop()
	}
	<-coreDone
	<-snapDone

	// The core was the only sender.
	close(p.persistCore)
	close(p.projectionCore)
	if err := workers.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Error().Err(err).Msg("worker failed during drain")
	}

	if lost.Load() {
		return <-holdDone
	}

	snapCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := w.snapshotter.Take(snapCtx); err != nil {
		w.logger.Error().Err(err).Msg("final snapshot failed")
	} else {
		w.logger.Info().Int64("sequence", w.core.LastSequence()).Msg("final snapshot saved")
	}

	stopDrain()
	return <-holdDone
}
