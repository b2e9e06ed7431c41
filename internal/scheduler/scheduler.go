// Package scheduler drives the periodic server ping and journal pruning.
package scheduler

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/mattjoyce/elasticd/internal/config"
	"github.com/mattjoyce/elasticd/internal/elastic"
	"github.com/mattjoyce/elasticd/internal/events"
)

// Event types published by the scheduler.
const (
	TypePingCompleted = "scheduler.ping_completed"
	TypePingFailed    = "scheduler.ping_failed"
)

// PingEvent is the payload of scheduler ping events.
type PingEvent struct {
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Scheduler periodically pings every registered plugin so it can reconcile
// the agents it owns, and prunes the journal.
type Scheduler struct {
	cfg       *config.Config
	pinger    Pinger
	agentsFor elastic.AgentsFunc
	journal   JournalPruner
	events    *events.Hub
	logger    *slog.Logger
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// New creates a new Scheduler. agentsFor supplies the agents handed to each
// plugin; journal may be nil to disable pruning.
func New(cfg *config.Config, pinger Pinger, agentsFor elastic.AgentsFunc, journal JournalPruner, hub *events.Hub, logger *slog.Logger) *Scheduler {
	if hub == nil {
		hub = events.NewHub(128)
	}
	return &Scheduler{
		cfg:       cfg,
		pinger:    pinger,
		agentsFor: agentsFor,
		journal:   journal,
		events:    hub,
		logger:    logger.With("component", "scheduler"),
		stopCh:    make(chan struct{}),
	}
}

// Start begins the tick loop. A zero ping interval leaves the scheduler idle.
func (s *Scheduler) Start(ctx context.Context) {
	if s.cfg.Ping.Interval <= 0 {
		s.logger.Info("Periodic server ping disabled")
		return
	}
	s.logger.Info("Starting scheduler", "interval", s.cfg.Ping.Interval, "jitter", s.cfg.Ping.Jitter)

	s.wg.Add(1)
	go s.tickLoop(ctx)
}

// Stop stops the tick loop and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping scheduler")
		close(s.stopCh)
	})
	s.wg.Wait()
}

// tickLoop is the main scheduling loop.
func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.wg.Done()

	timer := time.NewTimer(calculateJitteredInterval(s.cfg.Ping.Interval, s.cfg.Ping.Jitter))
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			s.tick(ctx)
			timer.Reset(calculateJitteredInterval(s.cfg.Ping.Interval, s.cfg.Ping.Jitter))
		case <-s.stopCh:
			return
		case <-ctx.Done():
			s.logger.Debug("Scheduler context cancelled, stopping tick loop")
			return
		}
	}
}

// tick performs a single ping pass followed by journal pruning.
func (s *Scheduler) tick(ctx context.Context) {
	start := time.Now()
	err := s.pinger.ServerPingAll(ctx, s.agentsFor, s.cfg.Ping.Concurrency)
	elapsed := time.Since(start)

	if err != nil {
		s.logger.Warn("Server ping failed", "duration_ms", elapsed.Milliseconds(), "error", err)
		s.events.Publish(TypePingFailed, PingEvent{DurationMS: elapsed.Milliseconds(), Error: err.Error()})
	} else {
		s.logger.Debug("Server ping completed", "duration_ms", elapsed.Milliseconds())
		s.events.Publish(TypePingCompleted, PingEvent{DurationMS: elapsed.Milliseconds()})
	}

	if s.journal != nil && s.cfg.State.JournalRetention > 0 {
		n, err := s.journal.Prune(ctx, s.cfg.State.JournalRetention)
		if err != nil {
			s.logger.Error("Failed to prune journal", "error", err)
		} else if n > 0 {
			s.logger.Info("Pruned journal", "removed", n, "retention", s.cfg.State.JournalRetention)
		}
	}
}

// calculateJitteredInterval adds a random jitter to the base interval.
func calculateJitteredInterval(baseInterval time.Duration, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return baseInterval
	}
	return baseInterval + time.Duration(rand.Int63n(jitter.Nanoseconds()))
}
