package alerting

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/eventpulse/eventpulse/internal/domain"
	"github.com/eventpulse/eventpulse/internal/logger"
)

// SweepConfig controls the periodic sweep schedules.
type SweepConfig struct {
	AutoResolveInterval time.Duration `yaml:"auto_resolve_interval" env:"SWEEP_AUTO_RESOLVE_INTERVAL"`
	DigestInterval      time.Duration `yaml:"digest_interval" env:"SWEEP_DIGEST_INTERVAL"`
}

// WithDefaults fills zero-valued settings.
func (c SweepConfig) WithDefaults() SweepConfig {
	if c.AutoResolveInterval <= 0 {
		c.AutoResolveInterval = 5 * time.Minute
	}
	if c.DigestInterval <= 0 {
		c.DigestInterval = time.Hour
	}
	return c
}

// Sweeper runs the auto-resolve and digest sweeps on cron schedules.
// Each sweep skips a run while its previous run is still in flight; the
// two sweeps run independently of each other and of ingestion.
type Sweeper struct {
	engine *Engine
	cfg    SweepConfig
	log    logger.Logger
	cron   *cron.Cron

	autoResolveRunning atomic.Bool
	digestRunning      atomic.Bool
}

// NewSweeper creates a sweeper over the engine.
func NewSweeper(engine *Engine, cfg SweepConfig, log logger.Logger) *Sweeper {
	return &Sweeper{
		engine: engine,
		cfg:    cfg.WithDefaults(),
		log:    log,
		cron:   cron.New(),
	}
}

// Start registers the sweep schedules and starts the scheduler.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.cfg.AutoResolveInterval), func() {
		if err := s.RunAutoResolve(ctx); err != nil {
			s.log.Error("auto-resolve sweep failed", logger.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule auto-resolve sweep: %w", err)
	}

	_, err = s.cron.AddFunc(fmt.Sprintf("@every %s", s.cfg.DigestInterval), func() {
		if err := s.RunDigest(ctx); err != nil {
			s.log.Error("digest sweep failed", logger.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule digest sweep: %w", err)
	}

	s.cron.Start()
	s.log.Info("sweeps scheduled",
		logger.Duration("auto_resolve_interval", s.cfg.AutoResolveInterval),
		logger.Duration("digest_interval", s.cfg.DigestInterval))
	return nil
}

// Stop halts the scheduler and waits for running jobs.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// RunAutoResolve resolves every non-terminal alert whose auto-resolve
// deadline has passed, then broadcasts a per-event summary.
func (s *Sweeper) RunAutoResolve(ctx context.Context) error {
	if !s.autoResolveRunning.CompareAndSwap(false, true) {
		s.log.Warn("auto-resolve sweep still in flight, skipping run")
		return nil
	}
	defer s.autoResolveRunning.Store(false)

	timer := s.engine.metrics.SweepDuration.WithLabelValues("auto_resolve")
	start := time.Now()
	defer func() { timer.Observe(time.Since(start).Seconds()) }()

	now := s.engine.now()
	due, err := s.engine.alerts.ListAutoResolveDue(ctx, now)
	if err != nil {
		return fmt.Errorf("list due alerts: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	resolvedByEvent := make(map[string]int)
	for _, alert := range due {
		if err := alert.TransitionTo(domain.AlertStatusResolved, autoResolveNote, domain.SystemActor, now); err != nil {
			s.log.Warn("skipping alert in auto-resolve sweep",
				logger.String("alert_id", alert.ID),
				logger.Error(err))
			continue
		}
		if err := s.engine.alerts.Update(ctx, alert); err != nil {
			s.log.Error("failed to persist auto-resolved alert",
				logger.String("alert_id", alert.ID),
				logger.Error(err))
			continue
		}
		s.engine.metrics.AlertsAutoResolve.Inc()
		resolvedByEvent[alert.EventID]++
		s.engine.dispatcher.AlertUpdated(ctx, alert)
	}

	for eventID, count := range resolvedByEvent {
		s.engine.dispatcher.AutoResolveCompleted(ctx, eventID, count)
		s.log.Info("auto-resolved alerts",
			logger.String("event_id", eventID),
			logger.Int("count", count))
	}
	return nil
}

// RunDigest groups each event's alerts from the last digest window by
// type and sends one digest per event that had any. Events without
// alerts are skipped.
func (s *Sweeper) RunDigest(ctx context.Context) error {
	if !s.digestRunning.CompareAndSwap(false, true) {
		s.log.Warn("digest sweep still in flight, skipping run")
		return nil
	}
	defer s.digestRunning.Store(false)

	timer := s.engine.metrics.SweepDuration.WithLabelValues("digest")
	start := time.Now()
	defer func() { timer.Observe(time.Since(start).Seconds()) }()

	now := s.engine.now()
	alerts, err := s.engine.alerts.ListCreatedSince(ctx, now.Add(-s.cfg.DigestInterval))
	if err != nil {
		return fmt.Errorf("list recent alerts: %w", err)
	}

	byEvent := make(map[string]map[domain.AlertType]int)
	for _, alert := range alerts {
		if byEvent[alert.EventID] == nil {
			byEvent[alert.EventID] = make(map[domain.AlertType]int)
		}
		byEvent[alert.EventID][alert.Type]++
	}

	for eventID, byType := range byEvent {
		s.engine.dispatcher.Digest(ctx, eventID, byType)
	}
	return nil
}
