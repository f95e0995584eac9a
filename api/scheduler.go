/*
scheduler.go - Daily escalation tick

PURPOSE:
  Drives the escalation engine once per calendar day via a cron
  schedule. The daily tick and the administrator's "run check now"
  endpoint execute identical logic; the reminder log's conditional
  insert is the shared idempotency guard, so the two paths can never
  double-fire a stage on the same day.

CONFIGURATION:
  - Spec: cron expression (default: "0 7 * * *", 07:00 every day)
  - Enabled: whether the scheduler starts (default: true)

USAGE:
  sched := NewDailyScheduler(engine, logger)
  sched.Start()
  // ... later
  sched.Stop()
*/
package api

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/warp/club-engine/dues"
)

// DailyScheduler runs the escalation check on a cron schedule.
type DailyScheduler struct {
	Engine  *dues.Engine
	Spec    string
	Enabled bool
	Log     zerolog.Logger

	cron *cron.Cron
	mu   sync.Mutex
}

func NewDailyScheduler(engine *dues.Engine, log zerolog.Logger) *DailyScheduler {
	return &DailyScheduler{
		Engine:  engine,
		Spec:    "0 7 * * *",
		Enabled: true,
		Log:     log.With().Str("component", "scheduler").Logger(),
	}
}

// Start begins the scheduler.
func (s *DailyScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Log.Info().Msg("scheduler disabled, not starting")
		return nil
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.Spec, s.tick); err != nil {
		return err
	}
	s.cron.Start()
	s.Log.Info().Str("spec", s.Spec).Msg("scheduler started")
	return nil
}

// Stop stops the scheduler and waits for a running tick to finish.
func (s *DailyScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.Log.Info().Msg("scheduler stopped")
	}
}

func (s *DailyScheduler) tick() {
	res, err := s.Engine.RunCheck(context.Background())
	if err != nil {
		s.Log.Error().Err(err).Msg("scheduled escalation run failed")
		return
	}
	s.Log.Info().Str("run_id", res.RunID).Int("actions_fired", res.ActionsFired).
		Int("failures", res.Failures).Msg("scheduled escalation run completed")
}

// RunNow triggers an immediate run (for testing/admin).
func (s *DailyScheduler) RunNow(ctx context.Context) (dues.RunResult, error) {
	return s.Engine.RunCheck(ctx)
}
