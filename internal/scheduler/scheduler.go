package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mikey/mail-notifier/internal/config"
	"github.com/mikey/mail-notifier/internal/core"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Runner executes the pipeline for each trigger
type Runner interface {
	RunPeriodic(ctx context.Context) core.RunReport
	RunRealtime(ctx context.Context) core.RunReport
	RunDaily(ctx context.Context) core.RunReport
}

// SettingsSource provides the current periodic interval
type SettingsSource interface {
	Settings() core.Settings
}

// Scheduler fires the periodic, realtime and daily triggers
type Scheduler struct {
	cron     *cron.Cron
	runner   Runner
	settings SettingsSource
	cfg      config.ScheduleConfig
	logger   *zap.Logger

	periodic cron.Job
	realtime cron.Job
	daily    cron.Job
	sem      *semaphore.Weighted

	mu         sync.Mutex
	periodicID cron.EntryID
	ctx        context.Context
	cancel     context.CancelFunc
}

// New creates a new scheduler
func New(runner Runner, settings SettingsSource, cfg config.ScheduleConfig, logger *zap.Logger) *Scheduler {
	logger = logger.Named("scheduler")
	cl := newCronLogger(logger)

	if cfg.RealtimeConcurrency < 1 {
		cfg.RealtimeConcurrency = 1
	}

	s := &Scheduler{
		cron:     cron.New(cron.WithLogger(cl)),
		runner:   runner,
		settings: settings,
		cfg:      cfg,
		logger:   logger,
		sem:      semaphore.NewWeighted(int64(cfg.RealtimeConcurrency)),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	// Periodic and daily runs are single instance; realtime overlaps up to
	// the semaphore limit
	single := cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))
	s.periodic = single.Then(cron.FuncJob(s.runPeriodic))
	s.daily = single.Then(cron.FuncJob(s.runDaily))
	s.realtime = cron.NewChain(cron.Recover(cl)).Then(cron.FuncJob(s.runRealtime))

	return s
}

// Start registers the triggers, runs one periodic check right away and
// starts the cron loop
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddJob(everySpec(s.cfg.RealtimeInterval), s.realtime); err != nil {
		return fmt.Errorf("failed to schedule realtime checks: %w", err)
	}

	spec, err := DailySpec(s.cfg.DailyTime, s.cfg.Timezone)
	if err != nil {
		return err
	}
	if _, err := s.cron.AddJob(spec, s.daily); err != nil {
		return fmt.Errorf("failed to schedule daily report: %w", err)
	}

	if err := s.Reschedule(s.settings.Settings().AutoInterval); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("Scheduler started",
		zap.Duration("realtime_interval", s.cfg.RealtimeInterval),
		zap.String("daily", spec))
	return nil
}

// Reschedule replaces the periodic trigger with one firing every minutes
// and runs a check immediately
func (s *Scheduler) Reschedule(minutes int) error {
	if minutes < 1 {
		return fmt.Errorf("invalid periodic interval: %d minutes", minutes)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.periodicID != 0 {
		s.cron.Remove(s.periodicID)
	}
	id, err := s.cron.AddJob(everySpec(time.Duration(minutes)*time.Minute), s.periodic)
	if err != nil {
		return fmt.Errorf("failed to schedule periodic checks: %w", err)
	}
	s.periodicID = id

	s.logger.Info("Periodic checks scheduled", zap.Int("interval_minutes", minutes))
	go s.periodic.Run()
	return nil
}

// Stop cancels running jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) runPeriodic() {
	s.runner.RunPeriodic(s.ctx)
}

func (s *Scheduler) runDaily() {
	s.runner.RunDaily(s.ctx)
}

func (s *Scheduler) runRealtime() {
	if !s.sem.TryAcquire(1) {
		s.logger.Debug("Realtime check skipped, too many in flight")
		return
	}
	defer s.sem.Release(1)

	s.runner.RunRealtime(s.ctx)
}

func everySpec(d time.Duration) string {
	return "@every " + d.String()
}

// DailySpec builds a cron spec for HH:MM in the given IANA time zone
func DailySpec(at, timezone string) (string, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(at))
	if err != nil {
		return "", fmt.Errorf("invalid daily time %q: %w", at, err)
	}
	if timezone == "" {
		timezone = "Local"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return "", fmt.Errorf("invalid time zone %q: %w", timezone, err)
	}
	return fmt.Sprintf("CRON_TZ=%s %d %d * * *", timezone, t.Minute(), t.Hour()), nil
}
