package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RunReport describes one triggered run
type RunReport struct {
	RunID   string
	Mode    Mode
	Skipped bool
	Fetched int
	DispatchReport
}

// NotifierService is the core polling pipeline: fetch with a purpose's
// cursor, advance the cursor, dispatch.
type NotifierService struct {
	mailbox    Mailbox
	state      StateStore
	dispatcher *Dispatcher
	logger     *zap.Logger
	locks      map[Purpose]*sync.Mutex
	now        func() time.Time
}

// NewNotifierService creates a new notifier service
func NewNotifierService(mailbox Mailbox, state StateStore, dispatcher *Dispatcher, logger *zap.Logger) *NotifierService {
	return &NotifierService{
		mailbox:    mailbox,
		state:      state,
		dispatcher: dispatcher,
		logger:     logger,
		locks: map[Purpose]*sync.Mutex{
			PurposeAuto:   {},
			PurposeManual: {},
			PurposeDaily:  {},
		},
		now: time.Now,
	}
}

// Poll fetches the messages newer than the purpose's cursor and advances
// the cursor to the mailbox maximum. Polls of the same purpose are
// serialized so overlapping triggers never fetch the same range twice.
// A fetch error yields no records and leaves the cursor alone.
func (s *NotifierService) Poll(ctx context.Context, p Purpose) ([]EmailRecord, error) {
	mu := s.locks[p]
	mu.Lock()
	defer mu.Unlock()

	cursor := s.state.Cursor(p)
	res := s.mailbox.FetchSince(ctx, cursor)
	if res.Err != nil {
		s.logger.Error("Mailbox fetch failed",
			zap.String("purpose", string(p)),
			zap.Uint32("cursor", cursor),
			zap.Error(res.Err))
		return nil, res.Err
	}

	// The cursor moves to the mailbox maximum even if some of the newest
	// messages failed to parse; those are not fetched again.
	advanced, err := s.state.Advance(p, res.MaxUID)
	if err != nil {
		s.logger.Error("Failed to persist cursor",
			zap.String("purpose", string(p)),
			zap.Uint32("max_uid", res.MaxUID),
			zap.Error(err))
	}
	if advanced {
		s.logger.Info("Cursor advanced",
			zap.String("purpose", string(p)),
			zap.Uint32("from", cursor),
			zap.Uint32("to", res.MaxUID),
			zap.Int("records", len(res.Records)))
	}

	return res.Records, nil
}

// RunPeriodic is the interval trigger. It does nothing while automatic
// checks are off, realtime mode is on or a snooze is active. An expired
// snooze is cleared.
func (s *NotifierService) RunPeriodic(ctx context.Context) RunReport {
	report := s.newReport(ModePeriodic)
	logger := s.logger.With(zap.String("run_id", report.RunID), zap.String("mode", string(ModePeriodic)))

	settings := s.state.Settings()
	if !settings.AutoEnabled || settings.Realtime {
		logger.Debug("Periodic check disabled",
			zap.Bool("auto_enabled", settings.AutoEnabled),
			zap.Bool("realtime", settings.Realtime))
		report.Skipped = true
		return report
	}

	if settings.SnoozeUntil != nil {
		if settings.Snoozed(s.now()) {
			logger.Debug("Periodic check snoozed", zap.Time("until", *settings.SnoozeUntil))
			report.Skipped = true
			return report
		}
		if err := s.state.ClearSnooze(); err != nil {
			logger.Error("Failed to clear snooze", zap.Error(err))
		}
	}

	return s.run(ctx, logger, report, PurposeAuto)
}

// RunRealtime is the short-cadence trigger used while realtime mode is on
func (s *NotifierService) RunRealtime(ctx context.Context) RunReport {
	report := s.newReport(ModeRealtime)
	logger := s.logger.With(zap.String("run_id", report.RunID), zap.String("mode", string(ModeRealtime)))

	if !s.state.Settings().Realtime {
		report.Skipped = true
		return report
	}

	return s.run(ctx, logger, report, PurposeAuto)
}

// RunDaily sends the daily summary of low-priority mail
func (s *NotifierService) RunDaily(ctx context.Context) RunReport {
	report := s.newReport(ModeDaily)
	logger := s.logger.With(zap.String("run_id", report.RunID), zap.String("mode", string(ModeDaily)))
	return s.run(ctx, logger, report, PurposeDaily)
}

// RunManual is the user-requested check. It always answers, with a
// "no new mail" message when nothing was sent.
func (s *NotifierService) RunManual(ctx context.Context) RunReport {
	report := s.newReport(ModeManual)
	logger := s.logger.With(zap.String("run_id", report.RunID), zap.String("mode", string(ModeManual)))

	report = s.run(ctx, logger, report, PurposeManual)
	if report.Sent == 0 {
		if err := s.dispatcher.NotifyNoNewMail(ctx); err != nil {
			logger.Error("Failed to send manual check reply", zap.Error(err))
		}
	}
	return report
}

func (s *NotifierService) run(ctx context.Context, logger *zap.Logger, report RunReport, p Purpose) RunReport {
	// A failed fetch is already logged and behaves like an empty mailbox
	records, _ := s.Poll(ctx, p)

	report.Fetched = len(records)
	report.DispatchReport = s.dispatcher.Dispatch(ctx, records, report.Mode)

	logger.Info("Run finished",
		zap.Int("fetched", report.Fetched),
		zap.Int("sent", report.Sent),
		zap.Int("ignored", report.Ignored),
		zap.Int("failed", report.Failed))

	return report
}

func (s *NotifierService) newReport(mode Mode) RunReport {
	return RunReport{RunID: uuid.NewString(), Mode: mode}
}
