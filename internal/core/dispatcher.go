package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	nothingToReport = "[Daily report] Nothing to report"
	noNewMail       = "[Manual check] No new mail"
)

// IgnoreSet answers whether a message is muted
type IgnoreSet interface {
	IsIgnored(uid uint32) bool
}

// DispatchReport summarizes one dispatch call
type DispatchReport struct {
	Sent    int
	Ignored int
	Failed  int
}

// Dispatcher turns fetched records into chat notifications
type Dispatcher struct {
	messenger Messenger
	ignored   IgnoreSet
	scorer    RecordScorer
	logger    *zap.Logger
	now       func() time.Time
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(messenger Messenger, ignored IgnoreSet, scorer RecordScorer, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		messenger: messenger,
		ignored:   ignored,
		scorer:    scorer,
		logger:    logger,
		now:       time.Now,
	}
}

// Dispatch sends the records in the given mode. Records are expected in
// ascending UID order; ignored ones are skipped. A failed send is logged
// and the rest of the batch still goes out.
func (d *Dispatcher) Dispatch(ctx context.Context, records []EmailRecord, mode Mode) DispatchReport {
	if mode == ModeDaily {
		return d.dispatchDaily(ctx, records)
	}

	var report DispatchReport
	for _, r := range records {
		if d.ignored.IsIgnored(r.UID) {
			report.Ignored++
			continue
		}

		n := d.format(ctx, r, mode)
		if err := d.messenger.Send(ctx, n); err != nil {
			report.Failed++
			d.logger.Error("Failed to send notification",
				zap.Uint32("uid", r.UID),
				zap.String("mode", string(mode)),
				zap.Error(err))
			continue
		}
		report.Sent++
	}

	return report
}

func (d *Dispatcher) format(ctx context.Context, r EmailRecord, mode Mode) Notification {
	switch mode {
	case ModeRealtime:
		score := d.scorer.ScoreRecord(ctx, r).Value()
		issued := d.now()
		return Notification{
			Text:    fmt.Sprintf("%s (score %.2f)\n%s", bandHeader(BandFor(score)), score, r.Snapshot()),
			Buttons: FeedbackButtons(r.UID, issued),
		}
	case ModeManual:
		return Notification{Text: "[Manual check]\n" + r.Snapshot()}
	default:
		return Notification{Text: "[Auto] New email\n" + r.Snapshot()}
	}
}

func (d *Dispatcher) dispatchDaily(ctx context.Context, records []EmailRecord) DispatchReport {
	var report DispatchReport
	var lines []string

	for _, r := range records {
		if d.ignored.IsIgnored(r.UID) {
			report.Ignored++
			continue
		}
		score := d.scorer.ScoreRecord(ctx, r).Value()
		if score < DailyReportThreshold {
			lines = append(lines, fmt.Sprintf("%d. %s: %s (score %.2f)", len(lines)+1, r.Sender, r.Subject, score))
		}
	}

	text := nothingToReport
	if len(lines) > 0 {
		text = fmt.Sprintf("[Daily report] %d low-priority emails\n\n%s", len(lines), strings.Join(lines, "\n"))
	}

	if err := d.messenger.Send(ctx, Notification{Text: text}); err != nil {
		report.Failed++
		d.logger.Error("Failed to send daily report", zap.Error(err))
		return report
	}
	report.Sent++
	return report
}

// NotifyNoNewMail tells the user a manual check found nothing
func (d *Dispatcher) NotifyNoNewMail(ctx context.Context) error {
	return d.messenger.Send(ctx, Notification{Text: noNewMail})
}

// FeedbackButtons returns the verdict buttons for a message
func FeedbackButtons(uid uint32, issued time.Time) [][]Button {
	return [][]Button{{
		{Text: "Important", Data: NewFeedbackToken(ActionImportant, uid, issued).Encode()},
		{Text: "Spam", Data: NewFeedbackToken(ActionSpam, uid, issued).Encode()},
	}}
}

func bandHeader(b Band) string {
	switch b {
	case BandImportant:
		return "[Important]"
	case BandUnimportant:
		return "[Unimportant]"
	default:
		return "[Uncertain]"
	}
}
