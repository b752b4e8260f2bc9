package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mikey/mail-notifier/internal/core"
	"github.com/mikey/mail-notifier/internal/state"
	"github.com/mikey/mail-notifier/internal/utils"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// SnapshotLimit is the number of characters of the message kept per entry
const SnapshotLimit = 1000

// Ignorer mutes a message for good
type Ignorer interface {
	Ignore(uid uint32) error
}

// Log is an append-only JSON array of feedback entries kept in one file
type Log struct {
	mu   sync.Mutex
	fs   afero.Fs
	path string
}

// NewLog creates a feedback log at path on fs
func NewLog(fs afero.Fs, path string) *Log {
	return &Log{fs: fs, path: path}
}

// Append reads the whole log, adds entry and writes the whole log back
func (l *Log) Append(entry core.FeedbackEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.read()
	if err != nil {
		return err
	}
	entries = append(entries, entry)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode feedback log: %w", err)
	}
	return state.WriteFileAtomic(l.fs, l.path, data)
}

// Entries returns every entry in the log
func (l *Log) Entries() ([]core.FeedbackEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read()
}

func (l *Log) read() ([]core.FeedbackEntry, error) {
	data, err := afero.ReadFile(l.fs, l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []core.FeedbackEntry{}, nil
		}
		return nil, fmt.Errorf("failed to read feedback log: %w", err)
	}
	if len(data) == 0 {
		return []core.FeedbackEntry{}, nil
	}

	var entries []core.FeedbackEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode feedback log %s: %w", l.path, err)
	}
	return entries, nil
}

// Recorder stores user verdicts and mutes messages labelled spam
type Recorder struct {
	log     *Log
	ignorer Ignorer
	logger  *zap.Logger
	now     func() time.Time
}

// NewRecorder creates a new feedback recorder
func NewRecorder(log *Log, ignorer Ignorer, logger *zap.Logger) *Recorder {
	return &Recorder{
		log:     log,
		ignorer: ignorer,
		logger:  logger,
		now:     time.Now,
	}
}

// Record appends one entry for uid. A spam label also adds uid to the
// ignore-set, even when the log could not be written.
func (r *Recorder) Record(ctx context.Context, uid uint32, label core.Label, snapshot string) error {
	if !label.Valid() {
		return fmt.Errorf("unknown feedback label %q", label)
	}

	entry := core.FeedbackEntry{
		UID:       uid,
		Label:     label,
		Timestamp: r.now(),
		Email:     utils.TruncateRunes(snapshot, SnapshotLimit),
	}

	var errs []error
	if err := r.log.Append(entry); err != nil {
		r.logger.Error("Failed to save feedback", zap.Uint32("uid", uid), zap.Error(err))
		errs = append(errs, err)
	}

	if label == core.LabelSpam {
		if err := r.ignorer.Ignore(uid); err != nil {
			r.logger.Error("Failed to persist ignored message", zap.Uint32("uid", uid), zap.Error(err))
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		r.logger.Info("Feedback saved", zap.Uint32("uid", uid), zap.String("label", string(label)))
	}
	return errors.Join(errs...)
}

// RecordToken decodes a callback payload and records its verdict.
// Malformed payloads return core.ErrBadFeedbackToken and record nothing.
func (r *Recorder) RecordToken(ctx context.Context, data string, snapshot string) (core.FeedbackToken, error) {
	token, err := core.DecodeFeedbackToken(data)
	if err != nil {
		r.logger.Warn("Rejected feedback token", zap.String("data", data), zap.Error(err))
		return core.FeedbackToken{}, err
	}

	label, ok := token.Label()
	if !ok {
		return token, fmt.Errorf("%w: %q carries no verdict", core.ErrBadFeedbackToken, data)
	}

	return token, r.Record(ctx, token.UID, label, snapshot)
}
