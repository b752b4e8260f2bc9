package core

import (
	"fmt"
	"time"
)

// EmailRecord is a normalized message as fetched from the mailbox
type EmailRecord struct {
	UID           uint32
	Sender        string
	SenderAddress string
	Subject       string
	Body          string
	RawLength     int
}

// Snapshot returns the text stored with feedback and sent for scoring
func (r EmailRecord) Snapshot() string {
	return fmt.Sprintf("From: %s\nSubject: %s\n\n%s", r.Sender, r.Subject, r.Body)
}

// FetchResult is the outcome of one mailbox poll.
// A non-nil Err means the batch must be treated as empty and no cursor advanced.
type FetchResult struct {
	Records []EmailRecord
	MaxUID  uint32
	Err     error
}

// Purpose names one of the independent mailbox cursors
type Purpose string

const (
	// PurposeAuto is shared by the periodic and realtime triggers
	PurposeAuto   Purpose = "auto"
	PurposeManual Purpose = "manual"
	PurposeDaily  Purpose = "daily"
)

// Mode selects how a batch is presented
type Mode string

const (
	ModePeriodic Mode = "periodic"
	ModeManual   Mode = "manual"
	ModeDaily    Mode = "daily"
	ModeRealtime Mode = "realtime"
)

// Band is the three-way importance partition of a score
type Band string

const (
	BandImportant   Band = "important"
	BandUncertain   Band = "uncertain"
	BandUnimportant Band = "unimportant"
)

const (
	// ImportantThreshold is the lowest score considered important
	ImportantThreshold = 0.7
	// UnimportantThreshold is the score below which mail is unimportant
	UnimportantThreshold = 0.3
	// DailyReportThreshold is the score below which mail appears in the daily report
	DailyReportThreshold = 0.5
	// NeutralScore is used when the classifier cannot produce a score
	NeutralScore = 0.5
)

// BandFor maps a score to its band
func BandFor(score float64) Band {
	switch {
	case score >= ImportantThreshold:
		return BandImportant
	case score < UnimportantThreshold:
		return BandUnimportant
	default:
		return BandUncertain
	}
}

// Label is a user verdict on a notified message
type Label string

const (
	LabelImportant Label = "important"
	LabelSpam      Label = "spam"
)

// Valid reports whether l is a known label
func (l Label) Valid() bool {
	return l == LabelImportant || l == LabelSpam
}

// FeedbackEntry is one line of the feedback log
type FeedbackEntry struct {
	UID       uint32    `json:"uid"`
	Label     Label     `json:"label"`
	Timestamp time.Time `json:"timestamp"`
	Email     string    `json:"email"`
}

// Settings are the user-controlled scheduling flags
type Settings struct {
	AutoEnabled  bool
	AutoInterval int
	SnoozeUntil  *time.Time
	Realtime     bool
}

// Snoozed reports whether periodic checks are paused at now
func (s Settings) Snoozed(now time.Time) bool {
	return s.SnoozeUntil != nil && now.Before(*s.SnoozeUntil)
}

// CacheEntry is a cached classification score for one message
type CacheEntry struct {
	UID       uint32
	Score     float64
	Model     string
	ScoredAt  time.Time
	ExpiresAt time.Time
}
