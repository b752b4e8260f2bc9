package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrBadFeedbackToken is returned when a callback payload is not a feedback token
var ErrBadFeedbackToken = errors.New("bad feedback token")

// FeedbackAction is what the user pressed on a notification
type FeedbackAction string

const (
	ActionImportant FeedbackAction = "important"
	ActionSpam      FeedbackAction = "spam"
	// ActionChange reopens the verdict buttons
	ActionChange FeedbackAction = "change"
)

// FeedbackToken identifies a feedback button press
type FeedbackToken struct {
	Action   FeedbackAction
	UID      uint32
	IssuedAt time.Time
}

// NewFeedbackToken creates a token issued at the given time
func NewFeedbackToken(action FeedbackAction, uid uint32, issuedAt time.Time) FeedbackToken {
	return FeedbackToken{Action: action, UID: uid, IssuedAt: issuedAt.Truncate(time.Second)}
}

// Encode renders the token as "<action>_<uid>_<unix seconds>"
func (t FeedbackToken) Encode() string {
	return fmt.Sprintf("%s_%d_%d", t.Action, t.UID, t.IssuedAt.Unix())
}

// Label returns the verdict carried by the token, if any
func (t FeedbackToken) Label() (Label, bool) {
	switch t.Action {
	case ActionImportant:
		return LabelImportant, true
	case ActionSpam:
		return LabelSpam, true
	default:
		return "", false
	}
}

// IsFeedbackToken reports whether data looks like a feedback payload
func IsFeedbackToken(data string) bool {
	for _, a := range []FeedbackAction{ActionImportant, ActionSpam, ActionChange} {
		if strings.HasPrefix(data, string(a)+"_") {
			return true
		}
	}
	return false
}

// DecodeFeedbackToken parses a token produced by Encode
func DecodeFeedbackToken(data string) (FeedbackToken, error) {
	parts := strings.Split(data, "_")
	if len(parts) != 3 {
		return FeedbackToken{}, fmt.Errorf("%w: %q", ErrBadFeedbackToken, data)
	}

	action := FeedbackAction(parts[0])
	switch action {
	case ActionImportant, ActionSpam, ActionChange:
	default:
		return FeedbackToken{}, fmt.Errorf("%w: unknown action %q", ErrBadFeedbackToken, parts[0])
	}

	uid, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil || uid == 0 {
		return FeedbackToken{}, fmt.Errorf("%w: invalid uid %q", ErrBadFeedbackToken, parts[1])
	}

	ts, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || ts < 0 {
		return FeedbackToken{}, fmt.Errorf("%w: invalid timestamp %q", ErrBadFeedbackToken, parts[2])
	}

	return FeedbackToken{Action: action, UID: uint32(uid), IssuedAt: time.Unix(ts, 0)}, nil
}
