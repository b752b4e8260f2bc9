package core

import (
	"errors"
	"testing"
	"time"
)

func TestFeedbackTokenRoundTrip(t *testing.T) {
	issued := time.Unix(1717000000, 0)
	for _, action := range []FeedbackAction{ActionImportant, ActionSpam, ActionChange} {
		tok := NewFeedbackToken(action, 42, issued)
		data := tok.Encode()
		if !IsFeedbackToken(data) {
			t.Errorf("%q not recognised as feedback", data)
		}

		got, err := DecodeFeedbackToken(data)
		if err != nil {
			t.Fatalf("decode %q: %v", data, err)
		}
		if got.Action != action || got.UID != 42 || !got.IssuedAt.Equal(issued) {
			t.Errorf("decode %q = %+v", data, got)
		}
	}

	if got := NewFeedbackToken(ActionSpam, 42, issued).Encode(); got != "spam_42_1717000000" {
		t.Errorf("encoded = %q", got)
	}
}

func TestDecodeFeedbackTokenRejectsMalformed(t *testing.T) {
	for _, data := range []string{
		"",
		"spam",
		"spam_42",
		"spam_42_",
		"spam__1717000000",
		"spam_0_1717000000",
		"spam_-1_1717000000",
		"spam_99999999999_1717000000",
		"spam_42_yesterday",
		"delete_42_1717000000",
		"spam_42_1717000000_extra",
	} {
		if _, err := DecodeFeedbackToken(data); !errors.Is(err, ErrBadFeedbackToken) {
			t.Errorf("DecodeFeedbackToken(%q) err = %v", data, err)
		}
	}
}

func TestTokenLabel(t *testing.T) {
	if l, ok := NewFeedbackToken(ActionSpam, 1, time.Now()).Label(); !ok || l != LabelSpam {
		t.Errorf("spam label = %v, %v", l, ok)
	}
	if _, ok := NewFeedbackToken(ActionChange, 1, time.Now()).Label(); ok {
		t.Error("change token carries a label")
	}
	if IsFeedbackToken("settings") || IsFeedbackToken("check") {
		t.Error("menu payload recognised as feedback")
	}
}
