package core

import (
	"context"
	"errors"
)

// ErrCacheMiss is returned by a ScoreCache when no live entry exists
var ErrCacheMiss = errors.New("cache miss")

// Mailbox lists and fetches messages newer than a cursor
type Mailbox interface {
	// FetchSince returns the parsed records with a UID greater than cursor
	// and the highest UID present in the mailbox
	FetchSince(ctx context.Context, cursor uint32) FetchResult
}

// Prompt is a chat-completion request split into its parts
type Prompt struct {
	System   string
	Examples []Exchange
	Input    string
}

// Exchange is one few-shot example
type Exchange struct {
	User      string
	Assistant string
}

// Completion is the raw reply of a language model
type Completion struct {
	Text  string
	Model string
}

// LLMClient defines the interface for interacting with LLM services
type LLMClient interface {
	// Complete sends the prompt and returns the model's text reply
	Complete(ctx context.Context, prompt *Prompt) (*Completion, error)
}

// Button is an inline action attached to a notification
type Button struct {
	Text string
	Data string
}

// Notification is one outbound chat message
type Notification struct {
	Text    string
	Buttons [][]Button
}

// Messenger delivers notifications to the user
type Messenger interface {
	Send(ctx context.Context, n Notification) error
}

// ScoreCache defines the interface for caching classification scores
type ScoreCache interface {
	// Get retrieves a live cached entry for a message
	Get(ctx context.Context, uid uint32) (*CacheEntry, error)

	// Set stores a cache entry
	Set(ctx context.Context, entry *CacheEntry) error

	// Delete removes a cache entry
	Delete(ctx context.Context, uid uint32) error

	// Cleanup removes expired entries
	Cleanup(ctx context.Context) error
}

// StateStore holds the cursors, the ignore-set and the scheduling flags
type StateStore interface {
	Cursor(p Purpose) uint32
	// Advance moves the cursor forward; values not above the current one are ignored
	Advance(p Purpose, v uint32) (bool, error)
	IsIgnored(uid uint32) bool
	Ignore(uid uint32) error
	Settings() Settings
	ClearSnooze() error
}

// SenderPolicy marks senders whose mail is always important
type SenderPolicy interface {
	IsWhitelisted(from string) bool
}
