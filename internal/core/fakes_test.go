package core

import (
	"context"
	"errors"
	"sync"
)

type fakeLLM struct {
	mu      sync.Mutex
	reply   string
	err     error
	calls   int
	prompts []*Prompt
}

func (f *fakeLLM) Complete(ctx context.Context, p *Prompt) (*Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, p)
	if f.err != nil {
		return nil, f.err
	}
	return &Completion{Text: f.reply, Model: "fake"}, nil
}

type fakeMessenger struct {
	mu     sync.Mutex
	sent   []Notification
	failOn map[int]bool
	calls  int
}

func (m *fakeMessenger) Send(ctx context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failOn[m.calls] {
		return errors.New("send failed")
	}
	m.sent = append(m.sent, n)
	return nil
}

type fakeIgnoreSet map[uint32]bool

func (f fakeIgnoreSet) IsIgnored(uid uint32) bool { return f[uid] }

// scoreByUID scores records from a fixed table
type scoreByUID map[uint32]float64

func (s scoreByUID) ScoreRecord(ctx context.Context, r EmailRecord) ScoreResult {
	v, ok := s[r.UID]
	if !ok {
		return ScoreResult{Failure: FailureTransport}
	}
	return ScoreResult{Score: v}
}

// fakeMailbox serves a fixed set of messages, mimicking an IMAP folder
type fakeMailbox struct {
	mu       sync.Mutex
	records  []EmailRecord
	// unparsed UIDs count towards the maximum but yield no record
	unparsed []uint32
	err      error
	calls    int
}

func (m *fakeMailbox) FetchSince(ctx context.Context, cursor uint32) FetchResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return FetchResult{Err: m.err}
	}

	var res FetchResult
	for _, r := range m.records {
		if r.UID > res.MaxUID {
			res.MaxUID = r.UID
		}
		if r.UID > cursor {
			res.Records = append(res.Records, r)
		}
	}
	for _, uid := range m.unparsed {
		if uid > res.MaxUID {
			res.MaxUID = uid
		}
	}
	return res
}

type memState struct {
	mu       sync.Mutex
	cursors  map[Purpose]uint32
	ignored  map[uint32]bool
	settings Settings
}

func newMemState() *memState {
	return &memState{
		cursors:  map[Purpose]uint32{},
		ignored:  map[uint32]bool{},
		settings: Settings{AutoEnabled: true, AutoInterval: 30},
	}
}

func (s *memState) Cursor(p Purpose) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursors[p]
}

func (s *memState) Advance(p Purpose, v uint32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v <= s.cursors[p] {
		return false, nil
	}
	s.cursors[p] = v
	return true, nil
}

func (s *memState) IsIgnored(uid uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ignored[uid]
}

func (s *memState) Ignore(uid uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ignored[uid] = true
	return nil
}

func (s *memState) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *memState) ClearSnooze() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.SnoozeUntil = nil
	return nil
}

func records(uids ...uint32) []EmailRecord {
	out := make([]EmailRecord, 0, len(uids))
	for _, uid := range uids {
		out = append(out, EmailRecord{
			UID:           uid,
			Sender:        "Sender <sender@example.com>",
			SenderAddress: "sender@example.com",
			Subject:       "Subject",
			Body:          "Body",
		})
	}
	return out
}
