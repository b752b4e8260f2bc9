package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mikey/mail-notifier/internal/core"
	"go.uber.org/zap"
)

// DefaultAutoInterval is the periodic check interval in minutes
const DefaultAutoInterval = 30

// ErrInvalidInterval is returned for intervals shorter than one minute
var ErrInvalidInterval = errors.New("interval must be at least one minute")

// naiveLayouts are accepted for snooze_until values written without a zone
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// fileState is the on-disk shape of the state
type fileState struct {
	LastUID       uint32   `json:"last_uid"`
	LastUIDDaily  uint32   `json:"last_uid_daily"`
	ManualLastUID uint32   `json:"manual_last_uid"`
	AutoEnabled   bool     `json:"auto_enabled"`
	AutoInterval  int      `json:"auto_interval"`
	SnoozeUntil   *string  `json:"snooze_until"`
	Realtime      bool     `json:"realtime"`
	IgnoredUIDs   []uint32 `json:"ignored_uids"`
}

func defaultFileState() fileState {
	return fileState{
		AutoEnabled:  true,
		AutoInterval: DefaultAutoInterval,
		IgnoredUIDs:  []uint32{},
	}
}

// Store is the process-wide holder of cursors, the ignore-set and the
// scheduling flags. Every mutation writes the full snapshot before returning.
type Store struct {
	mu        sync.Mutex
	cursors   map[core.Purpose]uint32
	ignored   map[uint32]struct{}
	settings  core.Settings
	persister Persister
	logger    *zap.Logger
}

// Open loads the state through p. A missing or corrupt snapshot yields
// the defaults; keys absent from the snapshot take their default value.
func Open(p Persister, logger *zap.Logger) (*Store, error) {
	fs := defaultFileState()

	data, err := p.Load()
	switch {
	case errors.Is(err, ErrNoState):
		logger.Info("No saved state, starting from defaults")
	case err != nil:
		return nil, fmt.Errorf("failed to load state: %w", err)
	default:
		loaded := defaultFileState()
		if err := json.Unmarshal(data, &loaded); err != nil {
			logger.Warn("Saved state is corrupt, starting from defaults", zap.Error(err))
		} else {
			fs = loaded
		}
	}

	s := &Store{persister: p, logger: logger}
	s.apply(fs)

	logger.Info("State loaded",
		zap.Uint32("last_uid", s.cursors[core.PurposeAuto]),
		zap.Uint32("manual_last_uid", s.cursors[core.PurposeManual]),
		zap.Uint32("last_uid_daily", s.cursors[core.PurposeDaily]),
		zap.Int("ignored", len(s.ignored)),
		zap.Bool("auto_enabled", s.settings.AutoEnabled),
		zap.Int("auto_interval", s.settings.AutoInterval),
		zap.Bool("realtime", s.settings.Realtime))

	return s, nil
}

// NewInMemory returns a store with default state that is never written to disk
func NewInMemory(logger *zap.Logger) *Store {
	s, err := Open(NewMemoryPersister(nil), logger)
	if err != nil {
		// a memory persister never fails to load
		panic(err)
	}
	return s
}

func (s *Store) apply(fs fileState) {
	s.cursors = map[core.Purpose]uint32{
		core.PurposeAuto:   fs.LastUID,
		core.PurposeManual: fs.ManualLastUID,
		core.PurposeDaily:  fs.LastUIDDaily,
	}

	s.ignored = make(map[uint32]struct{}, len(fs.IgnoredUIDs))
	for _, uid := range fs.IgnoredUIDs {
		s.ignored[uid] = struct{}{}
	}

	interval := fs.AutoInterval
	if interval < 1 {
		interval = DefaultAutoInterval
	}
	s.settings = core.Settings{
		AutoEnabled:  fs.AutoEnabled,
		AutoInterval: interval,
		Realtime:     fs.Realtime,
	}
	if fs.SnoozeUntil != nil {
		if t, ok := parseSnooze(*fs.SnoozeUntil); ok {
			s.settings.SnoozeUntil = &t
		} else {
			s.logger.Warn("Ignoring unreadable snooze_until", zap.String("value", *fs.SnoozeUntil))
		}
	}
}

func parseSnooze(v string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, true
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// snapshot must be called with s.mu held
func (s *Store) snapshot() fileState {
	fs := fileState{
		LastUID:       s.cursors[core.PurposeAuto],
		LastUIDDaily:  s.cursors[core.PurposeDaily],
		ManualLastUID: s.cursors[core.PurposeManual],
		AutoEnabled:   s.settings.AutoEnabled,
		AutoInterval:  s.settings.AutoInterval,
		Realtime:      s.settings.Realtime,
		IgnoredUIDs:   make([]uint32, 0, len(s.ignored)),
	}
	for uid := range s.ignored {
		fs.IgnoredUIDs = append(fs.IgnoredUIDs, uid)
	}
	sort.Slice(fs.IgnoredUIDs, func(i, j int) bool { return fs.IgnoredUIDs[i] < fs.IgnoredUIDs[j] })

	if s.settings.SnoozeUntil != nil {
		v := s.settings.SnoozeUntil.Format(time.RFC3339)
		fs.SnoozeUntil = &v
	}
	return fs
}

// persist must be called with s.mu held. The in-memory state is kept
// even when the write fails.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := s.persister.Save(data); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// Cursor returns the last UID handled for a purpose
func (s *Store) Cursor(p core.Purpose) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursors[p]
}

// Advance moves the cursor for p to v. Values not above the current
// cursor are ignored and nothing is written.
func (s *Store) Advance(p core.Purpose, v uint32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v <= s.cursors[p] {
		return false, nil
	}
	s.cursors[p] = v
	return true, s.persist()
}

// IsIgnored reports whether uid is muted
func (s *Store) IsIgnored(uid uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ignored[uid]
	return ok
}

// Ignore mutes uid for good. Muting an already muted uid writes nothing.
func (s *Store) Ignore(uid uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ignored[uid]; ok {
		return nil
	}
	s.ignored[uid] = struct{}{}
	return s.persist()
}

// Ignored returns the muted UIDs in ascending order
func (s *Store) Ignored() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot().IgnoredUIDs
}

// Settings returns a copy of the scheduling flags
func (s *Store) Settings() core.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := s.settings
	if settings.SnoozeUntil != nil {
		t := *settings.SnoozeUntil
		settings.SnoozeUntil = &t
	}
	return settings
}

// SetAutoEnabled turns automatic checks on or off
func (s *Store) SetAutoEnabled(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settings.AutoEnabled == on {
		return nil
	}
	s.settings.AutoEnabled = on
	return s.persist()
}

// ToggleAuto flips automatic checks and returns the new value
func (s *Store) ToggleAuto() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings.AutoEnabled = !s.settings.AutoEnabled
	return s.settings.AutoEnabled, s.persist()
}

// ToggleRealtime flips realtime mode and returns the new value
func (s *Store) ToggleRealtime() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings.Realtime = !s.settings.Realtime
	return s.settings.Realtime, s.persist()
}

// SetAutoInterval changes the periodic check interval in minutes
func (s *Store) SetAutoInterval(minutes int) error {
	if minutes < 1 {
		return ErrInvalidInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings.AutoInterval = minutes
	return s.persist()
}

// SnoozeUntil pauses periodic checks until t
func (s *Store) SnoozeUntil(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t = t.Truncate(time.Second)
	s.settings.SnoozeUntil = &t
	return s.persist()
}

// ClearSnooze resumes periodic checks
func (s *Store) ClearSnooze() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settings.SnoozeUntil == nil {
		return nil
	}
	s.settings.SnoozeUntil = nil
	return s.persist()
}
