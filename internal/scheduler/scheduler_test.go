package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mikey/mail-notifier/internal/config"
	"github.com/mikey/mail-notifier/internal/core"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type fakeRunner struct {
	periodic chan struct{}
	realtime atomic.Int32
	release  chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		periodic: make(chan struct{}, 10),
		release:  make(chan struct{}),
	}
}

func (r *fakeRunner) RunPeriodic(ctx context.Context) core.RunReport {
	r.periodic <- struct{}{}
	return core.RunReport{}
}

func (r *fakeRunner) RunRealtime(ctx context.Context) core.RunReport {
	r.realtime.Add(1)
	<-r.release
	return core.RunReport{}
}

func (r *fakeRunner) RunDaily(ctx context.Context) core.RunReport {
	return core.RunReport{}
}

type fixedSettings core.Settings

func (f fixedSettings) Settings() core.Settings { return core.Settings(f) }

func testConfig() config.ScheduleConfig {
	return config.ScheduleConfig{
		RealtimeInterval:    time.Hour,
		RealtimeConcurrency: 2,
		DailyTime:           "08:00",
		Timezone:            "Europe/Moscow",
	}
}

func waitPeriodic(t *testing.T, r *fakeRunner) {
	t.Helper()
	select {
	case <-r.periodic:
	case <-time.After(2 * time.Second):
		t.Fatal("periodic check did not run")
	}
}

func TestStartRunsPeriodicImmediately(t *testing.T) {
	runner := newFakeRunner()
	s := New(runner, fixedSettings{AutoInterval: 30}, testConfig(), zap.NewNop())
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	waitPeriodic(t, runner)

	if got := len(s.cron.Entries()); got != 3 {
		t.Errorf("entries = %d, want 3", got)
	}
}

func TestRescheduleReplacesPeriodicEntry(t *testing.T) {
	runner := newFakeRunner()
	s := New(runner, fixedSettings{AutoInterval: 30}, testConfig(), zap.NewNop())
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()
	waitPeriodic(t, runner)

	if err := s.Reschedule(5); err != nil {
		t.Fatal(err)
	}
	waitPeriodic(t, runner)

	if got := len(s.cron.Entries()); got != 3 {
		t.Errorf("entries = %d, want 3", got)
	}
	entry := s.cron.Entry(s.periodicID)
	sched, ok := entry.Schedule.(cron.ConstantDelaySchedule)
	if !ok || sched.Delay != 5*time.Minute {
		t.Errorf("periodic schedule = %#v", entry.Schedule)
	}

	if err := s.Reschedule(0); err == nil {
		t.Error("expected an error for a zero interval")
	}
}

func TestRealtimeConcurrencyIsCapped(t *testing.T) {
	runner := newFakeRunner()
	s := New(runner, fixedSettings{AutoInterval: 30}, testConfig(), zap.NewNop())

	done := make(chan struct{})
	for i := 0; i < 2; i++ {
		go func() {
			s.runRealtime()
			done <- struct{}{}
		}()
	}
	deadline := time.Now().Add(2 * time.Second)
	for runner.realtime.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	// Both slots are taken, the third run returns without calling the runner
	s.runRealtime()
	if got := runner.realtime.Load(); got != 2 {
		t.Errorf("realtime runs = %d, want 2", got)
	}

	close(runner.release)
	<-done
	<-done
}

func TestDailySpec(t *testing.T) {
	tests := []struct {
		at, tz  string
		want    string
		wantErr bool
	}{
		{"08:00", "Europe/Moscow", "CRON_TZ=Europe/Moscow 0 8 * * *", false},
		{"23:45", "UTC", "CRON_TZ=UTC 45 23 * * *", false},
		{"8am", "UTC", "", true},
		{"08:00", "Mars/Olympus", "", true},
	}

	for _, tt := range tests {
		got, err := DailySpec(tt.at, tt.tz)
		if (err != nil) != tt.wantErr {
			t.Errorf("DailySpec(%q, %q) error = %v", tt.at, tt.tz, err)
			continue
		}
		if got != tt.want {
			t.Errorf("DailySpec(%q, %q) = %q, want %q", tt.at, tt.tz, got, tt.want)
		}
	}
}
