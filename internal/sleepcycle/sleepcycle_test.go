package sleepcycle

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestSupervisor(t *testing.T, phases []Phase) *Supervisor {
	t.Helper()
	sup, err := New(t.TempDir(), time.Hour, -1, nil, phases)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return sup
}

func okPhase(name string) Phase {
	return Phase{Name: name, Run: func(ctx context.Context) (Counters, error) {
		return Counters{"n": 1}, nil
	}}
}

func TestSupervisor_RunSucceeds(t *testing.T) {
	sup := newTestSupervisor(t, []Phase{okPhase("a"), okPhase("b")})

	if err := sup.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	snap := sup.Snapshot()
	if snap.Status != StatusSuccess {
		t.Fatalf("Status = %v, want success", snap.Status)
	}
	if snap.LastRun.IsZero() {
		t.Fatalf("LastRun not set after success")
	}
	if len(snap.Counters) != 2 {
		t.Fatalf("Counters = %+v, want 2 entries", snap.Counters)
	}
}

func TestSupervisor_RunRejectsConcurrent(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	slow := Phase{Name: "slow", Run: func(ctx context.Context) (Counters, error) {
		close(started)
		<-release
		return Counters{}, nil
	}}
	sup := newTestSupervisor(t, []Phase{slow})

	done := make(chan error, 1)
	go func() { done <- sup.Run(context.Background()) }()

	<-started
	if err := sup.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Run err = %v, want ErrAlreadyRunning", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Run err = %v", err)
	}
}

func TestSupervisor_PhaseFailureStopsRun(t *testing.T) {
	boom := errors.New("boom")
	ran := false
	phases := []Phase{
		{Name: "first", Run: func(ctx context.Context) (Counters, error) { return nil, boom }},
		{Name: "second", Run: func(ctx context.Context) (Counters, error) {
			ran = true
			return Counters{}, nil
		}},
	}
	sup := newTestSupervisor(t, phases)

	if err := sup.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Run err = %v, want boom", err)
	}
	if ran {
		t.Fatalf("second phase ran after first failed")
	}

	snap := sup.Snapshot()
	if snap.Status != StatusFailed {
		t.Fatalf("Status = %v, want failed", snap.Status)
	}
	if snap.Error == "" {
		t.Fatalf("Error not populated after failure")
	}
	if !sup.Failed() {
		t.Fatalf("Failed() = false after a failed run")
	}
}

func TestSupervisor_ShouldRunNeverRun(t *testing.T) {
	sup := newTestSupervisor(t, nil)
	if !sup.ShouldRun(time.Now()) {
		t.Fatalf("ShouldRun = false for a supervisor that has never run")
	}
}

func TestSupervisor_ShouldRunBeforePeriodElapsed(t *testing.T) {
	sup := newTestSupervisor(t, []Phase{okPhase("a")})
	if err := sup.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sup.ShouldRun(time.Now()) {
		t.Fatalf("ShouldRun = true immediately after a run, period not elapsed")
	}
}

func TestSupervisor_WritesProposalFile(t *testing.T) {
	dir := t.TempDir()
	sup, err := New(dir, time.Hour, -1, nil, []Phase{okPhase("consolidation")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := sup.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "sleep", "proposals", "*.md"))
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("proposal files = %d, want 1", len(matches))
	}
}

func TestSupervisor_LastRunZeroBeforeFirstRun(t *testing.T) {
	sup := newTestSupervisor(t, nil)
	if !sup.LastRun().IsZero() {
		t.Fatalf("LastRun not zero before any run")
	}
	if sup.Failed() {
		t.Fatalf("Failed() = true before any run")
	}
}
