// Package sleepcycle implements the phased background consolidation run:
// four sequential phases that distill recent interaction history into a
// dated markdown proposal file. What each phase actually computes is
// intentionally shallow here — the supervisor's job is the state
// machine and the phase sequencing, not the content of consolidation.
package sleepcycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Status is the supervisor's run state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// ErrAlreadyRunning is returned by Run when a run is already in progress.
var ErrAlreadyRunning = errors.New("sleep cycle already running")

// Counters is the small record of counters a phase reports back.
type Counters map[string]int

// Phase is one named, sequential step of a run.
type Phase struct {
	Name string
	Run  func(ctx context.Context) (Counters, error)
}

// State is a point-in-time snapshot of the supervisor, returned by
// Snapshot and serialized directly into the REST API's GET
// /api/v1/sleep-cycle response.
type State struct {
	Status       Status              `json:"status"`
	CurrentPhase string              `json:"currentPhase,omitempty"`
	LastRun      time.Time           `json:"lastRun,omitempty"`
	Error        string              `json:"error,omitempty"`
	Counters     map[string]Counters `json:"counters,omitempty"`
}

// Supervisor owns the sleep-cycle state machine and phase sequence.
type Supervisor struct {
	logger       *slog.Logger
	proposalsDir string
	period       time.Duration
	targetHour   int
	phases       []Phase

	mu    sync.Mutex
	state State
}

// New constructs a Supervisor over the given phases (in run order),
// writing dated proposal files under <dataDir>/sleep/proposals. period
// and targetHour configure shouldRun; period <= 0 defaults to 24h.
func New(dataDir string, period time.Duration, targetHour int, logger *slog.Logger, phases []Phase) (*Supervisor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if period <= 0 {
		period = 24 * time.Hour
	}
	dir := filepath.Join(dataDir, "sleep", "proposals")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sleep cycle: %w", err)
	}
	return &Supervisor{
		logger:       logger,
		proposalsDir: dir,
		period:       period,
		targetHour:   targetHour,
		phases:       phases,
		state:        State{Status: StatusIdle},
	}, nil
}

// LastRun satisfies watchdog.SleepCycleStatus.
func (s *Supervisor) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.LastRun
}

// Failed satisfies watchdog.SleepCycleStatus.
func (s *Supervisor) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Status == StatusFailed
}

// Snapshot returns a copy of the current state.
func (s *Supervisor) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	if st.Counters != nil {
		cp := make(map[string]Counters, len(st.Counters))
		for k, v := range st.Counters {
			cp[k] = v
		}
		st.Counters = cp
	}
	return st
}

// ShouldRun reports whether a run is due: never run, or the configured
// period has elapsed since lastRun, and (when targetHour is set) the
// current local hour matches it. A targetHour of -1 disables the hour
// gate so shouldRun fires purely on period elapsed.
func (s *Supervisor) ShouldRun(now time.Time) bool {
	s.mu.Lock()
	last := s.state.LastRun
	s.mu.Unlock()

	if last.IsZero() {
		return s.hourMatches(now)
	}
	if now.Sub(last) < s.period {
		return false
	}
	return s.hourMatches(now)
}

func (s *Supervisor) hourMatches(now time.Time) bool {
	if s.targetHour < 0 {
		return true
	}
	return now.Local().Hour() == s.targetHour
}

// Run executes each phase in order, rejecting outright if a run is
// already in progress. A phase error stops the run (remaining phases are
// skipped) and leaves status=failed; the next trigger starts over from
// the first phase, there is no resume-from-failure.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.state.Status == StatusRunning {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.state.Status = StatusRunning
	s.state.Error = ""
	s.state.Counters = make(map[string]Counters)
	s.mu.Unlock()

	results := make(map[string]Counters, len(s.phases))
	var failedAt string
	var runErr error

	for _, phase := range s.phases {
		s.mu.Lock()
		s.state.CurrentPhase = phase.Name
		s.mu.Unlock()

		counters, err := phase.Run(ctx)
		if err != nil {
			failedAt = phase.Name
			runErr = err
			break
		}
		results[phase.Name] = counters

		s.mu.Lock()
		s.state.Counters[phase.Name] = counters
		s.mu.Unlock()
	}

	now := time.Now()
	s.mu.Lock()
	s.state.CurrentPhase = ""
	if runErr != nil {
		s.state.Status = StatusFailed
		s.state.Error = fmt.Sprintf("%s: %v", failedAt, runErr)
		s.logger.Error("sleep cycle run failed", "phase", failedAt, "err", runErr)
		s.mu.Unlock()
		return runErr
	}
	s.state.Status = StatusSuccess
	s.state.LastRun = now
	s.mu.Unlock()

	if err := s.writeProposal(now, results); err != nil {
		s.logger.Warn("sleep cycle: failed to write proposal file", "err", err)
	}
	s.logger.Info("sleep cycle run completed", "phases", len(results))
	return nil
}

// writeProposal assembles a dated markdown summary of the run, matching
// the donor archive package's WriteString-based markdown assembly.
func (s *Supervisor) writeProposal(when time.Time, results map[string]Counters) error {
	var b strings.Builder
	b.WriteString("# Sleep Cycle Proposal\n\n")
	b.WriteString(fmt.Sprintf("Run at: %s\n\n", when.UTC().Format(time.RFC3339)))
	for _, phase := range s.phases {
		counters, ok := results[phase.Name]
		if !ok {
			continue
		}
		b.WriteString(fmt.Sprintf("## %s\n\n", phase.Name))
		if len(counters) == 0 {
			b.WriteString("(no counters reported)\n\n")
			continue
		}
		for k, v := range counters {
			b.WriteString(fmt.Sprintf("- %s: %d\n", k, v))
		}
		b.WriteString("\n")
	}

	path := filepath.Join(s.proposalsDir, when.UTC().Format("20060102T150405Z")+".md")
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// Ticker periodically asks the Supervisor whether a run is due and
// starts one when it is, matching the scheduled-ticker trigger path
// alongside the REST API's explicit fire-and-forget trigger.
type Ticker struct {
	sup      *Supervisor
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewTicker constructs a Ticker that checks ShouldRun every interval
// (spec.md: "a scheduled ticker that checks shouldRun() hourly").
func NewTicker(sup *Supervisor, interval time.Duration, logger *slog.Logger) *Ticker {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Ticker{sup: sup, interval: interval, logger: logger}
}

// Start begins the tick loop in a background goroutine.
func (t *Ticker) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.loop(runCtx)
}

// Stop halts the tick loop. Does not cancel a run already in progress
// (spec.md: sleep cycle phases are not individually cancellable).
func (t *Ticker) Stop() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	<-t.done
}

func (t *Ticker) loop(ctx context.Context) {
	defer close(t.done)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !t.sup.ShouldRun(time.Now()) {
				continue
			}
			if err := t.sup.Run(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
				t.logger.Error("scheduled sleep cycle run failed", "err", err)
			}
		}
	}
}
