// Package scheduler injects cron-triggered messages onto the signal bus
// as if they had come from a real user, backed by an append-only task
// journal reloaded at start.
package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/kenobot/kenobot/internal/bus"
)

var standardParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron validates a 5-field POSIX cron expression (no seconds field)
// and returns its parsed Schedule.
func ParseCron(expr string) (cron.Schedule, error) {
	sched, err := standardParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// Scheduler owns the task table and the timers that fire each task's next
// occurrence. Missed fires during downtime are never backfilled: on load,
// only each task's next future occurrence is scheduled.
type Scheduler struct {
	bus    *bus.Bus
	store  *Store
	logger *slog.Logger

	mu      sync.Mutex
	timers  map[string]*time.Timer
	running bool

	execMu     sync.Mutex
	executions map[string][]Execution
}

// maxExecutionsPerTask bounds the in-memory fire history kept per task;
// older executions fall off the front once this many have accumulated.
const maxExecutionsPerTask = 50

// New constructs a Scheduler over store, firing INCOMING_MESSAGE signals
// on b when tasks come due.
func New(b *bus.Bus, store *Store, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		bus:        b,
		store:      store,
		logger:     logger,
		timers:     make(map[string]*time.Timer),
		executions: make(map[string][]Execution),
	}
}

// Add validates spec's cron expression, persists a new task, and — if the
// scheduler is running — schedules its next occurrence immediately.
// Returns the new task's id.
func (s *Scheduler) Add(spec AddTaskSpec) (string, error) {
	if _, err := ParseCron(spec.CronExpr); err != nil {
		return "", err
	}

	id := newID()
	task := Task{
		ID:          id,
		CronExpr:    spec.CronExpr,
		Message:     spec.Message,
		Description: spec.Description,
		ChatID:      spec.ChatID,
		UserID:      spec.UserID,
		Channel:     spec.Channel,
		CreatedAt:   time.Now(),
	}

	if err := s.store.Add(task); err != nil {
		return "", err
	}

	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running {
		s.scheduleTask(task)
	}

	return id, nil
}

// Remove deletes a task by id and cancels its pending timer, if any.
func (s *Scheduler) Remove(id string) error {
	if err := s.store.Remove(id); err != nil {
		return err
	}
	s.cancelTimer(id)
	return nil
}

// List returns every currently-scheduled task.
func (s *Scheduler) List() []Task {
	return s.store.List()
}

// Get returns the task with the given id, if it exists. It backs the
// REST API's existence check before a DELETE.
func (s *Scheduler) Get(id string) (Task, bool) {
	return s.store.Get(id)
}

// Size returns the number of currently-scheduled tasks.
func (s *Scheduler) Size() int {
	return s.store.Size()
}

// Start loads tasks from the store (already replayed at NewStore) and
// schedules each one's next future occurrence. It does not backfill any
// fire that would have happened while the process was down.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	for _, task := range s.store.List() {
		s.scheduleTask(task)
	}
}

// Stop cancels every pending timer. It does not preempt a task that is
// already mid-fire.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

// scheduleTask arms a timer for task's next occurrence after now. The
// timer's fire handler re-arms the following occurrence, so a task
// recurs until removed or the scheduler stops.
func (s *Scheduler) scheduleTask(task Task) {
	sched, err := ParseCron(task.CronExpr)
	if err != nil {
		s.logger.Error("scheduler: cannot schedule task with invalid cron", "taskId", task.ID, "err", err)
		return
	}

	next := sched.Next(time.Now())
	delay := time.Until(next)

	timer := time.AfterFunc(delay, func() { s.onFire(task) })

	s.mu.Lock()
	s.timers[task.ID] = timer
	s.mu.Unlock()
}

// onFire injects task.Message onto the bus as an INCOMING_MESSAGE, then
// re-arms the task for its following occurrence if it still exists in
// the store (it may have been removed concurrently).
func (s *Scheduler) onFire(task Task) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return
	}

	ok := true
	if s.bus != nil {
		_, ok = s.bus.Fire(bus.TypeIncomingMessage, "scheduler", "", map[string]any{
			"text":    task.Message,
			"chatId":  task.ChatID,
			"userId":  task.UserID,
			"channel": task.Channel,
		})
	}
	s.recordExecution(task, ok)

	if current, ok := s.store.Get(task.ID); ok {
		s.scheduleTask(current)
	}
}

// recordExecution appends task's fire outcome to its in-memory history,
// trimming the oldest entry once maxExecutionsPerTask is exceeded.
func (s *Scheduler) recordExecution(task Task, ok bool) {
	s.execMu.Lock()
	defer s.execMu.Unlock()
	list := append(s.executions[task.ID], Execution{
		TaskID:  task.ID,
		FiredAt: time.Now(),
		ChatID:  task.ChatID,
		Channel: task.Channel,
		OK:      ok,
	})
	if len(list) > maxExecutionsPerTask {
		list = list[len(list)-maxExecutionsPerTask:]
	}
	s.executions[task.ID] = list
}

// Executions returns the recorded fire history for task id, oldest first.
// It is empty (not an error) for a task that has never fired or does not
// exist — callers needing existence should check Get first.
func (s *Scheduler) Executions(id string) []Execution {
	s.execMu.Lock()
	defer s.execMu.Unlock()
	out := make([]Execution, len(s.executions[id]))
	copy(out, s.executions[id])
	return out
}

func (s *Scheduler) cancelTimer(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
	}
}

// newID mints a time-ordered task id, falling back to a random one if the
// time-ordered generator fails.
func newID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}
