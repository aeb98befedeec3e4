// Package scheduler runs cron-scheduled prompts. Tasks are durable in
// the store; parsed schedules and firing state live in memory and are
// rebuilt on startup.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rkoyama/glmbot/internal/cron"
	"github.com/rkoyama/glmbot/internal/model"
	"github.com/rkoyama/glmbot/internal/store"
)

// ErrInvalidSchedule marks an expression rejected at creation, either
// malformed or one that can never fire.
var ErrInvalidSchedule = errors.New("invalid schedule")

// Dispatcher executes one due task: routes its prompt through the
// chat pipeline and delivers the result to the task's scope.
type Dispatcher interface {
	Dispatch(ctx context.Context, task model.ScheduledTask) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, task model.ScheduledTask) error

func (f DispatcherFunc) Dispatch(ctx context.Context, task model.ScheduledTask) error {
	return f(ctx, task)
}

// taskState pairs a stored task with its parsed schedule and firing
// bookkeeping.
type taskState struct {
	task      model.ScheduledTask
	sched     cron.Schedule
	lastFired time.Time // minute bucket of the last dispatch
	running   bool
}

// Scheduler owns the task set and the tick loop. A task fires at most
// once per matching minute: each tick is bucketed to the minute, and a
// task whose lastFired equals the bucket is skipped, so tick jitter
// around a minute boundary cannot double-fire.
type Scheduler struct {
	store           *store.Store
	dispatcher      Dispatcher
	logger          *slog.Logger
	tickInterval    time.Duration
	dispatchTimeout time.Duration

	mu    sync.Mutex
	tasks map[string]*taskState
}

// New creates a Scheduler. Call Load before Run to hydrate tasks
// persisted by earlier runs.
func New(st *store.Store, d Dispatcher, tickInterval, dispatchTimeout time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:           st,
		dispatcher:      d,
		logger:          logger,
		tickInterval:    tickInterval,
		dispatchTimeout: dispatchTimeout,
		tasks:           make(map[string]*taskState),
	}
}

// Load rebuilds the in-memory task set from the store. Tasks whose
// stored expression no longer parses are skipped with a warning rather
// than blocking startup.
func (s *Scheduler) Load(ctx context.Context) error {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, task := range tasks {
		sched, err := cron.Parse(task.Expr)
		if err != nil {
			s.logger.Warn("skipping stored task with bad expression",
				"id", task.ID, "expr", task.Expr, "error", err)
			continue
		}
		s.tasks[task.ID] = &taskState{task: task, sched: sched}
	}
	s.logger.Info("schedules loaded", "count", len(s.tasks))
	return nil
}

// Add validates expr, persists the task, and registers it for firing.
// Expressions that parse but can never fire (such as Feb 31) are
// rejected up front.
func (s *Scheduler) Add(ctx context.Context, expr, prompt, scope, creator string) (*model.ScheduledTask, error) {
	sched, err := cron.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}
	if _, err := sched.Next(time.Now()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}

	task, err := s.store.AddTask(ctx, expr, prompt, scope, creator)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.tasks[task.ID] = &taskState{task: *task, sched: sched}
	s.mu.Unlock()

	s.logger.Info("task scheduled", "id", task.ID, "expr", expr, "creator", creator)
	return task, nil
}

// Remove deletes a task from the store and the firing set.
func (s *Scheduler) Remove(ctx context.Context, id string) error {
	if err := s.store.DeleteTask(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.tasks, id)
	s.mu.Unlock()
	s.logger.Info("task removed", "id", id)
	return nil
}

// Toggle pauses or resumes a task without losing it.
func (s *Scheduler) Toggle(ctx context.Context, id string, enabled bool) error {
	if err := s.store.SetTaskEnabled(ctx, id, enabled); err != nil {
		return err
	}
	s.mu.Lock()
	if st, ok := s.tasks[id]; ok {
		st.task.Enabled = enabled
	}
	s.mu.Unlock()
	s.logger.Info("task toggled", "id", id, "enabled", enabled)
	return nil
}

// Get returns one registered task.
func (s *Scheduler) Get(id string) (model.ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.tasks[id]
	if !ok {
		return model.ScheduledTask{}, fmt.Errorf("task %s: %w", id, store.ErrNotFound)
	}
	return st.task, nil
}

// List returns the registered tasks, oldest first.
func (s *Scheduler) List() []model.ScheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.ScheduledTask, 0, len(s.tasks))
	for _, st := range s.tasks {
		out = append(out, st.task)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Run drives the tick loop until ctx is cancelled. The interval is
// expected to be at most one minute so no matching bucket is skipped.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "interval", s.tickInterval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

// tick fires every enabled task whose schedule matches the minute
// containing now and that has not already fired in that minute. Due
// tasks dispatch concurrently; the tick waits for all of them, and one
// task's failure never disturbs the others.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	bucket := now.UTC().Truncate(time.Minute)

	s.mu.Lock()
	var due []*taskState
	for _, st := range s.tasks {
		if !st.task.Enabled || st.running || st.lastFired.Equal(bucket) {
			continue
		}
		if !st.sched.Matches(bucket) {
			continue
		}
		st.lastFired = bucket
		st.running = true
		due = append(due, st)
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, st := range due {
		wg.Add(1)
		go func(st *taskState) {
			defer wg.Done()
			defer func() {
				s.mu.Lock()
				st.running = false
				s.mu.Unlock()
			}()

			dctx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
			defer cancel()

			if err := s.dispatcher.Dispatch(dctx, st.task); err != nil {
				s.logger.Error("task dispatch failed",
					"id", st.task.ID, "scope", st.task.Scope, "error", err)
				return
			}
			s.logger.Info("task dispatched", "id", st.task.ID, "scope", st.task.Scope)
		}(st)
	}
	wg.Wait()
}
