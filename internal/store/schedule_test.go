package store

import (
	"context"
	"errors"
	"testing"
)

func TestTaskCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	task, err := s.AddTask(ctx, "0 9 * * *", "morning briefing", "c1", "u1")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if task.ID == "" || !task.Enabled {
		t.Errorf("task = %+v", task)
	}

	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Expr != "0 9 * * *" || got.Prompt != "morning briefing" || got.Scope != "c1" {
		t.Errorf("got = %+v", got)
	}

	tasks, _ := s.ListTasks(ctx)
	if len(tasks) != 1 {
		t.Errorf("listed %d tasks, want 1", len(tasks))
	}

	if err := s.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetTask(ctx, task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete = %v, want ErrNotFound", err)
	}
}

func TestTaskToggle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	task, _ := s.AddTask(ctx, "*/5 * * * *", "ping", "c1", "u1")

	if err := s.SetTaskEnabled(ctx, task.ID, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	got, _ := s.GetTask(ctx, task.ID)
	if got.Enabled {
		t.Error("task should be disabled")
	}

	s.SetTaskEnabled(ctx, task.ID, true)
	got, _ = s.GetTask(ctx, task.ID)
	if !got.Enabled {
		t.Error("task should be re-enabled")
	}

	if err := s.SetTaskEnabled(ctx, "no-such-id", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("toggle unknown = %v, want ErrNotFound", err)
	}
}
