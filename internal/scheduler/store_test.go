package scheduler

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_AddThenList(t *testing.T) {
	s := newTestStore(t)
	task := Task{ID: "t1", CronExpr: "* * * * *", Message: "hi"}

	if err := s.Add(task); err != nil {
		t.Fatalf("Add: %v", err)
	}

	tasks := s.List()
	if len(tasks) != 1 || tasks[0].ID != "t1" {
		t.Fatalf("List = %+v, want one task t1", tasks)
	}
}

func TestStore_RemoveThenListEmpty(t *testing.T) {
	s := newTestStore(t)
	task := Task{ID: "t1", CronExpr: "* * * * *", Message: "hi"}
	s.Add(task)

	if err := s.Remove("t1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if tasks := s.List(); len(tasks) != 0 {
		t.Fatalf("List after remove = %+v, want empty", tasks)
	}
}

func TestStore_ReplaysJournalOnReopen(t *testing.T) {
	dir := t.TempDir()

	s1, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	s1.Add(Task{ID: "t1", CronExpr: "* * * * *", Message: "keep"})
	s1.Add(Task{ID: "t2", CronExpr: "* * * * *", Message: "remove me"})
	s1.Remove("t2")
	s1.Close()

	s2, err := NewStore(dir)
	if err != nil {
		t.Fatalf("reopen NewStore: %v", err)
	}
	defer s2.Close()

	tasks := s2.List()
	if len(tasks) != 1 || tasks[0].ID != "t1" {
		t.Fatalf("replayed tasks = %+v, want only t1", tasks)
	}
}

func TestStore_JournalPathIsInsideJournalDir(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()

	if s.path != filepath.Join(dir, "tasks.jsonl") {
		t.Fatalf("path = %q", s.path)
	}
}
