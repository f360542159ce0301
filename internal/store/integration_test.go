package store

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/taskboard/taskboard/internal/backend"
	"github.com/taskboard/taskboard/internal/model"
)

// openSQLiteStore returns a store over a fresh SQLite backend with users u1
// and u2 registered.
func openSQLiteStore(t *testing.T, actor string) (*Store, *backend.DB) {
	t.Helper()
	ctx := context.Background()

	opts := backend.DefaultOptions()
	opts.Logger = log.New(io.Discard, "", 0)
	db, err := backend.Open(filepath.Join(t.TempDir(), "tasks.db"), opts)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	for _, id := range []string{"u1", "u2"} {
		u := &model.User{ID: id, Name: strings.ToUpper(id), Email: id + "@example.com"}
		if err := db.UpsertUser(ctx, u); err != nil {
			t.Fatalf("UpsertUser() failed: %v", err)
		}
	}

	s := New(db, &Config{
		Actor:  actor,
		Logger: log.New(io.Discard, "", 0),
		Now:    time.Now,
	})
	return s, db
}

func TestSQLite_CreateAndFetch(t *testing.T) {
	s, _ := openSQLiteStore(t, "u1")
	ctx := context.Background()

	id, err := s.CreateTask(ctx, model.TaskInput{
		Title:     "Ship release",
		Priority:  model.PriorityHigh,
		Status:    model.StatusTodo,
		Assignees: []string{"u1", "u2"},
		Subtasks:  []model.Subtask{{Title: "build"}},
		Tags:      []string{"release"},
	})
	if err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}
	if err := s.FetchAll(ctx); err != nil {
		t.Fatalf("FetchAll() failed: %v", err)
	}

	snap := s.Snapshot()
	if len(snap.Users) != 2 {
		t.Errorf("Users = %d, want 2", len(snap.Users))
	}
	task, ok := snap.Task(id)
	if !ok {
		t.Fatal("task missing after fetch")
	}
	got := append([]string{}, task.Assignees...)
	sort.Strings(got)
	if strings.Join(got, ",") != "u1,u2" {
		t.Errorf("Assignees = %v, want [u1 u2]", task.Assignees)
	}
	if task.Status != model.StatusTodo || task.Priority != model.PriorityHigh {
		t.Errorf("status/priority = %s/%s", task.Status, task.Priority)
	}
	if len(task.Subtasks) != 1 || len(task.Tags) != 1 {
		t.Errorf("relations = %d subtasks, %d tags", len(task.Subtasks), len(task.Tags))
	}

	if err := s.ToggleSubtask(ctx, id, task.Subtasks[0].ID); err != nil {
		t.Fatalf("ToggleSubtask() failed: %v", err)
	}
	if _, err := s.AddComment(ctx, id, "on it"); err != nil {
		t.Fatalf("AddComment() failed: %v", err)
	}
	if err := s.UpdateAssignees(ctx, id, nil); err != nil {
		t.Fatalf("UpdateAssignees() failed: %v", err)
	}
	if err := s.FetchAll(ctx); err != nil {
		t.Fatalf("FetchAll() failed: %v", err)
	}

	task, _ = s.Snapshot().Task(id)
	if !task.Subtasks[0].Completed {
		t.Error("subtask not toggled")
	}
	if len(task.Comments) != 1 || task.Comments[0].Author != "u1" {
		t.Errorf("Comments = %+v", task.Comments)
	}
	if len(task.Assignees) != 0 {
		t.Errorf("Assignees = %v, want none", task.Assignees)
	}

	if err := s.DeleteTask(ctx, id); err != nil {
		t.Fatalf("DeleteTask() failed: %v", err)
	}
	if err := s.FetchAll(ctx); err != nil {
		t.Fatalf("FetchAll() failed: %v", err)
	}
	if n := len(s.Snapshot().Tasks); n != 0 {
		t.Errorf("tasks after delete = %d, want 0", n)
	}
}

func TestSQLite_UnknownAssigneeIsPartialWrite(t *testing.T) {
	s, _ := openSQLiteStore(t, "u1")
	ctx := context.Background()

	id, err := s.CreateTask(ctx, model.TaskInput{Title: "T", Assignees: []string{"ghost"}})
	if _, ok := err.(*PartialWriteError); !ok {
		t.Fatalf("CreateTask() error = %v, want *PartialWriteError", err)
	}
	if err := s.FetchAll(ctx); err != nil {
		t.Fatalf("FetchAll() failed: %v", err)
	}
	task, ok := s.Snapshot().Task(id)
	if !ok {
		t.Fatal("task row missing")
	}
	if len(task.Assignees) != 0 {
		t.Errorf("Assignees = %v, want none", task.Assignees)
	}
}

func TestSQLite_ConcurrentStatusUpdates(t *testing.T) {
	s, _ := openSQLiteStore(t, "u1")
	ctx := context.Background()

	id, err := s.CreateTask(ctx, model.TaskInput{Title: "Race"})
	if err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, st := range []model.Status{model.StatusInProgress, model.StatusDone} {
		st := st
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.UpdateTask(ctx, id, model.TaskUpdate{Status: &st})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("UpdateTask() failed: %v", err)
		}
	}

	if err := s.FetchAll(ctx); err != nil {
		t.Fatalf("FetchAll() failed: %v", err)
	}
	task, _ := s.Snapshot().Task(id)
	if task.Status != model.StatusInProgress && task.Status != model.StatusDone {
		t.Errorf("Status = %s, want one of the two written values", task.Status)
	}
}
