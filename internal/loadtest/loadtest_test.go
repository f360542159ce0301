package loadtest

import (
	"bytes"
	"context"
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/taskboard/taskboard/internal/backend"
	"github.com/taskboard/taskboard/internal/model"
	"github.com/taskboard/taskboard/internal/realtime"
	"github.com/taskboard/taskboard/internal/store"
)

func openDB(t *testing.T) *backend.DB {
	t.Helper()
	opts := backend.DefaultOptions()
	opts.Logger = log.New(io.Discard, "", 0)
	db, err := backend.Open(filepath.Join(t.TempDir(), "load.db"), opts)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return db
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	b, err := Seed(ctx, db, 3, 12)
	if err != nil {
		t.Fatalf("Seed() failed: %v", err)
	}
	if len(b.UserIDs) != 3 || len(b.TaskIDs) != 12 {
		t.Fatalf("Seed() = %d users, %d tasks", len(b.UserIDs), len(b.TaskIDs))
	}

	n, err := db.CountTasks(ctx)
	if err != nil || n != 12 {
		t.Errorf("CountTasks() = %d, %v; want 12", n, err)
	}

	s := store.New(db, &store.Config{Logger: log.New(io.Discard, "", 0)})
	if err := s.FetchAll(ctx); err != nil {
		t.Fatalf("FetchAll() failed: %v", err)
	}
	byStatus := s.Snapshot().ByStatus()
	for _, st := range model.Statuses {
		if len(byStatus[st]) != 4 {
			t.Errorf("%s has %d tasks, want 4", st, len(byStatus[st]))
		}
	}
	for _, task := range s.Snapshot().Tasks {
		if len(task.Subtasks) != 2 || len(task.Assignees) != 1 {
			t.Errorf("task %s = %+v", task.ID, task)
			break
		}
	}

	if _, err := Seed(ctx, db, 0, 1); err == nil {
		t.Error("Seed() with no users should fail")
	}
}

func TestRun_FollowerConverges(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping load test in short mode")
	}
	ctx := context.Background()
	db := openDB(t)

	b, err := Seed(ctx, db, 4, 30)
	if err != nil {
		t.Fatalf("Seed() failed: %v", err)
	}

	rt := realtime.DefaultConfig()
	rt.Debounce = 20 * time.Millisecond
	rt.Logger = log.New(io.Discard, "", 0)

	res, err := Run(ctx, b, &Options{
		Clients:         4,
		OpsPerClient:    8,
		Realtime:        rt,
		ConvergeTimeout: 5 * time.Second,
		Logger:          log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if res.Mutations.Total+res.Mutations.Error != 32 {
		t.Errorf("mutations = %d ok + %d failed, want 32 attempts", res.Mutations.Total, res.Mutations.Error)
	}
	if res.Mutations.Total == 0 {
		t.Fatal("no mutation succeeded")
	}
	if !res.Converged {
		t.Errorf("follower did not converge: %+v", res.Follower)
	}
	if res.Follower.Refetches == 0 {
		t.Error("follower never refetched")
	}

	var buf bytes.Buffer
	res.Print(&buf)
	if !strings.Contains(buf.String(), "Converged:     true") {
		t.Errorf("report:\n%s", buf.String())
	}
}

func TestRun_EmptyBoard(t *testing.T) {
	if _, err := Run(context.Background(), &Board{DB: openDB(t), UserIDs: []string{"u"}}, nil); err == nil {
		t.Error("Run() on a board without tasks should fail")
	}
}

func TestDigest_IgnoresOrder(t *testing.T) {
	a := store.Snapshot{Tasks: []model.Task{
		{ID: "1", Status: model.StatusDone, Assignees: []string{"b", "a"}, Subtasks: []model.Subtask{{Completed: true}}},
		{ID: "2", Status: model.StatusTodo},
	}}
	b := store.Snapshot{Tasks: []model.Task{
		{ID: "2", Status: model.StatusTodo},
		{ID: "1", Status: model.StatusDone, Assignees: []string{"a", "b"}, Subtasks: []model.Subtask{{Completed: true}}},
	}}
	if Digest(a) != Digest(b) {
		t.Errorf("Digest differs on order:\n%s\n---\n%s", Digest(a), Digest(b))
	}

	b.Tasks[1].Subtasks[0].Completed = false
	if Digest(a) == Digest(b) {
		t.Error("Digest should change when a subtask flips")
	}
}

func TestComputeLatencyStats(t *testing.T) {
	if got := computeLatencyStats(nil); got.Total != 0 {
		t.Errorf("empty stats = %+v", got)
	}

	var ds []time.Duration
	for i := 100; i >= 1; i-- {
		ds = append(ds, time.Duration(i)*time.Millisecond)
	}
	st := computeLatencyStats(ds)
	if st.Min != time.Millisecond || st.Max != 100*time.Millisecond {
		t.Errorf("min/max = %v/%v", st.Min, st.Max)
	}
	if st.P50 != 51*time.Millisecond || st.P99 != 100*time.Millisecond {
		t.Errorf("p50/p99 = %v/%v", st.P50, st.P99)
	}
	if st.Mean != 50500*time.Microsecond || st.Total != 100 {
		t.Errorf("mean/total = %v/%d", st.Mean, st.Total)
	}
}
