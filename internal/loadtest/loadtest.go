// Package loadtest drives concurrent clients against a backend and checks
// that a follower kept in sync by the reconciler converges on the same
// board as a fresh fetch.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/taskboard/taskboard/internal/backend"
	"github.com/taskboard/taskboard/internal/model"
	"github.com/taskboard/taskboard/internal/realtime"
	"github.com/taskboard/taskboard/internal/store"
)

// Board is a seeded database.
type Board struct {
	DB      *backend.DB
	UserIDs []string
	TaskIDs []string
}

// Options configures a run.
type Options struct {
	// Clients is the number of concurrent writers, each with its own store
	Clients int

	// OpsPerClient is the number of mutations each client performs
	OpsPerClient int

	// Realtime configures the follower's reconciler (nil: defaults)
	Realtime *realtime.Config

	// ConvergeTimeout bounds the wait for the follower to catch up
	ConvergeTimeout time.Duration

	// Logger for progress
	Logger *log.Logger
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		Clients:         10,
		OpsPerClient:    20,
		ConvergeTimeout: 10 * time.Second,
		Logger:          log.New(os.Stderr, "[loadtest] ", log.LstdFlags),
	}
}

// LatencyStats summarizes mutation latencies.
type LatencyStats struct {
	Min   time.Duration
	Max   time.Duration
	Mean  time.Duration
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
	Total int
	Error int
}

// Result is the outcome of Run.
type Result struct {
	Mutations    LatencyStats
	Follower     realtime.Stats
	Converged    bool
	ConvergeTime time.Duration
	Elapsed      time.Duration
}

// Seed registers users and creates tasks with subtasks, tags, due dates and
// assignees. Generation is deterministic.
func Seed(ctx context.Context, db *backend.DB, users, tasks int) (*Board, error) {
	if users < 1 {
		return nil, fmt.Errorf("at least one user is required")
	}
	b := &Board{DB: db}

	for i := 0; i < users; i++ {
		u := &model.User{
			ID:         fmt.Sprintf("load-user-%03d", i),
			Name:       fmt.Sprintf("Load User %d", i),
			Email:      fmt.Sprintf("load%d@example.com", i),
			Role:       "tester",
			Department: "qa",
		}
		if err := db.UpsertUser(ctx, u); err != nil {
			return nil, fmt.Errorf("failed to insert user %s: %w", u.ID, err)
		}
		b.UserIDs = append(b.UserIDs, u.ID)
	}

	author := store.New(db, &store.Config{Actor: b.UserIDs[0], Logger: log.New(io.Discard, "", 0)})
	priorities := []model.Priority{model.PriorityLow, model.PriorityMedium, model.PriorityMedium, model.PriorityHigh}
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < tasks; i++ {
		in := model.TaskInput{
			Title:     fmt.Sprintf("Load task %d", i),
			Status:    model.Statuses[i%len(model.Statuses)],
			Priority:  priorities[i%len(priorities)],
			Assignees: []string{b.UserIDs[rng.Intn(len(b.UserIDs))]},
			Tags:      []string{"loadtest", fmt.Sprintf("batch-%d", i/50)},
			Subtasks:  []model.Subtask{{Title: "first"}, {Title: "second"}},
		}
		if i%3 == 0 {
			in.DueDate = time.Now().AddDate(0, 0, rng.Intn(30)-10).Format("2006-01-02")
		}
		id, err := author.CreateTask(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("failed to create task %d: %w", i, err)
		}
		b.TaskIDs = append(b.TaskIDs, id)
	}
	return b, nil
}

// Run starts a follower that reconciles from the backend's hub, lets the
// clients mutate random tasks concurrently and then waits for the follower
// to match a fresh fetch.
func Run(ctx context.Context, b *Board, opts *Options) (*Result, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	def := DefaultOptions()
	if opts.Clients <= 0 {
		opts.Clients = def.Clients
	}
	if opts.OpsPerClient <= 0 {
		opts.OpsPerClient = def.OpsPerClient
	}
	if opts.ConvergeTimeout <= 0 {
		opts.ConvergeTimeout = def.ConvergeTimeout
	}
	if opts.Logger == nil {
		opts.Logger = def.Logger
	}
	if len(b.TaskIDs) == 0 {
		return nil, fmt.Errorf("board has no tasks")
	}

	quiet := log.New(io.Discard, "", 0)
	start := time.Now()

	follower := store.New(b.DB, &store.Config{Actor: b.UserIDs[0], Logger: quiet})
	if err := follower.FetchAll(ctx); err != nil {
		return nil, fmt.Errorf("failed to load follower: %w", err)
	}
	rec, err := realtime.New(follower, []realtime.Source{realtime.NewHubSource(b.DB.Hub(), 0)}, opts.Realtime)
	if err != nil {
		return nil, err
	}
	if err := rec.Start(ctx); err != nil {
		return nil, err
	}
	defer rec.Stop()

	opts.Logger.Printf("Running %d clients x %d mutations over %d tasks", opts.Clients, opts.OpsPerClient, len(b.TaskIDs))

	var wg sync.WaitGroup
	results := make(chan []time.Duration, opts.Clients)
	errCounts := make(chan int, opts.Clients)

	for i := 0; i < opts.Clients; i++ {
		wg.Add(1)
		go func(client int) {
			defer wg.Done()
			durations, errs := runClient(ctx, b, client, opts.OpsPerClient, quiet)
			results <- durations
			errCounts <- errs
		}(i)
	}
	wg.Wait()
	close(results)
	close(errCounts)

	var all []time.Duration
	for d := range results {
		all = append(all, d...)
	}
	errorCount := 0
	for n := range errCounts {
		errorCount += n
	}

	res := &Result{Mutations: computeLatencyStats(all)}
	res.Mutations.Error = errorCount

	converged, waited, err := waitConverged(ctx, b.DB, follower, opts.ConvergeTimeout)
	if err != nil {
		return nil, err
	}
	res.Converged = converged
	res.ConvergeTime = waited
	res.Follower = rec.Stats()
	res.Elapsed = time.Since(start)
	return res, nil
}

// runClient performs ops mutations as one user and returns the latency of
// each successful one plus the number of failures.
func runClient(ctx context.Context, b *Board, client, ops int, logger *log.Logger) ([]time.Duration, int) {
	actor := b.UserIDs[client%len(b.UserIDs)]
	s := store.New(b.DB, &store.Config{Actor: actor, Logger: logger})
	if err := s.FetchAll(ctx); err != nil {
		return nil, ops
	}

	rng := rand.New(rand.NewSource(int64(client) + 1))
	durations := make([]time.Duration, 0, ops)
	errs := 0

	for j := 0; j < ops; j++ {
		taskID := b.TaskIDs[rng.Intn(len(b.TaskIDs))]
		begin := time.Now()

		var err error
		switch j % 4 {
		case 0:
			st := model.Statuses[rng.Intn(len(model.Statuses))]
			err = s.UpdateTask(ctx, taskID, model.TaskUpdate{Status: &st})
		case 1:
			if t, ok := s.Snapshot().Task(taskID); ok && len(t.Subtasks) > 0 {
				err = s.ToggleSubtask(ctx, taskID, t.Subtasks[rng.Intn(len(t.Subtasks))].ID)
			}
		case 2:
			_, err = s.AddComment(ctx, taskID, fmt.Sprintf("client %d op %d", client, j))
		case 3:
			err = s.UpdateAssignees(ctx, taskID, []string{actor})
		}

		if err != nil {
			errs++
			continue
		}
		durations = append(durations, time.Since(begin))
	}
	return durations, errs
}

// waitConverged polls until the follower's tasks match a fresh fetch.
func waitConverged(ctx context.Context, db *backend.DB, follower *store.Store, timeout time.Duration) (bool, time.Duration, error) {
	start := time.Now()
	fresh := store.New(db, &store.Config{Logger: log.New(io.Discard, "", 0)})
	if err := fresh.FetchAll(ctx); err != nil {
		return false, 0, fmt.Errorf("failed to fetch reference board: %w", err)
	}
	want := Digest(fresh.Snapshot())

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()

	for {
		if Digest(follower.Snapshot()) == want {
			return true, time.Since(start), nil
		}
		select {
		case <-ctx.Done():
			return false, time.Since(start), ctx.Err()
		case <-deadline.C:
			return false, time.Since(start), nil
		case <-tick.C:
		}
	}
}

// Digest is an order-independent fingerprint of the task state that
// mutations touch.
func Digest(snap store.Snapshot) string {
	lines := make([]string, 0, len(snap.Tasks))
	for _, t := range snap.Tasks {
		assignees := append([]string{}, t.Assignees...)
		sort.Strings(assignees)
		var subtasks strings.Builder
		for _, st := range t.Subtasks {
			if st.Completed {
				subtasks.WriteByte('x')
			} else {
				subtasks.WriteByte('.')
			}
		}
		lines = append(lines, fmt.Sprintf("%s|%s|%s|%s|%d", t.ID, t.Status, strings.Join(assignees, ","), subtasks.String(), len(t.Comments)))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) LatencyStats {
	if len(durations) == 0 {
		return LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return LatencyStats{
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Mean:  sum / time.Duration(len(sorted)),
		P50:   sorted[len(sorted)*50/100],
		P95:   sorted[len(sorted)*95/100],
		P99:   sorted[len(sorted)*99/100],
		Total: len(sorted),
	}
}

// Print writes a human-readable report.
func (r *Result) Print(w io.Writer) {
	m := r.Mutations
	fmt.Fprintf(w, "Mutations:\n")
	fmt.Fprintf(w, "  Total:         %d\n", m.Total)
	fmt.Fprintf(w, "  Errors:        %d\n", m.Error)
	fmt.Fprintf(w, "  Min:           %v\n", m.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", m.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", m.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", m.P95)
	fmt.Fprintf(w, "  P99:           %v\n", m.P99)
	fmt.Fprintf(w, "  Max:           %v\n", m.Max)
	fmt.Fprintf(w, "Follower:\n")
	fmt.Fprintf(w, "  Events:        %d (%d filtered, %d dropped)\n", r.Follower.Received, r.Follower.Filtered, r.Follower.Dropped)
	fmt.Fprintf(w, "  Refetches:     %d (%d failed)\n", r.Follower.Refetches, r.Follower.Failures)
	fmt.Fprintf(w, "  Converged:     %v after %v\n", r.Converged, r.ConvergeTime.Round(time.Millisecond))
	fmt.Fprintf(w, "Elapsed:         %v\n", r.Elapsed.Round(time.Millisecond))
}
