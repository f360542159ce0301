// Package store holds the authoritative in-memory copy of tasks, users and
// workspaces for one session.
//
// The Store fetches and formats backend rows, runs mutations that write
// through to the backend, and applies optimistic local patches so readers
// see a change before the next full fetch. Readers only ever receive deep
// copies (Snapshot); the Store is the single writer of its collections.
//
// Concurrent mutations are not serialized: two writes to the same task race
// at the backend and the last commit wins. A later FetchAll, typically
// triggered by the realtime reconciler, is what brings diverging local views
// back in line.
package store

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/taskboard/taskboard/internal/backend"
	"github.com/taskboard/taskboard/internal/model"
)

// Backend is the subset of the relational backend the store needs.
// *backend.DB implements it.
type Backend interface {
	SelectTasks(ctx context.Context) ([]backend.RawTask, error)
	SelectUsers(ctx context.Context) ([]model.User, error)
	SelectWorkspaces(ctx context.Context) ([]model.Workspace, error)

	InsertTask(ctx context.Context, row backend.TaskRow) (string, error)
	UpdateTask(ctx context.Context, id string, cols backend.TaskColumns) error
	DeleteTask(ctx context.Context, id string) error
	InsertAssignees(ctx context.Context, taskID string, userIDs []string) error
	DeleteAssignees(ctx context.Context, taskID string) error
	ReplaceSubtasks(ctx context.Context, taskID string, subtasks []backend.SubtaskRow) error
	ReplaceTags(ctx context.Context, taskID string, tags []string) error
	InsertComment(ctx context.Context, row backend.CommentRow) (string, error)
}

// Config holds configuration for the store.
type Config struct {
	// Actor is the authenticated user ID. Empty means no one is logged in,
	// and mutations that need an author are rejected.
	Actor string

	// Logger for store activity
	Logger *log.Logger

	// Now returns the current time (default: time.Now). Used for date
	// fallbacks and relative due dates.
	Now func() time.Time
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Logger: log.New(os.Stderr, "[store] ", log.LstdFlags),
		Now:    time.Now,
	}
}

// Snapshot is a read-only copy of the store state.
type Snapshot struct {
	Tasks      []model.Task      `json:"tasks" yaml:"tasks"`
	Users      []model.User      `json:"users" yaml:"users"`
	Workspaces []model.Workspace `json:"workspaces" yaml:"workspaces"`
	Loading    bool              `json:"loading" yaml:"loading"`
	Error      string            `json:"error,omitempty" yaml:"error,omitempty"`
}

// Store is the session's data store.
type Store struct {
	backend Backend
	actor   string
	logger  *log.Logger
	now     func() time.Time

	mu         sync.RWMutex
	tasks      []model.Task
	users      []model.User
	workspaces []model.Workspace
	inflight   int
	lastErr    string
	appliedSeq uint64

	fetchSeq atomic.Uint64

	listenersMu  sync.Mutex
	listeners    map[int]func(Snapshot)
	nextListener int
}

// New creates a store over b. Call FetchAll to load it.
func New(b Backend, config *Config) *Store {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Store{
		backend:    b,
		actor:      config.Actor,
		logger:     config.Logger,
		now:        config.Now,
		tasks:      []model.Task{},
		users:      []model.User{},
		workspaces: []model.Workspace{},
		listeners:  make(map[int]func(Snapshot)),
	}
}

// Actor returns the authenticated user ID, or "".
func (s *Store) Actor() string {
	return s.actor
}

// FetchAll reloads tasks, users and workspaces in parallel and replaces all
// three collections at once.
//
// On failure nothing is replaced, the error is recorded in Snapshot().Error
// and returned. Results of a fetch that started before an already-applied
// one are discarded, so state never moves backwards.
func (s *Store) FetchAll(ctx context.Context) error {
	seq := s.fetchSeq.Add(1)

	s.mu.Lock()
	s.inflight++
	s.mu.Unlock()
	s.notify()

	var (
		raws       []backend.RawTask
		users      []model.User
		workspaces []model.Workspace
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		raws, err = s.backend.SelectTasks(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		users, err = s.backend.SelectUsers(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		workspaces, err = s.backend.SelectWorkspaces(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		s.mu.Lock()
		s.inflight--
		if seq > s.appliedSeq {
			s.lastErr = err.Error()
		}
		s.mu.Unlock()
		s.notify()
		return fmt.Errorf("failed to fetch: %w", err)
	}

	now := s.now()
	tasks := make([]model.Task, 0, len(raws))
	for _, raw := range raws {
		tasks = append(tasks, formatTask(raw, now, s.logger))
	}
	if users == nil {
		users = []model.User{}
	}
	if workspaces == nil {
		workspaces = []model.Workspace{}
	}

	s.mu.Lock()
	s.inflight--
	if seq > s.appliedSeq {
		s.appliedSeq = seq
		s.tasks = tasks
		s.users = users
		s.workspaces = workspaces
		s.lastErr = ""
	}
	s.mu.Unlock()
	s.notify()

	return nil
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Tasks:      make([]model.Task, len(s.tasks)),
		Users:      append([]model.User{}, s.users...),
		Workspaces: append([]model.Workspace{}, s.workspaces...),
		Loading:    s.inflight > 0,
		Error:      s.lastErr,
	}
	for i, t := range s.tasks {
		snap.Tasks[i] = t.Clone()
	}
	return snap
}

// Subscribe registers fn to be called with a fresh snapshot after every
// state change. fn runs on the goroutine that changed the state and must not
// call back into mutating store methods. The returned func unsubscribes.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.listenersMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

func (s *Store) notify() {
	s.listenersMu.Lock()
	if len(s.listeners) == 0 {
		s.listenersMu.Unlock()
		return
	}
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.Unlock()

	snap := s.Snapshot()
	for _, fn := range fns {
		fn(snap)
	}
}

// findLocked returns the index of task id, or -1. Caller holds mu.
func (s *Store) findLocked(id string) int {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// localPatch is the state saved by patchLocal for a later revert.
type localPatch struct {
	prev    model.Task
	applied uint64
	ok      bool
}

// patchLocal applies fn to the local copy of task id and returns the copy
// from before the patch. ok is false if the task isn't loaded.
func (s *Store) patchLocal(id string, fn func(*model.Task)) localPatch {
	s.mu.Lock()
	i := s.findLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return localPatch{}
	}
	p := localPatch{prev: s.tasks[i].Clone(), applied: s.appliedSeq, ok: true}
	fn(&s.tasks[i])
	s.mu.Unlock()

	s.notify()
	return p
}

// restoreLocal puts back a copy saved by patchLocal. If a fetch was applied
// since the patch, the fetched state already replaced it and is kept.
func (s *Store) restoreLocal(p localPatch) {
	if !p.ok {
		return
	}
	s.mu.Lock()
	if s.appliedSeq != p.applied {
		s.mu.Unlock()
		return
	}
	if i := s.findLocked(p.prev.ID); i >= 0 {
		s.tasks[i] = p.prev
	}
	s.mu.Unlock()
	s.notify()
}

// putLocal inserts or replaces the local copy of t.
func (s *Store) putLocal(t model.Task) {
	s.mu.Lock()
	if i := s.findLocked(t.ID); i >= 0 {
		s.tasks[i] = t
	} else {
		s.tasks = append(s.tasks, t)
	}
	s.mu.Unlock()
	s.notify()
}

// removeLocal drops the local copy of task id.
func (s *Store) removeLocal(id string) {
	s.mu.Lock()
	if i := s.findLocked(id); i >= 0 {
		s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
	}
	s.mu.Unlock()
	s.notify()
}
