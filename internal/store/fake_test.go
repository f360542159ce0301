package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/taskboard/taskboard/internal/backend"
	"github.com/taskboard/taskboard/internal/model"
)

// fakeBackend is an in-memory Backend that records every call.
type fakeBackend struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
	seq   int

	tasks      []backend.RawTask
	users      []model.User
	workspaces []model.Workspace
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		calls: make(map[string]int),
		fail:  make(map[string]error),
	}
}

func (f *fakeBackend) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	return f.fail[name]
}

func (f *fakeBackend) failOn(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[name] = err
}

func (f *fakeBackend) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeBackend) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeBackend) find(id string) *backend.RawTask {
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			return &f.tasks[i]
		}
	}
	return nil
}

func (f *fakeBackend) SelectTasks(ctx context.Context) ([]backend.RawTask, error) {
	if err := f.record("SelectTasks"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]backend.RawTask, len(f.tasks))
	for i, t := range f.tasks {
		t.Assignees = append([]backend.AssigneeRow(nil), t.Assignees...)
		t.Tags = append([]backend.TagRow(nil), t.Tags...)
		t.Subtasks = append([]backend.RawSubtask(nil), t.Subtasks...)
		t.Comments = append([]backend.RawComment(nil), t.Comments...)
		out[i] = t
	}
	return out, nil
}

func (f *fakeBackend) SelectUsers(ctx context.Context) ([]model.User, error) {
	if err := f.record("SelectUsers"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.User(nil), f.users...), nil
}

func (f *fakeBackend) SelectWorkspaces(ctx context.Context) ([]model.Workspace, error) {
	if err := f.record("SelectWorkspaces"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Workspace(nil), f.workspaces...), nil
}

func (f *fakeBackend) InsertTask(ctx context.Context, row backend.TaskRow) (string, error) {
	if err := f.record("InsertTask"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := fmt.Sprintf("task-%d", f.seq)
	raw := backend.RawTask{
		ID:          id,
		Title:       row.Title,
		Description: row.Description,
		Status:      string(row.Status),
		Priority:    string(row.Priority),
		CreatedBy:   row.CreatedBy,
		WorkspaceID: row.WorkspaceID,
		CreatedAt:   model.FormatTimestamp(row.CreatedAt),
		UpdatedAt:   model.FormatTimestamp(row.UpdatedAt),
	}
	if row.DueDate != nil {
		d := model.FormatTimestamp(*row.DueDate)
		raw.DueDate = &d
	}
	f.tasks = append(f.tasks, raw)
	return id, nil
}

func (f *fakeBackend) UpdateTask(ctx context.Context, id string, cols backend.TaskColumns) error {
	if err := f.record("UpdateTask"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.find(id)
	if t == nil {
		return fmt.Errorf("task %s: %w", id, backend.ErrNotFound)
	}
	if cols.Title != nil {
		t.Title = *cols.Title
	}
	if cols.Description != nil {
		t.Description = *cols.Description
	}
	if cols.Status != nil {
		t.Status = string(*cols.Status)
	}
	if cols.Priority != nil {
		t.Priority = string(*cols.Priority)
	}
	if cols.DueDate != nil {
		if cols.DueDate.Valid {
			d := model.FormatTimestamp(cols.DueDate.Time)
			t.DueDate = &d
		} else {
			t.DueDate = nil
		}
	}
	t.UpdatedAt = model.FormatTimestamp(time.Now())
	return nil
}

func (f *fakeBackend) DeleteTask(ctx context.Context, id string) error {
	if err := f.record("DeleteTask"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeBackend) InsertAssignees(ctx context.Context, taskID string, userIDs []string) error {
	if err := f.record("InsertAssignees"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.find(taskID)
	if t == nil {
		return errors.New("foreign key violation")
	}
	for _, id := range userIDs {
		t.Assignees = append(t.Assignees, backend.AssigneeRow{UserID: id})
	}
	return nil
}

func (f *fakeBackend) DeleteAssignees(ctx context.Context, taskID string) error {
	if err := f.record("DeleteAssignees"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if t := f.find(taskID); t != nil {
		t.Assignees = nil
	}
	return nil
}

func (f *fakeBackend) ReplaceSubtasks(ctx context.Context, taskID string, subtasks []backend.SubtaskRow) error {
	if err := f.record("ReplaceSubtasks"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.find(taskID)
	if t == nil {
		return errors.New("foreign key violation")
	}
	t.Subtasks = nil
	for _, st := range subtasks {
		t.Subtasks = append(t.Subtasks, backend.RawSubtask{ID: st.ID, Title: st.Title, Completed: st.Completed})
	}
	return nil
}

func (f *fakeBackend) ReplaceTags(ctx context.Context, taskID string, tags []string) error {
	if err := f.record("ReplaceTags"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.find(taskID)
	if t == nil {
		return errors.New("foreign key violation")
	}
	t.Tags = nil
	for _, tag := range tags {
		t.Tags = append(t.Tags, backend.TagRow{Tag: tag})
	}
	return nil
}

func (f *fakeBackend) InsertComment(ctx context.Context, row backend.CommentRow) (string, error) {
	if err := f.record("InsertComment"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.find(row.TaskID)
	if t == nil {
		return "", errors.New("foreign key violation")
	}
	f.seq++
	id := fmt.Sprintf("comment-%d", f.seq)
	t.Comments = append(t.Comments, backend.RawComment{
		ID:        id,
		Author:    row.Author,
		Content:   row.Content,
		CreatedAt: model.FormatTimestamp(row.CreatedAt),
	})
	return id, nil
}

var fixedNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

// newTestStore builds a store over fb with a quiet logger and a fixed clock.
func newTestStore(fb Backend, actor string) *Store {
	return New(fb, &Config{
		Actor:  actor,
		Logger: log.New(io.Discard, "", 0),
		Now:    func() time.Time { return fixedNow },
	})
}
