// Package model defines the plain data records shared by the backend, the
// store and every consumer: tasks, users, workspaces and their owned parts.
package model

import (
	"fmt"
	"time"
)

// Status is the kanban column a task sits in.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// Statuses lists every status in board order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusDone}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Priority orders tasks within a column.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Rank returns a sort key where high priority sorts first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	}
	return 3
}

// MaxTitleLength bounds task titles.
const MaxTitleLength = 500

// Task is a formatted task with its relations assembled.
//
// Assignees is derived from the task_assignees join table and must be
// replaced wholesale whenever the join rows change.
type Task struct {
	ID          string     `json:"id" yaml:"id"`
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Status      Status     `json:"status" yaml:"status"`
	Priority    Priority   `json:"priority" yaml:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty" yaml:"due_date,omitempty"`
	CreatedBy   string     `json:"created_by" yaml:"created_by"`
	WorkspaceID *string    `json:"workspace_id,omitempty" yaml:"workspace_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" yaml:"updated_at"`

	Assignees []string  `json:"assignees" yaml:"assignees"`
	Tags      []string  `json:"tags" yaml:"tags"`
	Subtasks  []Subtask `json:"subtasks" yaml:"subtasks"`
	Comments  []Comment `json:"comments" yaml:"comments"`
}

// Subtask is owned by its parent task and has no lifecycle of its own.
type Subtask struct {
	ID        string `json:"id" yaml:"id"`
	Title     string `json:"title" yaml:"title"`
	Completed bool   `json:"completed" yaml:"completed"`
}

// Comment is append-only.
type Comment struct {
	ID        string    `json:"id" yaml:"id"`
	TaskID    string    `json:"task_id" yaml:"task_id"`
	Author    string    `json:"author" yaml:"author"`
	Content   string    `json:"content" yaml:"content"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Clone returns a deep copy so callers can hold snapshots safely.
func (t Task) Clone() Task {
	c := t
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	if t.WorkspaceID != nil {
		w := *t.WorkspaceID
		c.WorkspaceID = &w
	}
	c.Assignees = append([]string{}, t.Assignees...)
	c.Tags = append([]string{}, t.Tags...)
	c.Subtasks = append([]Subtask{}, t.Subtasks...)
	c.Comments = append([]Comment{}, t.Comments...)
	return c
}

// HasAssignee reports whether userID is assigned to the task.
func (t *Task) HasAssignee(userID string) bool {
	for _, id := range t.Assignees {
		if id == userID {
			return true
		}
	}
	return false
}

// IsOverdue reports whether the task is unfinished past its due date.
func (t *Task) IsOverdue(now time.Time) bool {
	return t.DueDate != nil && t.Status != StatusDone && t.DueDate.Before(now)
}

// TaskInput is the payload for creating a task. DueDate is raw user input
// and is parsed with ParseDueDate.
type TaskInput struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status,omitempty"`
	Priority    Priority  `json:"priority,omitempty"`
	DueDate     string    `json:"due_date,omitempty"`
	WorkspaceID *string   `json:"workspace_id,omitempty"`
	Assignees   []string  `json:"assignees,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Subtasks    []Subtask `json:"subtasks,omitempty"`
}

// SetDefaults fills optional fields.
func (in *TaskInput) SetDefaults() {
	if in.Status == "" {
		in.Status = StatusTodo
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
}

// Validate checks scalar fields. Status transitions are not constrained.
func (in *TaskInput) Validate() error {
	if in.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(in.Title) > MaxTitleLength {
		return fmt.Errorf("title must be %d characters or less (got %d)", MaxTitleLength, len(in.Title))
	}
	if !in.Status.Valid() {
		return fmt.Errorf("invalid status %q", in.Status)
	}
	if !in.Priority.Valid() {
		return fmt.Errorf("invalid priority %q", in.Priority)
	}
	return nil
}

// TaskUpdate carries a partial update. Nil fields are left untouched.
// DueDate set to an empty string clears the due date.
type TaskUpdate struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Status      *Status    `json:"status,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	DueDate     *string    `json:"due_date,omitempty"`
	WorkspaceID *string    `json:"workspace_id,omitempty"`
	Assignees   *[]string  `json:"assignees,omitempty"`
	Tags        *[]string  `json:"tags,omitempty"`
	Subtasks    *[]Subtask `json:"subtasks,omitempty"`
}

// Validate checks the fields that are present.
func (u *TaskUpdate) Validate() error {
	if u.Title != nil {
		if *u.Title == "" {
			return fmt.Errorf("title cannot be empty")
		}
		if len(*u.Title) > MaxTitleLength {
			return fmt.Errorf("title must be %d characters or less (got %d)", MaxTitleLength, len(*u.Title))
		}
	}
	if u.Status != nil && !u.Status.Valid() {
		return fmt.Errorf("invalid status %q", *u.Status)
	}
	if u.Priority != nil && !u.Priority.Valid() {
		return fmt.Errorf("invalid priority %q", *u.Priority)
	}
	return nil
}

// IsEmpty reports whether the update changes nothing.
func (u *TaskUpdate) IsEmpty() bool {
	return u.Title == nil && u.Description == nil && u.Status == nil &&
		u.Priority == nil && u.DueDate == nil && u.WorkspaceID == nil &&
		u.Assignees == nil && u.Tags == nil && u.Subtasks == nil
}

// HasScalar reports whether the update touches any column of the tasks row.
func (u *TaskUpdate) HasScalar() bool {
	return u.Title != nil || u.Description != nil || u.Status != nil ||
		u.Priority != nil || u.DueDate != nil || u.WorkspaceID != nil
}
