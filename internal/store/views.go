package store

import (
	"sort"
	"time"

	"github.com/taskboard/taskboard/internal/model"
)

// TaskFilter narrows a task list. Zero fields match everything.
type TaskFilter struct {
	Status      model.Status
	Priority    model.Priority
	AssigneeID  string
	WorkspaceID string
	Tag         string
}

// Match reports whether t passes the filter.
func (f TaskFilter) Match(t *model.Task) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.AssigneeID != "" && !t.HasAssignee(f.AssigneeID) {
		return false
	}
	if f.WorkspaceID != "" && (t.WorkspaceID == nil || *t.WorkspaceID != f.WorkspaceID) {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, tag := range t.Tags {
			if tag == f.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Task looks up a task by ID.
func (s Snapshot) Task(id string) (model.Task, bool) {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return model.Task{}, false
}

// User looks up a user by ID.
func (s Snapshot) User(id string) (model.User, bool) {
	for _, u := range s.Users {
		if u.ID == id {
			return u, true
		}
	}
	return model.User{}, false
}

// Workspace looks up a workspace by ID.
func (s Snapshot) Workspace(id string) (model.Workspace, bool) {
	for _, w := range s.Workspaces {
		if w.ID == id {
			return w, true
		}
	}
	return model.Workspace{}, false
}

// Filter returns the tasks matching f, highest priority first, then by due
// date (undated last), then by creation time.
func (s Snapshot) Filter(f TaskFilter) []model.Task {
	var out []model.Task
	for i := range s.Tasks {
		if f.Match(&s.Tasks[i]) {
			out = append(out, s.Tasks[i])
		}
	}
	sortTasks(out)
	return out
}

// ByStatus groups tasks into kanban columns. Every known status has an
// entry, possibly empty.
func (s Snapshot) ByStatus() map[model.Status][]model.Task {
	cols := make(map[model.Status][]model.Task, len(model.Statuses))
	for _, st := range model.Statuses {
		cols[st] = []model.Task{}
	}
	for _, t := range s.Tasks {
		cols[t.Status] = append(cols[t.Status], t)
	}
	for st := range cols {
		sortTasks(cols[st])
	}
	return cols
}

// DueBetween returns tasks with a due date in [from, to), ordered by due
// date. This backs the calendar view.
func (s Snapshot) DueBetween(from, to time.Time) []model.Task {
	var out []model.Task
	for _, t := range s.Tasks {
		if t.DueDate == nil {
			continue
		}
		if !t.DueDate.Before(from) && t.DueDate.Before(to) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DueDate.Before(*out[j].DueDate)
	})
	return out
}

// Stats summarizes a snapshot for dashboards.
type Stats struct {
	Total      int                    `json:"total"`
	ByStatus   map[model.Status]int   `json:"by_status"`
	ByPriority map[model.Priority]int `json:"by_priority"`
	Overdue    int                    `json:"overdue"`
	Unassigned int                    `json:"unassigned"`
}

// Stats counts tasks by status and priority as of now.
func (s Snapshot) Stats(now time.Time) Stats {
	st := Stats{
		Total:      len(s.Tasks),
		ByStatus:   make(map[model.Status]int),
		ByPriority: make(map[model.Priority]int),
	}
	for i := range s.Tasks {
		t := &s.Tasks[i]
		st.ByStatus[t.Status]++
		st.ByPriority[t.Priority]++
		if t.IsOverdue(now) {
			st.Overdue++
		}
		if len(t.Assignees) == 0 {
			st.Unassigned++
		}
	}
	return st
}

func sortTasks(tasks []model.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		switch {
		case a.DueDate != nil && b.DueDate == nil:
			return true
		case a.DueDate == nil && b.DueDate != nil:
			return false
		case a.DueDate != nil && b.DueDate != nil && !a.DueDate.Equal(*b.DueDate):
			return a.DueDate.Before(*b.DueDate)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}
