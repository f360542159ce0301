package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/taskboard/taskboard/internal/backend"
	"github.com/taskboard/taskboard/internal/model"
)

// CreateTask inserts a task authored by the store's actor and returns its ID.
//
// The scalar row is written first; assignees, subtasks and tags follow as
// separate writes. If one of those fails the returned error is a
// *PartialWriteError and the task row stays in place.
func (s *Store) CreateTask(ctx context.Context, in model.TaskInput) (string, error) {
	if s.actor == "" {
		return "", ErrNotAuthenticated
	}

	in.SetDefaults()
	if err := in.Validate(); err != nil {
		return "", fmt.Errorf("%w: task: %w", ErrInvalidInput, err)
	}

	now := s.now()
	due, ok := model.ParseDueDate(in.DueDate, now)
	if !ok {
		s.logger.Printf("Warning: could not parse due date %q, creating task without one", in.DueDate)
	}

	id, err := s.backend.InsertTask(ctx, backend.TaskRow{
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		Priority:    in.Priority,
		DueDate:     due,
		CreatedBy:   s.actor,
		WorkspaceID: in.WorkspaceID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create task: %w", err)
	}

	local := model.Task{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		Priority:    in.Priority,
		DueDate:     due,
		CreatedBy:   s.actor,
		WorkspaceID: in.WorkspaceID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Assignees:   []string{},
		Tags:        []string{},
		Subtasks:    []model.Subtask{},
		Comments:    []model.Comment{},
	}
	s.putLocal(local)

	if assignees := dedupe(in.Assignees); len(assignees) > 0 {
		if err := s.backend.InsertAssignees(ctx, id, assignees); err != nil {
			return id, &PartialWriteError{TaskID: id, Step: "assigning users", Err: err}
		}
		local.Assignees = assignees
		s.putLocal(local.Clone())
	}

	if len(in.Subtasks) > 0 {
		subtasks := withSubtaskIDs(in.Subtasks)
		if err := s.backend.ReplaceSubtasks(ctx, id, subtaskRows(subtasks)); err != nil {
			return id, &PartialWriteError{TaskID: id, Step: "saving subtasks", Err: err}
		}
		local.Subtasks = subtasks
		s.putLocal(local.Clone())
	}

	if tags := dedupe(in.Tags); len(tags) > 0 {
		if err := s.backend.ReplaceTags(ctx, id, tags); err != nil {
			return id, &PartialWriteError{TaskID: id, Step: "saving tags", Err: err}
		}
		local.Tags = tags
		s.putLocal(local.Clone())
	}

	s.logger.Printf("Created task %s (%s)", id, in.Title)
	return id, nil
}

// UpdateTask applies a partial update to task id.
//
// The local copy is patched first. Scalar columns, subtasks and tags are
// then written; assignees are handed to UpdateAssignees. If a write fails
// the local patch is reverted and the error returned, unless a fetch was
// applied in the meantime.
func (s *Store) UpdateTask(ctx context.Context, id string, upd model.TaskUpdate) error {
	if err := upd.Validate(); err != nil {
		return fmt.Errorf("%w: update: %w", ErrInvalidInput, err)
	}
	if upd.IsEmpty() {
		return nil
	}

	assignees := upd.Assignees
	upd.Assignees = nil
	if upd.Subtasks != nil {
		subtasks := withSubtaskIDs(*upd.Subtasks)
		upd.Subtasks = &subtasks
	}

	cols := backend.TaskColumns{
		Title:       upd.Title,
		Description: upd.Description,
		Status:      upd.Status,
		Priority:    upd.Priority,
	}

	var due *sql.NullTime
	if upd.DueDate != nil {
		parsed, ok := model.ParseDueDate(*upd.DueDate, s.now())
		if !ok {
			s.logger.Printf("Warning: could not parse due date %q for task %s, clearing it", *upd.DueDate, id)
		}
		due = &sql.NullTime{}
		if parsed != nil {
			due.Time = *parsed
			due.Valid = true
		}
		cols.DueDate = due
	}
	if upd.WorkspaceID != nil {
		cols.WorkspaceID = &sql.NullString{String: *upd.WorkspaceID, Valid: *upd.WorkspaceID != ""}
	}

	patch := s.patchLocal(id, func(t *model.Task) {
		applyUpdate(t, upd, due)
		t.UpdatedAt = s.now()
	})
	revert := func() { s.restoreLocal(patch) }

	if upd.HasScalar() {
		if err := s.backend.UpdateTask(ctx, id, cols); err != nil {
			revert()
			return fmt.Errorf("failed to update task %s: %w", id, err)
		}
	}

	if upd.Subtasks != nil {
		if err := s.backend.ReplaceSubtasks(ctx, id, subtaskRows(*upd.Subtasks)); err != nil {
			revert()
			return fmt.Errorf("failed to update subtasks of task %s: %w", id, err)
		}
	}

	if upd.Tags != nil {
		if err := s.backend.ReplaceTags(ctx, id, dedupe(*upd.Tags)); err != nil {
			revert()
			return fmt.Errorf("failed to update tags of task %s: %w", id, err)
		}
	}

	if assignees != nil {
		return s.UpdateAssignees(ctx, id, *assignees)
	}
	return nil
}

// applyUpdate patches t in memory. Assignees are handled separately.
func applyUpdate(t *model.Task, upd model.TaskUpdate, due *sql.NullTime) {
	if upd.Title != nil {
		t.Title = *upd.Title
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.Status != nil {
		t.Status = *upd.Status
	}
	if upd.Priority != nil {
		t.Priority = *upd.Priority
	}
	if due != nil {
		if due.Valid {
			d := due.Time
			t.DueDate = &d
		} else {
			t.DueDate = nil
		}
	}
	if upd.WorkspaceID != nil {
		if *upd.WorkspaceID == "" {
			t.WorkspaceID = nil
		} else {
			w := *upd.WorkspaceID
			t.WorkspaceID = &w
		}
	}
	if upd.Subtasks != nil {
		t.Subtasks = append([]model.Subtask{}, (*upd.Subtasks)...)
	}
	if upd.Tags != nil {
		t.Tags = dedupe(*upd.Tags)
	}
}

// DeleteTask removes task id. Comments, subtasks and assignments are
// removed by the backend's cascade.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	if err := s.backend.DeleteTask(ctx, id); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	s.removeLocal(id)
	s.logger.Printf("Deleted task %s", id)
	return nil
}

// AddComment appends a comment by the store's actor to task taskID.
func (s *Store) AddComment(ctx context.Context, taskID, content string) (string, error) {
	if s.actor == "" {
		return "", ErrNotAuthenticated
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyComment
	}

	now := s.now()
	id, err := s.backend.InsertComment(ctx, backend.CommentRow{
		TaskID:    taskID,
		Author:    s.actor,
		Content:   content,
		CreatedAt: now,
	})
	if err != nil {
		return "", fmt.Errorf("failed to add comment to task %s: %w", taskID, err)
	}

	s.patchLocal(taskID, func(t *model.Task) {
		t.Comments = append(t.Comments, model.Comment{
			ID:        id,
			TaskID:    taskID,
			Author:    s.actor,
			Content:   content,
			CreatedAt: now,
		})
	})
	return id, nil
}

// ToggleSubtask flips the completed flag of one subtask and writes the whole
// subtask list back through UpdateTask.
func (s *Store) ToggleSubtask(ctx context.Context, taskID, subtaskID string) error {
	s.mu.RLock()
	i := s.findLocked(taskID)
	if i < 0 {
		s.mu.RUnlock()
		return fmt.Errorf("task %s: %w", taskID, ErrTaskNotFound)
	}
	subtasks := append([]model.Subtask{}, s.tasks[i].Subtasks...)
	s.mu.RUnlock()

	found := false
	for j := range subtasks {
		if subtasks[j].ID == subtaskID {
			subtasks[j].Completed = !subtasks[j].Completed
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("subtask %s of task %s: %w", subtaskID, taskID, ErrSubtaskNotFound)
	}

	return s.UpdateTask(ctx, taskID, model.TaskUpdate{Subtasks: &subtasks})
}

// UpdateAssignees replaces the full assignee set of a task: every existing
// join row is deleted, then one row per ID is inserted. There is no diff.
func (s *Store) UpdateAssignees(ctx context.Context, taskID string, userIDs []string) error {
	ids := dedupe(userIDs)

	patch := s.patchLocal(taskID, func(t *model.Task) {
		t.Assignees = append([]string{}, ids...)
	})

	if err := s.backend.DeleteAssignees(ctx, taskID); err != nil {
		s.restoreLocal(patch)
		return fmt.Errorf("failed to clear assignees of task %s: %w", taskID, err)
	}

	if len(ids) == 0 {
		return nil
	}

	if err := s.backend.InsertAssignees(ctx, taskID, ids); err != nil {
		// The old rows are gone; mirror what the backend now holds.
		s.patchLocal(taskID, func(t *model.Task) {
			t.Assignees = []string{}
		})
		return &PartialWriteError{TaskID: taskID, Step: "assigning users", Err: err}
	}
	return nil
}

// withSubtaskIDs copies subtasks, giving new ones an ID so the local copy
// and the stored rows agree before the next fetch.
func withSubtaskIDs(subtasks []model.Subtask) []model.Subtask {
	out := make([]model.Subtask, len(subtasks))
	for i, st := range subtasks {
		if st.ID == "" {
			st.ID = uuid.NewString()
		}
		out[i] = st
	}
	return out
}

func subtaskRows(subtasks []model.Subtask) []backend.SubtaskRow {
	rows := make([]backend.SubtaskRow, 0, len(subtasks))
	for _, st := range subtasks {
		rows = append(rows, backend.SubtaskRow{
			ID:        st.ID,
			Title:     st.Title,
			Completed: st.Completed,
		})
	}
	return rows
}
