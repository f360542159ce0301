package store

import (
	"log"
	"time"

	"github.com/taskboard/taskboard/internal/backend"
	"github.com/taskboard/taskboard/internal/model"
)

// formatTask turns a raw backend row into a model.Task.
//
// Assignee join rows are flattened into unique user IDs, missing relations
// become empty slices, and dates that fail to parse fall back to now (for
// created/updated timestamps) or nil (for the due date) with a warning.
func formatTask(raw backend.RawTask, now time.Time, logger *log.Logger) model.Task {
	t := model.Task{
		ID:          raw.ID,
		Title:       raw.Title,
		Description: raw.Description,
		Status:      model.Status(raw.Status),
		Priority:    model.Priority(raw.Priority),
		CreatedBy:   raw.CreatedBy,
		WorkspaceID: raw.WorkspaceID,
		CreatedAt:   parseTimestamp(raw.CreatedAt, now, "created_at", raw.ID, logger),
		UpdatedAt:   parseTimestamp(raw.UpdatedAt, now, "updated_at", raw.ID, logger),
		DueDate:     parseDueDate(raw.DueDate, raw.ID, logger),
		Assignees:   flattenAssignees(raw.Assignees),
		Tags:        flattenTags(raw.Tags),
		Subtasks:    make([]model.Subtask, 0, len(raw.Subtasks)),
		Comments:    make([]model.Comment, 0, len(raw.Comments)),
	}

	for _, st := range raw.Subtasks {
		t.Subtasks = append(t.Subtasks, model.Subtask{
			ID:        st.ID,
			Title:     st.Title,
			Completed: st.Completed,
		})
	}

	for _, c := range raw.Comments {
		t.Comments = append(t.Comments, model.Comment{
			ID:        c.ID,
			TaskID:    raw.ID,
			Author:    c.Author,
			Content:   c.Content,
			CreatedAt: parseTimestamp(c.CreatedAt, now, "comment created_at", raw.ID, logger),
		})
	}

	return t
}

// flattenAssignees collects the user IDs of join rows, without duplicates.
func flattenAssignees(rows []backend.AssigneeRow) []string {
	ids := make([]string, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		if r.UserID == "" || seen[r.UserID] {
			continue
		}
		seen[r.UserID] = true
		ids = append(ids, r.UserID)
	}
	return ids
}

func flattenTags(rows []backend.TagRow) []string {
	tags := make([]string, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		if r.Tag == "" || seen[r.Tag] {
			continue
		}
		seen[r.Tag] = true
		tags = append(tags, r.Tag)
	}
	return tags
}

func parseTimestamp(raw string, now time.Time, field, taskID string, logger *log.Logger) time.Time {
	if t, ok := model.ParseTimestamp(raw); ok {
		return t
	}
	logger.Printf("Warning: task %s has invalid %s %q, using current time", taskID, field, raw)
	return now
}

func parseDueDate(raw *string, taskID string, logger *log.Logger) *time.Time {
	if raw == nil || *raw == "" {
		return nil
	}
	if t, ok := model.ParseTimestamp(*raw); ok {
		return &t
	}
	logger.Printf("Warning: task %s has invalid due_date %q, dropping it", taskID, *raw)
	return nil
}

// dedupe returns ids without blanks or repeats, preserving order.
func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
