package backend

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskboard/taskboard/internal/model"
)

// TaskRow holds the scalar columns of a new tasks row.
// ID is generated when empty; zero timestamps default to now.
type TaskRow struct {
	ID          string
	Title       string
	Description string
	Status      model.Status
	Priority    model.Priority
	DueDate     *time.Time
	CreatedBy   string
	WorkspaceID *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TaskColumns is a partial update of a tasks row. Nil fields are left
// untouched; a non-nil DueDate or WorkspaceID with Valid=false writes NULL.
// updated_at is always bumped.
type TaskColumns struct {
	Title       *string
	Description *string
	Status      *model.Status
	Priority    *model.Priority
	DueDate     *sql.NullTime
	WorkspaceID *sql.NullString
}

// SubtaskRow is one subtask to store; ID is generated when empty.
type SubtaskRow struct {
	ID        string
	Title     string
	Completed bool
}

// CommentRow is a new comment; ID is generated when empty.
type CommentRow struct {
	ID        string
	TaskID    string
	Author    string
	Content   string
	CreatedAt time.Time
}

// InsertTask inserts a tasks row and returns its ID.
func (db *DB) InsertTask(ctx context.Context, row TaskRow) (string, error) {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}

	_, err := db.conn.ExecContext(ctx, db.rebind(`
		INSERT INTO tasks (
			id, title, description, status, priority, due_date,
			created_by, workspace_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		row.ID,
		row.Title,
		row.Description,
		string(row.Status),
		string(row.Priority),
		nullTime(row.DueDate),
		row.CreatedBy,
		nullable(row.WorkspaceID),
		model.FormatTimestamp(row.CreatedAt),
		model.FormatTimestamp(row.UpdatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert task: %w", err)
	}

	db.publish(TableTasks, OpInsert, row.ID)
	return row.ID, nil
}

// UpdateTask writes the non-nil columns of cols to task id.
// Returns ErrNotFound if the task doesn't exist.
func (db *DB) UpdateTask(ctx context.Context, id string, cols TaskColumns) error {
	var sets []string
	var args []interface{}

	if cols.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *cols.Title)
	}
	if cols.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *cols.Description)
	}
	if cols.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*cols.Status))
	}
	if cols.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, string(*cols.Priority))
	}
	if cols.DueDate != nil {
		sets = append(sets, "due_date = ?")
		if cols.DueDate.Valid {
			args = append(args, nullTime(&cols.DueDate.Time))
		} else {
			args = append(args, sql.NullString{})
		}
	}
	if cols.WorkspaceID != nil {
		sets = append(sets, "workspace_id = ?")
		args = append(args, *cols.WorkspaceID)
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, model.FormatTimestamp(time.Now()))
	args = append(args, id)

	query := `UPDATE tasks SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	res, err := db.conn.ExecContext(ctx, db.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}

	db.publish(TableTasks, OpUpdate, id)
	return nil
}

// DeleteTask removes a task. Comments, subtasks, assignee and tag rows go
// with it through ON DELETE CASCADE. Returns nil if the task doesn't exist.
func (db *DB) DeleteTask(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, db.rebind(`DELETE FROM tasks WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}

	db.publish(TableTasks, OpDelete, id)
	return nil
}

// InsertAssignees adds one task_assignees row per user ID in a single
// transaction.
func (db *DB) InsertAssignees(ctx context.Context, taskID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := model.FormatTimestamp(time.Now())
	query := db.rebind(`INSERT INTO task_assignees (task_id, user_id, created_at) VALUES (?, ?, ?)`)
	for _, userID := range userIDs {
		if _, err := tx.ExecContext(ctx, query, taskID, userID, now); err != nil {
			return fmt.Errorf("failed to assign %s to task %s: %w", userID, taskID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	for range userIDs {
		db.publish(TableAssignees, OpInsert, taskID)
	}
	return nil
}

// DeleteAssignees removes every task_assignees row of a task.
func (db *DB) DeleteAssignees(ctx context.Context, taskID string) error {
	res, err := db.conn.ExecContext(ctx, db.rebind(`DELETE FROM task_assignees WHERE task_id = ?`), taskID)
	if err != nil {
		return fmt.Errorf("failed to clear assignees of task %s: %w", taskID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		db.publish(TableAssignees, OpDelete, taskID)
	}
	return nil
}

// ReplaceSubtasks overwrites the subtask list of a task, preserving order.
func (db *DB) ReplaceSubtasks(ctx context.Context, taskID string, subtasks []SubtaskRow) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, db.rebind(`DELETE FROM subtasks WHERE task_id = ?`), taskID); err != nil {
		return fmt.Errorf("failed to clear subtasks of task %s: %w", taskID, err)
	}

	query := db.rebind(`INSERT INTO subtasks (id, task_id, title, completed, position) VALUES (?, ?, ?, ?, ?)`)
	for i, st := range subtasks {
		if st.ID == "" {
			st.ID = uuid.NewString()
		}
		completed := 0
		if st.Completed {
			completed = 1
		}
		if _, err := tx.ExecContext(ctx, query, st.ID, taskID, st.Title, completed, i); err != nil {
			return fmt.Errorf("failed to insert subtask %q: %w", st.Title, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	db.publish(TableSubtasks, OpUpdate, taskID)
	return nil
}

// ReplaceTags overwrites the tag set of a task. Duplicates are ignored.
func (db *DB) ReplaceTags(ctx context.Context, taskID string, tags []string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, db.rebind(`DELETE FROM task_tags WHERE task_id = ?`), taskID); err != nil {
		return fmt.Errorf("failed to clear tags of task %s: %w", taskID, err)
	}

	query := db.rebind(`INSERT INTO task_tags (task_id, tag) VALUES (?, ?) ON CONFLICT (task_id, tag) DO NOTHING`)
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, query, taskID, tag); err != nil {
			return fmt.Errorf("failed to insert tag %q: %w", tag, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	db.publish(TableTags, OpUpdate, taskID)
	return nil
}

// InsertComment appends a comment to a task and returns its ID.
func (db *DB) InsertComment(ctx context.Context, row CommentRow) (string, error) {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}

	_, err := db.conn.ExecContext(ctx, db.rebind(`
		INSERT INTO comments (id, task_id, author, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`), row.ID, row.TaskID, row.Author, row.Content, model.FormatTimestamp(row.CreatedAt))
	if err != nil {
		return "", fmt.Errorf("failed to insert comment on task %s: %w", row.TaskID, err)
	}

	db.publish(TableComments, OpInsert, row.ID)
	return row.ID, nil
}

// UpsertUser inserts or updates a user. An empty ID is generated.
func (db *DB) UpsertUser(ctx context.Context, u *model.User) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("invalid user: %w", err)
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	_, err := db.conn.ExecContext(ctx, db.rebind(`
		INSERT INTO users (id, name, email, role, department, avatar, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			role = excluded.role,
			department = excluded.department,
			avatar = excluded.avatar
	`), u.ID, u.Name, u.Email, u.Role, u.Department, sql.NullString{String: u.Avatar, Valid: u.Avatar != ""},
		model.FormatTimestamp(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", u.ID, err)
	}

	db.publish(TableUsers, OpUpdate, u.ID)
	return nil
}

// UpsertWorkspace inserts or updates a workspace. An empty ID is generated.
func (db *DB) UpsertWorkspace(ctx context.Context, w *model.Workspace) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("invalid workspace: %w", err)
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}

	_, err := db.conn.ExecContext(ctx, db.rebind(`
		INSERT INTO workspaces (id, name, color, department, type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			color = excluded.color,
			department = excluded.department,
			type = excluded.type
	`), w.ID, w.Name, w.Color, w.Department, sql.NullString{String: string(w.Type), Valid: w.Type != ""},
		model.FormatTimestamp(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to upsert workspace %s: %w", w.ID, err)
	}

	db.publish(TableWorkspaces, OpUpdate, w.ID)
	return nil
}
