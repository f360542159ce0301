package backend

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/taskboard/taskboard/internal/model"
)

// RawTask is a tasks row with its joined relations, exactly as stored.
// Timestamps are left as raw strings; formatting is the store's job.
// Relation slices are nil when the task has no rows in that table.
type RawTask struct {
	ID          string
	Title       string
	Description string
	Status      string
	Priority    string
	DueDate     *string
	CreatedBy   string
	WorkspaceID *string
	CreatedAt   string
	UpdatedAt   string

	Assignees []AssigneeRow
	Tags      []TagRow
	Subtasks  []RawSubtask
	Comments  []RawComment
}

// AssigneeRow is one task_assignees join row.
type AssigneeRow struct {
	UserID string
}

// TagRow is one task_tags join row.
type TagRow struct {
	Tag string
}

// RawSubtask is a subtasks row.
type RawSubtask struct {
	ID        string
	Title     string
	Completed bool
}

// RawComment is a comments row.
type RawComment struct {
	ID        string
	Author    string
	Content   string
	CreatedAt string
}

// SelectTasks reads every task with its assignee, tag, subtask and comment
// rows. All reads happen in one transaction so the joins are consistent.
func (db *DB) SelectTasks(ctx context.Context) ([]RawTask, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, db.rebind(`
		SELECT id, title, description, status, priority, due_date,
		       created_by, workspace_id, created_at, updated_at
		FROM tasks
		ORDER BY created_at ASC, id ASC
	`))
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	var tasks []RawTask
	index := make(map[string]int)
	for rows.Next() {
		var t RawTask
		var description, dueDate, workspaceID sql.NullString
		if err := rows.Scan(
			&t.ID, &t.Title, &description, &t.Status, &t.Priority, &dueDate,
			&t.CreatedBy, &workspaceID, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		t.Description = description.String
		t.DueDate = stringPtr(dueDate)
		t.WorkspaceID = stringPtr(workspaceID)
		index[t.ID] = len(tasks)
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	rows.Close()

	if err := joinRows(ctx, tx, db.rebind(`SELECT task_id, user_id FROM task_assignees ORDER BY task_id, created_at, user_id`),
		func(rows *sql.Rows) error {
			var taskID string
			var r AssigneeRow
			if err := rows.Scan(&taskID, &r.UserID); err != nil {
				return err
			}
			if i, ok := index[taskID]; ok {
				tasks[i].Assignees = append(tasks[i].Assignees, r)
			}
			return nil
		}); err != nil {
		return nil, fmt.Errorf("failed to query assignees: %w", err)
	}

	if err := joinRows(ctx, tx, db.rebind(`SELECT task_id, tag FROM task_tags ORDER BY task_id, tag`),
		func(rows *sql.Rows) error {
			var taskID string
			var r TagRow
			if err := rows.Scan(&taskID, &r.Tag); err != nil {
				return err
			}
			if i, ok := index[taskID]; ok {
				tasks[i].Tags = append(tasks[i].Tags, r)
			}
			return nil
		}); err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}

	if err := joinRows(ctx, tx, db.rebind(`SELECT task_id, id, title, completed FROM subtasks ORDER BY task_id, position, id`),
		func(rows *sql.Rows) error {
			var taskID string
			var r RawSubtask
			var completed int
			if err := rows.Scan(&taskID, &r.ID, &r.Title, &completed); err != nil {
				return err
			}
			r.Completed = completed != 0
			if i, ok := index[taskID]; ok {
				tasks[i].Subtasks = append(tasks[i].Subtasks, r)
			}
			return nil
		}); err != nil {
		return nil, fmt.Errorf("failed to query subtasks: %w", err)
	}

	if err := joinRows(ctx, tx, db.rebind(`SELECT task_id, id, author, content, created_at FROM comments ORDER BY task_id, created_at, id`),
		func(rows *sql.Rows) error {
			var taskID string
			var r RawComment
			if err := rows.Scan(&taskID, &r.ID, &r.Author, &r.Content, &r.CreatedAt); err != nil {
				return err
			}
			if i, ok := index[taskID]; ok {
				tasks[i].Comments = append(tasks[i].Comments, r)
			}
			return nil
		}); err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}

	return tasks, nil
}

// joinRows runs query and hands every row to scan.
func joinRows(ctx context.Context, tx *sql.Tx, query string, scan func(*sql.Rows) error) error {
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// SelectUsers returns all users ordered by name.
func (db *DB) SelectUsers(ctx context.Context) ([]model.User, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT id, name, email, role, department, avatar
		FROM users
		ORDER BY name ASC, id ASC
	`))
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// GetUser returns one user. Returns ErrNotFound if it doesn't exist.
func (db *DB) GetUser(ctx context.Context, id string) (*model.User, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT id, name, email, role, department, avatar
		FROM users
		WHERE id = ?
	`), id)
	if err != nil {
		return nil, fmt.Errorf("failed to query user %s: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to query user %s: %w", id, err)
		}
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	u, err := scanUser(rows)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func scanUser(rows *sql.Rows) (model.User, error) {
	var u model.User
	var avatar sql.NullString
	if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.Department, &avatar); err != nil {
		return u, fmt.Errorf("failed to scan user: %w", err)
	}
	u.Avatar = avatar.String
	return u, nil
}

// SelectWorkspaces returns all workspaces ordered by name.
func (db *DB) SelectWorkspaces(ctx context.Context) ([]model.Workspace, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT id, name, color, department, type
		FROM workspaces
		ORDER BY name ASC, id ASC
	`))
	if err != nil {
		return nil, fmt.Errorf("failed to query workspaces: %w", err)
	}
	defer rows.Close()

	workspaces := []model.Workspace{}
	for rows.Next() {
		var w model.Workspace
		var typ sql.NullString
		if err := rows.Scan(&w.ID, &w.Name, &w.Color, &w.Department, &typ); err != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", err)
		}
		w.Type = model.WorkspaceType(typ.String)
		workspaces = append(workspaces, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workspaces: %w", err)
	}
	return workspaces, nil
}

// CountTasks returns the number of task rows.
func (db *DB) CountTasks(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get task count: %w", err)
	}
	return count, nil
}
