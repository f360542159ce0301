// Package migrate imports a board written by `tb export` into a backend,
// preserving IDs and timestamps so the import can move a board between
// SQLite, libSQL and Postgres.
package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/taskboard/taskboard/internal/backend"
	"github.com/taskboard/taskboard/internal/model"
	"github.com/taskboard/taskboard/internal/store"
)

// Options configures an import.
type Options struct {
	// DryRun counts what would be written without writing
	DryRun bool

	// Logger for import progress
	Logger *log.Logger
}

// Result counts what an import wrote.
type Result struct {
	Users      int
	Workspaces int
	Tasks      int
	Skipped    int
	Comments   int
	Errors     []string
}

// ReadSnapshot decodes an export file. Files ending in .yaml or .yml are
// read as YAML, everything else as JSON.
func ReadSnapshot(path string) (*store.Snapshot, error) {
	// #nosec G304 - controlled path from CLI
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open export file: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return decodeYAML(f)
	}
	return decodeJSON(f)
}

func decodeJSON(r io.Reader) (*store.Snapshot, error) {
	var snap store.Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("invalid JSON export: %w", err)
	}
	return &snap, nil
}

func decodeYAML(r io.Reader) (*store.Snapshot, error) {
	var snap store.Snapshot
	if err := yaml.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("invalid YAML export: %w", err)
	}
	return &snap, nil
}

// Import writes snap into db. Users and workspaces are upserted; tasks whose
// ID already exists are skipped along with their relations. Per-task
// failures are collected in Result.Errors and do not stop the import.
func Import(ctx context.Context, db *backend.DB, snap *store.Snapshot, opts Options) (*Result, error) {
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[migrate] ", log.LstdFlags)
	}
	result := &Result{}

	existing := store.New(db, &store.Config{Logger: opts.Logger})
	if err := existing.FetchAll(ctx); err != nil {
		return nil, fmt.Errorf("failed to load current board: %w", err)
	}
	current := existing.Snapshot()

	for i := range snap.Users {
		u := snap.Users[i]
		if !opts.DryRun {
			if err := db.UpsertUser(ctx, &u); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("user %s: %v", u.ID, err))
				continue
			}
		}
		result.Users++
	}

	for i := range snap.Workspaces {
		w := snap.Workspaces[i]
		if !opts.DryRun {
			if err := db.UpsertWorkspace(ctx, &w); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("workspace %s: %v", w.ID, err))
				continue
			}
		}
		result.Workspaces++
	}

	for _, t := range snap.Tasks {
		if _, ok := current.Task(t.ID); ok {
			result.Skipped++
			continue
		}
		if opts.DryRun {
			result.Tasks++
			result.Comments += len(t.Comments)
			continue
		}
		n, err := importTask(ctx, db, t)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("task %s: %v", t.ID, err))
			continue
		}
		result.Tasks++
		result.Comments += n
	}

	opts.Logger.Printf("Imported %d users, %d workspaces, %d tasks (%d skipped, %d errors)",
		result.Users, result.Workspaces, result.Tasks, result.Skipped, len(result.Errors))
	return result, nil
}

// importTask writes one task and its relations and returns the number of
// comments written.
func importTask(ctx context.Context, db *backend.DB, t model.Task) (int, error) {
	if !t.Status.Valid() {
		t.Status = model.StatusTodo
	}
	if !t.Priority.Valid() {
		t.Priority = model.PriorityMedium
	}

	id, err := db.InsertTask(ctx, backend.TaskRow{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		Priority:    t.Priority,
		DueDate:     t.DueDate,
		CreatedBy:   t.CreatedBy,
		WorkspaceID: t.WorkspaceID,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	})
	if err != nil {
		return 0, err
	}

	if len(t.Assignees) > 0 {
		if err := db.InsertAssignees(ctx, id, t.Assignees); err != nil {
			return 0, err
		}
	}
	if len(t.Tags) > 0 {
		if err := db.ReplaceTags(ctx, id, t.Tags); err != nil {
			return 0, err
		}
	}
	if len(t.Subtasks) > 0 {
		rows := make([]backend.SubtaskRow, 0, len(t.Subtasks))
		for _, st := range t.Subtasks {
			rows = append(rows, backend.SubtaskRow{ID: st.ID, Title: st.Title, Completed: st.Completed})
		}
		if err := db.ReplaceSubtasks(ctx, id, rows); err != nil {
			return 0, err
		}
	}

	for _, c := range t.Comments {
		if _, err := db.InsertComment(ctx, backend.CommentRow{
			ID:        c.ID,
			TaskID:    id,
			Author:    c.Author,
			Content:   c.Content,
			CreatedAt: c.CreatedAt,
		}); err != nil {
			return 0, err
		}
	}
	return len(t.Comments), nil
}
