// Package backend is the relational backend the task store reads from and
// writes through.
//
// It owns the SQL schema (users, workspaces, tasks and the tables that hang
// off tasks), exposes generic select/insert/update/delete operations, and
// publishes a ChangeEvent on its Hub after every committed write so that
// realtime subscribers can tell other clients to refetch.
//
// Three drivers are supported, chosen by DSN:
//   - file:<path> or a bare path: embedded SQLite (ncruces/go-sqlite3, WAL)
//   - libsql://, https://: remote libSQL / Turso (tursodatabase/go-libsql)
//   - postgres://, postgresql://: Postgres (jackc/pgx stdlib)
package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/taskboard/taskboard/internal/model"
)

// Table names, also used as ChangeEvent.Table.
const (
	TableUsers      = "users"
	TableWorkspaces = "workspaces"
	TableTasks      = "tasks"
	TableComments   = "comments"
	TableSubtasks   = "subtasks"
	TableAssignees  = "task_assignees"
	TableTags       = "task_tags"
)

// ErrNotFound is returned when an update targets a row that doesn't exist.
var ErrNotFound = errors.New("not found")

type dialect int

const (
	dialectSQLite dialect = iota
	dialectLibSQL
	dialectPostgres
)

func (d dialect) String() string {
	switch d {
	case dialectSQLite:
		return "sqlite"
	case dialectLibSQL:
		return "libsql"
	case dialectPostgres:
		return "postgres"
	default:
		return "unknown"
	}
}

// Options configures Open.
type Options struct {
	// WASMMemoryPages caps the memory of the embedded SQLite runtime in
	// 64KiB pages (0 = driver default). Only applies to the first SQLite
	// database opened by the process.
	WASMMemoryPages uint32

	// HubBuffer is the default per-subscriber buffer of the change hub.
	HubBuffer int

	// Logger for backend activity (default: stderr with "[backend] " prefix)
	Logger *log.Logger
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		HubBuffer: 64,
		Logger:    log.New(os.Stderr, "[backend] ", log.LstdFlags),
	}
}

// DB wraps the SQL connection and the change hub.
type DB struct {
	conn    *sql.DB
	dialect dialect
	path    string
	hub     *Hub
	logger  *log.Logger
}

var runtimeOnce sync.Once

// Open connects to the backend named by dsn.
//
// For SQLite the parent directory is created, and WAL, a 5s busy timeout
// and foreign keys are enabled on every pooled connection so that deletes
// cascade.
//
// The caller MUST call Close() when done.
func Open(dsn string, opts *Options) (*DB, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Logger == nil {
		opts.Logger = DefaultOptions().Logger
	}
	if opts.HubBuffer <= 0 {
		opts.HubBuffer = 64
	}

	d, driverName, connStr, path, err := resolveDSN(dsn)
	if err != nil {
		return nil, err
	}

	if d == dialectSQLite {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		if opts.WASMMemoryPages > 0 {
			runtimeOnce.Do(func() {
				sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithMemoryLimitPages(opts.WASMMemoryPages)
			})
		}
	}

	conn, err := sql.Open(driverName, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	opts.Logger.Printf("Opened %s backend", d)

	return &DB{
		conn:    conn,
		dialect: d,
		path:    path,
		hub:     NewHub(opts.HubBuffer, opts.Logger),
		logger:  opts.Logger,
	}, nil
}

// resolveDSN maps a user DSN to (dialect, driver name, driver DSN, file path).
func resolveDSN(dsn string) (dialect, string, string, string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return 0, "", "", "", fmt.Errorf("database dsn cannot be empty")
	}

	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return dialectPostgres, "pgx", dsn, "", nil
	case strings.HasPrefix(dsn, "libsql://"), strings.HasPrefix(dsn, "https://"), strings.HasPrefix(dsn, "http://"):
		return dialectLibSQL, "libsql", dsn, "", nil
	}

	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	connStr := "file:" + path +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)"
	return dialectSQLite, "sqlite3", connStr, path, nil
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Path returns the database file path, or "" for remote backends.
func (db *DB) Path() string {
	return db.path
}

// Hub returns the change-notification hub for this backend.
func (db *DB) Hub() *Hub {
	return db.hub
}

// Close closes the hub and the database connection.
// For SQLite a WAL checkpoint is performed first.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	db.hub.Close()

	if db.dialect == dialectSQLite {
		if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			db.logger.Printf("Warning: failed to checkpoint WAL: %v", err)
		}
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT '',
		department TEXT NOT NULL DEFAULT '',
		avatar TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS workspaces (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		color TEXT NOT NULL DEFAULT '',
		department TEXT NOT NULL DEFAULT '',
		type TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		status TEXT NOT NULL DEFAULT 'todo',
		priority TEXT NOT NULL DEFAULT 'medium',
		due_date TEXT,
		created_by TEXT NOT NULL,
		workspace_id TEXT REFERENCES workspaces(id) ON DELETE SET NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS comments (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		author TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS subtasks (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0,
		position INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS task_assignees (
		task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TEXT NOT NULL,
		PRIMARY KEY (task_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS task_tags (
		task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		tag TEXT NOT NULL,
		PRIMARY KEY (task_id, tag)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_workspace ON tasks(workspace_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(due_date)`,
	`CREATE INDEX IF NOT EXISTS idx_comments_task ON comments(task_id)`,
	`CREATE INDEX IF NOT EXISTS idx_subtasks_task ON subtasks(task_id)`,
	`CREATE INDEX IF NOT EXISTS idx_assignees_user ON task_assignees(user_id)`,
}

// InitSchema creates the tables if they don't exist. Idempotent.
func (db *DB) InitSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (db *DB) rebind(query string) string {
	if db.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// publish notifies subscribers of a committed change.
func (db *DB) publish(table string, op Op, rowID string) {
	db.hub.Publish(ChangeEvent{
		Table: table,
		Op:    op,
		RowID: rowID,
		At:    time.Now().UTC(),
	})
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: model.FormatTimestamp(*t), Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
