package session

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/taskboard/taskboard/internal/backend"
	"github.com/taskboard/taskboard/internal/model"
	"github.com/taskboard/taskboard/internal/realtime"
	"github.com/taskboard/taskboard/internal/store"
)

func setupProvider(t *testing.T) (*Provider, *backend.DB) {
	t.Helper()
	ctx := context.Background()
	quiet := log.New(io.Discard, "", 0)

	opts := backend.DefaultOptions()
	opts.Logger = quiet
	db, err := backend.Open(filepath.Join(t.TempDir(), "tasks.db"), opts)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	if err := db.UpsertUser(ctx, &model.User{ID: "u1", Name: "Ada", Email: "ada@example.com"}); err != nil {
		t.Fatalf("UpsertUser() failed: %v", err)
	}

	rt := realtime.DefaultConfig()
	rt.Debounce = 20 * time.Millisecond
	rt.Logger = quiet

	p := NewProvider(db, &Config{
		Sources: func() ([]realtime.Source, error) {
			return []realtime.Source{realtime.NewHubSource(db.Hub(), 0)}, nil
		},
		Realtime: rt,
		Logger:   quiet,
	})
	t.Cleanup(p.Logout)
	return p, db
}

func TestLoginLogout(t *testing.T) {
	p, _ := setupProvider(t)
	ctx := context.Background()

	if _, err := p.Current(); !errors.Is(err, ErrNoSession) {
		t.Errorf("Current() before login = %v, want ErrNoSession", err)
	}

	s, err := p.Login(ctx, "u1")
	if err != nil {
		t.Fatalf("Login() failed: %v", err)
	}
	if s.User.Name != "Ada" || s.Store.Actor() != "u1" {
		t.Errorf("session = %+v", s.User)
	}
	if len(s.Store.Snapshot().Users) != 1 {
		t.Error("initial fetch did not run")
	}

	if _, err := p.Login(ctx, "u1"); !errors.Is(err, ErrSessionActive) {
		t.Errorf("second Login() = %v, want ErrSessionActive", err)
	}

	p.Logout()
	if _, err := p.Current(); !errors.Is(err, ErrNoSession) {
		t.Errorf("Current() after logout = %v, want ErrNoSession", err)
	}
	p.Logout()

	if _, err := p.Login(ctx, "u1"); err != nil {
		t.Fatalf("Login() after logout failed: %v", err)
	}
}

func TestLogin_Rejects(t *testing.T) {
	p, _ := setupProvider(t)
	ctx := context.Background()

	if _, err := p.Login(ctx, ""); !errors.Is(err, store.ErrNotAuthenticated) {
		t.Errorf("Login(\"\") = %v, want ErrNotAuthenticated", err)
	}
	if _, err := p.Login(ctx, "ghost"); !errors.Is(err, ErrUnknownUser) {
		t.Errorf("Login(ghost) = %v, want ErrUnknownUser", err)
	}
	if _, err := p.Current(); err == nil {
		t.Error("failed login left a session behind")
	}
}

func TestLogin_BackendFailureIsNotUnknownUser(t *testing.T) {
	p, db := setupProvider(t)
	db.RawDB().Close()

	_, err := p.Login(context.Background(), "u1")
	if err == nil {
		t.Fatal("Login() on a closed database should fail")
	}
	if errors.Is(err, ErrUnknownUser) {
		t.Errorf("Login() = %v, want a backend error, not ErrUnknownUser", err)
	}
	if _, err := p.Current(); err == nil {
		t.Error("failed login left a session behind")
	}
}

func TestLogin_SourceFactoryError(t *testing.T) {
	p, _ := setupProvider(t)
	p.config.Sources = func() ([]realtime.Source, error) { return nil, errors.New("no network") }

	if _, err := p.Login(context.Background(), "u1"); err == nil {
		t.Fatal("Login() should fail when sources can't be created")
	}
	if _, err := p.Current(); err == nil {
		t.Error("failed login left a session behind")
	}
}

func TestSession_ReconcilesWrites(t *testing.T) {
	p, db := setupProvider(t)
	ctx := context.Background()

	s, err := p.Login(ctx, "u1")
	if err != nil {
		t.Fatalf("Login() failed: %v", err)
	}

	other := store.New(db, &store.Config{Actor: "u1", Logger: log.New(io.Discard, "", 0)})
	if _, err := other.CreateTask(ctx, model.TaskInput{Title: "Elsewhere"}); err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for len(s.Store.Snapshot().Tasks) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("session store never saw the remote write")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestFromContext(t *testing.T) {
	if _, err := FromContext(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Errorf("FromContext(empty) = %v, want ErrNoSession", err)
	}

	s := &Session{User: model.User{ID: "u1"}}
	ctx := WithSession(context.Background(), s)
	got, err := FromContext(ctx)
	if err != nil || got != s {
		t.Errorf("FromContext() = %v, %v", got, err)
	}

	if _, err := FromContext(WithSession(context.Background(), nil)); !errors.Is(err, ErrNoSession) {
		t.Errorf("FromContext(nil session) = %v, want ErrNoSession", err)
	}
}

func TestMustFromContext_Panics(t *testing.T) {
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrNoSession) {
			t.Errorf("recovered %v, want ErrNoSession", r)
		}
	}()
	MustFromContext(context.Background())
	t.Error("MustFromContext() did not panic")
}
