// Package session owns the lifecycle of the per-user store.
//
// A Provider builds one Store and its Reconciler when a user logs in and
// tears both down on logout. Consumers reach the active session through a
// context.Context; asking for it outside a session scope is an error, never
// a zero value.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/taskboard/taskboard/internal/backend"
	"github.com/taskboard/taskboard/internal/model"
	"github.com/taskboard/taskboard/internal/realtime"
	"github.com/taskboard/taskboard/internal/store"
)

var (
	// ErrNoSession is returned when a consumer runs outside a session scope.
	ErrNoSession = errors.New("no session in context: wrap the caller with session.WithSession")

	// ErrSessionActive is returned by Login while another session is open.
	ErrSessionActive = errors.New("a session is already active; log out first")

	// ErrUnknownUser is returned by Login for a user the backend doesn't know.
	ErrUnknownUser = errors.New("unknown user")
)

// Backend is what a session needs from the backend: the store's operations
// plus user lookup for login.
type Backend interface {
	store.Backend
	GetUser(ctx context.Context, id string) (*model.User, error)
}

// SourceFactory returns the change sources for a new session.
type SourceFactory func() ([]realtime.Source, error)

// Config holds configuration for the provider.
type Config struct {
	// Sources builds change sources per session (nil: no realtime)
	Sources SourceFactory

	// Realtime configures each session's reconciler (nil: defaults)
	Realtime *realtime.Config

	// Logger for session activity
	Logger *log.Logger

	// StoreLogger is handed to each session's store (default: Logger)
	StoreLogger *log.Logger

	// Now is the store clock (default: time.Now)
	Now func() time.Time
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Logger: log.New(os.Stderr, "[session] ", log.LstdFlags),
		Now:    time.Now,
	}
}

// Session is one logged-in user's store and reconciler.
type Session struct {
	User       model.User
	Store      *store.Store
	Reconciler *realtime.Reconciler
}

// Provider creates and tears down sessions. At most one is active.
type Provider struct {
	backend Backend
	config  *Config

	mu      sync.Mutex
	current *Session
}

// NewProvider creates a provider over b.
func NewProvider(b Backend, config *Config) *Provider {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}
	if config.StoreLogger == nil {
		config.StoreLogger = config.Logger
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Provider{backend: b, config: config}
}

// Login opens a session for userID: it builds the store, runs the initial
// fetch and starts the reconciler.
//
// A failed initial fetch does not fail the login; the error is visible in
// the store snapshot and the next change event retries it.
func (p *Provider) Login(ctx context.Context, userID string) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil {
		return nil, ErrSessionActive
	}
	if userID == "" {
		return nil, fmt.Errorf("user ID is required: %w", store.ErrNotAuthenticated)
	}

	user, err := p.backend.GetUser(ctx, userID)
	if errors.Is(err, backend.ErrNotFound) {
		return nil, fmt.Errorf("%w %s", ErrUnknownUser, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user %s: %w", userID, err)
	}

	st := store.New(p.backend, &store.Config{
		Actor:  user.ID,
		Logger: p.config.StoreLogger,
		Now:    p.config.Now,
	})
	if err := st.FetchAll(ctx); err != nil {
		p.config.Logger.Printf("Warning: initial fetch for %s failed: %v", user.ID, err)
	}

	var sources []realtime.Source
	if p.config.Sources != nil {
		sources, err = p.config.Sources()
		if err != nil {
			return nil, fmt.Errorf("failed to create change sources: %w", err)
		}
	}

	var rtConfig *realtime.Config
	if p.config.Realtime != nil {
		c := *p.config.Realtime
		rtConfig = &c
	}
	rec, err := realtime.New(st, sources, rtConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create reconciler: %w", err)
	}
	// The reconciler outlives the login request; Logout stops it.
	if err := rec.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to start reconciler: %w", err)
	}

	p.current = &Session{User: *user, Store: st, Reconciler: rec}
	p.config.Logger.Printf("Logged in as %s (%s)", user.Name, user.ID)
	return p.current, nil
}

// Logout stops the active session's reconciler and drops its store.
// It is a no-op without an active session.
func (p *Provider) Logout() {
	p.mu.Lock()
	s := p.current
	p.current = nil
	p.mu.Unlock()

	if s == nil {
		return
	}
	s.Reconciler.Stop()
	p.config.Logger.Printf("Logged out %s", s.User.ID)
}

// Current returns the active session, or ErrNoSession.
func (p *Provider) Current() (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil, ErrNoSession
	}
	return p.current, nil
}

type contextKey struct{}

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session carried by ctx, or ErrNoSession.
func FromContext(ctx context.Context) (*Session, error) {
	s, ok := ctx.Value(contextKey{}).(*Session)
	if !ok || s == nil {
		return nil, ErrNoSession
	}
	return s, nil
}

// MustFromContext is FromContext for wiring code that can't continue
// without a session. It panics with ErrNoSession.
func MustFromContext(ctx context.Context) *Session {
	s, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return s
}
