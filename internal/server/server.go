// Package server exposes a taskboard backend over HTTP.
//
// REST routes under /api operate on the store of the caller's session: the
// X-User-ID header names the user, and each user gets one session (store
// plus reconciler) for the server's lifetime. Requests without the header
// use an anonymous store, which can read and update but not author tasks or
// comments.
//
// /realtime is a WebSocket that sends a hello frame with the protocol
// version, then one change frame per committed backend write.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/singleflight"

	"github.com/taskboard/taskboard/internal/backend"
	"github.com/taskboard/taskboard/internal/realtime"
	"github.com/taskboard/taskboard/internal/session"
	"github.com/taskboard/taskboard/internal/store"
)

// UserHeader carries the acting user's ID.
const UserHeader = "X-User-ID"

// Backend is the backend the server serves.
type Backend interface {
	session.Backend
	Hub() *backend.Hub
}

// Config holds server configuration.
type Config struct {
	// Port to listen on (default: 8080, 0 picks a free port)
	Port int

	// Realtime configures the per-session reconcilers
	Realtime *realtime.Config

	// BroadcastBuffer bounds the /realtime fan-out queue
	BroadcastBuffer int

	// Logger for server activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:            8080,
		BroadcastBuffer: 256,
		Logger:          log.New(os.Stderr, "[server] ", log.LstdFlags),
	}
}

// Server serves the REST API and the realtime WebSocket.
type Server struct {
	backend Backend
	config  *Config
	logger  *log.Logger
	engine  *gin.Engine

	listener net.Listener
	http     *http.Server

	anon      *store.Store
	anonRec   *realtime.Reconciler
	sessions  map[string]*userSession
	sessionMu sync.Mutex
	logins    singleflight.Group

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex
	changes   *backend.Subscription

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type userSession struct {
	provider *session.Provider
	session  *session.Session
}

// New creates a server over b. Call Start to listen, or use Handler with
// an httptest server.
func New(b Backend, config *Config) (*Server, error) {
	if b == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}
	if config.BroadcastBuffer <= 0 {
		config.BroadcastBuffer = DefaultConfig().BroadcastBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		backend:  b,
		config:   config,
		logger:   config.Logger,
		sessions: make(map[string]*userSession),
		clients:  make(map[*websocket.Conn]bool),
		ctx:      ctx,
		cancel:   cancel,
	}

	s.anon = store.New(b, &store.Config{Logger: config.Logger})
	if err := s.anon.FetchAll(ctx); err != nil {
		s.logger.Printf("Warning: initial fetch failed: %v", err)
	}
	rec, err := realtime.New(s.anon, []realtime.Source{realtime.NewHubSource(b.Hub(), 0)}, s.realtimeConfig())
	if err != nil {
		cancel()
		return nil, err
	}
	if err := rec.Start(ctx); err != nil {
		cancel()
		return nil, err
	}
	s.anonRec = rec

	s.changes = b.Hub().Subscribe(config.BroadcastBuffer)
	s.wg.Add(1)
	go s.broadcastLoop()

	s.engine = s.routes()
	return s, nil
}

func (s *Server) realtimeConfig() *realtime.Config {
	if s.config.Realtime == nil {
		c := realtime.DefaultConfig()
		c.Logger = s.logger
		return c
	}
	c := *s.config.Realtime
	return &c
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on the configured port and serves in the background.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln

	s.http = &http.Server{
		Handler:     s.engine,
		ReadTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Listening on %s", ln.Addr())
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop closes WebSocket clients, shuts down HTTP, and ends every session.
func (s *Server) Stop() error {
	s.logger.Println("Stopping server")
	s.cancel()
	s.changes.Close()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	var shutdownErr error
	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()

	s.anonRec.Stop()
	s.sessionMu.Lock()
	for id, us := range s.sessions {
		us.provider.Logout()
		delete(s.sessions, id)
	}
	s.sessionMu.Unlock()

	s.logger.Println("Server stopped")
	return shutdownErr
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return fmt.Sprintf(":%d", s.config.Port)
}

// storeFor returns the store for userID, opening a session on first use.
// An empty userID gets the anonymous store. Concurrent first requests for
// the same user share one login; logins for different users run in parallel.
func (s *Server) storeFor(ctx context.Context, userID string) (*store.Store, error) {
	if userID == "" {
		return s.anon, nil
	}
	if st, ok := s.cachedStore(userID); ok {
		return st, nil
	}

	v, err, _ := s.logins.Do(userID, func() (any, error) {
		if st, ok := s.cachedStore(userID); ok {
			return st, nil
		}

		hub := s.backend.Hub()
		p := session.NewProvider(s.backend, &session.Config{
			Sources: func() ([]realtime.Source, error) {
				return []realtime.Source{realtime.NewHubSource(hub, 0)}, nil
			},
			Realtime:    s.realtimeConfig(),
			Logger:      s.logger,
			StoreLogger: s.logger,
		})
		// Waiters share this login, so one caller's cancellation must not fail it.
		sess, err := p.Login(context.WithoutCancel(ctx), userID)
		if err != nil {
			return nil, err
		}

		s.sessionMu.Lock()
		defer s.sessionMu.Unlock()
		if s.ctx.Err() != nil {
			p.Logout()
			return nil, fmt.Errorf("server is stopping")
		}
		s.sessions[userID] = &userSession{provider: p, session: sess}
		return sess.Store, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*store.Store), nil
}

func (s *Server) cachedStore(userID string) (*store.Store, bool) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	if us, ok := s.sessions[userID]; ok {
		return us.session.Store, true
	}
	return nil, false
}

// SessionCount returns the number of open user sessions.
func (s *Server) SessionCount() int {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	return len(s.sessions)
}
