package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/coder/websocket"
)

// WebSocketConfig holds configuration for a WebSocketSource.
type WebSocketConfig struct {
	// Header is sent with the upgrade request (e.g. X-User-ID)
	Header http.Header

	// DialTimeout bounds each connection attempt including the hello frame
	DialTimeout time.Duration

	// ReconnectDelay is the first wait after a dropped connection. It doubles
	// up to MaxReconnectDelay.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration

	// Logger for connection activity
	Logger *log.Logger
}

// DefaultWebSocketConfig returns sensible defaults.
func DefaultWebSocketConfig() *WebSocketConfig {
	return &WebSocketConfig{
		DialTimeout:       10 * time.Second,
		ReconnectDelay:    500 * time.Millisecond,
		MaxReconnectDelay: 30 * time.Second,
		Logger:            log.New(os.Stderr, "[realtime] ", log.LstdFlags),
	}
}

// WebSocketSource follows a taskboard server's /realtime endpoint.
//
// The first connection must succeed and pass the protocol check, otherwise
// Subscribe fails. Later drops are retried with backoff; after each
// reconnect an AnyTable event is emitted because changes may have been
// missed while disconnected.
type WebSocketSource struct {
	url    string
	config *WebSocketConfig
}

// NewWebSocketSource creates a source for url (ws:// or wss://).
func NewWebSocketSource(url string, config *WebSocketConfig) *WebSocketSource {
	if config == nil {
		config = DefaultWebSocketConfig()
	}
	defaults := DefaultWebSocketConfig()
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = defaults.DialTimeout
	}
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = defaults.ReconnectDelay
	}
	if config.MaxReconnectDelay < config.ReconnectDelay {
		config.MaxReconnectDelay = config.ReconnectDelay
	}
	return &WebSocketSource{url: url, config: config}
}

func (w *WebSocketSource) Name() string { return "websocket" }

// Subscribe dials the server and forwards change frames.
func (w *WebSocketSource) Subscribe(ctx context.Context) (<-chan Event, error) {
	conn, err := w.connect(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan Event)
	go w.run(ctx, conn, out)
	return out, nil
}

// connect dials and completes the hello handshake.
func (w *WebSocketSource) connect(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, w.config.DialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, w.url, &websocket.DialOptions{
		HTTPHeader: w.config.Header,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", w.url, err)
	}

	_, data, err := conn.Read(dialCtx)
	if err != nil {
		_ = conn.Close(websocket.StatusProtocolError, "no hello")
		return nil, fmt.Errorf("failed to read hello: %w", err)
	}

	var hello Frame
	if err := json.Unmarshal(data, &hello); err != nil || hello.Type != FrameHello {
		_ = conn.Close(websocket.StatusProtocolError, "expected hello")
		return nil, fmt.Errorf("expected hello frame, got %q", data)
	}
	if err := CheckProtocol(hello.Protocol); err != nil {
		_ = conn.Close(websocket.StatusPolicyViolation, "protocol mismatch")
		return nil, err
	}

	w.config.Logger.Printf("Connected to %s (protocol %s)", w.url, hello.Protocol)
	return conn, nil
}

func (w *WebSocketSource) run(ctx context.Context, conn *websocket.Conn, out chan<- Event) {
	defer close(out)

	delay := w.config.ReconnectDelay
	for {
		err := w.readLoop(ctx, conn, out)
		_ = conn.Close(websocket.StatusNormalClosure, "")
		if ctx.Err() != nil {
			return
		}
		w.config.Logger.Printf("Connection lost: %v", err)

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			conn, err = w.connect(ctx)
			if err == nil {
				delay = w.config.ReconnectDelay
				break
			}
			w.config.Logger.Printf("Reconnect failed: %v", err)
			delay *= 2
			if delay > w.config.MaxReconnectDelay {
				delay = w.config.MaxReconnectDelay
			}
		}

		select {
		case out <- Event{Source: w.Name(), Table: AnyTable, At: time.Now()}:
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}

func (w *WebSocketSource) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- Event) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			w.config.Logger.Printf("Warning: ignoring malformed frame: %v", err)
			continue
		}
		if frame.Type != FrameChange || frame.Change == nil {
			continue
		}

		select {
		case out <- fromChange(w.Name(), *frame.Change):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
