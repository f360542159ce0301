package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/taskboard/taskboard/internal/backend"
)

func TestCheckProtocol(t *testing.T) {
	tests := []struct {
		remote  string
		wantErr bool
	}{
		{remote: ProtocolVersion},
		{remote: "v1.0.0"},
		{remote: "v1.9.3"},
		{remote: "v2.0.0", wantErr: true},
		{remote: "v0.9.0", wantErr: true},
		{remote: "1.0.0", wantErr: true},
		{remote: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			err := CheckProtocol(tt.remote)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckProtocol(%q) error = %v, wantErr %v", tt.remote, err, tt.wantErr)
			}
		})
	}
}

func writeFrame(t *testing.T, conn *websocket.Conn, f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		t.Errorf("marshal frame: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = conn.Write(ctx, websocket.MessageText, data)
}

// fakeRealtimeServer sends hello with the given protocol, then one change
// frame per connection. If dropFirst is set the first connection is closed
// right after its change frame.
func fakeRealtimeServer(t *testing.T, protocol string, dropFirst bool) (*httptest.Server, *atomic.Int32) {
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		n := conns.Add(1)

		writeFrame(t, conn, Frame{Type: FrameHello, Protocol: protocol})
		writeFrame(t, conn, Frame{Type: FrameChange, Change: &backend.ChangeEvent{
			Table: backend.TableTasks, Op: backend.OpInsert, RowID: r.Header.Get("X-User-ID"),
		}})

		if dropFirst && n == 1 {
			_ = conn.Close(websocket.StatusGoingAway, "restart")
			return
		}
		// Hold the connection until the client leaves.
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &conns
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testWSConfig() *WebSocketConfig {
	return &WebSocketConfig{
		Header:            http.Header{"X-User-ID": []string{"u7"}},
		DialTimeout:       2 * time.Second,
		ReconnectDelay:    10 * time.Millisecond,
		MaxReconnectDelay: 50 * time.Millisecond,
		Logger:            quietLogger(),
	}
}

func TestWebSocketSource_ForwardsChanges(t *testing.T) {
	srv, _ := fakeRealtimeServer(t, ProtocolVersion, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := NewWebSocketSource(wsURL(srv), testWSConfig()).Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}

	select {
	case ev := <-ch:
		if ev.Table != backend.TableTasks || ev.Source != "websocket" || ev.RowID != "u7" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	waitFor(t, 2*time.Second, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	})
}

func TestWebSocketSource_RejectsIncompatibleServer(t *testing.T) {
	srv, _ := fakeRealtimeServer(t, "v2.0.0", false)

	_, err := NewWebSocketSource(wsURL(srv), testWSConfig()).Subscribe(context.Background())
	if err == nil || !strings.Contains(err.Error(), "incompatible") {
		t.Errorf("Subscribe() error = %v, want incompatible protocol", err)
	}
}

func TestWebSocketSource_DialFailure(t *testing.T) {
	_, err := NewWebSocketSource("ws://127.0.0.1:1/realtime", testWSConfig()).Subscribe(context.Background())
	if err == nil {
		t.Error("Subscribe() to a closed port should fail")
	}
}

func TestWebSocketSource_ReconnectEmitsAnyTable(t *testing.T) {
	srv, conns := fakeRealtimeServer(t, ProtocolVersion, true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := NewWebSocketSource(wsURL(srv), testWSConfig()).Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}

	sawAny := false
	deadline := time.After(3 * time.Second)
	for !sawAny {
		select {
		case ev := <-ch:
			if ev.Table == AnyTable {
				sawAny = true
			}
		case <-deadline:
			t.Fatal("no reconnect event")
		}
	}
	if conns.Load() < 2 {
		t.Errorf("connections = %d, want a reconnect", conns.Load())
	}
}
