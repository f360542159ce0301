package realtime

import (
	"context"
	"fmt"

	"github.com/taskboard/taskboard/internal/backend"
)

// HubSource subscribes to the in-process change hub of a backend. It sees
// every write made through the same *backend.DB, including this session's
// own writes.
type HubSource struct {
	hub    *backend.Hub
	buffer int
}

// NewHubSource wraps hub. buffer <= 0 uses the hub's default.
func NewHubSource(hub *backend.Hub, buffer int) *HubSource {
	return &HubSource{hub: hub, buffer: buffer}
}

func (h *HubSource) Name() string { return "hub" }

// Subscribe forwards hub events until ctx is done or the hub is closed.
func (h *HubSource) Subscribe(ctx context.Context) (<-chan Event, error) {
	if h.hub == nil {
		return nil, fmt.Errorf("hub source has no hub")
	}

	sub := h.hub.Subscribe(h.buffer)
	out := make(chan Event)

	go func() {
		defer close(out)
		defer sub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				select {
				case out <- fromChange(h.Name(), ev):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
