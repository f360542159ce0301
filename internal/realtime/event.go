// Package realtime keeps a store eventually consistent with changes made by
// other clients.
//
// Sources push change notifications into a bounded queue. A single consumer
// drains the queue, collapses bursts inside a debounce window, and asks the
// store for one full refetch per burst. Events are triggers only: they carry
// no row data and are never applied as deltas.
package realtime

import (
	"context"
	"time"

	"github.com/taskboard/taskboard/internal/backend"
)

// AnyTable marks an event whose table is unknown, such as a database file
// write seen by FileSource or a reconnect. It always passes the table filter.
const AnyTable = "*"

// Event is a change notification from a Source.
type Event struct {
	Source string
	Table  string
	Op     backend.Op
	RowID  string
	At     time.Time
}

func fromChange(source string, ev backend.ChangeEvent) Event {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	return Event{
		Source: source,
		Table:  ev.Table,
		Op:     ev.Op,
		RowID:  ev.RowID,
		At:     at,
	}
}

// Source produces change events until ctx is cancelled, then closes the
// channel. A Source that fails to connect returns an error from Subscribe.
type Source interface {
	Name() string
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// Refetcher reloads everything. *store.Store implements it.
type Refetcher interface {
	FetchAll(ctx context.Context) error
}
