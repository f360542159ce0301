package realtime

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/taskboard/taskboard/internal/backend"
)

// DefaultTables are the tables whose changes trigger a refetch.
var DefaultTables = []string{
	backend.TableTasks,
	backend.TableComments,
	backend.TableSubtasks,
	backend.TableAssignees,
	backend.TableTags,
	backend.TableUsers,
	backend.TableWorkspaces,
}

// Config holds configuration for the reconciler.
type Config struct {
	// QueueSize bounds the event queue between sources and the consumer
	QueueSize int

	// Debounce is how long the queue must stay quiet before a refetch.
	// Events arriving inside the window extend it, up to MaxWait.
	Debounce time.Duration

	// MaxWait caps how long a steady stream of events can delay a refetch
	MaxWait time.Duration

	// Tables filters events; AnyTable events always pass
	Tables []string

	// Logger for reconciler activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		QueueSize: 64,
		Debounce:  100 * time.Millisecond,
		MaxWait:   time.Second,
		Tables:    append([]string{}, DefaultTables...),
		Logger:    log.New(os.Stderr, "[realtime] ", log.LstdFlags),
	}
}

// Stats counts reconciler activity.
type Stats struct {
	Received    uint64    `json:"received"`
	Filtered    uint64    `json:"filtered"`
	Dropped     uint64    `json:"dropped"`
	Refetches   uint64    `json:"refetches"`
	Failures    uint64    `json:"failures"`
	LastRefetch time.Time `json:"last_refetch,omitempty"`
}

// Reconciler turns change events into debounced refetches.
//
// Exactly one goroutine calls FetchAll, so refetches never overlap. When
// the queue is full an incoming event is dropped and a pending flag is set
// instead; the consumer checks the flag after every refetch, so a dropped
// event still causes one more refetch.
type Reconciler struct {
	refetcher Refetcher
	sources   []Source
	config    *Config
	tables    map[string]bool

	queue   chan Event
	pending atomic.Bool

	received  atomic.Uint64
	filtered  atomic.Uint64
	dropped   atomic.Uint64
	refetches atomic.Uint64
	failures  atomic.Uint64
	lastFetch atomic.Int64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a reconciler that refreshes r from the given sources.
// Use Start to begin.
func New(r Refetcher, sources []Source, config *Config) (*Reconciler, error) {
	if r == nil {
		return nil, fmt.Errorf("refetcher cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.Debounce <= 0 {
		config.Debounce = defaults.Debounce
	}
	if config.MaxWait < config.Debounce {
		config.MaxWait = 10 * config.Debounce
	}
	if len(config.Tables) == 0 {
		config.Tables = defaults.Tables
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	tables := make(map[string]bool, len(config.Tables))
	for _, t := range config.Tables {
		tables[t] = true
	}

	return &Reconciler{
		refetcher: r,
		sources:   sources,
		config:    config,
		tables:    tables,
		queue:     make(chan Event, config.QueueSize),
	}, nil
}

// Start subscribes to every source and starts the consumer. It returns once
// all sources are subscribed; if any fails, the ones already started are
// torn down and the error returned.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("reconciler already running")
	}

	runCtx, cancel := context.WithCancel(ctx)

	streams := make([]<-chan Event, 0, len(r.sources))
	for _, src := range r.sources {
		ch, err := src.Subscribe(runCtx)
		if err != nil {
			cancel()
			return fmt.Errorf("failed to subscribe to %s: %w", src.Name(), err)
		}
		streams = append(streams, ch)
		r.config.Logger.Printf("Subscribed to %s", src.Name())
	}

	r.cancel = cancel
	r.running = true

	for _, ch := range streams {
		r.wg.Add(1)
		go r.forward(runCtx, ch)
	}
	r.wg.Add(1)
	go r.consume(runCtx)

	return nil
}

// Stop cancels every subscription and waits for the consumer to exit.
// A refetch in progress is cancelled through its context.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel := r.cancel
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
	r.config.Logger.Println("Reconciler stopped")
}

// Trigger requests a refetch as if a change event had arrived.
func (r *Reconciler) Trigger() {
	r.enqueue(Event{Source: "manual", Table: AnyTable, At: time.Now()})
}

// Stats returns a copy of the counters.
func (r *Reconciler) Stats() Stats {
	s := Stats{
		Received:  r.received.Load(),
		Filtered:  r.filtered.Load(),
		Dropped:   r.dropped.Load(),
		Refetches: r.refetches.Load(),
		Failures:  r.failures.Load(),
	}
	if ns := r.lastFetch.Load(); ns != 0 {
		s.LastRefetch = time.Unix(0, ns)
	}
	return s
}

// forward moves events from one source into the queue.
func (r *Reconciler) forward(ctx context.Context, ch <-chan Event) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			r.enqueue(ev)
		}
	}
}

func (r *Reconciler) enqueue(ev Event) {
	r.received.Add(1)

	if ev.Table != AnyTable && !r.tables[ev.Table] {
		r.filtered.Add(1)
		return
	}

	select {
	case r.queue <- ev:
	default:
		r.pending.Store(true)
		if r.dropped.Add(1) == 1 {
			r.config.Logger.Printf("Warning: event queue full, dropping %s event from %s", ev.Table, ev.Source)
		}
	}
}

// consume is the single consumer: wait for an event, debounce, refetch.
func (r *Reconciler) consume(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.queue:
		}

		if !r.debounce(ctx) {
			return
		}

		for {
			r.pending.Store(false)
			r.drain()
			r.refetch(ctx)
			if ctx.Err() != nil {
				return
			}
			if !r.pending.Load() {
				break
			}
		}
	}
}

// debounce waits until no event has arrived for Debounce, or MaxWait has
// passed since the first one. It returns false if ctx is cancelled.
func (r *Reconciler) debounce(ctx context.Context) bool {
	quiet := time.NewTimer(r.config.Debounce)
	defer quiet.Stop()
	deadline := time.NewTimer(r.config.MaxWait)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return true
		case <-quiet.C:
			return true
		case <-r.queue:
			if !quiet.Stop() {
				select {
				case <-quiet.C:
				default:
				}
			}
			quiet.Reset(r.config.Debounce)
		}
	}
}

// drain empties the queue without blocking. Everything in it is covered by
// the refetch that follows.
func (r *Reconciler) drain() {
	for {
		select {
		case <-r.queue:
		default:
			return
		}
	}
}

func (r *Reconciler) refetch(ctx context.Context) {
	start := time.Now()
	err := r.refetcher.FetchAll(ctx)
	r.refetches.Add(1)
	r.lastFetch.Store(time.Now().UnixNano())

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.failures.Add(1)
		r.config.Logger.Printf("Refetch failed: %v", err)
		return
	}
	r.config.Logger.Printf("Refetched in %v", time.Since(start).Round(time.Millisecond))
}
