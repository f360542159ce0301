package realtime

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/taskboard/taskboard/internal/backend"
)

// FileSource watches a SQLite database file so that writes by other
// processes sharing the file trigger a refetch.
//
// The parent directory is watched rather than the file itself, since the
// -wal and -journal sidecars come and go. Only Write and Create events on
// the database or its sidecars are reported, as AnyTable events.
type FileSource struct {
	path   string
	logger *log.Logger
}

// NewFileSource creates a source for the database file at path.
func NewFileSource(path string, logger *log.Logger) *FileSource {
	if logger == nil {
		logger = log.New(os.Stderr, "[realtime] ", log.LstdFlags)
	}
	return &FileSource{path: path, logger: logger}
}

func (f *FileSource) Name() string { return "file" }

// Subscribe starts the watcher. It fails if the directory can't be watched.
func (f *FileSource) Subscribe(ctx context.Context) (<-chan Event, error) {
	if f.path == "" {
		return nil, fmt.Errorf("file source has no database path")
	}
	abs, err := filepath.Abs(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", f.path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	names := map[string]bool{
		abs:              true,
		abs + "-wal":     true,
		abs + "-journal": true,
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !names[event.Name] || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				ev := Event{Source: f.Name(), Table: AnyTable, Op: backend.OpUpdate, At: time.Now()}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				f.logger.Printf("Watcher error: %v", err)
			}
		}
	}()

	return out, nil
}
