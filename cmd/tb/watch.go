package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskboard/taskboard/internal/backend"
	"github.com/taskboard/taskboard/internal/config"
	"github.com/taskboard/taskboard/internal/realtime"
	"github.com/taskboard/taskboard/internal/session"
	"github.com/taskboard/taskboard/internal/store"
	"github.com/taskboard/taskboard/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "sync",
	Short:   "Follow the board and print a line whenever it changes",
	Long: `Log in, load the board and keep it in sync with changes made by other
clients. A summary line is printed after every refetch.

By default changes are detected from this process and from writes to the
SQLite file by other processes. With --remote, changes are received from a
running 'tb serve' instead, which is how clients of a shared libSQL or
Postgres database follow each other.

Editing the config file while watching applies new realtime settings.

Example usage:
  tb watch --as u1
  tb watch --remote                                  # server.url from the config
  tb watch --remote --url ws://host:8080/realtime`,
	Run: func(cmd *cobra.Command, args []string) {
		remote := ""
		if useRemote, _ := cmd.Flags().GetBool("remote"); useRemote {
			remote = cfg.Server.URL
			if cmd.Flags().Changed("url") {
				remote, _ = cmd.Flags().GetString("url")
			}
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		db := openBackend(ctx)
		defer db.Close()

		w := &watcher{db: db, remote: remote}
		if err := w.start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer w.stop()

		if cfgFile != "" || v.ConfigFileUsed() != "" {
			config.Watch(v, newLogger("config"), func(c *config.Config) {
				if actorFlag != "" {
					c.Session.User = actorFlag
				}
				w.reload(ctx, c)
			})
		}

		fmt.Printf("Watching as %s. Press Ctrl+C to stop...\n", cfg.Session.User)
		<-ctx.Done()

		st := w.stats()
		fmt.Printf("\n%d events, %d refetches, %d failures, %d dropped\n",
			st.Received, st.Refetches, st.Failures, st.Dropped)
	},
}

// watcher owns the watch session and restarts it on config changes.
type watcher struct {
	db     *backend.DB
	remote string

	mu       sync.Mutex
	provider *session.Provider
	sess     *session.Session
	unsub    func()
}

func (w *watcher) sources() session.SourceFactory {
	if w.remote != "" {
		return remoteSources(w.remote)
	}
	return localSources(w.db)
}

func (w *watcher) start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.provider = newProvider(w.db, w.sources())
	if cfg.Session.User == "" {
		return fmt.Errorf("no user set (use --as or set session.user in the config)")
	}
	s, err := w.provider.Login(ctx, cfg.Session.User)
	if err != nil {
		return err
	}
	w.sess = s

	printSummary(s.Store.Snapshot())
	w.unsub = s.Store.Subscribe(func(snap store.Snapshot) {
		if !snap.Loading {
			printSummary(snap)
		}
	})
	return nil
}

func (w *watcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.unsub != nil {
		w.unsub()
		w.unsub = nil
	}
	if w.provider != nil {
		w.provider.Logout()
	}
}

func (w *watcher) stats() realtime.Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sess == nil {
		return realtime.Stats{}
	}
	return w.sess.Reconciler.Stats()
}

func (w *watcher) reload(ctx context.Context, c *config.Config) {
	w.stop()
	cfg = c
	if err := w.start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to restart after config change: %v\n", err)
		return
	}
	fmt.Printf("%s Config reloaded (debounce %v)\n", ui.RenderAccent("↻"), realtimeConfig(cfg).Debounce)
}

func printSummary(snap store.Snapshot) {
	line := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), ui.RenderStats(snap.Stats(time.Now())))
	if snap.Error != "" {
		line += "  " + ui.RenderFail("Error: "+snap.Error)
	}
	fmt.Println(line)
}

func init() {
	watchCmd.Flags().Bool("remote", false, "Follow a tb server instead of the local database")
	watchCmd.Flags().String("url", "", "Realtime WebSocket URL of the server (default: server.url)")

	rootCmd.AddCommand(watchCmd)
}
