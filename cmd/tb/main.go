// Command tb is the taskboard CLI: it manages the task database, serves the
// HTTP/WebSocket API and shows a live board that follows remote changes.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/taskboard/taskboard/internal/backend"
	"github.com/taskboard/taskboard/internal/config"
	"github.com/taskboard/taskboard/internal/realtime"
	"github.com/taskboard/taskboard/internal/session"
	"github.com/taskboard/taskboard/internal/store"
)

var (
	cfgFile   string
	actorFlag string
	verbose   bool

	v         = viper.New()
	cfg       *config.Config
	logWriter io.Writer = io.Discard
)

var rootCmd = &cobra.Command{
	Use:   "tb",
	Short: "Team task board with realtime sync",
	Long: `tb manages a shared task board stored in SQLite, libSQL/Turso or Postgres.

Every client keeps a local copy of the board and refetches it when another
client changes the database, so all views converge without manual refresh.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		c, err := config.Load(v, cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if actorFlag != "" {
			c.Session.User = actorFlag
		}
		cfg = c
		logWriter = cfg.Log.LogWriter(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ./taskboard.toml)")
	rootCmd.PersistentFlags().StringVar(&actorFlag, "as", "", "Act as this user ID (overrides session.user)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr")

	rootCmd.AddGroup(
		&cobra.Group{ID: "tasks", Title: "Working With Tasks:"},
		&cobra.Group{ID: "sync", Title: "Realtime Sync:"},
		&cobra.Group{ID: "setup", Title: "Setup & Maintenance:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(component string) *log.Logger {
	return config.NewLogger(logWriter, component)
}

// requestContext bounds one-shot commands by request_timeout.
func requestContext() (context.Context, context.CancelFunc) {
	if cfg.RequestTimeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), cfg.RequestTimeout)
}

// openBackend opens the configured database and makes sure the schema exists.
func openBackend(ctx context.Context) *backend.DB {
	db, err := backend.Open(cfg.Database.DSN, &backend.Options{
		WASMMemoryPages: cfg.Database.WASMMemoryPages,
		HubBuffer:       cfg.Realtime.QueueSize,
		Logger:          newLogger("backend"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open database: %v\n", err)
		os.Exit(1)
	}
	if err := db.InitSchema(ctx); err != nil {
		db.Close()
		fmt.Fprintf(os.Stderr, "Error: failed to initialize schema: %v\n", err)
		os.Exit(1)
	}
	return db
}

// realtimeConfig maps the realtime config section onto the reconciler.
func realtimeConfig(c *config.Config) *realtime.Config {
	rc := realtime.DefaultConfig()
	rc.Logger = newLogger("realtime")
	if c.Realtime.Debounce > 0 {
		rc.Debounce = c.Realtime.Debounce
		if rc.MaxWait < 10*rc.Debounce {
			rc.MaxWait = 10 * rc.Debounce
		}
	}
	if c.Realtime.QueueSize > 0 {
		rc.QueueSize = c.Realtime.QueueSize
	}
	if len(c.Realtime.Tables) > 0 {
		rc.Tables = c.Realtime.Tables
	}
	return rc
}

// newProvider builds a session provider. sources may be nil for one-shot
// commands that don't follow remote changes.
func newProvider(db *backend.DB, sources session.SourceFactory) *session.Provider {
	return session.NewProvider(db, &session.Config{
		Sources:     sources,
		Realtime:    realtimeConfig(cfg),
		Logger:      newLogger("session"),
		StoreLogger: newLogger("store"),
	})
}

// localSources follows the database through the in-process hub plus the
// file itself, so writes from other tb processes on the same SQLite file
// are seen too.
func localSources(db *backend.DB) session.SourceFactory {
	return func() ([]realtime.Source, error) {
		sources := []realtime.Source{realtime.NewHubSource(db.Hub(), cfg.Realtime.QueueSize)}
		if db.Path() != "" {
			sources = append(sources, realtime.NewFileSource(db.Path(), newLogger("realtime")))
		}
		return sources, nil
	}
}

// remoteSources follows a running `tb serve` over its /realtime endpoint.
func remoteSources(url string) session.SourceFactory {
	return func() ([]realtime.Source, error) {
		wc := realtime.DefaultWebSocketConfig()
		wc.Logger = newLogger("websocket")
		return []realtime.Source{realtime.NewWebSocketSource(url, wc)}, nil
	}
}

// mustLogin logs the configured user in or exits.
func mustLogin(ctx context.Context, p *session.Provider) *session.Session {
	if cfg.Session.User == "" {
		fmt.Fprintf(os.Stderr, "Error: no user set (use --as or set session.user in the config)\n")
		os.Exit(1)
	}
	s, err := p.Login(ctx, cfg.Session.User)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, session.ErrUnknownUser) {
			fmt.Fprintf(os.Stderr, "Hint: add the user with 'tb user add %s --name ... --email ...'\n", cfg.Session.User)
		}
		os.Exit(1)
	}
	return s
}

// readStore returns a loaded store for read-only commands. It uses the
// configured user when set and an anonymous store otherwise.
func readStore(ctx context.Context, db *backend.DB) *store.Store {
	st := store.New(db, &store.Config{Actor: cfg.Session.User, Logger: newLogger("store")})
	if err := st.FetchAll(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load tasks: %v\n", err)
		os.Exit(1)
	}
	return st
}

func fail(format string, a ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", a...)
	os.Exit(1)
}

func since(start time.Time) time.Duration {
	return time.Since(start).Round(time.Millisecond)
}
