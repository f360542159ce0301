package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/taskboard/taskboard/internal/backend"
	"github.com/taskboard/taskboard/internal/loadtest"
	"github.com/taskboard/taskboard/internal/ui"
)

var benchCmd = &cobra.Command{
	Use:     "bench",
	GroupID: "setup",
	Short:   "Load test concurrent clients and realtime convergence",
	Long: `Seed a scratch database, run concurrent clients that update statuses,
toggle subtasks, comment and reassign, and check that a follower kept in
sync by the reconciler ends up identical to a fresh fetch.

The scratch database is created in a temporary directory unless --db is
given; the configured database is never touched.

Example usage:
  tb bench
  tb bench --clients 50 --ops 40 --tasks 500`,
	Run: func(cmd *cobra.Command, args []string) {
		users, _ := cmd.Flags().GetInt("users")
		tasks, _ := cmd.Flags().GetInt("tasks")
		clients, _ := cmd.Flags().GetInt("clients")
		ops, _ := cmd.Flags().GetInt("ops")
		dsn, _ := cmd.Flags().GetString("db")

		if dsn == "" {
			dir, err := os.MkdirTemp("", "tb-bench-")
			if err != nil {
				fail("failed to create temp dir: %v", err)
			}
			defer os.RemoveAll(dir)
			dsn = filepath.Join(dir, "bench.db")
		}

		ctx := context.Background()
		db, err := backend.Open(dsn, &backend.Options{Logger: newLogger("backend")})
		if err != nil {
			fail("failed to open %s: %v", dsn, err)
		}
		defer db.Close()
		if err := db.InitSchema(ctx); err != nil {
			fail("failed to initialize schema: %v", err)
		}

		fmt.Printf("%s Seeding %d users and %d tasks...\n", ui.RenderAccent("→"), users, tasks)
		board, err := loadtest.Seed(ctx, db, users, tasks)
		if err != nil {
			fail("%v", err)
		}

		res, err := loadtest.Run(ctx, board, &loadtest.Options{
			Clients:      clients,
			OpsPerClient: ops,
			Realtime:     realtimeConfig(cfg),
			Logger:       newLogger("loadtest"),
		})
		if err != nil {
			fail("%v", err)
		}

		res.Print(os.Stdout)
		if !res.Converged {
			fmt.Fprintf(os.Stderr, "%s follower did not converge\n", ui.RenderFail("FAIL:"))
			os.Exit(1)
		}
		fmt.Printf("%s follower converged\n", ui.RenderPass("PASS:"))
	},
}

func init() {
	benchCmd.Flags().Int("users", 5, "Users to seed")
	benchCmd.Flags().Int("tasks", 100, "Tasks to seed")
	benchCmd.Flags().Int("clients", 10, "Concurrent clients")
	benchCmd.Flags().Int("ops", 20, "Mutations per client")
	benchCmd.Flags().String("db", "", "Database DSN to use instead of a temporary SQLite file")

	rootCmd.AddCommand(benchCmd)
}
