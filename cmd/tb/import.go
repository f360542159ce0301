package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskboard/taskboard/internal/migrate"
	"github.com/taskboard/taskboard/internal/ui"
)

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "setup",
	Short:   "Import a board written by 'tb export'",
	Long: `Import users, workspaces and tasks from a JSON or YAML export.

IDs and timestamps are preserved, so exporting from one database and
importing into another moves a board between SQLite, libSQL and Postgres.
Tasks that already exist are skipped.

Example usage:
  tb export -o board.json
  tb import board.json --config other.toml
  tb import board.yaml --dry-run`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		snap, err := migrate.ReadSnapshot(args[0])
		if err != nil {
			fail("%v", err)
		}

		ctx, cancel := requestContext()
		defer cancel()
		db := openBackend(ctx)
		defer db.Close()

		res, err := migrate.Import(ctx, db, snap, migrate.Options{DryRun: dryRun, Logger: newLogger("migrate")})
		if err != nil {
			fail("%v", err)
		}

		verb := "Imported"
		if dryRun {
			verb = "Would import"
		}
		fmt.Printf("%s %s %d users, %d workspaces, %d tasks, %d comments\n",
			ui.RenderPass("✓"), verb, res.Users, res.Workspaces, res.Tasks, res.Comments)
		if res.Skipped > 0 {
			fmt.Printf("%s Skipped %d existing tasks\n", ui.RenderMuted("·"), res.Skipped)
		}
		if len(res.Errors) > 0 {
			fmt.Fprintf(os.Stderr, "%s %d errors:\n", ui.RenderWarn("Warning:"), len(res.Errors))
			for _, e := range res.Errors {
				fmt.Fprintf(os.Stderr, "  %s\n", e)
			}
			os.Exit(1)
		}
	},
}

func init() {
	importCmd.Flags().Bool("dry-run", false, "Count what would be imported without writing")

	rootCmd.AddCommand(importCmd)
}
