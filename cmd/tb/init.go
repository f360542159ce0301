package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/taskboard/taskboard/internal/config"
	"github.com/taskboard/taskboard/internal/model"
	"github.com/taskboard/taskboard/internal/ui"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "setup",
	Short:   "Create the database and a starter config",
	Long: `Create the task database, write .taskboard/taskboard.toml and optionally
register the first user and make them the default actor.

Example usage:
  tb init
  tb init --name "Ada Lovelace" --email ada@example.com
  tb init --dsn postgres://localhost/tasks`,
	Run: func(cmd *cobra.Command, args []string) {
		dsn, _ := cmd.Flags().GetString("dsn")
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")
		force, _ := cmd.Flags().GetBool("force")

		if dsn != "" {
			cfg.Database.DSN = dsn
		}

		ctx, cancel := requestContext()
		defer cancel()

		db := openBackend(ctx)
		defer db.Close()
		fmt.Printf("%s Database ready: %s\n", ui.RenderPass("✓"), cfg.Database.DSN)

		if name != "" || email != "" {
			u := &model.User{ID: uuid.NewString(), Name: name, Email: email}
			if err := u.Validate(); err != nil {
				fail("invalid user: %v", err)
			}
			if err := db.UpsertUser(ctx, u); err != nil {
				fail("failed to add user: %v", err)
			}
			cfg.Session.User = u.ID
			fmt.Printf("%s Added user %s (%s)\n", ui.RenderPass("✓"), u.Name, ui.RenderMuted(u.ID))
		}

		path := filepath.Join(".taskboard", config.FileName+".toml")
		if err := config.Write(cfg, path, force); err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderWarn("Warning:"), err)
			return
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
	},
}

func init() {
	initCmd.Flags().String("dsn", "", "Database DSN (SQLite path, libsql:// or postgres:// URL)")
	initCmd.Flags().String("name", "", "Name of the first user")
	initCmd.Flags().String("email", "", "Email of the first user")
	initCmd.Flags().Bool("force", false, "Overwrite an existing config file")

	rootCmd.AddCommand(initCmd)
}
