package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/taskboard/taskboard/internal/model"
	"github.com/taskboard/taskboard/internal/store"
	"github.com/taskboard/taskboard/internal/ui"
)

var userCmd = &cobra.Command{
	Use:     "user",
	GroupID: "setup",
	Short:   "Manage team members",
}

var userAddCmd = &cobra.Command{
	Use:   "add [id]",
	Short: "Add or update a user",
	Long: `Add a user, or update the user with the given ID.
A random ID is generated when none is given.

Example usage:
  tb user add --name "Grace Hopper" --email grace@example.com --role engineer
  tb user add u2 --name "Grace Hopper" --email grace@example.com`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		u := &model.User{}
		if len(args) == 1 {
			u.ID = args[0]
		} else {
			u.ID = uuid.NewString()
		}
		u.Name, _ = cmd.Flags().GetString("name")
		u.Email, _ = cmd.Flags().GetString("email")
		u.Role, _ = cmd.Flags().GetString("role")
		u.Department, _ = cmd.Flags().GetString("department")
		u.Avatar, _ = cmd.Flags().GetString("avatar")
		if err := u.Validate(); err != nil {
			fail("invalid user: %v", err)
		}

		ctx, cancel := requestContext()
		defer cancel()
		db := openBackend(ctx)
		defer db.Close()

		if err := db.UpsertUser(ctx, u); err != nil {
			fail("failed to save user: %v", err)
		}
		fmt.Printf("%s Saved user %s (%s)\n", ui.RenderPass("✓"), u.Name, ui.RenderMuted(u.ID))
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := requestContext()
		defer cancel()
		db := openBackend(ctx)
		defer db.Close()

		snap := readStore(ctx, db).Snapshot()
		if len(snap.Users) == 0 {
			fmt.Println(ui.RenderMuted("No users. Add one with 'tb user add'."))
			return
		}
		for _, u := range snap.Users {
			marker := " "
			if u.ID == cfg.Session.User {
				marker = ui.RenderAccent("*")
			}
			details := strings.Join(nonEmpty(u.Role, u.Department), ", ")
			fmt.Printf("%s %-24s %-28s %s %s\n", marker, u.Name, u.Email, ui.RenderMuted(details), ui.RenderMuted(u.ID))
		}
	},
}

var workspaceCmd = &cobra.Command{
	Use:     "workspace",
	GroupID: "setup",
	Short:   "Manage workspaces",
}

var workspaceAddCmd = &cobra.Command{
	Use:   "add [id]",
	Short: "Add or update a workspace",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		w := &model.Workspace{}
		if len(args) == 1 {
			w.ID = args[0]
		} else {
			w.ID = uuid.NewString()
		}
		w.Name, _ = cmd.Flags().GetString("name")
		w.Color, _ = cmd.Flags().GetString("color")
		w.Department, _ = cmd.Flags().GetString("department")
		typ, _ := cmd.Flags().GetString("type")
		w.Type = model.WorkspaceType(typ)
		if err := w.Validate(); err != nil {
			fail("invalid workspace: %v", err)
		}

		ctx, cancel := requestContext()
		defer cancel()
		db := openBackend(ctx)
		defer db.Close()

		if err := db.UpsertWorkspace(ctx, w); err != nil {
			fail("failed to save workspace: %v", err)
		}
		fmt.Printf("%s Saved workspace %s (%s)\n", ui.RenderPass("✓"), w.Name, ui.RenderMuted(w.ID))
	},
}

var workspaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workspaces",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := requestContext()
		defer cancel()
		db := openBackend(ctx)
		defer db.Close()

		snap := readStore(ctx, db).Snapshot()
		if len(snap.Workspaces) == 0 {
			fmt.Println(ui.RenderMuted("No workspaces."))
			return
		}
		for _, w := range snap.Workspaces {
			n := len(snap.Filter(store.TaskFilter{WorkspaceID: w.ID}))
			fmt.Printf("%-24s %-10s %3d tasks  %s\n", w.Name, w.Type, n, ui.RenderMuted(w.ID))
		}
	},
}

func nonEmpty(values ...string) []string {
	out := values[:0]
	for _, s := range values {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func init() {
	userAddCmd.Flags().String("name", "", "Display name")
	userAddCmd.Flags().String("email", "", "Email address")
	userAddCmd.Flags().String("role", "", "Role")
	userAddCmd.Flags().String("department", "", "Department")
	userAddCmd.Flags().String("avatar", "", "Avatar URL")

	workspaceAddCmd.Flags().String("name", "", "Workspace name")
	workspaceAddCmd.Flags().String("color", "", "Color (e.g. #7aa2f7)")
	workspaceAddCmd.Flags().String("department", "", "Department")
	workspaceAddCmd.Flags().String("type", string(model.WorkspaceTask), "Type (task, outreach)")

	userCmd.AddCommand(userAddCmd, userListCmd)
	workspaceCmd.AddCommand(workspaceAddCmd, workspaceListCmd)
	rootCmd.AddCommand(userCmd, workspaceCmd)
}
