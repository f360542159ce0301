package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskboard/taskboard/internal/model"
	"github.com/taskboard/taskboard/internal/session"
	"github.com/taskboard/taskboard/internal/store"
	"github.com/taskboard/taskboard/internal/ui"
)

var taskCmd = &cobra.Command{
	Use:     "task",
	GroupID: "tasks",
	Short:   "List, create and edit tasks",
}

// taskSession opens the database, logs the configured user in and attaches
// the session to the command context. The returned func releases both.
func taskSession(cmd *cobra.Command) func() {
	ctx, cancel := requestContext()
	db := openBackend(ctx)
	p := newProvider(db, nil)
	s := mustLogin(ctx, p)
	cmd.SetContext(session.WithSession(ctx, s))
	return func() {
		p.Logout()
		db.Close()
		cancel()
	}
}

// resolveTask finds a task by full ID or unique ID prefix.
func resolveTask(snap store.Snapshot, ref string) (model.Task, error) {
	if t, ok := snap.Task(ref); ok {
		return t, nil
	}
	var matches []model.Task
	for _, t := range snap.Tasks {
		if strings.HasPrefix(t.ID, ref) {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 0:
		return model.Task{}, fmt.Errorf("%w: %s", store.ErrTaskNotFound, ref)
	case 1:
		return matches[0], nil
	}
	return model.Task{}, fmt.Errorf("task ID %q is ambiguous (%d matches)", ref, len(matches))
}

// resolveSubtask accepts a subtask ID, ID prefix or 1-based position.
func resolveSubtask(t model.Task, ref string) (string, error) {
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(t.Subtasks) {
		return t.Subtasks[n-1].ID, nil
	}
	for _, st := range t.Subtasks {
		if st.ID == ref || strings.HasPrefix(st.ID, ref) {
			return st.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %s", store.ErrSubtaskNotFound, ref)
}

// reportWriteError prints a mutation error, pointing out partial writes.
func reportWriteError(what string, err error) {
	var partial *store.PartialWriteError
	if errors.As(err, &partial) {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderWarn("Warning:"), partial)
		fmt.Fprintf(os.Stderr, "Task %s was saved; re-run the failed step with 'tb task update'\n", partial.TaskID)
		os.Exit(1)
	}
	fail("failed to %s: %v", what, err)
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Long: `List tasks sorted by priority, due date and title.

Example usage:
  tb task list
  tb task list --status in_progress --assignee me
  tb task list --due-within 72h
  tb task list --json`,
	Run: func(cmd *cobra.Command, args []string) {
		status, _ := cmd.Flags().GetString("status")
		priority, _ := cmd.Flags().GetString("priority")
		assignee, _ := cmd.Flags().GetString("assignee")
		workspace, _ := cmd.Flags().GetString("workspace")
		tag, _ := cmd.Flags().GetString("tag")
		dueWithin, _ := cmd.Flags().GetDuration("due-within")
		asJSON, _ := cmd.Flags().GetBool("json")

		if assignee == "me" {
			assignee = cfg.Session.User
		}

		ctx, cancel := requestContext()
		defer cancel()
		db := openBackend(ctx)
		defer db.Close()
		snap := readStore(ctx, db).Snapshot()

		now := time.Now()
		tasks := snap.Filter(store.TaskFilter{
			Status:      model.Status(status),
			Priority:    model.Priority(priority),
			AssigneeID:  assignee,
			WorkspaceID: workspace,
			Tag:         tag,
		})
		if dueWithin > 0 {
			due := map[string]bool{}
			for _, t := range snap.DueBetween(time.Time{}, now.Add(dueWithin)) {
				due[t.ID] = true
			}
			filtered := tasks[:0]
			for _, t := range tasks {
				if due[t.ID] {
					filtered = append(filtered, t)
				}
			}
			tasks = filtered
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(tasks); err != nil {
				fail("failed to encode tasks: %v", err)
			}
			return
		}
		fmt.Println(ui.RenderTaskList(snap, tasks, now))
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one task with subtasks and comments",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := requestContext()
		defer cancel()
		db := openBackend(ctx)
		defer db.Close()
		snap := readStore(ctx, db).Snapshot()

		t, err := resolveTask(snap, args[0])
		if err != nil {
			fail("%v", err)
		}
		fmt.Println(ui.RenderTaskDetail(snap, t, time.Now()))
	},
}

var taskNewCmd = &cobra.Command{
	Use:   "new [title]",
	Short: "Create a task",
	Long: `Create a task authored by the current user.

Due dates accept YYYY-MM-DD, RFC 3339 or phrases like "tomorrow" and
"next friday". Use -i for an interactive form.

Example usage:
  tb task new "Renew TLS certs" --priority high --due "next monday" --assign u2
  tb task new "Launch" --subtask "write post" --subtask "schedule" --tag release
  tb task new -i`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		interactive, _ := cmd.Flags().GetBool("interactive")

		release := taskSession(cmd)
		defer release()
		s := session.MustFromContext(cmd.Context())

		var in model.TaskInput
		if interactive {
			snap := s.Store.Snapshot()
			var err error
			in, err = ui.RunTaskForm(snap.Users, snap.Workspaces)
			if err != nil {
				fail("%v", err)
			}
		} else {
			if len(args) == 0 {
				fail("a title is required (or use -i)")
			}
			in.Title = args[0]
			in.Description, _ = cmd.Flags().GetString("desc")
			priority, _ := cmd.Flags().GetString("priority")
			status, _ := cmd.Flags().GetString("status")
			in.Priority = model.Priority(priority)
			in.Status = model.Status(status)
			in.DueDate, _ = cmd.Flags().GetString("due")
			in.Assignees, _ = cmd.Flags().GetStringSlice("assign")
			in.Tags, _ = cmd.Flags().GetStringSlice("tag")
			if ws, _ := cmd.Flags().GetString("workspace"); ws != "" {
				in.WorkspaceID = &ws
			}
			subtasks, _ := cmd.Flags().GetStringArray("subtask")
			for _, title := range subtasks {
				in.Subtasks = append(in.Subtasks, model.Subtask{Title: title})
			}
		}

		id, err := s.Store.CreateTask(cmd.Context(), in)
		if err != nil {
			reportWriteError("create task", err)
		}
		fmt.Printf("%s Created task %s: %s\n", ui.RenderPass("✓"), ui.RenderAccent(id), in.Title)
	},
}

var taskUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change fields of a task",
	Long: `Change fields of a task. Only flags that are given are changed.
Pass --due "" to clear the due date and --tag "" to clear tags.

Example usage:
  tb task update 3f2a --status in_progress
  tb task update 3f2a --title "Renew certs" --due friday`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		release := taskSession(cmd)
		defer release()
		s := session.MustFromContext(cmd.Context())

		t, err := resolveTask(s.Store.Snapshot(), args[0])
		if err != nil {
			fail("%v", err)
		}

		var upd model.TaskUpdate
		flags := cmd.Flags()
		if flags.Changed("title") {
			v, _ := flags.GetString("title")
			upd.Title = &v
		}
		if flags.Changed("desc") {
			v, _ := flags.GetString("desc")
			upd.Description = &v
		}
		if flags.Changed("status") {
			v, _ := flags.GetString("status")
			st := model.Status(v)
			upd.Status = &st
		}
		if flags.Changed("priority") {
			v, _ := flags.GetString("priority")
			p := model.Priority(v)
			upd.Priority = &p
		}
		if flags.Changed("due") {
			v, _ := flags.GetString("due")
			upd.DueDate = &v
		}
		if flags.Changed("workspace") {
			v, _ := flags.GetString("workspace")
			upd.WorkspaceID = &v
		}
		if flags.Changed("tag") {
			v, _ := flags.GetStringSlice("tag")
			tags := []string{}
			for _, tag := range v {
				if tag != "" {
					tags = append(tags, tag)
				}
			}
			upd.Tags = &tags
		}
		if upd.IsEmpty() {
			fail("nothing to update (see 'tb task update --help')")
		}

		if err := s.Store.UpdateTask(cmd.Context(), t.ID, upd); err != nil {
			reportWriteError("update task", err)
		}
		fmt.Printf("%s Updated %s\n", ui.RenderPass("✓"), t.Title)
	},
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Move a task to Done",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		release := taskSession(cmd)
		defer release()
		s := session.MustFromContext(cmd.Context())

		t, err := resolveTask(s.Store.Snapshot(), args[0])
		if err != nil {
			fail("%v", err)
		}
		done := model.StatusDone
		if err := s.Store.UpdateTask(cmd.Context(), t.ID, model.TaskUpdate{Status: &done}); err != nil {
			reportWriteError("update task", err)
		}
		fmt.Printf("%s %s\n", ui.StatusIcon(done), t.Title)
	},
}

var taskRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a task with its subtasks, comments and assignments",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		release := taskSession(cmd)
		defer release()
		s := session.MustFromContext(cmd.Context())

		t, err := resolveTask(s.Store.Snapshot(), args[0])
		if err != nil {
			fail("%v", err)
		}
		if err := s.Store.DeleteTask(cmd.Context(), t.ID); err != nil {
			reportWriteError("delete task", err)
		}
		fmt.Printf("%s Deleted %s\n", ui.RenderPass("✓"), t.Title)
	},
}

var taskCommentCmd = &cobra.Command{
	Use:   "comment <id> <text>...",
	Short: "Comment on a task",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		release := taskSession(cmd)
		defer release()
		s := session.MustFromContext(cmd.Context())

		t, err := resolveTask(s.Store.Snapshot(), args[0])
		if err != nil {
			fail("%v", err)
		}
		if _, err := s.Store.AddComment(cmd.Context(), t.ID, strings.Join(args[1:], " ")); err != nil {
			reportWriteError("add comment", err)
		}
		fmt.Printf("%s Commented on %s\n", ui.RenderPass("✓"), t.Title)
	},
}

var taskAssignCmd = &cobra.Command{
	Use:   "assign <id> [user-id]...",
	Short: "Replace the assignees of a task",
	Long: `Replace the assignees of a task with the given users. Use "me" for the
current user. With no users and --clear, all assignees are removed.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		clearAll, _ := cmd.Flags().GetBool("clear")
		if len(args) == 1 && !clearAll {
			fail("give at least one user ID, or --clear to unassign everyone")
		}

		release := taskSession(cmd)
		defer release()
		s := session.MustFromContext(cmd.Context())

		t, err := resolveTask(s.Store.Snapshot(), args[0])
		if err != nil {
			fail("%v", err)
		}
		users := make([]string, 0, len(args)-1)
		for _, u := range args[1:] {
			if u == "me" {
				u = s.User.ID
			}
			users = append(users, u)
		}
		if err := s.Store.UpdateAssignees(cmd.Context(), t.ID, users); err != nil {
			reportWriteError("update assignees", err)
		}
		fmt.Printf("%s %s now has %d assignee(s)\n", ui.RenderPass("✓"), t.Title, len(users))
	},
}

var taskToggleCmd = &cobra.Command{
	Use:   "toggle <id> <subtask>",
	Short: "Flip a subtask between done and not done",
	Long: `Flip one subtask. The subtask is given by ID, ID prefix or its 1-based
position as shown by 'tb task show'.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		release := taskSession(cmd)
		defer release()
		s := session.MustFromContext(cmd.Context())

		t, err := resolveTask(s.Store.Snapshot(), args[0])
		if err != nil {
			fail("%v", err)
		}
		sid, err := resolveSubtask(t, args[1])
		if err != nil {
			fail("%v", err)
		}
		if err := s.Store.ToggleSubtask(cmd.Context(), t.ID, sid); err != nil {
			reportWriteError("toggle subtask", err)
		}
		if updated, ok := s.Store.Snapshot().Task(t.ID); ok {
			fmt.Println(ui.RenderTaskDetail(s.Store.Snapshot(), updated, time.Now()))
		}
	},
}

func init() {
	taskListCmd.Flags().String("status", "", "Filter by status (todo, in_progress, done)")
	taskListCmd.Flags().String("priority", "", "Filter by priority (low, medium, high)")
	taskListCmd.Flags().String("assignee", "", "Filter by assignee user ID (\"me\" for the current user)")
	taskListCmd.Flags().String("workspace", "", "Filter by workspace ID")
	taskListCmd.Flags().String("tag", "", "Filter by tag")
	taskListCmd.Flags().Duration("due-within", 0, "Only tasks due within this duration (e.g. 72h)")
	taskListCmd.Flags().Bool("json", false, "Output JSON")

	taskNewCmd.Flags().BoolP("interactive", "i", false, "Fill in the task with a form")
	taskNewCmd.Flags().String("desc", "", "Description")
	taskNewCmd.Flags().String("priority", "medium", "Priority (low, medium, high)")
	taskNewCmd.Flags().String("status", "todo", "Status (todo, in_progress, done)")
	taskNewCmd.Flags().String("due", "", "Due date")
	taskNewCmd.Flags().StringSlice("assign", nil, "Assignee user IDs")
	taskNewCmd.Flags().StringSlice("tag", nil, "Tags")
	taskNewCmd.Flags().StringArray("subtask", nil, "Subtask title (repeatable)")
	taskNewCmd.Flags().String("workspace", "", "Workspace ID")

	taskUpdateCmd.Flags().String("title", "", "New title")
	taskUpdateCmd.Flags().String("desc", "", "New description")
	taskUpdateCmd.Flags().String("status", "", "New status")
	taskUpdateCmd.Flags().String("priority", "", "New priority")
	taskUpdateCmd.Flags().String("due", "", "New due date (empty clears)")
	taskUpdateCmd.Flags().String("workspace", "", "New workspace ID (empty clears)")
	taskUpdateCmd.Flags().StringSlice("tag", nil, "Replace tags")

	taskAssignCmd.Flags().Bool("clear", false, "Remove all assignees")

	taskCmd.AddCommand(taskListCmd, taskShowCmd, taskNewCmd, taskUpdateCmd, taskDoneCmd,
		taskRmCmd, taskCommentCmd, taskAssignCmd, taskToggleCmd)
	rootCmd.AddCommand(taskCmd)
}
