package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/taskboard/taskboard/internal/model"
	"github.com/taskboard/taskboard/internal/store"
)

const minColumnWidth = 24

var (
	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
)

var titleCaser = cases.Title(language.English)

// StatusTitle turns "in_progress" into "In Progress".
func StatusTitle(s model.Status) string {
	return titleCaser.String(strings.ReplaceAll(string(s), "_", " "))
}

// UserName returns the display name of userID, or the ID itself.
func UserName(snap store.Snapshot, userID string) string {
	if u, ok := snap.User(userID); ok && u.Name != "" {
		return u.Name
	}
	return userID
}

func assigneeNames(snap store.Snapshot, t model.Task) string {
	names := make([]string, 0, len(t.Assignees))
	for _, id := range t.Assignees {
		names = append(names, UserName(snap, id))
	}
	return strings.Join(names, ", ")
}

func subtaskProgress(t model.Task) string {
	if len(t.Subtasks) == 0 {
		return ""
	}
	done := 0
	for _, st := range t.Subtasks {
		if st.Completed {
			done++
		}
	}
	return fmt.Sprintf("%d/%d", done, len(t.Subtasks))
}

func formatDue(t model.Task, now time.Time) string {
	if t.DueDate == nil {
		return ""
	}
	s := "due " + t.DueDate.Local().Format("Jan 2")
	if t.IsOverdue(now) {
		return RenderFail(s)
	}
	return s
}

func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 1 || len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}

// renderCard renders one task inside a board column.
func renderCard(snap store.Snapshot, t model.Task, width int, now time.Time) string {
	var b strings.Builder
	b.WriteString(RenderBold(truncate(t.Title, width)))
	b.WriteString("\n")

	meta := []string{RenderPriority(t.Priority)}
	if due := formatDue(t, now); due != "" {
		meta = append(meta, due)
	}
	if p := subtaskProgress(t); p != "" {
		meta = append(meta, p)
	}
	b.WriteString(strings.Join(meta, " · "))

	if names := assigneeNames(snap, t); names != "" {
		b.WriteString("\n")
		b.WriteString(RenderMuted(truncate("@ "+names, width)))
	}
	return b.String()
}

// RenderBoard lays the snapshot out as one column per status.
func RenderBoard(snap store.Snapshot, width int, now time.Time) string {
	cols := snap.ByStatus()

	colWidth := width/len(model.Statuses) - 4
	if colWidth < minColumnWidth {
		colWidth = minColumnWidth
	}

	rendered := make([]string, 0, len(model.Statuses))
	for _, st := range model.Statuses {
		tasks := cols[st]

		var b strings.Builder
		b.WriteString(headerStyle.Render(fmt.Sprintf("%s (%d)", StatusTitle(st), len(tasks))))
		for _, t := range tasks {
			b.WriteString("\n\n")
			b.WriteString(renderCard(snap, t, colWidth, now))
		}
		if len(tasks) == 0 {
			b.WriteString("\n\n")
			b.WriteString(RenderMuted("nothing here"))
		}
		rendered = append(rendered, columnStyle.Width(colWidth).Render(b.String()))
	}

	board := lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
	if snap.Error != "" {
		board += "\n" + RenderFail("Error: "+snap.Error)
	}
	return board
}

// RenderTaskList renders one line per task.
func RenderTaskList(snap store.Snapshot, tasks []model.Task, now time.Time) string {
	if len(tasks) == 0 {
		return RenderMuted("No tasks.")
	}

	var b strings.Builder
	for _, t := range tasks {
		fmt.Fprintf(&b, "%s %s  %s  [%s]", StatusIcon(t.Status), RenderMuted(shortID(t.ID)), t.Title, RenderPriority(t.Priority))
		if due := formatDue(t, now); due != "" {
			fmt.Fprintf(&b, "  %s", due)
		}
		if names := assigneeNames(snap, t); names != "" {
			fmt.Fprintf(&b, "  %s", RenderMuted("@ "+names))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderTaskDetail renders every field of one task.
func RenderTaskDetail(snap store.Snapshot, t model.Task, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", StatusIcon(t.Status), RenderBold(t.Title))
	fmt.Fprintf(&b, "%s %s\n", RenderMuted("ID:"), t.ID)
	fmt.Fprintf(&b, "%s %s   %s %s\n", RenderMuted("Status:"), StatusTitle(t.Status), RenderMuted("Priority:"), RenderPriority(t.Priority))
	if due := formatDue(t, now); due != "" {
		fmt.Fprintf(&b, "%s %s\n", RenderMuted("Due:"), due)
	}
	if t.WorkspaceID != nil {
		name := *t.WorkspaceID
		if w, ok := snap.Workspace(name); ok {
			name = w.Name
		}
		fmt.Fprintf(&b, "%s %s\n", RenderMuted("Workspace:"), name)
	}
	fmt.Fprintf(&b, "%s %s\n", RenderMuted("Created by:"), UserName(snap, t.CreatedBy))
	if names := assigneeNames(snap, t); names != "" {
		fmt.Fprintf(&b, "%s %s\n", RenderMuted("Assignees:"), names)
	}
	if len(t.Tags) > 0 {
		fmt.Fprintf(&b, "%s %s\n", RenderMuted("Tags:"), strings.Join(t.Tags, ", "))
	}
	if t.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", t.Description)
	}

	if len(t.Subtasks) > 0 {
		fmt.Fprintf(&b, "\n%s %s\n", RenderBold("Subtasks"), RenderMuted(subtaskProgress(t)))
		for _, st := range t.Subtasks {
			box := "[ ]"
			if st.Completed {
				box = RenderPass("[x]")
			}
			fmt.Fprintf(&b, "  %s %s %s\n", box, st.Title, RenderMuted(shortID(st.ID)))
		}
	}

	if len(t.Comments) > 0 {
		fmt.Fprintf(&b, "\n%s\n", RenderBold("Comments"))
		for _, c := range t.Comments {
			fmt.Fprintf(&b, "  %s %s: %s\n", RenderMuted(c.CreatedAt.Local().Format("Jan 2 15:04")), UserName(snap, c.Author), c.Content)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// RenderStats renders a one-line summary such as "5 tasks · 2 done · 1 overdue".
func RenderStats(st store.Stats) string {
	s := fmt.Sprintf("%d tasks · %d done", st.Total, st.ByStatus[model.StatusDone])
	if st.Overdue > 0 {
		s += " · " + RenderFail(fmt.Sprintf("%d overdue", st.Overdue))
	}
	if st.Unassigned > 0 {
		s += fmt.Sprintf(" · %d unassigned", st.Unassigned)
	}
	return s
}
