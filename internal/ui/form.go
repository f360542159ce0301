package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/taskboard/taskboard/internal/model"
)

// TaskFormValues backs the interactive new-task form.
type TaskFormValues struct {
	Title       string
	Description string
	Priority    string
	Status      string
	DueDate     string
	Tags        string
	Subtasks    string
	Assignees   []string
	WorkspaceID string
}

// Input converts the form values to a create payload. Tags are comma
// separated and subtasks are one per line.
func (v *TaskFormValues) Input() model.TaskInput {
	in := model.TaskInput{
		Title:       strings.TrimSpace(v.Title),
		Description: strings.TrimSpace(v.Description),
		Status:      model.Status(v.Status),
		Priority:    model.Priority(v.Priority),
		DueDate:     strings.TrimSpace(v.DueDate),
		Assignees:   v.Assignees,
	}
	if v.WorkspaceID != "" {
		ws := v.WorkspaceID
		in.WorkspaceID = &ws
	}
	for _, tag := range strings.Split(v.Tags, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			in.Tags = append(in.Tags, tag)
		}
	}
	for _, line := range strings.Split(v.Subtasks, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			in.Subtasks = append(in.Subtasks, model.Subtask{Title: line})
		}
	}
	in.SetDefaults()
	return in
}

func validateTitle(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("title is required")
	}
	if len(s) > model.MaxTitleLength {
		return fmt.Errorf("title must be %d characters or less", model.MaxTitleLength)
	}
	return nil
}

// NewTaskForm builds the form over v. Users and workspaces populate the
// assignee and workspace pickers.
func NewTaskForm(v *TaskFormValues, users []model.User, workspaces []model.Workspace) *huh.Form {
	if v.Priority == "" {
		v.Priority = string(model.PriorityMedium)
	}
	if v.Status == "" {
		v.Status = string(model.StatusTodo)
	}

	statusOpts := make([]huh.Option[string], 0, len(model.Statuses))
	for _, st := range model.Statuses {
		statusOpts = append(statusOpts, huh.NewOption(StatusTitle(st), string(st)))
	}

	userOpts := make([]huh.Option[string], 0, len(users))
	for _, u := range users {
		userOpts = append(userOpts, huh.NewOption(u.Name, u.ID))
	}

	wsOpts := []huh.Option[string]{huh.NewOption("(none)", "")}
	for _, w := range workspaces {
		wsOpts = append(wsOpts, huh.NewOption(w.Name, w.ID))
	}

	details := huh.NewGroup(
		huh.NewInput().
			Title("Title").
			Value(&v.Title).
			Validate(validateTitle),
		huh.NewText().
			Title("Description").
			Value(&v.Description),
		huh.NewSelect[string]().
			Title("Priority").
			Options(
				huh.NewOption("High", string(model.PriorityHigh)),
				huh.NewOption("Medium", string(model.PriorityMedium)),
				huh.NewOption("Low", string(model.PriorityLow)),
			).
			Value(&v.Priority),
		huh.NewSelect[string]().
			Title("Status").
			Options(statusOpts...).
			Value(&v.Status),
	)

	extras := []huh.Field{
		huh.NewInput().
			Title("Due date").
			Description("e.g. 2026-11-01, tomorrow, next friday").
			Value(&v.DueDate),
		huh.NewInput().
			Title("Tags").
			Description("comma separated").
			Value(&v.Tags),
		huh.NewText().
			Title("Subtasks").
			Description("one per line").
			Value(&v.Subtasks),
	}
	if len(userOpts) > 0 {
		extras = append(extras, huh.NewMultiSelect[string]().
			Title("Assignees").
			Options(userOpts...).
			Value(&v.Assignees))
	}
	if len(workspaces) > 0 {
		extras = append(extras, huh.NewSelect[string]().
			Title("Workspace").
			Options(wsOpts...).
			Value(&v.WorkspaceID))
	}

	return huh.NewForm(details, huh.NewGroup(extras...))
}

// RunTaskForm shows the form and returns the resulting payload.
func RunTaskForm(users []model.User, workspaces []model.Workspace) (model.TaskInput, error) {
	var v TaskFormValues
	if err := NewTaskForm(&v, users, workspaces).Run(); err != nil {
		return model.TaskInput{}, fmt.Errorf("task form: %w", err)
	}
	return v.Input(), nil
}
