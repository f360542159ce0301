package model

import "fmt"

// User is a team member. Profile editing happens elsewhere; the store only
// reads users.
type User struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Email      string `json:"email" yaml:"email"`
	Role       string `json:"role" yaml:"role"`
	Department string `json:"department" yaml:"department"`
	Avatar     string `json:"avatar,omitempty" yaml:"avatar,omitempty"`
}

// Validate checks required fields.
func (u *User) Validate() error {
	if u.Name == "" {
		return fmt.Errorf("name is required")
	}
	if u.Email == "" {
		return fmt.Errorf("email is required")
	}
	return nil
}

// WorkspaceType discriminates task boards from outreach dashboards.
type WorkspaceType string

const (
	WorkspaceTask     WorkspaceType = "task"
	WorkspaceOutreach WorkspaceType = "outreach"
)

// Workspace groups tasks. A task belongs to at most one workspace.
type Workspace struct {
	ID         string        `json:"id" yaml:"id"`
	Name       string        `json:"name" yaml:"name"`
	Color      string        `json:"color" yaml:"color"`
	Department string        `json:"department" yaml:"department"`
	Type       WorkspaceType `json:"type,omitempty" yaml:"type,omitempty"`
}

// Validate checks required fields.
func (w *Workspace) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch w.Type {
	case "", WorkspaceTask, WorkspaceOutreach:
	default:
		return fmt.Errorf("invalid workspace type %q", w.Type)
	}
	return nil
}
