package model

import (
	"strings"
	"testing"
	"time"
)

func TestTaskInput_Validate(t *testing.T) {
	tests := []struct {
		name    string
		input   TaskInput
		wantErr bool
		errMsg  string
	}{
		{
			name:  "valid task",
			input: TaskInput{Title: "Ship release", Status: StatusTodo, Priority: PriorityHigh},
		},
		{
			name:    "missing title",
			input:   TaskInput{Status: StatusTodo, Priority: PriorityLow},
			wantErr: true,
			errMsg:  "title is required",
		},
		{
			name:    "title too long",
			input:   TaskInput{Title: strings.Repeat("x", 501), Status: StatusTodo, Priority: PriorityLow},
			wantErr: true,
			errMsg:  "title must be 500 characters or less",
		},
		{
			name:    "unknown status",
			input:   TaskInput{Title: "Test", Status: "blocked", Priority: PriorityLow},
			wantErr: true,
			errMsg:  "invalid status",
		},
		{
			name:    "unknown priority",
			input:   TaskInput{Title: "Test", Status: StatusDone, Priority: "urgent"},
			wantErr: true,
			errMsg:  "invalid priority",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Validate() expected error containing %q, got nil", tt.errMsg)
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Validate() error = %q, want to contain %q", err.Error(), tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestTaskInput_SetDefaults(t *testing.T) {
	in := TaskInput{Title: "Test"}
	in.SetDefaults()

	if in.Status != StatusTodo {
		t.Errorf("Status = %q, want %q", in.Status, StatusTodo)
	}
	if in.Priority != PriorityMedium {
		t.Errorf("Priority = %q, want %q", in.Priority, PriorityMedium)
	}
}

func TestTaskUpdate_Validate(t *testing.T) {
	empty := ""
	bad := Status("archived")
	done := StatusDone

	if err := (&TaskUpdate{Title: &empty}).Validate(); err == nil {
		t.Error("empty title should be rejected")
	}
	if err := (&TaskUpdate{Status: &bad}).Validate(); err == nil {
		t.Error("unknown status should be rejected")
	}
	// Any known status is accepted regardless of the current one.
	if err := (&TaskUpdate{Status: &done}).Validate(); err != nil {
		t.Errorf("done status rejected: %v", err)
	}
}

func TestTaskUpdate_IsEmpty(t *testing.T) {
	if !(&TaskUpdate{}).IsEmpty() {
		t.Error("zero update should be empty")
	}
	ids := []string{}
	u := TaskUpdate{Assignees: &ids}
	if u.IsEmpty() {
		t.Error("update with assignees should not be empty")
	}
	if u.HasScalar() {
		t.Error("assignee-only update should not touch scalar columns")
	}
}

func TestTask_Clone(t *testing.T) {
	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ws := "ws-1"
	orig := Task{
		ID:          "t1",
		DueDate:     &due,
		WorkspaceID: &ws,
		Assignees:   []string{"u1"},
		Subtasks:    []Subtask{{ID: "s1", Title: "a"}},
	}

	c := orig.Clone()
	c.Assignees[0] = "u2"
	c.Subtasks[0].Completed = true
	*c.DueDate = due.Add(time.Hour)
	*c.WorkspaceID = "ws-2"

	if orig.Assignees[0] != "u1" {
		t.Error("Clone shares assignee slice")
	}
	if orig.Subtasks[0].Completed {
		t.Error("Clone shares subtask slice")
	}
	if !orig.DueDate.Equal(due) {
		t.Error("Clone shares due date")
	}
	if *orig.WorkspaceID != "ws-1" {
		t.Error("Clone shares workspace id")
	}
}

func TestTask_IsOverdue(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	tests := []struct {
		name string
		task Task
		want bool
	}{
		{"no due date", Task{Status: StatusTodo}, false},
		{"past due", Task{Status: StatusInProgress, DueDate: &past}, true},
		{"past due but done", Task{Status: StatusDone, DueDate: &past}, false},
		{"future", Task{Status: StatusTodo, DueDate: &future}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.task.IsOverdue(now); got != tt.want {
				t.Errorf("IsOverdue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		raw    string
		wantOK bool
	}{
		{"2026-01-10T07:36:29Z", true},
		{"2026-01-10T07:36:29.123456Z", true},
		{"2026-01-10 07:36:29", true},
		{"2026-01-10", true},
		{"", false},
		{"not a date", false},
		{"2026-13-45", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.raw)
			if ok != tt.wantOK {
				t.Fatalf("ParseTimestamp(%q) ok = %v, want %v", tt.raw, ok, tt.wantOK)
			}
			if !ok && !got.IsZero() {
				t.Errorf("failed parse returned non-zero time %v", got)
			}
		})
	}
}

func TestParseDueDate(t *testing.T) {
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC) // Wednesday

	due, ok := ParseDueDate("", now)
	if !ok || due != nil {
		t.Errorf("empty input = (%v, %v), want (nil, true)", due, ok)
	}

	due, ok = ParseDueDate("2026-11-01", now)
	if !ok || due == nil || due.Day() != 1 || due.Month() != time.November {
		t.Errorf("date-only input = (%v, %v)", due, ok)
	}

	due, ok = ParseDueDate("tomorrow", now)
	if !ok || due == nil {
		t.Fatalf("tomorrow = (%v, %v), want a date", due, ok)
	}
	if due.YearDay() != now.YearDay()+1 {
		t.Errorf("tomorrow resolved to %v", due)
	}

	due, ok = ParseDueDate("next friday", now)
	if !ok || due == nil || due.Weekday() != time.Friday {
		t.Errorf("next friday = (%v, %v)", due, ok)
	}

	for _, raw := range []string{"zzzz", "2024-13-45", "2024-02-30", "garbage 5pm", "2026-11-01 25:00"} {
		due, ok = ParseDueDate(raw, now)
		if ok || due != nil {
			t.Errorf("ParseDueDate(%q) = (%v, %v), want (nil, false)", raw, due, ok)
		}
	}
}

func TestFormatTimestamp_SortsLexically(t *testing.T) {
	whole := time.Date(2026, 10, 14, 9, 0, 5, 0, time.UTC)
	frac := whole.Add(300 * time.Millisecond)

	a, b := FormatTimestamp(whole), FormatTimestamp(frac)
	if len(a) != len(b) || a >= b {
		t.Errorf("FormatTimestamp() = %q, %q; want equal width and %q < %q", a, b, a, b)
	}
	got, ok := ParseTimestamp(b)
	if !ok || !got.Equal(frac) {
		t.Errorf("ParseTimestamp(%q) = (%v, %v), want %v", b, got, ok, frac)
	}
}

func TestWorkspace_Validate(t *testing.T) {
	if err := (&Workspace{Name: "Growth", Type: WorkspaceOutreach}).Validate(); err != nil {
		t.Errorf("valid workspace rejected: %v", err)
	}
	if err := (&Workspace{Name: "X", Type: "crm"}).Validate(); err == nil {
		t.Error("unknown workspace type accepted")
	}
	if err := (&Workspace{}).Validate(); err == nil {
		t.Error("missing name accepted")
	}
}
