// Package assistant answers free-form questions about the board by sending
// a compact YAML rendering of the current snapshot to Claude.
package assistant

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"gopkg.in/yaml.v3"

	"github.com/taskboard/taskboard/internal/model"
	"github.com/taskboard/taskboard/internal/store"
)

const systemPrompt = `You are a project assistant for a small team's task board.
Answer using only the board data provided. Refer to tasks by title and to
people by name. Be brief. If the data does not answer the question, say so.`

// Messages is the part of the Anthropic client the assistant uses.
type Messages interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Config holds configuration for the assistant.
type Config struct {
	Model     string
	MaxTokens int64

	// Logger for assistant activity
	Logger *log.Logger

	// Now stamps the board context (default: time.Now)
	Now func() time.Time
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Model:     "claude-sonnet-4-5",
		MaxTokens: 1024,
		Logger:    log.New(os.Stderr, "[assistant] ", log.LstdFlags),
		Now:       time.Now,
	}
}

// Assistant asks questions over a snapshot.
type Assistant struct {
	messages Messages
	config   *Config
}

// New creates an assistant. A nil messages uses the SDK client, which reads
// ANTHROPIC_API_KEY from the environment.
func New(messages Messages, config *Config) *Assistant {
	if config == nil {
		config = DefaultConfig()
	}
	def := DefaultConfig()
	if config.Model == "" {
		config.Model = def.Model
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = def.MaxTokens
	}
	if config.Logger == nil {
		config.Logger = def.Logger
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if messages == nil {
		client := anthropic.NewClient()
		messages = &client.Messages
	}
	return &Assistant{messages: messages, config: config}
}

// Ask sends question with the board context and returns the text answer.
func (a *Assistant) Ask(ctx context.Context, question string, snap store.Snapshot) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("question is required")
	}

	board, err := BoardContext(snap, a.config.Now())
	if err != nil {
		return "", err
	}

	start := time.Now()
	msg, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.config.Model),
		MaxTokens: a.config.MaxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(BuildPrompt(board, question))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to query assistant: %w", err)
	}
	a.config.Logger.Printf("Answered in %v (%d input / %d output tokens)",
		time.Since(start).Round(time.Millisecond), msg.Usage.InputTokens, msg.Usage.OutputTokens)

	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("assistant returned no text")
	}
	return strings.TrimSpace(strings.Join(parts, "\n")), nil
}

// BuildPrompt wraps the board context and the question.
func BuildPrompt(board, question string) string {
	return "<board>\n" + board + "</board>\n\n" + question
}

type boardTask struct {
	Title     string   `yaml:"title"`
	Status    string   `yaml:"status"`
	Priority  string   `yaml:"priority"`
	Due       string   `yaml:"due,omitempty"`
	Overdue   bool     `yaml:"overdue,omitempty"`
	Workspace string   `yaml:"workspace,omitempty"`
	Assignees []string `yaml:"assignees,omitempty"`
	Tags      []string `yaml:"tags,omitempty"`
	Subtasks  []string `yaml:"subtasks,omitempty"`
	Comments  []string `yaml:"comments,omitempty"`
}

type boardDoc struct {
	Today string      `yaml:"today"`
	Tasks []boardTask `yaml:"tasks"`
}

// BoardContext renders the snapshot as YAML with IDs resolved to names.
func BoardContext(snap store.Snapshot, now time.Time) (string, error) {
	doc := boardDoc{Today: now.Format("2006-01-02 (Monday)"), Tasks: []boardTask{}}

	name := func(id string) string {
		if u, ok := snap.User(id); ok && u.Name != "" {
			return u.Name
		}
		return id
	}

	for i := range snap.Tasks {
		t := &snap.Tasks[i]
		bt := boardTask{
			Title:    t.Title,
			Status:   string(t.Status),
			Priority: string(t.Priority),
			Tags:     t.Tags,
			Overdue:  t.IsOverdue(now),
		}
		if t.DueDate != nil {
			bt.Due = t.DueDate.Format("2006-01-02")
		}
		if t.WorkspaceID != nil {
			if w, ok := snap.Workspace(*t.WorkspaceID); ok {
				bt.Workspace = w.Name
			}
		}
		for _, id := range t.Assignees {
			bt.Assignees = append(bt.Assignees, name(id))
		}
		for _, st := range t.Subtasks {
			bt.Subtasks = append(bt.Subtasks, subtaskLine(st))
		}
		for _, c := range t.Comments {
			bt.Comments = append(bt.Comments, name(c.Author)+": "+c.Content)
		}
		doc.Tasks = append(doc.Tasks, bt)
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode board: %w", err)
	}
	return string(out), nil
}

func subtaskLine(st model.Subtask) string {
	if st.Completed {
		return "[x] " + st.Title
	}
	return "[ ] " + st.Title
}
