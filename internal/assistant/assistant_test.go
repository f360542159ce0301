package assistant

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"gopkg.in/yaml.v3"

	"github.com/taskboard/taskboard/internal/model"
	"github.com/taskboard/taskboard/internal/store"
)

var now = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

type fakeMessages struct {
	got   anthropic.MessageNewParams
	reply *anthropic.Message
	err   error
}

func (f *fakeMessages) New(_ context.Context, body anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	f.got = body
	return f.reply, f.err
}

func testConfig() *Config {
	return &Config{
		Model:  "test-model",
		Logger: log.New(io.Discard, "", 0),
		Now:    func() time.Time { return now },
	}
}

func snapshot() store.Snapshot {
	due := now.Add(-48 * time.Hour)
	ws := "w1"
	return store.Snapshot{
		Tasks: []model.Task{{
			ID: "t1", Title: "Renew certs", Status: model.StatusInProgress, Priority: model.PriorityHigh,
			DueDate: &due, WorkspaceID: &ws,
			Assignees: []string{"u1", "ghost"},
			Subtasks:  []model.Subtask{{ID: "s1", Title: "staging", Completed: true}},
			Comments:  []model.Comment{{ID: "c1", Author: "u1", Content: "prod next"}},
		}},
		Users:      []model.User{{ID: "u1", Name: "Ada"}},
		Workspaces: []model.Workspace{{ID: "w1", Name: "Ops"}},
	}
}

func TestBoardContext(t *testing.T) {
	out, err := BoardContext(snapshot(), now)
	if err != nil {
		t.Fatalf("BoardContext() failed: %v", err)
	}

	var doc boardDoc
	if err := yaml.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("output is not YAML: %v\n%s", err, out)
	}
	if doc.Today != "2026-10-17 (Saturday)" || len(doc.Tasks) != 1 {
		t.Fatalf("doc = %+v", doc)
	}
	task := doc.Tasks[0]
	if task.Workspace != "Ops" || !task.Overdue || task.Due != "2026-10-15" {
		t.Errorf("task = %+v", task)
	}
	if strings.Join(task.Assignees, ",") != "Ada,ghost" {
		t.Errorf("Assignees = %v, want names with ID fallback", task.Assignees)
	}
	if task.Subtasks[0] != "[x] staging" || task.Comments[0] != "Ada: prod next" {
		t.Errorf("subtasks=%v comments=%v", task.Subtasks, task.Comments)
	}
}

func TestAsk(t *testing.T) {
	fake := &fakeMessages{reply: &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: "Ada is on it. "},
		},
	}}
	a := New(fake, testConfig())

	answer, err := a.Ask(context.Background(), "  who owns the certs?  ", snapshot())
	if err != nil {
		t.Fatalf("Ask() failed: %v", err)
	}
	if answer != "Ada is on it." {
		t.Errorf("answer = %q", answer)
	}

	if fake.got.Model != "test-model" || fake.got.MaxTokens != 1024 {
		t.Errorf("params model=%q max_tokens=%d", fake.got.Model, fake.got.MaxTokens)
	}
	if len(fake.got.Messages) != 1 || len(fake.got.Messages[0].Content) != 1 {
		t.Fatalf("messages = %+v", fake.got.Messages)
	}
	text := fake.got.Messages[0].Content[0].OfText
	if text == nil || !strings.Contains(text.Text, "Renew certs") || !strings.HasSuffix(text.Text, "who owns the certs?") {
		t.Errorf("prompt = %+v", text)
	}
}

func TestAsk_Errors(t *testing.T) {
	if _, err := New(&fakeMessages{}, testConfig()).Ask(context.Background(), " ", snapshot()); err == nil {
		t.Error("Ask() with a blank question should fail")
	}

	boom := errors.New("overloaded")
	_, err := New(&fakeMessages{err: boom}, testConfig()).Ask(context.Background(), "status?", snapshot())
	if !errors.Is(err, boom) {
		t.Errorf("Ask() error = %v, want wrapped %v", err, boom)
	}

	empty := &fakeMessages{reply: &anthropic.Message{}}
	if _, err := New(empty, testConfig()).Ask(context.Background(), "status?", snapshot()); err == nil {
		t.Error("Ask() with no text blocks should fail")
	}
}

func TestBuildPrompt(t *testing.T) {
	got := BuildPrompt("tasks: []\n", "anything due?")
	if got != "<board>\ntasks: []\n</board>\n\nanything due?" {
		t.Errorf("BuildPrompt() = %q", got)
	}
}
