package mcp

import (
	"context"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jmalatre/handoff/internal/config"
	"github.com/jmalatre/handoff/internal/delegate"
)

func TestExecuteBuiltinIsFailureData(t *testing.T) {
	e := NewExecutor(nil)

	res, err := e.ExecuteDelegateTask(context.Background(), delegate.TaskParams{
		Target: delegate.Target{Kind: delegate.TargetBuiltin, Slug: "researcher"},
		Task:   "do something",
	}, delegate.ExecContext{})
	if err != nil {
		t.Fatalf("ExecuteDelegateTask: %v", err)
	}
	if res.Success {
		t.Error("expected failure for builtin target")
	}
	if !strings.Contains(res.Error, "researcher") {
		t.Errorf("error %q should name the slug", res.Error)
	}
}

func TestExecuteUnknownServerIsFailureData(t *testing.T) {
	e := NewExecutor(map[string]config.MCPServerConfig{})

	res, err := e.ExecuteDelegateTask(context.Background(), delegate.TaskParams{
		Target: delegate.Target{Kind: delegate.TargetMCP, ServerID: "ghost", ToolName: "spook"},
		Task:   "boo",
	}, delegate.ExecContext{})
	if err != nil {
		t.Fatalf("ExecuteDelegateTask: %v", err)
	}
	if res.Success {
		t.Error("expected failure for unconfigured server")
	}
	if !strings.Contains(res.Error, "ghost") {
		t.Errorf("error %q should name the server", res.Error)
	}
}

func TestExecutePermissionDenied(t *testing.T) {
	e := NewExecutor(map[string]config.MCPServerConfig{
		"locked": {Command: "true"},
	})

	res, err := e.ExecuteDelegateTask(context.Background(), delegate.TaskParams{
		Target: delegate.Target{Kind: delegate.TargetMCP, ServerID: "locked", ToolName: "tool"},
		Task:   "nope",
	}, delegate.ExecContext{
		CheckPermission: func(action string) bool { return false },
	})
	if err != nil {
		t.Fatalf("ExecuteDelegateTask: %v", err)
	}
	if res.Success {
		t.Error("expected failure when permission is denied")
	}
	if !strings.Contains(res.Error, "permission denied") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestToolArguments(t *testing.T) {
	args := toolArguments(delegate.TaskParams{
		Task:         "summarize the report",
		ContextFiles: []string{"a.md", "b.md"},
	}, delegate.ExecContext{WorkingDir: "/srv/work"})

	if args["task"] != "summarize the report" {
		t.Errorf("task = %v", args["task"])
	}
	if args["working_dir"] != "/srv/work" {
		t.Errorf("working_dir = %v", args["working_dir"])
	}
	files, ok := args["context_files"].([]string)
	if !ok || len(files) != 2 {
		t.Errorf("context_files = %v", args["context_files"])
	}
}

func TestContentText(t *testing.T) {
	got := contentText([]mcpsdk.Content{
		&mcpsdk.TextContent{Text: "first"},
		&mcpsdk.TextContent{Text: "second"},
	})
	if got != "first\nsecond" {
		t.Errorf("contentText = %q", got)
	}

	if got := contentText(nil); got == "" {
		t.Error("empty content should still produce a message")
	}
}
