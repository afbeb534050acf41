// Package mcp provides an MCP-backed implementation of the delegation
// execution boundary: mcp:<server_id>/<tool_name> targets are resolved
// against configured stdio tool servers.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jmalatre/handoff/internal/config"
	"github.com/jmalatre/handoff/internal/delegate"
)

// Executor delegates tasks to MCP tool servers launched over stdio.
type Executor struct {
	servers map[string]config.MCPServerConfig
}

// NewExecutor creates an executor backed by the configured MCP servers.
func NewExecutor(servers map[string]config.MCPServerConfig) *Executor {
	return &Executor{servers: servers}
}

// ExecuteDelegateTask resolves the target into a result. Only MCP targets can
// be executed here; built-in personas need a host agent runtime, which is
// reported as a failed result, not an error.
func (e *Executor) ExecuteDelegateTask(ctx context.Context, params delegate.TaskParams, execCtx delegate.ExecContext) (*delegate.Result, error) {
	switch params.Target.Kind {
	case delegate.TargetMCP:
		return e.callTool(ctx, params, execCtx)
	case delegate.TargetBuiltin:
		return &delegate.Result{
			Error: fmt.Sprintf("built-in agent %q requires a host agent runtime", params.Target.Slug),
		}, nil
	default:
		return &delegate.Result{Error: "custom agents cannot be executed"}, nil
	}
}

func (e *Executor) callTool(ctx context.Context, params delegate.TaskParams, execCtx delegate.ExecContext) (*delegate.Result, error) {
	serverCfg, ok := e.servers[params.Target.ServerID]
	if !ok {
		return &delegate.Result{
			Error: fmt.Sprintf("mcp server %q is not configured", params.Target.ServerID),
		}, nil
	}

	if execCtx.CheckPermission != nil && !execCtx.CheckPermission("mcp:"+params.Target.ServerID) {
		return &delegate.Result{
			Error: fmt.Sprintf("permission denied for mcp server %q", params.Target.ServerID),
		}, nil
	}

	if params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, params.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, serverCfg.Command, serverCfg.Args...)
	cmd.Env = os.Environ()
	for k, v := range serverCfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	if execCtx.WorkingDir != "" {
		cmd.Dir = execCtx.WorkingDir
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "handoff",
		Version: "0.1.0",
	}, nil)

	session, err := client.Connect(ctx, &mcpsdk.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return nil, fmt.Errorf("connect mcp server %s: %w", params.Target.ServerID, err)
	}
	defer session.Close()

	slog.Debug("calling mcp tool",
		"server", params.Target.ServerID,
		"tool", params.Target.ToolName,
		"session_id", execCtx.SessionID,
	)

	res, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      params.Target.ToolName,
		Arguments: toolArguments(params, execCtx),
	})
	if err != nil {
		return nil, fmt.Errorf("call tool %s: %w", params.Target.ToolName, err)
	}

	if res.IsError {
		return &delegate.Result{
			AgentID: params.Target.String(),
			Error:   contentText(res.Content),
		}, nil
	}

	return &delegate.Result{
		Success:      true,
		TaskPacketID: execCtx.CallID,
		AgentID:      params.Target.String(),
	}, nil
}

// toolArguments shapes the delegation request into tool call arguments.
func toolArguments(params delegate.TaskParams, execCtx delegate.ExecContext) map[string]any {
	args := map[string]any{
		"task": params.Task,
	}
	if len(params.ContextFiles) > 0 {
		args["context_files"] = params.ContextFiles
	}
	if execCtx.WorkingDir != "" {
		args["working_dir"] = execCtx.WorkingDir
	}
	return args
}

// contentText concatenates the text parts of a tool result.
func contentText(content []mcpsdk.Content) string {
	var parts []string
	for _, c := range content {
		if tc, ok := c.(*mcpsdk.TextContent); ok && tc.Text != "" {
			parts = append(parts, tc.Text)
		}
	}
	if len(parts) == 0 {
		return "tool reported an error with no detail"
	}
	return strings.Join(parts, "\n")
}
