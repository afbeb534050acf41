package delegate

import (
	"context"
	"time"
)

// AgentLevel is the position of an agent in the delegation hierarchy.
// Lower levels may delegate further; the execution engine enforces that,
// not this package.
type AgentLevel int

const (
	LevelOrchestrator    AgentLevel = 0
	LevelSubOrchestrator AgentLevel = 1
	LevelWorker          AgentLevel = 2
)

func (l AgentLevel) String() string {
	switch l {
	case LevelOrchestrator:
		return "orchestrator"
	case LevelSubOrchestrator:
		return "sub-orchestrator"
	case LevelWorker:
		return "worker"
	default:
		return "unknown"
	}
}

// CanDelegate reports whether an agent at this level may delegate further.
func (l AgentLevel) CanDelegate() bool {
	return l < LevelWorker
}

// PermissionFunc decides whether a delegated task may perform an action.
type PermissionFunc func(action string) bool

// TaskParams describes one delegated task handed to the execution engine.
type TaskParams struct {
	Target       Target        `json:"target"`
	Task         string        `json:"task"`
	ContextFiles []string      `json:"context_files,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty"`
}

// ExecContext carries the execution environment for a delegated task.
// Cancellation travels on the context.Context passed to ExecuteDelegateTask.
type ExecContext struct {
	WorkingDir      string
	SessionID       string
	MessageID       string
	CallID          string
	AgentLevel      AgentLevel
	AgentSlug       string
	CheckPermission PermissionFunc
}

// Result is the outcome of one delegated task. Execution failures are data:
// Success=false plus a human-readable Error, not a Go error.
type Result struct {
	Success      bool   `json:"success"`
	TaskPacketID string `json:"task_packet_id,omitempty"`
	AgentID      string `json:"agent_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Executor resolves a delegation target into a result, given an execution
// context. Implementations live outside the chain core; this repo ships an
// MCP-backed one.
type Executor interface {
	ExecuteDelegateTask(ctx context.Context, params TaskParams, execCtx ExecContext) (*Result, error)
}
