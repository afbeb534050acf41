// Package delegate defines the delegation boundary: how a task names its
// destination agent, the parameters and context handed to the execution
// engine, and the result handed back.
package delegate

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedCustomDelegation is returned for custom: identifiers.
// Custom agents need a mode configuration this entry point cannot supply.
var ErrUnsupportedCustomDelegation = errors.New("custom agents cannot be delegated to through this entry point")

// ErrMalformedMCPTarget is returned when an mcp: identifier does not carry
// both a server id and a tool name.
var ErrMalformedMCPTarget = errors.New("mcp target must have the form mcp:<server_id>/<tool_name>")

// TargetKind discriminates the delegation target variants.
type TargetKind string

const (
	TargetBuiltin        TargetKind = "builtin"
	TargetMCP            TargetKind = "mcp"
	TargetCustomRejected TargetKind = "custom_rejected"
)

// Target is the resolved destination of a delegated task. Exactly one
// variant is populated, discriminated by Kind.
type Target struct {
	Kind TargetKind `json:"kind"`

	// Builtin
	Slug string `json:"slug,omitempty"`

	// MCP
	ServerID string `json:"server_id,omitempty"`
	ToolName string `json:"tool_name,omitempty"`
}

// String renders the target back into identifier form.
func (t Target) String() string {
	switch t.Kind {
	case TargetMCP:
		return fmt.Sprintf("mcp:%s/%s", t.ServerID, t.ToolName)
	case TargetCustomRejected:
		return "custom:<rejected>"
	default:
		return t.Slug
	}
}

// ResolveTarget parses a delegation identifier into a typed target.
//
// custom:<name> is rejected outright. mcp:<server_id>/<tool_name> must carry
// two non-empty parts. Anything else is treated as a built-in agent slug;
// whether the slug actually exists is the execution engine's concern.
func ResolveTarget(identifier string) (Target, error) {
	if strings.HasPrefix(identifier, "custom:") {
		return Target{Kind: TargetCustomRejected}, ErrUnsupportedCustomDelegation
	}

	if rest, ok := strings.CutPrefix(identifier, "mcp:"); ok {
		serverID, toolName, found := strings.Cut(rest, "/")
		if !found || serverID == "" || toolName == "" {
			return Target{}, fmt.Errorf("%w: %q", ErrMalformedMCPTarget, identifier)
		}
		return Target{Kind: TargetMCP, ServerID: serverID, ToolName: toolName}, nil
	}

	return Target{Kind: TargetBuiltin, Slug: identifier}, nil
}
