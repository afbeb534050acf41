// Package chain provides persistent, resumable delegation chains: a
// depth-bounded tree of delegated tasks, durable checkpoints of that tree,
// and the resumption logic that turns an interrupted chain back into work.
package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrDepthExceeded is returned when adding a task would exceed the chain's depth bound.
var ErrDepthExceeded = errors.New("chain depth exceeded")

// ErrParentNotFound is returned when adding a task under an unknown parent.
var ErrParentNotFound = errors.New("parent task not found")

// TaskStatus represents the lifecycle state of a single delegated task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// ChainStatus represents the lifecycle state of a whole chain.
// Only running and paused chains are resumable; completed and failed are terminal.
type ChainStatus string

const (
	ChainRunning   ChainStatus = "running"
	ChainPaused    ChainStatus = "paused"
	ChainCompleted ChainStatus = "completed"
	ChainFailed    ChainStatus = "failed"
)

// IsResumable reports whether a chain in this status can re-enter execution.
func (s ChainStatus) IsResumable() bool {
	return s == ChainRunning || s == ChainPaused
}

// TaskChainNode is one delegated task in a chain.
type TaskChainNode struct {
	TaskID       string     `json:"task_id"`
	ParentTaskID string     `json:"parent_task_id,omitempty"` // empty only for the root
	AgentSlug    string     `json:"agent_slug"`
	Description  string     `json:"description,omitempty"`
	Depth        int        `json:"depth"` // root is 0, child is parent+1
	CreatedAt    time.Time  `json:"created_at"`
	Status       TaskStatus `json:"status"`
}

// TaskChain is one delegation tree. The chain ID is externally supplied and
// untrusted; the persistence layer sanitizes it before deriving file names.
type TaskChain struct {
	ChainID    string
	RootTaskID string
	Nodes      map[string]*TaskChainNode
	MaxDepth   int
}

// NewChain creates a chain with a pending root task executed by agentSlug.
func NewChain(agentSlug, description string, maxDepth int) *TaskChain {
	root := &TaskChainNode{
		TaskID:      GenerateTaskID(),
		AgentSlug:   agentSlug,
		Description: description,
		Depth:       0,
		CreatedAt:   time.Now(),
		Status:      TaskPending,
	}
	return &TaskChain{
		ChainID:    GenerateChainID(),
		RootTaskID: root.TaskID,
		Nodes:      map[string]*TaskChainNode{root.TaskID: root},
		MaxDepth:   maxDepth,
	}
}

// Root returns the root node, or nil if the chain is malformed.
func (c *TaskChain) Root() *TaskChainNode {
	return c.Nodes[c.RootTaskID]
}

// AddTask creates a pending child task under parentID, enforcing the depth bound.
func (c *TaskChain) AddTask(parentID, agentSlug, description string) (*TaskChainNode, error) {
	parent, ok := c.Nodes[parentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrParentNotFound, parentID)
	}

	depth := parent.Depth + 1
	if depth > c.MaxDepth {
		return nil, fmt.Errorf("%w: depth %d > max %d", ErrDepthExceeded, depth, c.MaxDepth)
	}

	node := &TaskChainNode{
		TaskID:       GenerateTaskID(),
		ParentTaskID: parentID,
		AgentSlug:    agentSlug,
		Description:  description,
		Depth:        depth,
		CreatedAt:    time.Now(),
		Status:       TaskPending,
	}
	c.Nodes[node.TaskID] = node
	return node, nil
}

// chainDoc is the wire shape of a TaskChain. JSON has no ordered keyed map,
// so the node mapping travels as a list of [task_id, node] pairs.
type chainDoc struct {
	ChainID    string            `json:"chain_id"`
	RootTaskID string            `json:"root_task_id"`
	MaxDepth   int               `json:"max_depth"`
	Nodes      []json.RawMessage `json:"nodes"`
}

// OrderedNodes returns the node ids sorted by depth, then lexically by id.
// This is the serialization order and the order listing commands display.
func (c *TaskChain) OrderedNodes() []string {
	ids := make([]string, 0, len(c.Nodes))
	for id := range c.Nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := c.Nodes[ids[i]], c.Nodes[ids[j]]
		if a.Depth != b.Depth {
			return a.Depth < b.Depth
		}
		return ids[i] < ids[j]
	})
	return ids
}

// MarshalJSON renders the node map as pairs ordered by depth then task id.
// The order is for human readability only; rebuild is order-independent.
func (c TaskChain) MarshalJSON() ([]byte, error) {
	ids := c.OrderedNodes()

	doc := chainDoc{
		ChainID:    c.ChainID,
		RootTaskID: c.RootTaskID,
		MaxDepth:   c.MaxDepth,
		Nodes:      make([]json.RawMessage, 0, len(ids)),
	}
	for _, id := range ids {
		pair, err := json.Marshal([]any{id, c.Nodes[id]})
		if err != nil {
			return nil, fmt.Errorf("marshal node %s: %w", id, err)
		}
		doc.Nodes = append(doc.Nodes, pair)
	}

	return json.Marshal(doc)
}

// UnmarshalJSON rebuilds the node map from the serialized pair list.
// Every pair becomes an entry regardless of order.
func (c *TaskChain) UnmarshalJSON(data []byte) error {
	var doc chainDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	nodes := make(map[string]*TaskChainNode, len(doc.Nodes))
	for i, raw := range doc.Nodes {
		var pair []json.RawMessage
		if err := json.Unmarshal(raw, &pair); err != nil {
			return fmt.Errorf("unmarshal node pair %d: %w", i, err)
		}
		if len(pair) != 2 {
			return fmt.Errorf("node pair %d: want 2 elements, got %d", i, len(pair))
		}

		var id string
		if err := json.Unmarshal(pair[0], &id); err != nil {
			return fmt.Errorf("unmarshal node pair %d id: %w", i, err)
		}
		var node TaskChainNode
		if err := json.Unmarshal(pair[1], &node); err != nil {
			return fmt.Errorf("unmarshal node %s: %w", id, err)
		}
		nodes[id] = &node
	}

	c.ChainID = doc.ChainID
	c.RootTaskID = doc.RootTaskID
	c.MaxDepth = doc.MaxDepth
	c.Nodes = nodes
	return nil
}

// Checkpoint partitions a chain's settled tasks into three disjoint ordered lists.
// A task id appears in at most one list at a time.
type Checkpoint struct {
	CompletedTasks []string `json:"completed_tasks"`
	PendingTasks   []string `json:"pending_tasks"`
	FailedTasks    []string `json:"failed_tasks"`
}

// LastCompleted returns the most recently completed task id, or "".
func (cp Checkpoint) LastCompleted() string {
	if len(cp.CompletedTasks) == 0 {
		return ""
	}
	return cp.CompletedTasks[len(cp.CompletedTasks)-1]
}

// PersistedTaskState is the durable snapshot of a chain.
// It is overwritten in place on every save; last write wins.
type PersistedTaskState struct {
	ChainID    string      `json:"chain_id"`
	Chain      TaskChain   `json:"chain"`
	Status     ChainStatus `json:"status"`
	LastTaskID string      `json:"last_task_id"`
	Checkpoint Checkpoint  `json:"checkpoint"`
	SavedAt    time.Time   `json:"saved_at"`
}

// GenerateChainID creates a unique chain identifier.
func GenerateChainID() string {
	u := uuid.New().String()
	return "chain_" + strings.ReplaceAll(u[:8], "-", "")
}

// GenerateTaskID creates a unique task identifier.
func GenerateTaskID() string {
	u := uuid.New().String()
	return "task_" + strings.ReplaceAll(u[:8], "-", "")
}
