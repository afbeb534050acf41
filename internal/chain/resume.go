package chain

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmalatre/handoff/internal/delegate"
	"github.com/jmalatre/handoff/internal/events"
)

// ResumeOptions is the caller's intent when resuming a chain.
type ResumeOptions struct {
	SkipFailed  bool   // drop failed tasks from the checkpoint and run only pending ones
	RetryFailed bool   // re-run failed tasks first, then pending ones
	FromTask    string // resume point override; defaults to the persisted last task
}

// ResumeResult reports the outcome of a resume attempt.
type ResumeResult struct {
	ChainID        string `json:"chain_id"`
	Resumed        bool   `json:"resumed"`
	FromTaskID     string `json:"from_task_id"`
	TotalRemaining int    `json:"total_remaining"`
	SkippedCount   int    `json:"skipped_count"`
}

// ResumeInfo is a read-only view of a chain's resume position.
type ResumeInfo struct {
	LastCompletedTask string   `json:"last_completed_task"`
	PendingTasks      []string `json:"pending_tasks"`
	FailedTasks       []string `json:"failed_tasks"`
}

// EngineConfig holds dependencies for creating an Engine.
type EngineConfig struct {
	Store    Store
	Executor delegate.Executor // optional; without it Resume persists but does not dispatch
	Bus      *events.Bus       // optional
	WorkDir  string
	Timeout  time.Duration // per-task execution timeout handed to the executor

	ContextFiles []string // handed to every dispatched task
	SessionID    string   // defaults to a fresh uuid per dispatch run
}

// Engine decides, from persisted checkpoint state and caller intent, which
// tasks re-enter execution and how persisted state is mutated.
//
// Two concurrent resumes of the same chain race on a read-modify-write cycle,
// so the engine serializes the load-compute-save sequence per chain id.
// All callers must share one Engine (or at least one process) for this to hold.
type Engine struct {
	store Store
	exec  delegate.Executor
	bus   *events.Bus

	workDir      string
	timeout      time.Duration
	contextFiles []string
	sessionID    string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates a resumption engine.
func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{
		store:        cfg.Store,
		exec:         cfg.Executor,
		bus:          cfg.Bus,
		workDir:      cfg.WorkDir,
		timeout:      cfg.Timeout,
		contextFiles: cfg.ContextFiles,
		sessionID:    cfg.SessionID,
		locks:        make(map[string]*sync.Mutex),
	}
}

// chainLock returns the mutex guarding one chain's load-compute-save sequence.
func (e *Engine) chainLock(chainID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.locks[chainID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[chainID] = l
	}
	return l
}

// CanResume reports whether a chain can re-enter execution: it must exist,
// be running or paused, and have pending or failed tasks left.
// Persistence failures are propagated.
func (e *Engine) CanResume(chainID string) (bool, error) {
	state, err := e.store.Load(chainID)
	if err != nil {
		if errors.Is(err, ErrChainNotFound) {
			return false, nil
		}
		return false, err
	}

	if !state.Status.IsResumable() {
		return false, nil
	}

	cp := state.Checkpoint
	return len(cp.PendingTasks) > 0 || len(cp.FailedTasks) > 0, nil
}

// Info returns the chain's resume position, or nil if the chain doesn't exist.
// Read-only; persisted state is never mutated.
func (e *Engine) Info(chainID string) (*ResumeInfo, error) {
	state, err := e.store.Load(chainID)
	if err != nil {
		if errors.Is(err, ErrChainNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &ResumeInfo{
		LastCompletedTask: state.Checkpoint.LastCompleted(),
		PendingTasks:      state.Checkpoint.PendingTasks,
		FailedTasks:       state.Checkpoint.FailedTasks,
	}, nil
}

// Pause suspends a running chain so it can be resumed later.
func (e *Engine) Pause(chainID string) error {
	lock := e.chainLock(chainID)
	lock.Lock()
	defer lock.Unlock()

	state, err := e.store.Load(chainID)
	if err != nil {
		return err
	}
	if !state.Status.IsResumable() {
		return errors.New("chain is in a terminal state")
	}
	if state.Status == ChainPaused {
		return nil
	}

	state.Status = ChainPaused
	state.SavedAt = time.Now()
	return e.store.Save(state)
}

// Resume loads the chain, computes the work list from the checkpoint and the
// caller's skip/retry intent, persists the updated state, and, when an
// executor is configured, dispatches the work list in order.
//
// Failed tasks with neither SkipFailed nor RetryFailed set are excluded from
// the work list and counted in SkippedCount, but stay in the persisted
// failed list. That asymmetry with the explicit-skip path is deliberate and
// kept as-is; do not silently retry in its place.
func (e *Engine) Resume(ctx context.Context, chainID string, opts ResumeOptions) (*ResumeResult, error) {
	lock := e.chainLock(chainID)
	lock.Lock()
	defer lock.Unlock()

	state, err := e.store.Load(chainID)
	if err != nil {
		if errors.Is(err, ErrChainNotFound) {
			return &ResumeResult{ChainID: chainID}, nil
		}
		return nil, err
	}

	// Terminal chains are never resumed and never mutated.
	if !state.Status.IsResumable() {
		return &ResumeResult{ChainID: chainID, FromTaskID: state.LastTaskID}, nil
	}

	fromTaskID := state.LastTaskID
	if opts.FromTask != "" {
		fromTaskID = opts.FromTask
	}

	cp := &state.Checkpoint
	var tasksToRun []string
	skipped := 0
	switch {
	case opts.RetryFailed && len(cp.FailedTasks) > 0:
		// Failed tasks re-run first, in their original order.
		tasksToRun = append(append([]string{}, cp.FailedTasks...), cp.PendingTasks...)
	case opts.SkipFailed && len(cp.FailedTasks) > 0:
		tasksToRun = append([]string{}, cp.PendingTasks...)
		skipped = len(cp.FailedTasks)
	case len(cp.FailedTasks) > 0:
		// Neither flag: excluded from the run list, left in the checkpoint.
		tasksToRun = append([]string{}, cp.PendingTasks...)
		skipped = len(cp.FailedTasks)
	default:
		tasksToRun = append([]string{}, cp.PendingTasks...)
	}

	if opts.RetryFailed {
		cp.PendingTasks = append(append([]string{}, cp.FailedTasks...), cp.PendingTasks...)
		cp.FailedTasks = nil
	} else if opts.SkipFailed {
		cp.FailedTasks = nil
	}

	state.Status = ChainRunning
	state.LastTaskID = fromTaskID
	state.SavedAt = time.Now()

	if err := e.store.Save(state); err != nil {
		return nil, err
	}
	e.publish(events.NewTypedEventWithChain(events.SourceStore, events.ChainSavedPayload{
		ChainID: chainID,
		Status:  string(state.Status),
	}, chainID))

	result := &ResumeResult{
		ChainID:        chainID,
		Resumed:        true,
		FromTaskID:     fromTaskID,
		TotalRemaining: len(tasksToRun),
		SkippedCount:   skipped,
	}

	e.publish(events.NewTypedEventWithChain(events.SourceResume, events.ChainResumedPayload{
		ChainID:        chainID,
		FromTaskID:     fromTaskID,
		TotalRemaining: result.TotalRemaining,
		SkippedCount:   result.SkippedCount,
	}, chainID))

	if e.exec != nil {
		if err := e.dispatch(ctx, state, tasksToRun); err != nil {
			return result, err
		}
	}

	return result, nil
}

// dispatch runs every task in order, advancing and re-persisting the
// checkpoint after each one so a crash loses at most the in-flight task.
func (e *Engine) dispatch(ctx context.Context, state *PersistedTaskState, tasksToRun []string) error {
	sessionID := e.sessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	for _, taskID := range tasksToRun {
		if err := ctx.Err(); err != nil {
			// Leave the chain running; it stays resumable.
			return err
		}

		res := e.runTask(ctx, state, taskID, sessionID)

		advance(&state.Checkpoint, taskID, res.Success)
		if node, ok := state.Chain.Nodes[taskID]; ok {
			if res.Success {
				node.Status = TaskCompleted
			} else {
				node.Status = TaskFailed
			}
		}
		state.LastTaskID = taskID
		state.SavedAt = time.Now()
		if err := e.store.Save(state); err != nil {
			return err
		}
	}

	// All dispatched: settle the chain status.
	if len(state.Checkpoint.PendingTasks) == 0 {
		if len(state.Checkpoint.FailedTasks) == 0 {
			state.Status = ChainCompleted
		} else {
			state.Status = ChainFailed
		}
		state.SavedAt = time.Now()
		if err := e.store.Save(state); err != nil {
			return err
		}
		e.publish(events.NewTypedEventWithChain(events.SourceStore, events.ChainSavedPayload{
			ChainID: state.ChainID,
			Status:  string(state.Status),
		}, state.ChainID))
	}

	return nil
}

// Delete removes a chain's persisted state and announces the removal.
// Reports whether anything was removed.
func (e *Engine) Delete(chainID string) (bool, error) {
	lock := e.chainLock(chainID)
	lock.Lock()
	defer lock.Unlock()

	removed, err := e.store.Delete(chainID)
	if err != nil {
		return false, err
	}
	if removed {
		e.publish(events.NewTypedEventWithChain(events.SourceStore, events.ChainDeletedPayload{
			ChainID: chainID,
		}, chainID))
	}
	return removed, nil
}

// runTask executes one task via the executor. Executor transport errors are
// folded into a failed result; execution failure is data, not an error.
func (e *Engine) runTask(ctx context.Context, state *PersistedTaskState, taskID, sessionID string) *delegate.Result {
	node, ok := state.Chain.Nodes[taskID]
	if !ok {
		return &delegate.Result{Error: "task not in chain: " + taskID}
	}

	target, err := delegate.ResolveTarget(node.AgentSlug)
	if err != nil {
		return &delegate.Result{Error: err.Error()}
	}

	level := delegate.LevelSubOrchestrator
	if node.Depth >= 2 {
		level = delegate.LevelWorker
	}

	e.publish(events.NewTypedEventWithChain(events.SourceResume, events.TaskDispatchedPayload{
		ChainID:   state.ChainID,
		TaskID:    taskID,
		AgentSlug: node.AgentSlug,
	}, state.ChainID))

	started := time.Now()
	res, err := e.exec.ExecuteDelegateTask(ctx, delegate.TaskParams{
		Target:       target,
		Task:         node.Description,
		ContextFiles: e.contextFiles,
		Timeout:      e.timeout,
	}, delegate.ExecContext{
		WorkingDir: e.workDir,
		SessionID:  sessionID,
		MessageID:  uuid.New().String(),
		CallID:     uuid.New().String(),
		AgentLevel: level,
		AgentSlug:  node.AgentSlug,
	})
	if err != nil {
		res = &delegate.Result{Error: err.Error()}
	}

	if res.Success {
		e.publish(events.NewTypedEventWithChain(events.SourceResume, events.TaskCompletedPayload{
			ChainID:      state.ChainID,
			TaskID:       taskID,
			TaskPacketID: res.TaskPacketID,
			Duration:     time.Since(started),
		}, state.ChainID))
	} else {
		slog.Warn("delegated task failed", "chain_id", state.ChainID, "task_id", taskID, "error", res.Error)
		e.publish(events.NewTypedEventWithChain(events.SourceResume, events.TaskFailedPayload{
			ChainID: state.ChainID,
			TaskID:  taskID,
			Error:   res.Error,
		}, state.ChainID))
	}

	return res
}

// advance moves a task id out of the pending list into completed or failed.
func advance(cp *Checkpoint, taskID string, success bool) {
	for i, id := range cp.PendingTasks {
		if id == taskID {
			cp.PendingTasks = append(cp.PendingTasks[:i], cp.PendingTasks[i+1:]...)
			break
		}
	}
	if success {
		cp.CompletedTasks = append(cp.CompletedTasks, taskID)
	} else {
		cp.FailedTasks = append(cp.FailedTasks, taskID)
	}
}

func (e *Engine) publish(event events.Event) {
	if e.bus != nil {
		e.bus.Publish(event)
	}
}
