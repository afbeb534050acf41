package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/jmalatre/handoff/internal/chain"
	"github.com/jmalatre/handoff/internal/delegate"
	"github.com/jmalatre/handoff/internal/events"
	"github.com/jmalatre/handoff/internal/mcp"
)

// NewDelegateCommand returns the delegate subcommand.
func NewDelegateCommand() *cli.Command {
	return &cli.Command{
		Name:      "delegate",
		Usage:     "Delegate a task to an agent",
		ArgsUsage: "<agent> <task>",
		Description: `The agent identifier is either a built-in agent slug, or
mcp:<server_id>/<tool_name> for a configured MCP tool server.
custom:<name> agents are not supported through this command.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "files",
				Usage: "Comma-separated related files or glob patterns",
			},
			&cli.IntFlag{
				Name:  "timeout",
				Usage: "Task timeout in milliseconds",
			},
			&cli.StringFlag{
				Name:  "session",
				Usage: "Session ID to attribute the delegation to",
			},
		},
		Action: runDelegate,
	}
}

func runDelegate(ctx context.Context, cmd *cli.Command) error {
	identifier := cmd.Args().Get(0)
	task := cmd.Args().Get(1)
	if identifier == "" || task == "" {
		return fmt.Errorf("usage: handoff delegate <agent> <task>")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Resolution errors fail fast, before anything is executed or persisted.
	if _, err := delegate.ResolveTarget(identifier); err != nil {
		return err
	}

	timeout := cfg.Delegate.DefaultTimeout.Duration()
	if cmd.IsSet("timeout") {
		ms := cmd.Int("timeout")
		if ms <= 0 {
			return fmt.Errorf("timeout must be a positive number of milliseconds, got %d", ms)
		}
		timeout = time.Duration(ms) * time.Millisecond
	}

	files, err := delegate.ExpandContextFiles(cmd.String("files"), cfg.Delegate.WorkDir)
	if err != nil {
		return err
	}

	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()
	unsubscribe := bus.Subscribe(printProgress,
		events.EventTaskDispatched, events.EventTaskCompleted, events.EventTaskFailed)
	defer unsubscribe()

	store := chain.NewFileStore(cfg.Storage.Dir)
	engine := chain.NewEngine(chain.EngineConfig{
		Store:        store,
		Executor:     mcp.NewExecutor(cfg.MCP),
		Bus:          bus,
		WorkDir:      cfg.Delegate.WorkDir,
		Timeout:      timeout,
		ContextFiles: files,
		SessionID:    cmd.String("session"),
	})

	c := chain.NewChain(identifier, task, cfg.Delegate.MaxDepth)
	state := &chain.PersistedTaskState{
		ChainID:    c.ChainID,
		Chain:      *c,
		Status:     chain.ChainRunning,
		LastTaskID: c.RootTaskID,
		Checkpoint: chain.Checkpoint{
			CompletedTasks: []string{},
			PendingTasks:   []string{c.RootTaskID},
			FailedTasks:    []string{},
		},
	}
	if err := store.Save(state); err != nil {
		return fmt.Errorf("save chain: %w", err)
	}
	bus.Publish(events.NewTypedEventWithChain(events.SourceDelegate, events.ChainSavedPayload{
		ChainID: c.ChainID,
		Status:  string(state.Status),
	}, c.ChainID))

	fmt.Printf("Chain %s created\n", c.ChainID)

	// The resumption engine drives dispatch of the pending work list.
	if _, err := engine.Resume(ctx, c.ChainID, chain.ResumeOptions{}); err != nil {
		return fmt.Errorf("run chain: %w", err)
	}

	final, err := store.Load(c.ChainID)
	if err != nil {
		return fmt.Errorf("load chain: %w", err)
	}

	if final.Status != chain.ChainCompleted {
		return fmt.Errorf("chain %s finished with status %s", c.ChainID, final.Status)
	}
	fmt.Printf("Chain %s completed\n", c.ChainID)
	return nil
}

func printProgress(e events.Event) {
	switch e.Type {
	case events.EventTaskDispatched:
		fmt.Printf("→ %v (%v)\n", e.Payload["task_id"], e.Payload["agent_slug"])
	case events.EventTaskCompleted:
		fmt.Printf("✓ %v\n", e.Payload["task_id"])
	case events.EventTaskFailed:
		fmt.Printf("✗ %v: %v\n", e.Payload["task_id"], e.Payload["error"])
	}
}
