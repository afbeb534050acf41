package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/jmalatre/handoff/internal/chain"
	"github.com/jmalatre/handoff/internal/events"
	"github.com/jmalatre/handoff/internal/mcp"
)

// NewChainsCommand returns the chains subcommand.
func NewChainsCommand() *cli.Command {
	return &cli.Command{
		Name:  "chains",
		Usage: "Manage delegation chains",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List resumable chains",
				Action: runChainsList,
			},
			{
				Name:      "show",
				Usage:     "Show chain details",
				ArgsUsage: "<chain_id>",
				Action:    runChainsShow,
			},
			{
				Name:      "resume",
				Usage:     "Resume an interrupted chain",
				ArgsUsage: "<chain_id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "skip-failed",
						Usage: "Drop failed tasks and run only pending ones",
					},
					&cli.BoolFlag{
						Name:  "retry-failed",
						Usage: "Re-run failed tasks before pending ones",
					},
					&cli.StringFlag{
						Name:  "from",
						Usage: "Task ID to resume from, overriding the saved position",
					},
				},
				Action: runChainsResume,
			},
			{
				Name:      "pause",
				Usage:     "Pause a running chain",
				ArgsUsage: "<chain_id>",
				Action:    runChainsPause,
			},
			{
				Name:      "delete",
				Usage:     "Delete a chain's persisted state",
				ArgsUsage: "<chain_id>",
				Action:    runChainsDelete,
			},
			{
				Name:  "prune",
				Usage: "Delete finished chains older than a cutoff",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "older-than",
						Usage: "Age cutoff, e.g. 720h",
						Value: 30 * 24 * time.Hour,
					},
				},
				Action: runChainsPrune,
			},
		},
		DefaultCommand: "list",
	}
}

func newChainStore(cmd *cli.Command) (*chain.FileStore, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return chain.NewFileStore(cfg.Storage.Dir), nil
}

// newEventLogBus returns a bus that mirrors every event to the debug log,
// and a teardown func.
func newEventLogBus(bufferSize int) (*events.Bus, func()) {
	bus := events.NewBus(bufferSize)
	unsubscribe := bus.Subscribe(func(e events.Event) {
		slog.Debug("event", "type", e.Type, "source", e.Source, "chain_id", e.ChainID)
	})
	return bus, func() {
		unsubscribe()
		bus.Close()
	}
}

func runChainsList(_ context.Context, cmd *cli.Command) error {
	store, err := newChainStore(cmd)
	if err != nil {
		return err
	}

	list, err := store.ListResumable()
	if err != nil {
		return fmt.Errorf("list chains: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No resumable chains found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CHAIN ID\tSTATUS\tSAVED")
	for _, c := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			c.ChainID,
			c.Status,
			c.SavedAt.Format("2006-01-02 15:04:05"),
		)
	}
	return w.Flush()
}

func runChainsShow(_ context.Context, cmd *cli.Command) error {
	chainID := cmd.Args().First()
	if chainID == "" {
		return fmt.Errorf("usage: handoff chains show <chain_id>")
	}

	store, err := newChainStore(cmd)
	if err != nil {
		return err
	}

	state, err := store.Load(chainID)
	if err != nil {
		return fmt.Errorf("load chain: %w", err)
	}

	fmt.Printf("Chain:       %s\n", state.ChainID)
	fmt.Printf("Status:      %s\n", state.Status)
	fmt.Printf("Root task:   %s\n", state.Chain.RootTaskID)
	fmt.Printf("Last task:   %s\n", state.LastTaskID)
	fmt.Printf("Saved:       %s\n", state.SavedAt.Format("2006-01-02 15:04:05"))

	cp := state.Checkpoint
	fmt.Printf("\nCheckpoint:  %d completed, %d pending, %d failed\n",
		len(cp.CompletedTasks), len(cp.PendingTasks), len(cp.FailedTasks))

	if len(state.Chain.Nodes) > 0 {
		fmt.Println("\nTasks:")
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "  TASK ID\tDEPTH\tSTATUS\tAGENT\tDESCRIPTION")
		for _, id := range state.Chain.OrderedNodes() {
			node := state.Chain.Nodes[id]
			fmt.Fprintf(w, "  %s\t%d\t%s\t%s\t%s\n",
				node.TaskID,
				node.Depth,
				node.Status,
				node.AgentSlug,
				truncate(node.Description, 60),
			)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if len(cp.FailedTasks) > 0 {
		fmt.Println("\nFailed tasks:")
		for _, id := range cp.FailedTasks {
			fmt.Printf("  %s\n", id)
		}
	}

	return nil
}

func runChainsResume(ctx context.Context, cmd *cli.Command) error {
	chainID := cmd.Args().First()
	if chainID == "" {
		return fmt.Errorf("usage: handoff chains resume <chain_id>")
	}
	if cmd.Bool("skip-failed") && cmd.Bool("retry-failed") {
		return fmt.Errorf("--skip-failed and --retry-failed are mutually exclusive")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	bus, teardown := newEventLogBus(cfg.Events.BufferSize)
	defer teardown()

	store := chain.NewFileStore(cfg.Storage.Dir)
	engine := chain.NewEngine(chain.EngineConfig{
		Store:    store,
		Executor: mcp.NewExecutor(cfg.MCP),
		Bus:      bus,
		WorkDir:  cfg.Delegate.WorkDir,
		Timeout:  cfg.Delegate.DefaultTimeout.Duration(),
	})

	res, err := engine.Resume(ctx, chainID, chain.ResumeOptions{
		SkipFailed:  cmd.Bool("skip-failed"),
		RetryFailed: cmd.Bool("retry-failed"),
		FromTask:    cmd.String("from"),
	})
	if err != nil {
		return fmt.Errorf("resume chain: %w", err)
	}

	if !res.Resumed {
		fmt.Printf("Chain %s cannot be resumed.\n", chainID)
		return nil
	}

	fmt.Printf("Resumed chain %s from %s: %d task(s) to run, %d skipped\n",
		res.ChainID, res.FromTaskID, res.TotalRemaining, res.SkippedCount)

	final, err := store.Load(chainID)
	if err != nil {
		return fmt.Errorf("load chain: %w", err)
	}
	fmt.Printf("Chain %s is now %s\n", chainID, final.Status)
	return nil
}

func runChainsPause(_ context.Context, cmd *cli.Command) error {
	chainID := cmd.Args().First()
	if chainID == "" {
		return fmt.Errorf("usage: handoff chains pause <chain_id>")
	}

	store, err := newChainStore(cmd)
	if err != nil {
		return err
	}

	engine := chain.NewEngine(chain.EngineConfig{Store: store})
	if err := engine.Pause(chainID); err != nil {
		return fmt.Errorf("pause chain: %w", err)
	}

	fmt.Printf("Chain %s paused.\n", chainID)
	return nil
}

func runChainsDelete(_ context.Context, cmd *cli.Command) error {
	chainID := cmd.Args().First()
	if chainID == "" {
		return fmt.Errorf("usage: handoff chains delete <chain_id>")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	bus, teardown := newEventLogBus(cfg.Events.BufferSize)
	defer teardown()

	engine := chain.NewEngine(chain.EngineConfig{
		Store: chain.NewFileStore(cfg.Storage.Dir),
		Bus:   bus,
	})

	removed, err := engine.Delete(chainID)
	if err != nil {
		return fmt.Errorf("delete chain: %w", err)
	}
	if !removed {
		fmt.Printf("Chain %s not found.\n", chainID)
		return nil
	}

	fmt.Printf("Chain %s deleted.\n", chainID)
	return nil
}

func runChainsPrune(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	bus, teardown := newEventLogBus(cfg.Events.BufferSize)
	defer teardown()

	store := chain.NewFileStore(cfg.Storage.Dir)
	engine := chain.NewEngine(chain.EngineConfig{Store: store, Bus: bus})

	cutoff := time.Now().Add(-cmd.Duration("older-than"))

	all, err := store.ListAll()
	if err != nil {
		return fmt.Errorf("list chains: %w", err)
	}

	pruned := 0
	for _, state := range all {
		// Resumable chains are never pruned regardless of age.
		if state.Status.IsResumable() {
			continue
		}
		if state.SavedAt.After(cutoff) {
			continue
		}
		removed, err := engine.Delete(state.ChainID)
		if err != nil {
			return fmt.Errorf("delete chain %s: %w", state.ChainID, err)
		}
		if removed {
			pruned++
		}
	}

	fmt.Printf("Pruned %d chain(s).\n", pruned)
	return nil
}

// truncate shortens s to at most n runes, cutting on rune boundaries.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
