package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/duskmantle/courtmind/api/schemas"
	"github.com/duskmantle/courtmind/internal/chronicle"
	"github.com/duskmantle/courtmind/internal/config"
	"github.com/duskmantle/courtmind/internal/engine"
	"github.com/duskmantle/courtmind/internal/graph"
	"github.com/duskmantle/courtmind/internal/llmclient"
	"github.com/duskmantle/courtmind/internal/media"
	"github.com/duskmantle/courtmind/internal/observability"
	"github.com/duskmantle/courtmind/internal/roster"
	"github.com/duskmantle/courtmind/internal/session"
	"github.com/duskmantle/courtmind/internal/simulation"
)

// newPlayCmd creates the interactive `play` command.
func newPlayCmd() *cobra.Command {
	playCmd := &cobra.Command{
		Use:   "play",
		Short: "Starts an interactive narrative session",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("session.seed", cmd.Flags().Lookup("seed")); err != nil {
				return err
			}
			if err := viper.BindPFlag("session.snapshot_path", cmd.Flags().Lookup("snapshot")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			components, err := initializeSession(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize session: %w", err)
			}
			defer components.Shutdown()

			if err := components.Scheduler.Start(ctx); err != nil {
				return err
			}

			if viper.GetBool("resume") {
				if err := components.Engine.LoadSession(ctx); err != nil {
					if !errors.Is(err, session.ErrNoSnapshot) {
						return fmt.Errorf("failed to resume session: %w", err)
					}
					logger.Warn("no snapshot to resume, starting fresh",
						zap.String("path", cfg.Session.SnapshotPath))
				}
			}

			return runSession(ctx, components.Engine, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	playCmd.Flags().Int64("seed", 0, "Deterministic cast seed. (Overrides config/env)")
	playCmd.Flags().String("snapshot", "", "Snapshot file path. (Overrides config/env)")
	playCmd.Flags().Bool("resume", false, "Resume from the snapshot file if it exists.")
	return playCmd
}

// sessionComponents holds the wired services for one play session.
type sessionComponents struct {
	Engine    *engine.Engine
	Scheduler *media.Scheduler
}

func (sc *sessionComponents) Shutdown() {
	if sc.Scheduler != nil {
		sc.Scheduler.Stop()
	}
}

// initializeSession handles dependency injection for the play command.
func initializeSession(cfg *config.Config, logger *zap.Logger) (*sessionComponents, error) {
	graphStore := graph.NewStore(logger)
	cast := roster.New(logger, cfg.Session.Seed, cfg.Session.ProceduralCast)
	turns := chronicle.NewRegistry(logger)

	collab, err := llmclient.New(cfg.Collaborator, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize collaborator client: %w", err)
	}

	scheduler := media.NewScheduler(cfg.Media, turns, llmclient.Generators(collab), logger)
	simulator := simulation.NewExecutor(cfg.Simulation, collab, graphStore, cfg.Session.ProtagonistNode, logger)
	snapshots := session.NewFileStore(cfg.Session.SnapshotPath, logger)

	eng, err := engine.New(engine.Options{
		Config:    cfg,
		Graph:     graphStore,
		Roster:    cast,
		Turns:     turns,
		Simulator: simulator,
		Director:  collab,
		Scheduler: scheduler,
		Snapshots: snapshots,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	return &sessionComponents{Engine: eng, Scheduler: scheduler}, nil
}

// runSession drives the interactive read-act-print loop until EOF, quit,
// or signal.
func runSession(ctx context.Context, eng *engine.Engine, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "You stand in the great hall. The court is watching.")
	fmt.Fprintln(out, `Type your action, or "/help" for commands.`)

	scanner := bufio.NewScanner(in)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := runSessionCommand(ctx, eng, out, line); quit {
				return nil
			}
			continue
		}

		result, err := eng.ProcessPlayerAction(ctx, line)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			fmt.Fprintf(out, "The moment slips away: %v\n", err)
			continue
		}
		printTurn(out, result)
	}
	return scanner.Err()
}

// runSessionCommand handles slash commands. Returns true when the
// session should end.
func runSessionCommand(ctx context.Context, eng *engine.Engine, out io.Writer, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(out, "/save            persist the session snapshot")
		fmt.Fprintln(out, "/load            restore from the session snapshot")
		fmt.Fprintln(out, "/ledger          show the protagonist's state")
		fmt.Fprintln(out, "/media           list failed media tasks")
		fmt.Fprintln(out, "/regen <id> <m>  regenerate one artifact (m: image|audio|video)")
		fmt.Fprintln(out, "/quit            leave the court")
	case "/save":
		if err := eng.SaveSession(ctx); err != nil {
			fmt.Fprintf(out, "save failed: %v\n", err)
		} else {
			fmt.Fprintln(out, "session saved")
		}
	case "/load":
		if err := eng.LoadSession(ctx); err != nil {
			fmt.Fprintf(out, "load failed: %v\n", err)
		} else {
			fmt.Fprintln(out, "session restored")
		}
	case "/ledger":
		l := eng.Ledger()
		fmt.Fprintf(out, "distress %.0f  compliance %.0f  trauma %.0f  hope %.0f\n",
			l.Distress, l.Compliance, l.Trauma, l.Hope)
	case "/media":
		failed := eng.FailedMedia()
		if len(failed) == 0 {
			fmt.Fprintln(out, "no failed media tasks")
			break
		}
		for _, task := range failed {
			fmt.Fprintf(out, "%s %s (retries %d): %s\n", task.TurnID, task.Modality, task.Retries, task.LastError)
		}
	case "/regen":
		if len(fields) != 3 {
			fmt.Fprintln(out, "usage: /regen <turn-id> <image|audio|video>")
			break
		}
		if err := eng.RegenerateMedia(fields[1], schemas.Modality(fields[2])); err != nil {
			fmt.Fprintf(out, "regenerate failed: %v\n", err)
		} else {
			fmt.Fprintln(out, "regeneration queued")
		}
	default:
		fmt.Fprintf(out, "unknown command %s\n", fields[0])
	}
	return false
}

func printTurn(out io.Writer, result engine.TurnResult) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, result.Turn.Text)
	for _, line := range result.Turn.Script {
		fmt.Fprintf(out, "  %s: %s\n", line.Speaker, line.Line)
	}
	if len(result.Choices) > 0 {
		fmt.Fprintln(out)
		for i, choice := range result.Choices {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, choice)
		}
	}
}
