// Package simulation fans the selected cast out to the reasoning
// collaborator, one isolated context per agent, and folds transport
// failures into deterministic fallback thoughts so a bad wire never
// stalls the turn.
package simulation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/duskmantle/courtmind/api/schemas"
	"github.com/duskmantle/courtmind/internal/config"
)

// GraphReader is the slice of the knowledge graph the executor needs.
type GraphReader interface {
	EdgesTouching(nodeID string) []schemas.Edge
}

// Executor runs one simulation round per turn.
type Executor struct {
	cfg           config.SimulationConfig
	client        schemas.ReasoningClient
	graph         GraphReader
	protagonistID string
	logger        *zap.Logger
}

func NewExecutor(cfg config.SimulationConfig, client schemas.ReasoningClient, graph GraphReader, protagonistID string, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		cfg:           cfg,
		client:        client,
		graph:         graph,
		protagonistID: protagonistID,
		logger:        logger.Named("simulation"),
	}
}

// Run simulates every selected agent concurrently and returns one thought
// per agent, in selection order. A slot whose calls exhaust the retry
// budget holds a fallback thought carrying the sentinel agent id; Run
// itself fails only when ctx is cancelled.
func (e *Executor) Run(ctx context.Context, selected []schemas.AgentProfile, scene string, turn int) ([]schemas.AgentThought, error) {
	thoughts := make([]schemas.AgentThought, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	for i, agent := range selected {
		g.Go(func() error {
			agentCtx := e.buildContext(agent, selected, scene, turn)
			thought, err := e.simulateWithRetry(gctx, agentCtx)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				e.logger.Warn("agent simulation exhausted retries, using fallback",
					zap.String("agent_id", agent.ID),
					zap.Int("turn", turn),
					zap.Error(err))
				thought = fallbackThought(agent)
			}
			thoughts[i] = thought
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return thoughts, nil
}

// simulateWithRetry makes the initial call plus up to MaxRetries more.
// Rate-limit responses back off exponentially; everything else waits a
// short fixed interval scaled by the attempt number.
func (e *Executor) simulateWithRetry(ctx context.Context, agentCtx schemas.AgentContext) (schemas.AgentThought, error) {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		thought, err := e.client.SimulateAgent(callCtx, agentCtx)
		cancel()
		if err == nil {
			if thought.AgentID == "" {
				thought.AgentID = agentCtx.Profile.ID
			}
			return thought, nil
		}
		lastErr = err
		if attempt == e.cfg.MaxRetries {
			break
		}

		delay := e.retryDelay(err, attempt)
		select {
		case <-ctx.Done():
			return schemas.AgentThought{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	return schemas.AgentThought{}, fmt.Errorf("simulate agent %s: %w", agentCtx.Profile.ID, lastErr)
}

func (e *Executor) retryDelay(err error, attempt int) time.Duration {
	if schemas.IsRateLimited(err) {
		return e.cfg.RateLimitBase * (1 << attempt)
	}
	return e.cfg.BackoffBase * time.Duration(attempt+1)
}

// fallbackThought is the deterministic stand-in when the collaborator
// stays unreachable for an agent. The sentinel id marks the slot so the
// engine applies the favor penalty without trusting any generated text.
func fallbackThought(agent schemas.AgentProfile) schemas.AgentThought {
	return schemas.AgentThought{
		AgentID:          schemas.FallbackAgentID,
		PublicAction:     fmt.Sprintf("%s observes silently from the edge of the chamber.", agent.Name),
		HiddenMotivation: "withdrawn",
		FavorDelta:       -1,
		Emotions:         agent.Emotions,
	}
}
