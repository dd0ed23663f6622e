// Package llmclient talks to the external collaborators over JSON HTTP:
// the reasoning endpoint that plays the agents, the direction endpoint
// that composes turns, and the generation endpoints that produce media
// artifacts. Transport-level blips are retried briefly here; policy-level
// retries (simulation attempts, media re-enqueues) belong to the callers.
package llmclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/duskmantle/courtmind/api/schemas"
	"github.com/duskmantle/courtmind/internal/config"
	"github.com/duskmantle/courtmind/internal/llmutil"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client implements schemas.ReasoningClient and schemas.DirectorClient
// against a configured collaborator base URL.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxElapsed time.Duration
	logger     *zap.Logger
}

var (
	_ schemas.ReasoningClient = (*Client)(nil)
	_ schemas.DirectorClient  = (*Client)(nil)
)

// New builds a collaborator client from config.
func New(cfg config.CollaboratorConfig, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("collaborator base URL is required")
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	maxElapsed := cfg.RetryWindow
	if maxElapsed <= 0 {
		maxElapsed = 20 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		maxElapsed: maxElapsed,
		logger:     logger.Named("llm_client"),
	}, nil
}

// SimulateAgent asks the reasoning collaborator to play one agent for one
// turn. The response body is tolerant-parsed into an AgentThought.
func (c *Client) SimulateAgent(ctx context.Context, agentCtx schemas.AgentContext) (schemas.AgentThought, error) {
	body, err := c.post(ctx, "/v1/simulate", agentCtx)
	if err != nil {
		return schemas.AgentThought{}, err
	}
	thought, err := llmutil.ParseJSONResponse[schemas.AgentThought](string(body))
	if err != nil {
		return schemas.AgentThought{}, schemas.NewCollabError(schemas.ErrCodeBadPayload, err)
	}
	if thought.AgentID == "" {
		thought.AgentID = agentCtx.Profile.ID
	}
	return *thought, nil
}

// Direct asks the narrative direction collaborator to compose a turn.
func (c *Client) Direct(ctx context.Context, input schemas.DirectorInput) (schemas.DirectorOutcome, error) {
	body, err := c.post(ctx, "/v1/direct", input)
	if err != nil {
		return schemas.DirectorOutcome{}, err
	}
	outcome, err := llmutil.ParseJSONResponse[schemas.DirectorOutcome](string(body))
	if err != nil {
		return schemas.DirectorOutcome{}, schemas.NewCollabError(schemas.ErrCodeBadPayload, err)
	}
	return *outcome, nil
}

// post sends one JSON payload, retrying transient transport failures for
// a bounded window. Rate-limit responses are returned immediately so the
// caller's own backoff policy governs them.
func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, schemas.NewCollabError(schemas.ErrCodeTimeout, err)
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, schemas.NewCollabError(schemas.ErrCodeBadPayload, err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.maxElapsed
	b.MaxInterval = 5 * time.Second

	var respBody []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
		if err != nil {
			return backoff.Permanent(schemas.NewCollabError(schemas.ErrCodeBadPayload, err))
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(schemas.NewCollabError(schemas.ErrCodeTimeout, err))
			}
			c.logger.Warn("Transport error calling collaborator, retrying",
				zap.String("path", path), zap.Error(err))
			return schemas.NewCollabError(schemas.ErrCodeUnavailable, err)
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return schemas.NewCollabError(schemas.ErrCodeUnavailable, err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			c.logger.Debug("Collaborator call complete",
				zap.String("path", path), zap.Duration("duration", time.Since(start)))
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			return backoff.Permanent(schemas.NewCollabError(schemas.ErrCodeRateLimited,
				fmt.Errorf("collaborator rate limited: %s", truncateBody(respBody))))
		case resp.StatusCode >= 500:
			c.logger.Warn("Collaborator server error, retrying",
				zap.String("path", path), zap.Int("status", resp.StatusCode))
			return schemas.NewCollabError(schemas.ErrCodeUnavailable,
				fmt.Errorf("status %d: %s", resp.StatusCode, truncateBody(respBody)))
		default:
			return backoff.Permanent(schemas.NewCollabError(schemas.ErrCodeBadPayload,
				fmt.Errorf("status %d: %s", resp.StatusCode, truncateBody(respBody))))
		}
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		var ce *schemas.CollabError
		if errors.As(err, &ce) {
			return nil, ce
		}
		return nil, schemas.NewCollabError(schemas.ErrCodeUnavailable, err)
	}
	return respBody, nil
}

func truncateBody(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
