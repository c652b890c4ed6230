package agents

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"enlitens/pkg/errors"
	"enlitens/pkg/logger"
)

// RunnerConfig controls the retry loop around each agent invocation.
type RunnerConfig struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	BackoffFactor float64
	AgentTimeout  time.Duration
	CachePrefix   string
}

// RunResult carries the outcome of a run, including the last non-empty
// output when all attempts fail validation.
type RunResult struct {
	Response *Response
	Attempts int
	Cached   bool
	Err      error
}

// Runner executes agents with retry, per-attempt timeout and output caching.
type Runner struct {
	cfg   RunnerConfig
	cache OutputCache
	log   *logger.Logger
}

// NewRunner creates a runner. The cache may be nil.
func NewRunner(cfg RunnerConfig, cache OutputCache) *Runner {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 2 * time.Second
	}
	if cfg.BackoffFactor <= 1 {
		cfg.BackoffFactor = 1.8
	}
	return &Runner{cfg: cfg, cache: cache, log: logger.Get().With("component", "agent_runner")}
}

// Run invokes the agent with retries. An empty or invalid output triggers
// another attempt after backoff; a per-attempt timeout counts as a retry
// trigger, not a fatal error. When the budget is exhausted the last
// non-empty response is returned alongside the error.
func (r *Runner) Run(ctx context.Context, agent Agent, req Request) RunResult {
	cacheKey := r.cacheKey(agent, req)
	if r.cache != nil && cacheKey != "" {
		if resp, ok := r.cache.Get(ctx, cacheKey); ok {
			r.log.Debugf("Cache hit for agent %s", agent.Name())
			return RunResult{Response: resp, Cached: true}
		}
	}

	var lastNonEmpty *Response
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return RunResult{Response: lastNonEmpty, Attempts: attempt - 1, Err: err}
		}

		req.Attempt = attempt
		resp, err := r.runOnce(ctx, agent, req)

		switch {
		case err != nil:
			lastErr = err
			r.log.Warnf("Agent %s attempt %d/%d failed: %v", agent.Name(), attempt, r.cfg.MaxAttempts, err)
		case resp.Empty():
			lastErr = errors.ErrEmptyOutput
			r.log.Warnf("Agent %s attempt %d/%d produced empty output", agent.Name(), attempt, r.cfg.MaxAttempts)
		default:
			lastNonEmpty = resp
			if verr := agent.ValidateOutput(resp); verr != nil {
				lastErr = verr
				r.log.Warnf("Agent %s attempt %d/%d output invalid: %v", agent.Name(), attempt, r.cfg.MaxAttempts, verr)
			} else {
				if r.cache != nil && cacheKey != "" {
					r.cache.Set(ctx, cacheKey, resp)
				}
				return RunResult{Response: resp, Attempts: attempt}
			}
		}

		if attempt < r.cfg.MaxAttempts {
			delay := r.backoff(attempt)
			select {
			case <-ctx.Done():
				return RunResult{Response: lastNonEmpty, Attempts: attempt, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}
	}

	return RunResult{
		Response: lastNonEmpty,
		Attempts: r.cfg.MaxAttempts,
		Err:      errors.Wrapf(errors.ErrMaxAttempts, "agent %s: %v", agent.Name(), lastErr),
	}
}

func (r *Runner) runOnce(ctx context.Context, agent Agent, req Request) (*Response, error) {
	if r.cfg.AgentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.AgentTimeout)
		defer cancel()
	}

	resp, err := agent.Process(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Wrapf(errors.ErrTimeout, "agent %s timed out", agent.Name())
		}
		return nil, err
	}
	return resp, nil
}

func (r *Runner) backoff(attempt int) time.Duration {
	factor := math.Pow(r.cfg.BackoffFactor, float64(attempt-1))
	return time.Duration(float64(r.cfg.BaseDelay) * factor)
}

// cacheKey fingerprints the agent and document so identical reruns reuse
// cached output. Retried attempts within one run share the key.
func (r *Runner) cacheKey(agent Agent, req Request) string {
	if req.Document.DocumentID == "" {
		return ""
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d", r.cfg.CachePrefix, agent.Name(), req.Document.DocumentID, len(req.Document.DocumentText))
	return "agent_output:" + hex.EncodeToString(h.Sum(nil))
}
