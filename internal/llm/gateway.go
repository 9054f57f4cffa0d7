package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xaenox/micronote/internal/metrics"
	"github.com/xaenox/micronote/internal/prompts"
	"github.com/xaenox/micronote/internal/ratelimit"
	"go.uber.org/zap"
)

// Rate limit keys are process-wide: every worker shares one quota.
const (
	minuteKey = "llm:requests:minute"
	dayKey    = "llm:requests:day"
)

// Limits are the request quotas of the upstream API. Zero disables a limit.
type Limits struct {
	PerMinute int
	PerDay    int
}

// Gateway is the single entry point to the generative model. It enforces the
// shared quotas and turns every failure into an error value; callers degrade
// to non-AI behaviour instead of failing.
type Gateway struct {
	provider Provider
	limiter  ratelimit.Limiter
	limits   Limits
	prompts  *prompts.Builder
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewGateway(
	provider Provider,
	limiter ratelimit.Limiter,
	limits Limits,
	builder *prompts.Builder,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if builder == nil {
		builder = prompts.NewBuilder(time.UTC, nil)
	}
	return &Gateway{
		provider: provider,
		limiter:  limiter,
		limits:   limits,
		prompts:  builder,
		logger:   logger,
		metrics:  m,
	}
}

// Available reports whether a credential is configured.
func (g *Gateway) Available() bool {
	return g != nil && g.provider != nil && g.provider.Configured()
}

// Call sends prompt and returns the raw text of the first candidate. JSON
// decoding is left to the caller.
func (g *Gateway) Call(ctx context.Context, prompt string, opts CallOptions) (string, error) {
	raw, err := g.call(ctx, "call", prompt, opts)
	if err == nil {
		g.metrics.ObserveGatewayCall("call", "ok")
	}
	return raw, err
}

func (g *Gateway) call(ctx context.Context, op, prompt string, opts CallOptions) (string, error) {
	if !g.Available() {
		g.metrics.ObserveGatewayCall(op, "unavailable")
		return "", ErrUnavailable
	}

	if limited, err := g.rateLimited(ctx); limited || err != nil {
		g.metrics.ObserveGatewayCall(op, "rate_limited")
		if err != nil {
			g.logger.Error("Rate limiter check failed, refusing call",
				zap.String("operation", op),
				zap.Error(err))
			return "", fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		g.logger.Warn("LLM rate limit reached",
			zap.String("operation", op),
			zap.Int("per_minute", g.limits.PerMinute),
			zap.Int("per_day", g.limits.PerDay))
		return "", ErrRateLimited
	}

	start := time.Now()
	raw, err := g.provider.Generate(ctx, prompt, opts)
	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrMalformedResponse) {
			outcome = "malformed"
		}
		g.metrics.ObserveGatewayCall(op, outcome)
		g.logger.Error("LLM call failed",
			zap.String("operation", op),
			zap.String("provider", g.provider.Name()),
			zap.String("prompt_version", prompts.Version),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", err
	}

	g.hit(ctx)

	g.logger.Debug("LLM call succeeded",
		zap.String("operation", op),
		zap.String("provider", g.provider.Name()),
		zap.String("prompt_version", prompts.Version),
		zap.Duration("elapsed", time.Since(start)))

	return raw, nil
}

func (g *Gateway) rateLimited(ctx context.Context) (bool, error) {
	if g.limiter == nil {
		return false, nil
	}
	limited, err := g.limiter.TooManyAttempts(ctx, minuteKey, g.limits.PerMinute)
	if err != nil || limited {
		return limited, err
	}
	return g.limiter.TooManyAttempts(ctx, dayKey, g.limits.PerDay)
}

// hit consumes quota; only successful calls count.
func (g *Gateway) hit(ctx context.Context) {
	if g.limiter == nil {
		return
	}
	if err := g.limiter.Hit(ctx, minuteKey, time.Minute); err != nil {
		g.logger.Error("Failed to record minute quota", zap.Error(err))
	}
	if err := g.limiter.Hit(ctx, dayKey, 24*time.Hour); err != nil {
		g.logger.Error("Failed to record day quota", zap.Error(err))
	}
}

// malformed logs an unusable response with its raw body and wraps ErrMalformedResponse.
func (g *Gateway) malformed(op, raw string, reason string) error {
	g.metrics.ObserveGatewayCall(op, "malformed")
	g.logger.Warn("Malformed LLM response",
		zap.String("operation", op),
		zap.String("reason", reason),
		zap.String("response", raw))
	return fmt.Errorf("%w: %s: %s", ErrMalformedResponse, op, reason)
}

func (g *Gateway) ok(op string) {
	g.metrics.ObserveGatewayCall(op, "ok")
}
