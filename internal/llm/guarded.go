package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/Veraticus/spice-intake/internal/common"
)

// Guarded wraps a Client with a rate limiter, a circuit breaker, retries with
// exponential backoff and a TTL response cache. Identical prompt pairs within
// the TTL are answered from the cache without touching the provider.
type Guarded struct {
	next    Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[string]
	cache   *responseCache
	logger  *slog.Logger
	retry   common.RetryOptions
}

var _ Client = (*Guarded)(nil)

// NewGuarded wraps next using the resilience settings in cfg.
func NewGuarded(next Client, cfg Config, logger *slog.Logger) *Guarded {
	logger = common.OrDefault(logger)

	g := &Guarded{
		next:   next,
		logger: logger,
		retry: common.RetryOptions{
			MaxAttempts:  cfg.MaxRetries + 1,
			InitialDelay: cfg.RetryDelay,
		},
	}

	if cfg.RateLimit > 0 {
		burst := int(math.Max(1, math.Ceil(cfg.RateLimit)))
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	if cfg.CacheTTL > 0 {
		g.cache = newResponseCache(cfg.CacheTTL)
	}

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	openFor := cfg.BreakerTimeout
	if openFor <= 0 {
		openFor = 30 * time.Second
	}

	g.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "llm",
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// The caller giving up says nothing about the provider's health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	})

	return g
}

// Complete returns a cached reply when one is fresh, otherwise calls the
// wrapped client under the limiter, breaker and retry policy.
func (g *Guarded) Complete(ctx context.Context, systemPrompt, userText string) (string, error) {
	key := cacheKey(systemPrompt, userText)
	if g.cache != nil {
		if reply, ok := g.cache.get(key); ok {
			g.logger.Debug("LLM cache hit")
			return reply, nil
		}
	}

	var reply string
	err := common.WithRetry(ctx, func() error {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limiter: %w", err)
			}
		}

		out, err := g.breaker.Execute(func() (string, error) {
			return g.next.Complete(ctx, systemPrompt, userText)
		})
		if err != nil {
			return err
		}
		reply = out
		return nil
	}, g.retry)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %w", common.ErrOracleUnavailable, err)
		}
		return "", err
	}

	if g.cache != nil {
		g.cache.set(key, reply)
	}
	return reply, nil
}

// BreakerState reports the circuit breaker's current state.
func (g *Guarded) BreakerState() gobreaker.State {
	return g.breaker.State()
}
