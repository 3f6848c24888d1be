package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Veraticus/spice-intake/internal/common"
)

// Client sends a single system/user prompt pair and returns the raw reply.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userText string) (string, error)
}

// Config holds LLM provider and resilience settings.
type Config struct {
	Provider        string
	APIKey          string
	Model           string
	BaseURL         string
	Timeout         time.Duration
	RetryDelay      time.Duration
	CacheTTL        time.Duration
	BreakerTimeout  time.Duration
	Temperature     float64
	RateLimit       float64 // requests per second, 0 disables limiting
	MaxTokens       int
	MaxRetries      int
	BreakerFailures uint32
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// statusError classifies a non-200 reply. Throttling and server errors are
// worth retrying; anything else is the caller's fault.
func statusError(provider string, status int, body []byte) error {
	err := fmt.Errorf("%s API error (status %d): %s", provider, status, truncate(string(body), 512))
	switch {
	case status == http.StatusTooManyRequests:
		return &common.RetryableError{Err: fmt.Errorf("%w: %w", common.ErrRateLimit, err), Retryable: true}
	case status >= http.StatusInternalServerError:
		return &common.RetryableError{Err: err, Retryable: true}
	default:
		return err
	}
}

// transportError marks network failures as retryable unless the caller
// canceled the request.
func transportError(err error) error {
	wrapped := fmt.Errorf("request failed: %w", err)
	if errors.Is(err, context.Canceled) {
		return wrapped
	}
	return &common.RetryableError{Err: wrapped, Retryable: true}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
