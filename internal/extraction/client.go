package extraction

import (
	"context"
	"log/slog"
	"time"

	"github.com/Veraticus/spice-intake/internal/common"
	"github.com/Veraticus/spice-intake/internal/llm"
	"github.com/Veraticus/spice-intake/internal/model"
)

// Client asks the extraction oracle for structured fields. Failures degrade
// to a raw-text-only result; Extract never returns an error.
type Client struct {
	oracle          llm.Client
	logger          *slog.Logger
	now             func() time.Time
	defaultCurrency string
}

// Option configures a Client.
type Option func(*Client)

// WithDefaultCurrency sets the currency assumed when the text names none.
func WithDefaultCurrency(code string) Option {
	return func(c *Client) {
		if code != "" {
			c.defaultCurrency = code
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithClock overrides the clock used to resolve "today".
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates an extraction client on top of an LLM client. Retries and
// rate limiting belong to the LLM client (see llm.Guarded).
func NewClient(oracle llm.Client, opts ...Option) *Client {
	c := &Client{
		oracle:          oracle,
		defaultCurrency: model.DefaultCurrency,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = common.OrDefault(c.logger)
	return c
}

// Extract makes one round trip to the oracle and decodes its reply.
func (c *Client) Extract(ctx context.Context, text string) Result {
	fallback := model.RawTextOnly(text)
	fallback.Currency = c.defaultCurrency

	raw, err := c.oracle.Complete(ctx, SystemPrompt(c.defaultCurrency, c.now()), text)
	if err != nil {
		c.logger.Error("Extraction oracle call failed", "error", err)
		return Result{Kind: TransportFailure, Expense: fallback, Err: err}
	}

	expense, issues, err := decode(raw, text, c.defaultCurrency)
	if err != nil {
		c.logger.Error("Failed to decode extraction reply",
			"error", err,
			"reply", truncate(raw, 200))
		return Result{Kind: ParseFailure, Expense: fallback, Err: err}
	}

	if len(issues) > 0 {
		c.logger.Warn("Extraction reply had invalid fields", "issues", issues)
	}
	c.logger.Debug("Extraction succeeded",
		"has_amount", expense.HasAmount(),
		"has_description", expense.HasDescription())

	return Result{Kind: Success, Expense: expense, Issues: issues}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
