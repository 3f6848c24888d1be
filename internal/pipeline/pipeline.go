package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/spice-intake/internal/common"
	"github.com/Veraticus/spice-intake/internal/extraction"
	"github.com/Veraticus/spice-intake/internal/model"
	"github.com/Veraticus/spice-intake/internal/notify"
)

// DefaultThreshold is the confidence a provisional expense must exceed to be
// finalized without review.
const DefaultThreshold = 0.7

// Ingester turns a raw payload into plain text.
type Ingester interface {
	Ingest(ctx context.Context, kind model.InputType, payload []byte) (model.Ingested, error)
}

// Extractor asks the oracle for structured fields.
type Extractor interface {
	Extract(ctx context.Context, text string) extraction.Result
}

// Matcher looks a description up in the deterministic tables.
type Matcher interface {
	Match(ctx context.Context, description string) (model.MatchMetadata, error)
}

// Auditor scores a provisional expense.
type Auditor interface {
	Audit(p *model.ProvisionalExpense) *model.ProvisionalExpense
}

// Store is the persistence the pipeline needs.
type Store interface {
	SaveExpense(ctx context.Context, expense *model.FinalExpense) (int64, error)
	SavePending(ctx context.Context, pending *model.PendingExpense) error
	GetPending(ctx context.Context, id string) (*model.PendingExpense, error)
	ListPending(ctx context.Context, userID string) ([]model.PendingExpense, error)
	UpdatePendingStatus(ctx context.Context, id string, from, to model.ExpenseStatus, expenseID *int64) error
}

// Recorder receives run statistics.
type Recorder interface {
	RecordRun(outcome, reason string, elapsed time.Duration)
	RecordExtraction(kind string)
	RecordMatch(matchType string)
}

// Pipeline runs submissions through the intake stages.
type Pipeline struct {
	ingester  Ingester
	extractor Extractor
	matcher   Matcher
	auditor   Auditor
	store     Store
	recorder  Recorder
	publisher notify.Publisher
	logger    *slog.Logger
	now       func() time.Time
	ids       *idGenerator
	allowed   map[string]struct{}
	threshold float64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithThreshold overrides the confidence gate.
func WithThreshold(threshold float64) Option {
	return func(p *Pipeline) { p.threshold = threshold }
}

// WithAllowedUsers restricts submissions to the given user IDs. An empty
// list allows everyone.
func WithAllowedUsers(users []string) Option {
	return func(p *Pipeline) {
		for _, u := range users {
			if u = strings.TrimSpace(u); u != "" {
				p.allowed[u] = struct{}{}
			}
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithPublisher sets the event publisher.
func WithPublisher(pub notify.Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithClock overrides the processing clock.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New wires a pipeline from its stages.
func New(ingester Ingester, extractor Extractor, matcher Matcher, auditor Auditor, store Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		ingester:  ingester,
		extractor: extractor,
		matcher:   matcher,
		auditor:   auditor,
		store:     store,
		recorder:  nopRecorder{},
		publisher: notify.Nop{},
		now:       time.Now,
		ids:       newIDGenerator(),
		allowed:   make(map[string]struct{}),
		threshold: DefaultThreshold,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = common.OrDefault(p.logger)
	return p
}

// Process runs one submission to a terminal outcome. Aborted and deferred
// runs are results, not errors; an error means the run could not complete
// (unsupported input, unreadable match tables, storage failure).
func (p *Pipeline) Process(ctx context.Context, in model.RawInput) (*Result, error) {
	if err := p.authorize(in.UserID); err != nil {
		return nil, err
	}

	start := time.Now()
	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID, "user_id", in.UserID)

	result, err := p.run(ctx, logger, runID, in)
	elapsed := time.Since(start)
	if err != nil {
		p.recorder.RecordRun("ERROR", "", elapsed)
		logger.Error("Pipeline run failed", "error", err)
		return nil, err
	}

	p.recorder.RecordRun(string(result.Outcome), string(result.Reason), elapsed)
	logger.Info("Pipeline run finished",
		"outcome", result.Outcome,
		"reason", result.Reason,
		"confidence", result.Confidence,
		"duration", elapsed)

	p.announce(ctx, logger, in.UserID, result)
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, runID string, in model.RawInput) (*Result, error) {
	result := &Result{RunID: runID, Match: model.NoMatch()}

	ingested, err := p.ingester.Ingest(ctx, in.Type, in.Payload)
	if err != nil {
		return nil, fmt.Errorf("ingest %s input: %w", in.Type, err)
	}
	if ingested.Text == "" {
		logger.Warn("Ingestion produced no text",
			"input_type", in.Type,
			"archive_path", ingested.ArchivePath)
		return aborted(result, ReasonEmptyIngestion), nil
	}

	extracted := p.extractor.Extract(ctx, ingested.Text)
	result.Extraction = extracted.Kind
	p.recorder.RecordExtraction(string(extracted.Kind))

	if !extracted.Expense.HasAmount() || !extracted.Expense.HasDescription() {
		logger.Warn("Extraction is missing required fields",
			"extraction", extracted.Kind,
			"has_amount", extracted.Expense.HasAmount(),
			"has_description", extracted.Expense.HasDescription())
		return aborted(result, ReasonIncompleteExtraction), nil
	}

	now := p.now()
	prov := model.NewProvisionalExpense(in.UserID, extracted.Expense, now)
	if ingested.ArchivePath != "" {
		prov.ValidationNotes = append(prov.ValidationNotes, "ingest: archived "+ingested.ArchivePath)
	}
	prov = p.auditor.Audit(prov)
	result.Confidence = prov.ConfidenceScore

	match, err := p.matcher.Match(ctx, *extracted.Expense.Description)
	if err != nil {
		return nil, fmt.Errorf("match description: %w", err)
	}
	result.Match = match
	p.recorder.RecordMatch(string(match.MatchType))

	switch {
	case *extracted.Expense.Amount < 0:
		return p.deferRun(ctx, logger, result, prov, match, now, ReasonNonPositiveAmount)
	case prov.ConfidenceScore <= p.threshold:
		return p.deferRun(ctx, logger, result, prov, match, now, ReasonLowConfidence)
	}

	final := Merge(prov, match, now)
	id, err := p.store.SaveExpense(ctx, final)
	if err != nil {
		return nil, fmt.Errorf("failed to save expense: %w", err)
	}
	final.ID = id

	logger.Debug("Finalized expense",
		"expense_id", id,
		"category", final.Category,
		"match_type", match.MatchType)

	result.Outcome = OutcomeFinalized
	result.Expense = final
	return result, nil
}

func (p *Pipeline) deferRun(ctx context.Context, logger *slog.Logger, result *Result, prov *model.ProvisionalExpense,
	match model.MatchMetadata, now time.Time, reason Reason) (*Result, error) {
	pending := &model.PendingExpense{
		ID:          p.ids.New(now),
		Provisional: *prov,
		Match:       match,
		Status:      model.StatusAwaitingConfirmation,
		UpdatedAt:   now,
	}
	if err := p.store.SavePending(ctx, pending); err != nil {
		return nil, fmt.Errorf("failed to save pending expense: %w", err)
	}

	logger.Info("Deferred expense for review",
		"pending_id", pending.ID,
		"confidence", prov.ConfidenceScore,
		"threshold", p.threshold)

	result.Outcome = OutcomeDeferred
	result.Reason = reason
	result.Pending = pending
	return result, nil
}

func aborted(result *Result, reason Reason) *Result {
	result.Outcome = OutcomeAborted
	result.Reason = reason
	return result
}

func (p *Pipeline) authorize(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrMissingUser
	}
	if len(p.allowed) == 0 {
		return nil
	}
	if _, ok := p.allowed[userID]; !ok {
		return fmt.Errorf("%w: %s", ErrUserNotAllowed, userID)
	}
	return nil
}

// announce publishes the run's event. Publishing failures are logged only.
func (p *Pipeline) announce(ctx context.Context, logger *slog.Logger, userID string, result *Result) {
	event := notify.Event{
		RunID:      result.RunID,
		UserID:     userID,
		Confidence: result.Confidence,
		OccurredAt: p.now().UTC(),
	}

	switch result.Outcome {
	case OutcomeFinalized:
		event.Type = notify.EventFinalized
		event.ExpenseID = &result.Expense.ID
		event.Amount = result.Expense.Amount
		event.Currency = result.Expense.Currency
		event.Category = result.Expense.Category
	case OutcomeDeferred:
		event.Type = notify.EventDeferred
		event.PendingID = result.Pending.ID
		event.Amount = valueOr(result.Pending.Provisional.Extracted.Amount, 0)
		event.Currency = result.Pending.Provisional.Extracted.Currency
		event.Category = result.Pending.Provisional.Category
	default:
		return
	}

	if err := p.publisher.Publish(ctx, event); err != nil {
		logger.Warn("Failed to publish event", "type", event.Type, "error", err)
	}
}

type nopRecorder struct{}

func (nopRecorder) RecordRun(string, string, time.Duration) {}
func (nopRecorder) RecordExtraction(string)                 {}
func (nopRecorder) RecordMatch(string)                      {}
