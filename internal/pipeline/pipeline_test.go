package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-intake/internal/audit"
	"github.com/Veraticus/spice-intake/internal/extraction"
	"github.com/Veraticus/spice-intake/internal/ingest"
	"github.com/Veraticus/spice-intake/internal/matching"
	"github.com/Veraticus/spice-intake/internal/model"
	"github.com/Veraticus/spice-intake/internal/notify"
	"github.com/Veraticus/spice-intake/internal/service"
	"github.com/Veraticus/spice-intake/internal/storage"
)

var fixedNow = time.Date(2025, 3, 14, 12, 30, 0, 0, time.UTC)

type fakeOracle struct {
	err   error
	reply string
	calls int
	mu    sync.Mutex
}

func (o *fakeOracle) Complete(context.Context, string, string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	return o.reply, o.err
}

func (o *fakeOracle) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

type run struct {
	outcome string
	reason  string
}

type recordingRecorder struct {
	runs        []run
	extractions []string
	matches     []string
	mu          sync.Mutex
}

func (r *recordingRecorder) RecordRun(outcome, reason string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run{outcome: outcome, reason: reason})
}

func (r *recordingRecorder) RecordExtraction(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractions = append(r.extractions, kind)
}

func (r *recordingRecorder) RecordMatch(matchType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matches = append(r.matches, matchType)
}

type recordingPublisher struct {
	err    error
	events []notify.Event
	mu     sync.Mutex
}

func (p *recordingPublisher) Publish(_ context.Context, e notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func testTables() matching.Tables {
	return matching.Tables{
		Providers: []matching.Provider{
			{Name: "Uber Eats", Aliases: []string{"uber eats", "ubereats"}, Category: "Food", Subcategory: "Delivery", ExpenseType: "personal"},
			{Name: "Uber", Aliases: []string{"uber"}, Category: "Transport", Subcategory: "Rideshare", ExpenseType: "personal"},
			{Name: "AWS", Aliases: []string{"amazon web services"}, Category: "Software", ExpenseType: "business"},
		},
		Keywords: []matching.Keyword{
			{Token: "lunch", Category: "Food", Subcategory: "Restaurants", ExpenseType: "personal"},
			{Token: "dinner", Category: "Food", Subcategory: "Restaurants", ExpenseType: "personal"},
		},
	}
}

type harness struct {
	pipeline  *Pipeline
	store     *storage.SQLiteStorage
	oracle    *fakeOracle
	recorder  *recordingRecorder
	publisher *recordingPublisher
}

func newStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "intake.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newHarness(t *testing.T, oracle *fakeOracle, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		store:     newStore(t),
		oracle:    oracle,
		recorder:  &recordingRecorder{},
		publisher: &recordingPublisher{},
	}
	h.pipeline = build(h.store, oracle, matching.StaticSource(testTables()),
		append([]Option{WithRecorder(h.recorder), WithPublisher(h.publisher)}, opts...)...)
	return h
}

func build(store Store, oracle *fakeOracle, source *matching.Source, opts ...Option) *Pipeline {
	clock := func() time.Time { return fixedNow }
	return New(
		ingest.NewAdapter(),
		extraction.NewClient(oracle, extraction.WithClock(clock)),
		matching.NewEngine(source),
		audit.New(nil),
		store,
		append([]Option{WithClock(clock)}, opts...)...,
	)
}

func TestProcess_LunchFinalizes(t *testing.T) {
	h := newHarness(t, &fakeOracle{
		reply: `{"amount": 25.50, "currency": "eur", "description": "Lunch with colleagues", "date": "2025-03-14", "category": "Food"}`,
	})
	ctx := context.Background()

	result, err := h.pipeline.Process(ctx, model.NewTextInput("alice", "Lunch with colleagues today, 25.50 EUR"))
	require.NoError(t, err)

	assert.Equal(t, OutcomeFinalized, result.Outcome)
	assert.Equal(t, ReasonNone, result.Reason)
	assert.Equal(t, extraction.Success, result.Extraction)
	assert.NotEmpty(t, result.RunID)
	assert.InDelta(t, 1.0, result.Confidence, 0.0001)
	require.True(t, result.Finalized())
	assert.Nil(t, result.Pending)

	saved, err := h.store.GetExpense(ctx, result.Expense.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", saved.UserID)
	assert.InDelta(t, 25.50, saved.Amount, 0.001)
	assert.Equal(t, "EUR", saved.Currency)
	assert.Equal(t, "Food", saved.Category)
	assert.Equal(t, model.MethodKeywordMatch, saved.InitialProcessingMethod)
	assert.Equal(t, model.AutoConfirmActor, saved.ConfirmedBy)
	assert.Equal(t, model.StatusConfirmed, saved.Status)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), saved.ExpenseDate)
	assert.Contains(t, saved.AuditLog, "audit: confidence 1.00, all required fields present")

	assert.Equal(t, []run{{outcome: "FINALIZED"}}, h.recorder.runs)
	assert.Equal(t, []string{"success"}, h.recorder.extractions)
	assert.Equal(t, []string{"keyword"}, h.recorder.matches)
	assert.Equal(t, []string{notify.EventFinalized}, h.publisher.types())
}

func TestProcess_ProviderBeatsAICategory(t *testing.T) {
	h := newHarness(t, &fakeOracle{
		reply: `{"amount": 310, "currency": "MXN", "description": "Uber Eats dinner", "category": "Entertainment"}`,
	})

	result, err := h.pipeline.Process(context.Background(), model.NewTextInput("alice", "uber eats dinner 310"))
	require.NoError(t, err)
	require.True(t, result.Finalized())

	assert.Equal(t, model.MatchProvider, result.Match.MatchType)
	assert.Equal(t, "Uber Eats", result.Match.MatchedName)
	assert.Equal(t, "Food", result.Expense.Category)
	require.NotNil(t, result.Expense.Subcategory)
	assert.Equal(t, "Delivery", *result.Expense.Subcategory)
	assert.Equal(t, "Uber Eats", result.Expense.ProviderName)
	assert.Equal(t, model.MethodProviderMatch, result.Expense.InitialProcessingMethod)
	assert.Equal(t, fixedNow, result.Expense.ExpenseDate)
}

func TestProcess_Aborts(t *testing.T) {
	tests := []struct {
		oracle         *fakeOracle
		name           string
		input          model.RawInput
		wantReason     Reason
		wantExtraction extraction.Kind
		wantCalls      int
	}{
		{
			name:           "missing amount",
			oracle:         &fakeOracle{reply: `{"description": "coffee with ana", "currency": "MXN"}`},
			input:          model.NewTextInput("alice", "coffee with ana"),
			wantReason:     ReasonIncompleteExtraction,
			wantExtraction: extraction.Success,
			wantCalls:      1,
		},
		{
			name:           "zero amount counts as missing",
			oracle:         &fakeOracle{reply: `{"amount": 0, "description": "coffee"}`},
			input:          model.NewTextInput("alice", "coffee"),
			wantReason:     ReasonIncompleteExtraction,
			wantExtraction: extraction.Success,
			wantCalls:      1,
		},
		{
			name:           "infinite amount",
			oracle:         &fakeOracle{reply: `{"amount": "Infinity", "description": "tacos"}`},
			input:          model.NewTextInput("alice", "tacos"),
			wantReason:     ReasonIncompleteExtraction,
			wantExtraction: extraction.Success,
			wantCalls:      1,
		},
		{
			name:           "NaN amount",
			oracle:         &fakeOracle{reply: `{"amount": "NaN", "description": "tacos"}`},
			input:          model.NewTextInput("alice", "tacos"),
			wantReason:     ReasonIncompleteExtraction,
			wantExtraction: extraction.Success,
			wantCalls:      1,
		},
		{
			name:           "negative infinite amount",
			oracle:         &fakeOracle{reply: `{"amount": "-inf", "description": "tacos"}`},
			input:          model.NewTextInput("alice", "tacos"),
			wantReason:     ReasonIncompleteExtraction,
			wantExtraction: extraction.Success,
			wantCalls:      1,
		},
		{
			name:           "missing description",
			oracle:         &fakeOracle{reply: `{"amount": 40}`},
			input:          model.NewTextInput("alice", "40"),
			wantReason:     ReasonIncompleteExtraction,
			wantExtraction: extraction.Success,
			wantCalls:      1,
		},
		{
			name:           "transport failure",
			oracle:         &fakeOracle{err: errors.New("connection refused")},
			input:          model.NewTextInput("alice", "taxi 120"),
			wantReason:     ReasonIncompleteExtraction,
			wantExtraction: extraction.TransportFailure,
			wantCalls:      1,
		},
		{
			name:           "parse failure",
			oracle:         &fakeOracle{reply: "sorry, I cannot help with that"},
			input:          model.NewTextInput("alice", "taxi 120"),
			wantReason:     ReasonIncompleteExtraction,
			wantExtraction: extraction.ParseFailure,
			wantCalls:      1,
		},
		{
			name:       "empty text",
			oracle:     &fakeOracle{reply: `{"amount": 1, "description": "x"}`},
			input:      model.NewTextInput("alice", "   "),
			wantReason: ReasonEmptyIngestion,
		},
		{
			name:       "image without recognizer output",
			oracle:     &fakeOracle{reply: `{"amount": 1, "description": "x"}`},
			input:      model.RawInput{UserID: "alice", Type: model.InputImage, Payload: []byte{0xff, 0xd8}},
			wantReason: ReasonEmptyIngestion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.oracle)
			ctx := context.Background()

			result, err := h.pipeline.Process(ctx, tt.input)
			require.NoError(t, err)

			assert.Equal(t, OutcomeAborted, result.Outcome)
			assert.Equal(t, tt.wantReason, result.Reason)
			assert.Equal(t, tt.wantExtraction, result.Extraction)
			assert.Nil(t, result.Expense)
			assert.Nil(t, result.Pending)
			assert.False(t, result.Finalized())
			assert.Equal(t, tt.wantCalls, tt.oracle.callCount())

			saved, err := h.store.ListExpenses(ctx, service.ExpenseFilter{UserID: "alice"})
			require.NoError(t, err)
			assert.Empty(t, saved)

			pending, err := h.store.ListPending(ctx, "alice")
			require.NoError(t, err)
			assert.Empty(t, pending)

			assert.Empty(t, h.publisher.types())
		})
	}
}

func TestProcess_Defers(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		opts       []Option
		wantReason Reason
	}{
		{
			name:       "score at threshold",
			reply:      `{"amount": 99, "description": "groceries"}`,
			opts:       []Option{WithThreshold(1.0)},
			wantReason: ReasonLowConfidence,
		},
		{
			name:       "negative amount",
			reply:      `{"amount": -15, "description": "refund from store"}`,
			wantReason: ReasonNonPositiveAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, &fakeOracle{reply: tt.reply}, tt.opts...)
			ctx := context.Background()

			result, err := h.pipeline.Process(ctx, model.NewTextInput("alice", "something"))
			require.NoError(t, err)

			assert.Equal(t, OutcomeDeferred, result.Outcome)
			assert.Equal(t, tt.wantReason, result.Reason)
			assert.Nil(t, result.Expense)
			require.NotNil(t, result.Pending)
			assert.Len(t, result.Pending.ID, 26)

			pending, err := h.pipeline.Pending(ctx, "alice")
			require.NoError(t, err)
			require.Len(t, pending, 1)
			assert.Equal(t, result.Pending.ID, pending[0].ID)
			assert.Equal(t, model.StatusAwaitingConfirmation, pending[0].Status)

			saved, err := h.store.ListExpenses(ctx, service.ExpenseFilter{UserID: "alice"})
			require.NoError(t, err)
			assert.Empty(t, saved)

			assert.Equal(t, []string{notify.EventDeferred}, h.publisher.types())
			assert.Equal(t, []run{{outcome: "DEFERRED", reason: string(tt.wantReason)}}, h.recorder.runs)
		})
	}
}

func TestProcess_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("unsupported input type", func(t *testing.T) {
		h := newHarness(t, &fakeOracle{})
		_, err := h.pipeline.Process(ctx, model.RawInput{UserID: "alice", Type: "video", Payload: []byte("x")})
		assert.ErrorIs(t, err, ingest.ErrUnsupportedInputType)
		assert.Equal(t, 0, h.oracle.callCount())
		assert.Equal(t, []run{{outcome: "ERROR"}}, h.recorder.runs)
	})

	t.Run("match tables unreadable", func(t *testing.T) {
		loadErr := errors.New("providers.csv: permission denied")
		source := matching.NewSource(func() (*matching.Tables, error) { return nil, loadErr })
		p := build(newStore(t), &fakeOracle{reply: `{"amount": 10, "description": "tacos"}`}, source)

		_, err := p.Process(ctx, model.NewTextInput("alice", "tacos 10"))
		assert.ErrorIs(t, err, loadErr)
	})

	t.Run("storage failure", func(t *testing.T) {
		store := &failingStore{SQLiteStorage: newStore(t), saveErr: errors.New("disk full")}
		p := build(store, &fakeOracle{reply: `{"amount": 10, "description": "tacos"}`}, matching.StaticSource(testTables()))

		_, err := p.Process(ctx, model.NewTextInput("alice", "tacos 10"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
	})

	t.Run("user not allowed", func(t *testing.T) {
		h := newHarness(t, &fakeOracle{}, WithAllowedUsers([]string{"alice", " "}))
		_, err := h.pipeline.Process(ctx, model.NewTextInput("mallory", "tacos 10"))
		assert.ErrorIs(t, err, ErrUserNotAllowed)
		assert.Equal(t, 0, h.oracle.callCount())
	})

	t.Run("missing user", func(t *testing.T) {
		h := newHarness(t, &fakeOracle{})
		_, err := h.pipeline.Process(ctx, model.NewTextInput("", "tacos 10"))
		assert.ErrorIs(t, err, ErrMissingUser)
	})
}

type fixedRecognizer string

func (r fixedRecognizer) Recognize(context.Context, []byte) (string, error) {
	return string(r), nil
}

func TestProcess_ArchivedInputIsTraceable(t *testing.T) {
	tests := []struct {
		name      string
		opts      []Option
		finalized bool
	}{
		{name: "finalized", finalized: true},
		{name: "deferred", opts: []Option{WithThreshold(1.0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			clock := func() time.Time { return fixedNow }
			adapter := ingest.NewAdapter(
				ingest.WithRecognizer(model.InputImage, fixedRecognizer("oxxo total 45.00")),
				ingest.WithArchive(ingest.NewArchive(filepath.Join(t.TempDir(), "raw"), nil)),
			)
			p := New(
				adapter,
				extraction.NewClient(&fakeOracle{reply: `{"amount": 45, "description": "oxxo snacks"}`}, extraction.WithClock(clock)),
				matching.NewEngine(matching.StaticSource(testTables())),
				audit.New(nil),
				store,
				append([]Option{WithClock(clock)}, tt.opts...)...,
			)

			result, err := p.Process(ctx, model.RawInput{UserID: "alice", Type: model.InputImage, Payload: []byte("jpeg")})
			require.NoError(t, err)

			var notes []string
			if tt.finalized {
				require.True(t, result.Finalized())
				saved, err := store.GetExpense(ctx, result.Expense.ID)
				require.NoError(t, err)
				notes = saved.AuditLog
			} else {
				require.Equal(t, OutcomeDeferred, result.Outcome)
				pending, err := store.GetPending(ctx, result.Pending.ID)
				require.NoError(t, err)
				notes = pending.Provisional.ValidationNotes
			}

			var archived string
			for _, n := range notes {
				if path, ok := strings.CutPrefix(n, "ingest: archived "); ok {
					archived = path
				}
			}
			require.NotEmpty(t, archived, "notes: %v", notes)
			data, err := os.ReadFile(archived)
			require.NoError(t, err)
			assert.Equal(t, "jpeg", string(data))
		})
	}
}

func TestProcess_PublisherFailureKeepsOutcome(t *testing.T) {
	h := newHarness(t, &fakeOracle{reply: `{"amount": 80, "description": "uber to airport"}`})
	h.publisher.err = errors.New("nats: no servers available")

	result, err := h.pipeline.Process(context.Background(), model.NewTextInput("alice", "uber to airport 80"))
	require.NoError(t, err)
	assert.True(t, result.Finalized())
	assert.Equal(t, "Transport", result.Expense.Category)
}

func TestProcess_Concurrent(t *testing.T) {
	h := newHarness(t, &fakeOracle{reply: `{"amount": 12, "description": "lunch"}`}, WithThreshold(1.0))
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := h.pipeline.Process(ctx, model.NewTextInput("alice", "lunch 12"))
			if assert.NoError(t, err) {
				ids[i] = result.Pending.ID
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate pending id %s", id)
		seen[id] = true
	}

	pending, err := h.pipeline.Pending(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, pending, 20)
}

type failingStore struct {
	*storage.SQLiteStorage
	saveErr error
}

func (s *failingStore) SaveExpense(ctx context.Context, e *model.FinalExpense) (int64, error) {
	if s.saveErr != nil {
		return 0, s.saveErr
	}
	return s.SQLiteStorage.SaveExpense(ctx, e)
}
