package matching

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-intake/internal/model"
)

func testTables() Tables {
	return Tables{
		Providers: []Provider{
			{
				Name:        "Uber Eats",
				Aliases:     []string{"uber eats", "ubereats"},
				Category:    "Food",
				Subcategory: "Delivery",
				ExpenseType: "personal",
			},
			{
				Name:        "Uber",
				Aliases:     []string{"uber"},
				Category:    "Transport",
				Subcategory: "Rideshare",
				ExpenseType: "personal",
			},
			{
				Name:        "OXXO",
				Category:    "Groceries",
				ExpenseType: "personal",
			},
		},
		Keywords: []Keyword{
			{Token: "dinner", Category: "Food", Subcategory: "Restaurants", ExpenseType: "personal"},
			{Token: "taxi", Category: "Transport", Subcategory: "Taxi", ExpenseType: "business"},
		},
	}
}

func TestEngine_Match(t *testing.T) {
	engine := NewEngine(StaticSource(testTables()))

	tests := []struct {
		name        string
		description string
		want        model.MatchMetadata
	}{
		{
			name:        "alias substring matches provider",
			description: "Uber Eats dinner",
			want: model.MatchMetadata{
				Category:    "Food",
				Subcategory: "Delivery",
				ExpenseType: "personal",
				MatchType:   model.MatchProvider,
				MatchedName: "Uber Eats",
			},
		},
		{
			name:        "table order breaks ties",
			description: "uber to the airport",
			want: model.MatchMetadata{
				Category:    "Transport",
				Subcategory: "Rideshare",
				ExpenseType: "personal",
				MatchType:   model.MatchProvider,
				MatchedName: "Uber",
			},
		},
		{
			name:        "canonical name matches case-insensitively",
			description: "snacks at oxxo",
			want: model.MatchMetadata{
				Category:    "Groceries",
				ExpenseType: "personal",
				MatchType:   model.MatchProvider,
				MatchedName: "OXXO",
			},
		},
		{
			name:        "keyword when no provider",
			description: "Taxi home",
			want: model.MatchMetadata{
				Category:    "Transport",
				Subcategory: "Taxi",
				ExpenseType: "business",
				MatchType:   model.MatchKeyword,
				MatchedName: "taxi",
			},
		},
		{
			name:        "substring inside a longer word still matches",
			description: "dinnerware set",
			want: model.MatchMetadata{
				Category:    "Food",
				Subcategory: "Restaurants",
				ExpenseType: "personal",
				MatchType:   model.MatchKeyword,
				MatchedName: "dinner",
			},
		},
		{
			name:        "nothing matches",
			description: "new headphones",
			want:        model.NoMatch(),
		},
		{
			name:        "empty description",
			description: "   ",
			want:        model.NoMatch(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.Match(context.Background(), tt.description)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngine_ProviderBeatsKeyword(t *testing.T) {
	engine := NewEngine(StaticSource(testTables()))

	// "dinner" is a keyword, but the provider alias wins regardless of position.
	for _, description := range []string{"dinner via ubereats", "ubereats dinner", "taxi then oxxo"} {
		got, err := engine.Match(context.Background(), description)
		require.NoError(t, err)
		assert.Equal(t, model.MatchProvider, got.MatchType, description)
	}
}

func TestEngine_EveryAliasMatches(t *testing.T) {
	tables := testTables()
	engine := NewEngine(StaticSource(tables))

	for _, p := range tables.Providers[:1] {
		for _, alias := range p.Aliases {
			got, err := engine.Match(context.Background(), "paid "+alias+" yesterday")
			require.NoError(t, err)
			assert.Equal(t, model.MatchProvider, got.MatchType)
			assert.Equal(t, p.Category, got.Category)
			assert.Equal(t, p.Subcategory, got.Subcategory)
			assert.Equal(t, p.ExpenseType, got.ExpenseType)
		}
	}
}

func TestEngine_CanceledContext(t *testing.T) {
	engine := NewEngine(StaticSource(testTables()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Match(ctx, "uber")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSource_LoadsOnce(t *testing.T) {
	var calls atomic.Int32
	source := NewSource(func() (*Tables, error) {
		calls.Add(1)
		tables := testTables()
		return &tables, nil
	})
	engine := NewEngine(source)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Match(context.Background(), "uber eats")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestSource_RemembersError(t *testing.T) {
	var calls atomic.Int32
	loadErr := errors.New("disk on fire")
	source := NewSource(func() (*Tables, error) {
		calls.Add(1)
		return nil, loadErr
	})
	engine := NewEngine(source)

	for i := 0; i < 3; i++ {
		_, err := engine.Match(context.Background(), "anything")
		assert.ErrorIs(t, err, loadErr)
	}
	assert.Equal(t, int32(1), calls.Load())
}
