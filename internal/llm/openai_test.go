package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-intake/internal/common"
)

func TestNewOpenAIClient(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		wantModel string
		wantErr   bool
	}{
		{
			name:      "valid config",
			config:    Config{APIKey: "test-key"},
			wantModel: "gpt-4o-mini",
		},
		{
			name:    "missing API key",
			config:  Config{},
			wantErr: true,
		},
		{
			name:      "custom model and settings",
			config:    Config{APIKey: "test-key", Model: "gpt-4o", Temperature: 0.5, MaxTokens: 200},
			wantModel: "gpt-4o",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := newOpenAIClient(tt.config)
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrMissingConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantModel, client.model)
			assert.Equal(t, openAIBaseURL, client.baseURL)
		})
	}
}

func TestOpenAIClient_Complete(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		want          string
		statusCode    int
		wantErr       bool
		wantRetryable bool
	}{
		{
			name:       "successful completion",
			statusCode: http.StatusOK,
			body:       `{"choices":[{"message":{"role":"assistant","content":" {\"amount\": 25.5} "}}]}`,
			want:       `{"amount": 25.5}`,
		},
		{
			name:       "no choices",
			statusCode: http.StatusOK,
			body:       `{"choices":[]}`,
			wantErr:    true,
		},
		{
			name:       "malformed body",
			statusCode: http.StatusOK,
			body:       `not json`,
			wantErr:    true,
		},
		{
			name:          "rate limited",
			statusCode:    http.StatusTooManyRequests,
			body:          `{"error":"slow down"}`,
			wantErr:       true,
			wantRetryable: true,
		},
		{
			name:          "server error",
			statusCode:    http.StatusBadGateway,
			body:          `oops`,
			wantErr:       true,
			wantRetryable: true,
		},
		{
			name:       "bad request",
			statusCode: http.StatusBadRequest,
			body:       `{"error":"bad"}`,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/v1/chat/completions", r.URL.Path)
				assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

				var req map[string]any
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, map[string]any{"type": "json_object"}, req["response_format"])
				messages, _ := req["messages"].([]any)
				assert.Len(t, messages, 2)

				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, err := newOpenAIClient(Config{APIKey: "test-key", BaseURL: server.URL + "/"})
			require.NoError(t, err)

			got, err := client.Complete(context.Background(), "system", "lunch 25.50")
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantRetryable, common.IsRetryable(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenAIClient_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := newOpenAIClient(Config{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.Complete(ctx, "s", "u")
	require.Error(t, err)
	assert.False(t, common.IsRetryable(err))
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(Config{Provider: "ollama", APIKey: "k"})
	assert.ErrorIs(t, err, common.ErrInvalidConfig)

	c, err := NewClient(Config{Provider: "OpenAI", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &openAIClient{}, c)

	c, err = NewClient(Config{Provider: "anthropic", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &anthropicClient{}, c)
}
