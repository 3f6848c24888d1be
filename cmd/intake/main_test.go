package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Veraticus/spice-intake/internal/storage"
)

const (
	providersCSV = "provider_name,aliases,category,subcategory,expense_type\n" +
		"Uber Eats,ubereats,Alimentación,Comida a domicilio,personal\n" +
		"Pemex,,Transporte,Gasolina,business\n"
	keywordsCSV = "keyword,category,subcategory,expense_type\n" +
		"lunch,Alimentación,Restaurantes,personal\n"
)

// oracleServer answers chat completions with a fixed extraction.
type oracleServer struct {
	*httptest.Server
	calls atomic.Int32
	reply string
}

func newOracleServer(t *testing.T, reply string) *oracleServer {
	t.Helper()
	o := &oracleServer{reply: reply}
	o.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o.calls.Add(1)
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "chatcmpl-test",
			"model": "gpt-test",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": o.reply},
			}},
		})
	}))
	t.Cleanup(o.Close)
	return o
}

type testEnv struct {
	dir     string
	cfgPath string
	dbPath  string
}

func newTestEnv(t *testing.T, oracleURL string, threshold float64) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:     dir,
		cfgPath: filepath.Join(dir, "config.yaml"),
		dbPath:  filepath.Join(dir, "data", "intake.db"),
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "providers.csv"), []byte(providersCSV), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keywords.csv"), []byte(keywordsCSV), 0o600))

	cfg := fmt.Sprintf(`database:
  path: %s
tables:
  providers: %s
  keywords: %s
pipeline:
  threshold: %v
  default_currency: MXN
llm:
  provider: openai
  api_key: test-key
  base_url: %s
  rate_limit: 0
  max_retries: 0
`, env.dbPath, filepath.Join(dir, "providers.csv"), filepath.Join(dir, "keywords.csv"), threshold, oracleURL)
	require.NoError(t, os.WriteFile(env.cfgPath, []byte(cfg), 0o600))
	return env
}

func (e *testEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", e.cfgPath, "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *testEnv) pendingIDs(t *testing.T, user string) []string {
	t.Helper()
	store, err := storage.Open(context.Background(), "", e.dbPath)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	pending, err := store.ListPending(context.Background(), user)
	require.NoError(t, err)
	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
	}
	return ids
}

const lunchReply = `{"amount": 250, "currency": "MXN", "description": "Lunch with client", "date": "2025-03-14", "category": "Food", "provider_name": null}`

func TestVersion(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:0", 0.7)
	out, err := env.run(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "intake version dev\n", out)
}

func TestProcess_FinalizesAndLists(t *testing.T) {
	oracle := newOracleServer(t, lunchReply)
	env := newTestEnv(t, oracle.URL, 0.7)

	out, err := env.run(t, "", "process", "--user", "ana", "Lunch", "with", "client", "250")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved expense #1")
	assert.Contains(t, out, "250.00 MXN")
	assert.Contains(t, out, "Alimentación")
	assert.Equal(t, int32(1), oracle.calls.Load())

	out, err = env.run(t, "", "expenses", "--user", "ana")
	require.NoError(t, err)
	assert.Contains(t, out, "2025-03-14")
	assert.Contains(t, out, "keyword_match")
	assert.Contains(t, out, "250.00")

	out, err = env.run(t, "", "expenses", "--user", "someone-else")
	require.NoError(t, err)
	assert.Contains(t, out, "No expenses found.")
}

func TestProcess_RequiresUser(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:0", 0.7)
	_, err := env.run(t, "", "process", "lunch 100")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user")
}

func TestProcess_RequiresInput(t *testing.T) {
	oracle := newOracleServer(t, lunchReply)
	env := newTestEnv(t, oracle.URL, 0.7)
	_, err := env.run(t, "", "process", "--user", "ana")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to process")
	assert.Zero(t, oracle.calls.Load())
}

func TestProcess_AbortsOnIncompleteExtraction(t *testing.T) {
	oracle := newOracleServer(t, `{"amount": null, "description": null}`)
	env := newTestEnv(t, oracle.URL, 0.7)

	out, err := env.run(t, "", "process", "--user", "ana", "hmm")
	require.NoError(t, err)
	assert.Contains(t, out, "Aborted: incomplete_extraction")
}

func TestProcess_Batch(t *testing.T) {
	oracle := newOracleServer(t, lunchReply)
	env := newTestEnv(t, oracle.URL, 0.7)

	path := filepath.Join(env.dir, "batch.txt")
	require.NoError(t, os.WriteFile(path, []byte("lunch 250\n\n  \nlunch again 250\n"), 0o600))

	out, err := env.run(t, "", "process", "--user", "ana", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Saved: 2")
	assert.Contains(t, out, "Failed: 0")
}

func TestPending_ConfirmRejectAndReview(t *testing.T) {
	oracle := newOracleServer(t, lunchReply)
	// Every extraction scores at most 1.0, so a threshold of 1.0 defers all.
	env := newTestEnv(t, oracle.URL, 1.0)

	for range 3 {
		out, err := env.run(t, "", "process", "--user", "ana", "lunch 250")
		require.NoError(t, err)
		assert.Contains(t, out, "Deferred for review (low_confidence")
	}

	ids := env.pendingIDs(t, "ana")
	require.Len(t, ids, 3)

	out, err := env.run(t, "", "pending", "list", "--user", "ana")
	require.NoError(t, err)
	for _, id := range ids {
		assert.Contains(t, out, id)
	}

	out, err = env.run(t, "", "pending", "confirm", "--user", "ana", "--category", "Viajes", "--amount", "312.5", ids[0])
	require.NoError(t, err)
	assert.Contains(t, out, "312.50 MXN, Viajes")

	_, err = env.run(t, "", "pending", "confirm", "--user", "ana", ids[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no longer awaiting confirmation")

	_, err = env.run(t, "", "pending", "reject", "--user", "bob", ids[1])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	out, err = env.run(t, "", "pending", "reject", "--user", "ana", ids[1])
	require.NoError(t, err)
	assert.Contains(t, out, "Rejected "+ids[1])

	out, err = env.run(t, "c\n", "pending", "review", "--user", "ana")
	require.NoError(t, err)
	assert.Contains(t, out, "Confirmed: 1")

	assert.Empty(t, env.pendingIDs(t, "ana"))
	// Settling records never needs the LLM.
	assert.Equal(t, int32(3), oracle.calls.Load())
}

func TestPendingConfirm_RejectsNonPositiveAmount(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:0", 0.7)
	_, err := env.run(t, "", "pending", "confirm", "--user", "ana", "--amount", "-3", "01ABC")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--amount must be positive")
}

func TestExport(t *testing.T) {
	oracle := newOracleServer(t, lunchReply)
	env := newTestEnv(t, oracle.URL, 0.7)

	_, err := env.run(t, "", "process", "--user", "ana", "lunch 250")
	require.NoError(t, err)

	t.Run("csv", func(t *testing.T) {
		path := filepath.Join(env.dir, "out.csv")
		out, err := env.run(t, "", "export", "--output", path)
		require.NoError(t, err)
		assert.Contains(t, out, "Exported 1 expenses")

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		require.Len(t, lines, 2)
		assert.True(t, strings.HasPrefix(lines[0], "id,date,user_id"))
		assert.Contains(t, lines[1], "250.00")
	})

	t.Run("xlsx by flag", func(t *testing.T) {
		path := filepath.Join(env.dir, "out.bin")
		_, err := env.run(t, "", "export", "--output", path, "--format", "xlsx")
		require.NoError(t, err)

		raw, err := os.Open(path)
		require.NoError(t, err)
		defer func() { _ = raw.Close() }()
		f, err := excelize.OpenReader(raw)
		require.NoError(t, err)
		defer func() { _ = f.Close() }()
		assert.Equal(t, []string{"Expenses", "Summary"}, f.GetSheetList())
	})

	t.Run("unknown extension", func(t *testing.T) {
		_, err := env.run(t, "", "export", "--output", filepath.Join(env.dir, "out.pdf"))
		require.Error(t, err)
	})

	t.Run("bad date", func(t *testing.T) {
		_, err := env.run(t, "", "export", "--output", filepath.Join(env.dir, "x.csv"), "--from", "March")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--from")
	})
}

func TestMatch(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:0", 0.7)

	out, err := env.run(t, "", "match", "pedido UberEats tacos", "business lunch", "haircut")
	require.NoError(t, err)

	assert.Contains(t, out, "Type:         provider")
	assert.Contains(t, out, "Name:         Uber Eats")
	assert.Contains(t, out, "Subcategory:  Comida a domicilio")
	assert.Contains(t, out, "Type:         keyword")
	assert.Contains(t, out, "Name:         lunch")
	assert.Contains(t, out, "No match found.")

	_, err = env.run(t, "", "match")
	require.Error(t, err)
}

func TestMigrate(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:0", 0.7)
	out, err := env.run(t, "", "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Database migrations completed successfully")
	assert.FileExists(t, env.dbPath)
}

func TestInvalidConfig(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:0", 0.7)
	require.NoError(t, os.WriteFile(env.cfgPath, []byte("pipeline:\n  threshold: 3\n"), 0o600))

	_, err := env.run(t, "", "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.threshold")
}

func TestBackup(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:0", 0.7)
	dest := filepath.Join(env.dir, "snap", "copy.db")

	out, err := env.run(t, "", "backup", "--output", dest)
	require.NoError(t, err)
	assert.Contains(t, out, "Backup written to "+dest)
	assert.FileExists(t, dest)

	_, err = env.run(t, "", "backup", "--output", dest)
	require.ErrorIs(t, err, storage.ErrBackupExists)
}
