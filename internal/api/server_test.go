package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/batchauction/internal/encoding"
	"github.com/betbot/batchauction/internal/solver"
	"github.com/betbot/batchauction/pkg/config"
)

const twoSidedJSON = `{
  "id": "b-1",
  "numeraire": 1,
  "tokens": [1, 2, 3],
  "orders": [
    {"owner": "0x0000000000000000000000000000000000000001", "sell_token": 1, "buy_token": 2, "sell_amount": "100", "buy_amount": "50"},
    {"owner": "0x0000000000000000000000000000000000000002", "sell_token": 2, "buy_token": 1, "sell_amount": "80", "buy_amount": "40"}
  ]
}`

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	cfg := &config.Config{Tokens: []config.TokenConfig{
		{ID: 1, Symbol: "USDC", Decimals: 6},
		{ID: 2, Symbol: "WETH", Decimals: 18},
	}}
	svc := solver.NewService(config.SolverConfig{SolveTimeout: 5 * time.Second, Parallelism: 1}, nil)
	s, err := New(Config{DBPath: filepath.Join(t.TempDir(), "api.db"), Tokens: cfg}, svc)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, s.Router()
}

func do(t *testing.T, h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSolveAndFetchBatch(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/batches", []byte(twoSidedJSON))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created solutionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "b-1", created.ID)
	require.Len(t, created.Prices, 2)
	assert.Equal(t, "USDC", created.Prices[0].Symbol)
	assert.Equal(t, "1", created.Prices[0].Price)
	assert.Equal(t, "2", created.Prices[1].Price)
	assert.Equal(t, []uint16{3}, created.Unpriced)
	require.Len(t, created.Fills, 2)
	assert.Equal(t, "100", created.Fills[0].Sold)
	assert.Equal(t, "0.0001", created.Fills[0].SoldFmt)
	require.Len(t, created.Trades, 2)
	require.Len(t, created.Diagnostics, 1)
	assert.Equal(t, "disconnected_token", created.Diagnostics[0].Kind)
	require.NotNil(t, created.Diagnostics[0].Token)
	assert.Equal(t, uint16(3), *created.Diagnostics[0].Token)

	rec = do(t, h, http.MethodGet, "/api/batches/b-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched solutionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	assert.Equal(t, created.Hash, fetched.Hash)
	assert.Equal(t, created.Prices, fetched.Prices)
	assert.Empty(t, fetched.Trades)

	rec = do(t, h, http.MethodGet, "/api/batches/b-1/raw", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	raw := rec.Body.Bytes()
	assert.Equal(t, created.Hash, crypto.Keccak256Hash(raw).Hex())
	assert.Equal(t, created.Hash, rec.Header().Get("X-Solution-Hash"))
	sol, err := encoding.DecodeSolution(raw)
	require.NoError(t, err)
	assert.Equal(t, encoding.TokenID(1), sol.Numeraire)

	rec = do(t, h, http.MethodGet, "/api/batches", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []summaryView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].Trades)
}

func TestSolveBatchErrors(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/batches", []byte(twoSidedJSON))
	require.Equal(t, http.StatusCreated, rec.Code)

	cases := []struct {
		name string
		body string
		code int
	}{
		{"duplicate", twoSidedJSON, http.StatusConflict},
		{"bad json", `{"orders": [`, http.StatusBadRequest},
		{"no numeraire", `{"id": "b-2", "numeraire": 9, "tokens": [1, 2]}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/batches", []byte(tc.body))
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
		})
	}

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/batches/missing", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/batches/missing/raw", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/batches?limit=-1", nil).Code)
}

func TestSolveBatchReportsBadRecords(t *testing.T) {
	_, h := newTestServer(t)
	body := `{
  "id": "b-3",
  "numeraire": 1,
  "orders": [
    {"owner": "0x0000000000000000000000000000000000000001", "sell_token": 1, "buy_token": 2, "sell_amount": "100", "buy_amount": "50"},
    {"owner": "0x0000000000000000000000000000000000000002", "sell_token": 2, "buy_token": 1, "sell_amount": "80", "buy_amount": "40"},
    {"owner": "0x0000000000000000000000000000000000000003", "sell_token": 1, "buy_token": 2, "sell_amount": "340282366920938463463374607431768211456", "buy_amount": "1"}
  ]
}`
	rec := do(t, h, http.MethodPost, "/api/batches", []byte(body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var v solutionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Len(t, v.Trades, 2)
	require.NotEmpty(t, v.Diagnostics)
	d := v.Diagnostics[0]
	assert.Equal(t, "malformed_input", d.Kind)
	require.NotNil(t, d.Record)
	assert.Equal(t, 2, *d.Record)
	assert.Contains(t, d.Message, "arithmetic overflow")
}

func TestSolveBatchYAML(t *testing.T) {
	_, h := newTestServer(t)
	body := `
id: y-1
numeraire: 1
orders:
  - owner: "0x0000000000000000000000000000000000000001"
    sell_token: 1
    buy_token: 2
    sell_amount: "10"
    buy_amount: "5"
`
	req := httptest.NewRequest(http.MethodPost, "/api/batches", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/x-yaml")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var v solutionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, "y-1", v.ID)
	assert.Empty(t, v.Trades)
}

func TestSolveRateLimit(t *testing.T) {
	svc := solver.NewService(config.SolverConfig{SolveTimeout: 5 * time.Second, Parallelism: 1}, nil)
	s, err := New(Config{DBPath: filepath.Join(t.TempDir(), "api.db"), SolveRate: 1}, svc)
	require.NoError(t, err)
	defer s.Close()
	h := s.Router()

	rec := do(t, h, http.MethodPost, "/api/batches", []byte(twoSidedJSON))
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/batches", []byte(twoSidedJSON))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
