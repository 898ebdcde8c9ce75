package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/yieldvault/internal/ledger"
	"github.com/elys-network/yieldvault/internal/logger"
	"github.com/elys-network/yieldvault/internal/metrics"
	"github.com/elys-network/yieldvault/internal/state"
)

var (
	owner = sdk.AccAddress([]byte("owner_______________"))
	alice = sdk.AccAddress([]byte("alice_______________"))
)

type fakeHistory struct {
	entries []state.JournalEntry
	err     error
	gotAddr string
	gotLim  int
}

func (h *fakeHistory) GetUserHistory(address string, limit int) ([]state.JournalEntry, error) {
	h.gotAddr, h.gotLim = address, limit
	return h.entries, h.err
}

func (h *fakeHistory) GetRecentEvents(limit int) ([]state.JournalEntry, error) {
	h.gotLim = limit
	return h.entries, h.err
}

func newTestServer(t *testing.T, history History) *WebServer {
	t.Helper()
	env := ledger.CallEnv{Sender: owner, Time: 1}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, 0)
	l, err := ledger.Init(state.NewMemStore(), m, env, 150)
	require.NoError(t, err)

	_, err = l.Deposit(ledger.CallEnv{Sender: alice, Time: 2}, sdkmath.NewInt(1000))
	require.NoError(t, err)
	require.NoError(t, l.AddPool(env, "alpha", 1200, 2))
	require.NoError(t, l.AllocateToPool(env, "alpha", sdkmath.NewInt(400)))

	var h History
	if history != nil {
		h = history
	}
	return NewWebServer(Options{Ledger: l, History: h, Gatherer: reg, ConfigName: "test", Version: "test"})
}

func get(t *testing.T, ws *WebServer, method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, req)

	body := map[string]interface{}{}
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealthWithoutDatabase(t *testing.T) {
	ws := newTestServer(t, nil)
	for _, path := range []string{"/health", "/api/health"} {
		rec, body := get(t, ws, http.MethodGet, path)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "OK", body["status"])
		require.Equal(t, "disabled", body["database"])
		require.Equal(t, "ok", body["ledger"])
	}
}

func TestVaultSummary(t *testing.T) {
	ws := newTestServer(t, nil)
	rec, body := get(t, ws, http.MethodGet, "/api/vault/summary")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, owner.String(), body["owner"])
	require.Equal(t, "1000", body["total_tvl"])
	require.Equal(t, "1000", body["total_shares"])
	require.Equal(t, "400", body["total_allocated"])
	require.Equal(t, "600", body["unallocated"])
	require.Equal(t, float64(150), body["management_fee_bp"])
	require.Equal(t, float64(1), body["pool_count"])
	require.Equal(t, float64(1200), body["weighted_apy_bps"])
	require.Equal(t, false, body["paused"])
}

func TestPools(t *testing.T) {
	ws := newTestServer(t, nil)

	rec, body := get(t, ws, http.MethodGet, "/api/pools")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(1), body["count"])

	rec, body = get(t, ws, http.MethodGet, "/api/pools/alpha")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "alpha", body["name"])
	require.Equal(t, "400", body["total_allocated"])
	require.Equal(t, float64(1200), body["current_apy"])

	rec, _ = get(t, ws, http.MethodGet, "/api/pools/missing")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPosition(t *testing.T) {
	ws := newTestServer(t, nil)

	rec, body := get(t, ws, http.MethodGet, "/api/position/"+alice.String())
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "1000", body["shares"])
	require.Equal(t, "1000", body["deposited_amount"])
	require.Equal(t, "1000", body["current_value"])
	require.Equal(t, float64(2), body["last_deposit_time"])

	rec, body = get(t, ws, http.MethodGet, "/api/position/"+owner.String())
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "0", body["shares"])

	rec, _ = get(t, ws, http.MethodGet, "/api/position/nonsense")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryRoutes(t *testing.T) {
	h := &fakeHistory{entries: []state.JournalEntry{{EventID: "e1", EventType: "deposit", User: alice.String(), Amount: "1000"}}}
	ws := newTestServer(t, h)

	rec, body := get(t, ws, http.MethodGet, "/api/history/"+alice.String()+"?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(1), body["count"])
	require.Equal(t, alice.String(), h.gotAddr)
	require.Equal(t, 5, h.gotLim)

	rec, body = get(t, ws, http.MethodGet, "/api/transactions/recent?limit=100000")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(20), body["limit"])

	rec, _ = get(t, ws, http.MethodGet, "/api/history/bad")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	h.err = errors.New("db down")
	rec, _ = get(t, ws, http.MethodGet, "/api/transactions/recent")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestJournalRoutesWithoutJournal(t *testing.T) {
	ws := newTestServer(t, nil)
	rec, _ := get(t, ws, http.MethodGet, "/api/transactions/recent")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec, _ = get(t, ws, http.MethodGet, "/api/history/"+alice.String())
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDatabaseRoutesWithoutDatabase(t *testing.T) {
	ws := newTestServer(t, nil)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/stats"},
		{http.MethodPost, "/api/stats/refresh"},
		{http.MethodGet, "/api/cycles"},
		{http.MethodGet, "/api/cycles/latest"},
		{http.MethodGet, "/api/cycles/3"},
		{http.MethodGet, "/api/scoring-parameters"},
		{http.MethodGet, "/api/performance"},
	} {
		rec, body := get(t, ws, tc.method, tc.path)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code, tc.path)
		require.Equal(t, true, body["error"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ws := newTestServer(t, nil)
	rec, _ := get(t, ws, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "yieldvault_")
}

func TestCORSHeaders(t *testing.T) {
	ws := newTestServer(t, nil)
	rec, _ := get(t, ws, http.MethodGet, "/api/pools")
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPreflightOnPostOnlyRoute(t *testing.T) {
	ws := newTestServer(t, nil)
	rec, _ := get(t, ws, http.MethodOptions, "/api/stats/refresh")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestCORSHeadersOnUnmatchedRoute(t *testing.T) {
	ws := newTestServer(t, nil)
	rec, _ := get(t, ws, http.MethodDelete, "/api/pools")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestsAreLogged(t *testing.T) {
	buf := captureLogs(t)
	ws := newTestServer(t, nil)

	rec, _ := get(t, ws, http.MethodGet, "/api/pools")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, buf.String(), "HTTP request")
	require.Contains(t, buf.String(), `"path":"/api/pools"`)
	require.Contains(t, buf.String(), `"component":"web_server"`)
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev, prevStd, prevLevel := logger.Logger, log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		logger.Logger, log.Logger = prev, prevStd
		zerolog.SetGlobalLevel(prevLevel)
	})
	var buf bytes.Buffer
	logger.Initialize("debug", "json", &buf)
	return &buf
}
