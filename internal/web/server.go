package web

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/elys-network/yieldvault/internal/logger"
	"github.com/elys-network/yieldvault/internal/state"
	"github.com/elys-network/yieldvault/internal/types"
)

const serviceName = "yieldvault"

// LedgerReader is the read-only view of the ledger served by the API.
type LedgerReader interface {
	GetGlobals() (types.Globals, error)
	GetSharePrice() (sdkmath.LegacyDec, error)
	ListPools() ([]types.PoolInfo, error)
	GetPoolInfo(name string) (types.PoolInfo, bool, error)
	GetPosition(user sdk.AccAddress) (types.UserPosition, error)
	GetUserValue(user sdk.AccAddress) (sdkmath.Int, error)
}

// History is the event journal.
type History interface {
	GetUserHistory(address string, limit int) ([]state.JournalEntry, error)
	GetRecentEvents(limit int) ([]state.JournalEntry, error)
}

// Options configures a WebServer. Ledger is required; History and the database routes are optional.
type Options struct {
	Port       string
	Ledger     LedgerReader
	History    History
	DBEnabled  bool
	ConfigName string
	Gatherer   prometheus.Gatherer
	Version    string
}

// WebServer handles HTTP requests for vault data
type WebServer struct {
	router  *mux.Router
	handler http.Handler
	port    string
	opts    Options
	started time.Time
	logger  zerolog.Logger
}

// NewWebServer creates a new web server instance
func NewWebServer(opts Options) *WebServer {
	if opts.Port == "" {
		opts.Port = "8080"
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	server := &WebServer{
		router:  mux.NewRouter(),
		port:    opts.Port,
		opts:    opts,
		started: time.Now(),
		logger:  logger.GetForComponent("web_server"),
	}

	server.setupRoutes()
	// CORS wraps the router so preflight requests are answered even when no route matches the method.
	server.handler = server.loggingMiddleware(server.corsMiddleware(server.router))
	return server
}

// Handler exposes the router with its middleware, mainly for tests.
func (ws *WebServer) Handler() http.Handler {
	return ws.handler
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.Handle("/metrics", promhttp.HandlerFor(ws.opts.Gatherer, promhttp.HandlerOpts{})).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// Ledger
	api.HandleFunc("/vault/summary", ws.handleGetVaultSummary).Methods("GET")
	api.HandleFunc("/pools", ws.handleGetPools).Methods("GET")
	api.HandleFunc("/pools/{name}", ws.handleGetPool).Methods("GET")
	api.HandleFunc("/position/{address}", ws.handleGetPosition).Methods("GET")

	// Journal
	api.HandleFunc("/history/{address}", ws.handleGetHistory).Methods("GET")
	api.HandleFunc("/transactions/recent", ws.handleGetRecentTransactions).Methods("GET")

	// Database
	api.HandleFunc("/stats", ws.requireDB(ws.handleGetStats)).Methods("GET")
	api.HandleFunc("/stats/refresh", ws.requireDB(ws.handleRefreshStats)).Methods("POST")
	api.HandleFunc("/cycles", ws.requireDB(ws.handleGetCycles)).Methods("GET")
	api.HandleFunc("/cycles/latest", ws.requireDB(ws.handleGetLatestCycle)).Methods("GET")
	api.HandleFunc("/cycles/{id}", ws.requireDB(ws.handleGetCycle)).Methods("GET")
	api.HandleFunc("/scoring-parameters", ws.requireDB(ws.handleGetScoringParameters)).Methods("GET")
	api.HandleFunc("/performance", ws.requireDB(ws.handleGetPerformanceMetrics)).Methods("GET")
}

// Start starts the web server
func (ws *WebServer) Start() error {
	return ws.Server().ListenAndServe()
}

// Server returns an http.Server for the router, so callers can shut it down.
func (ws *WebServer) Server() *http.Server {
	ws.logger.Info().Str("port", ws.port).Msg("Starting web server")
	return &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// handleHealth reports ledger and database reachability
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	healthy := true
	ledgerStatus := "ok"
	if _, err := ws.opts.Ledger.GetGlobals(); err != nil {
		ws.logger.Error().Err(err).Msg("Ledger health check failed")
		ledgerStatus = "error"
		healthy = false
	}

	dbStatus := "disabled"
	var cycleInfo map[string]interface{}
	if ws.opts.DBEnabled {
		dbStatus = "ok"
		if err := state.TestDBConnection(); err != nil {
			ws.logger.Error().Err(err).Msg("Database health check failed")
			dbStatus = "error"
			healthy = false
		} else {
			cycleInfo = ws.cycleInfo()
		}
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if !healthy {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"go_version":       runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.started).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    serviceName,
			"version": ws.opts.Version,
		},
		"ledger":   ledgerStatus,
		"database": dbStatus,
	}
	if cycleInfo != nil {
		response["cycle_info"] = cycleInfo
	}

	ws.writeJSONResponse(w, statusCode, response)
}

func (ws *WebServer) cycleInfo() map[string]interface{} {
	info := map[string]interface{}{}
	if current, err := state.GetCurrentCycleNumber(); err == nil {
		info["current_cycle"] = current
	}
	if recorded, err := state.CountCycles(); err == nil {
		info["cycles_recorded"] = recorded
	}
	if latest, err := state.GetLatestCycle(); err == nil && latest != nil {
		info["last_cycle_time"] = latest.Timestamp
		info["last_cycle_mode"] = latest.Mode
		info["actions_executed"] = len(latest.ActionReceipts)
	}
	return info
}

// handleGetVaultSummary returns the ledger's scalar state and allocation totals
func (ws *WebServer) handleGetVaultSummary(w http.ResponseWriter, r *http.Request) {
	g, err := ws.opts.Ledger.GetGlobals()
	if err != nil {
		ws.internalError(w, err, "Failed to retrieve vault summary")
		return
	}
	price, err := ws.opts.Ledger.GetSharePrice()
	if err != nil {
		ws.internalError(w, err, "Failed to retrieve share price")
		return
	}
	pools, err := ws.opts.Ledger.ListPools()
	if err != nil {
		ws.internalError(w, err, "Failed to retrieve pools")
		return
	}

	allocated := sdkmath.ZeroInt()
	for _, p := range pools {
		allocated = allocated.Add(p.Normalize().TotalAllocated)
	}
	unallocated := g.TotalTVL.Sub(allocated)
	if unallocated.IsNegative() {
		unallocated = sdkmath.ZeroInt()
	}

	response := map[string]interface{}{
		"owner":             g.Owner,
		"total_tvl":         g.TotalTVL.String(),
		"total_shares":      g.TotalShares.String(),
		"share_price":       price.String(),
		"management_fee_bp": g.ManagementFee,
		"paused":            g.Paused,
		"pool_count":        len(pools),
		"total_allocated":   allocated.String(),
		"unallocated":       unallocated.String(),
		"weighted_apy_bps":  state.WeightedAPYBps(pools),
		"timestamp":         time.Now().UTC(),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) handleGetPools(w http.ResponseWriter, r *http.Request) {
	pools, err := ws.opts.Ledger.ListPools()
	if err != nil {
		ws.internalError(w, err, "Failed to retrieve pools")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"pools": pools,
		"count": len(pools),
	})
}

func (ws *WebServer) handleGetPool(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	pool, ok, err := ws.opts.Ledger.GetPoolInfo(name)
	if err != nil {
		ws.internalError(w, err, "Failed to retrieve pool")
		return
	}
	if !ok {
		ws.writeErrorResponse(w, http.StatusNotFound, "Pool not found")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, pool)
}

// handleGetPosition returns a depositor's position and its current value
func (ws *WebServer) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	addrStr := mux.Vars(r)["address"]
	addr, err := sdk.AccAddressFromBech32(addrStr)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid address")
		return
	}

	pos, err := ws.opts.Ledger.GetPosition(addr)
	if err != nil {
		ws.internalError(w, err, "Failed to retrieve position")
		return
	}
	value, err := ws.opts.Ledger.GetUserValue(addr)
	if err != nil {
		ws.internalError(w, err, "Failed to retrieve position value")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"address":           addr.String(),
		"shares":            pos.Shares.String(),
		"deposited_amount":  pos.DepositedAmount.String(),
		"last_deposit_time": pos.LastDepositTime,
		"total_rewards":     pos.TotalRewards.String(),
		"current_value":     value.String(),
	})
}

func (ws *WebServer) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if ws.opts.History == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Event journal is not enabled")
		return
	}
	addrStr := mux.Vars(r)["address"]
	if _, err := sdk.AccAddressFromBech32(addrStr); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid address")
		return
	}

	limit := queryLimit(r, 50, 500)
	entries, err := ws.opts.History.GetUserHistory(addrStr, limit)
	if err != nil {
		ws.internalError(w, err, "Failed to retrieve history")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"address": addrStr,
		"events":  entries,
		"count":   len(entries),
	})
}

func (ws *WebServer) handleGetRecentTransactions(w http.ResponseWriter, r *http.Request) {
	if ws.opts.History == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Event journal is not enabled")
		return
	}
	limit := queryLimit(r, 20, 500)
	entries, err := ws.opts.History.GetRecentEvents(limit)
	if err != nil {
		ws.internalError(w, err, "Failed to retrieve recent transactions")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"events": entries,
		"count":  len(entries),
		"limit":  limit,
	})
}

func (ws *WebServer) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := state.GetLatestPoolStats()
	if err != nil {
		ws.internalError(w, err, "Failed to retrieve stats")
		return
	}
	if stats == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "No stats recorded")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, stats)
}

// handleRefreshStats recomputes stats from the ledger and the journal and stores them
func (ws *WebServer) handleRefreshStats(w http.ResponseWriter, r *http.Request) {
	figures, err := ws.ledgerFigures()
	if err != nil {
		ws.internalError(w, err, "Failed to read ledger")
		return
	}
	stats, err := state.RefreshStats(figures)
	if err != nil {
		ws.internalError(w, err, "Failed to refresh stats")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, stats)
}

func (ws *WebServer) ledgerFigures() (state.LedgerFigures, error) {
	g, err := ws.opts.Ledger.GetGlobals()
	if err != nil {
		return state.LedgerFigures{}, err
	}
	price, err := ws.opts.Ledger.GetSharePrice()
	if err != nil {
		return state.LedgerFigures{}, err
	}
	pools, err := ws.opts.Ledger.ListPools()
	if err != nil {
		return state.LedgerFigures{}, err
	}
	return state.LedgerFigures{TVL: g.TotalTVL, Shares: g.TotalShares, SharePrice: price, Pools: pools}, nil
}

// handleGetCycles returns recent cycle snapshots
func (ws *WebServer) handleGetCycles(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 20, 100)

	cycles, err := state.GetRecentCycles(limit)
	if err != nil {
		ws.internalError(w, err, "Failed to retrieve cycles")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"cycles": cycles,
		"count":  len(cycles),
		"limit":  limit,
	})
}

// handleGetCycle returns a specific cycle by ID
func (ws *WebServer) handleGetCycle(w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid cycle ID")
		return
	}

	cycle, err := state.GetCycleByID(id)
	if err != nil {
		ws.logger.Error().Err(err).Int64("cycleId", id).Msg("Failed to get cycle")
		ws.writeErrorResponse(w, http.StatusNotFound, "Cycle not found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, cycle)
}

// handleGetLatestCycle returns the most recent cycle
func (ws *WebServer) handleGetLatestCycle(w http.ResponseWriter, r *http.Request) {
	cycle, err := state.GetLatestCycle()
	if err != nil || cycle == nil {
		ws.logger.Debug().Err(err).Msg("No latest cycle")
		ws.writeErrorResponse(w, http.StatusNotFound, "No cycles found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, cycle)
}

// handleGetScoringParameters returns the active scoring parameters
func (ws *WebServer) handleGetScoringParameters(w http.ResponseWriter, r *http.Request) {
	params, err := state.LoadActiveScoringParameters(ws.opts.ConfigName)
	if err != nil {
		ws.internalError(w, err, "Failed to retrieve scoring parameters")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"config_name": ws.opts.ConfigName,
		"parameters":  params,
		"timestamp":   time.Now().UTC(),
	})
}

// handleGetPerformanceMetrics aggregates the recorded cycles
func (ws *WebServer) handleGetPerformanceMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := state.GetCycleMetrics()
	if err != nil {
		ws.internalError(w, err, "Failed to retrieve performance metrics")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, m)
}

func queryLimit(r *http.Request, def, max int) int {
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= max {
			return parsed
		}
	}
	return def
}

// requireDB answers 503 when the server runs without Postgres.
func (ws *WebServer) requireDB(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !ws.opts.DBEnabled {
			ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Database is not enabled")
			return
		}
		next(w, r)
	}
}

func (ws *WebServer) internalError(w http.ResponseWriter, err error, message string) {
	ws.logger.Error().Err(err).Msg(message)
	ws.writeErrorResponse(w, http.StatusInternalServerError, message)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		ws.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		ws.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
