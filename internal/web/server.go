package web

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/volmexfinance/volmex-amm/internal/controller"
	"github.com/volmexfinance/volmex-amm/internal/logger"
	"github.com/volmexfinance/volmex-amm/internal/oracle"
	"github.com/volmexfinance/volmex-amm/internal/state"
	"github.com/volmexfinance/volmex-amm/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer handles HTTP requests for oracle and pool data.
type WebServer struct {
	router     *mux.Router
	port       string
	oracle     *oracle.Oracle
	controller *controller.Controller
	persist    bool
}

// NewWebServer creates a new web server instance. persist reports
// whether the postgres journal is active; it gates the history routes.
func NewWebServer(port string, o *oracle.Oracle, c *controller.Controller, persist bool) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:     mux.NewRouter(),
		port:       port,
		oracle:     o,
		controller: c,
		persist:    persist,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/indices", ws.handleGetIndices).Methods("GET")
	api.HandleFunc("/indices/{id}", ws.handleGetIndex).Methods("GET")
	api.HandleFunc("/indices/{id}/twap", ws.handleGetTwap).Methods("GET")
	api.HandleFunc("/pools", ws.handleGetPools).Methods("GET")
	api.HandleFunc("/pools/{id}", ws.handleGetPool).Methods("GET")
	api.HandleFunc("/pools/{id}/quote", ws.handleQuoteSwap).Methods("GET")
	api.HandleFunc("/quotes/collateral-to-volatility", ws.handleQuoteCollateralToVolatility).Methods("GET")
	api.HandleFunc("/quotes/volatility-to-collateral", ws.handleQuoteVolatilityToCollateral).Methods("GET")
	if ws.persist {
		api.HandleFunc("/swaps", ws.handleGetRecentSwaps).Methods("GET")
	}

	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(ws.router)

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	dbHealthy := true
	if ws.persist {
		if err := state.TestDBConnection(); err != nil {
			dbHealthy = false
		}
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if !dbHealthy {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"gc_cycles":        memStats.NumGC,
		},
		"component": map[string]interface{}{
			"name":             "volmex-amm",
			"indices":          len(ws.oracle.Indexes()),
			"pools":            ws.controller.Pools(),
			"database_healthy": dbHealthy,
			"persistence":      ws.persist,
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetIndices lists all registered volatility indices with their
// latest prices.
func (ws *WebServer) handleGetIndices(w http.ResponseWriter, r *http.Request) {
	indices := ws.oracle.Indexes()
	out := make([]map[string]interface{}, 0, len(indices))
	for _, idx := range indices {
		price, complement, err := ws.oracle.PriceByIndex(idx.ID)
		if err != nil {
			continue
		}
		out = append(out, map[string]interface{}{
			"id":         idx.ID,
			"symbol":     idx.Symbol,
			"cap_ratio":  idx.CapRatio.String(),
			"price":      price.String(),
			"complement": complement.String(),
		})
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"indices": out,
		"count":   len(out),
	})
}

// handleGetIndex returns one index with latest and average prices.
func (ws *WebServer) handleGetIndex(w http.ResponseWriter, r *http.Request) {
	id, ok := ws.pathID(w, r, "id")
	if !ok {
		return
	}
	indexID := types.IndexID(id)

	price, complement, err := ws.oracle.PriceByIndex(indexID)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Index not found")
		return
	}
	twap, err := ws.oracle.Twap(indexID)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to compute average price")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"id":         indexID,
		"price":      price.String(),
		"complement": complement.String(),
		"twap":       twap.String(),
	})
}

// handleGetTwap returns the moving-average price for one index.
func (ws *WebServer) handleGetTwap(w http.ResponseWriter, r *http.Request) {
	id, ok := ws.pathID(w, r, "id")
	if !ok {
		return
	}
	twap, err := ws.oracle.Twap(types.IndexID(id))
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Index not found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"id":   id,
		"twap": twap.String(),
	})
}

// handleGetPools lists all registered pools.
func (ws *WebServer) handleGetPools(w http.ResponseWriter, r *http.Request) {
	count := ws.controller.Pools()
	out := make([]map[string]interface{}, 0, count)
	for i := 0; i < count; i++ {
		summary, err := ws.poolSummary(types.PoolID(i))
		if err != nil {
			continue
		}
		out = append(out, summary)
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"pools": out,
		"count": len(out),
	})
}

// handleGetPool returns one pool's state.
func (ws *WebServer) handleGetPool(w http.ResponseWriter, r *http.Request) {
	id, ok := ws.pathID(w, r, "id")
	if !ok {
		return
	}
	summary, err := ws.poolSummary(types.PoolID(id))
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Pool not found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, summary)
}

// handleQuoteSwap quotes a single-pool swap:
// /api/pools/{id}/quote?token_in=ETHV&amount_in=1000000000000000000
func (ws *WebServer) handleQuoteSwap(w http.ResponseWriter, r *http.Request) {
	id, ok := ws.pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := ws.controller.Pool(types.PoolID(id))
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Pool not found")
		return
	}
	tokenIn := r.URL.Query().Get("token_in")
	amountIn, ok := sdkmath.NewIntFromString(r.URL.Query().Get("amount_in"))
	if tokenIn == "" || !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "token_in and amount_in are required")
		return
	}

	amountOut, fee, err := p.TokenAmountOut(tokenIn, amountIn)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"pool":       id,
		"token_in":   tokenIn,
		"amount_in":  amountIn.String(),
		"amount_out": amountOut.String(),
		"fee":        fee.String(),
	})
}

// handleQuoteCollateralToVolatility quotes the collateralize-and-swap
// path: ?pool=0&stable=0&token_out=ETHV&amount_in=...
func (ws *WebServer) handleQuoteCollateralToVolatility(w http.ResponseWriter, r *http.Request) {
	poolID, stableID, amountIn, token, ok := ws.quoteParams(w, r, "token_out")
	if !ok {
		return
	}
	amountOut, fee, err := ws.controller.CollateralToVolatility(poolID, stableID, token, amountIn)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"pool":       poolID,
		"stable":     stableID,
		"token_out":  token,
		"amount_in":  amountIn.String(),
		"amount_out": amountOut.String(),
		"fee":        fee.String(),
	})
}

// handleQuoteVolatilityToCollateral quotes the swap-and-redeem path:
// ?pool=0&stable=0&token_in=ETHV&amount_in=...
func (ws *WebServer) handleQuoteVolatilityToCollateral(w http.ResponseWriter, r *http.Request) {
	poolID, stableID, amountIn, token, ok := ws.quoteParams(w, r, "token_in")
	if !ok {
		return
	}
	amountOut, fee, err := ws.controller.VolatilityToCollateral(poolID, stableID, token, amountIn)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"pool":       poolID,
		"stable":     stableID,
		"token_in":   token,
		"amount_in":  amountIn.String(),
		"amount_out": amountOut.String(),
		"fee":        fee.String(),
	})
}

// handleGetRecentSwaps returns journaled swaps, newest first.
func (ws *WebServer) handleGetRecentSwaps(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	swaps, err := state.GetRecentSwaps(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent swaps")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve swaps")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"swaps": swaps,
		"count": len(swaps),
		"limit": limit,
	})
}

func (ws *WebServer) poolSummary(id types.PoolID) (map[string]interface{}, error) {
	p, err := ws.controller.Pool(id)
	if err != nil {
		return nil, err
	}
	vol, inverse := p.Tokens()
	summary := map[string]interface{}{
		"id":           id,
		"share_symbol": p.Share().Symbol(),
		"share_supply": p.Share().TotalSupply().String(),
		"finalized":    p.Finalized(),
		"paused":       p.Paused(),
		"index":        p.VolatilityIndex(),
		"tokens":       []string{vol.Symbol(), inverse.Symbol()},
	}
	if balance, err := p.GetBalance(vol.Symbol()); err == nil {
		summary["primary_balance"] = balance.String()
	}
	if balance, err := p.GetBalance(inverse.Symbol()); err == nil {
		summary["complement_balance"] = balance.String()
	}
	if leverage, err := p.GetLeverage(vol.Symbol()); err == nil {
		summary["primary_leverage"] = leverage.String()
	}
	if leverage, err := p.GetLeverage(inverse.Symbol()); err == nil {
		summary["complement_leverage"] = leverage.String()
	}
	return summary, nil
}

// pathID parses a numeric path variable.
func (ws *WebServer) pathID(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)[name], 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return id, true
}

// quoteParams parses the shared query parameters of the quote routes.
func (ws *WebServer) quoteParams(w http.ResponseWriter, r *http.Request, tokenParam string) (types.PoolID, types.StableCoinID, sdkmath.Int, string, bool) {
	q := r.URL.Query()
	poolID, errPool := strconv.ParseUint(q.Get("pool"), 10, 64)
	stableID, errStable := strconv.ParseUint(q.Get("stable"), 10, 64)
	amountIn, okAmount := sdkmath.NewIntFromString(q.Get("amount_in"))
	token := q.Get(tokenParam)
	if errPool != nil || errStable != nil || !okAmount || token == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "pool, stable, amount_in and "+tokenParam+" are required")
		return 0, 0, sdkmath.Int{}, "", false
	}
	return types.PoolID(poolID), types.StableCoinID(stableID), amountIn, token, true
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
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

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
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
