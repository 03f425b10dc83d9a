package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volmexfinance/volmex-amm/internal/controller"
	"github.com/volmexfinance/volmex-amm/internal/oracle"
	"github.com/volmexfinance/volmex-amm/internal/types"
)

type capStub struct{}

func (capStub) VolatilityCapRatio() uint64 { return 250 }

func newTestServer(t *testing.T) *WebServer {
	t.Helper()
	o := oracle.New("owner", oracle.DefaultTwapPoints, types.NopRecorder{})
	_, err := o.AddIndex("owner", sdkmath.NewInt(125_000_000), capStub{}, "ETHV", "")
	require.NoError(t, err)

	c, err := controller.New(controller.Config{Owner: "owner", Account: "router"})
	require.NoError(t, err)

	return NewWebServer("8080", o, c, false)
}

func get(t *testing.T, ws *WebServer, path string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	ws.router.ServeHTTP(rec, req)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return rec.Code, body
}

func TestHealth(t *testing.T) {
	ws := newTestServer(t)
	code, body := get(t, ws, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", body["status"])
}

func TestGetIndices(t *testing.T) {
	ws := newTestServer(t)
	code, body := get(t, ws, "/api/indices")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])
}

func TestGetTwap(t *testing.T) {
	ws := newTestServer(t)
	code, body := get(t, ws, "/api/indices/0/twap")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "125000000", body["twap"])

	code, _ = get(t, ws, "/api/indices/7/twap")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestGetPools(t *testing.T) {
	ws := newTestServer(t)
	code, body := get(t, ws, "/api/pools")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["count"])

	code, _ = get(t, ws, "/api/pools/0/quote?token_in=ETHV&amount_in=1000000000000000000")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestQuoteParamValidation(t *testing.T) {
	ws := newTestServer(t)
	code, body := get(t, ws, "/api/quotes/collateral-to-volatility?pool=0")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, true, body["error"])
}
