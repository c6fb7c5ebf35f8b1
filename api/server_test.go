package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dclbond/config"
	"dclbond/dcl"
	"dclbond/internal/metrics"
	"dclbond/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, withStore bool) http.Handler {
	t.Helper()
	var runs RunStore
	if withStore {
		st, err := store.Open("sqlite", filepath.Join(t.TempDir(), "api.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = st.Close() })
		runs = st
	}
	m := metrics.NewRegistry()
	h := NewHandler(runs, m, Options{MaxSweepRuns: 4})
	return NewServer(config.ServerConfig{Host: "127.0.0.1", Port: 0}, h, m).Handler()
}

// seriesJSON builds n monthly snapshots of one share at price against debt.
func seriesJSON(n int, price, debt float64) []map[string]any {
	out := make([]map[string]any, n)
	d := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = map[string]any{
			"date":               d.Format("2006-01-02"),
			"close":              price,
			"shares_outstanding": 1,
			"market_cap":         price,
			"total_assets":       2 * debt,
			"total_debt":         debt,
		}
		d = d.AddDate(0, 1, 0)
	}
	return out
}

func params() map[string]any {
	return map[string]any{
		"initial_nominal":  100,
		"leverage_floor":   0.85,
		"leverage_ceiling": 0.9,
		"conversion_price": 5,
		"coupon_rate":      0.05,
		"maturity_years":   10,
		"frequency":        "annual",
	}
}

func do(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestSimulate(t *testing.T) {
	h := newTestServer(t, false)
	rec, body := do(t, h, http.MethodPost, "/api/simulate", map[string]any{
		"name":   "annual",
		"params": params(),
		"series": seriesJSON(13, 5, 95),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	data := body["data"].(map[string]any)
	assert.Equal(t, "annual", data["name"])
	rows := data["rows"].([]any)
	require.Len(t, rows, 13)
	assert.Greater(t, rows[12].(map[string]any)["new_shares_issued"].(float64), 0.0)
	assert.Nil(t, body["id"])
}

func TestSimulateInitialPrice(t *testing.T) {
	h := newTestServer(t, false)
	p := params()
	delete(p, "conversion_price")
	rec, body := do(t, h, http.MethodPost, "/api/simulate", map[string]any{
		"params":        p,
		"initial_price": true,
		"series":        seriesJSON(3, 7.5, 95),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := body["data"].(map[string]any)["params"].(map[string]any)["conversion_price"]
	assert.Equal(t, 7.5, got)
}

func TestSimulateErrorMapping(t *testing.T) {
	h := newTestServer(t, false)

	badParams := params()
	badParams["leverage_floor"] = 0.95

	missing := seriesJSON(5, 5, 95)
	delete(missing[3], "total_debt")

	unordered := seriesJSON(3, 5, 95)
	unordered[1], unordered[2] = unordered[2], unordered[1]

	unknownFreq := params()
	unknownFreq["frequency"] = "weekly"

	cases := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{"invalid configuration", map[string]any{"params": badParams, "series": seriesJSON(3, 5, 95)}, http.StatusBadRequest},
		{"unknown frequency", map[string]any{"params": unknownFreq, "series": seriesJSON(3, 5, 95)}, http.StatusBadRequest},
		{"empty series", map[string]any{"params": params(), "series": []any{}}, http.StatusBadRequest},
		{"missing data", map[string]any{"params": params(), "series": missing}, http.StatusUnprocessableEntity},
		{"unordered dates", map[string]any{"params": params(), "series": unordered}, http.StatusUnprocessableEntity},
		{"persist without store", map[string]any{"params": params(), "series": seriesJSON(3, 5, 95), "persist": true}, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, body := do(t, h, http.MethodPost, "/api/simulate", tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestSweep(t *testing.T) {
	h := newTestServer(t, false)
	monthly := params()
	monthly["frequency"] = "monthly"
	bad := params()
	bad["conversion_price"] = 0

	rec, body := do(t, h, http.MethodPost, "/api/sweep", map[string]any{
		"series": seriesJSON(13, 5, 95),
		"runs": []map[string]any{
			{"name": "annual", "params": params()},
			{"params": monthly},
			{"name": "bad", "params": bad},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 3.0, body["count"])

	data := body["data"].([]any)
	assert.Equal(t, "annual", data[0].(map[string]any)["name"])
	assert.Equal(t, "run 2", data[1].(map[string]any)["name"])
	assert.NotEmpty(t, data[2].(map[string]any)["errors"])
}

func TestSweepTooManyRuns(t *testing.T) {
	h := newTestServer(t, false)
	runs := make([]map[string]any, 5)
	for i := range runs {
		runs[i] = map[string]any{"params": params()}
	}
	rec, _ := do(t, h, http.MethodPost, "/api/sweep", map[string]any{"series": seriesJSON(3, 5, 95), "runs": runs})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPersistAndFetchRuns(t *testing.T) {
	h := newTestServer(t, true)

	rec, body := do(t, h, http.MethodPost, "/api/simulate", map[string]any{
		"name":    "stored",
		"params":  params(),
		"series":  seriesJSON(13, 20, 80),
		"persist": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)

	rec, body = do(t, h, http.MethodGet, "/api/runs/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	run := body["data"].(map[string]any)
	assert.Equal(t, "stored", run["name"])
	assert.Len(t, run["rows"].([]any), 13)

	rec, body = do(t, h, http.MethodGet, "/api/runs?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, body["count"])

	rec, _ = do(t, h, http.MethodGet, "/api/runs/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/runs?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSweepPersistsSuccessfulRuns(t *testing.T) {
	h := newTestServer(t, true)
	bad := params()
	bad["leverage_ceiling"] = 0.5

	rec, body := do(t, h, http.MethodPost, "/api/sweep", map[string]any{
		"series":  seriesJSON(13, 5, 95),
		"runs":    []map[string]any{{"name": "ok", "params": params()}, {"name": "bad", "params": bad}},
		"persist": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ids := body["ids"].([]any)
	assert.NotEmpty(t, ids[0])
	assert.Equal(t, "", ids[1])
}

// brokenStore fails every batch save.
type brokenStore struct {
	RunStore
	calls int
}

func (b *brokenStore) SaveAll(context.Context, []dcl.Result) ([]string, error) {
	b.calls++
	return nil, errors.New("disk full")
}

func TestSweepPersistFailureReturnsNoIDs(t *testing.T) {
	st := &brokenStore{}
	m := metrics.NewRegistry()
	h := NewServer(config.ServerConfig{}, NewHandler(st, m, Options{}), m).Handler()

	rec, body := do(t, h, http.MethodPost, "/api/sweep", map[string]any{
		"series":  seriesJSON(13, 5, 95),
		"runs":    []map[string]any{{"name": "a", "params": params()}, {"name": "b", "params": params()}},
		"persist": true,
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", body["error"])
	assert.NotContains(t, body, "ids")
	assert.Equal(t, 1, st.calls, "both runs go to the store in one call")
}

func TestRunsWithoutStore(t *testing.T) {
	h := newTestServer(t, false)
	rec, _ := do(t, h, http.MethodGet, "/api/runs", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(t, true)

	rec, body := do(t, h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["store"])

	do(t, h, http.MethodPost, "/api/simulate", map[string]any{"params": params(), "series": seriesJSON(13, 5, 95)})

	rec, _ = do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, fmt.Sprintf(`dcl_simulations_total{frequency="annual",outcome="%s"} 1`, metrics.OutcomeCompleted))
	assert.Contains(t, out, `dcl_rebalance_events_total{kind="share_issuance"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t, false)
	req := httptest.NewRequest(http.MethodOptions, "/api/simulate", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
