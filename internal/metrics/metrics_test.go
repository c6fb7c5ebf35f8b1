package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dclbond/dcl"
)

func TestObserveCountsOutcomesAndEvents(t *testing.T) {
	r := NewRegistry()
	annual := dcl.BondParameters{Frequency: dcl.FrequencyAnnual}

	r.Observe(dcl.Result{Params: annual, Summary: dcl.Summary{HaltedAtMaturity: true, TopUps: 2, Issuances: 1}}, time.Millisecond)
	r.Observe(dcl.Result{Params: annual, Summary: dcl.Summary{Issuances: 3}}, time.Millisecond)
	r.Observe(dcl.Result{Params: annual, Errors: []string{"boom"}, Summary: dcl.Summary{TopUps: 9}}, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.Simulations.WithLabelValues("annual", OutcomeMatured)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Simulations.WithLabelValues("annual", OutcomeCompleted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Simulations.WithLabelValues("annual", OutcomeFailed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.RebalanceEvents.WithLabelValues("top_up")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.RebalanceEvents.WithLabelValues("share_issuance")))
}

func TestRunTimerTracksActiveRuns(t *testing.T) {
	r := NewRegistry()
	timer := r.StartRun()
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ActiveRuns))
	timer.Stop(dcl.Result{})
	assert.Equal(t, 0.0, testutil.ToFloat64(r.ActiveRuns))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Simulations.WithLabelValues("none", OutcomeCompleted)))
}

func TestHandlerServesOwnRegistry(t *testing.T) {
	r := NewRegistry()
	r.Observe(dcl.Result{}, time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dcl_simulations_total")
	assert.Contains(t, rec.Body.String(), "dcl_simulation_duration_seconds")
}
