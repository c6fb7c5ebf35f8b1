package api

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"dclbond/dcl"
	"dclbond/internal/logger"
	"dclbond/internal/metrics"
	"dclbond/store"
)

// RunStore is the persistence the handlers need. *store.Store satisfies it.
type RunStore interface {
	Save(ctx context.Context, res dcl.Result) (string, error)
	SaveAll(ctx context.Context, results []dcl.Result) ([]string, error)
	Get(ctx context.Context, id string) (store.StoredRun, error)
	List(ctx context.Context, limit int) ([]store.RunInfo, error)
	Ping(ctx context.Context) error
}

// Options tunes request limits.
type Options struct {
	// SweepConcurrency bounds parallel runs per sweep request, zero means
	// one per CPU.
	SweepConcurrency int
	// MaxSweepRuns caps the variants of one sweep request, zero means 64.
	MaxSweepRuns int
}

type Handler struct {
	store   RunStore
	metrics *metrics.Registry
	opts    Options
}

// NewHandler builds the handlers. runs may be nil, which disables
// persistence and the /api/runs endpoints.
func NewHandler(runs RunStore, m *metrics.Registry, opts Options) *Handler {
	if opts.MaxSweepRuns <= 0 {
		opts.MaxSweepRuns = 64
	}
	return &Handler{store: runs, metrics: m, opts: opts}
}

// SnapshotBody is one market date. Omitted quantities count as missing data.
type SnapshotBody struct {
	Date              string   `json:"date" binding:"required"`
	Close             *float64 `json:"close"`
	SharesOutstanding *float64 `json:"shares_outstanding"`
	MarketCap         *float64 `json:"market_cap"`
	TotalAssets       *float64 `json:"total_assets"`
	TotalDebt         *float64 `json:"total_debt"`
}

// RunBody is one bond configuration. With initial_price set the conversion
// price is the first close of the series.
type RunBody struct {
	Name         string             `json:"name"`
	Params       dcl.BondParameters `json:"params"`
	InitialPrice bool               `json:"initial_price"`
}

type SimulateRequest struct {
	RunBody
	Series  []SnapshotBody `json:"series" binding:"required,min=1,dive"`
	Persist bool           `json:"persist"`
}

type SweepRequest struct {
	Series  []SnapshotBody `json:"series" binding:"required,min=1,dive"`
	Runs    []RunBody      `json:"runs" binding:"required,min=1,dive"`
	Persist bool           `json:"persist"`
}

// Simulate runs one configuration.
func (h *Handler) Simulate(c *gin.Context) {
	var req SimulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	series, err := toSeries(req.Series)
	if err != nil {
		badRequest(c, err)
		return
	}
	spec, err := req.RunBody.resolve(series)
	if err != nil {
		respondWithError(c, err)
		return
	}
	if req.Persist && h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence disabled"})
		return
	}

	timer := h.metrics.StartRun()
	res, err := dcl.Simulate(spec.Name, spec.Params, series)
	if err != nil {
		timer.Stop(dcl.Result{Name: spec.Name, Params: spec.Params, Errors: []string{err.Error()}})
		respondWithError(c, err)
		return
	}
	timer.Stop(res)

	resp := gin.H{"code": 0, "data": res}
	if req.Persist {
		id, err := h.store.Save(c.Request.Context(), res)
		if err != nil {
			respondWithError(c, err)
			return
		}
		resp["id"] = id
	}
	c.JSON(http.StatusOK, resp)
}

// Sweep runs several configurations against one series. Failed runs are
// reported inside the result list. With persist, the successful runs are
// stored together or not at all.
func (h *Handler) Sweep(c *gin.Context) {
	var req SweepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if len(req.Runs) > h.opts.MaxSweepRuns {
		badRequest(c, fmt.Errorf("too many runs: %d > %d", len(req.Runs), h.opts.MaxSweepRuns))
		return
	}
	series, err := toSeries(req.Series)
	if err != nil {
		badRequest(c, err)
		return
	}
	if req.Persist && h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence disabled"})
		return
	}

	specs := make([]dcl.RunSpec, len(req.Runs))
	for i, r := range req.Runs {
		spec, err := r.resolve(series)
		if err != nil {
			respondWithError(c, err)
			return
		}
		if spec.Name == "" {
			spec.Name = "run " + strconv.Itoa(i+1)
		}
		specs[i] = spec
	}

	results, err := dcl.SweepObserved(c.Request.Context(), series, specs, h.opts.SweepConcurrency, h.metrics.Observe)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var ids []string
	if req.Persist {
		var ok []dcl.Result
		var at []int
		for i, res := range results {
			if len(res.Errors) == 0 {
				ok = append(ok, res)
				at = append(at, i)
			}
		}
		ids = make([]string, len(results))
		if len(ok) > 0 {
			saved, err := h.store.SaveAll(c.Request.Context(), ok)
			if err != nil {
				respondWithError(c, err)
				return
			}
			for j, id := range saved {
				ids[at[j]] = id
			}
		}
	}

	resp := gin.H{"code": 0, "count": len(results), "data": results}
	if ids != nil {
		resp["ids"] = ids
	}
	c.JSON(http.StatusOK, resp)
}

// ListRuns returns stored runs, newest first.
func (h *Handler) ListRuns(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence disabled"})
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	runs, err := h.store.List(c.Request.Context(), limit)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "count": len(runs), "data": runs})
}

// GetRun returns one stored run with its rows.
func (h *Handler) GetRun(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence disabled"})
		return
	}
	id := c.Param("id")
	run, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": run})
}

func (h *Handler) Health(c *gin.Context) {
	status := gin.H{"status": "ok", "store": "disabled"}
	if h.store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			logger.Get().Warnw("store ping failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "store": "error"})
			return
		}
		status["store"] = "ok"
	}
	c.JSON(http.StatusOK, status)
}

func (r RunBody) resolve(series dcl.Series) (dcl.RunSpec, error) {
	return dcl.BondSpec{Name: r.Name, Params: r.Params, InitialPrice: r.InitialPrice}.Resolve(series)
}

func toSeries(body []SnapshotBody) (dcl.Series, error) {
	out := make(dcl.Series, len(body))
	for i, b := range body {
		d, err := time.Parse("2006-01-02", b.Date)
		if err != nil {
			return nil, fmt.Errorf("series[%d]: invalid date %q", i, b.Date)
		}
		out[i] = dcl.MarketSnapshot{
			Date:              d,
			Close:             orNaN(b.Close),
			SharesOutstanding: orNaN(b.SharesOutstanding),
			MarketCap:         orNaN(b.MarketCap),
			TotalAssets:       orNaN(b.TotalAssets),
			TotalDebt:         orNaN(b.TotalDebt),
		}
	}
	return out, nil
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// respondWithError maps domain errors onto status codes. Anything unknown
// is logged and reported as an internal error.
func respondWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, dcl.ErrInvalidConfiguration):
		status = http.StatusBadRequest
	case errors.Is(err, dcl.ErrMissingMarketData), errors.Is(err, dcl.ErrUnorderedDates):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		logger.Get().Errorw("unexpected error",
			"error", err.Error(),
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
