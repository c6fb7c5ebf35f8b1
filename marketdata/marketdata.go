// Package marketdata turns exported fundamental and price series into the
// aligned daily table the simulation consumes.
package marketdata

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"dclbond/calendar"
	"dclbond/dcl"
)

type Field string

const (
	FieldClose             Field = "close"
	FieldSharesOutstanding Field = "shares_outstanding"
	FieldMarketCap         Field = "market_cap"
	FieldTotalAssets       Field = "total_assets"
	FieldTotalDebt         Field = "total_debt"
)

// AllFields lists the columns of the aligned table in output order.
var AllFields = []Field{FieldClose, FieldSharesOutstanding, FieldMarketCap, FieldTotalAssets, FieldTotalDebt}

var ErrNoPrices = errors.New("no close prices")

type Observation struct {
	Date  time.Time
	Value float64
}

// Fields holds raw observations per column, in file order.
type Fields map[Field][]Observation

type Options struct {
	Encoding string
	Comma    rune
	Start    time.Time
	End      time.Time
	// Lookback bounds how far before the first close an earlier report is
	// still carried forward. Zero means one year.
	Lookback time.Duration
}

func (o Options) lookbackStart(first time.Time) time.Time {
	if o.Lookback > 0 {
		return calendar.Date(first.Add(-o.Lookback))
	}
	return first.AddDate(-1, 0, 0)
}

// Align de-duplicates each field keeping the first observation per date,
// forward-fills every field over calendar days and samples the result on
// business days between the first and last close. Values that are still
// unknown stay NaN.
func Align(fields Fields, opts Options) (dcl.Series, error) {
	closes := clean(fields[FieldClose])
	if len(closes) == 0 {
		return nil, fmt.Errorf("%w: %w", dcl.ErrMissingMarketData, ErrNoPrices)
	}
	first := closes[0].Date
	last := closes[len(closes)-1].Date

	days := calendar.Days(opts.lookbackStart(first), last)
	filled := make(map[Field][]float64, len(AllFields))
	for _, f := range AllFields {
		filled[f] = forwardFill(days, clean(fields[f]))
	}

	idx := make(map[time.Time]int, len(days))
	for i, d := range days {
		idx[d] = i
	}

	var out dcl.Series
	for _, d := range calendar.BusinessDays(first, last) {
		if !opts.Start.IsZero() && d.Before(calendar.Date(opts.Start)) {
			continue
		}
		if !opts.End.IsZero() && d.After(calendar.Date(opts.End)) {
			continue
		}
		i := idx[d]
		out = append(out, dcl.MarketSnapshot{
			Date:              d,
			Close:             filled[FieldClose][i],
			SharesOutstanding: filled[FieldSharesOutstanding][i],
			MarketCap:         filled[FieldMarketCap][i],
			TotalAssets:       filled[FieldTotalAssets][i],
			TotalDebt:         filled[FieldTotalDebt][i],
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no business days in window", dcl.ErrMissingMarketData)
	}
	return out, nil
}

// clean drops later duplicates of a date and returns the rest sorted.
func clean(obs []Observation) []Observation {
	seen := make(map[time.Time]bool, len(obs))
	out := make([]Observation, 0, len(obs))
	for _, o := range obs {
		d := calendar.Date(o.Date)
		if seen[d] || math.IsNaN(o.Value) {
			continue
		}
		seen[d] = true
		out = append(out, Observation{Date: d, Value: o.Value})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func forwardFill(days []time.Time, obs []Observation) []float64 {
	out := make([]float64, len(days))
	j := 0
	cur := math.NaN()
	for i, d := range days {
		for j < len(obs) && !obs[j].Date.After(d) {
			if !obs[j].Date.Before(days[0]) {
				cur = obs[j].Value
			}
			j++
		}
		out[i] = cur
	}
	return out
}
