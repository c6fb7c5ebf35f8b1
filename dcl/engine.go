package dcl

import (
	"fmt"
	"math"
)

// Engine replays one bond configuration against a market series. An Engine
// holds no run state, so a single instance may serve concurrent runs.
type Engine struct {
	params BondParameters
}

func NewEngine(params BondParameters) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Engine{params: params}, nil
}

func (e *Engine) Params() BondParameters { return e.params }

// Simulate validates params and runs them against series.
func Simulate(name string, params BondParameters, series Series) (Result, error) {
	e, err := NewEngine(params)
	if err != nil {
		return Result{}, err
	}
	res, err := e.Run(series)
	if err != nil {
		return Result{}, err
	}
	res.Name = name
	return res, nil
}

// state is carried from one processed date to the next.
type state struct {
	nominal  float64
	toppedUp float64
	shares   float64
}

// Run processes series in date order and stops after the first date whose
// elapsed time reaches maturity.
func (e *Engine) Run(series Series) (Result, error) {
	p := e.params
	periods, err := PeriodIndex(series.Dates(), p.Frequency)
	if err != nil {
		return Result{}, err
	}

	rows := make([]Row, 0, len(series))
	halted := false
	var st state

	for i, snap := range series {
		if !snap.Complete() {
			return Result{}, fmt.Errorf("%w: %s", ErrMissingMarketData, snap.Date.Format(dateLayout))
		}
		if i == 0 {
			st = state{nominal: p.InitialNominal, shares: snap.SharesOutstanding}
		}

		years := e.elapsedYears(periods[i].Elapsed)
		row := Row{
			Date:              snap.Date.Format(dateLayout),
			PeriodIndex:       periods[i].Index,
			ElapsedPeriods:    periods[i].Elapsed,
			ElapsedYears:      years,
			Close:             snap.Close,
			Nominal:           st.nominal,
			DebtBookValue:     snap.TotalDebt + st.toppedUp,
			SharesOutstanding: st.shares,
		}
		e.revalue(&row)

		// Inception only establishes the starting residual value.
		if i > 0 && p.Frequency != FrequencyNone {
			row.CouponDue = e.couponDue(row.Nominal)
			if periods[i].Index != periods[i-1].Index {
				e.rebalance(&row, &st)
			}
		}

		rows = append(rows, row)

		if p.Frequency != FrequencyNone && years >= p.MaturityYears {
			halted = true
			break
		}
	}

	return Result{
		Params:  p,
		Rows:    rows,
		Summary: summarize(rows, halted),
	}, nil
}

func (e *Engine) rebalance(row *Row, st *state) {
	p := e.params
	switch {
	case row.LeverageRatio < p.LeverageFloor:
		topUp := -row.ResidualValue + p.LeverageFloor*row.SharesOutstanding*row.Close/(1-p.LeverageFloor)
		if !(topUp > 0) {
			return
		}
		st.nominal += topUp
		st.toppedUp += topUp
		row.TopUpAmount = topUp
		row.Nominal = st.nominal
		row.DebtBookValue += topUp
		e.revalue(row)

	case row.LeverageRatio > p.LeverageCeiling:
		fromCoupon := row.CouponDue / p.ConversionPrice
		toCeiling := row.ResidualValue*(1-p.LeverageCeiling)/(p.LeverageCeiling*row.CocoToDebtRatio*row.Close) - row.SharesOutstanding
		issued := math.Min(fromCoupon, toCeiling)
		// never buy shares back
		if !(issued > 0) {
			return
		}
		st.shares += issued
		row.SharesOutstanding = st.shares
		row.NewSharesIssued = issued
		e.revalue(row)
	}
}

// revalue recomputes residual value, CoCo share of debt and leverage from
// the row's nominal, debt and share count.
func (e *Engine) revalue(row *Row) {
	row.ResidualValue = ResidualValue(row.Nominal, e.params.CouponRate, e.params.MaturityYears, row.ElapsedYears)
	row.CocoToDebtRatio = row.ResidualValue / row.DebtBookValue
	if row.ResidualValue == 0 {
		// RQ cancels out of RQ/(RQ+alpha*S*P), so a fully amortized
		// claim still has the debt/(debt+equity) leverage.
		if v := row.DebtBookValue + row.SharesOutstanding*row.Close; v > 0 {
			row.LeverageRatio = row.DebtBookValue / v
		} else {
			row.LeverageRatio = 0
		}
		return
	}
	firm := row.ResidualValue + row.CocoToDebtRatio*row.SharesOutstanding*row.Close
	row.LeverageRatio = row.ResidualValue / firm
}

func (e *Engine) elapsedYears(k int) float64 {
	if e.params.Frequency == FrequencyNone {
		return 0
	}
	return float64(k) / float64(e.params.Frequency)
}

func (e *Engine) couponDue(nominal float64) float64 {
	n := e.params.MaturityYears * float64(e.params.PeriodsPerYear())
	return Annuity(nominal, e.params.CouponRate, n)
}

// ResidualValue is the amortized claim of a bond with nominal q after
// elapsed of maturity years at rate r.
func ResidualValue(q, r, maturity, elapsed float64) float64 {
	if r == 0 {
		return q * (1 - elapsed/maturity)
	}
	g := math.Pow(1+r, elapsed)
	return q * (g + (1-g)/(1-math.Pow(1+r, -maturity)))
}

// Annuity is the level payment that retires q over n periods at rate r.
func Annuity(q, r, n float64) float64 {
	if n <= 0 {
		return 0
	}
	if r == 0 {
		return q / n
	}
	return r * q / (1 - math.Pow(1+r, -n))
}

func summarize(rows []Row, halted bool) Summary {
	s := Summary{Rows: len(rows), HaltedAtMaturity: halted}
	if len(rows) == 0 {
		return s
	}
	first, last := rows[0], rows[len(rows)-1]
	s.FirstDate = first.Date
	s.LastDate = last.Date
	s.FinalNominal = last.Nominal
	s.FinalDebt = last.DebtBookValue
	s.FinalShares = last.SharesOutstanding
	s.MinLeverage = math.Inf(1)
	s.MaxLeverage = math.Inf(-1)

	for _, r := range rows {
		if r.TopUpAmount > 0 {
			s.TopUps++
			s.TotalTopUp += r.TopUpAmount
		}
		if r.NewSharesIssued > 0 {
			s.Issuances++
			s.TotalNewShares += r.NewSharesIssued
			s.TotalDilution += r.NewSharesIssued * r.Close
		}
		s.MinLeverage = math.Min(s.MinLeverage, r.LeverageRatio)
		s.MaxLeverage = math.Max(s.MaxLeverage, r.LeverageRatio)
	}
	return s
}
