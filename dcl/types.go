package dcl

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingMarketData    = errors.New("missing market data")
	ErrUnorderedDates       = errors.New("dates not strictly ascending")
)

// Frequency is the number of rebalancing periods per year. FrequencyNone
// disables rebalancing and coupon accrual.
type Frequency int

const (
	FrequencyNone       Frequency = 0
	FrequencyAnnual     Frequency = 1
	FrequencySemiannual Frequency = 2
	FrequencyMonthly    Frequency = 12
	FrequencyDaily      Frequency = 365
)

func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "never", "0":
		return FrequencyNone, nil
	case "annual", "yearly", "1":
		return FrequencyAnnual, nil
	case "semiannual", "semi-annual", "biannual", "bi-annual", "2":
		return FrequencySemiannual, nil
	case "monthly", "12":
		return FrequencyMonthly, nil
	case "daily", "365":
		return FrequencyDaily, nil
	}
	return FrequencyNone, fmt.Errorf("%w: unknown frequency %q", ErrInvalidConfiguration, s)
}

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyNone, FrequencyAnnual, FrequencySemiannual, FrequencyMonthly, FrequencyDaily:
		return true
	}
	return false
}

func (f Frequency) String() string {
	switch f {
	case FrequencyNone:
		return "none"
	case FrequencyAnnual:
		return "annual"
	case FrequencySemiannual:
		return "semiannual"
	case FrequencyMonthly:
		return "monthly"
	case FrequencyDaily:
		return "daily"
	}
	return "frequency(" + strconv.Itoa(int(f)) + ")"
}

func (f Frequency) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("%w: unknown frequency %d", ErrInvalidConfiguration, int(f))
	}
	return []byte(f.String()), nil
}

func (f *Frequency) UnmarshalText(b []byte) error {
	v, err := ParseFrequency(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// BondParameters are fixed for the lifetime of a run.
type BondParameters struct {
	InitialNominal  float64   `json:"initial_nominal" yaml:"initial_nominal" validate:"gt=0"`
	LeverageFloor   float64   `json:"leverage_floor" yaml:"leverage_floor" validate:"gt=0,lt=1"`
	LeverageCeiling float64   `json:"leverage_ceiling" yaml:"leverage_ceiling" validate:"gt=0,lt=1"`
	ConversionPrice float64   `json:"conversion_price" yaml:"conversion_price" validate:"gt=0"`
	CouponRate      float64   `json:"coupon_rate" yaml:"coupon_rate" validate:"gte=0"`
	MaturityYears   float64   `json:"maturity_years" yaml:"maturity_years" validate:"gt=0"`
	Frequency       Frequency `json:"frequency" yaml:"frequency"`
}

// MarketSnapshot is one row of the aligned daily input table.
type MarketSnapshot struct {
	Date              time.Time `json:"date"`
	Close             float64   `json:"close"`
	SharesOutstanding float64   `json:"shares_outstanding"`
	MarketCap         float64   `json:"market_cap"`
	TotalAssets       float64   `json:"total_assets"`
	TotalDebt         float64   `json:"total_debt"`
}

// Complete reports whether every quantity the engine reads is usable.
func (s MarketSnapshot) Complete() bool {
	if s.Date.IsZero() {
		return false
	}
	for _, v := range []float64{s.Close, s.SharesOutstanding, s.MarketCap, s.TotalAssets, s.TotalDebt} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return s.Close > 0 && s.SharesOutstanding > 0 && s.TotalDebt > 0
}

type Series []MarketSnapshot

func (s Series) Dates() []time.Time {
	out := make([]time.Time, len(s))
	for i := range s {
		out[i] = s[i].Date
	}
	return out
}

// Row is one processed date of the output table.
type Row struct {
	Date              string  `json:"date"`
	PeriodIndex       int     `json:"period_index"`
	ElapsedPeriods    int     `json:"elapsed_periods"`
	ElapsedYears      float64 `json:"elapsed_years"`
	Close             float64 `json:"close"`
	Nominal           float64 `json:"nominal"`
	DebtBookValue     float64 `json:"debt_book_value"`
	SharesOutstanding float64 `json:"shares_outstanding"`
	ResidualValue     float64 `json:"residual_value"`
	CocoToDebtRatio   float64 `json:"coco_to_debt_ratio"`
	LeverageRatio     float64 `json:"leverage_ratio"`
	CouponDue         float64 `json:"coupon_due"`
	TopUpAmount       float64 `json:"top_up_amount"`
	NewSharesIssued   float64 `json:"new_shares_issued"`
}

type Summary struct {
	FirstDate        string  `json:"first_date"`
	LastDate         string  `json:"last_date"`
	Rows             int     `json:"rows"`
	HaltedAtMaturity bool    `json:"halted_at_maturity"`
	FinalNominal     float64 `json:"final_nominal"`
	FinalDebt        float64 `json:"final_debt_book_value"`
	FinalShares      float64 `json:"final_shares_outstanding"`
	TopUps           int     `json:"top_ups"`
	TotalTopUp       float64 `json:"total_top_up"`
	Issuances        int     `json:"issuances"`
	TotalNewShares   float64 `json:"total_new_shares"`
	TotalDilution    float64 `json:"total_dilution"`
	MinLeverage      float64 `json:"min_leverage"`
	MaxLeverage      float64 `json:"max_leverage"`
}

type Result struct {
	Name    string         `json:"name"`
	Params  BondParameters `json:"params"`
	Rows    []Row          `json:"rows"`
	Summary Summary        `json:"summary"`
	Errors  []string       `json:"errors,omitempty"`
}
