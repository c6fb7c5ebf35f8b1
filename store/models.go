package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"dclbond/dcl"
)

// Run is one persisted simulation: its parameters and summary. Rows live in
// run_rows.
type Run struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Name      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"index"`

	Frequency       string `gorm:"index;not null"`
	InitialNominal  float64
	LeverageFloor   float64
	LeverageCeiling float64
	ConversionPrice float64
	CouponRate      float64
	MaturityYears   float64

	FirstDate        string
	LastDate         string
	RowCount         int
	HaltedAtMaturity bool
	FinalNominal     float64
	FinalDebt        float64
	FinalShares      float64
	TopUps           int
	TotalTopUp       float64
	Issuances        int
	TotalNewShares   float64
	TotalDilution    float64
	MinLeverage      float64
	MaxLeverage      float64

	Rows []RunRow `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

type RunRow struct {
	ID    uint   `gorm:"primaryKey"`
	RunID string `gorm:"size:36;not null;index:idx_run_seq,priority:1"`
	Seq   int    `gorm:"not null;index:idx_run_seq,priority:2"`

	Date              string `gorm:"size:10"`
	PeriodIndex       int
	ElapsedPeriods    int
	ElapsedYears      float64
	Close             float64
	Nominal           float64
	DebtBookValue     float64
	SharesOutstanding float64
	ResidualValue     float64
	CocoToDebtRatio   float64
	LeverageRatio     float64
	CouponDue         float64
	TopUpAmount       float64
	NewSharesIssued   float64
}

// BeforeCreate assigns a time-ordered id to new runs.
func (r *Run) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			id = uuid.New()
		}
		r.ID = id.String()
	}
	return nil
}

func newRun(res dcl.Result) *Run {
	p, s := res.Params, res.Summary
	run := &Run{
		Name:             res.Name,
		Frequency:        p.Frequency.String(),
		InitialNominal:   p.InitialNominal,
		LeverageFloor:    p.LeverageFloor,
		LeverageCeiling:  p.LeverageCeiling,
		ConversionPrice:  p.ConversionPrice,
		CouponRate:       p.CouponRate,
		MaturityYears:    p.MaturityYears,
		FirstDate:        s.FirstDate,
		LastDate:         s.LastDate,
		RowCount:         s.Rows,
		HaltedAtMaturity: s.HaltedAtMaturity,
		FinalNominal:     s.FinalNominal,
		FinalDebt:        s.FinalDebt,
		FinalShares:      s.FinalShares,
		TopUps:           s.TopUps,
		TotalTopUp:       s.TotalTopUp,
		Issuances:        s.Issuances,
		TotalNewShares:   s.TotalNewShares,
		TotalDilution:    s.TotalDilution,
		MinLeverage:      s.MinLeverage,
		MaxLeverage:      s.MaxLeverage,
	}
	run.Rows = make([]RunRow, len(res.Rows))
	for i, r := range res.Rows {
		run.Rows[i] = RunRow{
			Seq:               i,
			Date:              r.Date,
			PeriodIndex:       r.PeriodIndex,
			ElapsedPeriods:    r.ElapsedPeriods,
			ElapsedYears:      r.ElapsedYears,
			Close:             r.Close,
			Nominal:           r.Nominal,
			DebtBookValue:     r.DebtBookValue,
			SharesOutstanding: r.SharesOutstanding,
			ResidualValue:     r.ResidualValue,
			CocoToDebtRatio:   r.CocoToDebtRatio,
			LeverageRatio:     r.LeverageRatio,
			CouponDue:         r.CouponDue,
			TopUpAmount:       r.TopUpAmount,
			NewSharesIssued:   r.NewSharesIssued,
		}
	}
	return run
}

func (r *Run) params() dcl.BondParameters {
	// stored names come from Frequency.String, so parsing cannot fail for
	// rows this package wrote
	f, _ := dcl.ParseFrequency(r.Frequency)
	return dcl.BondParameters{
		InitialNominal:  r.InitialNominal,
		LeverageFloor:   r.LeverageFloor,
		LeverageCeiling: r.LeverageCeiling,
		ConversionPrice: r.ConversionPrice,
		CouponRate:      r.CouponRate,
		MaturityYears:   r.MaturityYears,
		Frequency:       f,
	}
}

func (r *Run) summary() dcl.Summary {
	return dcl.Summary{
		FirstDate:        r.FirstDate,
		LastDate:         r.LastDate,
		Rows:             r.RowCount,
		HaltedAtMaturity: r.HaltedAtMaturity,
		FinalNominal:     r.FinalNominal,
		FinalDebt:        r.FinalDebt,
		FinalShares:      r.FinalShares,
		TopUps:           r.TopUps,
		TotalTopUp:       r.TotalTopUp,
		Issuances:        r.Issuances,
		TotalNewShares:   r.TotalNewShares,
		TotalDilution:    r.TotalDilution,
		MinLeverage:      r.MinLeverage,
		MaxLeverage:      r.MaxLeverage,
	}
}

func (r *Run) result() dcl.Result {
	res := dcl.Result{
		Name:    r.Name,
		Params:  r.params(),
		Summary: r.summary(),
		Rows:    make([]dcl.Row, len(r.Rows)),
	}
	for i, row := range r.Rows {
		res.Rows[i] = dcl.Row{
			Date:              row.Date,
			PeriodIndex:       row.PeriodIndex,
			ElapsedPeriods:    row.ElapsedPeriods,
			ElapsedYears:      row.ElapsedYears,
			Close:             row.Close,
			Nominal:           row.Nominal,
			DebtBookValue:     row.DebtBookValue,
			SharesOutstanding: row.SharesOutstanding,
			ResidualValue:     row.ResidualValue,
			CocoToDebtRatio:   row.CocoToDebtRatio,
			LeverageRatio:     row.LeverageRatio,
			CouponDue:         row.CouponDue,
			TopUpAmount:       row.TopUpAmount,
			NewSharesIssued:   row.NewSharesIssued,
		}
	}
	return res
}
