package dcl

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

func WriteResultsJSON(w io.Writer, results []Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

var csvHeader = []string{
	"date", "period_index", "elapsed_periods", "elapsed_years", "close",
	"nominal", "debt_book_value", "shares_outstanding", "residual_value",
	"coco_to_debt_ratio", "leverage_ratio", "coupon_due", "top_up_amount", "new_shares_issued",
}

func WriteRowsCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Date,
			strconv.Itoa(r.PeriodIndex),
			strconv.Itoa(r.ElapsedPeriods),
			fmtNum(r.ElapsedYears),
			fmtNum(r.Close),
			fmtNum(r.Nominal),
			fmtNum(r.DebtBookValue),
			fmtNum(r.SharesOutstanding),
			fmtNum(r.ResidualValue),
			fmtNum(r.CocoToDebtRatio),
			fmtNum(r.LeverageRatio),
			fmtNum(r.CouponDue),
			fmtNum(r.TopUpAmount),
			fmtNum(r.NewSharesIssued),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteDilutionReport prints the value of shares issued by each run,
// priced at the close of the issuance date.
func WriteDilutionReport(w io.Writer, results []Result, currency string) error {
	p := message.NewPrinter(language.English)
	width := 0
	for _, r := range results {
		width = max(width, len(r.Name))
	}
	for _, r := range results {
		if len(r.Errors) > 0 {
			if _, err := fmt.Fprintf(w, "    %-*s: error: %s\n", width, r.Name, strings.Join(r.Errors, "; ")); err != nil {
				return err
			}
			continue
		}
		total := p.Sprint(number.Decimal(r.Summary.TotalDilution, number.MaxFractionDigits(0)))
		if _, err := fmt.Fprintf(w, "    %-*s: %15s %s\n", width, r.Name, total, currency); err != nil {
			return err
		}
	}
	return nil
}

// WriteFileAtomic writes through a temp file in the target directory and
// renames it into place.
func WriteFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".dcl-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if err := write(tmp); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func fmtNum(x float64) string {
	return strconv.FormatFloat(x, 'g', -1, 64)
}
