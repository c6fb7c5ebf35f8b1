package marketdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"dclbond/dcl"
)

// fieldAliases maps normalized header names onto fields. Export headers from
// data terminals are accepted alongside the snake_case names.
var fieldAliases = map[string]Field{
	"close":                            FieldClose,
	"close_price":                      FieldClose,
	"price":                            FieldClose,
	"shares_outstanding":               FieldSharesOutstanding,
	"issue_default_shares_outstanding": FieldSharesOutstanding,
	"shares":                           FieldSharesOutstanding,
	"market_cap":                       FieldMarketCap,
	"market_capitalization":            FieldMarketCap,
	"company_market_capitalization":    FieldMarketCap,
	"total_assets":                     FieldTotalAssets,
	"total_debt":                       FieldTotalDebt,
	"total_debt_outstanding":           FieldTotalDebt,
}

// fieldFiles names the per-field files LoadFieldDir looks for, first match wins.
var fieldFiles = map[Field][]string{
	FieldClose:             {"Close.csv", "close.csv"},
	FieldSharesOutstanding: {"SharesOutstanding.csv", "TR.IssueSharesOutstanding.csv", "shares_outstanding.csv"},
	FieldMarketCap:         {"MarketCap.csv", "TR.CompanyMarketCapitalization.csv", "market_cap.csv"},
	FieldTotalAssets:       {"TotalAssets.csv", "TR.TotalAssets.csv", "total_assets.csv"},
	FieldTotalDebt:         {"TotalDebt.csv", "TR.TotalDebtOutstanding.csv", "total_debt.csv"},
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006/01/02",
	"02.01.2006",
}

// Load reads the source named by a run config.
func Load(src dcl.DataSource) (dcl.Series, error) {
	opts := Options{Encoding: src.Encoding, Start: src.Start, End: src.End}
	switch {
	case src.File != "":
		f, err := os.Open(src.File)
		if err != nil {
			return nil, fmt.Errorf("open market data: %w", err)
		}
		defer f.Close()
		return LoadCombinedCSV(f, opts)
	case src.Dir != "":
		return LoadFieldDir(src.Dir, opts)
	default:
		return nil, fmt.Errorf("%w: data.file or data.dir is required", dcl.ErrInvalidConfiguration)
	}
}

// LoadCombinedCSV reads a table with a date column and one column per field.
// Empty cells are treated as missing and filled by Align.
func LoadCombinedCSV(r io.Reader, opts Options) (dcl.Series, error) {
	cr, err := newReader(r, opts)
	if err != nil {
		return nil, err
	}
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	dateCol := -1
	cols := map[int]Field{}
	for i, h := range header {
		name := normalizeHeader(h)
		if name == "date" || name == "" && i == 0 {
			dateCol = i
			continue
		}
		if f, ok := fieldAliases[name]; ok {
			cols[i] = f
		}
	}
	if dateCol < 0 {
		return nil, fmt.Errorf("missing date column in header %v", header)
	}

	fields := Fields{}
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		d, err := parseDate(rec[dateCol])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		for i, f := range cols {
			if i >= len(rec) {
				continue
			}
			v, ok, err := parseValue(rec[i])
			if err != nil {
				return nil, fmt.Errorf("line %d %s: %w", line, f, err)
			}
			if ok {
				fields[f] = append(fields[f], Observation{Date: d, Value: v})
			}
		}
	}
	return Align(fields, opts)
}

// LoadFieldCSV reads a two-column date,value export.
func LoadFieldCSV(r io.Reader, opts Options) ([]Observation, error) {
	cr, err := newReader(r, opts)
	if err != nil {
		return nil, err
	}
	var out []Observation
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) < 2 {
			continue
		}
		d, err := parseDate(rec[0])
		if err != nil {
			if line == 1 {
				continue // header
			}
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		v, ok, err := parseValue(rec[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if ok {
			out = append(out, Observation{Date: d, Value: v})
		}
	}
	return out, nil
}

// LoadFieldDir reads one export per field from dir and aligns them. Only the
// close series is required.
func LoadFieldDir(dir string, opts Options) (dcl.Series, error) {
	fields := Fields{}
	for _, f := range AllFields {
		path, ok := findFieldFile(dir, f)
		if !ok {
			continue
		}
		obs, err := loadFieldFile(path, opts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		fields[f] = obs
	}
	return Align(fields, opts)
}

func loadFieldFile(path string, opts Options) ([]Observation, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return LoadFieldCSV(fh, opts)
}

func findFieldFile(dir string, f Field) (string, bool) {
	for _, name := range fieldFiles[f] {
		p := filepath.Join(dir, name)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p, true
		}
	}
	return "", false
}

func newReader(r io.Reader, opts Options) (*csv.Reader, error) {
	dec, err := decoder(opts.Encoding)
	if err != nil {
		return nil, err
	}
	cr := csv.NewReader(transform.NewReader(r, dec))
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr, nil
}

// decoder returns a transformer to UTF-8. The default honours a UTF-8 or
// UTF-16 byte order mark, which spreadsheet exports often carry.
func decoder(encoding string) (transform.Transformer, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "utf-8", "utf8":
		return unicode.BOMOverride(unicode.UTF8.NewDecoder()), nil
	case "utf-16", "utf-16le", "utf16":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder(), nil
	case "utf-16be":
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder(), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder(), nil
	case "latin1", "iso-8859-1":
		return charmap.ISO8859_1.NewDecoder(), nil
	}
	return nil, fmt.Errorf("%w: unsupported encoding %q", dcl.ErrInvalidConfiguration, encoding)
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer(" ", "_", "-", "_", ".", "_", "/", "_").Replace(h)
	return strings.Trim(h, "_")
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// parseValue reports ok=false for empty or NaN cells.
func parseValue(s string) (float64, bool, error) {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer(",", "", "_", "", " ", "").Replace(s)
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "null") {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid number %q", s)
	}
	if math.IsNaN(v) {
		return 0, false, nil
	}
	return v, true, nil
}
