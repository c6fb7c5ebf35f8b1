package marketdata

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dclbond/dcl"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAlignForwardFillsOntoBusinessDays(t *testing.T) {
	fields := Fields{
		// Fri, Mon, Wed (Tue missing)
		FieldClose: {
			{Date: day(2021, 1, 1), Value: 10},
			{Date: day(2021, 1, 4), Value: 11},
			{Date: day(2021, 1, 6), Value: 12},
		},
		// reported before the first close, carried in
		FieldTotalDebt:         {{Date: day(2020, 12, 31), Value: 500}},
		FieldSharesOutstanding: {{Date: day(2020, 6, 30), Value: 1000}},
		FieldMarketCap:         {{Date: day(2021, 1, 1), Value: 10000}},
		FieldTotalAssets:       {{Date: day(2020, 12, 31), Value: 900}},
	}

	series, err := Align(fields, Options{})
	require.NoError(t, err)
	require.Len(t, series, 4) // Fri, Mon, Tue, Wed

	assert.Equal(t, day(2021, 1, 5), series[2].Date)
	assert.Equal(t, 11.0, series[2].Close, "Tuesday carries Monday's close")
	for _, s := range series {
		assert.Equal(t, 500.0, s.TotalDebt)
		assert.Equal(t, 1000.0, s.SharesOutstanding)
		assert.True(t, s.Complete())
	}
}

func TestAlignKeepsFirstDuplicateAndLeavesGapsNaN(t *testing.T) {
	fields := Fields{
		FieldClose: {
			{Date: day(2021, 1, 4), Value: 10},
			{Date: day(2021, 1, 4), Value: 99},
			{Date: day(2021, 1, 5), Value: 11},
		},
		FieldTotalDebt: {{Date: day(2021, 1, 5), Value: 5}},
	}
	series, err := Align(fields, Options{})
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, 10.0, series[0].Close)
	assert.True(t, math.IsNaN(series[0].TotalDebt))
	assert.False(t, series[0].Complete())
}

func TestAlignIgnoresReportsOlderThanLookback(t *testing.T) {
	fields := Fields{
		FieldClose:     {{Date: day(2021, 1, 4), Value: 10}},
		FieldTotalDebt: {{Date: day(2019, 1, 4), Value: 5}},
	}
	series, err := Align(fields, Options{})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(series[0].TotalDebt))
}

func TestAlignWithoutPrices(t *testing.T) {
	_, err := Align(Fields{}, Options{})
	assert.ErrorIs(t, err, ErrNoPrices)
	assert.ErrorIs(t, err, dcl.ErrMissingMarketData)
}

func TestAlignWindow(t *testing.T) {
	fields := Fields{FieldClose: {
		{Date: day(2021, 1, 4), Value: 1},
		{Date: day(2021, 1, 8), Value: 2},
	}}
	series, err := Align(fields, Options{Start: day(2021, 1, 5), End: day(2021, 1, 6)})
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, day(2021, 1, 5), series[0].Date)
}

const combined = `Date,Close,Shares Outstanding,Market Cap,Total Assets,Total Debt
2021-01-04,10,"1,000",10000,900,500
2021-01-05,11,,,,
2021-01-06,12,,,,
`

func TestLoadCombinedCSV(t *testing.T) {
	series, err := LoadCombinedCSV(strings.NewReader(combined), Options{})
	require.NoError(t, err)
	require.Len(t, series, 3)
	assert.Equal(t, 1000.0, series[2].SharesOutstanding)
	assert.Equal(t, 12.0, series[2].Close)
	assert.Equal(t, 500.0, series[1].TotalDebt)
}

func TestLoadCombinedCSVWithUTF16BOM(t *testing.T) {
	// little-endian UTF-16 with BOM, as spreadsheet tools export it
	var b []byte
	b = append(b, 0xFF, 0xFE)
	for _, r := range combined {
		b = append(b, byte(r), 0)
	}
	series, err := LoadCombinedCSV(strings.NewReader(string(b)), Options{})
	require.NoError(t, err)
	assert.Len(t, series, 3)
}

func TestLoadCombinedCSVRejectsBadNumbers(t *testing.T) {
	_, err := LoadCombinedCSV(strings.NewReader("date,close\n2021-01-04,abc\n"), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestLoadCombinedCSVUnknownEncoding(t *testing.T) {
	_, err := LoadCombinedCSV(strings.NewReader(combined), Options{Encoding: "ebcdic"})
	assert.ErrorIs(t, err, dcl.ErrInvalidConfiguration)
}

func TestLoadFieldDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("Close.csv", "Date,Close\n2021-01-04,10\n2021-01-05,11\n")
	write("TR.IssueSharesOutstanding.csv", "Date,Issue Default Shares Outstanding\n2020-12-31,1000\n")
	write("MarketCap.csv", "Date,v\n2021-01-04,10000\n")
	write("TotalAssets.csv", "Date,v\n2021-01-04,900\n")
	write("TotalDebt.csv", "Date,v\n2020-09-30,500\n")

	series, err := Load(dcl.DataSource{Dir: dir})
	require.NoError(t, err)
	require.Len(t, series, 2)
	for _, s := range series {
		assert.True(t, s.Complete(), s.Date)
	}
}

func TestLoadRequiresSource(t *testing.T) {
	_, err := Load(dcl.DataSource{})
	assert.ErrorIs(t, err, dcl.ErrInvalidConfiguration)
}
