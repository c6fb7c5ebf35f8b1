package dcl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRunConfigDefaults(t *testing.T) {
	cfg, err := ParseRunConfig([]byte("data:\n  file: prices.csv\n"))
	require.NoError(t, err)

	assert.Equal(t, "prices.csv", cfg.Data.File)
	require.Len(t, cfg.Bonds, 1)
	assert.Equal(t, DefaultBondSpec(), cfg.Bonds[0])
	assert.Equal(t, "CHF", cfg.Output.Currency)
}

func TestParseRunConfigRunsOverrideBase(t *testing.T) {
	raw := `
data:
  dir: exports
  start: 2015-01-01
  end: 2020-12-31
bond:
  name: Base
  initial_nominal: 1000
  coupon_rate: 0.03
  conversion_price: 12.5
runs:
  - frequency: monthly
  - name: daily-initial
    frequency: daily
    conversion_price: initial share price
  - frequency: none
    conversion_price: "7"
output:
  json: out/results.json
  currency: USD
concurrency: 3
`
	cfg, err := ParseRunConfig([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, date(2015, 1, 1), cfg.Data.Start)
	assert.Equal(t, date(2020, 12, 31), cfg.Data.End)
	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, "USD", cfg.Output.Currency)
	require.Len(t, cfg.Bonds, 3)

	m := cfg.Bonds[0]
	assert.Equal(t, "Base #1", m.Name)
	assert.Equal(t, FrequencyMonthly, m.Params.Frequency)
	assert.Equal(t, 1000.0, m.Params.InitialNominal)
	assert.Equal(t, 0.03, m.Params.CouponRate)
	assert.Equal(t, 12.5, m.Params.ConversionPrice)
	assert.False(t, m.InitialPrice)

	d := cfg.Bonds[1]
	assert.Equal(t, "daily-initial", d.Name)
	assert.True(t, d.InitialPrice)

	n := cfg.Bonds[2]
	assert.Equal(t, FrequencyNone, n.Params.Frequency)
	assert.Equal(t, 7.0, n.Params.ConversionPrice)
}

func TestParseRunConfigErrors(t *testing.T) {
	for name, raw := range map[string]string{
		"frequency":        "bond:\n  frequency: weekly\n",
		"conversion price": "bond:\n  conversion_price: cheap\n",
		"date":             "data:\n  start: 01/02/2020\n",
		"yaml":             "bond: [\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRunConfig([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLoadRunConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bond:\n  leverage_floor: 0.8\n"), 0o644))
	cfg, err := LoadRunConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 0.8, cfg.Bonds[0].Params.LeverageFloor)

	_, err = LoadRunConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSpecsResolveInitialPrice(t *testing.T) {
	cfg := DefaultRunConfig()
	fixed := DefaultBondSpec()
	fixed.Name = "fixed"
	fixed.InitialPrice = false
	fixed.Params.ConversionPrice = 3
	cfg.Bonds = append(cfg.Bonds, fixed)

	s := flat(date(2010, 1, 1), 2, nextDay, 17.5, 1, 90)
	specs, err := cfg.Specs(s)
	require.NoError(t, err)
	assert.Equal(t, 17.5, specs[0].Params.ConversionPrice)
	assert.Equal(t, 3.0, specs[1].Params.ConversionPrice)

	_, err = cfg.Specs(nil)
	assert.ErrorIs(t, err, ErrMissingMarketData)
}
