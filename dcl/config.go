package dcl

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type yamlBond struct {
	Name            string   `yaml:"name"`
	InitialNominal  *float64 `yaml:"initial_nominal"`
	LeverageFloor   *float64 `yaml:"leverage_floor"`
	LeverageCeiling *float64 `yaml:"leverage_ceiling"`
	ConversionPrice any      `yaml:"conversion_price"`
	CouponRate      *float64 `yaml:"coupon_rate"`
	MaturityYears   *float64 `yaml:"maturity_years"`
	Frequency       string   `yaml:"frequency"`
}

type YAMLConfig struct {
	Data struct {
		File     string `yaml:"file"`
		Dir      string `yaml:"dir"`
		Encoding string `yaml:"encoding"`
		Start    string `yaml:"start"`
		End      string `yaml:"end"`
	} `yaml:"data"`

	Bond yamlBond   `yaml:"bond"`
	Runs []yamlBond `yaml:"runs"`

	Output struct {
		JSON     string `yaml:"json"`
		CSVDir   string `yaml:"csv_dir"`
		ChartDir string `yaml:"chart_dir"`
		Currency string `yaml:"currency"`
	} `yaml:"output"`

	Concurrency int `yaml:"concurrency"`
}

type DataSource struct {
	File     string
	Dir      string
	Encoding string
	Start    time.Time
	End      time.Time
}

// BondSpec is a named parameter set whose conversion price may be tied to
// the first close of the series it runs against.
type BondSpec struct {
	Name         string
	Params       BondParameters
	InitialPrice bool
}

type OutputConfig struct {
	JSON     string
	CSVDir   string
	ChartDir string
	Currency string
}

type RunConfig struct {
	Data        DataSource
	Bonds       []BondSpec
	Output      OutputConfig
	Concurrency int
}

func DefaultBondSpec() BondSpec {
	return BondSpec{
		Name: "DCL",
		Params: BondParameters{
			InitialNominal:  100,
			LeverageFloor:   0.85,
			LeverageCeiling: 0.90,
			CouponRate:      0.05,
			MaturityYears:   10,
			Frequency:       FrequencyAnnual,
		},
		InitialPrice: true,
	}
}

func DefaultRunConfig() RunConfig {
	return RunConfig{
		Bonds:  []BondSpec{DefaultBondSpec()},
		Output: OutputConfig{Currency: "CHF"},
	}
}

func LoadRunConfig(path string) (RunConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return RunConfig{}, fmt.Errorf("read config: %w", err)
	}
	return ParseRunConfig(raw)
}

func ParseRunConfig(raw []byte) (RunConfig, error) {
	var yc YAMLConfig
	if err := yaml.Unmarshal(raw, &yc); err != nil {
		return RunConfig{}, fmt.Errorf("parse yaml: %w", err)
	}

	cfg := DefaultRunConfig()
	cfg.Data.File = strings.TrimSpace(yc.Data.File)
	cfg.Data.Dir = strings.TrimSpace(yc.Data.Dir)
	cfg.Data.Encoding = strings.TrimSpace(yc.Data.Encoding)
	if yc.Data.Start != "" {
		t, err := time.Parse(dateLayout, yc.Data.Start)
		if err != nil {
			return RunConfig{}, fmt.Errorf("invalid data.start: %w", err)
		}
		cfg.Data.Start = t
	}
	if yc.Data.End != "" {
		t, err := time.Parse(dateLayout, yc.Data.End)
		if err != nil {
			return RunConfig{}, fmt.Errorf("invalid data.end: %w", err)
		}
		cfg.Data.End = t
	}

	base, err := yc.Bond.apply(DefaultBondSpec())
	if err != nil {
		return RunConfig{}, fmt.Errorf("bond: %w", err)
	}
	if len(yc.Runs) == 0 {
		cfg.Bonds = []BondSpec{base}
	} else {
		cfg.Bonds = make([]BondSpec, 0, len(yc.Runs))
		for i, r := range yc.Runs {
			spec, err := r.apply(base)
			if err != nil {
				return RunConfig{}, fmt.Errorf("runs[%d]: %w", i, err)
			}
			if r.Name == "" {
				spec.Name = fmt.Sprintf("%s #%d", base.Name, i+1)
			}
			cfg.Bonds = append(cfg.Bonds, spec)
		}
	}

	if yc.Output.JSON != "" {
		cfg.Output.JSON = yc.Output.JSON
	}
	cfg.Output.CSVDir = yc.Output.CSVDir
	cfg.Output.ChartDir = yc.Output.ChartDir
	if yc.Output.Currency != "" {
		cfg.Output.Currency = yc.Output.Currency
	}
	if yc.Concurrency > 0 {
		cfg.Concurrency = yc.Concurrency
	}
	return cfg, nil
}

func (b yamlBond) apply(spec BondSpec) (BondSpec, error) {
	if b.Name != "" {
		spec.Name = b.Name
	}
	if b.InitialNominal != nil {
		spec.Params.InitialNominal = *b.InitialNominal
	}
	if b.LeverageFloor != nil {
		spec.Params.LeverageFloor = *b.LeverageFloor
	}
	if b.LeverageCeiling != nil {
		spec.Params.LeverageCeiling = *b.LeverageCeiling
	}
	if b.CouponRate != nil {
		spec.Params.CouponRate = *b.CouponRate
	}
	if b.MaturityYears != nil {
		spec.Params.MaturityYears = *b.MaturityYears
	}
	if b.Frequency != "" {
		f, err := ParseFrequency(b.Frequency)
		if err != nil {
			return BondSpec{}, err
		}
		spec.Params.Frequency = f
	}

	switch v := b.ConversionPrice.(type) {
	case nil:
	case int:
		spec.Params.ConversionPrice = float64(v)
		spec.InitialPrice = false
	case float64:
		spec.Params.ConversionPrice = v
		spec.InitialPrice = false
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		if s == "initial" || s == "initial share price" {
			spec.InitialPrice = true
			break
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return BondSpec{}, fmt.Errorf("%w: conversion_price %q", ErrInvalidConfiguration, v)
		}
		spec.Params.ConversionPrice = f
		spec.InitialPrice = false
	default:
		return BondSpec{}, fmt.Errorf("%w: conversion_price %v", ErrInvalidConfiguration, v)
	}
	return spec, nil
}

// Resolve fixes the conversion price against series when it follows the
// initial share price.
func (s BondSpec) Resolve(series Series) (RunSpec, error) {
	p := s.Params
	if s.InitialPrice {
		if len(series) == 0 || !series[0].Complete() {
			return RunSpec{}, fmt.Errorf("%w: no initial close for conversion price", ErrMissingMarketData)
		}
		p.ConversionPrice = series[0].Close
	}
	return RunSpec{Name: s.Name, Params: p}, nil
}

func (c RunConfig) Specs(series Series) ([]RunSpec, error) {
	out := make([]RunSpec, 0, len(c.Bonds))
	for _, b := range c.Bonds {
		spec, err := b.Resolve(series)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name, err)
		}
		out = append(out, spec)
	}
	return out, nil
}
