// Package dclctl implements the batch subcommands of the dcl binary.
package dclctl

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"dclbond/dcl"
	"dclbond/internal/logger"
	"dclbond/marketdata"
)

// runFlags are shared by every batch subcommand.
type runFlags struct {
	config      string
	dataFile    string
	dataDir     string
	encoding    string
	out         string
	csvDir      string
	chartDir    string
	concurrency int
}

func (f *runFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.config, "config", "c", "dcl-run.yaml", "run configuration (YAML)")
	fl.StringVar(&f.dataFile, "data", "", "combined market data CSV (overrides data.file)")
	fl.StringVar(&f.dataDir, "data-dir", "", "directory of per-field CSV exports (overrides data.dir)")
	fl.StringVar(&f.encoding, "encoding", "", "input charset: utf-8, utf-16, windows-1252, latin1")
	fl.StringVarP(&f.out, "out", "o", "", "results JSON path, - for stdout (overrides output.json)")
	fl.StringVar(&f.csvDir, "csv-dir", "", "write one CSV table per run into this directory")
	fl.StringVar(&f.chartDir, "chart-dir", "", "write one leverage chart (SVG) per run into this directory")
	fl.IntVar(&f.concurrency, "concurrency", 0, "parallel runs, 0 means one per CPU")
}

// load reads the run config with command-line overrides applied, and the
// market data it points to.
func (f *runFlags) load() (dcl.RunConfig, dcl.Series, error) {
	cfg := dcl.DefaultRunConfig()
	if _, err := os.Stat(f.config); err == nil {
		cfg, err = dcl.LoadRunConfig(f.config)
		if err != nil {
			return cfg, nil, err
		}
	} else if f.config != "dcl-run.yaml" {
		return cfg, nil, fmt.Errorf("run config: %w", err)
	}

	if f.dataFile != "" {
		cfg.Data.File, cfg.Data.Dir = f.dataFile, ""
	}
	if f.dataDir != "" {
		cfg.Data.Dir, cfg.Data.File = f.dataDir, ""
	}
	if f.encoding != "" {
		cfg.Data.Encoding = f.encoding
	}
	if f.out != "" {
		cfg.Output.JSON = f.out
	}
	if f.csvDir != "" {
		cfg.Output.CSVDir = f.csvDir
	}
	if f.chartDir != "" {
		cfg.Output.ChartDir = f.chartDir
	}
	if f.concurrency > 0 {
		cfg.Concurrency = f.concurrency
	}

	series, err := marketdata.Load(cfg.Data)
	if err != nil {
		return cfg, nil, fmt.Errorf("load market data: %w", err)
	}
	logger.Get().Infow("market data loaded",
		"rows", len(series),
		"first", series[0].Date.Format("2006-01-02"),
		"last", series[len(series)-1].Date.Format("2006-01-02"),
	)
	return cfg, series, nil
}

// execute runs bonds against series and writes every configured output.
func execute(ctx context.Context, cfg dcl.RunConfig, series dcl.Series, bonds []dcl.BondSpec, stdout io.Writer) ([]dcl.Result, error) {
	cfg.Bonds = bonds
	specs, err := cfg.Specs(series)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	results, err := dcl.Sweep(ctx, series, specs, cfg.Concurrency)
	if err != nil {
		return nil, err
	}
	log := logger.Get()
	for _, r := range results {
		if len(r.Errors) > 0 {
			log.Warnw("run failed", "name", r.Name, "error", r.Errors[0])
			continue
		}
		log.Infow("run done",
			"name", r.Name,
			"frequency", r.Params.Frequency.String(),
			"rows", r.Summary.Rows,
			"top_ups", r.Summary.TopUps,
			"issuances", r.Summary.Issuances,
			"halted", r.Summary.HaltedAtMaturity,
		)
	}
	log.Debugw("sweep finished", "runs", len(results), "elapsed", time.Since(start))

	if err := writeOutputs(cfg.Output, results, stdout); err != nil {
		return results, err
	}
	return results, nil
}

// Commands returns the batch subcommands.
func Commands() []*cobra.Command {
	return []*cobra.Command{simulateCmd(), sweepCmd(), dilutionCmd()}
}
