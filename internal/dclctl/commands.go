package dclctl

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dclbond/dcl"
	"dclbond/internal/terminalui"
)

func simulateCmd() *cobra.Command {
	var (
		f   runFlags
		run string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay one bond configuration against market data",
		Long: `Replay one bond configuration against the market data named in the run
configuration. With several runs configured, --run picks one by name;
otherwise the first is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, series, err := f.load()
			if err != nil {
				return err
			}
			bond, err := pickBond(cfg.Bonds, run)
			if err != nil {
				return err
			}
			results, err := execute(cmd.Context(), cfg, series, []dcl.BondSpec{bond}, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if len(results[0].Errors) > 0 {
				return fmt.Errorf("%s: %s", results[0].Name, results[0].Errors[0])
			}
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&run, "run", "", "name of the configured run to simulate")
	return cmd
}

func sweepCmd() *cobra.Command {
	var (
		f     runFlags
		color bool
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run every configured variant concurrently",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, series, err := f.load()
			if err != nil {
				return err
			}
			results, err := execute(cmd.Context(), cfg, series, cfg.Bonds, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if cfg.Output.JSON != "-" {
				if err := terminalui.Render(cmd.OutOrStdout(), results, terminalui.Options{Color: color}); err != nil {
					return err
				}
			}
			return failures(results)
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&color, "color", false, "colorize the summary table")
	return cmd
}

func dilutionCmd() *cobra.Command {
	var (
		f           runFlags
		frequencies []string
	)
	cmd := &cobra.Command{
		Use:   "dilution",
		Short: "Print the value of shares issued per run",
		Long: `Run the configured variants (or the base bond once per --frequency) and print
the total value of newly issued shares, priced at the close of each
issuance date.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, series, err := f.load()
			if err != nil {
				return err
			}
			bonds := cfg.Bonds
			if len(frequencies) > 0 {
				bonds, err = perFrequency(cfg.Bonds[0], frequencies)
				if err != nil {
					return err
				}
			}
			if f.out == "" {
				cfg.Output.JSON = ""
			}
			results, err := execute(cmd.Context(), cfg, series, bonds, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Dilution:")
			return dcl.WriteDilutionReport(cmd.OutOrStdout(), results, cfg.Output.Currency)
		},
	}
	f.register(cmd)
	cmd.Flags().StringSliceVar(&frequencies, "frequency", nil, "run the base bond once per frequency (e.g. annual,semiannual,monthly,daily)")
	return cmd
}

func pickBond(bonds []dcl.BondSpec, name string) (dcl.BondSpec, error) {
	if name == "" {
		return bonds[0], nil
	}
	names := make([]string, 0, len(bonds))
	for _, b := range bonds {
		if b.Name == name {
			return b, nil
		}
		names = append(names, b.Name)
	}
	return dcl.BondSpec{}, fmt.Errorf("no run named %q (have %s)", name, strings.Join(names, ", "))
}

func perFrequency(base dcl.BondSpec, names []string) ([]dcl.BondSpec, error) {
	out := make([]dcl.BondSpec, 0, len(names))
	for _, n := range names {
		freq, err := dcl.ParseFrequency(n)
		if err != nil {
			return nil, err
		}
		b := base
		b.Name = freq.String()
		b.Params.Frequency = freq
		out = append(out, b)
	}
	return out, nil
}

func failures(results []dcl.Result) error {
	var failed []string
	for _, r := range results {
		if len(r.Errors) > 0 {
			failed = append(failed, r.Name)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d runs failed: %s", len(failed), len(results), strings.Join(failed, ", "))
	}
	return nil
}
