package dclctl

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"dclbond/dcl"
)

// writeOutputs writes the results JSON (stdout for "-") and the optional
// per-run CSV tables and charts. Files are replaced atomically.
func writeOutputs(out dcl.OutputConfig, results []dcl.Result, stdout io.Writer) error {
	switch p := strings.TrimSpace(out.JSON); p {
	case "":
	case "-":
		if err := dcl.WriteResultsJSON(stdout, results); err != nil {
			return err
		}
	default:
		if err := dcl.WriteFileAtomic(p, func(w io.Writer) error {
			return dcl.WriteResultsJSON(w, results)
		}); err != nil {
			return fmt.Errorf("write %s: %w", p, err)
		}
	}

	for _, r := range results {
		if len(r.Errors) > 0 {
			continue
		}
		if out.CSVDir != "" {
			p := runPath(out.CSVDir, r.Name, ".csv")
			if err := dcl.WriteFileAtomic(p, func(w io.Writer) error {
				return dcl.WriteRowsCSV(w, r.Rows)
			}); err != nil {
				return fmt.Errorf("write %s: %w", p, err)
			}
		}
		if out.ChartDir != "" && len(r.Rows) >= 2 {
			svg, err := dcl.RenderLeverageSVG(r, dcl.SVGChartOptions{})
			if err != nil {
				return fmt.Errorf("chart %s: %w", r.Name, err)
			}
			p := runPath(out.ChartDir, r.Name, ".svg")
			if err := dcl.WriteFileAtomic(p, func(w io.Writer) error {
				_, err := w.Write(svg)
				return err
			}); err != nil {
				return fmt.Errorf("write %s: %w", p, err)
			}
		}
	}
	return nil
}

func runPath(dir, name, ext string) string {
	return filepath.Join(dir, slug(name)+ext)
}

// slug keeps letters, digits, dot, dash and underscore; everything else
// becomes a single underscore.
func slug(name string) string {
	var b strings.Builder
	under := false
	for _, r := range strings.TrimSpace(name) {
		ok := r == '-' || r == '_' || r == '.' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if ok {
			b.WriteRune(r)
			under = false
			continue
		}
		if !under {
			b.WriteByte('_')
			under = true
		}
	}
	s := strings.Trim(b.String(), "_")
	if s == "" {
		return "run"
	}
	return s
}
