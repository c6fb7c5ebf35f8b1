// Package terminalui prints run summaries as a boxed terminal table.
package terminalui

import (
	"fmt"
	"io"
	"strings"

	"dclbond/dcl"
)

const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorGray  = "\033[37m"
)

// Options controls Render.
type Options struct {
	// Color wraps event counts and failures in ANSI colors.
	Color bool
	// Title replaces the default header line.
	Title string
}

const innerWidth = 100

// Render writes one line per run: frequency, date range, rows, final state
// and rebalancing activity. Failed runs show their first error.
func Render(w io.Writer, results []dcl.Result, opt Options) error {
	title := opt.Title
	if title == "" {
		title = fmt.Sprintf("DCL runs (%d)", len(results))
	}

	var b strings.Builder
	border := func(l, r string) {
		b.WriteString(l + strings.Repeat("═", innerWidth) + r + "\n")
	}
	rule := func() {
		b.WriteString("╟" + strings.Repeat("─", innerWidth) + "╢\n")
	}
	line := func(s string) {
		b.WriteString("║ " + pad(s, innerWidth-2) + " ║\n")
	}

	border("╔", "╗")
	line(title)
	border("╠", "╣")
	line(fmt.Sprintf("%-14s %-10s %-23s %6s %10s %10s %5s %5s %6s",
		"RUN", "FREQ", "PERIOD", "ROWS", "NOMINAL", "SHARES", "TOPUP", "ISSUE", "MATURE"))
	rule()

	for _, r := range results {
		name := truncate(r.Name, 14)
		if len(r.Errors) > 0 {
			msg := truncate("error: "+r.Errors[0], innerWidth-2-15)
			line(fmt.Sprintf("%-14s %s", name, paint(opt.Color, colorRed, msg)))
			continue
		}
		s := r.Summary
		period := "-"
		if s.FirstDate != "" {
			period = s.FirstDate + " ~ " + s.LastDate
		}
		mature := "no"
		if s.HaltedAtMaturity {
			mature = "yes"
		}
		line(fmt.Sprintf("%-14s %-10s %-23s %6d %10.2f %10.2f %s %s %6s",
			name, r.Params.Frequency.String(), period, s.Rows, s.FinalNominal, s.FinalShares,
			paint(opt.Color, countColor(s.TopUps), fmt.Sprintf("%5d", s.TopUps)),
			paint(opt.Color, countColor(s.Issuances), fmt.Sprintf("%5d", s.Issuances)),
			mature))
	}
	border("╚", "╝")

	_, err := io.WriteString(w, b.String())
	return err
}

func countColor(n int) string {
	if n > 0 {
		return colorGreen
	}
	return colorGray
}

func paint(on bool, color, s string) string {
	if !on {
		return s
	}
	return color + s + colorReset
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen])
	}
	return s
}

// pad right-fills s to width visible runes, ignoring ANSI sequences.
func pad(s string, width int) string {
	n := visibleLen(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}

func visibleLen(s string) int {
	n := 0
	inEsc := false
	for _, r := range s {
		switch {
		case inEsc:
			if r == 'm' {
				inEsc = false
			}
		case r == '\033':
			inEsc = true
		default:
			n++
		}
	}
	return n
}
