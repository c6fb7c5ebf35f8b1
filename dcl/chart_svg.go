package dcl

import (
	"bytes"
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"
)

type ChartLine struct {
	Value float64
	Label string
	Color string
	Dash  bool
}

type SVGChartOptions struct {
	Width  int
	Height int
}

func (o SVGChartOptions) withDefaults() SVGChartOptions {
	if o.Width <= 0 {
		o.Width = 980
	}
	if o.Height <= 0 {
		o.Height = 520
	}
	return o
}

const chartFont = `font-family="ui-monospace, Menlo, Monaco, Consolas, monospace"`

// RenderLeverageSVG draws the leverage ratio of a run with its floor and
// ceiling, period boundaries (except daily) and rebalancing markers.
func RenderLeverageSVG(res Result, opt SVGChartOptions) ([]byte, error) {
	opt = opt.withDefaults()
	rows := res.Rows
	if len(rows) < 2 {
		return nil, fmt.Errorf("not enough rows: %d", len(rows))
	}

	lines := []ChartLine{
		{Value: res.Params.LeverageFloor, Label: "L_min", Color: "#ef4444", Dash: true},
		{Value: res.Params.LeverageCeiling, Label: "L_c", Color: "#22c55e", Dash: true},
	}

	minV := math.Inf(1)
	maxV := math.Inf(-1)
	for _, r := range rows {
		minV = math.Min(minV, r.LeverageRatio)
		maxV = math.Max(maxV, r.LeverageRatio)
	}
	for _, ln := range lines {
		minV = math.Min(minV, ln.Value)
		maxV = math.Max(maxV, ln.Value)
	}
	if math.IsInf(minV, 0) || math.IsInf(maxV, 0) || math.IsNaN(minV) || math.IsNaN(maxV) || maxV <= minV {
		return nil, fmt.Errorf("invalid leverage range")
	}
	pad := (maxV - minV) * 0.05
	minV -= pad
	maxV += pad

	w := float64(opt.Width)
	h := float64(opt.Height)
	mLeft := 70.0
	mRight := 20.0
	mTop := 24.0
	mBottom := 40.0
	plotW := w - mLeft - mRight
	plotH := h - mTop - mBottom
	if plotW <= 10 || plotH <= 10 {
		return nil, fmt.Errorf("invalid chart size")
	}

	valueToY := func(v float64) float64 {
		r := (v - minV) / (maxV - minV)
		r = math.Max(0, math.Min(1, r))
		return mTop + (1.0-r)*plotH
	}
	step := plotW / float64(len(rows))
	xAt := func(i int) float64 {
		return mLeft + (float64(i)+0.5)*step
	}

	bg := "#0b1220"
	grid := "rgba(255,255,255,0.08)"
	guide := "rgba(148,163,184,0.35)"
	series := "#38bdf8"
	txt := "rgba(255,255,255,0.85)"

	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	buf.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" width="` + strconv.Itoa(opt.Width) + `" height="` + strconv.Itoa(opt.Height) + `" viewBox="0 0 ` + strconv.Itoa(opt.Width) + ` ` + strconv.Itoa(opt.Height) + `">` + "\n")
	buf.WriteString(`<rect x="0" y="0" width="100%" height="100%" fill="` + bg + `"/>` + "\n")

	firstD := rows[0].Date
	lastD := rows[len(rows)-1].Date
	title := strings.TrimSpace(res.Name)
	if title == "" {
		title = "DCL"
	}
	buf.WriteString(`<text x="` + fmtFloat(mLeft) + `" y="16" fill="` + txt + `" font-size="14" ` + chartFont + `>` +
		html.EscapeString(title) + `  ` + html.EscapeString(res.Params.Frequency.String()) + `  ` + html.EscapeString(firstD) + ` ~ ` + html.EscapeString(lastD) + `</text>` + "\n")

	for k := 0; k <= 5; k++ {
		y := mTop + (float64(k)/5.0)*plotH
		buf.WriteString(`<line x1="` + fmtFloat(mLeft) + `" y1="` + fmtFloat(y) + `" x2="` + fmtFloat(mLeft+plotW) + `" y2="` + fmtFloat(y) + `" stroke="` + grid + `" stroke-width="1"/>` + "\n")
		v := maxV - (float64(k)/5.0)*(maxV-minV)
		buf.WriteString(`<text x="6" y="` + fmtFloat(y+4) + `" fill="` + txt + `" font-size="12" ` + chartFont + `>` +
			html.EscapeString(fmtRatio(v)) + `</text>` + "\n")
	}

	if res.Params.Frequency != FrequencyDaily && res.Params.Frequency != FrequencyNone {
		for i := 1; i < len(rows); i++ {
			if rows[i].PeriodIndex == rows[i-1].PeriodIndex {
				continue
			}
			x := xAt(i)
			buf.WriteString(`<line x1="` + fmtFloat(x) + `" y1="` + fmtFloat(mTop) + `" x2="` + fmtFloat(x) + `" y2="` + fmtFloat(mTop+plotH) + `" stroke="` + guide + `" stroke-width="1" stroke-dasharray="4 4"/>` + "\n")
		}
	}

	var pts strings.Builder
	for i, r := range rows {
		if i > 0 {
			pts.WriteByte(' ')
		}
		pts.WriteString(fmtFloat(xAt(i)) + "," + fmtFloat(valueToY(r.LeverageRatio)))
	}
	buf.WriteString(`<polyline fill="none" stroke="` + series + `" stroke-width="1.5" points="` + pts.String() + `"/>` + "\n")

	for _, ln := range lines {
		y := valueToY(ln.Value)
		style := ""
		if ln.Dash {
			style = ` stroke-dasharray="6 6"`
		}
		buf.WriteString(`<line x1="` + fmtFloat(mLeft) + `" y1="` + fmtFloat(y) + `" x2="` + fmtFloat(mLeft+plotW) + `" y2="` + fmtFloat(y) + `" stroke="` + ln.Color + `" stroke-width="1.2"` + style + `/>` + "\n")
		buf.WriteString(`<text x="` + fmtFloat(mLeft+6) + `" y="` + fmtFloat(y-4) + `" fill="` + ln.Color + `" font-size="12" ` + chartFont + `>` +
			html.EscapeString(ln.Label) + ` ` + html.EscapeString(fmtRatio(ln.Value)) + `</text>` + "\n")
	}

	for i, r := range rows {
		var col, label string
		switch {
		case r.TopUpAmount > 0:
			col, label = "#facc15", "top-up"
		case r.NewSharesIssued > 0:
			col, label = "#f472b6", "issue"
		default:
			continue
		}
		x, y := xAt(i), valueToY(r.LeverageRatio)
		buf.WriteString(`<circle cx="` + fmtFloat(x) + `" cy="` + fmtFloat(y) + `" r="3.5" fill="` + col + `"><title>` +
			html.EscapeString(r.Date+" "+label) + `</title></circle>` + "\n")
	}

	buf.WriteString(`<text x="` + fmtFloat(mLeft) + `" y="` + fmtFloat(mTop+plotH+mBottom-12) + `" fill="` + txt + `" font-size="12" ` + chartFont + `>` +
		html.EscapeString(firstD) + `</text>` + "\n")
	buf.WriteString(`<text x="` + fmtFloat(mLeft+plotW-70) + `" y="` + fmtFloat(mTop+plotH+mBottom-12) + `" fill="` + txt + `" font-size="12" ` + chartFont + `>` +
		html.EscapeString(lastD) + `</text>` + "\n")

	buf.WriteString(`</svg>` + "\n")
	return buf.Bytes(), nil
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', 2, 64)
}

func fmtRatio(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
