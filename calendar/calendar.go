// Package calendar provides the day grids used to align market data.
package calendar

import "time"

// Date truncates t to midnight UTC of its calendar day.
func Date(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// IsBusinessDay reports whether t falls Monday to Friday. Exchange holidays
// are not modelled; forward-filled values cover them.
func IsBusinessDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

// Days returns every calendar day from start to end inclusive.
func Days(start, end time.Time) []time.Time {
	start, end = Date(start), Date(end)
	if end.Before(start) {
		return nil
	}
	n := int(end.Sub(start).Hours()/24) + 1
	out := make([]time.Time, 0, n)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// BusinessDays returns the weekdays from start to end inclusive.
func BusinessDays(start, end time.Time) []time.Time {
	var out []time.Time
	for _, d := range Days(start, end) {
		if IsBusinessDay(d) {
			out = append(out, d)
		}
	}
	return out
}

