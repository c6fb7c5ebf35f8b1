package dcl

import (
	"fmt"
	"time"
)

// Period locates a date on the rebalancing grid. Index identifies the
// calendar period; Elapsed counts periods since the first date.
type Period struct {
	Index   int `json:"period_index"`
	Elapsed int `json:"elapsed_periods"`
}

// PeriodIndex maps an ascending, duplicate-free date sequence onto periods
// for freq. The input slice is not modified.
func PeriodIndex(dates []time.Time, freq Frequency) ([]Period, error) {
	if !freq.Valid() {
		return nil, fmt.Errorf("%w: unknown frequency %d", ErrInvalidConfiguration, int(freq))
	}
	for i := 1; i < len(dates); i++ {
		if !civil(dates[i]).After(civil(dates[i-1])) {
			return nil, fmt.Errorf("%w: %s follows %s", ErrUnorderedDates,
				dates[i].Format(dateLayout), dates[i-1].Format(dateLayout))
		}
	}

	out := make([]Period, len(dates))
	if len(dates) == 0 {
		return out, nil
	}

	base := civil(dates[0])
	for i, d := range dates {
		k := elapsedPeriods(base, civil(d), freq)
		out[i] = Period{Index: k, Elapsed: k}
	}
	return out, nil
}

func elapsedPeriods(base, d time.Time, freq Frequency) int {
	switch freq {
	case FrequencyDaily:
		return int(d.Sub(base).Hours() / 24)
	case FrequencyMonthly:
		return (d.Year()-base.Year())*12 + int(d.Month()) - int(base.Month())
	case FrequencySemiannual:
		return (d.Year()-base.Year())*2 + halfOfYear(d.Month()) - halfOfYear(base.Month())
	case FrequencyAnnual:
		return d.Year() - base.Year()
	default:
		return 0
	}
}

func halfOfYear(m time.Month) int {
	return (int(m) - 1) / 6
}

// civil drops the clock and zone so day counts are not skewed by DST.
func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
