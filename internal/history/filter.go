// Package history turns decorated attendance rows into the filtered,
// sorted, paginated view the history screen shows.
package history

import (
	"sort"

	"asistencia/internal/schedule"
)

// Mode selects how records are narrowed.
type Mode string

const (
	ModeAll   Mode = "all"
	ModeDay   Mode = "day"
	ModeMonth Mode = "month"
	ModeYear  Mode = "year"
)

// Filter is the view state of the history screen. Day is YYYY-MM-DD,
// Month is YYYY-MM, Year is YYYY; only the field matching Mode is read.
type Filter struct {
	Mode  Mode
	Day   string
	Month string
	Year  string
}

// ParseMode maps a query value onto a known mode, defaulting to all.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeDay, ModeMonth, ModeYear:
		return Mode(s)
	default:
		return ModeAll
	}
}

// Apply narrows and orders records. Date and time are fixed-width
// zero-padded strings, so ascending (date, time) concatenation is a
// stable total order and year/month narrowing is a prefix check.
func Apply(records []schedule.Decorated, f Filter) []schedule.Decorated {
	out := make([]schedule.Decorated, 0, len(records))
	for _, r := range records {
		if matches(r, f) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date+out[i].Time < out[j].Date+out[j].Time
	})
	return out
}

func matches(r schedule.Decorated, f Filter) bool {
	switch f.Mode {
	case ModeDay:
		return r.Date == f.Day
	case ModeMonth:
		return len(r.Date) >= 7 && r.Date[:7] == f.Month
	case ModeYear:
		return len(r.Date) >= 4 && r.Date[:4] == f.Year
	default:
		return true
	}
}
