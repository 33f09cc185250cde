// Package schedule derives per-record lateness from a weekday expected
// arrival table. Decoration is a pure function of the raw record and the
// table; it is recomputed on every fetch and never persisted.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"asistencia/internal/directory"
)

// Novelty labels shown per record.
const (
	NoveltyOnTime        = "on time"
	NoveltyLateSuffix    = " late"
	NoveltyOutOfSchedule = "out of schedule"
)

// Table maps weekdays to an expected arrival time in HH:MM:SS.
type Table struct {
	expected map[time.Weekday]string
}

// Default returns the institution's stock schedule: Wednesday evenings
// and Saturday mornings.
func Default() Table {
	return Table{expected: map[time.Weekday]string{
		time.Wednesday: "17:00:00",
		time.Saturday:  "08:00:00",
	}}
}

// Parse builds a table from a string like "wednesday=17:00:00,sat=08:00:00".
// Weekday keys match case-insensitively on any prefix of at least two
// characters. An empty string yields the default table.
func Parse(raw string) (Table, error) {
	if strings.TrimSpace(raw) == "" {
		return Default(), nil
	}
	t := Table{expected: make(map[time.Weekday]string)}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, val, ok := strings.Cut(part, "=")
		if !ok {
			return Table{}, fmt.Errorf("schedule entry %q: want weekday=HH:MM:SS", part)
		}
		wd, ok := matchWeekday(strings.TrimSpace(key))
		if !ok {
			return Table{}, fmt.Errorf("schedule entry %q: unknown weekday", part)
		}
		val = strings.TrimSpace(val)
		if _, err := time.Parse("15:04:05", val); err != nil {
			return Table{}, fmt.Errorf("schedule entry %q: bad time: %w", part, err)
		}
		t.expected[wd] = val
	}
	return t, nil
}

// ExpectedFor looks up the expected time for a weekday name using a
// case-insensitive prefix match, mirroring how localized weekday labels
// are matched in the history view.
func (t Table) ExpectedFor(weekdayName string) (string, bool) {
	name := strings.ToLower(strings.TrimSpace(weekdayName))
	if name == "" {
		return "", false
	}
	for wd, exp := range t.expected {
		full := strings.ToLower(wd.String())
		if strings.HasPrefix(full, name) || strings.HasPrefix(name, full) {
			return exp, true
		}
	}
	return "", false
}

func matchWeekday(name string) (time.Weekday, bool) {
	name = strings.ToLower(name)
	if len(name) < 2 {
		return 0, false
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.HasPrefix(strings.ToLower(wd.String()), name) {
			return wd, true
		}
	}
	return 0, false
}

// Decorated is a raw attendance row augmented with derived schedule and
// lateness fields.
type Decorated struct {
	directory.Record
	Weekday       string `json:"weekday"`
	Expected      string `json:"expected,omitempty"`
	Novelty       string `json:"novelty"`
	Late          bool   `json:"late"`
	OutOfSchedule bool   `json:"out_of_schedule"`
	LateSeconds   int64  `json:"late_seconds"`
}

// Decorate derives weekday, expected time, and lateness for one record.
// Records on days without a schedule entry, or with unparseable fields,
// are marked out of schedule rather than failing.
func Decorate(rec directory.Record, t Table) Decorated {
	d := Decorated{Record: rec, Novelty: NoveltyOutOfSchedule, OutOfSchedule: true}

	day, err := time.Parse("2006-01-02", rec.Date)
	if err != nil {
		return d
	}
	d.Weekday = day.Weekday().String()

	expected, ok := t.ExpectedFor(d.Weekday)
	if !ok {
		return d
	}

	actualSec, err := secondsOfDay(rec.Time)
	if err != nil {
		return d
	}
	expectedSec, err := secondsOfDay(expected)
	if err != nil {
		return d
	}

	d.Expected = expected
	d.OutOfSchedule = false

	delta := actualSec - expectedSec
	if delta <= 0 {
		d.Novelty = NoveltyOnTime
		d.Late = false
		d.LateSeconds = 0
		return d
	}
	d.Late = true
	d.LateSeconds = delta
	d.Novelty = FormatDelta(delta) + NoveltyLateSuffix
	return d
}

func secondsOfDay(clock string) (int64, error) {
	t, err := time.Parse("15:04:05", strings.TrimSpace(clock))
	if err != nil {
		return 0, err
	}
	return int64(t.Hour()*3600 + t.Minute()*60 + t.Second()), nil
}

// FormatDelta renders whole seconds as HH:MM:SS with zero-padded fields.
// The hour field may exceed 23; there is no day rollover.
func FormatDelta(seconds int64) string {
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}
