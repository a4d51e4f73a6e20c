// Package calendar decides which days count toward working-day deadlines.
package calendar

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Calendar reports whether a day counts as a business day.
type Calendar interface {
	IsBusinessDay(t time.Time) bool
}

// Weekends treats Saturday and Sunday as the only non-business days.
type Weekends struct {
	Location *time.Location
}

// IsBusinessDay implements Calendar.
func (w Weekends) IsBusinessDay(t time.Time) bool {
	if w.Location != nil {
		t = t.In(w.Location)
	}
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

// Holiday is one entry of a holiday file. Date is either YYYY-MM-DD for a
// one-off holiday or MM-DD for one that repeats every year.
type Holiday struct {
	Date string `yaml:"date"`
	Name string `yaml:"name"`
}

type holidayFile struct {
	Holidays []Holiday `yaml:"holidays"`
}

// Holidays is a weekend calendar extended with public holidays.
type Holidays struct {
	loc       *time.Location
	fixed     map[string]string
	recurring map[string]string
}

// NewHolidays builds a calendar from holiday entries. loc decides which local
// day a timestamp falls on; nil means UTC.
func NewHolidays(loc *time.Location, entries []Holiday) (*Holidays, error) {
	if loc == nil {
		loc = time.UTC
	}
	h := &Holidays{
		loc:       loc,
		fixed:     make(map[string]string),
		recurring: make(map[string]string),
	}
	for i, e := range entries {
		switch len(e.Date) {
		case len("2006-01-02"):
			if _, err := time.Parse("2006-01-02", e.Date); err != nil {
				return nil, fmt.Errorf("holidays[%d]: invalid date %q: %w", i, e.Date, err)
			}
			h.fixed[e.Date] = e.Name
		case len("01-02"):
			if _, err := time.Parse("01-02", e.Date); err != nil {
				return nil, fmt.Errorf("holidays[%d]: invalid date %q: %w", i, e.Date, err)
			}
			h.recurring[e.Date] = e.Name
		default:
			return nil, fmt.Errorf("holidays[%d]: invalid date %q", i, e.Date)
		}
	}
	return h, nil
}

// LoadHolidays reads a YAML holiday file.
func LoadHolidays(path string, loc *time.Location) (*Holidays, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var f holidayFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	h, err := NewHolidays(loc, f.Holidays)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return h, nil
}

// Open returns a holiday calendar read from path, or plain weekends when path
// is empty.
func Open(path string, loc *time.Location) (Calendar, error) {
	if path == "" {
		return Weekends{Location: loc}, nil
	}
	return LoadHolidays(path, loc)
}

// IsBusinessDay implements Calendar.
func (h *Holidays) IsBusinessDay(t time.Time) bool {
	t = t.In(h.loc)
	if !(Weekends{}).IsBusinessDay(t) {
		return false
	}
	_, ok := h.HolidayName(t)
	return !ok
}

// HolidayName returns the holiday falling on t's local day, if any.
func (h *Holidays) HolidayName(t time.Time) (string, bool) {
	t = t.In(h.loc)
	if name, ok := h.fixed[t.Format("2006-01-02")]; ok {
		return name, true
	}
	name, ok := h.recurring[t.Format("01-02")]
	return name, ok
}

// InYear lists the holidays of year in date order, recurring entries
// resolved to that year.
func (h *Holidays) InYear(year int) []Holiday {
	var out []Holiday
	for t := time.Date(year, time.January, 1, 12, 0, 0, 0, h.loc); t.Year() == year; t = t.AddDate(0, 0, 1) {
		if name, ok := h.HolidayName(t); ok {
			out = append(out, Holiday{Date: t.Format("2006-01-02"), Name: name})
		}
	}
	return out
}

// Len returns the number of configured holidays.
func (h *Holidays) Len() int {
	return len(h.fixed) + len(h.recurring)
}

// maxClosedRun bounds how many consecutive non-business days AddBusinessDays
// walks before giving up on a calendar.
const maxClosedRun = 366

// ErrNoBusinessDays is returned when a calendar has no business day within a
// year of the search position.
var ErrNoBusinessDays = errors.New("calendar: no business day within a year")

// AddBusinessDays returns the instant n business days after start, keeping
// start's time of day. Each calendar day after start is counted only if cal
// treats it as a business day. n <= 0 returns start.
func AddBusinessDays(cal Calendar, start time.Time, n int) (time.Time, error) {
	t := start
	closed := 0
	for added := 0; added < n; {
		t = t.AddDate(0, 0, 1)
		if cal.IsBusinessDay(t) {
			added++
			closed = 0
			continue
		}
		if closed++; closed >= maxClosedRun {
			return time.Time{}, fmt.Errorf("%w after %s", ErrNoBusinessDays, t.Format("2006-01-02"))
		}
	}
	return t, nil
}

// BusinessDaysBetween counts the business days in (from, to]. It returns 0
// when to is not after from.
func BusinessDaysBetween(cal Calendar, from, to time.Time) int {
	n := 0
	for t := from.AddDate(0, 0, 1); !t.After(to); t = t.AddDate(0, 0, 1) {
		if cal.IsBusinessDay(t) {
			n++
		}
	}
	return n
}

// CalendarDays counts whole days from start to end, rounding a partial day up.
func CalendarDays(start, end time.Time) int {
	d := end.Sub(start)
	if d <= 0 {
		return 0
	}
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		days++
	}
	return days
}
