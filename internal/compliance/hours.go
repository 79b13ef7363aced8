package compliance

import (
	"fmt"
	"strings"
	"time"

	"github.com/ignite/outreach-dispatch/internal/config"
)

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// BusinessHours is a daily contact window on a set of weekdays, evaluated
// in the lead's local time. EndHour is exclusive.
type BusinessHours struct {
	StartHour int
	EndHour   int
	Days      map[time.Weekday]bool
}

// DefaultBusinessHours is 09:00-17:00 Monday to Friday.
func DefaultBusinessHours() BusinessHours {
	return BusinessHours{
		StartHour: 9,
		EndHour:   17,
		Days: map[time.Weekday]bool{
			time.Monday: true, time.Tuesday: true, time.Wednesday: true,
			time.Thursday: true, time.Friday: true,
		},
	}
}

// NewBusinessHours builds a window from config. Day names are matched on
// their first three letters.
func NewBusinessHours(cfg config.BusinessHoursConfig) (BusinessHours, error) {
	if cfg.StartHour < 0 || cfg.EndHour > 24 || cfg.StartHour >= cfg.EndHour {
		return BusinessHours{}, fmt.Errorf("invalid business hours %d-%d", cfg.StartHour, cfg.EndHour)
	}
	bh := BusinessHours{StartHour: cfg.StartHour, EndHour: cfg.EndHour, Days: make(map[time.Weekday]bool)}
	for _, d := range cfg.Days {
		name := strings.ToLower(strings.TrimSpace(d))
		if len(name) > 3 {
			name = name[:3]
		}
		wd, ok := weekdayNames[name]
		if !ok {
			return BusinessHours{}, fmt.Errorf("unknown business day %q", d)
		}
		bh.Days[wd] = true
	}
	if len(bh.Days) == 0 {
		return BusinessHours{}, fmt.Errorf("business hours need at least one day")
	}
	return bh, nil
}

// Open reports whether local falls inside the window.
func (b BusinessHours) Open(local time.Time) bool {
	if !b.Days[local.Weekday()] {
		return false
	}
	h := local.Hour()
	return h >= b.StartHour && h < b.EndHour
}

// NextOpen returns the start of the next window at or after local, in
// local's location. Before opening on a business day that is the same day;
// otherwise the next business day.
func (b BusinessHours) NextOpen(local time.Time) time.Time {
	loc := local.Location()
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	for i := 0; i < 8; i++ {
		d := day.AddDate(0, 0, i)
		if !b.Days[d.Weekday()] {
			continue
		}
		start := time.Date(d.Year(), d.Month(), d.Day(), b.StartHour, 0, 0, 0, loc)
		if !start.Before(local) {
			return start
		}
	}
	// Only reached when Days is empty.
	return local
}

// resolveLocation returns the first loadable timezone of the candidates.
func resolveLocation(names ...string) (*time.Location, string) {
	for _, n := range names {
		if n == "" {
			continue
		}
		if loc, err := time.LoadLocation(n); err == nil {
			return loc, n
		}
	}
	return time.UTC, "UTC"
}
