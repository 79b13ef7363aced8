package pool

import (
	"sort"
	"time"
)

// WarmupStep maps a warming day to the allowed volume from that day on.
type WarmupStep struct {
	Day    int
	Volume int
}

// Schedule is a day-indexed ramp. Steps may be sparse: a day uses the
// volume of the latest step at or before it.
type Schedule []WarmupStep

// NewSchedule copies and sorts steps by day.
func NewSchedule(steps []WarmupStep) Schedule {
	s := append(Schedule(nil), steps...)
	sort.Slice(s, func(i, j int) bool { return s[i].Day < s[j].Day })
	return s
}

// warmupDay returns the 1-based day of warming at now.
func warmupDay(started, now time.Time) int {
	if now.Before(started) {
		return 1
	}
	return int(now.Sub(started)/(24*time.Hour)) + 1
}

// volumeForDay returns the ramp volume for day and whether the schedule
// has run out (the resource is past the last step).
func (s Schedule) volumeForDay(day int) (int, bool) {
	if len(s) == 0 {
		return 0, true
	}
	vol := s[0].Volume
	for _, step := range s {
		if step.Day > day {
			break
		}
		vol = step.Volume
	}
	return vol, day > s[len(s)-1].Day
}

// effectiveCapacity caps capacity by the ramp. It reports whether the
// resource has finished warming.
func (s Schedule) effectiveCapacity(capacity int, started, now time.Time) (int, bool) {
	vol, done := s.volumeForDay(warmupDay(started, now))
	if done || vol >= capacity {
		return capacity, true
	}
	return vol, false
}
