// Package wallclock converts naive local datetime strings, as stored by the
// scheduling subsystem, into UTC instants.
package wallclock

import (
	"fmt"
	"strings"
	"time"
)

var layouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
}

// Parse reads a naive wall-clock string without attaching a zone.
func Parse(local string) (time.Time, error) {
	local = strings.TrimSpace(local)
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, local, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("wallclock: unrecognised datetime %q", local)
}

// ToUTC resolves local in the named IANA zone. A time skipped by a
// spring-forward transition is shifted forward by the gap; a time repeated by
// a fall-back transition resolves to the earlier instant.
func ToUTC(local, tz string) (time.Time, error) {
	naive, err := Parse(local)
	if err != nil {
		return time.Time{}, err
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, fmt.Errorf("wallclock: load zone %q: %w", tz, err)
	}
	return Resolve(naive, loc), nil
}

// Resolve interprets the fields of naive (read as UTC) in loc.
func Resolve(naive time.Time, loc *time.Location) time.Time {
	naive = naive.UTC()
	before := offsetAt(naive.Add(-24*time.Hour), loc)
	after := offsetAt(naive.Add(24*time.Hour), loc)

	var best time.Time
	for _, off := range []int{before, after} {
		candidate := naive.Add(-time.Duration(off) * time.Second)
		if offsetAt(candidate, loc) != off {
			continue
		}
		if best.IsZero() || candidate.Before(best) {
			best = candidate
		}
	}
	if !best.IsZero() {
		return best
	}

	// gap: keep the pre-transition offset, which lands past the jump
	return naive.Add(-time.Duration(before) * time.Second)
}

func offsetAt(t time.Time, loc *time.Location) int {
	_, off := t.In(loc).Zone()
	return off
}

// Format renders t in loc using the naive storage layout.
func Format(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(layouts[0])
}
