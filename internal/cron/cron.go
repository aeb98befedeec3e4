// Package cron parses 5-field cron expressions into a structured
// predicate that can be matched against a wall-clock minute.
//
// Field order: minute hour day-of-month month day-of-week. Each field
// accepts single values, ranges (1-5), lists (1,3,5), steps (*/15,
// 1-30/5) and the wildcard. Day-of-week uses 0=Sunday, with 7 accepted
// as a Sunday alias. All matching
// is done in UTC.
package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed cron expression. Parse once at task creation;
// Matches and Next never re-parse.
type Schedule struct {
	minute field
	hour   field
	dom    field
	month  field
	dow    field
}

// field is a set of allowed values for one cron position plus a flag
// recording whether the original term was the bare wildcard. The flag
// matters only for the day-of-month/day-of-week union rule.
type field struct {
	set  uint64
	wild bool
}

func (f field) has(v int) bool { return f.set&(1<<uint(v)) != 0 }

// Parse parses expr and returns a Schedule, or an error naming the
// first malformed field.
func Parse(expr string) (Schedule, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return Schedule{}, fmt.Errorf("cron %q: want 5 fields, got %d", expr, len(parts))
	}

	var s Schedule
	var err error
	if s.minute, err = parseField(parts[0], 0, 59); err != nil {
		return Schedule{}, fmt.Errorf("cron %q: minute: %w", expr, err)
	}
	if s.hour, err = parseField(parts[1], 0, 23); err != nil {
		return Schedule{}, fmt.Errorf("cron %q: hour: %w", expr, err)
	}
	if s.dom, err = parseField(parts[2], 1, 31); err != nil {
		return Schedule{}, fmt.Errorf("cron %q: day-of-month: %w", expr, err)
	}
	if s.month, err = parseField(parts[3], 1, 12); err != nil {
		return Schedule{}, fmt.Errorf("cron %q: month: %w", expr, err)
	}
	if s.dow, err = parseField(parts[4], 0, 7); err != nil {
		return Schedule{}, fmt.Errorf("cron %q: day-of-week: %w", expr, err)
	}
	// Both 0 and 7 mean Sunday; matching uses 0.
	if s.dow.has(7) {
		s.dow.set = (s.dow.set | 1) &^ (1 << 7)
	}
	return s, nil
}

// Matches reports whether the minute containing t satisfies the
// schedule. Seconds and finer are ignored.
func (s Schedule) Matches(t time.Time) bool {
	t = t.UTC()
	if !s.minute.has(t.Minute()) || !s.hour.has(t.Hour()) || !s.month.has(int(t.Month())) {
		return false
	}
	return s.dayMatches(t)
}

// dayMatches applies the standard cron day rule: when both the
// day-of-month and day-of-week fields are restricted, a day matches
// if EITHER does; otherwise the restricted one (or neither) decides.
func (s Schedule) dayMatches(t time.Time) bool {
	domOK := s.dom.has(t.Day())
	dowOK := s.dow.has(int(t.Weekday()))
	if !s.dom.wild && !s.dow.wild {
		return domOK || dowOK
	}
	return domOK && dowOK
}

// Next returns the first matching minute strictly after t, or an
// error if none exists within five years (an impossible schedule such
// as "0 0 31 2 *").
func (s Schedule) Next(t time.Time) (time.Time, error) {
	t = t.UTC().Truncate(time.Minute).Add(time.Minute)
	horizon := t.AddDate(5, 0, 0)

	for t.Before(horizon) {
		if !s.month.has(int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
			continue
		}
		if !s.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
			continue
		}
		if !s.hour.has(t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, time.UTC)
			continue
		}
		if !s.minute.has(t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("cron: no matching time after %s", t.Format(time.RFC3339))
}

func parseField(raw string, lo, hi int) (field, error) {
	var f field
	for _, term := range strings.Split(raw, ",") {
		if term == "*" {
			f.wild = true
		}
		bits, err := parseTerm(term, lo, hi)
		if err != nil {
			return field{}, err
		}
		f.set |= bits
	}
	if f.set == 0 {
		return field{}, fmt.Errorf("empty field %q", raw)
	}
	return f, nil
}

func parseTerm(term string, lo, hi int) (uint64, error) {
	spec := term
	step := 1
	if base, stepStr, ok := strings.Cut(term, "/"); ok {
		n, err := strconv.Atoi(stepStr)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("bad step in %q", term)
		}
		spec, step = base, n
	}

	start, end := lo, hi
	switch {
	case spec == "*":
		// full range
	case strings.Contains(spec, "-"):
		a, b, _ := strings.Cut(spec, "-")
		var err error
		if start, err = strconv.Atoi(a); err != nil {
			return 0, fmt.Errorf("bad range start in %q", term)
		}
		if end, err = strconv.Atoi(b); err != nil {
			return 0, fmt.Errorf("bad range end in %q", term)
		}
		if start > end {
			return 0, fmt.Errorf("inverted range %q", term)
		}
	default:
		n, err := strconv.Atoi(spec)
		if err != nil {
			return 0, fmt.Errorf("bad value %q", term)
		}
		start, end = n, n
	}

	if start < lo || end > hi {
		return 0, fmt.Errorf("%q out of range %d-%d", term, lo, hi)
	}

	var bits uint64
	for v := start; v <= end; v += step {
		bits |= 1 << uint(v)
	}
	return bits, nil
}
