// Package cronexpr hand-parses the five-field cron-form grammar used by
// schedules and answers "next fire time" queries. It does not use any
// third-party cron library: off-the-shelf parsers commonly disagree on
// whether day-of-week field value 7 means Sunday, and this system needs
// one fixed, auditable answer.
package cronexpr

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type fieldSpec struct {
	min, max int
}

var fieldSpecs = [5]fieldSpec{
	{0, 59}, // minute
	{0, 23}, // hour
	{1, 31}, // day of month
	{1, 12}, // month
	{0, 7},  // day of week, 0 and 7 both mean Sunday
}

// Expression is a parsed five-field cron-form expression; each field is
// represented as the set of concrete values it matches.
type Expression struct {
	minutes map[int]bool
	hours   map[int]bool
	doms    map[int]bool
	months  map[int]bool
	dows    map[int]bool
	raw     string
}

// Parse validates and parses a five-field cron-form expression:
// "minute hour day-of-month month day-of-week".
func Parse(expr string) (*Expression, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cronexpr: expected 5 fields, got %d", len(fields))
	}

	sets := make([]map[int]bool, 5)
	for i, f := range fields {
		set, err := parseField(f, fieldSpecs[i])
		if err != nil {
			return nil, fmt.Errorf("cronexpr: field %d (%q): %w", i, f, err)
		}
		sets[i] = set
	}

	// normalize day-of-week: 7 means Sunday, same as 0.
	if sets[4][7] {
		sets[4][0] = true
		delete(sets[4], 7)
	}

	return &Expression{
		minutes: sets[0], hours: sets[1], doms: sets[2], months: sets[3], dows: sets[4],
		raw: expr,
	}, nil
}

func parseField(field string, spec fieldSpec) (map[int]bool, error) {
	result := make(map[int]bool)
	for _, part := range strings.Split(field, ",") {
		if err := parsePart(part, spec, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func parsePart(part string, spec fieldSpec, out map[int]bool) error {
	base, step := part, 1
	if idx := strings.Index(part, "/"); idx != -1 {
		base = part[:idx]
		s, err := strconv.Atoi(part[idx+1:])
		if err != nil || s < 1 {
			return fmt.Errorf("invalid step in %q", part)
		}
		step = s
	}

	var lo, hi int
	switch {
	case base == "*":
		lo, hi = spec.min, spec.max
	case strings.Contains(base, "-"):
		bounds := strings.SplitN(base, "-", 2)
		if len(bounds) != 2 {
			return fmt.Errorf("invalid range %q", base)
		}
		a, err1 := strconv.Atoi(bounds[0])
		b, err2 := strconv.Atoi(bounds[1])
		if err1 != nil || err2 != nil {
			return fmt.Errorf("invalid range %q", base)
		}
		if a > b {
			return fmt.Errorf("range start %d greater than end %d", a, b)
		}
		lo, hi = a, b
	default:
		v, err := strconv.Atoi(base)
		if err != nil {
			return fmt.Errorf("invalid value %q", base)
		}
		lo, hi = v, v
	}

	if lo < spec.min || hi > spec.max {
		return fmt.Errorf("value out of range [%d,%d]: %q", spec.min, spec.max, base)
	}

	for v := lo; v <= hi; v += step {
		out[v] = true
	}
	return nil
}

// Matches reports whether t satisfies the expression.
func (e *Expression) Matches(t time.Time) bool {
	dow := int(t.Weekday()) // time.Sunday == 0, matching our normalized set
	return e.minutes[t.Minute()] && e.hours[t.Hour()] &&
		e.doms[t.Day()] && e.months[int(t.Month())] && e.dows[dow]
}

// Next computes the earliest time strictly after after that satisfies the
// expression, scanning minute-by-minute up to four years ahead.
func (e *Expression) Next(after time.Time) (time.Time, bool) {
	t := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.AddDate(4, 0, 0)
	for t.Before(limit) {
		if e.Matches(t) {
			return t, true
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}, false
}

// String returns the original expression text.
func (e *Expression) String() string {
	return e.raw
}
