// Package scheduler implements the Scheduler (spec §4.9): a declarative
// YAML schedule file of cron and interval entries, ticked roughly every
// 30 seconds, dispatching to a per-action handler registry.
package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// field is one of a cron expression's five fields: a set of accepted
// values, or "any" if the field was "*".
type field struct {
	any    bool
	values map[int]struct{}
}

func (f field) matches(v int) bool {
	if f.any {
		return true
	}
	_, ok := f.values[v]
	return ok
}

// CronSpec is a parsed five-field cron expression (minute, hour,
// day-of-month, month, day-of-week).
type CronSpec struct {
	minute, hour, dom, month, dow field
	raw                           string
}

// ParseCron parses a five-field cron expression supporting `*`, `a-b`,
// `a,b`, and `*/n`.
func ParseCron(expr string) (CronSpec, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return CronSpec{}, fmt.Errorf("scheduler: cron expression %q must have exactly 5 fields, got %d", expr, len(parts))
	}

	ranges := []struct{ min, max int }{
		{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6},
	}
	fields := make([]field, 5)
	for i, part := range parts {
		f, err := parseField(part, ranges[i].min, ranges[i].max)
		if err != nil {
			return CronSpec{}, fmt.Errorf("scheduler: cron field %d (%q): %w", i, part, err)
		}
		fields[i] = f
	}
	return CronSpec{minute: fields[0], hour: fields[1], dom: fields[2], month: fields[3], dow: fields[4], raw: expr}, nil
}

func parseField(spec string, min, max int) (field, error) {
	if spec == "*" {
		return field{any: true}, nil
	}

	values := make(map[int]struct{})
	for _, clause := range strings.Split(spec, ",") {
		if err := parseClause(clause, min, max, values); err != nil {
			return field{}, err
		}
	}
	return field{values: values}, nil
}

func parseClause(clause string, min, max int, out map[int]struct{}) error {
	step := 1
	base := clause
	if idx := strings.IndexByte(clause, '/'); idx >= 0 {
		base = clause[:idx]
		n, err := strconv.Atoi(clause[idx+1:])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid step %q", clause[idx+1:])
		}
		step = n
	}

	lo, hi := min, max
	if base != "*" {
		if dash := strings.IndexByte(base, '-'); dash >= 0 {
			a, err1 := strconv.Atoi(base[:dash])
			b, err2 := strconv.Atoi(base[dash+1:])
			if err1 != nil || err2 != nil || a > b {
				return fmt.Errorf("invalid range %q", base)
			}
			lo, hi = a, b
		} else {
			v, err := strconv.Atoi(base)
			if err != nil {
				return fmt.Errorf("invalid value %q", base)
			}
			lo, hi = v, v
		}
	}

	if lo < min || hi > max {
		return fmt.Errorf("value out of range [%d,%d]: %q", min, max, clause)
	}
	for v := lo; v <= hi; v += step {
		out[v] = struct{}{}
	}
	return nil
}

// Matches reports whether t satisfies the cron expression.
func (c CronSpec) Matches(t time.Time) bool {
	return c.minute.matches(t.Minute()) &&
		c.hour.matches(t.Hour()) &&
		c.dom.matches(t.Day()) &&
		c.month.matches(int(t.Month())) &&
		c.dow.matches(int(t.Weekday()))
}

// Next returns the first minute-aligned instant strictly after after
// that satisfies the expression, scanning forward up to 4 years (cron's
// day-of-month/day-of-week constraints can otherwise search forever,
// e.g. "0 0 31 2 *").
func (c CronSpec) Next(after time.Time) (time.Time, error) {
	t := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.AddDate(4, 0, 0)
	for t.Before(limit) {
		if c.Matches(t) {
			return t, nil
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("scheduler: no matching time found for cron %q within 4 years", c.raw)
}
