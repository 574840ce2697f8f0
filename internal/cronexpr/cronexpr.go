// Package cronexpr evaluates the 5-field time expressions carried by
// schedules (minute hour day-of-month month weekday).
//
// The grammar is deliberately small: each field is either "*" or an integer,
// and the weekday field may additionally be a comma-separated integer list
// with 0=Sunday. The engine ticks once per minute, so due-ness is exact-value
// matching against the current wall-clock minute; ranges and step syntax are
// not supported.
//
// Malformed expressions never fire and never panic: IsDue returns false for
// any input it cannot parse. Validate exists so the sync layer can flag bad
// expressions up front; the evaluator re-checks on every call regardless.
package cronexpr

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FieldCount is the required number of whitespace-separated fields.
const FieldCount = 5

// IsDue reports whether expr matches now. Matching is conjunctive: the
// minute, hour, day-of-month and month fields must all match exactly (or be
// "*"), and now's weekday must be a member of the weekday field's list (or
// the field must be "*"). Any malformed field makes the whole expression
// never due.
func IsDue(expr string, now time.Time) bool {
	fields := strings.Fields(expr)
	if len(fields) != FieldCount {
		return false
	}

	return matchField(fields[0], now.Minute()) &&
		matchField(fields[1], now.Hour()) &&
		matchField(fields[2], now.Day()) &&
		matchField(fields[3], int(now.Month())) &&
		matchList(fields[4], int(now.Weekday()))
}

// Validate checks that expr is well-formed: exactly 5 fields, each "*" or an
// integer, with the weekday field allowed to be a comma-separated integer
// list. It does not range-check values; an out-of-range integer simply never
// matches.
func Validate(expr string) error {
	fields := strings.Fields(expr)
	if len(fields) != FieldCount {
		return fmt.Errorf("time expression %q: want %d fields, got %d", expr, FieldCount, len(fields))
	}
	for i, f := range fields[:4] {
		if f == "*" {
			continue
		}
		if _, err := strconv.Atoi(f); err != nil {
			return fmt.Errorf("time expression %q: field %d is not an integer or *", expr, i+1)
		}
	}
	if fields[4] != "*" {
		for _, part := range strings.Split(fields[4], ",") {
			if _, err := strconv.Atoi(part); err != nil {
				return fmt.Errorf("time expression %q: weekday %q is not an integer", expr, part)
			}
		}
	}
	return nil
}

// matchField matches a single-value field: "*" always matches, otherwise the
// field must parse as an integer equal to value. Leading zeros compare as
// integers ("07" matches 7).
func matchField(field string, value int) bool {
	if field == "*" {
		return true
	}
	n, err := strconv.Atoi(field)
	if err != nil {
		return false
	}
	return n == value
}

// matchList matches the weekday field, which may be a comma-separated list.
func matchList(field string, value int) bool {
	if field == "*" {
		return true
	}
	for _, part := range strings.Split(field, ",") {
		n, err := strconv.Atoi(part)
		if err != nil {
			return false
		}
		if n == value {
			return true
		}
	}
	return false
}
