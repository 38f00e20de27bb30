// Package recurrence computes the next occurrence date for repeating
// transactions. All functions are pure.
package recurrence

import (
	"fmt"
	"time"

	"github.com/dvloznov/wealth-tracker/internal/domain"
)

// NextOccurrence returns the occurrence that follows date for the given
// interval. Calendar arithmetic preserves the day of month where valid and
// clamps to the last day otherwise (Jan 31 + 1 month = Feb 29 in a leap
// year). An unrecognized interval is an error, never a silent passthrough.
func NextOccurrence(date time.Time, interval domain.RecurringInterval) (time.Time, error) {
	switch interval {
	case domain.IntervalDaily:
		return date.AddDate(0, 0, 1), nil
	case domain.IntervalWeekly:
		return date.AddDate(0, 0, 7), nil
	case domain.IntervalMonthly:
		return addMonthsClamped(date, 1), nil
	case domain.IntervalYearly:
		return addYearsClamped(date, 1), nil
	default:
		return time.Time{}, fmt.Errorf("%w: unrecognized recurring interval %q", domain.ErrValidation, interval)
	}
}

// addMonthsClamped advances by whole calendar months. Unlike time.AddDate it
// never rolls into the following month: Jan 31 + 1 month is the last day of
// February, not March 2/3.
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	m := int(month) + months
	year += (m - 1) / 12
	m = (m-1)%12 + 1
	if m <= 0 {
		m += 12
		year--
	}

	if last := lastDayOfMonth(year, time.Month(m)); day > last {
		day = last
	}

	h, min, sec := t.Clock()
	return time.Date(year, time.Month(m), day, h, min, sec, t.Nanosecond(), t.Location())
}

// addYearsClamped advances by whole years, clamping Feb 29 to Feb 28 on
// non-leap years.
func addYearsClamped(t time.Time, years int) time.Time {
	year, month, day := t.Date()
	year += years

	if last := lastDayOfMonth(year, month); day > last {
		day = last
	}

	h, min, sec := t.Clock()
	return time.Date(year, month, day, h, min, sec, t.Nanosecond(), t.Location())
}

func lastDayOfMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
