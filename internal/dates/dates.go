// Package dates centralizes the civil-date arithmetic the tracker does in
// Chilean local time. Billing periods, quota due dates and notification
// timestamps are all civil dates in America/Santiago; comparisons happen on
// instants derived from them so the server's own time zone never matters.
package dates

import (
	"fmt"
	"sync"
	"time"
	// Chilean DST shifts period boundaries by an hour; hosts without a zone
	// database must still resolve America/Santiago exactly.
	_ "time/tzdata"

	"cloud.google.com/go/civil"
)

var santiagoOnce = sync.OnceValue(func() *time.Location {
	loc, err := time.LoadLocation("America/Santiago")
	if err != nil {
		// Unreachable with the embedded zone database.
		panic(err)
	}
	return loc
})

// Santiago returns the Chilean time zone.
func Santiago() *time.Location {
	return santiagoOnce()
}

// CivilDate returns the Chilean civil date of an instant.
func CivilDate(t time.Time) civil.Date {
	return civil.DateOf(t.In(Santiago()))
}

// StartOfDay returns the instant of Chilean local midnight on t's civil date.
func StartOfDay(t time.Time) time.Time {
	return CivilDate(t).In(Santiago())
}

// EndOfDay returns the last representable instant of t's Chilean civil date.
func EndOfDay(t time.Time) time.Time {
	return CivilDate(t).AddDays(1).In(Santiago()).Add(-time.Nanosecond)
}

// Midnight returns the instant of Chilean local midnight on d.
func Midnight(d civil.Date) time.Time {
	return d.In(Santiago())
}

// AddMonths shifts a civil date by n calendar months, clamping the day to
// the target month's length so Jan 31 + 1 month is Feb 28, not Mar 3.
func AddMonths(d civil.Date, n int) civil.Date {
	months := int(d.Month) - 1 + n
	year := d.Year + months/12
	months %= 12
	if months < 0 {
		months += 12
		year--
	}
	month := time.Month(months + 1)

	day := d.Day
	if last := DaysIn(year, month); day > last {
		day = last
	}
	return civil.Date{Year: year, Month: month, Day: day}
}

// DaysIn returns the number of days in a month.
func DaysIn(year int, month time.Month) int {
	// Day 0 of the next month normalizes to the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// FirstOfMonth and LastOfMonth bound the calendar month containing d.
func FirstOfMonth(d civil.Date) civil.Date {
	return civil.Date{Year: d.Year, Month: d.Month, Day: 1}
}

func LastOfMonth(d civil.Date) civil.Date {
	return civil.Date{Year: d.Year, Month: d.Month, Day: DaysIn(d.Year, d.Month)}
}

// ParseMonth parses a "YYYY-MM" label into the first civil date of that
// month.
func ParseMonth(s string) (civil.Date, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("ParseMonth: invalid month %q: %w", s, err)
	}
	return civil.Date{Year: t.Year(), Month: t.Month(), Day: 1}, nil
}

// MonthKey formats an instant's Chilean civil month as "YYYY-MM".
func MonthKey(t time.Time) string {
	d := CivilDate(t)
	return fmt.Sprintf("%04d-%02d", d.Year, int(d.Month))
}
