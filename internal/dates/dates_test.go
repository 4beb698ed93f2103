package dates

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
)

func TestAddMonths(t *testing.T) {
	tests := []struct {
		name string
		date civil.Date
		n    int
		want civil.Date
	}{
		{
			name: "plain shift",
			date: civil.Date{Year: 2026, Month: time.March, Day: 15},
			n:    2,
			want: civil.Date{Year: 2026, Month: time.May, Day: 15},
		},
		{
			name: "year rollover",
			date: civil.Date{Year: 2025, Month: time.November, Day: 10},
			n:    3,
			want: civil.Date{Year: 2026, Month: time.February, Day: 10},
		},
		{
			name: "day clamped to short month",
			date: civil.Date{Year: 2026, Month: time.January, Day: 31},
			n:    1,
			want: civil.Date{Year: 2026, Month: time.February, Day: 28},
		},
		{
			name: "day clamped in leap year",
			date: civil.Date{Year: 2024, Month: time.January, Day: 31},
			n:    1,
			want: civil.Date{Year: 2024, Month: time.February, Day: 29},
		},
		{
			name: "negative shift",
			date: civil.Date{Year: 2026, Month: time.January, Day: 15},
			n:    -4,
			want: civil.Date{Year: 2025, Month: time.September, Day: 15},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AddMonths(tt.date, tt.n)
			if got != tt.want {
				t.Errorf("AddMonths(%v, %d) = %v, want %v", tt.date, tt.n, got, tt.want)
			}
		})
	}
}

func TestStartAndEndOfDay(t *testing.T) {
	loc := Santiago()
	// 2026-03-15 10:30 in Chile, expressed as a UTC instant.
	instant := time.Date(2026, time.March, 15, 10, 30, 0, 0, loc).UTC()

	start := StartOfDay(instant)
	if got := start.In(loc); got.Hour() != 0 || got.Minute() != 0 || got.Day() != 15 {
		t.Errorf("StartOfDay = %v, want Chile midnight of the 15th", got)
	}

	end := EndOfDay(instant)
	if got := end.In(loc); got.Hour() != 23 || got.Minute() != 59 || got.Day() != 15 {
		t.Errorf("EndOfDay = %v, want last instant of the 15th", got)
	}
	if !end.After(start) {
		t.Error("EndOfDay must come after StartOfDay")
	}
}

func TestParseMonth(t *testing.T) {
	d, err := ParseMonth("2026-01")
	if err != nil {
		t.Fatalf("ParseMonth: %v", err)
	}
	want := civil.Date{Year: 2026, Month: time.January, Day: 1}
	if d != want {
		t.Errorf("ParseMonth = %v, want %v", d, want)
	}

	if _, err := ParseMonth("enero 2026"); err == nil {
		t.Error("ParseMonth should reject a malformed label")
	}
}

func TestMonthKey(t *testing.T) {
	loc := Santiago()
	instant := time.Date(2026, time.August, 1, 0, 0, 0, 0, loc)
	if got := MonthKey(instant); got != "2026-08" {
		t.Errorf("MonthKey = %q, want 2026-08", got)
	}
}

func TestDayBoundsAcrossChileanDSTStart(t *testing.T) {
	// Chilean clocks jump from 23:59:59 straight to 01:00 when DST starts
	// (the night of 2025-09-06 into 2025-09-07), so the civil day
	// 2025-09-07 has no local midnight. Day bounds must still stay inside
	// their own civil day.
	gapDay := civil.Date{Year: 2025, Month: time.September, Day: 7}

	start := Midnight(gapDay)
	if got := CivilDate(start); got != gapDay {
		t.Errorf("start civil date = %v, want %v", got, gapDay)
	}
	if start.Hour() != 1 {
		t.Errorf("first instant of the gap day = %02d:00, want 01:00", start.Hour())
	}

	dayBefore := time.Date(2025, time.September, 6, 12, 0, 0, 0, Santiago())
	end := EndOfDay(dayBefore)
	if got := CivilDate(end); (got != civil.Date{Year: 2025, Month: time.September, Day: 6}) {
		t.Errorf("end of 2025-09-06 has civil date %v", got)
	}
	if next := end.Add(time.Nanosecond); !next.Equal(start) {
		t.Errorf("end of 2025-09-06 + 1ns = %v, want the first instant of 2025-09-07", next)
	}

	gapNoon := time.Date(2025, time.September, 7, 12, 0, 0, 0, Santiago())
	gapEnd := EndOfDay(gapNoon)
	if got := CivilDate(gapEnd); got != gapDay {
		t.Errorf("end of the gap day has civil date %v", got)
	}
	if h, m, s := gapEnd.Clock(); h != 23 || m != 59 || s != 59 {
		t.Errorf("end of the gap day = %02d:%02d:%02d, want 23:59:59", h, m, s)
	}
}
