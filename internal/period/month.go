// Package period computes calendar month windows in the program's timezone.
package period

import "time"

// Month is the half-open window [Start, End) of one calendar month.
// Start and End are in UTC.
type Month struct {
	Start time.Time
	End   time.Time
	Key   string
}

// MonthOf returns the calendar month containing t in loc.
func MonthOf(t time.Time, loc *time.Location) Month {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 1, 0)
	return Month{
		Start: start.UTC(),
		End:   end.UTC(),
		Key:   start.Format("2006-01"),
	}
}

// Previous returns the month before m.
func (m Month) Previous(loc *time.Location) Month {
	return MonthOf(m.Start.Add(-time.Nanosecond), loc)
}
