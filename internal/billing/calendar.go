package billing

import "time"

// SecondsPerDay is the length of a spending-limit window and the unit used
// when counting remaining days in a billing cycle.
const SecondsPerDay = 86400

// AddOneMonthClampDay advances t by one calendar month, clamping the day of
// month to the last valid day of the target month (Jan 31 -> Feb 28/29).
// December wraps into January of the following year.
func AddOneMonthClampDay(t time.Time) time.Time {
	year, month, day := t.Date()
	month++
	if month > time.December {
		month = time.January
		year++
	}
	if last := DaysInMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	// Day zero of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// NextUTCMidnight returns the first UTC midnight strictly after t. The
// billing sweep anchors its next run here rather than at now+24h so that
// late sweeps do not drift the schedule.
func NextUTCMidnight(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

// RemainingDays returns the number of whole days between now and deadline,
// truncated. Returns 0 when the deadline has passed.
func RemainingDays(now, deadline time.Time) int64 {
	if !deadline.After(now) {
		return 0
	}
	return int64(deadline.Sub(now)/time.Second) / SecondsPerDay
}
