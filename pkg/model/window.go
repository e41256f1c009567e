package model

import "time"

// DayWindow returns the inclusive [startOfDay, endOfDay] bounds of date in loc.
func DayWindow(date time.Time, loc *time.Location) (start, end time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	d := date.In(loc)
	start = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	end = start.AddDate(0, 0, 1).Add(-time.Second)
	return start, end
}

// WeekStart returns midnight of the Monday on or before t, in t's location.
func WeekStart(t time.Time) time.Time {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return time.Date(t.Year(), t.Month(), t.Day()-weekday+1, 0, 0, 0, 0, t.Location())
}

// ThresholdWindow returns the inclusive date range an alert rule sums over.
// Daily covers today so far; weekly covers Monday through today.
func ThresholdWindow(tt ThresholdType, now time.Time) (fromDate, toDate string) {
	toDate = now.Format(DateLayout)
	switch tt {
	case ThresholdWeekly:
		fromDate = WeekStart(now).Format(DateLayout)
	default:
		fromDate = toDate
	}
	return fromDate, toDate
}

// ParseDate parses a YYYY-MM-DD key in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(DateLayout, s, loc)
}
