package quotes

import (
	"time"
	_ "time/tzdata"
)

var newYork = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// TradingWindow returns the regular US equity session (09:30 to 16:00
// New York time) whose history should be shown at now. On weekends, and on
// weekdays before the open, that is the previous weekday's session.
// Exchange holidays are not modelled.
func TradingWindow(now time.Time) (start, end time.Time) {
	local := now.In(newYork)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, newYork)
	open := day.Add(9*time.Hour + 30*time.Minute)

	if isWeekend(day) || local.Before(open) {
		day = previousWeekday(day)
	}

	start = time.Date(day.Year(), day.Month(), day.Day(), 9, 30, 0, 0, newYork)
	end = time.Date(day.Year(), day.Month(), day.Day(), 16, 0, 0, 0, newYork)
	return start, end
}

func isWeekend(t time.Time) bool {
	return t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
}

func previousWeekday(day time.Time) time.Time {
	d := day.AddDate(0, 0, -1)
	for isWeekend(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}
