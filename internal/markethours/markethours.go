// Package markethours classifies timestamps as market-open or market-closed
// for the weekend session gap of a 24x5 market. The exact boundary times are
// broker-specific session policy, so they are carried as configuration
// rather than hard-coded logic.
package markethours

import (
	"fmt"
	"time"
)

// Calendar describes one broker's weekly trading session in a reference
// market timezone. The market is closed all of Saturday and Sunday, plus
// from CloseDay CloseHour:CloseMinute until OpenDay OpenHour:OpenMinute.
type Calendar struct {
	Location *time.Location

	CloseDay    time.Weekday // last trading weekday (e.g. Friday)
	CloseHour   int
	CloseMinute int

	OpenDay    time.Weekday // first trading weekday (e.g. Monday)
	OpenHour   int
	OpenMinute int
}

// Default returns the reference session calendar: closed Saturday and
// Sunday, closed after Friday 21:00 through Monday 17:00, in the given
// timezone (UTC if nil).
func Default(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{
		Location:    loc,
		CloseDay:    time.Friday,
		CloseHour:   21,
		CloseMinute: 0,
		OpenDay:     time.Monday,
		OpenHour:    17,
		OpenMinute:  0,
	}
}

// IsOpen returns true if t falls inside the trading session.
func (c Calendar) IsOpen(t time.Time) bool {
	lt := t.In(c.Location)
	wd := lt.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	hm := lt.Hour()*60 + lt.Minute()
	if wd == c.CloseDay && hm >= c.CloseHour*60+c.CloseMinute {
		return false
	}
	if wd == c.OpenDay && hm < c.OpenHour*60+c.OpenMinute {
		return false
	}
	return true
}

// NextOpen returns the next session open time at or after t.
func (c Calendar) NextOpen(t time.Time) time.Time {
	lt := t.In(c.Location)
	if c.IsOpen(lt) {
		return lt
	}
	d := lt
	for i := 0; i < 8; i++ {
		open := time.Date(d.Year(), d.Month(), d.Day(), c.OpenHour, c.OpenMinute, 0, 0, c.Location)
		if d.Weekday() == c.OpenDay && open.After(lt) {
			return open
		}
		d = d.AddDate(0, 0, 1)
	}
	// Unreachable for any sane calendar; fall back to one week out.
	return lt.AddDate(0, 0, 7)
}

// StatusString returns a human-readable market status for diagnostics.
func (c Calendar) StatusString(t time.Time) string {
	if c.IsOpen(t) {
		return "open"
	}
	next := c.NextOpen(t)
	return fmt.Sprintf("closed, opens %s %s", next.Weekday().String()[:3], next.Format("15:04"))
}

// StateLabel returns the short market-state token used in archive file names.
func (c Calendar) StateLabel(t time.Time) string {
	if c.IsOpen(t) {
		return "open"
	}
	return "closed"
}
