// Package markethours knows the regular NYSE/Nasdaq session: 9:30 AM to
// 4:00 PM America/New_York, Monday to Friday, excluding exchange holidays.
package markethours

import (
	"fmt"
	"time"
	_ "time/tzdata" // America/New_York on hosts without zoneinfo
)

// ET is the exchange time zone.
var ET = mustLoad("America/New_York")

// Regular session in ET
const (
	OpenHour    = 9
	OpenMinute  = 30
	CloseHour   = 16
	CloseMinute = 0
)

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("markethours: load %s: %v", name, err))
	}
	return loc
}

// IsMarketOpen returns true if t falls within the regular session.
func IsMarketOpen(t time.Time) bool {
	et := t.In(ET)
	if !IsTradingDay(et) {
		return false
	}
	hm := et.Hour()*60 + et.Minute()
	return hm >= OpenHour*60+OpenMinute && hm < CloseHour*60+CloseMinute
}

// IsWeekday returns true if t is Mon–Fri in ET.
func IsWeekday(t time.Time) bool {
	wd := t.In(ET).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func IsTradingDay(t time.Time) bool {
	et := t.In(ET)
	return IsWeekday(et) && !IsHoliday(et)
}

func sessionOpen(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), OpenHour, OpenMinute, 0, 0, ET)
}

func sessionClose(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), CloseHour, CloseMinute, 0, 0, ET)
}

// NextOpen returns the next session open. If t is before today's open on a
// trading day, returns today's open.
func NextOpen(t time.Time) time.Time {
	et := t.In(ET)
	if open := sessionOpen(et); et.Before(open) && IsTradingDay(et) {
		return open
	}
	d := et.AddDate(0, 0, 1)
	for i := 0; i < 10; i++ { // weekends plus a holiday never exceed this
		if IsTradingDay(d) {
			return sessionOpen(d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return sessionOpen(et.AddDate(0, 0, 1))
}

// LastClose returns the most recent session close at or before t.
func LastClose(t time.Time) time.Time {
	et := t.In(ET)
	if cl := sessionClose(et); !et.Before(cl) && IsTradingDay(et) {
		return cl
	}
	d := et.AddDate(0, 0, -1)
	for i := 0; i < 10; i++ {
		if IsTradingDay(d) {
			return sessionClose(d)
		}
		d = d.AddDate(0, 0, -1)
	}
	return sessionClose(et.AddDate(0, 0, -1))
}

// TimeUntilClose returns the duration until today's close, or 0 when the
// market is not open.
func TimeUntilClose(t time.Time) time.Duration {
	if !IsMarketOpen(t) {
		return 0
	}
	return sessionClose(t.In(ET)).Sub(t)
}

// StatusString returns a human-readable market status.
func StatusString(t time.Time) string {
	if IsMarketOpen(t) {
		return fmt.Sprintf("Market open, closes in %s", fmtDur(TimeUntilClose(t)))
	}
	next := NextOpen(t)
	et := next.In(ET)
	return fmt.Sprintf("Market closed, opens %s %s ET (%s)",
		et.Weekday().String()[:3], et.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
