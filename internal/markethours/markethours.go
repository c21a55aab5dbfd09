// Package markethours decides whether alert dispatch is inside the trading
// session. Sessions are configurable; the default is IST 10:00–23:00,
// Monday to Friday.
package markethours

import (
	"fmt"
	"time"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Session is a daily trading window on selected weekdays, minus holidays.
// Close is exclusive.
type Session struct {
	Location    *time.Location
	OpenHour    int
	OpenMinute  int
	CloseHour   int
	CloseMinute int
	Days        [7]bool // indexed by time.Weekday
	Holidays    Holidays
}

// Default returns the IST 10:00–23:00 Mon–Fri session with no holidays.
func Default() Session {
	s := Session{
		Location:  IST,
		OpenHour:  10,
		CloseHour: 23,
	}
	for d := time.Monday; d <= time.Friday; d++ {
		s.Days[d] = true
	}
	return s
}

// AlwaysOpen returns a session that is open at every instant.
func AlwaysOpen() Session {
	s := Session{Location: time.UTC, CloseHour: 24}
	for d := range s.Days {
		s.Days[d] = true
	}
	return s
}

func (s Session) loc() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

func (s Session) openMinutes() int  { return s.OpenHour*60 + s.OpenMinute }
func (s Session) closeMinutes() int { return s.CloseHour*60 + s.CloseMinute }

// IsTradingDay returns true if t's local date is a session day and not a holiday.
func (s Session) IsTradingDay(t time.Time) bool {
	lt := t.In(s.loc())
	return s.Days[lt.Weekday()] && !s.Holidays.Contains(lt)
}

// IsOpen returns true if t falls within the session.
func (s Session) IsOpen(t time.Time) bool {
	lt := t.In(s.loc())
	if !s.IsTradingDay(lt) {
		return false
	}
	hm := lt.Hour()*60 + lt.Minute()
	return hm >= s.openMinutes() && hm < s.closeMinutes()
}

func (s Session) at(day time.Time, minutes int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 0, minutes, 0, 0, s.loc())
}

// NextOpen returns the next session open strictly after t, or today's open if
// t is before it on a trading day. The zero time is returned when no session
// day exists in the next year.
func (s Session) NextOpen(t time.Time) time.Time {
	lt := t.In(s.loc())

	todayOpen := s.at(lt, s.openMinutes())
	if lt.Before(todayOpen) && s.IsTradingDay(lt) {
		return todayOpen
	}

	d := lt.AddDate(0, 0, 1)
	for i := 0; i < 366; i++ {
		if s.IsTradingDay(d) {
			return s.at(d, s.openMinutes())
		}
		d = d.AddDate(0, 0, 1)
	}
	return time.Time{}
}

// TodayClose returns the close of t's local day.
func (s Session) TodayClose(t time.Time) time.Time {
	return s.at(t.In(s.loc()), s.closeMinutes())
}

// TimeUntilClose returns the duration until today's close.
// Returns 0 if the session is already closed.
func (s Session) TimeUntilClose(t time.Time) time.Duration {
	if !s.IsOpen(t) {
		return 0
	}
	return s.TodayClose(t).Sub(t)
}

// TimeUntilOpen returns the duration until the next open; 0 while open.
func (s Session) TimeUntilOpen(t time.Time) time.Duration {
	if s.IsOpen(t) {
		return 0
	}
	next := s.NextOpen(t)
	if next.IsZero() {
		return 0
	}
	return next.Sub(t)
}

// StatusString returns a human-readable market status.
func (s Session) StatusString(t time.Time) string {
	if s.IsOpen(t) {
		return fmt.Sprintf("Market Open, closes in %s", fmtDur(s.TimeUntilClose(t)))
	}
	next := s.NextOpen(t)
	if next.IsZero() {
		return "Market Closed"
	}
	return fmt.Sprintf("Market Closed, opens %s %s (%s)",
		next.Weekday().String()[:3], next.Format("15:04"), fmtDur(next.Sub(t)))
}

// Describe returns the session window, e.g. "IST 10:00-23:00, Mon-Fri".
func (s Session) Describe() string {
	var first, last time.Weekday = -1, -1
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Days[d] {
			if first < 0 {
				first = d
			}
			last = d
		}
	}
	days := "no days"
	if first >= 0 {
		days = first.String()[:3] + "-" + last.String()[:3]
	}
	return fmt.Sprintf("%s %02d:%02d-%02d:%02d, %s", s.loc().String(),
		s.OpenHour, s.OpenMinute, s.CloseHour, s.CloseMinute, days)
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
