// Package calendar answers two questions the rest of the engine can't
// derive from a bare wall clock alone: is today a trading day, and is
// the market open right now. Both come from an explicit NYSE holiday
// list rather than inferring closures from price-feed gaps.
package calendar

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// NY is the America/New_York location; NYSE hours are always quoted in
// it and DST transitions fall out of time.LoadLocation automatically.
var NY *time.Location

func init() {
	var err error
	NY, err = time.LoadLocation("America/New_York")
	if err != nil {
		panic(fmt.Sprintf("calendar: failed to load America/New_York timezone: %v", err))
	}
}

// Regular NYSE session bounds, Eastern Time.
const (
	MarketOpenHour  = 9
	MarketOpenMin   = 30
	MarketCloseHour = 16
	MarketCloseMin  = 0

	dateKeyLayout = "2006-01-02"
	lookaheadCap  = 10 // a real holiday run never spans this many consecutive days
)

// Calendar resolves trading-day and market-hours state against a fixed
// set of exchange holidays.
type Calendar struct {
	holidays map[string]string // dateKey -> reason
}

// HolidayEntry is one row of the holiday JSON file.
type HolidayEntry struct {
	Date   string `json:"date"` // YYYY-MM-DD
	Reason string `json:"reason"`
}

// NewCalendar loads a Calendar from a JSON array of HolidayEntry.
func NewCalendar(holidayFilePath string) (*Calendar, error) {
	data, err := os.ReadFile(holidayFilePath)
	if err != nil {
		return nil, fmt.Errorf("calendar: read holidays file: %w", err)
	}

	var entries []HolidayEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("calendar: parse holidays: %w", err)
	}

	holidays := make(map[string]string, len(entries))
	for _, e := range entries {
		holidays[e.Date] = e.Reason
	}
	return &Calendar{holidays: holidays}, nil
}

// NewCalendarFromHolidays builds a Calendar directly from a date->reason
// map, skipping the file round trip — tests use this to pin a fixed
// holiday set.
func NewCalendarFromHolidays(holidays map[string]string) *Calendar {
	return &Calendar{holidays: holidays}
}

func dateKey(t time.Time) string {
	return t.In(NY).Format(dateKeyLayout)
}

// sessionMinutes converts a wall-clock time in NY to minutes-since-midnight,
// and reports the open/close bounds in the same units, so every hour
// comparison in this file shares one representation.
func sessionMinutes(t time.Time) (current, openMin, closeMin int) {
	current = t.Hour()*60 + t.Minute()
	openMin = MarketOpenHour*60 + MarketOpenMin
	closeMin = MarketCloseHour*60 + MarketCloseMin
	return
}

// IsTradingDay reports whether date is a weekday that isn't an exchange
// holiday. It does not check the clock — a trading day can still be
// outside market hours.
func (c *Calendar) IsTradingDay(date time.Time) bool {
	d := date.In(NY)
	if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		return false
	}
	_, closed := c.holidays[dateKey(d)]
	return !closed
}

// HolidayReason returns why the exchange is closed on date, or "" if it
// is a normal trading day.
func (c *Calendar) HolidayReason(date time.Time) string {
	return c.holidays[dateKey(date)]
}

// IsMarketOpen reports whether now falls inside a trading day's regular
// session window.
func (c *Calendar) IsMarketOpen(now time.Time) bool {
	t := now.In(NY)
	if !c.IsTradingDay(t) {
		return false
	}
	current, openMin, closeMin := sessionMinutes(t)
	return current >= openMin && current < closeMin
}

// MinutesUntilClose reports how many minutes remain in today's session,
// or 0 once the market has closed (or on a non-trading day). The Exit
// Decision Engine's end-of-day closure rule reads this every exit tick.
func (c *Calendar) MinutesUntilClose(now time.Time) int {
	t := now.In(NY)
	if !c.IsTradingDay(t) {
		return 0
	}
	current, _, closeMin := sessionMinutes(t)
	if current >= closeMin {
		return 0
	}
	return closeMin - current
}

// TimeUntilNextSession reports the duration until the next market open,
// or 0 if the market is open right now.
func (c *Calendar) TimeUntilNextSession(now time.Time) time.Duration {
	t := now.In(NY)
	if c.IsMarketOpen(t) {
		return 0
	}

	if c.IsTradingDay(t) {
		openToday := openTime(t)
		if t.Before(openToday) {
			return openToday.Sub(t)
		}
	}

	next := c.walkToTradingDay(t, 1)
	return openTime(next).Sub(t)
}

// NextTradingDay returns the first trading day strictly after date.
func (c *Calendar) NextTradingDay(date time.Time) time.Time {
	return c.walkToTradingDay(date.In(NY), 1)
}

// PreviousTradingDay returns the most recent trading day strictly
// before date.
func (c *Calendar) PreviousTradingDay(date time.Time) time.Time {
	return c.walkToTradingDay(date.In(NY), -1)
}

// walkToTradingDay steps from `from` one day at a time in the given
// direction (+1 or -1) until it lands on a trading day, capped at
// lookaheadCap steps — a holiday file with a longer real closure would
// be a data error, not a calendar gap this loop should paper over.
func (c *Calendar) walkToTradingDay(from time.Time, direction int) time.Time {
	candidate := from.AddDate(0, 0, direction)
	for i := 0; i < lookaheadCap; i++ {
		if c.IsTradingDay(candidate) {
			return candidate
		}
		candidate = candidate.AddDate(0, 0, direction)
	}
	return candidate
}

// openTime pins date's market-open instant in NY time.
func openTime(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), MarketOpenHour, MarketOpenMin, 0, 0, NY)
}
