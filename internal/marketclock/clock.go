// Package marketclock computes trading session windows in a configured
// timezone. All functions are pure with respect to the supplied instant.
package marketclock

import (
	"fmt"
	"time"

	"github.com/osvelia/propulsion/internal/config"
)

// ClockTime is a wall-clock time of day.
type ClockTime struct {
	Hour   int
	Minute int
}

// Parse builds a ClockTime from an "HH:MM" string.
func Parse(value string) (ClockTime, error) {
	h, m, err := config.ParseClockTime(value)
	if err != nil {
		return ClockTime{}, err
	}
	return ClockTime{Hour: h, Minute: m}, nil
}

func (c ClockTime) before(other ClockTime) bool {
	if c.Hour != other.Hour {
		return c.Hour < other.Hour
	}
	return c.Minute < other.Minute
}

// Clock resolves session boundaries for the configured market.
type Clock struct {
	loc     *time.Location
	open    ClockTime
	close   ClockTime
	flatten ClockTime
}

// New builds a Clock for the given timezone and session times. A flatten
// time later than the close is clamped to the close.
func New(timezone string, open, close, flatten ClockTime) (*Clock, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	if close.before(flatten) {
		flatten = close
	}
	return &Clock{loc: loc, open: open, close: close, flatten: flatten}, nil
}

// FromConfig builds a Clock from orchestrator configuration.
func FromConfig(cfg config.Orchestrator) (*Clock, error) {
	open, err := Parse(cfg.MarketOpen)
	if err != nil {
		return nil, err
	}
	clos, err := Parse(cfg.MarketClose)
	if err != nil {
		return nil, err
	}
	flatten, err := Parse(cfg.FlattenTime)
	if err != nil {
		return nil, err
	}
	return New(cfg.Timezone, open, clos, flatten)
}

// Now returns the current instant localized to the market timezone.
func (c *Clock) Now() time.Time {
	return time.Now().In(c.loc)
}

// Location exposes the market timezone.
func (c *Clock) Location() *time.Location {
	return c.loc
}

// SessionBounds returns the open, close, and flatten instants for the
// calendar day containing the given instant, in the market timezone.
func (c *Clock) SessionBounds(instant time.Time) (open, close, flatten time.Time) {
	local := instant.In(c.loc)
	open = c.at(local, c.open)
	close = c.at(local, c.close)
	flatten = c.at(local, c.flatten)
	return open, close, flatten
}

// IsTradingDay reports whether the instant falls on a weekday. There is no
// holiday calendar.
func (c *Clock) IsTradingDay(instant time.Time) bool {
	wd := instant.In(c.loc).Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// InTradingWindow reports whether new entries may be initiated: a trading
// day with open <= instant < flatten.
func (c *Clock) InTradingWindow(instant time.Time) bool {
	if !c.IsTradingDay(instant) {
		return false
	}
	open, _, flatten := c.SessionBounds(instant)
	local := instant.In(c.loc)
	return !local.Before(open) && local.Before(flatten)
}

// ShouldFlatten reports whether open positions must be force-closed: a
// trading day with flatten <= instant < close.
func (c *Clock) ShouldFlatten(instant time.Time) bool {
	if !c.IsTradingDay(instant) {
		return false
	}
	_, close, flatten := c.SessionBounds(instant)
	local := instant.In(c.loc)
	return !local.Before(flatten) && local.Before(close)
}

// NextSessionOpen returns the open of the next weekday session strictly
// after the given instant. Before today's open on a weekday that is today's
// open; otherwise the open of the next weekday.
func (c *Clock) NextSessionOpen(instant time.Time) time.Time {
	local := instant.In(c.loc)
	candidate := c.at(local, c.open)
	if !local.Before(candidate) || !c.IsTradingDay(local) {
		candidate = c.at(local.AddDate(0, 0, 1), c.open)
	}
	for wd := candidate.Weekday(); wd == time.Saturday || wd == time.Sunday; wd = candidate.Weekday() {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

func (c *Clock) at(day time.Time, t ClockTime) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, c.loc)
}
