package risk

import (
	"time"

	"ufo-trading-engine/config"
)

// SessionCalendar answers whether the engine may trade at a given instant and
// how close the session is to its daily cutoff. All reasoning is in UTC.
type SessionCalendar struct {
	cfg config.SessionConfig
}

// NewSessionCalendar creates a calendar from the session window settings.
func NewSessionCalendar(cfg config.SessionConfig) *SessionCalendar {
	return &SessionCalendar{cfg: cfg}
}

// IsActive reports whether now falls inside the trading window on a weekday.
func (s *SessionCalendar) IsActive(now time.Time) bool {
	now = now.UTC()
	switch now.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	hour := now.Hour()
	return hour >= s.cfg.OpenHourUTC && hour < s.cfg.CloseHourUTC
}

// TimeToClose returns the remaining time until today's session cutoff.
// Outside the session it returns zero.
func (s *SessionCalendar) TimeToClose(now time.Time) time.Duration {
	now = now.UTC()
	if !s.IsActive(now) {
		return 0
	}
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), s.cfg.CloseHourUTC, 0, 0, 0, time.UTC)
	return cutoff.Sub(now)
}

// ShouldLiquidate reports whether the session is close enough to its cutoff
// that all open positions must be flattened rather than carried overnight.
func (s *SessionCalendar) ShouldLiquidate(now time.Time) bool {
	remaining := s.TimeToClose(now)
	if remaining <= 0 {
		return false
	}
	return remaining <= time.Duration(s.cfg.LiquidateMinsLeft)*time.Minute
}
