package market

import "time"

// Side: +1 long, -1 short
type Side int8

const (
	Long  Side = +1
	Short Side = -1
)

func (s Side) String() string {
	if s == Short {
		return "short"
	}
	return "long"
}

// Clock converts wall time into broker server time. Day rollover for the
// daily-drawdown baseline always uses the fixed server offset, never the
// machine's local timezone, so that live and replay agree on day boundaries.
type Clock struct {
	loc *time.Location
}

// NewClock builds a clock with a fixed UTC offset in hours.
// Most MT5-style brokers run UTC+2 (UTC+3 in summer; the fixed offset is
// deliberate so replays are reproducible year-round).
func NewClock(offsetHours int) Clock {
	return Clock{loc: time.FixedZone("server", offsetHours*3600)}
}

// ServerTime converts t into server time.
func (c Clock) ServerTime(t time.Time) time.Time {
	if c.loc == nil {
		return t.UTC()
	}
	return t.In(c.loc)
}

// ServerDate returns the server-side calendar date of t.
func (c Clock) ServerDate(t time.Time) string {
	return c.ServerTime(t).Format("2006-01-02")
}

// IsWeekend reports whether t falls on a Saturday or Sunday in server time.
// Continuous instruments still trade through weekends; callers check
// IsContinuous separately.
func (c Clock) IsWeekend(t time.Time) bool {
	wd := c.ServerTime(t).Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsFridayClose reports whether t is inside the Friday pre-close window
// (Friday at or after closeHour server time).
func (c Clock) IsFridayClose(t time.Time, closeHour int) bool {
	st := c.ServerTime(t)
	return st.Weekday() == time.Friday && st.Hour() >= closeHour
}

// IsMarketReopen reports whether t is inside the Sunday-reopen window
// (Sunday 22:00+ or Monday before 02:00, server time).
func (c Clock) IsMarketReopen(t time.Time) bool {
	st := c.ServerTime(t)
	switch st.Weekday() {
	case time.Sunday:
		return st.Hour() >= 22
	case time.Monday:
		return st.Hour() < 2
	}
	return false
}
