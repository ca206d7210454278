package ratelimiter

import "time"

// Limits bounds accepted requests for one channel and recipient.
// A limit of zero or less is disabled.
type Limits struct {
	Burst     int `env:"BURST"`
	PerMinute int `env:"PER_MINUTE"`
	PerHour   int `env:"PER_HOUR"`
	PerDay    int `env:"PER_DAY"`
}

// Reason names the limit that rejected a request.
type Reason string

const (
	ReasonBurst  Reason = "burst"
	ReasonMinute Reason = "per_minute"
	ReasonHour   Reason = "per_hour"
	ReasonDay    Reason = "per_day"
)

// Windows of each limit. BurstWindow is also the burst counter reset period.
const (
	BurstWindow  = time.Minute
	MinuteWindow = time.Minute
	HourWindow   = time.Hour
	DayWindow    = 24 * time.Hour
)

// Counts are the accepted requests seen in each window, the current
// request excluded.
type Counts struct {
	Burst  int `json:"burst"`
	Minute int `json:"minute"`
	Hour   int `json:"hour"`
	Day    int `json:"day"`
}

// Result is the outcome of a limit check.
type Result struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`
	// RetryAfter is the window of the violated limit.
	RetryAfter time.Duration `json:"retry_after"`
	// Limit is the value of the violated limit.
	Limit  int    `json:"limit,omitempty"`
	Counts Counts `json:"counts"`
}

// RetryAfterMs returns RetryAfter in milliseconds.
func (r Result) RetryAfterMs() int64 {
	return r.RetryAfter.Milliseconds()
}

// evaluate applies the limits in precedence order: burst, minute, hour, day.
func evaluate(l Limits, c Counts) Result {
	checks := []struct {
		limit  int
		count  int
		reason Reason
		window time.Duration
	}{
		{l.Burst, c.Burst, ReasonBurst, BurstWindow},
		{l.PerMinute, c.Minute, ReasonMinute, MinuteWindow},
		{l.PerHour, c.Hour, ReasonHour, HourWindow},
		{l.PerDay, c.Day, ReasonDay, DayWindow},
	}
	for _, ch := range checks {
		if ch.limit > 0 && ch.count >= ch.limit {
			return Result{Reason: ch.reason, RetryAfter: ch.window, Limit: ch.limit, Counts: c}
		}
	}
	return Result{Allowed: true, Counts: c}
}
