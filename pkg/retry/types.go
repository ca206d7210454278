package retry

import (
	"slices"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Status is the state of a retry entry.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRetrying Status = "retrying"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
)

// Terminal reports whether no further attempts are expected.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Attempt is one recorded delivery attempt.
type Attempt struct {
	Number    int                          `json:"number"`
	Timestamp time.Time                    `json:"timestamp"`
	Result    notifications.DispatchResult `json:"result"`
}

// Entry tracks the delivery attempts of one notification on one channel.
type Entry struct {
	ID          string                `json:"id"`
	Channel     notifications.Channel `json:"channel"`
	RecipientID string                `json:"recipient_id"`
	Payload     notifications.Payload `json:"payload"`
	Attempts    []Attempt             `json:"attempts"`
	Status      Status                `json:"status"`
	NextRetryAt *time.Time            `json:"next_retry_at,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// LastAttempt returns the most recent attempt.
func (e Entry) LastAttempt() (Attempt, bool) {
	if len(e.Attempts) == 0 {
		return Attempt{}, false
	}
	return e.Attempts[len(e.Attempts)-1], true
}

func (e Entry) clone() Entry {
	e.Attempts = slices.Clone(e.Attempts)
	if e.NextRetryAt != nil {
		next := *e.NextRetryAt
		e.NextRetryAt = &next
	}
	return e
}

// Stats counts entries by status.
type Stats struct {
	Pending  int `json:"pending"`
	Retrying int `json:"retrying"`
	Success  int `json:"success"`
	Failed   int `json:"failed"`
}

// Total returns the number of counted entries.
func (s Stats) Total() int {
	return s.Pending + s.Retrying + s.Success + s.Failed
}
