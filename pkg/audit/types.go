package audit

import (
	"fmt"
	"time"
)

// Result summarises the outcome of one notification event across channels.
type Result string

const (
	ResultSuccess Result = "success"
	ResultPartial Result = "partial"
	ResultFailure Result = "failure"
)

// ChannelEntry is the audited outcome of a single channel.
type ChannelEntry struct {
	Status     string `json:"status"`
	ExternalID string `json:"external_id,omitempty"`
	Error      string `json:"error,omitempty"`
	RetryID    string `json:"retry_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Delivered reports whether the channel accepted the notification.
func (e ChannelEntry) Delivered() bool {
	return e.Status == "SENT"
}

// Record is one audit entry per processed notification event.
type Record struct {
	ID          string                  `json:"id"`
	JobID       string                  `json:"job_id"`
	EventKey    string                  `json:"event_key"`
	Category    string                  `json:"category,omitempty"`
	RecipientID string                  `json:"recipient_id"`
	Result      Result                  `json:"result"`
	Channels    map[string]ChannelEntry `json:"channels"`
	Metadata    map[string]any          `json:"metadata,omitempty"`
	StartedAt   time.Time               `json:"started_at"`
	FinishedAt  time.Time               `json:"finished_at"`
	CreatedAt   time.Time               `json:"created_at"`
}

// Validate checks if the record has all required fields
func (r *Record) Validate() error {
	if r.EventKey == "" {
		return fmt.Errorf("%w: event key is required", ErrRecordValidation)
	}
	if r.RecipientID == "" {
		return fmt.Errorf("%w: recipient id is required", ErrRecordValidation)
	}
	return nil
}

// Summarize derives the record result from its channel entries: success when
// every channel delivered, failure when none did, partial otherwise.
func Summarize(channels map[string]ChannelEntry) Result {
	if len(channels) == 0 {
		return ResultFailure
	}
	delivered := 0
	for _, e := range channels {
		if e.Delivered() {
			delivered++
		}
	}
	switch delivered {
	case len(channels):
		return ResultSuccess
	case 0:
		return ResultFailure
	default:
		return ResultPartial
	}
}
