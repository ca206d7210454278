package notifier

import (
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/audit"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Outcome statuses beyond the dispatch statuses.
const (
	StatusRateLimited notifications.Status = "RATE_LIMITED"
	StatusSkipped     notifications.Status = "SKIPPED"
)

// ChannelOutcome is the classified result of one channel of a job.
type ChannelOutcome struct {
	Channel    notifications.Channel `json:"channel"`
	Status     notifications.Status  `json:"status"`
	ExternalID string                `json:"external_id,omitempty"`
	Error      string                `json:"error,omitempty"`
	// RetryID is set when the failure was handed to the retry service.
	RetryID     string     `json:"retry_id,omitempty"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	// RetryAfter is set for rate-limited channels.
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	// Reason explains rate-limited and skipped outcomes.
	Reason   string         `json:"reason,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RetryAfterMs returns RetryAfter in milliseconds.
func (o ChannelOutcome) RetryAfterMs() int64 {
	return o.RetryAfter.Milliseconds()
}

// JobResult aggregates the channel outcomes of one processed job.
type JobResult struct {
	JobID       uuid.UUID                                `json:"job_id"`
	EventKey    string                                   `json:"event_key"`
	Category    string                                   `json:"category,omitempty"`
	RecipientID string                                   `json:"recipient_id"`
	Defaulted   bool                                     `json:"defaulted"`
	Outcomes    map[notifications.Channel]ChannelOutcome `json:"outcomes"`
	StartedAt   time.Time                                `json:"started_at"`
	FinishedAt  time.Time                                `json:"finished_at"`
}

// Count returns how many outcomes have status.
func (r JobResult) Count(status notifications.Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// AuditRecord converts the result into one audit record.
func (r JobResult) AuditRecord() audit.Record {
	channels := make(map[string]audit.ChannelEntry, len(r.Outcomes))
	meta := map[string]any{"defaulted_templates": r.Defaulted}
	for ch, o := range r.Outcomes {
		channels[string(ch)] = audit.ChannelEntry{
			Status:     string(o.Status),
			ExternalID: o.ExternalID,
			Error:      o.Error,
			RetryID:    o.RetryID,
			Reason:     o.Reason,
		}
		if len(o.Metadata) > 0 {
			meta[string(ch)] = maps.Clone(o.Metadata)
		}
	}
	return audit.Record{
		JobID:       r.JobID.String(),
		EventKey:    r.EventKey,
		Category:    r.Category,
		RecipientID: r.RecipientID,
		Result:      audit.Summarize(channels),
		Channels:    channels,
		Metadata:    meta,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
	}
}
