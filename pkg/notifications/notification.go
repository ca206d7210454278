package notifications

import (
	"fmt"
	"maps"
	"time"
)

// Channel identifies a delivery channel.
type Channel string

const (
	ChannelEmail  Channel = "email"
	ChannelPush   Channel = "push"
	ChannelSocket Channel = "socket"
)

// Channels returns every known channel in a stable order.
func Channels() []Channel {
	return []Channel{ChannelEmail, ChannelPush, ChannelSocket}
}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelPush, ChannelSocket:
		return true
	}
	return false
}

func (c Channel) String() string { return string(c) }

// ParseChannel converts s into a Channel.
func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, s)
	}
	return c, nil
}

// Status is the state of a single dispatch.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusSent       Status = "SENT"
	StatusFailed     Status = "FAILED"
	StatusRetrying   Status = "RETRYING"
)

// Recipient is the addressee of a notification.
type Recipient struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	ExternalID string `json:"external_id,omitempty"`
}

// Payload is a business event addressed to one recipient.
type Payload struct {
	Event     string         `json:"event"`
	Category  string         `json:"category,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Recipient Recipient      `json:"recipient"`
	Data      map[string]any `json:"data"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// Reserved template variable roots populated from the payload itself.
const (
	RootRecipient = "recipient"
	RootEvent     = "event"
	RootCategory  = "category"
	RootTimestamp = "timestamp"
	RootMeta      = "meta"
)

// ReservedRoots lists the variable roots that are always available to templates.
func ReservedRoots() []string {
	return []string{RootRecipient, RootEvent, RootCategory, RootTimestamp, RootMeta}
}

// TemplateData returns the variable map used to render templates for p.
func (p Payload) TemplateData() map[string]any {
	data := make(map[string]any, len(p.Data)+5)
	maps.Copy(data, p.Data)

	meta := make(map[string]any, len(p.Meta))
	maps.Copy(meta, p.Meta)

	data[RootRecipient] = map[string]any{
		"id":          p.Recipient.ID,
		"name":        p.Recipient.Name,
		"email":       p.Recipient.Email,
		"external_id": p.Recipient.ExternalID,
	}
	data[RootEvent] = p.Event
	data[RootCategory] = p.Category
	data[RootTimestamp] = p.Timestamp.UTC().Format(time.RFC3339)
	data[RootMeta] = meta
	return data
}

// DispatchResult is the normalised outcome of one Send call.
type DispatchResult struct {
	Status     Status         `json:"status"`
	ExternalID string         `json:"external_id,omitempty"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	SentAt     *time.Time     `json:"sent_at,omitempty"`
	// Permanent marks failures that retrying cannot fix, such as a channel
	// without a configured provider.
	Permanent bool `json:"permanent,omitempty"`
}

// Sent builds a successful result.
func Sent(externalID string, at time.Time) DispatchResult {
	return DispatchResult{Status: StatusSent, ExternalID: externalID, SentAt: &at}
}

// Failed builds a transient failure result.
func Failed(format string, args ...any) DispatchResult {
	return DispatchResult{Status: StatusFailed, Error: fmt.Sprintf(format, args...)}
}

// PermanentFailure builds a failure result that must not be retried.
func PermanentFailure(format string, args ...any) DispatchResult {
	return DispatchResult{Status: StatusFailed, Error: fmt.Sprintf(format, args...), Permanent: true}
}

// Succeeded reports whether the dispatch was delivered.
func (r DispatchResult) Succeeded() bool {
	return r.Status == StatusSent
}

// Retryable reports whether the failure should be handed to the retry service.
func (r DispatchResult) Retryable() bool {
	return r.Status == StatusFailed && !r.Permanent
}
