package notifier

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/validator"
)

// Input is a business event submitted for delivery to one recipient.
type Input struct {
	Category  string                  `json:"category,omitempty"`
	Timestamp string                  `json:"timestamp"`
	Recipient notifications.Recipient `json:"recipient"`
	Data      map[string]any          `json:"data"`
	Meta      map[string]any          `json:"meta,omitempty"`
	// Channels restricts delivery to a subset of the configured channels.
	// Empty means every configured channel.
	Channels []notifications.Channel `json:"channels,omitempty"`
	// Delay postpones processing.
	Delay time.Duration `json:"-"`
}

// Validate checks the input, restricting channels to configured. The result
// wraps ErrValidation and validator.ValidationErrors.
func (in Input) Validate(eventKey string, configured []notifications.Channel) error {
	rules := []validator.Rule{
		validator.RequiredString("event", eventKey),
		validator.ValidRFC3339("timestamp", in.Timestamp),
		validator.RequiredString("recipient.id", in.Recipient.ID),
		validator.RequiredString("recipient.name", in.Recipient.Name),
		validator.ValidEmail("recipient.email", in.Recipient.Email),
		validator.RequiredMap("data", in.Data),
	}
	for i, ch := range in.Channels {
		rules = append(rules, validator.InList(fmt.Sprintf("channels[%d]", i), ch, configured))
	}

	if err := validator.Apply(rules...); err != nil {
		return errors.Join(ErrValidation, err)
	}
	return nil
}

// payload converts a validated input into the queued payload.
func (in Input) payload(eventKey string) notifications.Payload {
	ts, _ := time.Parse(time.RFC3339, in.Timestamp)
	return notifications.Payload{
		Event:     eventKey,
		Category:  in.Category,
		Timestamp: ts,
		Recipient: in.Recipient,
		Data:      in.Data,
		Meta:      in.Meta,
	}
}

// JobPayload is the queue job body.
type JobPayload struct {
	Payload  notifications.Payload   `json:"payload"`
	Channels []notifications.Channel `json:"channels"`
}

func channelsFor(requested, configured []notifications.Channel) []notifications.Channel {
	if len(requested) == 0 {
		return slices.Clone(configured)
	}
	out := make([]notifications.Channel, 0, len(requested))
	for _, ch := range requested {
		if !slices.Contains(out, ch) {
			out = append(out, ch)
		}
	}
	return out
}
