package templates

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/renderer"
)

// Template is a channel-specific notification template for one event.
// (EventKey, Channel) is unique.
type Template struct {
	ID       uuid.UUID             `json:"id"`
	EventKey string                `json:"event_key"`
	Channel  notifications.Channel `json:"channel"`
	Title    string                `json:"title"`
	// Content is the template as authored, header included.
	Content string `json:"content"`
	// Body and Metadata are Content decoded at save time.
	Body      string            `json:"body"`
	Metadata  renderer.Metadata `json:"metadata"`
	IsActive  bool              `json:"is_active"`
	CreatedBy string            `json:"created_by,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Key returns the unique key of the template.
func (t Template) Key() Key {
	return Key{EventKey: t.EventKey, Channel: t.Channel}
}

// Key identifies a template by event and channel.
type Key struct {
	EventKey string
	Channel  notifications.Channel
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	EventKey string
	Channel  notifications.Channel
	Active   *bool
	Limit    int
	Offset   int
}

func (f Filter) match(t Template) bool {
	if f.EventKey != "" && t.EventKey != f.EventKey {
		return false
	}
	if f.Channel != "" && t.Channel != f.Channel {
		return false
	}
	if f.Active != nil && t.IsActive != *f.Active {
		return false
	}
	return true
}

// decode fills Body and Metadata from Content.
func (t *Template) decode() {
	t.Metadata, t.Body = renderer.ParseContent(t.Content)
}
