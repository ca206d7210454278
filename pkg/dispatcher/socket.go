package dispatcher

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/broadcast"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Socket metadata directives.
const (
	MetaEvent = "event"
	MetaRoom  = "room"
)

// RoomKey is the hub key used for a named room.
func RoomKey(room string) string {
	return "room:" + room
}

// SocketEvent is what socket subscribers receive.
type SocketEvent struct {
	ID          string         `json:"id"`
	Event       string         `json:"event"`
	Room        string         `json:"room,omitempty"`
	RecipientID string         `json:"recipient_id"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Data        map[string]any `json:"data,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Socket delivers notifications to in-process subscribers keyed by
// recipient ID, and to a room when the room directive is set.
type Socket struct {
	hub *broadcast.Hub[SocketEvent]
	now func() time.Time
}

// SocketOption configures the socket dispatcher.
type SocketOption func(*Socket)

func WithSocketClock(now func() time.Time) SocketOption {
	return func(s *Socket) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSocket(hub *broadcast.Hub[SocketEvent], opts ...SocketOption) *Socket {
	s := &Socket{hub: hub, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hub returns the hub subscribers attach to.
func (s *Socket) Hub() *broadcast.Hub[SocketEvent] {
	return s.hub
}

func (s *Socket) Channel() notifications.Channel { return notifications.ChannelSocket }

func (s *Socket) Send(ctx context.Context, msg Message) notifications.DispatchResult {
	ev := SocketEvent{
		ID:          uuid.NewString(),
		Event:       msg.Meta(MetaEvent, msg.Payload.Event),
		Room:        msg.Meta(MetaRoom, ""),
		RecipientID: msg.Payload.Recipient.ID,
		Title:       msg.Title,
		Body:        msg.Body,
		Data:        msg.Payload.Data,
		Timestamp:   s.now().UTC(),
	}

	delivered, err := s.hub.Publish(ctx, ev.RecipientID, ev)
	if err != nil {
		return notifications.Failed("socket publish: %v", err)
	}
	if ev.Room != "" {
		n, err := s.hub.Publish(ctx, RoomKey(ev.Room), ev)
		if err != nil {
			return notifications.Failed("socket publish to room %q: %v", ev.Room, err)
		}
		delivered += n
	}

	res := notifications.Sent(ev.ID, ev.Timestamp)
	res.Metadata = map[string]any{"event": ev.Event, "delivered": delivered}
	if ev.Room != "" {
		res.Metadata["room"] = ev.Room
	}
	return res
}

func (s *Socket) IsHealthy(context.Context) bool {
	return !s.hub.Closed()
}

func (s *Socket) Config() PublicConfig {
	return PublicConfig{
		Channel:    notifications.ChannelSocket,
		Provider:   "hub",
		Configured: true,
	}
}
