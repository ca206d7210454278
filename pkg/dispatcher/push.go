package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Push metadata directives.
const (
	MetaTopic       = "topic"
	MetaIcon        = "icon"
	MetaClickAction = "click_action"
	MetaTitle       = "title"
)

// PushEnvelope is the JSON document published for the push gateway.
type PushEnvelope struct {
	ID          string         `json:"id"`
	Event       string         `json:"event"`
	Category    string         `json:"category,omitempty"`
	RecipientID string         `json:"recipient_id"`
	ExternalID  string         `json:"external_id,omitempty"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Icon        string         `json:"icon,omitempty"`
	ClickAction string         `json:"click_action,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Publisher publishes a message body to an exchange.
type Publisher interface {
	Publish(ctx context.Context, routingKey, messageID string, body []byte) error
	IsClosed() bool
	Close() error
}

// AMQPPublisher publishes to one exchange over a single AMQP connection.
type AMQPPublisher struct {
	mu       sync.RWMutex
	conn     *amqp.Connection
	exchange string
}

// DialAMQP opens a connection to cfg.AMQPURL and declares the exchange.
func DialAMQP(cfg PushConfig) (*AMQPPublisher, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("%w: PUSH_AMQP_URL is empty", ErrNotConfigured)
	}
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(
		cfg.Exchange,
		cfg.ExchangeType,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &AMQPPublisher{conn: conn, exchange: cfg.Exchange}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, routingKey, messageID string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	conn := p.conn
	p.mu.RUnlock()
	if conn == nil || conn.IsClosed() {
		return fmt.Errorf("%w: amqp connection closed", ErrProvider)
	}

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	return ch.Publish(
		p.exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Timestamp:    time.Now(),
			Body:         body,
		})
}

func (p *AMQPPublisher) IsClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conn == nil || p.conn.IsClosed()
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

// Push delivers notifications by publishing push envelopes.
type Push struct {
	publisher Publisher
	cfg       PushConfig
	now       func() time.Time
}

// PushOption configures the push dispatcher.
type PushOption func(*Push)

func WithPushClock(now func() time.Time) PushOption {
	return func(p *Push) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPush creates the push dispatcher. A nil publisher leaves the channel
// unconfigured.
func NewPush(cfg PushConfig, publisher Publisher, opts ...PushOption) *Push {
	p := &Push{publisher: publisher, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Push) Channel() notifications.Channel { return notifications.ChannelPush }

func (p *Push) Send(ctx context.Context, msg Message) notifications.DispatchResult {
	if p.publisher == nil {
		return notifications.PermanentFailure("push channel not configured")
	}

	env := PushEnvelope{
		ID:          uuid.NewString(),
		Event:       msg.Payload.Event,
		Category:    msg.Payload.Category,
		RecipientID: msg.Payload.Recipient.ID,
		ExternalID:  msg.Payload.Recipient.ExternalID,
		Title:       msg.Meta(MetaTitle, msg.Title),
		Body:        msg.Body,
		Icon:        msg.Meta(MetaIcon, ""),
		ClickAction: msg.Meta(MetaClickAction, ""),
		Data:        msg.Payload.Data,
		CreatedAt:   p.now().UTC(),
	}
	topic := msg.Meta(MetaTopic, p.cfg.DefaultTopic)

	body, err := json.Marshal(env)
	if err != nil {
		return notifications.PermanentFailure("encode push envelope: %v", err)
	}
	if err := p.publisher.Publish(ctx, topic, env.ID, body); err != nil {
		return notifications.Failed("publish push envelope: %v", err)
	}

	res := notifications.Sent(env.ID, env.CreatedAt)
	res.Metadata = map[string]any{"topic": topic}
	return res
}

func (p *Push) IsHealthy(context.Context) bool {
	return p.publisher != nil && !p.publisher.IsClosed()
}

func (p *Push) Config() PublicConfig {
	return PublicConfig{
		Channel:    notifications.ChannelPush,
		Provider:   "amqp",
		Configured: p.publisher != nil,
		Details: map[string]string{
			"exchange":      p.cfg.Exchange,
			"default_topic": p.cfg.DefaultTopic,
		},
	}
}
