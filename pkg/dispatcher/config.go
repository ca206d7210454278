package dispatcher

import "time"

// EmailConfig configures the email channel. Postmark is used when a server
// token is set, otherwise SMTP when a host is set. With neither the channel
// is registered but reports itself unhealthy.
type EmailConfig struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	PostmarkStream       string `env:"POSTMARK_MESSAGE_STREAM" envDefault:"outbound"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	// SMTPEncryption is one of "none", "starttls" or "ssl_tls".
	SMTPEncryption string `env:"SMTP_ENCRYPTION" envDefault:"starttls"`

	SenderEmail  string `env:"SENDER_EMAIL"`
	SupportEmail string `env:"SUPPORT_EMAIL"`
}

// PostmarkEnabled reports whether Postmark credentials are present.
func (c EmailConfig) PostmarkEnabled() bool {
	return c.PostmarkServerToken != ""
}

// SMTPEnabled reports whether an SMTP server is configured.
func (c EmailConfig) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

// PushConfig configures the push channel, which publishes envelopes to an
// AMQP exchange read by a push gateway.
type PushConfig struct {
	AMQPURL      string `env:"PUSH_AMQP_URL"`
	Exchange     string `env:"PUSH_EXCHANGE" envDefault:"notifications.push"`
	ExchangeType string `env:"PUSH_EXCHANGE_TYPE" envDefault:"topic"`
	DefaultTopic string `env:"PUSH_DEFAULT_TOPIC" envDefault:"push.default"`
}

// Enabled reports whether a broker URL is configured.
func (c PushConfig) Enabled() bool {
	return c.AMQPURL != ""
}

// SocketConfig configures the in-process socket hub.
type SocketConfig struct {
	MaxRecipients int `env:"SOCKET_MAX_RECIPIENTS" envDefault:"10000"`
	BufferSize    int `env:"SOCKET_BUFFER_SIZE" envDefault:"16"`
}

// BreakerConfig configures circuit breakers placed in front of external providers.
type BreakerConfig struct {
	FailureThreshold int           `env:"DISPATCH_BREAKER_FAILURES" envDefault:"5"`
	SuccessThreshold int           `env:"DISPATCH_BREAKER_SUCCESSES" envDefault:"2"`
	RecoveryTimeout  time.Duration `env:"DISPATCH_BREAKER_RECOVERY" envDefault:"30s"`
}

// New returns a circuit breaker from the configuration.
func (c BreakerConfig) New() *CircuitBreaker {
	return NewCircuitBreaker(c.FailureThreshold, c.SuccessThreshold, c.RecoveryTimeout)
}
