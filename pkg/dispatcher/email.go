package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mrz1836/postmark"
	"github.com/wneessen/go-mail"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Email metadata directives.
const (
	MetaFrom    = "from"
	MetaReplyTo = "reply_to"
	MetaSubject = "subject"
	MetaTag     = "tag"
	MetaTo      = "to"
)

// EmailMessage is what an EmailProvider sends.
type EmailMessage struct {
	From     string
	ReplyTo  string
	To       string
	Subject  string
	HTMLBody string
	TextBody string
	Tag      string
}

// EmailProvider delivers a single email and returns the provider message ID.
type EmailProvider interface {
	Name() string
	Send(ctx context.Context, msg EmailMessage) (string, error)
}

// PostmarkAPI is the part of the Postmark client used for sending.
type PostmarkAPI interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

type postmarkProvider struct {
	client PostmarkAPI
	stream string
}

// NewPostmarkProvider sends through Postmark's transactional API.
func NewPostmarkProvider(client PostmarkAPI, stream string) EmailProvider {
	return &postmarkProvider{client: client, stream: stream}
}

func (p *postmarkProvider) Name() string { return "postmark" }

func (p *postmarkProvider) Send(ctx context.Context, msg EmailMessage) (string, error) {
	resp, err := p.client.SendEmail(ctx, postmark.Email{
		From:          msg.From,
		ReplyTo:       msg.ReplyTo,
		To:            msg.To,
		Subject:       msg.Subject,
		Tag:           msg.Tag,
		HTMLBody:      msg.HTMLBody,
		TextBody:      msg.TextBody,
		TrackOpens:    true,
		TrackLinks:    "HtmlOnly",
		MessageStream: p.stream,
	})
	if err != nil {
		return "", errors.Join(ErrProvider, err)
	}
	if resp.ErrorCode > 0 {
		return "", errors.Join(ErrProvider, fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return resp.MessageID, nil
}

type smtpProvider struct {
	cfg EmailConfig
}

// addressedMsg returns a go-mail message with the envelope addresses of msg
// set. Parse failures wrap ErrInvalidAddress.
func addressedMsg(msg EmailMessage) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, fmt.Errorf("%w: from %q: %w", ErrInvalidAddress, msg.From, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("%w: recipient %q: %w", ErrInvalidAddress, msg.To, err)
	}
	if msg.ReplyTo != "" {
		if err := m.ReplyTo(msg.ReplyTo); err != nil {
			return nil, fmt.Errorf("%w: reply-to %q: %w", ErrInvalidAddress, msg.ReplyTo, err)
		}
	}
	return m, nil
}

// NewSMTPProvider sends through an SMTP server.
func NewSMTPProvider(cfg EmailConfig) EmailProvider {
	return &smtpProvider{cfg: cfg}
}

func (p *smtpProvider) Name() string { return "smtp" }

func (p *smtpProvider) Send(ctx context.Context, msg EmailMessage) (string, error) {
	m, err := addressedMsg(msg)
	if err != nil {
		return "", err
	}
	if msg.Tag != "" {
		m.SetGenHeader(mail.Header("X-Notification-Tag"), msg.Tag)
	}

	id := uuid.NewString()
	m.SetMessageIDWithValue(id)
	m.SetDate()
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.TextBody)
	m.AddAlternativeString(mail.TypeTextHTML, msg.HTMLBody)

	opts := []mail.Option{
		mail.WithPort(p.cfg.SMTPPort),
		mail.WithTLSPolicy(tlsPolicy(p.cfg.SMTPEncryption)),
	}
	if p.cfg.SMTPEncryption == "ssl_tls" {
		opts = append(opts, mail.WithSSL())
	}
	if p.cfg.SMTPUsername != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(p.cfg.SMTPUsername),
			mail.WithPassword(p.cfg.SMTPPassword),
		)
	}

	c, err := mail.NewClient(p.cfg.SMTPHost, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create mail client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return "", errors.Join(ErrProvider, err)
	}
	return id, nil
}

func tlsPolicy(enc string) mail.TLSPolicy {
	switch enc {
	case "ssl_tls":
		return mail.TLSMandatory
	case "starttls":
		return mail.TLSOpportunistic
	default:
		return mail.NoTLS
	}
}

// Email delivers notifications by email.
type Email struct {
	provider EmailProvider
	cfg      EmailConfig
	layout   Layout
	now      func() time.Time
	logger   *slog.Logger
}

// EmailOption configures the email dispatcher.
type EmailOption func(*Email)

// WithEmailProvider overrides the provider chosen from the configuration.
func WithEmailProvider(p EmailProvider) EmailOption {
	return func(e *Email) { e.provider = p }
}

// WithLayout sets the HTML layout wrapped around every body.
func WithLayout(l Layout) EmailOption {
	return func(e *Email) {
		if l != nil {
			e.layout = l
		}
	}
}

func WithEmailClock(now func() time.Time) EmailOption {
	return func(e *Email) {
		if now != nil {
			e.now = now
		}
	}
}

func WithEmailLogger(l *slog.Logger) EmailOption {
	return func(e *Email) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEmail creates the email dispatcher. Postmark is preferred when both
// providers are configured.
func NewEmail(cfg EmailConfig, opts ...EmailOption) *Email {
	e := &Email{
		cfg:    cfg,
		layout: DefaultLayout,
		now:    time.Now,
		logger: slog.Default(),
	}
	switch {
	case cfg.PostmarkEnabled():
		e.provider = NewPostmarkProvider(
			postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
			cfg.PostmarkStream,
		)
	case cfg.SMTPEnabled():
		e.provider = NewSMTPProvider(cfg)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Email) Channel() notifications.Channel { return notifications.ChannelEmail }

func (e *Email) Send(ctx context.Context, msg Message) notifications.DispatchResult {
	if e.provider == nil {
		return notifications.PermanentFailure("email channel not configured")
	}

	out := EmailMessage{
		From:    msg.Meta(MetaFrom, e.cfg.SenderEmail),
		ReplyTo: msg.Meta(MetaReplyTo, e.cfg.SupportEmail),
		To:      msg.Meta(MetaTo, msg.Payload.Recipient.Email),
		Subject: msg.Meta(MetaSubject, msg.Title),
		Tag:     msg.Meta(MetaTag, ""),
	}
	if out.To == "" {
		return notifications.PermanentFailure("email recipient address is missing")
	}
	if out.From == "" {
		return notifications.PermanentFailure("%s: email sender address is missing", ErrNotConfigured)
	}
	if _, err := addressedMsg(out); err != nil {
		return notifications.PermanentFailure("%v", err)
	}

	html, err := RenderComponent(ctx, e.layout(out.Subject, htmlBody(msg.Body)))
	if err != nil {
		return notifications.Failed("render email layout: %v", err)
	}
	out.HTMLBody = html
	out.TextBody = textBody(msg.Body)

	id, err := e.provider.Send(ctx, out)
	if err != nil {
		e.logger.LogAttrs(ctx, slog.LevelDebug, "email provider failed",
			logger.Component("dispatcher.email"),
			slog.String("provider", e.provider.Name()),
			logger.Error(err),
		)
		if errors.Is(err, ErrInvalidAddress) {
			return notifications.PermanentFailure("%s: %v", e.provider.Name(), err)
		}
		return notifications.Failed("%s: %v", e.provider.Name(), err)
	}

	res := notifications.Sent(id, e.now())
	res.Metadata = map[string]any{"provider": e.provider.Name(), "to": out.To}
	return res
}

func (e *Email) IsHealthy(context.Context) bool {
	return e.provider != nil
}

func (e *Email) Config() PublicConfig {
	cfg := PublicConfig{
		Channel:    notifications.ChannelEmail,
		Configured: e.provider != nil,
		Details:    map[string]string{"sender": e.cfg.SenderEmail},
	}
	if e.provider != nil {
		cfg.Provider = e.provider.Name()
	}
	if e.cfg.SMTPEnabled() {
		cfg.Details["smtp_host"] = e.cfg.SMTPHost
	}
	return cfg
}
