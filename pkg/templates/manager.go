package templates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/renderer"
	"github.com/dmitrymomot/notifykit/pkg/validator"
)

const maxTitleLength = 255

// Manager validates templates before they reach storage and exposes the
// lookups used by the notification processor.
type Manager struct {
	storage  Storage
	renderer *renderer.Renderer
	schemas  *SchemaRegistry
	logger   *slog.Logger
	now      func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

func WithRenderer(r *renderer.Renderer) ManagerOption {
	return func(m *Manager) {
		if r != nil {
			m.renderer = r
		}
	}
}

func WithSchemaRegistry(r *SchemaRegistry) ManagerOption {
	return func(m *Manager) {
		if r != nil {
			m.schemas = r
		}
	}
}

func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func NewManager(storage Storage, opts ...ManagerOption) *Manager {
	m := &Manager{
		storage:  storage,
		renderer: renderer.New(),
		schemas:  NewSchemaRegistry(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Schemas returns the registry the manager validates against.
func (m *Manager) Schemas() *SchemaRegistry {
	return m.schemas
}

// CreateParams describes a new template.
type CreateParams struct {
	EventKey  string                `json:"event_key"`
	Channel   notifications.Channel `json:"channel"`
	Title     string                `json:"title"`
	Content   string                `json:"content"`
	IsActive  *bool                 `json:"is_active,omitempty"` // defaults to true
	CreatedBy string                `json:"created_by"`
}

// Create validates and stores a new template. A second template for the
// same event and channel fails with ErrDuplicateTemplate.
func (m *Manager) Create(ctx context.Context, p CreateParams) (Template, error) {
	if err := validator.Apply(
		validator.RequiredString("event_key", p.EventKey),
		validator.InList("channel", p.Channel, notifications.Channels()),
		validator.RequiredString("content", p.Content),
		validator.MaxLenString("title", p.Title, maxTitleLength),
	); err != nil {
		return Template{}, errors.Join(ErrInvalidTemplate, err)
	}
	if res := m.Validate(p.EventKey, p.Content); !res.Valid {
		return Template{}, errors.Join(ErrInvalidTemplate, res.Err())
	}

	now := m.now().UTC()
	t := Template{
		ID:        uuid.New(),
		EventKey:  p.EventKey,
		Channel:   p.Channel,
		Content:   p.Content,
		IsActive:  p.IsActive == nil || *p.IsActive,
		CreatedBy: p.CreatedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.decode()
	t.Title = titleFor(p.Title, t)

	if err := m.storage.Create(ctx, t); err != nil {
		return Template{}, err
	}

	m.logger.LogAttrs(ctx, slog.LevelInfo, "notification template created",
		logger.EventKey(t.EventKey),
		logger.Channel(t.Channel.String()),
		slog.String("template_id", t.ID.String()),
	)
	return t, nil
}

// FindByID returns the template with id.
func (m *Manager) FindByID(ctx context.Context, id uuid.UUID) (Template, error) {
	return m.storage.Get(ctx, id)
}

// FindByKey returns the template for an event and channel.
func (m *Manager) FindByKey(ctx context.Context, eventKey string, channel notifications.Channel) (Template, error) {
	return m.storage.GetByKey(ctx, Key{EventKey: eventKey, Channel: channel})
}

// FindByEvent returns every template of an event, active or not.
func (m *Manager) FindByEvent(ctx context.Context, eventKey string) ([]Template, error) {
	return m.storage.ListByEvent(ctx, eventKey, false)
}

// ActiveForEvent returns the active templates of an event keyed by channel.
func (m *Manager) ActiveForEvent(ctx context.Context, eventKey string) (map[notifications.Channel]Template, error) {
	ts, err := m.storage.ListByEvent(ctx, eventKey, true)
	if err != nil {
		return nil, err
	}
	out := make(map[notifications.Channel]Template, len(ts))
	for _, t := range ts {
		out[t.Channel] = t
	}
	return out, nil
}

// UpdateParams holds the fields to change. Nil fields are left unchanged.
type UpdateParams struct {
	Title    *string `json:"title,omitempty"`
	Content  *string `json:"content,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// Update applies p to the template with id. New content is validated and
// its header decoded again.
func (m *Manager) Update(ctx context.Context, id uuid.UUID, p UpdateParams) (Template, error) {
	t, err := m.storage.Get(ctx, id)
	if err != nil {
		return Template{}, err
	}

	if p.Content != nil {
		if err := validator.Apply(validator.RequiredString("content", *p.Content)); err != nil {
			return Template{}, errors.Join(ErrInvalidTemplate, err)
		}
		if res := m.Validate(t.EventKey, *p.Content); !res.Valid {
			return Template{}, errors.Join(ErrInvalidTemplate, res.Err())
		}
		t.Content = *p.Content
		t.decode()
	}
	if p.Title != nil {
		if err := validator.Apply(validator.MaxLenString("title", *p.Title, maxTitleLength)); err != nil {
			return Template{}, errors.Join(ErrInvalidTemplate, err)
		}
		t.Title = titleFor(*p.Title, t)
	}
	if p.IsActive != nil {
		t.IsActive = *p.IsActive
	}
	t.UpdatedAt = m.now().UTC()

	if err := m.storage.Update(ctx, t); err != nil {
		return Template{}, err
	}
	return t, nil
}

func (m *Manager) Delete(ctx context.Context, id uuid.UUID) error {
	if err := m.storage.Delete(ctx, id); err != nil {
		return err
	}
	m.logger.LogAttrs(ctx, slog.LevelInfo, "notification template deleted",
		slog.String("template_id", id.String()),
	)
	return nil
}

func (m *Manager) List(ctx context.Context, f Filter) ([]Template, error) {
	return m.storage.List(ctx, f)
}

// EventKeys lists the distinct events that have templates.
func (m *Manager) EventKeys(ctx context.Context) ([]string, error) {
	return m.storage.EventKeys(ctx)
}

func (m *Manager) CountActiveByChannel(ctx context.Context) (map[notifications.Channel]int, error) {
	return m.storage.CountActiveByChannel(ctx)
}

// Validate checks template content for eventKey: the body and every header
// value must parse, and when the event has a schema every variable must be
// declared by it. Validation has no side effects.
func (m *Manager) Validate(eventKey, content string) renderer.ValidationResult {
	meta, body := renderer.ParseContent(content)
	declared, strict := m.schemas.Declared(eventKey)

	check := func(tpl string) renderer.ValidationResult {
		if strict {
			return m.renderer.ValidateForEvent(tpl, declared)
		}
		return m.renderer.Validate(tpl)
	}

	res := check(body)
	for _, key := range slices.Sorted(maps.Keys(meta)) {
		if meta[key] == "" {
			continue
		}
		hr := check(meta[key])
		for _, v := range hr.Variables {
			if !slices.Contains(res.Variables, v) {
				res.Variables = append(res.Variables, v)
			}
		}
		for _, is := range hr.Issues {
			is.Message = fmt.Sprintf("header %q: %s", key, is.Message)
			res.Issues = append(res.Issues, is)
		}
		res.Valid = res.Valid && hr.Valid
	}
	return res
}

// Rendered is a template rendered against sample or real data.
type Rendered struct {
	Title    string            `json:"title"`
	Metadata renderer.Metadata `json:"metadata"`
	Body     string            `json:"body"`
}

// Preview renders content with sample values for every variable data does
// not provide.
func (m *Manager) Preview(eventKey, content string, data map[string]any) (Rendered, error) {
	if res := m.Validate(eventKey, content); !res.Valid {
		return Rendered{}, errors.Join(ErrInvalidTemplate, res.Err())
	}
	meta, body := renderer.ParseContent(content)

	out := Rendered{Metadata: make(renderer.Metadata, len(meta))}
	for k, v := range meta {
		rv, err := m.renderer.Preview(v, data)
		if err != nil {
			return Rendered{}, err
		}
		out.Metadata[k] = rv
	}
	rb, err := m.renderer.Preview(body, data)
	if err != nil {
		return Rendered{}, err
	}
	out.Body = rb
	out.Title = out.Metadata.GetOr("title", out.Metadata.Get("subject"))
	return out, nil
}

// PreviewTemplate previews a stored template.
func (m *Manager) PreviewTemplate(ctx context.Context, id uuid.UUID, data map[string]any) (Rendered, error) {
	t, err := m.storage.Get(ctx, id)
	if err != nil {
		return Rendered{}, err
	}
	r, err := m.Preview(t.EventKey, t.Content, data)
	if err != nil {
		return Rendered{}, err
	}
	if r.Title == "" {
		r.Title = t.Title
	}
	return r, nil
}

func titleFor(explicit string, t Template) string {
	if explicit != "" {
		return explicit
	}
	return t.Metadata.GetOr("title", t.Metadata.GetOr("subject", t.EventKey))
}
