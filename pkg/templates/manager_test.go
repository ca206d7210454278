package templates_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/templates"
	"github.com/dmitrymomot/notifykit/pkg/validator"
)

const welcomeEmail = "subject: Welcome, {{ recipient.name }}\ntag: onboarding\n---\nHi {{ recipient.name }}, confirm: {{ verification_url }}"

func newManager(t *testing.T) *templates.Manager {
	t.Helper()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return templates.NewManager(templates.NewMemoryStorage(), templates.WithClock(func() time.Time { return now }))
}

func TestManager_Create(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newManager(t)

	tpl, err := m.Create(ctx, templates.CreateParams{
		EventKey:  templates.EventUserRegistered,
		Channel:   notifications.ChannelEmail,
		Content:   welcomeEmail,
		CreatedBy: "admin",
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, tpl.ID)
	assert.True(t, tpl.IsActive)
	assert.Equal(t, "Welcome, {{ recipient.name }}", tpl.Title, "title falls back to subject directive")
	assert.Equal(t, "onboarding", tpl.Metadata.Get("tag"))
	assert.Equal(t, "Hi {{ recipient.name }}, confirm: {{ verification_url }}", tpl.Body)

	got, err := m.FindByKey(ctx, templates.EventUserRegistered, notifications.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, tpl, got)
}

func TestManager_Create_Duplicate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newManager(t)

	first, err := m.Create(ctx, templates.CreateParams{
		EventKey: "INVOICE_PAID",
		Channel:  notifications.ChannelPush,
		Title:    "Original",
		Content:  "Invoice paid",
	})
	require.NoError(t, err)

	_, err = m.Create(ctx, templates.CreateParams{
		EventKey: "INVOICE_PAID",
		Channel:  notifications.ChannelPush,
		Title:    "Replacement",
		Content:  "Something else",
	})
	assert.ErrorIs(t, err, templates.ErrDuplicateTemplate)

	stored, err := m.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Original", stored.Title, "existing record is untouched")
	assert.Equal(t, "Invoice paid", stored.Content)
}

func TestManager_Create_Invalid(t *testing.T) {
	t.Parallel()

	m := newManager(t)

	tests := []struct {
		name   string
		params templates.CreateParams
		field  string
	}{
		{
			name:   "missing event key",
			params: templates.CreateParams{Channel: notifications.ChannelEmail, Content: "x"},
			field:  "event_key",
		},
		{
			name:   "unknown channel",
			params: templates.CreateParams{EventKey: "E", Channel: "sms", Content: "x"},
			field:  "channel",
		},
		{
			name:   "empty content",
			params: templates.CreateParams{EventKey: "E", Channel: notifications.ChannelEmail},
			field:  "content",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := m.Create(context.Background(), tt.params)
			require.ErrorIs(t, err, templates.ErrInvalidTemplate)
			assert.True(t, validator.ExtractValidationErrors(err).Has(tt.field))
		})
	}

	t.Run("syntax error", func(t *testing.T) {
		t.Parallel()
		_, err := m.Create(context.Background(), templates.CreateParams{
			EventKey: "E", Channel: notifications.ChannelSocket, Content: "{% if x %}open",
		})
		assert.ErrorIs(t, err, templates.ErrInvalidTemplate)
	})

	t.Run("undeclared variable for known event", func(t *testing.T) {
		t.Parallel()
		_, err := m.Create(context.Background(), templates.CreateParams{
			EventKey: templates.EventPasswordReset,
			Channel:  notifications.ChannelEmail,
			Content:  "Reset via {{ reset_url }} using {{ secret_token }}",
		})
		require.ErrorIs(t, err, templates.ErrInvalidTemplate)
		assert.Contains(t, err.Error(), "secret_token")
	})

	t.Run("undeclared variable in header", func(t *testing.T) {
		t.Parallel()
		_, err := m.Create(context.Background(), templates.CreateParams{
			EventKey: templates.EventOrderCreated,
			Channel:  notifications.ChannelEmail,
			Content:  "subject: {{ coupon }}\n---\nOrder {{ order.id }}",
		})
		require.ErrorIs(t, err, templates.ErrInvalidTemplate)
		assert.Contains(t, err.Error(), `header "subject"`)
	})
}

func TestManager_Update(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newManager(t)

	tpl, err := m.Create(ctx, templates.CreateParams{
		EventKey: templates.EventOrderCreated,
		Channel:  notifications.ChannelSocket,
		Content:  "Order {{ order.id }}",
	})
	require.NoError(t, err)

	content := "event: order.created\n---\nOrder {{ order.id }} total {{ order.total }}"
	inactive := false
	updated, err := m.Update(ctx, tpl.ID, templates.UpdateParams{Content: &content, IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.Equal(t, "order.created", updated.Metadata.Get("event"))
	assert.Equal(t, "Order {{ order.id }} total {{ order.total }}", updated.Body)

	bad := "{{ order.id }} {{ unknown }}"
	_, err = m.Update(ctx, tpl.ID, templates.UpdateParams{Content: &bad})
	assert.ErrorIs(t, err, templates.ErrInvalidTemplate)

	active, err := m.ActiveForEvent(ctx, templates.EventOrderCreated)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = m.Update(ctx, uuid.New(), templates.UpdateParams{IsActive: &inactive})
	assert.ErrorIs(t, err, templates.ErrTemplateNotFound)
}

func TestManager_Queries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newManager(t)

	inactive := false
	for _, p := range []templates.CreateParams{
		{EventKey: "A_EVENT", Channel: notifications.ChannelEmail, Content: "a"},
		{EventKey: "A_EVENT", Channel: notifications.ChannelPush, Content: "a"},
		{EventKey: "B_EVENT", Channel: notifications.ChannelEmail, Content: "b", IsActive: &inactive},
	} {
		_, err := m.Create(ctx, p)
		require.NoError(t, err)
	}

	keys, err := m.EventKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A_EVENT", "B_EVENT"}, keys)

	counts, err := m.CountActiveByChannel(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[notifications.Channel]int{notifications.ChannelEmail: 1, notifications.ChannelPush: 1}, counts)

	byEvent, err := m.FindByEvent(ctx, "A_EVENT")
	require.NoError(t, err)
	require.Len(t, byEvent, 2)
	assert.Equal(t, notifications.ChannelEmail, byEvent[0].Channel)

	emails, err := m.List(ctx, templates.Filter{Channel: notifications.ChannelEmail})
	require.NoError(t, err)
	assert.Len(t, emails, 2)

	page, err := m.List(ctx, templates.Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, notifications.ChannelPush, page[0].Channel)

	require.NoError(t, m.Delete(ctx, byEvent[0].ID))
	assert.ErrorIs(t, m.Delete(ctx, byEvent[0].ID), templates.ErrTemplateNotFound)
}

func TestManager_Validate_Idempotent(t *testing.T) {
	t.Parallel()

	m := newManager(t)
	first := m.Validate(templates.EventUserRegistered, welcomeEmail)
	second := m.Validate(templates.EventUserRegistered, welcomeEmail)

	assert.True(t, first.Valid)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"recipient.name", "verification_url"}, first.Variables)
}

func TestManager_Preview(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newManager(t)

	out, err := m.Preview(templates.EventUserRegistered, welcomeEmail, map[string]any{
		"recipient": map[string]any{"name": "Ana"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Welcome, Ana", out.Title)
	assert.Equal(t, "Hi Ana, confirm: https://example.com", out.Body)

	tpl, err := m.Create(ctx, templates.CreateParams{
		EventKey: templates.EventUserRegistered,
		Channel:  notifications.ChannelPush,
		Title:    "Push welcome",
		Content:  "Hello {{ user.name }}",
	})
	require.NoError(t, err)

	out, err = m.PreviewTemplate(ctx, tpl.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "Push welcome", out.Title)
	assert.Equal(t, "Hello Jane Doe", out.Body)
}
