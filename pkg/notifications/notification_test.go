package notifications_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

func TestParseChannel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    notifications.Channel
		wantErr bool
	}{
		{in: "email", want: notifications.ChannelEmail},
		{in: "push", want: notifications.ChannelPush},
		{in: "socket", want: notifications.ChannelSocket},
		{in: "sms", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := notifications.ParseChannel(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, notifications.ErrUnknownChannel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPayload_TemplateData(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := notifications.Payload{
		Event:     "ORDER_CREATED",
		Category:  "orders",
		Timestamp: ts,
		Recipient: notifications.Recipient{ID: "u1", Name: "Jane", Email: "jane@example.com"},
		Data: map[string]any{
			"order":     map[string]any{"total": 42},
			"recipient": "shadowed",
		},
		Meta: map[string]any{"source": "api"},
	}

	data := p.TemplateData()

	recipient, ok := data["recipient"].(map[string]any)
	require.True(t, ok, "reserved root wins over data key")
	assert.Equal(t, "Jane", recipient["name"])
	assert.Equal(t, "jane@example.com", recipient["email"])
	assert.Equal(t, "ORDER_CREATED", data["event"])
	assert.Equal(t, "orders", data["category"])
	assert.Equal(t, "2024-05-01T12:00:00Z", data["timestamp"])
	assert.Equal(t, map[string]any{"source": "api"}, data["meta"])
	assert.Equal(t, map[string]any{"total": 42}, data["order"])

	data["order"] = nil
	assert.NotNil(t, p.Data["order"], "payload data is not mutated")
}

func TestDispatchResult(t *testing.T) {
	t.Parallel()

	at := time.Now()
	sent := notifications.Sent("msg-1", at)
	assert.True(t, sent.Succeeded())
	assert.False(t, sent.Retryable())
	require.NotNil(t, sent.SentAt)
	assert.Equal(t, at, *sent.SentAt)

	failed := notifications.Failed("smtp: %s", "timeout")
	assert.Equal(t, notifications.StatusFailed, failed.Status)
	assert.Equal(t, "smtp: timeout", failed.Error)
	assert.True(t, failed.Retryable())

	permanent := notifications.PermanentFailure("email channel not configured")
	assert.False(t, permanent.Retryable())
	assert.True(t, permanent.Permanent)
}
