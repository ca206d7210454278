package templates_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/renderer"
	"github.com/dmitrymomot/notifykit/pkg/templates"
)

var templateCols = []string{
	"id", "event_key", "channel", "title", "content", "body",
	"metadata", "is_active", "created_by", "created_at", "updated_at",
}

func newMockStorage(t *testing.T) (pgxmock.PgxPoolIface, *templates.PostgresStorage) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, templates.NewPostgresStorage(mock)
}

func sampleTemplate() templates.Template {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return templates.Template{
		ID:        uuid.MustParse("6f1c2b9e-8a43-4d0f-9d7e-0c4a3f1f2a10"),
		EventKey:  templates.EventUserRegistered,
		Channel:   notifications.ChannelEmail,
		Title:     "Welcome",
		Content:   "subject: Welcome\n---\nHi",
		Body:      "Hi",
		Metadata:  renderer.Metadata{"subject": "Welcome"},
		IsActive:  true,
		CreatedBy: "admin",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestPostgresStorage_Create(t *testing.T) {
	t.Parallel()

	mock, s := newMockStorage(t)
	tpl := sampleTemplate()

	mock.ExpectExec("INSERT INTO notification_templates").
		WithArgs(tpl.ID, tpl.EventKey, "email", tpl.Title, tpl.Content, tpl.Body,
			pgxmock.AnyArg(), true, "admin", tpl.CreatedAt, tpl.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Create(context.Background(), tpl))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_Create_Duplicate(t *testing.T) {
	t.Parallel()

	mock, s := newMockStorage(t)

	mock.ExpectExec("INSERT INTO notification_templates").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := s.Create(context.Background(), sampleTemplate())
	assert.ErrorIs(t, err, templates.ErrDuplicateTemplate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_GetByKey(t *testing.T) {
	t.Parallel()

	mock, s := newMockStorage(t)
	tpl := sampleTemplate()

	mock.ExpectQuery(`SELECT (.+) FROM notification_templates WHERE event_key = \$1 AND channel = \$2`).
		WithArgs(tpl.EventKey, "email").
		WillReturnRows(pgxmock.NewRows(templateCols).AddRow(
			tpl.ID, tpl.EventKey, "email", tpl.Title, tpl.Content, tpl.Body,
			[]byte(`{"subject":"Welcome"}`), true, "admin", tpl.CreatedAt, tpl.UpdatedAt,
		))

	got, err := s.GetByKey(context.Background(), tpl.Key())
	require.NoError(t, err)
	assert.Equal(t, tpl, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_Get_NotFound(t *testing.T) {
	t.Parallel()

	mock, s := newMockStorage(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT (.+) FROM notification_templates WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(templateCols))

	_, err := s.Get(context.Background(), id)
	assert.ErrorIs(t, err, templates.ErrTemplateNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_ListByEvent(t *testing.T) {
	t.Parallel()

	mock, s := newMockStorage(t)
	tpl := sampleTemplate()

	mock.ExpectQuery(`SELECT (.+) FROM notification_templates WHERE event_key = \$1 AND is_active = \$2 ORDER BY event_key, channel`).
		WithArgs(tpl.EventKey, true).
		WillReturnRows(pgxmock.NewRows(templateCols).AddRow(
			tpl.ID, tpl.EventKey, "email", tpl.Title, tpl.Content, tpl.Body,
			[]byte(`{"subject":"Welcome"}`), true, "admin", tpl.CreatedAt, tpl.UpdatedAt,
		))

	got, err := s.ListByEvent(context.Background(), tpl.EventKey, true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Welcome", got[0].Metadata.Get("subject"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_List_Pagination(t *testing.T) {
	t.Parallel()

	mock, s := newMockStorage(t)

	mock.ExpectQuery(`SELECT (.+) FROM notification_templates WHERE channel = \$1 ORDER BY event_key, channel LIMIT \$2 OFFSET \$3`).
		WithArgs("push", 10, 20).
		WillReturnRows(pgxmock.NewRows(templateCols))

	got, err := s.List(context.Background(), templates.Filter{Channel: notifications.ChannelPush, Limit: 10, Offset: 20})
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_UpdateDelete_NotFound(t *testing.T) {
	t.Parallel()

	mock, s := newMockStorage(t)
	tpl := sampleTemplate()

	mock.ExpectExec("UPDATE notification_templates").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec("DELETE FROM notification_templates").
		WithArgs(tpl.ID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	assert.ErrorIs(t, s.Update(context.Background(), tpl), templates.ErrTemplateNotFound)
	assert.ErrorIs(t, s.Delete(context.Background(), tpl.ID), templates.ErrTemplateNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_Aggregates(t *testing.T) {
	t.Parallel()

	mock, s := newMockStorage(t)

	mock.ExpectQuery("SELECT DISTINCT event_key FROM notification_templates").
		WillReturnRows(pgxmock.NewRows([]string{"event_key"}).AddRow("A").AddRow("B"))
	mock.ExpectQuery("SELECT channel, count").
		WillReturnRows(pgxmock.NewRows([]string{"channel", "count"}).
			AddRow("email", int64(2)).
			AddRow("socket", int64(1)))

	keys, err := s.EventKeys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, keys)

	counts, err := s.CountActiveByChannel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[notifications.Channel]int{
		notifications.ChannelEmail:  2,
		notifications.ChannelSocket: 1,
	}, counts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationsEmbedded(t *testing.T) {
	t.Parallel()

	entries, err := templates.Migrations.ReadDir(templates.MigrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "00001_create_notification_templates.sql", entries[0].Name())
}
