package templates

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/pg"
)

// Migrations holds the goose migrations for the template table.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory of Migrations to pass to pg.Migrate.
const MigrationsDir = "migrations"

// DB is the subset of *pgxpool.Pool used by PostgresStorage.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const templateColumns = "id, event_key, channel, title, content, body, metadata, is_active, created_by, created_at, updated_at"

// PostgresStorage stores templates in the notification_templates table.
type PostgresStorage struct {
	db DB
}

func NewPostgresStorage(db DB) *PostgresStorage {
	return &PostgresStorage{db: db}
}

func (s *PostgresStorage) Create(ctx context.Context, t Template) error {
	meta, err := marshalMetadata(t)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		"INSERT INTO notification_templates ("+templateColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)",
		t.ID, t.EventKey, string(t.Channel), t.Title, t.Content, t.Body, meta, t.IsActive, t.CreatedBy, t.CreatedAt, t.UpdatedAt,
	)
	if pg.IsDuplicateKeyError(err) {
		return ErrDuplicateTemplate
	}
	if err != nil {
		return fmt.Errorf("templates: insert: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Get(ctx context.Context, id uuid.UUID) (Template, error) {
	row := s.db.QueryRow(ctx, "SELECT "+templateColumns+" FROM notification_templates WHERE id = $1", id)
	return scanTemplate(row)
}

func (s *PostgresStorage) GetByKey(ctx context.Context, key Key) (Template, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+templateColumns+" FROM notification_templates WHERE event_key = $1 AND channel = $2",
		key.EventKey, string(key.Channel),
	)
	return scanTemplate(row)
}

func (s *PostgresStorage) ListByEvent(ctx context.Context, eventKey string, activeOnly bool) ([]Template, error) {
	f := Filter{EventKey: eventKey}
	if activeOnly {
		active := true
		f.Active = &active
	}
	return s.List(ctx, f)
}

func (s *PostgresStorage) Update(ctx context.Context, t Template) error {
	meta, err := marshalMetadata(t)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE notification_templates
		SET event_key = $2, channel = $3, title = $4, content = $5, body = $6, metadata = $7, is_active = $8, updated_at = $9
		WHERE id = $1`,
		t.ID, t.EventKey, string(t.Channel), t.Title, t.Content, t.Body, meta, t.IsActive, t.UpdatedAt,
	)
	if pg.IsDuplicateKeyError(err) {
		return ErrDuplicateTemplate
	}
	if err != nil {
		return fmt.Errorf("templates: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

func (s *PostgresStorage) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM notification_templates WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("templates: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

func (s *PostgresStorage) List(ctx context.Context, f Filter) ([]Template, error) {
	var (
		where []string
		args  []any
	)
	if f.EventKey != "" {
		args = append(args, f.EventKey)
		where = append(where, fmt.Sprintf("event_key = $%d", len(args)))
	}
	if f.Channel != "" {
		args = append(args, string(f.Channel))
		where = append(where, fmt.Sprintf("channel = $%d", len(args)))
	}
	if f.Active != nil {
		args = append(args, *f.Active)
		where = append(where, fmt.Sprintf("is_active = $%d", len(args)))
	}

	var q strings.Builder
	q.WriteString("SELECT " + templateColumns + " FROM notification_templates")
	if len(where) > 0 {
		q.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	q.WriteString(" ORDER BY event_key, channel")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&q, " LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		fmt.Fprintf(&q, " OFFSET $%d", len(args))
	}

	rows, err := s.db.Query(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("templates: list: %w", err)
	}
	defer rows.Close()

	out := []Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("templates: list: %w", err)
	}
	return out, nil
}

func (s *PostgresStorage) EventKeys(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, "SELECT DISTINCT event_key FROM notification_templates ORDER BY event_key")
	if err != nil {
		return nil, fmt.Errorf("templates: event keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("templates: event keys: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *PostgresStorage) CountActiveByChannel(ctx context.Context) (map[notifications.Channel]int, error) {
	rows, err := s.db.Query(ctx, "SELECT channel, count(*) FROM notification_templates WHERE is_active GROUP BY channel")
	if err != nil {
		return nil, fmt.Errorf("templates: count: %w", err)
	}
	defer rows.Close()

	counts := make(map[notifications.Channel]int)
	for rows.Next() {
		var (
			ch string
			n  int64
		)
		if err := rows.Scan(&ch, &n); err != nil {
			return nil, fmt.Errorf("templates: count: %w", err)
		}
		counts[notifications.Channel(ch)] = int(n)
	}
	return counts, rows.Err()
}

func scanTemplate(row pgx.Row) (Template, error) {
	var (
		t       Template
		channel string
		meta    []byte
	)
	err := row.Scan(&t.ID, &t.EventKey, &channel, &t.Title, &t.Content, &t.Body, &meta,
		&t.IsActive, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if pg.IsNotFoundError(err) {
		return Template{}, ErrTemplateNotFound
	}
	if err != nil {
		return Template{}, fmt.Errorf("templates: scan: %w", err)
	}
	t.Channel = notifications.Channel(channel)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &t.Metadata); err != nil {
			return Template{}, fmt.Errorf("templates: decode metadata: %w", err)
		}
	}
	return t, nil
}

func marshalMetadata(t Template) ([]byte, error) {
	if t.Metadata == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(t.Metadata)
	if err != nil {
		return nil, fmt.Errorf("templates: encode metadata: %w", err)
	}
	return b, nil
}
