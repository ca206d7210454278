package pg

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// goose keeps its settings in package globals.
var gooseMu sync.Mutex

// Migrate applies the goose migrations found in dir of fsys.
// Packages embed their own migrations and pass them here.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cfg Config, fsys fs.FS, dir string, log *slog.Logger) error {
	if fsys == nil {
		return ErrNoMigrationsFS
	}
	if log == nil {
		log = slog.Default()
	}
	if _, err := fs.Stat(fsys, dir); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNoMigrationDir, dir, err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			log.LogAttrs(ctx, slog.LevelWarn, "close migration connection", slog.String("error", err.Error()))
		}
	}(db)

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(&gooseLogger{log: log})
	goose.SetTableName(cfg.MigrationsTable)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrate, err)
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrate, err)
	}
	return nil
}

// gooseLogger routes goose output to slog. Fatalf is logged, not fatal.
type gooseLogger struct {
	log *slog.Logger
}

func (g *gooseLogger) Fatalf(format string, v ...any) {
	g.log.LogAttrs(context.Background(), slog.LevelError, strings.TrimSpace(fmt.Sprintf(format, v...)),
		slog.String("component", "migrations"))
}

func (g *gooseLogger) Printf(format string, v ...any) {
	g.log.LogAttrs(context.Background(), slog.LevelInfo, strings.TrimSpace(fmt.Sprintf(format, v...)),
		slog.String("component", "migrations"))
}
