package audit

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// SlogStorage writes each record as a structured log line.
type SlogStorage struct {
	log   *slog.Logger
	level slog.Level
}

func NewSlogStorage(l *slog.Logger, level slog.Level) *SlogStorage {
	if l == nil {
		l = slog.Default()
	}
	return &SlogStorage{log: l.With(logger.Component("audit")), level: level}
}

func (s *SlogStorage) Store(ctx context.Context, r Record) error {
	attrs := make([]slog.Attr, 0, len(r.Channels))
	for ch, e := range r.Channels {
		group := []slog.Attr{logger.Status(e.Status)}
		if e.ExternalID != "" {
			group = append(group, logger.MessageID(e.ExternalID))
		}
		if e.RetryID != "" {
			group = append(group, logger.RetryID(e.RetryID))
		}
		if e.Reason != "" {
			group = append(group, slog.String("reason", e.Reason))
		}
		if e.Error != "" {
			group = append(group, slog.String("error", e.Error))
		}
		attrs = append(attrs, logger.Group(ch, group...))
	}

	s.log.LogAttrs(ctx, s.level, "notification audit",
		slog.String("audit_id", r.ID),
		logger.JobID(r.JobID),
		logger.EventKey(r.EventKey),
		logger.RecipientID(r.RecipientID),
		slog.String("result", string(r.Result)),
		logger.Duration(r.FinishedAt.Sub(r.StartedAt)),
		slog.Any("metadata", r.Metadata),
		logger.Group("channels", attrs...),
	)
	return nil
}

func (s *SlogStorage) StoreBatch(ctx context.Context, records []Record) error {
	for _, r := range records {
		if err := s.Store(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
