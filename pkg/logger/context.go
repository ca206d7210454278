package logger

import (
	"context"
	"log/slog"
)

type scopeKey struct{}

// ContextWithAttrs returns a copy of ctx carrying attrs. Loggers built by New
// append them to every record logged with that context. Attributes already
// on ctx are kept; later calls append.
func ContextWithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	if len(attrs) == 0 {
		return ctx
	}
	prev := AttrsFromContext(ctx)
	merged := make([]slog.Attr, 0, len(prev)+len(attrs))
	merged = append(merged, prev...)
	merged = append(merged, attrs...)
	return context.WithValue(ctx, scopeKey{}, merged)
}

// AttrsFromContext returns the attributes stored by ContextWithAttrs.
func AttrsFromContext(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	attrs, _ := ctx.Value(scopeKey{}).([]slog.Attr)
	return attrs
}

// scopedHandler adds context-scoped attributes to each record.
type scopedHandler struct {
	next slog.Handler
}

func (h scopedHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h scopedHandler) Handle(ctx context.Context, rec slog.Record) error {
	if attrs := AttrsFromContext(ctx); len(attrs) > 0 {
		rec = rec.Clone()
		rec.AddAttrs(attrs...)
	}
	return h.next.Handle(ctx, rec)
}

func (h scopedHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return scopedHandler{next: h.next.WithAttrs(attrs)}
}

func (h scopedHandler) WithGroup(name string) slog.Handler {
	return scopedHandler{next: h.next.WithGroup(name)}
}
