// Package logger builds *slog.Logger instances for notifykit services and
// provides attribute constructors that keep key names consistent across
// packages (channel, event_key, recipient_id, job_id, retry_id, ...).
//
// New takes functional options for format, level and static attributes.
// ContextWithAttrs scopes attributes to a context; records logged with it
// carry them:
//
//	log := logger.New(
//	    logger.WithEnvironment(cfg.Env, "notifykit"),
//	    logger.WithOutput(w),
//	)
//	log.LogAttrs(ctx, slog.LevelInfo, "notification dispatched",
//	    logger.Channel("email"),
//	    logger.RecipientID(id),
//	)
//
// Error and Errors return an empty attribute for nil errors, so callers can
// pass them unconditionally.
package logger
