// Package ratelimiter bounds how often a recipient may be notified on each
// delivery channel.
//
// Every (channel, recipient) pair carries a burst counter that resets each
// minute and a log of accepted request times covering the last day. A check
// prunes entries older than a day, then tests limits in this order: burst,
// per minute, per hour, per day. The first limit that is reached rejects the
// request and the Result carries its Reason and the window length as
// RetryAfter. Accepted requests are recorded atomically with the check.
//
// Basic usage:
//
//	cfg, err := ratelimiter.LoadConfig()
//	if err != nil {
//		return err
//	}
//	store := ratelimiter.NewMemoryStore(
//		ratelimiter.WithSweepInterval(cfg.SweepInterval),
//		ratelimiter.WithIdleTimeout(cfg.IdleTimeout),
//	)
//	limiter := ratelimiter.New(store, ratelimiter.WithConfig(cfg))
//	defer limiter.Close()
//
//	res, err := limiter.Check(ctx, notifications.ChannelEmail, user.ID)
//	if err != nil {
//		return err
//	}
//	if !res.Allowed {
//		// res.Reason, res.RetryAfter
//	}
//
// Defaults per channel (burst, minute, hour, day) are email 5/10/100/500,
// push 10/30/300/2000 and socket 50/120/3000/20000. Each value can be
// overridden with RATE_LIMIT_<CHANNEL>_BURST, _PER_MINUTE, _PER_HOUR and
// _PER_DAY. A value of zero disables that limit.
//
// MemoryStore removes pairs without an accepted request in the last hour on a
// background sweep every five minutes. Close stops the sweep.
package ratelimiter
