// Package retry tracks failed notification deliveries and decides when each
// one may be attempted again.
//
// An entry is created on the first failure of a delivery and records every
// attempt. While attempts remain it is in the retrying state with
// NextRetryAt set using exponential backoff:
//
//	delay(n) = min(InitialDelay * Multiplier^(n-1), MaxDelay)
//
// Once MaxAttempts failures are recorded the entry becomes failed and is
// sealed: further records return ErrContextSealed. A success discards the
// entry. Failed entries stay until Cleanup removes those older than a
// horizon.
//
// The Service owns no timers. A driver polls Ready and re-dispatches:
//
//	svc := retry.New(retry.WithPolicy(cfg.Policy()))
//
//	entry, err := svc.RecordFailure(ctx, id, channel, recipient.ID, payload, result)
//	...
//	due, err := svc.Ready(ctx, time.Now())
//	for _, e := range due {
//		// dispatch again, then RecordSuccess or RecordFailure
//	}
//
// State lives behind the Store interface. MemoryStore shards entries over
// independent locks so updates to different ids do not contend.
package retry
