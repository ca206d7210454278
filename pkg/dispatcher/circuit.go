package dispatcher

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// CircuitState is the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed lets sends through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects sends until the recovery timeout elapses.
	CircuitOpen
	// CircuitHalfOpen lets sends through to probe recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker fails sends fast after consecutive transient provider
// failures. Once the recovery timeout has passed it lets one probe through
// at a time; enough successful probes close it again, any failed probe
// reopens it. Safe for concurrent use.
type CircuitBreaker struct {
	openAfter  int
	closeAfter int
	cooldown   time.Duration
	now        func() time.Time

	mu       sync.Mutex
	state    CircuitState
	failures int // consecutive, while closed
	probes   int // successful, while half-open
	probing  bool
	openedAt time.Time
}

// NewCircuitBreaker opens after failureThreshold consecutive failures and
// closes after successThreshold successful probes. Non-positive values fall
// back to 5, 2 and 30s.
func NewCircuitBreaker(failureThreshold, successThreshold int, recoveryTimeout time.Duration) *CircuitBreaker {
	cb := &CircuitBreaker{
		openAfter:  5,
		closeAfter: 2,
		cooldown:   30 * time.Second,
		now:        time.Now,
	}
	if failureThreshold > 0 {
		cb.openAfter = failureThreshold
	}
	if successThreshold > 0 {
		cb.closeAfter = successThreshold
	}
	if recoveryTimeout > 0 {
		cb.cooldown = recoveryTimeout
	}
	return cb
}

// Allow reports whether a send may go out now.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.advance()
	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	default:
		return false
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitHalfOpen {
		cb.failures = 0
		return
	}
	cb.probing = false
	if cb.probes++; cb.probes >= cb.closeAfter {
		cb.set(CircuitClosed)
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitHalfOpen:
		cb.set(CircuitOpen)
	case CircuitClosed:
		if cb.failures++; cb.failures >= cb.openAfter {
			cb.set(CircuitOpen)
		}
	}
}

// State returns the current state. An open circuit whose cooldown has
// passed reports half-open.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advance()
	return cb.state
}

// Reset closes the circuit.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.set(CircuitClosed)
}

// advance moves an open circuit to half-open once the cooldown has passed.
// Callers hold mu.
func (cb *CircuitBreaker) advance() {
	if cb.state == CircuitOpen && cb.now().Sub(cb.openedAt) >= cb.cooldown {
		cb.set(CircuitHalfOpen)
	}
}

// set enters state and clears the counters. Callers hold mu.
func (cb *CircuitBreaker) set(state CircuitState) {
	cb.state = state
	cb.failures, cb.probes, cb.probing = 0, 0, false
	if state == CircuitOpen {
		cb.openedAt = cb.now()
	}
}

// guarded wraps a Dispatcher with a circuit breaker. Permanent failures do not
// count against the circuit.
type guarded struct {
	Dispatcher
	breaker *CircuitBreaker
}

// WithBreaker wraps d so that consecutive transient failures open a circuit.
// While the circuit is open Send fails fast and IsHealthy reports false.
func WithBreaker(d Dispatcher, cb *CircuitBreaker) Dispatcher {
	return &guarded{Dispatcher: d, breaker: cb}
}

func (g *guarded) Send(ctx context.Context, msg Message) notifications.DispatchResult {
	if !g.breaker.Allow() {
		return notifications.Failed("%s: %s", ErrCircuitOpen, g.Channel())
	}

	res := g.Dispatcher.Send(ctx, msg)
	// a permanent failure still means the provider answered
	if res.Retryable() {
		g.breaker.RecordFailure()
	} else {
		g.breaker.RecordSuccess()
	}
	return res
}

func (g *guarded) IsHealthy(ctx context.Context) bool {
	return g.breaker.State() != CircuitOpen && g.Dispatcher.IsHealthy(ctx)
}

func (g *guarded) Config() PublicConfig {
	cfg := g.Dispatcher.Config()
	details := make(map[string]string, len(cfg.Details)+1)
	maps.Copy(details, cfg.Details)
	details["circuit"] = g.breaker.State().String()
	cfg.Details = details
	return cfg
}
