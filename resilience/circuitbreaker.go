package resilience

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/cloud-shuttle/wsrpc/errs"
)

// BreakerState mirrors the spec's Closed/Open/HalfOpen vocabulary, decoupled
// from gobreaker's own State type so callers of this package never import
// gobreaker directly.
type BreakerState int

const (
	Closed BreakerState = iota
	Open
	HalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker guards every outbound operation that might fail. It wraps
// sony/gobreaker's state machine behind the spec's allow/record vocabulary,
// since the RPC layer needs to gate a request before it knows the outcome
// (gobreaker's own Execute(func) shape doesn't fit a send-then-await split).
type CircuitBreaker struct {
	threshold uint32
	timeout   time.Duration

	mu sync.Mutex
	cb *gobreaker.TwoStepCircuitBreaker
}

// NewCircuitBreaker builds a breaker that opens after threshold consecutive
// failures and allows a single HalfOpen trial once timeout has elapsed
// since the last failure.
func NewCircuitBreaker(threshold uint32, timeout time.Duration) *CircuitBreaker {
	cb := &CircuitBreaker{threshold: threshold, timeout: timeout}
	cb.cb = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:    "wsrpc",
		Timeout: timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})
	return cb
}

// AllowRequest reports whether a request may proceed, per spec: true in
// Closed; true once (transitioning to HalfOpen) when Open and timeout has
// elapsed; false while that single HalfOpen trial is still outstanding.
// The returned done func must be called exactly
// once with the outcome when the caller is done, mirroring gobreaker's
// two-step protocol (Allow/Before, then done(success)).
func (cb *CircuitBreaker) AllowRequest() (allowed bool, done func(success bool)) {
	before, err := cb.cb.Allow()
	if err != nil {
		return false, func(bool) {}
	}
	return true, before
}

// RecordSuccess resets the breaker to Closed with a zeroed failure count.
// Convenience for callers that don't hold the done func from AllowRequest
// (e.g. health-monitor-driven resets). It goes through AllowRequest, so it
// has no effect while the breaker denies requests (Open before timeout
// has elapsed, or HalfOpen with its trial outstanding).
func (cb *CircuitBreaker) RecordSuccess() {
	if _, done := cb.AllowRequest(); done != nil {
		done(true)
	}
}

// RecordFailure increments the failure counter and moves to Open at
// threshold. Like RecordSuccess it has no effect while the breaker denies
// requests; in particular it does not restart an Open breaker's timeout.
func (cb *CircuitBreaker) RecordFailure() {
	if _, done := cb.AllowRequest(); done != nil {
		done(false)
	}
}

// State reports the breaker's current state.
func (cb *CircuitBreaker) State() BreakerState {
	switch cb.cb.State() {
	case gobreaker.StateClosed:
		return Closed
	case gobreaker.StateHalfOpen:
		return HalfOpen
	default:
		return Open
	}
}

// Guard is a convenience wrapper for the common call/observe pattern: it
// checks AllowRequest, returning CircuitBreakerOpen if denied, and returns a
// completion func the caller must invoke with the outcome.
func (cb *CircuitBreaker) Guard() (done func(success bool), err error) {
	allowed, d := cb.AllowRequest()
	if !allowed {
		return nil, errs.NewResilienceError(errs.CircuitBreakerOpen)
	}
	return d, nil
}
