// Package resilience hides transient connection failures from RPC and
// application callers: it tracks health via heartbeats, trips a circuit
// breaker on repeated failures, schedules reconnection under a pluggable
// strategy, and buffers outbound messages while disconnected.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cloud-shuttle/wsrpc/internal/rtlog"
	"github.com/cloud-shuttle/wsrpc/transport"
)

// Sender is the narrow outbound capability the ReconnectLoop flushes the
// buffer into once reconnected. transport.Writer satisfies it.
type Sender interface {
	Send(ctx context.Context, m transport.Message) error
}

// Config configures a ReconnectLoop.
type Config struct {
	Strategy             Strategy
	CircuitThreshold     uint32
	CircuitTimeout       time.Duration
	HealthCheckInterval  time.Duration
	HealthTimeout        time.Duration
	BufferCapacity       int
	MaxReconnectAttempts uint // 0 means unlimited
}

// ReconnectLoop runs while the owning client is alive, per spec.md §4.3: it
// waits on a health-check tick or an explicit reconnect request, and on
// either signal (if the circuit breaker permits) computes a delay from the
// strategy, sleeps, reconnects, and on success flushes the buffer in FIFO
// order.
type ReconnectLoop struct {
	cfg     Config
	breaker *CircuitBreaker
	health  *HealthMonitor
	buffer  *MessageBuffer

	connect func(ctx context.Context) error
	sender  func() Sender // returns the current writer, or nil if not yet split

	mu    sync.Mutex
	state transport.State

	reconnectCh chan struct{}
	stopCh      chan struct{}
	stopped     bool
}

// New builds a ReconnectLoop. connect dials the underlying transport;
// sender returns the writer half to flush the buffer into once connected
// (nil until the caller has called Split on the new transport).
func New(cfg Config, connect func(ctx context.Context) error, sender func() Sender) *ReconnectLoop {
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = 5 * time.Second
	}
	return &ReconnectLoop{
		cfg:         cfg,
		breaker:     NewCircuitBreaker(cfg.CircuitThreshold, cfg.CircuitTimeout),
		health:      NewHealthMonitor(cfg.HealthTimeout),
		buffer:      NewMessageBuffer(cfg.BufferCapacity),
		connect:     connect,
		sender:      sender,
		state:       transport.Disconnected,
		reconnectCh: make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
	}
}

// CircuitBreaker exposes the loop's breaker for inspection/tests.
func (r *ReconnectLoop) CircuitBreaker() *CircuitBreaker { return r.breaker }

// Health exposes the loop's health monitor for inspection/tests.
func (r *ReconnectLoop) Health() *HealthMonitor { return r.health }

// Buffer exposes the loop's outbound buffer. Callers push outbound payloads
// here when State() is not Connected.
func (r *ReconnectLoop) Buffer() *MessageBuffer { return r.buffer }

// State reports the observable connection state:
// Disconnected -> Connecting -> Connected -> Reconnecting -> {Connected, Failed}.
func (r *ReconnectLoop) State() transport.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *ReconnectLoop) setState(s transport.State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// NotifyConnected tells the loop that a connection succeeded outside of
// reconnectOnce — the initial Connect, rather than a later reconnect, does
// not go through the breaker-gated retry loop, so it must update State and
// the health monitor itself via this method.
func (r *ReconnectLoop) NotifyConnected() {
	r.setState(transport.Connected)
	r.health.RecordHeartbeat()
}

// RequestReconnect signals the loop to attempt reconnection immediately,
// independent of the health-check tick.
func (r *ReconnectLoop) RequestReconnect() {
	select {
	case r.reconnectCh <- struct{}{}:
	default:
	}
}

// Run drives the loop until ctx is done or Stop is called. Intended to run
// in its own goroutine for the lifetime of the owning client.
func (r *ReconnectLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			if !r.health.IsHealthy() && r.State() == transport.Connected {
				r.reconnectOnce(ctx)
			}
		case <-r.reconnectCh:
			r.reconnectOnce(ctx)
		}
	}
}

// Stop halts Run and closes the buffer.
func (r *ReconnectLoop) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()
	close(r.stopCh)
	r.buffer.Close()
}

func (r *ReconnectLoop) reconnectOnce(ctx context.Context) {
	if _, ok := r.cfg.Strategy.(NoneStrategy); ok {
		r.setState(transport.Failed)
		return
	}

	allowed, done := r.breaker.AllowRequest()
	if !allowed {
		rtlog.Warnf("resilience: circuit breaker open, skipping reconnect attempt")
		return
	}

	r.setState(transport.Reconnecting)
	bo := r.cfg.Strategy.NewBackOff()

	var attempts uint
	for {
		select {
		case <-ctx.Done():
			done(false)
			return
		case <-r.stopCh:
			done(false)
			return
		default:
		}

		d := bo.NextBackOff()
		if d == backoff.Stop {
			r.setState(transport.Failed)
			done(false)
			return
		}
		if d > 0 {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				done(false)
				return
			case <-r.stopCh:
				done(false)
				return
			}
		}

		err := r.connect(ctx)
		attempts++
		if err == nil {
			r.setState(transport.Connected)
			r.health.RecordHeartbeat()
			done(true)
			if ab, ok := bo.(*adaptiveBackOff); ok {
				ab.OnSuccess()
			}
			r.flush(ctx)
			return
		}

		rtlog.Warnf("resilience: reconnect attempt %d failed: %v", attempts, err)
		if ab, ok := bo.(*adaptiveBackOff); ok {
			ab.OnFailure()
		}
		if r.cfg.MaxReconnectAttempts > 0 && attempts >= r.cfg.MaxReconnectAttempts {
			r.setState(transport.Failed)
			done(false)
			return
		}
	}
}

func (r *ReconnectLoop) flush(ctx context.Context) {
	sender := r.sender()
	if sender == nil {
		return
	}
	for _, m := range r.buffer.DrainAll() {
		if err := sender.Send(ctx, m); err != nil {
			rtlog.Errorf("resilience: flush send failed: %v", err)
		}
	}
}

// Send routes an outbound message: if connected it sends directly via
// sender(); otherwise it pushes into the offline buffer, returning
// BufferFull if the buffer is saturated.
func (r *ReconnectLoop) Send(ctx context.Context, m transport.Message) error {
	if r.State() == transport.Connected {
		if sender := r.sender(); sender != nil {
			if err := sender.Send(ctx, m); err == nil {
				return nil
			}
			// fall through to buffering on send failure
		}
	}
	return r.buffer.Push(m)
}
