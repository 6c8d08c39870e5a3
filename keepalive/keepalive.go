// Package keepalive defines the configurable heartbeat/reconnect parameters
// a client uses to notice a broken connection and recover from it. Adapted
// from the teacher's own keepalive package (same pure-config-struct shape,
// doc-comment density, and per-field defaults) but retargeted at this
// runtime's client-to-one-server model: there is no server-side keepalive
// or enforcement policy here, since this runtime implements no wire server
// (spec.md §1 Non-goals).
package keepalive

import (
	"time"

	"github.com/cloud-shuttle/wsrpc/resilience"
	"github.com/cloud-shuttle/wsrpc/transport"
)

// HeartbeatParameters configures how the resilience layer probes liveness
// and schedules reconnection. Mirrors transport.Config's heartbeat/
// reconnect fields so a host can build one in isolation and apply it
// uniformly across transports.
type HeartbeatParameters struct {
	// Interval is how often the client expects a heartbeat signal (a
	// Ping/Pong exchange, or any inbound traffic) before it considers the
	// health monitor's heartbeat stale.
	Interval time.Duration // default 30s

	// Timeout is how long without a heartbeat before the connection is
	// considered unhealthy and a reconnect is scheduled.
	Timeout time.Duration // default 2x Interval

	// MaxReconnectAttempts bounds the retry budget before the resilience
	// layer gives up and transitions to Failed. Zero means unlimited.
	MaxReconnectAttempts uint // default 5

	// PermitWithoutActivity mirrors the teacher's PermitWithoutStream.
	// Neither ApplyToTransport nor ApplyToResilience copies it, and no
	// component reads it: heartbeats are expected whether or not an RPC
	// is in flight, whatever its value.
	PermitWithoutActivity bool // false by default
}

// DefaultHeartbeatParameters returns spec-mandated defaults.
func DefaultHeartbeatParameters() HeartbeatParameters {
	return HeartbeatParameters{
		Interval:             30 * time.Second,
		Timeout:              60 * time.Second,
		MaxReconnectAttempts: 5,
	}
}

// ApplyToTransport copies the heartbeat/reconnect-budget fields onto cfg,
// leaving every other field (URL, Headers, Protocols, ...) untouched.
func (p HeartbeatParameters) ApplyToTransport(cfg transport.Config) transport.Config {
	cfg.HeartbeatInterval = p.Interval
	cfg.MaxReconnectAttempts = p.MaxReconnectAttempts
	return cfg
}

// ApplyToResilience copies the heartbeat/reconnect-budget fields onto cfg's
// HealthMonitor and retry-budget settings, leaving Strategy, CircuitThreshold,
// CircuitTimeout, and BufferCapacity untouched.
func (p HeartbeatParameters) ApplyToResilience(cfg resilience.Config) resilience.Config {
	cfg.HealthCheckInterval = p.Interval
	cfg.HealthTimeout = p.Timeout
	cfg.MaxReconnectAttempts = p.MaxReconnectAttempts
	return cfg
}
