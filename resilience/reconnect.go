package resilience

import (
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Strategy is the sum type of reconnection strategies from spec.md §3:
// ExponentialBackoff, Adaptive, Fixed, or None. Each produces the next
// backoff.BackOff to drive a reconnection attempt sequence.
type Strategy interface {
	NewBackOff() backoff.BackOff
}

// ExponentialBackoffStrategy computes delay_n = min(initial*2^n, max),
// jittered by +/- jitterRatio. Grounded on backoff.ExponentialBackOff,
// configured to the spec's own parameters rather than the library's
// randomized defaults.
type ExponentialBackoffStrategy struct {
	Initial     time.Duration
	Max         time.Duration
	JitterRatio float64 // in [0,1]
}

func (s ExponentialBackoffStrategy) NewBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.Initial
	b.MaxInterval = s.Max
	b.Multiplier = 2
	b.RandomizationFactor = s.JitterRatio
	b.MaxElapsedTime = 0 // the ReconnectLoop owns the retry budget, not the backoff
	b.Reset()            // NewExponentialBackOff already reset to the library default interval
	return b
}

// FixedStrategy retries at a constant interval.
type FixedStrategy struct {
	Delay time.Duration
}

func (s FixedStrategy) NewBackOff() backoff.BackOff {
	return backoff.NewConstantBackOff(s.Delay)
}

// NoneStrategy never reconnects: its BackOff signals Stop immediately.
type NoneStrategy struct{}

func (NoneStrategy) NewBackOff() backoff.BackOff { return &stopBackOff{} }

type stopBackOff struct{}

func (*stopBackOff) NextBackOff() time.Duration { return backoff.Stop }
func (*stopBackOff) Reset()                     {}

// AdaptiveStrategy shortens backoff after consecutive successes and
// lengthens it after consecutive failures. backoff/v4 has no such variant,
// so this is hand-rolled on top of the library's BackOff interface,
// grounded on spec.md §3's description rather than a single upstream type.
//
// The ReconnectLoop builds a fresh BackOff for every reconnect episode, so
// streaks do not carry over between episodes: failures lengthen the delay
// within one episode, but a success ends its episode and the shortened
// delay is not used by the next one.
type AdaptiveStrategy struct {
	SuccessThreshold int
	FailureThreshold int
	Initial          time.Duration
	Min              time.Duration
	Max              time.Duration
}

func (s AdaptiveStrategy) NewBackOff() backoff.BackOff {
	if s.Initial <= 0 {
		s.Initial = 500 * time.Millisecond
	}
	if s.Min <= 0 {
		s.Min = 100 * time.Millisecond
	}
	if s.Max <= 0 {
		s.Max = 30 * time.Second
	}
	return &adaptiveBackOff{cfg: s, cur: s.Initial}
}

type adaptiveBackOff struct {
	cfg              AdaptiveStrategy
	cur              time.Duration
	successStreak    int
	failureStreak    int
}

func (a *adaptiveBackOff) NextBackOff() time.Duration {
	d := a.cur
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	return d + jitter
}

func (a *adaptiveBackOff) Reset() {
	a.cur = a.cfg.Initial
	a.successStreak = 0
	a.failureStreak = 0
}

// OnSuccess shortens the backoff once SuccessThreshold consecutive
// successes have been observed. Called by the ReconnectLoop after each
// successful reconnect.
func (a *adaptiveBackOff) OnSuccess() {
	a.failureStreak = 0
	a.successStreak++
	if a.successStreak >= a.cfg.SuccessThreshold {
		a.successStreak = 0
		a.cur /= 2
		if a.cur < a.cfg.Min {
			a.cur = a.cfg.Min
		}
	}
}

// OnFailure lengthens the backoff once FailureThreshold consecutive
// failures have been observed.
func (a *adaptiveBackOff) OnFailure() {
	a.successStreak = 0
	a.failureStreak++
	if a.failureStreak >= a.cfg.FailureThreshold {
		a.failureStreak = 0
		a.cur *= 2
		if a.cur > a.cfg.Max {
			a.cur = a.cfg.Max
		}
	}
}
