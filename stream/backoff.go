package stream

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// FailureClass selects the reconnect schedule for a failed attempt.
type FailureClass int

const (
	FailureNetwork FailureClass = iota + 1
	FailureHTTP
	FailureRateLimited
	FailureAuth
	FailureInvalid
)

func (c FailureClass) String() string {
	switch c {
	case FailureNetwork:
		return "network"
	case FailureHTTP:
		return "http"
	case FailureRateLimited:
		return "rate_limited"
	case FailureAuth:
		return "auth"
	case FailureInvalid:
		return "invalid_request"
	default:
		return "unknown"
	}
}

// Retryable reports whether the class allows another attempt.
func (c FailureClass) Retryable() bool {
	switch c {
	case FailureNetwork, FailureHTTP, FailureRateLimited:
		return true
	default:
		return false
	}
}

// BackoffConfig holds the reconnect schedules Twitter asks clients to follow.
type BackoffConfig struct {
	NetworkStep        time.Duration
	NetworkMax         time.Duration
	HTTPInitial        time.Duration
	HTTPMax            time.Duration
	RateLimitedInitial time.Duration
	RateLimitedMax     time.Duration
}

// DefaultBackoff returns Twitter's documented reconnect schedule.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		NetworkStep:        250 * time.Millisecond,
		NetworkMax:         16 * time.Second,
		HTTPInitial:        5 * time.Second,
		HTTPMax:            320 * time.Second,
		RateLimitedInitial: time.Minute,
		RateLimitedMax:     960 * time.Second,
	}
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	def := DefaultBackoff()
	if c.NetworkStep <= 0 {
		c.NetworkStep = def.NetworkStep
	}
	if c.NetworkMax <= 0 {
		c.NetworkMax = def.NetworkMax
	}
	if c.HTTPInitial <= 0 {
		c.HTTPInitial = def.HTTPInitial
	}
	if c.HTTPMax <= 0 {
		c.HTTPMax = def.HTTPMax
	}
	if c.RateLimitedInitial <= 0 {
		c.RateLimitedInitial = def.RateLimitedInitial
	}
	if c.RateLimitedMax <= 0 {
		c.RateLimitedMax = def.RateLimitedMax
	}
	return c
}

// linearBackOff grows by a fixed step up to a ceiling.
type linearBackOff struct {
	step    time.Duration
	max     time.Duration
	current time.Duration
}

var _ backoff.BackOff = (*linearBackOff)(nil)

func (b *linearBackOff) NextBackOff() time.Duration {
	b.current += b.step
	if b.current > b.max {
		b.current = b.max
	}
	return b.current
}

func (b *linearBackOff) Reset() {
	b.current = 0
}

func newExponential(initial, ceiling time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = ceiling
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// reconnectPolicy keeps one schedule per retryable failure class.
type reconnectPolicy struct {
	schedules map[FailureClass]backoff.BackOff
	ceilings  map[FailureClass]time.Duration
}

func newReconnectPolicy(cfg BackoffConfig) *reconnectPolicy {
	cfg = cfg.withDefaults()
	return &reconnectPolicy{
		schedules: map[FailureClass]backoff.BackOff{
			FailureNetwork:     &linearBackOff{step: cfg.NetworkStep, max: cfg.NetworkMax, current: 0},
			FailureHTTP:        newExponential(cfg.HTTPInitial, cfg.HTTPMax),
			FailureRateLimited: newExponential(cfg.RateLimitedInitial, cfg.RateLimitedMax),
		},
		ceilings: map[FailureClass]time.Duration{
			FailureNetwork:     cfg.NetworkMax,
			FailureHTTP:        cfg.HTTPMax,
			FailureRateLimited: cfg.RateLimitedMax,
		},
	}
}

// next returns the delay before the next attempt. ok is false for classes
// that must not be retried.
func (p *reconnectPolicy) next(class FailureClass) (time.Duration, bool) {
	schedule, ok := p.schedules[class]
	if !ok {
		return 0, false
	}
	delay := schedule.NextBackOff()
	if delay == backoff.Stop || delay > p.ceilings[class] {
		delay = p.ceilings[class]
	}
	return delay, true
}

// reset restarts every schedule after a connection reached Open.
func (p *reconnectPolicy) reset() {
	for _, schedule := range p.schedules {
		schedule.Reset()
	}
}
