package agent

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ReconnectPolicy is the delay schedule between hub sessions. Delays grow by
// Multiplier up to MaxDelay, each randomized by +/- Jitter. Multiplier 1 with
// Jitter 0 is a fixed delay.
type ReconnectPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64
}

// DefaultReconnectPolicy starts at five seconds and caps at two minutes.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		InitialDelay: 5 * time.Second,
		MaxDelay:     2 * time.Minute,
		Multiplier:   2,
		Jitter:       0.2,
	}
}

// NewBackOff builds a schedule that never gives up.
func (p ReconnectPolicy) NewBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.Jitter
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
