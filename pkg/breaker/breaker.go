// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package breaker provides a circuit breaker for calls into user stores.
package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/absmach/bookshelf/pkg/errors"
)

// ErrOpen is returned when the circuit breaker rejects a call.
var ErrOpen = fmt.Errorf("circuit breaker is open: %w", errors.ErrUnavailable)

// State represents the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker configuration.
type Config struct {
	// MaxFailures is the number of consecutive failures before opening.
	MaxFailures int
	// ResetTimeout is how long the circuit stays open before a probe is let through.
	ResetTimeout time.Duration
	// SuccessThreshold is the number of consecutive successes in HalfOpen before closing.
	SuccessThreshold int
	// IsFailure decides whether an error counts against the circuit.
	// Defaults to any non-nil error.
	IsFailure func(error) bool
	// OnStateChange is called after each transition, outside the lock.
	OnStateChange func(from, to State)
}

// Breaker implements the circuit breaker pattern.
type Breaker struct {
	mu        sync.Mutex
	cfg       Config
	state     State
	failures  int
	successes int
	openedAt  time.Time
	probing   bool
	now       func() time.Time
}

// New creates a new circuit breaker.
func New(cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}

	return &Breaker{
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
	}
}

// Do runs fn if the circuit allows it and records the outcome.
// A cancelled ctx is returned as is and does not count as a failure.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	allowed, change := b.admit()
	b.mu.Unlock()
	if change != nil {
		change()
	}
	if !allowed {
		return ErrOpen
	}

	err := fn(ctx)

	b.mu.Lock()
	switch {
	case err != nil && ctx.Err() != nil:
		b.probing = false
	case b.cfg.IsFailure(err):
		change = b.onFailure()
	default:
		change = b.onSuccess()
	}
	b.mu.Unlock()
	if change != nil {
		change()
	}

	return err
}

// admit decides whether a call may proceed. HalfOpen lets one probe through at a time.
func (b *Breaker) admit() (bool, func()) {
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return false, nil
		}
		change := b.setState(StateHalfOpen)
		b.probing = true
		return true, change
	case StateHalfOpen:
		if b.probing {
			return false, nil
		}
		b.probing = true
		return true, nil
	default:
		return true, nil
	}
}

func (b *Breaker) onFailure() func() {
	b.probing = false
	b.successes = 0
	b.failures++

	switch b.state {
	case StateHalfOpen:
		return b.setState(StateOpen)
	case StateClosed:
		if b.failures >= b.cfg.MaxFailures {
			return b.setState(StateOpen)
		}
	}
	return nil
}

func (b *Breaker) onSuccess() func() {
	b.probing = false
	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			return b.setState(StateClosed)
		}
	}
	return nil
}

// setState must be called with mu held. The returned func, if any,
// notifies the observer and must be called after unlocking.
func (b *Breaker) setState(to State) func() {
	from := b.state
	if from == to {
		return nil
	}

	b.state = to
	switch to {
	case StateOpen:
		b.openedAt = b.now()
	case StateClosed:
		b.failures = 0
		b.successes = 0
	case StateHalfOpen:
		b.successes = 0
	}

	if b.cfg.OnStateChange == nil {
		return nil
	}
	notify := b.cfg.OnStateChange
	return func() { notify(from, to) }
}

// State returns the current state of the circuit breaker.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Check reports an error while the circuit is open. It is meant for readiness probes.
func (b *Breaker) Check(ctx context.Context) error {
	if s := b.State(); s == StateOpen {
		return ErrOpen
	}
	return nil
}
