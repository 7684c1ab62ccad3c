// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	perrors "github.com/absmach/bookshelf/pkg/errors"
)

var errStore = errors.New("database is locked")

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg Config) (*Breaker, *clock) {
	c := &clock{t: time.Unix(1700000000, 0)}
	b := New(cfg)
	b.now = c.now
	return b, c
}

func fail(context.Context) error    { return errStore }
func succeed(context.Context) error { return nil }

func TestOpensAfterMaxFailures(t *testing.T) {
	b, _ := newTestBreaker(Config{MaxFailures: 3, ResetTimeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.Do(ctx, fail); !errors.Is(err, errStore) {
			t.Fatalf("Expected store error on call %d, got %v", i, err)
		}
	}

	if b.State() != StateOpen {
		t.Fatalf("Expected open, got %s", b.State())
	}

	called := false
	err := b.Do(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Expected ErrOpen, got %v", err)
	}
	if !errors.Is(err, perrors.ErrUnavailable) {
		t.Error("Expected ErrOpen to match ErrUnavailable")
	}
	if called {
		t.Error("Expected fn not to run while open")
	}
	if err := b.Check(ctx); err == nil {
		t.Error("Expected Check to fail while open")
	}
}

func TestSuccessResetsFailures(t *testing.T) {
	b, _ := newTestBreaker(Config{MaxFailures: 2})
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, succeed)
	_ = b.Do(ctx, fail)

	if b.State() != StateClosed {
		t.Errorf("Expected closed, got %s", b.State())
	}
}

func TestIsFailureFilter(t *testing.T) {
	notFound := errors.New("not found")
	b, _ := newTestBreaker(Config{
		MaxFailures: 1,
		IsFailure:   func(err error) bool { return err != nil && !errors.Is(err, notFound) },
	})

	for i := 0; i < 5; i++ {
		_ = b.Do(context.Background(), func(context.Context) error { return notFound })
	}

	if b.State() != StateClosed {
		t.Errorf("Expected filtered errors to keep the circuit closed, got %s", b.State())
	}
}

func TestHalfOpenRecovery(t *testing.T) {
	var transitions []string
	b, c := newTestBreaker(Config{
		MaxFailures:  1,
		ResetTimeout: 10 * time.Second,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	c.advance(5 * time.Second)
	if err := b.Do(ctx, succeed); !errors.Is(err, ErrOpen) {
		t.Fatalf("Expected ErrOpen before reset timeout, got %v", err)
	}

	c.advance(6 * time.Second)
	if err := b.Do(ctx, succeed); err != nil {
		t.Fatalf("Expected probe to succeed, got %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("Expected closed after successful probe, got %s", b.State())
	}

	want := []string{"closed->open", "open->half_open", "half_open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("Expected transitions %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("Transition %d: expected %s, got %s", i, want[i], transitions[i])
		}
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b, c := newTestBreaker(Config{MaxFailures: 1, ResetTimeout: time.Second})
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	c.advance(2 * time.Second)
	_ = b.Do(ctx, fail)

	if b.State() != StateOpen {
		t.Errorf("Expected open after failed probe, got %s", b.State())
	}
}

func TestCancelledContext(t *testing.T) {
	b, _ := newTestBreaker(Config{MaxFailures: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := b.Do(ctx, fail); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("Expected cancellation not to trip the circuit, got %s", b.State())
	}
}
