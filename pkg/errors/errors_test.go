// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"fmt"
	"io"
	"os"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindInternal},
		{"unknown", errors.New("boom"), KindInternal},
		{"malformed", fmt.Errorf("%w: unexpected end of JSON input", ErrMalformedBody), KindMalformedBody},
		{"stream", fmt.Errorf("%w: %w", ErrStream, io.ErrUnexpectedEOF), KindStream},
		{"stream deadline", fmt.Errorf("%w: %w: %w", ErrStream, ErrTimeout, os.ErrDeadlineExceeded), KindTimeout},
		{"stream without timeout", fmt.Errorf("%w: %w", ErrStream, os.ErrDeadlineExceeded), KindStream},
		{"deadline alone", os.ErrDeadlineExceeded, KindInternal},
		{"timeout", ErrTimeout, KindTimeout},
		{"unavailable", Wrap(ErrUnavailable, "user lookup"), KindUnavailable},
		{"unmatched", ErrUnmatched, KindUnmatched},
		{"method", ErrMethodNotSupported, KindMethodNotSupported},
		{"wrapped in request error", New("receive", "POST", "/books/1", "id", ErrMalformedBody), KindMalformedBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRequestError(t *testing.T) {
	cause := errors.New("disk on fire")
	err := New("handle", "GET", "/books", "req-1", cause)

	if err.Error() != "disk on fire" {
		t.Errorf("Expected message of the cause, got '%s'", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("Expected RequestError to unwrap to its cause")
	}

	var rerr *RequestError
	if !errors.As(err, &rerr) {
		t.Fatal("Expected errors.As to find RequestError")
	}
	if want := "handle GET /books [req-1]: disk on fire"; rerr.Detail() != want {
		t.Errorf("Expected detail '%s', got '%s'", want, rerr.Detail())
	}

	if New("handle", "GET", "/", "", nil) != nil {
		t.Error("Expected New(nil) to return nil")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("Expected Wrap(nil) to return nil")
	}

	err := Wrap(ErrStream, "read body")
	if err.Error() != "read body: stream error" {
		t.Errorf("Unexpected message '%s'", err.Error())
	}
	if !errors.Is(err, ErrStream) {
		t.Error("Expected wrapped error to match ErrStream")
	}
}
