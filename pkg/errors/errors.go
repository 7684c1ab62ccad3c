// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package errors provides structured error handling for bookshelf.
package errors

import (
	"errors"
	"fmt"
)

// Common error types
var (
	// ErrMalformedBody indicates a request body that is not valid JSON.
	ErrMalformedBody = errors.New("malformed body")

	// ErrStream indicates the request body stream failed before completion.
	ErrStream = errors.New("stream error")

	// ErrUnmatched indicates that no route matched the request path.
	ErrUnmatched = errors.New("no route matched")

	// ErrMethodNotSupported indicates a matched path with an unsupported method.
	ErrMethodNotSupported = errors.New("method not supported")

	// ErrUnavailable indicates a collaborator (e.g. the user store) is unavailable.
	ErrUnavailable = errors.New("service unavailable")

	// ErrTimeout indicates the request body was not received before its deadline.
	ErrTimeout = errors.New("timeout")
)

// Kind classifies an error for the purpose of choosing a response.
type Kind int

const (
	KindInternal Kind = iota
	KindMalformedBody
	KindStream
	KindTimeout
	KindUnmatched
	KindMethodNotSupported
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindMalformedBody:
		return "malformed_body"
	case KindStream:
		return "stream"
	case KindTimeout:
		return "timeout"
	case KindUnmatched:
		return "unmatched"
	case KindMethodNotSupported:
		return "method_not_supported"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// KindOf returns the kind of err. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrMalformedBody):
		return KindMalformedBody
	case errors.Is(err, ErrStream):
		return KindStream
	case errors.Is(err, ErrUnmatched):
		return KindUnmatched
	case errors.Is(err, ErrMethodNotSupported):
		return KindMethodNotSupported
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable
	default:
		return KindInternal
	}
}

// RequestError wraps an error with the request it failed on.
type RequestError struct {
	Op        string // Pipeline stage that failed
	Method    string // HTTP method
	Path      string // URL path
	RequestID string // Request identifier
	Err       error  // Underlying error
}

// Error implements the error interface. The message is the underlying
// error's message so it can be surfaced verbatim when configured to.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// Detail returns a log-friendly description including the request context.
func (e *RequestError) Detail() string {
	if e.RequestID != "" {
		return fmt.Sprintf("%s %s %s [%s]: %v", e.Op, e.Method, e.Path, e.RequestID, e.Err)
	}
	return fmt.Sprintf("%s %s %s: %v", e.Op, e.Method, e.Path, e.Err)
}

// New creates a new RequestError.
func New(op, method, path, requestID string, err error) error {
	if err == nil {
		return nil
	}
	return &RequestError{
		Op:        op,
		Method:    method,
		Path:      path,
		RequestID: requestID,
		Err:       err,
	}
}

// Wrap wraps an error with context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
