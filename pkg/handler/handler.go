// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"net/http"
)

// State is a request's position in the pipeline.
type State int

const (
	Receiving State = iota
	Routing
	Authenticating
	Handling
	Responded
	Failed
)

func (s State) String() string {
	switch s {
	case Receiving:
		return "receiving"
	case Routing:
		return "routing"
	case Authenticating:
		return "authenticating"
	case Handling:
		return "handling"
	case Responded:
		return "responded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can follow s.
func (s State) Terminal() bool {
	return s == Responded || s == Failed
}

// Context contains request metadata attached by the pipeline.
// It travels in the request's context.Context and is request-local.
type Context struct {
	// RequestID is taken from X-Request-ID or generated
	RequestID string

	// RemoteAddr is the client's network address
	RemoteAddr string

	// Body is the parsed request payload, attached once before routing
	Body any

	// BodySize is the number of bytes read from the request body
	BodySize int

	// Username is set by the authenticator after a successful lookup
	Username string

	// User is the opaque record returned by the user lookup
	User any

	// Route names the matched group operation (e.g. "books.create")
	Route string

	state   State
	observe func(from, to State)
}

// NewContext creates a Context in the Receiving state. observe, if not nil,
// is called on every transition.
func NewContext(requestID, remoteAddr string, observe func(from, to State)) *Context {
	return &Context{
		RequestID:  requestID,
		RemoteAddr: remoteAddr,
		state:      Receiving,
		observe:    observe,
	}
}

// State returns the current pipeline state.
func (c *Context) State() State {
	return c.state
}

// Transition moves the request to the next state. Transitions out of a
// terminal state are ignored.
func (c *Context) Transition(to State) {
	if c.state.Terminal() || c.state == to {
		return
	}
	from := c.state
	c.state = to
	if c.observe != nil {
		c.observe(from, to)
	}
}

type contextKey struct{}

// WithContext returns a copy of ctx carrying hctx.
func WithContext(ctx context.Context, hctx *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, hctx)
}

// FromContext returns the Context attached to ctx, if any.
func FromContext(ctx context.Context) (*Context, bool) {
	hctx, ok := ctx.Value(contextKey{}).(*Context)
	return hctx, ok
}

// Handler serves a request. A returned error is reported to the pipeline's
// error boundary, which decides the response if nothing has been written yet.
type Handler interface {
	ServeRequest(w http.ResponseWriter, r *http.Request) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

var _ Handler = HandlerFunc(nil)

// ServeRequest calls f(w, r).
func (f HandlerFunc) ServeRequest(w http.ResponseWriter, r *http.Request) error {
	return f(w, r)
}

// Middleware wraps a Handler with additional behavior.
type Middleware func(Handler) Handler

// Chain wraps h with mws. The first middleware is the outermost.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}

// Enter returns a middleware that moves the request to state s before
// calling the next handler.
func Enter(s State) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
			if hctx, ok := FromContext(r.Context()); ok {
				hctx.Transition(s)
			}
			return next.ServeRequest(w, r)
		})
	}
}

// Noop is a Handler that does nothing. Useful for testing.
var Noop Handler = HandlerFunc(func(http.ResponseWriter, *http.Request) error {
	return nil
})
