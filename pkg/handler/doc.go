// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package handler provides the request-handling contract shared by the
// pipeline, the router, the authenticator and the resource handlers.
//
// # Handlers
//
// A Handler writes a response or returns an error. Errors are not turned
// into responses where they occur; they travel back to the pipeline, which
// owns the single error boundary:
//
//	func list(w http.ResponseWriter, r *http.Request) error {
//		w.Header().Set("Content-Type", "application/json")
//		_, err := w.Write([]byte(`{"books":[]}`))
//		return err
//	}
//
// # Middleware
//
// A Middleware takes the next Handler and returns a new one. The
// authenticator is a Middleware, so it composes in front of any route:
//
//	h := handler.Chain(handler.HandlerFunc(list), authn.Middleware)
//
// # Context
//
// The pipeline attaches a *Context to every request before routing:
//   - RequestID: from X-Request-ID, or generated
//   - Body, BodySize: the parsed payload and its raw size
//   - Username, User: set after a successful authentication
//   - Route: the matched group operation
//
// The Context also tracks the request state:
//
//	Receiving → Routing → Authenticating → Handling → Responded
//	                  any stage ─────────────────────→ Failed
package handler
