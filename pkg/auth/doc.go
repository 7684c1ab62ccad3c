// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package auth provides the Basic-auth gate placed in front of every route.
//
// The Authenticator is a handler.Middleware:
//
//  1. No Authorization header: 401 with an empty body.
//  2. The lookup reports users.ErrNotFound: 401 with an empty body.
//  3. The lookup finds a user: the user is attached to the request's
//     handler.Context and the wrapped handler runs.
//
// No WWW-Authenticate challenge is sent. Any other lookup error is returned
// so the pipeline's error boundary can answer it.
package auth
