// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/absmach/bookshelf/pkg/credentials"
	perrors "github.com/absmach/bookshelf/pkg/errors"
	"github.com/absmach/bookshelf/pkg/handler"
	"github.com/absmach/bookshelf/pkg/metrics"
	"github.com/absmach/bookshelf/pkg/users"
)

// Failure reasons reported to metrics and logs.
const (
	reasonMissing  = "missing_credentials"
	reasonNotFound = "not_found"
	reasonError    = "lookup_error"
)

// Authenticator gates handlers behind HTTP Basic credentials checked
// against a users.Finder.
type Authenticator struct {
	finder  users.Finder
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates an Authenticator.
func New(finder users.Finder, logger *slog.Logger, m *metrics.Metrics) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		finder:  finder,
		logger:  logger,
		metrics: m,
	}
}

var _ handler.Middleware = (*Authenticator)(nil).Middleware

// Middleware wraps next behind the credential check. Missing or unknown
// credentials are answered with 401 and an empty body; next is not called.
// Lookup failures other than a miss are returned to the caller.
func (a *Authenticator) Middleware(next handler.Handler) handler.Handler {
	return handler.HandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
		hctx, _ := handler.FromContext(r.Context())
		if hctx != nil {
			hctx.Transition(handler.Authenticating)
		}

		creds, ok := credentials.FromRequest(r)
		if !ok {
			a.reject(w, r, hctx, reasonMissing)
			return nil
		}

		var (
			user users.User
			err  error
		)
		a.metrics.ObserveLookup(func() string {
			user, err = a.finder.FindUser(r.Context(), creds.Username, creds.Password)
			switch {
			case err == nil:
				return "found"
			case errors.Is(err, users.ErrNotFound):
				return "not_found"
			default:
				return "error"
			}
		})

		switch {
		case errors.Is(err, users.ErrNotFound):
			a.reject(w, r, hctx, reasonNotFound)
			return nil
		case err != nil:
			a.metrics.AuthFailed(reasonError)
			return perrors.Wrap(err, "user lookup")
		}

		a.metrics.AuthSucceeded()
		if hctx != nil {
			hctx.Username = user.Username
			hctx.User = user
		}

		return next.ServeRequest(w, r)
	})
}

func (a *Authenticator) reject(w http.ResponseWriter, r *http.Request, hctx *handler.Context, reason string) {
	a.metrics.AuthFailed(reason)

	var requestID string
	if hctx != nil {
		requestID = hctx.RequestID
	}
	a.logger.Debug("authentication failed",
		slog.String("request_id", requestID),
		slog.String("remote", r.RemoteAddr),
		slog.String("reason", reason))

	w.WriteHeader(http.StatusUnauthorized)
}
