// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/absmach/bookshelf/pkg/body"
	"github.com/absmach/bookshelf/pkg/errors"
	"github.com/absmach/bookshelf/pkg/handler"
	"github.com/absmach/bookshelf/pkg/metrics"
	"github.com/absmach/bookshelf/pkg/router"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// ErrorMode selects how the error boundary answers escaped errors.
type ErrorMode string

const (
	// ErrorsTyped maps each error kind to its own status with a generic message.
	ErrorsTyped ErrorMode = "typed"
	// ErrorsLeaky answers every escaped error with 500 and the error's message.
	ErrorsLeaky ErrorMode = "leaky"
)

// ParseErrorMode parses s as an ErrorMode.
func ParseErrorMode(s string) (ErrorMode, error) {
	switch m := ErrorMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ErrorsTyped, ErrorsLeaky:
		return m, nil
	case "":
		return ErrorsTyped, nil
	default:
		return "", fmt.Errorf("unknown error mode %q", s)
	}
}

// UnmatchedMode selects how requests that match no route are answered.
type UnmatchedMode string

const (
	// UnmatchedExplicit answers with 404, or 405 with an Allow header.
	UnmatchedExplicit UnmatchedMode = "explicit"
	// UnmatchedSilent writes nothing and leaves the request in the Routing state.
	UnmatchedSilent UnmatchedMode = "silent"
)

// ParseUnmatchedMode parses s as an UnmatchedMode.
func ParseUnmatchedMode(s string) (UnmatchedMode, error) {
	switch m := UnmatchedMode(strings.ToLower(strings.TrimSpace(s))); m {
	case UnmatchedExplicit, UnmatchedSilent:
		return m, nil
	case "":
		return UnmatchedExplicit, nil
	default:
		return "", fmt.Errorf("unknown unmatched mode %q", s)
	}
}

// Config holds pipeline configuration.
type Config struct {
	ErrorMode     ErrorMode
	UnmatchedMode UnmatchedMode

	// BodyReadTimeout bounds reading the request body. Zero disables it.
	BodyReadTimeout time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Observe, if set, is called on every state transition.
	Observe func(hctx *handler.Context, from, to handler.State)
}

// Pipeline reads the body, routes, and answers errors for every request.
type Pipeline struct {
	router  *router.Router
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

var _ http.Handler = (*Pipeline)(nil)

// New creates a Pipeline over rt.
func New(rt *router.Router, cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ErrorMode == "" {
		cfg.ErrorMode = ErrorsTyped
	}
	if cfg.UnmatchedMode == "" {
		cfg.UnmatchedMode = UnmatchedExplicit
	}

	return &Pipeline{
		router:  rt,
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// ServeHTTP implements http.Handler.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}

	var hctx *handler.Context
	hctx = handler.NewContext(requestID, r.RemoteAddr, func(from, to handler.State) {
		if p.cfg.Observe != nil {
			p.cfg.Observe(hctx, from, to)
		}
	})

	tw := newTrackingWriter(w)
	tw.Header().Set("X-Request-ID", requestID)

	p.metrics.ObserveRequest(r.Method, func() (string, int) {
		p.serve(tw, r, hctx)
		return hctx.Route, tw.status
	})
	p.metrics.Outcome(hctx.State().String())

	p.logger.Info("request completed",
		slog.String("request_id", requestID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("route", hctx.Route),
		slog.Int("status", tw.status),
		slog.String("state", hctx.State().String()),
		slog.String("body_size", humanize.Bytes(uint64(hctx.BodySize))),
		slog.Duration("duration", time.Since(start)))
}

func (p *Pipeline) serve(w *trackingWriter, r *http.Request, hctx *handler.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			p.fail(w, r, hctx, "handle", fmt.Errorf("panic: %v", rec))
		}
	}()

	payload, err := p.receive(w, r)
	if err != nil {
		p.fail(w, r, hctx, "receive", err)
		return
	}
	hctx.Body = payload.Value
	hctx.BodySize = payload.Size
	p.metrics.ObserveBody(payload.Size)
	r = r.WithContext(handler.WithContext(r.Context(), hctx))

	hctx.Transition(handler.Routing)
	m := p.router.Route(r)
	switch m.Outcome {
	case router.NoRoute:
		p.unmatched(w, r, hctx, errors.ErrUnmatched, nil)
		return
	case router.MethodNotSupported:
		p.unmatched(w, r, hctx, errors.ErrMethodNotSupported, m.Allow)
		return
	}

	hctx.Route = m.Route
	if err := m.Handler.ServeRequest(w, r); err != nil {
		p.fail(w, r, hctx, "handle", err)
		return
	}
	hctx.Transition(handler.Responded)
}

// receive reads the whole body, under a read deadline if one is configured.
func (p *Pipeline) receive(w http.ResponseWriter, r *http.Request) (body.Payload, error) {
	if p.cfg.BodyReadTimeout > 0 {
		rc := http.NewResponseController(w)
		if err := rc.SetReadDeadline(time.Now().Add(p.cfg.BodyReadTimeout)); err != nil {
			p.logger.Debug("body read deadline not applied", slog.String("error", err.Error()))
		} else {
			defer rc.SetReadDeadline(time.Time{})
		}
	}

	return body.Read(r.Body)
}

// unmatched answers a request no route accepted. err is errors.ErrUnmatched
// or errors.ErrMethodNotSupported.
func (p *Pipeline) unmatched(w *trackingWriter, r *http.Request, hctx *handler.Context, err error, allow []string) {
	kind := errors.KindOf(err)
	p.metrics.PipelineError(kind.String())

	if p.cfg.UnmatchedMode == UnmatchedSilent {
		p.logger.Warn("no route matched, request left unanswered",
			slog.String("request_id", hctx.RequestID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("kind", kind.String()))
		return
	}

	status := http.StatusNotFound
	if kind == errors.KindMethodNotSupported {
		status = http.StatusMethodNotAllowed
	}

	if len(allow) > 0 {
		w.Header().Set("Allow", strings.Join(allow, ", "))
	}
	writeText(w, status, http.StatusText(status))
	hctx.Transition(handler.Responded)
}

// fail is the error boundary. It writes an error response unless one has
// already started.
func (p *Pipeline) fail(w *trackingWriter, r *http.Request, hctx *handler.Context, op string, err error) {
	err = errors.New(op, r.Method, r.URL.Path, hctx.RequestID, err)
	kind := errors.KindOf(err)
	p.metrics.PipelineError(kind.String())
	hctx.Transition(handler.Failed)

	detail := err.(*errors.RequestError).Detail()
	if w.started() {
		p.logger.Error("request failed after response started",
			slog.String("kind", kind.String()),
			slog.String("error", detail))
		return
	}

	status, msg := p.errorResponse(kind, err)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	p.logger.Log(r.Context(), level, "request failed",
		slog.String("kind", kind.String()),
		slog.Int("status", status),
		slog.String("error", detail))

	writeText(w, status, msg)
}

func (p *Pipeline) errorResponse(kind errors.Kind, err error) (int, string) {
	if p.cfg.ErrorMode == ErrorsLeaky {
		return http.StatusInternalServerError, err.Error()
	}

	switch kind {
	case errors.KindMalformedBody:
		return http.StatusBadRequest, errors.ErrMalformedBody.Error()
	case errors.KindStream:
		return http.StatusBadRequest, errors.ErrStream.Error()
	case errors.KindTimeout:
		return http.StatusRequestTimeout, http.StatusText(http.StatusRequestTimeout)
	case errors.KindUnavailable:
		return http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable)
	default:
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, msg)
}
