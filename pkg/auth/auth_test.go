// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/absmach/bookshelf/pkg/handler"
	"github.com/absmach/bookshelf/pkg/metrics"
	"github.com/absmach/bookshelf/pkg/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type mockFinder struct {
	err          error
	called       bool
	lastUsername string
	lastPassword string
}

func (m *mockFinder) FindUser(ctx context.Context, username, password string) (users.User, error) {
	m.called = true
	m.lastUsername = username
	m.lastPassword = password
	if m.err != nil {
		return users.User{}, m.err
	}
	return users.User{ID: "u-1", Username: username}, nil
}

type mockNext struct {
	called int
	hctx   *handler.Context
}

func (m *mockNext) ServeRequest(w http.ResponseWriter, r *http.Request) error {
	m.called++
	m.hctx, _ = handler.FromContext(r.Context())
	w.WriteHeader(http.StatusCreated)
	_, err := w.Write([]byte("Book created successfully"))
	return err
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func newRequest(method, path string) (*http.Request, *handler.Context) {
	req := httptest.NewRequest(method, path, nil)
	hctx := handler.NewContext("req-1", req.RemoteAddr, nil)
	hctx.Transition(handler.Routing)
	return req.WithContext(handler.WithContext(req.Context(), hctx)), hctx
}

func TestMissingCredentials(t *testing.T) {
	finder := &mockFinder{}
	next := &mockNext{}
	m := metrics.New("test", prometheus.NewRegistry())
	a := New(finder, newLogger(), m)

	req, _ := newRequest(http.MethodDelete, "/authors/7")
	rec := httptest.NewRecorder()

	if err := a.Middleware(next).ServeRequest(rec, req); err != nil {
		t.Fatalf("ServeRequest() error = %v", err)
	}

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("Expected empty body, got '%s'", rec.Body.String())
	}
	if rec.Header().Get("WWW-Authenticate") != "" {
		t.Error("Expected no WWW-Authenticate challenge")
	}
	if finder.called {
		t.Error("Expected lookup not to be called without credentials")
	}
	if next.called != 0 {
		t.Error("Expected handler not to be called")
	}
	if got := testutil.ToFloat64(m.AuthFailures.WithLabelValues(reasonMissing)); got != 1 {
		t.Errorf("Expected 1 missing_credentials failure, got %v", got)
	}
}

func TestUnknownCredentials(t *testing.T) {
	finder := &mockFinder{err: users.ErrNotFound}
	next := &mockNext{}
	a := New(finder, newLogger(), nil)

	req, _ := newRequest(http.MethodPost, "/books/1")
	req.SetBasicAuth("mallory", "guess")
	rec := httptest.NewRecorder()

	if err := a.Middleware(next).ServeRequest(rec, req); err != nil {
		t.Fatalf("ServeRequest() error = %v", err)
	}

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("Expected empty body, got '%s'", rec.Body.String())
	}
	if finder.lastUsername != "mallory" || finder.lastPassword != "guess" {
		t.Errorf("Unexpected lookup arguments %q/%q", finder.lastUsername, finder.lastPassword)
	}
	if next.called != 0 {
		t.Error("Expected handler not to be called")
	}
}

func TestGarbledCredentials(t *testing.T) {
	finder := &mockFinder{err: users.ErrNotFound}
	a := New(finder, newLogger(), nil)

	req, _ := newRequest(http.MethodGet, "/authors")
	req.Header.Set("Authorization", "Basic !!!***")
	rec := httptest.NewRecorder()

	if err := a.Middleware(&mockNext{}).ServeRequest(rec, req); err != nil {
		t.Fatalf("Expected garbled credentials not to error, got %v", err)
	}
	if !finder.called {
		t.Error("Expected lookup to be attempted with the degenerate pair")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rec.Code)
	}
}

func TestValidCredentials(t *testing.T) {
	finder := &mockFinder{}
	next := &mockNext{}
	m := metrics.New("test", prometheus.NewRegistry())
	a := New(finder, newLogger(), m)

	req, hctx := newRequest(http.MethodPost, "/books/1")
	req.SetBasicAuth("alice", "secret")
	rec := httptest.NewRecorder()

	if err := a.Middleware(next).ServeRequest(rec, req); err != nil {
		t.Fatalf("ServeRequest() error = %v", err)
	}

	if next.called != 1 {
		t.Fatalf("Expected handler to be called once, got %d", next.called)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", rec.Code)
	}
	if rec.Body.String() != "Book created successfully" {
		t.Errorf("Unexpected body '%s'", rec.Body.String())
	}
	if hctx.Username != "alice" {
		t.Errorf("Expected username 'alice' on context, got '%s'", hctx.Username)
	}
	if u, ok := hctx.User.(users.User); !ok || u.ID != "u-1" {
		t.Errorf("Expected user record on context, got %#v", hctx.User)
	}
	if hctx.State() != handler.Authenticating {
		t.Errorf("Expected state authenticating, got %s", hctx.State())
	}
	if got := testutil.ToFloat64(m.AuthAttempts.WithLabelValues("success")); got != 1 {
		t.Errorf("Expected 1 successful attempt, got %v", got)
	}
}

func TestLookupFailureEscalates(t *testing.T) {
	storeErr := errors.New("database is locked")
	finder := &mockFinder{err: storeErr}
	next := &mockNext{}
	a := New(finder, newLogger(), nil)

	req, _ := newRequest(http.MethodGet, "/books")
	req.SetBasicAuth("alice", "secret")
	rec := httptest.NewRecorder()

	err := a.Middleware(next).ServeRequest(rec, req)
	if !errors.Is(err, storeErr) {
		t.Fatalf("Expected lookup error to be returned, got %v", err)
	}
	if rec.Body.Len() != 0 || rec.Code != http.StatusOK {
		t.Error("Expected nothing to be written on lookup failure")
	}
	if next.called != 0 {
		t.Error("Expected handler not to be called")
	}
}

func TestWithoutPipelineContext(t *testing.T) {
	a := New(&mockFinder{}, nil, nil)
	next := &mockNext{}

	req := httptest.NewRequest(http.MethodGet, "/books", nil)
	req.SetBasicAuth("alice", "secret")

	if err := a.Middleware(next).ServeRequest(httptest.NewRecorder(), req); err != nil {
		t.Fatalf("ServeRequest() error = %v", err)
	}
	if next.called != 1 {
		t.Error("Expected handler to be called")
	}
}
