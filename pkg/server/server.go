// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package server runs an http.Handler until its context is cancelled.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Config holds configuration for an HTTP server.
type Config struct {
	Name              string
	Host              string
	Port              string
	ShutdownTimeout   time.Duration
	ReadHeaderTimeout time.Duration
	Logger            *slog.Logger
}

// Server serves one handler on one address.
type Server struct {
	name    string
	server  *http.Server
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Server for h.
func New(cfg Config, h http.Handler) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = "http"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}

	return &Server{
		name: cfg.Name,
		server: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		},
		timeout: cfg.ShutdownTimeout,
		logger:  cfg.Logger,
	}
}

// Listen binds the configured address and serves until ctx is cancelled.
func (s *Server) Listen(ctx context.Context) error {
	l, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is cancelled, then shuts down gracefully
// within the shutdown timeout.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.logger.Info("server started",
		slog.String("server", s.name),
		slog.String("address", l.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(l)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, closing server", slog.String("server", s.name))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during shutdown",
				slog.String("server", s.name),
				slog.String("error", err.Error()))
			return err
		}

		s.logger.Info("server shutdown complete", slog.String("server", s.name))
		return nil

	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
