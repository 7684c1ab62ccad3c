// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package main runs the bookshelf API and its admin server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/absmach/bookshelf"
	"github.com/absmach/bookshelf/examples/simple"
	"github.com/absmach/bookshelf/pkg/auth"
	"github.com/absmach/bookshelf/pkg/breaker"
	"github.com/absmach/bookshelf/pkg/health"
	"github.com/absmach/bookshelf/pkg/metrics"
	"github.com/absmach/bookshelf/pkg/pipeline"
	"github.com/absmach/bookshelf/pkg/router"
	"github.com/absmach/bookshelf/pkg/server"
	"github.com/absmach/bookshelf/pkg/users"
	"github.com/absmach/bookshelf/pkg/users/file"
	"github.com/absmach/bookshelf/pkg/users/sqlite"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const (
	envPrefix   = "BOOKSHELF_"
	serviceName = "bookshelf"
	breakerName = "users"
)

func main() {
	// .env file is optional
	envErr := godotenv.Load()

	cfg, err := bookshelf.NewConfig(env.Options{Prefix: envPrefix})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	if envErr != nil {
		logger.Debug("no .env file found, using environment variables")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(serviceName, reg)

	checker := health.NewChecker(5*time.Second, 2*time.Second)

	finder, closeFinder, err := newFinder(ctx, g, cfg, checker, logger, m)
	if err != nil {
		logger.Error("failed to create users store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeFinder()

	cb := breaker.New(breaker.Config{
		MaxFailures:  cfg.BreakerMaxFailures,
		ResetTimeout: cfg.BreakerResetTimeout,
		IsFailure:    users.IsFailure,
		OnStateChange: func(from, to breaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", breakerName),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			m.BreakerStateChanged(breakerName, int(to), to == breaker.StateOpen)
		},
	})
	checker.Register("users_breaker", false, cb.Check)

	authn := auth.New(users.Guard(finder, cb), logger, m)
	rt, err := router.New(authn.Middleware, simple.Books(logger).Group(), simple.Authors(logger).Group())
	if err != nil {
		logger.Error("failed to create router", slog.String("error", err.Error()))
		os.Exit(1)
	}

	errorMode, err := pipeline.ParseErrorMode(cfg.ErrorMode)
	if err != nil {
		logger.Error("invalid error mode", slog.String("error", err.Error()))
		os.Exit(1)
	}
	unmatchedMode, err := pipeline.ParseUnmatchedMode(cfg.UnmatchedMode)
	if err != nil {
		logger.Error("invalid unmatched mode", slog.String("error", err.Error()))
		os.Exit(1)
	}

	p := pipeline.New(rt, pipeline.Config{
		ErrorMode:       errorMode,
		UnmatchedMode:   unmatchedMode,
		BodyReadTimeout: cfg.BodyReadTimeout,
		Logger:          logger,
		Metrics:         m,
	})

	api := server.New(server.Config{
		Name:            "api",
		Host:            cfg.HTTPHost,
		Port:            cfg.HTTPPort,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          logger,
	}, p)
	g.Go(func() error {
		return api.Listen(ctx)
	})

	if cfg.AdminEnabled {
		admin := server.New(server.Config{
			Name:            "admin",
			Host:            cfg.AdminHost,
			Port:            cfg.AdminPort,
			ShutdownTimeout: cfg.ShutdownTimeout,
			Logger:          logger,
		}, adminHandler(reg, checker))
		g.Go(func() error {
			return admin.Listen(ctx)
		})
	} else {
		logger.Info("admin server disabled")
	}

	logger.Info("bookshelf service starting",
		slog.String("users_backend", cfg.UsersBackend),
		slog.String("error_mode", string(errorMode)),
		slog.String("unmatched_mode", string(unmatchedMode)))

	g.Go(func() error {
		return StopSignalHandler(ctx, cancel, logger)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("bookshelf service terminated with error: %s", err))
		closeFinder()
		os.Exit(1)
	}
	logger.Info("bookshelf service stopped")
}

// newFinder builds the configured users store. The returned close function
// is safe to call more than once.
func newFinder(ctx context.Context, g *errgroup.Group, cfg bookshelf.Config, checker *health.Checker, logger *slog.Logger, m *metrics.Metrics) (users.Finder, func(), error) {
	noop := func() {}

	switch cfg.UsersBackend {
	case bookshelf.BackendFile:
		store, err := file.New(cfg.UsersFile, logger, m)
		if err != nil {
			return nil, noop, err
		}
		checker.Register("users_file", true, store.Check)
		if cfg.UsersWatch {
			g.Go(func() error {
				return store.Watch(ctx)
			})
		}
		logger.Info("users loaded from file",
			slog.String("path", cfg.UsersFile),
			slog.Int("count", store.Len()))
		return store, noop, nil

	case bookshelf.BackendSQLite:
		store, err := sqlite.Open(ctx, cfg.UsersDB)
		if err != nil {
			return nil, noop, err
		}
		checker.Register("users_db", true, func(ctx context.Context) error {
			n, err := store.Count(ctx)
			if err != nil {
				return err
			}
			m.SetUsersLoaded(bookshelf.BackendSQLite, n)
			return nil
		})
		logger.Info("users database opened", slog.String("path", cfg.UsersDB))

		closed := false
		return store, func() {
			if closed {
				return
			}
			closed = true
			if err := store.Close(); err != nil {
				logger.Error("failed to close users database", slog.String("error", err.Error()))
			}
		}, nil

	default:
		entries, err := users.ParseList(cfg.Users)
		if err != nil {
			return nil, noop, err
		}
		store := users.NewStatic(entries)
		if store.Len() == 0 {
			logger.Warn("no users configured, every request will be rejected")
		}
		m.SetUsersLoaded(bookshelf.BackendStatic, store.Len())
		logger.Info("static users configured", slog.String("usernames", strings.Join(store.Usernames(), ",")))
		return store, noop, nil
	}
}

func adminHandler(reg *prometheus.Registry, checker *health.Checker) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/health", checker.Handler())
	mux.HandleFunc("/ready", checker.ReadinessHandler())
	mux.HandleFunc("/live", health.LivenessHandler())
	return mux
}

// setupLogger creates a structured logger with the specified level and format.
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func StopSignalHandler(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger) error {
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-c:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
		return nil
	case <-ctx.Done():
		return nil
	}
}
