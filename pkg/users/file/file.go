// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package file provides a user store backed by a YAML file.
//
// The file lists users with either a plaintext password or a bcrypt hash:
//
//	users:
//	  - username: alice
//	    password: secret
//	  - username: bob
//	    password_hash: $2a$10$...
//
// Watch reloads the file when it changes. A reload that fails keeps the
// previously loaded users.
package file

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/absmach/bookshelf/pkg/metrics"
	"github.com/absmach/bookshelf/pkg/users"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

const storeName = "file"

// DefaultDebounce is the delay between the last change event and a reload.
const DefaultDebounce = 200 * time.Millisecond

type entry struct {
	Username     string `yaml:"username"`
	Password     string `yaml:"password,omitempty"`
	PasswordHash string `yaml:"password_hash,omitempty"`
}

type document struct {
	Users []entry `yaml:"users"`
}

// Store is a users.Finder over a YAML file.
type Store struct {
	path     string
	logger   *slog.Logger
	metrics  *metrics.Metrics
	debounce time.Duration

	mu    sync.RWMutex
	users map[string]entry
}

var _ users.Finder = (*Store)(nil)

// New loads path and returns a Store over it.
func New(path string, logger *slog.Logger, m *metrics.Metrics) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		path:     path,
		logger:   logger,
		metrics:  m,
		debounce: DefaultDebounce,
	}
	if err := s.Load(); err != nil {
		return nil, err
	}

	return s, nil
}

// Load reads and validates the users file and replaces the current users.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read users file: %w", err)
	}

	loaded, err := parse(data)
	if err != nil {
		return fmt.Errorf("failed to parse users file %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.users = loaded
	s.mu.Unlock()

	s.metrics.SetUsersLoaded(storeName, len(loaded))
	s.logger.Info("users file loaded",
		slog.String("path", s.path),
		slog.Int("users", len(loaded)))

	return nil
}

func parse(data []byte) (map[string]entry, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	loaded := make(map[string]entry, len(doc.Users))
	for i, e := range doc.Users {
		if e.Username == "" {
			return nil, fmt.Errorf("entry %d: missing username", i)
		}
		if _, dup := loaded[e.Username]; dup {
			return nil, fmt.Errorf("entry %d: duplicate user %q", i, e.Username)
		}
		if (e.Password == "") == (e.PasswordHash == "") {
			return nil, fmt.Errorf("entry %d: exactly one of password and password_hash is required", i)
		}
		if e.PasswordHash != "" {
			if _, err := bcrypt.Cost([]byte(e.PasswordHash)); err != nil {
				return nil, fmt.Errorf("entry %d: invalid password_hash: %w", i, err)
			}
		}
		loaded[e.Username] = e
	}

	return loaded, nil
}

// FindUser implements users.Finder.
func (s *Store) FindUser(ctx context.Context, username, password string) (users.User, error) {
	s.mu.RLock()
	e, ok := s.users[username]
	s.mu.RUnlock()
	if !ok {
		return users.User{}, users.ErrNotFound
	}

	if e.PasswordHash != "" {
		err := bcrypt.CompareHashAndPassword([]byte(e.PasswordHash), []byte(password))
		switch {
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return users.User{}, users.ErrNotFound
		case err != nil:
			return users.User{}, fmt.Errorf("failed to verify password: %w", err)
		}
		return users.User{ID: username, Username: username}, nil
	}

	if subtle.ConstantTimeCompare([]byte(e.Password), []byte(password)) != 1 {
		return users.User{}, users.ErrNotFound
	}
	return users.User{ID: username, Username: username}, nil
}

// Len returns the number of loaded users.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// Check reports whether the users file is still readable. It is meant for
// readiness probes.
func (s *Store) Check(ctx context.Context) error {
	if _, err := os.Stat(s.path); err != nil {
		return err
	}
	if s.Len() == 0 {
		return errors.New("no users loaded")
	}
	return nil
}

// Watch reloads the users file whenever it changes and blocks until ctx is
// cancelled. The parent directory is watched so that editors replacing the
// file by rename are picked up.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(s.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}

	s.logger.Info("watching users file", slog.String("path", target))

	var reload <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				reload = time.After(s.debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("users file watcher error", slog.String("error", err.Error()))

		case <-reload:
			reload = nil
			if err := s.Load(); err != nil {
				s.logger.Error("users file reload failed, keeping previous users",
					slog.String("path", target),
					slog.String("error", err.Error()))
			}
		}
	}
}
