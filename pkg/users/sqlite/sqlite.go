// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package sqlite provides a user store backed by a SQLite database with
// bcrypt password hashes.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/absmach/bookshelf/pkg/users"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	driver "modernc.org/sqlite" // Pure Go SQLite driver
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrExists is returned by Add when the username is taken.
var ErrExists = errors.New("user already exists")

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    INTEGER NOT NULL
)`

// Record is a stored user as listed by List.
type Record struct {
	users.User
	CreatedAt time.Time
}

// Store is a users.Finder over a SQLite database.
type Store struct {
	db   *sql.DB
	cost int
}

var _ users.Finder = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithCost sets the bcrypt cost used by Add.
func WithCost(cost int) Option {
	return func(s *Store) {
		s.cost = cost
	}
}

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set %s: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	s := &Store{db: db, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// FindUser implements users.Finder.
func (s *Store) FindUser(ctx context.Context, username, password string) (users.User, error) {
	var (
		id   string
		hash string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, password_hash FROM users WHERE username = ?", username).Scan(&id, &hash)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return users.User{}, users.ErrNotFound
	case err != nil:
		return users.User{}, fmt.Errorf("failed to query user: %w", err)
	}

	err = bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return users.User{}, users.ErrNotFound
	case err != nil:
		return users.User{}, fmt.Errorf("failed to verify password: %w", err)
	}

	return users.User{ID: id, Username: username}, nil
}

// Add stores a new user with a bcrypt hash of password.
func (s *Store) Add(ctx context.Context, username, password string) (users.User, error) {
	if username == "" {
		return users.User{}, errors.New("username is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return users.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	u := users.User{ID: uuid.NewString(), Username: username}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO users (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)",
		u.ID, u.Username, string(hash), time.Now().Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return users.User{}, fmt.Errorf("%w: %s", ErrExists, username)
		}
		return users.User{}, fmt.Errorf("failed to insert user: %w", err)
	}

	return u, nil
}

// Remove deletes a user. It returns users.ErrNotFound if there is no such user.
func (s *Store) Remove(ctx context.Context, username string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE username = ?", username)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n == 0 {
		return users.ErrNotFound
	}
	return nil
}

// List returns all users ordered by username.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, username, created_at FROM users ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r       Record
			created int64
		)
		if err := rows.Scan(&r.ID, &r.Username, &created); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		r.CreatedAt = time.Unix(created, 0)
		out = append(out, r)
	}

	return out, rows.Err()
}

// Count returns the number of stored users.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// Ping checks the database connection. It is meant for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var serr *driver.Error
	return errors.As(err, &serr) && serr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
