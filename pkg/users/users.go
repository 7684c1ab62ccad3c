// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package users

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/absmach/bookshelf/pkg/breaker"
)

// ErrNotFound is returned when no user matches the given credentials.
var ErrNotFound = errors.New("user not found")

// User is the record returned by a successful lookup.
type User struct {
	ID       string
	Username string
}

// Finder looks a user up by username and password. Implementations return
// ErrNotFound when the pair does not match a user; any other error is a
// failure of the lookup itself.
type Finder interface {
	FindUser(ctx context.Context, username, password string) (User, error)
}

// FinderFunc adapts a function to the Finder interface.
type FinderFunc func(ctx context.Context, username, password string) (User, error)

var _ Finder = FinderFunc(nil)

// FindUser calls f.
func (f FinderFunc) FindUser(ctx context.Context, username, password string) (User, error) {
	return f(ctx, username, password)
}

// Static is an in-memory Finder over plaintext passwords.
type Static struct {
	passwords map[string]string
}

var _ Finder = (*Static)(nil)

// NewStatic creates a Static store from a username to password map.
func NewStatic(entries map[string]string) *Static {
	passwords := make(map[string]string, len(entries))
	for u, p := range entries {
		passwords[u] = p
	}
	return &Static{passwords: passwords}
}

// FindUser implements Finder.
func (s *Static) FindUser(ctx context.Context, username, password string) (User, error) {
	want, ok := s.passwords[username]
	if !ok {
		return User{}, ErrNotFound
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(password)) != 1 {
		return User{}, ErrNotFound
	}
	return User{ID: username, Username: username}, nil
}

// Len returns the number of users.
func (s *Static) Len() int {
	return len(s.passwords)
}

// Usernames returns the known usernames in sorted order.
func (s *Static) Usernames() []string {
	names := make([]string, 0, len(s.passwords))
	for u := range s.passwords {
		names = append(names, u)
	}
	sort.Strings(names)
	return names
}

// ParseList parses a comma-separated "user:password" list. The password is
// everything after the first colon.
func ParseList(list string) (map[string]string, error) {
	entries := make(map[string]string)
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		username, password, ok := strings.Cut(item, ":")
		if !ok || username == "" {
			return nil, fmt.Errorf("invalid user entry %q: expected user:password", item)
		}
		if _, dup := entries[username]; dup {
			return nil, fmt.Errorf("duplicate user %q", username)
		}
		entries[username] = password
	}
	return entries, nil
}

// Guard wraps f so that lookups run through cb. ErrNotFound does not count
// as a failure; an open circuit yields breaker.ErrOpen.
func Guard(f Finder, cb *breaker.Breaker) Finder {
	return FinderFunc(func(ctx context.Context, username, password string) (User, error) {
		var user User
		err := cb.Do(ctx, func(ctx context.Context) error {
			var err error
			user, err = f.FindUser(ctx, username, password)
			return err
		})
		return user, err
	})
}

// IsFailure reports whether err is a lookup failure rather than a miss.
// It is meant for breaker.Config.IsFailure.
func IsFailure(err error) bool {
	return err != nil && !errors.Is(err, ErrNotFound)
}
