// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package file

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/absmach/bookshelf/pkg/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func TestFindUser(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "users.yaml")
	writeFile(t, path, "users:\n"+
		"  - username: alice\n"+
		"    password: secret\n"+
		"  - username: bob\n"+
		"    password_hash: "+string(hash)+"\n")

	s, err := New(path, newLogger(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())

	ctx := context.Background()
	cases := []struct {
		desc     string
		username string
		password string
		err      error
	}{
		{desc: "plaintext match", username: "alice", password: "secret"},
		{desc: "plaintext mismatch", username: "alice", password: "Secret", err: users.ErrNotFound},
		{desc: "hash match", username: "bob", password: "hunter2"},
		{desc: "hash mismatch", username: "bob", password: "hunter3", err: users.ErrNotFound},
		{desc: "unknown", username: "carol", password: "secret", err: users.ErrNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			u, err := s.FindUser(ctx, tc.username, tc.password)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.username, u.Username)
		})
	}

	assert.NoError(t, s.Check(ctx))
}

func TestNewInvalid(t *testing.T) {
	cases := map[string]string{
		"not yaml":         "users: [",
		"missing username": "users:\n  - password: x\n",
		"duplicate":        "users:\n  - {username: a, password: x}\n  - {username: a, password: y}\n",
		"no password":      "users:\n  - username: a\n",
		"both passwords":   "users:\n  - {username: a, password: x, password_hash: y}\n",
		"bad hash":         "users:\n  - {username: a, password_hash: not-a-hash}\n",
	}

	for desc, content := range cases {
		t.Run(desc, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "users.yaml")
			writeFile(t, path, content)
			_, err := New(path, newLogger(), nil)
			assert.Error(t, err)
		})
	}

	_, err := New(filepath.Join(t.TempDir(), "missing.yaml"), newLogger(), nil)
	assert.Error(t, err)
}

func TestWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	writeFile(t, path, "users:\n  - {username: alice, password: secret}\n")

	s, err := New(path, newLogger(), nil)
	require.NoError(t, err)
	s.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()

	// Give the watcher time to register before changing the file.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, "users:\n  - {username: alice, password: secret}\n  - {username: bob, password: pw}\n")

	require.Eventually(t, func() bool {
		_, err := s.FindUser(context.Background(), "bob", "pw")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	// A broken file keeps the previous users.
	writeFile(t, path, "users: [")
	time.Sleep(200 * time.Millisecond)
	_, err = s.FindUser(context.Background(), "alice", "secret")
	assert.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
