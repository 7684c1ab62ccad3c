// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package users defines the user lookup used by the authenticator and
// provides an in-memory implementation.
//
// Stores:
//   - Static: plaintext pairs from configuration
//   - file.Store: a YAML users file, reloaded on change
//   - sqlite.Store: bcrypt hashes in a SQLite database
//
// The authenticator only distinguishes found from not found. A store
// returns ErrNotFound for a miss; other errors reach the pipeline's error
// boundary. Guard puts a circuit breaker in front of a store that does I/O.
package users
