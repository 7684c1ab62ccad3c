// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package body reads a request body to completion and parses it as JSON.
//
// The whole stream is accumulated into a pooled buffer before parsing, so
// callers never see a partial body. An empty body is not an error: it parses
// to an empty object.
package body
