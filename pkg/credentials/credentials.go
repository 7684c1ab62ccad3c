// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package credentials extracts HTTP Basic credentials from an Authorization header.
//
// Parsing is purely mechanical and never fails once a header is present:
// malformed base64 decodes to whatever bytes can be recovered and a payload
// without a colon yields an empty password. Deciding whether the pair is
// valid is left to the user lookup.
package credentials

import (
	"encoding/base64"
	"net/http"
	"strings"
)

// Credentials is a username/password pair taken from a request.
type Credentials struct {
	Username string
	Password string
}

// String hides the password.
func (c Credentials) String() string {
	return c.Username + ":***"
}

// FromRequest extracts credentials from r's Authorization header.
func FromRequest(r *http.Request) (Credentials, bool) {
	return Parse(r.Header.Get("Authorization"))
}

// Parse decodes an Authorization header value of the form "Basic <base64>".
// It returns false only when the value is empty.
//
// Decoded bytes that are not valid UTF-8 are replaced with U+FFFD. A run of
// adjacent invalid bytes collapses into a single U+FFFD, so a garbled
// username is not byte-for-byte what a per-sequence decoder would produce.
// Such a name never matches a stored user, and the request is rejected.
func Parse(header string) (Credentials, bool) {
	if header == "" {
		return Credentials{}, false
	}

	// The payload is the second space-separated token; the scheme is not checked.
	_, token, _ := strings.Cut(header, " ")
	token, _, _ = strings.Cut(token, " ")

	decoded := strings.ToValidUTF8(string(decodeLenient(token)), "\uFFFD")
	username, password, _ := strings.Cut(decoded, ":")

	return Credentials{Username: username, Password: password}, true
}

// decodeLenient decodes standard or URL-safe base64, skipping characters
// outside the alphabet and stopping at the first padding character.
func decodeLenient(s string) []byte {
	clean := make([]byte, 0, len(s))
loop:
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '=':
			break loop
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '+', c == '/':
			clean = append(clean, c)
		case c == '-':
			clean = append(clean, '+')
		case c == '_':
			clean = append(clean, '/')
		}
	}

	// A single trailing sextet cannot form a byte.
	if len(clean)%4 == 1 {
		clean = clean[:len(clean)-1]
	}

	out := make([]byte, base64.RawStdEncoding.DecodedLen(len(clean)))
	n, _ := base64.RawStdEncoding.Decode(out, clean)
	return out[:n]
}
