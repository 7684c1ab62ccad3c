// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package body

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/absmach/bookshelf/pkg/errors"
	"github.com/valyala/bytebufferpool"
)

// Payload is a fully read and parsed request body.
type Payload struct {
	// Value is the decoded JSON value, or an empty object for an empty body.
	Value any

	// Size is the number of bytes read.
	Size int
}

// Read consumes r until EOF and parses the accumulated bytes as JSON.
// An empty body yields an empty object. A read failure yields an error
// matching errors.ErrStream that also wraps the cause, and errors.ErrTimeout
// when the cause is an expired read deadline. Invalid JSON yields an error
// matching errors.ErrMalformedBody.
func Read(r io.Reader) (Payload, error) {
	if r == nil {
		return Payload{Value: map[string]any{}}, nil
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if _, err := buf.ReadFrom(r); err != nil {
		if stderrors.Is(err, os.ErrDeadlineExceeded) {
			return Payload{}, fmt.Errorf("%w: %w: %w", errors.ErrStream, errors.ErrTimeout, err)
		}
		return Payload{}, fmt.Errorf("%w: %w", errors.ErrStream, err)
	}

	if buf.Len() == 0 {
		return Payload{Value: map[string]any{}}, nil
	}

	var v any
	if err := json.Unmarshal(buf.B, &v); err != nil {
		return Payload{Size: buf.Len()}, fmt.Errorf("%w: %w", errors.ErrMalformedBody, err)
	}

	return Payload{Value: v, Size: buf.Len()}, nil
}
