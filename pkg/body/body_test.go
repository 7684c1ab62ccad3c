// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package body

import (
	"errors"
	"io"
	"os"
	"reflect"
	"strings"
	"testing"
	"testing/iotest"

	perrors "github.com/absmach/bookshelf/pkg/errors"
)

func TestRead(t *testing.T) {
	tests := []struct {
		name     string
		input    io.Reader
		want     any
		wantSize int
		wantErr  error
	}{
		{
			name:  "nil reader",
			input: nil,
			want:  map[string]any{},
		},
		{
			name:  "empty body",
			input: strings.NewReader(""),
			want:  map[string]any{},
		},
		{
			name:     "object",
			input:    strings.NewReader(`{"title":"Dune","year":1965}`),
			want:     map[string]any{"title": "Dune", "year": float64(1965)},
			wantSize: 28,
		},
		{
			name:     "array",
			input:    strings.NewReader(`[1,2]`),
			want:     []any{float64(1), float64(2)},
			wantSize: 5,
		},
		{
			name:     "scalar",
			input:    strings.NewReader(`"hello"`),
			want:     "hello",
			wantSize: 7,
		},
		{
			name:     "null",
			input:    strings.NewReader(`null`),
			want:     nil,
			wantSize: 4,
		},
		{
			name:     "utf-8 text",
			input:    strings.NewReader(`{"author":"Borgès"}`),
			want:     map[string]any{"author": "Borgès"},
			wantSize: len(`{"author":"Borgès"}`),
		},
		{
			name:    "malformed json",
			input:   strings.NewReader(`{"title":`),
			wantErr: perrors.ErrMalformedBody,
		},
		{
			name:    "whitespace only",
			input:   strings.NewReader("   "),
			wantErr: perrors.ErrMalformedBody,
		},
		{
			name:    "trailing garbage",
			input:   strings.NewReader(`{} {}`),
			wantErr: perrors.ErrMalformedBody,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Read(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if !reflect.DeepEqual(got.Value, tt.want) {
				t.Errorf("Expected value %#v, got %#v", tt.want, got.Value)
			}
			if got.Size != tt.wantSize {
				t.Errorf("Expected size %d, got %d", tt.wantSize, got.Size)
			}
		})
	}
}

func TestReadStreamError(t *testing.T) {
	cause := errors.New("connection reset by peer")
	r := io.MultiReader(strings.NewReader(`{"partial":`), iotest.ErrReader(cause))

	_, err := Read(r)
	if !errors.Is(err, perrors.ErrStream) {
		t.Fatalf("Expected stream error, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("Expected the underlying cause to be preserved, got %v", err)
	}
	if errors.Is(err, perrors.ErrMalformedBody) {
		t.Error("A partial body must not be parsed")
	}
	if errors.Is(err, perrors.ErrTimeout) {
		t.Error("A reset is not a timeout")
	}
}

func TestReadDeadline(t *testing.T) {
	r := io.MultiReader(strings.NewReader(`{"slow":`), iotest.ErrReader(os.ErrDeadlineExceeded))

	_, err := Read(r)
	if !errors.Is(err, perrors.ErrStream) || !errors.Is(err, perrors.ErrTimeout) {
		t.Fatalf("Expected stream timeout error, got %v", err)
	}
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Errorf("Expected the deadline cause to be preserved, got %v", err)
	}
	if kind := perrors.KindOf(err); kind != perrors.KindTimeout {
		t.Errorf("Expected timeout kind, got %s", kind)
	}
}

func TestReadEmptyIsFreshValue(t *testing.T) {
	a, _ := Read(strings.NewReader(""))
	b, _ := Read(strings.NewReader(""))

	a.Value.(map[string]any)["mutated"] = true
	if len(b.Value.(map[string]any)) != 0 {
		t.Error("Expected each empty body to get its own value")
	}
}
