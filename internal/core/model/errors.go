// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrorKind classifies failures so callers can decide whether to retry,
// surface the message to a user, or treat it as an outage.
type ErrorKind string

const (
	// KindTransient covers network failures, rate limits and retriable model output.
	KindTransient ErrorKind = "transient"
	// KindAuth covers authentication and permission failures. Never retried.
	KindAuth ErrorKind = "auth"
	// KindValidation covers schema mismatches in model output and vector length mismatches.
	KindValidation ErrorKind = "validation"
	// KindResource covers exhausted user quotas such as the duration cap.
	KindResource ErrorKind = "resource"
	// KindInfrastructure covers tool invocation and store I/O failures.
	KindInfrastructure ErrorKind = "infrastructure"
)

// maxSnippet bounds the payload excerpt attached to validation errors.
const maxSnippet = 200

// Error is the error type returned by the core packages.
type Error struct {
	Kind    ErrorKind
	Op      string
	Snippet string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Err != nil {
		if msg != "" {
			msg += ": "
		}
		msg += e.Err.Error()
	}
	if e.Snippet != "" {
		msg += fmt.Sprintf(" (payload: %q)", e.Snippet)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a kind and the name of the failing operation.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NewValidationError wraps err as a validation failure and keeps a truncated
// copy of the offending payload for diagnosis.
func NewValidationError(op string, err error, payload string) *Error {
	return &Error{Kind: KindValidation, Op: op, Snippet: Truncate(payload, maxSnippet), Err: err}
}

// Truncate shortens s to at most n bytes plus a trailing "...", cutting on a
// rune boundary so the result stays valid UTF-8.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// KindOf returns the kind of the first *Error in err's chain. Unclassified
// errors are infrastructure failures.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructure
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// ErrUsageCapExceeded is the cause of the resource error raised when a clip
// would push its owner over the processing allowance.
var ErrUsageCapExceeded = errors.New("processing limit reached")
