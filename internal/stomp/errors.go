// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package stomp

import (
	"errors"

	"github.com/samber/oops"
)

// Parse failures. Use errors.Is to classify an error returned by Parse.
var (
	ErrUnknownCommand    = errors.New("unknown command")
	ErrMissingHeader     = errors.New("missing header")
	ErrInvalidHeader     = errors.New("invalid header")
	ErrUnexpectedContent = errors.New("unexpected content")
	ErrMissingContent    = errors.New("missing content")
)

// Error codes attached to parse failures.
const (
	CodeUnknownCommand    = "STOMP_UNKNOWN_COMMAND"
	CodeMissingHeader     = "STOMP_MISSING_HEADER"
	CodeInvalidHeader     = "STOMP_INVALID_HEADER"
	CodeUnexpectedContent = "STOMP_UNEXPECTED_CONTENT"
	CodeMissingContent    = "STOMP_MISSING_CONTENT"
)

func parseError(code string, sentinel error, cmd Command, format string, args ...any) error {
	return oops.Code(code).
		With("command", string(cmd)).
		Wrapf(sentinel, format, args...)
}
