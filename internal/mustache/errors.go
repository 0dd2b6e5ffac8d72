// Copyright 2025 Stache Users
// SPDX-License-Identifier: Apache-2.0

package mustache

import (
	"errors"
	"fmt"
)

// Sentinel errors for comparison with errors.Is. The set is flat: no error is
// recovered internally, every one aborts the enclosing compile or evaluate
// call.
var (
	ErrTooDeep            = errors.New("nesting exceeds depth limit")
	ErrClosureMismatch    = errors.New("section closure mismatch")
	ErrFileNotFound       = errors.New("template file not found")
	ErrFileTooBig         = errors.New("template file too big")
	ErrFileNameTooLong    = errors.New("template file name too long")
	ErrFileNameTooShort   = errors.New("template file name empty")
	ErrEmptyTemplate      = errors.New("empty template")
	ErrDelimiterTooLong   = errors.New("delimiter too long")
	ErrNameTooLong        = errors.New("tag name too long")
	ErrUnknownInstruction = errors.New("unknown instruction")
	ErrUser               = errors.New("user callback failed")
)

// Wrap functions for consistent error wrapping

func wrapTooDeep(name string) error {
	return fmt.Errorf("%w: %s exceeds %d levels", ErrTooDeep, name, MaxNesting)
}

func wrapClosureMismatch(name string, pos int) error {
	return fmt.Errorf("%w: %q at byte %d", ErrClosureMismatch, name, pos)
}

func wrapFileNotFound(name string) error {
	return fmt.Errorf("%w: %s", ErrFileNotFound, name)
}

func wrapFileTooBig(name string, size int64) error {
	return fmt.Errorf("%w: %s is %d bytes", ErrFileTooBig, name, size)
}

func wrapDelimiterTooLong(delim string) error {
	return fmt.Errorf("%w: %q (limit %d)", ErrDelimiterTooLong, delim, MaxDelim-1)
}

func wrapNameTooLong(pos int) error {
	return fmt.Errorf("%w: at byte %d", ErrNameTooLong, pos)
}

func wrapUser(err error) error {
	return fmt.Errorf("%w: %w", ErrUser, err)
}
