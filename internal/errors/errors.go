// Copyright (c) 2026 dotandev
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for comparison with errors.Is. These cover the host
// tooling around the engine; the engine's own taxonomy lives with it.
var (
	ErrConfigInvalid  = errors.New("invalid configuration")
	ErrDataInvalid    = errors.New("invalid data document")
	ErrRenderFailed   = errors.New("render failed")
	ErrStoreFailed    = errors.New("history store operation failed")
	ErrCacheCorrupted = errors.New("cached program unusable")
)

// Wrap functions for consistent error wrapping

func WrapConfigError(msg string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrConfigInvalid, msg, err)
}

func WrapDataError(err error) error {
	return fmt.Errorf("%w: %w", ErrDataInvalid, err)
}

func WrapRenderFailed(template string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRenderFailed, template, err)
}

func WrapStoreFailed(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreFailed, op, err)
}

func WrapCacheCorrupted(path string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCacheCorrupted, path, err)
}
