/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrSignNotAllowed is returned by AddSignWord for characters that cannot lead a tag.
	ErrSignNotAllowed = errors.New("sign cannot be registered")
	// ErrSignRegistered is returned by AddSignWord when the sign already has a word.
	ErrSignRegistered = errors.New("sign is already registered")
)

// Diagnostic is a warning or error recorded while parsing. Line is 1-based.
type Diagnostic struct {
	Level   slog.Level
	Line    int
	Message string
}

func (d Diagnostic) String() string {
	kind := "error"
	if d.Level < slog.LevelError {
		kind = "warning"
	}
	return fmt.Sprintf("%s : (%d) %s", kind, d.Line, d.Message)
}

// FatalError aborts a parse. It is raised for lexical problems after which
// the cursor position can no longer be trusted: unterminated literals and
// invalid characters.
type FatalError struct {
	Line    int
	Message string
}

func (e *FatalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

func fatalf(format string, args ...any) {
	panic(&FatalError{Message: fmt.Sprintf(format, args...)})
}

// ParseError is returned after a complete parse when at least one error was
// recorded. It carries the first error, the number of errors and every
// diagnostic, warnings included.
type ParseError struct {
	Line        int
	Message     string
	Count       int
	Diagnostics []Diagnostic
	// Unclosed is set when the input ended inside a multi-line tag.
	Unclosed bool
}

func (e *ParseError) Error() string {
	if e.Count > 1 {
		return fmt.Sprintf("line %d: %s (and %d more errors)", e.Line, e.Message, e.Count-1)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// IsIncomplete reports whether err only says that the input ended inside an
// open multi-line tag, meaning more lines could complete it.
func IsIncomplete(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe) && pe.Unclosed && pe.Count == 1
}
