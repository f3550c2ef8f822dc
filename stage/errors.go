/*******************************************************************************
 * Copyright (c) 2026 Genome Research Ltd.
 *
 * Permission is hereby granted, free of charge, to any person obtaining
 * a copy of this software and associated documentation files (the
 * "Software"), to deal in the Software without restriction, including
 * without limitation the rights to use, copy, modify, merge, publish,
 * distribute, sublicense, and/or sell copies of the Software, and to
 * permit persons to whom the Software is furnished to do so, subject to
 * the following conditions:
 *
 * The above copyright notice and this permission notice shall be included
 * in all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
 * EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
 * MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
 * IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY
 * CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT,
 * TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE
 * SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 ******************************************************************************/

package stage

import (
	"fmt"
	"time"
)

// Error is the custom error type for the stage package.
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrUnsatisfied    = Error("stage input is not produced by an earlier stage")
	ErrDuplicateStage = Error("duplicate stage name")
	ErrUnknownStage   = Error("no such stage")
	ErrNoAction       = Error("stage must have exactly one of Plan or Do")
	ErrEmptyManifest  = Error("no filtered reads to put in the manifest")
	ErrRelativePath   = Error("path must be absolute")
)

// ExecutionError is returned when a stage fails. ExitCode is -1 when the
// command could not be started, or when the stage runs in-process.
type ExecutionError struct {
	Stage    string
	ExitCode int
	Command  string
	Err      error
}

func (e *ExecutionError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("stage %s failed: %s", e.Stage, e.Err)
	}

	return fmt.Sprintf("stage %s failed (exit code %d): %s: %s", e.Stage, e.ExitCode, e.Command, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// TimeoutError is returned when a command runs for longer than the
// configured timeout.
type TimeoutError struct {
	Stage   string
	Timeout time.Duration
	Command string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("stage %s timed out after %s: %s", e.Stage, e.Timeout, e.Command)
}

// PreconditionError is returned when a resumed run lacks the outputs of the
// stages it skips.
type PreconditionError struct {
	Path   string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("cannot resume: %s: %s", e.Path, e.Reason)
}
