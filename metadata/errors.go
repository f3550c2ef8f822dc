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

package metadata

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Error is the custom error type for the metadata package.
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrMissingColumn is returned when a required header is absent.
	ErrMissingColumn = Error("required column not found")

	// ErrDuplicateColumn is returned when a required header appears more
	// than once.
	ErrDuplicateColumn = Error("required column appears more than once")

	// ErrTooFewColumns is returned for a row shorter than the header.
	ErrTooFewColumns = Error("too few columns")

	// ErrDuplicateBarcode is returned when a barcode appears on more than one
	// row.
	ErrDuplicateBarcode = Error("duplicate barcode")

	// ErrDuplicateSampleID is returned when a sample ID appears on more than
	// one row.
	ErrDuplicateSampleID = Error("duplicate sample ID")

	// ErrEmptyValue is returned when a row has no barcode or no sample ID.
	ErrEmptyValue = Error("empty value")

	// ErrUnsafeSampleID is returned for a sample ID that can't be used as a
	// file name.
	ErrUnsafeSampleID = Error("sample ID is not a safe file name")
)

// FormatError is returned when the metadata table can't be read as a table
// with the required columns.
type FormatError struct {
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	if e.Path == "" {
		return "metadata format error: " + e.Err.Error()
	}

	return fmt.Sprintf("metadata format error in %s: %s", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// IntegrityError is returned when the metadata table is well formed but its
// contents break the uniqueness or naming rules. It holds every problem found,
// not just the first.
type IntegrityError struct {
	Path   string
	Errors *multierror.Error
}

func (e *IntegrityError) Error() string {
	where := ""
	if e.Path != "" {
		where = " in " + e.Path
	}

	return fmt.Sprintf("metadata integrity error%s: %d problem(s): %s",
		where, len(e.Errors.Errors), listFormat(e.Errors.Errors))
}

// Unwrap allows errors.Is to match any of the individual problems.
func (e *IntegrityError) Unwrap() []error { return e.Errors.Errors }

// listFormat is a multierror.ErrorFormatFunc that keeps every problem on one
// line.
func listFormat(errs []error) string {
	msgs := make([]string, len(errs))

	for n, err := range errs {
		msgs[n] = err.Error()
	}

	return strings.Join(msgs, "; ")
}
