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
	"errors"
	"io/fs"
	"os"
)

// ResumeFrom is the first stage of a resumed run.
const ResumeFrom = BuildManifest

// ResumeSeed lists the artifacts a resumed run expects to find.
func ResumeSeed() []Artifact {
	return []Artifact{FilteredReads}
}

// CheckResume confirms that the run directory holds the filtered reads a
// resumed run starts from, returning a *PreconditionError if not.
func CheckResume(l Layout) error {
	dir := l.RawDir()

	fi, err := os.Stat(dir)

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &PreconditionError{Path: dir, Reason: "no such directory"}
	case err != nil:
		return &PreconditionError{Path: dir, Reason: err.Error()}
	case !fi.IsDir():
		return &PreconditionError{Path: dir, Reason: "not a directory"}
	}

	entries, err := FindFiltered(dir)
	if err != nil {
		return &PreconditionError{Path: dir, Reason: err.Error()}
	}

	if len(entries) == 0 {
		return &PreconditionError{Path: dir, Reason: "no *" + FilteredSuffix + " read files"}
	}

	return nil
}
