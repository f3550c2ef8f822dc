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

// Package discovery finds the per-barcode read directories under a raw-data
// root, as written by the basecaller's demultiplexer, and the read files
// inside them.
package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	// Unclassified is the directory the demultiplexer writes reads to when
	// they match no barcode. It is never a sample.
	Unclassified = "unclassified"

	// DefaultPattern matches the compressed read files inside a barcode
	// directory.
	DefaultPattern = "*.fastq.gz"
)

// Error is the custom error type for the discovery package.
type Error string

func (e Error) Error() string { return string(e) }

// ErrNotADirectory is returned when the raw-data root is missing or isn't a
// directory.
const ErrNotADirectory = Error("not a directory")

// ScanError is the error returned when discovery fails.
type ScanError struct {
	Root string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("discovery of %s failed: %s", e.Root, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// Scan returns the sorted names of the immediate subdirectories of root,
// excluding Unclassified and hidden entries. Symlinks to directories are
// followed.
func Scan(root string) ([]string, error) {
	if err := checkDir(root); err != nil {
		return nil, &ScanError{Root: root, Err: err}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, &ScanError{Root: root, Err: err}
	}

	barcodes := make([]string, 0, len(entries))

	for _, entry := range entries {
		if isSampleDir(root, entry) {
			barcodes = append(barcodes, entry.Name())
		}
	}

	slices.Sort(barcodes)

	return barcodes, nil
}

func checkDir(root string) error {
	fi, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotADirectory
	} else if err != nil {
		return err
	}

	if !fi.IsDir() {
		return ErrNotADirectory
	}

	return nil
}

func isSampleDir(root string, entry fs.DirEntry) bool {
	name := entry.Name()

	if name == Unclassified || strings.HasPrefix(name, ".") {
		return false
	}

	if entry.IsDir() {
		return true
	}

	if entry.Type()&fs.ModeSymlink == 0 {
		return false
	}

	fi, err := os.Stat(filepath.Join(root, name))

	return err == nil && fi.IsDir()
}

// SourceFiles returns the sorted full paths of the regular, non-hidden files
// directly inside dir whose names match pattern (see filepath.Match).
// Subdirectories are not descended into.
func SourceFiles(dir, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}

	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(entries))

	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		if ok, _ := filepath.Match(pattern, entry.Name()); !ok { //nolint:errcheck
			continue
		}

		path := filepath.Join(dir, entry.Name())

		if fi, err := os.Stat(path); err != nil || !fi.Mode().IsRegular() {
			continue
		}

		files = append(files, path)
	}

	slices.Sort(files)

	return files, nil
}
