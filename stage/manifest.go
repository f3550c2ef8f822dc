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
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/wtsi-hgi/ampliprep/consolidate"
)

const manifestHeader = "sample-id\tabsolute-filepath"

// ManifestEntry is a line of the QIIME import manifest.
type ManifestEntry struct {
	SampleID string
	Path     string
}

// FindFiltered lists the filtered reads in dir, which must be absolute, sorted
// by filename. Hidden files, including partial outputs, are ignored.
func FindFiltered(dir string) ([]ManifestEntry, error) {
	if !filepath.IsAbs(dir) {
		return nil, fmt.Errorf("%s: %w", dir, ErrRelativePath)
	}

	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	suffix := FilteredSuffix + consolidate.Suffix

	var entries []ManifestEntry

	for _, de := range des {
		name := de.Name()

		if strings.HasPrefix(name, ".") || !de.Type().IsRegular() || !strings.HasSuffix(name, suffix) {
			continue
		}

		id := strings.TrimSuffix(name, suffix)
		if id == "" {
			continue
		}

		entries = append(entries, ManifestEntry{SampleID: id, Path: filepath.Join(dir, name)})
	}

	slices.SortFunc(entries, func(a, b ManifestEntry) int {
		return strings.Compare(filepath.Base(a.Path), filepath.Base(b.Path))
	})

	return entries, nil
}

// WriteManifest writes entries to path as a tab-separated QIIME manifest,
// via a partial file renamed into place.
func WriteManifest(path string, entries []ManifestEntry) (err error) {
	if len(entries) == 0 {
		return ErrEmptyManifest
	}

	partial := Partial(path)

	f, err := os.Create(partial)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			os.Remove(partial)
		}
	}()

	w := bufio.NewWriter(f)

	fmt.Fprintln(w, manifestHeader)

	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\n", e.SampleID, e.Path)
	}

	if err = w.Flush(); err != nil {
		f.Close()

		return err
	}

	if err = f.Close(); err != nil {
		return err
	}

	return os.Rename(partial, path)
}

// ReadManifest parses a manifest written by WriteManifest.
func ReadManifest(path string) ([]ManifestEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	defer f.Close()

	scanner := bufio.NewScanner(f)

	if !scanner.Scan() || scanner.Text() != manifestHeader {
		return nil, fmt.Errorf("%s: missing manifest header", path)
	}

	var entries []ManifestEntry

	for scanner.Scan() {
		id, p, ok := strings.Cut(scanner.Text(), "\t")
		if !ok {
			return nil, fmt.Errorf("%s: bad manifest line %q", path, scanner.Text())
		}

		entries = append(entries, ManifestEntry{SampleID: id, Path: p})
	}

	return entries, scanner.Err()
}
