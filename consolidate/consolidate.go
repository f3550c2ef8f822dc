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

// Package consolidate merges the read files of each reconciled barcode into a
// single file per sample, named by sample ID.
//
// Source files are concatenated byte for byte. Concatenated gzip members are
// themselves a valid gzip stream, so the output is a well-formed compressed
// FASTQ file that is byte-identical across runs with the same inputs.
package consolidate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/pgzip"
	"github.com/wtsi-hgi/ampliprep/discovery"
	"github.com/wtsi-hgi/ampliprep/ledger"
	"github.com/wtsi-hgi/ampliprep/reconcile"
	"golang.org/x/sync/errgroup"
)

const (
	// DirName is the directory under a run directory holding the reads of
	// every pipeline stage.
	DirName = "raw_data"

	// Suffix is appended to the sample ID to name a consolidated file.
	Suffix = ".fastq.gz"

	// PartialPrefix marks a file that is still being written.
	PartialPrefix = ".partial-"

	dirPerms  = 0750
	filePerms = 0640
)

// Error is the custom error type for the consolidate package.
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrOutputExists is returned when the output directory is already
	// present, e.g. left by a previous run with the same name.
	ErrOutputExists = Error("output directory already exists")

	// ErrNoSourceFiles is returned for a barcode directory containing no read
	// files.
	ErrNoSourceFiles = Error("no source files")

	// ErrNotCompressed is returned for a source file that isn't gzip
	// compressed.
	ErrNotCompressed = Error("source file is not gzip compressed")
)

// ConsolidationError is returned when consolidation fails.
type ConsolidationError struct {
	SampleID string
	Err      error
}

func (e *ConsolidationError) Error() string {
	if e.SampleID == "" {
		return "consolidation failed: " + e.Err.Error()
	}

	return fmt.Sprintf("consolidation of sample %s failed: %s", e.SampleID, e.Err)
}

func (e *ConsolidationError) Unwrap() error { return e.Err }

// Sample is a consolidated sample.
type Sample struct {
	SampleID string
	Path     string
}

// Consolidator writes one consolidated file per work item into its output
// directory.
type Consolidator struct {
	dir     string
	pattern string
	workers int
	ledger  *ledger.Ledger
}

// Option configures a Consolidator.
type Option func(*Consolidator)

// WithPattern sets the filepath.Match pattern of the source files in each
// barcode directory. The default is discovery.DefaultPattern.
func WithPattern(pattern string) Option {
	return func(c *Consolidator) {
		c.pattern = pattern
	}
}

// WithWorkers sets how many samples are consolidated at once. The default is
// 1.
func WithWorkers(n int) Option {
	return func(c *Consolidator) {
		c.workers = max(n, 1)
	}
}

// WithLedger records each consolidation in the given ledger.
func WithLedger(l *ledger.Ledger) Option {
	return func(c *Consolidator) {
		c.ledger = l
	}
}

// New returns a Consolidator that writes to DirName inside runDir.
func New(runDir string, opts ...Option) *Consolidator {
	c := &Consolidator{
		dir:     filepath.Join(runDir, DirName),
		pattern: discovery.DefaultPattern,
		workers: 1,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Dir returns the output directory.
func (c *Consolidator) Dir() string {
	return c.dir
}

// Prepare creates the output directory, which must not already exist.
func (c *Consolidator) Prepare() error {
	if err := os.Mkdir(c.dir, dirPerms); err != nil {
		if errors.Is(err, fs.ErrExist) {
			err = fmt.Errorf("%s: %w", c.dir, ErrOutputExists)
		}

		return &ConsolidationError{Err: err}
	}

	c.ledger.Append("created %s", c.dir)

	return nil
}

// Sources lists the source files of the given work item, failing if there
// are none.
func (c *Consolidator) Sources(item reconcile.WorkItem) ([]string, error) {
	files, err := discovery.SourceFiles(item.Dir, c.pattern)
	if err != nil {
		return nil, &ConsolidationError{SampleID: item.SampleID, Err: err}
	}

	if len(files) == 0 {
		return nil, &ConsolidationError{
			SampleID: item.SampleID,
			Err:      fmt.Errorf("%s matching %q: %w", item.Dir, c.pattern, ErrNoSourceFiles),
		}
	}

	return files, nil
}

// Consolidate writes a file for every work item and returns the consolidated
// samples in work-list order. Every item's sources are listed before any file
// is written, so a barcode directory without reads fails the run before any
// output appears. Cancelling ctx stops further samples from starting.
func (c *Consolidator) Consolidate(ctx context.Context, work []reconcile.WorkItem) ([]Sample, error) {
	items := make([]reconcile.WorkItem, len(work))

	for n, item := range work {
		sources, err := c.Sources(item)
		if err != nil {
			return nil, err
		}

		item.Sources = sources
		items[n] = item
	}

	samples := make([]Sample, len(items))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for n, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			path, err := c.consolidate(item)
			if err != nil {
				return err
			}

			samples[n] = Sample{SampleID: item.SampleID, Path: path}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return samples, nil
}

// OutputPath returns the path of the consolidated file for a sample.
func (c *Consolidator) OutputPath(sampleID string) string {
	return filepath.Join(c.dir, sampleID+Suffix)
}

func (c *Consolidator) consolidate(item reconcile.WorkItem) (string, error) {
	final := c.OutputPath(item.SampleID)
	partial := filepath.Join(c.dir, PartialPrefix+item.SampleID+Suffix)

	if err := concatenate(partial, item.Sources); err != nil {
		os.Remove(partial)

		return "", &ConsolidationError{SampleID: item.SampleID, Err: err}
	}

	if err := os.Rename(partial, final); err != nil {
		os.Remove(partial)

		return "", &ConsolidationError{SampleID: item.SampleID, Err: err}
	}

	c.ledger.Append("consolidated %d file(s) from %s into %s", len(item.Sources), item.Dir, final)

	return final, nil
}

func concatenate(dest string, sources []string) (err error) {
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerms)
	if err != nil {
		return err
	}

	defer func() {
		if errc := out.Close(); err == nil {
			err = errc
		}
	}()

	for _, source := range sources {
		if err = appendFile(out, source); err != nil {
			return err
		}
	}

	return out.Sync()
}

func appendFile(w io.Writer, source string) error {
	f, err := os.Open(source)
	if err != nil {
		return err
	}

	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}

	if err = checkCompressed(io.NewSectionReader(f, 0, fi.Size())); err != nil {
		return fmt.Errorf("%s: %w", source, err)
	}

	_, err = io.Copy(w, f)

	return err
}

// checkCompressed reads the gzip header of r, which must not share its read
// offset with the file being copied.
func checkCompressed(r io.Reader) error {
	gr, err := pgzip.NewReader(r)
	if err != nil {
		return ErrNotCompressed
	}

	return gr.Close()
}
