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

// Package reconcile matches the barcodes declared in the sample metadata
// against the barcode directories found on disk, producing the work list for
// a run.
package reconcile

import (
	"path/filepath"
	"slices"

	"github.com/wtsi-hgi/ampliprep/ledger"
	"github.com/wtsi-hgi/ampliprep/metadata"
)

// WorkItem is a sample that is both declared and present on disk.
type WorkItem struct {
	Barcode  string
	SampleID string

	// Dir is the barcode directory under the raw-data root.
	Dir string

	// Sources are the read files in Dir, once listed by the consolidator.
	Sources []string
}

// Result is the outcome of reconciliation.
type Result struct {
	// Metadata holds only the records of the barcodes in Work.
	Metadata *metadata.Store

	// Work is sorted by barcode.
	Work []WorkItem

	// MetadataOnly are declared barcodes with no directory, sorted.
	MetadataOnly []string

	// DirectoryOnly are barcode directories with no metadata, sorted.
	DirectoryOnly []string

	declared   int
	discovered int
}

// Reconcile intersects the barcodes in store with the discovered barcode
// directory names under root. Mismatches in either direction are recorded in
// the Result but are never an error.
func Reconcile(store *metadata.Store, discovered []string, root string) *Result {
	onDisk := make(map[string]bool, len(discovered))

	for _, barcode := range discovered {
		onDisk[barcode] = true
	}

	r := &Result{
		MetadataOnly:  []string{},
		DirectoryOnly: []string{},
		declared:      store.Len(),
		discovered:    len(onDisk),
	}

	matched := make([]string, 0, len(discovered))

	for _, barcode := range store.Barcodes() {
		if !onDisk[barcode] {
			r.MetadataOnly = append(r.MetadataOnly, barcode)

			continue
		}

		matched = append(matched, barcode)
	}

	for barcode := range onDisk {
		if _, ok := store.Get(barcode); !ok {
			r.DirectoryOnly = append(r.DirectoryOnly, barcode)
		}
	}

	slices.Sort(r.DirectoryOnly)

	r.Metadata = store.Subset(matched)
	r.Work = make([]WorkItem, len(matched))

	for n, barcode := range matched {
		rec, _ := store.Get(barcode)

		r.Work[n] = WorkItem{
			Barcode:  barcode,
			SampleID: rec.SampleID,
			Dir:      filepath.Join(root, barcode),
		}
	}

	return r
}

// Barcodes returns the barcodes of the work list, in order.
func (r *Result) Barcodes() []string {
	barcodes := make([]string, len(r.Work))

	for n, item := range r.Work {
		barcodes[n] = item.Barcode
	}

	return barcodes
}

// SampleIDs returns the sample IDs of the work list, in order.
func (r *Result) SampleIDs() []string {
	ids := make([]string, len(r.Work))

	for n, item := range r.Work {
		ids[n] = item.SampleID
	}

	return ids
}

// Log records the reconciliation in the ledger: the counts on each side, a
// warning for each declared barcode with no directory, and an audit entry
// for each directory that will not be processed.
func (r *Result) Log(l *ledger.Ledger) {
	l.Append("%d barcode(s) in the metadata", r.declared)
	l.Append("%d barcode director(ies) in the raw-data root", r.discovered)

	for _, barcode := range r.MetadataOnly {
		l.Warn("barcode %s is in the metadata but has no read directory; skipping it", barcode)
	}

	for _, barcode := range r.DirectoryOnly {
		l.Append("barcode directory %s is not in the metadata; excluded from processing", barcode)
	}

	for _, item := range r.Work {
		l.Append("sample %s <- barcode %s", item.SampleID, item.Barcode)
	}

	l.Append("%d sample(s) to process", len(r.Work))
}
