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
	"path/filepath"

	"github.com/wtsi-hgi/ampliprep/consolidate"
)

const (
	// TrimmedSuffix and FilteredSuffix follow the sample ID in the names of
	// the reads made by the trim-adapters and quality-filter stages.
	TrimmedSuffix  = "_porechopped"
	FilteredSuffix = "_chopped"

	ManifestName   = "manifest.tsv"
	DemuxName      = "demux.qza"
	TableName      = "table.qza"
	RepSeqsName    = "rep-seqs.qza"
	ClassifierName = "classifier.qza"
	TaxonomyName   = "taxonomy.qza"
	ExportsName    = "exports"
)

// ReservedSuffixes are the suffixes a sample ID must not end with, as they
// would make stage outputs indistinguishable from sample inputs.
func ReservedSuffixes() []string {
	return []string{TrimmedSuffix, FilteredSuffix}
}

// Layout gives the paths of every output inside a run directory.
type Layout struct {
	Root string
}

func (l Layout) RawDir() string {
	return filepath.Join(l.Root, consolidate.DirName)
}

func (l Layout) Consolidated(sampleID string) string {
	return filepath.Join(l.RawDir(), sampleID+consolidate.Suffix)
}

func (l Layout) Trimmed(sampleID string) string {
	return filepath.Join(l.RawDir(), sampleID+TrimmedSuffix+consolidate.Suffix)
}

func (l Layout) Filtered(sampleID string) string {
	return filepath.Join(l.RawDir(), sampleID+FilteredSuffix+consolidate.Suffix)
}

func (l Layout) Manifest() string   { return filepath.Join(l.Root, ManifestName) }
func (l Layout) Demux() string      { return filepath.Join(l.Root, DemuxName) }
func (l Layout) Table() string      { return filepath.Join(l.Root, TableName) }
func (l Layout) RepSeqs() string    { return filepath.Join(l.Root, RepSeqsName) }
func (l Layout) Classifier() string { return filepath.Join(l.Root, ClassifierName) }
func (l Layout) Taxonomy() string   { return filepath.Join(l.Root, TaxonomyName) }
func (l Layout) Exports() string    { return filepath.Join(l.Root, ExportsName) }
