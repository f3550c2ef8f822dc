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
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/wtsi-hgi/ampliprep/config"
)

// Stage names of the amplicon pipeline.
const (
	TrimAdapters   = "trim-adapters"
	QualityFilter  = "quality-filter"
	BuildManifest  = "build-manifest"
	Import         = "import"
	Dereplicate    = "dereplicate"
	FetchReference = "fetch-reference"
	Classify       = "classify"
	Export         = "export"
)

// Amplicon returns the full-length 16S pipeline: adapter trimming and
// quality filtering of each sample's reads, followed by import into QIIME,
// dereplication, taxonomic classification against the pre-trained
// classifier fetched by f, and export of the results.
func Amplicon(p config.Params, f Fetcher) Pipeline {
	threads := strconv.Itoa(p.Threads)

	return Pipeline{
		{
			Name:      TrimAdapters,
			Needs:     []Artifact{ConsolidatedReads},
			Makes:     []Artifact{TrimmedReads},
			Params:    []Param{{"threads", threads}},
			PerSample: true,
			Plan:      planTrim,
		},
		{
			Name:  QualityFilter,
			Needs: []Artifact{TrimmedReads},
			Makes: []Artifact{FilteredReads},
			Params: []Param{
				{"min_quality", strconv.Itoa(p.Filter.MinQuality)},
				{"min_length", strconv.Itoa(p.Filter.MinLength)},
				{"max_length", strconv.Itoa(p.Filter.MaxLength)},
				{"threads", threads},
			},
			PerSample: true,
			Plan:      planFilter,
		},
		{
			Name:  BuildManifest,
			Needs: []Artifact{FilteredReads},
			Makes: []Artifact{ManifestFile},
			Do:    buildManifest,
		},
		{
			Name:  Import,
			Needs: []Artifact{ManifestFile},
			Makes: []Artifact{Demux},
			Params: []Param{
				{"type", p.Qiime.ImportType},
				{"input_format", p.Qiime.ImportFormat},
			},
			Plan: planImport,
		},
		{
			Name:  Dereplicate,
			Needs: []Artifact{Demux},
			Makes: []Artifact{FeatureTable, RepSeqs},
			Plan:  planDereplicate,
		},
		{
			Name:   FetchReference,
			Makes:  []Artifact{ClassifierModel},
			Params: []Param{{"source", p.Reference}},
			Do: func(ctx context.Context, r *Run) error {
				return fetchReference(ctx, r, f)
			},
		},
		{
			Name:   Classify,
			Needs:  []Artifact{RepSeqs, ClassifierModel},
			Makes:  []Artifact{Taxonomy},
			Params: []Param{{"n_jobs", threads}},
			Plan:   planClassify,
		},
		{
			Name:  Export,
			Needs: []Artifact{Taxonomy, FeatureTable},
			Makes: []Artifact{Exports},
			Plan:  planExport,
		},
	}
}

// tool builds a command running one of the configured tools.
func tool(cmdline string, args ...string) (Command, error) {
	prog, lead, err := config.SplitTool(cmdline)
	if err != nil {
		return Command{}, err
	}

	return Command{Name: prog, Args: append(lead, args...)}, nil
}

func planTrim(r *Run) ([]Command, error) {
	cmds := make([]Command, len(r.Samples))

	for n, id := range r.Samples {
		out := r.Layout.Trimmed(id)

		c, err := tool(r.Params.Tools.Porechop,
			"--threads", strconv.Itoa(r.Params.Threads),
			"-i", r.Layout.Consolidated(id),
			"-o", Partial(out),
		)
		if err != nil {
			return nil, err
		}

		c.Outputs = []string{out}
		cmds[n] = c
	}

	return cmds, nil
}

func planFilter(r *Run) ([]Command, error) {
	cmds := make([]Command, len(r.Samples))

	for n, id := range r.Samples {
		out := r.Layout.Filtered(id)

		c, err := tool(r.Params.Tools.Chopper,
			"-q", strconv.Itoa(r.Params.Filter.MinQuality),
			"--minlength", strconv.Itoa(r.Params.Filter.MinLength),
			"--maxlength", strconv.Itoa(r.Params.Filter.MaxLength),
			"--threads", strconv.Itoa(r.Params.Threads),
		)
		if err != nil {
			return nil, err
		}

		c.Stdin = r.Layout.Trimmed(id)
		c.DecompressStdin = true
		c.Stdout = Partial(out)
		c.CompressStdout = true
		c.Outputs = []string{out}
		cmds[n] = c
	}

	return cmds, nil
}

func buildManifest(_ context.Context, r *Run) error {
	entries, err := FindFiltered(r.Layout.RawDir())
	if err != nil {
		return err
	}

	entries = r.keepSamples(entries)

	if len(entries) == 0 {
		return ErrEmptyManifest
	}

	if len(r.Samples) > 0 && len(entries) != len(r.Samples) {
		r.Ledger.Warn("%d filtered read file(s) found for %d sample(s)", len(entries), len(r.Samples))
	}

	if err := WriteManifest(r.Layout.Manifest(), entries); err != nil {
		return err
	}

	r.Ledger.Append("wrote %s with %d sample(s)", r.Layout.Manifest(), len(entries))

	return nil
}

// keepSamples drops entries for files left in the run directory by samples
// that are no longer in r.Samples. With no samples given, every entry is kept.
func (r *Run) keepSamples(entries []ManifestEntry) []ManifestEntry {
	if len(r.Samples) == 0 {
		return entries
	}

	kept := entries[:0]

	for _, e := range entries {
		if !slices.Contains(r.Samples, e.SampleID) {
			r.Ledger.Warn("excluded %s from the manifest: sample %s is not in the metadata", e.Path, e.SampleID)

			continue
		}

		kept = append(kept, e)
	}

	return kept
}

func planImport(r *Run) ([]Command, error) {
	c, err := tool(r.Params.Tools.Qiime, "tools", "import",
		"--type", r.Params.Qiime.ImportType,
		"--input-path", r.Layout.Manifest(),
		"--output-path", Partial(r.Layout.Demux()),
		"--input-format", r.Params.Qiime.ImportFormat,
	)
	if err != nil {
		return nil, err
	}

	c.Outputs = []string{r.Layout.Demux()}

	return []Command{c}, nil
}

func planDereplicate(r *Run) ([]Command, error) {
	c, err := tool(r.Params.Tools.Qiime, "vsearch", "dereplicate-sequences",
		"--i-sequences", r.Layout.Demux(),
		"--o-dereplicated-table", Partial(r.Layout.Table()),
		"--o-dereplicated-sequences", Partial(r.Layout.RepSeqs()),
	)
	if err != nil {
		return nil, err
	}

	c.Outputs = []string{r.Layout.Table(), r.Layout.RepSeqs()}

	return []Command{c}, nil
}

func fetchReference(ctx context.Context, r *Run, f Fetcher) error {
	dst := r.Layout.Classifier()

	if _, err := os.Stat(dst); err == nil {
		r.Ledger.Append("using existing classifier %s", dst)

		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	partial := Partial(dst)

	if err := os.RemoveAll(partial); err != nil {
		return err
	}

	r.Ledger.Append("fetching classifier from %s", r.Params.Reference)

	if err := f.Fetch(ctx, r.Params.Reference, partial); err != nil {
		os.RemoveAll(partial)

		return err
	}

	if err := os.Rename(partial, dst); err != nil {
		os.RemoveAll(partial)

		return err
	}

	r.Ledger.Append("fetched classifier to %s", dst)

	return nil
}

func planClassify(r *Run) ([]Command, error) {
	c, err := tool(r.Params.Tools.Qiime, "feature-classifier", "classify-sklearn",
		"--i-classifier", r.Layout.Classifier(),
		"--i-reads", r.Layout.RepSeqs(),
		"--o-classification", Partial(r.Layout.Taxonomy()),
		"--p-n-jobs", strconv.Itoa(r.Params.Threads),
	)
	if err != nil {
		return nil, err
	}

	c.Outputs = []string{r.Layout.Taxonomy()}

	return []Command{c}, nil
}

func planExport(r *Run) ([]Command, error) {
	inputs := []string{r.Layout.Taxonomy(), r.Layout.Table()}
	cmds := make([]Command, len(inputs))

	for n, in := range inputs {
		out := filepath.Join(r.Layout.Exports(), trimExt(filepath.Base(in)))

		c, err := tool(r.Params.Tools.Qiime, "tools", "export",
			"--input-path", in,
			"--output-path", Partial(out),
		)
		if err != nil {
			return nil, err
		}

		c.Outputs = []string{out}
		cmds[n] = c
	}

	return cmds, nil
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
