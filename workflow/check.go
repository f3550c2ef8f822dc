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

package workflow

import (
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/wtsi-hgi/ampliprep/consolidate"
	"github.com/wtsi-hgi/ampliprep/reconcile"
)

// Report is the outcome of Check.
type Report struct {
	*reconcile.Result

	// Bytes holds the total size of the source files of each work item.
	Bytes []int64
}

// Check reconciles the metadata with the raw-data root and lists every work
// item's source files, without writing anything. Every work item lacking
// source files is reported, not just the first.
func Check(opts Options) (*Report, error) {
	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}

	r, err := Reconcile(opts.RawRoot, opts.MetadataPath, opts.Params)
	if err != nil {
		return nil, err
	}

	c := consolidate.New(opts.RunDir, consolidate.WithPattern(opts.Params.ReadPattern))
	report := &Report{Result: r, Bytes: make([]int64, len(r.Work))}

	var merr *multierror.Error

	for n, item := range r.Work {
		sources, err := c.Sources(item)
		if err != nil {
			merr = multierror.Append(merr, err)

			continue
		}

		r.Work[n].Sources = sources

		for _, source := range sources {
			fi, err := os.Stat(source)
			if err != nil {
				merr = multierror.Append(merr, err)

				continue
			}

			report.Bytes[n] += fi.Size()
		}
	}

	if len(r.Work) == 0 {
		merr = multierror.Append(merr, ErrNoSamples)
	}

	return report, merr.ErrorOrNil()
}
