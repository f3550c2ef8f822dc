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

package consolidate

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/pgzip"
	. "github.com/smartystreets/goconvey/convey"
	internaltest "github.com/wtsi-hgi/ampliprep/internal/test"
	"github.com/wtsi-hgi/ampliprep/ledger"
	"github.com/wtsi-hgi/ampliprep/reconcile"
)

func readGzip(path string) string {
	f, err := os.Open(path)
	So(err, ShouldBeNil)

	defer f.Close()

	gr, err := pgzip.NewReader(f)
	So(err, ShouldBeNil)

	b, err := io.ReadAll(gr)
	So(err, ShouldBeNil)

	return string(b)
}

func TestConsolidate(t *testing.T) {
	Convey("Given a raw-data root and a work list", t, func() {
		tmp := t.TempDir()

		root, err := internaltest.NewRawRoot(tmp, map[string]internaltest.RawFiles{
			"BC01": {
				"b.fastq.gz": internaltest.Reads("r3"),
				"a.fastq.gz": internaltest.Reads("r1", "r2"),
			},
			"BC02": {
				"x.fastq.gz": internaltest.Reads("r4"),
			},
		})
		So(err, ShouldBeNil)

		work := []reconcile.WorkItem{
			{Barcode: "BC01", SampleID: "S1", Dir: filepath.Join(root, "BC01")},
			{Barcode: "BC02", SampleID: "S2", Dir: filepath.Join(root, "BC02")},
		}

		runDir := filepath.Join(tmp, "run")
		So(os.Mkdir(runDir, 0o755), ShouldBeNil)

		l, err := ledger.Open(runDir)
		So(err, ShouldBeNil)

		defer l.Close()

		c := New(runDir, WithLedger(l))

		Convey("Consolidate writes one file per sample, named by sample ID", func() {
			So(c.Prepare(), ShouldBeNil)

			samples, err := c.Consolidate(context.Background(), work)
			So(err, ShouldBeNil)
			So(samples, ShouldResemble, []Sample{
				{SampleID: "S1", Path: filepath.Join(runDir, DirName, "S1.fastq.gz")},
				{SampleID: "S2", Path: filepath.Join(runDir, DirName, "S2.fastq.gz")},
			})

			So(readGzip(samples[0].Path), ShouldEqual, internaltest.Reads("r1", "r2", "r3"))
			So(readGzip(samples[1].Path), ShouldEqual, internaltest.Reads("r4"))

			entries, err := os.ReadDir(c.Dir())
			So(err, ShouldBeNil)
			So(entries, ShouldHaveLength, 2)

			So(l.Close(), ShouldBeNil)

			logged, err := ledger.ReadEntries(l.Path())
			So(err, ShouldBeNil)
			So(logged[len(logged)-1].Message, ShouldContainSubstring, "S2.fastq.gz")
		})

		Convey("Consolidating again into a fresh run directory gives identical bytes", func() {
			So(c.Prepare(), ShouldBeNil)

			first, err := c.Consolidate(context.Background(), work)
			So(err, ShouldBeNil)

			c2 := New(filepath.Join(tmp, "run2"), WithWorkers(4))
			So(os.Mkdir(filepath.Join(tmp, "run2"), 0o755), ShouldBeNil)
			So(c2.Prepare(), ShouldBeNil)

			second, err := c2.Consolidate(context.Background(), work)
			So(err, ShouldBeNil)

			for n := range first {
				a, err := os.ReadFile(first[n].Path)
				So(err, ShouldBeNil)

				b, err := os.ReadFile(second[n].Path)
				So(err, ShouldBeNil)

				So(b, ShouldResemble, a)
			}
		})

		Convey("Prepare fails if the output directory already exists", func() {
			So(c.Prepare(), ShouldBeNil)
			So(c.Prepare(), ShouldWrap, ErrOutputExists)
		})

		Convey("A barcode directory without reads fails before anything is written", func() {
			So(os.Mkdir(filepath.Join(root, "BC03"), 0o755), ShouldBeNil)
			So(c.Prepare(), ShouldBeNil)

			work = append(work, reconcile.WorkItem{Barcode: "BC03", SampleID: "S3", Dir: filepath.Join(root, "BC03")})

			_, err := c.Consolidate(context.Background(), work)
			So(err, ShouldWrap, ErrNoSourceFiles)
			So(err.Error(), ShouldContainSubstring, "S3")

			var cerr *ConsolidationError
			So(errors.As(err, &cerr), ShouldBeTrue)
			So(cerr.SampleID, ShouldEqual, "S3")

			entries, err := os.ReadDir(c.Dir())
			So(err, ShouldBeNil)
			So(entries, ShouldBeEmpty)
		})

		Convey("A source that isn't compressed fails and leaves no partial file", func() {
			So(internaltest.WriteFile(filepath.Join(root, "BC02", "y.fastq.gz"), "plain text"), ShouldBeNil)
			So(c.Prepare(), ShouldBeNil)

			_, err := c.Consolidate(context.Background(), work)
			So(err, ShouldWrap, ErrNotCompressed)

			_, err = os.Stat(filepath.Join(c.Dir(), PartialPrefix+"S2"+Suffix))
			So(os.IsNotExist(err), ShouldBeTrue)

			_, err = os.Stat(c.OutputPath("S2"))
			So(os.IsNotExist(err), ShouldBeTrue)
		})

		Convey("A cancelled context stops consolidation", func() {
			So(c.Prepare(), ShouldBeNil)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			_, err := c.Consolidate(ctx, work)
			So(err, ShouldWrap, context.Canceled)
		})
	})
}
