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
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/inconshreveable/log15"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/wtsi-hgi/ampliprep/config"
	"github.com/wtsi-hgi/ampliprep/consolidate"
	internaltest "github.com/wtsi-hgi/ampliprep/internal/test"
	"github.com/wtsi-hgi/ampliprep/ledger"
	"github.com/wtsi-hgi/ampliprep/stage"
)

type localFetcher struct {
	calls int
}

func (f *localFetcher) Fetch(_ context.Context, src, dst string) error {
	f.calls++

	return os.WriteFile(dst, []byte(src), 0o600)
}

const metadataTSV = "#SampleID\tBarcode\tSite\n" +
	"#q2:types\tcategorical\tcategorical\n" +
	"gut-1\tbarcode01\tgut\n" +
	"gut-2\tbarcode02\tgut\n" +
	"skin-1\tbarcode03\tskin\n"

func newOptions(t *testing.T, barcodes ...string) (Options, *localFetcher) {
	t.Helper()

	tmp := t.TempDir()

	raw := map[string]internaltest.RawFiles{}
	for _, barcode := range barcodes {
		raw[barcode] = internaltest.RawFiles{
			"reads_0.fastq.gz": internaltest.Reads(barcode + "-a"),
			"reads_1.fastq.gz": internaltest.Reads(barcode + "-b"),
		}
	}

	root, err := internaltest.NewRawRoot(tmp, raw)
	So(err, ShouldBeNil)

	So(os.Mkdir(filepath.Join(root, "unclassified"), 0o755), ShouldBeNil)

	metadataPath := filepath.Join(tmp, "metadata.tsv")
	So(internaltest.WriteFile(metadataPath, metadataTSV), ShouldBeNil)

	bin := filepath.Join(tmp, "bin")
	So(os.Mkdir(bin, 0o755), ShouldBeNil)

	p := config.Default()
	p.Workers = 2

	for _, fake := range []struct {
		field  *string
		name   string
		script string
	}{
		{&p.Tools.Porechop, "porechop", internaltest.FakePorechop},
		{&p.Tools.Chopper, "chopper", internaltest.FakeChopper},
		{&p.Tools.Qiime, "qiime", internaltest.FakeQiime},
	} {
		path, err := internaltest.WriteTool(bin, fake.name, fake.script)
		So(err, ShouldBeNil)

		*fake.field = path
	}

	f := &localFetcher{}

	return Options{
		RawRoot:      root,
		MetadataPath: metadataPath,
		RunDir:       filepath.Join(tmp, "out", "run1"),
		Params:       p,
		Fetcher:      f,
	}, f
}

func entries(opts Options) []string {
	es, err := ledger.ReadEntries(filepath.Join(opts.RunDir, ledger.LogName))
	So(err, ShouldBeNil)

	msgs := make([]string, len(es))
	for n, e := range es {
		msgs[n] = e.Message
	}

	return msgs
}

func anyContains(msgs []string, sub string) bool {
	for _, m := range msgs {
		if strings.Contains(m, sub) {
			return true
		}
	}

	return false
}

func TestRun(t *testing.T) {
	Convey("Given metadata and a raw-data root that agree", t, func() {
		opts, fetcher := newOptions(t, "barcode01", "barcode02", "barcode03")

		Convey("a run makes every output and a manifest of every sample", func() {
			res, err := Run(context.Background(), opts)
			So(err, ShouldBeNil)
			So(res.RunID, ShouldNotBeEmpty)
			So(res.Samples, ShouldHaveLength, 3)
			So(res.Reconciled.SampleIDs(), ShouldResemble, []string{"gut-1", "gut-2", "skin-1"})

			So(res.Manifest, ShouldHaveLength, 3)

			for n, id := range []string{"gut-1", "gut-2", "skin-1"} {
				So(res.Manifest[n].SampleID, ShouldEqual, id)
				So(filepath.IsAbs(res.Manifest[n].Path), ShouldBeTrue)

				_, err := os.Stat(res.Manifest[n].Path)
				So(err, ShouldBeNil)
			}

			for _, name := range []string{
				stage.ManifestName, stage.DemuxName, stage.TableName, stage.RepSeqsName,
				stage.ClassifierName, stage.TaxonomyName, stage.ExportsName,
			} {
				_, err := os.Stat(filepath.Join(opts.RunDir, name))
				So(err, ShouldBeNil)
			}

			So(fetcher.calls, ShouldEqual, 1)

			msgs := entries(opts)
			So(msgs[0], ShouldEqual, "ampliprep run "+res.RunID)
			So(msgs[len(msgs)-1], ShouldEqual, "run "+res.RunID+" finished")
			So(anyContains(msgs, "WARNING"), ShouldBeFalse)

			Convey("running again into the same run directory fails", func() {
				_, err := Run(context.Background(), opts)
				So(err, ShouldWrap, consolidate.ErrOutputExists)

				msgs := entries(opts)
				So(msgs[len(msgs)-1], ShouldStartWith, "ERROR: ")
			})

			Convey("a resumed run starts from the filtered reads", func() {
				So(os.Remove(filepath.Join(opts.RunDir, stage.TaxonomyName)), ShouldBeNil)
				So(os.Remove(filepath.Join(opts.RunDir, stage.ManifestName)), ShouldBeNil)

				opts.Resume = true

				res2, err := Run(context.Background(), opts)
				So(err, ShouldBeNil)
				So(res2.Samples, ShouldBeEmpty)
				So(res2.Manifest, ShouldResemble, res.Manifest)
				So(res2.RunID, ShouldNotEqual, res.RunID)

				_, err = os.Stat(filepath.Join(opts.RunDir, stage.TaxonomyName))
				So(err, ShouldBeNil)

				So(fetcher.calls, ShouldEqual, 1)

				msgs := entries(opts)
				So(msgs[0], ShouldEqual, "ampliprep run "+res2.RunID)
				So(anyContains(msgs, "resuming from stage build-manifest"), ShouldBeTrue)
				So(anyContains(msgs, "stage trim-adapters"), ShouldBeFalse)
				So(anyContains(msgs, "consolidated"), ShouldBeFalse)
			})

			Convey("a resumed run only lists samples still in the metadata", func() {
				So(internaltest.WriteFile(opts.MetadataPath,
					"#SampleID\tBarcode\tSite\ngut-1\tbarcode01\tgut\n"), ShouldBeNil)

				opts.Resume = true

				res2, err := Run(context.Background(), opts)
				So(err, ShouldBeNil)
				So(res2.Reconciled.SampleIDs(), ShouldResemble, []string{"gut-1"})
				So(res2.Manifest, ShouldHaveLength, 1)
				So(res2.Manifest[0].SampleID, ShouldEqual, "gut-1")

				manifest, err := stage.ReadManifest(filepath.Join(opts.RunDir, stage.ManifestName))
				So(err, ShouldBeNil)
				So(manifest, ShouldResemble, res2.Manifest)

				msgs := entries(opts)
				So(anyContains(msgs, "sample gut-2 is not in the metadata"), ShouldBeTrue)
				So(anyContains(msgs, "sample skin-1 is not in the metadata"), ShouldBeTrue)
			})
		})

		Convey("an environment command is recorded in the run directory", func() {
			env, err := internaltest.WriteTool(t.TempDir(), "env", internaltest.FakeEnvironment)
			So(err, ShouldBeNil)

			opts.Params.Tools.Environment = env

			_, err = Run(context.Background(), opts)
			So(err, ShouldBeNil)

			b, err := os.ReadFile(filepath.Join(opts.RunDir, EnvironmentName))
			So(err, ShouldBeNil)
			So(string(b), ShouldContainSubstring, "porechop 0.2.4")
		})

		Convey("a failing environment command stops the run", func() {
			failing, err := internaltest.WriteTool(t.TempDir(), "env", internaltest.FailingTool)
			So(err, ShouldBeNil)

			opts.Params.Tools.Environment = failing

			_, err = Run(context.Background(), opts)

			var ee *stage.ExecutionError
			So(errors.As(err, &ee), ShouldBeTrue)
			So(ee.Stage, ShouldEqual, "environment")

			_, err = os.Stat(filepath.Join(opts.RunDir, consolidate.DirName))
			So(os.IsNotExist(err), ShouldBeTrue)
		})

		Convey("a failing stage is the last entry of the ledger", func() {
			failing, err := internaltest.WriteTool(t.TempDir(), "qiime", internaltest.FailingTool)
			So(err, ShouldBeNil)

			opts.Params.Tools.Qiime = failing

			_, err = Run(context.Background(), opts)

			var ee *stage.ExecutionError
			So(errors.As(err, &ee), ShouldBeTrue)
			So(ee.Stage, ShouldEqual, stage.Import)
			So(ee.ExitCode, ShouldEqual, 3)

			msgs := entries(opts)
			So(msgs[len(msgs)-1], ShouldStartWith, "ERROR: stage import failed")

			_, err = os.Stat(filepath.Join(opts.RunDir, stage.ManifestName))
			So(err, ShouldBeNil)
		})

		Convey("every entry is also sent to the given logger", func() {
			var logged []string

			opts.Logger = log15.New()
			opts.Logger.SetHandler(log15.SyncHandler(log15.FuncHandler(func(r *log15.Record) error {
				logged = append(logged, r.Msg)

				return nil
			})))

			res, err := Run(context.Background(), opts)
			So(err, ShouldBeNil)
			So(logged[0], ShouldEqual, "ampliprep run "+res.RunID)
			So(len(logged), ShouldEqual, len(entries(opts)))
		})

		Convey("a run directory must be absolute", func() {
			opts.RunDir = "out/run1"

			_, err := Run(context.Background(), opts)
			So(err, ShouldWrap, ErrRelativeRunDir)
		})

		Convey("a cancelled run stops before the pipeline advances", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			_, err := Run(ctx, opts)
			So(err, ShouldWrap, context.Canceled)

			msgs := entries(opts)
			So(msgs[len(msgs)-1], ShouldStartWith, "ERROR: ")
		})
	})

	Convey("A barcode in the metadata with no directory is skipped with a warning", t, func() {
		opts, _ := newOptions(t, "barcode01", "barcode02")

		res, err := Run(context.Background(), opts)
		So(err, ShouldBeNil)
		So(res.Reconciled.MetadataOnly, ShouldResemble, []string{"barcode03"})
		So(res.Manifest, ShouldHaveLength, 2)

		_, err = os.Stat(filepath.Join(opts.RunDir, consolidate.DirName, "skin-1.fastq.gz"))
		So(os.IsNotExist(err), ShouldBeTrue)

		So(anyContains(entries(opts), "WARNING: barcode barcode03"), ShouldBeTrue)
	})

	Convey("A directory not in the metadata is excluded and audited", t, func() {
		opts, _ := newOptions(t, "barcode01", "barcode02", "barcode03", "barcode04")

		res, err := Run(context.Background(), opts)
		So(err, ShouldBeNil)
		So(res.Reconciled.DirectoryOnly, ShouldResemble, []string{"barcode04"})
		So(res.Manifest, ShouldHaveLength, 3)

		des, err := os.ReadDir(filepath.Join(opts.RunDir, consolidate.DirName))
		So(err, ShouldBeNil)

		for _, de := range des {
			So(de.Name(), ShouldNotContainSubstring, "barcode04")
		}

		msgs := entries(opts)
		So(anyContains(msgs, "barcode directory barcode04 is not in the metadata"), ShouldBeTrue)
		So(anyContains(msgs, "WARNING"), ShouldBeFalse)
	})

	Convey("Resuming without a previous run fails before any stage runs", t, func() {
		opts, fetcher := newOptions(t, "barcode01")
		opts.Resume = true

		_, err := Run(context.Background(), opts)

		var pe *stage.PreconditionError
		So(errors.As(err, &pe), ShouldBeTrue)

		_, err = os.Stat(filepath.Join(opts.RunDir, stage.ManifestName))
		So(os.IsNotExist(err), ShouldBeTrue)
		So(fetcher.calls, ShouldEqual, 0)

		msgs := entries(opts)
		So(msgs[len(msgs)-1], ShouldStartWith, "ERROR: cannot resume")
	})

	Convey("No overlap between metadata and directories is an error", t, func() {
		opts, _ := newOptions(t, "barcode09")

		_, err := Run(context.Background(), opts)
		So(err, ShouldWrap, ErrNoSamples)
	})
}

func TestCheck(t *testing.T) {
	Convey("Check lists the work without writing anything", t, func() {
		opts, _ := newOptions(t, "barcode01", "barcode03", "barcode05")

		report, err := Check(opts)
		So(err, ShouldBeNil)
		So(report.Barcodes(), ShouldResemble, []string{"barcode01", "barcode03"})
		So(report.MetadataOnly, ShouldResemble, []string{"barcode02"})
		So(report.DirectoryOnly, ShouldResemble, []string{"barcode05"})
		So(report.Work[0].Sources, ShouldHaveLength, 2)
		So(report.Bytes[0], ShouldBeGreaterThan, 0)

		_, err = os.Stat(opts.RunDir)
		So(os.IsNotExist(err), ShouldBeTrue)

		Convey("and reports every barcode directory without reads", func() {
			for _, barcode := range []string{"barcode01", "barcode03"} {
				dir := filepath.Join(opts.RawRoot, barcode)
				So(os.RemoveAll(dir), ShouldBeNil)
				So(os.Mkdir(dir, 0o755), ShouldBeNil)
			}

			_, err := Check(opts)
			So(err, ShouldWrap, consolidate.ErrNoSourceFiles)
			So(err.Error(), ShouldContainSubstring, "gut-1")
			So(err.Error(), ShouldContainSubstring, "skin-1")
		})
	})
}
