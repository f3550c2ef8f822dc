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

// Package workflow ties the ampliprep components together into a run: the
// sample metadata is loaded and reconciled against the raw-data root, each
// sample's reads are consolidated, and the amplicon pipeline is run over the
// results, with every step recorded in the run's ledger.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/inconshreveable/log15"
	"github.com/wtsi-hgi/ampliprep/config"
	"github.com/wtsi-hgi/ampliprep/consolidate"
	"github.com/wtsi-hgi/ampliprep/discovery"
	"github.com/wtsi-hgi/ampliprep/ledger"
	"github.com/wtsi-hgi/ampliprep/metadata"
	"github.com/wtsi-hgi/ampliprep/reconcile"
	"github.com/wtsi-hgi/ampliprep/stage"
)

// EnvironmentName is the file in the run directory holding the output of the
// configured environment command.
const EnvironmentName = "environment.txt"

const environmentStage = "environment"

// Error is the custom error type for the workflow package.
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrRelativeRunDir = Error("run directory must be an absolute path")
	ErrNoSamples      = Error("no sample is both in the metadata and in the raw-data root")
)

// Options describe a run.
type Options struct {
	RawRoot      string
	MetadataPath string

	// RunDir is the absolute path of the run directory; every output path is
	// derived from it.
	RunDir string

	// Resume skips consolidation, trimming and filtering, starting from the
	// filtered reads a previous run left in RunDir.
	Resume bool

	Params config.Params

	// Executor runs external tools. Defaults to stage.LocalExecutor.
	Executor stage.Executor

	// Fetcher downloads the classifier. Defaults to stage.GetterFetcher.
	Fetcher stage.Fetcher

	// Logger, if set, receives a copy of every ledger entry.
	Logger log15.Logger
}

// Result describes a successful run.
type Result struct {
	RunID      string
	Layout     stage.Layout
	Reconciled *reconcile.Result

	// Samples are the consolidated samples; empty for a resumed run.
	Samples  []consolidate.Sample
	Manifest []stage.ManifestEntry
}

// Run performs a run as described by opts. Every error after the ledger is
// opened is recorded there before being returned.
func Run(ctx context.Context, opts Options) (res *Result, err error) {
	if err = opts.validate(); err != nil {
		return nil, err
	}

	var lopts []ledger.Option
	if opts.Logger != nil {
		lopts = append(lopts, ledger.WithLogger(opts.Logger))
	}

	l, err := ledger.Open(opts.RunDir, lopts...)
	if err != nil {
		return nil, err
	}

	defer func() {
		if errc := l.Close(); errc != nil {
			err = multierror.Append(err, errc).ErrorOrNil()
		}
	}()

	w := &run{
		opts:   opts,
		id:     uuid.NewString(),
		layout: stage.Layout{Root: opts.RunDir},
		ledger: l,
		runner: &stage.Runner{
			Executor: opts.executor(),
			Workers:  opts.Params.Workers,
			Timeout:  opts.Params.Timeout,
		},
	}

	return w.do(ctx)
}

func (o Options) validate() error {
	if !filepath.IsAbs(o.RunDir) {
		return fmt.Errorf("%q: %w", o.RunDir, ErrRelativeRunDir)
	}

	return o.Params.Validate()
}

func (o Options) executor() stage.Executor { //nolint:ireturn
	if o.Executor != nil {
		return o.Executor
	}

	return stage.LocalExecutor{}
}

func (o Options) fetcher() stage.Fetcher { //nolint:ireturn
	if o.Fetcher != nil {
		return o.Fetcher
	}

	return stage.GetterFetcher{}
}

type run struct {
	opts   Options
	id     string
	layout stage.Layout
	ledger *ledger.Ledger
	runner *stage.Runner
}

func (w *run) do(ctx context.Context) (*Result, error) {
	w.header()

	if err := w.environment(ctx); err != nil {
		return nil, err
	}

	reconciled, err := w.reconcile()
	if err != nil {
		return nil, w.fail(err)
	}

	res := &Result{RunID: w.id, Layout: w.layout, Reconciled: reconciled}

	pipeline := stage.Amplicon(w.opts.Params, w.opts.fetcher())
	state := &stage.Run{
		Layout:  w.layout,
		Samples: reconciled.SampleIDs(),
		Params:  w.opts.Params,
		Ledger:  w.ledger,
	}

	if w.opts.Resume {
		pipeline, err = w.resume(pipeline, reconciled)
		if err != nil {
			return nil, w.fail(err)
		}

		state.Seed = stage.ResumeSeed()
	} else {
		res.Samples, err = w.consolidate(ctx, reconciled)
		if err != nil {
			return nil, w.fail(err)
		}

		state.Seed = []stage.Artifact{stage.ConsolidatedReads}
	}

	if err = w.runner.Run(ctx, pipeline, state); err != nil {
		return nil, err
	}

	res.Manifest, err = stage.ReadManifest(w.layout.Manifest())
	if err != nil {
		return nil, w.fail(err)
	}

	w.ledger.Append("run %s finished", w.id)

	return res, nil
}

func (w *run) fail(err error) error {
	w.ledger.Error("%s", err)

	return err
}

func (w *run) header() {
	p := w.opts.Params

	w.ledger.Append("ampliprep run %s", w.id)
	w.ledger.Append("raw-data root: %s", w.opts.RawRoot)
	w.ledger.Append("metadata: %s", w.opts.MetadataPath)
	w.ledger.Append("run directory: %s", w.opts.RunDir)
	w.ledger.Append("resume: %t", w.opts.Resume)
	w.ledger.Append("threads: %d; workers: %d; timeout: %s", p.Threads, p.Workers, p.Timeout)
	w.ledger.Append("tools: porechop=%q chopper=%q qiime=%q", p.Tools.Porechop, p.Tools.Chopper, p.Tools.Qiime)
}

// environment records the output of the configured environment command.
func (w *run) environment(ctx context.Context) error {
	if w.opts.Params.Tools.Environment == "" {
		return nil
	}

	prog, args, err := config.SplitTool(w.opts.Params.Tools.Environment)
	if err != nil {
		return w.fail(err)
	}

	out := filepath.Join(w.layout.Root, EnvironmentName)

	err = w.runner.Exec(context.WithoutCancel(ctx), environmentStage, w.ledger, stage.Command{
		Name:    prog,
		Args:    args,
		Stdout:  stage.Partial(out),
		Outputs: []string{out},
	})
	if err != nil {
		return w.fail(err)
	}

	w.ledger.Append("recorded environment in %s", out)

	return nil
}

func (w *run) reconcile() (*reconcile.Result, error) {
	r, err := Reconcile(w.opts.RawRoot, w.opts.MetadataPath, w.opts.Params)
	if err != nil {
		return nil, err
	}

	r.Log(w.ledger)

	if len(r.Work) == 0 {
		return nil, ErrNoSamples
	}

	return r, nil
}

// Reconcile loads the metadata, scans the raw-data root and reconciles the
// two.
func Reconcile(rawRoot, metadataPath string, p config.Params) (*reconcile.Result, error) {
	store, err := metadata.Load(metadataPath, p.Columns, metadata.WithReservedSuffixes(stage.ReservedSuffixes()...))
	if err != nil {
		return nil, err
	}

	barcodes, err := discovery.Scan(rawRoot)
	if err != nil {
		return nil, err
	}

	return reconcile.Reconcile(store, barcodes, rawRoot), nil
}

func (w *run) consolidate(ctx context.Context, r *reconcile.Result) ([]consolidate.Sample, error) {
	c := consolidate.New(w.layout.Root,
		consolidate.WithPattern(w.opts.Params.ReadPattern),
		consolidate.WithWorkers(w.opts.Params.Workers),
		consolidate.WithLedger(w.ledger),
	)

	if err := c.Prepare(); err != nil {
		return nil, err
	}

	return c.Consolidate(ctx, r.Work)
}

// resume checks that a previous run left filtered reads to start from, and
// returns the part of the pipeline still to run.
func (w *run) resume(p stage.Pipeline, r *reconcile.Result) (stage.Pipeline, error) {
	if err := stage.CheckResume(w.layout); err != nil {
		return nil, err
	}

	for _, id := range r.SampleIDs() {
		if _, err := os.Stat(w.layout.Filtered(id)); errors.Is(err, os.ErrNotExist) {
			w.ledger.Warn("sample %s has no filtered reads from a previous run", id)
		}
	}

	w.ledger.Append("resuming from stage %s", stage.ResumeFrom)

	return p.From(stage.ResumeFrom)
}
