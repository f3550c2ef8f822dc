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
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wtsi-hgi/ampliprep/ledger"
	"golang.org/x/sync/errgroup"
)

const (
	ErrMissingOutput = Error("command succeeded but did not make its output")

	dirPerms = 0750
)

// Runner runs pipelines, one stage at a time.
type Runner struct {
	Executor Executor

	// Workers bounds how many commands of a per-sample stage run at once.
	Workers int

	// Timeout, if positive, bounds each command and each in-process stage.
	Timeout time.Duration
}

// Run validates p against the run's seed artifacts and then runs each stage
// in order, stopping at the first failure. Every stage start, command,
// finish and failure is recorded in the run's ledger.
//
// ctx is checked before each stage starts; a stage already running is only
// stopped by the timeout.
func (r *Runner) Run(ctx context.Context, p Pipeline, run *Run) error {
	if err := p.Validate(run.Seed...); err != nil {
		run.Ledger.Error("invalid pipeline: %s", err)

		return err
	}

	for _, s := range p {
		if err := ctx.Err(); err != nil {
			run.Ledger.Error("run stopped before stage %s: %s", s.Name, err)

			return fmt.Errorf("stopped before stage %s: %w", s.Name, err)
		}

		run.Ledger.Append("stage %s started%s", s.Name, s.describeParams())

		if err := r.runStage(context.WithoutCancel(ctx), s, run); err != nil {
			run.Ledger.Error("%s", err)

			return err
		}

		run.Ledger.Append("stage %s finished", s.Name)
	}

	return nil
}

func (r *Runner) runStage(ctx context.Context, s Stage, run *Run) error {
	if s.Do != nil {
		return r.do(ctx, s, run)
	}

	cmds, err := s.Plan(run)
	if err != nil {
		return &ExecutionError{Stage: s.Name, ExitCode: -1, Err: err}
	}

	workers := 1
	if s.PerSample {
		workers = max(r.Workers, 1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, c := range cmds {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			return r.Exec(gctx, s.Name, run.Ledger, c)
		})
	}

	return g.Wait()
}

func (r *Runner) do(ctx context.Context, s Stage, run *Run) error {
	dctx, cancel := r.withTimeout(ctx)
	defer cancel()

	err := s.Do(dctx, run)
	if err == nil {
		return nil
	}

	if r.timedOut(dctx) {
		return &TimeoutError{Stage: s.Name, Timeout: r.Timeout, Command: s.Name}
	}

	var ee *ExecutionError
	if errors.As(err, &ee) {
		return err
	}

	return &ExecutionError{Stage: s.Name, ExitCode: -1, Err: err}
}

// Exec runs a single command on behalf of the named stage. Its outputs are
// written to their partial paths and only moved into place if the command
// succeeds; on failure the partial outputs are removed.
func (r *Runner) Exec(ctx context.Context, stage string, l *ledger.Ledger, c Command) error {
	if err := prepareOutputs(c); err != nil {
		return &ExecutionError{Stage: stage, ExitCode: -1, Command: c.String(), Err: err}
	}

	l.Append("[%s] %s", stage, c)

	cctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.Executor.Execute(cctx, c); err != nil {
		removePartials(c)

		if r.timedOut(cctx) {
			return &TimeoutError{Stage: stage, Timeout: r.Timeout, Command: c.String()}
		}

		return &ExecutionError{Stage: stage, ExitCode: exitCode(err), Command: c.String(), Err: err}
	}

	if err := promoteOutputs(c); err != nil {
		removePartials(c)

		return &ExecutionError{Stage: stage, ExitCode: 0, Command: c.String(), Err: err}
	}

	return nil
}

func (r *Runner) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.Timeout > 0 {
		return context.WithTimeout(ctx, r.Timeout)
	}

	return context.WithCancel(ctx)
}

func (r *Runner) timedOut(ctx context.Context) bool {
	return r.Timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded)
}

func prepareOutputs(c Command) error {
	for _, out := range c.Outputs {
		if err := os.MkdirAll(filepath.Dir(out), dirPerms); err != nil {
			return err
		}

		if err := os.RemoveAll(Partial(out)); err != nil {
			return err
		}
	}

	return nil
}

func promoteOutputs(c Command) error {
	for _, out := range c.Outputs {
		partial := Partial(out)

		if _, err := os.Lstat(partial); err != nil {
			return fmt.Errorf("%s: %w", out, ErrMissingOutput)
		}

		if err := os.RemoveAll(out); err != nil {
			return err
		}

		if err := os.Rename(partial, out); err != nil {
			return err
		}
	}

	return nil
}

func removePartials(c Command) {
	for _, out := range c.Outputs {
		os.RemoveAll(Partial(out))
	}
}
