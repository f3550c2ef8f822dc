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
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/klauspost/pgzip"
	"github.com/wtsi-hgi/ampliprep/consolidate"
)

const waitDelay = 5 * time.Second

// Command is a single invocation of an external program, given as an
// argument vector.
type Command struct {
	Name string
	Args []string

	// Stdin, if set, is a file fed to the program's standard input,
	// decompressed first if DecompressStdin is set.
	Stdin           string
	DecompressStdin bool

	// Stdout, if set, is a file receiving the program's standard output,
	// compressed if CompressStdout is set.
	Stdout         string
	CompressStdout bool

	// Outputs are the final paths the command makes. The command itself
	// writes each to its Partial path; they are moved into place only once
	// the command succeeds.
	Outputs []string
}

// Partial returns the path a command writes before its output is complete.
func Partial(path string) string {
	return filepath.Join(filepath.Dir(path), consolidate.PartialPrefix+filepath.Base(path))
}

// String renders the command as it could be typed into a shell.
func (c Command) String() string {
	s := shellquote.Join(append([]string{c.Name}, c.Args...)...)

	if c.Stdin != "" {
		if c.DecompressStdin {
			s += " < <(gzip -dc " + shellquote.Join(c.Stdin) + ")"
		} else {
			s += " < " + shellquote.Join(c.Stdin)
		}
	}

	if c.Stdout != "" {
		if c.CompressStdout {
			s += " | gzip > " + shellquote.Join(c.Stdout)
		} else {
			s += " > " + shellquote.Join(c.Stdout)
		}
	}

	return s
}

// Executor runs commands. An error carrying an ExitCode() method reports the
// program's exit status.
type Executor interface {
	Execute(ctx context.Context, cmd Command) error
}

// LocalExecutor runs commands as local processes.
type LocalExecutor struct {
	// Stderr receives the programs' standard error. Defaults to os.Stderr.
	Stderr io.Writer
}

// Execute runs cmd, killing it if ctx ends first.
func (e LocalExecutor) Execute(ctx context.Context, c Command) (err error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...) //nolint:gosec
	cmd.WaitDelay = waitDelay
	cmd.Stderr = e.Stderr

	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if c.Stdin != "" {
		closeIn, errs := setStdin(cmd, c)
		if errs != nil {
			return errs
		}

		defer closeIn()
	}

	if c.Stdout != "" {
		closeOut, errs := setStdout(cmd, c)
		if errs != nil {
			return errs
		}

		defer func() {
			if errc := closeOut(); err == nil {
				err = errc
			}
		}()
	}

	return cmd.Run()
}

func setStdin(cmd *exec.Cmd, c Command) (func(), error) {
	f, err := os.Open(c.Stdin)
	if err != nil {
		return nil, err
	}

	if !c.DecompressStdin {
		cmd.Stdin = f

		return func() { f.Close() }, nil
	}

	gr, err := pgzip.NewReader(f)
	if err != nil {
		f.Close()

		return nil, err
	}

	cmd.Stdin = gr

	return func() {
		gr.Close()
		f.Close()
	}, nil
}

func setStdout(cmd *exec.Cmd, c Command) (func() error, error) {
	f, err := os.Create(c.Stdout)
	if err != nil {
		return nil, err
	}

	if !c.CompressStdout {
		cmd.Stdout = f

		return f.Close, nil
	}

	gw := pgzip.NewWriter(f)
	cmd.Stdout = gw

	return func() error {
		err := gw.Close()
		if errc := f.Close(); err == nil {
			err = errc
		}

		return err
	}, nil
}

// exitCode returns the exit status carried by err, or -1.
func exitCode(err error) int {
	var coder interface{ ExitCode() int }

	if errors.As(err, &coder) {
		return coder.ExitCode()
	}

	return -1
}

