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

// Package ledger provides the append-only audit trail of an ampliprep run.
//
// Each run directory gets a single log.txt, truncated when the ledger is
// opened, to which every component appends timestamped entries. Appends are
// serialized, so a Ledger may be shared by goroutines working on different
// samples.
package ledger

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/inconshreveable/log15"
)

const (
	// LogName is the basename of the ledger file inside a run directory.
	LogName = "log.txt"

	// TimeFormat is the layout of the timestamp column of every entry.
	TimeFormat = time.RFC3339

	warnPrefix  = "WARNING: "
	errorPrefix = "ERROR: "

	dirPerms = 0750
)

// Ledger is an open run log.
type Ledger struct {
	path   string
	file   *os.File
	logger log15.Logger
	tee    log15.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger makes the ledger repeat every entry to the given logger, at the
// matching level.
func WithLogger(logger log15.Logger) Option {
	return func(l *Ledger) {
		l.tee = logger
	}
}

// Open creates runDir if necessary and creates, or truncates, the ledger file
// inside it. A ledger is never appended to a log left by a previous run.
func Open(runDir string, opts ...Option) (*Ledger, error) {
	if err := os.MkdirAll(runDir, dirPerms); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	path := filepath.Join(runDir, LogName)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log: %w", err)
	}

	l := &Ledger{
		path:   path,
		file:   f,
		logger: log15.New(),
	}

	l.logger.SetHandler(log15.StreamHandler(f, entryFormat()))

	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// entryFormat returns a log15.Format that writes "timestamp\tmessage" lines.
func entryFormat() log15.Format { //nolint:ireturn
	return log15.FormatFunc(func(r *log15.Record) []byte {
		b := &bytes.Buffer{}

		msg := strings.ReplaceAll(r.Msg, "\n", " ")

		switch r.Lvl { //nolint:exhaustive
		case log15.LvlWarn:
			msg = warnPrefix + msg
		case log15.LvlError, log15.LvlCrit:
			msg = errorPrefix + msg
		}

		fmt.Fprintf(b, "%s\t%s\n", r.Time.Format(TimeFormat), msg)

		return b.Bytes()
	})
}

// Path returns the path of the ledger file.
func (l *Ledger) Path() string {
	return l.path
}

// Append records an ordinary event.
func (l *Ledger) Append(msg string, a ...any) {
	if l == nil {
		return
	}

	m := fmt.Sprintf(msg, a...)

	l.logger.Info(m)

	if l.tee != nil {
		l.tee.Info(m)
	}
}

// Warn records an event that does not stop the run but deserves attention.
func (l *Ledger) Warn(msg string, a ...any) {
	if l == nil {
		return
	}

	m := fmt.Sprintf(msg, a...)

	l.logger.Warn(m)

	if l.tee != nil {
		l.tee.Warn(m)
	}
}

// Error records a fatal problem. Callers should record an error here before
// returning it.
func (l *Ledger) Error(msg string, a ...any) {
	if l == nil {
		return
	}

	m := fmt.Sprintf(msg, a...)

	l.logger.Error(m)

	if l.tee != nil {
		l.tee.Error(m)
	}
}

// Close flushes the ledger to disk and closes it.
func (l *Ledger) Close() error {
	if l == nil {
		return nil
	}

	var errm *multierror.Error

	errm = multierror.Append(errm, l.file.Sync())
	errm = multierror.Append(errm, l.file.Close())

	return errm.ErrorOrNil()
}

// Entry is a single parsed line of a ledger file.
type Entry struct {
	Time    time.Time
	Message string
}

// ReadEntries parses the ledger file at path.
func ReadEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	defer f.Close()

	var entries []Entry

	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		ts, msg, ok := strings.Cut(scanner.Text(), "\t")
		if !ok {
			return nil, fmt.Errorf("%s: %w", scanner.Text(), ErrBadEntry)
		}

		t, err := time.Parse(TimeFormat, ts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ts, ErrBadEntry)
		}

		entries = append(entries, Entry{Time: t, Message: msg})
	}

	return entries, scanner.Err()
}

// Error is the custom error type for the ledger package.
type Error string

func (e Error) Error() string { return string(e) }

// ErrBadEntry is returned by ReadEntries for a line that is not a ledger
// entry.
const ErrBadEntry = Error("malformed ledger entry")
