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

package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/inconshreveable/log15"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLedger(t *testing.T) {
	Convey("Given a run directory that doesn't exist yet", t, func() {
		runDir := filepath.Join(t.TempDir(), "run1")

		Convey("Open creates it along with an empty log", func() {
			l, err := Open(runDir)
			So(err, ShouldBeNil)
			So(l.Path(), ShouldEqual, filepath.Join(runDir, LogName))

			fi, err := os.Stat(l.Path())
			So(err, ShouldBeNil)
			So(fi.Size(), ShouldEqual, 0)
			So(l.Close(), ShouldBeNil)
		})

		Convey("Appended entries are timestamped and read back in order", func() {
			l, err := Open(runDir)
			So(err, ShouldBeNil)

			l.Append("run %s started", "abc")
			l.Warn("barcode %s is only in the metadata", "BC03")
			l.Error("stage %q failed", "quality-filter")
			So(l.Close(), ShouldBeNil)

			entries, err := ReadEntries(l.Path())
			So(err, ShouldBeNil)
			So(len(entries), ShouldEqual, 3)
			So(entries[0].Message, ShouldEqual, "run abc started")
			So(entries[1].Message, ShouldEqual, "WARNING: barcode BC03 is only in the metadata")
			So(entries[2].Message, ShouldEqual, `ERROR: stage "quality-filter" failed`)
			So(entries[0].Time.IsZero(), ShouldBeFalse)
		})

		Convey("Multi-line messages stay on one entry line", func() {
			l, err := Open(runDir)
			So(err, ShouldBeNil)

			l.Append("first\nsecond")
			So(l.Close(), ShouldBeNil)

			entries, err := ReadEntries(l.Path())
			So(err, ShouldBeNil)
			So(entries, ShouldHaveLength, 1)
			So(entries[0].Message, ShouldEqual, "first second")
		})

		Convey("Opening the ledger again truncates the previous log", func() {
			l, err := Open(runDir)
			So(err, ShouldBeNil)
			l.Append("old run")
			So(l.Close(), ShouldBeNil)

			l, err = Open(runDir)
			So(err, ShouldBeNil)
			l.Append("new run")
			So(l.Close(), ShouldBeNil)

			entries, err := ReadEntries(l.Path())
			So(err, ShouldBeNil)
			So(entries, ShouldHaveLength, 1)
			So(entries[0].Message, ShouldEqual, "new run")
		})

		Convey("Concurrent appends never interleave", func() {
			l, err := Open(runDir)
			So(err, ShouldBeNil)

			var wg sync.WaitGroup

			for i := range 50 {
				wg.Add(1)

				go func() {
					defer wg.Done()

					l.Append("sample %d %s", i, strings.Repeat("x", 200))
				}()
			}

			wg.Wait()
			So(l.Close(), ShouldBeNil)

			entries, err := ReadEntries(l.Path())
			So(err, ShouldBeNil)
			So(entries, ShouldHaveLength, 50)

			for _, e := range entries {
				So(e.Message, ShouldEndWith, strings.Repeat("x", 200))
			}
		})

		Convey("Entries can be repeated to another logger", func() {
			var msgs []string

			app := log15.New()
			app.SetHandler(log15.FuncHandler(func(r *log15.Record) error {
				msgs = append(msgs, fmt.Sprintf("%s %s", r.Lvl, r.Msg))

				return nil
			}))

			l, err := Open(runDir, WithLogger(app))
			So(err, ShouldBeNil)

			l.Append("hello")
			l.Warn("careful")
			So(l.Close(), ShouldBeNil)

			So(msgs, ShouldResemble, []string{"info hello", "warn careful"})
		})
	})

	Convey("Open fails when the run directory can't be created", t, func() {
		file := filepath.Join(t.TempDir(), "file")
		So(os.WriteFile(file, nil, 0o600), ShouldBeNil)

		_, err := Open(filepath.Join(file, "run"))
		So(err, ShouldNotBeNil)
	})

	Convey("ReadEntries rejects lines that are not entries", t, func() {
		path := filepath.Join(t.TempDir(), LogName)
		So(os.WriteFile(path, []byte("no tab here\n"), 0o600), ShouldBeNil)

		_, err := ReadEntries(path)
		So(err, ShouldWrap, ErrBadEntry)
	})

	Convey("A nil ledger ignores appends", t, func() {
		var l *Ledger

		So(func() { l.Append("x") }, ShouldNotPanic)
		So(l.Close(), ShouldBeNil)
	})
}
