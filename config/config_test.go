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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/wtsi-hgi/ampliprep/metadata"
)

func TestParams(t *testing.T) {
	Convey("Default parameters are valid and match the documented thresholds", t, func() {
		p := Default()
		So(p.Validate(), ShouldBeNil)
		So(p.Filter, ShouldResemble, Filter{MinQuality: 11, MinLength: 1300, MaxLength: 1800})
		So(p.Threads, ShouldEqual, 1)
		So(p.Workers, ShouldEqual, 1)
		So(p.Columns, ShouldResemble, metadata.DefaultColumns())
		So(p.Timeout, ShouldEqual, 0)
	})

	Convey("An empty document gives the defaults", t, func() {
		p, err := Parse(strings.NewReader(""))
		So(err, ShouldBeNil)
		So(p, ShouldResemble, Default())
	})

	Convey("YAML values override only what they set", t, func() {
		p, err := Parse(strings.NewReader(`
threads: 8
timeout: 90m
quality_filter:
  min_length: 1000
tools:
  qiime: conda run -n "qiime2 amplicon" qiime
  environment: conda list
columns:
  barcode: barcode-sequence
`))
		So(err, ShouldBeNil)
		So(p.Threads, ShouldEqual, 8)
		So(p.Timeout, ShouldEqual, 90*time.Minute)
		So(p.Filter, ShouldResemble, Filter{MinQuality: 11, MinLength: 1000, MaxLength: 1800})
		So(p.Tools.Porechop, ShouldEqual, "porechop")
		So(p.Columns.Barcode, ShouldEqual, "barcode-sequence")
		So(p.Columns.SampleID, ShouldEqual, metadata.DefaultSampleIDColumn)

		prog, args, err := SplitTool(p.Tools.Qiime)
		So(err, ShouldBeNil)
		So(prog, ShouldEqual, "conda")
		So(args, ShouldResemble, []string{"run", "-n", "qiime2 amplicon", "qiime"})
	})

	Convey("Invalid parameters are rejected", t, func() {
		for _, test := range [...]struct {
			Name string
			YAML string
		}{
			{"an empty length window", "quality_filter: {min_length: 1900, max_length: 1800}"},
			{"zero threads", "threads: 0"},
			{"zero workers", "workers: 0"},
			{"a negative timeout", "timeout: -1s"},
			{"a negative quality", "quality_filter: {min_quality: -1}"},
			{"an empty tool", "tools: {chopper: ''}"},
			{"an unterminated quote", `tools: {porechop: "'porechop"}`},
			{"no reference", "reference: ''"},
		} {
			Convey(test.Name, func() {
				_, err := Parse(strings.NewReader(test.YAML))
				So(err, ShouldWrap, ErrInvalid)
			})
		}

		Convey("unknown keys", func() {
			_, err := Parse(strings.NewReader("min_quality: 5"))
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Load reads a file and names it in errors", t, func() {
		path := filepath.Join(t.TempDir(), "params.yml")

		So(os.WriteFile(path, []byte("workers: 4\n"), 0o600), ShouldBeNil)

		p, err := Load(path)
		So(err, ShouldBeNil)
		So(p.Workers, ShouldEqual, 4)

		So(os.WriteFile(path, []byte("workers: none\n"), 0o600), ShouldBeNil)

		_, err = Load(path)
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, path)

		_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
		So(err, ShouldNotBeNil)
	})
}
