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

package internaltest

import (
	"os"
	"path/filepath"

	"github.com/klauspost/pgzip"
)

const (
	dirPerms  = 0o755
	filePerms = 0o644
	execPerms = 0o755
)

// FakePorechop copies its -i file to its -o file.
const FakePorechop = `#!/bin/sh
while [ $# -gt 0 ]; do
	case "$1" in
		-i) in="$2"; shift ;;
		-o) out="$2"; shift ;;
	esac
	shift
done
cp "$in" "$out"
`

// FakeChopper copies stdin to stdout.
const FakeChopper = `#!/bin/sh
cat
`

// FakeQiime creates every output path it is given: .qza outputs as files,
// anything else as a directory containing an exported file.
const FakeQiime = `#!/bin/sh
while [ $# -gt 0 ]; do
	case "$1" in
		--o-*|--output-path)
			case "$2" in
				*.qza) echo "$1" > "$2" ;;
				*) mkdir -p "$2" && echo "$1" > "$2/exported.tsv" ;;
			esac
			shift ;;
	esac
	shift
done
`

// FailingTool writes to stderr and exits 3.
const FailingTool = `#!/bin/sh
echo "tool failed" >&2
exit 3
`

// SleepingTool sleeps longer than any test timeout.
const SleepingTool = `#!/bin/sh
exec sleep 30
`

// FakeEnvironment prints a package listing.
const FakeEnvironment = `#!/bin/sh
echo "# packages in environment"
echo "porechop 0.2.4"
`

// WriteTool writes an executable script called name in dir and returns its
// path.
func WriteTool(dir, name, script string) (string, error) {
	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, []byte(script), execPerms); err != nil {
		return "", err
	}

	return path, nil
}

// WriteGzip writes content to path as a gzip stream.
func WriteGzip(path, content string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	gw := pgzip.NewWriter(f)

	if _, err := gw.Write([]byte(content)); err != nil {
		f.Close()

		return err
	}

	if err := gw.Close(); err != nil {
		f.Close()

		return err
	}

	return f.Close()
}

// RawFiles maps the basenames of read files to their uncompressed content.
type RawFiles map[string]string

// NewRawRoot creates a raw-data root inside base containing one directory per
// key of barcodes, each holding the given gzipped read files.
func NewRawRoot(base string, barcodes map[string]RawFiles) (string, error) {
	root := filepath.Join(base, "raw")

	if err := os.MkdirAll(root, dirPerms); err != nil {
		return "", err
	}

	for barcode, files := range barcodes {
		dir := filepath.Join(root, barcode)

		if err := os.MkdirAll(dir, dirPerms); err != nil {
			return "", err
		}

		for name, content := range files {
			if err := WriteGzip(filepath.Join(dir, name), content); err != nil {
				return "", err
			}
		}
	}

	return root, nil
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPerms); err != nil {
		return err
	}

	return os.WriteFile(path, []byte(content), filePerms)
}

// Reads returns a FASTQ record for the given read name.
func Reads(names ...string) string {
	s := ""

	for _, name := range names {
		s += "@" + name + "\nACGT\n+\nIIII\n"
	}

	return s
}
