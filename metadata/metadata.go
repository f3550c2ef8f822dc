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

// Package metadata loads the tab-separated sample metadata table that maps
// sequencing barcodes to the sample IDs used for every downstream artefact.
package metadata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"unicode"

	"github.com/hashicorp/go-multierror"
)

const (
	// DefaultBarcodeColumn is the header of the barcode column in a QIIME
	// style metadata file.
	DefaultBarcodeColumn = "Barcode"

	// DefaultSampleIDColumn is the header of the sample ID column in a QIIME
	// style metadata file.
	DefaultSampleIDColumn = "#SampleID"

	directivePrefix = "#q2:"
)

// Columns names the header strings of the two required columns.
type Columns struct {
	Barcode  string `yaml:"barcode"`
	SampleID string `yaml:"sample_id"`
}

// DefaultColumns returns the QIIME metadata header names.
func DefaultColumns() Columns {
	return Columns{
		Barcode:  DefaultBarcodeColumn,
		SampleID: DefaultSampleIDColumn,
	}
}

func (c Columns) withDefaults() Columns {
	if c.Barcode == "" {
		c.Barcode = DefaultBarcodeColumn
	}

	if c.SampleID == "" {
		c.SampleID = DefaultSampleIDColumn
	}

	return c
}

// Record is one row of the metadata table.
type Record struct {
	Barcode  string
	SampleID string

	// Fields holds every column of the row, keyed by header.
	Fields map[string]string
}

// Store is an immutable index of metadata records by barcode.
type Store struct {
	records map[string]*Record
	headers []string
}

// Option configures parsing.
type Option func(*parser)

// WithReservedSuffixes rejects sample IDs that end with any of the given
// suffixes. Pipeline stages name their outputs by appending such suffixes to
// the sample ID, so a sample ID ending in one would be mistaken for another
// sample's output.
func WithReservedSuffixes(suffixes ...string) Option {
	return func(p *parser) {
		p.reserved = append(p.reserved, suffixes...)
	}
}

type parser struct {
	cols     Columns
	reserved []string

	barcodeCol  int
	sampleIDCol int
	headers     []string
}

// Load reads and validates the metadata table at path.
func Load(path string, cols Columns, opts ...Option) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata file: %w", err)
	}

	defer f.Close()

	s, err := Parse(f, cols, opts...)
	if err != nil {
		return nil, withPath(err, path)
	}

	return s, nil
}

func withPath(err error, path string) error {
	var (
		ferr *FormatError
		ierr *IntegrityError
	)

	switch {
	case errors.As(err, &ferr):
		ferr.Path = path
	case errors.As(err, &ierr):
		ierr.Path = path
	}

	return err
}

// Parse reads a tab-separated metadata table with a header row. The required
// columns may be in any position; other columns are kept in Record.Fields.
// Blank lines and QIIME "#q2:" directive rows are skipped.
func Parse(r io.Reader, cols Columns, opts ...Option) (*Store, error) {
	p := &parser{cols: cols.withDefaults()}

	for _, opt := range opts {
		opt(p)
	}

	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	if err := p.parseHeaders(cr); err != nil {
		return nil, err
	}

	return p.parseRecords(cr)
}

func (p *parser) parseHeaders(cr *csv.Reader) error {
	line, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}

		return &FormatError{Err: err}
	}

	for n := range line {
		line[n] = strings.TrimSpace(line[n])
	}

	p.headers = line

	var errm *multierror.Error

	for _, header := range [...]string{p.cols.Barcode, p.cols.SampleID} {
		switch count(line, header) {
		case 0:
			errm = multierror.Append(errm, fmt.Errorf("%s: %w", header, ErrMissingColumn))
		case 1:
		default:
			errm = multierror.Append(errm, fmt.Errorf("%s: %w", header, ErrDuplicateColumn))
		}
	}

	if errm != nil {
		errm.ErrorFormat = listFormat

		return &FormatError{Err: errm}
	}

	p.barcodeCol = slices.Index(line, p.cols.Barcode)
	p.sampleIDCol = slices.Index(line, p.cols.SampleID)

	return nil
}

func count(headers []string, header string) int {
	n := 0

	for _, h := range headers {
		if h == header {
			n++
		}
	}

	return n
}

func (p *parser) parseRecords(cr *csv.Reader) (*Store, error) {
	s := &Store{
		records: make(map[string]*Record),
		headers: p.headers,
	}

	sampleIDs := make(map[string]int)

	var errm *multierror.Error

	for {
		line, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, &FormatError{Err: err}
		}

		row, _ := cr.FieldPos(0)

		if isSkippable(line) {
			continue
		}

		if len(line) < len(p.headers) {
			return nil, &FormatError{Err: fmt.Errorf("line %d: %w", row, ErrTooFewColumns)}
		}

		rec := p.newRecord(line)

		errm = checkRecord(errm, rec, row, s.records, sampleIDs, p.reserved)

		if _, dup := s.records[rec.Barcode]; !dup && rec.Barcode != "" {
			s.records[rec.Barcode] = rec
		}

		if _, dup := sampleIDs[rec.SampleID]; !dup && rec.SampleID != "" {
			sampleIDs[rec.SampleID] = row
		}
	}

	if errm != nil {
		return nil, &IntegrityError{Errors: errm}
	}

	return s, nil
}

func isSkippable(line []string) bool {
	if len(line) == 0 {
		return true
	}

	if strings.HasPrefix(line[0], directivePrefix) {
		return true
	}

	for _, field := range line {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}

	return true
}

func (p *parser) newRecord(line []string) *Record {
	fields := make(map[string]string, len(p.headers))

	for n, header := range p.headers {
		fields[header] = strings.TrimSpace(line[n])
	}

	return &Record{
		Barcode:  strings.TrimSpace(line[p.barcodeCol]),
		SampleID: strings.TrimSpace(line[p.sampleIDCol]),
		Fields:   fields,
	}
}

func checkRecord(errm *multierror.Error, rec *Record, row int, records map[string]*Record,
	sampleIDs map[string]int, reserved []string) *multierror.Error {
	if rec.Barcode == "" {
		errm = multierror.Append(errm, fmt.Errorf("line %d: barcode: %w", row, ErrEmptyValue))
	} else if _, dup := records[rec.Barcode]; dup {
		errm = multierror.Append(errm, fmt.Errorf("line %d: %s: %w", row, rec.Barcode, ErrDuplicateBarcode))
	}

	if rec.SampleID == "" {
		return multierror.Append(errm, fmt.Errorf("line %d: sample ID: %w", row, ErrEmptyValue))
	}

	if first, dup := sampleIDs[rec.SampleID]; dup {
		errm = multierror.Append(errm,
			fmt.Errorf("line %d: %s (first on line %d): %w", row, rec.SampleID, first, ErrDuplicateSampleID))
	}

	if err := CheckSampleID(rec.SampleID, reserved...); err != nil {
		errm = multierror.Append(errm, fmt.Errorf("line %d: %w", row, err))
	}

	return errm
}

// CheckSampleID returns ErrUnsafeSampleID if id can't be used on its own as a
// file name, or ends with one of the reserved suffixes.
func CheckSampleID(id string, reserved ...string) error {
	if id == "" || id == "." || id == ".." || strings.HasPrefix(id, ".") {
		return fmt.Errorf("%q: %w", id, ErrUnsafeSampleID)
	}

	for _, r := range id {
		if r == '/' || r == '\\' || r == 0 || unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%q: %w", id, ErrUnsafeSampleID)
		}
	}

	for _, suffix := range reserved {
		if strings.HasSuffix(id, suffix) {
			return fmt.Errorf("%q ends with reserved suffix %q: %w", id, suffix, ErrUnsafeSampleID)
		}
	}

	return nil
}

// Get returns the record for the given barcode.
func (s *Store) Get(barcode string) (*Record, bool) {
	r, ok := s.records[barcode]

	return r, ok
}

// Len returns the number of records.
func (s *Store) Len() int {
	return len(s.records)
}

// Headers returns the header row of the table the store was loaded from.
func (s *Store) Headers() []string {
	return slices.Clone(s.headers)
}

// Barcodes returns every barcode in the store, sorted.
func (s *Store) Barcodes() []string {
	barcodes := make([]string, 0, len(s.records))

	for barcode := range s.records {
		barcodes = append(barcodes, barcode)
	}

	slices.Sort(barcodes)

	return barcodes
}

// Subset returns a new Store containing only the given barcodes. Barcodes not
// in s are ignored.
func (s *Store) Subset(barcodes []string) *Store {
	sub := &Store{
		records: make(map[string]*Record, len(barcodes)),
		headers: s.headers,
	}

	for _, barcode := range barcodes {
		if r, ok := s.records[barcode]; ok {
			sub.records[barcode] = r
		}
	}

	return sub
}
