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

// Package config holds the pipeline-level parameters of an ampliprep run:
// the thresholds given to the read filters, the external tool commands and
// the reference data source. Parameters can be read from a YAML file; any
// value the file doesn't set keeps its default.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/wtsi-hgi/ampliprep/discovery"
	"github.com/wtsi-hgi/ampliprep/metadata"
	"gopkg.in/yaml.v3"
)

const (
	defaultThreads    = 1
	defaultMinQuality = 11
	defaultMinLength  = 1300
	defaultMaxLength  = 1800

	// DefaultReference is the pre-trained naive Bayes classifier for full
	// length 16S reads.
	DefaultReference = "https://data.qiime2.org/classifiers/sklearn-1.4.2/silva/silva-138-99-nb-classifier.qza"

	defaultImportType   = "SampleData[SequencesWithQuality]"
	defaultImportFormat = "SingleEndFastqManifestPhred33V2"
)

// Error is the custom error type for the config package.
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrInvalid is returned by Validate for unusable parameters.
	ErrInvalid = Error("invalid parameters")
)

// Filter holds the thresholds of the quality-filter stage.
type Filter struct {
	MinQuality int `yaml:"min_quality"`
	MinLength  int `yaml:"min_length"`
	MaxLength  int `yaml:"max_length"`
}

// Tools holds the commands used to run each external tool. Each may include
// leading arguments, quoted as for a shell, e.g. "conda run -n qiime2 qiime".
type Tools struct {
	Porechop string `yaml:"porechop"`
	Chopper  string `yaml:"chopper"`
	Qiime    string `yaml:"qiime"`

	// Environment, if set, is run at the start of each run and its output
	// kept in the run directory, e.g. "conda list".
	Environment string `yaml:"environment"`
}

// Qiime holds the settings of the QIIME import.
type Qiime struct {
	ImportType   string `yaml:"import_type"`
	ImportFormat string `yaml:"import_format"`
}

// Params are the pipeline-level parameters of a run.
type Params struct {
	Threads int           `yaml:"threads"`
	Workers int           `yaml:"workers"`
	Timeout time.Duration `yaml:"timeout"`

	ReadPattern string           `yaml:"read_pattern"`
	Columns     metadata.Columns `yaml:"columns"`

	Filter    Filter `yaml:"quality_filter"`
	Tools     Tools  `yaml:"tools"`
	Qiime     Qiime  `yaml:"qiime"`
	Reference string `yaml:"reference"`
}

// Default returns the parameters used when nothing else is configured.
func Default() Params {
	return Params{
		Threads:     defaultThreads,
		Workers:     1,
		ReadPattern: discovery.DefaultPattern,
		Columns:     metadata.DefaultColumns(),
		Filter: Filter{
			MinQuality: defaultMinQuality,
			MinLength:  defaultMinLength,
			MaxLength:  defaultMaxLength,
		},
		Tools: Tools{
			Porechop: "porechop",
			Chopper:  "chopper",
			Qiime:    "qiime",
		},
		Qiime: Qiime{
			ImportType:   defaultImportType,
			ImportFormat: defaultImportFormat,
		},
		Reference: DefaultReference,
	}
}

// Load reads the YAML file at path over the defaults and validates the
// result.
func Load(path string) (Params, error) {
	f, err := os.Open(path)
	if err != nil {
		return Params{}, fmt.Errorf("failed to open config file: %w", err)
	}

	defer f.Close()

	p, err := Parse(f)
	if err != nil {
		return Params{}, fmt.Errorf("%s: %w", path, err)
	}

	return p, nil
}

// Parse reads YAML parameters over the defaults and validates the result.
// Unknown keys are an error.
func Parse(r io.Reader) (Params, error) {
	p := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return Params{}, err
	}

	return p, p.Validate()
}

// Validate checks that the parameters can be used for a run.
func (p Params) Validate() error {
	switch {
	case p.Threads < 1:
		return fmt.Errorf("threads must be at least 1: %w", ErrInvalid)
	case p.Workers < 1:
		return fmt.Errorf("workers must be at least 1: %w", ErrInvalid)
	case p.Timeout < 0:
		return fmt.Errorf("timeout must not be negative: %w", ErrInvalid)
	case p.Filter.MinQuality < 0:
		return fmt.Errorf("min_quality must not be negative: %w", ErrInvalid)
	case p.Filter.MinLength < 0 || p.Filter.MaxLength < p.Filter.MinLength:
		return fmt.Errorf("read length window %d-%d is empty: %w",
			p.Filter.MinLength, p.Filter.MaxLength, ErrInvalid)
	case p.Reference == "":
		return fmt.Errorf("no reference source: %w", ErrInvalid)
	case p.ReadPattern == "":
		return fmt.Errorf("no read pattern: %w", ErrInvalid)
	}

	for name, tool := range map[string]string{
		"porechop": p.Tools.Porechop,
		"chopper":  p.Tools.Chopper,
		"qiime":    p.Tools.Qiime,
	} {
		if _, _, err := SplitTool(tool); err != nil {
			return fmt.Errorf("tool %s: %w", name, err)
		}
	}

	if p.Tools.Environment != "" {
		if _, _, err := SplitTool(p.Tools.Environment); err != nil {
			return fmt.Errorf("tool environment: %w", err)
		}
	}

	return nil
}

// SplitTool splits a tool command into the program and its leading
// arguments.
func SplitTool(tool string) (string, []string, error) {
	words, err := shellquote.Split(tool)
	if err != nil {
		return "", nil, fmt.Errorf("%q: %w: %w", tool, err, ErrInvalid)
	}

	if len(words) == 0 {
		return "", nil, fmt.Errorf("empty command: %w", ErrInvalid)
	}

	return words[0], words[1:], nil
}
