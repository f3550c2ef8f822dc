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

// Package stage defines the pipeline of external-tool stages applied to the
// consolidated reads of a run, and runs it.
//
// Each Stage declares the artifacts it needs and makes, so a Pipeline can be
// checked for ordering mistakes before anything runs. A stage either plans a
// list of Commands, run through an Executor, or does its work in-process.
package stage

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/wtsi-hgi/ampliprep/config"
	"github.com/wtsi-hgi/ampliprep/ledger"
)

// Artifact names something a stage makes and later stages need.
type Artifact string

const (
	ConsolidatedReads Artifact = "consolidated-reads"
	TrimmedReads      Artifact = "trimmed-reads"
	FilteredReads     Artifact = "filtered-reads"
	ManifestFile      Artifact = "manifest"
	Demux             Artifact = "demux"
	FeatureTable      Artifact = "table"
	RepSeqs           Artifact = "rep-seqs"
	ClassifierModel   Artifact = "classifier"
	Taxonomy          Artifact = "taxonomy"
	Exports           Artifact = "exports"
)

// Param is a named parameter value recorded in the ledger when a stage
// starts.
type Param struct {
	Name  string
	Value string
}

// Run is the state a stage plans against.
type Run struct {
	Layout Layout

	// Samples are the sample IDs to process, in order. The manifest only
	// lists filtered reads of these samples; if empty, every filtered read
	// file in the run directory is listed.
	Samples []string

	Params config.Params
	Ledger *ledger.Ledger

	// Seed lists the artifacts present before the first stage runs.
	Seed []Artifact
}

// Stage is one step of the pipeline.
type Stage struct {
	Name   string
	Needs  []Artifact
	Makes  []Artifact
	Params []Param

	// PerSample stages plan one command per sample; these may run
	// concurrently.
	PerSample bool

	Plan func(r *Run) ([]Command, error)
	Do   func(ctx context.Context, r *Run) error
}

func (s Stage) describeParams() string {
	if len(s.Params) == 0 {
		return ""
	}

	parts := make([]string, len(s.Params))

	for n, p := range s.Params {
		parts[n] = p.Name + "=" + p.Value
	}

	return " (" + strings.Join(parts, ", ") + ")"
}

// Pipeline is an ordered list of stages.
type Pipeline []Stage

// Validate checks that stage names are unique, that every stage has a single
// action, and that every stage's needs are seeded or made by an earlier
// stage.
func (p Pipeline) Validate(seed ...Artifact) error {
	have := make(map[Artifact]bool, len(seed))

	for _, a := range seed {
		have[a] = true
	}

	seen := make(map[string]bool, len(p))

	for _, s := range p {
		if seen[s.Name] {
			return fmt.Errorf("%s: %w", s.Name, ErrDuplicateStage)
		}

		seen[s.Name] = true

		if (s.Plan == nil) == (s.Do == nil) {
			return fmt.Errorf("%s: %w", s.Name, ErrNoAction)
		}

		for _, need := range s.Needs {
			if !have[need] {
				return fmt.Errorf("stage %s needs %s: %w", s.Name, need, ErrUnsatisfied)
			}
		}

		for _, made := range s.Makes {
			have[made] = true
		}
	}

	return nil
}

// From returns the pipeline starting at the named stage.
func (p Pipeline) From(name string) (Pipeline, error) {
	n := slices.IndexFunc(p, func(s Stage) bool { return s.Name == name })
	if n < 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownStage)
	}

	return p[n:], nil
}

// Names returns the stage names in order.
func (p Pipeline) Names() []string {
	names := make([]string, len(p))

	for n, s := range p {
		names[n] = s.Name
	}

	return names
}
