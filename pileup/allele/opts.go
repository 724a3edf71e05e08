// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package allele

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/grailbio/base/errors"
)

// StrandMode selects how forward and reverse counts are rendered.
type StrandMode int

const (
	// TaggedCombined emits one row per position with forward+reverse counts
	// and the "+/-" strand marker.
	TaggedCombined StrandMode = iota
	// Merged emits one row per position with forward+reverse counts and the
	// "." strand marker.
	Merged
	// Split emits a forward ("+") row and a reverse ("-") row per position,
	// each filtered on its own strand's depth.
	Split
)

var strandModeNames = [...]string{"tagged-combined", "merged", "split"}

func (m StrandMode) String() string {
	if int(m) < len(strandModeNames) {
		return strandModeNames[m]
	}
	return fmt.Sprintf("StrandMode(%d)", int(m))
}

// ProgressMode selects how chunk completion is reported.
type ProgressMode int

const (
	// ProgressNone disables progress reporting.
	ProgressNone ProgressMode = iota
	// ProgressLog logs one line per completed chunk.
	ProgressLog
	// ProgressBar draws a progress bar on stderr.
	ProgressBar
)

var progressModeNames = [...]string{"none", "log", "bar"}

func (m ProgressMode) String() string {
	if int(m) < len(progressModeNames) {
		return progressModeNames[m]
	}
	return fmt.Sprintf("ProgressMode(%d)", int(m))
}

// ParseProgressMode parses the -progress flag value.
func ParseProgressMode(s string) (ProgressMode, error) {
	for i, name := range progressModeNames {
		if strings.EqualFold(s, name) {
			return ProgressMode(i), nil
		}
	}
	return ProgressNone, configError("allele: unknown progress mode %q (expected one of %s)", s, strings.Join(progressModeNames[:], ", "))
}

// Opts holds the commandline options.
type Opts struct {
	// TargetPath is a tab-delimited "chrom start end" file, 0-based half-open.
	TargetPath string
	// Region is a single region string (chr, chr:pos or chr:start-end,
	// 1-based).  Exactly one of TargetPath and Region must be set.
	Region string
	// TargetHasHeader is true if the first line of TargetPath is a header.
	TargetHasHeader bool
	// ReferencePath is the FASTA path; a .fai next to it enables indexed
	// access.
	ReferencePath string
	// BamPaths lists the BAM/PAM inputs, one per sample.
	BamPaths []string

	MinDepth    int
	MeanDepth   int
	MinBaseQual int
	CountIndels bool
	WithHeader  bool
	Merged      bool
	Split       bool

	ChunkSize   int
	Parallelism int
	Progress    string

	FlagExclude      int
	Mapq             int
	MaxReadSpan      int
	SkipFailedChunks bool
}

// DefaultOpts is the default option set.  FlagExclude drops unmapped,
// secondary, QC-failed and duplicate reads.
var DefaultOpts = Opts{
	MinDepth:    0,
	MeanDepth:   0,
	MinBaseQual: 0,
	ChunkSize:   100000,
	Parallelism: 0,
	Progress:    "none",
	FlagExclude: 0x704,
	Mapq:        0,
	MaxReadSpan: 511,
}

// runOpts is the validated form of Opts.
type runOpts struct {
	Opts
	mode        StrandMode
	progress    ProgressMode
	parallelism int
}

// Mode returns the strand mode selected by the -merged and -split flags.
func (o *Opts) Mode() (StrandMode, error) {
	switch {
	case o.Merged && o.Split:
		return TaggedCombined, configError("allele: -merged and -split are mutually exclusive")
	case o.Merged:
		return Merged, nil
	case o.Split:
		return Split, nil
	}
	return TaggedCombined, nil
}

// validateParams checks the numeric and mode options, but not the input
// paths.
func (o *Opts) validateParams() (ropts runOpts, err error) {
	ropts.Opts = *o
	if ropts.mode, err = o.Mode(); err != nil {
		return
	}
	if ropts.progress, err = ParseProgressMode(o.Progress); err != nil {
		return
	}
	if o.MinDepth < 0 {
		return ropts, configError("allele: -min-depth must be nonnegative, got %d", o.MinDepth)
	}
	if o.MeanDepth < 0 {
		return ropts, configError("allele: -mean-depth must be nonnegative, got %d", o.MeanDepth)
	}
	if o.MinBaseQual < 0 || o.MinBaseQual > 255 {
		return ropts, configError("allele: -min-base-qual must be in [0, 255], got %d", o.MinBaseQual)
	}
	if o.ChunkSize <= 0 {
		return ropts, configError("allele: -chunk-size must be positive, got %d", o.ChunkSize)
	}
	if o.Parallelism < 0 {
		return ropts, configError("allele: -parallelism must be nonnegative, got %d", o.Parallelism)
	}
	if o.Mapq < 0 || o.Mapq > 255 {
		return ropts, configError("allele: -mapq must be in [0, 255], got %d", o.Mapq)
	}
	if o.MaxReadSpan <= 0 {
		return ropts, configError("allele: -max-read-span must be positive, got %d", o.MaxReadSpan)
	}
	ropts.parallelism = o.Parallelism
	if ropts.parallelism == 0 {
		ropts.parallelism = runtime.NumCPU()
	}
	return
}

// Validate checks every option, including the input paths.  Problems are
// reported as config errors.
func (o *Opts) Validate() error {
	_, err := o.validate()
	return err
}

func (o *Opts) validate() (ropts runOpts, err error) {
	if ropts, err = o.validateParams(); err != nil {
		return
	}
	if (o.TargetPath == "") == (o.Region == "") {
		return ropts, configError("allele: exactly one of -target and -region is required")
	}
	if o.ReferencePath == "" {
		return ropts, configError("allele: -reference is required")
	}
	if len(o.BamPaths) == 0 {
		return ropts, configError("allele: at least one BAM/PAM path is required")
	}
	return
}

// Error kinds.  Configuration problems are errors.Invalid, bad or missing
// inputs are errors.Precondition, and failures while processing a chunk are
// errors.Integrity.

func configError(format string, args ...interface{}) error {
	return errors.E(errors.Invalid, fmt.Sprintf(format, args...))
}

func inputError(err error, format string, args ...interface{}) error {
	if err == nil {
		return errors.E(errors.Precondition, fmt.Sprintf(format, args...))
	}
	return errors.E(errors.Precondition, fmt.Sprintf(format, args...), err)
}

func processingError(err error, format string, args ...interface{}) error {
	if err == nil {
		return errors.E(errors.Integrity, fmt.Sprintf(format, args...))
	}
	return errors.E(errors.Integrity, fmt.Sprintf(format, args...), err)
}

// IsConfigError returns true if err was caused by invalid options.
func IsConfigError(err error) bool {
	return errors.Is(errors.Invalid, err)
}

// IsInputError returns true if err was caused by an unreadable or malformed
// input, including an unknown chromosome.
func IsInputError(err error) bool {
	return errors.Is(errors.Precondition, err)
}

// IsProcessingError returns true if err was raised while processing a chunk.
func IsProcessingError(err error) bool {
	return errors.Is(errors.Integrity, err)
}
