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
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/grailbio/allelepile/pileup/allele"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bgzf"
)

var (
	targetPath       = flag.String("target", allele.DefaultOpts.TargetPath, "Target region file (chrom, 0-based start, end; optionally gzipped); this xor -region required")
	region           = flag.String("region", allele.DefaultOpts.Region, "Single target region. Format as <contig ID>:<1-based first pos>-<last pos>, <contig ID>:<1-based pos>, or just <contig ID>; this xor -target required")
	regionHeader     = flag.Bool("region-header", allele.DefaultOpts.TargetHasHeader, "The -target file starts with a header line")
	referencePath    = flag.String("reference", allele.DefaultOpts.ReferencePath, "Reference FASTA path (required); an adjacent .fai enables indexed access")
	minDepth         = flag.Int("min-depth", allele.DefaultOpts.MinDepth, "Skip positions where no input has at least this depth")
	meanDepth        = flag.Int("mean-depth", allele.DefaultOpts.MeanDepth, "Skip positions where the mean depth across inputs is below this")
	minBaseQual      = flag.Int("min-base-qual", allele.DefaultOpts.MinBaseQual, "Lower bound on base quality in a single read")
	countIndels      = flag.Bool("count-indels", allele.DefaultOpts.CountIndels, "Report insertion and deletion lengths")
	withHeader       = flag.Bool("with-header", allele.DefaultOpts.WithHeader, "Write a header line")
	merged           = flag.Bool("merged", allele.DefaultOpts.Merged, "Merge strands, with strand marker '.'")
	split            = flag.Bool("split", allele.DefaultOpts.Split, "Report forward and reverse template strands on separate rows")
	chunkSize        = flag.Int("chunk-size", allele.DefaultOpts.ChunkSize, "Number of positions per parallel job")
	parallelism      = flag.Int("parallelism", allele.DefaultOpts.Parallelism, "Maximum number of simultaneous jobs; 0 = runtime.NumCPU()")
	progress         = flag.String("progress", allele.DefaultOpts.Progress, "Progress reporting: 'none', 'log', or 'bar'")
	flagExclude      = flag.Int("flag-exclude", allele.DefaultOpts.FlagExclude, "Reads with a FLAG bit intersecting this value are skipped")
	mapq             = flag.Int("mapq", allele.DefaultOpts.Mapq, "Reads with MAPQ below this level are skipped")
	maxReadSpan      = flag.Int("max-read-span", allele.DefaultOpts.MaxReadSpan, "Upper bound on size of reference-genome region a read maps to")
	skipFailedChunks = flag.Bool("skip-failed-chunks", allele.DefaultOpts.SkipFailedChunks, "Log and skip chunks that fail to process, instead of failing the run")
	outPath          = flag.String("out", "-", "Output path; '-' for stdout.  A .gz suffix selects BGZF compression")
)

func bioAllelePileUsage() {
	fmt.Printf("Usage: %s [OPTIONS] {b,p}ampath...\n", os.Args[0])
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

// newOpts builds the run options from the flags and the positional
// arguments.
func newOpts(bamPaths []string) allele.Opts {
	return allele.Opts{
		TargetPath:       *targetPath,
		Region:           *region,
		TargetHasHeader:  *regionHeader,
		ReferencePath:    *referencePath,
		BamPaths:         bamPaths,
		MinDepth:         *minDepth,
		MeanDepth:        *meanDepth,
		MinBaseQual:      *minBaseQual,
		CountIndels:      *countIndels,
		WithHeader:       *withHeader,
		Merged:           *merged,
		Split:            *split,
		ChunkSize:        *chunkSize,
		Parallelism:      *parallelism,
		Progress:         *progress,
		FlagExclude:      *flagExclude,
		Mapq:             *mapq,
		MaxReadSpan:      *maxReadSpan,
		SkipFailedChunks: *skipFailedChunks,
	}
}

// exitCode maps err to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case allele.IsConfigError(err):
		return 2
	case allele.IsInputError(err):
		return 3
	}
	return 1
}

// output is an open output sink.
type output struct {
	w     io.Writer
	f     file.File
	bgzfw *bgzf.Writer
}

// createOutput opens path for writing.  "-" is stdout.
func createOutput(ctx context.Context, path string, parallelism int) (*output, error) {
	if path == "-" {
		return &output{w: os.Stdout}, nil
	}
	f, err := file.Create(ctx, path)
	if err != nil {
		return nil, err
	}
	out := &output{w: f.Writer(ctx), f: f}
	if strings.HasSuffix(path, ".gz") {
		if parallelism <= 0 {
			parallelism = 1
		}
		out.bgzfw = bgzf.NewWriter(out.w, parallelism)
		out.w = out.bgzfw
	}
	return out, nil
}

func (o *output) Close(ctx context.Context) (err error) {
	if o.bgzfw != nil {
		err = o.bgzfw.Close()
	}
	if o.f != nil {
		if e := o.f.Close(ctx); e != nil && err == nil {
			err = e
		}
	}
	return
}

func run(ctx context.Context, opts allele.Opts) (err error) {
	// Don't create or truncate the output if the options are bad.
	if err = opts.Validate(); err != nil {
		return err
	}
	out, err := createOutput(ctx, *outPath, opts.Parallelism)
	if err != nil {
		return err
	}
	defer func() {
		if e := out.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	return allele.Run(ctx, opts, out.w)
}

func main() {
	flag.Usage = bioAllelePileUsage
	shutdown := grail.Init()

	opts := newOpts(flag.Args())
	if len(opts.BamPaths) == 0 {
		log.Error.Printf("Missing positional arguments (at least one {b,p}ampath required); please check flag syntax: '%s'", strings.Join(os.Args[1:], " "))
		shutdown()
		os.Exit(2)
	}
	err := run(vcontext.Background(), opts)
	if err != nil {
		log.Error.Printf("%v", err)
	} else {
		log.Debug.Printf("exiting")
	}
	shutdown()
	if code := exitCode(err); code != 0 {
		os.Exit(code)
	}
}
