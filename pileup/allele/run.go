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
	"bytes"
	"context"
	"io"
	"sync/atomic"

	"github.com/grailbio/allelepile/interval"
	"github.com/grailbio/allelepile/pileup"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/hts/sam"
)

// Run computes the per-position allele counts of every target position in
// every input, and writes them to out.
//
// Chunks are processed in parallel, but their output is written in plan
// order: target-file order, then position.  Each chunk's rows are written as
// one block.
func Run(ctx context.Context, opts Opts, out io.Writer) (err error) {
	if _, err = opts.validate(); err != nil {
		return
	}
	var entries []interval.Entry
	if entries, err = loadTargets(&opts); err != nil {
		return
	}
	var ref *pileup.Reference
	if ref, err = pileup.OpenReference(ctx, opts.ReferencePath); err != nil {
		return inputError(err, "allele.Run: opening reference %s", opts.ReferencePath)
	}
	defer func() {
		if e := ref.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	var samples []*Sample
	if samples, err = OpenSamples(opts.BamPaths); err != nil {
		return
	}
	defer func() {
		if e := CloseSamples(samples); e != nil && err == nil {
			err = e
		}
	}()
	return Process(ctx, opts, entries, ref, samples, out)
}

func loadTargets(opts *Opts) ([]interval.Entry, error) {
	if opts.Region != "" {
		entry, err := interval.ParseRegionString(opts.Region)
		if err != nil {
			return nil, errors.E(errors.Invalid, "allele.Run: bad -region", err)
		}
		return []interval.Entry{entry}, nil
	}
	entries, err := interval.ReadEntriesFromPath(opts.TargetPath, interval.ReadOpts{HasHeader: opts.TargetHasHeader})
	if err != nil {
		return nil, inputError(err, "allele.Run: reading targets from %s", opts.TargetPath)
	}
	return entries, nil
}

// resolveTargets resolves every target chromosome in every sample and in the
// reference, before any chunk runs.  Whole-chromosome targets are clipped to
// the reference length.
func resolveTargets(entries []interval.Entry, ref *pileup.Reference, samples []*Sample) (map[string][]*sam.Reference, error) {
	refsByChrom := make(map[string][]*sam.Reference)
	refLens := make(map[string]PosType)
	for i := range entries {
		e := &entries[i]
		if _, ok := refsByChrom[e.ChrName]; !ok {
			refs, err := ResolveRefs(e.ChrName, samples)
			if err != nil {
				return nil, err
			}
			refLen, err := ref.Len(e.ChrName)
			if err != nil {
				return nil, inputError(err, "allele.Run: unknown chromosome %s in reference", e.ChrName)
			}
			if refLen >= interval.PosTypeMax {
				return nil, inputError(nil, "allele.Run: chromosome %s is too long (%d)", e.ChrName, refLen)
			}
			refsByChrom[e.ChrName] = refs
			refLens[e.ChrName] = PosType(refLen)
		}
		refLen := refLens[e.ChrName]
		if e.IsWholeContig() {
			e.End = refLen
		}
		if e.End > refLen || e.Start0 > e.End {
			return nil, inputError(nil, "allele.Run: target %s extends past the end of %s (length %d)", *e, e.ChrName, refLen)
		}
	}
	return refsByChrom, nil
}

// Process is Run with already-open inputs.  Only the parameter fields of
// opts are used; the input paths are ignored.
func Process(ctx context.Context, opts Opts, entries []interval.Entry, ref *pileup.Reference, samples []*Sample, out io.Writer) error {
	ropts, err := opts.validateParams()
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return configError("allele: at least one sample is required")
	}
	formatter, err := NewFormatter(&ropts.Opts)
	if err != nil {
		return err
	}
	entries = append([]interval.Entry(nil), entries...)
	refsByChrom, err := resolveTargets(entries, ref, samples)
	if err != nil {
		return err
	}
	if ropts.WithHeader {
		paths := make([]string, len(samples))
		for i, s := range samples {
			paths[i] = s.Path
		}
		w := tsv.NewWriter(out)
		if err = WriteHeader(w, paths); err != nil {
			return errors.E("allele.Run: writing header", err)
		}
		if err = w.Flush(); err != nil {
			return errors.E("allele.Run: writing header", err)
		}
	}

	chunks := interval.Plan(entries, ropts.ChunkSize)
	if len(chunks) == 0 {
		log.Printf("allele.Run: no positions to process")
		return nil
	}
	parallelism := ropts.parallelism
	if parallelism > len(chunks) {
		parallelism = len(chunks)
	}
	var nPos int64
	for _, e := range entries {
		nPos += int64(e.Len())
	}
	log.Printf("allele.Run: %d target(s) covering %d position(s), %d chunk(s), %d sample(s), %d job(s)", len(entries), nPos, len(chunks), len(samples), parallelism)

	reporter := newProgressReporter(ropts.progress, chunks)
	if reporter != nil {
		reporter.Init(len(chunks))
	}
	// Workers take chunks in index order, so the lowest unwritten chunk is
	// always being processed, and the writer's queue can be bounded.
	ow := newOrderedWriter(out, 2*parallelism)
	var nextChunk int64 = -1
	err = traverse.Each(parallelism, func(int) error {
		for {
			i := int(atomic.AddInt64(&nextChunk, 1))
			if i >= len(chunks) {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return ow.abort(err)
			}
			chunk := chunks[i]
			if reporter != nil {
				reporter.Begin(i)
			}
			data, err := processChunk(chunk, refsByChrom[chunk.ChrName], samples, ref, &ropts.Opts, formatter)
			if err != nil {
				if !ropts.SkipFailedChunks {
					return ow.abort(err)
				}
				log.Error.Printf("allele.Run: skipping chunk %d (%s): %v", chunk.Index, chunk, err)
				data = nil
			}
			if reporter != nil {
				reporter.End(i)
			}
			if err := ow.add(chunk.Index, data); err != nil {
				return err
			}
		}
	})
	if err != nil {
		_ = ow.abort(err)
	}
	werr := ow.Close()
	if reporter != nil {
		reporter.Complete()
	}
	if err != nil {
		return err
	}
	return werr
}

// processChunk returns the rendered rows of one chunk.
func processChunk(chunk interval.Chunk, refs []*sam.Reference, samples []*Sample, ref *pileup.Reference, opts *Opts, formatter *Formatter) ([]byte, error) {
	pile, err := Aggregate(chunk, refs, samples, opts)
	if err != nil {
		return nil, err
	}
	refSeq, err := ref.Bases(chunk.ChrName, chunk.Start, chunk.End)
	if err != nil {
		return nil, processingError(err, "allele.Run: reading reference bases of chunk %d (%s)", chunk.Index, chunk)
	}
	var buf bytes.Buffer
	w := tsv.NewWriter(&buf)
	if err = formatter.Write(w, pile, refSeq); err != nil {
		return nil, processingError(err, "allele.Run: formatting chunk %d (%s)", chunk.Index, chunk)
	}
	if err = w.Flush(); err != nil {
		return nil, processingError(err, "allele.Run: formatting chunk %d (%s)", chunk.Index, chunk)
	}
	return buf.Bytes(), nil
}
