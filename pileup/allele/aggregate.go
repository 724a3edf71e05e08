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

	"github.com/grailbio/allelepile/interval"
	"github.com/grailbio/allelepile/pileup"
	"github.com/grailbio/hts/sam"
)

// PosType is the integer type used to represent genomic positions.
type PosType = pileup.PosType

// Column holds one sample's statistics at one reference position.  The
// strand index is pileup.StrandFwd or pileup.StrandRev.
type Column struct {
	Depth  [pileup.NStrand]uint32
	Counts [pileup.NBase][pileup.NStrand]uint32
	// Ins and Del list the lengths of insertions and deletions immediately
	// following this position.  Only filled when indels are counted.
	Ins [pileup.NStrand][]uint32
	Del [pileup.NStrand][]uint32
}

// Pile holds the columns of one chunk, for every sample.
type Pile struct {
	Chunk   interval.Chunk
	NSample int
	// Cols is indexed by (pos - Chunk.Start) * NSample + sampleIdx.
	Cols []Column
}

// NewPile returns an all-zero pile covering chunk.
func NewPile(chunk interval.Chunk, nSample int) *Pile {
	return &Pile{
		Chunk:   chunk,
		NSample: nSample,
		Cols:    make([]Column, chunk.Len()*nSample),
	}
}

// At returns the column of sample sampleIdx at pos, which must lie in the
// pile's chunk.
func (p *Pile) At(pos PosType, sampleIdx int) *Column {
	return &p.Cols[int(pos-p.Chunk.Start)*p.NSample+sampleIdx]
}

// alignedBase is one read's contribution to one reference position.
type alignedBase struct {
	name  string
	flags sam.Flags
	mapq  byte
	base  byte // pileup.BaseA..BaseX
	qual  byte
	// noBase is set for positions inside a deletion or a reference skip.
	noBase bool
	ins    uint32
	del    uint32
}

// preferredTo returns true if a should represent its template instead of b,
// where b was seen first.  Higher MAPQ wins, then the first read of a pair.
func (a *alignedBase) preferredTo(b *alignedBase) bool {
	if a.mapq != b.mapq {
		return a.mapq > b.mapq
	}
	return a.flags&sam.Read1 != 0 && b.flags&sam.Read1 == 0
}

// aggregator holds per-chunk scratch space.  It is not safe for concurrent
// use; each worker creates its own.
type aggregator struct {
	chunk interval.Chunk
	opts  *Opts
	// byPos[i] collects the aligned bases at chunk.Start + i, in read order.
	byPos [][]alignedBase
	// recs holds the reads referenced by byPos until they are tallied.
	recs []*sam.Record
	seen map[string]int
	reps []alignedBase
}

func newAggregator(chunk interval.Chunk, opts *Opts) *aggregator {
	return &aggregator{
		chunk: chunk,
		opts:  opts,
		byPos: make([][]alignedBase, chunk.Len()),
		seen:  make(map[string]int),
	}
}

// Aggregate computes the pile of chunk for every sample.  refs[i] is the
// chunk's chromosome as it appears in samples[i]'s header (see ResolveRefs).
func Aggregate(chunk interval.Chunk, refs []*sam.Reference, samples []*Sample, opts *Opts) (*Pile, error) {
	if len(refs) != len(samples) {
		return nil, fmt.Errorf("allele.Aggregate: %d references for %d samples", len(refs), len(samples))
	}
	pile := NewPile(chunk, len(samples))
	a := newAggregator(chunk, opts)
	for i, s := range samples {
		if err := a.addSample(pile, i, s, refs[i]); err != nil {
			return nil, processingError(err, "allele.Aggregate: chunk %d (%s), sample %s", chunk.Index, chunk, s.Path)
		}
	}
	return pile, nil
}

func (a *aggregator) addSample(pile *Pile, sampleIdx int, s *Sample, ref *sam.Reference) (err error) {
	for i := range a.byPos {
		a.byPos[i] = a.byPos[i][:0]
	}
	// Without an overlap query, reads are fetched by start position, and the
	// range is padded on the left by the longest span a read may have.
	iter := s.newIterator(ref, int(a.chunk.Start), int(a.chunk.End), a.opts.MaxReadSpan)
	defer func() {
		if e := iter.Close(); e != nil && err == nil {
			err = e
		}
	}()
	byOverlap := s.fetchesByOverlap()
	for iter.Scan() {
		rec := iter.Record()
		// -flag-exclude, -mapq, and blank-read filters
		if (a.opts.FlagExclude&int(rec.Flags) != 0) || (a.opts.Mapq > int(rec.MapQ)) || (len(rec.Cigar) == 0) {
			sam.PutInFreePool(rec)
			continue
		}
		span, _ := rec.Cigar.Lengths()
		if !byOverlap && span > a.opts.MaxReadSpan {
			err = fmt.Errorf("maxReadSpan is %d, but read %s at %s:%d has span %d", a.opts.MaxReadSpan, rec.Name, ref.Name(), rec.Pos, span)
			sam.PutInFreePool(rec)
			return
		}
		if rec.Pos+span <= int(a.chunk.Start) || rec.Pos >= int(a.chunk.End) {
			sam.PutInFreePool(rec)
			continue
		}
		if err = a.addRead(rec); err != nil {
			sam.PutInFreePool(rec)
			return
		}
		a.recs = append(a.recs, rec)
	}
	if err = iter.Err(); err != nil {
		return
	}
	for i := range a.byPos {
		a.tally(pile.At(a.chunk.Start+PosType(i), sampleIdx), a.byPos[i])
	}
	for _, rec := range a.recs {
		sam.PutInFreePool(rec)
	}
	a.recs = a.recs[:0]
	return
}

// addRead walks rec's CIGAR and appends an alignedBase to every chunk
// position it covers.  An M/=/X run that is followed by an insertion or a
// deletion carries that event on its last base.
func (a *aggregator) addRead(rec *sam.Record) error {
	start, end := a.chunk.Start, a.chunk.End
	seqLen := rec.Seq.Length
	posInRef := PosType(rec.Pos)
	posInRead := 0
	cigar := rec.Cigar
	for i, co := range cigar {
		cLen := co.Len()
		switch co.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			var ins, del uint32
			if next, ok := nextEvent(cigar, i); ok {
				switch next.Type() {
				case sam.CigarInsertion:
					ins = uint32(next.Len())
				case sam.CigarDeletion:
					del = uint32(next.Len())
				}
			}
			if seqLen != 0 && posInRead+cLen > seqLen {
				return fmt.Errorf("read %s: CIGAR %v is longer than its %d bases", rec.Name, cigar, seqLen)
			}
			for j := 0; j < cLen; j++ {
				pos := posInRef + PosType(j)
				if pos < start {
					continue
				}
				if pos >= end {
					break
				}
				ab := alignedBase{
					name:  rec.Name,
					flags: rec.Flags,
					mapq:  rec.MapQ,
					base:  pileup.BaseX,
					qual:  0xff,
				}
				if seqLen != 0 {
					ab.base = pileup.Seq8ToEnumTable[pileup.Seq8At(rec.Seq, posInRead+j)]
				}
				if posInRead+j < len(rec.Qual) {
					ab.qual = rec.Qual[posInRead+j]
				}
				if j == cLen-1 {
					ab.ins, ab.del = ins, del
				}
				a.byPos[pos-start] = append(a.byPos[pos-start], ab)
			}
			posInRef += PosType(cLen)
			posInRead += cLen
		case sam.CigarInsertion, sam.CigarSoftClipped:
			posInRead += cLen
		case sam.CigarDeletion, sam.CigarSkipped:
			for j := 0; j < cLen; j++ {
				pos := posInRef + PosType(j)
				if pos >= start && pos < end {
					a.byPos[pos-start] = append(a.byPos[pos-start], alignedBase{
						name:   rec.Name,
						flags:  rec.Flags,
						mapq:   rec.MapQ,
						noBase: true,
					})
				}
			}
			posInRef += PosType(cLen)
		case sam.CigarHardClipped, sam.CigarPadded:
			// do nothing
		default:
			return fmt.Errorf("read %s: unexpected CIGAR code %v", rec.Name, co)
		}
	}
	if seqLen != 0 && posInRead != seqLen {
		return fmt.Errorf("read %s: CIGAR %v covers %d bases, but the read has %d", rec.Name, cigar, posInRead, seqLen)
	}
	return nil
}

// nextEvent returns the first non-padding op after cigar[i].
func nextEvent(cigar sam.Cigar, i int) (sam.CigarOp, bool) {
	for i++; i < len(cigar); i++ {
		if cigar[i].Type() != sam.CigarPadded {
			return cigar[i], true
		}
	}
	return 0, false
}

// tally picks one representative alignedBase per read name and adds them to
// col.
func (a *aggregator) tally(col *Column, bases []alignedBase) {
	if len(bases) == 0 {
		return
	}
	reps := a.reps[:0]
	for k := range a.seen {
		delete(a.seen, k)
	}
	for i := range bases {
		ab := &bases[i]
		if idx, ok := a.seen[ab.name]; ok {
			if ab.preferredTo(&reps[idx]) {
				reps[idx] = *ab
			}
			continue
		}
		a.seen[ab.name] = len(reps)
		reps = append(reps, *ab)
	}
	a.reps = reps

	minBaseQual := a.opts.MinBaseQual
	for i := range reps {
		ab := &reps[i]
		strand := pileup.TemplateStrand(ab.flags)
		if !ab.noBase {
			// 0xff means the read carries no qualities.
			qualOK := int(ab.qual) >= minBaseQual
			if ab.qual == 0xff {
				qualOK = minBaseQual == 0
			}
			if qualOK {
				col.Depth[strand]++
				if ab.base != pileup.BaseX {
					col.Counts[ab.base][strand]++
				}
			}
		}
		if a.opts.CountIndels {
			if ab.ins != 0 {
				col.Ins[strand] = append(col.Ins[strand], ab.ins)
			}
			if ab.del != 0 {
				col.Del[strand] = append(col.Del[strand], ab.del)
			}
		}
	}
}
