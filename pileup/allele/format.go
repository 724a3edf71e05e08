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
	"strconv"

	"github.com/grailbio/allelepile/pileup"
	"github.com/grailbio/base/tsv"
)

// Strand markers.
const (
	markerMerged   = "."
	markerCombined = "+/-"
)

var (
	bothStrands = []pileup.StrandType{pileup.StrandFwd, pileup.StrandRev}
	fwdStrand   = []pileup.StrandType{pileup.StrandFwd}
	revStrand   = []pileup.StrandType{pileup.StrandRev}
)

// Formatter applies the depth filters to a pile and renders the surviving
// positions.
type Formatter struct {
	Mode StrandMode
	// MinDepth is the minimum depth required in at least one sample.
	MinDepth int
	// MeanDepth is the minimum mean depth across samples.
	MeanDepth   int
	CountIndels bool
}

// Row is one output line.
type Row struct {
	Chrom string
	// Pos is 1-based.
	Pos    PosType
	Strand string
	Ref    byte
	// Fields has one "A,C,G,T[,INS,DEL]" entry per sample.
	Fields []string
}

// NewFormatter returns the formatter configured by opts.
func NewFormatter(opts *Opts) (*Formatter, error) {
	mode, err := opts.Mode()
	if err != nil {
		return nil, err
	}
	return &Formatter{
		Mode:        mode,
		MinDepth:    opts.MinDepth,
		MeanDepth:   opts.MeanDepth,
		CountIndels: opts.CountIndels,
	}, nil
}

// pass returns true if the depths summed over strands satisfy both depth
// thresholds.
func (f *Formatter) pass(pile *Pile, pos PosType, strands []pileup.StrandType) bool {
	var maxDepth, totalDepth int64
	for i := 0; i < pile.NSample; i++ {
		col := pile.At(pos, i)
		var depth int64
		for _, s := range strands {
			depth += int64(col.Depth[s])
		}
		if depth > maxDepth {
			maxDepth = depth
		}
		totalDepth += depth
	}
	return maxDepth >= int64(f.MinDepth) && totalDepth >= int64(f.MeanDepth)*int64(pile.NSample)
}

// appendField appends the sample field of col, restricted to strands, to
// buf.
func (f *Formatter) appendField(buf []byte, col *Column, strands []pileup.StrandType) []byte {
	for b := 0; b < pileup.NBase; b++ {
		if b != 0 {
			buf = append(buf, ',')
		}
		var n uint64
		for _, s := range strands {
			n += uint64(col.Counts[b][s])
		}
		buf = strconv.AppendUint(buf, n, 10)
	}
	if f.CountIndels {
		buf = append(buf, ',')
		buf = appendLengths(buf, &col.Ins, strands)
		buf = append(buf, ',')
		buf = appendLengths(buf, &col.Del, strands)
	}
	return buf
}

// appendLengths appends the '|'-joined lengths of the given strands, forward
// strand first.
func appendLengths(buf []byte, lens *[pileup.NStrand][]uint32, strands []pileup.StrandType) []byte {
	first := true
	for _, s := range strands {
		for _, l := range lens[s] {
			if !first {
				buf = append(buf, '|')
			}
			first = false
			buf = strconv.AppendUint(buf, uint64(l), 10)
		}
	}
	return buf
}

// Rows returns the rows of pile that pass the depth filters, in position
// order.  refSeq holds the upper-case reference bases of pile.Chunk; missing
// bases render as 'N'.
func (f *Formatter) Rows(pile *Pile, refSeq []byte) []Row {
	var rows []Row
	var buf []byte
	chunk := pile.Chunk
	emit := func(pos PosType, marker string, ref byte, strands []pileup.StrandType) {
		if !f.pass(pile, pos, strands) {
			return
		}
		row := Row{
			Chrom:  chunk.ChrName,
			Pos:    pos + 1,
			Strand: marker,
			Ref:    ref,
			Fields: make([]string, pile.NSample),
		}
		for i := range row.Fields {
			buf = f.appendField(buf[:0], pile.At(pos, i), strands)
			row.Fields[i] = string(buf)
		}
		rows = append(rows, row)
	}
	for pos := chunk.Start; pos < chunk.End; pos++ {
		ref := byte('N')
		if i := int(pos - chunk.Start); i < len(refSeq) {
			ref = refSeq[i]
		}
		switch f.Mode {
		case Merged:
			emit(pos, markerMerged, ref, bothStrands)
		case Split:
			emit(pos, string(pileup.StrandTypeToASCIITable[pileup.StrandFwd]), ref, fwdStrand)
			emit(pos, string(pileup.StrandTypeToASCIITable[pileup.StrandRev]), pileup.Complement(ref), revStrand)
		default:
			emit(pos, markerCombined, ref, bothStrands)
		}
	}
	return rows
}

// Write renders the rows of pile to w.  The caller is responsible for
// flushing w.
func (f *Formatter) Write(w *tsv.Writer, pile *Pile, refSeq []byte) error {
	for _, row := range f.Rows(pile, refSeq) {
		w.WriteString(row.Chrom)
		w.WriteUint32(uint32(row.Pos))
		w.WriteString(row.Strand)
		w.WriteByte(row.Ref)
		for _, field := range row.Fields {
			w.WriteString(field)
		}
		if err := w.EndLine(); err != nil {
			return err
		}
	}
	return nil
}

// WriteHeader writes the header line, with one column per sample path.
func WriteHeader(w *tsv.Writer, samplePaths []string) error {
	w.WriteString("Chrom\tPos\tStrand\tRef")
	for _, path := range samplePaths {
		w.WriteString(path)
	}
	return w.EndLine()
}
