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
package pileup

import (
	"github.com/grailbio/allelepile/interval"
	"github.com/grailbio/hts/sam"
)

// Common pileup components.

// PosType is the integer type used to represent genomic positions.
type PosType = interval.PosType

// These constants have two relevant meanings:
// 1. They index the base (major) dimension of every count table in this
//    module, so A/C/G/T counts always render in that order.
// 2. It's the natural value for A/C/G/T in a packed 2-bit representation
//    (useful anywhere we don't have to worry about Ns).

const (
	// BaseA represents an A base.
	BaseA byte = iota
	// BaseC represents an C base.
	BaseC
	// BaseG represents an G base.
	BaseG
	// BaseT represents an T base.
	BaseT
	// BaseX is a catch-all.
	BaseX
)

// NBase is the number of regular base types.
const NBase = 4

// Seq8ToEnumTable is the .bam seq nibble -> A/C/G/T/X enum mapping.
var Seq8ToEnumTable = [...]byte{BaseX, BaseA, BaseC, BaseX, BaseG, BaseX, BaseX, BaseX, BaseT, BaseX, BaseX, BaseX, BaseX, BaseX, BaseX, BaseX}

// EnumToASCIITable is the A/C/G/T/X -> ASCII mapping, with X rendered as 'N'.
var EnumToASCIITable = [...]byte{'A', 'C', 'G', 'T', 'N'}

// ASCIIToEnumTable is the ASCII -> A/C/G/T/X enum mapping.  Lowercase
// (soft-masked) bases map to the same values as uppercase ones.
var ASCIIToEnumTable [256]byte

// complementTable maps an ASCII base to the ASCII base on the opposite
// strand.  Everything outside {A,C,G,T,a,c,g,t} maps to 'N'.
var complementTable [256]byte

func init() {
	for i := range ASCIIToEnumTable {
		ASCIIToEnumTable[i] = BaseX
		complementTable[i] = 'N'
	}
	for e, c := range EnumToASCIITable[:NBase] {
		ASCIIToEnumTable[c] = byte(e)
		ASCIIToEnumTable[c|0x20] = byte(e)
	}
	for _, pair := range [...][2]byte{{'A', 'T'}, {'C', 'G'}} {
		complementTable[pair[0]] = pair[1]
		complementTable[pair[1]] = pair[0]
		complementTable[pair[0]|0x20] = pair[1]
		complementTable[pair[1]|0x20] = pair[0]
	}
}

// Complement returns the complement of an ASCII base, as it would be read on
// the reverse strand.  Anything other than A/C/G/T (either case) is rendered
// as 'N'.
func Complement(b byte) byte {
	return complementTable[b]
}

// Seq8At returns the .bam seq nibble of the i-th base of seq.
func Seq8At(seq sam.Seq, i int) byte {
	d := byte(seq.Seq[i>>1])
	if i&1 == 0 {
		return d >> 4
	}
	return d & 0xf
}

// StrandType describes which strand of the original template a read
// represents.
type StrandType int

const (
	// StrandFwd means the read's bases are on the template's forward strand.
	StrandFwd StrandType = iota
	// StrandRev means the read's bases are on the template's reverse strand.
	StrandRev
)

// NStrand is the number of StrandType values; it sizes the strand (minor)
// dimension of the count tables.
const NStrand = 2

// StrandTypeToASCIITable is the StrandType -> ASCII mapping.
var StrandTypeToASCIITable = [...]byte{'+', '-'}

// TemplateStrand returns the template strand of the read.  The second read
// of a pair is sequenced from the opposite end of the fragment, so its
// orientation flag is inverted to recover the template strand; unpaired
// reads and first reads keep their own orientation.
func TemplateStrand(flags sam.Flags) StrandType {
	reverse := flags&sam.Reverse != 0
	if flags&sam.Read2 != 0 {
		reverse = !reverse
	}
	if reverse {
		return StrandRev
	}
	return StrandFwd
}
