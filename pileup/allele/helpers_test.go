package allele_test

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/grailbio/allelepile/pileup"
	"github.com/grailbio/allelepile/pileup/allele"
	"github.com/grailbio/bio/encoding/bamprovider"
	"github.com/grailbio/bio/encoding/fasta"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil/assert"
)

const (
	// chr1 is 100 bases long, chr2 is 40.
	testChr1 = "ACGTACGTAC" + "GTTTGGCCAA" + "acgtacgtac" + "NNNNACGTAC" + "GTACGTACGT" +
		"AAAAAAAAAA" + "CCCCCCCCCC" + "GGGGGGGGGG" + "TTTTTTTTTT" + "ACGTACGTAC"
	testChr2 = "GGGGCCCCAAAATTTTGGGGCCCCAAAATTTTGGGGCCCC"
)

func newTestReference(t *testing.T) *pileup.Reference {
	fa, err := fasta.New(strings.NewReader(">chr1\n" + testChr1 + "\n>chr2\n" + testChr2 + "\n"))
	assert.NoError(t, err)
	return &pileup.Reference{Fasta: fa}
}

// newTestHeader returns a header listing the given chromosomes of the test
// reference, in the given order.
func newTestHeader(t *testing.T, names ...string) (*sam.Header, map[string]*sam.Reference) {
	lens := map[string]int{"chr1": len(testChr1), "chr2": len(testChr2), "chr9": 1000}
	refs := make([]*sam.Reference, len(names))
	byName := make(map[string]*sam.Reference)
	for i, name := range names {
		ref, err := sam.NewReference(name, "", "", lens[name], nil, nil)
		assert.NoError(t, err)
		refs[i] = ref
		byName[name] = ref
	}
	header, err := sam.NewHeader(nil, refs)
	assert.NoError(t, err)
	return header, byName
}

func newTestSample(t *testing.T, path string, header *sam.Header, recs []*sam.Record) *allele.Sample {
	s, err := allele.NewSample(path, bamprovider.NewFakeProvider(header, recs))
	assert.NoError(t, err)
	return s
}

// newRead returns a mapped read with a uniform base quality.
func newRead(name string, ref *sam.Reference, pos int, flags sam.Flags, mapq byte, cigar []sam.CigarOp, seq string, qual byte) *sam.Record {
	quals := bytes.Repeat([]byte{qual}, len(seq))
	return &sam.Record{
		Name:  name,
		Ref:   ref,
		Pos:   pos,
		MapQ:  mapq,
		Flags: flags,
		Cigar: cigar,
		Seq:   sam.NewSeq([]byte(seq)),
		Qual:  quals,
	}
}

func match(n int) sam.CigarOp { return sam.NewCigarOp(sam.CigarMatch, n) }
func ins(n int) sam.CigarOp   { return sam.NewCigarOp(sam.CigarInsertion, n) }
func del(n int) sam.CigarOp   { return sam.NewCigarOp(sam.CigarDeletion, n) }
func skip(n int) sam.CigarOp  { return sam.NewCigarOp(sam.CigarSkipped, n) }
func soft(n int) sam.CigarOp  { return sam.NewCigarOp(sam.CigarSoftClipped, n) }

func cigar(ops ...sam.CigarOp) []sam.CigarOp { return ops }

// writeTestBAM writes recs, which must be coordinate-sorted, to path, and
// indexes it in path + ".bai".
func writeTestBAM(t *testing.T, path string, header *sam.Header, recs []*sam.Record) {
	out, err := os.Create(path)
	assert.NoError(t, err)
	w, err := bam.NewWriter(out, header, 1)
	assert.NoError(t, err)
	for _, r := range recs {
		assert.NoError(t, w.Write(r))
	}
	assert.NoError(t, w.Close())
	assert.NoError(t, out.Close())

	in, err := os.Open(path)
	assert.NoError(t, err)
	r, err := bam.NewReader(in, 1)
	assert.NoError(t, err)
	var bai bam.Index
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		assert.NoError(t, err)
		assert.NoError(t, bai.Add(rec, r.LastChunk()))
	}
	assert.NoError(t, r.Close())
	assert.NoError(t, in.Close())

	out, err = os.Create(path + ".bai")
	assert.NoError(t, err)
	assert.NoError(t, bam.WriteIndex(out, &bai))
	assert.NoError(t, out.Close())
}
