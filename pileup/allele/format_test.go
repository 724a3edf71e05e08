package allele_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/grailbio/allelepile/interval"
	"github.com/grailbio/allelepile/pileup"
	"github.com/grailbio/allelepile/pileup/allele"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestFormatMergedSingleRead(t *testing.T) {
	chunk := interval.Chunk{ChrName: "chr1", Start: 10, End: 13}
	pile := allele.NewPile(chunk, 1)
	for pos := PosType(10); pos < 13; pos++ {
		col := pile.At(pos, 0)
		col.Depth[fwd] = 1
		col.Counts[pileup.BaseA][fwd] = 1
	}
	f := allele.Formatter{Mode: allele.Merged, MinDepth: 1}
	var buf bytes.Buffer
	w := tsv.NewWriter(&buf)
	assert.NoError(t, f.Write(w, pile, []byte("GTT")))
	assert.NoError(t, w.Flush())
	expect.EQ(t, buf.String(), "chr1\t11\t.\tG\t1,0,0,0\n"+
		"chr1\t12\t.\tT\t1,0,0,0\n"+
		"chr1\t13\t.\tT\t1,0,0,0\n")
}

func TestFormatIndelFields(t *testing.T) {
	chunk := interval.Chunk{ChrName: "chr1", Start: 0, End: 1}
	pile := allele.NewPile(chunk, 2)
	col := pile.At(0, 0)
	col.Depth = [2]uint32{1, 2}
	col.Counts[pileup.BaseC] = [2]uint32{1, 1}
	col.Ins[fwd] = []uint32{2}

	f := allele.Formatter{Mode: allele.TaggedCombined, CountIndels: true}
	rows := f.Rows(pile, []byte("A"))
	assert.EQ(t, len(rows), 1)
	expect.EQ(t, rows[0], allele.Row{
		Chrom:  "chr1",
		Pos:    1,
		Strand: "+/-",
		Ref:    'A',
		Fields: []string{"0,2,0,0,2,", "0,0,0,0,,"},
	})

	col.Ins[rev] = []uint32{3, 1}
	col.Del[fwd] = []uint32{4}
	col.Del[rev] = []uint32{5}
	rows = f.Rows(pile, []byte("A"))
	expect.EQ(t, rows[0].Fields[0], "0,2,0,0,2|3|1,4|5")

	f.CountIndels = false
	rows = f.Rows(pile, []byte("A"))
	expect.EQ(t, rows[0].Fields, []string{"0,2,0,0", "0,0,0,0"})
}

func TestFormatMeanDepth(t *testing.T) {
	chunk := interval.Chunk{ChrName: "chr2", Start: 7, End: 8}
	pile := allele.NewPile(chunk, 2)
	pile.At(7, 0).Depth = [2]uint32{2, 1}
	pile.At(7, 1).Depth = [2]uint32{0, 1}
	// Total depth 4 is below 2 samples * mean depth 3.
	f := allele.Formatter{Mode: allele.Merged, MeanDepth: 3}
	expect.EQ(t, len(f.Rows(pile, []byte("C"))), 0)

	pile.At(7, 1).Depth = [2]uint32{2, 1}
	rows := f.Rows(pile, []byte("C"))
	assert.EQ(t, len(rows), 1)
	expect.EQ(t, rows[0].Pos, PosType(8))
	expect.EQ(t, rows[0].Strand, ".")
}

func TestFormatMinDepthUsesMaxSample(t *testing.T) {
	chunk := interval.Chunk{ChrName: "chr2", Start: 0, End: 1}
	pile := allele.NewPile(chunk, 3)
	pile.At(0, 0).Depth = [2]uint32{1, 1}
	pile.At(0, 1).Depth = [2]uint32{3, 0}
	f := allele.Formatter{Mode: allele.TaggedCombined, MinDepth: 3}
	expect.EQ(t, len(f.Rows(pile, []byte("G"))), 1)
	f.MinDepth = 4
	expect.EQ(t, len(f.Rows(pile, []byte("G"))), 0)
}

func TestFormatSplit(t *testing.T) {
	chunk := interval.Chunk{ChrName: "chr1", Start: 4, End: 6}
	pile := allele.NewPile(chunk, 1)
	c4 := pile.At(4, 0)
	c4.Depth = [2]uint32{2, 1}
	c4.Counts[pileup.BaseA] = [2]uint32{2, 0}
	c4.Counts[pileup.BaseG] = [2]uint32{0, 1}
	c4.Ins = [2][]uint32{{1}, {6}}
	c5 := pile.At(5, 0)
	c5.Depth = [2]uint32{0, 3}
	c5.Counts[pileup.BaseT] = [2]uint32{0, 3}

	f := allele.Formatter{Mode: allele.Split, MinDepth: 1, CountIndels: true}
	var buf bytes.Buffer
	w := tsv.NewWriter(&buf)
	assert.NoError(t, f.Write(w, pile, []byte("AN")))
	assert.NoError(t, w.Flush())
	expect.EQ(t, buf.String(), "chr1\t5\t+\tA\t2,0,0,0,1,\n"+
		"chr1\t5\t-\tT\t0,0,1,0,6,\n"+
		"chr1\t6\t-\tN\t0,0,0,3,,\n")

	// Each strand is filtered independently.
	f.MinDepth = 2
	rows := f.Rows(pile, []byte("AN"))
	assert.EQ(t, len(rows), 2)
	expect.EQ(t, rows[0].Strand, "+")
	expect.EQ(t, rows[1].Pos, PosType(6))
	expect.EQ(t, rows[1].Strand, "-")
}

func TestFormatMissingReference(t *testing.T) {
	chunk := interval.Chunk{ChrName: "chr1", Start: 0, End: 2}
	pile := allele.NewPile(chunk, 1)
	rows := (&allele.Formatter{}).Rows(pile, nil)
	assert.EQ(t, len(rows), 2)
	expect.EQ(t, rows[1].Ref, byte('N'))
	expect.EQ(t, rows[1].Fields, []string{"0,0,0,0"})
}

// TestFormatMinDepthMonotonic checks that raising MinDepth never adds rows.
func TestFormatMinDepthMonotonic(t *testing.T) {
	r := rand.New(rand.NewSource(0))
	chunk := interval.Chunk{ChrName: "chr1", Start: 0, End: 200}
	refSeq := bytes.Repeat([]byte("ACGT"), 50)
	for _, nSample := range []int{1, 3} {
		pile := allele.NewPile(chunk, nSample)
		for i := range pile.Cols {
			pile.Cols[i].Depth = [2]uint32{uint32(r.Intn(8)), uint32(r.Intn(8))}
		}
		for _, mode := range []allele.StrandMode{allele.Merged, allele.Split, allele.TaggedCombined} {
			prev := -1
			for minDepth := 0; minDepth <= 20; minDepth++ {
				f := allele.Formatter{Mode: mode, MinDepth: minDepth, MeanDepth: 1}
				n := len(f.Rows(pile, refSeq))
				if prev >= 0 {
					expect.LE(t, n, prev, "mode %v, samples %d, min depth %d", mode, nSample, minDepth)
				}
				prev = n
			}
			expect.EQ(t, prev, 0)
		}
	}
}

func TestWriteHeader(t *testing.T) {
	var buf bytes.Buffer
	w := tsv.NewWriter(&buf)
	assert.NoError(t, allele.WriteHeader(w, []string{"a.bam", "b.pam"}))
	assert.NoError(t, w.Flush())
	expect.EQ(t, buf.String(), "Chrom\tPos\tStrand\tRef\ta.bam\tb.pam\n")
}
