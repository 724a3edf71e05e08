package interval_test

import (
	"fmt"
	"testing"

	"github.com/grailbio/allelepile/interval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanSmallEntry(t *testing.T) {
	chunks := interval.Plan([]interval.Entry{{"chr1", 10, 13}}, 100)
	assert.Equal(t, []interval.Chunk{{ChrName: "chr1", Start: 10, End: 13, Index: 0}}, chunks)
}

func TestPlanRemainder(t *testing.T) {
	chunks := interval.Plan([]interval.Entry{
		{"chr1", 0, 10},
		{"chr2", 5, 5},
		{"chr2", 100, 107},
	}, 4)
	want := []interval.Chunk{
		{"chr1", 0, 4, 0},
		{"chr1", 4, 8, 1},
		{"chr1", 8, 10, 2},
		{"chr2", 100, 104, 3},
		{"chr2", 104, 107, 4},
	}
	assert.Equal(t, want, chunks)
}

// TestPlanPartition checks that, for every interval length and chunk size in
// a small grid, the chunks cover each position exactly once and never exceed
// the chunk size.
func TestPlanPartition(t *testing.T) {
	for length := 0; length <= 40; length++ {
		for chunkSize := 1; chunkSize <= 45; chunkSize++ {
			entry := interval.Entry{"chrX", 1000, interval.PosType(1000 + length)}
			seen := make(map[interval.PosType]int)
			nChunk := 0
			for _, c := range interval.Plan([]interval.Entry{entry}, chunkSize) {
				require.True(t, c.Len() > 0 && c.Len() <= chunkSize, "chunk %v, size %d", c, chunkSize)
				require.Equal(t, nChunk, c.Index)
				for pos := c.Start; pos < c.End; pos++ {
					seen[pos]++
				}
				nChunk++
			}
			msg := fmt.Sprintf("length %d, chunk size %d", length, chunkSize)
			require.Equal(t, (length+chunkSize-1)/chunkSize, nChunk, msg)
			require.Equal(t, length, len(seen), msg)
			for pos, n := range seen {
				require.Equal(t, 1, n, "%s: position %d", msg, pos)
				require.True(t, pos >= entry.Start0 && pos < entry.End, msg)
			}
		}
	}
}

func TestChunkScannerRestart(t *testing.T) {
	entries := []interval.Entry{{"chr1", 0, 25}, {"chr3", 7, 9}}
	s := interval.NewChunkScanner(entries, 10)
	var first []interval.Chunk
	for s.Scan() {
		first = append(first, s.Chunk())
	}
	assert.False(t, s.Scan())
	s.Reset()
	var second []interval.Chunk
	for s.Scan() {
		second = append(second, s.Chunk())
	}
	assert.Equal(t, first, second)
	assert.Equal(t, 4, len(first))
}

func TestChunkScannerNearPosTypeMax(t *testing.T) {
	entry := interval.Entry{"chr1", interval.PosTypeMax - 5, interval.PosTypeMax - 1}
	chunks := interval.Plan([]interval.Entry{entry}, 3)
	require.Equal(t, 2, len(chunks))
	assert.Equal(t, entry.End, chunks[1].End)
}
