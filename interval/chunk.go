package interval

import "fmt"

// Chunk is a bounded sub-interval of an Entry; it is the unit of parallel
// pileup work.
type Chunk struct {
	ChrName string
	Start   PosType
	End     PosType
	// Index is the chunk's position in the full plan.  Output is ordered by
	// it.
	Index int
}

// Len returns the number of positions covered by c.
func (c Chunk) Len() int {
	return int(c.End - c.Start)
}

func (c Chunk) String() string {
	return fmt.Sprintf("%s:%d-%d", c.ChrName, c.Start, c.End)
}

// ChunkScanner lazily splits a list of entries into chunks of at most
// chunkSize positions.  Each entry of length L yields ceil(L / chunkSize)
// chunks
//   [Start0, Start0+chunkSize), [Start0+chunkSize, Start0+2*chunkSize), ...
// with the last one truncated at End, so the chunks of an entry partition it
// exactly.  Empty entries yield no chunks.
//
// Usage:
//   s := NewChunkScanner(entries, 100000)
//   for s.Scan() {
//     c := s.Chunk()
//     ...
//   }
type ChunkScanner struct {
	entries   []Entry
	chunkSize PosType

	entryIdx int
	next     PosType // start of the next chunk within entries[entryIdx]
	nChunk   int
	cur      Chunk
}

// NewChunkScanner creates a ChunkScanner.  chunkSize must be positive.
func NewChunkScanner(entries []Entry, chunkSize int) *ChunkScanner {
	if chunkSize <= 0 {
		panic(fmt.Sprintf("interval.NewChunkScanner: invalid chunk size %d", chunkSize))
	}
	if chunkSize > PosTypeMax {
		chunkSize = PosTypeMax
	}
	s := &ChunkScanner{
		entries:   entries,
		chunkSize: PosType(chunkSize),
	}
	s.Reset()
	return s
}

// Reset rewinds the scanner to the first chunk.
func (s *ChunkScanner) Reset() {
	s.entryIdx = 0
	s.nChunk = 0
	s.cur = Chunk{}
	if len(s.entries) != 0 {
		s.next = s.entries[0].Start0
	}
}

// Scan advances to the next chunk, returning false once all entries have
// been covered.
func (s *ChunkScanner) Scan() bool {
	for s.entryIdx < len(s.entries) {
		e := &s.entries[s.entryIdx]
		if s.next >= e.End {
			s.entryIdx++
			if s.entryIdx < len(s.entries) {
				s.next = s.entries[s.entryIdx].Start0
			}
			continue
		}
		end := e.End
		// Compare against the remaining length so that next+chunkSize can't
		// overflow.
		if e.End-s.next > s.chunkSize {
			end = s.next + s.chunkSize
		}
		s.cur = Chunk{
			ChrName: e.ChrName,
			Start:   s.next,
			End:     end,
			Index:   s.nChunk,
		}
		s.nChunk++
		s.next = end
		return true
	}
	return false
}

// Chunk returns the chunk produced by the last successful Scan call.
func (s *ChunkScanner) Chunk() Chunk {
	return s.cur
}

// Plan returns every chunk of entries, in order.
func Plan(entries []Entry, chunkSize int) []Chunk {
	var chunks []Chunk
	s := NewChunkScanner(entries, chunkSize)
	for s.Scan() {
		chunks = append(chunks, s.Chunk())
	}
	return chunks
}
