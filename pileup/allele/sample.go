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
	"context"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	gbam "github.com/grailbio/bio/encoding/bam"
	"github.com/grailbio/bio/encoding/bamprovider"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/bgzf/index"
	"github.com/grailbio/hts/sam"
)

// Sample is one alignment input.  Its position in the sample list is its
// output column.
type Sample struct {
	// Path is the BAM/PAM path, used as the sample's header column name.
	Path     string
	provider bamprovider.Provider
	// bai is the index of a BAM input.  When set, reads are fetched by
	// overlap instead of by start position, so reads of any span are seen.
	bai  *bam.Index
	refs map[string]*sam.Reference
}

// NewSample wraps an already-open provider.  The header is read once here.
func NewSample(path string, provider bamprovider.Provider) (*Sample, error) {
	header, err := provider.GetHeader()
	if err != nil {
		return nil, inputError(err, "allele.NewSample: reading header of %s", path)
	}
	s := &Sample{
		Path:     path,
		provider: provider,
		refs:     make(map[string]*sam.Reference, len(header.Refs())),
	}
	for _, ref := range header.Refs() {
		s.refs[ref.Name()] = ref
	}
	return s, nil
}

// OpenSamples opens one provider per path.  On error, any providers already
// opened are closed.
func OpenSamples(paths []string) (samples []*Sample, err error) {
	ctx := vcontext.Background()
	// Only the core fields are needed; this matters for PAM inputs.
	dropFields := []gbam.FieldType{gbam.FieldTempLen, gbam.FieldAux}
	for _, path := range paths {
		provider := bamprovider.NewProvider(path, bamprovider.ProviderOpts{DropFields: dropFields})
		var s *Sample
		if s, err = NewSample(path, provider); err == nil && bamprovider.GuessFileType(path) == bamprovider.BAM {
			s.bai, err = readBAI(ctx, path+".bai")
		}
		if err != nil {
			_ = provider.Close()
			_ = CloseSamples(samples)
			return nil, err
		}
		samples = append(samples, s)
	}
	return
}

func readBAI(ctx context.Context, path string) (bai *bam.Index, err error) {
	var in file.File
	if in, err = file.Open(ctx, path); err != nil {
		return nil, inputError(err, "allele.OpenSamples: opening BAM index %s", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	if bai, err = bam.ReadIndex(in.Reader(ctx)); err != nil {
		return nil, inputError(err, "allele.OpenSamples: reading BAM index %s", path)
	}
	log.Debug.Printf("allele.OpenSamples: read %s", path)
	return
}

// CloseSamples closes every sample's provider, returning the first error.
func CloseSamples(samples []*Sample) (err error) {
	for _, s := range samples {
		if e := s.provider.Close(); e != nil && err == nil {
			err = e
		}
	}
	return
}

// fetchesByOverlap returns true if newIterator yields every read overlapping
// the requested range, regardless of the read's span.
func (s *Sample) fetchesByOverlap() bool {
	return s.bai != nil
}

// newIterator returns the reads of ref that may overlap [start, end).  When
// the sample can't be queried by overlap, it returns the reads starting in
// [start - padding, end), so reads spanning more than padding bases can be
// missed.
func (s *Sample) newIterator(ref *sam.Reference, start, end, padding int) bamprovider.Iterator {
	if s.bai != nil {
		return newOverlapIterator(s.Path, s.bai, ref, start, end)
	}
	return s.provider.NewIterator(gbam.Shard{
		StartRef: ref,
		EndRef:   ref,
		Start:    start,
		End:      end,
		Padding:  padding,
	})
}

// overlapIterator reads the BAI bins that overlap a range.  The bins are
// coarse, so the caller still has to check each read's span.  Each iterator
// owns its file and decoder.
type overlapIterator struct {
	ctx   context.Context
	refID int
	in    file.File
	r     *bam.Reader
	iter  *bam.Iterator
	rec   *sam.Record
	err   error
}

func newOverlapIterator(path string, bai *bam.Index, ref *sam.Reference, start, end int) *overlapIterator {
	it := &overlapIterator{ctx: vcontext.Background(), refID: ref.ID()}
	chunks, err := bai.Chunks(ref, start, end)
	if err == index.ErrInvalid || err == index.ErrNoReference || (err == nil && len(chunks) == 0) {
		// No reads in range.
		return it
	}
	if err != nil {
		it.err = err
		return it
	}
	if it.in, it.err = file.Open(it.ctx, path); it.err != nil {
		return it
	}
	if it.r, it.err = bam.NewReader(it.in.Reader(it.ctx), 1); it.err != nil {
		return it
	}
	it.r.Omit(bam.AuxTags)
	it.iter, it.err = bam.NewIterator(it.r, chunks)
	return it
}

// Scan implements bamprovider.Iterator.
func (it *overlapIterator) Scan() bool {
	if it.err != nil || it.iter == nil {
		return false
	}
	for it.iter.Next() {
		rec := it.iter.Record()
		if rec.Ref == nil || rec.Ref.ID() != it.refID {
			continue
		}
		it.rec = rec
		return true
	}
	it.err = it.iter.Error()
	return false
}

// Record implements bamprovider.Iterator.
func (it *overlapIterator) Record() *sam.Record {
	return it.rec
}

// Err implements bamprovider.Iterator.
func (it *overlapIterator) Err() error {
	return it.err
}

// Close implements bamprovider.Iterator.
func (it *overlapIterator) Close() error {
	err := it.err
	if it.iter != nil {
		if e := it.iter.Close(); e != nil && err == nil {
			err = e
		}
	}
	if it.r != nil {
		if e := it.r.Close(); e != nil && err == nil {
			err = e
		}
	}
	if it.in != nil {
		if e := it.in.Close(it.ctx); e != nil && err == nil {
			err = e
		}
	}
	return err
}

// ResolveRefs looks up chrom in every sample's header.  Samples are resolved
// independently, since their headers need not list chromosomes in the same
// order.  The result is indexed like samples.
func ResolveRefs(chrom string, samples []*Sample) ([]*sam.Reference, error) {
	refs := make([]*sam.Reference, len(samples))
	for i, s := range samples {
		ref, ok := s.refs[chrom]
		if !ok {
			return nil, inputError(nil, "allele.ResolveRefs: unknown chromosome %s in %s", chrom, s.Path)
		}
		refs[i] = ref
	}
	return refs, nil
}
