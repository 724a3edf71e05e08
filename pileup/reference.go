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
	"bytes"
	"context"
	"io/ioutil"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bio/encoding/fasta"
	"github.com/pkg/errors"
)

// Reference is an open reference store.  Get is safe for concurrent use, so
// a single Reference is shared by all pileup workers.
type Reference struct {
	fasta.Fasta
	in file.File // backing file when indexed, nil when loaded into memory
}

// OpenReference opens the FASTA at fapath.  If fapath + ".fai" exists, the
// sequence is read lazily through the index; otherwise the whole
// (optionally compressed) file is loaded into memory.
func OpenReference(ctx context.Context, fapath string) (*Reference, error) {
	faiPath := fapath + ".fai"
	if _, err := file.Stat(ctx, faiPath); err == nil {
		return openIndexed(ctx, fapath, faiPath)
	}
	log.Debug.Printf("pileup.OpenReference: %s not found, loading %s into memory", faiPath, fapath)
	fa, err := loadFa(ctx, fapath)
	if err != nil {
		return nil, err
	}
	return &Reference{Fasta: fa}, nil
}

func openIndexed(ctx context.Context, fapath, faiPath string) (ref *Reference, err error) {
	var index []byte
	if index, err = readAll(ctx, faiPath); err != nil {
		return nil, errors.Wrapf(err, "pileup.OpenReference: reading %s", faiPath)
	}
	var in file.File
	if in, err = file.Open(ctx, fapath); err != nil {
		return nil, errors.Wrapf(err, "pileup.OpenReference: opening %s", fapath)
	}
	fa, err := fasta.NewIndexed(in.Reader(ctx), bytes.NewReader(index))
	if err != nil {
		_ = in.Close(ctx)
		return nil, errors.Wrapf(err, "pileup.OpenReference: parsing %s", faiPath)
	}
	return &Reference{Fasta: fa, in: in}, nil
}

func readAll(ctx context.Context, path string) (data []byte, err error) {
	var in file.File
	if in, err = file.Open(ctx, path); err != nil {
		return
	}
	defer file.CloseAndReport(ctx, in, &err)
	return ioutil.ReadAll(in.Reader(ctx))
}

// loadFa is a thin wrapper around fasta.New().
func loadFa(ctx context.Context, fapath string) (fa fasta.Fasta, err error) {
	var infile file.File
	if infile, err = file.Open(ctx, fapath); err != nil {
		return nil, errors.Wrapf(err, "pileup.OpenReference: opening %s", fapath)
	}
	defer func() {
		if e := infile.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	reader, _ := compress.NewReader(infile.Reader(ctx))
	defer func() {
		if e := reader.Close(); e != nil && err == nil {
			err = e
		}
	}()
	if fa, err = fasta.New(reader); err != nil {
		return nil, errors.Wrapf(err, "pileup.OpenReference: parsing %s", fapath)
	}
	return
}

// Close releases the backing file, if any.
func (r *Reference) Close(ctx context.Context) error {
	if r.in == nil {
		return nil
	}
	return r.in.Close(ctx)
}

// Bases returns the reference bases of [start, end) on seqName, upper-cased.
// Anything other than A/C/G/T, such as an IUPAC ambiguity code, is rendered
// as 'N'.
func (r *Reference) Bases(seqName string, start, end PosType) ([]byte, error) {
	s, err := r.Get(seqName, uint64(start), uint64(end))
	if err != nil {
		return nil, err
	}
	bases := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		bases[i] = EnumToASCIITable[ASCIIToEnumTable[s[i]]]
	}
	return bases, nil
}
