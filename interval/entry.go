package interval

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/base/vcontext"
	"github.com/klauspost/compress/gzip"
)

// PosType is the coordinate type used for target intervals.
type PosType = int32

// PosTypeMax is the maximum value that can be represented by a PosType.
const PosTypeMax = math.MaxInt32

// WholeContigEnd is the End of an Entry that covers a whole contig whose
// length is not yet known.  Region files and explicit ranges can't produce
// it, since their ends must be below PosTypeMax.
const WholeContigEnd = PosTypeMax

// Entry represents a single target interval, with 0-based half-open
// coordinates.
type Entry struct {
	ChrName string
	Start0  PosType
	End     PosType
}

// Len returns the number of positions covered by e.
func (e Entry) Len() int {
	return int(e.End - e.Start0)
}

// IsWholeContig returns true if e was parsed from a bare contig name, and
// still needs to be clipped to the contig length.
func (e Entry) IsWholeContig() bool {
	return e.End == WholeContigEnd
}

func (e Entry) String() string {
	return fmt.Sprintf("%s:%d-%d", e.ChrName, e.Start0, e.End)
}

// ParseRegionString parses a region string of one of the forms
//   [contig ID]:[1-based first pos]-[last pos]
//   [contig ID]:[1-based pos]
//   [contig ID]
// returning a contig ID and 0-based interval boundaries.  The interval
// [0, WholeContigEnd) is returned if there is no positional restriction; the
// caller is expected to clip it to the contig length.
func ParseRegionString(region string) (result Entry, err error) {
	if len(region) == 0 {
		err = fmt.Errorf("interval.ParseRegionString: empty region string")
		return
	}
	colonPos := strings.IndexByte(region, ':')
	if colonPos == -1 {
		result.ChrName = region
		result.Start0 = 0
		result.End = WholeContigEnd
		return
	}
	if colonPos == 0 {
		err = fmt.Errorf("interval.ParseRegionString: empty contig ID")
		return
	}
	result.ChrName = region[0:colonPos]
	rangeStr := region[colonPos+1:]
	dashPos := strings.IndexByte(rangeStr, '-')
	if dashPos == -1 {
		var pos1 int64
		if pos1, err = strconv.ParseInt(rangeStr, 10, 32); err != nil {
			return
		}
		if pos1 <= 0 {
			err = fmt.Errorf("interval.ParseRegionString: position %v in region string out of range", rangeStr)
			return
		}
		result.Start0 = PosType(pos1 - 1)
		result.End = PosType(pos1)
		return
	}
	start1Str := rangeStr[:dashPos]
	endStr := rangeStr[dashPos+1:]
	var start1 int
	if start1, err = strconv.Atoi(start1Str); err != nil {
		return
	}
	if start1 <= 0 {
		err = fmt.Errorf("interval.ParseRegionString: position %v in region string out of range", start1Str)
		return
	}
	var end0 int
	if end0, err = strconv.Atoi(endStr); err != nil {
		return
	}
	if end0 < start1 || end0 >= PosTypeMax {
		err = fmt.Errorf("interval.ParseRegionString: invalid range string %v", rangeStr)
		return
	}
	result.Start0 = PosType(start1 - 1)
	result.End = PosType(end0)
	return
}

// ReadOpts controls ReadEntries.
type ReadOpts struct {
	// HasHeader is true if the first non-comment line of the region file is a
	// header row.
	HasHeader bool
}

// ReadEntries parses a tab-delimited "chrom start end" region file.  Columns
// past the third (BED name, score, ...) are ignored, and need not be the same
// on every line.  Entries are returned in file order; overlapping entries are
// kept separately.  Parsing is all-or-nothing: the first malformed line fails
// the whole read.
func ReadEntries(r io.Reader, opts ReadOpts) ([]Entry, error) {
	tr := tsv.NewReader(r)
	tr.Comment = '#'
	tr.FieldsPerRecord = -1
	tr.LazyQuotes = true
	var entries []Entry
	for line := 1; ; line++ {
		fields, err := tr.Reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.E(fmt.Sprintf("interval.ReadEntries: record %d", line), err)
		}
		if line == 1 && opts.HasHeader {
			continue
		}
		entry, err := parseEntry(fields)
		if err != nil {
			return nil, errors.E(fmt.Sprintf("interval.ReadEntries: record %d", line), err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func parseEntry(fields []string) (Entry, error) {
	if len(fields) < 3 {
		return Entry{}, fmt.Errorf("expected at least 3 columns, got %d", len(fields))
	}
	if fields[0] == "" {
		return Entry{}, fmt.Errorf("empty chromosome name")
	}
	start, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return Entry{}, err
	}
	end, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Entry{}, err
	}
	if start < 0 || end < start || end >= PosTypeMax {
		return Entry{}, fmt.Errorf("invalid interval [%d, %d) on %s", start, end, fields[0])
	}
	return Entry{
		ChrName: fields[0],
		Start0:  PosType(start),
		End:     PosType(end),
	}, nil
}

// ReadEntriesFromPath is a wrapper for ReadEntries that takes a path instead
// of an io.Reader.  Gzipped files are detected by extension.
func ReadEntriesFromPath(path string, opts ReadOpts) (entries []Entry, err error) {
	ctx := vcontext.Background()
	var infile file.File
	if infile, err = file.Open(ctx, path); err != nil {
		return
	}
	defer func() {
		if cerr := infile.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	reader := io.Reader(infile.Reader(ctx))
	switch fileio.DetermineType(path) {
	case fileio.Gzip:
		if reader, err = gzip.NewReader(reader); err != nil {
			return
		}
	}
	if entries, err = ReadEntries(reader, opts); err != nil {
		return
	}
	log.Printf("interval.ReadEntriesFromPath: %d target interval(s) loaded from %s", len(entries), path)
	return
}
