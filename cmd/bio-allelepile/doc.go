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

/*
Given one or more BAMs or PAMs, a reference FASTA, and a set of target
regions, bio-allelepile reports, for every target position, the number of
reads supporting each base in each input, optionally split by template strand
and with the lengths of insertions and deletions following the position.

Both reads of a pair are counted at most once per position: when they overlap,
the one with the higher MAPQ (then the first read) is used.  The template
strand of a read is its own orientation, inverted for the second read of a
pair.

Output is a TSV with one row per position (two in -split mode):
  Chrom  Pos  Strand  Ref  <one column per input>
where Pos is 1-based and each input column is "A,C,G,T" counts, followed by
",INS,DEL" with '|'-separated lengths when -count-indels is set.  Rows are
written in target order regardless of -parallelism.

Sample usage:
bio-allelepile \
    -target my-regions.bed \
    -reference ref.fa \
    -min-depth 10 \
    -count-indels \
    -with-header \
    -out out.tsv.gz \
    tumor.bam normal.bam

Exit status is 2 for invalid options, 3 for unreadable or inconsistent inputs
(including a target chromosome missing from an input), and 1 for other
failures.
*/
package main
