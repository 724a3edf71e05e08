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
	"os"
	"sync/atomic"
	"time"

	"github.com/grailbio/allelepile/interval"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/schollz/progressbar/v3"
)

// newProgressReporter returns the reporter for mode, or nil if progress is
// not reported.  The reporter receives chunk indices into chunks.
func newProgressReporter(mode ProgressMode, chunks []interval.Chunk) traverse.Reporter {
	switch mode {
	case ProgressLog:
		return &logReporter{chunks: chunks}
	case ProgressBar:
		return &barReporter{}
	}
	return nil
}

// logReporter logs one line per finished chunk.
type logReporter struct {
	chunks []interval.Chunk
	nDone  int64
}

func (r *logReporter) Init(n int) {
	log.Printf("allele.Run: processing %d chunk(s)", n)
}

func (r *logReporter) Complete() {
	log.Printf("allele.Run: %d/%d chunk(s) done", atomic.LoadInt64(&r.nDone), len(r.chunks))
}

func (r *logReporter) Begin(i int) {
	log.Debug.Printf("allele.Run: starting chunk %d (%s)", i, r.chunks[i])
}

func (r *logReporter) End(i int) {
	n := atomic.AddInt64(&r.nDone, 1)
	log.Printf("allele.Run: chunk %d (%s) done, %d/%d", i, r.chunks[i], n, len(r.chunks))
}

// barReporter draws a progress bar on stderr.  The bar serializes updates
// internally.
type barReporter struct {
	bar *progressbar.ProgressBar
}

func (r *barReporter) Init(n int) {
	r.bar = progressbar.NewOptions(n,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("chunks"),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
	)
}

func (r *barReporter) Complete() {
	_ = r.bar.Finish()
}

func (r *barReporter) Begin(int) {}

func (r *barReporter) End(int) {
	_ = r.bar.Add(1)
}
