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
	"io"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/syncqueue"
)

// orderedWriter writes chunk blocks to w in the order of their chunk indices,
// holding back blocks that arrive early.  At most queueSize blocks are held;
// add blocks a worker that is too far ahead of the writer.
type orderedWriter struct {
	w         io.Writer
	queue     *syncqueue.OrderedQueue
	waitGroup sync.WaitGroup
	err       error
}

func newOrderedWriter(w io.Writer, queueSize int) *orderedWriter {
	ow := &orderedWriter{
		w:     w,
		queue: syncqueue.NewOrderedQueue(queueSize),
	}
	ow.waitGroup.Add(1)
	go func() {
		defer ow.waitGroup.Done()
		ow.writeBlocks()
	}()
	return ow
}

// add queues the block of chunk index.  An empty block writes nothing, but
// still has to be added so that later blocks can be written.
func (ow *orderedWriter) add(index int, data []byte) error {
	return ow.queue.Insert(index, data)
}

// abort stops the writer.  Pending and future add calls fail with err.  It
// returns the first error recorded by the queue.
func (ow *orderedWriter) abort(err error) error {
	return ow.queue.Close(err)
}

func (ow *orderedWriter) writeBlocks() {
	for {
		entry, ok, err := ow.queue.Next()
		if err != nil {
			ow.err = err
			return
		}
		if !ok {
			return
		}
		data := entry.([]byte)
		if len(data) == 0 {
			continue
		}
		if _, err = ow.w.Write(data); err != nil {
			ow.err = errors.E("allele.Run: writing output", err)
			ow.queue.Close(ow.err)
			return
		}
	}
}

// Close waits for every added block to be written.  It must be called after
// the last add, or after abort.
func (ow *orderedWriter) Close() error {
	err := ow.queue.Close(nil)
	ow.waitGroup.Wait()
	if ow.err != nil {
		return ow.err
	}
	return err
}
