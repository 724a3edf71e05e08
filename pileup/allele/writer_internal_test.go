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
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestOrderedWriterReorders(t *testing.T) {
	var out bytes.Buffer
	ow := newOrderedWriter(&out, 4)
	var wg sync.WaitGroup
	for i := 9; i >= 0; i-- {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data := []byte(fmt.Sprintf("%d\n", i))
			if i == 4 {
				data = nil
			}
			assert.NoError(t, ow.add(i, data))
		}(i)
	}
	wg.Wait()
	assert.NoError(t, ow.Close())
	expect.EQ(t, out.String(), "0\n1\n2\n3\n5\n6\n7\n8\n9\n")
}

func TestOrderedWriterBounded(t *testing.T) {
	var out bytes.Buffer
	ow := newOrderedWriter(&out, 2)
	assert.NoError(t, ow.add(1, []byte("b")))

	// Block 0 is missing and the queue is full, so block 2 waits.
	added := make(chan error, 1)
	go func() { added <- ow.add(2, []byte("c")) }()
	select {
	case err := <-added:
		t.Fatalf("block added past the queue bound: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	assert.NoError(t, ow.add(0, []byte("a")))
	assert.NoError(t, <-added)
	assert.NoError(t, ow.Close())
	expect.EQ(t, out.String(), "abc")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, fmt.Errorf("disk full")
}

func TestOrderedWriterWriteError(t *testing.T) {
	ow := newOrderedWriter(failingWriter{}, 2)
	assert.NoError(t, ow.add(0, []byte("a")))
	err := ow.Close()
	assert.NotNil(t, err)
	expect.HasSubstr(t, err.Error(), "disk full")
}

func TestOrderedWriterAbort(t *testing.T) {
	var out bytes.Buffer
	ow := newOrderedWriter(&out, 2)
	assert.NoError(t, ow.add(1, []byte("b")))
	added := make(chan error, 1)
	go func() { added <- ow.add(2, []byte("c")) }()

	abortErr := fmt.Errorf("chunk 0 failed")
	expect.EQ(t, ow.abort(abortErr), abortErr)
	// The blocked add is released with the abort error.
	expect.EQ(t, <-added, abortErr)
	expect.EQ(t, ow.add(3, []byte("d")), abortErr)
	expect.EQ(t, ow.Close(), abortErr)
	expect.EQ(t, out.String(), "")
}
