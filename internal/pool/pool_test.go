// Copyright 2025 The Rift Language Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pool

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestLIFOReuse(t *testing.T) {
	t.Parallel()

	p := new(Pool)

	const n = 16
	sizes := []int{8, 24, 40, 16}
	var ptrs []*byte
	var allocd []int
	for i := 0; i < n; i++ {
		size := sizes[i%len(sizes)]
		ptrs = append(ptrs, p.Allocate(size, Align))
		allocd = append(allocd, size)
	}

	// Free everything in exact reverse order; the bump pointer must walk all
	// the way back to the first allocation.
	for i := n - 1; i >= 0; i-- {
		p.Deallocate(ptrs[i], allocd[i])
	}

	again := p.Allocate(8, Align)
	assert.Equal(t, ptrs[0], again, "bump pointer did not return to its original position")
}

func TestOutOfOrderFreeLeaks(t *testing.T) {
	t.Parallel()

	p := new(Pool)

	a := p.Allocate(32, Align)
	b := p.Allocate(32, Align)

	// a is not the most recent allocation, so this must not reclaim.
	p.Deallocate(a, 32)

	c := p.Allocate(32, Align)
	assert.NotSame(t, a, c)
	assert.Equal(t, uintptr(unsafe.Pointer(b))+32, uintptr(unsafe.Pointer(c)),
		"allocation after an out-of-order free must continue past the live tail")
}

func TestLargeAllocationsBypassPool(t *testing.T) {
	t.Parallel()

	p := new(Pool)
	mark := p.Allocate(8, Align)

	big := p.Allocate(MaxPoolAllocationSize+1, Align)
	require.NotNil(t, big)

	// The pool's own cursor must be untouched by the large allocation.
	p.Deallocate(mark, 8)
	assert.Equal(t, mark, p.Allocate(8, Align))
}

func TestPageRollover(t *testing.T) {
	t.Parallel()

	p := new(Pool)
	seen := map[*byte]bool{}
	for i := 0; i < (PageSize/MaxPoolAllocationSize)*4; i++ {
		ptr := p.Allocate(MaxPoolAllocationSize, Align)
		require.False(t, seen[ptr], "pool handed out the same block twice")
		seen[ptr] = true
	}
}

func TestConcurrentAllocationsDisjoint(t *testing.T) {
	t.Parallel()

	p := new(Pool)

	const (
		goroutines = 8
		perG       = 512
	)

	var eg errgroup.Group
	results := make([][]*uint64, goroutines)
	for g := 0; g < goroutines; g++ {
		results[g] = make([]*uint64, perG)
		out := results[g]
		eg.Go(func() error {
			for i := 0; i < perG; i++ {
				w := (*uint64)(unsafe.Pointer(p.Allocate(8, Align)))
				*w = uint64(i)
				out[i] = w
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	seen := map[*uint64]bool{}
	for _, out := range results {
		for _, w := range out {
			require.False(t, seen[w], "two goroutines received the same block")
			seen[w] = true
		}
	}
}

func TestNewAndSlice(t *testing.T) {
	t.Parallel()

	p := new(Pool)

	type record struct {
		A, B uint64
	}
	r := New(p, record{A: 1, B: 2})
	assert.Equal(t, record{A: 1, B: 2}, *r)

	s := Slice[uintptr](p, 4)
	require.Len(t, s, 4)
	for _, v := range s {
		assert.Zero(t, v)
	}
}
