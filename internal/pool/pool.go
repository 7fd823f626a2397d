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

// Package pool provides the bump allocator that backs all permanent metadata
// records.
//
// # Design
//
// The pool is a chain of fixed-size pages consumed by a bump pointer. The
// whole allocator state is a single immutable {page, cursor} snapshot behind
// an atomic pointer; allocation is a compare-and-swap loop over snapshots, so
// the pool is safe under arbitrary concurrent callers without locks.
//
// Nothing allocated here is ever reclaimed except by [Pool.Deallocate], and
// only when the freed block is the most recent allocation. Metadata lives for
// the lifetime of the process, so losing a page's tail to an out-of-order
// free is an accepted cost, not a leak to fix.
//
// Pages are plain byte slices, which the garbage collector treats as
// pointer-free. Pointers stored in pool memory are therefore invisible to the
// GC: every object they refer to must also be reachable from ordinary Go
// memory. The uniquing caches satisfy this by holding every published
// metadata pointer forever.
package pool

import (
	"sync/atomic"
	"unsafe"

	"github.com/riftlang/riftmeta/internal/debug"
)

const (
	// PageSize is the granularity at which the pool grows.
	PageSize = 16 * 1024

	// MaxPoolAllocationSize is the largest request served from pool pages.
	// Anything bigger goes straight to the ordinary heap.
	MaxPoolAllocationSize = PageSize / 2

	// Align is the alignment of every pool allocation.
	Align = int(unsafe.Sizeof(uintptr(0)))
)

// Pool is a thread-safe bump allocator. The zero Pool is empty and ready to
// use.
type Pool struct {
	state atomic.Pointer[snapshot]
}

// snapshot is one immutable state of the pool. A new snapshot is swapped in
// for every allocation; a stale snapshot simply loses the race and retries.
type snapshot struct {
	page   []byte
	cursor int
}

// Allocate returns a pointer to size bytes of pool memory, aligned to Align.
// align must not exceed Align.
//
// Fresh pages are zeroed; bytes reclaimed by a LIFO Deallocate may be dirty,
// so callers must fully initialize what they get back.
func (p *Pool) Allocate(size, align int) *byte {
	debug.Assert(align <= Align, "over-aligned pool request: %d", align)
	size = roundUp(size)

	if size > MaxPoolAllocationSize {
		// The heap allocator aborts the process on exhaustion, which is
		// exactly the contract: there is nobody to report the failure to.
		return unsafe.SliceData(make([]byte, size))
	}

	for {
		cur := p.state.Load()
		if cur != nil && cur.cursor+size <= len(cur.page) {
			next := &snapshot{page: cur.page, cursor: cur.cursor + size}
			if p.state.CompareAndSwap(cur, next) {
				return &cur.page[cur.cursor]
			}
			continue
		}

		// Start a fresh page. If the swap fails, another thread grew the
		// pool first; throw this page away and retry against theirs.
		page := make([]byte, PageSize)
		next := &snapshot{page: page, cursor: size}
		if p.state.CompareAndSwap(cur, next) {
			return &page[0]
		}
	}
}

// Deallocate gives size bytes at ptr back to the pool, best effort: the bytes
// are reclaimed only if they are the most recent allocation. Anything else is
// silently kept; the caller must treat the memory as gone either way.
func (p *Pool) Deallocate(ptr *byte, size int) {
	size = roundUp(size)
	if size > MaxPoolAllocationSize {
		// Heap-backed; the GC reclaims it once the caller drops the pointer.
		return
	}

	cur := p.state.Load()
	if cur == nil || cur.cursor < size || &cur.page[cur.cursor-size] != ptr {
		return
	}

	// A single attempt, like the allocation fast path in reverse. If we lose
	// the race, somebody allocated past us and the bytes are permanent now.
	next := &snapshot{page: cur.page, cursor: cur.cursor - size}
	p.state.CompareAndSwap(cur, next)
}

// New allocates a value of type T in the pool and initializes it.
//
// T may contain pointers; see the package comment for the reachability rules
// that make this safe.
func New[T any](p *Pool, value T) *T {
	size, align := int(unsafe.Sizeof(value)), int(unsafe.Alignof(value))
	ptr := (*T)(unsafe.Pointer(p.Allocate(size, align)))
	*ptr = value
	return ptr
}

// Slice allocates an n-element slice of T in the pool, zeroed.
func Slice[T any](p *Pool, n int) []T {
	if n == 0 {
		return nil
	}
	var zero T
	size, align := int(unsafe.Sizeof(zero)), int(unsafe.Alignof(zero))
	ptr := (*T)(unsafe.Pointer(p.Allocate(size*n, align)))
	s := unsafe.Slice(ptr, n)
	for i := range s {
		s[i] = zero
	}
	return s
}

// SizeOf reports the rounded pool footprint of a request, for callers that
// later want to Deallocate exactly what they asked for.
func SizeOf(size int) int { return roundUp(size) }

func roundUp(size int) int {
	return (size + Align - 1) &^ (Align - 1)
}
