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

// Package cache implements the concurrent uniquing maps that give every
// structural key exactly one published metadata record, and the per-entry
// state machine that walks a record from Abstract to Complete.
//
// # Locking discipline
//
// Each Map has one mutex covering its entries. User-supplied allocation and
// initialization hooks always run with the mutex released, because they
// recursively request other metadata; the map re-checks its state after
// reacquiring. Blocking waiters park on the map's condition variable; a
// suspended initialization parks as a waiter record on its dependency's
// entry and is resumed by whichever thread advances that dependency.
//
// Entries are immortal: once a key maps to an entry, that binding never
// changes, and the entry's state only ever increases.
package cache

import (
	"sync"
	"sync/atomic"

	"github.com/riftlang/riftmeta/internal/abi"
	"github.com/riftlang/riftmeta/internal/debug"
)

// EnqueueOnOwner registers resume to run once dep.Metadata reaches
// dep.Requirement, whichever cache owns it. Reports false, without
// registering, if the dependency is already satisfied.
//
// Installed by the runtime package at init; the cache layer cannot locate an
// arbitrary metadata's owner by itself.
var EnqueueOnOwner func(dep abi.Dependency, resume func()) bool

// CheckCycle diagnoses an unresolvable dependency cycle starting from a
// metadata that has just parked on first. It either returns (no cycle
// provable yet) or does not return at all (fatal diagnostic).
//
// Installed by the runtime package at init.
var CheckCycle func(start *abi.Metadata, first abi.Dependency)

// Hooks supplies the kind-specific behavior of a Map.
type Hooks[K comparable, A any] struct {
	// Name identifies the cache in trace logs.
	Name string

	// Allocate produces the one metadata record for key, in Abstract state
	// or better. It runs outside the map lock and must not have side
	// effects beyond permanent pool allocation.
	Allocate func(key K, args A) (*abi.Metadata, abi.State)

	// TryInitialize advances md from state. It either reaches a new state
	// with no dependency (Complete means done), or reports the dependency
	// that blocked it, to be re-invoked after that dependency resolves.
	// It runs outside the map lock.
	TryInitialize func(md *abi.Metadata, state abi.State, ctx *abi.CompletionContext) (abi.State, abi.Dependency)
}

// Map is a uniquing map from structural keys to metadata entries.
type Map[K comparable, A any] struct {
	hooks   Hooks[K, A]
	mu      sync.Mutex
	cond    *sync.Cond
	entries map[K]*Entry
}

// Entry is one key's slot: the published metadata record plus its
// completion state.
type Entry struct {
	md *abi.Metadata

	// state mirrors the entry's completion state for lock-free snapshot
	// reads; writes happen under the map lock. Monotonically increasing.
	state atomic.Int32

	// allocated flips once md is published; until then readers park.
	allocated bool

	// initializing serializes TryInitialize: one pumping thread at a time.
	initializing bool

	// blockedOn is the unresolved dependency this entry is parked on, if
	// any. Doubles as the link the cycle detector chases.
	blockedOn abi.Dependency

	// ctx is the completer's scratch space, opaque here.
	ctx abi.CompletionContext

	// waiters are suspended initializations of other entries, resumed when
	// this entry reaches their required state.
	waiters []waiter
}

type waiter struct {
	required abi.State
	resume   func()
}

// State returns the entry's current state snapshot. States never decrease,
// so two loads are ordered even without the map lock.
func (e *Entry) State() abi.State { return abi.State(e.state.Load()) }

// Metadata returns the published record. Only valid once allocated.
func (e *Entry) Metadata() *abi.Metadata { return e.md }

// NewMap builds a Map with the given hooks.
func NewMap[K comparable, A any](hooks Hooks[K, A]) *Map[K, A] {
	debug.Assert(hooks.Allocate != nil, "cache %q has no allocator", hooks.Name)
	c := &Map[K, A]{
		hooks:   hooks,
		entries: make(map[K]*Entry),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// GetOrInsert returns the canonical metadata for key, creating it on first
// use, and waits (or polls, per the request) for it to reach the requested
// state.
func (c *Map[K, A]) GetOrInsert(key K, req abi.Request, args A) abi.Response {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		resp := c.awaitLocked(e, req)
		c.mu.Unlock()
		return resp
	}

	// First writer: claim the slot, then allocate outside the lock so a
	// recursive request from the allocator cannot deadlock. Late arrivals
	// find the claimed entry and park until the record is published.
	e = &Entry{}
	c.entries[key] = e
	c.mu.Unlock()

	debug.Log("allocate", "%s: new entry", c.hooks.Name)
	md, state := c.hooks.Allocate(key, args)
	debug.Assert(md != nil, "cache %q allocated nil metadata", c.hooks.Name)

	c.mu.Lock()
	e.md = md
	e.allocated = true
	e.state.Store(int32(state))
	resumes := c.drainLocked(e)
	c.cond.Broadcast()
	c.mu.Unlock()
	run(resumes)

	if state != abi.Complete && c.hooks.TryInitialize != nil {
		c.pump(e)
	}

	c.mu.Lock()
	resp := c.awaitLocked(e, req)
	c.mu.Unlock()
	return resp
}

// Await looks up key without creating it. The second result reports whether
// the key exists.
func (c *Map[K, A]) Await(key K, req abi.Request) (abi.Response, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return abi.Response{}, false
	}
	resp := c.awaitLocked(e, req)
	c.mu.Unlock()
	return resp, true
}

// Enqueue registers a suspended initialization to resume once key's entry
// reaches the required state. Reports false, without registering, if it
// already has.
func (c *Map[K, A]) Enqueue(key K, required abi.State, resume func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[key]
	debug.Assert(e != nil, "cache %q: dependency on a key with no entry", c.hooks.Name)
	if e.allocated && e.State().AtLeast(required) {
		return false
	}
	e.waiters = append(e.waiters, waiter{required: required, resume: resume})
	return true
}

// CheckDependency returns what key's entry is known to be blocked on if it
// has not reached the required state, or a zero dependency if it has (or if
// no blocker is known yet).
func (c *Map[K, A]) CheckDependency(key K, required abi.State) abi.Dependency {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[key]
	if e == nil || !e.allocated || e.State().AtLeast(required) {
		return abi.Dependency{}
	}
	return e.blockedOn
}

// awaitLocked implements request semantics against one entry. Called and
// returns with the map lock held; may release it while parked.
func (c *Map[K, A]) awaitLocked(e *Entry, req abi.Request) abi.Response {
	// Until the first writer publishes a record there is no pointer to
	// return, so even non-blocking requests wait out allocation. Allocation
	// never suspends on other metadata, so this wait is bounded.
	for !e.allocated {
		c.cond.Wait()
	}

	state := e.State()
	if req.NonBlocking || state.AtLeast(req.Required) {
		return abi.Response{Metadata: e.md, State: state}
	}

	for {
		state = e.State()
		if state.AtLeast(req.Required) {
			return abi.Response{Metadata: e.md, State: state}
		}

		if dep := e.blockedOn; dep.Exists() {
			// The entry cannot advance by itself. Before parking behind it,
			// make sure the chain of blockers is not a cycle; if it is,
			// this call never returns.
			md := e.md
			c.mu.Unlock()
			CheckCycle(md, dep)
			c.mu.Lock()
			if e.State().AtLeast(req.Required) {
				continue
			}
		}
		c.cond.Wait()
	}
}

// pump drives an entry's initialization until it completes or parks on a
// dependency. At most one thread pumps an entry at a time.
func (c *Map[K, A]) pump(e *Entry) {
	for {
		c.mu.Lock()
		state := e.State()
		if state == abi.Complete || e.initializing || e.blockedOn.Exists() {
			c.mu.Unlock()
			return
		}
		e.initializing = true
		c.mu.Unlock()

		newState, dep := c.hooks.TryInitialize(e.md, state, &e.ctx)
		debug.Assert(newState >= state,
			"cache %q: state regressed %v -> %v", c.hooks.Name, state, newState)

		c.mu.Lock()
		e.initializing = false
		var resumes []func()
		if newState > state {
			debug.Log("advance", "%s: %v -> %v", c.hooks.Name, state, newState)
			e.state.Store(int32(newState))
			resumes = c.drainLocked(e)
			c.cond.Broadcast()
		}
		done := newState == abi.Complete
		if !done {
			debug.Assert(dep.Exists(),
				"cache %q: incomplete initialization reported no dependency", c.hooks.Name)
			e.blockedOn = dep
		}
		c.mu.Unlock()
		run(resumes)
		if done {
			return
		}

		// Park behind the dependency's owner. A false return means the
		// dependency resolved in the meantime; un-park and keep pumping.
		target := e
		if EnqueueOnOwner(dep, func() { c.resume(target) }) {
			debug.Log("park", "%s: waiting for %v", c.hooks.Name, dep.Requirement)
			CheckCycle(e.md, dep)
			return
		}
		c.mu.Lock()
		e.blockedOn = abi.Dependency{}
		c.mu.Unlock()
	}
}

// resume un-parks an entry whose dependency has resolved and pumps it on
// the resolving thread.
func (c *Map[K, A]) resume(e *Entry) {
	c.mu.Lock()
	e.blockedOn = abi.Dependency{}
	c.mu.Unlock()
	c.pump(e)
}

// drainLocked collects the waiters the entry's current state satisfies.
// The caller runs them after releasing the lock; a resumption immediately
// re-enters some cache, possibly this one.
func (c *Map[K, A]) drainLocked(e *Entry) []func() {
	state := e.State()
	var ready []func()
	kept := e.waiters[:0]
	for _, w := range e.waiters {
		if state.AtLeast(w.required) {
			ready = append(ready, w.resume)
		} else {
			kept = append(kept, w)
		}
	}
	e.waiters = kept
	return ready
}

func run(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
