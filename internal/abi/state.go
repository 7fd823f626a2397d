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

package abi

import "fmt"

// State is the completion state of a metadata record. States form a lattice
// that only ever increases: an observer never sees a metadata regress.
type State uint8

const (
	// Abstract metadata has an identity but no layout; it can be used as a
	// generic argument for uniquing and nothing else.
	Abstract State = iota

	// LayoutComplete metadata has a trustworthy size, stride, and alignment.
	LayoutComplete

	// NonTransitiveComplete metadata is fully initialized itself, but types
	// it references may not be.
	NonTransitiveComplete

	// Complete metadata is fully initialized, as is everything it
	// transitively depends on for layout.
	Complete
)

// AtLeast reports whether s satisfies a requirement of want.
func (s State) AtLeast(want State) bool { return s >= want }

// String implements [fmt.Stringer].
func (s State) String() string {
	switch s {
	case Abstract:
		return "abstract"
	case LayoutComplete:
		return "layout-complete"
	case NonTransitiveComplete:
		return "non-transitive-complete"
	case Complete:
		return "complete"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Request describes what a caller needs from a metadata lookup.
type Request struct {
	// Required is the state the caller needs the metadata to reach.
	Required State

	// NonBlocking requests an immediate snapshot: if the metadata has not
	// reached Required, the response reports whatever state it is in instead
	// of waiting.
	NonBlocking bool
}

// Blocking builds a request that waits for the given state.
func Blocking(s State) Request { return Request{Required: s} }

// NonBlocking builds a request that polls for the given state.
func NonBlocking(s State) Request { return Request{Required: s, NonBlocking: true} }

// Response is the result of a metadata request: the canonical metadata
// pointer for the key, and the state it had reached when observed.
//
// A blocking request's response always satisfies the requirement; a
// non-blocking response may report any state.
type Response struct {
	Metadata *Metadata
	State    State
}

// Dependency describes a suspension: some initialization cannot continue
// until Metadata reaches Requirement. The zero Dependency means "no
// dependency".
//
// Dependencies double as the links of the cycle diagnostic chain.
type Dependency struct {
	Metadata    *Metadata
	Requirement State
}

// Exists reports whether this is a real dependency.
func (d Dependency) Exists() bool { return d.Metadata != nil }

// CompletionContext is scratch storage that a completion function can use to
// resume incrementally after a suspension. Its contents are opaque to the
// cache that carries it.
type CompletionContext struct {
	Scratch any
}
