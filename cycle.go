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

package riftmeta

import (
	"fmt"
	"strings"

	"github.com/riftlang/riftmeta/internal/abi"
	"github.com/riftlang/riftmeta/internal/debug"
)

// maxCycleLinks bounds the chase. A chain this long is either an enormous
// legitimate dependency graph, which will resolve on its own, or a cycle
// some other participant will walk into from a shorter distance.
const maxCycleLinks = 128

// checkDependencyCycle chases the chain of blocked entries starting from
// start's first dependency. Reaching start again means nothing in the loop
// can ever advance; that is unrecoverable, so it is diagnosed and the
// process aborts. Any chain that terminates, leaves the cached kinds, or
// loops without involving start is someone else's problem (or no problem),
// and the chase just returns.
func checkDependencyCycle(start *abi.Metadata, first abi.Dependency) {
	chain := []abi.Dependency{first}
	seen := map[*abi.Metadata]struct{}{}
	cur := first

	for len(chain) <= maxCycleLinks {
		if cur.Metadata == start {
			if verifyCycle(start, chain) {
				diagnoseCycle(start, chain)
			}
			return
		}
		if _, dup := seen[cur.Metadata]; dup {
			return
		}
		seen[cur.Metadata] = struct{}{}

		o, ok := ownerOf(cur.Metadata)
		if !ok {
			return
		}
		next := o.blocker(cur.Requirement)
		if !next.Exists() {
			return
		}
		chain = append(chain, next)
		cur = next
	}
}

// verifyCycle re-walks a detected cycle. Each link was sampled at a
// different time; if any entry has moved on since, the "cycle" was a
// transient chain mid-resolution, not a deadlock. A real cycle can never
// resolve, so it re-verifies forever.
func verifyCycle(start *abi.Metadata, chain []abi.Dependency) bool {
	from := start
	for _, link := range chain {
		o, ok := ownerOf(from)
		if !ok {
			return false
		}
		// The entry must still be blocked, on the same metadata.
		cur := o.blocker(abi.Complete)
		if cur.Metadata != link.Metadata {
			return false
		}
		from = link.Metadata
	}
	return true
}

// diagnoseCycle formats the participant chain and hands it to the fatal
// sink. Does not return.
func diagnoseCycle(start *abi.Metadata, chain []abi.Dependency) {
	var b strings.Builder
	fmt.Fprintf(&b, "unresolvable type metadata dependency cycle: %s", NameForMetadata(start))
	for i, link := range chain {
		if i == 0 {
			fmt.Fprintf(&b, " depends on %s of %s", requirementPhrase(link.Requirement), NameForMetadata(link.Metadata))
		} else {
			fmt.Fprintf(&b, ", which depends on %s of %s", requirementPhrase(link.Requirement), NameForMetadata(link.Metadata))
		}
	}
	debug.Fatalf("%s", b.String())
}

// requirementPhrase renders a dependency requirement for the diagnostic.
func requirementPhrase(s abi.State) string {
	switch s {
	case abi.Abstract:
		return "allocation"
	case abi.LayoutComplete:
		return "layout"
	case abi.NonTransitiveComplete:
		return "initialization"
	default:
		return "completion"
	}
}
