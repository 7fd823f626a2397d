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
	"github.com/riftlang/riftmeta/internal/abi"
	"github.com/riftlang/riftmeta/internal/cache"
)

func init() {
	// The cache layer has no idea which cache owns an arbitrary metadata;
	// this package does. Wire the cross-cache hooks here.
	cache.EnqueueOnOwner = enqueueOnOwner
	cache.CheckCycle = checkDependencyCycle
}

// metadataOwner is a uniform handle on whichever cache entry owns a
// metadata record.
type metadataOwner struct {
	enqueue func(required State, resume func()) bool
	blocker func(required State) Dependency
	await   func(req Request) (Response, bool)
}

// ownerOf locates the cache entry owning md. The second result is false for
// kinds that are born Complete (and for static metadata that never lived in
// a cache): they can never block anyone.
func ownerOf(md *abi.Metadata) (metadataOwner, bool) {
	switch md.Kind {
	case abi.KindStruct, abi.KindEnum, abi.KindClass:
		desc := md.Description()
		if desc == nil || !desc.IsGeneric() {
			return metadataOwner{}, false
		}
		c := genericCache(desc)
		key := argumentFingerprint(md.GenericArguments()[:desc.Generic.NumKeyArguments])
		return metadataOwner{
			enqueue: func(required State, resume func()) bool { return c.Enqueue(key, required, resume) },
			blocker: func(required State) Dependency { return c.CheckDependency(key, required) },
			await:   func(req Request) (Response, bool) { return c.Await(key, req) },
		}, true

	case abi.KindTuple:
		t, _ := md.AsTuple()
		if len(t.Elements) == 0 {
			return metadataOwner{}, false
		}
		elements := make([]*abi.Metadata, len(t.Elements))
		for i := range t.Elements {
			elements[i] = t.Elements[i].Type
		}
		key := tupleFingerprint(elements, t.Labels)
		return metadataOwner{
			enqueue: func(required State, resume func()) bool { return tupleCache.Enqueue(key, required, resume) },
			blocker: func(required State) Dependency { return tupleCache.CheckDependency(key, required) },
			await:   func(req Request) (Response, bool) { return tupleCache.Await(key, req) },
		}, true

	default:
		return metadataOwner{}, false
	}
}

// enqueueOnOwner implements the cache layer's suspension hook: register
// resume with the dependency's owning entry, or report the dependency
// already satisfied.
func enqueueOnOwner(dep abi.Dependency, resume func()) bool {
	o, ok := ownerOf(dep.Metadata)
	if !ok {
		return false
	}
	return o.enqueue(dep.Requirement, resume)
}

// CheckState re-requests metadata that the caller already holds: wait for
// (or poll) a completion state on the canonical record. Metadata that never
// had a completion process reports Complete.
func CheckState(req Request, md *Metadata) Response {
	if o, ok := ownerOf(md); ok {
		if resp, found := o.await(req); found {
			return resp
		}
	}
	return Response{Metadata: md, State: abi.Complete}
}

// checkTransitiveCompleteness verifies that everything reachable from root
// through layout-relevant references is complete, presuming the types along
// the current path complete to let cyclic type graphs converge.
//
// The probes are non-blocking: a reference that has not even reached
// NonTransitiveComplete is returned as a dependency instead of being waited
// on, so the caller's entry parks rather than ties up a thread.
func checkTransitiveCompleteness(root *abi.Metadata) abi.Dependency {
	presumed := map[*abi.Metadata]struct{}{root: {}}
	worklist := []*abi.Metadata{root}

	for len(worklist) > 0 {
		md := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		for _, ref := range transitiveReferences(md) {
			if ref == nil {
				continue
			}
			if _, ok := presumed[ref]; ok {
				continue
			}
			resp := CheckState(abi.NonBlocking(abi.Complete), ref)
			if resp.State == abi.Complete {
				continue
			}
			if !resp.State.AtLeast(abi.NonTransitiveComplete) {
				return abi.Dependency{Metadata: ref, Requirement: abi.NonTransitiveComplete}
			}
			presumed[ref] = struct{}{}
			worklist = append(worklist, ref)
		}
	}
	return abi.Dependency{}
}

// transitiveReferences lists the types whose completeness md's completeness
// rests on: generic arguments plus the kind-specific structural references.
func transitiveReferences(md *abi.Metadata) []*abi.Metadata {
	var out []*abi.Metadata
	if desc := md.Description(); desc != nil && desc.IsGeneric() {
		args := md.GenericArguments()
		for _, a := range args[:desc.Generic.NumKeyArguments] {
			out = append(out, a.Type())
		}
	}

	switch md.Kind {
	case abi.KindClass:
		c, _ := md.AsClass()
		if c.Superclass != nil {
			out = append(out, c.Superclass.AsMetadata())
		}
	case abi.KindTuple:
		t, _ := md.AsTuple()
		for i := range t.Elements {
			out = append(out, t.Elements[i].Type)
		}
	case abi.KindFunction:
		f, _ := md.AsFunction()
		out = append(out, f.Result)
		for _, p := range f.Params {
			out = append(out, p.Type)
		}
	case abi.KindMetatype:
		m, _ := md.AsMetatype()
		out = append(out, m.Instance)
	case abi.KindExistentialMetatype:
		m, _ := md.AsExistentialMetatype()
		out = append(out, m.Instance)
	case abi.KindExistential:
		e, _ := md.AsExistential()
		if e.Superclass != nil {
			out = append(out, e.Superclass)
		}
	}
	return out
}
