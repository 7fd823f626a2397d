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
	"github.com/riftlang/riftmeta/internal/debug"
	"github.com/riftlang/riftmeta/internal/pool"
)

// genericArgs carries one instantiation request into the cache hooks.
type genericArgs struct {
	desc *abi.TypeDescriptor
	args []abi.Argument
}

// genericCache returns the per-descriptor uniquing cache, creating it on
// first use. Each generic context gets its own cache (and so its own lock);
// instantiations of unrelated types never contend.
func genericCache(desc *abi.TypeDescriptor) *cache.Map[string, genericArgs] {
	return desc.Generic.Cache.Get(func() any {
		return cache.NewMap(cache.Hooks[string, genericArgs]{
			Name:          desc.QualifiedName(),
			Allocate:      allocateGeneric,
			TryInitialize: initializeGeneric,
		})
	}).(*cache.Map[string, genericArgs])
}

// GetGenericMetadata returns the canonical metadata for one instantiation of
// a generic type. The first NumKeyArguments entries of args are the
// instantiation's identity; the rest ride along for the pattern's benefit.
func GetGenericMetadata(req Request, desc *TypeDescriptor, args []Argument) Response {
	g := desc.Generic
	debug.Assert(g != nil, "generic instantiation of non-generic type %s", desc.QualifiedName())
	debug.Assert(len(args) >= int(g.NumKeyArguments),
		"%s: %d arguments for %d key slots", desc.QualifiedName(), len(args), g.NumKeyArguments)

	key := argumentFingerprint(args[:g.NumKeyArguments])
	return genericCache(desc).GetOrInsert(key, req, genericArgs{desc: desc, args: args})
}

// allocateGeneric is the cache allocation hook: run the pattern's
// instantiation function and report the starting state.
func allocateGeneric(_ string, in genericArgs) (*abi.Metadata, abi.State) {
	g := in.desc.Generic

	// The caller's argument vector may be scratch; the metadata keeps its
	// own copy.
	args := append([]abi.Argument(nil), in.args...)

	if cd, ok := in.desc.AsClass(); ok {
		p := g.ClassPattern
		debug.Assert(p != nil && p.Instantiate != nil,
			"class %s has no instantiation pattern", in.desc.QualifiedName())
		md := p.Instantiate(cd, args, p)
		if p.Complete == nil {
			return md, abi.Complete
		}
		return md, abi.Abstract
	}

	p := g.ValuePattern
	debug.Assert(p != nil && p.Instantiate != nil,
		"type %s has no instantiation pattern", in.desc.QualifiedName())
	md := p.Instantiate(in.desc, args, p)
	if p.Complete == nil {
		return md, abi.Complete
	}
	return md, abi.Abstract
}

// initializeGeneric is the cache initialization hook: below
// NonTransitiveComplete it runs the pattern's completion function, then it
// walks the transitive completeness check. Either half may suspend on a
// dependency; the hook re-runs from the reached state after resolution.
func initializeGeneric(md *abi.Metadata, state abi.State, ctx *abi.CompletionContext) (abi.State, abi.Dependency) {
	desc := md.Description()
	g := desc.Generic

	if !state.AtLeast(abi.NonTransitiveComplete) {
		var dep abi.Dependency
		if md.Kind == abi.KindClass {
			dep = g.ClassPattern.Complete(md, ctx, g.ClassPattern)
		} else {
			dep = g.ValuePattern.Complete(md, ctx, g.ValuePattern)
		}
		if dep.Exists() {
			return max(state, inferredState(md)), dep
		}
		state = abi.NonTransitiveComplete
	}

	if dep := checkTransitiveCompleteness(md); dep.Exists() {
		return state, dep
	}
	return abi.Complete, abi.Dependency{}
}

// inferredState reads how far an interrupted completion actually got, so a
// suspension can still publish intermediate progress.
func inferredState(md *abi.Metadata) abi.State {
	if md.Witnesses != nil && !md.Witnesses.IsIncomplete() {
		return abi.LayoutComplete
	}
	return abi.Abstract
}

// AllocateGenericValueMetadata builds a fresh struct or enum metadata record
// for one instantiation: the pattern witness table (copied, so completion
// can publish a private layout), the argument vector, and the extra-data
// region with any partial pattern applied. Patterns use it as their
// instantiation function unless they need something unusual.
func AllocateGenericValueMetadata(desc *TypeDescriptor, args []Argument, pattern *ValuePattern) *Metadata {
	debug.Assert(pattern.Kind == abi.KindStruct || pattern.Kind == abi.KindEnum,
		"value pattern with kind %v", pattern.Kind)

	var witnesses *abi.ValueWitnessTable
	if pattern.Witnesses != nil {
		w := *pattern.Witnesses
		witnesses = &w
	} else {
		witnesses = abi.NewPatternTable()
	}

	var extra []uintptr
	if n := pattern.ExtraDataWords; n > 0 {
		extra = pool.Slice[uintptr](&metadataPool, int(n))
		if pattern.ExtraData != nil {
			pattern.ExtraData.Apply(extra)
		}
	}

	if pattern.Kind == abi.KindEnum {
		md := &abi.EnumMetadata{}
		md.Kind = abi.KindEnum
		md.Witnesses = witnesses
		md.Description = desc
		md.Args = args
		md.Extra = extra
		return md.AsMetadata()
	}

	md := &abi.StructMetadata{}
	md.Kind = abi.KindStruct
	md.Witnesses = witnesses
	md.Description = desc
	md.Args = args
	md.Extra = extra
	if sd, ok := desc.AsStruct(); ok {
		md.FieldOffsets = pool.Slice[uint32](&metadataPool, len(sd.Fields))
	}
	return md.AsMetadata()
}

// AllocateGenericClassMetadata builds a fresh class metadata record: bounds
// from the superclass chain, the destructor and immediate-member regions
// from the pattern.
func AllocateGenericClassMetadata(desc *ClassDescriptor, args []Argument, pattern *ClassPattern) *Metadata {
	bounds := classBounds(desc)

	md := &abi.ClassMetadata{}
	md.Kind = abi.KindClass
	md.Witnesses = abi.ObjectPointerWitnesses()
	md.Description = desc
	md.Destroy = pattern.Destroy
	md.Bounds = bounds
	md.Args = args
	md.VTable = make([]abi.Method, len(desc.VTable.Methods))
	md.FieldOffsets = pool.Slice[uint32](&metadataPool, len(desc.Fields))
	if n := pattern.ExtraDataWords; n > 0 {
		md.Extra = pool.Slice[uintptr](&metadataPool, int(n))
		if pattern.ImmediateMembers != nil {
			pattern.ImmediateMembers.Apply(md.Extra)
		}
	}
	return md.AsMetadata()
}

// classBounds computes the word-level extent of a class's metadata record by
// extending its superclass's bounds with the class's own immediate members.
//
// A resilient superclass's extent is unknowable statically; the first
// computation requests the superclass metadata and the result is memoized in
// the descriptor's StoredClassBounds. Racing threads compute identical
// bounds, so the publication order does not matter.
func classBounds(d *abi.ClassDescriptor) abi.ClassBounds {
	if d.HasResilientSuperclass() {
		if b, ok := d.ResilientBounds.TryGet(); ok {
			return b
		}
	}

	var b abi.ClassBounds
	switch {
	case d.HasResilientSuperclass():
		resp := d.ResilientSuperclass(abi.Blocking(abi.Complete))
		super, ok := resp.Metadata.AsClass()
		debug.Assert(ok, "%s: resilient superclass is not a class", d.QualifiedName())
		b = super.Bounds
	case d.Superclass != nil:
		b = classBounds(d.Superclass)
	}

	if d.AreImmediateMembersNegative {
		b.ImmediateMembersOffset = -int32(b.NegativeWords) - int32(d.NumImmediateMembers)
		b.NegativeWords += d.NumImmediateMembers
	} else {
		b.ImmediateMembersOffset = int32(b.PositiveWords)
		b.PositiveWords += d.NumImmediateMembers
	}

	if d.HasResilientSuperclass() {
		d.ResilientBounds.Store(b)
	}
	return b
}
