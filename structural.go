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
	"github.com/riftlang/riftmeta/internal/layout"
	"github.com/riftlang/riftmeta/internal/xunsafe"
)

// The structural kinds in this file have layouts that depend only on their
// shape, never on their component types' layouts, so their records are born
// Complete and unique through lock-free Simple caches. A losing racer's
// record is simply dropped; the winner is canonical.

var (
	functionCache    cache.Simple[string, *abi.FunctionMetadata]
	existentialCache cache.Simple[string, *abi.ExistentialMetadata]
	metatypeCache    cache.Simple[uintptr, *abi.MetatypeMetadata]
	exMetatypeCache  cache.Simple[uintptr, *abi.ExistentialMetatypeMetadata]
	foreignCache     cache.Simple[string, *abi.ForeignMetadata]

	// Witness tables for existential shapes, memoized per constraint
	// summary: the shape fully determines the table.
	existentialWitnessCache cache.Simple[abi.ExistentialFlags, *abi.ValueWitnessTable]
	exMetatypeWitnessCache  cache.Simple[uint32, *abi.ValueWitnessTable]
)

// GetFunctionMetadata returns the canonical metadata for a function type.
// Function values are two words regardless of signature, so the record is
// born Complete.
func GetFunctionMetadata(flags FunctionFlags, params []FunctionParam, result *Metadata) *Metadata {
	debug.Assert(result != nil, "function type with nil result")
	key := functionFingerprint(flags, params, result)
	md, _ := functionCache.LoadOrStore(key, func() *abi.FunctionMetadata {
		f := &abi.FunctionMetadata{}
		f.Kind = abi.KindFunction
		f.Witnesses = abi.ThickFunctionWitnesses()
		f.Flags = flags
		f.Result = result
		f.Params = append([]abi.FunctionParam(nil), params...)
		return f
	})
	return md.AsMetadata()
}

// GetExistentialMetadata returns the canonical metadata for a protocol
// composition. The composition is canonicalized first (protocols sorted and
// deduplicated), so syntactic reorderings share one record.
func GetExistentialMetadata(superclass *Metadata, protocols []*ProtocolDescriptor) *Metadata {
	sorted := sortProtocols(protocols)

	classConstrained := superclass != nil
	for _, p := range sorted {
		classConstrained = classConstrained || p.RequiresClass
	}
	flags := abi.MakeExistentialFlags(uint32(len(sorted)), classConstrained)

	key := existentialFingerprint(flags, superclass, sorted)
	md, _ := existentialCache.LoadOrStore(key, func() *abi.ExistentialMetadata {
		e := &abi.ExistentialMetadata{}
		e.Kind = abi.KindExistential
		e.Witnesses = existentialWitnesses(flags)
		e.Flags = flags
		e.Superclass = superclass
		e.Protocols = sorted
		return e
	})
	return md.AsMetadata()
}

// GetMetatypeMetadata returns the canonical metadata for instance's concrete
// metatype. Metatype values are a single immortal pointer.
func GetMetatypeMetadata(instance *Metadata) *Metadata {
	debug.Assert(instance != nil, "metatype of nil metadata")
	md, _ := metatypeCache.LoadOrStore(xunsafe.Key(instance), func() *abi.MetatypeMetadata {
		m := &abi.MetatypeMetadata{}
		m.Kind = abi.KindMetatype
		m.Witnesses = abi.MetatypePointerWitnesses()
		m.Instance = instance
		return m
	})
	return md.AsMetadata()
}

// GetExistentialMetatypeMetadata returns the canonical metadata for the
// metatype of an existential (or of another existential metatype). The value
// carries the concrete metatype word plus the composition's witness tables.
func GetExistentialMetatypeMetadata(instance *Metadata) *Metadata {
	var flags abi.ExistentialFlags
	switch instance.Kind {
	case abi.KindExistential:
		e, _ := instance.AsExistential()
		flags = e.Flags
	case abi.KindExistentialMetatype:
		em, _ := instance.AsExistentialMetatype()
		flags = em.Flags
	default:
		debug.Assert(false, "existential metatype of %v metadata", instance.Kind)
	}

	md, _ := exMetatypeCache.LoadOrStore(xunsafe.Key(instance), func() *abi.ExistentialMetatypeMetadata {
		m := &abi.ExistentialMetatypeMetadata{}
		m.Kind = abi.KindExistentialMetatype
		m.Witnesses = existentialMetatypeWitnesses(flags.NumWitnessTables())
		m.Instance = instance
		m.Flags = flags
		return m
	})
	return md.AsMetadata()
}

// GetForeignTypeMetadata returns the canonical metadata for a type whose
// layout another runtime owns. Foreign descriptors may be duplicated across
// images, so uniquing follows descriptor identity (the EqualContexts rules),
// not descriptor address: the first descriptor registered for an identity
// becomes the canonical one.
func GetForeignTypeMetadata(desc *TypeDescriptor) *Metadata {
	debug.Assert(desc.TypeKind == abi.KindForeign, "foreign metadata for %v descriptor", desc.TypeKind)
	md, _ := foreignCache.LoadOrStore(foreignFingerprint(desc), func() *abi.ForeignMetadata {
		f := &abi.ForeignMetadata{}
		f.Kind = abi.KindForeign
		f.Witnesses = abi.ObjectPointerWitnesses()
		f.Description = desc
		return f
	})
	return md.AsMetadata()
}

// existentialWitnesses builds (or reuses) the table for an existential
// shape. Class-constrained compositions hold a single reference plus
// witness-table words; opaque ones hold a value buffer, the dynamic type,
// and the witness tables.
func existentialWitnesses(flags abi.ExistentialFlags) *abi.ValueWitnessTable {
	t, _ := existentialWitnessCache.LoadOrStore(flags, func() *abi.ValueWitnessTable {
		n := flags.NumWitnessTables()
		var l layout.TypeLayout
		if flags.ClassConstrained() {
			size := (1 + n) * layout.WordSize
			l = layout.TypeLayout{
				Size:   size,
				Stride: size,
				Flags: layout.Flags(0).
					WithAlignmentMask(layout.WordSize - 1).
					WithPOD(false).
					WithBitwiseTakable(true).
					WithInlineStorage(layout.IsValueInline(size, layout.WordSize)),
				ExtraInhabitantCount: 1,
			}
		} else {
			size := (layout.MaxInlineWords + 1 + n) * layout.WordSize
			l = layout.TypeLayout{
				Size:   size,
				Stride: size,
				Flags: layout.Flags(0).
					WithAlignmentMask(layout.WordSize - 1).
					WithPOD(false).
					// The buffer may spill to the heap and the spilled copy
					// is owned, so a bitwise move is not safe.
					WithBitwiseTakable(false).
					WithInlineStorage(false),
			}
		}
		t := abi.NewPatternTable()
		t.PublishLayout(l)
		return t
	})
	return t
}

// existentialMetatypeWitnesses builds (or reuses) the table for an
// existential metatype shape: the metatype word plus n witness tables, all
// immortal pointers.
func existentialMetatypeWitnesses(n uint32) *abi.ValueWitnessTable {
	t, _ := exMetatypeWitnessCache.LoadOrStore(n, func() *abi.ValueWitnessTable {
		size := (1 + n) * layout.WordSize
		t := abi.NewPatternTable()
		t.PublishLayout(layout.POD(size, layout.WordSize))
		return t
	})
	return t
}
