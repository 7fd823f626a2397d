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

import (
	"sync"
	"sync/atomic"

	"github.com/riftlang/riftmeta/internal/xunsafe"
)

// ContextKind discriminates the descriptor variants.
type ContextKind uint8

const (
	ContextInvalid ContextKind = iota
	ContextModule
	ContextStruct
	ContextEnum
	ContextClass
	ContextProtocol
)

// ContextDescriptor is the common header of the compiler-emitted descriptor
// tree. Descriptors are static blueprints: produced before the program runs,
// never mutated afterward (the lazy caches below are the one carve-out, and
// they are runtime-private).
//
// Parent is navigational only; a child never owns its parent.
type ContextDescriptor struct {
	Kind   ContextKind
	Parent *ContextDescriptor
	Name   string

	// Unique marks a descriptor whose address alone is its identity.
	// Descriptors imported from shared images may exist in several copies
	// and leave this unset; EqualContexts then falls back to structural
	// comparison.
	Unique bool

	// RelatedEntityTag distinguishes synthesized descriptors that share a
	// name with the entity they were derived from.
	RelatedEntityTag string
}

// EqualContexts reports whether two descriptors describe the same context.
//
// Pointer equality wins immediately. A descriptor flagged Unique is only
// ever equal to itself. Otherwise the comparison is structural: kind,
// parents, and the kind-specific payload.
func EqualContexts(a, b *ContextDescriptor) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.Unique || b.Unique {
		return false
	}
	if a.Kind != b.Kind {
		return false
	}
	if !EqualContexts(a.Parent, b.Parent) {
		return false
	}

	switch a.Kind {
	case ContextModule:
		return a.Name == b.Name
	case ContextStruct, ContextEnum, ContextClass:
		return a.Name == b.Name && a.RelatedEntityTag == b.RelatedEntityTag
	default:
		// Remaining kinds carry no payload beyond identity; reaching here
		// without pointer equality means they differ.
		return false
	}
}

// AccessFunction is the compiler-emitted "give me metadata for this type
// with these arguments" entry point.
type AccessFunction func(req Request, args []Argument) Response

// TypeDescriptor describes a nominal type independent of any particular
// generic instantiation.
type TypeDescriptor struct {
	ContextDescriptor

	// TypeKind is the kind of metadata this descriptor produces.
	TypeKind Kind

	// Access is the canonical entry point for requesting this type's
	// metadata.
	Access AccessFunction

	// Generic is nil for non-generic types.
	Generic *GenericContext
}

// IsGeneric reports whether the type takes generic arguments.
func (d *TypeDescriptor) IsGeneric() bool { return d.Generic != nil }

// AsStruct returns the struct descriptor variant, or false.
func (d *TypeDescriptor) AsStruct() (*StructDescriptor, bool) {
	if d.Kind != ContextStruct {
		return nil, false
	}
	return xunsafe.Cast[StructDescriptor](d), true
}

// AsEnum returns the enum descriptor variant, or false.
func (d *TypeDescriptor) AsEnum() (*EnumDescriptor, bool) {
	if d.Kind != ContextEnum {
		return nil, false
	}
	return xunsafe.Cast[EnumDescriptor](d), true
}

// AsClass returns the class descriptor variant, or false.
func (d *TypeDescriptor) AsClass() (*ClassDescriptor, bool) {
	if d.Kind != ContextClass {
		return nil, false
	}
	return xunsafe.Cast[ClassDescriptor](d), true
}

// QualifiedName renders the dotted context path, for diagnostics.
func (d *ContextDescriptor) QualifiedName() string {
	if d.Parent == nil {
		return d.Name
	}
	return d.Parent.QualifiedName() + "." + d.Name
}

// GenericParam describes one generic parameter's contribution to the
// argument vector.
type GenericParam struct {
	// HasKeyArgument marks a parameter whose argument participates in
	// uniquing identity.
	HasKeyArgument bool

	// HasExtraArgument marks a parameter that consumes an argument slot
	// without contributing to identity.
	HasExtraArgument bool
}

// GenericContext is the generic-context header of a generic type
// descriptor: parameter and requirement shape, argument counts, the default
// instantiation pattern, and private storage for the runtime's per-context
// uniquing cache.
type GenericContext struct {
	Params          []GenericParam
	NumRequirements uint32

	// NumKeyArguments slots at the front of an argument vector form the
	// uniquing key; NumExtraArguments more follow.
	NumKeyArguments   uint32
	NumExtraArguments uint32

	// Exactly one of these is set, matching the descriptor's kind.
	ValuePattern *ValuePattern
	ClassPattern *ClassPattern

	// Cache is runtime-private storage.
	Cache InstantiationCache
}

// InstantiationCache is opaque per-context storage for the runtime's
// uniquing cache, initialized on first use.
//
// Explicit once-init rather than a self-initializing static: descriptor
// construction order must not matter.
type InstantiationCache struct {
	once    sync.Once
	private any
}

// Get returns the cached value, installing init()'s result on first use.
func (c *InstantiationCache) Get(init func() any) any {
	c.once.Do(func() { c.private = init() })
	return c.private
}

// Field names one stored field of a struct or class. Field types are not
// recorded here: layout runs on the metadata the caller passes to the init
// entry points, which is what lets recursive types defer them.
type Field struct {
	Name string
}

// StructDescriptor describes a struct type.
type StructDescriptor struct {
	TypeDescriptor
	Fields []Field
}

// EnumDescriptor describes an enum type.
type EnumDescriptor struct {
	TypeDescriptor
	NumPayloadCases uint32
	NumEmptyCases   uint32
}

// VTableDescriptor describes a class's method table segment within its
// immediate members.
type VTableDescriptor struct {
	// Offset is the word offset of the v-table within the immediate
	// members.
	Offset uint32

	// Methods holds the declared method implementations in slot order.
	Methods []Method
}

// ClassDescriptor describes a class type.
type ClassDescriptor struct {
	TypeDescriptor

	// Superclass is the statically-known superclass, nil for roots. A class
	// with a resilient superclass leaves this nil and sets
	// ResilientSuperclass instead.
	Superclass *ClassDescriptor

	// ResilientSuperclass fetches the superclass metadata from whichever
	// image owns it; its layout is unknown until then. Bounds derived from
	// it are memoized in ResilientBounds.
	ResilientSuperclass func(req Request) Response
	ResilientBounds     *StoredClassBounds

	Fields []Field
	VTable VTableDescriptor

	// NumImmediateMembers is the total word count this class adds to its
	// metadata record beyond what it inherits.
	NumImmediateMembers uint32

	// AreImmediateMembersNegative places this class's immediate members
	// before the address point instead of after it.
	AreImmediateMembersNegative bool

	// FieldOffsetVectorOffset is the word offset of the field-offset vector
	// within the immediate members.
	FieldOffsetVectorOffset uint32
}

// HasResilientSuperclass reports whether superclass bounds require runtime
// computation.
func (d *ClassDescriptor) HasResilientSuperclass() bool {
	return d.ResilientSuperclass != nil
}

// ClassBounds is the word-level extent of a class metadata record:
// NegativeWords before the address point, PositiveWords at and after it.
type ClassBounds struct {
	NegativeWords uint32
	PositiveWords uint32

	// ImmediateMembersOffset is the word offset, relative to the address
	// point, where this class's own members begin. Negative when the
	// descriptor says so.
	ImmediateMembersOffset int32
}

// TotalWords returns the full extent of the record.
func (b ClassBounds) TotalWords() uint32 { return b.NegativeWords + b.PositiveWords }

// StoredClassBounds memoizes runtime-computed class bounds.
//
// The bounds fields are written before the ready flag's release store;
// TryGet's acquire load pairs with it, so a reader that sees ready also
// sees the bounds. This is the explicit release/acquire point the resilient
// superclass path needs.
type StoredClassBounds struct {
	ready  atomic.Bool
	bounds ClassBounds
}

// TryGet returns the memoized bounds if they have been published.
func (s *StoredClassBounds) TryGet() (ClassBounds, bool) {
	if !s.ready.Load() {
		return ClassBounds{}, false
	}
	return s.bounds, true
}

// Store publishes computed bounds. Racing writers compute identical values,
// so last-writer-wins is harmless.
func (s *StoredClassBounds) Store(b ClassBounds) {
	s.bounds = b
	s.ready.Store(true)
}
