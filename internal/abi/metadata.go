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

// Package abi defines the in-process metadata ABI: the metadata variants,
// value-witness tables, type descriptors, and instantiation patterns that the
// runtime constructs and that compiler-generated code consumes.
//
// Every metadata record is immortal. The variants embed [Metadata] as their
// first field, so a *Metadata and a pointer to its variant are the same
// address; the As* accessors are the only place that conversion happens.
package abi

import (
	"unsafe"

	"github.com/riftlang/riftmeta/internal/xunsafe"
)

// Metadata is the common header of every runtime type descriptor.
//
// Witnesses is written while the owning cache entry advances through its
// states and must only be read after observing a state that guarantees it:
// any state for the table pointer itself, LayoutComplete or better for the
// table's layout contents. The cache entry's atomic state is the
// release/acquire point.
type Metadata struct {
	Kind      Kind
	Witnesses *ValueWitnessTable
}

// Argument is one slot of a generic argument vector. Key arguments are
// always type metadata and participate in uniquing; extra arguments carry
// auxiliary records (conformance witness tables) that do not affect identity.
//
// Whatever an Argument points to must be immortal, like everything else in
// the metadata object graph.
type Argument struct {
	ptr unsafe.Pointer
}

// TypeArgument wraps type metadata as a generic argument.
func TypeArgument(md *Metadata) Argument {
	return Argument{ptr: unsafe.Pointer(md)}
}

// ExtraArgument wraps an auxiliary record as a generic argument.
func ExtraArgument(p unsafe.Pointer) Argument {
	return Argument{ptr: p}
}

// Type returns the argument as type metadata. Only valid for key-argument
// slots.
func (a Argument) Type() *Metadata {
	return (*Metadata)(a.ptr)
}

// Raw returns the raw slot value, for fingerprinting.
func (a Argument) Raw() uintptr { return uintptr(a.ptr) }

// StructMetadata is the metadata for a (possibly generic) struct type.
type StructMetadata struct {
	Metadata
	Description *TypeDescriptor

	// Args holds the generic arguments, key arguments first. Empty for
	// non-generic structs.
	Args []Argument

	// FieldOffsets is filled in by struct initialization.
	FieldOffsets []uint32

	// Extra is the pattern-defined extra data region.
	Extra []uintptr
}

// EnumMetadata is the metadata for a (possibly generic) enum type.
type EnumMetadata struct {
	Metadata
	Description *TypeDescriptor
	Args        []Argument
	Extra       []uintptr
}

// Method is one v-table slot.
type Method func(receiver, args unsafe.Pointer) unsafe.Pointer

// ClassMetadata is the metadata for a (possibly generic) class type.
type ClassMetadata struct {
	Metadata
	Description *ClassDescriptor
	Superclass  *ClassMetadata

	// Destroy is the heap destructor installed from the pattern.
	Destroy func(object unsafe.Pointer)

	// Instance layout, filled in by class initialization.
	InstanceSize      uint32
	InstanceAlignMask uint32

	// Bounds records the word-level extent of this metadata record,
	// including everything inherited from superclasses.
	Bounds ClassBounds

	// Immediate members. Their word positions within Bounds are descriptor
	// business; the runtime addresses them through these views.
	Args         []Argument
	VTable       []Method
	FieldOffsets []uint32
	Extra        []uintptr
}

// TupleElement is one element of a tuple metadata record.
type TupleElement struct {
	Type   *Metadata
	Offset uint32
}

// TupleMetadata is the metadata for a tuple type.
type TupleMetadata struct {
	Metadata

	// Labels is the space-separated element label string, or "" if the tuple
	// is unlabeled.
	Labels   string
	Elements []TupleElement
}

// FunctionFlags describes the calling shape of a function type.
type FunctionFlags uint32

const (
	// FunctionThrows marks a function type that can raise.
	FunctionThrows FunctionFlags = 1 << 0
	// FunctionEscaping marks an escaping function value.
	FunctionEscaping FunctionFlags = 1 << 1
)

// ParamFlags describes one function parameter.
type ParamFlags uint32

const (
	// ParamInOut marks a parameter passed by reference.
	ParamInOut ParamFlags = 1 << 0
	// ParamVariadic marks a variadic parameter.
	ParamVariadic ParamFlags = 1 << 1
)

// FunctionParam is one parameter of a function type.
type FunctionParam struct {
	Type  *Metadata
	Flags ParamFlags
}

// FunctionMetadata is the metadata for a function type.
type FunctionMetadata struct {
	Metadata
	Flags  FunctionFlags
	Result *Metadata
	Params []FunctionParam
}

// ExistentialFlags packs the constraint summary of an existential type:
// the number of witness tables in its representation and whether it is
// class-constrained.
type ExistentialFlags uint32

const existentialClassConstraint ExistentialFlags = 1 << 31

// NumWitnessTables returns the number of witness tables in the existential
// representation.
func (f ExistentialFlags) NumWitnessTables() uint32 {
	return uint32(f &^ existentialClassConstraint)
}

// ClassConstrained reports whether values are always single object
// references.
func (f ExistentialFlags) ClassConstrained() bool {
	return f&existentialClassConstraint != 0
}

// MakeExistentialFlags builds the flags for an existential shape.
func MakeExistentialFlags(numWitnessTables uint32, classConstrained bool) ExistentialFlags {
	f := ExistentialFlags(numWitnessTables)
	if classConstrained {
		f |= existentialClassConstraint
	}
	return f
}

// ExistentialMetadata is the metadata for a protocol composition type.
type ExistentialMetadata struct {
	Metadata
	Flags      ExistentialFlags
	Superclass *Metadata // nil unless the composition has a superclass bound

	// Protocols is sorted by descriptor address; the sort is what makes the
	// cache key canonical.
	Protocols []*ProtocolDescriptor
}

// MetatypeMetadata is the metadata for a concrete metatype T.Type.
type MetatypeMetadata struct {
	Metadata
	Instance *Metadata
}

// ExistentialMetatypeMetadata is the metadata for an existential metatype
// P.Type.
type ExistentialMetatypeMetadata struct {
	Metadata
	Instance *Metadata
	Flags    ExistentialFlags
}

// ForeignMetadata is metadata for a type whose layout is owned by another
// runtime; it is uniqued by descriptor identity rather than by construction.
type ForeignMetadata struct {
	Metadata
	Description *TypeDescriptor
}

// OpaqueMetadata is a builtin type with fixed layout and no structure the
// runtime can see into.
type OpaqueMetadata struct {
	Metadata
	Name string
}

// AsStruct returns the struct variant, or false for any other kind.
func (m *Metadata) AsStruct() (*StructMetadata, bool) {
	if m.Kind != KindStruct {
		return nil, false
	}
	return xunsafe.Cast[StructMetadata](m), true
}

// AsEnum returns the enum variant, or false for any other kind.
func (m *Metadata) AsEnum() (*EnumMetadata, bool) {
	if m.Kind != KindEnum {
		return nil, false
	}
	return xunsafe.Cast[EnumMetadata](m), true
}

// AsClass returns the class variant, or false for any other kind.
func (m *Metadata) AsClass() (*ClassMetadata, bool) {
	if m.Kind != KindClass {
		return nil, false
	}
	return xunsafe.Cast[ClassMetadata](m), true
}

// AsTuple returns the tuple variant, or false for any other kind.
func (m *Metadata) AsTuple() (*TupleMetadata, bool) {
	if m.Kind != KindTuple {
		return nil, false
	}
	return xunsafe.Cast[TupleMetadata](m), true
}

// AsFunction returns the function variant, or false for any other kind.
func (m *Metadata) AsFunction() (*FunctionMetadata, bool) {
	if m.Kind != KindFunction {
		return nil, false
	}
	return xunsafe.Cast[FunctionMetadata](m), true
}

// AsExistential returns the existential variant, or false for any other
// kind.
func (m *Metadata) AsExistential() (*ExistentialMetadata, bool) {
	if m.Kind != KindExistential {
		return nil, false
	}
	return xunsafe.Cast[ExistentialMetadata](m), true
}

// AsMetatype returns the metatype variant, or false for any other kind.
func (m *Metadata) AsMetatype() (*MetatypeMetadata, bool) {
	if m.Kind != KindMetatype {
		return nil, false
	}
	return xunsafe.Cast[MetatypeMetadata](m), true
}

// AsExistentialMetatype returns the existential metatype variant, or false
// for any other kind.
func (m *Metadata) AsExistentialMetatype() (*ExistentialMetatypeMetadata, bool) {
	if m.Kind != KindExistentialMetatype {
		return nil, false
	}
	return xunsafe.Cast[ExistentialMetatypeMetadata](m), true
}

// AsOpaque returns the opaque builtin variant, or false for any other kind.
func (m *Metadata) AsOpaque() (*OpaqueMetadata, bool) {
	if m.Kind != KindOpaque {
		return nil, false
	}
	return xunsafe.Cast[OpaqueMetadata](m), true
}

// AsForeign returns the foreign variant, or false for any other kind.
func (m *Metadata) AsForeign() (*ForeignMetadata, bool) {
	if m.Kind != KindForeign {
		return nil, false
	}
	return xunsafe.Cast[ForeignMetadata](m), true
}

// AsMetadata returns the common header.
func (m *StructMetadata) AsMetadata() *Metadata { return &m.Metadata }

// AsMetadata returns the common header.
func (m *EnumMetadata) AsMetadata() *Metadata { return &m.Metadata }

// AsMetadata returns the common header.
func (m *ClassMetadata) AsMetadata() *Metadata { return &m.Metadata }

// AsMetadata returns the common header.
func (m *TupleMetadata) AsMetadata() *Metadata { return &m.Metadata }

// AsMetadata returns the common header.
func (m *FunctionMetadata) AsMetadata() *Metadata { return &m.Metadata }

// AsMetadata returns the common header.
func (m *ExistentialMetadata) AsMetadata() *Metadata { return &m.Metadata }

// AsMetadata returns the common header.
func (m *MetatypeMetadata) AsMetadata() *Metadata { return &m.Metadata }

// AsMetadata returns the common header.
func (m *ExistentialMetatypeMetadata) AsMetadata() *Metadata { return &m.Metadata }

// AsMetadata returns the common header.
func (m *ForeignMetadata) AsMetadata() *Metadata { return &m.Metadata }

// AsMetadata returns the common header.
func (m *OpaqueMetadata) AsMetadata() *Metadata { return &m.Metadata }

// Description returns the type descriptor for nominal metadata, or nil for
// structural kinds.
func (m *Metadata) Description() *TypeDescriptor {
	switch m.Kind {
	case KindStruct:
		s, _ := m.AsStruct()
		return s.Description
	case KindEnum:
		e, _ := m.AsEnum()
		return e.Description
	case KindClass:
		c, _ := m.AsClass()
		return &c.Description.TypeDescriptor
	case KindForeign:
		f, _ := m.AsForeign()
		return f.Description
	default:
		return nil
	}
}

// GenericArguments returns the generic argument vector for nominal metadata,
// or nil for structural and non-generic kinds.
func (m *Metadata) GenericArguments() []Argument {
	switch m.Kind {
	case KindStruct:
		s, _ := m.AsStruct()
		return s.Args
	case KindEnum:
		e, _ := m.AsEnum()
		return e.Args
	case KindClass:
		c, _ := m.AsClass()
		return c.Args
	default:
		return nil
	}
}
