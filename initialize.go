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
	"unsafe"

	"github.com/riftlang/riftmeta/internal/abi"
	"github.com/riftlang/riftmeta/internal/debug"
	"github.com/riftlang/riftmeta/internal/layout"
)

// The Init* entry points are what completion functions call to finish a
// record once its referenced types are far enough along. Each returns a zero
// Dependency on success; a non-zero return means "suspend me until this
// other type gets there" and the caller's completion will be re-run.

// InitStructMetadata lays out a struct from its field types: sequential
// layout into the field-offset vector, worst-case flags, witness upgrade,
// layout publication.
//
// Every field must be at least LayoutComplete; the first one that is not
// becomes the returned dependency.
func InitStructMetadata(md *Metadata, fieldTypes []*Metadata) Dependency {
	s, ok := md.AsStruct()
	debug.Assert(ok, "struct initialization of %v metadata", md.Kind)
	debug.Assert(len(fieldTypes) == len(s.FieldOffsets),
		"%s: %d field types for %d fields",
		s.Description.QualifiedName(), len(fieldTypes), len(s.FieldOffsets))

	if dep := requireLayouts(fieldTypes); dep.Exists() {
		return dep
	}

	l := layout.BasicLayout(layout.TypeLayout{}, len(fieldTypes),
		func(i int) layout.TypeLayout { return fieldTypes[i].Witnesses.Layout },
		func(i int, offset uint32) { s.FieldOffsets[i] = offset })

	abi.InstallCommonValueWitnesses(l, s.Witnesses)
	s.Witnesses.PublishLayout(l)
	debug.Log("init", "%s: %v", s.Description.QualifiedName(), l)
	return Dependency{}
}

// InitEnumMetadata lays out an enum from its payload types: the payload area
// is the worst case across payloads, followed by a discriminator tag sized
// by the total case count. Enum-tag witnesses are installed over that tag.
func InitEnumMetadata(md *Metadata, payloadTypes []*Metadata) Dependency {
	e, ok := md.AsEnum()
	debug.Assert(ok, "enum initialization of %v metadata", md.Kind)
	ed, ok := e.Description.AsEnum()
	debug.Assert(ok, "%s: enum metadata with non-enum descriptor", e.Description.QualifiedName())
	debug.Assert(len(payloadTypes) == int(ed.NumPayloadCases),
		"%s: %d payload types for %d payload cases",
		ed.QualifiedName(), len(payloadTypes), ed.NumPayloadCases)

	if dep := requireLayouts(payloadTypes); dep.Exists() {
		return dep
	}

	var payloadSize, alignMask uint32
	pod, takable := true, true
	for _, p := range payloadTypes {
		pl := p.Witnesses.Layout
		payloadSize = max(payloadSize, pl.Size)
		alignMask = max(alignMask, pl.Flags.AlignmentMask())
		pod = pod && pl.Flags.IsPOD()
		takable = takable && pl.Flags.IsBitwiseTakable()
	}

	cases := ed.NumPayloadCases + ed.NumEmptyCases
	tagBytes := enumTagBytes(cases)
	size := payloadSize + tagBytes
	stride := max(1, layout.RoundUpToAlignMask(size, alignMask))

	l := layout.TypeLayout{
		Size:   size,
		Stride: stride,
		Flags: layout.Flags(0).
			WithAlignmentMask(alignMask).
			WithPOD(pod).
			WithBitwiseTakable(takable).
			WithInlineStorage(takable && layout.IsValueInline(size, alignMask+1)).
			WithEnumWitnesses(true),
	}

	e.Witnesses.GetEnumTag = enumTagReader(payloadSize, tagBytes)
	e.Witnesses.DestructiveInjectEnumTag = enumTagWriter(payloadSize, tagBytes)
	abi.InstallCommonValueWitnesses(l, e.Witnesses)
	e.Witnesses.PublishLayout(l)
	debug.Log("init", "%s: %v", ed.QualifiedName(), l)
	return Dependency{}
}

// InitClassMetadata finishes a class record: resolves and links the
// superclass (which must be Complete), lays out the instance's stored
// fields after the inherited ones, and installs the v-table.
func InitClassMetadata(md *Metadata, superclass *Metadata, fieldTypes []*Metadata) Dependency {
	c, ok := md.AsClass()
	debug.Assert(ok, "class initialization of %v metadata", md.Kind)
	debug.Assert(len(fieldTypes) == len(c.FieldOffsets),
		"%s: %d field types for %d fields",
		c.Description.QualifiedName(), len(fieldTypes), len(c.FieldOffsets))

	// Instances start with one header word; subclass fields start where the
	// superclass's instance ends.
	start := layout.POD(layout.WordSize, layout.WordSize)
	if superclass != nil {
		resp := CheckState(abi.NonBlocking(abi.Complete), superclass)
		if !resp.State.AtLeast(abi.Complete) {
			return Dependency{Metadata: superclass, Requirement: abi.Complete}
		}
		sc, isClass := superclass.AsClass()
		debug.Assert(isClass, "%s: superclass is %v metadata",
			c.Description.QualifiedName(), superclass.Kind)
		c.Superclass = sc
		start = layout.TypeLayout{
			Size:  sc.InstanceSize,
			Flags: layout.Flags(0).WithAlignmentMask(sc.InstanceAlignMask),
		}
	}

	if dep := requireLayouts(fieldTypes); dep.Exists() {
		return dep
	}

	l := layout.BasicLayout(start, len(fieldTypes),
		func(i int) layout.TypeLayout { return fieldTypes[i].Witnesses.Layout },
		func(i int, offset uint32) { c.FieldOffsets[i] = offset })
	c.InstanceSize = l.Size
	c.InstanceAlignMask = l.Flags.AlignmentMask()

	copy(c.VTable, c.Description.VTable.Methods)
	debug.Log("init", "%s: instance %v", c.Description.QualifiedName(), l)
	return Dependency{}
}

// requireLayouts checks that every type has a trustworthy layout, returning
// the first one that does not as a LayoutComplete dependency.
func requireLayouts(types []*Metadata) Dependency {
	for _, t := range types {
		resp := CheckState(abi.NonBlocking(abi.LayoutComplete), t)
		if !resp.State.AtLeast(abi.LayoutComplete) {
			return Dependency{Metadata: t, Requirement: abi.LayoutComplete}
		}
	}
	return Dependency{}
}

// enumTagBytes returns the discriminator width for a case count. A
// single-case enum needs no tag at all.
func enumTagBytes(cases uint32) uint32 {
	switch {
	case cases <= 1:
		return 0
	case cases <= 1<<8:
		return 1
	case cases <= 1<<16:
		return 2
	default:
		return 4
	}
}

func enumTagReader(offset, width uint32) func(unsafe.Pointer, *abi.Metadata) uint32 {
	return func(value unsafe.Pointer, _ *abi.Metadata) uint32 {
		p := unsafe.Add(value, offset)
		switch width {
		case 0:
			return 0
		case 1:
			return uint32(*(*uint8)(p))
		case 2:
			return uint32(*(*uint16)(p))
		default:
			return *(*uint32)(p)
		}
	}
}

func enumTagWriter(offset, width uint32) func(unsafe.Pointer, uint32, *abi.Metadata) {
	return func(value unsafe.Pointer, tag uint32, _ *abi.Metadata) {
		p := unsafe.Add(value, offset)
		switch width {
		case 0:
		case 1:
			*(*uint8)(p) = uint8(tag)
		case 2:
			*(*uint16)(p) = uint16(tag)
		default:
			*(*uint32)(p) = tag
		}
	}
}
