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

	"fortio.org/safecast"

	"github.com/riftlang/riftmeta/internal/abi"
	"github.com/riftlang/riftmeta/internal/debug"
	"github.com/riftlang/riftmeta/internal/layout"
)

// The builder constructs the descriptor trees a compiler would emit. It
// exists for tests, tools, and embedders that define types at run time; a
// real Rift image would carry these structures pre-built.

// TypeOption configures a descriptor built by the New*Type constructors.
type TypeOption func(*typeOptions)

type typeOptions struct {
	unique bool
	tag    string
	fields []string

	generic      *abi.GenericContext
	payloadCases uint32
	emptyCases   uint32

	superclass      *abi.ClassDescriptor
	resilientSuper  func(Request) Response
	methods         []abi.Method
	negativeMembers bool
}

// WithUnique marks the descriptor's address as its identity.
func WithUnique() TypeOption {
	return func(o *typeOptions) { o.unique = true }
}

// WithRelatedEntityTag distinguishes a synthesized descriptor from the
// same-named entity it was derived from.
func WithRelatedEntityTag(tag string) TypeOption {
	return func(o *typeOptions) { o.tag = tag }
}

// WithFields declares the stored fields, in layout order.
func WithFields(names ...string) TypeOption {
	return func(o *typeOptions) { o.fields = names }
}

// WithGenericParams makes the type generic over n key parameters,
// instantiated through pattern. n may be zero: the type then has exactly one
// instantiation but still initializes through the full state machine, which
// is how non-generic types with layout dependencies work.
func WithGenericParams(n int, pattern *ValuePattern) TypeOption {
	return func(o *typeOptions) {
		o.generic = newGenericContext(n)
		o.generic.ValuePattern = pattern
	}
}

// WithClassGenericParams is WithGenericParams for class descriptors.
func WithClassGenericParams(n int, pattern *ClassPattern) TypeOption {
	return func(o *typeOptions) {
		o.generic = newGenericContext(n)
		o.generic.ClassPattern = pattern
	}
}

// WithCases declares an enum's case counts.
func WithCases(payload, empty int) TypeOption {
	return func(o *typeOptions) {
		o.payloadCases = mustCount(payload)
		o.emptyCases = mustCount(empty)
	}
}

// WithSuperclass declares a statically-known superclass.
func WithSuperclass(super *ClassDescriptor) TypeOption {
	return func(o *typeOptions) { o.superclass = super }
}

// WithResilientSuperclass declares a superclass whose layout is owned by
// another image and fetched through fn at run time.
func WithResilientSuperclass(fn func(Request) Response) TypeOption {
	return func(o *typeOptions) { o.resilientSuper = fn }
}

// WithMethods declares the class's v-table, in slot order.
func WithMethods(methods ...Method) TypeOption {
	return func(o *typeOptions) { o.methods = methods }
}

// WithNegativeImmediateMembers places the class's immediate members before
// the metadata address point.
func WithNegativeImmediateMembers() TypeOption {
	return func(o *typeOptions) { o.negativeMembers = true }
}

func newGenericContext(n int) *abi.GenericContext {
	params := make([]abi.GenericParam, n)
	for i := range params {
		params[i].HasKeyArgument = true
	}
	return &abi.GenericContext{
		Params:          params,
		NumKeyArguments: mustCount(n),
	}
}

// NewModule builds a module descriptor, the root of a descriptor tree.
func NewModule(name string) *ContextDescriptor {
	return &abi.ContextDescriptor{Kind: abi.ContextModule, Name: name}
}

// NewStructType builds a struct descriptor under parent.
func NewStructType(parent *ContextDescriptor, name string, opts ...TypeOption) *StructDescriptor {
	o := collect(opts)
	d := &abi.StructDescriptor{}
	fillType(&d.TypeDescriptor, abi.ContextStruct, abi.KindStruct, parent, name, o)
	d.Fields = makeFields(o.fields)
	return d
}

// NewEnumType builds an enum descriptor under parent.
func NewEnumType(parent *ContextDescriptor, name string, opts ...TypeOption) *EnumDescriptor {
	o := collect(opts)
	d := &abi.EnumDescriptor{}
	fillType(&d.TypeDescriptor, abi.ContextEnum, abi.KindEnum, parent, name, o)
	d.NumPayloadCases = o.payloadCases
	d.NumEmptyCases = o.emptyCases
	return d
}

// NewClassType builds a class descriptor under parent.
func NewClassType(parent *ContextDescriptor, name string, opts ...TypeOption) *ClassDescriptor {
	o := collect(opts)
	debug.Assert(o.superclass == nil || o.resilientSuper == nil,
		"%s: both direct and resilient superclass", name)

	d := &abi.ClassDescriptor{}
	fillType(&d.TypeDescriptor, abi.ContextClass, abi.KindClass, parent, name, o)
	d.Superclass = o.superclass
	d.ResilientSuperclass = o.resilientSuper
	if o.resilientSuper != nil {
		d.ResilientBounds = &abi.StoredClassBounds{}
	}
	d.Fields = makeFields(o.fields)
	d.VTable = abi.VTableDescriptor{Methods: o.methods}
	d.AreImmediateMembersNegative = o.negativeMembers

	// Immediate members: the argument vector, then the v-table, then the
	// field-offset vector.
	var keyArgs uint32
	if d.Generic != nil {
		keyArgs = d.Generic.NumKeyArguments
	}
	d.VTable.Offset = keyArgs
	d.FieldOffsetVectorOffset = keyArgs + mustCount(len(o.methods))
	d.NumImmediateMembers = d.FieldOffsetVectorOffset + mustCount(len(o.fields))
	return d
}

// NewForeignType builds a descriptor for a foreign type under parent.
func NewForeignType(parent *ContextDescriptor, name string, opts ...TypeOption) *TypeDescriptor {
	o := collect(opts)
	d := &abi.TypeDescriptor{}
	fillType(d, abi.ContextStruct, abi.KindForeign, parent, name, o)
	d.Access = func(req Request, _ []Argument) Response {
		return Response{Metadata: GetForeignTypeMetadata(d), State: abi.Complete}
	}
	return d
}

// NewProtocol builds a protocol descriptor under parent.
func NewProtocol(parent *ContextDescriptor, name string, requiresClass bool, numRequirements int) *ProtocolDescriptor {
	return &abi.ProtocolDescriptor{
		ContextDescriptor: abi.ContextDescriptor{
			Kind:   abi.ContextProtocol,
			Parent: parent,
			Name:   name,
		},
		RequiresClass:   requiresClass,
		NumRequirements: mustCount(numRequirements),
	}
}

// NewOpaqueType builds standalone metadata for a builtin with a fixed
// layout: pod types copy bitwise, reference types are single managed
// pointers.
func NewOpaqueType(name string, size, align uint32, pod bool) *Metadata {
	md := &abi.OpaqueMetadata{}
	md.Kind = abi.KindOpaque
	md.Name = name
	switch {
	case !pod:
		md.Witnesses = abi.ObjectPointerWitnesses()
	default:
		if t := abi.PODWitnesses(size, align); t != nil {
			md.Witnesses = t
		} else {
			t := abi.NewPatternTable()
			t.PublishLayout(layout.POD(size, align))
			md.Witnesses = t
		}
	}
	return md.AsMetadata()
}

// StructPattern builds the standard instantiation pattern for a struct
// whose field types are computed from the instantiation arguments.
func StructPattern(fields func(args []Argument) []*Metadata) *ValuePattern {
	return &abi.ValuePattern{
		Kind:        abi.KindStruct,
		Instantiate: AllocateGenericValueMetadata,
		Complete: func(md *Metadata, _ *CompletionContext, _ *ValuePattern) Dependency {
			s, _ := md.AsStruct()
			return InitStructMetadata(md, fields(s.Args))
		},
	}
}

// EnumPattern builds the standard instantiation pattern for an enum whose
// payload types are computed from the instantiation arguments.
func EnumPattern(payloads func(args []Argument) []*Metadata) *ValuePattern {
	return &abi.ValuePattern{
		Kind:        abi.KindEnum,
		Instantiate: AllocateGenericValueMetadata,
		Complete: func(md *Metadata, _ *CompletionContext, _ *ValuePattern) Dependency {
			e, _ := md.AsEnum()
			return InitEnumMetadata(md, payloads(e.Args))
		},
	}
}

// StandardClassPattern builds the standard instantiation pattern for a
// class. superclass may be nil (root classes) or compute the superclass
// metadata from the arguments; fields computes the stored field types.
func StandardClassPattern(
	destroy func(object unsafe.Pointer),
	superclass func(args []Argument) *Metadata,
	fields func(args []Argument) []*Metadata,
) *ClassPattern {
	return &abi.ClassPattern{
		Destroy:     destroy,
		Instantiate: AllocateGenericClassMetadata,
		Complete: func(md *Metadata, _ *CompletionContext, _ *ClassPattern) Dependency {
			c, _ := md.AsClass()
			var super *Metadata
			if superclass != nil {
				super = superclass(c.Args)
			}
			return InitClassMetadata(md, super, fields(c.Args))
		},
	}
}

func collect(opts []TypeOption) *typeOptions {
	o := &typeOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func fillType(d *abi.TypeDescriptor, ck abi.ContextKind, mk Kind, parent *ContextDescriptor, name string, o *typeOptions) {
	d.Kind = ck
	d.Parent = parent
	d.Name = name
	d.Unique = o.unique
	d.RelatedEntityTag = o.tag
	d.TypeKind = mk
	d.Generic = o.generic
	if d.Generic != nil {
		d.Access = func(req Request, args []Argument) Response {
			return GetGenericMetadata(req, d, args)
		}
	}
}

func makeFields(names []string) []abi.Field {
	fields := make([]abi.Field, len(names))
	for i, n := range names {
		fields[i].Name = n
	}
	return fields
}

// mustCount narrows a builder-supplied count. Overflow here is malformed
// input, not a runtime condition.
func mustCount(n int) uint32 {
	u, err := safecast.Conv[uint32](n)
	if err != nil {
		panic(err)
	}
	return u
}
