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

// Package riftmeta is the type-metadata runtime of the Rift language: it
// instantiates run-time type descriptors (metadata) for generic structs,
// enums, classes, tuples, functions, existentials, and metatypes, uniques
// them process-wide, and drives their multi-stage initialization.
//
// # Identity
//
// Metadata records are immortal and uniqued: two requests with the same
// structural identity always return the same *[Metadata], so type identity
// is pointer identity. Identity is established at allocation time; layout
// and everything else may arrive later.
//
// # Completion
//
// A metadata record advances through [Abstract], [LayoutComplete],
// [NonTransitiveComplete], and [Complete], never backward. Requests say
// which state they need and whether they are willing to wait; an
// initialization that needs another type's progress suspends and is resumed
// when that type advances. Dependency cycles that can never resolve are
// detected and abort the process with a diagnostic naming every type
// involved.
//
// The compiler emits the descriptors and instantiation patterns this
// package consumes; the builder API at the bottom of the package plays that
// role for tests and tools.
package riftmeta

import (
	"go.uber.org/zap"

	"github.com/riftlang/riftmeta/internal/abi"
	"github.com/riftlang/riftmeta/internal/debug"
	"github.com/riftlang/riftmeta/internal/layout"
	"github.com/riftlang/riftmeta/internal/pool"
)

// The request/response vocabulary of every metadata entry point.
type (
	State             = abi.State
	Request           = abi.Request
	Response          = abi.Response
	Dependency        = abi.Dependency
	CompletionContext = abi.CompletionContext
)

// Completion states, in lattice order.
const (
	Abstract              = abi.Abstract
	LayoutComplete        = abi.LayoutComplete
	NonTransitiveComplete = abi.NonTransitiveComplete
	Complete              = abi.Complete
)

// Blocking builds a request that waits for the given state.
func Blocking(s State) Request { return abi.Blocking(s) }

// NonBlocking builds a request that polls for the given state.
func NonBlocking(s State) Request { return abi.NonBlocking(s) }

// The metadata model.
type (
	Kind     = abi.Kind
	Metadata = abi.Metadata
	Argument = abi.Argument
	Method   = abi.Method

	StructMetadata              = abi.StructMetadata
	EnumMetadata                = abi.EnumMetadata
	ClassMetadata               = abi.ClassMetadata
	TupleMetadata               = abi.TupleMetadata
	TupleElement                = abi.TupleElement
	FunctionMetadata            = abi.FunctionMetadata
	FunctionParam               = abi.FunctionParam
	FunctionFlags               = abi.FunctionFlags
	ParamFlags                  = abi.ParamFlags
	ExistentialMetadata         = abi.ExistentialMetadata
	ExistentialFlags            = abi.ExistentialFlags
	MetatypeMetadata            = abi.MetatypeMetadata
	ExistentialMetatypeMetadata = abi.ExistentialMetatypeMetadata
	ForeignMetadata             = abi.ForeignMetadata
	OpaqueMetadata              = abi.OpaqueMetadata

	ValueWitnessTable = abi.ValueWitnessTable
	ValueBuffer       = abi.ValueBuffer
	TypeLayout        = layout.TypeLayout
)

// Metadata kinds.
const (
	KindStruct              = abi.KindStruct
	KindEnum                = abi.KindEnum
	KindClass               = abi.KindClass
	KindOpaque              = abi.KindOpaque
	KindForeign             = abi.KindForeign
	KindTuple               = abi.KindTuple
	KindFunction            = abi.KindFunction
	KindExistential         = abi.KindExistential
	KindMetatype            = abi.KindMetatype
	KindExistentialMetatype = abi.KindExistentialMetatype
)

// Function type flags.
const (
	FunctionThrows   = abi.FunctionThrows
	FunctionEscaping = abi.FunctionEscaping
	ParamInOut       = abi.ParamInOut
	ParamVariadic    = abi.ParamVariadic
)

// The descriptor model.
type (
	ContextDescriptor  = abi.ContextDescriptor
	TypeDescriptor     = abi.TypeDescriptor
	StructDescriptor   = abi.StructDescriptor
	EnumDescriptor     = abi.EnumDescriptor
	ClassDescriptor    = abi.ClassDescriptor
	ProtocolDescriptor = abi.ProtocolDescriptor
	VTableDescriptor   = abi.VTableDescriptor
	Field              = abi.Field
	AccessFunction     = abi.AccessFunction

	GenericContext = abi.GenericContext
	GenericParam   = abi.GenericParam
	ValuePattern   = abi.ValuePattern
	ClassPattern   = abi.ClassPattern
	PartialPattern = abi.PartialPattern

	ClassBounds       = abi.ClassBounds
	StoredClassBounds = abi.StoredClassBounds
)

// TypeArgument wraps type metadata as a generic argument.
func TypeArgument(md *Metadata) Argument { return abi.TypeArgument(md) }

// EqualContexts reports whether two descriptors describe the same context.
func EqualContexts(a, b *ContextDescriptor) bool { return abi.EqualContexts(a, b) }

// SetLogger installs a logger for runtime trace output. The default logger
// discards everything; passing nil restores it.
func SetLogger(l *zap.Logger) { debug.SetLogger(l) }

// metadataPool backs the raw word regions of metadata records: extra-data
// areas, field-offset vectors, label copies. The typed record headers live
// on the ordinary heap, where the collector can see the pointers they hold.
var metadataPool pool.Pool
