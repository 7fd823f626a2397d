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

import "unsafe"

// PartialPattern is a static run of words that instantiation copies into a
// fresh metadata record: zero everything up to the offset, then the words.
type PartialPattern struct {
	OffsetInWords uint32
	Words         []uintptr
}

// Apply writes the pattern into dst.
func (p *PartialPattern) Apply(dst []uintptr) {
	for i, n := 0, min(int(p.OffsetInWords), len(dst)); i < n; i++ {
		dst[i] = 0
	}
	copy(dst[p.OffsetInWords:], p.Words)
}

// ValueInstantiator produces fresh, at-least-Abstract metadata for one
// generic struct or enum instantiation.
type ValueInstantiator func(desc *TypeDescriptor, args []Argument, pattern *ValuePattern) *Metadata

// ValueCompleter advances metadata produced by the paired instantiator
// toward completion. A non-zero return parks the completion until the
// dependency resolves, after which the completer runs again from the state
// it reached.
type ValueCompleter func(md *Metadata, ctx *CompletionContext, pattern *ValuePattern) Dependency

// ValuePattern tells the runtime how to turn a generic struct or enum
// descriptor plus concrete arguments into metadata. Static data plus
// function pointers; never mutated.
type ValuePattern struct {
	// Kind is the metadata kind to instantiate, KindStruct or KindEnum.
	Kind Kind

	// Witnesses is the pattern value-witness table, installed verbatim on
	// fresh metadata. It carries the incomplete flag until completion
	// publishes a real layout. Nil means the instantiator installs its own.
	Witnesses *ValueWitnessTable

	// ExtraDataWords sizes the metadata's extra-data region; ExtraData
	// optionally fills part of it.
	ExtraDataWords uint32
	ExtraData      *PartialPattern

	Instantiate ValueInstantiator

	// Complete is optional: metadata without a completion function is
	// published in whatever state the instantiator reports.
	Complete ValueCompleter
}

// ClassInstantiator produces fresh metadata for one generic class
// instantiation.
type ClassInstantiator func(desc *ClassDescriptor, args []Argument, pattern *ClassPattern) *Metadata

// ClassCompleter advances class metadata toward completion; see
// ValueCompleter for the suspension contract.
type ClassCompleter func(md *Metadata, ctx *CompletionContext, pattern *ClassPattern) Dependency

// ClassPattern is the class analogue of ValuePattern.
type ClassPattern struct {
	// Destroy is the heap destructor to install.
	Destroy func(object unsafe.Pointer)

	// ImmediateMembers optionally pre-fills the extra-data words of the
	// immediate-members region.
	ExtraDataWords   uint32
	ImmediateMembers *PartialPattern

	Instantiate ClassInstantiator
	Complete    ClassCompleter
}

// ProtocolDescriptor is the compiler-emitted blueprint of a protocol.
// Protocols participate in existential metadata keys by address: the
// descriptor producer guarantees one canonical record per protocol.
type ProtocolDescriptor struct {
	ContextDescriptor

	// RequiresClass constrains conformers to class types.
	RequiresClass bool

	// NumRequirements is the number of witness-table slots a conformance
	// carries.
	NumRequirements uint32
}
