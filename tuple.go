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
	"github.com/riftlang/riftmeta/internal/cache"
	"github.com/riftlang/riftmeta/internal/debug"
	"github.com/riftlang/riftmeta/internal/layout"
	"github.com/riftlang/riftmeta/internal/pool"
)

type tupleArgs struct {
	elements []*abi.Metadata
	labels   string
}

var tupleCache *cache.Map[string, tupleArgs]

func init() {
	tupleCache = cache.NewMap(cache.Hooks[string, tupleArgs]{
		Name:          "tuple",
		Allocate:      allocateTuple,
		TryInitialize: initializeTuple,
	})
}

// unitMetadata is the canonical empty tuple. There is exactly one, and it
// never touches the cache.
var unitMetadata = func() *abi.TupleMetadata {
	t := abi.NewPatternTable()
	t.PublishLayout(layout.POD(0, 1))
	md := &abi.TupleMetadata{}
	md.Kind = abi.KindTuple
	md.Witnesses = t
	return md
}()

// GetTupleMetadata returns the canonical metadata for a tuple shape. labels
// is the space-separated element label string, "" for an unlabeled tuple;
// two tuples with the same element types but different labels are different
// types.
func GetTupleMetadata(req Request, elements []*Metadata, labels string) Response {
	if len(elements) == 0 {
		debug.Assert(labels == "", "labels on the empty tuple")
		return Response{Metadata: unitMetadata.AsMetadata(), State: abi.Complete}
	}

	key := tupleFingerprint(elements, labels)
	in := tupleArgs{elements: elements, labels: labels}

	// The label string has to outlive the caller. Copy it into the pool up
	// front; if the entry turns out to exist already, hand the copy straight
	// back (LIFO reclaim makes this free in the common case).
	var copied []byte
	if labels != "" {
		copied = pool.Slice[byte](&metadataPool, len(labels))
		copy(copied, labels)
		in.labels = unsafe.String(&copied[0], len(copied))
	}

	resp := tupleCache.GetOrInsert(key, req, in)

	if copied != nil {
		t, _ := resp.Metadata.AsTuple()
		if t.Labels != "" && unsafe.StringData(t.Labels) != &copied[0] {
			metadataPool.Deallocate(&copied[0], len(copied))
		}
	}
	return resp
}

func allocateTuple(_ string, in tupleArgs) (*abi.Metadata, abi.State) {
	md := &abi.TupleMetadata{}
	md.Kind = abi.KindTuple
	md.Witnesses = abi.NewPatternTable()
	md.Labels = in.labels
	md.Elements = make([]abi.TupleElement, len(in.elements))
	for i, e := range in.elements {
		md.Elements[i].Type = e
	}
	return md.AsMetadata(), abi.Abstract
}

func initializeTuple(md *abi.Metadata, state abi.State, _ *abi.CompletionContext) (abi.State, abi.Dependency) {
	t, ok := md.AsTuple()
	debug.Assert(ok, "tuple initialization of %v metadata", md.Kind)

	if !state.AtLeast(abi.NonTransitiveComplete) {
		for _, e := range t.Elements {
			resp := CheckState(abi.NonBlocking(abi.LayoutComplete), e.Type)
			if !resp.State.AtLeast(abi.LayoutComplete) {
				return state, abi.Dependency{Metadata: e.Type, Requirement: abi.LayoutComplete}
			}
		}

		l := layout.BasicLayout(layout.TypeLayout{}, len(t.Elements),
			func(i int) layout.TypeLayout { return t.Elements[i].Type.Witnesses.Layout },
			func(i int, offset uint32) { t.Elements[i].Offset = offset })
		abi.InstallCommonValueWitnesses(l, t.Witnesses)
		t.Witnesses.PublishLayout(l)
		state = abi.NonTransitiveComplete
	}

	if dep := checkTransitiveCompleteness(md); dep.Exists() {
		return state, dep
	}
	return abi.Complete, abi.Dependency{}
}
