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
	"encoding/binary"
	"slices"

	"github.com/riftlang/riftmeta/internal/abi"
	"github.com/riftlang/riftmeta/internal/xunsafe"
)

// Cache keys are fingerprints: the identity-bearing pointer words of a
// structural type, serialized to a byte string. Everything a fingerprint
// names is immortal, so a fingerprint can never dangle and never collide
// with a different identity.

func appendWord(b []byte, w uintptr) []byte {
	return binary.NativeEndian.AppendUint64(b, uint64(w))
}

// argumentFingerprint keys a generic instantiation by its key-argument
// vector.
func argumentFingerprint(args []abi.Argument) string {
	b := make([]byte, 0, len(args)*8)
	for _, a := range args {
		b = appendWord(b, a.Raw())
	}
	return string(b)
}

// tupleFingerprint keys a tuple by its element types and label string.
func tupleFingerprint(elements []*abi.Metadata, labels string) string {
	b := make([]byte, 0, len(elements)*8+len(labels))
	for _, e := range elements {
		b = appendWord(b, xunsafe.Key(e))
	}
	return string(b) + labels
}

// functionFingerprint keys a function type by its flags, parameters, and
// result.
func functionFingerprint(flags abi.FunctionFlags, params []abi.FunctionParam, result *abi.Metadata) string {
	b := make([]byte, 0, (len(params)+2)*16)
	b = appendWord(b, uintptr(flags))
	b = appendWord(b, xunsafe.Key(result))
	for _, p := range params {
		b = appendWord(b, xunsafe.Key(p.Type))
		b = appendWord(b, uintptr(p.Flags))
	}
	return string(b)
}

// existentialFingerprint keys a protocol composition by its constraint
// summary, superclass bound, and member protocols. protocols must already
// be in canonical (address-sorted) order.
func existentialFingerprint(flags abi.ExistentialFlags, superclass *abi.Metadata, protocols []*abi.ProtocolDescriptor) string {
	b := make([]byte, 0, (len(protocols)+2)*8)
	b = appendWord(b, uintptr(flags))
	b = appendWord(b, xunsafe.Key(superclass))
	for _, p := range protocols {
		b = appendWord(b, xunsafe.Key(p))
	}
	return string(b)
}

// sortProtocols returns the canonical ordering of a protocol composition.
// Address order is arbitrary but stable, which is all a cache key needs.
func sortProtocols(protocols []*abi.ProtocolDescriptor) []*abi.ProtocolDescriptor {
	sorted := slices.Clone(protocols)
	slices.SortFunc(sorted, func(a, b *abi.ProtocolDescriptor) int {
		ka, kb := xunsafe.Key(a), xunsafe.Key(b)
		switch {
		case ka < kb:
			return -1
		case ka > kb:
			return 1
		default:
			return 0
		}
	})
	return slices.Compact(sorted)
}

// foreignFingerprint keys foreign metadata by descriptor identity, matching
// the EqualContexts rules: unique descriptors by address, others by their
// qualified name path and related entity tag.
func foreignFingerprint(d *abi.TypeDescriptor) string {
	if d.Unique {
		return string(appendWord(nil, xunsafe.Key(d)))
	}
	var b []byte
	for c := &d.ContextDescriptor; c != nil; c = c.Parent {
		b = append(b, c.Name...)
		b = append(b, 0, byte(c.Kind))
	}
	return string(b) + d.RelatedEntityTag
}
