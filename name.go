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
	"strings"

	"github.com/riftlang/riftmeta/internal/abi"
)

// maxNameDepth caps name recursion so a pathological (or cyclic) type graph
// cannot blow up a diagnostic.
const maxNameDepth = 8

// NameForMetadata renders a human-readable source-like name for a metadata
// record, for diagnostics. Not a mangling; not parseable; not stable across
// releases.
func NameForMetadata(md *Metadata) string {
	return nameForMetadata(md, 0)
}

func nameForMetadata(md *abi.Metadata, depth int) string {
	if md == nil {
		return "<nil>"
	}
	if depth > maxNameDepth {
		return "..."
	}

	switch md.Kind {
	case abi.KindStruct, abi.KindEnum, abi.KindClass, abi.KindForeign:
		desc := md.Description()
		if desc == nil {
			return "<corrupt>"
		}
		name := desc.QualifiedName()
		if !desc.IsGeneric() || desc.Generic.NumKeyArguments == 0 {
			return name
		}
		args := md.GenericArguments()[:desc.Generic.NumKeyArguments]
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = nameForMetadata(a.Type(), depth+1)
		}
		return name + "<" + strings.Join(parts, ", ") + ">"

	case abi.KindTuple:
		t, _ := md.AsTuple()
		labels := strings.Fields(t.Labels)
		parts := make([]string, len(t.Elements))
		for i, e := range t.Elements {
			name := nameForMetadata(e.Type, depth+1)
			if i < len(labels) {
				name = labels[i] + ": " + name
			}
			parts[i] = name
		}
		return "(" + strings.Join(parts, ", ") + ")"

	case abi.KindFunction:
		f, _ := md.AsFunction()
		parts := make([]string, len(f.Params))
		for i, p := range f.Params {
			parts[i] = nameForMetadata(p.Type, depth+1)
		}
		sig := "(" + strings.Join(parts, ", ") + ")"
		if f.Flags&abi.FunctionThrows != 0 {
			sig += " throws"
		}
		return sig + " -> " + nameForMetadata(f.Result, depth+1)

	case abi.KindExistential:
		e, _ := md.AsExistential()
		var parts []string
		if e.Superclass != nil {
			parts = append(parts, nameForMetadata(e.Superclass, depth+1))
		}
		for _, p := range e.Protocols {
			parts = append(parts, p.QualifiedName())
		}
		if len(parts) == 0 {
			if e.Flags.ClassConstrained() {
				return "AnyObject"
			}
			return "Any"
		}
		return strings.Join(parts, " & ")

	case abi.KindMetatype:
		m, _ := md.AsMetatype()
		return nameForMetadata(m.Instance, depth+1) + ".Type"

	case abi.KindExistentialMetatype:
		m, _ := md.AsExistentialMetatype()
		return nameForMetadata(m.Instance, depth+1) + ".Type"

	case abi.KindOpaque:
		o, _ := md.AsOpaque()
		return o.Name

	default:
		return "<unknown>"
	}
}
