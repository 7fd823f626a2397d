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

// metadump instantiates the types described in a YAML file and prints the
// layouts the runtime computes for them. It is the quickest way to answer
// "what does the runtime make of this type graph" without writing a test.
//
// A document declares builtins, generic structs and enums, and a list of
// type expressions to instantiate:
//
//	module: Demo
//	builtins:
//	  - {name: Int8, size: 1, align: 1, pod: true}
//	  - {name: Int64, size: 8, align: 8, pod: true}
//	structs:
//	  - name: Pair
//	    params: 2
//	    fields:
//	      - {name: first, type: $0}
//	      - {name: second, type: $1}
//	enums:
//	  - name: Option
//	    params: 1
//	    payloads: [$0]
//	    empty: 1
//	dump:
//	  - Pair<Int8, Int64>
//	  - Option<Pair<Int64, Int64>>
//	  - (x: Int8, y: Int64)
//	  - (Int64) throws -> Int8
//	  - Int64.Type
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	meta "github.com/riftlang/riftmeta"
)

type document struct {
	Module   string        `yaml:"module"`
	Builtins []builtinSpec `yaml:"builtins"`
	Structs  []structSpec  `yaml:"structs"`
	Enums    []enumSpec    `yaml:"enums"`
	Dump     []string      `yaml:"dump"`
}

type builtinSpec struct {
	Name  string `yaml:"name"`
	Size  uint32 `yaml:"size"`
	Align uint32 `yaml:"align"`
	POD   bool   `yaml:"pod"`
}

type structSpec struct {
	Name   string      `yaml:"name"`
	Params int         `yaml:"params"`
	Fields []fieldSpec `yaml:"fields"`
}

type fieldSpec struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type enumSpec struct {
	Name     string   `yaml:"name"`
	Params   int      `yaml:"params"`
	Payloads []string `yaml:"payloads"`
	Empty    int      `yaml:"empty"`
}

func main() {
	var (
		verbose bool
		output  string
	)

	root := &cobra.Command{
		Use:   "metadump [file]",
		Short: "instantiate the types in a YAML document and print their layouts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				logger, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				defer logger.Sync() //nolint:errcheck
				meta.SetLogger(logger)
			}

			in := os.Stdin
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			out := cmd.OutOrStdout()
			if output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}

			return run(in, out)
		},
	}
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "log runtime cache activity")
	root.Flags().StringVarP(&output, "output", "o", "-", "location to dump to; defaults to stdout")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(in io.Reader, out io.Writer) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing document: %w", err)
	}

	u, err := buildUniverse(&doc)
	if err != nil {
		return err
	}

	for i, src := range doc.Dump {
		expr, err := parseExpr(src)
		if err != nil {
			return fmt.Errorf("dump[%d] %q: %w", i, src, err)
		}
		if err := expr.check(u, 0); err != nil {
			return fmt.Errorf("dump[%d] %q: %w", i, src, err)
		}

		md := expr.resolve(u, nil)
		resp := meta.CheckState(meta.Blocking(meta.Complete), md)
		if i > 0 {
			fmt.Fprintln(out)
		}
		render(out, resp)
	}
	return nil
}

// universe holds everything the document declared, keyed by name.
type universe struct {
	module   *meta.ContextDescriptor
	builtins map[string]*meta.Metadata
	types    map[string]*meta.TypeDescriptor
	arity    map[string]int
}

func buildUniverse(doc *document) (*universe, error) {
	name := doc.Module
	if name == "" {
		name = "main"
	}
	u := &universe{
		module:   meta.NewModule(name),
		builtins: make(map[string]*meta.Metadata),
		types:    make(map[string]*meta.TypeDescriptor),
		arity:    make(map[string]int),
	}

	for _, b := range doc.Builtins {
		if b.Align == 0 {
			return nil, fmt.Errorf("builtin %s: zero alignment", b.Name)
		}
		u.builtins[b.Name] = meta.NewOpaqueType(b.Name, b.Size, b.Align, b.POD)
	}

	// Register every nominal type before checking any field expression, so
	// types may reference each other in either order.
	type pending struct {
		name  string
		arity int
		exprs []typeExpr
	}
	var checks []pending

	for _, s := range doc.Structs {
		names := make([]string, len(s.Fields))
		exprs := make([]typeExpr, len(s.Fields))
		for i, f := range s.Fields {
			names[i] = f.Name
			expr, err := parseExpr(f.Type)
			if err != nil {
				return nil, fmt.Errorf("struct %s, field %s: %w", s.Name, f.Name, err)
			}
			exprs[i] = expr
		}

		desc := meta.NewStructType(u.module, s.Name,
			meta.WithFields(names...),
			meta.WithGenericParams(s.Params, meta.StructPattern(func(args []meta.Argument) []*meta.Metadata {
				types := make([]*meta.Metadata, len(exprs))
				for i, e := range exprs {
					types[i] = e.resolve(u, args)
				}
				return types
			})),
		)
		u.types[s.Name] = &desc.TypeDescriptor
		u.arity[s.Name] = s.Params
		checks = append(checks, pending{s.Name, s.Params, exprs})
	}

	for _, e := range doc.Enums {
		exprs := make([]typeExpr, len(e.Payloads))
		for i, p := range e.Payloads {
			expr, err := parseExpr(p)
			if err != nil {
				return nil, fmt.Errorf("enum %s, payload %d: %w", e.Name, i, err)
			}
			exprs[i] = expr
		}

		desc := meta.NewEnumType(u.module, e.Name,
			meta.WithCases(len(e.Payloads), e.Empty),
			meta.WithGenericParams(e.Params, meta.EnumPattern(func(args []meta.Argument) []*meta.Metadata {
				types := make([]*meta.Metadata, len(exprs))
				for i, x := range exprs {
					types[i] = x.resolve(u, args)
				}
				return types
			})),
		)
		u.types[e.Name] = &desc.TypeDescriptor
		u.arity[e.Name] = e.Params
		checks = append(checks, pending{e.Name, e.Params, exprs})
	}

	for _, p := range checks {
		for _, expr := range p.exprs {
			if err := expr.check(u, p.arity); err != nil {
				return nil, fmt.Errorf("type %s: %w", p.name, err)
			}
		}
	}
	return u, nil
}

func render(out io.Writer, resp meta.Response) {
	md := resp.Metadata
	l := md.Witnesses.Layout

	fmt.Fprintf(out, "%s\n", meta.NameForMetadata(md))
	fmt.Fprintf(out, "  kind:    %v\n", md.Kind)
	fmt.Fprintf(out, "  state:   %v\n", resp.State)
	fmt.Fprintf(out, "  size:    %d (stride %d, align %d)\n", l.Size, l.Stride, l.Flags.Alignment())

	var props []string
	if l.Flags.IsPOD() {
		props = append(props, "pod")
	}
	if l.Flags.IsBitwiseTakable() {
		props = append(props, "bitwise-takable")
	}
	if l.Flags.IsInlineStorage() {
		props = append(props, "inline")
	}
	if len(props) > 0 {
		fmt.Fprintf(out, "  props:   %s\n", strings.Join(props, ", "))
	}

	switch md.Kind {
	case meta.KindStruct:
		s, _ := md.AsStruct()
		if sd, ok := s.Description.AsStruct(); ok {
			for i, f := range sd.Fields {
				fmt.Fprintf(out, "  field:   %s @ %d\n", f.Name, s.FieldOffsets[i])
			}
		}
	case meta.KindClass:
		c, _ := md.AsClass()
		fmt.Fprintf(out, "  instance: size %d, align %d\n", c.InstanceSize, c.InstanceAlignMask+1)
	case meta.KindTuple:
		t, _ := md.AsTuple()
		for _, e := range t.Elements {
			fmt.Fprintf(out, "  element: %s @ %d\n", meta.NameForMetadata(e.Type), e.Offset)
		}
	}
}

// Type expressions.
//
// expr   := tuple [ ["throws"] "->" expr ] | atom
// atom   := "$" digits | ident [ "<" expr {"," expr} ">" ] { ".Type" }
// tuple  := "(" [ element {"," element} ] ")"
// element := [ ident ":" ] expr

type typeExpr interface {
	// check validates names and arities against the universe; arity is the
	// number of generic parameters in scope.
	check(u *universe, arity int) error

	// resolve produces metadata, possibly still abstract. Only valid after
	// check succeeds.
	resolve(u *universe, args []meta.Argument) *meta.Metadata
}

type paramExpr int

func (p paramExpr) check(_ *universe, arity int) error {
	if int(p) >= arity {
		return fmt.Errorf("$%d out of range: %d parameters in scope", int(p), arity)
	}
	return nil
}

func (p paramExpr) resolve(_ *universe, args []meta.Argument) *meta.Metadata {
	return args[p].Type()
}

type namedExpr struct {
	name     string
	typeArgs []typeExpr
}

func (n *namedExpr) check(u *universe, arity int) error {
	if _, ok := u.builtins[n.name]; ok {
		if len(n.typeArgs) > 0 {
			return fmt.Errorf("%s is a builtin, not generic", n.name)
		}
		return nil
	}
	want, ok := u.arity[n.name]
	if !ok {
		return fmt.Errorf("unknown type %s", n.name)
	}
	if len(n.typeArgs) != want {
		return fmt.Errorf("%s takes %d type arguments, got %d", n.name, want, len(n.typeArgs))
	}
	for _, a := range n.typeArgs {
		if err := a.check(u, arity); err != nil {
			return err
		}
	}
	return nil
}

func (n *namedExpr) resolve(u *universe, args []meta.Argument) *meta.Metadata {
	if md, ok := u.builtins[n.name]; ok {
		return md
	}
	vec := make([]meta.Argument, len(n.typeArgs))
	for i, a := range n.typeArgs {
		vec[i] = meta.TypeArgument(a.resolve(u, args))
	}
	// Identity only: completion is the top-level caller's business, and a
	// blocking request here could deadlock on a recursive type graph.
	return meta.GetGenericMetadata(meta.NonBlocking(meta.Abstract), u.types[n.name], vec).Metadata
}

type tupleExpr struct {
	labels []string
	elems  []typeExpr
}

func (t *tupleExpr) check(u *universe, arity int) error {
	for _, e := range t.elems {
		if err := e.check(u, arity); err != nil {
			return err
		}
	}
	return nil
}

func (t *tupleExpr) resolve(u *universe, args []meta.Argument) *meta.Metadata {
	elems := make([]*meta.Metadata, len(t.elems))
	for i, e := range t.elems {
		elems[i] = e.resolve(u, args)
	}
	var labels string
	for _, l := range t.labels {
		if l != "" {
			labels = strings.Join(t.labels, " ")
			break
		}
	}
	return meta.GetTupleMetadata(meta.NonBlocking(meta.Abstract), elems, labels).Metadata
}

type funcExpr struct {
	params []typeExpr
	result typeExpr
	throws bool
}

func (f *funcExpr) check(u *universe, arity int) error {
	for _, p := range f.params {
		if err := p.check(u, arity); err != nil {
			return err
		}
	}
	return f.result.check(u, arity)
}

func (f *funcExpr) resolve(u *universe, args []meta.Argument) *meta.Metadata {
	params := make([]meta.FunctionParam, len(f.params))
	for i, p := range f.params {
		params[i] = meta.FunctionParam{Type: p.resolve(u, args)}
	}
	var flags meta.FunctionFlags
	if f.throws {
		flags |= meta.FunctionThrows
	}
	return meta.GetFunctionMetadata(flags, params, f.result.resolve(u, args))
}

type metatypeExpr struct {
	instance typeExpr
}

func (m *metatypeExpr) check(u *universe, arity int) error {
	return m.instance.check(u, arity)
}

func (m *metatypeExpr) resolve(u *universe, args []meta.Argument) *meta.Metadata {
	return meta.GetMetatypeMetadata(m.instance.resolve(u, args))
}

// parser is a hand-rolled recursive descent over a token stream.
type parser struct {
	toks []string
	pos  int
}

func parseExpr(src string) (typeExpr, error) {
	p := &parser{toks: tokenize(src)}
	expr, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("trailing %q", p.toks[p.pos])
	}
	return expr, nil
}

func tokenize(src string) []string {
	var toks []string
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case strings.ContainsRune("<>(),:.", rune(c)):
			toks = append(toks, string(c))
			i++
		case c == '-' && i+1 < len(src) && src[i+1] == '>':
			toks = append(toks, "->")
			i += 2
		default:
			j := i
			for j < len(src) && !strings.ContainsRune(" \t<>(),:.-", rune(src[j])) {
				j++
			}
			if j == i {
				toks = append(toks, string(c))
				i++
				break
			}
			toks = append(toks, src[i:j])
			i = j
		}
	}
	return toks
}

func (p *parser) peek() string {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return ""
}

func (p *parser) next() string {
	t := p.peek()
	if t != "" {
		p.pos++
	}
	return t
}

func (p *parser) expect(tok string) error {
	if got := p.next(); got != tok {
		return fmt.Errorf("expected %q, got %q", tok, got)
	}
	return nil
}

func (p *parser) expr() (typeExpr, error) {
	if p.peek() == "(" {
		tuple, err := p.tuple()
		if err != nil {
			return nil, err
		}

		throws := false
		if p.peek() == "throws" {
			p.next()
			throws = true
		}
		if p.peek() == "->" {
			p.next()
			result, err := p.expr()
			if err != nil {
				return nil, err
			}
			return &funcExpr{params: tuple.elems, result: result, throws: throws}, nil
		}
		if throws {
			return nil, fmt.Errorf("expected \"->\" after \"throws\"")
		}
		return p.suffix(tuple)
	}
	atom, err := p.atom()
	if err != nil {
		return nil, err
	}
	return p.suffix(atom)
}

func (p *parser) atom() (typeExpr, error) {
	tok := p.next()
	switch {
	case tok == "":
		return nil, fmt.Errorf("unexpected end of expression")

	case strings.HasPrefix(tok, "$"):
		n, err := strconv.Atoi(tok[1:])
		if err != nil || n < 0 {
			return nil, fmt.Errorf("bad parameter reference %q", tok)
		}
		return paramExpr(n), nil

	case isIdent(tok):
		named := &namedExpr{name: tok}
		if p.peek() == "<" {
			p.next()
			for {
				arg, err := p.expr()
				if err != nil {
					return nil, err
				}
				named.typeArgs = append(named.typeArgs, arg)
				if p.peek() != "," {
					break
				}
				p.next()
			}
			if err := p.expect(">"); err != nil {
				return nil, err
			}
		}
		return named, nil

	default:
		return nil, fmt.Errorf("unexpected %q", tok)
	}
}

// suffix applies any chain of ".Type" metatype operators.
func (p *parser) suffix(inner typeExpr) (typeExpr, error) {
	for p.peek() == "." {
		p.next()
		if err := p.expect("Type"); err != nil {
			return nil, err
		}
		inner = &metatypeExpr{instance: inner}
	}
	return inner, nil
}

func (p *parser) tuple() (*tupleExpr, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	t := &tupleExpr{}
	if p.peek() == ")" {
		p.next()
		return t, nil
	}
	for {
		label := ""
		if isIdent(p.peek()) && p.pos+1 < len(p.toks) && p.toks[p.pos+1] == ":" {
			label = p.next()
			p.next()
		}
		elem, err := p.expr()
		if err != nil {
			return nil, err
		}
		t.labels = append(t.labels, label)
		t.elems = append(t.elems, elem)
		if p.peek() != "," {
			break
		}
		p.next()
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	return t, nil
}

func isIdent(tok string) bool {
	if tok == "" {
		return false
	}
	c := tok[0]
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
