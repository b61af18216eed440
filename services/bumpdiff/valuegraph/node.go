// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package valuegraph provides the in-memory form of a serialized value graph
// as written by the instrumentation agent.
//
// A value graph is JSON text. Object nodes may carry a reserved "__meta__"
// object whose "hash" field identifies the node, and any node may instead be
// a "<circular reference: HASH>" placeholder pointing back at the object that
// owns HASH elsewhere in the same graph.
//
// Nodes keep object fields in document order and keep the literal text of
// numbers, so two graphs can be compared on the exact textual rendering of
// their values.
//
// Thread Safety:
//
//	Nodes are immutable after Parse returns and are safe for concurrent reads.
package valuegraph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	// MetaKey is the reserved object field carrying node metadata.
	MetaKey = "__meta__"

	// HashKey is the field inside MetaKey holding the node's content hash.
	HashKey = "hash"

	circularPrefix = "<circular reference:"
)

// ErrMalformed indicates that the text is not a well-formed JSON value.
var ErrMalformed = errors.New("malformed value graph")

// Kind is the JSON type of a node.
type Kind int

const (
	KindNull Kind = iota
	KindBoolean
	KindNumber
	KindString
	KindObject
	KindArray
)

// String returns the upper-case kind name used in difference messages.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindBoolean:
		return "BOOLEAN"
	case KindNumber:
		return "NUMBER"
	case KindString:
		return "STRING"
	case KindObject:
		return "OBJECT"
	case KindArray:
		return "ARRAY"
	default:
		return "UNKNOWN"
	}
}

// Field is one named member of an object node.
type Field struct {
	Name  string
	Value *Node
}

// Node is one vertex of a parsed value graph.
type Node struct {
	kind    Kind
	ordinal int
	text    string
	fields  []Field
	index   map[string]int
	elems   []*Node
}

// Parse converts JSON text into a Node tree.
//
// Description:
//
//	Validates the text and builds an order-preserving tree. Scalars keep
//	their literal text: numbers are not normalized and strings are
//	unescaped.
//
// Inputs:
//   - text: JSON text of one value graph.
//
// Outputs:
//   - *Node: Root of the graph. Never nil on success.
//   - error: ErrMalformed (wrapped) if the text is not valid JSON.
func Parse(text string) (*Node, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty input", ErrMalformed)
	}
	if !gjson.Valid(text) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformed)
	}
	b := &builder{}
	return b.build(gjson.Parse(text)), nil
}

// builder numbers nodes in pre-order while converting.
type builder struct {
	next int
}

func (b *builder) node(kind Kind, text string) *Node {
	n := &Node{kind: kind, ordinal: b.next, text: text}
	b.next++
	return n
}

func (b *builder) build(r gjson.Result) *Node {
	switch r.Type {
	case gjson.Null:
		return b.node(KindNull, "null")
	case gjson.False, gjson.True:
		return b.node(KindBoolean, r.Raw)
	case gjson.Number:
		return b.node(KindNumber, r.Raw)
	case gjson.String:
		return b.node(KindString, r.Str)
	}

	if r.IsArray() {
		n := b.node(KindArray, "")
		n.elems = make([]*Node, 0)
		r.ForEach(func(_, value gjson.Result) bool {
			n.elems = append(n.elems, b.build(value))
			return true
		})
		return n
	}

	n := b.node(KindObject, "")
	n.fields = make([]Field, 0)
	n.index = make(map[string]int)
	r.ForEach(func(key, value gjson.Result) bool {
		child := b.build(value)
		// Later duplicates replace the value but keep the first position.
		if i, ok := n.index[key.Str]; ok {
			n.fields[i].Value = child
			return true
		}
		n.index[key.Str] = len(n.fields)
		n.fields = append(n.fields, Field{Name: key.Str, Value: child})
		return true
	})
	return n
}

// Kind returns the node's JSON type.
func (n *Node) Kind() Kind { return n.kind }

// Ordinal returns the node's pre-order position within its own graph.
func (n *Node) Ordinal() int { return n.ordinal }

// Text returns the textual rendering of a scalar. Objects and arrays return "".
func (n *Node) Text() string { return n.text }

// Fields returns the object's members in document order.
func (n *Node) Fields() []Field { return n.fields }

// Field returns the value of the named member, if the node is an object
// that has it.
func (n *Node) Field(name string) (*Node, bool) {
	if n.kind != KindObject {
		return nil, false
	}
	i, ok := n.index[name]
	if !ok {
		return nil, false
	}
	return n.fields[i].Value, true
}

// Has reports whether the object has the named member.
func (n *Node) Has(name string) bool {
	_, ok := n.Field(name)
	return ok
}

// Elements returns the array's elements in order.
func (n *Node) Elements() []*Node { return n.elems }

// Len returns the number of elements of an array or fields of an object.
func (n *Node) Len() int {
	switch n.kind {
	case KindArray:
		return len(n.elems)
	case KindObject:
		return len(n.fields)
	default:
		return 0
	}
}

// Hash returns the content hash from the node's "__meta__" object.
func (n *Node) Hash() (string, bool) {
	meta, ok := n.Field(MetaKey)
	if !ok {
		return "", false
	}
	h, ok := meta.Field(HashKey)
	if !ok {
		return "", false
	}
	return h.Text(), true
}

// CircularRef returns the referenced hash if the node is a
// "<circular reference: HASH>" placeholder.
func (n *Node) CircularRef() (string, bool) {
	if n.kind != KindString || !strings.HasPrefix(n.text, circularPrefix) {
		return "", false
	}
	ref := strings.TrimPrefix(n.text, circularPrefix)
	ref = strings.TrimSuffix(strings.TrimSpace(ref), ">")
	return strings.TrimSpace(ref), true
}

// Walk visits the node and all its descendants in pre-order.
//
// Placeholders are visited as the strings they are; Walk never follows them,
// so it terminates on any parsed graph.
func (n *Node) Walk(fn func(*Node)) {
	stack := []*Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(cur)
		switch cur.kind {
		case KindObject:
			for i := len(cur.fields) - 1; i >= 0; i-- {
				stack = append(stack, cur.fields[i].Value)
			}
		case KindArray:
			for i := len(cur.elems) - 1; i >= 0; i-- {
				stack = append(stack, cur.elems[i])
			}
		}
	}
}
