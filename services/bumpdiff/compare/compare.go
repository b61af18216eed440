// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compare implements the reference-aware structural differ.
//
// Compare walks two value graphs side by side and reports where they differ.
// Graphs may be cyclic through "<circular reference: HASH>" placeholders;
// each side's placeholders are resolved through that side's own hash index,
// and every pair of hashed objects is expanded at most once per call.
//
// Thread Safety:
//
//	Compare is a pure function. All state lives in a per-call comparator,
//	so concurrent calls never share anything.
package compare

import (
	"fmt"
	"strconv"

	"github.com/AleutianAI/bumpdiff/services/bumpdiff/valuegraph"
)

// referenceMap indexes a graph's objects by their "__meta__.hash".
type referenceMap map[string]*valuegraph.Node

// pairKey identifies one (left hash, right hash) object pair.
type pairKey struct {
	left  string
	right string
}

type comparator struct {
	leftRefs  referenceMap
	rightRefs referenceMap
	visited   map[pairKey]struct{}
	diffs     []Difference
}

// Compare reports the structural differences between two value graphs.
//
// Description:
//
//	Rules, applied recursively from the roots:
//	  - both absent: nothing; one absent: OTHER
//	  - kinds differ: one TYPE_CHANGED, children not compared
//	  - objects: every field of a (except "__meta__") is compared with the
//	    same field of b; fields missing from b are skipped; every field of
//	    b missing from a is one FIELD_ADDED at the object's path
//	  - arrays: different lengths give one VALUE_CHANGED, otherwise
//	    elements are compared index-wise
//	  - scalars: VALUE_CHANGED when their textual renderings differ
//
//	Differences are returned in depth-first walk order. FIELD_ADDED
//	entries of an object follow the findings of its own fields.
//
// Inputs:
//   - a: Root of the first (pre) graph. May be nil.
//   - b: Root of the second (post) graph. May be nil.
//
// Outputs:
//   - []Difference: Never nil; empty when the graphs are equivalent.
//
// Example:
//
//	a, _ := valuegraph.Parse(`{"value":"x"}`)
//	b, _ := valuegraph.Parse(`{"value":"y"}`)
//	diffs := compare.Compare(a, b) // [/value: Values differ (x vs y)]
func Compare(a, b *valuegraph.Node) []Difference {
	c := &comparator{
		leftRefs:  buildReferenceMap(a),
		rightRefs: buildReferenceMap(b),
		visited:   make(map[pairKey]struct{}),
		diffs:     make([]Difference, 0),
	}
	c.compare(a, b, "")
	return c.diffs
}

// CompareText parses two value graphs and compares them.
//
// Outputs:
//   - []Difference: Result of Compare on the parsed roots.
//   - error: Non-nil if either side fails to parse; the error names the side.
func CompareText(a, b string) ([]Difference, error) {
	left, err := valuegraph.Parse(a)
	if err != nil {
		return nil, fmt.Errorf("parse first graph: %w", err)
	}
	right, err := valuegraph.Parse(b)
	if err != nil {
		return nil, fmt.Errorf("parse second graph: %w", err)
	}
	return Compare(left, right), nil
}

// buildReferenceMap indexes every hashed object by its hash. When a hash
// repeats, the object visited last in document order wins.
func buildReferenceMap(root *valuegraph.Node) referenceMap {
	refs := make(referenceMap)
	if root == nil {
		return refs
	}
	root.Walk(func(n *valuegraph.Node) {
		if n.Kind() != valuegraph.KindObject {
			return
		}
		if h, ok := n.Hash(); ok {
			refs[h] = n
		}
	})
	return refs
}

// objectKey identifies an object for the visited-pairs set. Hashed objects
// use their hash. An unhashed object is keyed by its position in its own
// graph; that key only takes part when the other side is hashed, so a pair of
// cycles whose hashed objects never line up still terminates.
func objectKey(n *valuegraph.Node) (string, bool) {
	if h, ok := n.Hash(); ok {
		return "h:" + h, true
	}
	return "#" + strconv.Itoa(n.Ordinal()), false
}

// resolve replaces a placeholder by the node it stands for. An unknown hash
// resolves to nil.
func resolve(n *valuegraph.Node, refs referenceMap) *valuegraph.Node {
	if n == nil {
		return nil
	}
	ref, ok := n.CircularRef()
	if !ok {
		return n
	}
	return refs[ref]
}

func (c *comparator) add(path, msg string, typ DifferenceType) {
	c.diffs = append(c.diffs, Difference{Path: path, Message: msg, Type: typ})
}

func (c *comparator) compare(a, b *valuegraph.Node, path string) {
	a = resolve(a, c.leftRefs)
	b = resolve(b, c.rightRefs)

	if a == nil && b == nil {
		return
	}
	if a == nil || b == nil {
		c.add(path, "One of the nodes is null", Other)
		return
	}

	if a.Kind() != b.Kind() {
		c.add(path, fmt.Sprintf("Node types differ (%s vs %s)", a.Kind(), b.Kind()), TypeChanged)
		return
	}

	switch a.Kind() {
	case valuegraph.KindObject:
		c.compareObjects(a, b, path)
	case valuegraph.KindArray:
		c.compareArrays(a, b, path)
	default:
		if a.Text() != b.Text() {
			c.add(path, fmt.Sprintf("Values differ (%s vs %s)", a.Text(), b.Text()), ValueChanged)
		}
	}
}

func (c *comparator) compareObjects(a, b *valuegraph.Node, path string) {
	ka, hashedA := objectKey(a)
	kb, hashedB := objectKey(b)
	if hashedA || hashedB {
		key := pairKey{left: ka, right: kb}
		if _, done := c.visited[key]; done {
			return
		}
		c.visited[key] = struct{}{}
	}

	for _, f := range a.Fields() {
		if f.Name == valuegraph.MetaKey {
			continue
		}
		other, ok := b.Field(f.Name)
		if !ok {
			// Removed fields are not reported.
			continue
		}
		c.compare(f.Value, other, path+"/"+f.Name)
	}

	for _, f := range b.Fields() {
		if f.Name == valuegraph.MetaKey || a.Has(f.Name) {
			continue
		}
		c.add(path, f.Name+": Field is missing in the first object", FieldAdded)
	}
}

func (c *comparator) compareArrays(a, b *valuegraph.Node, path string) {
	ea, eb := a.Elements(), b.Elements()
	if len(ea) != len(eb) {
		c.add(path, fmt.Sprintf("Array sizes differ (%d vs %d)", len(ea), len(eb)), ValueChanged)
		return
	}
	for i := range ea {
		c.compare(ea[i], eb[i], path+"["+strconv.Itoa(i)+"]")
	}
}
