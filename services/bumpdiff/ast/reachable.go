// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

// visit is one unit of work in Reachable. A shallow visit of a type
// declaration contributes its static state and constructors only; a full
// visit contributes its whole body.
type visit struct {
	id      ElementID
	shallow bool
}

// Reachable returns every element executed or referenced starting from the
// given roots.
//
// Description:
//
//	An explicit-stack walk with a seen-set. From each element the walk
//	follows its syntactic children and these resolution edges, all by
//	simple name within the project:
//	  - invocation: the methods it may call
//	  - constructor call: the instantiated type and its constructors
//	  - reference: types and fields of that name
//	  - annotation: the annotation type
//	A type reached through an edge contributes its static fields and
//	annotations, not its whole body. Every element appears once in the
//	output, in first-visit order.
//
// Inputs:
//   - roots: Starting elements. Unknown IDs are ignored.
//
// Outputs:
//   - []ElementID: Reachable elements including the roots.
func (p *Project) Reachable(roots ...ElementID) []ElementID {
	// expanded records whether an element's full body has been walked.
	expanded := make(map[ElementID]bool)
	out := make([]ElementID, 0)

	stack := make([]visit, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, visit{id: roots[i]})
	}

	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		e, ok := p.Element(v.id)
		if !ok {
			continue
		}
		full, seen := expanded[v.id]
		if seen && (full || v.shallow) {
			continue
		}
		if !seen {
			out = append(out, v.id)
		}
		expanded[v.id] = !v.shallow

		next := p.edges(e, v.shallow)
		for i := len(next) - 1; i >= 0; i-- {
			stack = append(stack, next[i])
		}
	}
	return out
}

// edges lists what e leads to.
func (p *Project) edges(e *Element, shallow bool) []visit {
	var next []visit
	if e.Kind.IsType() && shallow {
		for _, m := range p.StaticMembers(e.ID) {
			next = append(next, visit{id: m})
		}
		return next
	}

	for _, c := range e.Children {
		next = append(next, visit{id: c})
	}

	switch e.Kind {
	case KindInvocation:
		for _, m := range p.Named(KindMethod, e.Target) {
			next = append(next, visit{id: m})
		}
	case KindConstructorCall:
		for _, t := range p.Types(e.Target) {
			next = append(next, visit{id: t, shallow: true})
			for _, c := range p.Named(KindConstructor, e.Target) {
				if p.Parent(p.Parent(c)) == t {
					next = append(next, visit{id: c})
				}
			}
		}
	case KindReference:
		for _, t := range p.Types(e.Target) {
			next = append(next, visit{id: t, shallow: true})
		}
		for _, f := range p.Named(KindField, e.Target) {
			next = append(next, visit{id: f})
		}
	case KindAnnotation:
		for _, t := range p.Named(KindAnnotationType, e.Name) {
			next = append(next, visit{id: t, shallow: true})
		}
	}
	return next
}
