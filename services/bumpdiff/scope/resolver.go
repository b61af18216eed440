// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scope resolves a stack frame to the test scope it belongs to.
//
// A test scope is the unit that pre- and post-upgrade invocations are joined
// on: a test or lifecycle method, a class-level field or annotation, or the
// static state of the class that encloses the frame.
package scope

import (
	"strings"

	"github.com/AleutianAI/bumpdiff/services/bumpdiff/ast"
	"github.com/AleutianAI/bumpdiff/services/bumpdiff/invocation"
)

// TestMarkers are the annotations that make a method a test scope.
var TestMarkers = []string{
	"Test",
	"ParameterizedTest",
	"RepeatedTest",
	"Before",
	"After",
	"BeforeEach",
	"AfterEach",
	"BeforeAll",
	"AfterAll",
}

// Kind is the kind of a resolved scope.
type Kind int

const (
	// TestMethod is a method carrying one of TestMarkers.
	TestMethod Kind = iota + 1

	// Field is a class-level field declaration.
	Field

	// Annotation is an annotation outside any method.
	Annotation

	// ClassStatics is the static fields and annotations of a class.
	ClassStatics
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case TestMethod:
		return "test_method"
	case Field:
		return "field"
	case Annotation:
		return "annotation"
	case ClassStatics:
		return "class_statics"
	default:
		return "unknown"
	}
}

// Scope is the resolved test identity of a source position.
type Scope struct {
	Kind Kind

	// Name is the simple name of the method, field, annotation or class.
	Name string

	// Root is the method, field, annotation or class element.
	Root ast.ElementID

	// Members is the element set the scope stands for: the root itself,
	// or for ClassStatics the class's static fields and annotations.
	Members []ast.ElementID
}

// Key is the grouping key used to join scopes across runs. Test methods
// join on their simple name; other kinds are prefixed with their kind so a
// class never joins a method of the same name.
func (s Scope) Key() string {
	if s.Kind == TestMethod {
		return s.Name
	}
	return s.Kind.String() + ":" + s.Name
}

// SourceModel is the capability surface the resolver needs.
//
// *ast.Project implements it.
type SourceModel interface {
	ElementsAt(file string, line int) []ast.ElementID
	Element(id ast.ElementID) (*ast.Element, bool)
	Parent(id ast.ElementID) ast.ElementID
	StaticMembers(typeID ast.ElementID) []ast.ElementID
	Package(path string) string
}

// Resolver maps stack frames to test scopes over one source model.
//
// Thread Safety:
//
//	Safe for concurrent use as long as the model is read-only.
type Resolver struct {
	model SourceModel
}

// NewResolver creates a Resolver over model.
func NewResolver(model SourceModel) *Resolver {
	return &Resolver{model: model}
}

// Locate returns the innermost element that starts at the frame's position.
//
// Description:
//
//	Candidates are the elements starting at (file, line). When the frame
//	names a qualified declaring class, only candidates from files declaring
//	that class's package are kept. Of the candidates, the first one that is
//	not an ancestor of another candidate wins.
//
// Outputs:
//   - ast.ElementID: The selected element.
//   - bool: False when no element starts at the position.
func (r *Resolver) Locate(frame invocation.StackFrame) (ast.ElementID, bool) {
	if frame.FileName == "" || frame.LineNumber <= 0 {
		return ast.NoElement, false
	}
	candidates := r.model.ElementsAt(frame.FileName, frame.LineNumber)
	if len(candidates) == 0 {
		return ast.NoElement, false
	}
	candidates = r.inPackage(candidates, frame.DeclaringClass)
	if len(candidates) == 0 {
		return ast.NoElement, false
	}

	isCandidate := make(map[ast.ElementID]bool, len(candidates))
	for _, c := range candidates {
		isCandidate[c] = true
	}
	hasChild := make(map[ast.ElementID]bool, len(candidates))
	for _, c := range candidates {
		for p := r.model.Parent(c); p != ast.NoElement; p = r.model.Parent(p) {
			if isCandidate[p] {
				hasChild[p] = true
			}
		}
	}
	for _, c := range candidates {
		if !hasChild[c] {
			return c, true
		}
	}
	return ast.NoElement, false
}

// inPackage keeps the candidates declared in the declaring class's package.
// A frame whose class lives in another package never resolves through a
// project file that merely shares its base name.
func (r *Resolver) inPackage(candidates []ast.ElementID, declaringClass string) []ast.ElementID {
	i := strings.LastIndexByte(declaringClass, '.')
	if i < 0 {
		return candidates
	}
	pkg := declaringClass[:i]

	out := candidates[:0:0]
	for _, c := range candidates {
		e, ok := r.model.Element(c)
		if ok && r.model.Package(e.Path) == pkg {
			out = append(out, c)
		}
	}
	return out
}

// Resolve returns the test scope of one frame.
//
// Description:
//
//	Starting at the located element and climbing parent links:
//	  - a method or constructor annotated with a test marker is a
//	    TestMethod scope
//	  - a field with no enclosing method, or an annotation on a type
//	    declaration, is a scope by itself; annotations on other
//	    declarations climb to their owner
//	  - a class boundary yields the class's static state
//
// Outputs:
//   - Scope: The resolved scope.
//   - bool: False when the frame cannot be located or no scope encloses it.
func (r *Resolver) Resolve(frame invocation.StackFrame) (Scope, bool) {
	start, ok := r.Locate(frame)
	if !ok {
		return Scope{}, false
	}

	for id := start; id != ast.NoElement; id = r.model.Parent(id) {
		e, ok := r.model.Element(id)
		if !ok {
			return Scope{}, false
		}
		switch {
		case e.Kind.IsExecutable():
			if e.HasAnnotation(TestMarkers...) {
				return single(TestMethod, e), true
			}
		case e.Kind == ast.KindField && !r.underMethod(id):
			return single(Field, e), true
		case e.Kind == ast.KindAnnotation && r.annotatesType(id):
			return single(Annotation, e), true
		case e.Kind.IsType():
			return Scope{
				Kind:    ClassStatics,
				Name:    e.Name,
				Root:    e.ID,
				Members: r.model.StaticMembers(e.ID),
			}, true
		}
	}
	return Scope{}, false
}

// ResolveTrace resolves the first frame that resolves, trying frames from
// the outermost end of the trace inward.
func (r *Resolver) ResolveTrace(frames []invocation.StackFrame) (Scope, bool) {
	for i := len(frames) - 1; i >= 0; i-- {
		if s, ok := r.Resolve(frames[i]); ok {
			return s, true
		}
	}
	return Scope{}, false
}

// annotatesType reports whether the annotation id is a modifier of a type
// declaration.
func (r *Resolver) annotatesType(id ast.ElementID) bool {
	owner := r.model.Parent(id)
	if e, ok := r.model.Element(owner); ok && e.NodeType == "modifiers" {
		owner = r.model.Parent(owner)
	}
	e, ok := r.model.Element(owner)
	return ok && e.Kind.IsType()
}

// underMethod reports whether id has a method or constructor ancestor.
func (r *Resolver) underMethod(id ast.ElementID) bool {
	for p := r.model.Parent(id); p != ast.NoElement; p = r.model.Parent(p) {
		e, ok := r.model.Element(p)
		if ok && e.Kind.IsExecutable() {
			return true
		}
	}
	return false
}

func single(kind Kind, e *ast.Element) Scope {
	return Scope{Kind: kind, Name: e.Name, Root: e.ID, Members: []ast.ElementID{e.ID}}
}
