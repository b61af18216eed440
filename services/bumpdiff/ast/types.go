// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast builds a queryable model of a Java project's source.
//
// Every named syntax node of every .java file becomes an Element with a
// parent link, a start line and, for declarations, a simple name, its
// annotations and its static flag. The model answers the questions the
// test-scope resolver asks: which elements start at file:line, what is an
// element's parent, and what static state does a class carry.
package ast

import "slices"

// ElementID indexes an element within its Project (or File, before loading).
type ElementID int

// NoElement is the parent of top-level elements.
const NoElement ElementID = -1

// ElementKind is the coarse syntactic category of an element.
type ElementKind int

const (
	KindOther ElementKind = iota
	KindClass
	KindInterface
	KindEnum
	KindRecord
	KindAnnotationType
	KindMethod
	KindConstructor
	KindField
	KindAnnotation
	KindInvocation
	KindConstructorCall
	KindBlock
	KindControlFlow
	KindReference
)

var kindNames = map[ElementKind]string{
	KindOther:           "other",
	KindClass:           "class",
	KindInterface:       "interface",
	KindEnum:            "enum",
	KindRecord:          "record",
	KindAnnotationType:  "annotation_type",
	KindMethod:          "method",
	KindConstructor:     "constructor",
	KindField:           "field",
	KindAnnotation:      "annotation",
	KindInvocation:      "invocation",
	KindConstructorCall: "constructor_call",
	KindBlock:           "block",
	KindControlFlow:     "control_flow",
	KindReference:       "reference",
}

// String returns the lower-case kind name.
func (k ElementKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// IsType reports whether the kind declares a type, which is the class
// boundary for scope resolution.
func (k ElementKind) IsType() bool {
	switch k {
	case KindClass, KindInterface, KindEnum, KindRecord, KindAnnotationType:
		return true
	default:
		return false
	}
}

// IsExecutable reports whether the kind declares a method or constructor.
func (k ElementKind) IsExecutable() bool {
	return k == KindMethod || k == KindConstructor
}

// Element is one syntax node of the source model.
type Element struct {
	ID ElementID

	Kind ElementKind

	// NodeType is the tree-sitter node type, e.g. "method_declaration".
	NodeType string

	// Name is the declared simple name for declarations and annotations.
	Name string

	// Target is what an invocation calls or a reference names.
	Target string

	// File is the base name of the source file, e.g. "AppTest.java".
	File string

	// Path is the file path relative to the project root, slash separated.
	Path string

	// Line and EndLine are 1-indexed.
	Line    int
	EndLine int

	Parent   ElementID
	Children []ElementID

	// Annotations holds the simple names of the element's annotations.
	Annotations []string

	Static bool
}

// HasAnnotation reports whether the element carries one of the named
// annotations.
func (e *Element) HasAnnotation(names ...string) bool {
	for _, a := range e.Annotations {
		if slices.Contains(names, a) {
			return true
		}
	}
	return false
}

// File is the parse result for one source file. Element IDs are local to the
// file until a Project adopts it.
type File struct {
	Path     string
	Package  string
	Elements []Element
}
