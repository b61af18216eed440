// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scope

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/bumpdiff/services/bumpdiff/ast"
	"github.com/AleutianAI/bumpdiff/services/bumpdiff/invocation"
)

const resolverTestSource = `package org.example;

import org.junit.jupiter.api.Test;

class ResolverTest {
    static final Codec CODEC = Codec.create();
    static int shared;

    @Test
    void first() {
        assertEquals("a", CODEC.encode("a"));
    }

    @ParameterizedTest
    void second(String s) {
        check(s);
    }

    void check(String s) {
        CODEC.encode(s);
    }

    static class Nested {
        void run() {
            CODEC.encode("n");
        }
    }
}
`

func newResolver(t *testing.T, files map[string]string) (*Resolver, *ast.Project) {
	t.Helper()
	parser := ast.NewJavaParser()
	var parsed []*ast.File
	for path, src := range files {
		f, err := parser.Parse(context.Background(), []byte(src), path)
		require.NoError(t, err)
		parsed = append(parsed, f)
	}
	p := ast.NewProject("", parsed...)
	return NewResolver(p), p
}

func frame(file string, line int) invocation.StackFrame {
	return invocation.StackFrame{DeclaringClass: "org.example.ResolverTest", MethodName: "m", FileName: file, LineNumber: line}
}

func TestResolve_TestMethods(t *testing.T) {
	r, _ := newResolver(t, map[string]string{"src/test/java/org/example/ResolverTest.java": resolverTestSource})

	s, ok := r.Resolve(frame("ResolverTest.java", 11))
	require.True(t, ok)
	assert.Equal(t, TestMethod, s.Kind)
	assert.Equal(t, "first", s.Name)
	assert.Equal(t, []ast.ElementID{s.Root}, s.Members)
	assert.Equal(t, "first", s.Key())

	s, ok = r.Resolve(frame("ResolverTest.java", 16))
	require.True(t, ok)
	assert.Equal(t, "second", s.Name)
}

// TestResolve_HelperClimbsToClassStatics verifies a frame in an unannotated
// helper resolves to the enclosing class's static state.
func TestResolve_HelperClimbsToClassStatics(t *testing.T) {
	r, p := newResolver(t, map[string]string{"ResolverTest.java": resolverTestSource})

	s, ok := r.Resolve(frame("ResolverTest.java", 20))
	require.True(t, ok)
	assert.Equal(t, ClassStatics, s.Kind)
	assert.Equal(t, "ResolverTest", s.Name)
	assert.Equal(t, "class_statics:ResolverTest", s.Key())

	var names []string
	for _, id := range s.Members {
		e, _ := p.Element(id)
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"CODEC", "shared"}, names)
}

func TestResolve_StaticFieldIsItsOwnScope(t *testing.T) {
	r, _ := newResolver(t, map[string]string{"ResolverTest.java": resolverTestSource})

	s, ok := r.Resolve(frame("ResolverTest.java", 6))
	require.True(t, ok)
	assert.Equal(t, Field, s.Kind)
	assert.Equal(t, "CODEC", s.Name)
	assert.Equal(t, "field:CODEC", s.Key())
}

func TestResolve_NestedClassBoundary(t *testing.T) {
	r, _ := newResolver(t, map[string]string{"ResolverTest.java": resolverTestSource})

	s, ok := r.Resolve(frame("ResolverTest.java", 25))
	require.True(t, ok)
	assert.Equal(t, ClassStatics, s.Kind)
	assert.Equal(t, "Nested", s.Name)
	assert.Empty(t, s.Members)
}

func TestResolve_Unlocatable(t *testing.T) {
	r, _ := newResolver(t, map[string]string{"ResolverTest.java": resolverTestSource})

	for _, f := range []invocation.StackFrame{
		frame("Missing.java", 11),
		frame("ResolverTest.java", 2),
		frame("ResolverTest.java", 0),
		frame("", 11),
	} {
		_, ok := r.Resolve(f)
		assert.False(t, ok, "frame %s", f)
	}
}

// TestResolveTrace_OutermostFirst verifies the outermost resolvable frame
// decides the scope even when inner frames also resolve.
func TestResolveTrace_OutermostFirst(t *testing.T) {
	r, _ := newResolver(t, map[string]string{"ResolverTest.java": resolverTestSource})

	trace := []invocation.StackFrame{
		{DeclaringClass: "org.lib.Codec", MethodName: "encode", FileName: "Codec.java", LineNumber: 50},
		frame("ResolverTest.java", 20),
		frame("ResolverTest.java", 16),
		{DeclaringClass: "org.junit.platform.commons.util.ReflectionUtils", MethodName: "invokeMethod", FileName: "ReflectionUtils.java", LineNumber: 728},
	}

	s, ok := r.ResolveTrace(trace)
	require.True(t, ok)
	assert.Equal(t, "second", s.Name)

	_, ok = r.ResolveTrace(trace[:1])
	assert.False(t, ok)
	_, ok = r.ResolveTrace(nil)
	assert.False(t, ok)
}

func TestLocate_PrefersDeclaringPackage(t *testing.T) {
	src := func(pkg, method string) string {
		return "package " + pkg + ";\n\nclass Dup {\n    @Test\n    void " + method + "() {\n        run();\n    }\n}\n"
	}
	r, _ := newResolver(t, map[string]string{
		"src/test/java/a/Dup.java": src("a", "inA"),
		"src/test/java/b/Dup.java": src("b", "inB"),
	})

	s, ok := r.Resolve(invocation.StackFrame{DeclaringClass: "b.Dup", FileName: "Dup.java", LineNumber: 6})
	require.True(t, ok)
	assert.Equal(t, "inB", s.Name)

	s, ok = r.Resolve(invocation.StackFrame{DeclaringClass: "a.Dup", FileName: "Dup.java", LineNumber: 6})
	require.True(t, ok)
	assert.Equal(t, "inA", s.Name)
}

// TestResolveTrace_ForeignPackageFrameIgnored verifies a harness frame whose
// file name collides with a project file does not take over the scope.
func TestResolveTrace_ForeignPackageFrameIgnored(t *testing.T) {
	launcher := "package com.acme;\n\npublic class Launcher {\n    void execute() {\n        run();\n    }\n}\n"
	r, _ := newResolver(t, map[string]string{
		"src/main/java/com/acme/Launcher.java":        launcher,
		"src/test/java/org/example/ResolverTest.java": resolverTestSource,
	})

	trace := []invocation.StackFrame{
		{DeclaringClass: "org.lib.Codec", MethodName: "encode", FileName: "Codec.java", LineNumber: 50},
		frame("ResolverTest.java", 11),
		{DeclaringClass: "org.junit.platform.launcher.core.Launcher", MethodName: "execute", FileName: "Launcher.java", LineNumber: 4},
	}

	s, ok := r.ResolveTrace(trace)
	require.True(t, ok)
	assert.Equal(t, TestMethod, s.Kind)
	assert.Equal(t, "first", s.Key())

	_, ok = r.Locate(trace[2])
	assert.False(t, ok)

	id, ok := r.Locate(invocation.StackFrame{DeclaringClass: "com.acme.Launcher", FileName: "Launcher.java", LineNumber: 4})
	assert.True(t, ok)
	assert.NotEqual(t, ast.NoElement, id)
}

// TestResolve_AnnotatedFieldIsFieldScope verifies an annotation used as a
// field modifier resolves to the field it annotates.
func TestResolve_AnnotatedFieldIsFieldScope(t *testing.T) {
	src := "package org.example;\n\nclass MockTest {\n    @Mock static Codec CODEC = Codec.create();\n\n    @Rule\n    public TempDir dir = new TempDir();\n}\n"
	r, _ := newResolver(t, map[string]string{"MockTest.java": src})

	s, ok := r.Resolve(invocation.StackFrame{DeclaringClass: "org.example.MockTest", FileName: "MockTest.java", LineNumber: 4})
	require.True(t, ok)
	assert.Equal(t, Field, s.Kind)
	assert.Equal(t, "field:CODEC", s.Key())

	s, ok = r.Resolve(invocation.StackFrame{DeclaringClass: "org.example.MockTest", FileName: "MockTest.java", LineNumber: 6})
	require.True(t, ok)
	assert.Equal(t, Field, s.Kind)
	assert.Equal(t, "dir", s.Name)
}

// fakeModel is a hand-built model for exercising candidate selection.
type fakeModel struct {
	elems []ast.Element
}

func (m *fakeModel) ElementsAt(file string, line int) []ast.ElementID {
	var out []ast.ElementID
	for _, e := range m.elems {
		if e.File == file && e.Line == line {
			out = append(out, e.ID)
		}
	}
	return out
}

func (m *fakeModel) Element(id ast.ElementID) (*ast.Element, bool) {
	if id < 0 || int(id) >= len(m.elems) {
		return nil, false
	}
	return &m.elems[id], true
}

func (m *fakeModel) Parent(id ast.ElementID) ast.ElementID {
	if e, ok := m.Element(id); ok {
		return e.Parent
	}
	return ast.NoElement
}

func (m *fakeModel) StaticMembers(ast.ElementID) []ast.ElementID { return nil }

func (m *fakeModel) Package(string) string { return "" }

func TestLocate_InnermostCandidate(t *testing.T) {
	m := &fakeModel{elems: []ast.Element{
		{ID: 0, Kind: ast.KindClass, Name: "T", File: "T.java", Line: 3, Parent: ast.NoElement},
		{ID: 1, Kind: ast.KindMethod, Name: "t", File: "T.java", Line: 3, Parent: 0, Annotations: []string{"RepeatedTest"}},
		{ID: 2, Kind: ast.KindInvocation, File: "T.java", Line: 3, Parent: 1},
		{ID: 3, Kind: ast.KindReference, File: "T.java", Line: 3, Parent: 1},
	}}
	r := NewResolver(m)

	id, ok := r.Locate(invocation.StackFrame{FileName: "T.java", LineNumber: 3})
	require.True(t, ok)
	assert.Equal(t, ast.ElementID(2), id)

	s, ok := r.Resolve(invocation.StackFrame{FileName: "T.java", LineNumber: 3})
	require.True(t, ok)
	assert.Equal(t, TestMethod, s.Kind)
	assert.Equal(t, "t", s.Name)
}

func TestLocate_AnnotationOutsideMethod(t *testing.T) {
	m := &fakeModel{elems: []ast.Element{
		{ID: 0, Kind: ast.KindClass, Name: "T", File: "T.java", Line: 1, Parent: ast.NoElement},
		{ID: 1, Kind: ast.KindOther, NodeType: "modifiers", File: "T.java", Line: 1, Parent: 0},
		{ID: 2, Kind: ast.KindAnnotation, Name: "Tag", File: "T.java", Line: 1, Parent: 1},
		{ID: 3, Kind: ast.KindMethod, Name: "helper", File: "T.java", Line: 5, Parent: 0},
		{ID: 4, Kind: ast.KindAnnotation, Name: "SuppressWarnings", File: "T.java", Line: 6, Parent: 3},
	}}
	r := NewResolver(m)

	s, ok := r.Resolve(invocation.StackFrame{FileName: "T.java", LineNumber: 1})
	require.True(t, ok)
	assert.Equal(t, Annotation, s.Kind)
	assert.Equal(t, "Tag", s.Name)

	s, ok = r.Resolve(invocation.StackFrame{FileName: "T.java", LineNumber: 6})
	require.True(t, ok)
	assert.Equal(t, ClassStatics, s.Kind)
	assert.Equal(t, "T", s.Name)
}
