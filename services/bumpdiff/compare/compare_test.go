// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compare

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/bumpdiff/services/bumpdiff/valuegraph"
)

func mustParse(t *testing.T, text string) *valuegraph.Node {
	t.Helper()
	n, err := valuegraph.Parse(text)
	require.NoError(t, err)
	return n
}

func compareText(t *testing.T, a, b string) []Difference {
	t.Helper()
	diffs, err := CompareText(a, b)
	require.NoError(t, err)
	return diffs
}

// TestCompare_Idempotent verifies compare(X, X) is empty for acyclic and
// cyclic graphs.
func TestCompare_Idempotent(t *testing.T) {
	graphs := map[string]string{
		"scalar":  `42`,
		"array":   `[1,"two",{"three":3},null,true]`,
		"nested":  `{"a":{"b":{"c":[1,2,{"d":"e"}]}},"f":null}`,
		"hashed":  `{"__meta__":{"hash":"h1"},"name":"root","child":{"__meta__":{"hash":"h2"},"v":1}}`,
		"selfref": `{"__meta__":{"hash":"h1"},"self":"<circular reference: h1>","v":1}`,
		"mutual": `{"__meta__":{"hash":"a"},"next":{"__meta__":{"hash":"b"},"next":"<circular reference: a>"},` +
			`"items":["<circular reference: b>","<circular reference: a>"]}`,
	}

	for name, g := range graphs {
		t.Run(name, func(t *testing.T) {
			x := mustParse(t, g)
			assert.Empty(t, Compare(x, x))
		})
	}
}

// TestCompare_CycleTermination verifies a self-referencing object compared
// against an equal but distinct copy terminates.
func TestCompare_CycleTermination(t *testing.T) {
	g := `{"__meta__":{"hash":"n1"},"parent":{"__meta__":{"hash":"n2"},"child":"<circular reference: n1>"},"me":"<circular reference: n1>"}`
	diffs := compareText(t, g, g)
	assert.Empty(t, diffs)
}

// TestCompare_CycleTerminationOutOfPhase covers cycles whose hashed objects
// sit at different depths on each side.
func TestCompare_CycleTerminationOutOfPhase(t *testing.T) {
	left := `{"__meta__":{"hash":"L"},"n":{"n":"<circular reference: L>"}}`
	right := `{"n":{"__meta__":{"hash":"R"},"n":{"n":"<circular reference: R>"}}}`

	diffs := compareText(t, left, right)
	assert.Empty(t, diffs)
}

func TestCompare_TypeMismatchShortCircuits(t *testing.T) {
	diffs := compareText(t, `{"a":1}`, `[1]`)

	require.Len(t, diffs, 1)
	assert.Equal(t, "", diffs[0].Path)
	assert.Equal(t, TypeChanged, diffs[0].Type)
	assert.Equal(t, "Node types differ (OBJECT vs ARRAY)", diffs[0].Message)
}

func TestCompare_ScalarKindsDiffer(t *testing.T) {
	diffs := compareText(t, `{"a":1}`, `{"a":"1"}`)

	require.Len(t, diffs, 1)
	assert.Equal(t, "/a", diffs[0].Path)
	assert.Equal(t, TypeChanged, diffs[0].Type)
}

func TestCompare_ArrayLengthMismatch(t *testing.T) {
	diffs := compareText(t, `[1,2]`, `[1,2,3]`)

	require.Len(t, diffs, 1)
	assert.Equal(t, "", diffs[0].Path)
	assert.Equal(t, ValueChanged, diffs[0].Type)
	assert.Contains(t, diffs[0].Message, "2 vs 3")
}

func TestCompare_ArrayElements(t *testing.T) {
	diffs := compareText(t, `{"children":[{"name":"a"},{"name":"b"},{"name":"c"}]}`,
		`{"children":[{"name":"a"},{"name":"b"},{"name":"z"}]}`)

	require.Len(t, diffs, 1)
	assert.Equal(t, "/children[2]/name", diffs[0].Path)
	assert.Equal(t, "Values differ (c vs z)", diffs[0].Message)
}

func TestCompare_FieldAddedIsOneDirectional(t *testing.T) {
	added := compareText(t, `{"a":1}`, `{"a":1,"b":2}`)
	require.Len(t, added, 1)
	assert.Equal(t, FieldAdded, added[0].Type)
	assert.Equal(t, "", added[0].Path)
	assert.Contains(t, added[0].Message, "b")

	removed := compareText(t, `{"a":1,"b":2}`, `{"a":1}`)
	assert.Empty(t, removed)
}

func TestCompare_MetaKeyIgnored(t *testing.T) {
	diffs := compareText(t, `{"__meta__":{"hash":"h1"},"v":1}`, `{"__meta__":{"hash":"h9"},"v":1}`)
	assert.Empty(t, diffs)

	diffs = compareText(t, `{"v":1}`, `{"__meta__":{"hash":"h9"},"v":1}`)
	assert.Empty(t, diffs)
}

func TestCompare_EndToEndValueChange(t *testing.T) {
	diffs := compareText(t, `{"__meta__":{"hash":"h1"},"value":"x"}`, `{"__meta__":{"hash":"h1"},"value":"y"}`)

	require.Len(t, diffs, 1)
	assert.Equal(t, "/value", diffs[0].Path)
	assert.Equal(t, ValueChanged, diffs[0].Type)
	assert.Contains(t, diffs[0].Message, "x")
	assert.Contains(t, diffs[0].Message, "y")
}

func TestCompare_NullSides(t *testing.T) {
	assert.Empty(t, Compare(nil, nil))

	n := mustParse(t, `{"a":1}`)
	diffs := Compare(n, nil)
	require.Len(t, diffs, 1)
	assert.Equal(t, Other, diffs[0].Type)
	assert.Equal(t, "", diffs[0].Path)

	diffs = Compare(nil, n)
	require.Len(t, diffs, 1)
	assert.Equal(t, Other, diffs[0].Type)
}

func TestCompare_JSONNullIsAValue(t *testing.T) {
	diffs := compareText(t, `{"a":null}`, `{"a":null}`)
	assert.Empty(t, diffs)

	diffs = compareText(t, `{"a":null}`, `{"a":0}`)
	require.Len(t, diffs, 1)
	assert.Equal(t, TypeChanged, diffs[0].Type)
}

func TestCompare_UnresolvablePlaceholder(t *testing.T) {
	diffs := compareText(t,
		`{"__meta__":{"hash":"h1"},"ref":"<circular reference: missing>"}`,
		`{"__meta__":{"hash":"h1"},"ref":"<circular reference: h1>"}`)

	require.Len(t, diffs, 1)
	assert.Equal(t, "/ref", diffs[0].Path)
	assert.Equal(t, Other, diffs[0].Type)
}

// TestCompare_PlaceholdersResolvePerSide verifies each placeholder resolves
// through its own graph's reference map.
func TestCompare_PlaceholdersResolvePerSide(t *testing.T) {
	left := `{"__meta__":{"hash":"p"},"owner":{"__meta__":{"hash":"o1"},"name":"ann"},"again":"<circular reference: o1>"}`
	right := `{"__meta__":{"hash":"p"},"owner":{"__meta__":{"hash":"o2"},"name":"ann"},"again":"<circular reference: o2>"}`
	assert.Empty(t, compareText(t, left, right))

	rightChanged := `{"__meta__":{"hash":"p"},"owner":{"__meta__":{"hash":"o2"},"name":"bob"},"again":{"__meta__":{"hash":"o3"},"name":"bob"}}`
	diffs := compareText(t, left, rightChanged)
	require.Len(t, diffs, 2)
	assert.Equal(t, "/owner/name", diffs[0].Path)
	assert.Equal(t, "/again/name", diffs[1].Path)
}

// TestCompare_DuplicateHashLastWins verifies a repeated hash resolves to the
// object that appears last in the graph.
func TestCompare_DuplicateHashLastWins(t *testing.T) {
	left := `{"a":{"__meta__":{"hash":"d"},"v":1},"b":{"__meta__":{"hash":"d"},"v":2},"ref":"<circular reference: d>"}`
	right := `{"a":{"__meta__":{"hash":"d"},"v":1},"b":{"__meta__":{"hash":"d"},"v":2},"ref":{"v":2}}`
	assert.Empty(t, compareText(t, left, right))

	firstRight := `{"a":{"__meta__":{"hash":"d"},"v":1},"b":{"__meta__":{"hash":"d"},"v":2},"ref":{"v":1}}`
	diffs := compareText(t, left, firstRight)
	require.Len(t, diffs, 1)
	assert.Equal(t, "/ref/v", diffs[0].Path)
	assert.Equal(t, ValueChanged, diffs[0].Type)
}

// TestCompare_TraversalOrder verifies findings follow the walk: a field's
// own findings come before FIELD_ADDED entries of its enclosing object.
func TestCompare_TraversalOrder(t *testing.T) {
	diffs := compareText(t, `{"a":{"x":1},"b":2}`, `{"a":{"x":2,"y":3},"b":3,"c":4}`)

	require.Len(t, diffs, 4)
	assert.Equal(t, []string{"/a/x", "/a", "/b", ""}, []string{diffs[0].Path, diffs[1].Path, diffs[2].Path, diffs[3].Path})
	assert.Equal(t, []DifferenceType{ValueChanged, FieldAdded, ValueChanged, FieldAdded},
		[]DifferenceType{diffs[0].Type, diffs[1].Type, diffs[2].Type, diffs[3].Type})
}

func TestCompare_NumbersCompareByText(t *testing.T) {
	diffs := compareText(t, `[1.0]`, `[1]`)
	require.Len(t, diffs, 1)
	assert.Equal(t, "[0]", diffs[0].Path)
}

func TestCompareText_ParseErrors(t *testing.T) {
	_, err := CompareText(`{`, `{}`)
	assert.ErrorIs(t, err, valuegraph.ErrMalformed)

	_, err = CompareText(`{}`, `nope`)
	assert.ErrorIs(t, err, valuegraph.ErrMalformed)
}

func TestBreaking(t *testing.T) {
	diffs := []Difference{
		{Path: "/a", Type: ValueChanged},
		{Path: "", Type: FieldAdded},
		{Path: "/b", Type: TypeChanged},
		{Path: "/c", Type: Other},
	}
	got := Breaking(diffs)
	require.Len(t, got, 2)
	assert.Equal(t, "/a", got[0].Path)
	assert.Equal(t, "/b", got[1].Path)
}

func TestDifference_JSONShape(t *testing.T) {
	data, err := json.Marshal(Difference{Path: "/v", Message: "Values differ (1 vs 2)", Type: ValueChanged})
	require.NoError(t, err)
	assert.JSONEq(t, `{"path":"/v","message":"Values differ (1 vs 2)","type":"VALUE_CHANGED"}`, string(data))
	assert.Equal(t, "/v: Values differ (1 vs 2)", Difference{Path: "/v", Message: "Values differ (1 vs 2)"}.String())
}
