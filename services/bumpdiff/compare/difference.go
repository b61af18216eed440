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

import "fmt"

// DifferenceType classifies a structural finding.
type DifferenceType string

const (
	// TypeChanged means the two nodes at a path have different JSON kinds.
	TypeChanged DifferenceType = "TYPE_CHANGED"

	// ValueChanged means two scalars render differently, or two arrays
	// differ in length.
	ValueChanged DifferenceType = "VALUE_CHANGED"

	// FieldAdded means the second object has a field the first lacks.
	FieldAdded DifferenceType = "FIELD_ADDED"

	// Other covers everything else, notably one side being absent.
	Other DifferenceType = "OTHER"
)

// Difference is one path-addressed finding between two value graphs.
//
// Path uses "/" for object members and "[i]" for array elements, relative to
// the compared roots; the root itself is "".
type Difference struct {
	Path    string         `json:"path"`
	Message string         `json:"message"`
	Type    DifferenceType `json:"type"`
}

// String renders the difference as "path: message".
func (d Difference) String() string {
	return fmt.Sprintf("%s: %s", d.Path, d.Message)
}

// IsBreaking reports whether the difference changes a value or a type.
func (d Difference) IsBreaking() bool {
	return d.Type == ValueChanged || d.Type == TypeChanged
}

// Breaking returns the VALUE_CHANGED and TYPE_CHANGED differences.
func Breaking(diffs []Difference) []Difference {
	out := make([]Difference, 0, len(diffs))
	for _, d := range diffs {
		if d.IsBreaking() {
			out = append(out, d)
		}
	}
	return out
}
