// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/AleutianAI/bumpdiff/services/bumpdiff/compare"
	"github.com/AleutianAI/bumpdiff/services/bumpdiff/matching"
)

var (
	colorTeal  = lipgloss.Color("#20B9B4")
	colorGold  = lipgloss.Color("#F4D03F")
	colorRed   = lipgloss.Color("#E74C3C")
	colorSlate = lipgloss.Color("#2C4A54")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorTeal)
	pathStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(colorSlate)
	okStyle    = lipgloss.NewStyle().Foreground(colorTeal)
	typeStyles = map[compare.DifferenceType]lipgloss.Style{
		compare.TypeChanged:  lipgloss.NewStyle().Foreground(colorRed),
		compare.ValueChanged: lipgloss.NewStyle().Foreground(colorRed),
		compare.FieldAdded:   lipgloss.NewStyle().Foreground(colorGold),
		compare.Other:        lipgloss.NewStyle().Foreground(colorSlate),
	}
)

// RenderOptions controls Render.
type RenderOptions struct {
	// Verbose adds a unified diff of each differing pair's return values.
	Verbose bool

	// Context is the number of unified diff context lines. Zero means 3.
	Context int
}

// Render writes a human-readable summary of the report.
//
// pairs must be the batch the report was assembled from; it supplies the
// call identity and, in verbose mode, the raw return values.
func Render(w io.Writer, r Report, pairs []matching.Pair, opts RenderOptions) error {
	var b strings.Builder

	if !r.HasFindings() {
		fmt.Fprintf(&b, "%s No differences found across %d invocation pairs\n",
			okStyle.Render("✓"), len(pairs))
		_, err := io.WriteString(w, b.String())
		return err
	}

	fmt.Fprintln(&b, titleStyle.Render("Differences found"))
	fmt.Fprintf(&b, "%s\n\n", mutedStyle.Render(summaryLine(r, len(pairs))))

	for i, diffs := range r {
		if len(diffs) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s %s\n", pathStyle.Render(fmt.Sprintf("#%d", i)), pairLabel(pairs, i))
		for _, d := range diffs {
			style := typeStyles[d.Type]
			path := d.Path
			if path == "" {
				path = "/"
			}
			fmt.Fprintf(&b, "  %s %s %s\n", style.Render(fmt.Sprintf("%-13s", d.Type)), pathStyle.Render(path), d.Message)
		}
		if opts.Verbose && i < len(pairs) {
			if diff := unifiedReturnDiff(pairs[i], opts.Context); diff != "" {
				b.WriteString(indent(diff, "    "))
			}
		}
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func summaryLine(r Report, pairs int) string {
	counts := r.CountByType()
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, string(t))
	}
	sort.Strings(types)

	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, fmt.Sprintf("%s=%d", t, counts[compare.DifferenceType(t)]))
	}
	return fmt.Sprintf("%d differences in %d invocation pairs (%s)", r.Count(), pairs, strings.Join(parts, ", "))
}

func pairLabel(pairs []matching.Pair, i int) string {
	if i >= len(pairs) {
		return ""
	}
	p := pairs[i]
	switch {
	case p.Pre != nil && p.Post != nil:
		return p.Pre.Target()
	case p.Pre != nil:
		return p.Pre.Target() + mutedStyle.Render(" (no post-upgrade counterpart)")
	case p.Post != nil:
		return p.Post.Target() + mutedStyle.Render(" (no pre-upgrade counterpart)")
	default:
		return ""
	}
}

// unifiedReturnDiff diffs the pretty-printed return values of a pair.
func unifiedReturnDiff(p matching.Pair, context int) string {
	if context <= 0 {
		context = 3
	}
	var pre, post string
	if p.Pre != nil {
		pre = prettyJSON(p.Pre.ReturnValue)
	}
	if p.Post != nil {
		post = prettyJSON(p.Post.ReturnValue)
	}

	u := difflib.UnifiedDiff{
		A:        difflib.SplitLines(pre),
		B:        difflib.SplitLines(post),
		FromFile: "pre",
		ToFile:   "post",
		Context:  context,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return ""
	}
	return s
}

// prettyJSON indents valid JSON and returns anything else unchanged.
func prettyJSON(text string) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(text), "", "  "); err != nil {
		return text
	}
	return buf.String()
}

func indent(s, prefix string) string {
	lines := strings.SplitAfter(s, "\n")
	var b strings.Builder
	for _, l := range lines {
		if l == "" {
			continue
		}
		b.WriteString(prefix)
		b.WriteString(l)
	}
	if !strings.HasSuffix(s, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}
