// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/bumpdiff/services/bumpdiff/ast"
	"github.com/AleutianAI/bumpdiff/services/bumpdiff/invocation"
	"github.com/AleutianAI/bumpdiff/services/bumpdiff/scope"
)

func runLocate(cmd *cobra.Command, args []string) error {
	frame, err := parsePosition(args[0])
	if err != nil {
		return err
	}

	project, err := ast.LoadProject(cmd.Context(), projectDir,
		ast.WithConcurrency(app.cfg.ParseConcurrency),
		ast.WithLogger(app.log()),
	)
	if err != nil {
		return err
	}

	s, ok := scope.NewResolver(project).Resolve(frame)
	if !ok {
		return fmt.Errorf("no test scope encloses %s", args[0])
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "scope:     %s %s\n", s.Kind, s.Name)
	fmt.Fprintf(out, "key:       %s\n", s.Key())
	if root, ok := project.Element(s.Root); ok {
		fmt.Fprintf(out, "declared:  %s:%d\n", root.Path, root.Line)
	}
	fmt.Fprintf(out, "members:   %d\n", len(s.Members))
	fmt.Fprintf(out, "reachable: %d\n", len(project.Reachable(s.Members...)))
	return nil
}

// parsePosition parses "File.java:LINE" into a frame.
func parsePosition(pos string) (invocation.StackFrame, error) {
	i := strings.LastIndex(pos, ":")
	if i <= 0 {
		return invocation.StackFrame{}, fmt.Errorf("position %q is not File.java:LINE", pos)
	}
	line, err := strconv.Atoi(pos[i+1:])
	if err != nil || line <= 0 {
		return invocation.StackFrame{}, fmt.Errorf("position %q has no valid line number", pos)
	}
	return invocation.StackFrame{FileName: pos[:i], LineNumber: line}, nil
}
