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
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/bumpdiff/services/bumpdiff/compare"
)

func runCompare(cmd *cobra.Command, args []string) error {
	left, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	right, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}

	diffs, err := compare.CompareText(string(left), string(right))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(diffs); err != nil {
			return err
		}
	} else {
		for _, d := range diffs {
			fmt.Fprintf(out, "%-13s %s\n", d.Type, d)
		}
	}
	if len(diffs) > 0 {
		return errDifferencesFound
	}
	return nil
}
