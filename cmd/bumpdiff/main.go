// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command bumpdiff detects semantic breaking changes in dependency updates
// by comparing what a project's tests observe before and after the update.
//
// Exit status is 0 when no differences are found, 1 when differences are
// found and 2 on errors.
package main

import (
	"errors"
	"fmt"
	"os"
)

const (
	exitClean       = 0
	exitDifferences = 1
	exitError       = 2
)

// errDifferencesFound is returned by commands that completed and found
// differences. It maps to exitDifferences and is not printed.
var errDifferencesFound = errors.New("differences found")

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	app.close()

	switch {
	case err == nil:
		return exitClean
	case errors.Is(err, errDifferencesFound):
		return exitDifferences
	default:
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
		return exitError
	}
}
