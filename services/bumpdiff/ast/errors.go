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

import (
	"errors"
	"fmt"
)

// Sentinel errors for source model failures.
//
// These errors can be checked using errors.Is() to determine the
// category of failure without inspecting error messages.
var (
	// ErrParseFailed indicates that tree-sitter produced no tree at all.
	//
	// Syntax errors do not cause this; the parser is error-tolerant and
	// still yields elements for the parts it understood.
	ErrParseFailed = errors.New("parse failed")

	// ErrInvalidContent indicates content that cannot be parsed, such as
	// non-UTF-8 bytes.
	ErrInvalidContent = errors.New("invalid content")

	// ErrFileTooLarge indicates content beyond the parser's size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrProjectNotFound indicates the project root is missing or is not
	// a directory.
	ErrProjectNotFound = errors.New("project not found")
)

// ParseError provides detailed information about a parse failure.
//
// Example:
//
//	file, err := parser.Parse(ctx, content, "src/test/java/AppTest.java")
//	var parseErr *ParseError
//	if errors.As(err, &parseErr) {
//	    fmt.Printf("%s:%d: %s\n", parseErr.FilePath, parseErr.Line, parseErr.Message)
//	}
type ParseError struct {
	// FilePath is the path of the file that failed.
	FilePath string

	// Line is the 1-indexed line of the failure, or 0 if unknown.
	Line int

	// Message describes the error in human-readable form.
	Message string

	// Cause is the underlying error. May be nil.
	Cause error
}

// Error returns "file:line: message", omitting the line when unknown.
func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.FilePath, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.FilePath, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// WrapParseError attaches file context to cause. Returns nil if cause is nil.
func WrapParseError(cause error, filePath string, message string) error {
	if cause == nil {
		return nil
	}
	return &ParseError{FilePath: filePath, Message: message, Cause: cause}
}

// IsParseError reports whether err is or wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
