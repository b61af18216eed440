// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package invocation models the method calls recorded by the instrumentation
// agent and reads them from the newline-delimited invocation log.
package invocation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	// ProjectDir is the project source tree inside an extracted run directory.
	ProjectDir = "project"

	// LogFile is the invocation log inside an extracted run directory.
	LogFile = ProjectDir + "/method_returns.json"
)

// ErrMalformedLine indicates a log line that is not a JSON object.
var ErrMalformedLine = errors.New("malformed invocation line")

// StackFrame is one call-site frame, as captured at call time.
type StackFrame struct {
	DeclaringClass string `json:"declaringClass"`
	MethodName     string `json:"methodName"`
	FileName       string `json:"fileName"`
	LineNumber     int    `json:"lineNumber"`
}

// String renders the frame the way a JVM stack trace does.
func (f StackFrame) String() string {
	loc := "Unknown Source"
	if f.FileName != "" {
		loc = f.FileName
		if f.LineNumber > 0 {
			loc += ":" + strconv.Itoa(f.LineNumber)
		}
	}
	return fmt.Sprintf("%s.%s(%s)", f.DeclaringClass, f.MethodName, loc)
}

// MethodInvocation is one recorded call of the instrumented method.
//
// StackTrace is innermost-first. Arguments and ReturnValue hold serialized
// value graphs as JSON text.
//
// Thread Safety:
//
//	Immutable once read; safe to share between goroutines.
type MethodInvocation struct {
	ClassName   string       `json:"className"`
	MethodName  string       `json:"methodName"`
	StackTrace  []StackFrame `json:"stackTrace"`
	Arguments   string       `json:"arguments"`
	ReturnValue string       `json:"returnValue"`
}

// Target returns the call site identity as "Class:method".
func (m *MethodInvocation) Target() string {
	return m.ClassName + ":" + m.MethodName
}

// ParseLine decodes one invocation log line.
//
// Description:
//
//	The payload fields are normally JSON strings holding encoded JSON; a
//	payload written as a bare JSON value is accepted as-is. Unknown fields,
//	including extra stack frame fields, are ignored.
//
// Inputs:
//   - line: One line of the log, without the trailing newline.
//
// Outputs:
//   - MethodInvocation: The decoded call.
//   - error: ErrMalformedLine (wrapped) if the line is not a JSON object.
func ParseLine(line []byte) (MethodInvocation, error) {
	if !gjson.ValidBytes(line) {
		return MethodInvocation{}, fmt.Errorf("%w: invalid JSON", ErrMalformedLine)
	}
	root := gjson.ParseBytes(line)
	if !root.IsObject() {
		return MethodInvocation{}, fmt.Errorf("%w: not an object", ErrMalformedLine)
	}

	inv := MethodInvocation{
		ClassName:   root.Get("className").String(),
		MethodName:  root.Get("methodName").String(),
		Arguments:   payload(root.Get("arguments")),
		ReturnValue: payload(root.Get("returnValue")),
	}

	frames := root.Get("stackTrace")
	if frames.Exists() && !frames.IsArray() && frames.Type != gjson.Null {
		return MethodInvocation{}, fmt.Errorf("%w: stackTrace is not an array", ErrMalformedLine)
	}
	frames.ForEach(func(_, f gjson.Result) bool {
		inv.StackTrace = append(inv.StackTrace, StackFrame{
			DeclaringClass: f.Get("declaringClass").String(),
			MethodName:     f.Get("methodName").String(),
			FileName:       f.Get("fileName").String(),
			LineNumber:     int(f.Get("lineNumber").Int()),
		})
		return true
	})
	return inv, nil
}

func payload(r gjson.Result) string {
	switch {
	case !r.Exists(), r.Type == gjson.Null:
		return ""
	case r.Type == gjson.String:
		return r.Str
	default:
		return r.Raw
	}
}

// Target identifies an instrumented method.
type Target struct {
	Class  string
	Method string
}

// ParseTarget reads the agent's target notation.
//
// Accepts "pkg.Class:method(args)", "pkg.Class:method" and "pkg.Class.method".
func ParseTarget(s string) (Target, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '('); i >= 0 {
		s = s[:i]
	}
	var class, method string
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		class, method = s[:i], s[i+1:]
	} else if i := strings.LastIndexByte(s, '.'); i >= 0 {
		class, method = s[:i], s[i+1:]
	}
	if class == "" || method == "" {
		return Target{}, fmt.Errorf("invalid target method %q", s)
	}
	return Target{Class: class, Method: method}, nil
}

// Matches reports whether the invocation is a call of the target. When
// either class name is unqualified only simple names are compared.
func (t Target) Matches(m *MethodInvocation) bool {
	if m.MethodName != t.Method {
		return false
	}
	if m.ClassName == t.Class {
		return true
	}
	if strings.Contains(m.ClassName, ".") && strings.Contains(t.Class, ".") {
		return false
	}
	return simpleName(m.ClassName) == simpleName(t.Class)
}

// String renders the target as "Class:method".
func (t Target) String() string {
	return t.Class + ":" + t.Method
}

func simpleName(class string) string {
	if i := strings.LastIndexByte(class, '.'); i >= 0 {
		return class[i+1:]
	}
	return class
}
