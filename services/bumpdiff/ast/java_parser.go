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
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
)

const (
	// DefaultMaxFileSize is the largest file the parser accepts.
	DefaultMaxFileSize = 10 * 1024 * 1024

	// WarnFileSize is the size above which parsing logs a warning.
	WarnFileSize = 1024 * 1024
)

// nodeKinds maps tree-sitter Java node types to element kinds. Types not
// listed are KindOther.
var nodeKinds = map[string]ElementKind{
	"class_declaration":                   KindClass,
	"interface_declaration":               KindInterface,
	"enum_declaration":                    KindEnum,
	"record_declaration":                  KindRecord,
	"annotation_type_declaration":         KindAnnotationType,
	"method_declaration":                  KindMethod,
	"annotation_type_element_declaration": KindMethod,
	"constructor_declaration":             KindConstructor,
	"compact_constructor_declaration":     KindConstructor,
	"field_declaration":                   KindField,
	"constant_declaration":                KindField,
	"enum_constant":                       KindField,
	"marker_annotation":                   KindAnnotation,
	"annotation":                          KindAnnotation,
	"method_invocation":                   KindInvocation,
	"object_creation_expression":          KindConstructorCall,
	"explicit_constructor_invocation":     KindConstructorCall,
	"block":                               KindBlock,
	"constructor_body":                    KindBlock,
	"if_statement":                        KindControlFlow,
	"while_statement":                     KindControlFlow,
	"do_statement":                        KindControlFlow,
	"for_statement":                       KindControlFlow,
	"enhanced_for_statement":              KindControlFlow,
	"try_statement":                       KindControlFlow,
	"try_with_resources_statement":        KindControlFlow,
	"catch_clause":                        KindControlFlow,
	"finally_clause":                      KindControlFlow,
	"switch_expression":                   KindControlFlow,
	"return_statement":                    KindControlFlow,
	"field_access":                        KindReference,
	"type_identifier":                     KindReference,
	"identifier":                          KindReference,
}

// JavaParser turns Java source into elements using tree-sitter.
//
// Thread Safety:
//
//	Safe for concurrent use; every Parse call creates its own tree-sitter
//	parser.
type JavaParser struct {
	maxFileSize int64
	logger      *slog.Logger
}

// JavaParserOption configures a JavaParser.
type JavaParserOption func(*JavaParser)

// WithMaxFileSize sets the largest accepted file in bytes.
func WithMaxFileSize(n int64) JavaParserOption {
	return func(p *JavaParser) {
		p.maxFileSize = n
	}
}

// WithParserLogger sets the parser's logger. Defaults to slog.Default().
func WithParserLogger(l *slog.Logger) JavaParserOption {
	return func(p *JavaParser) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewJavaParser creates a JavaParser.
func NewJavaParser(opts ...JavaParserOption) *JavaParser {
	p := &JavaParser{
		maxFileSize: DefaultMaxFileSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse extracts the elements of one Java source file.
//
// Description:
//
//	Walks the tree-sitter syntax tree in pre-order and records every named
//	node except comments as an Element. IDs are assigned in that order, so
//	a parent always has a smaller ID than its children. Syntax errors do
//	not fail the parse; the elements around them are still produced.
//
// Inputs:
//   - ctx: Context for cancellation. Checked before and after parsing.
//   - content: Raw source bytes. Must be valid UTF-8.
//   - filePath: Path relative to the project root, slash separated.
//
// Outputs:
//   - *File: The file's elements with file-local IDs. Never nil on success.
//   - error: ErrFileTooLarge, ErrInvalidContent or ErrParseFailed wrapped in
//     a *ParseError, or a context error.
//
// Thread Safety:
//
//	This method is safe for concurrent use.
func (p *JavaParser) Parse(ctx context.Context, content []byte, filePath string) (file *File, err error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}

	start := time.Now()
	defer func() {
		n := 0
		if file != nil {
			n = len(file.Elements)
		}
		recordParseMetrics(ctx, time.Since(start), n, err == nil)
	}()

	if int64(len(content)) > p.maxFileSize {
		return nil, WrapParseError(ErrFileTooLarge, filePath,
			fmt.Sprintf("size %d exceeds limit %d", len(content), p.maxFileSize))
	}
	if len(content) > WarnFileSize {
		p.logger.Warn("parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}
	if !utf8.Valid(content) {
		return nil, WrapParseError(ErrInvalidContent, filePath, "content is not valid UTF-8")
	}

	parser := sitter.NewParser()
	parser.SetLanguage(java.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, WrapParseError(fmt.Errorf("%w: %v", ErrParseFailed, err), filePath, "tree-sitter parse failed")
	}
	if tree == nil {
		return nil, WrapParseError(ErrParseFailed, filePath, "tree-sitter returned no tree")
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled after tree-sitter: %w", err)
	}

	root := tree.RootNode()
	if root.HasError() {
		p.logger.Debug("java file has syntax errors",
			slog.String("file", filePath))
	}

	w := &walker{
		content: content,
		file: &File{
			Path:     filePath,
			Elements: make([]Element, 0, 256),
		},
		base: path.Base(filePath),
	}
	w.walk(root)
	return w.file, nil
}

type walker struct {
	content []byte
	file    *File
	base    string
}

type pending struct {
	node   *sitter.Node
	parent ElementID
}

func (w *walker) text(n *sitter.Node) string {
	return string(w.content[n.StartByte():n.EndByte()])
}

func (w *walker) walk(root *sitter.Node) {
	stack := make([]pending, 0, 64)
	stack = pushChildren(stack, root, NoElement)

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := cur.node
		switch n.Type() {
		case "line_comment", "block_comment":
			continue
		case "package_declaration":
			w.file.Package = w.packageName(n)
		}

		id := ElementID(len(w.file.Elements))
		w.file.Elements = append(w.file.Elements, w.element(n, id, cur.parent))
		if cur.parent != NoElement {
			parent := &w.file.Elements[cur.parent]
			parent.Children = append(parent.Children, id)
		}
		stack = pushChildren(stack, n, id)
	}
}

// pushChildren pushes the named children of n in reverse so they pop in
// document order.
func pushChildren(stack []pending, n *sitter.Node, parent ElementID) []pending {
	for i := int(n.ChildCount()) - 1; i >= 0; i-- {
		child := n.Child(i)
		if child == nil || !child.IsNamed() {
			continue
		}
		stack = append(stack, pending{node: child, parent: parent})
	}
	return stack
}

func (w *walker) element(n *sitter.Node, id, parent ElementID) Element {
	kind := nodeKinds[n.Type()]
	e := Element{
		ID:       id,
		Kind:     kind,
		NodeType: n.Type(),
		File:     w.base,
		Path:     w.file.Path,
		Line:     int(n.StartPoint().Row) + 1,
		EndLine:  int(n.EndPoint().Row) + 1,
		Parent:   parent,
	}

	switch {
	case kind.IsType(), kind.IsExecutable():
		e.Name = w.fieldText(n, "name")
		w.modifiers(n, &e)
	case kind == KindField:
		e.Name = w.fieldName(n)
		w.modifiers(n, &e)
		if n.Type() != "field_declaration" {
			e.Static = true
		}
	case kind == KindAnnotation:
		e.Name = simpleName(w.fieldText(n, "name"))
	case kind == KindInvocation:
		e.Target = w.fieldText(n, "name")
	case kind == KindConstructorCall:
		if t := n.ChildByFieldName("type"); t != nil {
			e.Target = simpleName(stripTypeArgs(w.text(t)))
		}
	case kind == KindReference:
		if f := n.ChildByFieldName("field"); f != nil {
			e.Target = w.text(f)
		} else {
			e.Target = w.text(n)
		}
	}
	return e
}

func (w *walker) fieldText(n *sitter.Node, field string) string {
	if c := n.ChildByFieldName(field); c != nil {
		return w.text(c)
	}
	return ""
}

// fieldName returns the first declared variable name of a field, or the
// constant name of an enum constant.
func (w *walker) fieldName(n *sitter.Node) string {
	if n.Type() == "enum_constant" {
		return w.fieldText(n, "name")
	}
	if d := n.ChildByFieldName("declarator"); d != nil {
		return w.fieldText(d, "name")
	}
	return ""
}

// modifiers reads annotations and the static keyword from a declaration's
// modifiers node.
func (w *walker) modifiers(n *sitter.Node, e *Element) {
	for i := 0; i < int(n.ChildCount()); i++ {
		mods := n.Child(i)
		if mods == nil || mods.Type() != "modifiers" {
			continue
		}
		for j := 0; j < int(mods.ChildCount()); j++ {
			m := mods.Child(j)
			switch m.Type() {
			case "static":
				e.Static = true
			case "marker_annotation", "annotation":
				e.Annotations = append(e.Annotations, simpleName(w.fieldText(m, "name")))
			}
		}
	}
}

func (w *walker) packageName(n *sitter.Node) string {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() == "scoped_identifier" || c.Type() == "identifier" {
			return w.text(c)
		}
	}
	return ""
}

func simpleName(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func stripTypeArgs(name string) string {
	if i := strings.IndexByte(name, '<'); i >= 0 {
		return name[:i]
	}
	return name
}
