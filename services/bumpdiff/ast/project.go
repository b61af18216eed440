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
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// skipDirs are directories never searched for sources.
var skipDirs = map[string]bool{
	".git":         true,
	".idea":        true,
	".gradle":      true,
	"target":       true,
	"build":        true,
	"out":          true,
	"node_modules": true,
}

type posKey struct {
	file string
	line int
}

// Project is the source model of a whole Java project.
//
// Thread Safety:
//
//	Read-only after LoadProject returns; safe for concurrent use.
type Project struct {
	root     string
	files    []string
	packages map[string]string
	elements []Element
	byPos    map[posKey][]ElementID
	byName   map[ElementKind]map[string][]ElementID
}

// ProjectOption configures LoadProject.
type ProjectOption func(*projectOptions)

type projectOptions struct {
	concurrency int
	logger      *slog.Logger
	parser      *JavaParser
}

// WithConcurrency bounds the number of files parsed at once. Values below
// one mean GOMAXPROCS.
func WithConcurrency(n int) ProjectOption {
	return func(o *projectOptions) {
		o.concurrency = n
	}
}

// WithLogger sets the logger for skipped files. Defaults to slog.Default().
func WithLogger(l *slog.Logger) ProjectOption {
	return func(o *projectOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithParser replaces the default JavaParser.
func WithParser(p *JavaParser) ProjectOption {
	return func(o *projectOptions) {
		if p != nil {
			o.parser = p
		}
	}
}

// LoadProject parses every Java source file under root.
//
// Description:
//
//	Walks root for *.java files, skipping build output and tool
//	directories, and parses them in parallel. A file that cannot be read
//	or parsed is logged and left out of the model; it does not fail the
//	load. Files are adopted in path order so element IDs are stable.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - root: Project root directory.
//   - opts: WithConcurrency, WithLogger, WithParser.
//
// Outputs:
//   - *Project: The model. Never nil on success.
//   - error: ErrProjectNotFound if root is not a directory, or the context
//     error if ctx ends during the load.
func LoadProject(ctx context.Context, root string, opts ...ProjectOption) (*Project, error) {
	o := projectOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.concurrency < 1 {
		o.concurrency = runtime.GOMAXPROCS(0)
	}
	if o.parser == nil {
		o.parser = NewJavaParser(WithParserLogger(o.logger))
	}

	ctx, span := tracer.Start(ctx, "ast.LoadProject",
		trace.WithAttributes(attribute.String("ast.root", root)))
	defer span.End()

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, root)
	}

	paths, err := javaFiles(root)
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	parsed := make([]*File, len(paths))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, rel := range paths {
		g.Go(func() error {
			content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
			if err != nil {
				o.logger.Warn("skipping unreadable source file",
					slog.String("file", rel),
					slog.String("error", err.Error()))
				return nil
			}
			f, err := o.parser.Parse(gCtx, content, rel)
			if err != nil {
				if gCtx.Err() != nil {
					return gCtx.Err()
				}
				o.logger.Warn("skipping unparsable source file",
					slog.String("file", rel),
					slog.String("error", err.Error()))
				return nil
			}
			parsed[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p := newProject(root)
	for _, f := range parsed {
		if f != nil {
			p.adopt(f)
		}
	}

	span.SetAttributes(
		attribute.Int("ast.files", len(p.files)),
		attribute.Int("ast.elements", len(p.elements)),
	)
	o.logger.Debug("loaded source model",
		slog.String("root", root),
		slog.Int("files", len(p.files)),
		slog.Int("elements", len(p.elements)))
	return p, nil
}

// NewProject builds a model from already parsed files, in the given order.
func NewProject(root string, files ...*File) *Project {
	p := newProject(root)
	for _, f := range files {
		p.adopt(f)
	}
	return p
}

// EmptyProject returns a model with no elements. Every lookup misses.
func EmptyProject() *Project {
	return newProject("")
}

func newProject(root string) *Project {
	return &Project{
		root:     root,
		packages: make(map[string]string),
		byPos:    make(map[posKey][]ElementID),
		byName:   make(map[ElementKind]map[string][]ElementID),
	}
}

func javaFiles(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrPermission) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if p != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".java") {
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

// adopt appends a file's elements, shifting their IDs into project space.
func (p *Project) adopt(f *File) {
	offset := ElementID(len(p.elements))
	shift := func(id ElementID) ElementID {
		if id == NoElement {
			return NoElement
		}
		return id + offset
	}

	p.files = append(p.files, f.Path)
	p.packages[f.Path] = f.Package
	for _, e := range f.Elements {
		e.ID = shift(e.ID)
		e.Parent = shift(e.Parent)
		children := make([]ElementID, len(e.Children))
		for i, c := range e.Children {
			children[i] = shift(c)
		}
		e.Children = children
		p.elements = append(p.elements, e)

		key := posKey{file: e.File, line: e.Line}
		p.byPos[key] = append(p.byPos[key], e.ID)

		if e.Name != "" {
			names := p.byName[e.Kind]
			if names == nil {
				names = make(map[string][]ElementID)
				p.byName[e.Kind] = names
			}
			names[e.Name] = append(names[e.Name], e.ID)
		}
	}
}

// Root returns the directory the model was loaded from.
func (p *Project) Root() string { return p.root }

// Files returns the relative paths of the parsed files.
func (p *Project) Files() []string { return p.files }

// Len returns the number of elements.
func (p *Project) Len() int { return len(p.elements) }

// Package returns the declared package of a parsed file.
func (p *Project) Package(path string) string { return p.packages[path] }

// Element returns the element with the given ID.
func (p *Project) Element(id ElementID) (*Element, bool) {
	if id < 0 || int(id) >= len(p.elements) {
		return nil, false
	}
	return &p.elements[id], true
}

// Parent returns the parent of id, or NoElement for top-level elements and
// unknown IDs.
func (p *Project) Parent(id ElementID) ElementID {
	e, ok := p.Element(id)
	if !ok {
		return NoElement
	}
	return e.Parent
}

// ElementsAt returns every element that starts at line of a file with the
// given base name, in document order.
func (p *Project) ElementsAt(file string, line int) []ElementID {
	return p.byPos[posKey{file: file, line: line}]
}

// Named returns the elements of a kind declared with the given simple name.
func (p *Project) Named(kind ElementKind, name string) []ElementID {
	return p.byName[kind][name]
}

// Types returns the type declarations with the given simple name, of any
// type kind.
func (p *Project) Types(name string) []ElementID {
	var out []ElementID
	for _, k := range []ElementKind{KindClass, KindInterface, KindEnum, KindRecord, KindAnnotationType} {
		out = append(out, p.byName[k][name]...)
	}
	return out
}

// StaticMembers returns a type's static fields followed by its annotations.
func (p *Project) StaticMembers(typeID ElementID) []ElementID {
	t, ok := p.Element(typeID)
	if !ok || !t.Kind.IsType() {
		return nil
	}

	var fields, annotations []ElementID
	for _, c := range t.Children {
		child := &p.elements[c]
		switch child.NodeType {
		case "modifiers":
			for _, m := range child.Children {
				if p.elements[m].Kind == KindAnnotation {
					annotations = append(annotations, m)
				}
			}
		case "class_body", "interface_body", "enum_body", "annotation_type_body":
			fields = append(fields, p.staticFieldsOf(child)...)
		}
	}
	return append(fields, annotations...)
}

func (p *Project) staticFieldsOf(body *Element) []ElementID {
	var out []ElementID
	for _, c := range body.Children {
		e := &p.elements[c]
		switch {
		case e.Kind == KindField && e.Static:
			out = append(out, c)
		case e.NodeType == "enum_body_declarations":
			out = append(out, p.staticFieldsOf(e)...)
		}
	}
	return out
}

// Ancestor returns the nearest proper ancestor of id satisfying pred.
func (p *Project) Ancestor(id ElementID, pred func(*Element) bool) (ElementID, bool) {
	for cur := p.Parent(id); cur != NoElement; cur = p.Parent(cur) {
		if pred(&p.elements[cur]) {
			return cur, true
		}
	}
	return NoElement, false
}
