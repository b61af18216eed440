// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package matching aligns the invocations of a pre-upgrade run with those of
// a post-upgrade run.
//
// Invocations are grouped by the test scope their stack trace resolves to.
// Within a group they pair positionally when both runs recorded the same
// number of calls, and by argument equality otherwise.
package matching

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/bumpdiff/services/bumpdiff/ast"
	"github.com/AleutianAI/bumpdiff/services/bumpdiff/compare"
	"github.com/AleutianAI/bumpdiff/services/bumpdiff/invocation"
	"github.com/AleutianAI/bumpdiff/services/bumpdiff/scope"
	"github.com/AleutianAI/bumpdiff/services/bumpdiff/valuegraph"
)

// Pair is one aligned pre/post invocation. At least one side is set; Post
// is nil for a pre invocation with no counterpart.
type Pair struct {
	Pre  *invocation.MethodInvocation
	Post *invocation.MethodInvocation
}

// ScopeResolver resolves a stack trace to its test scope.
//
// *scope.Resolver implements it.
type ScopeResolver interface {
	ResolveTrace(frames []invocation.StackFrame) (scope.Scope, bool)
}

// Side is one run's invocations and the resolver over that run's sources.
type Side struct {
	Invocations []invocation.MethodInvocation
	Resolver    ScopeResolver
}

// Matcher pairs invocations across two runs.
//
// Thread Safety:
//
//	A Matcher holds only configuration and is safe for concurrent use.
type Matcher struct {
	logger      *slog.Logger
	target      *invocation.Target
	concurrency int
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithLogger sets the matcher's logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Matcher) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithTarget restricts ReadAndMatch to invocations of one target method.
func WithTarget(t invocation.Target) Option {
	return func(m *Matcher) {
		m.target = &t
	}
}

// WithParseConcurrency bounds parallel source parsing in ReadAndMatch.
func WithParseConcurrency(n int) Option {
	return func(m *Matcher) {
		m.concurrency = n
	}
}

// NewMatcher creates a Matcher.
func NewMatcher(opts ...Option) *Matcher {
	m := &Matcher{logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ReadAndMatch loads both runs from extracted directories and matches them.
//
// Description:
//
//	Each directory holds the invocation log at invocation.LogFile and the
//	project sources under invocation.ProjectDir. A missing log means no
//	invocations; a missing project means no invocation resolves. Neither
//	is an error.
//
// Inputs:
//   - ctx: Context for cancellation and tracing.
//   - preDir: Extracted pre-upgrade run.
//   - postDir: Extracted post-upgrade run.
//
// Outputs:
//   - []Pair: Matched pairs. Never nil.
//   - error: Non-nil only when ctx ends while loading sources.
func (m *Matcher) ReadAndMatch(ctx context.Context, preDir, postDir string) ([]Pair, error) {
	pre, err := m.loadSide(ctx, preDir)
	if err != nil {
		return nil, fmt.Errorf("load pre run: %w", err)
	}
	post, err := m.loadSide(ctx, postDir)
	if err != nil {
		return nil, fmt.Errorf("load post run: %w", err)
	}
	return m.Match(ctx, pre, post), nil
}

func (m *Matcher) loadSide(ctx context.Context, dir string) (Side, error) {
	readOpts := []invocation.Option{invocation.WithLogger(m.logger)}
	if m.target != nil {
		readOpts = append(readOpts, invocation.WithTarget(*m.target))
	}
	invs, stats := invocation.ReadLog(ctx, filepath.Join(dir, filepath.FromSlash(invocation.LogFile)), readOpts...)
	m.logger.Info("read invocation log",
		slog.String("dir", dir),
		slog.Int("invocations", stats.Parsed),
		slog.Int("skipped", stats.Skipped),
		slog.Int("filtered", stats.Filtered))

	project, err := ast.LoadProject(ctx, filepath.Join(dir, invocation.ProjectDir),
		ast.WithLogger(m.logger),
		ast.WithConcurrency(m.concurrency))
	if err != nil {
		if ctx.Err() != nil {
			return Side{}, ctx.Err()
		}
		m.logger.Warn("project sources unavailable, no invocation will resolve",
			slog.String("dir", dir),
			slog.String("error", err.Error()))
		project = ast.EmptyProject()
	}

	return Side{Invocations: invs, Resolver: scope.NewResolver(project)}, nil
}

// Match pairs the invocations of two runs.
//
// Description:
//
//	Every invocation is resolved to a test scope through its full stack
//	trace; unresolved invocations are dropped. Groups are joined on the
//	scope key, driven by the pre side: a key seen only in the post run
//	yields nothing. Within a group:
//	  - equal counts pair by recorded order
//	  - otherwise each pre invocation takes the first remaining post
//	    invocation whose arguments show no VALUE_CHANGED or TYPE_CHANGED
//	    difference, or pairs with nothing
//	A group whose fallback fails yields no pairs. Groups are emitted in key
//	order.
//
// Inputs:
//   - ctx: Context for tracing.
//   - pre: The pre-upgrade run.
//   - post: The post-upgrade run.
//
// Outputs:
//   - []Pair: Matched pairs. Never nil.
func (m *Matcher) Match(ctx context.Context, pre, post Side) []Pair {
	ctx, span := tracer.Start(ctx, "matching.Match",
		trace.WithAttributes(
			attribute.Int("matching.pre", len(pre.Invocations)),
			attribute.Int("matching.post", len(post.Invocations)),
		))
	defer span.End()

	preGroups, preKeys := m.group(pre, "pre")
	postGroups, _ := m.group(post, "post")

	pairs := make([]Pair, 0, len(pre.Invocations))
	for _, key := range preKeys {
		pairs = append(pairs, m.matchGroup(ctx, key, preGroups[key], postGroups[key])...)
	}

	span.SetAttributes(
		attribute.Int("matching.groups", len(preKeys)),
		attribute.Int("matching.pairs", len(pairs)),
	)
	recordPairs(ctx, pairs)
	return pairs
}

// group buckets a side's invocations by scope key, keeping recorded order
// within each bucket. Keys are returned sorted.
func (m *Matcher) group(side Side, label string) (map[string][]*invocation.MethodInvocation, []string) {
	groups := make(map[string][]*invocation.MethodInvocation)
	if side.Resolver == nil {
		return groups, nil
	}

	dropped := 0
	for i := range side.Invocations {
		inv := &side.Invocations[i]
		s, ok := side.Resolver.ResolveTrace(inv.StackTrace)
		if !ok {
			dropped++
			continue
		}
		groups[s.Key()] = append(groups[s.Key()], inv)
	}
	if dropped > 0 {
		m.logger.Debug("invocations outside any test scope",
			slog.String("side", label),
			slog.Int("dropped", dropped))
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return groups, keys
}

func (m *Matcher) matchGroup(ctx context.Context, key string, pre, post []*invocation.MethodInvocation) []Pair {
	if len(pre) == len(post) {
		pairs := make([]Pair, len(pre))
		for i := range pre {
			pairs[i] = Pair{Pre: pre[i], Post: post[i]}
		}
		return pairs
	}

	pairs, err := matchByArguments(pre, post)
	if err != nil {
		recordGroupFailure(ctx)
		m.logger.Warn("argument matching failed, group yields no pairs",
			slog.String("scope", key),
			slog.Int("pre", len(pre)),
			slog.Int("post", len(post)),
			slog.String("error", err.Error()))
		return nil
	}
	return pairs
}

// matchByArguments is the greedy fallback for groups of unequal size.
// Panics are converted into an error so one bad group cannot abort a run.
func matchByArguments(pre, post []*invocation.MethodInvocation) (pairs []Pair, err error) {
	defer func() {
		if r := recover(); r != nil {
			pairs, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	args := make(map[*invocation.MethodInvocation]*valuegraph.Node, len(pre)+len(post))
	parse := func(inv *invocation.MethodInvocation) (*valuegraph.Node, error) {
		if n, ok := args[inv]; ok {
			return n, nil
		}
		var n *valuegraph.Node
		if inv.Arguments != "" {
			var err error
			if n, err = valuegraph.Parse(inv.Arguments); err != nil {
				return nil, fmt.Errorf("arguments of %s: %w", inv.Target(), err)
			}
		}
		args[inv] = n
		return n, nil
	}

	remaining := append([]*invocation.MethodInvocation(nil), post...)
	pairs = make([]Pair, 0, len(pre))
	for _, p := range pre {
		left, err := parse(p)
		if err != nil {
			return nil, err
		}
		match := -1
		for i, q := range remaining {
			right, err := parse(q)
			if err != nil {
				return nil, err
			}
			if len(compare.Breaking(compare.Compare(left, right))) == 0 {
				match = i
				break
			}
		}
		if match < 0 {
			pairs = append(pairs, Pair{Pre: p})
			continue
		}
		pairs = append(pairs, Pair{Pre: p, Post: remaining[match]})
		remaining = append(remaining[:match], remaining[match+1:]...)
	}
	return pairs, nil
}
