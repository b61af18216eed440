// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package check

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/bumpdiff/services/bumpdiff/compare"
	"github.com/AleutianAI/bumpdiff/services/bumpdiff/invocation"
	"github.com/AleutianAI/bumpdiff/services/bumpdiff/report"
)

const codecTestJava = `package org.example;

import org.junit.jupiter.api.Test;

class CodecTest {
    @Test
    void roundTrip() {
        codec.encode("x");
    }
}
`

// logLine renders one invocation log record returning {"value": value}.
func logLine(value string) string {
	ret := strconv.Quote(`{"__meta__":{"hash":"r1"},"value":"` + value + `"}`)
	return `{"className":"org.lib.Codec","methodName":"encode",` +
		`"stackTrace":[{"declaringClass":"org.lib.Codec","methodName":"encode","fileName":"Codec.java","lineNumber":3},` +
		`{"declaringClass":"org.example.CodecTest","methodName":"roundTrip","fileName":"CodecTest.java","lineNumber":8}],` +
		`"arguments":"[\"x\"]","returnValue":` + ret + `}`
}

func writeRun(t *testing.T, lines ...string) string {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, invocation.ProjectDir, "src", "test", "java", "org", "example", "CodecTest.java")
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0o755))
	require.NoError(t, os.WriteFile(src, []byte(codecTestJava), 0o644))
	log := filepath.Join(dir, filepath.FromSlash(invocation.LogFile))
	require.NoError(t, os.WriteFile(log, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return dir
}

type fakeExtractor struct {
	pre, post string
	err       error
	calls     [][2]string
}

func (f *fakeExtractor) ExtractPair(_ context.Context, preImage, postImage string) (string, string, error) {
	f.calls = append(f.calls, [2]string{preImage, postImage})
	return f.pre, f.post, f.err
}

func TestRunDirs_DifferenceWritesReport(t *testing.T) {
	out := t.TempDir()
	c := NewChecker(out)

	res, err := c.RunDirs(context.Background(), "upd-1", writeRun(t, logLine("x")), writeRun(t, logLine("y")))
	require.NoError(t, err)

	assert.True(t, res.Found)
	require.Len(t, res.Pairs, 1)
	assert.Equal(t, filepath.Join(out, "upd-1.json"), res.OutputPath)

	written, err := report.Read(res.OutputPath)
	require.NoError(t, err)
	require.Len(t, written, 1)
	require.Len(t, written[0], 1)
	assert.Equal(t, "/value", written[0][0].Path)
	assert.Equal(t, compare.ValueChanged, written[0][0].Type)
}

func TestRunDirs_NoDifferenceWritesNothing(t *testing.T) {
	out := t.TempDir()
	c := NewChecker(out)

	res, err := c.RunDirs(context.Background(), "upd-2", writeRun(t, logLine("x")), writeRun(t, logLine("x")))
	require.NoError(t, err)

	assert.False(t, res.Found)
	assert.Empty(t, res.OutputPath)
	assert.Len(t, res.Report, 1)
	assert.NoFileExists(t, filepath.Join(out, "upd-2.json"))
}

func TestRunDirs_GeneratesID(t *testing.T) {
	c := NewChecker(t.TempDir())
	res, err := c.RunDirs(context.Background(), "", writeRun(t), writeRun(t))
	require.NoError(t, err)
	assert.Len(t, res.ID, 36)
	assert.Empty(t, res.Pairs)
}

func TestRun_UsesExtractor(t *testing.T) {
	x := &fakeExtractor{pre: writeRun(t, logLine("x")), post: writeRun(t, logLine("z"))}
	c := NewChecker(t.TempDir(), WithExtractor(x), WithCompareConcurrency(2))

	res, err := c.Run(context.Background(), Request{ID: "upd-3", PreImage: "lib:1", PostImage: "lib:2"})
	require.NoError(t, err)
	assert.Equal(t, [][2]string{{"lib:1", "lib:2"}}, x.calls)
	assert.True(t, res.Found)
	assert.Equal(t, "upd-3", res.ID)
}

func TestRun_Errors(t *testing.T) {
	_, err := NewChecker(t.TempDir()).Run(context.Background(), Request{PreImage: "a", PostImage: "b"})
	assert.ErrorIs(t, err, ErrNoExtractor)

	boom := errors.New("daemon unreachable")
	c := NewChecker(t.TempDir(), WithExtractor(&fakeExtractor{err: boom}))
	_, err = c.Run(context.Background(), Request{PreImage: "a", PostImage: "b"})
	assert.ErrorIs(t, err, boom)
}
