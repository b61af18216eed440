// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package container

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tarEntry struct {
	name string
	body string
	dir  bool
}

func makeTar(t *testing.T, entries ...tarEntry) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0o644, Size: int64(len(e.body)), Typeflag: tar.TypeReg}
		if e.dir {
			hdr = &tar.Header{Name: e.name, Mode: 0o755, Typeflag: tar.TypeDir}
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if !e.dir {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return &buf
}

// fakeEngine records calls and serves a canned archive on CopyOut.
type fakeEngine struct {
	ensureErr error
	runErr    error
	exitCode  int64
	archive   func() *bytes.Buffer

	ensured []string
	runs    []RunSpec
	removed []string
}

func (f *fakeEngine) EnsureImage(_ context.Context, image string) error {
	f.ensured = append(f.ensured, image)
	return f.ensureErr
}

func (f *fakeEngine) Run(_ context.Context, spec RunSpec) (RunResult, error) {
	f.runs = append(f.runs, spec)
	id := "c" + string(rune('0'+len(f.runs)))
	return RunResult{ContainerID: id, ExitCode: f.exitCode}, f.runErr
}

func (f *fakeEngine) CopyOut(_ context.Context, _, _, destDir string) error {
	_, err := Untar(f.archive(), destDir)
	return err
}

func (f *fakeEngine) Remove(_ context.Context, id string) error {
	f.removed = append(f.removed, id)
	return nil
}

func projectArchive(t *testing.T) func() *bytes.Buffer {
	return func() *bytes.Buffer {
		return makeTar(t,
			tarEntry{name: "project/", dir: true},
			tarEntry{name: "project/method_returns.json", body: "{}\n"},
			tarEntry{name: "project/src/test/java/AppTest.java", body: "class AppTest {}"},
		)
	}
}

func TestUntar(t *testing.T) {
	dir := t.TempDir()
	n, err := Untar(projectArchive(t)(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := os.ReadFile(filepath.Join(dir, "project", "method_returns.json"))
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(data))
	assert.FileExists(t, filepath.Join(dir, "project", "src", "test", "java", "AppTest.java"))
}

func TestUntar_RejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	_, err := Untar(makeTar(t, tarEntry{name: "../escape.txt", body: "x"}), dir)
	assert.ErrorIs(t, err, ErrUnsafeArchive)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dir), "escape.txt"))
}

func TestUntar_Truncated(t *testing.T) {
	buf := makeTar(t, tarEntry{name: "a.txt", body: "hello world"})
	truncated := bytes.NewReader(buf.Bytes()[:520])
	_, err := Untar(truncated, t.TempDir())
	assert.Error(t, err)
}

func TestExtractor_Command(t *testing.T) {
	x := NewExtractor(&fakeEngine{}, t.TempDir(), "agent.jar", "com.acme.Codec:encode")
	assert.Equal(t, []string{
		"mvn", "test", "-l", "output.log",
		"-DargLine=-javaagent:/instrumentation/semantic-agent.jar=com.acme.Codec:encode",
	}, x.Command())

	x = NewExtractor(&fakeEngine{}, t.TempDir(), "agent.jar", "C:m", WithAgentMount("/a.jar"))
	assert.Equal(t, "-DargLine=-javaagent:/a.jar=C:m", x.Command()[4])
}

func TestExtractor_Extract(t *testing.T) {
	work := t.TempDir()
	eng := &fakeEngine{archive: projectArchive(t)}
	x := NewExtractor(eng, work, "agent.jar", "C:m", WithRunID("run1"))

	dir, err := x.Extract(context.Background(), "registry.local/acme/app:1.0")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(work, "run1", "app_1.0"), dir)
	assert.FileExists(t, filepath.Join(dir, "project", "method_returns.json"))
	assert.Equal(t, []string{"registry.local/acme/app:1.0"}, eng.ensured)
	assert.Equal(t, []string{"c1"}, eng.removed)

	require.Len(t, eng.runs, 1)
	spec := eng.runs[0]
	assert.Equal(t, ContainerProjectDir, spec.WorkingDir)
	require.Len(t, spec.Mounts, 1)
	assert.True(t, spec.Mounts[0].ReadOnly)
	assert.Equal(t, DefaultAgentMount, spec.Mounts[0].Target)
	assert.True(t, filepath.IsAbs(spec.Mounts[0].Source))
}

func TestExtractor_NonZeroExitStillCopies(t *testing.T) {
	eng := &fakeEngine{archive: projectArchive(t), exitCode: 1}
	x := NewExtractor(eng, t.TempDir(), "agent.jar", "C:m")

	dir, err := x.Extract(context.Background(), "app:2")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "project", "method_returns.json"))
}

func TestExtractor_Failures(t *testing.T) {
	eng := &fakeEngine{ensureErr: ErrImageUnavailable}
	x := NewExtractor(eng, t.TempDir(), "agent.jar", "C:m")
	_, err := x.Extract(context.Background(), "missing:1")
	assert.ErrorIs(t, err, ErrImageUnavailable)
	assert.Empty(t, eng.runs)

	boom := errors.New("start failed")
	eng = &fakeEngine{runErr: boom}
	x = NewExtractor(eng, t.TempDir(), "agent.jar", "C:m")
	_, err = x.Extract(context.Background(), "app:1")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"c1"}, eng.removed)
}

func TestExtractor_ExtractPair(t *testing.T) {
	eng := &fakeEngine{archive: projectArchive(t)}
	x := NewExtractor(eng, t.TempDir(), "agent.jar", "C:m")

	pre, post, err := x.ExtractPair(context.Background(), "app:1", "app:2")
	require.NoError(t, err)
	assert.NotEqual(t, pre, post)
	assert.Len(t, eng.removed, 2)

	_, _, err = x.ExtractPair(context.Background(), "a/app:1", "b/app:1")
	assert.Error(t, err)
}

func TestDirName(t *testing.T) {
	tests := map[string]string{
		"ghcr.io/org/app:1.2":    "app_1.2",
		"app":                    "app",
		"localhost:5000/x/y:tag": "y_tag",
		"repo@sha256:abc":        "repo_sha256_abc",
		"..":                     "image",
	}
	for in, want := range tests {
		assert.Equal(t, want, DirName(in), in)
	}
}
