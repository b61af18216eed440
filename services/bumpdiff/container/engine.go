// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package container runs a project's instrumented test suite inside its
// Docker image and extracts the resulting project tree to disk.
package container

import (
	"context"
	"errors"
)

// Sentinel errors for container operations.
var (
	// ErrImageUnavailable indicates the image is neither local nor pullable.
	ErrImageUnavailable = errors.New("image unavailable")

	// ErrCopyFailed indicates the project tree could not be copied out.
	ErrCopyFailed = errors.New("copy from container failed")

	// ErrUnsafeArchive indicates an archive entry that would escape the
	// destination directory.
	ErrUnsafeArchive = errors.New("unsafe archive entry")
)

// Mount is a host path made visible inside the container.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// RunSpec describes one instrumented test run.
type RunSpec struct {
	Image      string
	Cmd        []string
	WorkingDir string
	Mounts     []Mount
}

// RunResult is the outcome of a finished run. The container is kept so its
// files can be copied; callers must Remove it.
type RunResult struct {
	ContainerID string
	ExitCode    int64
}

// Engine is the container runtime the extractor drives.
//
// *DockerEngine implements it against the Docker Engine API.
type Engine interface {
	// EnsureImage makes the image available locally, pulling it if needed.
	EnsureImage(ctx context.Context, image string) error

	// Run creates and starts a container and waits for it to stop.
	Run(ctx context.Context, spec RunSpec) (RunResult, error)

	// CopyOut copies srcPath from the container into destDir.
	CopyOut(ctx context.Context, containerID, srcPath, destDir string) error

	// Remove force-removes the container.
	Remove(ctx context.Context, containerID string) error
}
