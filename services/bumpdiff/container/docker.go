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
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DockerEngine is an Engine backed by the Docker Engine API.
//
// Thread Safety:
//
//	Safe for concurrent use. The underlying client is created once by
//	NewDockerEngine and released by Close.
type DockerEngine struct {
	cli    *client.Client
	logger *slog.Logger
}

// DockerOption configures NewDockerEngine.
type DockerOption func(*dockerOptions)

type dockerOptions struct {
	host   string
	logger *slog.Logger
}

// WithHost sets the daemon address. Defaults to DOCKER_HOST or the
// platform default socket.
func WithHost(host string) DockerOption {
	return func(o *dockerOptions) {
		o.host = host
	}
}

// WithLogger sets the engine's logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) DockerOption {
	return func(o *dockerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewDockerEngine connects to the Docker daemon.
//
// Outputs:
//   - *DockerEngine: The engine. Callers must Close it.
//   - error: Non-nil if the client cannot be configured.
func NewDockerEngine(opts ...DockerOption) (*DockerEngine, error) {
	o := dockerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	clientOpts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if o.host != "" {
		clientOpts = append(clientOpts, client.WithHost(o.host))
	}
	cli, err := client.NewClientWithOpts(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &DockerEngine{cli: cli, logger: o.logger}, nil
}

// Close releases the client's connections.
func (e *DockerEngine) Close() error {
	return e.cli.Close()
}

// EnsureImage pulls the image unless it is already present.
func (e *DockerEngine) EnsureImage(ctx context.Context, ref string) error {
	ctx, span := tracer.Start(ctx, "container.EnsureImage",
		trace.WithAttributes(attribute.String("container.image", ref)))
	defer span.End()

	if _, err := e.cli.ImageInspect(ctx, ref); err == nil {
		return nil
	} else if !client.IsErrNotFound(err) {
		return fmt.Errorf("inspect image %s: %w", ref, err)
	}

	e.logger.Info("image not present, pulling", slog.String("image", ref))
	rc, err := e.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("%w: pull %s: %v", ErrImageUnavailable, ref, err)
	}
	defer rc.Close()
	// The pull completes only once its progress stream is drained.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("%w: pull %s: %v", ErrImageUnavailable, ref, err)
	}
	e.logger.Info("pulled image", slog.String("image", ref))
	return nil
}

// Run creates and starts a container for spec and waits until it stops.
// A non-zero exit code is reported in the result, not as an error.
func (e *DockerEngine) Run(ctx context.Context, spec RunSpec) (RunResult, error) {
	ctx, span := tracer.Start(ctx, "container.Run",
		trace.WithAttributes(attribute.String("container.image", spec.Image)))
	defer span.End()

	mounts := make([]mount.Mount, 0, len(spec.Mounts))
	for _, m := range spec.Mounts {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	created, err := e.cli.ContainerCreate(ctx,
		&container.Config{Image: spec.Image, Cmd: spec.Cmd, WorkingDir: spec.WorkingDir},
		&container.HostConfig{Mounts: mounts},
		nil, nil, "")
	if err != nil {
		return RunResult{}, fmt.Errorf("create container from %s: %w", spec.Image, err)
	}
	res := RunResult{ContainerID: created.ID}
	for _, w := range created.Warnings {
		e.logger.Warn("container create warning", slog.String("container", created.ID), slog.String("warning", w))
	}

	if err := e.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return res, fmt.Errorf("start container %s: %w", created.ID, err)
	}

	statusCh, errCh := e.cli.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return res, fmt.Errorf("wait for container %s: %w", created.ID, err)
		}
	case status := <-statusCh:
		res.ExitCode = status.StatusCode
		if status.Error != nil {
			return res, fmt.Errorf("wait for container %s: %s", created.ID, status.Error.Message)
		}
	case <-ctx.Done():
		return res, ctx.Err()
	}

	span.SetAttributes(attribute.Int64("container.exit_code", res.ExitCode))
	return res, nil
}

// CopyOut copies srcPath out of the container and unpacks it into destDir.
func (e *DockerEngine) CopyOut(ctx context.Context, containerID, srcPath, destDir string) error {
	ctx, span := tracer.Start(ctx, "container.CopyOut",
		trace.WithAttributes(attribute.String("container.path", srcPath)))
	defer span.End()

	rc, _, err := e.cli.CopyFromContainer(ctx, containerID, srcPath)
	if err != nil {
		return fmt.Errorf("%w: %s:%s: %v", ErrCopyFailed, containerID, srcPath, err)
	}
	defer rc.Close()

	n, err := Untar(rc, destDir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCopyFailed, err)
	}
	span.SetAttributes(attribute.Int("container.files", n))
	return nil
}

// Remove force-removes the container.
func (e *DockerEngine) Remove(ctx context.Context, containerID string) error {
	if err := e.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("remove container %s: %w", containerID, err)
	}
	return nil
}
