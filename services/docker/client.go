// Copyright 2025 Cloudbase Solutions SRL
//
//    Licensed under the Apache License, Version 2.0 (the "License"); you may
//    not use this file except in compliance with the License. You may obtain
//    a copy of the License at
//
//         http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
//    WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
//    License for the specific language governing permissions and limitations
//    under the License.

// Package docker wraps the Docker Engine SDK with the handful of
// operations the external service manager needs: network/volume
// idempotent creation, container lookup and lifecycle, image pulls, and
// health-check polling.
package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

// Client is a thin, error-translating wrapper around the upstream Docker
// API client.
type Client struct {
	api *client.Client
}

// NewClient connects using the standard DOCKER_HOST/DOCKER_* environment
// variables, negotiating the API version with the daemon.
func NewClient() (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("error creating docker client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("error pinging docker daemon: %w", err)
	}
	return &Client{api: cli}, nil
}

func (c *Client) Close() error {
	if c == nil || c.api == nil {
		return nil
	}
	return c.api.Close()
}

// EnsureNetwork creates the shared bridge network if it does not already
// exist, returning its id either way.
func (c *Client) EnsureNetwork(ctx context.Context, name string, labels map[string]string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("network name required")
	}
	args := filters.NewArgs()
	args.Add("name", name)
	list, err := c.api.NetworkList(ctx, types.NetworkListOptions{Filters: args})
	if err != nil {
		return "", err
	}
	for _, item := range list {
		if item.Name == name {
			return item.ID, nil
		}
	}
	resp, err := c.api.NetworkCreate(ctx, name, types.NetworkCreate{
		Driver: "bridge",
		Labels: labels,
	})
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// EnsureVolume creates the named data volume if it does not already exist.
func (c *Client) EnsureVolume(ctx context.Context, name string, labels map[string]string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("volume name required")
	}
	list, err := c.api.VolumeList(ctx, volume.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return "", err
	}
	for _, item := range list.Volumes {
		if item.Name == name {
			return item.Name, nil
		}
	}
	resp, err := c.api.VolumeCreate(ctx, volume.CreateOptions{Name: name, Labels: labels})
	if err != nil {
		return "", err
	}
	return resp.Name, nil
}

// RemoveVolume removes a data volume. Callers treat "not found" as success
// (deletion is idempotent per the failure semantics contract).
func (c *Client) RemoveVolume(ctx context.Context, name string, force bool) error {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	err := c.api.VolumeRemove(ctx, name, force)
	if err != nil && client.IsErrNotFound(err) {
		return nil
	}
	return err
}

// ContainerByName returns the container id and full inspection, or a nil
// inspection (no error) if no container with that name exists.
func (c *Client) ContainerByName(ctx context.Context, name string) (string, *types.ContainerJSON, error) {
	if strings.TrimSpace(name) == "" {
		return "", nil, errors.New("container name required")
	}
	info, err := c.api.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", nil, nil
		}
		return "", nil, err
	}
	return info.ID, &info, nil
}

// PullImage pulls ref and blocks until the pull completes or fails. Used
// to verify an upgrade's target image is fetchable before the running
// container is stopped.
func (c *Client) PullImage(ctx context.Context, ref string) error {
	reader, err := c.api.ImagePull(ctx, ref, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("error pulling image %s: %w", ref, err)
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("error reading pull progress for %s: %w", ref, err)
	}
	return nil
}

// CreateContainer creates (but does not start) a container with the given
// name, config and host config, attached to the given network.
func (c *Client) CreateContainer(ctx context.Context, name, networkName string, cfg *container.Config, hostCfg *container.HostConfig) (string, error) {
	netCfg := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			networkName: {},
		},
	}
	resp, err := c.api.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, name)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) StartContainer(ctx context.Context, containerID string) error {
	return c.api.ContainerStart(ctx, containerID, container.StartOptions{})
}

func (c *Client) StopContainer(ctx context.Context, containerID string, timeout time.Duration) error {
	seconds := int(timeout.Seconds())
	return c.api.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &seconds})
}

// RemoveContainer removes a container, optionally forcing removal of a
// still-running one. Volumes are never implicitly removed: the caller
// owns volume lifecycle explicitly via RemoveVolume.
func (c *Client) RemoveContainer(ctx context.Context, containerID string, force bool) error {
	err := c.api.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: force})
	if err != nil && client.IsErrNotFound(err) {
		return nil
	}
	return err
}

// HostPortFor returns the host port bound to a container's exposed port,
// used to surface the baremetal-mode loopback address.
func (c *Client) HostPortFor(ctx context.Context, containerID string, containerPort int) (string, error) {
	info, err := c.api.ContainerInspect(ctx, containerID)
	if err != nil {
		return "", err
	}
	if info.NetworkSettings == nil {
		return "", fmt.Errorf("container %s has no network settings", containerID)
	}
	key := nat.Port(fmt.Sprintf("%d/tcp", containerPort))
	bindings, ok := info.NetworkSettings.Ports[key]
	if !ok || len(bindings) == 0 {
		return "", fmt.Errorf("no host port bound for %s", key)
	}
	for _, binding := range bindings {
		if strings.TrimSpace(binding.HostPort) != "" {
			return binding.HostPort, nil
		}
	}
	return "", fmt.Errorf("no host port bound for %s", key)
}

// Exec runs cmd inside containerID and returns combined stdout+stderr. A
// non-zero exit code is reported as an error.
func (c *Client) Exec(ctx context.Context, containerID string, cmd []string, env []string) ([]byte, error) {
	execResp, err := c.api.ContainerExecCreate(ctx, containerID, types.ExecConfig{
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          cmd,
		Env:          env,
	})
	if err != nil {
		return nil, err
	}
	attach, err := c.api.ContainerExecAttach(ctx, execResp.ID, types.ExecStartCheck{})
	if err != nil {
		return nil, err
	}
	defer attach.Close()

	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, attach.Reader); err != nil {
		return nil, err
	}
	inspect, err := c.api.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return nil, err
	}
	if inspect.ExitCode != 0 {
		return out.Bytes(), fmt.Errorf("exec %v exited with code %d: %s", cmd, inspect.ExitCode, out.String())
	}
	return out.Bytes(), nil
}

// CopyToContainer writes content as a single file named name into dstPath
// inside containerID, working whether the container is running or
// stopped. Used by restore to materialize a downloaded dump into the
// data volume.
func (c *Client) CopyToContainer(ctx context.Context, containerID, dstPath string, content []byte, mode int64, name string) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{Name: name, Mode: mode, Size: int64(len(content))}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if _, err := tw.Write(content); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return c.api.CopyToContainer(ctx, containerID, dstPath, &buf, types.CopyToContainerOptions{})
}

// WaitHealthy polls a container's health status with exponential back-off
// up to maxWait, per the 4.D health-check contract.
func (c *Client) WaitHealthy(ctx context.Context, containerID string, maxWait time.Duration) error {
	deadline := time.Now().Add(maxWait)
	backoff := 500 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for {
		info, err := c.api.ContainerInspect(ctx, containerID)
		if err != nil {
			return err
		}
		if info.State != nil {
			if info.State.Health == nil {
				// No HEALTHCHECK defined: running is the best signal available.
				if info.State.Running {
					return nil
				}
			} else if info.State.Health.Status == "healthy" {
				return nil
			} else if info.State.Health.Status == "unhealthy" {
				return fmt.Errorf("container %s reported unhealthy", containerID)
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for container %s to become healthy", containerID)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
