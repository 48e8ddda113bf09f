// Package docker implements the imdocker input: periodic container
// enumeration, a multiplexed streaming log fetch per container, an
// 8-byte-frame demultiplexer, and regex-based multi-line reassembly.
package docker

import (
	"context"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	dockerclient "github.com/docker/docker/client"
	"github.com/rsyslog-go/daemon/internal/ports"
)

// StartRegexLabel is the container label whose value, if present, is
// compiled once per container and drives multi-line reassembly.
const StartRegexLabel = "imdocker.startregex"

// engineClient adapts the Docker Engine API client to the narrow
// ports.DockerClient surface the input consumes.
type engineClient struct {
	api *dockerclient.Client
}

var _ ports.DockerClient = (*engineClient)(nil)

// NewEngineClient dials the Docker Engine at endpoint (a unix:// socket
// path or tcp:// URL) pinned to apiVersion.
func NewEngineClient(endpoint, apiVersion string) (ports.DockerClient, error) {
	opts := []dockerclient.Opt{
		dockerclient.WithHost(endpoint),
	}
	if apiVersion != "" {
		opts = append(opts, dockerclient.WithVersion(apiVersion))
	} else {
		opts = append(opts, dockerclient.WithAPIVersionNegotiation())
	}
	api, err := dockerclient.NewClientWithOpts(opts...)
	if err != nil {
		return nil, err
	}
	return &engineClient{api: api}, nil
}

// ListContainers enumerates running containers; a non-empty sinceID
// restricts the result to containers created after that one, the
// incremental poll the input relies on.
func (c *engineClient) ListContainers(ctx context.Context, sinceID string) ([]ports.ContainerSummary, error) {
	opts := container.ListOptions{}
	if sinceID != "" {
		opts.Filters = filters.NewArgs(filters.Arg("since", sinceID))
	}
	list, err := c.api.ContainerList(ctx, opts)
	if err != nil {
		return nil, err
	}

	out := make([]ports.ContainerSummary, 0, len(list))
	for _, item := range list {
		name := ""
		if len(item.Names) > 0 {
			name = strings.TrimPrefix(item.Names[0], "/")
		}
		out = append(out, ports.ContainerSummary{
			ID:      item.ID,
			Name:    name,
			ImageID: item.ImageID,
			Created: item.Created,
			Labels:  item.Labels,
		})
	}
	return out, nil
}

// StreamLogs opens the container's follow-mode multiplexed log stream.
// tail limits history to the last line; the input sets it on its first
// poll, and on every poll when RetrieveNewLogsFromStart is off.
func (c *engineClient) StreamLogs(ctx context.Context, containerID string, tail bool) (ports.LogStream, error) {
	opts := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	}
	if tail {
		opts.Tail = "1"
	}
	rc, err := c.api.ContainerLogs(ctx, containerID, opts)
	if err != nil {
		return nil, err
	}
	return rc, nil
}
