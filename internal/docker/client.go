// Package docker wraps the Docker SDK with the container operations the
// backup and restore flows need.
package docker

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/rs/zerolog"
)

const stopTimeoutSeconds = 30

// Client wraps the Docker client with utility methods.
type Client struct {
	docker *client.Client
	log    zerolog.Logger
}

// NewClient creates a Docker client from the environment and verifies the
// daemon is reachable.
func NewClient(log zerolog.Logger) (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	if _, err := cli.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("cannot connect to Docker daemon: %w", err)
	}

	return &Client{docker: cli, log: log}, nil
}

// ContainerNames returns the names of all containers, running or stopped.
func (c *Client) ContainerNames(ctx context.Context) ([]string, error) {
	containers, err := c.docker.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	var names []string
	for _, ctr := range containers {
		for _, name := range ctr.Names {
			names = append(names, strings.TrimPrefix(name, "/"))
		}
	}
	return names, nil
}

// FindContainer retrieves container information by name or ID prefix.
func (c *Client) FindContainer(ctx context.Context, name string) (*types.Container, error) {
	containers, err := c.docker.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	for _, ctr := range containers {
		if ctr.ID == name || strings.HasPrefix(ctr.ID, name) {
			return &ctr, nil
		}
		for _, containerName := range ctr.Names {
			if strings.TrimPrefix(containerName, "/") == name {
				return &ctr, nil
			}
		}
	}

	return nil, fmt.Errorf("container '%s' not found", name)
}

// ContainerStatus returns the status string reported for a container,
// e.g. "Up 3 minutes".
func (c *Client) ContainerStatus(ctx context.Context, name string) (string, error) {
	ctr, err := c.FindContainer(ctx, name)
	if err != nil {
		return "", err
	}
	return ctr.Status, nil
}

// IsContainerRunning checks whether a container is currently running.
func (c *Client) IsContainerRunning(ctx context.Context, containerID string) (bool, error) {
	info, err := c.docker.ContainerInspect(ctx, containerID)
	if err != nil {
		return false, err
	}
	return info.State.Running, nil
}

// StopContainer stops a container by name and reports whether it was running
// before the call.
func (c *Client) StopContainer(ctx context.Context, name string) (bool, error) {
	ctr, err := c.FindContainer(ctx, name)
	if err != nil {
		return false, err
	}

	wasRunning, err := c.IsContainerRunning(ctx, ctr.ID)
	if err != nil {
		return false, err
	}

	if wasRunning {
		c.log.Info().Str("container", name).Msg("stopping container")
		timeout := stopTimeoutSeconds
		err = c.docker.ContainerStop(ctx, ctr.ID, container.StopOptions{Timeout: &timeout})
		if err != nil {
			return wasRunning, fmt.Errorf("failed to stop container '%s': %w", name, err)
		}
	}

	return wasRunning, nil
}

// StartContainer starts a container by name or ID.
func (c *Client) StartContainer(ctx context.Context, name string) error {
	c.log.Info().Str("container", name).Msg("starting container")
	if err := c.docker.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container '%s': %w", name, err)
	}
	return nil
}
