package docker

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/sirupsen/logrus"

	"github.com/rodrwan/hookd/internal/dto"
)

// Labels set by docker compose on every container it creates.
const (
	labelWorkingDir = "com.docker.compose.project.working_dir"
	labelService    = "com.docker.compose.service"
)

// Client manages interactions with the Docker daemon.
type Client struct {
	cli *client.Client
}

// NewClient creates a new Docker client from the environment (DOCKER_HOST and friends).
func NewClient() (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("error creating Docker client: %w", err)
	}
	return &Client{cli: cli}, nil
}

// ProjectContainers lists the containers compose created for the project whose
// working directory is dir, stopped ones included.
func (d *Client) ProjectContainers(ctx context.Context, dir string) ([]dto.Container, error) {
	list, err := d.cli.ContainerList(ctx, types.ContainerListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", labelWorkingDir+"="+dir)),
	})
	if err != nil {
		return nil, fmt.Errorf("error listing containers: %w", err)
	}

	containers := make([]dto.Container, 0, len(list))
	for _, c := range list {
		containers = append(containers, toContainer(c))
	}

	logrus.Debugf("found %d containers for %s", len(containers), dir)
	return containers, nil
}

// Close closes the Docker client connection.
func (d *Client) Close() error {
	return d.cli.Close()
}

func toContainer(c types.Container) dto.Container {
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}

	ports := make([]string, 0, len(c.Ports))
	for _, p := range c.Ports {
		ports = append(ports, formatPort(p))
	}

	return dto.Container{
		ID:      c.ID,
		Name:    name,
		Service: c.Labels[labelService],
		Image:   c.Image,
		State:   c.State,
		Status:  c.Status,
		Ports:   ports,
	}
}

// formatPort renders a port the way `docker ps` does, e.g. 0.0.0.0:3000->80/tcp.
func formatPort(p types.Port) string {
	port, err := nat.NewPort(p.Type, strconv.Itoa(int(p.PrivatePort)))
	if err != nil {
		return strconv.Itoa(int(p.PrivatePort))
	}

	if p.PublicPort == 0 {
		return string(port)
	}

	host := p.IP
	if host == "" {
		host = "0.0.0.0"
	}
	return fmt.Sprintf("%s->%s", net.JoinHostPort(host, strconv.Itoa(int(p.PublicPort))), port)
}
