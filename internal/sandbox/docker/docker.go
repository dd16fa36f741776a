// Package docker implements sandbox.Provisioner and sandbox.Session on top
// of the Docker engine API, adapted from boxed/internal/driver/docker: the
// same client.Client wrapper, idle keep-alive container pattern, tmpfs
// mounts, and orphan garbage collection, narrowed to the sandbox.Session
// lifecycle this domain needs and generalized to use the real
// docker/pkg/stdcopy demultiplexer instead of a hand-rolled header loop.
package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/akshayaggarwal99/sandboxd/internal/sandbox"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/zerolog/log"
)

// ManagedLabel marks every container this provisioner creates, so a fresh
// process can garbage-collect containers orphaned by a previous crash.
const ManagedLabel = "xyz.sandboxd.managed"

// defaultInstallCommand is the package installer invoked by
// Session.Install, with the requested libraries appended as arguments.
var defaultInstallCommand = []string{"pip", "install", "--no-input", "--disable-pip-version-check"}

// Provisioner implements sandbox.Provisioner against a Docker daemon.
type Provisioner struct {
	cli *client.Client
}

// New creates a Provisioner from the ambient Docker environment (DOCKER_HOST
// etc., same as the Docker CLI) and kicks off orphan cleanup in the
// background, mirroring DockerDriver.New. dockerHost, when non-empty,
// overrides the ambient connection with client.WithHost.
func New(dockerHost string) (*Provisioner, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if dockerHost != "" {
		opts = append(opts, client.WithHost(dockerHost))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("sandbox/docker: create client: %w", err)
	}

	go cleanupOrphans(cli)

	return &Provisioner{cli: cli}, nil
}

func cleanupOrphans(cli *client.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	list, err := cli.ContainerList(ctx, types.ContainerListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", ManagedLabel+"=true")),
	})
	if err != nil {
		log.Warn().Err(err).Msg("sandbox/docker: failed to list orphaned containers")
		return
	}

	count := 0
	for _, c := range list {
		if err := cli.ContainerRemove(ctx, c.ID, types.ContainerRemoveOptions{Force: true}); err != nil {
			log.Warn().Str("id", c.ID).Err(err).Msg("sandbox/docker: failed to remove orphan")
			continue
		}
		count++
	}
	if count > 0 {
		log.Info().Int("count", count).Msg("sandbox/docker: removed orphaned containers")
	}
}

func (p *Provisioner) Healthy(ctx context.Context) error {
	_, err := p.cli.Ping(ctx)
	return err
}

func (p *Provisioner) Close() error {
	return p.cli.Close()
}

// Provision starts a long-lived container from image, idling on
// `tail -f /dev/null` so later Exec calls can run the install/driver
// commands inside it, with tmpfs mounts for /tmp and /output so nothing a
// submission writes there survives teardown.
func (p *Provisioner) Provision(ctx context.Context, image string) (sandbox.Session, error) {
	if _, _, err := p.cli.ImageInspectWithRaw(ctx, image); client.IsErrNotFound(err) {
		log.Info().Str("image", image).Msg("sandbox/docker: image not found locally, pulling")
		reader, pullErr := p.cli.ImagePull(ctx, image, types.ImagePullOptions{})
		if pullErr != nil {
			return nil, fmt.Errorf("sandbox/docker: pull image %s: %w", image, pullErr)
		}
		_, _ = io.Copy(io.Discard, reader)
		reader.Close()
	} else if err != nil {
		return nil, fmt.Errorf("sandbox/docker: inspect image: %w", err)
	}

	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{
			{Type: mount.TypeTmpfs, Target: "/tmp"},
			{Type: mount.TypeTmpfs, Target: "/output"},
		},
		NetworkMode: "none",
	}

	resp, err := p.cli.ContainerCreate(ctx,
		&container.Config{
			Image:  image,
			Cmd:    []string{"tail", "-f", "/dev/null"},
			Labels: map[string]string{ManagedLabel: "true"},
		},
		hostConfig,
		nil,
		nil,
		"",
	)
	if err != nil {
		return nil, fmt.Errorf("sandbox/docker: create container: %w", err)
	}

	if err := p.cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		_ = p.cli.ContainerRemove(ctx, resp.ID, types.ContainerRemoveOptions{Force: true})
		return nil, fmt.Errorf("sandbox/docker: start container: %w", err)
	}

	return &Session{cli: p.cli, containerID: resp.ID}, nil
}

// Session implements sandbox.Session against one provisioned container.
type Session struct {
	cli         *client.Client
	containerID string

	mu       sync.Mutex
	torndown bool
}

func (s *Session) checkAlive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.torndown {
		return sandbox.ErrTornDown
	}
	return nil
}

func (s *Session) Install(ctx context.Context, libraries []string) (string, error) {
	if err := s.checkAlive(); err != nil {
		return "", err
	}
	if len(libraries) == 0 {
		return "", nil
	}

	argv := append(append([]string{}, defaultInstallCommand...), libraries...)
	stdout, stderr, exitCode, err := s.Exec(ctx, argv)
	if err != nil {
		return "", fmt.Errorf("sandbox/docker: install exec: %w", err)
	}

	combined := string(stdout) + string(stderr)
	if exitCode != 0 {
		return combined, &sandbox.InstallError{Output: combined}
	}
	return combined, nil
}

func (s *Session) Upload(ctx context.Context, hostDir, containerDir string) error {
	if err := s.checkAlive(); err != nil {
		return err
	}

	if _, _, _, err := s.Exec(ctx, []string{"mkdir", "-p", containerDir}); err != nil {
		return fmt.Errorf("sandbox/docker: ensure destination: %w", err)
	}

	archive, err := packDirectory(hostDir)
	if err != nil {
		return fmt.Errorf("sandbox/docker: pack archive: %w", err)
	}

	if err := s.cli.CopyToContainer(ctx, s.containerID, containerDir, archive, types.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("sandbox/docker: copy to container: %w", err)
	}
	return nil
}

// packDirectory streams dir into a tar archive rooted at "." so unpacking
// into the container's destination directory places files flat, matching
// tarfile.open(...).add(src_dir, arcname=".") in the original runner.
func packDirectory(dir string) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	entries, err := readDirRecursive(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := tw.WriteHeader(e.header); err != nil {
			return nil, fmt.Errorf("tar header for %s: %w", e.header.Name, err)
		}
		if e.content != nil {
			if _, err := tw.Write(e.content); err != nil {
				return nil, fmt.Errorf("tar body for %s: %w", e.header.Name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar: %w", err)
	}
	return &buf, nil
}

// Exec runs argv in the container and demultiplexes stdout/stderr with the
// real stdcopy package rather than a hand-rolled header loop, satisfying
// the hard requirement that stdout is never contaminated by stderr bytes.
func (s *Session) Exec(ctx context.Context, argv []string) ([]byte, []byte, int, error) {
	if err := s.checkAlive(); err != nil {
		return nil, nil, 0, err
	}

	execResp, err := s.cli.ContainerExecCreate(ctx, s.containerID, types.ExecConfig{
		Cmd:          argv,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, nil, 0, fmt.Errorf("sandbox/docker: exec create: %w", err)
	}

	attach, err := s.cli.ContainerExecAttach(ctx, execResp.ID, types.ExecStartCheck{})
	if err != nil {
		return nil, nil, 0, fmt.Errorf("sandbox/docker: exec attach: %w", err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil && err != io.EOF {
		return nil, nil, 0, fmt.Errorf("sandbox/docker: demux exec stream: %w", err)
	}

	inspect, err := s.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("sandbox/docker: exec inspect: %w", err)
	}

	return stdout.Bytes(), stderr.Bytes(), inspect.ExitCode, nil
}

func (s *Session) Teardown(ctx context.Context) error {
	s.mu.Lock()
	if s.torndown {
		s.mu.Unlock()
		return nil
	}
	s.torndown = true
	s.mu.Unlock()

	if err := s.cli.ContainerRemove(ctx, s.containerID, types.ContainerRemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("sandbox/docker: remove container: %w", err)
	}
	return nil
}
