package driver

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/roomshare/browserd/internal/logging"
)

// ContainerPrefix is the name prefix for all slot containers.
// Slot containers are named "{ContainerPrefix}-{index}".
const ContainerPrefix = "browserd-slot"

// DockerConfig configures the Docker driver.
type DockerConfig struct {
	// Image is the remote-browser container image to run.
	Image string
	// BasePort is the host port for slot 0; slot N uses BasePort+N.
	BasePort int
	// Host is the hostname clients use to reach slot endpoints.
	Host string
	// ExtraArgs are appended to every `docker run` invocation.
	ExtraArgs []string
}

// DockerDriver manages slot containers through the docker CLI.
// Each slot index maps to one long-lived container; allocation mints
// fresh credentials and release restarts the container so the next
// occupant gets a clean browser.
type DockerDriver struct {
	cfg    DockerConfig
	logger *logging.Logger
}

// NewDockerDriver creates a DockerDriver with the given configuration.
func NewDockerDriver(cfg DockerConfig, logger *logging.Logger) *DockerDriver {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &DockerDriver{
		cfg:    cfg,
		logger: logger.WithComponent("driver"),
	}
}

// SlotContainerName returns the container name for a slot index.
func SlotContainerName(index int) string {
	return fmt.Sprintf("%s-%d", ContainerPrefix, index)
}

// InitializeSlot starts the container backing the given slot index.
// An already-running container from a previous run is reused.
func (d *DockerDriver) InitializeSlot(ctx context.Context, index int) (string, error) {
	name := SlotContainerName(index)

	if d.isRunning(ctx, name) {
		d.logger.Info("reusing running slot container", "container", name)
		return name, nil
	}

	// Remove any stopped leftover before starting fresh.
	_, _ = d.run(ctx, "rm", "-f", name)

	args := []string{
		"run", "-d",
		"--name", name,
		"-p", fmt.Sprintf("%d:8080", d.cfg.BasePort+index),
	}
	args = append(args, d.cfg.ExtraArgs...)
	args = append(args, d.cfg.Image)

	if out, err := d.run(ctx, args...); err != nil {
		return "", fmt.Errorf("start slot container %s: %w (output: %s)", name, err, out)
	}

	d.logger.Info("slot container started", "container", name, "slot", index)
	return name, nil
}

// AllocateSlot mints fresh credentials for the slot and returns its
// connection info. The container must be running.
func (d *DockerDriver) AllocateSlot(ctx context.Context, index int) (ConnectionInfo, error) {
	name := SlotContainerName(index)
	if !d.isRunning(ctx, name) {
		return ConnectionInfo{}, fmt.Errorf("slot container %s is not running", name)
	}

	return ConnectionInfo{
		SlotID:     name,
		Index:      index,
		Endpoint:   fmt.Sprintf("ws://%s:%d/ws", d.cfg.Host, d.cfg.BasePort+index),
		UserToken:  newToken(),
		AdminToken: newToken(),
	}, nil
}

// ReleaseSlot restarts the slot's container so browser state from the
// previous session is discarded.
func (d *DockerDriver) ReleaseSlot(ctx context.Context, slotID string) error {
	if out, err := d.run(ctx, "restart", slotID); err != nil {
		return fmt.Errorf("restart slot container %s: %w (output: %s)", slotID, err, out)
	}
	d.logger.Info("slot container reset", "container", slotID)
	return nil
}

// HealthCheck reports whether the slot's container is running.
func (d *DockerDriver) HealthCheck(ctx context.Context, slotID string) bool {
	return d.isRunning(ctx, slotID)
}

// ListRunning returns the names of all running slot containers.
func (d *DockerDriver) ListRunning(ctx context.Context) (map[string]struct{}, error) {
	out, err := d.run(ctx,
		"ps",
		"--filter", "name="+ContainerPrefix+"-",
		"--format", "{{.Names}}",
	)
	if err != nil {
		return nil, fmt.Errorf("list slot containers: %w", err)
	}

	running := make(map[string]struct{})
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if name := strings.TrimSpace(line); name != "" {
			running[name] = struct{}{}
		}
	}
	return running, nil
}

// RestartProcess restarts the slot's container in place.
func (d *DockerDriver) RestartProcess(ctx context.Context, slotID string) error {
	if out, err := d.run(ctx, "restart", slotID); err != nil {
		return fmt.Errorf("restart slot container %s: %w (output: %s)", slotID, err, out)
	}
	return nil
}

// Shutdown removes every slot container.
func (d *DockerDriver) Shutdown(ctx context.Context) error {
	running, err := d.ListRunning(ctx)
	if err != nil {
		return err
	}
	var firstErr error
	for name := range running {
		if out, err := d.run(ctx, "rm", "-f", name); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("remove slot container %s: %w (output: %s)", name, err, out)
		}
	}
	return firstErr
}

// isRunning checks a single container's running state via docker inspect.
func (d *DockerDriver) isRunning(ctx context.Context, name string) bool {
	out, err := d.run(ctx, "inspect", "-f", "{{.State.Running}}", name)
	if err != nil {
		return false
	}
	return strings.TrimSpace(out) == "true"
}

// run executes a docker command with a bounded timeout and returns its
// combined output.
func (d *DockerDriver) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "docker", args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.String(), err
}

var _ Driver = (*DockerDriver)(nil)
