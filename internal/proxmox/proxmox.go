// Package proxmox provides a backend abstraction for managing Proxmox VE
// LXC containers.
//
// This package defines the Backend interface and common types for
// container management. The ShellBackend implementation drives the pct CLI on a
// Proxmox node; the FakeBackend provides deterministic in-memory state for tests.
//
// Backends cover the container lifecycle (create, start, stop, destroy),
// status and config queries, guest IP discovery, and remote execution inside the
// container via pct exec with environment-bound parameters and stdin streaming.
package proxmox

import "context"

// CTID represents a Proxmox container identifier.
type CTID int

// Status represents the runtime state of a container.
type Status string

const (
	// StatusUnknown indicates the container state could not be determined.
	StatusUnknown Status = "unknown"
	// StatusRunning indicates the container is currently running.
	StatusRunning Status = "running"
	// StatusStopped indicates the container is stopped.
	StatusStopped Status = "stopped"
)

// CTConfig contains creation parameters for a container.
type CTConfig struct {
	Hostname      string // Initial container hostname
	OSTemplate    string // Template volume (e.g., "local:vztmpl/debian-12-standard_12.7-1_amd64.tar.zst")
	Cores         int    // Number of CPU cores
	MemoryMB      int    // Memory in megabytes
	SwapMB        int    // Swap in megabytes
	RootfsStorage string // Storage for the root filesystem (e.g., "local-lvm")
	RootfsGB      int    // Root filesystem size in gigabytes
	Bridge        string // Network bridge (e.g., "vmbr0")
	Unprivileged  bool   // Create as an unprivileged container
	Nesting       bool   // Enable the nesting feature (required for Docker inside LXC)
}

// Backend defines the interface for Proxmox container operations.
// ShellBackend and FakeBackend both implement this interface, allowing
// the provisioning pipeline to be tested without a Proxmox node.
type Backend interface {
	// Create creates a new container from an OS template.
	// The target CTID must be unique and not already exist in Proxmox.
	Create(ctx context.Context, ctid CTID, cfg CTConfig) error

	// Start starts a stopped container.
	Start(ctx context.Context, ctid CTID) error

	// Stop stops a running container.
	// Returns ErrCTNotFound if the container does not exist.
	Stop(ctx context.Context, ctid CTID) error

	// Destroy permanently deletes a container and its disks.
	// This operation is irreversible. Returns ErrCTNotFound if the
	// container does not exist.
	Destroy(ctx context.Context, ctid CTID) error

	// Status retrieves the current runtime status of a container.
	Status(ctx context.Context, ctid CTID) (Status, error)

	// Config retrieves the raw configuration map for a container.
	// Returns ErrCTNotFound if the container does not exist.
	Config(ctx context.Context, ctid CTID) (map[string]string, error)

	// Exec runs a command inside the container with bound environment variables.
	// Values in env are passed through the environment, never
	// interpolated into a command string.
	Exec(ctx context.Context, ctid CTID, env map[string]string, argv ...string) (string, error)

	// ExecScript streams a shell script to the container over stdin and runs it
	// with bound environment variables.
	// The script text is static; all per-invocation data travels in env.
	ExecScript(ctx context.Context, ctid CTID, script string, env map[string]string) (string, error)

	// PushFile writes a file inside the container at the given path.
	PushFile(ctx context.Context, ctid CTID, path string, content []byte, perms string) error

	// GuestIP retrieves the container's primary IPv4 address.
	// Falls back to host-side DHCP lease lookup when the in-guest query
	// yields nothing. Returns ErrGuestIPNotFound if no address can be determined.
	GuestIP(ctx context.Context, ctid CTID) (string, error)
}
