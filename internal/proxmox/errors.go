// ABOUTME: This file provides error definitions and the CommandRunner interface used by
// the ShellBackend implementation for executing Proxmox CLI commands.
package proxmox

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrCTNotFound is returned when a container does not exist in Proxmox.
	// This error is returned by Stop, Destroy, and Config operations
	// when the target CTID cannot be found.
	ErrCTNotFound = errors.New("container not found")

	// ErrCTNotRunning is returned when a remote-execution operation targets a
	// container that is not running.
	ErrCTNotRunning = errors.New("container not running")

	// ErrGuestIPNotFound is returned when the guest IP address cannot be determined.
	// This occurs when both the in-guest address query and host-side DHCP
	// lease lookups fail to find an IPv4 address for the container.
	ErrGuestIPNotFound = errors.New("guest IP not found")
)

// CommandRunner defines the interface for executing shell commands.
// This abstraction allows the ShellBackend to use different execution
// strategies (direct exec vs bash wrapper) and enables testing with mock
// implementations.
type CommandRunner interface {
	// Run executes a command with the given name and arguments.
	// Returns the combined stdout output or an error if the command fails.
	Run(ctx context.Context, name string, args ...string) (string, error)

	// RunInput executes a command with stdin connected to the given reader.
	// Used for streaming scripts into pct exec without shell interpolation.
	RunInput(ctx context.Context, stdin io.Reader, name string, args ...string) (string, error)
}
