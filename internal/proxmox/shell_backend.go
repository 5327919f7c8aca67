// ABOUTME: This file implements the Backend interface using the Proxmox pct CLI.
// The shell backend runs on the Proxmox node itself and drives container lifecycle
// and in-guest execution through pct subcommands.
package proxmox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ExecRunner runs commands via os/exec.
// This is the default command runner for the ShellBackend.
type ExecRunner struct{}

func (er ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	return er.RunInput(ctx, nil, name, args...)
}

func (er ExecRunner) RunInput(ctx context.Context, stdin io.Reader, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		fullCmd := strings.Join(append([]string{name}, args...), " ")
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg != "" {
			return stdout.String(), fmt.Errorf("command %s failed: %w: %s", fullCmd, err, errMsg)
		}
		return stdout.String(), fmt.Errorf("command %s failed: %w", fullCmd, err)
	}
	return stdout.String(), nil
}

// BashRunner wraps commands in bash to provide interactive shell context.
// Using bash helps work around Proxmox IPC layer issues that can occur
// with direct exec on some node configurations.
type BashRunner struct{}

func (br BashRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	return br.RunInput(ctx, nil, name, args...)
}

func (br BashRunner) RunInput(ctx context.Context, stdin io.Reader, name string, args ...string) (string, error) {
	fullCmd := bashCommandLine(name, args...)
	cmd := exec.CommandContext(ctx, "bash", "-c", fullCmd)
	cmd.Stdin = stdin
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg != "" {
			return stdout.String(), fmt.Errorf("command %s failed: %w: %s", fullCmd, err, errMsg)
		}
		return stdout.String(), fmt.Errorf("command %s failed: %w", fullCmd, err)
	}
	return stdout.String(), nil
}

// bashCommandLine builds the command string handed to bash -c. Every word is
// quoted so argument values reach the command verbatim, never interpreted by
// the shell.
func bashCommandLine(name string, args ...string) string {
	words := make([]string, 0, len(args)+1)
	for _, w := range append([]string{name}, args...) {
		words = append(words, shellQuote(w))
	}
	return strings.Join(words, " ")
}

const shellSafeChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_./=:,@"

// shellQuote single-quotes w unless it consists entirely of characters the
// shell treats literally. Embedded single quotes are closed, escaped, and
// reopened.
func shellQuote(w string) string {
	if w == "" {
		return "''"
	}
	safe := true
	for _, r := range w {
		if !strings.ContainsRune(shellSafeChars, r) {
			safe = false
			break
		}
	}
	if safe {
		return w
	}
	return "'" + strings.ReplaceAll(w, "'", `'\''`) + "'"
}

// ShellBackend implements Backend using pct commands.
// This backend shells out to the Proxmox CLI tools and must run on the
// node hosting the containers.
type ShellBackend struct {
	PctPath        string        // Path to pct command (defaults to "pct")
	Runner         CommandRunner // Command execution strategy (defaults to ExecRunner)
	CommandTimeout time.Duration // Timeout for individual command execution

	GuestIPAttempts    int                                              // Number of attempts to query the guest IP (defaults to 30)
	GuestIPInitialWait time.Duration                                    // Initial wait between guest IP attempts (defaults to 500ms)
	GuestIPMaxWait     time.Duration                                    // Maximum wait between guest IP attempts (defaults to 10s)
	DHCPLeasePaths     []string                                         // Paths to DHCP lease files for fallback IP discovery
	Sleep              func(ctx context.Context, d time.Duration) error // Custom sleep for testing
}

var _ Backend = (*ShellBackend)(nil)

// NewShellBackendWithBashRunner creates a ShellBackend that uses BashRunner
// instead of ExecRunner.
// This works around Proxmox IPC issues by running pct commands via a
// bash shell. Recommended when direct exec misbehaves.
func NewShellBackendWithBashRunner(pctPath string, timeout time.Duration) *ShellBackend {
	return &ShellBackend{
		PctPath:        pctPath,
		Runner:         BashRunner{},
		CommandTimeout: timeout,
	}
}

func (b *ShellBackend) Create(ctx context.Context, ctid CTID, cfg CTConfig) error {
	if cfg.OSTemplate == "" {
		return errors.New("os template is required")
	}
	args := []string{"create", strconv.Itoa(int(ctid)), cfg.OSTemplate}
	if cfg.Hostname != "" {
		args = append(args, "--hostname", cfg.Hostname)
	}
	if cfg.Cores > 0 {
		args = append(args, "--cores", strconv.Itoa(cfg.Cores))
	}
	if cfg.MemoryMB > 0 {
		args = append(args, "--memory", strconv.Itoa(cfg.MemoryMB))
	}
	if cfg.SwapMB > 0 {
		args = append(args, "--swap", strconv.Itoa(cfg.SwapMB))
	}
	if cfg.RootfsStorage != "" && cfg.RootfsGB > 0 {
		args = append(args, "--rootfs", fmt.Sprintf("%s:%d", cfg.RootfsStorage, cfg.RootfsGB))
	}
	args = append(args, "--net0", buildNet0(cfg.Bridge))
	if cfg.Unprivileged {
		args = append(args, "--unprivileged", "1")
	}
	if cfg.Nesting {
		args = append(args, "--features", "nesting=1")
	}
	_, err := b.run(ctx, b.pctPath(), args...)
	return err
}

func (b *ShellBackend) Start(ctx context.Context, ctid CTID) error {
	_, err := b.run(ctx, b.pctPath(), "start", strconv.Itoa(int(ctid)))
	return err
}

func (b *ShellBackend) Stop(ctx context.Context, ctid CTID) error {
	_, err := b.run(ctx, b.pctPath(), "stop", strconv.Itoa(int(ctid)))
	if err != nil {
		if isMissingCTError(err) {
			return fmt.Errorf("%w: %v", ErrCTNotFound, err)
		}
		return err
	}
	return nil
}

func (b *ShellBackend) Destroy(ctx context.Context, ctid CTID) error {
	_, err := b.run(ctx, b.pctPath(), "destroy", strconv.Itoa(int(ctid)), "--purge", "1")
	if err != nil {
		if isMissingCTError(err) {
			return fmt.Errorf("%w: %v", ErrCTNotFound, err)
		}
		return err
	}
	return nil
}

func (b *ShellBackend) Status(ctx context.Context, ctid CTID) (Status, error) {
	out, err := b.run(ctx, b.pctPath(), "status", strconv.Itoa(int(ctid)))
	if err != nil {
		if isMissingCTError(err) {
			return StatusUnknown, fmt.Errorf("%w: %v", ErrCTNotFound, err)
		}
		return StatusUnknown, err
	}
	return parseStatus(out)
}

func (b *ShellBackend) Config(ctx context.Context, ctid CTID) (map[string]string, error) {
	out, err := b.run(ctx, b.pctPath(), "config", strconv.Itoa(int(ctid)))
	if err != nil {
		if isMissingCTError(err) {
			return nil, fmt.Errorf("%w: %v", ErrCTNotFound, err)
		}
		return nil, err
	}
	return parseConfig(out), nil
}

// Exec runs a command inside the container.
// Environment values are bound via env(1) arguments before the command,
// so callers never interpolate untrusted data into a shell string.
func (b *ShellBackend) Exec(ctx context.Context, ctid CTID, env map[string]string, argv ...string) (string, error) {
	if len(argv) == 0 {
		return "", errors.New("command is required")
	}
	args := b.execArgs(ctid, env, argv...)
	return b.run(ctx, b.pctPath(), args...)
}

// ExecScript streams a script into the container over stdin and runs it with
// sh -s under the bound environment.
func (b *ShellBackend) ExecScript(ctx context.Context, ctid CTID, script string, env map[string]string) (string, error) {
	if strings.TrimSpace(script) == "" {
		return "", errors.New("script is required")
	}
	args := b.execArgs(ctid, env, "sh", "-s")
	ctx, cancel := b.withCommandTimeout(ctx)
	defer cancel()
	out, err := b.runner().RunInput(ctx, strings.NewReader(script), b.pctPath(), args...)
	if err != nil && isMissingCTError(err) {
		return out, fmt.Errorf("%w: %v", ErrCTNotFound, err)
	}
	return out, err
}

// PushFile writes content to a path inside the container via pct push.
// The content is staged in a host-side temp file because pct push
// copies from the node filesystem.
func (b *ShellBackend) PushFile(ctx context.Context, ctid CTID, path string, content []byte, perms string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("path is required")
	}
	tmp, err := os.CreateTemp("", "lxcforge-push-*")
	if err != nil {
		return fmt.Errorf("stage push file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("stage push file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("stage push file: %w", err)
	}
	args := []string{"push", strconv.Itoa(int(ctid)), tmp.Name(), path}
	if perms != "" {
		args = append(args, "--perms", perms)
	}
	_, err = b.run(ctx, b.pctPath(), args...)
	if err != nil && isMissingCTError(err) {
		return fmt.Errorf("%w: %v", ErrCTNotFound, err)
	}
	return err
}

func (b *ShellBackend) GuestIP(ctx context.Context, ctid CTID) (string, error) {
	ip, err := b.pollGuestAddr(ctx, ctid)
	if err == nil {
		return ip, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	guestErr := err
	ip, leaseErr := b.dhcpLeaseIP(ctx, ctid)
	if leaseErr == nil {
		return ip, nil
	}
	if errors.Is(leaseErr, ErrGuestIPNotFound) {
		return "", fmt.Errorf("%w: guest=%v lease=%v", ErrGuestIPNotFound, guestErr, leaseErr)
	}
	return "", leaseErr
}

func (b *ShellBackend) execArgs(ctid CTID, env map[string]string, argv ...string) []string {
	args := []string{"exec", strconv.Itoa(int(ctid)), "--"}
	if len(env) > 0 {
		args = append(args, "env")
		keys := make([]string, 0, len(env))
		for k := range env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			args = append(args, k+"="+env[k])
		}
	}
	return append(args, argv...)
}

func (b *ShellBackend) pollGuestAddr(ctx context.Context, ctid CTID) (string, error) {
	attempts := b.guestIPAttempts()
	wait := b.guestIPInitialWait()
	maxWait := b.guestIPMaxWait()
	var lastErr error
	for i := 0; i < attempts; i++ {
		out, err := b.Exec(ctx, ctid, nil, "ip", "-4", "-o", "addr", "show", "scope", "global")
		if err == nil {
			if ip := parseAddrShow(out); ip != "" {
				return ip, nil
			}
			lastErr = ErrGuestIPNotFound
		} else {
			lastErr = err
		}
		if i == attempts-1 {
			break
		}
		if err := b.sleep(ctx, wait); err != nil {
			return "", err
		}
		wait = nextBackoff(wait, maxWait)
	}
	if lastErr == nil {
		lastErr = ErrGuestIPNotFound
	}
	return "", lastErr
}

func (b *ShellBackend) runner() CommandRunner {
	if b.Runner != nil {
		return b.Runner
	}
	return ExecRunner{}
}

func (b *ShellBackend) pctPath() string {
	if b.PctPath != "" {
		return b.PctPath
	}
	return "pct"
}

func (b *ShellBackend) guestIPAttempts() int {
	if b.GuestIPAttempts > 0 {
		return b.GuestIPAttempts
	}
	return 30
}

func (b *ShellBackend) guestIPInitialWait() time.Duration {
	if b.GuestIPInitialWait > 0 {
		return b.GuestIPInitialWait
	}
	return 500 * time.Millisecond
}

func (b *ShellBackend) guestIPMaxWait() time.Duration {
	if b.GuestIPMaxWait > 0 {
		return b.GuestIPMaxWait
	}
	return 10 * time.Second
}

func (b *ShellBackend) sleep(ctx context.Context, d time.Duration) error {
	if b.Sleep != nil {
		return b.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (b *ShellBackend) run(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := b.withCommandTimeout(ctx)
	defer cancel()
	return b.runner().Run(ctx, name, args...)
}

func (b *ShellBackend) withCommandTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.CommandTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.CommandTimeout)
}

func nextBackoff(current, max time.Duration) time.Duration {
	if current <= 0 {
		return max
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func buildNet0(bridge string) string {
	if bridge == "" {
		bridge = "vmbr0"
	}
	return "name=eth0,bridge=" + bridge + ",ip=dhcp"
}

func isMissingCTError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	indicators := []string{
		"does not exist",
		"no such container",
		"no such ct",
		"no such vmid",
		"vmid does not exist",
		"unable to find configuration file",
	}
	for _, indicator := range indicators {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return strings.Contains(msg, "not found") && strings.Contains(msg, "ct")
}

func parseStatus(output string) (Status, error) {
	out := strings.TrimSpace(output)
	if out == "" {
		return StatusUnknown, errors.New("empty status output")
	}
	if strings.Contains(out, "status:") {
		parts := strings.SplitN(out, "status:", 2)
		out = strings.TrimSpace(parts[1])
		if idx := strings.Index(out, "\n"); idx != -1 {
			out = strings.TrimSpace(out[:idx])
		}
	} else {
		fields := strings.Fields(out)
		if len(fields) > 0 {
			out = fields[0]
		}
	}
	switch out {
	case "running":
		return StatusRunning, nil
	case "stopped":
		return StatusStopped, nil
	default:
		return StatusUnknown, fmt.Errorf("unknown status %q", out)
	}
}

func parseConfig(output string) map[string]string {
	cfg := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		cfg[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return cfg
}

// parseAddrShow extracts the first global IPv4 address from
// `ip -4 -o addr show scope global` output.
func parseAddrShow(output string) string {
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		// Format: "2: eth0    inet 192.0.2.10/24 brd ..."
		for i, field := range fields {
			if field != "inet" || i+1 >= len(fields) {
				continue
			}
			addr := fields[i+1]
			if idx := strings.Index(addr, "/"); idx != -1 {
				addr = addr[:idx]
			}
			if ip := parseIPv4(addr); ip != "" {
				return ip
			}
		}
	}
	return ""
}
