// ABOUTME: This file provides a deterministic in-memory Proxmox backend for tests.
// It implements the Backend interface and simulates container lifecycle, file
// pushes, and remote execution without a Proxmox node.
package proxmox

import (
	"context"
	"fmt"
	"sync"
)

// ExecCall records one remote-execution request made against the FakeBackend.
type ExecCall struct {
	CTID   CTID
	Script string
	Env    map[string]string
	Argv   []string
}

// FakeBackend implements Backend with in-memory state for tests.
// It is deterministic and safe for concurrent use.
type FakeBackend struct {
	mu    sync.Mutex
	cts   map[CTID]*fakeCT
	calls []ExecCall

	// ScriptResult, when set, produces the output of ExecScript calls.
	// Tests use this to simulate guest-side outcomes (skip markers,
	// failures) without a real shell.
	ScriptResult func(ctid CTID, script string, env map[string]string) (string, error)

	// ExecResult, when set, produces the output of Exec calls.
	ExecResult func(ctid CTID, env map[string]string, argv ...string) (string, error)

	// AutoAssignIP, when set, is handed to containers on Start, simulating a
	// DHCP lease.
	AutoAssignIP string
}

type fakeCT struct {
	ctid   CTID
	status Status
	config map[string]string
	files  map[string]string
	ip     string
}

// NewFakeBackend returns a FakeBackend with empty state.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{cts: make(map[CTID]*fakeCT)}
}

func (b *FakeBackend) Create(_ context.Context, ctid CTID, cfg CTConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.cts[ctid]; ok {
		return fmt.Errorf("container %d already exists", ctid)
	}
	config := map[string]string{
		"hostname": cfg.Hostname,
		"net0":     "name=eth0,bridge=" + cfg.Bridge + ",hwaddr=BC:24:11:00:00:01,ip=dhcp",
	}
	if cfg.OSTemplate != "" {
		config["ostype"] = "debian"
	}
	b.cts[ctid] = &fakeCT{
		ctid:   ctid,
		status: StatusStopped,
		config: config,
		files:  make(map[string]string),
	}
	return nil
}

func (b *FakeBackend) Start(_ context.Context, ctid CTID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ct, ok := b.cts[ctid]
	if !ok {
		return ErrCTNotFound
	}
	ct.status = StatusRunning
	if ct.ip == "" && b.AutoAssignIP != "" {
		ct.ip = b.AutoAssignIP
	}
	return nil
}

func (b *FakeBackend) Stop(_ context.Context, ctid CTID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ct, ok := b.cts[ctid]
	if !ok {
		return ErrCTNotFound
	}
	ct.status = StatusStopped
	return nil
}

func (b *FakeBackend) Destroy(_ context.Context, ctid CTID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.cts[ctid]; !ok {
		return ErrCTNotFound
	}
	delete(b.cts, ctid)
	return nil
}

func (b *FakeBackend) Status(_ context.Context, ctid CTID) (Status, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ct, ok := b.cts[ctid]
	if !ok {
		return StatusUnknown, ErrCTNotFound
	}
	return ct.status, nil
}

func (b *FakeBackend) Config(_ context.Context, ctid CTID) (map[string]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ct, ok := b.cts[ctid]
	if !ok {
		return nil, ErrCTNotFound
	}
	out := make(map[string]string, len(ct.config))
	for k, v := range ct.config {
		out[k] = v
	}
	return out, nil
}

func (b *FakeBackend) Exec(_ context.Context, ctid CTID, env map[string]string, argv ...string) (string, error) {
	b.mu.Lock()
	ct, ok := b.cts[ctid]
	if ok && ct.status != StatusRunning {
		b.mu.Unlock()
		return "", ErrCTNotRunning
	}
	b.calls = append(b.calls, ExecCall{CTID: ctid, Env: copyEnv(env), Argv: append([]string(nil), argv...)})
	b.mu.Unlock()
	if !ok {
		return "", ErrCTNotFound
	}
	if b.ExecResult != nil {
		return b.ExecResult(ctid, env, argv...)
	}
	return "", nil
}

func (b *FakeBackend) ExecScript(_ context.Context, ctid CTID, script string, env map[string]string) (string, error) {
	b.mu.Lock()
	ct, ok := b.cts[ctid]
	if ok && ct.status != StatusRunning {
		b.mu.Unlock()
		return "", ErrCTNotRunning
	}
	b.calls = append(b.calls, ExecCall{CTID: ctid, Script: script, Env: copyEnv(env)})
	b.mu.Unlock()
	if !ok {
		return "", ErrCTNotFound
	}
	if b.ScriptResult != nil {
		return b.ScriptResult(ctid, script, env)
	}
	return "", nil
}

func (b *FakeBackend) PushFile(_ context.Context, ctid CTID, path string, content []byte, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ct, ok := b.cts[ctid]
	if !ok {
		return ErrCTNotFound
	}
	if ct.status != StatusRunning {
		return ErrCTNotRunning
	}
	ct.files[path] = string(content)
	return nil
}

func (b *FakeBackend) GuestIP(_ context.Context, ctid CTID) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ct, ok := b.cts[ctid]
	if !ok {
		return "", ErrCTNotFound
	}
	if ct.ip == "" {
		return "", ErrGuestIPNotFound
	}
	return ct.ip, nil
}

var _ Backend = (*FakeBackend)(nil)

// SetGuestIP assigns the address returned by GuestIP for a container.
func (b *FakeBackend) SetGuestIP(ctid CTID, ip string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ct, ok := b.cts[ctid]; ok {
		ct.ip = ip
	}
}

// FileContent returns the content pushed to path inside the container.
func (b *FakeBackend) FileContent(ctid CTID, path string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ct, ok := b.cts[ctid]
	if !ok {
		return "", false
	}
	content, ok := ct.files[path]
	return content, ok
}

// ExecCalls returns a copy of all recorded remote-execution requests.
func (b *FakeBackend) ExecCalls() []ExecCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ExecCall(nil), b.calls...)
}

func copyEnv(env map[string]string) map[string]string {
	if env == nil {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}
