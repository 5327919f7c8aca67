package provision

import (
	"context"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lxcforge/lxcforge/internal/config"
	"github.com/lxcforge/lxcforge/internal/deploy"
	"github.com/lxcforge/lxcforge/internal/hostname"
	"github.com/lxcforge/lxcforge/internal/proxmox"
)

func newTestProvisioner(t *testing.T, backend *proxmox.FakeBackend) *Provisioner {
	t.Helper()
	cfg := config.DefaultConfig()
	p := New(backend, deploy.BuiltinCatalog(), cfg, log.New(testWriter{t}, "", 0))
	p.ipWait = 100 * time.Millisecond
	p.ipDelay = time.Millisecond
	return p
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func mustHostname(t *testing.T, raw string) hostname.Validated {
	t.Helper()
	v, err := hostname.Normalize(raw)
	require.NoError(t, err)
	return v
}

func publishAwareScripts(backend *proxmox.FakeBackend) {
	backend.ScriptResult = func(_ proxmox.CTID, _ string, env map[string]string) (string, error) {
		if h, ok := env["NEW_HOSTNAME"]; ok {
			return "APPLIED " + h + "\n", nil
		}
		return "done\n", nil
	}
}

func TestProvisionFullPipeline(t *testing.T) {
	backend := proxmox.NewFakeBackend()
	backend.AutoAssignIP = "192.0.2.80"
	publishAwareScripts(backend)
	p := newTestProvisioner(t, backend)

	outcome, err := p.Provision(context.Background(), Request{
		CTID:     201,
		Hostname: mustHostname(t, "docker-host"),
		App:      "portainer",
		StartApp: true,
	})
	require.NoError(t, err)
	assert.Equal(t, proxmox.CTID(201), outcome.CTID)
	assert.Equal(t, "192.0.2.80", outcome.GuestIP)
	assert.Equal(t, hostname.OutcomeApplied, outcome.Hostname.Outcome)

	status, err := backend.Status(context.Background(), 201)
	require.NoError(t, err)
	assert.Equal(t, proxmox.StatusRunning, status)

	content, ok := backend.FileContent(201, "/opt/portainer/compose.yaml")
	require.True(t, ok, "compose file not pushed")
	assert.Contains(t, content, "portainer/portainer-ce:lts")

	// Ordering: docker install, avahi install, mkdir, compose up, publish.
	calls := backend.ExecCalls()
	var scripts []string
	for _, call := range calls {
		if call.Script != "" {
			scripts = append(scripts, call.Script)
		}
	}
	require.Len(t, scripts, 5)
	assert.Contains(t, scripts[0], "docker")
	assert.Contains(t, scripts[1], "avahi")
	assert.Contains(t, scripts[2], "mkdir")
	assert.Contains(t, scripts[3], "docker compose up")
	assert.Contains(t, scripts[4], "NEW_HOSTNAME")
}

func TestProvisionWithoutApp(t *testing.T) {
	backend := proxmox.NewFakeBackend()
	backend.AutoAssignIP = "192.0.2.81"
	publishAwareScripts(backend)
	p := newTestProvisioner(t, backend)

	outcome, err := p.Provision(context.Background(), Request{
		CTID:     202,
		Hostname: mustHostname(t, "barehost"),
	})
	require.NoError(t, err)
	assert.Equal(t, hostname.OutcomeApplied, outcome.Hostname.Outcome)
	_, ok := backend.FileContent(202, "/opt/portainer/compose.yaml")
	assert.False(t, ok, "no compose file expected without app")
}

func TestProvisionUnknownApp(t *testing.T) {
	backend := proxmox.NewFakeBackend()
	p := newTestProvisioner(t, backend)

	_, err := p.Provision(context.Background(), Request{
		CTID:     203,
		Hostname: mustHostname(t, "host"),
		App:      "does-not-exist",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown app")
	// Nothing was created before validation failed.
	_, statusErr := backend.Status(context.Background(), 203)
	assert.ErrorIs(t, statusErr, proxmox.ErrCTNotFound)
}

func TestProvisionRejectsInvalidHostname(t *testing.T) {
	backend := proxmox.NewFakeBackend()
	p := newTestProvisioner(t, backend)

	_, err := p.Provision(context.Background(), Request{
		CTID:     204,
		Hostname: hostname.Validated("Not-Normalized"),
	})
	require.ErrorIs(t, err, hostname.ErrInvalidHostname)
}

func TestProvisionHostnameSkipDoesNotFailRun(t *testing.T) {
	backend := proxmox.NewFakeBackend()
	backend.AutoAssignIP = "192.0.2.82"
	backend.ScriptResult = func(_ proxmox.CTID, _ string, env map[string]string) (string, error) {
		if _, ok := env["NEW_HOSTNAME"]; ok {
			return "SKIP unsupported os family alpine\n", nil
		}
		return "done\n", nil
	}
	p := newTestProvisioner(t, backend)

	outcome, err := p.Provision(context.Background(), Request{
		CTID:     205,
		Hostname: mustHostname(t, "host"),
	})
	require.NoError(t, err)
	assert.Equal(t, hostname.OutcomeSkipped, outcome.Hostname.Outcome)
	assert.Contains(t, outcome.Hostname.Reason, "unsupported os family")
}

func TestProvisionHostnameFailureFailsRun(t *testing.T) {
	backend := proxmox.NewFakeBackend()
	backend.AutoAssignIP = "192.0.2.83"
	backend.ScriptResult = func(_ proxmox.CTID, _ string, env map[string]string) (string, error) {
		if _, ok := env["NEW_HOSTNAME"]; ok {
			return "", errors.New("pipeline exploded")
		}
		return "done\n", nil
	}
	p := newTestProvisioner(t, backend)

	outcome, err := p.Provision(context.Background(), Request{
		CTID:     206,
		Hostname: mustHostname(t, "host"),
	})
	require.ErrorIs(t, err, hostname.ErrRemoteSession)
	assert.Equal(t, hostname.OutcomeFailed, outcome.Hostname.Outcome)
}

func TestProvisionWaitsForGuestIP(t *testing.T) {
	backend := proxmox.NewFakeBackend()
	publishAwareScripts(backend)
	p := newTestProvisioner(t, backend)
	// The fake never assigns an address, so the wait budget must expire.
	p.ipWait = 10 * time.Millisecond

	_, err := p.Provision(context.Background(), Request{
		CTID:     207,
		Hostname: mustHostname(t, "host"),
	})
	require.ErrorIs(t, err, proxmox.ErrGuestIPNotFound)
}

func TestProvisionDuplicateCTID(t *testing.T) {
	backend := proxmox.NewFakeBackend()
	backend.AutoAssignIP = "192.0.2.84"
	publishAwareScripts(backend)
	p := newTestProvisioner(t, backend)

	req := Request{CTID: 208, Hostname: mustHostname(t, "host")}
	_, err := p.Provision(context.Background(), req)
	require.NoError(t, err)
	_, err = p.Provision(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}
