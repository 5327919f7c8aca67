// Package provision runs the end-to-end container provisioning pipeline:
// create, start, wait for network, install Docker and Avahi, deploy an app,
// and publish the hostname to the network's DHCP server.
//
// The pipeline is strictly ordered and synchronous. The hostname must
// be acquired and validated before Provision is called; there is no rollback,
// and a skipped hostname publish leaves earlier steps intact.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lxcforge/lxcforge/internal/config"
	"github.com/lxcforge/lxcforge/internal/deploy"
	"github.com/lxcforge/lxcforge/internal/hostname"
	"github.com/lxcforge/lxcforge/internal/proxmox"
)

// Request describes one provisioning run.
type Request struct {
	CTID     proxmox.CTID
	Hostname hostname.Validated
	App      string // Catalog app to deploy; empty for a bare Docker host
	StartApp bool   // Run docker compose up -d after pushing the compose file
}

// Outcome summarizes a completed provisioning run.
type Outcome struct {
	CTID     proxmox.CTID
	GuestIP  string
	Hostname hostname.Result
}

// Provisioner wires the backend, catalog, and publisher into one pipeline.
type Provisioner struct {
	backend   proxmox.Backend
	catalog   *deploy.Catalog
	installer *deploy.Installer
	publisher *hostname.Publisher
	cfg       config.Config
	logger    *log.Logger

	ipWait  time.Duration
	ipDelay time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// New builds a Provisioner with defaults.
func New(backend proxmox.Backend, catalog *deploy.Catalog, cfg config.Config, logger *log.Logger) *Provisioner {
	if logger == nil {
		logger = log.Default()
	}
	return &Provisioner{
		backend:   backend,
		catalog:   catalog,
		installer: &deploy.Installer{Runner: backend, Log: logger},
		publisher: &hostname.Publisher{Transport: backend, FallbackIface: cfg.FallbackIface, Log: logger},
		cfg:       cfg,
		logger:    logger,
		ipWait:    2 * time.Minute,
		ipDelay:   3 * time.Second,
	}
}

// Provision runs the full pipeline for one container.
//
// The container is created and started first; each later step runs only after
// the previous one succeeded. A hostname publish that returns Skipped is
// reported but does not fail the run.
func (p *Provisioner) Provision(ctx context.Context, req Request) (Outcome, error) {
	outcome := Outcome{CTID: req.CTID}
	if req.CTID <= 0 {
		return outcome, errors.New("ctid must be positive")
	}
	if err := req.Hostname.Validate(); err != nil {
		return outcome, err
	}
	var app deploy.App
	if req.App != "" {
		found, err := p.catalog.Get(req.App)
		if err != nil {
			return outcome, err
		}
		app = found
	}

	ctCfg := proxmox.CTConfig{
		Hostname:      string(req.Hostname),
		OSTemplate:    p.cfg.OSTemplate,
		Cores:         p.cfg.Cores,
		MemoryMB:      p.cfg.MemoryMB,
		SwapMB:        p.cfg.SwapMB,
		RootfsStorage: p.cfg.RootfsStorage,
		RootfsGB:      p.cfg.RootfsGB,
		Bridge:        p.cfg.Bridge,
		Unprivileged:  p.cfg.Unprivileged,
		Nesting:       p.cfg.Nesting,
	}
	p.logger.Printf("provision: creating CT %d from %s", req.CTID, p.cfg.OSTemplate)
	if err := p.backend.Create(ctx, req.CTID, ctCfg); err != nil {
		return outcome, fmt.Errorf("create CT %d: %w", req.CTID, err)
	}
	p.logger.Printf("provision: starting CT %d", req.CTID)
	if err := p.backend.Start(ctx, req.CTID); err != nil {
		return outcome, fmt.Errorf("start CT %d: %w", req.CTID, err)
	}

	ip, err := p.waitForGuestIP(ctx, req.CTID)
	if err != nil {
		return outcome, fmt.Errorf("wait for CT %d network: %w", req.CTID, err)
	}
	outcome.GuestIP = ip
	p.logger.Printf("provision: CT %d is up at %s", req.CTID, ip)

	if err := p.installer.InstallDocker(ctx, req.CTID); err != nil {
		return outcome, err
	}
	if err := p.installer.InstallAvahi(ctx, req.CTID); err != nil {
		return outcome, err
	}
	if req.App != "" {
		if err := p.installer.DeployApp(ctx, req.CTID, app, req.StartApp); err != nil {
			return outcome, err
		}
	}

	result, err := p.publisher.Publish(ctx, req.Hostname, req.CTID)
	outcome.Hostname = result
	switch result.Outcome {
	case hostname.OutcomeApplied:
		p.logger.Printf("provision: CT %d hostname applied: %s", req.CTID, req.Hostname)
	case hostname.OutcomeSkipped:
		p.logger.Printf("provision: CT %d hostname skipped: %s", req.CTID, result.Reason)
	case hostname.OutcomeFailed:
		p.logger.Printf("provision: CT %d hostname failed: %s", req.CTID, result.Reason)
		return outcome, err
	}
	return outcome, nil
}

// waitForGuestIP polls the backend until the container reports an IPv4
// address or the wait budget runs out.
func (p *Provisioner) waitForGuestIP(ctx context.Context, ctid proxmox.CTID) (string, error) {
	deadline := time.Now().Add(p.ipWait)
	var lastErr error
	for {
		ip, err := p.backend.GuestIP(ctx, ctid)
		if err == nil {
			return ip, nil
		}
		if !errors.Is(err, proxmox.ErrGuestIPNotFound) {
			return "", err
		}
		lastErr = err
		if time.Now().After(deadline) {
			break
		}
		if err := p.doSleep(ctx, p.ipDelay); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

func (p *Provisioner) doSleep(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
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
