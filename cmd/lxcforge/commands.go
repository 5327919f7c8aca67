package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"

	"github.com/lxcforge/lxcforge/internal/config"
	"github.com/lxcforge/lxcforge/internal/deploy"
	"github.com/lxcforge/lxcforge/internal/hostname"
	"github.com/lxcforge/lxcforge/internal/provision"
	"github.com/lxcforge/lxcforge/internal/proxmox"
)

type commonFlags struct {
	configPath string
}

// backendFactory builds the Proxmox backend for a loaded config.
// Tests swap this for a FakeBackend.
var backendFactory = func(cfg config.Config) proxmox.Backend {
	backend := &proxmox.ShellBackend{
		PctPath:        cfg.PctPath,
		CommandTimeout: cfg.CommandTimeout,
	}
	if cfg.UseBashRunner {
		backend.Runner = proxmox.BashRunner{}
	}
	return backend
}

var statusWriter io.Writer = os.Stdout

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string, usage func(), help *bool) error {
	fs.Usage = usage
	if err := fs.Parse(args); err != nil {
		usage()
		return err
	}
	if help != nil && *help {
		usage()
		return errHelp
	}
	return nil
}

func loadConfig(base commonFlags) (config.Config, error) {
	cfg, err := config.Load(base.configPath)
	if err != nil {
		return cfg, wrapCLIError(err, "could not load configuration", "check the config file syntax")
	}
	return cfg, nil
}

func runProvision(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("provision")
	var ct int
	var host string
	var app string
	var start bool
	var template string
	var bridge string
	var storage string
	var help bool
	fs.IntVar(&ct, "ct", 0, "container id to create")
	fs.StringVar(&host, "hostname", "", "hostname for the container (prompted when omitted)")
	fs.StringVar(&app, "app", "", "catalog app to deploy")
	fs.BoolVar(&start, "start", false, "run docker compose up -d after deploying the app")
	fs.StringVar(&template, "template", "", "os template volume id")
	fs.StringVar(&bridge, "bridge", "", "network bridge")
	fs.StringVar(&storage, "storage", "", "rootfs storage")
	fs.BoolVar(&help, "help", false, "show help")
	fs.BoolVar(&help, "h", false, "show help")
	if err := parseFlags(fs, args, printProvisionUsage, &help); err != nil {
		return err
	}
	if ct <= 0 {
		printProvisionUsage()
		return newCLIError("a positive --ct is required", "re-run with --ct <ctid>")
	}

	cfg, err := loadConfig(base)
	if err != nil {
		return err
	}
	if template != "" {
		cfg.OSTemplate = template
	}
	if bridge != "" {
		cfg.Bridge = bridge
	}
	if storage != "" {
		cfg.RootfsStorage = storage
	}

	catalog, err := deploy.LoadCatalog(cfg.CatalogDir)
	if err != nil {
		return wrapCLIError(err, "could not load app catalog", "fix or remove the offending app definition")
	}
	if app != "" {
		if _, err := catalog.Get(app); err != nil {
			return wrapCLIError(err, fmt.Sprintf("unknown app %q", app), "run `lxcforge apps list` to see available apps")
		}
	}

	fallback := fmt.Sprintf("ct-%d", ct)
	if app != "" {
		fallback = app
	}
	validated, err := acquireHostname(host, fallback)
	if err != nil {
		return err
	}

	backend := backendFactory(cfg)
	logger := log.New(os.Stderr, "", log.LstdFlags)
	p := provision.New(backend, catalog, cfg, logger)
	outcome, err := p.Provision(ctx, provision.Request{
		CTID:     proxmox.CTID(ct),
		Hostname: validated,
		App:      app,
		StartApp: start,
	})
	if err != nil {
		return wrapCLIError(err, fmt.Sprintf("provisioning CT %d failed", ct), "inspect the container with `pct status` before retrying")
	}
	fmt.Fprintf(statusWriter, "provisioned CT %d at %s\n", outcome.CTID, outcome.GuestIP)
	printHostnameResult(outcome.Hostname, validated)
	return nil
}

func runHostnameCommand(ctx context.Context, args []string, base commonFlags) error {
	if len(args) == 0 {
		printHostnameUsage()
		return nil
	}
	switch args[0] {
	case "publish":
		return runHostnamePublish(ctx, args[1:], base)
	default:
		printHostnameUsage()
		return fmt.Errorf("unknown hostname command %q", args[0])
	}
}

func runHostnamePublish(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("hostname publish")
	var ct int
	var host string
	var help bool
	fs.IntVar(&ct, "ct", 0, "target container id")
	fs.StringVar(&host, "hostname", "", "hostname to publish (prompted when omitted)")
	fs.BoolVar(&help, "help", false, "show help")
	fs.BoolVar(&help, "h", false, "show help")
	if err := parseFlags(fs, args, printHostnameUsage, &help); err != nil {
		return err
	}
	if ct <= 0 {
		printHostnameUsage()
		return newCLIError("a positive --ct is required", "re-run with --ct <ctid>")
	}

	cfg, err := loadConfig(base)
	if err != nil {
		return err
	}
	backend := backendFactory(cfg)

	status, err := backend.Status(ctx, proxmox.CTID(ct))
	if err != nil {
		if errors.Is(err, proxmox.ErrCTNotFound) {
			return wrapCLIError(err, fmt.Sprintf("CT %d does not exist", ct), "create the container first")
		}
		return err
	}
	if status != proxmox.StatusRunning {
		return newCLIError(
			fmt.Sprintf("CT %d is %s", ct, status),
			fmt.Sprintf("start it with `pct start %d` and retry", ct),
		)
	}

	fallback := fmt.Sprintf("ct-%d", ct)
	if ctCfg, err := backend.Config(ctx, proxmox.CTID(ct)); err == nil && ctCfg["hostname"] != "" {
		fallback = ctCfg["hostname"]
	}
	validated, err := acquireHostname(host, fallback)
	if err != nil {
		return err
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)
	publisher := &hostname.Publisher{Transport: backend, FallbackIface: cfg.FallbackIface, Log: logger}
	result, err := publisher.Publish(ctx, validated, proxmox.CTID(ct))
	if err != nil {
		return wrapCLIError(err, fmt.Sprintf("hostname publish to CT %d failed", ct), "check that the container is reachable via pct exec")
	}
	printHostnameResult(result, validated)
	return nil
}

func printHostnameResult(result hostname.Result, host hostname.Validated) {
	switch result.Outcome {
	case hostname.OutcomeApplied:
		fmt.Fprintf(statusWriter, "hostname %s published\n", host)
	case hostname.OutcomeSkipped:
		fmt.Fprintf(statusWriter, "hostname publish skipped: %s\n", result.Reason)
	case hostname.OutcomeFailed:
		fmt.Fprintf(statusWriter, "hostname publish failed: %s\n", result.Reason)
	}
}

func runAppsCommand(_ context.Context, args []string, base commonFlags) error {
	if len(args) == 0 || args[0] != "list" {
		printAppsUsage()
		if len(args) == 0 {
			return nil
		}
		return fmt.Errorf("unknown apps command %q", args[0])
	}
	cfg, err := loadConfig(base)
	if err != nil {
		return err
	}
	catalog, err := deploy.LoadCatalog(cfg.CatalogDir)
	if err != nil {
		return wrapCLIError(err, "could not load app catalog", "fix or remove the offending app definition")
	}
	w := tabwriter.NewWriter(statusWriter, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDESCRIPTION")
	for _, app := range catalog.Apps() {
		fmt.Fprintf(w, "%s\t%s\n", app.Name, app.Description)
	}
	return w.Flush()
}

func runDestroy(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("destroy")
	var ct int
	var force bool
	var help bool
	fs.IntVar(&ct, "ct", 0, "container id to destroy")
	fs.BoolVar(&force, "force", false, "skip the confirmation prompt")
	fs.BoolVar(&help, "help", false, "show help")
	fs.BoolVar(&help, "h", false, "show help")
	if err := parseFlags(fs, args, printDestroyUsage, &help); err != nil {
		return err
	}
	if ct <= 0 {
		printDestroyUsage()
		return newCLIError("a positive --ct is required", "re-run with --ct <ctid>")
	}
	if err := requireConfirmation(confirmOptions{
		action: fmt.Sprintf("destroy CT %d and its disks", ct),
		force:  force,
	}); err != nil {
		return err
	}
	cfg, err := loadConfig(base)
	if err != nil {
		return err
	}
	backend := backendFactory(cfg)
	if err := backend.Destroy(ctx, proxmox.CTID(ct)); err != nil {
		if errors.Is(err, proxmox.ErrCTNotFound) {
			return wrapCLIError(err, fmt.Sprintf("CT %d does not exist", ct), "")
		}
		return err
	}
	fmt.Fprintf(statusWriter, "destroyed CT %d\n", ct)
	return nil
}
