package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/lxcforge/lxcforge/internal/buildinfo"
)

const usageText = `lxcforge provisions Docker-ready LXC containers on a Proxmox VE host.

Usage:
  lxcforge --version
  lxcforge [--config PATH] provision --ct <ctid> [--hostname <name>] [--app <app>] [--start] [--template <volid>] [--bridge <bridge>]
  lxcforge [--config PATH] hostname publish --ct <ctid> [--hostname <name>]
  lxcforge [--config PATH] apps list
  lxcforge [--config PATH] destroy --ct <ctid> [--force]

Global Flags:
  --config PATH   Path to config file (default /etc/lxcforge/config.yaml)
`

type globalOptions struct {
	configPath  string
	showVersion bool
}

func main() {
	opts, args, err := parseGlobal(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		printUsage()
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Println(buildinfo.String())
		return
	}
	if len(args) == 0 {
		printUsage()
		return
	}
	if isHelpToken(args[0]) {
		printUsage()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	base := commonFlags{configPath: opts.configPath}
	if err := dispatch(ctx, args, base); err != nil {
		if errors.Is(err, errHelp) {
			return
		}
		msg, next, hints := describeError(err)
		printError(os.Stderr, msg, next, hints)
		os.Exit(1)
	}
}

func parseGlobal(args []string) (globalOptions, []string, error) {
	opts := globalOptions{}
	fs := flag.NewFlagSet("lxcforge", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.configPath, "config", "", "path to config file")
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return opts, nil, err
	}
	return opts, fs.Args(), nil
}

func dispatch(ctx context.Context, args []string, base commonFlags) error {
	switch args[0] {
	case "provision":
		return runProvision(ctx, args[1:], base)
	case "hostname":
		return runHostnameCommand(ctx, args[1:], base)
	case "apps":
		return runAppsCommand(ctx, args[1:], base)
	case "destroy":
		return runDestroy(ctx, args[1:], base)
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func isHelpToken(arg string) bool {
	switch arg {
	case "help", "-h", "--help":
		return true
	}
	return false
}

func printUsage() {
	_, _ = fmt.Fprint(os.Stdout, usageText)
}

func printProvisionUsage() {
	fmt.Fprintln(os.Stdout, "Usage: lxcforge provision --ct <ctid> [--hostname <name>] [--app <app>] [--start] [--template <volid>] [--bridge <bridge>]")
}

func printHostnameUsage() {
	fmt.Fprintln(os.Stdout, "Usage: lxcforge hostname publish --ct <ctid> [--hostname <name>]")
}

func printAppsUsage() {
	fmt.Fprintln(os.Stdout, "Usage: lxcforge apps list")
}

func printDestroyUsage() {
	fmt.Fprintln(os.Stdout, "Usage: lxcforge destroy --ct <ctid> [--force]")
}
