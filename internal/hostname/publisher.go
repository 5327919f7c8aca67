// ABOUTME: This file implements the hostname publisher: a single remote session
// that re-validates the hostname inside the guest, guards on OS family and IPv4
// addressing, writes the hostname and DHCP client configuration, and triggers
// lease re-advertisement.
package hostname

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/lxcforge/lxcforge/internal/proxmox"
)

// Outcome classifies the result of a publish attempt.
type Outcome string

const (
	// OutcomeApplied indicates the hostname was written and re-advertised.
	OutcomeApplied Outcome = "applied"
	// OutcomeSkipped indicates a guard condition stopped publishing; the guest
	// was left untouched. Skips are deliberate no-ops, not failures.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed indicates the remote session could not be established or
	// the command pipeline reported a non-zero status.
	OutcomeFailed Outcome = "failed"
)

// Result describes what a publish attempt did.
type Result struct {
	Outcome Outcome
	Reason  string // Populated for Skipped and Failed outcomes.
}

// ErrRemoteSession is returned when the remote-execution boundary could not be
// reached or reported a non-zero status.
var ErrRemoteSession = errors.New("remote session failed")

// Transport is the remote-execution boundary.
// proxmox.Backend satisfies this; tests substitute fakes. The script
// is static text and all per-invocation data travels in env, so adversarial
// hostnames never reach shell interpolation.
type Transport interface {
	ExecScript(ctx context.Context, ctid proxmox.CTID, script string, env map[string]string) (string, error)
}

const (
	envHostname      = "NEW_HOSTNAME"
	envFallbackIface = "FALLBACK_IFACE"

	// defaultFallbackIface is used when the guest has no default route.
	defaultFallbackIface = "eth0"
)

// Markers emitted by the publish script on stdout. Everything after the marker
// word on the same line is a human-readable reason.
const (
	markerSkipped = "SKIP"
	markerApplied = "APPLIED"
)

// Publisher pushes validated hostnames into running containers.
type Publisher struct {
	Transport     Transport
	FallbackIface string      // Interface assumed when no default route exists (defaults to eth0)
	Log           *log.Logger // Optional; diagnostics for skips and best-effort failures
}

// Publish runs the publish script inside the container as one remote session.
//
// The overall result is Applied when the configuration steps succeed, Skipped
// when a guard condition short-circuits (unsupported OS family, no IPv4, value
// corrupted in transit), and Failed only when the session itself breaks. Each
// invocation is a fresh attempt; re-running with the same hostname converges on
// the same guest state.
func (p *Publisher) Publish(ctx context.Context, host Validated, ctid proxmox.CTID) (Result, error) {
	if p.Transport == nil {
		return Result{Outcome: OutcomeFailed, Reason: "no transport configured"}, fmt.Errorf("%w: no transport configured", ErrRemoteSession)
	}
	if err := host.Validate(); err != nil {
		return Result{Outcome: OutcomeFailed, Reason: err.Error()}, err
	}
	env := map[string]string{
		envHostname:      string(host),
		envFallbackIface: p.fallbackIface(),
	}
	out, err := p.Transport.ExecScript(ctx, ctid, publishScript, env)
	if err != nil {
		reason := strings.TrimSpace(err.Error())
		p.logf("hostname: publish to CT %d failed: %v", ctid, err)
		return Result{Outcome: OutcomeFailed, Reason: reason}, fmt.Errorf("%w: %v", ErrRemoteSession, err)
	}
	result := parsePublishOutput(out)
	switch result.Outcome {
	case OutcomeSkipped:
		p.logf("hostname: publish to CT %d skipped: %s", ctid, result.Reason)
	case OutcomeApplied:
		p.logf("hostname: published %q to CT %d", host, ctid)
	case OutcomeFailed:
		p.logf("hostname: publish to CT %d failed: %s", ctid, result.Reason)
		return result, fmt.Errorf("%w: %s", ErrRemoteSession, result.Reason)
	}
	return result, nil
}

func (p *Publisher) fallbackIface() string {
	if p.FallbackIface != "" {
		return p.FallbackIface
	}
	return defaultFallbackIface
}

func (p *Publisher) logf(format string, args ...any) {
	if p.Log != nil {
		p.Log.Printf(format, args...)
	}
}

// parsePublishOutput maps the script's stdout markers to a Result.
// The last marker line wins; a clean exit without a marker is treated
// as a failure because the script always reports how it finished.
func parsePublishOutput(out string) Result {
	result := Result{Outcome: OutcomeFailed, Reason: "no completion marker in output"}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == markerApplied || strings.HasPrefix(line, markerApplied+" "):
			result = Result{Outcome: OutcomeApplied}
		case strings.HasPrefix(line, markerSkipped+" "):
			result = Result{Outcome: OutcomeSkipped, Reason: strings.TrimSpace(strings.TrimPrefix(line, markerSkipped))}
		case line == markerSkipped:
			result = Result{Outcome: OutcomeSkipped, Reason: "skipped by guest"}
		}
	}
	return result
}
