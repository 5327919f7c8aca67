// ABOUTME: Hostname acquisition for provisioning commands.
// ABOUTME: Pre-supplied values are used without prompting; interactive runs
// re-prompt on invalid input and fall back to a derived default.

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/lxcforge/lxcforge/internal/hostname"
)

const maxHostnamePrompts = 3

var (
	promptReader io.Reader = os.Stdin
	promptWriter io.Writer = os.Stderr
	interactive            = isInteractive
)

func isInteractive() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stderr.Fd())
}

// acquireHostname resolves the hostname to publish.
//
// A non-empty preset is normalized and used without prompting, so callers and
// scripts can run non-interactively. Otherwise the operator is prompted, with
// fallback as the default answer; invalid input re-prompts up to
// maxHostnamePrompts times before the fallback wins.
func acquireHostname(preset, fallback string) (hostname.Validated, error) {
	if strings.TrimSpace(preset) != "" {
		validated, err := hostname.Normalize(preset)
		if err != nil {
			return "", wrapCLIError(err,
				fmt.Sprintf("hostname %q is not usable", preset),
				"use lowercase letters, digits, and hyphens; 1-63 characters",
			)
		}
		return validated, nil
	}
	if !interactive() {
		validated, err := hostname.Normalize(fallback)
		if err != nil {
			return "", wrapCLIError(err,
				fmt.Sprintf("default hostname %q is not usable", fallback),
				"pass --hostname explicitly in non-interactive mode",
			)
		}
		return validated, nil
	}

	reader := bufio.NewReader(promptReader)
	for attempt := 0; attempt < maxHostnamePrompts; attempt++ {
		fmt.Fprintf(promptWriter, "Hostname [%s]: ", fallback)
		line, readErr := reader.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return "", readErr
		}
		answer := strings.TrimSpace(line)
		if answer == "" {
			answer = fallback
		}
		validated, err := hostname.Normalize(answer)
		if err == nil {
			if string(validated) != answer {
				fmt.Fprintf(promptWriter, "using %q\n", validated)
			}
			return validated, nil
		}
		fmt.Fprintf(promptWriter, "invalid hostname: %v\n", err)
		if readErr == io.EOF {
			break
		}
	}
	validated, err := hostname.Normalize(fallback)
	if err != nil {
		return "", wrapCLIError(err,
			fmt.Sprintf("default hostname %q is not usable", fallback),
			"pass --hostname explicitly",
		)
	}
	fmt.Fprintf(promptWriter, "using default %q\n", validated)
	return validated, nil
}
