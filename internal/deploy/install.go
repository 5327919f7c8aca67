// ABOUTME: Guest-side installation of Docker and Avahi, plus compose stack
// deployment. Scripts are static and receive per-invocation data through bound
// environment variables, matching the hostname publisher's transport contract.
package deploy

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/lxcforge/lxcforge/internal/proxmox"
)

// Runner is the remote-execution surface deploy needs from a backend.
type Runner interface {
	ExecScript(ctx context.Context, ctid proxmox.CTID, script string, env map[string]string) (string, error)
	PushFile(ctx context.Context, ctid proxmox.CTID, path string, content []byte, perms string) error
}

// dockerInstallScript installs Docker Engine and the compose plugin on a
// Debian-family guest. Safe to re-run: apt and the install script both
// short-circuit when Docker is already present.
const dockerInstallScript = `set -eu
export DEBIAN_FRONTEND=noninteractive
if command -v docker >/dev/null 2>&1; then
    echo "docker already installed"
    exit 0
fi
apt-get update -qq
apt-get install -y -qq ca-certificates curl >/dev/null
install -m 0755 -d /etc/apt/keyrings
curl -fsSL https://download.docker.com/linux/debian/gpg -o /etc/apt/keyrings/docker.asc
chmod a+r /etc/apt/keyrings/docker.asc
. /etc/os-release
echo "deb [arch=$(dpkg --print-architecture) signed-by=/etc/apt/keyrings/docker.asc] https://download.docker.com/linux/${ID} ${VERSION_CODENAME} stable" >/etc/apt/sources.list.d/docker.list
apt-get update -qq
apt-get install -y -qq docker-ce docker-ce-cli containerd.io docker-compose-plugin >/dev/null
systemctl enable --now docker >/dev/null 2>&1 || true
echo "docker installed"
`

// avahiInstallScript installs the Avahi mDNS daemon and the NSS module so the
// container answers .local queries on the segment.
const avahiInstallScript = `set -eu
export DEBIAN_FRONTEND=noninteractive
if command -v avahi-daemon >/dev/null 2>&1; then
    echo "avahi already installed"
    exit 0
fi
apt-get update -qq
apt-get install -y -qq avahi-daemon libnss-mdns >/dev/null
systemctl enable --now avahi-daemon >/dev/null 2>&1 || true
echo "avahi installed"
`

// composeUpScript brings up the pushed compose stack. APP_DIR is bound.
const composeUpScript = `set -eu
cd "$APP_DIR"
docker compose up -d
`

// mkdirScript creates the app directory. APP_DIR is bound.
const mkdirScript = `set -eu
mkdir -p "$APP_DIR"
`

// Installer runs guest-side installation steps over a Runner.
type Installer struct {
	Runner Runner
	Log    *log.Logger
}

// InstallDocker installs Docker Engine inside the container.
func (i *Installer) InstallDocker(ctx context.Context, ctid proxmox.CTID) error {
	out, err := i.Runner.ExecScript(ctx, ctid, dockerInstallScript, nil)
	if err != nil {
		return fmt.Errorf("install docker in CT %d: %w", ctid, err)
	}
	i.logf("deploy: CT %d: %s", ctid, lastLine(out))
	return nil
}

// InstallAvahi installs the Avahi mDNS daemon inside the container.
func (i *Installer) InstallAvahi(ctx context.Context, ctid proxmox.CTID) error {
	out, err := i.Runner.ExecScript(ctx, ctid, avahiInstallScript, nil)
	if err != nil {
		return fmt.Errorf("install avahi in CT %d: %w", ctid, err)
	}
	i.logf("deploy: CT %d: %s", ctid, lastLine(out))
	return nil
}

// DeployApp renders the app's compose file, pushes it to /opt/<name>, and
// optionally brings the stack up.
// Re-deploying the same app rewrites the same file content; compose
// itself reconciles running services.
func (i *Installer) DeployApp(ctx context.Context, ctid proxmox.CTID, app App, up bool) error {
	content, err := app.RenderCompose()
	if err != nil {
		return err
	}
	env := map[string]string{"APP_DIR": app.Dir()}
	if _, err := i.Runner.ExecScript(ctx, ctid, mkdirScript, env); err != nil {
		return fmt.Errorf("create %s in CT %d: %w", app.Dir(), ctid, err)
	}
	if err := i.Runner.PushFile(ctx, ctid, app.ComposePath(), content, "0644"); err != nil {
		return fmt.Errorf("push compose file to CT %d: %w", ctid, err)
	}
	i.logf("deploy: CT %d: wrote %s", ctid, app.ComposePath())
	if !up {
		return nil
	}
	if _, err := i.Runner.ExecScript(ctx, ctid, composeUpScript, env); err != nil {
		return fmt.Errorf("compose up %q in CT %d: %w", app.Name, ctid, err)
	}
	i.logf("deploy: CT %d: started %s", ctid, app.Name)
	return nil
}

func (i *Installer) logf(format string, args ...any) {
	if i.Log != nil {
		i.Log.Printf(format, args...)
	}
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
