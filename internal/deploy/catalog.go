// Package deploy installs container runtime services and application compose
// stacks inside provisioned LXC containers.
//
// The catalog maps app names to Docker Compose projects. Built-in apps
// ship with the binary; additional apps are loaded from YAML files in the
// configured catalog directory and may override built-ins by name.
package deploy

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ComposeProject is the subset of the compose file format the catalog emits.
// Compose files are produced by marshalling these structs, never by
// string templating, so the output is always well-formed YAML.
type ComposeProject struct {
	Services map[string]ComposeService `yaml:"services"`
	Volumes  map[string]struct{}       `yaml:"volumes,omitempty"`
}

// ComposeService describes one service entry in a compose project.
type ComposeService struct {
	Image         string            `yaml:"image"`
	ContainerName string            `yaml:"container_name,omitempty"`
	Restart       string            `yaml:"restart,omitempty"`
	Ports         []string          `yaml:"ports,omitempty"`
	Environment   map[string]string `yaml:"environment,omitempty"`
	Volumes       []string          `yaml:"volumes,omitempty"`
	CapAdd        []string          `yaml:"cap_add,omitempty"`
}

// App is a deployable application: a named compose project.
type App struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Compose     ComposeProject `yaml:"compose"`
}

var appNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Validate checks the app definition is deployable.
func (a App) Validate() error {
	if !appNameRe.MatchString(a.Name) {
		return fmt.Errorf("app name %q must match %s", a.Name, appNameRe)
	}
	if len(a.Compose.Services) == 0 {
		return fmt.Errorf("app %q has no services", a.Name)
	}
	for name, svc := range a.Compose.Services {
		if strings.TrimSpace(svc.Image) == "" {
			return fmt.Errorf("app %q service %q has no image", a.Name, name)
		}
	}
	return nil
}

// RenderCompose marshals the app's compose project to YAML.
func (a App) RenderCompose() ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return yaml.Marshal(a.Compose)
}

// Dir returns the app's directory inside the target container.
func (a App) Dir() string {
	return "/opt/" + a.Name
}

// ComposePath returns the compose file path inside the target container.
func (a App) ComposePath() string {
	return a.Dir() + "/compose.yaml"
}

// Catalog holds the deployable apps, keyed by name.
type Catalog struct {
	apps map[string]App
}

// BuiltinCatalog returns the catalog of apps shipped with the binary.
func BuiltinCatalog() *Catalog {
	c := &Catalog{apps: make(map[string]App)}
	for _, app := range builtinApps {
		c.apps[app.Name] = app
	}
	return c
}

// LoadCatalog returns the builtin catalog merged with YAML app definitions
// from dir. A missing directory yields the builtin catalog unchanged.
func LoadCatalog(dir string) (*Catalog, error) {
	c := BuiltinCatalog()
	if dir == "" {
		return c, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("read catalog dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read app definition %s: %w", path, err)
		}
		var app App
		if err := yaml.Unmarshal(data, &app); err != nil {
			return nil, fmt.Errorf("parse app definition %s: %w", path, err)
		}
		if err := app.Validate(); err != nil {
			return nil, fmt.Errorf("app definition %s: %w", path, err)
		}
		c.apps[app.Name] = app
	}
	return c, nil
}

// Get returns the named app.
func (c *Catalog) Get(name string) (App, error) {
	app, ok := c.apps[name]
	if !ok {
		return App{}, fmt.Errorf("unknown app %q", name)
	}
	return app, nil
}

// Names returns the catalog's app names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.apps))
	for name := range c.apps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apps returns all catalog entries ordered by name.
func (c *Catalog) Apps() []App {
	names := c.Names()
	apps := make([]App, 0, len(names))
	for _, name := range names {
		apps = append(apps, c.apps[name])
	}
	return apps
}

var builtinApps = []App{
	{
		Name:        "portainer",
		Description: "Docker management UI",
		Compose: ComposeProject{
			Services: map[string]ComposeService{
				"portainer": {
					Image:         "portainer/portainer-ce:lts",
					ContainerName: "portainer",
					Restart:       "unless-stopped",
					Ports:         []string{"9443:9443", "8000:8000"},
					Volumes: []string{
						"/var/run/docker.sock:/var/run/docker.sock",
						"portainer_data:/data",
					},
				},
			},
			Volumes: map[string]struct{}{"portainer_data": {}},
		},
	},
	{
		Name:        "uptime-kuma",
		Description: "Self-hosted uptime monitoring",
		Compose: ComposeProject{
			Services: map[string]ComposeService{
				"uptime-kuma": {
					Image:         "louislam/uptime-kuma:1",
					ContainerName: "uptime-kuma",
					Restart:       "unless-stopped",
					Ports:         []string{"3001:3001"},
					Volumes:       []string{"uptime_kuma_data:/app/data"},
				},
			},
			Volumes: map[string]struct{}{"uptime_kuma_data": {}},
		},
	},
	{
		Name:        "adguard",
		Description: "Network-wide ad blocking DNS server",
		Compose: ComposeProject{
			Services: map[string]ComposeService{
				"adguard": {
					Image:         "adguard/adguardhome:latest",
					ContainerName: "adguard",
					Restart:       "unless-stopped",
					Ports: []string{
						"53:53/tcp",
						"53:53/udp",
						"3000:3000/tcp",
						"80:80/tcp",
					},
					Volumes: []string{
						"adguard_work:/opt/adguardhome/work",
						"adguard_conf:/opt/adguardhome/conf",
					},
				},
			},
			Volumes: map[string]struct{}{
				"adguard_work": {},
				"adguard_conf": {},
			},
		},
	},
}
