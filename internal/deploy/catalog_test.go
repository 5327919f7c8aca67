package deploy

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestBuiltinCatalogValid(t *testing.T) {
	c := BuiltinCatalog()
	if len(c.Names()) == 0 {
		t.Fatal("builtin catalog is empty")
	}
	for _, app := range c.Apps() {
		if err := app.Validate(); err != nil {
			t.Fatalf("builtin app %q invalid: %v", app.Name, err)
		}
	}
}

func TestRenderComposeWellFormed(t *testing.T) {
	c := BuiltinCatalog()
	app, err := c.Get("portainer")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	data, err := app.RenderCompose()
	if err != nil {
		t.Fatalf("RenderCompose() error = %v", err)
	}
	var parsed ComposeProject
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("rendered compose is not valid YAML: %v", err)
	}
	if parsed.Services["portainer"].Image != "portainer/portainer-ce:lts" {
		t.Fatalf("round-tripped image = %q", parsed.Services["portainer"].Image)
	}
	if !strings.Contains(string(data), "unless-stopped") {
		t.Fatalf("rendered compose missing restart policy:\n%s", data)
	}
}

func TestRenderComposeDeterministic(t *testing.T) {
	c := BuiltinCatalog()
	app, err := c.Get("adguard")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	first, err := app.RenderCompose()
	if err != nil {
		t.Fatalf("RenderCompose() error = %v", err)
	}
	second, err := app.RenderCompose()
	if err != nil {
		t.Fatalf("RenderCompose() error = %v", err)
	}
	if string(first) != string(second) {
		t.Fatal("RenderCompose() output not deterministic")
	}
}

func TestAppValidate(t *testing.T) {
	tests := []struct {
		name    string
		app     App
		wantErr bool
	}{
		{
			name: "valid",
			app: App{Name: "my-app", Compose: ComposeProject{
				Services: map[string]ComposeService{"web": {Image: "nginx:alpine"}},
			}},
		},
		{name: "bad name", app: App{Name: "My App", Compose: ComposeProject{
			Services: map[string]ComposeService{"web": {Image: "nginx"}},
		}}, wantErr: true},
		{name: "leading hyphen", app: App{Name: "-app", Compose: ComposeProject{
			Services: map[string]ComposeService{"web": {Image: "nginx"}},
		}}, wantErr: true},
		{name: "no services", app: App{Name: "empty"}, wantErr: true},
		{name: "service without image", app: App{Name: "app", Compose: ComposeProject{
			Services: map[string]ComposeService{"web": {}},
		}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.app.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadCatalogMergesUserApps(t *testing.T) {
	dir := t.TempDir()
	def := `name: homepage
description: Dashboard
compose:
  services:
    homepage:
      image: ghcr.io/gethomepage/homepage:latest
      restart: unless-stopped
      ports:
        - "3000:3000"
`
	if err := os.WriteFile(filepath.Join(dir, "homepage.yaml"), []byte(def), 0o644); err != nil {
		t.Fatalf("write app definition: %v", err)
	}

	c, err := LoadCatalog(dir)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	app, err := c.Get("homepage")
	if err != nil {
		t.Fatalf("Get(homepage) error = %v", err)
	}
	if app.Compose.Services["homepage"].Image != "ghcr.io/gethomepage/homepage:latest" {
		t.Fatalf("loaded image = %q", app.Compose.Services["homepage"].Image)
	}
	// Builtins survive the merge.
	if _, err := c.Get("portainer"); err != nil {
		t.Fatalf("builtin lost after merge: %v", err)
	}
}

func TestLoadCatalogOverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	def := `name: portainer
compose:
  services:
    portainer:
      image: portainer/portainer-ce:2.21.0
`
	if err := os.WriteFile(filepath.Join(dir, "portainer.yml"), []byte(def), 0o644); err != nil {
		t.Fatalf("write app definition: %v", err)
	}
	c, err := LoadCatalog(dir)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	app, err := c.Get("portainer")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if app.Compose.Services["portainer"].Image != "portainer/portainer-ce:2.21.0" {
		t.Fatalf("override not applied: %q", app.Compose.Services["portainer"].Image)
	}
}

func TestLoadCatalogMissingDir(t *testing.T) {
	c, err := LoadCatalog(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if !reflect.DeepEqual(c.Names(), BuiltinCatalog().Names()) {
		t.Fatalf("missing dir should yield builtin catalog, got %v", c.Names())
	}
}

func TestLoadCatalogRejectsInvalidDefinition(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("name: Bad Name\n"), 0o644); err != nil {
		t.Fatalf("write app definition: %v", err)
	}
	if _, err := LoadCatalog(dir); err == nil {
		t.Fatal("LoadCatalog() expected error for invalid definition")
	}
}
