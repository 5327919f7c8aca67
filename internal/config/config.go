// Package config holds provisioning defaults for lxcforge.
//
// Configuration is layered: compiled-in defaults, then YAML file
// overrides, then LXCFORGE_* environment overrides. Every value can also be
// superseded by a command-line flag at the call site.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds container creation defaults and node settings.
type Config struct {
	ConfigPath     string
	PctPath        string
	OSTemplate     string
	RootfsStorage  string
	RootfsGB       int
	Cores          int
	MemoryMB       int
	SwapMB         int
	Bridge         string
	Unprivileged   bool
	Nesting        bool
	FallbackIface  string
	CatalogDir     string
	CommandTimeout time.Duration
	UseBashRunner  bool
}

// FileConfig represents supported YAML config overrides.
type FileConfig struct {
	PctPath               string `yaml:"pct_path"`
	OSTemplate            string `yaml:"os_template"`
	RootfsStorage         string `yaml:"rootfs_storage"`
	RootfsGB              int    `yaml:"rootfs_gb"`
	Cores                 int    `yaml:"cores"`
	MemoryMB              int    `yaml:"memory_mb"`
	SwapMB                int    `yaml:"swap_mb"`
	Bridge                string `yaml:"bridge"`
	Unprivileged          *bool  `yaml:"unprivileged"`
	Nesting               *bool  `yaml:"nesting"`
	FallbackIface         string `yaml:"fallback_iface"`
	CatalogDir            string `yaml:"catalog_dir"`
	CommandTimeoutSeconds int    `yaml:"command_timeout_seconds"`
	UseBashRunner         *bool  `yaml:"use_bash_runner"`
}

func DefaultConfig() Config {
	return Config{
		ConfigPath:     "/etc/lxcforge/config.yaml",
		PctPath:        "pct",
		OSTemplate:     "local:vztmpl/debian-12-standard_12.7-1_amd64.tar.zst",
		RootfsStorage:  "local-lvm",
		RootfsGB:       8,
		Cores:          2,
		MemoryMB:       2048,
		SwapMB:         512,
		Bridge:         "vmbr0",
		Unprivileged:   true,
		Nesting:        true,
		FallbackIface:  "eth0",
		CatalogDir:     "/etc/lxcforge/apps",
		CommandTimeout: 10 * time.Minute,
	}
}

// Load reads the YAML config file (when present) and applies file then
// environment overrides to the defaults.
// A missing file at the default path is not an error; a missing file
// at an explicitly requested path is.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	explicit := path != ""
	if explicit {
		cfg.ConfigPath = path
	}
	data, err := os.ReadFile(cfg.ConfigPath)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			applyEnv(&cfg)
			return cfg, cfg.Validate()
		}
		return cfg, fmt.Errorf("read config %s: %w", cfg.ConfigPath, err)
	}
	var fileCfg FileConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", cfg.ConfigPath, err)
	}
	applyFileConfig(&cfg, fileCfg)
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyFileConfig(cfg *Config, fileCfg FileConfig) {
	if fileCfg.PctPath != "" {
		cfg.PctPath = fileCfg.PctPath
	}
	if fileCfg.OSTemplate != "" {
		cfg.OSTemplate = fileCfg.OSTemplate
	}
	if fileCfg.RootfsStorage != "" {
		cfg.RootfsStorage = fileCfg.RootfsStorage
	}
	if fileCfg.RootfsGB > 0 {
		cfg.RootfsGB = fileCfg.RootfsGB
	}
	if fileCfg.Cores > 0 {
		cfg.Cores = fileCfg.Cores
	}
	if fileCfg.MemoryMB > 0 {
		cfg.MemoryMB = fileCfg.MemoryMB
	}
	if fileCfg.SwapMB > 0 {
		cfg.SwapMB = fileCfg.SwapMB
	}
	if fileCfg.Bridge != "" {
		cfg.Bridge = fileCfg.Bridge
	}
	if fileCfg.Unprivileged != nil {
		cfg.Unprivileged = *fileCfg.Unprivileged
	}
	if fileCfg.Nesting != nil {
		cfg.Nesting = *fileCfg.Nesting
	}
	if fileCfg.FallbackIface != "" {
		cfg.FallbackIface = fileCfg.FallbackIface
	}
	if fileCfg.CatalogDir != "" {
		cfg.CatalogDir = fileCfg.CatalogDir
	}
	if fileCfg.CommandTimeoutSeconds > 0 {
		cfg.CommandTimeout = time.Duration(fileCfg.CommandTimeoutSeconds) * time.Second
	}
	if fileCfg.UseBashRunner != nil {
		cfg.UseBashRunner = *fileCfg.UseBashRunner
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("LXCFORGE_PCT_PATH"); v != "" {
		cfg.PctPath = v
	}
	if v := os.Getenv("LXCFORGE_OS_TEMPLATE"); v != "" {
		cfg.OSTemplate = v
	}
	if v := os.Getenv("LXCFORGE_ROOTFS_STORAGE"); v != "" {
		cfg.RootfsStorage = v
	}
	if v := os.Getenv("LXCFORGE_BRIDGE"); v != "" {
		cfg.Bridge = v
	}
	if v := os.Getenv("LXCFORGE_FALLBACK_IFACE"); v != "" {
		cfg.FallbackIface = v
	}
	if v := os.Getenv("LXCFORGE_CATALOG_DIR"); v != "" {
		cfg.CatalogDir = v
	}
	if v := os.Getenv("LXCFORGE_CORES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Cores = n
		}
	}
	if v := os.Getenv("LXCFORGE_MEMORY_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MemoryMB = n
		}
	}
	if v := os.Getenv("LXCFORGE_ROOTFS_GB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RootfsGB = n
		}
	}
}

// Validate performs basic sanity checks on the merged configuration.
func (c Config) Validate() error {
	if c.PctPath == "" {
		return fmt.Errorf("pct_path is required")
	}
	if c.OSTemplate == "" {
		return fmt.Errorf("os_template is required")
	}
	if c.RootfsStorage == "" {
		return fmt.Errorf("rootfs_storage is required")
	}
	if c.RootfsGB <= 0 {
		return fmt.Errorf("rootfs_gb must be positive")
	}
	if c.Cores <= 0 {
		return fmt.Errorf("cores must be positive")
	}
	if c.MemoryMB <= 0 {
		return fmt.Errorf("memory_mb must be positive")
	}
	if c.Bridge == "" {
		return fmt.Errorf("bridge is required")
	}
	if c.FallbackIface == "" {
		return fmt.Errorf("fallback_iface is required")
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("command_timeout_seconds must be positive")
	}
	return nil
}
