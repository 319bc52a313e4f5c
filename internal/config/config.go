// Package config provides configuration management for the environment provisioning system.
// It handles YAML-based application registry configuration including launch settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Sentinel errors for configuration validation
var (
	ErrVersionRequired     = errors.New("version is required")
	ErrNoApps              = errors.New("at least one app must be configured")
	ErrManifestRequired    = errors.New("manifest is required for enabled app")
	ErrEnvDirRequired      = errors.New("environment_directory is required for enabled app")
	ErrKeyringFileRequired = errors.New("keyring_file is required when gpg is enabled")
	ErrRepositoryRequired  = errors.New("github_repository is required when auto_publish is enabled")
)

// Config represents the top-level configuration structure.
type Config struct {
	Version  string         `yaml:"version"`
	Metadata Metadata       `yaml:"metadata"`
	Config   GlobalConfig   `yaml:"config"`
	Apps     map[string]App `yaml:"apps"`

	baseDir string // directory of the loaded file, for resolving relative paths
}

// Metadata represents metadata about the configuration.
type Metadata struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Created     string `yaml:"created"`
	Updated     string `yaml:"updated"`
}

// StorageConfig represents storage configuration for the provisioning journal.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// IndexConfig represents package index settings for outdated checks.
type IndexConfig struct {
	BaseURL   string `yaml:"base_url"`
	Timeout   string `yaml:"timeout"`
	UserAgent string `yaml:"user_agent"`
}

// GetTimeout parses and returns the index request timeout duration
func (i *IndexConfig) GetTimeout() time.Duration {
	if i.Timeout == "" {
		return 30 * time.Second // Default timeout
	}
	timeout, err := time.ParseDuration(i.Timeout)
	if err != nil {
		return 30 * time.Second // Default on parse error
	}
	return timeout
}

// ReportConfig represents report generation settings.
type ReportConfig struct {
	OutputDir string `yaml:"output_dir"`
	Title     string `yaml:"title"`
}

// GlobalConfig represents global configuration settings.
type GlobalConfig struct {
	ProvisionTimeout string        `yaml:"provision_timeout"`
	Storage          StorageConfig `yaml:"storage"`
	Index            IndexConfig   `yaml:"index"`
	Report           ReportConfig  `yaml:"report"`
	IgnoreFile       string        `yaml:"ignore_file"` // Path to file listing packages to skip in outdated checks
}

// GetProvisionTimeout parses and returns the provisioning timeout duration
func (g *GlobalConfig) GetProvisionTimeout() time.Duration {
	if g.ProvisionTimeout == "" {
		return 15 * time.Minute // Default timeout
	}
	timeout, err := time.ParseDuration(g.ProvisionTimeout)
	if err != nil {
		return 15 * time.Minute // Default on parse error
	}
	return timeout
}

// App represents configuration for a specific application.
type App struct {
	Enabled      bool          `yaml:"enabled"`
	Name         string        `yaml:"name"`
	Description  string        `yaml:"description"`
	Manifest     string        `yaml:"manifest"`
	EnvDir       string        `yaml:"environment_directory"`
	Python       string        `yaml:"python"` // version constraint for the base interpreter
	Provisioner  string        `yaml:"provisioner"`
	Launch       LaunchConfig  `yaml:"launch"`
	Hooks        HooksConfig   `yaml:"hooks"`
	Verification Verification  `yaml:"verification"`
	Publish      PublishConfig `yaml:"publish"`
}

// LaunchConfig represents dev server launch configuration.
type LaunchConfig struct {
	Module  string   `yaml:"module"`  // application module passed to the launcher
	Command []string `yaml:"command"` // argument template with {app}, {host} and {port} placeholders
	Host    string   `yaml:"host"`
	Port    string   `yaml:"port"`
	Debug   bool     `yaml:"debug"`
}

// HooksConfig represents shell hooks run around provisioning and launch.
type HooksConfig struct {
	PreProvision  string `yaml:"pre_provision"`
	PostProvision string `yaml:"post_provision"`
	PreRun        string `yaml:"pre_run"`
}

// Verification represents manifest verification configuration for an app.
type Verification struct {
	Enabled bool            `yaml:"enabled"`
	GPG     GPGVerification `yaml:"gpg"`
}

// GPGVerification represents GPG signature checking for the manifest.
type GPGVerification struct {
	Enabled       bool   `yaml:"enabled"`
	KeyringFile   string `yaml:"keyring_file"`
	SignatureFile string `yaml:"signature_file"` // defaults to {manifest}.asc
}

// PublishConfig represents GitHub release configuration for snapshots of an app.
type PublishConfig struct {
	AutoPublish         bool   `yaml:"auto_publish"`          // Publish every snapshot without --publish
	GitHubRepository    string `yaml:"github_repository"`     // Repository in "owner/repo" format
	DraftRelease        bool   `yaml:"draft_release"`         // Create as draft (default: false)
	ReleaseNameTemplate string `yaml:"release_name_template"` // e.g., "CMS snapshot {tag}"
}

// LoadConfig loads and parses the application registry configuration from a YAML file.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filePath, err)
	}
	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	config.baseDir = filepath.Dir(filePath)
	return &config, nil
}

// Validate validates the configuration structure and required fields.
func (c *Config) Validate() error {
	if c.Version == "" {
		return ErrVersionRequired
	}
	if len(c.Apps) == 0 {
		return ErrNoApps
	}
	for name, app := range c.Apps {
		if err := app.Validate(name); err != nil {
			return fmt.Errorf("app %s: %w", name, err)
		}
	}
	return nil
}

// Validate validates an application configuration.
func (a *App) Validate(name string) error {
	if !a.Enabled {
		return nil // Skip validation for disabled apps
	}
	if a.Manifest == "" {
		return ErrManifestRequired
	}
	if a.EnvDir == "" {
		return ErrEnvDirRequired
	}
	if a.Verification.Enabled && a.Verification.GPG.Enabled {
		if a.Verification.GPG.KeyringFile == "" {
			return ErrKeyringFileRequired
		}
		// Signature file is optional, {manifest}.asc is assumed
	}
	if a.Publish.AutoPublish && a.Publish.GitHubRepository == "" {
		return ErrRepositoryRequired
	}
	return nil
}

// ResolvePath resolves a possibly relative path against the config file's directory.
// Paths from DefaultConfig resolve against the working directory.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.baseDir, p)
}

// GetEnabledApps returns a map of enabled application configurations.
func (c *Config) GetEnabledApps() map[string]App {
	enabled := make(map[string]App)
	for name, app := range c.Apps {
		if app.Enabled {
			enabled[name] = app
		}
	}
	return enabled
}

// GetAppConfig returns the configuration for a specific application.
func (c *Config) GetAppConfig(name string) (App, bool) {
	app, exists := c.Apps[name]
	return app, exists && app.Enabled
}

// LaunchModule returns the module handed to the launcher for an app,
// falling back to the registry key when none is configured.
func (a *App) LaunchModule(name string) string {
	if a.Launch.Module != "" {
		return a.Launch.Module
	}
	return name
}

// SignaturePath returns the detached signature path for the app's manifest.
func (a *App) SignaturePath() string {
	if a.Verification.GPG.SignatureFile != "" {
		return a.Verification.GPG.SignatureFile
	}
	return a.Manifest + ".asc"
}

// DefaultConfig returns a default configuration with the CMS application.
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0",
		Metadata: Metadata{
			Name:        "envrun application registry",
			Description: "Provisioning and launch settings for local Flask development",
		},
		Config: GlobalConfig{
			ProvisionTimeout: "15m",
			Storage: StorageConfig{
				DatabasePath: "envrun.db",
			},
			Index: IndexConfig{
				BaseURL: "https://pypi.org/pypi",
				Timeout: "30s",
			},
			Report: ReportConfig{
				OutputDir: "site",
				Title:     "Environment Report",
			},
		},
		Apps: map[string]App{
			"cms": {
				Enabled:     true,
				Name:        "CMS",
				Description: "Flask content management application",
				Manifest:    "requirements.txt",
				EnvDir:      "venv",
				Python:      ">= 3.9",
				Launch: LaunchConfig{
					Module:  "cms",
					Command: []string{"-m", "flask", "--app", "{app}", "run", "--debug"},
					Host:    "127.0.0.1",
					Port:    "5000",
					Debug:   true,
				},
			},
		},
	}
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(config *Config, filePath string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", filePath, err)
	}
	return nil
}
