// Package environment provides the core abstraction layer for application
// environment management. It defines interfaces and structures for
// provisioning isolated environments, launching applications inside them,
// and inspecting their state.
package environment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Sentinel errors surfaced by managers and providers
var (
	ErrAppNotConfigured   = errors.New("app is not configured or not enabled")
	ErrNoAppsEnabled      = errors.New("no apps are enabled in configuration")
	ErrManifestMissing    = errors.New("manifest file does not exist")
	ErrEnvironmentMissing = errors.New("environment does not exist")
)

// Actions reported by a provisioning run.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionSkipped = "skipped"
)

// Stages at which provisioning can fail, carried in ProvisioningError.
const (
	StageManifest     = "manifest"
	StageVerification = "verification"
	StageConstraint   = "constraint"
	StageCreation     = "creation"
	StageInstallation = "installation"
	StageHook         = "hook"
)

// ProvisioningError reports a failed provisioning run and the stage it
// failed at. Provisioning does not retry or roll back; the state on disk
// is whatever the failing stage left behind.
type ProvisioningError struct {
	App   string
	Stage string
	Err   error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning app %s failed at stage %s: %v", e.App, e.Stage, e.Err)
}

func (e *ProvisioningError) Unwrap() error {
	return e.Err
}

// LaunchError reports a failed or non-zero application launch. ExitCode
// holds the process exit status when the app ran and exited; Err is set
// when the launch itself failed.
type LaunchError struct {
	App      string
	ExitCode int
	Err      error
}

func (e *LaunchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("launching app %s failed: %v", e.App, e.Err)
	}
	return fmt.Sprintf("app %s exited with status %d", e.App, e.ExitCode)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// ProvisionOptions carries the inputs for provisioning one application.
type ProvisionOptions struct {
	App              string // registry key of the application
	ManifestPath     string // resolved path to the dependency manifest
	EnvDir           string // resolved path to the environment directory
	PythonConstraint string // semver constraint on the interpreter, empty for any
	Force            bool   // reinstall even when the environment is fresh
}

// ProvisionResult describes what a provisioning run did.
type ProvisionResult struct {
	App           string
	Action        string // "created", "updated" or "skipped"
	EnvDir        string
	PythonVersion string
	PackageCount  int
	Duration      time.Duration
}

// LaunchOptions carries the inputs for launching one application.
type LaunchOptions struct {
	App     string   // registry key of the application
	Module  string   // module handed to the launch template
	EnvDir  string   // resolved path to the environment directory
	Dir     string   // working directory for the process
	Command []string // argument template with {app}, {host} and {port} placeholders
	Host    string
	Port    string
	Debug   bool
	Env     []string // extra KEY=VALUE pairs appended to the process environment
}

// Info describes the observed state of an application environment.
type Info struct {
	App           string `json:"app"`
	EnvDir        string `json:"environment_directory"`
	Exists        bool   `json:"exists"`
	Fresh         bool   `json:"fresh"`
	PythonVersion string `json:"python_version,omitempty"`
	PackageCount  int    `json:"package_count,omitempty"`
}

// Provider defines the interface that all environment providers must implement
type Provider interface {
	// Provision brings the application's environment in line with its
	// manifest, creating or updating it as needed, and reports the action
	// taken. A fresh environment is left untouched.
	Provision(ctx context.Context, opts ProvisionOptions) (*ProvisionResult, error)

	// Launch starts the application inside its provisioned environment and
	// blocks until the process exits. A non-zero exit or a missing
	// environment is reported as a LaunchError.
	Launch(ctx context.Context, opts LaunchOptions) error

	// Inspect reports the environment's current state without modifying it
	Inspect(ctx context.Context, opts ProvisionOptions) (*Info, error)

	// Name returns the provider identifier (e.g., "venv")
	Name() string
}

// Registry manages registered environment providers
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds an environment provider to the registry
func (r *Registry) Register(name string, provider Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	if provider == nil {
		return fmt.Errorf("provider cannot be nil")
	}
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %s is already registered", name)
	}

	r.providers[name] = provider
	return nil
}

// Get retrieves an environment provider by name
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[name]
	if !exists {
		return nil, fmt.Errorf("provider %s not found", name)
	}
	return provider, nil
}

// List returns all registered provider names
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
