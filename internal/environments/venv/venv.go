// Package venv implements the environment provider backed by Python's
// built-in venv module and pip. An environment is a directory created by
// "python -m venv"; its modification time against the manifest's decides
// whether dependencies are reinstalled.
package venv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/envrun-project/envrun/internal/environment"
	"github.com/envrun-project/envrun/internal/interpreter"
	"github.com/envrun-project/envrun/internal/pip"
	"github.com/envrun-project/envrun/internal/version"
)

// Venv is the provider name used for registration
const Venv = "venv"

// Provider implements environment.Provider using python -m venv and pip.
type Provider struct {
	installer  *pip.Installer
	process    ProcessRunner
	checker    version.Checker
	layout     interpreter.Layout
	findPython func() (string, error)
	stdout     *slog.Logger
	stderr     *slog.Logger
}

// New creates a venv provider that runs real python and pip processes.
func New(stdout, stderr *slog.Logger) *Provider {
	if stdout == nil {
		stdout = slog.Default()
	}
	return NewWithRunners(
		pip.NewInstaller(pip.NewRealCommandRunner(), stdout),
		NewRealProcessRunner(),
		stdout, stderr)
}

// NewWithRunners creates a venv provider with custom process runners.
// Used by tests to avoid spawning real interpreters.
func NewWithRunners(installer *pip.Installer, process ProcessRunner, stdout, stderr *slog.Logger) *Provider {
	if stdout == nil {
		stdout = slog.Default()
	}
	if stderr == nil {
		stderr = slog.Default()
	}
	return &Provider{
		installer:  installer,
		process:    process,
		checker:    version.New(),
		layout:     interpreter.CurrentLayout(),
		findPython: interpreter.FindBasePython,
		stdout:     stdout,
		stderr:     stderr,
	}
}

// Name returns the provider identifier
func (p *Provider) Name() string {
	return Venv
}

// Provision creates or refreshes the application's virtual environment.
//
// The environment is fresh when its directory is at least as new as the
// manifest; a fresh environment is a pure no-op. A missing directory is
// created and installed into. A stale directory, or any directory under
// --force, gets the manifest reinstalled. The directory's modification
// time is set to now only after a successful install, so a failed run
// leaves the environment stale and the next run retries.
func (p *Provider) Provision(ctx context.Context, opts environment.ProvisionOptions) (*environment.ProvisionResult, error) {
	start := time.Now()

	manifestInfo, err := os.Stat(opts.ManifestPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("%w: %s", environment.ErrManifestMissing, opts.ManifestPath)
		}
		return nil, &environment.ProvisioningError{App: opts.App, Stage: environment.StageManifest, Err: err}
	}

	dirInfo, err := os.Stat(opts.EnvDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, &environment.ProvisioningError{App: opts.App, Stage: environment.StageCreation, Err: err}
	}
	exists := err == nil

	if exists && !opts.Force && !dirInfo.ModTime().Before(manifestInfo.ModTime()) {
		p.stdout.Debug("Environment is up to date",
			"app", opts.App,
			"dir", opts.EnvDir,
			"manifest", opts.ManifestPath)
		return &environment.ProvisionResult{
			App:      opts.App,
			Action:   environment.ActionSkipped,
			EnvDir:   opts.EnvDir,
			Duration: time.Since(start),
		}, nil
	}

	action := environment.ActionUpdated
	var pythonVersion string

	if exists {
		venvPython := p.layout.VenvPython(opts.EnvDir)
		pythonVersion, err = p.installer.PythonVersion(ctx, venvPython)
		if err != nil {
			return nil, &environment.ProvisioningError{App: opts.App, Stage: environment.StageCreation,
				Err: fmt.Errorf("environment has no usable interpreter: %w", err)}
		}
		if err := p.checkConstraint(pythonVersion, opts); err != nil {
			return nil, err
		}
	} else {
		action = environment.ActionCreated
		pythonVersion, err = p.createEnvironment(ctx, opts, manifestInfo.ModTime())
		if err != nil {
			return nil, err
		}
	}

	venvPython := p.layout.VenvPython(opts.EnvDir)
	installResult, err := p.installer.Install(ctx, venvPython, opts.ManifestPath)
	if err != nil {
		p.stderr.Error("Dependency installation failed", "app", opts.App, "error", err)
		return nil, &environment.ProvisioningError{App: opts.App, Stage: environment.StageInstallation, Err: err}
	}

	// Mark the environment current. This is what the next freshness check
	// compares against the manifest.
	now := time.Now()
	if err := os.Chtimes(opts.EnvDir, now, now); err != nil {
		return nil, &environment.ProvisioningError{App: opts.App, Stage: environment.StageInstallation,
			Err: fmt.Errorf("failed to update environment timestamp: %w", err)}
	}

	packageCount := len(installResult.Installed)
	if packages, err := p.installer.ListInstalled(ctx, venvPython); err == nil {
		packageCount = len(packages)
	} else {
		p.stderr.Warn("Failed to list installed packages", "app", opts.App, "error", err)
	}

	p.stdout.Info("Environment provisioned",
		"app", opts.App,
		"action", action,
		"dir", opts.EnvDir,
		"python", pythonVersion,
		"packages", packageCount)

	return &environment.ProvisionResult{
		App:           opts.App,
		Action:        action,
		EnvDir:        opts.EnvDir,
		PythonVersion: pythonVersion,
		PackageCount:  packageCount,
		Duration:      time.Since(start),
	}, nil
}

// createEnvironment locates a base interpreter, checks it against the
// app's version constraint and builds the venv directory. The new
// directory is backdated behind the manifest so that only the
// post-install touch marks it current; a failed install leaves it stale.
func (p *Provider) createEnvironment(ctx context.Context, opts environment.ProvisionOptions, manifestTime time.Time) (string, error) {
	basePython, err := p.findPython()
	if err != nil {
		return "", &environment.ProvisioningError{App: opts.App, Stage: environment.StageCreation, Err: err}
	}

	baseVersion, err := p.installer.PythonVersion(ctx, basePython)
	if err != nil {
		return "", &environment.ProvisioningError{App: opts.App, Stage: environment.StageCreation, Err: err}
	}
	if err := p.checkConstraint(baseVersion, opts); err != nil {
		return "", err
	}

	p.stdout.Info("Creating environment",
		"app", opts.App,
		"dir", opts.EnvDir,
		"python", basePython,
		"version", baseVersion)

	if err := p.installer.CreateVenv(ctx, basePython, opts.EnvDir); err != nil {
		return "", &environment.ProvisioningError{App: opts.App, Stage: environment.StageCreation, Err: err}
	}

	stale := manifestTime.Add(-time.Second)
	if err := os.Chtimes(opts.EnvDir, stale, stale); err != nil {
		return "", &environment.ProvisioningError{App: opts.App, Stage: environment.StageCreation,
			Err: fmt.Errorf("failed to set environment timestamp: %w", err)}
	}

	return baseVersion, nil
}

func (p *Provider) checkConstraint(pythonVersion string, opts environment.ProvisionOptions) error {
	if opts.PythonConstraint == "" {
		return nil
	}
	if err := p.checker.CheckConstraint(pythonVersion, opts.PythonConstraint); err != nil {
		return &environment.ProvisioningError{App: opts.App, Stage: environment.StageConstraint,
			Err: fmt.Errorf("interpreter %s does not satisfy %q: %w", pythonVersion, opts.PythonConstraint, err)}
	}
	return nil
}

// Inspect reports the environment's state without touching it.
func (p *Provider) Inspect(ctx context.Context, opts environment.ProvisionOptions) (*environment.Info, error) {
	info := &environment.Info{
		App:    opts.App,
		EnvDir: opts.EnvDir,
	}

	manifestInfo, err := os.Stat(opts.ManifestPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", environment.ErrManifestMissing, opts.ManifestPath)
		}
		return nil, err
	}

	dirInfo, err := os.Stat(opts.EnvDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return info, nil
		}
		return nil, err
	}
	info.Exists = true
	info.Fresh = !dirInfo.ModTime().Before(manifestInfo.ModTime())

	venvPython := p.layout.VenvPython(opts.EnvDir)
	if ver, err := p.installer.PythonVersion(ctx, venvPython); err == nil {
		info.PythonVersion = ver
	}
	if packages, err := p.installer.ListInstalled(ctx, venvPython); err == nil {
		info.PackageCount = len(packages)
	}

	return info, nil
}
