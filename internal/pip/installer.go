package pip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Sentinel errors
var (
	ErrPythonUnavailable = errors.New("python interpreter not available")
)

// InstallResult represents the outcome of a dependency installation.
type InstallResult struct {
	Installed []string // name-version pairs pip reported as newly installed
	Output    string
	Duration  time.Duration
}

// Installer runs python and pip for a single environment.
type Installer struct {
	runner CommandRunner
	logger *slog.Logger
}

// NewInstaller creates an installer backed by the given command runner.
func NewInstaller(runner CommandRunner, logger *slog.Logger) *Installer {
	return &Installer{
		runner: runner,
		logger: logger,
	}
}

// IsAvailable checks whether the given interpreter can be executed.
func (i *Installer) IsAvailable(ctx context.Context, python string) bool {
	_, err := i.runner.Run(ctx, python, "--version")
	return err == nil
}

// PythonVersion returns the version string of an interpreter ("3.11.4").
func (i *Installer) PythonVersion(ctx context.Context, python string) (string, error) {
	output, err := i.runner.Run(ctx, python, "--version")
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrPythonUnavailable, python)
	}
	return parsePythonVersion(output)
}

// CreateVenv creates a virtual environment at dir using the base interpreter.
func (i *Installer) CreateVenv(ctx context.Context, basePython, dir string) error {
	if i.logger != nil {
		i.logger.Info("creating virtual environment", "python", basePython, "dir", dir)
	}

	output, err := i.runner.Run(ctx, basePython, "-m", "venv", dir)
	if err != nil {
		exitCode := extractExitCode(err)
		if exitCode < 0 {
			return fmt.Errorf("failed to run venv creation: %w", err)
		}
		return fmt.Errorf("venv creation exited with code %d: %s", exitCode, lastLines(output, 5))
	}

	return nil
}

// Install installs the manifest's dependencies into the environment.
// The manifest file is handed to pip verbatim; pip resolves includes,
// options and markers itself.
func (i *Installer) Install(ctx context.Context, venvPython, manifestPath string) (InstallResult, error) {
	start := time.Now()

	if i.logger != nil {
		i.logger.Info("installing dependencies", "python", venvPython, "manifest", manifestPath)
	}

	output, err := i.runner.Run(ctx, venvPython, "-m", "pip", "install", "-r", manifestPath)
	result := InstallResult{
		Output:   string(output),
		Duration: time.Since(start),
	}

	if err != nil {
		exitCode := extractExitCode(err)
		if exitCode < 0 {
			// Non-exit error (e.g., interpreter missing, context cancelled)
			return result, fmt.Errorf("failed to run pip install: %w", err)
		}
		return result, fmt.Errorf("pip install exited with code %d: %s", exitCode, lastLines(output, 5))
	}

	result.Installed = parseInstalledPackages(string(output))

	if i.logger != nil {
		i.logger.Info("dependencies installed",
			"manifest", manifestPath,
			"newly_installed", len(result.Installed),
			"duration_ms", result.Duration.Milliseconds())
	}

	return result, nil
}

// Freeze returns the environment's installed packages as pinned lines.
func (i *Installer) Freeze(ctx context.Context, venvPython string) ([]string, error) {
	output, err := i.runner.Run(ctx, venvPython, "-m", "pip", "freeze")
	if err != nil {
		exitCode := extractExitCode(err)
		if exitCode < 0 {
			return nil, fmt.Errorf("failed to run pip freeze: %w", err)
		}
		return nil, fmt.Errorf("pip freeze exited with code %d: %s", exitCode, lastLines(output, 5))
	}

	return parseFreeze(string(output)), nil
}

// ListInstalled returns the environment's packages with names and versions.
func (i *Installer) ListInstalled(ctx context.Context, venvPython string) ([]Package, error) {
	output, err := i.runner.Run(ctx, venvPython, "-m", "pip", "list", "--format=json")
	if err != nil {
		exitCode := extractExitCode(err)
		if exitCode < 0 {
			return nil, fmt.Errorf("failed to run pip list: %w", err)
		}
		return nil, fmt.Errorf("pip list exited with code %d: %s", exitCode, lastLines(output, 5))
	}

	return parsePipList(output)
}

// extractExitCode attempts to extract an exit code from an error.
// Returns -1 if the error is not an exit error.
func extractExitCode(err error) int {
	// Try exec.ExitError first (real commands)
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}

	// Try interface with ExitCode() method (mocks)
	type exitCoder interface {
		ExitCode() int
	}
	if exitErr, ok := err.(exitCoder); ok {
		return exitErr.ExitCode()
	}

	return -1
}

// lastLines returns the trailing n non-empty lines of command output,
// joined for inclusion in error messages.
func lastLines(output []byte, n int) string {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	var kept []string
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			kept = append(kept, strings.TrimSpace(line))
		}
	}
	if len(kept) > n {
		kept = kept[len(kept)-n:]
	}
	return strings.Join(kept, " | ")
}
