package venv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/envrun-project/envrun/internal/environment"
)

// DefaultCommandTemplate runs the Flask development server. {app} is
// replaced with the application's launch module.
var DefaultCommandTemplate = []string{"-m", "flask", "--app", "{app}", "run", "--debug"}

// ProcessRunner starts the application process in the foreground.
// This interface enables testing without spawning real servers.
type ProcessRunner interface {
	Run(ctx context.Context, dir string, env []string, name string, args ...string) error
}

// RealProcessRunner executes processes with stdio inherited from the
// parent, so server output and interactive prompts reach the terminal.
type RealProcessRunner struct{}

// NewRealProcessRunner creates a process runner that spawns real processes.
func NewRealProcessRunner() *RealProcessRunner {
	return &RealProcessRunner{}
}

// Run executes the command and blocks until it exits.
func (r *RealProcessRunner) Run(ctx context.Context, dir string, env []string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	return cmd.Run()
}

// MockProcessRunner is a test double for ProcessRunner.
type MockProcessRunner struct {
	Err   error
	Calls []LaunchCall
}

// LaunchCall records one launch request handed to the mock.
type LaunchCall struct {
	Dir  string
	Env  []string
	Name string
	Args []string
}

// Run records the call and returns the configured error.
func (m *MockProcessRunner) Run(_ context.Context, dir string, env []string, name string, args ...string) error {
	m.Calls = append(m.Calls, LaunchCall{Dir: dir, Env: env, Name: name, Args: args})
	return m.Err
}

// Launch starts the application's dev server with the environment's
// interpreter and blocks until it exits. The interpreter must exist
// before anything is spawned; a missing one means the environment was
// never provisioned or has been deleted.
func (p *Provider) Launch(ctx context.Context, opts environment.LaunchOptions) error {
	// The process runs with its own working directory, so the interpreter
	// path must not depend on ours.
	envDir := opts.EnvDir
	if abs, err := filepath.Abs(envDir); err == nil {
		envDir = abs
	}

	venvPython := p.layout.VenvPython(envDir)
	if _, err := os.Stat(venvPython); err != nil {
		return &environment.LaunchError{App: opts.App, ExitCode: 1,
			Err: fmt.Errorf("%w: no interpreter at %s", environment.ErrEnvironmentMissing, venvPython)}
	}

	args := launchArgs(opts)
	env := p.launchEnv(envDir, opts.Env)

	p.stdout.Debug("Starting application process",
		"app", opts.App,
		"python", venvPython,
		"args", strings.Join(args, " "))

	if err := p.process.Run(ctx, opts.Dir, env, venvPython, args...); err != nil {
		if code := exitCode(err); code >= 0 {
			return &environment.LaunchError{App: opts.App, ExitCode: code}
		}
		return &environment.LaunchError{App: opts.App, ExitCode: 1, Err: err}
	}
	return nil
}

// launchArgs renders the command template for one launch. The template
// defaults to the Flask dev server; {app}, {host} and {port} are
// substituted, and --debug is dropped when debugging is off.
func launchArgs(opts environment.LaunchOptions) []string {
	template := opts.Command
	if len(template) == 0 {
		template = DefaultCommandTemplate
	}

	replacer := strings.NewReplacer(
		"{app}", opts.Module,
		"{host}", opts.Host,
		"{port}", opts.Port,
	)

	args := make([]string, 0, len(template))
	for _, arg := range template {
		arg = replacer.Replace(arg)
		if arg == "--debug" && !opts.Debug {
			continue
		}
		args = append(args, arg)
	}
	return args
}

// launchEnv builds the process environment with the venv activated: the
// environment's bin directory is prepended to PATH and VIRTUAL_ENV points
// at the environment, matching what bin/activate would export.
func (p *Provider) launchEnv(envDir string, extra []string) []string {
	binDir := p.layout.VenvBinDir(envDir)

	base := os.Environ()
	env := make([]string, 0, len(base)+2+len(extra))
	pathSeen := false
	for _, kv := range base {
		switch {
		case strings.HasPrefix(kv, "PATH="):
			env = append(env, "PATH="+binDir+string(os.PathListSeparator)+strings.TrimPrefix(kv, "PATH="))
			pathSeen = true
		case strings.HasPrefix(kv, "VIRTUAL_ENV="):
			// replaced below
		default:
			env = append(env, kv)
		}
	}
	if !pathSeen {
		env = append(env, "PATH="+binDir)
	}
	env = append(env, "VIRTUAL_ENV="+envDir)
	env = append(env, extra...)
	return env
}

// exitCode extracts a process exit status from an error, -1 when the
// error carries none.
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	type exitCoder interface {
		ExitCode() int
	}
	var coder exitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return -1
}
