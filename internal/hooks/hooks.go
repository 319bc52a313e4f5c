// Package hooks executes user-configured shell snippets around provisioning
// and launch. Scripts run on an in-process POSIX interpreter, so hooks behave
// the same on every platform and need no system shell.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// Hook names as they appear in configuration and logs.
const (
	PreProvision  = "pre_provision"
	PostProvision = "post_provision"
	PreRun        = "pre_run"
)

// HookError represents a hook that failed to parse or exited non-zero
type HookError struct {
	Hook     string
	App      string
	ExitCode int
	Err      error
}

func (e HookError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("hook %s for app %s failed: %v", e.Hook, e.App, e.Err)
	}
	return fmt.Sprintf("hook %s for app %s exited with status %d", e.Hook, e.App, e.ExitCode)
}

func (e HookError) Unwrap() error {
	return e.Err
}

func (e HookError) Is(target error) bool {
	var hookErr HookError
	return errors.As(target, &hookErr)
}

// Hook describes a single configured hook invocation.
type Hook struct {
	Name   string   // hook name, used in logs and errors
	App    string   // owning app
	Script string   // shell snippet from configuration
	Dir    string   // working directory for the script
	Env    []string // environment in KEY=VALUE form, current process env when empty
}

// Runner executes hook scripts with the given stdio streams.
type Runner struct {
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

// NewRunner creates a hook runner. Nil writers default to the process stdio
// so hook output lands in the terminal alongside the tool's own output.
func NewRunner(stdout, stderr io.Writer, logger *slog.Logger) *Runner {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		logger: logger,
	}
}

// Validate parses a hook script without running it.
func Validate(name, script string) error {
	if strings.TrimSpace(script) == "" {
		return nil
	}
	if _, err := syntax.NewParser().Parse(strings.NewReader(script), name); err != nil {
		return fmt.Errorf("hook %s has a syntax error: %w", name, err)
	}
	return nil
}

// Run executes a hook script and waits for it to finish.
// An empty script is a no-op. A non-zero exit status or parse failure is
// returned as a HookError.
func (r *Runner) Run(ctx context.Context, hook Hook) error {
	if strings.TrimSpace(hook.Script) == "" {
		return nil
	}

	if r.logger != nil {
		r.logger.Debug("Running hook", "hook", hook.Name, "app", hook.App)
	}

	prog, err := syntax.NewParser().Parse(strings.NewReader(hook.Script), hook.Name)
	if err != nil {
		return HookError{
			Hook:     hook.Name,
			App:      hook.App,
			ExitCode: 1,
			Err:      fmt.Errorf("failed to parse hook script: %w", err),
		}
	}

	env := hook.Env
	if len(env) == 0 {
		env = os.Environ()
	}

	runner, err := interp.New(
		interp.Dir(hook.Dir),
		interp.Env(expand.ListEnviron(env...)),
		interp.StdIO(nil, r.stdout, r.stderr),
	)
	if err != nil {
		return HookError{
			Hook:     hook.Name,
			App:      hook.App,
			ExitCode: 1,
			Err:      fmt.Errorf("failed to create interpreter: %w", err),
		}
	}

	if err := runner.Run(ctx, prog); err != nil {
		var exitStatus interp.ExitStatus
		if errors.As(err, &exitStatus) {
			return HookError{
				Hook:     hook.Name,
				App:      hook.App,
				ExitCode: int(exitStatus),
			}
		}
		return HookError{
			Hook:     hook.Name,
			App:      hook.App,
			ExitCode: 1,
			Err:      fmt.Errorf("hook execution failed: %w", err),
		}
	}

	if r.logger != nil {
		r.logger.Debug("Hook completed", "hook", hook.Name, "app", hook.App)
	}

	return nil
}
