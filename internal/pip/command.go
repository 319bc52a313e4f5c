// Package pip drives Python and pip processes for environment provisioning.
package pip

import (
	"context"
	"os/exec"
)

// CommandRunner executes external commands.
// This interface enables testing without actual command execution.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// RealCommandRunner executes actual system commands.
type RealCommandRunner struct{}

// NewRealCommandRunner creates a command runner that executes real commands.
func NewRealCommandRunner() *RealCommandRunner {
	return &RealCommandRunner{}
}

// Run executes a command and returns combined stdout/stderr output.
func (r *RealCommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// MockCommandRunner is a test double for CommandRunner.
// Output/Err apply to every call; Outputs/Errs, when set, override them
// per call in order, which suits multi-step flows (venv create, install,
// freeze) driven through a single runner. RunFunc, when set, takes over
// completely; calls are still recorded.
type MockCommandRunner struct {
	Output  []byte
	Err     error
	Outputs [][]byte
	Errs    []error
	RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)
	Calls   [][]string // Track calls for debugging
}

// Run returns the configured output and error for the current call.
func (m *MockCommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if m.Calls == nil {
		m.Calls = [][]string{}
	}
	call := append([]string{name}, args...)
	m.Calls = append(m.Calls, call)

	if m.RunFunc != nil {
		return m.RunFunc(ctx, name, args...)
	}

	idx := len(m.Calls) - 1
	output, err := m.Output, m.Err
	if idx < len(m.Outputs) {
		output = m.Outputs[idx]
	}
	if idx < len(m.Errs) {
		err = m.Errs[idx]
	}
	return output, err
}
