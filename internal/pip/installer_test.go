package pip

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// mockExitError mimics a process exit failure for mocks.
type mockExitError struct {
	code int
}

func (e *mockExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func (e *mockExitError) ExitCode() int {
	return e.code
}

func TestInstaller_IsAvailable(t *testing.T) {
	tests := []struct {
		name   string
		runner *MockCommandRunner
		want   bool
	}{
		{
			name:   "python available",
			runner: &MockCommandRunner{Output: []byte("Python 3.11.4")},
			want:   true,
		},
		{
			name:   "python unavailable",
			runner: &MockCommandRunner{Err: fmt.Errorf("command not found")},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			installer := NewInstaller(tt.runner, nil)
			if got := installer.IsAvailable(context.Background(), "python3"); got != tt.want {
				t.Errorf("IsAvailable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInstaller_PythonVersion(t *testing.T) {
	runner := &MockCommandRunner{Output: []byte("Python 3.11.4\n")}
	installer := NewInstaller(runner, nil)

	version, err := installer.PythonVersion(context.Background(), "/venv/bin/python")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version != "3.11.4" {
		t.Errorf("expected 3.11.4, got %q", version)
	}

	if len(runner.Calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(runner.Calls))
	}
	if runner.Calls[0][0] != "/venv/bin/python" || runner.Calls[0][1] != "--version" {
		t.Errorf("unexpected call: %v", runner.Calls[0])
	}
}

func TestInstaller_PythonVersion_Unavailable(t *testing.T) {
	runner := &MockCommandRunner{Err: fmt.Errorf("no such file")}
	installer := NewInstaller(runner, nil)

	_, err := installer.PythonVersion(context.Background(), "/venv/bin/python")
	if !errors.Is(err, ErrPythonUnavailable) {
		t.Errorf("expected ErrPythonUnavailable, got %v", err)
	}
}

func TestInstaller_CreateVenv(t *testing.T) {
	runner := &MockCommandRunner{}
	installer := NewInstaller(runner, nil)

	if err := installer.CreateVenv(context.Background(), "/usr/bin/python3", "venv"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"/usr/bin/python3", "-m", "venv", "venv"}
	if len(runner.Calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(runner.Calls))
	}
	for i, arg := range expected {
		if runner.Calls[0][i] != arg {
			t.Errorf("call arg %d = %q, want %q", i, runner.Calls[0][i], arg)
		}
	}
}

func TestInstaller_CreateVenv_Failure(t *testing.T) {
	runner := &MockCommandRunner{
		Output: []byte("Error: Command '['venv/bin/python', '-m', 'ensurepip']' returned non-zero exit status 1"),
		Err:    &mockExitError{code: 1},
	}
	installer := NewInstaller(runner, nil)

	err := installer.CreateVenv(context.Background(), "/usr/bin/python3", "venv")
	if err == nil {
		t.Fatal("expected error for failed venv creation")
	}
	if !strings.Contains(err.Error(), "exited with code 1") {
		t.Errorf("expected exit code in error, got %v", err)
	}
}

func TestInstaller_Install(t *testing.T) {
	installOutput := []byte(`Collecting flask==2.3.2
  Downloading Flask-2.3.2-py3-none-any.whl (96 kB)
Installing collected packages: werkzeug, jinja2, flask
Successfully installed flask-2.3.2 jinja2-3.1.2 werkzeug-2.3.6
`)

	runner := &MockCommandRunner{Output: installOutput}
	installer := NewInstaller(runner, nil)

	result, err := installer.Install(context.Background(), "venv/bin/python", "requirements.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Installed) != 3 {
		t.Errorf("expected 3 installed packages, got %d: %v", len(result.Installed), result.Installed)
	}

	expected := []string{"venv/bin/python", "-m", "pip", "install", "-r", "requirements.txt"}
	if len(runner.Calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(runner.Calls))
	}
	for i, arg := range expected {
		if runner.Calls[0][i] != arg {
			t.Errorf("call arg %d = %q, want %q", i, runner.Calls[0][i], arg)
		}
	}
}

func TestInstaller_Install_AlreadySatisfied(t *testing.T) {
	runner := &MockCommandRunner{
		Output: []byte("Requirement already satisfied: flask==2.3.2 in ./venv/lib/python3.11/site-packages\n"),
	}
	installer := NewInstaller(runner, nil)

	result, err := installer.Install(context.Background(), "venv/bin/python", "requirements.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Installed) != 0 {
		t.Errorf("expected no newly installed packages, got %v", result.Installed)
	}
}

func TestInstaller_Install_PipFailure(t *testing.T) {
	runner := &MockCommandRunner{
		Output: []byte("ERROR: Could not find a version that satisfies the requirement nosuchpackage==9.9.9"),
		Err:    &mockExitError{code: 1},
	}
	installer := NewInstaller(runner, nil)

	_, err := installer.Install(context.Background(), "venv/bin/python", "requirements.txt")
	if err == nil {
		t.Fatal("expected error for failed install")
	}
	if !strings.Contains(err.Error(), "exited with code 1") {
		t.Errorf("expected exit code in error, got %v", err)
	}
	if !strings.Contains(err.Error(), "nosuchpackage") {
		t.Errorf("expected pip diagnostics in error, got %v", err)
	}
}

func TestInstaller_Install_RunFailure(t *testing.T) {
	runner := &MockCommandRunner{Err: fmt.Errorf("fork/exec: no such file or directory")}
	installer := NewInstaller(runner, nil)

	_, err := installer.Install(context.Background(), "venv/bin/python", "requirements.txt")
	if err == nil {
		t.Fatal("expected error when pip cannot run")
	}
	if !strings.Contains(err.Error(), "failed to run pip install") {
		t.Errorf("expected run failure message, got %v", err)
	}
}

func TestInstaller_Freeze(t *testing.T) {
	runner := &MockCommandRunner{Output: []byte("Flask==2.3.2\nJinja2==3.1.2\n")}
	installer := NewInstaller(runner, nil)

	lines, err := installer.Freeze(context.Background(), "venv/bin/python")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"Flask==2.3.2", "Jinja2==3.1.2"}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d", len(want), len(lines))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestInstaller_ListInstalled(t *testing.T) {
	runner := &MockCommandRunner{
		Output: []byte(`[{"name": "Flask", "version": "2.3.2"}]`),
	}
	installer := NewInstaller(runner, nil)

	packages, err := installer.ListInstalled(context.Background(), "venv/bin/python")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(packages) != 1 || packages[0].Name != "Flask" {
		t.Errorf("unexpected packages: %+v", packages)
	}
}

func TestExtractExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"exit coder", &mockExitError{code: 2}, 2},
		{"plain error", fmt.Errorf("boom"), -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractExitCode(tt.err); got != tt.want {
				t.Errorf("extractExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMockCommandRunner_SequencedOutputs(t *testing.T) {
	runner := &MockCommandRunner{
		Outputs: [][]byte{
			[]byte("Python 3.11.4"),
			[]byte("Successfully installed flask-2.3.2"),
		},
	}

	first, err := runner.Run(context.Background(), "python", "--version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(first) != "Python 3.11.4" {
		t.Errorf("unexpected first output: %q", first)
	}

	second, err := runner.Run(context.Background(), "python", "-m", "pip", "install", "-r", "requirements.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(second) != "Successfully installed flask-2.3.2" {
		t.Errorf("unexpected second output: %q", second)
	}

	if len(runner.Calls) != 2 {
		t.Errorf("expected 2 recorded calls, got %d", len(runner.Calls))
	}
}

func TestLastLines(t *testing.T) {
	output := []byte("line1\nline2\n\nline3\nline4\nline5\nline6\n")

	got := lastLines(output, 3)
	want := "line4 | line5 | line6"
	if got != want {
		t.Errorf("lastLines() = %q, want %q", got, want)
	}
}
