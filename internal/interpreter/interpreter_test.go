package interpreter

import (
	"errors"
	"path/filepath"
	"runtime"
	"testing"
)

// TestPredefinedLayouts tests that all expected layouts are defined
func TestPredefinedLayouts(t *testing.T) {
	layouts := PredefinedLayouts()

	if got := len(layouts); got != 3 {
		t.Fatalf("PredefinedLayouts() count = %d, want 3", got)
	}

	for i, l := range layouts {
		if l.OS == "" {
			t.Errorf("Layout[%d].OS is empty", i)
		}
		if l.BinDir == "" {
			t.Errorf("Layout[%d].BinDir is empty", i)
		}
		if l.PythonExe == "" {
			t.Errorf("Layout[%d].PythonExe is empty", i)
		}
		if l.PipExe == "" {
			t.Errorf("Layout[%d].PipExe is empty", i)
		}
	}

	expected := []struct {
		os     string
		binDir string
		python string
	}{
		{"windows", "Scripts", "python.exe"},
		{"mac", "bin", "python"},
		{"linux", "bin", "python"},
	}

	for _, want := range expected {
		found := false
		for _, l := range layouts {
			if l.OS == want.os && l.BinDir == want.binDir && l.PythonExe == want.python {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected layout %s (%s/%s) not found", want.os, want.binDir, want.python)
		}
	}
}

func TestLayoutFor(t *testing.T) {
	tests := []struct {
		name       string
		os         string
		wantBinDir string
		wantErr    bool
	}{
		{"linux", "linux", "bin", false},
		{"mac", "mac", "bin", false},
		{"windows", "windows", "Scripts", false},
		{"unknown", "plan9", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layout, err := LayoutFor(tt.os)

			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for OS %q, got none", tt.os)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if layout.BinDir != tt.wantBinDir {
				t.Errorf("expected bin dir %q, got %q", tt.wantBinDir, layout.BinDir)
			}
		})
	}
}

func TestCurrentLayout(t *testing.T) {
	layout := CurrentLayout()

	if layout.OS == "" {
		t.Error("CurrentLayout().OS is empty")
	}
	if layout.BinDir == "" {
		t.Error("CurrentLayout().BinDir is empty")
	}

	// Verify the layout matches the current OS
	switch runtime.GOOS {
	case "windows":
		if layout.BinDir != "Scripts" {
			t.Errorf("expected Scripts bin dir on windows, got %q", layout.BinDir)
		}
	default:
		if layout.BinDir != "bin" {
			t.Errorf("expected bin dir on %s, got %q", runtime.GOOS, layout.BinDir)
		}
	}
}

func TestLayout_VenvPaths(t *testing.T) {
	layout := Layout{OS: "linux", BinDir: "bin", PythonExe: "python", PipExe: "pip"}

	wantPython := filepath.Join("venv", "bin", "python")
	if got := layout.VenvPython("venv"); got != wantPython {
		t.Errorf("VenvPython() = %q, want %q", got, wantPython)
	}

	wantPip := filepath.Join("venv", "bin", "pip")
	if got := layout.VenvPip("venv"); got != wantPip {
		t.Errorf("VenvPip() = %q, want %q", got, wantPip)
	}

	wantBin := filepath.Join("venv", "bin")
	if got := layout.VenvBinDir("venv"); got != wantBin {
		t.Errorf("VenvBinDir() = %q, want %q", got, wantBin)
	}
}

func TestLayout_VenvPaths_Windows(t *testing.T) {
	layout := Layout{OS: "windows", BinDir: "Scripts", PythonExe: "python.exe", PipExe: "pip.exe"}

	wantPython := filepath.Join("venv", "Scripts", "python.exe")
	if got := layout.VenvPython("venv"); got != wantPython {
		t.Errorf("VenvPython() = %q, want %q", got, wantPython)
	}
}

func TestFindBasePython(t *testing.T) {
	origLookPath := lookPath
	t.Cleanup(func() { lookPath = origLookPath })

	t.Run("prefers python3", func(t *testing.T) {
		lookPath = func(name string) (string, error) {
			switch name {
			case "python3":
				return "/usr/bin/python3", nil
			case "python":
				return "/usr/bin/python", nil
			}
			return "", errors.New("not found")
		}

		path, err := FindBasePython()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if path != "/usr/bin/python3" {
			t.Errorf("expected /usr/bin/python3, got %q", path)
		}
	})

	t.Run("falls back to python", func(t *testing.T) {
		lookPath = func(name string) (string, error) {
			if name == "python" {
				return "/usr/local/bin/python", nil
			}
			return "", errors.New("not found")
		}

		path, err := FindBasePython()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if path != "/usr/local/bin/python" {
			t.Errorf("expected /usr/local/bin/python, got %q", path)
		}
	})

	t.Run("none found", func(t *testing.T) {
		lookPath = func(name string) (string, error) {
			return "", errors.New("not found")
		}

		if _, err := FindBasePython(); err == nil {
			t.Error("expected error when no interpreter is on PATH")
		}
	})
}
