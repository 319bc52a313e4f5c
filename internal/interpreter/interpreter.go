// Package interpreter locates Python interpreters and knows how virtual
// environments are laid out on each operating system.
package interpreter

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
)

// Layout describes where a virtual environment keeps its executables
type Layout struct {
	OS        string // windows, linux, mac
	BinDir    string // bin, Scripts
	PythonExe string // python, python.exe
	PipExe    string // pip, pip.exe
}

// candidateNames are the base interpreter names probed on PATH, in order.
var candidateNames = []string{"python3", "python"}

// PredefinedLayouts returns the known venv layouts
func PredefinedLayouts() []Layout {
	return []Layout{
		{OS: "windows", BinDir: "Scripts", PythonExe: "python.exe", PipExe: "pip.exe"},
		{OS: "mac", BinDir: "bin", PythonExe: "python", PipExe: "pip"},
		{OS: "linux", BinDir: "bin", PythonExe: "python", PipExe: "pip"},
	}
}

// LayoutFor finds a layout by OS name
func LayoutFor(osName string) (Layout, error) {
	for _, l := range PredefinedLayouts() {
		if l.OS == osName {
			return l, nil
		}
	}

	return Layout{}, fmt.Errorf("unknown operating system: %s", osName)
}

// CurrentLayout returns the venv layout for the current system
func CurrentLayout() Layout {
	os := mapOS(runtime.GOOS)

	for _, l := range PredefinedLayouts() {
		if l.OS == os {
			return l
		}
	}

	// Fallback: POSIX layout
	return Layout{OS: os, BinDir: "bin", PythonExe: "python", PipExe: "pip"}
}

// mapOS converts Go's GOOS to our layout OS naming
func mapOS(goos string) string {
	switch goos {
	case "windows":
		return "windows"
	case "darwin":
		return "mac"
	default:
		return "linux"
	}
}

// VenvPython returns the path of the interpreter inside an environment directory
func (l Layout) VenvPython(envDir string) string {
	return filepath.Join(envDir, l.BinDir, l.PythonExe)
}

// VenvPip returns the path of pip inside an environment directory
func (l Layout) VenvPip(envDir string) string {
	return filepath.Join(envDir, l.BinDir, l.PipExe)
}

// VenvBinDir returns the executable directory inside an environment directory
func (l Layout) VenvBinDir(envDir string) string {
	return filepath.Join(envDir, l.BinDir)
}

// lookPath is swappable for tests.
var lookPath = exec.LookPath

// FindBasePython locates a base interpreter on PATH, preferring python3.
// The result is used to create environments, never to run apps: apps always
// run with the interpreter inside their environment directory.
func FindBasePython() (string, error) {
	for _, name := range candidateNames {
		if path, err := lookPath(name); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no python interpreter found on PATH (tried %v)", candidateNames)
}
