package pip

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Sentinel errors
var (
	ErrVersionNotRecognized = errors.New("python version output not recognized")
	ErrInvalidListOutput    = errors.New("pip list output is not valid JSON")
)

// Package represents an installed package as reported by pip list.
type Package struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// pythonVersionPattern matches "Python 3.11.4" (patch optional).
var pythonVersionPattern = regexp.MustCompile(`Python (\d+\.\d+(?:\.\d+)?)`)

// parsePythonVersion extracts the version number from `python --version` output.
func parsePythonVersion(output []byte) (string, error) {
	matches := pythonVersionPattern.FindStringSubmatch(string(output))
	if len(matches) < 2 {
		return "", fmt.Errorf("%w: %q", ErrVersionNotRecognized, strings.TrimSpace(string(output)))
	}
	return matches[1], nil
}

// parseInstalledPackages finds pip's "Successfully installed" summary and
// returns the name-version pairs. An install where everything was already
// satisfied has no such line and yields nil.
func parseInstalledPackages(output string) []string {
	var installed []string

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Successfully installed ") {
			continue
		}
		for _, pkg := range strings.Fields(strings.TrimPrefix(line, "Successfully installed ")) {
			installed = append(installed, pkg)
		}
	}

	return installed
}

// parseFreeze splits pip freeze output into pinned requirement lines.
func parseFreeze(output string) []string {
	var lines []string

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}

	return lines
}

// parsePipList decodes `pip list --format=json` output.
// Combined output may carry warning lines before the JSON document, so
// decoding starts at the first bracket.
func parsePipList(output []byte) ([]Package, error) {
	idx := bytes.IndexByte(output, '[')
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidListOutput, strings.TrimSpace(string(output)))
	}

	var packages []Package
	if err := json.Unmarshal(output[idx:], &packages); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidListOutput, err)
	}

	return packages, nil
}
