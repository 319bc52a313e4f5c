// Package manifest reads requirements-style dependency manifests.
// Parsing produces pins for reporting and journaling only: installation
// always hands the manifest file to pip verbatim.
package manifest

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode"
)

// Sentinel errors for manifest operations.
var (
	ErrNotFound  = errors.New("manifest file not found")
	ErrEmptyPath = errors.New("manifest path cannot be empty")
)

// comparison operators recognized in requirement lines, longest first so
// ">=" is not split into ">" + "=".
var operators = []string{"===", "==", ">=", "<=", "~=", "!=", ">", "<"}

// Pin represents a single requirement parsed from a manifest line.
type Pin struct {
	Name    string // normalized package name (PEP 503)
	Op      string // comparison operator, empty for unpinned requirements
	Version string // version string, empty for unpinned requirements
	Raw     string // original line with comments and markers stripped
}

// IsPinned reports whether the requirement names an exact version.
func (p Pin) IsPinned() bool {
	return p.Op == "==" || p.Op == "==="
}

// Parse reads a manifest file and returns its pins.
// Blank lines and comments are skipped. Option lines (-r, --index-url, ...)
// are passed through to pip at install time, so the parser only logs them.
func Parse(path string, logger *slog.Logger) ([]Pin, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer func() { _ = file.Close() }()

	return ParseReader(file, logger)
}

// ParseReader parses manifest content from a reader.
func ParseReader(r io.Reader, logger *slog.Logger) ([]Pin, error) {
	var pins []Pin

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "-") {
			if logger != nil {
				logger.Debug("skipping option line", "line", line)
			}
			continue
		}

		pin, ok := parseLine(line)
		if !ok {
			if logger != nil {
				logger.Debug("skipping unparseable requirement", "line", line)
			}
			continue
		}
		pins = append(pins, pin)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	return pins, nil
}

// parseLine parses a single requirement line into a Pin.
func parseLine(line string) (Pin, bool) {
	// Strip inline comments and environment markers.
	if idx := strings.Index(line, " #"); idx >= 0 {
		line = line[:idx]
	}
	if idx := strings.Index(line, ";"); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return Pin{}, false
	}

	raw := line

	for _, op := range operators {
		idx := strings.Index(line, op)
		if idx < 0 {
			continue
		}

		name := strings.TrimSpace(line[:idx])
		version := strings.TrimSpace(line[idx+len(op):])
		if name == "" || version == "" {
			return Pin{}, false
		}

		return Pin{
			Name:    NormalizeName(stripExtras(name)),
			Op:      op,
			Version: version,
			Raw:     raw,
		}, true
	}

	// Bare requirement without a version.
	name := stripExtras(line)
	if name == "" {
		return Pin{}, false
	}

	return Pin{
		Name: NormalizeName(name),
		Raw:  raw,
	}, true
}

// stripExtras removes an extras suffix: "requests[socks]" -> "requests".
func stripExtras(name string) string {
	if idx := strings.Index(name, "["); idx >= 0 {
		return strings.TrimSpace(name[:idx])
	}
	return strings.TrimSpace(name)
}

// NormalizeName normalizes a package name according to PEP 503.
// Lowercase, runs of non-alphanumeric characters collapse to a single
// hyphen, leading/trailing separators are removed.
func NormalizeName(name string) string {
	if name == "" {
		return ""
	}

	var result strings.Builder
	prevWasSeparator := false

	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(unicode.ToLower(r))
			prevWasSeparator = false
		} else if !prevWasSeparator {
			result.WriteRune('-')
			prevWasSeparator = true
		}
	}

	return strings.Trim(result.String(), "-_")
}

// ModTime returns the manifest file's modification time.
func ModTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return time.Time{}, fmt.Errorf("failed to stat manifest: %w", err)
	}
	return info.ModTime(), nil
}

// SHA256 returns the hex-encoded SHA256 of the manifest contents.
// Used for journal bookkeeping only, never for freshness decisions.
func SHA256(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open manifest: %w", err)
	}
	defer func() { _ = file.Close() }()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("failed to hash manifest: %w", err)
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}
