// Package version provides version parsing and constraint checking for
// Python interpreters and manifest pins.
package version

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Severity levels for how far a pinned version trails the latest release.
const (
	SeverityCurrent = "current"
	SeverityPatch   = "patch"
	SeverityMinor   = "minor"
	SeverityMajor   = "major"
)

// String constants for operations (used in ErrVersionParseFailed)
const (
	OpParsePinned      = "parse_pinned"
	OpParseLatest      = "parse_latest"
	OpParseInterpreter = "parse_interpreter"
	OpParseConstraint  = "parse_constraint"
	OpParseVersion1    = "parse_version1"
	OpParseVersion2    = "parse_version2"
)

// Custom error types for better error handling and comparison
var (
	ErrEmptyVersion    = errors.New("version cannot be empty")
	ErrEmptyConstraint = errors.New("constraint cannot be empty")
)

// ErrVersionParseFailed represents a version parsing error
type ErrVersionParseFailed struct {
	Version string
	Op      string
	Cause   error
}

func (e ErrVersionParseFailed) Error() string {
	return fmt.Sprintf("failed to parse version %s in operation %s: %v", e.Version, e.Op, e.Cause)
}

func (e ErrVersionParseFailed) Unwrap() error {
	return e.Cause
}

func (e ErrVersionParseFailed) Is(target error) bool {
	var parseErr ErrVersionParseFailed
	return errors.As(target, &parseErr)
}

// ErrConstraintNotMet represents an interpreter version failing a configured constraint
type ErrConstraintNotMet struct {
	Version    string
	Constraint string
}

func (e ErrConstraintNotMet) Error() string {
	return fmt.Sprintf("version %s does not satisfy constraint %q", e.Version, e.Constraint)
}

func (e ErrConstraintNotMet) Is(target error) bool {
	var constraintErr ErrConstraintNotMet
	return errors.As(target, &constraintErr)
}

// releasePrefix matches the numeric release segment of a PEP 440 version
// string ("3.11.4" of "3.11.4rc1"). Pre/post/dev suffixes are dropped so the
// result parses as semver.
var releasePrefix = regexp.MustCompile(`^\d+(\.\d+){0,2}`)

// Normalize converts a Python-style version string into a semver version.
// Accepts "3.11", "3.11.4", "v3.11.4" and PEP 440 suffixed forms like
// "3.11.4rc1" (the suffix is ignored).
func Normalize(raw string) (*semver.Version, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "v"))
	if trimmed == "" {
		return nil, ErrEmptyVersion
	}

	release := releasePrefix.FindString(trimmed)
	if release == "" {
		return nil, ErrVersionParseFailed{
			Version: raw,
			Op:      OpParseInterpreter,
			Cause:   fmt.Errorf("no numeric release segment"),
		}
	}

	sv, err := semver.NewVersion(release)
	if err != nil {
		return nil, ErrVersionParseFailed{
			Version: raw,
			Op:      OpParseInterpreter,
			Cause:   err,
		}
	}
	return sv, nil
}

// Checker provides version comparison and constraint checking using semver
type Checker interface {
	// CheckConstraint verifies that version satisfies a semver constraint
	// expression such as ">= 3.9" or ">= 3.9, < 4".
	// Returns ErrConstraintNotMet when the version parses but does not satisfy.
	CheckConstraint(version, constraint string) error

	// Compare compares two versions (-1 if v1 < v2, 0 if equal, 1 if v1 > v2)
	Compare(v1, v2 string) (int, error)

	// Severity classifies how far a pinned version trails the latest release.
	// Example:
	// pinned = "1.2.3", latest = "2.0.0" -> SeverityMajor
	// pinned = "1.2.3", latest = "1.3.0" -> SeverityMinor
	// pinned = "1.2.3", latest = "1.2.4" -> SeverityPatch
	// pinned >= latest -> SeverityCurrent
	Severity(pinned, latest string) (string, error)
}

// semverChecker implements Checker using Masterminds/semver
type semverChecker struct{}

// New creates a new version checker
func New() Checker {
	return &semverChecker{}
}

// CheckConstraint verifies that version satisfies the constraint expression.
func (c *semverChecker) CheckConstraint(version, constraint string) error {
	if strings.TrimSpace(constraint) == "" {
		return ErrEmptyConstraint
	}

	sv, err := Normalize(version)
	if err != nil {
		return err
	}

	cons, err := semver.NewConstraint(constraint)
	if err != nil {
		return ErrVersionParseFailed{
			Version: constraint,
			Op:      OpParseConstraint,
			Cause:   err,
		}
	}

	if !cons.Check(sv) {
		return ErrConstraintNotMet{
			Version:    sv.String(),
			Constraint: constraint,
		}
	}
	return nil
}

// Compare compares two versions (-1 if v1 < v2, 0 if equal, 1 if v1 > v2)
func (c *semverChecker) Compare(v1, v2 string) (int, error) {
	ver1, err := Normalize(v1)
	if err != nil {
		return 0, ErrVersionParseFailed{
			Version: v1,
			Op:      OpParseVersion1,
			Cause:   err,
		}
	}

	ver2, err := Normalize(v2)
	if err != nil {
		return 0, ErrVersionParseFailed{
			Version: v2,
			Op:      OpParseVersion2,
			Cause:   err,
		}
	}

	return ver1.Compare(ver2), nil
}

// Severity classifies how far pinned trails latest.
func (c *semverChecker) Severity(pinned, latest string) (string, error) {
	pinnedVer, err := Normalize(pinned)
	if err != nil {
		return "", ErrVersionParseFailed{
			Version: pinned,
			Op:      OpParsePinned,
			Cause:   err,
		}
	}

	latestVer, err := Normalize(latest)
	if err != nil {
		return "", ErrVersionParseFailed{
			Version: latest,
			Op:      OpParseLatest,
			Cause:   err,
		}
	}

	if !latestVer.GreaterThan(pinnedVer) {
		return SeverityCurrent, nil
	}

	switch {
	case latestVer.Major() != pinnedVer.Major():
		return SeverityMajor, nil
	case latestVer.Minor() != pinnedVer.Minor():
		return SeverityMinor, nil
	default:
		return SeverityPatch, nil
	}
}
