package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// IgnoreConfig supports app-level and package-specific ignore rules for
// outdated checks.
// Structure examples:
//
//		{
//		  "cms": ["requests", "urllib3"],
//		  "worker": {"all": ["numpy"], "django": ["5.0", "5.1.2"]}
//		}
//
//	  - App value can be an array (package names skipped entirely) or an object
//	    with keys: "all" (array of package names) and package-name keys.
//	  - Package value is an array of version prefixes: a candidate upgrade is
//	    skipped when the latest version matches one of the prefixes.
type IgnoreConfig map[string]any

// LoadIgnoreConfig loads an ignore configuration file if provided.
// Returns an empty config if filePath is empty.
func LoadIgnoreConfig(filePath string) (IgnoreConfig, error) {
	if filePath == "" {
		return IgnoreConfig{}, nil
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read ignore file %s: %w", filePath, err)
	}
	var raw map[string]any
	switch ext := filepath.Ext(filePath); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse YAML ignore file %s: %w", filePath, err)
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse JSON ignore file %s: %w", filePath, err)
		}
	}
	return IgnoreConfig(raw), nil
}

// IsPackageIgnored returns true if a package should be skipped for the app
// regardless of candidate version.
func (ic IgnoreConfig) IsPackageIgnored(appName, pkg string) bool {
	v, ok := ic[appName]
	if !ok {
		return false
	}

	switch rules := v.(type) {
	case []any:
		return matchNames(rules, pkg)
	case map[string]any:
		if all, ok := rules["all"]; ok {
			if arr, ok := all.([]any); ok && matchNames(arr, pkg) {
				return true
			}
		}
	}

	return false
}

// IsUpgradeIgnored returns true if a specific candidate version should be
// skipped for the app's package.
func (ic IgnoreConfig) IsUpgradeIgnored(appName, pkg, latest string) bool {
	if ic.IsPackageIgnored(appName, pkg) {
		return true
	}

	v, ok := ic[appName]
	if !ok {
		return false
	}

	rules, ok := v.(map[string]any)
	if !ok {
		return false
	}

	pkgVal, ok := rules[pkg]
	if !ok {
		return false
	}

	if arr, ok := pkgVal.([]any); ok {
		return matchPatterns(arr, latest)
	}

	return false
}

func matchNames(names []any, pkg string) bool {
	for _, n := range names {
		s, ok := n.(string)
		if !ok || s == "" {
			continue
		}
		if s == pkg {
			return true
		}
	}
	return false
}

func matchPatterns(patterns []any, version string) bool {
	for _, p := range patterns {
		s, ok := p.(string)
		if !ok || s == "" {
			continue
		}
		if s == version {
			return true
		}
		if len(version) > len(s) && version[:len(s)] == s {
			return true
		}
	}
	return false
}
