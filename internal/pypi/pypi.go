// Package pypi provides integration with the PyPI JSON API for retrieving
// package release information used by outdated checks.
package pypi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/envrun-project/envrun/internal/manifest"
	"github.com/envrun-project/envrun/internal/version"
)

const (
	// DefaultBaseURL is the default PyPI JSON API base URL
	DefaultBaseURL = "https://pypi.org/pypi"

	// DefaultTimeout is the default HTTP client timeout
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent is the default User-Agent header
	DefaultUserAgent = "envrun/1.0"

	// StatusSkipped marks requirements that are not exact pins
	StatusSkipped = "skipped"

	// StatusUnknown marks packages whose index lookup failed
	StatusUnknown = "unknown"
)

// Custom error types for better error handling
var (
	// ErrProjectNotFound indicates the requested project was not found
	ErrProjectNotFound = fmt.Errorf("project not found")

	// ErrInvalidResponse indicates the API response was invalid
	ErrInvalidResponse = fmt.Errorf("invalid API response")

	// ErrNetworkError indicates a network-related error
	ErrNetworkError = fmt.Errorf("network error")
)

// ErrAPIError represents an API-specific error
type ErrAPIError struct {
	StatusCode int
	Message    string
	Project    string
}

func (e ErrAPIError) Error() string {
	if e.Project != "" {
		return fmt.Sprintf("API error for project %s: %d %s", e.Project, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error: %d %s", e.StatusCode, e.Message)
}

func (e ErrAPIError) Is(target error) bool {
	if target == ErrProjectNotFound && e.StatusCode == 404 {
		return true
	}
	if target == ErrInvalidResponse && e.StatusCode >= 400 && e.StatusCode < 500 {
		return true
	}
	if target == ErrNetworkError && e.StatusCode >= 500 {
		return true
	}
	return false
}

// ProjectInfo represents the project metadata from the PyPI JSON API
type ProjectInfo struct {
	Info struct {
		Name           string            `json:"name"`
		Version        string            `json:"version"`
		Summary        string            `json:"summary"`
		HomePage       string            `json:"home_page"`
		License        string            `json:"license"`
		RequiresPython string            `json:"requires_python"`
		ProjectURLs    map[string]string `json:"project_urls"`
		Yanked         bool              `json:"yanked"`
	} `json:"info"`
	Releases map[string][]ReleaseFile `json:"releases"`
	URLs     []ReleaseFile            `json:"urls"`
}

// ReleaseFile represents a single distribution file of a release
type ReleaseFile struct {
	Filename      string `json:"filename"`
	PackageType   string `json:"packagetype"`
	PythonVersion string `json:"python_version"`
	Size          int64  `json:"size"`
	UploadTime    string `json:"upload_time_iso_8601"`
	URL           string `json:"url"`
	Yanked        bool   `json:"yanked"`
	Digests       struct {
		MD5    string `json:"md5"`
		SHA256 string `json:"sha256"`
	} `json:"digests"`
}

// LatestVersion returns the latest release version reported by the index.
func (p *ProjectInfo) LatestVersion() string {
	return p.Info.Version
}

// OutdatedPackage represents enriched package information combining a
// manifest pin with index data.
type OutdatedPackage struct {
	Name           string
	Pinned         string
	Latest         string
	Severity       string
	RequiresPython string
	Summary        string
}

// IsUpgrade returns true when the index offers a newer release than the pin.
func (o *OutdatedPackage) IsUpgrade() bool {
	switch o.Severity {
	case version.SeverityPatch, version.SeverityMinor, version.SeverityMajor:
		return true
	}
	return false
}

// Client defines the interface for the PyPI JSON API client
type Client interface {
	// GetProject retrieves release information for a given project
	GetProject(ctx context.Context, project string) (*ProjectInfo, error)

	// LatestVersion returns the latest release version of a project
	LatestVersion(ctx context.Context, project string) (string, error)

	// CheckOutdated compares manifest pins against the index
	CheckOutdated(ctx context.Context, pins []manifest.Pin) ([]OutdatedPackage, error)
}

// HTTPClient defines the interface for HTTP operations
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds configuration for the PyPI client
type Config struct {
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration
	HTTPClient HTTPClient
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		UserAgent: DefaultUserAgent,
		Timeout:   DefaultTimeout,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// client implements the Client interface
type client struct {
	config  Config
	checker version.Checker
}

// NewClient creates a new PyPI JSON API client
func NewClient(config Config) Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{
			Timeout: config.Timeout,
		}
	}

	return &client{
		config:  config,
		checker: version.New(),
	}
}

// GetProject retrieves release information for a given project
func (c *client) GetProject(ctx context.Context, project string) (*ProjectInfo, error) {
	if project == "" {
		return nil, ErrAPIError{
			StatusCode: 400,
			Message:    "project name cannot be empty",
			Project:    project,
		}
	}

	// PyPI serves normalized project names, so "Flask" and "flask" resolve
	// to the same record
	apiURL, err := url.JoinPath(c.config.BaseURL, manifest.NormalizeName(project), "json")
	if err != nil {
		return nil, fmt.Errorf("failed to construct API URL: %w", err)
	}

	// Create request
	req, err := http.NewRequestWithContext(ctx, "GET", apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	// Send request
	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return nil, ErrAPIError{
			StatusCode: 0,
			Message:    err.Error(),
			Project:    project,
		}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Check status code
	if resp.StatusCode != http.StatusOK {
		return nil, ErrAPIError{
			StatusCode: resp.StatusCode,
			Message:    resp.Status,
			Project:    project,
		}
	}

	// Parse response
	var projectInfo ProjectInfo
	if err := json.NewDecoder(resp.Body).Decode(&projectInfo); err != nil {
		return nil, ErrAPIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to decode response: %v", err),
			Project:    project,
		}
	}

	return &projectInfo, nil
}

// LatestVersion returns the latest release version of a project
func (c *client) LatestVersion(ctx context.Context, project string) (string, error) {
	projectInfo, err := c.GetProject(ctx, project)
	if err != nil {
		return "", err
	}
	if projectInfo.Info.Version == "" {
		return "", ErrAPIError{
			StatusCode: 200,
			Message:    "response has no version field",
			Project:    project,
		}
	}
	return projectInfo.Info.Version, nil
}

// CheckOutdated compares manifest pins against the index.
// Requirements without an exact pin are reported as skipped, and packages
// whose lookup fails are reported as unknown rather than aborting the scan.
func (c *client) CheckOutdated(ctx context.Context, pins []manifest.Pin) ([]OutdatedPackage, error) {
	var packages []OutdatedPackage

	for _, pin := range pins {
		if err := ctx.Err(); err != nil {
			return packages, err
		}

		if !pin.IsPinned() {
			packages = append(packages, OutdatedPackage{
				Name:     pin.Name,
				Pinned:   pin.Raw,
				Severity: StatusSkipped,
			})
			continue
		}

		projectInfo, err := c.GetProject(ctx, pin.Name)
		if err != nil {
			packages = append(packages, OutdatedPackage{
				Name:     pin.Name,
				Pinned:   pin.Version,
				Severity: StatusUnknown,
			})
			continue
		}

		latest := projectInfo.Info.Version
		severity, err := c.checker.Severity(pin.Version, latest)
		if err != nil {
			severity = StatusUnknown
		}

		packages = append(packages, OutdatedPackage{
			Name:           pin.Name,
			Pinned:         pin.Version,
			Latest:         latest,
			Severity:       severity,
			RequiresPython: projectInfo.Info.RequiresPython,
			Summary:        projectInfo.Info.Summary,
		})
	}

	return packages, nil
}
