package pypi

import (
	"context"

	"github.com/envrun-project/envrun/internal/manifest"
	"github.com/envrun-project/envrun/internal/version"
)

// MockClient implements Client interface for testing
type MockClient struct {
	checker version.Checker
}

// NewMockClient creates a new mock client
func NewMockClient() Client {
	return &MockClient{checker: version.New()}
}

func (m *MockClient) GetProject(ctx context.Context, project string) (*ProjectInfo, error) {
	if project == "" {
		return nil, ErrAPIError{
			StatusCode: 400,
			Message:    "project name cannot be empty",
			Project:    project,
		}
	}
	return generateMockProject(manifest.NormalizeName(project)), nil
}

func (m *MockClient) LatestVersion(ctx context.Context, project string) (string, error) {
	projectInfo, err := m.GetProject(ctx, project)
	if err != nil {
		return "", err
	}
	return projectInfo.Info.Version, nil
}

func (m *MockClient) CheckOutdated(ctx context.Context, pins []manifest.Pin) ([]OutdatedPackage, error) {
	var packages []OutdatedPackage
	for _, pin := range pins {
		if !pin.IsPinned() {
			packages = append(packages, OutdatedPackage{
				Name:     pin.Name,
				Pinned:   pin.Raw,
				Severity: StatusSkipped,
			})
			continue
		}

		projectInfo, err := m.GetProject(ctx, pin.Name)
		if err != nil {
			packages = append(packages, OutdatedPackage{
				Name:     pin.Name,
				Pinned:   pin.Version,
				Severity: StatusUnknown,
			})
			continue
		}

		latest := projectInfo.Info.Version
		severity, err := m.checker.Severity(pin.Version, latest)
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

func generateMockProject(project string) *ProjectInfo {
	info := &ProjectInfo{
		Releases: map[string][]ReleaseFile{},
	}
	info.Info.Name = project

	switch project {
	case "flask":
		info.Info.Version = "3.1.0"
		info.Info.Summary = "A simple framework for building complex web applications."
		info.Info.RequiresPython = ">=3.9"
		info.Releases["3.0.0"] = []ReleaseFile{{
			Filename:    "flask-3.0.0-py3-none-any.whl",
			PackageType: "bdist_wheel",
			Size:        99724,
			UploadTime:  "2023-09-30T14:36:12Z",
		}}
		info.Releases["3.1.0"] = []ReleaseFile{{
			Filename:    "flask-3.1.0-py3-none-any.whl",
			PackageType: "bdist_wheel",
			Size:        102979,
			UploadTime:  "2024-11-13T18:24:36Z",
		}}
	case "jinja2":
		info.Info.Version = "3.1.4"
		info.Info.Summary = "A very fast and expressive template engine."
		info.Info.RequiresPython = ">=3.7"
		info.Releases["3.1.4"] = []ReleaseFile{{
			Filename:    "jinja2-3.1.4-py3-none-any.whl",
			PackageType: "bdist_wheel",
			Size:        133271,
			UploadTime:  "2024-05-05T23:41:55Z",
		}}
	case "werkzeug":
		info.Info.Version = "3.1.3"
		info.Info.Summary = "The comprehensive WSGI web application library."
		info.Info.RequiresPython = ">=3.9"
		info.Releases["3.1.3"] = []ReleaseFile{{
			Filename:    "werkzeug-3.1.3-py3-none-any.whl",
			PackageType: "bdist_wheel",
			Size:        224498,
			UploadTime:  "2024-11-08T15:52:16Z",
		}}
	default:
		info.Info.Version = "1.0.1"
		info.Info.Summary = "Mock project " + project
		info.Releases["1.0.1"] = []ReleaseFile{{
			Filename:    project + "-1.0.1-py3-none-any.whl",
			PackageType: "bdist_wheel",
			Size:        1024,
			UploadTime:  "2024-12-01T00:00:00Z",
		}}
	}

	return info
}
