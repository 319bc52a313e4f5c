package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/envrun-project/envrun/internal/config"
	"github.com/envrun-project/envrun/internal/environment"
	gh "github.com/envrun-project/envrun/internal/github"
	"github.com/envrun-project/envrun/internal/interpreter"
	"github.com/envrun-project/envrun/internal/journal"
	"github.com/envrun-project/envrun/internal/manifest"
	"github.com/envrun-project/envrun/internal/pip"
)

// LockfileName is the file name of the frozen package list written to the
// staging directory and uploaded with a published snapshot.
const LockfileName = "requirements.lock.txt"

// SnapshotManager captures the installed package set of a provisioned
// environment into the journal.
type SnapshotManager struct {
	db        SnapshotStore
	installer *pip.Installer
	layout    interpreter.Layout
	stdout    *slog.Logger
	stderr    *slog.Logger
}

// NewSnapshotManager creates a snapshot manager that shells out to the
// environment's own pip.
func NewSnapshotManager(db SnapshotStore, stdout, stderr *slog.Logger) *SnapshotManager {
	installer := pip.NewInstaller(pip.NewRealCommandRunner(), stdout)
	return NewSnapshotManagerWithInstaller(db, installer, stdout, stderr)
}

// NewSnapshotManagerWithInstaller creates a snapshot manager with an explicit
// installer. Tests use this to avoid spawning real pip processes.
func NewSnapshotManagerWithInstaller(db SnapshotStore, installer *pip.Installer, stdout, stderr *slog.Logger) *SnapshotManager {
	return &SnapshotManager{
		db:        db,
		installer: installer,
		layout:    interpreter.CurrentLayout(),
		stdout:    stdout,
		stderr:    stderr,
	}
}

// Capture freezes the app's provisioned environment and records a snapshot
// in the journal. The frozen package list is written to a staging directory
// whose lifetime is owned by the caller on success; on failure the staging
// directory is cleaned up here.
func (sm *SnapshotManager) Capture(ctx context.Context, cfg *config.Config, appName string, appCfg config.App, tag string) (*journal.Snapshot, *journal.StagingDir, error) {
	envDir := cfg.ResolvePath(appCfg.EnvDir)
	venvPython := sm.layout.VenvPython(envDir)
	if _, err := os.Stat(venvPython); err != nil {
		return nil, nil, fmt.Errorf("%w: no interpreter at %s, provision the app first", environment.ErrEnvironmentMissing, venvPython)
	}

	pythonVersion, err := sm.installer.PythonVersion(ctx, venvPython)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read interpreter version: %w", err)
	}

	sm.stdout.Info("freezing environment",
		"app", appName,
		"tag", tag,
		"environment_directory", envDir)

	start := time.Now()
	frozen, err := sm.installer.Freeze(ctx, venvPython)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to freeze environment: %w", err)
	}
	freezeDuration := time.Since(start)

	records := sm.packageRecords(ctx, venvPython, frozen)

	staging, err := journal.NewStagingDir(appName, tag)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	lockfilePath := filepath.Join(staging.Lockfiles(), LockfileName)
	content := strings.Join(frozen, "\n") + "\n"
	if err := os.WriteFile(lockfilePath, []byte(content), 0o644); err != nil {
		sm.removeStaging(staging)
		return nil, nil, fmt.Errorf("failed to write lockfile: %w", err)
	}

	lockfileSHA, err := manifest.SHA256(lockfilePath)
	if err != nil {
		sm.stderr.Warn("failed to hash lockfile", "path", lockfilePath, "error", err)
	}

	encoded, err := journal.EncodeContents(&journal.SnapshotContents{
		Packages: records,
		Metadata: journal.SnapshotMetadata{
			PackageCount:     len(records),
			PythonVersion:    pythonVersion,
			ManifestPath:     appCfg.Manifest,
			CapturedAt:       time.Now().UTC(),
			FreezeDurationMS: freezeDuration.Milliseconds(),
		},
	})
	if err != nil {
		sm.removeStaging(staging)
		return nil, nil, fmt.Errorf("failed to encode snapshot contents: %w", err)
	}

	snapshot := &journal.Snapshot{
		App:            appName,
		Tag:            tag,
		PythonVersion:  pythonVersion,
		LockfileSHA256: lockfileSHA,
		PackageCount:   len(records),
		Packages:       encoded,
		CreatedAt:      time.Now(),
	}
	if err := sm.db.CreateSnapshot(snapshot); err != nil {
		sm.removeStaging(staging)
		return nil, nil, fmt.Errorf("failed to record snapshot: %w", err)
	}

	sm.stdout.Info("snapshot captured",
		"app", appName,
		"tag", tag,
		"python", pythonVersion,
		"packages", len(records),
		"lockfile", lockfilePath,
		"freeze_duration_ms", freezeDuration.Milliseconds())
	return snapshot, staging, nil
}

// packageRecords resolves the installed package list, falling back to parsing
// the freeze output when pip list is unavailable.
func (sm *SnapshotManager) packageRecords(ctx context.Context, venvPython string, frozen []string) []journal.PackageRecord {
	installed, err := sm.installer.ListInstalled(ctx, venvPython)
	if err != nil {
		sm.stderr.Warn("failed to list installed packages, deriving from freeze output", "error", err)
		return recordsFromFreeze(frozen)
	}

	records := make([]journal.PackageRecord, 0, len(installed))
	for _, pkg := range installed {
		records = append(records, journal.PackageRecord{Name: pkg.Name, Version: pkg.Version})
	}
	return records
}

func (sm *SnapshotManager) removeStaging(staging *journal.StagingDir) {
	if err := staging.Remove(); err != nil {
		sm.stderr.Warn("failed to remove staging directory", "path", staging.Root(), "error", err)
	}
}

// recordsFromFreeze extracts name==version pins from pip freeze output.
// Editable installs and URL requirements are passed over.
func recordsFromFreeze(frozen []string) []journal.PackageRecord {
	var records []journal.PackageRecord
	for _, line := range frozen {
		name, version, found := strings.Cut(line, "==")
		if !found || name == "" {
			continue
		}
		records = append(records, journal.PackageRecord{
			Name:    strings.TrimSpace(name),
			Version: strings.TrimSpace(version),
		})
	}
	return records
}

// PublishManager handles the GitHub release process for captured snapshots.
type PublishManager struct {
	db     SnapshotStore
	github ReleasePublisher
	stdout *slog.Logger
	stderr *slog.Logger
}

// NewPublishManager creates a new publish manager with the provided dependencies.
// GitHub client and journal are passed as interfaces for testability.
func NewPublishManager(publishConfig *config.PublishConfig, github ReleasePublisher, db SnapshotStore, stdout, stderr *slog.Logger) (*PublishManager, error) {
	if publishConfig == nil {
		return nil, fmt.Errorf("publish config is required for publishing")
	}
	if publishConfig.GitHubRepository == "" {
		return nil, fmt.Errorf("github_repository is required for publishing")
	}
	if github == nil {
		return nil, fmt.Errorf("github client is required for publishing")
	}
	if db == nil {
		return nil, fmt.Errorf("journal is required for publishing")
	}

	return &PublishManager{
		db:     db,
		github: github,
		stdout: stdout,
		stderr: stderr,
	}, nil
}

// PublishSnapshot creates a GitHub release for the snapshot and uploads its
// lockfile. A tag that already has a release is refused rather than replaced.
func (pm *PublishManager) PublishSnapshot(ctx context.Context, snapshot *journal.Snapshot, lockfilePath string, publishConfig *config.PublishConfig) (string, error) {
	if snapshot == nil {
		return "", journal.ErrNilSnapshot
	}

	pm.stdout.Info("publishing snapshot",
		"app", snapshot.App,
		"tag", snapshot.Tag,
		"repository", publishConfig.GitHubRepository)

	if _, err := pm.github.GetRelease(ctx, snapshot.Tag); err == nil {
		return "", fmt.Errorf("release %s already exists in %s", snapshot.Tag, publishConfig.GitHubRepository)
	} else if !errors.Is(err, gh.ErrReleaseNotFound) {
		return "", fmt.Errorf("failed to check for existing release: %w", err)
	}

	releaseName := formatReleaseName(publishConfig.ReleaseNameTemplate, snapshot)
	releaseBody := generateReleaseBody(snapshot)

	release, err := pm.github.CreateRelease(ctx, snapshot.Tag, releaseName, releaseBody, publishConfig.DraftRelease)
	if err != nil {
		return "", fmt.Errorf("failed to create GitHub release: %w", err)
	}

	releaseURL := pm.github.ReleaseURL(release)
	pm.stdout.Info("GitHub release created",
		"tag", snapshot.Tag,
		"name", releaseName,
		"url", releaseURL)

	asset, err := pm.github.UploadAsset(ctx, release.GetID(), lockfilePath)
	if err != nil {
		return "", fmt.Errorf("failed to upload lockfile: %w", err)
	}
	pm.stdout.Info("lockfile uploaded",
		"file", filepath.Base(lockfilePath),
		"download_url", pm.github.AssetDownloadURL(asset))

	if err := pm.db.UpdateSnapshotRelease(snapshot.ID, snapshot.Tag, releaseURL); err != nil {
		return "", fmt.Errorf("failed to record release in journal: %w", err)
	}
	snapshot.ReleaseTag = snapshot.Tag
	snapshot.ReleaseURL = releaseURL

	return releaseURL, nil
}

// formatReleaseName generates the release name from the configured template.
// Supported placeholders: {app} and {tag}.
func formatReleaseName(template string, snapshot *journal.Snapshot) string {
	if template == "" {
		title := cases.Title(language.English).String(snapshot.App)
		return fmt.Sprintf("%s snapshot %s", title, time.Now().UTC().Format("2006-01-02"))
	}
	name := strings.ReplaceAll(template, "{app}", snapshot.App)
	return strings.ReplaceAll(name, "{tag}", snapshot.Tag)
}

// generateReleaseBody creates a Markdown release body describing the snapshot.
func generateReleaseBody(snapshot *journal.Snapshot) string {
	var b strings.Builder
	title := cases.Title(language.English).String(snapshot.App)
	fmt.Fprintf(&b, "# %s %s\n\n", title, snapshot.Tag)
	b.WriteString("Frozen dependency set of the provisioned environment.\n\n")
	fmt.Fprintf(&b, "- Python %s\n", snapshot.PythonVersion)
	fmt.Fprintf(&b, "- %d packages\n", snapshot.PackageCount)
	if snapshot.LockfileSHA256 != "" {
		fmt.Fprintf(&b, "- Lockfile SHA256 `%s`\n", snapshot.LockfileSHA256)
	}

	if contents, err := journal.DecodeContents(snapshot.Packages); err == nil && len(contents.Packages) > 0 {
		b.WriteString("\n## Packages\n\n")
		for _, pkg := range contents.Packages {
			fmt.Fprintf(&b, "- %s %s\n", pkg.Name, pkg.Version)
		}
	}
	return b.String()
}

// handleSnapshotPublish creates a GitHub release for a captured snapshot.
// It fails immediately if GITHUB_TOKEN is not set, as it's required for
// creating releases. In GitHub Actions, GITHUB_TOKEN is automatically
// provided if the workflow has 'contents: write' permission.
func handleSnapshotPublish(ctx context.Context, appCfg *config.App, snapshot *journal.Snapshot, lockfilePath string, db SnapshotStore, stdout, stderr *slog.Logger) error {
	publishConfig := &appCfg.Publish

	stdout.Info("publishing enabled, creating GitHub release",
		"app", snapshot.App,
		"tag", snapshot.Tag)

	// Get GitHub token from environment
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		return fmt.Errorf("GITHUB_TOKEN environment variable is required for publishing")
	}

	// Create GitHub client
	githubClient, err := gh.NewClient(token, publishConfig.GitHubRepository)
	if err != nil {
		return fmt.Errorf("failed to create GitHub client: %w", err)
	}

	// Initialize publish manager
	publishManager, err := NewPublishManager(publishConfig, githubClient, db, stdout, stderr)
	if err != nil {
		return fmt.Errorf("failed to initialize publish manager: %w", err)
	}

	releaseURL, err := publishManager.PublishSnapshot(ctx, snapshot, lockfilePath, publishConfig)
	if err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}

	stdout.Info("snapshot published successfully",
		"tag", snapshot.Tag,
		"url", releaseURL)

	return nil
}
