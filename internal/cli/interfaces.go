// Package cli provides command-line interface components with testable abstractions.
package cli

import (
	"context"

	"github.com/google/go-github/v57/github"

	"github.com/envrun-project/envrun/internal/journal"
)

// ReleasePublisher abstracts GitHub release operations for testing.
// Following Dave Cheney's principle: "Accept interfaces, return structs"
type ReleasePublisher interface {
	// CreateRelease creates a new GitHub release with the given parameters.
	CreateRelease(ctx context.Context, tag, name, body string, draft bool) (*github.RepositoryRelease, error)

	// GetRelease retrieves an existing release by its tag.
	GetRelease(ctx context.Context, tag string) (*github.RepositoryRelease, error)

	// UploadAsset uploads a file to an existing GitHub release.
	UploadAsset(ctx context.Context, releaseID int64, filePath string) (*github.ReleaseAsset, error)

	// AssetDownloadURL returns the public download URL for a release asset.
	AssetDownloadURL(asset *github.ReleaseAsset) string

	// ReleaseURL returns the HTML URL for a GitHub release.
	ReleaseURL(release *github.RepositoryRelease) string
}

// SnapshotStore abstracts journal snapshot operations for testing.
type SnapshotStore interface {
	// CreateSnapshot inserts a new snapshot record into the journal.
	CreateSnapshot(snapshot *journal.Snapshot) error

	// GetSnapshot retrieves a snapshot by application name and tag.
	GetSnapshot(app, tag string) (*journal.Snapshot, error)

	// UpdateSnapshotRelease stores release coordinates on a published snapshot.
	UpdateSnapshotRelease(id uint, releaseTag, releaseURL string) error
}
