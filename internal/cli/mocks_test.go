package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/go-github/v57/github"

	gh "github.com/envrun-project/envrun/internal/github"
	"github.com/envrun-project/envrun/internal/journal"
)

// mockReleasePublisher implements ReleasePublisher for testing.
type mockReleasePublisher struct {
	createReleaseFn func(ctx context.Context, tag, name, body string, draft bool) (*github.RepositoryRelease, error)
	getReleaseFn    func(ctx context.Context, tag string) (*github.RepositoryRelease, error)
	uploadAssetFn   func(ctx context.Context, releaseID int64, filePath string) (*github.ReleaseAsset, error)
}

// CreateRelease implements ReleasePublisher.
func (m *mockReleasePublisher) CreateRelease(ctx context.Context, tag, name, body string, draft bool) (*github.RepositoryRelease, error) {
	if m.createReleaseFn != nil {
		return m.createReleaseFn(ctx, tag, name, body, draft)
	}
	id := int64(123)
	htmlURL := fmt.Sprintf("https://github.com/acme/cms-snapshots/releases/tag/%s", tag)
	return &github.RepositoryRelease{
		ID:      &id,
		TagName: &tag,
		Name:    &name,
		Body:    &body,
		HTMLURL: &htmlURL,
	}, nil
}

// GetRelease implements ReleasePublisher. The default behavior reports no
// existing release for any tag.
func (m *mockReleasePublisher) GetRelease(ctx context.Context, tag string) (*github.RepositoryRelease, error) {
	if m.getReleaseFn != nil {
		return m.getReleaseFn(ctx, tag)
	}
	return nil, fmt.Errorf("%w: %s", gh.ErrReleaseNotFound, tag)
}

// UploadAsset implements ReleasePublisher.
func (m *mockReleasePublisher) UploadAsset(ctx context.Context, releaseID int64, filePath string) (*github.ReleaseAsset, error) {
	if m.uploadAssetFn != nil {
		return m.uploadAssetFn(ctx, releaseID, filePath)
	}
	assetID := int64(456)
	name := filepath.Base(filePath)
	downloadURL := fmt.Sprintf("https://github.com/acme/cms-snapshots/releases/download/%s", name)
	return &github.ReleaseAsset{
		ID:                 &assetID,
		Name:               &name,
		BrowserDownloadURL: &downloadURL,
	}, nil
}

// AssetDownloadURL implements ReleasePublisher.
func (m *mockReleasePublisher) AssetDownloadURL(asset *github.ReleaseAsset) string {
	if asset == nil || asset.BrowserDownloadURL == nil {
		return ""
	}
	return *asset.BrowserDownloadURL
}

// ReleaseURL implements ReleasePublisher.
func (m *mockReleasePublisher) ReleaseURL(release *github.RepositoryRelease) string {
	if release == nil || release.HTMLURL == nil {
		return ""
	}
	return *release.HTMLURL
}

// mockSnapshotStore implements SnapshotStore for testing. The default
// behavior keeps created snapshots in memory.
type mockSnapshotStore struct {
	createSnapshotFn func(snapshot *journal.Snapshot) error
	getSnapshotFn    func(app, tag string) (*journal.Snapshot, error)
	updateReleaseFn  func(id uint, releaseTag, releaseURL string) error

	created     []*journal.Snapshot
	releaseURLs map[uint]string
}

// CreateSnapshot implements SnapshotStore.
func (m *mockSnapshotStore) CreateSnapshot(snapshot *journal.Snapshot) error {
	if m.createSnapshotFn != nil {
		return m.createSnapshotFn(snapshot)
	}
	snapshot.ID = uint(len(m.created) + 1)
	m.created = append(m.created, snapshot)
	return nil
}

// GetSnapshot implements SnapshotStore.
func (m *mockSnapshotStore) GetSnapshot(app, tag string) (*journal.Snapshot, error) {
	if m.getSnapshotFn != nil {
		return m.getSnapshotFn(app, tag)
	}
	for _, snapshot := range m.created {
		if snapshot.App == app && snapshot.Tag == tag {
			return snapshot, nil
		}
	}
	return nil, journal.ErrSnapshotNotFound
}

// UpdateSnapshotRelease implements SnapshotStore.
func (m *mockSnapshotStore) UpdateSnapshotRelease(id uint, releaseTag, releaseURL string) error {
	if m.updateReleaseFn != nil {
		return m.updateReleaseFn(id, releaseTag, releaseURL)
	}
	if m.releaseURLs == nil {
		m.releaseURLs = make(map[uint]string)
	}
	m.releaseURLs[id] = releaseURL
	return nil
}
