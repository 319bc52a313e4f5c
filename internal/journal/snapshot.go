// Package journal provides database operations for environment snapshots.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Sentinel errors for snapshot operations.
var (
	ErrNilSnapshot      = errors.New("snapshot cannot be nil")
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// Snapshot represents a captured state of a provisioned environment with its
// full package list.
type Snapshot struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	App            string    `gorm:"not null;uniqueIndex:idx_app_tag" json:"app"`
	Tag            string    `gorm:"not null;uniqueIndex:idx_app_tag" json:"tag"`
	PythonVersion  string    `gorm:"not null" json:"python_version"`
	LockfileSHA256 string    `gorm:"type:varchar(64)" json:"lockfile_sha256"`
	PackageCount   int       `gorm:"not null" json:"package_count"`
	Packages       string    `gorm:"type:json" json:"packages"` // JSON blob
	ReleaseTag     string    `gorm:"index" json:"release_tag,omitempty"`
	ReleaseURL     string    `json:"release_url,omitempty"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
}

// TableName overrides the table name for GORM.
func (Snapshot) TableName() string {
	return "snapshots"
}

// SnapshotContents represents the package list structure stored in the JSON column.
// This structure is stored as JSON in the Snapshot.Packages field.
type SnapshotContents struct {
	Packages []PackageRecord  `json:"packages"`
	Metadata SnapshotMetadata `json:"metadata"`
}

// PackageRecord represents a single installed package captured by pip freeze.
type PackageRecord struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// SnapshotMetadata contains summary information about the captured environment.
type SnapshotMetadata struct {
	PackageCount     int       `json:"package_count"`
	PythonVersion    string    `json:"python_version"`
	ManifestPath     string    `json:"manifest_path"`
	CapturedAt       time.Time `json:"captured_at"`
	FreezeDurationMS int64     `json:"freeze_duration_ms"`
}

// Example JSON structure stored in Snapshot.Packages:
//
// {
//   "packages": [
//     {"name": "flask", "version": "3.0.3"},
//     {"name": "jinja2", "version": "3.1.4"},
//     {"name": "werkzeug", "version": "3.0.3"}
//   ],
//   "metadata": {
//     "package_count": 3,
//     "python_version": "3.11.4",
//     "manifest_path": "requirements.txt",
//     "captured_at": "2026-08-25T12:00:00Z",
//     "freeze_duration_ms": 420
//   }
// }

// CreateSnapshot inserts a new snapshot record into the database.
// Returns an error if the snapshot already exists (duplicate app and tag).
func (d *DB) CreateSnapshot(snapshot *Snapshot) error {
	if snapshot == nil {
		return ErrNilSnapshot
	}

	if err := d.db.Create(snapshot).Error; err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}

	return nil
}

// GetSnapshot retrieves a snapshot by application and tag.
// Returns ErrSnapshotNotFound if no matching snapshot exists.
func (d *DB) GetSnapshot(app, tag string) (*Snapshot, error) {
	if app == "" {
		return nil, fmt.Errorf("app cannot be empty")
	}
	if tag == "" {
		return nil, fmt.Errorf("tag cannot be empty")
	}

	var snapshot Snapshot
	if err := d.db.Where("app = ? AND tag = ?", app, tag).First(&snapshot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	return &snapshot, nil
}

// GetSnapshotByReleaseTag retrieves a published snapshot by its release tag.
// Returns ErrSnapshotNotFound if no matching snapshot exists.
func (d *DB) GetSnapshotByReleaseTag(releaseTag string) (*Snapshot, error) {
	if releaseTag == "" {
		return nil, fmt.Errorf("release tag cannot be empty")
	}

	var snapshot Snapshot
	if err := d.db.Where("release_tag = ?", releaseTag).First(&snapshot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to get snapshot by release tag: %w", err)
	}

	return &snapshot, nil
}

// ListSnapshots retrieves all snapshots for a given application.
// Returns an empty slice if no snapshots exist for the application.
func (d *DB) ListSnapshots(app string) ([]Snapshot, error) {
	if app == "" {
		return nil, fmt.Errorf("app cannot be empty")
	}

	var snapshots []Snapshot
	if err := d.db.Where("app = ?", app).Order("created_at DESC").Find(&snapshots).Error; err != nil {
		return nil, fmt.Errorf("failed to list snapshots for app %s: %w", app, err)
	}

	return snapshots, nil
}

// ListAllSnapshots retrieves all snapshots from the database, ordered by creation
// time descending.
func (d *DB) ListAllSnapshots() ([]Snapshot, error) {
	var snapshots []Snapshot
	if err := d.db.Order("created_at DESC").Find(&snapshots).Error; err != nil {
		return nil, fmt.Errorf("failed to list all snapshots: %w", err)
	}

	return snapshots, nil
}

// UpdateSnapshotRelease records the release tag and URL after a snapshot has
// been published.
func (d *DB) UpdateSnapshotRelease(id uint, releaseTag, releaseURL string) error {
	if err := d.db.Model(&Snapshot{}).Where("id = ?", id).Updates(map[string]interface{}{
		"release_tag": releaseTag,
		"release_url": releaseURL,
	}).Error; err != nil {
		return fmt.Errorf("failed to update release info for snapshot %d: %w", id, err)
	}
	return nil
}

// ExportSnapshotsJSON exports all snapshots for an application as JSON bytes.
// This is useful for generating reports or APIs.
func (d *DB) ExportSnapshotsJSON(app string) ([]byte, error) {
	snapshots, err := d.ListSnapshots(app)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(snapshots, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshots to JSON: %w", err)
	}

	return data, nil
}

// EncodeContents serializes snapshot contents for storage in the Packages column.
func EncodeContents(contents *SnapshotContents) (string, error) {
	data, err := json.Marshal(contents)
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot contents: %w", err)
	}
	return string(data), nil
}

// DecodeContents deserializes the Packages column back into snapshot contents.
func DecodeContents(raw string) (*SnapshotContents, error) {
	var contents SnapshotContents
	if err := json.Unmarshal([]byte(raw), &contents); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot contents: %w", err)
	}
	return &contents, nil
}
