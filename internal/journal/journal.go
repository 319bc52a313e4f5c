// Package journal provides provisioning history tracking using GORM and SQLite
package journal

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Sentinel errors following Dave Cheney's principle: define errors as values
var (
	ErrNilProvision = errors.New("provision cannot be nil")
	ErrNotFound     = errors.New("provision not found")
)

// Actions recorded for a provisioning run.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionSkipped = "skipped"
)

// Provision represents a single provisioning run of an application environment
type Provision struct {
	ID uint `gorm:"primaryKey"`

	// What was provisioned
	App            string `gorm:"not null;index:idx_app_provisioned"`
	EnvDir         string `gorm:"not null"`
	ManifestPath   string `gorm:"not null"`
	ManifestSHA256 string `gorm:"type:varchar(64)"`
	PythonVersion  string

	// What happened
	Action       string `gorm:"not null;index"` // "created", "updated" or "skipped"
	PackageCount int
	DurationMS   int64

	// When
	ProvisionedAt time.Time `gorm:"not null;index:idx_app_provisioned"`

	// Outcome
	Success      bool `gorm:"not null;default:false"`
	ErrorMessage string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store defines the interface for journal storage operations
type Store interface {
	Close() error
	RecordProvision(*Provision) error
	LatestProvision(app string) (*Provision, error)
	HasSuccessfulProvision(app string) (bool, error)
	ListAll() ([]*Provision, error)
	ListByApp(app string) ([]*Provision, error)
	ListByAction(action string) ([]*Provision, error)
	CreateSnapshot(*Snapshot) error
	GetSnapshot(app, tag string) (*Snapshot, error)
	GetSnapshotByReleaseTag(releaseTag string) (*Snapshot, error)
	ListSnapshots(app string) ([]Snapshot, error)
	ListAllSnapshots() ([]Snapshot, error)
	UpdateSnapshotRelease(id uint, releaseTag, releaseURL string) error
	GetStats() (map[string]interface{}, error)
}

// DB wraps gorm.DB with our journal operations
type DB struct {
	db *gorm.DB
}

// Config holds database configuration
type Config struct {
	DatabasePath string
	LogLevel     string // silent, error, warn, info
}

// InitDB initializes the database connection and runs migrations
func InitDB(cfg Config) (*DB, error) {
	logLevel := logger.Silent
	switch cfg.LogLevel {
	case "error":
		logLevel = logger.Error
	case "warn":
		logLevel = logger.Warn
	case "info":
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto-migrate schema
	if err := db.AutoMigrate(&Provision{}, &Snapshot{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}

// RecordProvision creates a new provisioning record
func (d *DB) RecordProvision(provision *Provision) error {
	if provision == nil {
		return ErrNilProvision
	}
	if err := d.db.Create(provision).Error; err != nil {
		return fmt.Errorf("failed to record provision: %w", err)
	}
	return nil
}

// LatestProvision retrieves the most recent provisioning run for an application
func (d *DB) LatestProvision(app string) (*Provision, error) {
	var provision Provision
	err := d.db.Where("app = ?", app).Order("provisioned_at DESC").First(&provision).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest provision: %w", err)
	}
	return &provision, nil
}

// HasSuccessfulProvision checks if an application has at least one successful run
func (d *DB) HasSuccessfulProvision(app string) (bool, error) {
	var count int64
	err := d.db.Model(&Provision{}).Where("app = ? AND success = ?", app, true).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check provisioning history: %w", err)
	}
	return count > 0, nil
}

// ListAll returns all provisioning runs
func (d *DB) ListAll() ([]*Provision, error) {
	var provisions []*Provision
	if err := d.db.Order("provisioned_at DESC").Find(&provisions).Error; err != nil {
		return nil, fmt.Errorf("failed to list all provisions: %w", err)
	}
	return provisions, nil
}

// ListByApp returns all provisioning runs for a specific application
func (d *DB) ListByApp(app string) ([]*Provision, error) {
	var provisions []*Provision
	if err := d.db.Where("app = ?", app).Order("provisioned_at DESC").Find(&provisions).Error; err != nil {
		return nil, fmt.Errorf("failed to list provisions for app %s: %w", app, err)
	}
	return provisions, nil
}

// ListByAction returns all provisioning runs with a specific action
func (d *DB) ListByAction(action string) ([]*Provision, error) {
	var provisions []*Provision
	if err := d.db.Where("action = ?", action).
		Order("provisioned_at DESC").Find(&provisions).Error; err != nil {
		return nil, fmt.Errorf("failed to list provisions for action %s: %w", action, err)
	}
	return provisions, nil
}

// GetStats returns provisioning statistics
func (d *DB) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	// Total provisioning runs
	var total int64
	if err := d.db.Model(&Provision{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count total provisions: %w", err)
	}
	stats["total_provisions"] = total

	// By application
	var appCounts []struct {
		App   string
		Count int64
	}
	if err := d.db.Model(&Provision{}).Select("app, COUNT(*) as count").
		Group("app").Scan(&appCounts).Error; err != nil {
		return nil, fmt.Errorf("failed to get app counts: %w", err)
	}
	stats["by_app"] = appCounts

	// By action
	var actionCounts []struct {
		Action string
		Count  int64
	}
	if err := d.db.Model(&Provision{}).Select("action, COUNT(*) as count").
		Group("action").Scan(&actionCounts).Error; err != nil {
		return nil, fmt.Errorf("failed to get action counts: %w", err)
	}
	stats["by_action"] = actionCounts

	// Snapshots
	var snapshots int64
	if err := d.db.Model(&Snapshot{}).Count(&snapshots).Error; err != nil {
		return nil, fmt.Errorf("failed to count snapshots: %w", err)
	}
	stats["total_snapshots"] = snapshots

	return stats, nil
}
