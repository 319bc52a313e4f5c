package report

import "time"

// Model represents the complete report structure for HTML generation.
type Model struct {
	GeneratedAt time.Time
	Apps        []AppModel
}

// AppModel groups the provisioning history and snapshots of one application.
type AppModel struct {
	Name       string
	Title      string
	Provisions []ProvisionRow
	Snapshots  []SnapshotRow
}

// ProvisionRow represents a single provisioning run.
type ProvisionRow struct {
	Action        string
	PythonVersion string
	PackageCount  int
	Duration      time.Duration
	ProvisionedAt time.Time
	Success       bool
	ErrorMessage  string
}

// SnapshotRow represents a captured snapshot with its release info when published.
type SnapshotRow struct {
	Tag           string
	PythonVersion string
	PackageCount  int
	Size          int64 // stored package list, in bytes
	ReleaseTag    string
	ReleaseURL    string
	CreatedAt     time.Time
}
