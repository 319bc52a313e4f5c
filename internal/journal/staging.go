// Package journal provides temporary directory management for snapshot operations.
package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StagingDir manages a temporary directory for snapshot and publish operations.
type StagingDir struct {
	root      string
	lockfiles string
	created   time.Time
}

// NewStagingDir creates a new temporary directory structure for snapshot operations.
// The directory structure is:
//   {base}/envrun-{app}-{tag}-{timestamp}/
//     lockfiles/    - Frozen requirements captured from the environment
//     reports/      - Generated report files to attach to a release
//
// The caller is responsible for cleaning up by calling Remove().
func NewStagingDir(app, tag string) (*StagingDir, error) {
	if app == "" {
		return nil, fmt.Errorf("app cannot be empty")
	}
	if tag == "" {
		return nil, fmt.Errorf("tag cannot be empty")
	}

	timestamp := time.Now().Format("20060102T150405")
	dirname := fmt.Sprintf("envrun-%s-%s-%s", app, tag, timestamp)

	root := filepath.Join(os.TempDir(), dirname)

	// Create root directory
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	// Create lockfiles subdirectory
	lockfiles := filepath.Join(root, "lockfiles")
	if err := os.MkdirAll(lockfiles, 0755); err != nil {
		// Clean up root if subdirectory creation fails
		// Ignore cleanup error as we're already returning an error
		_ = os.RemoveAll(root)
		return nil, fmt.Errorf("failed to create lockfiles directory: %w", err)
	}

	// Create reports subdirectory
	reports := filepath.Join(root, "reports")
	if err := os.MkdirAll(reports, 0755); err != nil {
		// Clean up on failure - ignore error as we're already returning an error
		_ = os.RemoveAll(root)
		return nil, fmt.Errorf("failed to create reports directory: %w", err)
	}

	return &StagingDir{
		root:      root,
		lockfiles: lockfiles,
		created:   time.Now(),
	}, nil
}

// Root returns the root staging directory path.
// Returns empty string if StagingDir was not initialized.
func (s *StagingDir) Root() string {
	return s.root
}

// Lockfiles returns the lockfiles subdirectory path where frozen requirements
// are written.
// Returns empty string if StagingDir was not initialized.
func (s *StagingDir) Lockfiles() string {
	return s.lockfiles
}

// Reports returns the reports subdirectory path where report files are staged.
// Returns empty string if StagingDir was not initialized.
func (s *StagingDir) Reports() string {
	if s.root == "" {
		return ""
	}
	return filepath.Join(s.root, "reports")
}

// Remove deletes the staging directory and all its contents.
// It returns an error if deletion fails, but does not fail if the directory
// doesn't exist (idempotent).
func (s *StagingDir) Remove() error {
	if s.root == "" {
		return nil // Nothing to remove
	}

	// Check if directory exists
	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		return nil // Already removed, this is fine
	}

	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("failed to remove staging directory %s: %w", s.root, err)
	}

	return nil
}

// Age returns how long ago the staging directory was created.
func (s *StagingDir) Age() time.Duration {
	return time.Since(s.created)
}

// ListAllFiles returns all files in both lockfiles and reports directories.
// Files are returned as absolute paths.
// Returns an error if StagingDir was not initialized.
func (s *StagingDir) ListAllFiles() ([]string, error) {
	if s.root == "" {
		return nil, fmt.Errorf("staging directory not initialized: use NewStagingDir to create instances")
	}

	var files []string

	// List files in lockfiles directory
	lockfileEntries, err := listFilesInDir(s.lockfiles)
	if err != nil {
		return nil, fmt.Errorf("failed to list lockfiles: %w", err)
	}
	files = append(files, lockfileEntries...)

	// List files in reports directory
	reportsDir := s.Reports()
	reportEntries, err := listFilesInDir(reportsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	files = append(files, reportEntries...)

	return files, nil
}

// listFilesInDir returns all regular files (not directories) in the specified directory.
// Returns absolute paths.
func listFilesInDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}

	return files, nil
}
