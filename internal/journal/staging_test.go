package journal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewStagingDir(t *testing.T) {
	tests := []struct {
		name        string
		app         string
		tag         string
		wantErr     bool
		errContains string
	}{
		{
			name:    "valid app and tag",
			app:     "cms",
			tag:     "v1",
			wantErr: false,
		},
		{
			name:    "tag with timestamp format",
			app:     "worker",
			tag:     "v2026.08.25",
			wantErr: false,
		},
		{
			name:        "empty app",
			app:         "",
			tag:         "v1",
			wantErr:     true,
			errContains: "app cannot be empty",
		},
		{
			name:        "empty tag",
			app:         "cms",
			tag:         "",
			wantErr:     true,
			errContains: "tag cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sd, err := NewStagingDir(tt.app, tt.tag)

			if tt.wantErr {
				if err == nil {
					t.Errorf("NewStagingDir() expected error containing %q, got nil", tt.errContains)
					return
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("NewStagingDir() error = %v, want error containing %q", err, tt.errContains)
				}
				return
			}

			if err != nil {
				t.Fatalf("NewStagingDir() unexpected error: %v", err)
			}
			t.Cleanup(func() {
				if err := sd.Remove(); err != nil {
					t.Errorf("failed to clean up staging dir: %v", err)
				}
			})

			// Root should exist and carry the app and tag in its name
			if _, err := os.Stat(sd.Root()); err != nil {
				t.Errorf("root directory not created: %v", err)
			}
			base := filepath.Base(sd.Root())
			if !strings.HasPrefix(base, "envrun-"+tt.app+"-"+tt.tag+"-") {
				t.Errorf("root directory name = %q, want envrun-%s-%s-<timestamp> prefix", base, tt.app, tt.tag)
			}

			// Subdirectories should exist
			if _, err := os.Stat(sd.Lockfiles()); err != nil {
				t.Errorf("lockfiles directory not created: %v", err)
			}
			if _, err := os.Stat(sd.Reports()); err != nil {
				t.Errorf("reports directory not created: %v", err)
			}
		})
	}
}

func TestStagingDirRemove(t *testing.T) {
	t.Run("removes existing directory", func(t *testing.T) {
		sd, err := NewStagingDir("cms", "v1")
		if err != nil {
			t.Fatalf("NewStagingDir() error: %v", err)
		}

		if err := sd.Remove(); err != nil {
			t.Errorf("Remove() error = %v, want nil", err)
		}
		if _, err := os.Stat(sd.Root()); !os.IsNotExist(err) {
			t.Errorf("root directory still exists after Remove()")
		}
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		sd, err := NewStagingDir("cms", "v1")
		if err != nil {
			t.Fatalf("NewStagingDir() error: %v", err)
		}

		if err := sd.Remove(); err != nil {
			t.Errorf("first Remove() error = %v, want nil", err)
		}
		if err := sd.Remove(); err != nil {
			t.Errorf("second Remove() error = %v, want nil", err)
		}
	})

	t.Run("zero value has nothing to remove", func(t *testing.T) {
		var sd StagingDir
		if err := sd.Remove(); err != nil {
			t.Errorf("Remove() on zero value error = %v, want nil", err)
		}
	})
}

func TestStagingDirListAllFiles(t *testing.T) {
	sd, err := NewStagingDir("cms", "v1")
	if err != nil {
		t.Fatalf("NewStagingDir() error: %v", err)
	}
	t.Cleanup(func() {
		if err := sd.Remove(); err != nil {
			t.Errorf("failed to clean up staging dir: %v", err)
		}
	})

	// Empty staging dir lists no files
	files, err := sd.ListAllFiles()
	if err != nil {
		t.Fatalf("ListAllFiles() error = %v, want nil", err)
	}
	if len(files) != 0 {
		t.Errorf("ListAllFiles() on empty dir = %d files, want 0", len(files))
	}

	// Add one file to each subdirectory
	lockfile := filepath.Join(sd.Lockfiles(), "requirements.lock.txt")
	if err := os.WriteFile(lockfile, []byte("flask==3.0.3\n"), 0644); err != nil {
		t.Fatalf("failed to write lockfile: %v", err)
	}
	report := filepath.Join(sd.Reports(), "report.html")
	if err := os.WriteFile(report, []byte("<html></html>"), 0644); err != nil {
		t.Fatalf("failed to write report: %v", err)
	}

	files, err = sd.ListAllFiles()
	if err != nil {
		t.Fatalf("ListAllFiles() error = %v, want nil", err)
	}
	if len(files) != 2 {
		t.Fatalf("ListAllFiles() = %d files, want 2", len(files))
	}
	for _, f := range files {
		if !filepath.IsAbs(f) {
			t.Errorf("ListAllFiles() returned relative path %q", f)
		}
	}

	t.Run("uninitialized staging dir", func(t *testing.T) {
		var empty StagingDir
		if _, err := empty.ListAllFiles(); err == nil {
			t.Error("ListAllFiles() on zero value expected error, got nil")
		}
	})
}

func TestStagingDirAge(t *testing.T) {
	sd, err := NewStagingDir("cms", "v1")
	if err != nil {
		t.Fatalf("NewStagingDir() error: %v", err)
	}
	t.Cleanup(func() {
		if err := sd.Remove(); err != nil {
			t.Errorf("failed to clean up staging dir: %v", err)
		}
	})

	if age := sd.Age(); age < 0 || age > time.Minute {
		t.Errorf("Age() = %v, want a small positive duration", age)
	}
}
