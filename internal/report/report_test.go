package report

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/envrun-project/envrun/internal/journal"
)

type mockJournalReader struct {
	provisions   []*journal.Provision
	snapshots    []journal.Snapshot
	provisionErr error
	snapshotErr  error
}

func (m *mockJournalReader) ListAll() ([]*journal.Provision, error) {
	if m.provisionErr != nil {
		return nil, m.provisionErr
	}
	return m.provisions, nil
}

func (m *mockJournalReader) ListAllSnapshots() ([]journal.Snapshot, error) {
	if m.snapshotErr != nil {
		return nil, m.snapshotErr
	}
	return m.snapshots, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildModel(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name       string
		provisions []*journal.Provision
		snapshots  []journal.Snapshot
		wantApps   []string
	}{
		{
			name:     "empty journal",
			wantApps: []string{},
		},
		{
			name: "single app",
			provisions: []*journal.Provision{
				{App: "cms", Action: journal.ActionCreated, ProvisionedAt: now, Success: true},
			},
			wantApps: []string{"cms"},
		},
		{
			name: "apps sorted ascending",
			provisions: []*journal.Provision{
				{App: "cms", Action: journal.ActionCreated, ProvisionedAt: now, Success: true},
				{App: "blog", Action: journal.ActionCreated, ProvisionedAt: now, Success: true},
			},
			wantApps: []string{"blog", "cms"},
		},
		{
			name: "snapshot-only app still listed",
			provisions: []*journal.Provision{
				{App: "cms", Action: journal.ActionCreated, ProvisionedAt: now, Success: true},
			},
			snapshots: []journal.Snapshot{
				{App: "blog", Tag: "blog-20250601", CreatedAt: now},
			},
			wantApps: []string{"blog", "cms"},
		},
		{
			name: "nil provision skipped",
			provisions: []*journal.Provision{
				nil,
				{App: "cms", Action: journal.ActionSkipped, ProvisionedAt: now, Success: true},
			},
			wantApps: []string{"cms"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildModel(tt.provisions, tt.snapshots)

			if len(got.Apps) != len(tt.wantApps) {
				t.Fatalf("BuildModel() app count = %d, want %d", len(got.Apps), len(tt.wantApps))
			}
			for i, app := range got.Apps {
				if app.Name != tt.wantApps[i] {
					t.Errorf("BuildModel() app[%d].Name = %q, want %q", i, app.Name, tt.wantApps[i])
				}
			}
		})
	}
}

func TestBuildModel_RowsNewestFirst(t *testing.T) {
	now := time.Now()

	provisions := []*journal.Provision{
		{App: "cms", Action: journal.ActionCreated, ProvisionedAt: now.Add(-2 * time.Hour), Success: true},
		{App: "cms", Action: journal.ActionUpdated, ProvisionedAt: now, Success: true},
		{App: "cms", Action: journal.ActionSkipped, ProvisionedAt: now.Add(-time.Hour), Success: true},
	}
	snapshots := []journal.Snapshot{
		{App: "cms", Tag: "cms-20250501", CreatedAt: now.Add(-time.Hour)},
		{App: "cms", Tag: "cms-20250601", CreatedAt: now},
	}

	got := BuildModel(provisions, snapshots)

	if len(got.Apps) != 1 {
		t.Fatalf("BuildModel() app count = %d, want 1", len(got.Apps))
	}

	app := got.Apps[0]
	wantActions := []string{journal.ActionUpdated, journal.ActionSkipped, journal.ActionCreated}
	for i, row := range app.Provisions {
		if row.Action != wantActions[i] {
			t.Errorf("provision row[%d].Action = %q, want %q", i, row.Action, wantActions[i])
		}
	}

	wantTags := []string{"cms-20250601", "cms-20250501"}
	for i, row := range app.Snapshots {
		if row.Tag != wantTags[i] {
			t.Errorf("snapshot row[%d].Tag = %q, want %q", i, row.Tag, wantTags[i])
		}
	}
}

func TestBuildModel_Fields(t *testing.T) {
	now := time.Now()

	provisions := []*journal.Provision{
		{
			App:           "cms",
			Action:        journal.ActionUpdated,
			PythonVersion: "3.11.4",
			PackageCount:  12,
			DurationMS:    2500,
			ProvisionedAt: now,
			Success:       false,
			ErrorMessage:  "pip install exited with code 1",
		},
	}
	snapshots := []journal.Snapshot{
		{
			App:          "cms",
			Tag:          "cms-20250601",
			PackageCount: 12,
			Packages:     `{"packages":[{"name":"flask","version":"3.1.0"}]}`,
			ReleaseTag:   "cms-20250601",
			ReleaseURL:   "https://github.com/acme/cms-snapshots/releases/tag/cms-20250601",
			CreatedAt:    now,
		},
	}

	got := BuildModel(provisions, snapshots)

	app := got.Apps[0]
	if app.Title != "Cms" {
		t.Errorf("BuildModel() title = %q, want %q", app.Title, "Cms")
	}

	row := app.Provisions[0]
	if row.Duration != 2500*time.Millisecond {
		t.Errorf("provision row duration = %v, want %v", row.Duration, 2500*time.Millisecond)
	}
	if row.Success {
		t.Error("provision row expected to be a failure")
	}
	if row.ErrorMessage == "" {
		t.Error("provision row missing error message")
	}

	snap := app.Snapshots[0]
	if snap.Size != int64(len(snapshots[0].Packages)) {
		t.Errorf("snapshot row size = %d, want %d", snap.Size, len(snapshots[0].Packages))
	}
	if snap.ReleaseURL == "" {
		t.Error("snapshot row missing release URL")
	}
}

func TestWriteFileIfChanged(t *testing.T) {
	tests := []struct {
		name        string
		initialData []byte
		newData     []byte
		wantWrite   bool
	}{
		{
			name:      "new file",
			newData:   []byte("report content"),
			wantWrite: true,
		},
		{
			name:        "file unchanged",
			initialData: []byte("report content"),
			newData:     []byte("report content"),
			wantWrite:   false,
		},
		{
			name:        "file changed",
			initialData: []byte("old content"),
			newData:     []byte("new content"),
			wantWrite:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "index.html")

			past := time.Now().Add(-time.Hour)
			if tt.initialData != nil {
				if err := os.WriteFile(path, tt.initialData, 0o644); err != nil {
					t.Fatalf("failed to create initial file: %v", err)
				}
				if err := os.Chtimes(path, past, past); err != nil {
					t.Fatalf("failed to set file times: %v", err)
				}
			}

			if err := writeFileIfChanged(path, tt.newData, testLogger()); err != nil {
				t.Fatalf("writeFileIfChanged() error = %v", err)
			}

			content, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("failed to read file: %v", err)
			}
			want := tt.newData
			if !tt.wantWrite {
				want = tt.initialData
			}
			if string(content) != string(want) {
				t.Errorf("file content = %q, want %q", string(content), string(want))
			}

			if tt.initialData != nil {
				info, err := os.Stat(path)
				if err != nil {
					t.Fatalf("failed to stat file: %v", err)
				}
				written := info.ModTime().After(past)
				if written != tt.wantWrite {
					t.Errorf("file written = %v, want %v", written, tt.wantWrite)
				}
			}
		})
	}
}

func TestNewGenerator(t *testing.T) {
	reader := &mockJournalReader{}
	logger := testLogger()

	gen := NewGenerator(reader, logger)
	if gen == nil {
		t.Fatal("NewGenerator() returned nil")
	}
	if gen.reader != reader {
		t.Error("NewGenerator() reader mismatch")
	}
	if gen.logger != logger {
		t.Error("NewGenerator() logger mismatch")
	}
}

func TestGenerator_Generate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name         string
		reader       JournalReader
		outDir       string
		wantErr      bool
		wantContains []string
	}{
		{
			name:    "missing output dir",
			reader:  &mockJournalReader{},
			outDir:  "",
			wantErr: true,
		},
		{
			name:    "provision read error",
			reader:  &mockJournalReader{provisionErr: os.ErrClosed},
			outDir:  t.TempDir(),
			wantErr: true,
		},
		{
			name:    "snapshot read error",
			reader:  &mockJournalReader{snapshotErr: os.ErrClosed},
			outDir:  t.TempDir(),
			wantErr: true,
		},
		{
			name:         "empty journal renders placeholder",
			reader:       &mockJournalReader{},
			outDir:       t.TempDir(),
			wantContains: []string{"No provisioning history recorded yet."},
		},
		{
			name: "full report",
			reader: &mockJournalReader{
				provisions: []*journal.Provision{
					{
						App:           "cms",
						Action:        journal.ActionUpdated,
						PythonVersion: "3.11.4",
						PackageCount:  12,
						DurationMS:    1800,
						ProvisionedAt: now,
						Success:       true,
					},
					{
						App:           "cms",
						Action:        journal.ActionCreated,
						ProvisionedAt: now.Add(-time.Hour),
						Success:       false,
						ErrorMessage:  "pip install exited with code 1",
					},
				},
				snapshots: []journal.Snapshot{
					{
						App:          "cms",
						Tag:          "cms-20250601",
						PackageCount: 12,
						Packages:     `{"packages":[]}`,
						ReleaseURL:   "https://github.com/acme/cms-snapshots/releases/tag/cms-20250601",
						ReleaseTag:   "cms-20250601",
						CreatedAt:    now,
					},
				},
			},
			outDir: t.TempDir(),
			wantContains: []string{
				"<h2>Cms</h2>",
				"cms-20250601",
				"pip install exited with code 1",
				"3.11.4",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := NewGenerator(tt.reader, testLogger())
			err := gen.Generate(context.Background(), GenerateOptions{OutputDir: tt.outDir})

			if tt.wantErr {
				if err == nil {
					t.Errorf("Generate() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Generate() unexpected error: %v", err)
			}

			content, err := os.ReadFile(filepath.Join(tt.outDir, "index.html"))
			if err != nil {
				t.Fatalf("failed to read generated report: %v", err)
			}
			for _, want := range tt.wantContains {
				if !strings.Contains(string(content), want) {
					t.Errorf("report missing %q", want)
				}
			}
		})
	}
}

func TestRender_Idempotent(t *testing.T) {
	outDir := t.TempDir()
	model := BuildModel([]*journal.Provision{
		{App: "cms", Action: journal.ActionCreated, ProvisionedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), Success: true},
	}, nil)

	if err := Render(model, outDir, testLogger()); err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	path := filepath.Join(outDir, "index.html")
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, past, past); err != nil {
		t.Fatalf("failed to set file times: %v", err)
	}

	if err := Render(model, outDir, testLogger()); err != nil {
		t.Fatalf("Render() second run error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("failed to stat report: %v", err)
	}
	if !info.ModTime().Equal(past) {
		t.Error("unchanged report was rewritten")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
	}

	for _, tt := range tests {
		if got := formatBytes(tt.bytes); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{2500 * time.Millisecond, "2.5s"},
		{90 * time.Second, "1m30s"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
