package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"path/filepath"
	"time"

	"log/slog"
)

//go:embed templates/report.tmpl
var templateFS embed.FS

// Render writes the report as index.html under outDir.
func Render(model *Model, outDir string, logger *slog.Logger) error {
	tmpl, err := loadTemplate()
	if err != nil {
		return fmt.Errorf("failed to load template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "report.tmpl", model); err != nil {
		return fmt.Errorf("failed to execute report template: %w", err)
	}

	path := filepath.Join(outDir, "index.html")
	if err := writeFileIfChanged(path, buf.Bytes(), logger); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	logger.Info("rendered report", "path", path)
	return nil
}

// loadTemplate loads the report template with helper functions.
func loadTemplate() (*template.Template, error) {
	tmpl := template.New("").Funcs(template.FuncMap{
		"formatBytes":    formatBytes,
		"formatDuration": formatDuration,
		"formatTime":     formatTime,
	})

	data, err := templateFS.ReadFile("templates/report.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded template: %w", err)
	}

	if _, err := tmpl.New("report.tmpl").Parse(string(data)); err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	return tmpl, nil
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatDuration formats a duration as a compact table cell value.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(100 * time.Millisecond).String()
}

// formatTime formats a timestamp for display, always in UTC.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}
