package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"log/slog"
)

// writeFileIfChanged writes content to a file only if it differs from existing content.
// This keeps regeneration idempotent: rendering the same data twice produces no writes.
func writeFileIfChanged(path string, content []byte, logger *slog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, content) {
		logger.Debug("file unchanged, skipping", "path", path)
		return nil
	}

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	logger.Debug("file written", "path", path)
	return nil
}
