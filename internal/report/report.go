package report

import (
	"context"
	"fmt"
	"os"

	"log/slog"
)

// Generator orchestrates the HTML report generation process.
type Generator struct {
	reader JournalReader
	logger *slog.Logger
}

// NewGenerator creates a new Generator with the provided JournalReader.
func NewGenerator(reader JournalReader, logger *slog.Logger) *Generator {
	return &Generator{
		reader: reader,
		logger: logger,
	}
}

// GenerateOptions contains options for report generation.
type GenerateOptions struct {
	OutputDir string
}

// Generate renders the complete report from the journal.
// This is the main entry point that orchestrates loading, building, and rendering.
func (g *Generator) Generate(ctx context.Context, opts GenerateOptions) error {
	if opts.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}

	g.logger.Info("starting report generation", "output_dir", opts.OutputDir)

	provisions, err := g.reader.ListAll()
	if err != nil {
		return fmt.Errorf("failed to load provisioning history: %w", err)
	}

	snapshots, err := g.reader.ListAllSnapshots()
	if err != nil {
		return fmt.Errorf("failed to load snapshots: %w", err)
	}

	g.logger.Info("loaded journal records",
		"provisions", len(provisions),
		"snapshots", len(snapshots),
	)

	if len(provisions) == 0 && len(snapshots) == 0 {
		g.logger.Warn("journal is empty, report will have no history")
	}

	model := BuildModel(provisions, snapshots)

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := Render(model, opts.OutputDir, g.logger); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	g.logger.Info("report generation completed successfully", "apps", len(model.Apps))
	return nil
}
