// Package cli provides a unified command-line interface for the environment
// provisioning system. It supports YAML configuration files and integrates
// with all environment providers.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/envrun-project/envrun/internal/config"
	"github.com/envrun-project/envrun/internal/environment"
	"github.com/envrun-project/envrun/internal/environments/venv"
	"github.com/envrun-project/envrun/internal/hooks"
	"github.com/envrun-project/envrun/internal/journal"
	"github.com/envrun-project/envrun/internal/manifest"
	"github.com/envrun-project/envrun/internal/pypi"
	"github.com/envrun-project/envrun/internal/report"
)

// OutdatedPackage represents a single pin comparison for JSON output
type OutdatedPackage struct {
	Name     string `json:"name"`
	Pinned   string `json:"pinned"`
	Latest   string `json:"latest,omitempty"`
	Severity string `json:"severity"`
}

// OutdatedSummary represents the outdated check of one app for JSON output
type OutdatedSummary struct {
	App      string            `json:"app"`
	Manifest string            `json:"manifest"`
	Total    int               `json:"total"`
	Outdated int               `json:"outdated"`
	Packages []OutdatedPackage `json:"packages"`
}

// NewApp creates and configures the main CLI application.
func NewApp() *cli.App {
	return &cli.App{
		Name:     "envrun",
		Usage:    "Provision, run and snapshot Python application environments",
		Version:  "1.0.0",
		Compiled: time.Now(),
		Authors: []*cli.Author{
			{
				Name:  "envrun developers",
				Email: "info@example.com",
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "envrun.yaml",
				Usage:   "path to application registry configuration file",
				EnvVars: []string{"ENVRUN_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "log level for structured JSON output (debug, info, warn, error)",
				EnvVars: []string{"ENVRUN_LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "env",
				Usage: "Provision application environments from their manifests",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "app",
						Aliases: []string{"a"},
						Usage:   "application name. If not specified, provisions all enabled apps from config",
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "reinstall packages even when the environment is up to date",
					},
				},
				Action: provisionEnvironments,
			},
			{
				Name:  "run",
				Usage: "Provision an application environment, then launch its dev server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "app",
						Aliases: []string{"a"},
						Usage:   "application name. Optional when exactly one app is enabled",
					},
				},
				Action: runApplication,
			},
			{
				Name:  "status",
				Usage: "Show environment freshness and provisioning history",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "app",
						Aliases: []string{"a"},
						Usage:   "application name. If not specified, shows all enabled apps",
					},
					&cli.StringFlag{
						Name:  "output",
						Value: "text",
						Usage: "output format (text, json)",
					},
				},
				Action: showStatus,
			},
			{
				Name:  "outdated",
				Usage: "Compare manifest pins against the package index",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "app",
						Aliases: []string{"a"},
						Usage:   "application name. If not specified, checks all enabled apps",
					},
					&cli.StringFlag{
						Name:  "output",
						Value: "text",
						Usage: "output format (text, json)",
					},
				},
				Action: checkOutdated,
			},
			{
				Name:  "snapshot",
				Usage: "Record the installed package set of a provisioned environment",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "app",
						Aliases: []string{"a"},
						Usage:   "application name. Optional when exactly one app is enabled",
					},
					&cli.StringFlag{
						Name:    "tag",
						Aliases: []string{"t"},
						Usage:   "snapshot tag. Defaults to <app>-<UTC timestamp>",
					},
					&cli.BoolFlag{
						Name:  "publish",
						Usage: "publish the snapshot as a GitHub release with the lockfile attached",
					},
					&cli.BoolFlag{
						Name:  "keep-staging",
						Usage: "keep the staging directory after the snapshot is recorded",
					},
				},
				Action: snapshotEnvironment,
			},
			{
				Name:  "report",
				Usage: "Generate a static HTML report from the provisioning journal",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "out",
						Usage:   "output directory for generated HTML files. Defaults to report.output_dir from config",
						EnvVars: []string{"ENVRUN_REPORT_OUT"},
					},
				},
				Action: reportCommand,
			},
			{
				Name:  "init",
				Usage: "Write a default configuration file",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "overwrite an existing configuration file",
					},
				},
				Action: initConfig,
			},
		},
	}
}

// initDB initializes the journal database based on the provided configuration.
// Returns an error if the database file cannot be created or opened.
func initDB(cfg *config.Config) (*journal.DB, error) {
	return journal.InitDB(journal.Config{
		DatabasePath: cfg.ResolvePath(cfg.Config.Storage.DatabasePath),
		LogLevel:     "warn",
	})
}

// initializeManager creates an environment manager with registered providers based on config.
func initializeManager(configPath string, db *journal.DB, stdout, stderr *slog.Logger) (*environment.Manager, *config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	registry := environment.NewRegistry()
	if err := registry.Register(venv.Venv, venv.New(stdout, stderr)); err != nil {
		return nil, nil, fmt.Errorf("failed to register venv provider: %w", err)
	}

	for appName, appCfg := range cfg.GetEnabledApps() {
		providerName := appCfg.Provisioner
		if providerName == "" {
			providerName = environment.DefaultProvider
		}
		if _, err := registry.Get(providerName); err != nil {
			stderr.Warn("unsupported provisioner", "app", appName, "provisioner", providerName)
			continue
		}
		stdout.Info("configured application",
			"app", appName,
			"provisioner", providerName,
			"manifest", appCfg.Manifest,
			"environment_directory", appCfg.EnvDir)
	}

	manager := environment.NewManager(registry, db, stdout, stderr)
	manager.SetConfig(cfg)
	return manager, cfg, nil
}

// soleEnabledApp resolves the implied app name for commands that operate on a
// single app. It succeeds only when the config enables exactly one app.
func soleEnabledApp(cfg *config.Config) (string, error) {
	enabled := cfg.GetEnabledApps()
	if len(enabled) == 0 {
		return "", environment.ErrNoAppsEnabled
	}

	names := make([]string, 0, len(enabled))
	for name := range enabled {
		names = append(names, name)
	}
	if len(names) > 1 {
		sort.Strings(names)
		return "", fmt.Errorf("several apps are enabled (%s), choose one with --app", strings.Join(names, ", "))
	}
	return names[0], nil
}

// provisionEnvironments implements the env command.
func provisionEnvironments(c *cli.Context) error {
	appName := c.String("app")
	force := c.Bool("force")

	// Create loggers from CLI flag
	logLevel := ParseLogLevelOrDefault(c.String("log-level"))
	stdout, stderr := NewLoggers(logLevel)

	stdout.Info("starting provisioning", "app", appName, "force", force)

	// Load configuration
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		stderr.Error("failed to load config", "error", err)
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize journal database
	db, err := initDB(cfg)
	if err != nil {
		stderr.Error("failed to initialize journal", "error", err)
		return fmt.Errorf("failed to initialize journal: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			// Log close error but don't fail - we're in cleanup
			stderr.Warn("failed to close journal", "error", closeErr)
		}
	}()

	// Initialize manager (registers providers, loads app registry)
	manager, _, err := initializeManager(c.String("config"), db, stdout, stderr)
	if err != nil {
		stderr.Error("failed to initialize manager", "error", err)
		return fmt.Errorf("failed to initialize manager: %w", err)
	}

	if appName == "" {
		// No app specified - provision all enabled apps from config
		results, err := manager.ProvisionAll(c.Context, force)
		for _, result := range results {
			logProvisionResult(stdout, result)
		}
		if err != nil {
			stderr.Error("provisioning failed", "error", err)
			return fmt.Errorf("provisioning failed: %w", err)
		}
		stdout.Info("all environments processed", "total", len(results))
		return nil
	}

	result, err := manager.Provision(c.Context, appName, force)
	if err != nil {
		stderr.Error("provisioning failed", "app", appName, "error", err)
		return fmt.Errorf("provisioning failed: %w", err)
	}
	logProvisionResult(stdout, result)
	return nil
}

// logProvisionResult logs the outcome of one provisioning run.
func logProvisionResult(stdout *slog.Logger, result *environment.ProvisionResult) {
	stdout.Info("environment ready",
		"app", result.App,
		"action", result.Action,
		"environment_directory", result.EnvDir,
		"python", result.PythonVersion,
		"packages", result.PackageCount,
		"duration_ms", result.Duration.Milliseconds())
}

// runApplication implements the run command. Provisioning always runs first
// so a deleted or stale environment is rebuilt before the app starts.
func runApplication(c *cli.Context) error {
	logLevel := ParseLogLevelOrDefault(c.String("log-level"))
	stdout, stderr := NewLoggers(logLevel)

	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		stderr.Error("failed to load config", "error", err)
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := initDB(cfg)
	if err != nil {
		stderr.Error("failed to initialize journal", "error", err)
		return fmt.Errorf("failed to initialize journal: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			stderr.Warn("failed to close journal", "error", closeErr)
		}
	}()

	manager, cfg, err := initializeManager(c.String("config"), db, stdout, stderr)
	if err != nil {
		stderr.Error("failed to initialize manager", "error", err)
		return fmt.Errorf("failed to initialize manager: %w", err)
	}

	appName := c.String("app")
	if appName == "" {
		appName, err = soleEnabledApp(cfg)
		if err != nil {
			stderr.Error("cannot determine app to run", "error", err)
			return err
		}
	}

	stdout.Info("starting application", "app", appName)

	if err := manager.Run(c.Context, appName); err != nil {
		stderr.Error("run failed", "app", appName, "error", err)
		return exitWithCode(err)
	}
	return nil
}

// exitWithCode converts launch and hook failures into the process exit status
// so the application's own exit code propagates through the CLI.
func exitWithCode(err error) error {
	var launchErr *environment.LaunchError
	if errors.As(err, &launchErr) && launchErr.ExitCode > 0 {
		return cli.Exit(err.Error(), launchErr.ExitCode)
	}
	var hookErr hooks.HookError
	if errors.As(err, &hookErr) && hookErr.ExitCode > 0 {
		return cli.Exit(err.Error(), hookErr.ExitCode)
	}
	return err
}

// showStatus implements the status command.
func showStatus(c *cli.Context) error {
	appName := c.String("app")
	outputFormat := c.String("output")

	logLevel := ParseLogLevelOrDefault(c.String("log-level"))
	stdout, stderr := NewLoggersWithOutputFormat(logLevel, outputFormat)

	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		stderr.Error("failed to load config", "error", err)
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := initDB(cfg)
	if err != nil {
		stderr.Error("failed to initialize journal", "error", err)
		return fmt.Errorf("failed to initialize journal: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			stderr.Warn("failed to close journal", "error", closeErr)
		}
	}()

	manager, _, err := initializeManager(c.String("config"), db, stdout, stderr)
	if err != nil {
		stderr.Error("failed to initialize manager", "error", err)
		return fmt.Errorf("failed to initialize manager: %w", err)
	}

	statuses, err := manager.Status(c.Context, appName)
	if err != nil {
		stderr.Error("failed to collect status", "error", err)
		return fmt.Errorf("failed to collect status: %w", err)
	}

	if outputFormat == "json" {
		output, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	for _, status := range statuses {
		state := "missing"
		if status.Exists {
			if status.Fresh {
				state = "current"
			} else {
				state = "stale"
			}
		}
		stdout.Info("environment status",
			"app", status.App,
			"state", state,
			"environment_directory", status.EnvDir,
			"python", status.PythonVersion,
			"packages", status.PackageCount,
			"last_action", status.LastAction,
			"last_success", status.LastSuccess)
	}
	return nil
}

// checkOutdated implements the outdated command.
func checkOutdated(c *cli.Context) error {
	appName := c.String("app")
	outputFormat := c.String("output")

	logLevel := ParseLogLevelOrDefault(c.String("log-level"))
	stdout, stderr := NewLoggersWithOutputFormat(logLevel, outputFormat)

	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		stderr.Error("failed to load config", "error", err)
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Determine which apps to check
	var appsToCheck []string
	if appName == "" {
		for name := range cfg.GetEnabledApps() {
			appsToCheck = append(appsToCheck, name)
		}
		sort.Strings(appsToCheck)
		stdout.Info("no app specified, checking all enabled apps from config", "apps", appsToCheck)
	} else {
		if _, exists := cfg.GetAppConfig(appName); !exists {
			stderr.Error("app not configured", "app", appName)
			return fmt.Errorf("%w: %s", environment.ErrAppNotConfigured, appName)
		}
		appsToCheck = []string{appName}
	}

	factory := pypi.NewClientFactory()
	client, err := factory.CreateClient(pypi.ClientConfig{
		BaseURL: cfg.Config.Index.BaseURL,
		Timeout: cfg.Config.Index.GetTimeout(),
	})
	if err != nil {
		stderr.Error("failed to create index client", "error", err)
		return fmt.Errorf("failed to create index client: %w", err)
	}

	// Load ignore configuration if specified
	var ignoreConfig config.IgnoreConfig
	if cfg.Config.IgnoreFile != "" {
		ignoreConfig, err = config.LoadIgnoreConfig(cfg.ResolvePath(cfg.Config.IgnoreFile))
		if err != nil {
			stderr.Warn("failed to load ignore config", "ignore_file", cfg.Config.IgnoreFile, "error", err)
			ignoreConfig = config.IgnoreConfig{} // Use empty config on error
		} else {
			stdout.Debug("loaded ignore configuration", "ignore_file", cfg.Config.IgnoreFile)
		}
	}

	summaries := make([]*OutdatedSummary, 0, len(appsToCheck))
	for _, name := range appsToCheck {
		appCfg, _ := cfg.GetAppConfig(name)
		summary, err := checkAppOutdated(c.Context, client, cfg, ignoreConfig, name, appCfg, stdout, stderr)
		if err != nil {
			stderr.Error("outdated check failed", "app", name, "error", err)
			return fmt.Errorf("outdated check failed: %w", err)
		}
		summaries = append(summaries, summary)
	}

	if outputFormat == "json" {
		output, err := json.MarshalIndent(summaries, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	// No text output - all output is via structured logging (JSON)
	return nil
}

// checkAppOutdated compares one app's manifest pins against the package index.
// The check is read-only and informational: the command exits zero even when
// packages are outdated.
func checkAppOutdated(ctx context.Context, client pypi.Client, cfg *config.Config, ignoreConfig config.IgnoreConfig, appName string, appCfg config.App, stdout, stderr *slog.Logger) (*OutdatedSummary, error) {
	manifestPath := cfg.ResolvePath(appCfg.Manifest)

	pins, err := manifest.Parse(manifestPath, stdout)
	if err != nil {
		stderr.Error("failed to parse manifest", "app", appName, "manifest", manifestPath, "error", err)
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	stdout.Info("parsed manifest", "app", appName, "manifest", appCfg.Manifest, "requirements", len(pins))

	packages, err := client.CheckOutdated(ctx, pins)
	if err != nil {
		stderr.Error("index check failed", "app", appName, "error", err)
		return nil, fmt.Errorf("index check failed: %w", err)
	}

	summary := &OutdatedSummary{
		App:      appName,
		Manifest: appCfg.Manifest,
	}

	for _, pkg := range packages {
		if ignoreConfig.IsPackageIgnored(appName, pkg.Name) {
			stdout.Debug("skipping ignored package", "app", appName, "package", pkg.Name)
			continue
		}
		if pkg.IsUpgrade() && ignoreConfig.IsUpgradeIgnored(appName, pkg.Name, pkg.Latest) {
			stdout.Debug("skipping ignored upgrade",
				"app", appName,
				"package", pkg.Name,
				"latest", pkg.Latest)
			continue
		}

		summary.Total++
		summary.Packages = append(summary.Packages, OutdatedPackage{
			Name:     pkg.Name,
			Pinned:   pkg.Pinned,
			Latest:   pkg.Latest,
			Severity: pkg.Severity,
		})

		switch {
		case pkg.IsUpgrade():
			summary.Outdated++
			stdout.Info("package outdated",
				"app", appName,
				"package", pkg.Name,
				"pinned", pkg.Pinned,
				"latest", pkg.Latest,
				"severity", pkg.Severity)
		case pkg.Severity == pypi.StatusSkipped:
			stdout.Debug("requirement not pinned, skipped", "app", appName, "package", pkg.Name)
		case pkg.Severity == pypi.StatusUnknown:
			stderr.Warn("index lookup failed", "app", appName, "package", pkg.Name)
		default:
			stdout.Debug("package current", "app", appName, "package", pkg.Name, "pinned", pkg.Pinned)
		}
	}

	stdout.Info("outdated check summary",
		"app", appName,
		"total", summary.Total,
		"outdated", summary.Outdated)
	return summary, nil
}

// snapshotEnvironment implements the snapshot command.
func snapshotEnvironment(c *cli.Context) error {
	appName := c.String("app")
	tag := c.String("tag")
	publish := c.Bool("publish")
	keepStaging := c.Bool("keep-staging")

	logLevel := ParseLogLevelOrDefault(c.String("log-level"))
	stdout, stderr := NewLoggers(logLevel)

	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		stderr.Error("failed to load config", "error", err)
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := initDB(cfg)
	if err != nil {
		stderr.Error("failed to initialize journal", "error", err)
		return fmt.Errorf("failed to initialize journal: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			stderr.Warn("failed to close journal", "error", closeErr)
		}
	}()

	if appName == "" {
		appName, err = soleEnabledApp(cfg)
		if err != nil {
			stderr.Error("cannot determine app to snapshot", "error", err)
			return err
		}
	}
	appCfg, exists := cfg.GetAppConfig(appName)
	if !exists {
		stderr.Error("app not configured", "app", appName)
		return fmt.Errorf("%w: %s", environment.ErrAppNotConfigured, appName)
	}

	if tag == "" {
		tag = fmt.Sprintf("%s-%s", appName, time.Now().UTC().Format("20060102T150405Z"))
	}

	sm := NewSnapshotManager(db, stdout, stderr)
	snapshot, staging, err := sm.Capture(c.Context, cfg, appName, appCfg, tag)
	if err != nil {
		stderr.Error("snapshot failed", "app", appName, "tag", tag, "error", err)
		return fmt.Errorf("snapshot failed: %w", err)
	}

	if keepStaging {
		stdout.Info("keeping staging directory", "path", staging.Root())
	} else {
		defer func() {
			if removeErr := staging.Remove(); removeErr != nil {
				stderr.Warn("failed to remove staging directory", "path", staging.Root(), "error", removeErr)
			}
		}()
	}

	stdout.Info("snapshot recorded",
		"app", appName,
		"tag", tag,
		"python", snapshot.PythonVersion,
		"packages", snapshot.PackageCount)

	if publish || appCfg.Publish.AutoPublish {
		lockfilePath := filepath.Join(staging.Lockfiles(), LockfileName)
		if err := handleSnapshotPublish(c.Context, &appCfg, snapshot, lockfilePath, db, stdout, stderr); err != nil {
			stderr.Error("publish failed", "tag", tag, "error", err)
			return fmt.Errorf("publish failed: %w", err)
		}
	}

	return nil
}

// reportCommand implements the report command.
func reportCommand(c *cli.Context) error {
	outputDir := c.String("out")

	// Create loggers
	logLevel := ParseLogLevelOrDefault(c.String("log-level"))
	stdout, stderr := NewLoggers(logLevel)

	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if outputDir == "" {
		outputDir = cfg.Config.Report.OutputDir
		if outputDir == "" {
			outputDir = "site"
		}
		outputDir = cfg.ResolvePath(outputDir)
	}

	// Open journal database
	db, err := journal.InitDB(journal.Config{
		DatabasePath: cfg.ResolvePath(cfg.Config.Storage.DatabasePath),
		LogLevel:     "silent", // Database logs are verbose, suppress them
	})
	if err != nil {
		return fmt.Errorf("failed to initialize journal: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			stderr.Error("failed to close journal", "error", closeErr)
		}
	}()

	generator := report.NewGenerator(db, stdout)

	opts := report.GenerateOptions{
		OutputDir: outputDir,
	}

	if err := generator.Generate(c.Context, opts); err != nil {
		return fmt.Errorf("report generation failed: %w", err)
	}

	stdout.Info("report generation completed successfully")
	return nil
}

// initConfig implements the init command.
func initConfig(c *cli.Context) error {
	configPath := c.String("config")
	force := c.Bool("force")

	logLevel := ParseLogLevelOrDefault(c.String("log-level"))
	stdout, stderr := NewLoggers(logLevel)

	if _, err := os.Stat(configPath); err == nil && !force {
		stderr.Error("config file already exists", "path", configPath)
		return fmt.Errorf("config file %s already exists, use --force to overwrite", configPath)
	}

	cfg := config.DefaultConfig()
	if err := config.SaveConfig(cfg, configPath); err != nil {
		stderr.Error("failed to write config", "path", configPath, "error", err)
		return fmt.Errorf("failed to write config: %w", err)
	}

	stdout.Info("wrote default configuration", "path", configPath, "apps", len(cfg.Apps))
	return nil
}
