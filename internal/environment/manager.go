package environment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/envrun-project/envrun/internal/config"
	"github.com/envrun-project/envrun/internal/gpg"
	"github.com/envrun-project/envrun/internal/hooks"
	"github.com/envrun-project/envrun/internal/journal"
	"github.com/envrun-project/envrun/internal/manifest"
)

// DefaultProvider is used when an app does not name a provisioner.
const DefaultProvider = "venv"

// JournalStore is the subset of journal operations the manager needs.
type JournalStore interface {
	RecordProvision(*journal.Provision) error
	LatestProvision(app string) (*journal.Provision, error)
}

// ManifestVerifier checks a manifest against its detached signature.
type ManifestVerifier interface {
	VerifyManifest(manifestPath, sigPath string) error
}

// AppStatus combines a live environment inspection with the latest
// journal entry for the app.
type AppStatus struct {
	Info
	Provisioner     string     `json:"provisioner"`
	LastAction      string     `json:"last_action,omitempty"`
	LastSuccess     bool       `json:"last_success"`
	LastProvisioned *time.Time `json:"last_provisioned,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
}

// Manager coordinates provisioning and launch operations
type Manager struct {
	registry *Registry
	journal  JournalStore
	hooks    *hooks.Runner
	verifier ManifestVerifier
	config   *config.Config
	stdout   *slog.Logger
	stderr   *slog.Logger
}

// NewManager creates a new environment manager
func NewManager(registry *Registry, store JournalStore, stdout, stderr *slog.Logger) *Manager {
	if stdout == nil {
		stdout = slog.Default()
	}
	if stderr == nil {
		stderr = slog.Default()
	}
	return &Manager{
		registry: registry,
		journal:  store,
		hooks:    hooks.NewRunner(nil, nil, stdout),
		stdout:   stdout,
		stderr:   stderr,
	}
}

// SetConfig sets the configuration for the manager
func (m *Manager) SetConfig(cfg *config.Config) {
	m.config = cfg
}

// SetVerifier overrides the signature verifier built from configuration
func (m *Manager) SetVerifier(v ManifestVerifier) {
	m.verifier = v
}

// SetHookRunner overrides the hook runner
func (m *Manager) SetHookRunner(r *hooks.Runner) {
	m.hooks = r
}

// Provision brings one application's environment in line with its manifest.
// Every run is recorded in the journal, including skips and failures.
func (m *Manager) Provision(ctx context.Context, appName string, force bool) (*ProvisionResult, error) {
	m.stdout.Debug("Provisioning application", "app", appName, "force", force)

	appCfg, opts, err := m.resolveApp(appName)
	if err != nil {
		m.stderr.Error("Failed to resolve application", "app", appName, "error", err)
		return nil, err
	}
	opts.Force = force

	provider, err := m.registry.Get(providerName(appCfg))
	if err != nil {
		m.stderr.Error("Failed to get environment provider", "app", appName, "error", err)
		return nil, fmt.Errorf("failed to get environment provider: %w", err)
	}

	if timeout := m.provisionTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()

	if err := m.runHook(ctx, hooks.PreProvision, opts, appCfg.Hooks.PreProvision); err != nil {
		return nil, m.fail(opts, nil, start, &ProvisioningError{App: appName, Stage: StageHook, Err: err})
	}

	if err := m.verifyManifest(appCfg, opts); err != nil {
		return nil, m.fail(opts, nil, start, &ProvisioningError{App: appName, Stage: StageVerification, Err: err})
	}

	result, err := provider.Provision(ctx, opts)
	if err != nil {
		var provErr *ProvisioningError
		if !errors.As(err, &provErr) {
			err = &ProvisioningError{App: appName, Stage: StageInstallation, Err: err}
		}
		return nil, m.fail(opts, nil, start, err)
	}

	if result.Action != ActionSkipped {
		if err := m.runHook(ctx, hooks.PostProvision, opts, appCfg.Hooks.PostProvision); err != nil {
			return nil, m.fail(opts, result, start, &ProvisioningError{App: appName, Stage: StageHook, Err: err})
		}
	}

	m.record(opts, result, start, nil)

	m.stdout.Debug("Provisioning completed",
		"app", appName,
		"action", result.Action,
		"packages", result.PackageCount,
		"duration_ms", result.Duration.Milliseconds())
	return result, nil
}

// ProvisionAll provisions every enabled application in name order.
// The first failure stops the walk.
func (m *Manager) ProvisionAll(ctx context.Context, force bool) ([]*ProvisionResult, error) {
	names, err := m.enabledAppNames()
	if err != nil {
		return nil, err
	}

	results := make([]*ProvisionResult, 0, len(names))
	for _, name := range names {
		result, err := m.Provision(ctx, name, force)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

// Run provisions the application and then launches it in the foreground,
// blocking until the process exits. The provisioning step means a deleted
// or stale environment is rebuilt before the app starts.
func (m *Manager) Run(ctx context.Context, appName string) error {
	m.stdout.Debug("Running application", "app", appName)

	if _, err := m.Provision(ctx, appName, false); err != nil {
		return err
	}

	appCfg, opts, err := m.resolveApp(appName)
	if err != nil {
		return err
	}

	provider, err := m.registry.Get(providerName(appCfg))
	if err != nil {
		m.stderr.Error("Failed to get environment provider", "app", appName, "error", err)
		return fmt.Errorf("failed to get environment provider: %w", err)
	}

	// Hook failures carry their exit status to the caller.
	if err := m.runHook(ctx, hooks.PreRun, opts, appCfg.Hooks.PreRun); err != nil {
		return err
	}

	launchOpts := LaunchOptions{
		App:     appName,
		Module:  appCfg.LaunchModule(appName),
		EnvDir:  opts.EnvDir,
		Dir:     m.baseDir(),
		Command: appCfg.Launch.Command,
		Host:    appCfg.Launch.Host,
		Port:    appCfg.Launch.Port,
		Debug:   appCfg.Launch.Debug,
	}

	m.stdout.Info("Launching application", "app", appName, "module", launchOpts.Module)
	return provider.Launch(ctx, launchOpts)
}

// Status reports the environment state of one app, or of every enabled
// app when appName is empty.
func (m *Manager) Status(ctx context.Context, appName string) ([]*AppStatus, error) {
	m.stdout.Debug("Collecting environment status", "app", appName)

	var names []string
	if appName != "" {
		names = []string{appName}
	} else {
		var err error
		names, err = m.enabledAppNames()
		if err != nil {
			return nil, err
		}
	}

	statuses := make([]*AppStatus, 0, len(names))
	for _, name := range names {
		status, err := m.appStatus(ctx, name)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func (m *Manager) appStatus(ctx context.Context, appName string) (*AppStatus, error) {
	appCfg, opts, err := m.resolveApp(appName)
	if err != nil {
		return nil, err
	}

	provider, err := m.registry.Get(providerName(appCfg))
	if err != nil {
		m.stderr.Error("Failed to get environment provider", "app", appName, "error", err)
		return nil, fmt.Errorf("failed to get environment provider: %w", err)
	}

	status := &AppStatus{Provisioner: provider.Name()}

	info, err := provider.Inspect(ctx, opts)
	if err != nil {
		// A broken setup (e.g. missing manifest) still gets a status row.
		m.stderr.Warn("Failed to inspect environment", "app", appName, "error", err)
		status.Info = Info{App: appName, EnvDir: opts.EnvDir}
	} else {
		status.Info = *info
	}

	if m.journal != nil {
		entry, err := m.journal.LatestProvision(appName)
		switch {
		case errors.Is(err, journal.ErrNotFound):
			// Never provisioned
		case err != nil:
			m.stderr.Warn("Failed to read provisioning journal", "app", appName, "error", err)
		default:
			status.LastAction = entry.Action
			status.LastSuccess = entry.Success
			status.LastProvisioned = &entry.ProvisionedAt
			status.LastError = entry.ErrorMessage
		}
	}

	return status, nil
}

// resolveApp looks up an enabled app and resolves its paths against the
// configuration directory.
func (m *Manager) resolveApp(appName string) (config.App, ProvisionOptions, error) {
	if m.config == nil {
		return config.App{}, ProvisionOptions{}, fmt.Errorf("no configuration loaded")
	}
	appCfg, ok := m.config.GetAppConfig(appName)
	if !ok {
		return config.App{}, ProvisionOptions{}, fmt.Errorf("%w: %s", ErrAppNotConfigured, appName)
	}
	opts := ProvisionOptions{
		App:              appName,
		ManifestPath:     m.config.ResolvePath(appCfg.Manifest),
		EnvDir:           m.config.ResolvePath(appCfg.EnvDir),
		PythonConstraint: appCfg.Python,
	}
	return appCfg, opts, nil
}

func (m *Manager) enabledAppNames() ([]string, error) {
	if m.config == nil {
		return nil, fmt.Errorf("no configuration loaded")
	}
	apps := m.config.GetEnabledApps()
	if len(apps) == 0 {
		return nil, ErrNoAppsEnabled
	}
	names := make([]string, 0, len(apps))
	for name := range apps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Manager) runHook(ctx context.Context, name string, opts ProvisionOptions, script string) error {
	if script == "" {
		return nil
	}
	env := append(os.Environ(),
		"ENVRUN_APP="+opts.App,
		"ENVRUN_ENV_DIR="+opts.EnvDir,
		"ENVRUN_MANIFEST="+opts.ManifestPath,
	)
	return m.hooks.Run(ctx, hooks.Hook{
		Name:   name,
		App:    opts.App,
		Script: script,
		Dir:    m.baseDir(),
		Env:    env,
	})
}

// verifyManifest checks the manifest's detached signature when the app has
// verification enabled. It runs before the provider so a tampered manifest
// never reaches pip.
func (m *Manager) verifyManifest(appCfg config.App, opts ProvisionOptions) error {
	if !appCfg.Verification.Enabled || !appCfg.Verification.GPG.Enabled {
		return nil
	}

	verifier := m.verifier
	if verifier == nil {
		keyRing, err := gpg.LoadKeyRing(m.config.ResolvePath(appCfg.Verification.GPG.KeyringFile))
		if err != nil {
			return fmt.Errorf("failed to load keyring: %w", err)
		}
		verifier = gpg.NewVerifier(keyRing, m.stdout)
	}

	sigPath := m.config.ResolvePath(appCfg.SignaturePath())
	m.stdout.Debug("Verifying manifest signature", "app", opts.App, "signature", sigPath)
	return verifier.VerifyManifest(opts.ManifestPath, sigPath)
}

// fail records a failed run in the journal and logs it.
func (m *Manager) fail(opts ProvisionOptions, result *ProvisionResult, start time.Time, err error) error {
	m.stderr.Error("Provisioning failed", "app", opts.App, "error", err)
	m.record(opts, result, start, err)
	return err
}

// record writes one journal row per provisioning run. Journal failures are
// logged but never fail the run itself.
func (m *Manager) record(opts ProvisionOptions, result *ProvisionResult, start time.Time, runErr error) {
	if m.journal == nil {
		return
	}

	row := &journal.Provision{
		App:           opts.App,
		EnvDir:        opts.EnvDir,
		ManifestPath:  opts.ManifestPath,
		ProvisionedAt: start,
		DurationMS:    time.Since(start).Milliseconds(),
		Success:       runErr == nil,
	}
	if sum, err := manifest.SHA256(opts.ManifestPath); err == nil {
		row.ManifestSHA256 = sum
	}
	if result != nil {
		row.Action = result.Action
		row.PythonVersion = result.PythonVersion
		row.PackageCount = result.PackageCount
		row.DurationMS = result.Duration.Milliseconds()
	}
	if runErr != nil {
		row.ErrorMessage = runErr.Error()
	}

	if err := m.journal.RecordProvision(row); err != nil {
		m.stderr.Warn("Failed to record provisioning run", "app", opts.App, "error", err)
	}
}

func (m *Manager) provisionTimeout() time.Duration {
	if m.config == nil {
		return 0
	}
	return m.config.Config.GetProvisionTimeout()
}

func (m *Manager) baseDir() string {
	if m.config == nil {
		return ""
	}
	return m.config.ResolvePath(".")
}

func providerName(appCfg config.App) string {
	if appCfg.Provisioner != "" {
		return appCfg.Provisioner
	}
	return DefaultProvider
}
