package environment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// mockProvider implements Provider for testing
type mockProvider struct {
	name            string
	provisionResult *ProvisionResult
	provisionErr    error
	provisionErrFor map[string]error
	launchErr       error
	info            *Info
	inspectErr      error

	provisionCalls []ProvisionOptions
	launchCalls    []LaunchOptions
	sawDeadline    bool
}

func (m *mockProvider) Name() string {
	return m.name
}

func (m *mockProvider) Provision(ctx context.Context, opts ProvisionOptions) (*ProvisionResult, error) {
	m.provisionCalls = append(m.provisionCalls, opts)
	_, m.sawDeadline = ctx.Deadline()

	if err, ok := m.provisionErrFor[opts.App]; ok {
		return nil, err
	}
	if m.provisionErr != nil {
		return nil, m.provisionErr
	}
	if m.provisionResult != nil {
		result := *m.provisionResult
		result.App = opts.App
		result.EnvDir = opts.EnvDir
		return &result, nil
	}
	return &ProvisionResult{App: opts.App, Action: ActionCreated, EnvDir: opts.EnvDir}, nil
}

func (m *mockProvider) Launch(_ context.Context, opts LaunchOptions) error {
	m.launchCalls = append(m.launchCalls, opts)
	return m.launchErr
}

func (m *mockProvider) Inspect(_ context.Context, opts ProvisionOptions) (*Info, error) {
	if m.inspectErr != nil {
		return nil, m.inspectErr
	}
	if m.info != nil {
		info := *m.info
		info.App = opts.App
		info.EnvDir = opts.EnvDir
		return &info, nil
	}
	return &Info{App: opts.App, EnvDir: opts.EnvDir, Exists: true, Fresh: true}, nil
}

func TestRegistry_Register(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		impl     Provider
		wantErr  bool
	}{
		{
			name:     "successful registration",
			provider: "venv",
			impl:     &mockProvider{name: "venv"},
			wantErr:  false,
		},
		{
			name:     "empty provider name",
			provider: "",
			impl:     &mockProvider{name: "venv"},
			wantErr:  true,
		},
		{
			name:     "nil provider",
			provider: "venv",
			impl:     nil,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewRegistry()
			err := registry.Register(tt.provider, tt.impl)
			if (err != nil) != tt.wantErr {
				t.Errorf("Registry.Register() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	registry := NewRegistry()
	provider := &mockProvider{name: "venv"}

	// First registration should succeed
	err := registry.Register("venv", provider)
	if err != nil {
		t.Errorf("First registration failed: %v", err)
	}

	// Second registration should fail
	err = registry.Register("venv", provider)
	if err == nil {
		t.Error("Duplicate registration should have failed")
	}
}

func TestRegistry_Get(t *testing.T) {
	registry := NewRegistry()
	provider := &mockProvider{name: "venv"}
	_ = registry.Register("venv", provider)

	tests := []struct {
		name     string
		provider string
		wantErr  bool
	}{
		{
			name:     "existing provider",
			provider: "venv",
			wantErr:  false,
		},
		{
			name:     "non-existing provider",
			provider: "conda",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := registry.Get(tt.provider)
			if (err != nil) != tt.wantErr {
				t.Errorf("Registry.Get() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got == nil {
				t.Error("Registry.Get() returned nil provider")
			}
		})
	}
}

func TestRegistry_List(t *testing.T) {
	registry := NewRegistry()

	// Test empty registry
	names := registry.List()
	if len(names) != 0 {
		t.Errorf("Empty registry should return 0 names, got %d", len(names))
	}

	_ = registry.Register("venv", &mockProvider{name: "venv"})
	_ = registry.Register("conda", &mockProvider{name: "conda"})

	names = registry.List()
	if len(names) != 2 {
		t.Errorf("Expected 2 registered providers, got %d", len(names))
	}

	hasV := false
	hasC := false
	for _, name := range names {
		if name == "venv" {
			hasV = true
		}
		if name == "conda" {
			hasC = true
		}
	}
	if !hasV || !hasC {
		t.Errorf("Missing expected provider names. Got: %v", names)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	registry := NewRegistry()

	var wg sync.WaitGroup
	errCh := make(chan error, 100)

	// Start multiple goroutines trying to register different providers
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			provider := &mockProvider{name: fmt.Sprintf("provider%d", id)}
			if err := registry.Register(fmt.Sprintf("provider%d", id), provider); err != nil {
				errCh <- err
			}
		}(i)
	}

	// Start goroutines trying to list and get providers
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			registry.List()
			_, _ = registry.Get("provider1") // May or may not exist
		}()
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("Concurrent access error: %v", err)
	}

	providers := registry.List()
	if len(providers) != 10 {
		t.Errorf("Expected 10 providers, got %d", len(providers))
	}
}

func TestProvisioningError(t *testing.T) {
	cause := errors.New("pip install exited with code 1")
	err := &ProvisioningError{App: "cms", Stage: StageInstallation, Err: cause}

	want := "provisioning app cms failed at stage installation: pip install exited with code 1"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, cause) {
		t.Error("ProvisioningError should unwrap to its cause")
	}

	var provErr *ProvisioningError
	if !errors.As(error(err), &provErr) {
		t.Error("errors.As should match *ProvisioningError")
	}
}

func TestProvisioningError_WrapsSentinel(t *testing.T) {
	err := &ProvisioningError{
		App:   "cms",
		Stage: StageManifest,
		Err:   fmt.Errorf("%w: requirements.txt", ErrManifestMissing),
	}
	if !errors.Is(err, ErrManifestMissing) {
		t.Error("ProvisioningError should expose ErrManifestMissing through its chain")
	}
}

func TestLaunchError(t *testing.T) {
	tests := []struct {
		name string
		err  *LaunchError
		want string
	}{
		{
			name: "exit status only",
			err:  &LaunchError{App: "cms", ExitCode: 2},
			want: "app cms exited with status 2",
		},
		{
			name: "launch failure",
			err:  &LaunchError{App: "cms", ExitCode: 1, Err: errors.New("no interpreter at venv/bin/python3")},
			want: "launching app cms failed: no interpreter at venv/bin/python3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLaunchError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("%w: no interpreter", ErrEnvironmentMissing)
	err := &LaunchError{App: "cms", ExitCode: 1, Err: cause}

	if !errors.Is(err, ErrEnvironmentMissing) {
		t.Error("LaunchError should expose ErrEnvironmentMissing through its chain")
	}

	var launchErr *LaunchError
	if !errors.As(error(err), &launchErr) {
		t.Error("errors.As should match *LaunchError")
	}
	if launchErr.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", launchErr.ExitCode)
	}
}
