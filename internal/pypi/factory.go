package pypi

import (
	"fmt"
	"time"
)

// ClientConfig represents configuration for creating index clients
type ClientConfig struct {
	Provider string
	BaseURL  string
	Timeout  time.Duration
	Config   map[string]interface{}
}

// ClientFactory creates index clients based on provider type
type ClientFactory interface {
	CreateClient(config ClientConfig) (Client, error)
}

// DefaultClientFactory implements ClientFactory
type DefaultClientFactory struct{}

// NewClientFactory creates a new client factory
func NewClientFactory() ClientFactory {
	return &DefaultClientFactory{}
}

// CreateClient creates an index client based on the provider configuration
func (f *DefaultClientFactory) CreateClient(clientConfig ClientConfig) (Client, error) {
	switch clientConfig.Provider {
	case "pypi", "":
		return f.createPyPIClient(clientConfig)
	case "mock":
		return f.createMockClient(clientConfig)
	case "custom":
		return f.createCustomClient(clientConfig)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", clientConfig.Provider)
	}
}

func (f *DefaultClientFactory) createPyPIClient(clientConfig ClientConfig) (Client, error) {
	config := DefaultConfig()

	if clientConfig.BaseURL != "" {
		config.BaseURL = clientConfig.BaseURL
	}

	if clientConfig.Timeout > 0 {
		config.Timeout = clientConfig.Timeout
	}

	return NewClient(config), nil
}

func (f *DefaultClientFactory) createMockClient(clientConfig ClientConfig) (Client, error) {
	return NewMockClient(), nil
}

// createCustomClient builds a client for a private index mirror. The mirror
// must expose the same JSON API as pypi.org under its own base URL.
func (f *DefaultClientFactory) createCustomClient(clientConfig ClientConfig) (Client, error) {
	if clientConfig.BaseURL == "" {
		return nil, fmt.Errorf("custom provider requires a base URL")
	}

	config := DefaultConfig()
	config.BaseURL = clientConfig.BaseURL

	if clientConfig.Timeout > 0 {
		config.Timeout = clientConfig.Timeout
	}

	if userAgent, ok := clientConfig.Config["user_agent"].(string); ok && userAgent != "" {
		config.UserAgent = userAgent
	}

	return NewClient(config), nil
}
