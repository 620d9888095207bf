package providers

import (
	"fmt"
	"net/http"
	"time"
)

// Registry maps providers to their clients. It is built once at startup and
// read-only afterwards, so concurrent lookups need no locking.
type Registry struct {
	clients map[Provider]Client
}

// RegistryOptions tune client construction. Zero values pick production
// defaults; the base URLs exist for tests.
type RegistryOptions struct {
	RequestTimeout   time.Duration
	OpenAIBaseURL    string
	AnthropicBaseURL string
	GeminiBaseURL    string
}

// NewRegistry builds the registry with one shared HTTP client for all
// backends.
func NewRegistry(opts RegistryOptions) *Registry {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Registry{
		clients: map[Provider]Client{
			ProviderOpenAI:    NewOpenAIClient(client, opts.OpenAIBaseURL),
			ProviderAnthropic: NewAnthropicClient(client, opts.AnthropicBaseURL),
			ProviderGemini:    NewGeminiClient(client, opts.GeminiBaseURL),
		},
	}
}

// NewRegistryWithClients builds a registry from explicit clients. Tests use
// this to substitute fakes.
func NewRegistryWithClients(clients map[Provider]Client) *Registry {
	return &Registry{clients: clients}
}

// Get returns the client for a provider. The provider set is closed, so a
// miss means the registration table drifted from the enumeration.
func (r *Registry) Get(p Provider) (Client, error) {
	client, ok := r.clients[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnregisteredProvider, p.DisplayName())
	}
	return client, nil
}
