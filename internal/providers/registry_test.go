package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCoversAllProviders(t *testing.T) {
	registry := NewRegistry(RegistryOptions{})

	for _, p := range All() {
		client, err := registry.Get(p)
		require.NoError(t, err, "provider %s", p)
		assert.NotNil(t, client)
	}
}

func TestRegistryUnregisteredProvider(t *testing.T) {
	registry := NewRegistryWithClients(map[Provider]Client{})

	_, err := registry.Get(ProviderOpenAI)
	assert.ErrorIs(t, err, ErrUnregisteredProvider)
}

func TestParse(t *testing.T) {
	tests := []struct {
		input    string
		expected Provider
		wantErr  bool
	}{
		{"openai", ProviderOpenAI, false},
		{"OpenAI", ProviderOpenAI, false},
		{" anthropic ", ProviderAnthropic, false},
		{"GEMINI", ProviderGemini, false},
		{"mistral", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		p, err := Parse(tt.input)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnknownProvider, "input %q", tt.input)
			continue
		}
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.expected, p)
	}
}

func TestProviderAttributes(t *testing.T) {
	for _, p := range All() {
		assert.NotEmpty(t, p.ID())
		assert.NotEmpty(t, p.DisplayName())
		assert.NotEmpty(t, p.DefaultModel())
		assert.Contains(t, p.SuggestedModels(), p.DefaultModel())
	}
	assert.Equal(t, ProviderOpenAI, Default())
}
