package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"askai/internal/providers"
)

// MemoryStore is a mutex-guarded in-memory SettingsStore for standalone
// deployments and tests. Data is lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	settings map[uuid.UUID]*UserSettings
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		settings: make(map[uuid.UUID]*UserSettings),
	}
}

// Load returns a copy of the identity's settings, or defaults when the
// identity has no stored state.
func (m *MemoryStore) Load(ctx context.Context, identity uuid.UUID) (*UserSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.settings[identity]
	if !ok {
		return NewUserSettings(identity), nil
	}

	// Copy so callers can't mutate stored state without going through Set*.
	out := NewUserSettings(identity)
	out.ActiveProvider = stored.ActiveProvider
	for p, k := range stored.EncryptedKeys {
		out.EncryptedKeys[p] = k
	}
	for p, mdl := range stored.Models {
		out.Models[p] = mdl
	}
	return out, nil
}

// SetEncryptedKey upserts the credential token for (identity, provider).
func (m *MemoryStore) SetEncryptedKey(ctx context.Context, identity uuid.UUID, p providers.Provider, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.get(identity).EncryptedKeys[p] = token
	return nil
}

// SetModel upserts the model override for (identity, provider).
func (m *MemoryStore) SetModel(ctx context.Context, identity uuid.UUID, p providers.Provider, model string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.get(identity).Models[p] = model
	return nil
}

// SetActiveProvider upserts the identity's active provider.
func (m *MemoryStore) SetActiveProvider(ctx context.Context, identity uuid.UUID, p providers.Provider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.get(identity).ActiveProvider = p
	return nil
}

// get returns the mutable record for an identity, creating it on first write.
// Callers must hold the write lock.
func (m *MemoryStore) get(identity uuid.UUID) *UserSettings {
	s, ok := m.settings[identity]
	if !ok {
		s = NewUserSettings(identity)
		m.settings[identity] = s
	}
	return s
}
