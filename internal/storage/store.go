package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"askai/internal/providers"
)

// SharedIdentity is the reserved identity owning the server-wide settings
// record in shared-credential mode. The nil UUID can never collide with a
// real user identity.
var SharedIdentity = uuid.Nil

// ErrStoreUnavailable is returned when the backing store cannot be reached.
var ErrStoreUnavailable = errors.New("settings store unavailable")

// UserSettings is the per-identity record: active provider, encrypted API
// keys and model overrides. Credentials are only ever stored in encrypted
// form.
type UserSettings struct {
	Identity       uuid.UUID
	ActiveProvider providers.Provider
	EncryptedKeys  map[providers.Provider]string
	Models         map[providers.Provider]string
}

// NewUserSettings returns the defaults for an identity with no stored state.
func NewUserSettings(identity uuid.UUID) *UserSettings {
	return &UserSettings{
		Identity:       identity,
		ActiveProvider: providers.Default(),
		EncryptedKeys:  make(map[providers.Provider]string),
		Models:         make(map[providers.Provider]string),
	}
}

// EncryptedKey returns the stored credential token for a provider, or "" when
// none is configured.
func (s *UserSettings) EncryptedKey(p providers.Provider) string {
	return s.EncryptedKeys[p]
}

// HasKey reports whether a credential is configured for a provider.
func (s *UserSettings) HasKey(p providers.Provider) bool {
	return s.EncryptedKeys[p] != ""
}

// Model returns the configured model for a provider, falling back to the
// provider default.
func (s *UserSettings) Model(p providers.Provider) string {
	if model, ok := s.Models[p]; ok && model != "" {
		return model
	}
	return p.DefaultModel()
}

// SettingsStore is the external settings collaborator. Every operation
// round-trips the store; callers never cache settings across requests, so
// concurrent writers resolve last-write-wins at the store layer. All writes
// are idempotent upserts.
type SettingsStore interface {
	Load(ctx context.Context, identity uuid.UUID) (*UserSettings, error)
	SetEncryptedKey(ctx context.Context, identity uuid.UUID, p providers.Provider, token string) error
	SetModel(ctx context.Context, identity uuid.UUID, p providers.Provider, model string) error
	SetActiveProvider(ctx context.Context, identity uuid.UUID, p providers.Provider) error
}
