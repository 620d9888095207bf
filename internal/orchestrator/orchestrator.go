// Package orchestrator runs the per-request pipeline: validation, admission
// control, credential resolution, provider dispatch and outcome delivery.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"askai/internal/config"
	"askai/internal/logging"
	"askai/internal/providers"
	"askai/internal/ratelimit"
	"askai/internal/storage"
	"askai/internal/utils"
	"askai/internal/vault"
)

const genericFailureMessage = "Request failed. Please try again."

// Service wires the orchestration pipeline together. All fields are read-only
// after construction; the limiter owns the only shared mutable state.
type Service struct {
	cfg      *config.Config
	store    storage.SettingsStore
	vault    *vault.Vault
	limiter  ratelimit.Limiter
	registry *providers.Registry
	exec     Executor
}

// New creates the orchestrator service.
func New(cfg *config.Config, store storage.SettingsStore, v *vault.Vault,
	limiter ratelimit.Limiter, registry *providers.Registry, exec Executor) *Service {
	if exec == nil {
		exec = Inline{}
	}
	return &Service{
		cfg:      cfg,
		store:    store,
		vault:    v,
		limiter:  limiter,
		registry: registry,
		exec:     exec,
	}
}

// Submit runs the chat pipeline for one message. Validation and admission
// happen synchronously on the caller's goroutine with no storage or network
// access; everything else runs on a worker goroutine, and the outcome is
// delivered through the executor exactly once.
func (s *Service) Submit(identity uuid.UUID, text string, deliver func(Outcome)) {
	if identity == storage.SharedIdentity {
		deliver(rejected("Only interactive users can send messages."))
		return
	}
	if strings.TrimSpace(text) == "" {
		deliver(rejected("Message is empty."))
		return
	}
	if utf8.RuneCountInString(text) > s.cfg.MaxMessageLength {
		deliver(rejected(fmt.Sprintf("Message too long. Max: %d characters.", s.cfg.MaxMessageLength)))
		return
	}

	if !s.limiter.TryAcquire(identity) {
		deliver(rejected("You are sending messages too fast. Please wait."))
		return
	}

	go func() {
		outcome := s.dispatch(identity, text)
		s.exec.Run(func() { deliver(outcome) })
	}()
}

// dispatch resolves the credential and performs the provider call. It always
// returns a display-safe outcome.
func (s *Service) dispatch(identity uuid.UUID, text string) Outcome {
	// Storage round trips plus the provider call itself; the HTTP client
	// carries its own timeout, this bounds the whole worker.
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout+15*time.Second)
	defer cancel()

	settings, err := s.store.Load(ctx, identity)
	if err != nil {
		logging.Errorf("failed to load settings for %s: %s", identity, utils.Redact(err.Error()))
		return failed(genericFailureMessage)
	}

	provider := settings.ActiveProvider

	encrypted, outcome, ok := s.resolveCredential(ctx, settings, provider)
	if !ok {
		return outcome
	}

	apiKey, err := s.vault.Decrypt(encrypted)
	if err != nil {
		logging.Warningf("credential decryption failed for %s/%s: %s",
			identity, provider.ID(), utils.Redact(err.Error()))
		return failed("Could not read the stored " + provider.DisplayName() +
			" API key. Please set it again with /chat setkey " + provider.ID() + " <key>")
	}

	req := providers.ChatRequest{
		Model:        settings.Model(provider),
		Messages:     []providers.ChatMessage{{Role: providers.RoleUser, Content: text}},
		SystemPrompt: s.cfg.SystemPrompt,
		MaxTokens:    s.cfg.MaxResponseTokens,
		Temperature:  s.cfg.Temperature,
	}

	client, err := s.registry.Get(provider)
	if err != nil {
		logging.Errorf("provider registry lookup failed: %v", err)
		return failed(genericFailureMessage)
	}

	resp, err := client.Chat(ctx, req, apiKey)
	if err != nil {
		if pe, isProviderErr := providers.AsError(err); isProviderErr {
			// Adapter messages are pre-sanitized; pass them through unchanged.
			logging.Warningf("provider %s request failed for %s: status=%d",
				provider.ID(), identity, pe.StatusCode)
			return failed(pe.Message)
		}
		logging.Errorf("unexpected dispatch failure for %s: %s", identity, utils.Redact(err.Error()))
		return failed(genericFailureMessage)
	}

	return completed(resp)
}

// resolveCredential picks the encrypted key for the request: the caller's own
// in per-user mode, the server-wide record in shared-key mode. ok=false means
// the returned outcome already describes the missing key.
func (s *Service) resolveCredential(ctx context.Context, settings *storage.UserSettings,
	provider providers.Provider) (string, Outcome, bool) {
	if s.cfg.SharedKeyMode {
		shared, err := s.store.Load(ctx, storage.SharedIdentity)
		if err != nil {
			logging.Errorf("failed to load shared settings: %s", utils.Redact(err.Error()))
			return "", failed(genericFailureMessage), false
		}
		encrypted := shared.EncryptedKey(provider)
		if encrypted == "" {
			return "", failed("No server API key set for " + provider.DisplayName() +
				". Ask an admin to set it."), false
		}
		return encrypted, Outcome{}, true
	}

	encrypted := settings.EncryptedKey(provider)
	if encrypted == "" {
		return "", failed("No API key set for " + provider.DisplayName() +
			". Use: /chat setkey " + provider.ID() + " <your-key>"), false
	}
	return encrypted, Outcome{}, true
}

// SetCredential encrypts and stores an API key. In shared-key mode the key
// lands on the server-wide record regardless of the calling identity.
func (s *Service) SetCredential(ctx context.Context, identity uuid.UUID, providerID, secret string) Outcome {
	provider, err := providers.Parse(providerID)
	if err != nil {
		return rejected("Unknown provider. Use: openai, anthropic, or gemini")
	}
	if !s.cfg.ProviderAllowed(provider) {
		return rejected(provider.DisplayName() + " is not enabled on this server.")
	}
	if strings.TrimSpace(secret) == "" {
		return rejected("API key is empty.")
	}

	target := identity
	if s.cfg.SharedKeyMode {
		target = storage.SharedIdentity
	}

	encrypted, err := s.vault.Encrypt(secret)
	if err != nil {
		logging.Errorf("failed to encrypt key for %s: %s", identity, utils.Redact(err.Error()))
		return failed("Failed to save key.")
	}

	if err := s.store.SetEncryptedKey(ctx, target, provider, encrypted); err != nil {
		logging.Errorf("failed to save key for %s: %s", identity, utils.Redact(err.Error()))
		return failed("Failed to save key.")
	}

	if s.cfg.SharedKeyMode {
		return success(provider.DisplayName() + " server API key set.")
	}
	return success(provider.DisplayName() + " API key set.")
}

// SetModel stores a model override for (identity, provider).
func (s *Service) SetModel(ctx context.Context, identity uuid.UUID, providerID, model string) Outcome {
	provider, err := providers.Parse(providerID)
	if err != nil {
		return rejected("Unknown provider. Use: openai, anthropic, or gemini")
	}
	if strings.TrimSpace(model) == "" {
		return rejected("Model name is empty.")
	}

	if err := s.store.SetModel(ctx, identity, provider, model); err != nil {
		logging.Errorf("failed to set model for %s: %s", identity, utils.Redact(err.Error()))
		return failed("Failed to set model.")
	}
	return success("Model for " + provider.DisplayName() + " set to: " + model)
}

// SetActiveProvider switches the identity's active provider.
func (s *Service) SetActiveProvider(ctx context.Context, identity uuid.UUID, providerID string) Outcome {
	provider, err := providers.Parse(providerID)
	if err != nil {
		return rejected("Unknown provider. Use: openai, anthropic, or gemini")
	}
	if !s.cfg.ProviderAllowed(provider) {
		return rejected(provider.DisplayName() + " is not enabled on this server.")
	}

	if err := s.store.SetActiveProvider(ctx, identity, provider); err != nil {
		logging.Errorf("failed to switch provider for %s: %s", identity, utils.Redact(err.Error()))
		return failed("Failed to switch provider.")
	}
	return success("Switched to " + provider.DisplayName() + " (" + provider.DefaultModel() + ")")
}

// Status returns the identity's settings summary, including the shared
// record's key availability in shared-key mode.
func (s *Service) Status(ctx context.Context, identity uuid.UUID) (*StatusView, error) {
	settings, err := s.store.Load(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	view := &StatusView{
		ActiveProvider: settings.ActiveProvider,
		Models:         make(map[providers.Provider]string),
		HasKey:         make(map[providers.Provider]bool),
	}
	for _, p := range providers.All() {
		view.Models[p] = settings.Model(p)
		view.HasKey[p] = settings.HasKey(p)
	}

	if s.cfg.SharedKeyMode {
		shared, err := s.store.Load(ctx, storage.SharedIdentity)
		if err != nil {
			return nil, fmt.Errorf("failed to load shared settings: %w", err)
		}
		view.SharedKeys = make(map[providers.Provider]bool)
		for _, p := range providers.All() {
			view.SharedKeys[p] = shared.HasKey(p)
		}
	}

	return view, nil
}

// Release drops the identity's rate-limit window, e.g. on disconnect.
func (s *Service) Release(identity uuid.UUID) {
	s.limiter.Release(identity)
}
