package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askai/internal/config"
	"askai/internal/providers"
	"askai/internal/ratelimit"
	"askai/internal/storage"
	"askai/internal/vault"
)

// fakeClient records chat calls so tests can assert on the dispatched
// request and prove no network happens on rejection paths.
type fakeClient struct {
	mu      sync.Mutex
	calls   int
	lastReq providers.ChatRequest
	lastKey string
	resp    *providers.ChatResponse
	err     error
}

func (f *fakeClient) Chat(ctx context.Context, req providers.ChatRequest, apiKey string) (*providers.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastReq = req
	f.lastKey = apiKey
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	cfg     *config.Config
	store   storage.SettingsStore
	vault   *vault.Vault
	limiter *ratelimit.SlidingWindow
	clients map[providers.Provider]*fakeClient
	svc     *Service
}

func newFixture(t *testing.T, mutate func(cfg *config.Config)) *fixture {
	t.Helper()

	cfg := &config.Config{
		DataDir:           t.TempDir(),
		EncryptionSeed:    "test-seed",
		MaxMessageLength:  100,
		MaxResponseTokens: 512,
		Temperature:       0.7,
		SystemPrompt:      "be helpful",
		RequestTimeout:    5 * time.Second,
		RateLimit: config.RateLimitConfig{
			Requests: 10,
			Window:   time.Minute,
		},
	}
	if mutate != nil {
		mutate(cfg)
	}

	v, err := vault.New(cfg.EncryptionSeed, cfg.DataDir)
	require.NoError(t, err)

	clients := make(map[providers.Provider]*fakeClient)
	registryClients := make(map[providers.Provider]providers.Client)
	for _, p := range providers.All() {
		fake := &fakeClient{resp: &providers.ChatResponse{
			Text:             "answer",
			PromptTokens:     5,
			CompletionTokens: 3,
			FinishReason:     "stop",
		}}
		clients[p] = fake
		registryClients[p] = fake
	}

	limiter := ratelimit.NewSlidingWindow(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	svc := New(cfg, storage.NewMemoryStore(), v, limiter,
		providers.NewRegistryWithClients(registryClients), Inline{})

	f := &fixture{
		cfg:     cfg,
		vault:   v,
		limiter: limiter,
		clients: clients,
		svc:     svc,
	}
	f.store = svc.store
	return f
}

// submit runs Submit and blocks until the outcome is delivered.
func (f *fixture) submit(identity uuid.UUID, text string) Outcome {
	done := make(chan Outcome, 1)
	f.svc.Submit(identity, text, func(out Outcome) { done <- out })
	select {
	case out := <-done:
		return out
	case <-time.After(5 * time.Second):
		panic("no outcome delivered")
	}
}

func TestSubmitSuccess(t *testing.T) {
	f := newFixture(t, nil)
	id := uuid.New()
	ctx := context.Background()

	out := f.svc.SetCredential(ctx, id, "openai", "sk-real-key")
	require.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, "OpenAI API key set.", out.Message)

	result := f.submit(id, "what is redstone?")
	require.Equal(t, StatusSuccess, result.Status)
	require.NotNil(t, result.Response)
	assert.Equal(t, "answer", result.Response.Text)

	fake := f.clients[providers.ProviderOpenAI]
	assert.Equal(t, 1, fake.callCount())
	assert.Equal(t, "sk-real-key", fake.lastKey, "adapter must receive the decrypted key")
	assert.Equal(t, "gpt-4o-mini", fake.lastReq.Model)
	assert.Equal(t, "be helpful", fake.lastReq.SystemPrompt)
	assert.Equal(t, 512, fake.lastReq.MaxTokens)
	assert.Equal(t, 0.7, fake.lastReq.Temperature)
	require.Len(t, fake.lastReq.Messages, 1)
	assert.Equal(t, providers.RoleUser, fake.lastReq.Messages[0].Role)
	assert.Equal(t, "what is redstone?", fake.lastReq.Messages[0].Content)
}

func TestSubmitNoCredentialNamesSetupCommand(t *testing.T) {
	f := newFixture(t, nil)

	out := f.submit(uuid.New(), "hello")
	require.Equal(t, StatusFailed, out.Status)
	assert.Contains(t, out.Message, "OpenAI")
	assert.Contains(t, out.Message, "/chat setkey openai")

	// No network call happens when no credential is configured.
	for p, fake := range f.clients {
		assert.Zero(t, fake.callCount(), "provider %s", p)
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t, nil)
	id := uuid.New()

	out := f.submit(storage.SharedIdentity, "hello")
	assert.Equal(t, StatusRejected, out.Status)

	out = f.submit(id, "   ")
	assert.Equal(t, StatusRejected, out.Status)

	long := make([]byte, f.cfg.MaxMessageLength+1)
	for i := range long {
		long[i] = 'a'
	}
	out = f.submit(id, string(long))
	assert.Equal(t, StatusRejected, out.Status)
	assert.Contains(t, out.Message, "too long")

	for _, fake := range f.clients {
		assert.Zero(t, fake.callCount())
	}
}

func TestSubmitLengthCountsCharactersNotBytes(t *testing.T) {
	f := newFixture(t, nil)
	id := uuid.New()
	ctx := context.Background()
	require.Equal(t, StatusSuccess, f.svc.SetCredential(ctx, id, "openai", "sk-key").Status)

	// 100 CJK characters occupy 300 bytes but sit exactly at the limit.
	atLimit := strings.Repeat("話", f.cfg.MaxMessageLength)
	out := f.submit(id, atLimit)
	assert.Equal(t, StatusSuccess, out.Status)

	out = f.submit(id, atLimit+"話")
	assert.Equal(t, StatusRejected, out.Status)
	assert.Contains(t, out.Message, "too long")
}

func TestSubmitRateLimited(t *testing.T) {
	f := newFixture(t, nil)
	id := uuid.New()
	ctx := context.Background()

	require.Equal(t, StatusSuccess, f.svc.SetCredential(ctx, id, "openai", "sk-key").Status)

	// The configured limit is 10 per minute; each of the first 10 is
	// independently admitted, the 11th is throttled locally.
	for i := 0; i < 10; i++ {
		out := f.submit(id, "message")
		assert.Equal(t, StatusSuccess, out.Status, "request %d", i+1)
	}

	out := f.submit(id, "message")
	assert.Equal(t, StatusRejected, out.Status)
	assert.Contains(t, out.Message, "too fast")
	assert.Equal(t, 10, f.clients[providers.ProviderOpenAI].callCount())
}

func TestReleaseClearsWindow(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.RateLimit.Requests = 1
	})
	id := uuid.New()
	ctx := context.Background()
	require.Equal(t, StatusSuccess, f.svc.SetCredential(ctx, id, "openai", "sk-key").Status)

	require.Equal(t, StatusSuccess, f.submit(id, "one").Status)
	require.Equal(t, StatusRejected, f.submit(id, "two").Status)

	f.svc.Release(id)
	assert.Equal(t, StatusSuccess, f.submit(id, "three").Status)
}

func TestSubmitProviderErrorPassthrough(t *testing.T) {
	f := newFixture(t, nil)
	id := uuid.New()
	ctx := context.Background()
	require.Equal(t, StatusSuccess, f.svc.SetCredential(ctx, id, "openai", "sk-key").Status)

	f.clients[providers.ProviderOpenAI].err = &providers.Error{
		Provider:   providers.ProviderOpenAI,
		Kind:       providers.KindRateLimited,
		StatusCode: 429,
		Message:    "OpenAI rate limit exceeded. Please wait and try again.",
	}

	out := f.submit(id, "hello")
	require.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, "OpenAI rate limit exceeded. Please wait and try again.", out.Message)
}

func TestSubmitUnexpectedErrorIsSanitized(t *testing.T) {
	f := newFixture(t, nil)
	id := uuid.New()
	ctx := context.Background()
	require.Equal(t, StatusSuccess, f.svc.SetCredential(ctx, id, "openai", "sk-key").Status)

	f.clients[providers.ProviderOpenAI].err = errors.New(
		"dial failed with token sk-abcdefghijklmnopqrstuvwxyz012345")

	out := f.submit(id, "hello")
	require.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, "Request failed. Please try again.", out.Message)
	assert.NotContains(t, out.Message, "sk-abcdefghijklmnopqrstuvwxyz012345")
}

func TestSubmitCorruptedCredential(t *testing.T) {
	f := newFixture(t, nil)
	id := uuid.New()
	ctx := context.Background()

	// A token the vault never produced: decryption must fail cleanly.
	require.NoError(t, f.store.SetEncryptedKey(ctx, id, providers.ProviderOpenAI, "bm90LWEtcmVhbC10b2tlbg=="))

	out := f.submit(id, "hello")
	require.Equal(t, StatusFailed, out.Status)
	assert.Contains(t, out.Message, "set it again")
	assert.Zero(t, f.clients[providers.ProviderOpenAI].callCount())
}

func TestSubmitUsesModelOverrideAndActiveProvider(t *testing.T) {
	f := newFixture(t, nil)
	id := uuid.New()
	ctx := context.Background()

	require.Equal(t, StatusSuccess, f.svc.SetCredential(ctx, id, "anthropic", "ak-key").Status)
	require.Equal(t, StatusSuccess, f.svc.SetModel(ctx, id, "anthropic", "claude-sonnet-4-5").Status)
	require.Equal(t, StatusSuccess, f.svc.SetActiveProvider(ctx, id, "anthropic").Status)

	out := f.submit(id, "hello")
	require.Equal(t, StatusSuccess, out.Status)

	assert.Zero(t, f.clients[providers.ProviderOpenAI].callCount())
	fake := f.clients[providers.ProviderAnthropic]
	assert.Equal(t, 1, fake.callCount())
	assert.Equal(t, "claude-sonnet-4-5", fake.lastReq.Model)
	assert.Equal(t, "ak-key", fake.lastKey)
}

func TestSharedKeyMode(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.SharedKeyMode = true
	})
	ctx := context.Background()
	admin := uuid.New()

	// The admin's set lands on the shared record.
	out := f.svc.SetCredential(ctx, admin, "openai", "sk-server-key")
	require.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, "OpenAI server API key set.", out.Message)

	// Two distinct identities with no personal key both dispatch with it.
	for _, id := range []uuid.UUID{uuid.New(), uuid.New()} {
		result := f.submit(id, "hello")
		require.Equal(t, StatusSuccess, result.Status)
	}
	fake := f.clients[providers.ProviderOpenAI]
	assert.Equal(t, 2, fake.callCount())
	assert.Equal(t, "sk-server-key", fake.lastKey)
}

func TestSharedKeyModeMissingServerKey(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.SharedKeyMode = true
	})

	out := f.submit(uuid.New(), "hello")
	require.Equal(t, StatusFailed, out.Status)
	assert.Contains(t, out.Message, "No server API key")
	assert.Contains(t, out.Message, "admin")
}

func TestSetCredentialValidation(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.AllowedProviders = []providers.Provider{providers.ProviderOpenAI}
	})
	ctx := context.Background()
	id := uuid.New()

	out := f.svc.SetCredential(ctx, id, "mistral", "key")
	assert.Equal(t, StatusRejected, out.Status)
	assert.Contains(t, out.Message, "Unknown provider")

	out = f.svc.SetCredential(ctx, id, "anthropic", "key")
	assert.Equal(t, StatusRejected, out.Status)
	assert.Contains(t, out.Message, "not enabled")

	out = f.svc.SetCredential(ctx, id, "openai", "")
	assert.Equal(t, StatusRejected, out.Status)

	out = f.svc.SetActiveProvider(ctx, id, "anthropic")
	assert.Equal(t, StatusRejected, out.Status)
}

func TestCredentialStoredEncrypted(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := uuid.New()

	require.Equal(t, StatusSuccess, f.svc.SetCredential(ctx, id, "openai", "sk-plaintext-secret").Status)

	settings, err := f.store.Load(ctx, id)
	require.NoError(t, err)
	stored := settings.EncryptedKey(providers.ProviderOpenAI)
	assert.NotEmpty(t, stored)
	assert.NotContains(t, stored, "sk-plaintext-secret")

	decrypted, err := f.vault.Decrypt(stored)
	require.NoError(t, err)
	assert.Equal(t, "sk-plaintext-secret", decrypted)
}

func TestStatusView(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := uuid.New()

	require.Equal(t, StatusSuccess, f.svc.SetCredential(ctx, id, "gemini", "gk-key").Status)
	require.Equal(t, StatusSuccess, f.svc.SetModel(ctx, id, "gemini", "gemini-1.5-pro").Status)

	view, err := f.svc.Status(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, providers.Default(), view.ActiveProvider)
	assert.True(t, view.HasKey[providers.ProviderGemini])
	assert.False(t, view.HasKey[providers.ProviderOpenAI])
	assert.Equal(t, "gemini-1.5-pro", view.Models[providers.ProviderGemini])
	assert.Equal(t, "gpt-4o-mini", view.Models[providers.ProviderOpenAI])
	assert.Nil(t, view.SharedKeys)
}

func TestStatusViewSharedMode(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.SharedKeyMode = true
	})
	ctx := context.Background()

	require.Equal(t, StatusSuccess, f.svc.SetCredential(ctx, uuid.New(), "openai", "sk-key").Status)

	view, err := f.svc.Status(ctx, uuid.New())
	require.NoError(t, err)
	require.NotNil(t, view.SharedKeys)
	assert.True(t, view.SharedKeys[providers.ProviderOpenAI])
	assert.False(t, view.HasKey[providers.ProviderOpenAI])
}

// recordingExecutor proves async outcomes are marshaled through the home
// executor rather than delivered straight from the worker goroutine.
type recordingExecutor struct {
	mu   sync.Mutex
	runs int
}

func (e *recordingExecutor) Run(fn func()) {
	e.mu.Lock()
	e.runs++
	e.mu.Unlock()
	fn()
}

func TestOutcomeDeliveredThroughExecutor(t *testing.T) {
	f := newFixture(t, nil)
	exec := &recordingExecutor{}
	f.svc.exec = exec

	id := uuid.New()
	require.Equal(t, StatusSuccess, f.svc.SetCredential(context.Background(), id, "openai", "sk-key").Status)

	out := f.submit(id, "hello")
	require.Equal(t, StatusSuccess, out.Status)

	exec.mu.Lock()
	defer exec.mu.Unlock()
	assert.Equal(t, 1, exec.runs)
}

func TestConcurrentSubmitsDifferentIdentities(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		id := uuid.New()
		require.Equal(t, StatusSuccess, f.svc.SetCredential(ctx, id, "openai", "sk-key").Status)
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := f.submit(id, "hello")
			assert.Equal(t, StatusSuccess, out.Status)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, f.clients[providers.ProviderOpenAI].callCount())
}
