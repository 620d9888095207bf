package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"askai/internal/config"
	"askai/internal/orchestrator"
	"askai/internal/providers"
	"askai/internal/ratelimit"
	"askai/internal/storage"
	"askai/internal/vault"
)

// Line-oriented front end standing in for a host command layer. One local
// identity per process; commands mirror the chat command surface:
//
//	ask <text>
//	setkey <provider> <key>
//	setmodel <provider> <model>
//	provider <provider>
//	status
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	v, err := vault.New(cfg.EncryptionSeed, cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to initialize vault: %v", err)
	}

	var store storage.SettingsStore
	if cfg.DatabaseURL != "" {
		pg, err := storage.NewPostgresStore(storage.PostgresConfig{
			URL:             cfg.DatabaseURL,
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: time.Minute,
		})
		if err != nil {
			log.Fatalf("Failed to connect to settings store: %v", err)
		}
		defer pg.Close()
		if err := pg.Migrate(context.Background()); err != nil {
			log.Fatalf("Failed to migrate settings store: %v", err)
		}
		store = pg
	} else {
		store = storage.NewMemoryStore()
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimit.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		limiter = ratelimit.NewRedisLimiter(client, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	} else {
		limiter = ratelimit.NewSlidingWindow(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}

	registry := providers.NewRegistry(providers.RegistryOptions{
		RequestTimeout: cfg.RequestTimeout,
	})

	svc := orchestrator.New(cfg, store, v, limiter, registry, orchestrator.Inline{})

	identity := uuid.New()
	defer svc.Release(identity)

	fmt.Println("askai ready. Commands: ask, setkey, setmodel, provider, status, quit")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		cmd, rest, _ := strings.Cut(line, " ")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

		switch cmd {
		case "quit", "exit":
			cancel()
			return
		case "ask":
			done := make(chan struct{})
			svc.Submit(identity, rest, func(out orchestrator.Outcome) {
				printOutcome(out)
				close(done)
			})
			<-done
		case "setkey":
			provider, key, _ := strings.Cut(rest, " ")
			printOutcome(svc.SetCredential(ctx, identity, provider, key))
		case "setmodel":
			provider, model, _ := strings.Cut(rest, " ")
			printOutcome(svc.SetModel(ctx, identity, provider, model))
		case "provider":
			printOutcome(svc.SetActiveProvider(ctx, identity, rest))
		case "status":
			printStatus(ctx, svc, identity)
		default:
			fmt.Println("Unknown command. Use: ask, setkey, setmodel, provider, status, quit")
		}
		cancel()
	}
}

func printOutcome(out orchestrator.Outcome) {
	switch out.Status {
	case orchestrator.StatusSuccess:
		if out.Response != nil {
			fmt.Println(out.Response.Text)
			fmt.Printf("(tokens: %d in, %d out; finish: %s)\n",
				out.Response.PromptTokens, out.Response.CompletionTokens, out.Response.FinishReason)
		} else {
			fmt.Println(out.Message)
		}
	default:
		fmt.Println(out.Message)
	}
}

func printStatus(ctx context.Context, svc *orchestrator.Service, identity uuid.UUID) {
	view, err := svc.Status(ctx, identity)
	if err != nil {
		fmt.Println("Failed to load settings.")
		return
	}
	fmt.Printf("Active provider: %s\n", view.ActiveProvider.DisplayName())
	for _, p := range providers.All() {
		keyState := "no key"
		if view.HasKey[p] {
			keyState = "key set"
		}
		if view.SharedKeys != nil && view.SharedKeys[p] {
			keyState += ", server key set"
		}
		fmt.Printf("  %-13s model=%s (%s)\n", p.DisplayName(), view.Models[p], keyState)
	}
}
