package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"askai/internal/providers"
)

const (
	settingKeyEncryptedAPIKey = "encrypted_api_key"
	settingKeyModel           = "model"
)

// PostgresStore persists user settings in PostgreSQL. Writes are upserts
// keyed by (identity, provider, setting_key) so repeated sets are idempotent.
type PostgresStore struct {
	db *sqlx.DB
}

// PostgresConfig holds connection pool settings for the settings store.
type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// NewPostgresStore connects to the database and configures the pool.
func NewPostgresStore(cfg PostgresConfig) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return &PostgresStore{db: db}, nil
}

// Migrate creates the settings tables if they do not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS user_settings (
			identity      UUID NOT NULL,
			provider      TEXT NOT NULL,
			setting_key   TEXT NOT NULL,
			setting_value TEXT NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (identity, provider, setting_key)
		)`,
		`CREATE TABLE IF NOT EXISTS user_active_provider (
			identity   UUID PRIMARY KEY,
			provider   TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping checks database reachability.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Load reads the identity's settings fresh from the database.
func (s *PostgresStore) Load(ctx context.Context, identity uuid.UUID) (*UserSettings, error) {
	settings := NewUserSettings(identity)

	var active string
	err := s.db.GetContext(ctx, &active,
		`SELECT provider FROM user_active_provider WHERE identity = $1`, identity)
	switch {
	case err == nil:
		if p, perr := providers.Parse(active); perr == nil {
			settings.ActiveProvider = p
		}
	case errors.Is(err, sql.ErrNoRows):
		// keep default
	default:
		return nil, fmt.Errorf("failed to load active provider: %w", err)
	}

	rows := []struct {
		Provider     string `db:"provider"`
		SettingKey   string `db:"setting_key"`
		SettingValue string `db:"setting_value"`
	}{}
	err = s.db.SelectContext(ctx, &rows,
		`SELECT provider, setting_key, setting_value FROM user_settings WHERE identity = $1`, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	for _, row := range rows {
		p, perr := providers.Parse(row.Provider)
		if perr != nil {
			continue
		}
		switch row.SettingKey {
		case settingKeyEncryptedAPIKey:
			settings.EncryptedKeys[p] = row.SettingValue
		case settingKeyModel:
			settings.Models[p] = row.SettingValue
		}
	}

	return settings, nil
}

// SetEncryptedKey upserts the credential token for (identity, provider).
func (s *PostgresStore) SetEncryptedKey(ctx context.Context, identity uuid.UUID, p providers.Provider, token string) error {
	return s.upsertSetting(ctx, identity, p, settingKeyEncryptedAPIKey, token)
}

// SetModel upserts the model override for (identity, provider).
func (s *PostgresStore) SetModel(ctx context.Context, identity uuid.UUID, p providers.Provider, model string) error {
	return s.upsertSetting(ctx, identity, p, settingKeyModel, model)
}

// SetActiveProvider upserts the identity's active provider.
func (s *PostgresStore) SetActiveProvider(ctx context.Context, identity uuid.UUID, p providers.Provider) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_active_provider (identity, provider, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (identity)
		DO UPDATE SET provider = EXCLUDED.provider, updated_at = now()
	`, identity, p.ID())
	if err != nil {
		return fmt.Errorf("failed to set active provider: %w", err)
	}
	return nil
}

func (s *PostgresStore) upsertSetting(ctx context.Context, identity uuid.UUID, p providers.Provider, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_settings (identity, provider, setting_key, setting_value, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (identity, provider, setting_key)
		DO UPDATE SET setting_value = EXCLUDED.setting_value, updated_at = now()
	`, identity, p.ID(), key, value)
	if err != nil {
		return fmt.Errorf("failed to upsert setting: %w", err)
	}
	return nil
}
