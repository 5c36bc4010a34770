package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) Store {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetByHash(ctx context.Context, hash string) (*Key, error) {
	query := `
		SELECT id, tenant_id, key_hash, label, token_budget, disabled, created_at
		FROM api_keys
		WHERE key_hash = $1 AND NOT disabled
	`

	var k Key
	err := s.db.QueryRow(ctx, query, hash).Scan(
		&k.ID, &k.TenantID, &k.Hash, &k.Label, &k.TokenBudget, &k.Disabled, &k.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}

	return &k, nil
}

func (s *PostgresStore) Create(ctx context.Context, key *Key) error {
	if key.Hash == "" {
		return fmt.Errorf("key hash is required")
	}

	query := `
		INSERT INTO api_keys (tenant_id, key_hash, label, token_budget, disabled)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := s.db.QueryRow(ctx, query,
		key.TenantID, key.Hash, key.Label, key.TokenBudget, key.Disabled,
	).Scan(&key.ID, &key.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}

	return nil
}

func (s *PostgresStore) Revoke(ctx context.Context, keyID string) error {
	query := `UPDATE api_keys SET disabled = true WHERE id = $1`
	tag, err := s.db.Exec(ctx, query, keyID)
	if err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrKeyNotFound
	}

	return nil
}

func (s *PostgresStore) Touch(ctx context.Context, keyID string) error {
	query := `UPDATE api_keys SET last_used_at = now() WHERE id = $1`
	if _, err := s.db.Exec(ctx, query, keyID); err != nil {
		return fmt.Errorf("failed to touch api key: %w", err)
	}
	return nil
}
