package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository provides PostgreSQL backed persistence for API clients.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

var _ Repository = (*PostgresRepository)(nil)

// FindByID loads one API client.
func (r *PostgresRepository) FindByID(ctx context.Context, id int64) (*APIClient, error) {
	var client APIClient
	err := r.pool.QueryRow(ctx, `SELECT id, name, secret_hash, is_active, created_at, last_used_at
FROM api_clients WHERE id = $1`, id).Scan(
		&client.ID, &client.Name, &client.SecretHash, &client.IsActive, &client.CreatedAt, &client.LastUsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return &client, nil
}

// TouchLastUsed records when a client last authenticated.
func (r *PostgresRepository) TouchLastUsed(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_clients SET last_used_at = $1 WHERE id = $2`, at, id)
	return err
}
