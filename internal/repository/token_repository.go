package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/plant-maintenance/internal/model"
)

// TokenRepo persists refresh tokens (single 'token_hash' column). The
// auth layer hashes tokens before they reach this repository; lookups
// are exact matches on the hash.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// Store inserts a refresh token hash row.
func (r *TokenRepo) Store(ctx context.Context, userID uint64, tokenHash string, expiresAt time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
		userID, tokenHash, expiresAt)
	return err
}

// FindByHash returns the row matching a token hash, expired or not.
// Expiry handling is a policy decision that belongs to the auth layer
// (an expired row must be deleted at use, not merely skipped).
func (r *TokenRepo) FindByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	var t model.RefreshToken
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, user_id, token_hash, expires_at, created_at FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return &t, nil
}

// DeleteByHash removes all rows matching a token hash. Deleting a hash
// that no longer exists is not an error, which makes logout idempotent.
func (r *TokenRepo) DeleteByHash(ctx context.Context, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE token_hash=?", tokenHash)
	return err
}

// DeleteAllForUser removes every refresh token owned by a user. Used on
// administrative password resets to terminate all sessions.
func (r *TokenRepo) DeleteAllForUser(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE user_id=?", userID)
	return err
}
