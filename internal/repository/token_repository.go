package repository

import (
	"context"
	"database/sql"
	"time"
)

// TokenRepo keeps the refresh sessions of diner accounts.  Only the SHA-256
// of a refresh token is stored; the raw value never leaves the response
// that issued it.
type TokenRepo struct {
	db *sql.DB
}

// NewTokenRepo constructs a TokenRepo with the provided DB handle.
func NewTokenRepo(db *sql.DB) *TokenRepo {
	return &TokenRepo{db: db}
}

const (
	insertRefreshSQL = `INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?, ?, ?)`
	lookupRefreshSQL = `SELECT user_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash = ?`
	revokeHashSQL    = `UPDATE refresh_tokens SET revoked_at = CURRENT_TIMESTAMP WHERE token_hash = ? AND revoked_at IS NULL`
	revokeUserSQL    = `UPDATE refresh_tokens SET revoked_at = CURRENT_TIMESTAMP WHERE user_id = ? AND revoked_at IS NULL`
)

// StoreRefresh opens a session for userID that lasts until exp.
func (r *TokenRepo) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	_, err := r.db.ExecContext(ctx, insertRefreshSQL, userID, tokenHash, exp.UTC())
	return err
}

// ValidateRefresh resolves a session to its user.  A session that is
// unknown, logged out or past its expiry is ErrNotFound.
func (r *TokenRepo) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
	var (
		userID    uint64
		expiresAt time.Time
		revokedAt sql.NullTime
	)
	if err := r.db.QueryRowContext(ctx, lookupRefreshSQL, tokenHash).Scan(&userID, &expiresAt, &revokedAt); err != nil {
		return 0, notFound(err)
	}
	if revokedAt.Valid || !expiresAt.After(time.Now().UTC()) {
		return 0, ErrNotFound
	}
	return userID, nil
}

// RevokeByHash ends one session.  Ending a session twice is a no-op.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, revokeHashSQL, tokenHash)
	return err
}

// RevokeAllForUser logs a user out everywhere.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64) error {
	_, err := r.db.ExecContext(ctx, revokeUserSQL, userID)
	return err
}
