package repository

import (
	"context"

	"github.com/carelink/notify-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// DeviceTokensRepository manages the push token lifecycle. Tokens are
// upserted on registration and revoked (never deleted) when the gateway
// confirms them permanently invalid.
type DeviceTokensRepository interface {
	Upsert(ctx context.Context, userID, token, platform string) error
	ListActiveByUser(ctx context.Context, userID string) ([]model.DeviceToken, error)
	ListByUser(ctx context.Context, userID string) ([]model.DeviceToken, error)
	Revoke(ctx context.Context, token string) error
	TouchLastSeen(ctx context.Context, token string) error
}

type DeviceTokensRepositoryImpl struct {
	db *sqlx.DB
}

func NewDeviceTokensRepository(db *sqlx.DB) *DeviceTokensRepositoryImpl {
	return &DeviceTokensRepositoryImpl{db: db}
}

var _ DeviceTokensRepository = (*DeviceTokensRepositoryImpl)(nil)

// Upsert registers a token. Re-registering an existing token re-activates
// it: the device proved it is alive again.
func (r *DeviceTokensRepositoryImpl) Upsert(ctx context.Context, userID, token, platform string) error {
	const q = `
		INSERT INTO device_tokens (user_id, token, platform, created_at, last_seen_at, revoked)
		VALUES (?, ?, ?, NOW(), NOW(), FALSE)
		ON DUPLICATE KEY UPDATE
		    user_id      = VALUES(user_id),
		    platform     = VALUES(platform),
		    last_seen_at = VALUES(last_seen_at),
		    revoked      = FALSE
	`
	_, err := r.db.ExecContext(ctx, q, userID, token, platform)
	return err
}

func (r *DeviceTokensRepositoryImpl) ListActiveByUser(ctx context.Context, userID string) ([]model.DeviceToken, error) {
	const q = `
		SELECT user_id, token, platform, created_at, last_seen_at, revoked
		  FROM device_tokens
		 WHERE user_id = ? AND revoked = FALSE
	`
	var rows []model.DeviceToken
	if err := r.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *DeviceTokensRepositoryImpl) ListByUser(ctx context.Context, userID string) ([]model.DeviceToken, error) {
	const q = `
		SELECT user_id, token, platform, created_at, last_seen_at, revoked
		  FROM device_tokens
		 WHERE user_id = ?
	`
	var rows []model.DeviceToken
	if err := r.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *DeviceTokensRepositoryImpl) Revoke(ctx context.Context, token string) error {
	const q = `UPDATE device_tokens SET revoked = TRUE WHERE token = ?`
	_, err := r.db.ExecContext(ctx, q, token)
	return err
}

func (r *DeviceTokensRepositoryImpl) TouchLastSeen(ctx context.Context, token string) error {
	const q = `UPDATE device_tokens SET last_seen_at = NOW() WHERE token = ?`
	_, err := r.db.ExecContext(ctx, q, token)
	return err
}
