package repository

import (
	"context"
	"time"

	"github.com/carelink/notify-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// CheckInsRepository persists the append-only check-in log.
type CheckInsRepository interface {
	Insert(ctx context.Context, tx *sqlx.Tx, c model.CheckIn) error
	ListRecent(ctx context.Context, userID string, limit int) ([]model.CheckIn, error)
	// ExistsSince reports whether userID checked in at or after the cutoff.
	ExistsSince(ctx context.Context, userID string, cutoff time.Time) (bool, error)
}

type CheckInsRepositoryImpl struct {
	db *sqlx.DB
}

func NewCheckInsRepository(db *sqlx.DB) *CheckInsRepositoryImpl {
	return &CheckInsRepositoryImpl{db: db}
}

var _ CheckInsRepository = (*CheckInsRepositoryImpl)(nil)

func (r *CheckInsRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, c model.CheckIn) error {
	const q = `INSERT INTO checkins (user_id, mood, created_at) VALUES (?, ?, ?)`
	at := c.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	if tx != nil {
		_, err := tx.ExecContext(ctx, q, c.UserID, c.Mood, at)
		return err
	}
	_, err := r.db.ExecContext(ctx, q, c.UserID, c.Mood, at)
	return err
}

func (r *CheckInsRepositoryImpl) ListRecent(ctx context.Context, userID string, limit int) ([]model.CheckIn, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	const q = `
		SELECT user_id, mood, created_at
		  FROM checkins
		 WHERE user_id = ?
		 ORDER BY created_at DESC
		 LIMIT ?
	`
	var rows []model.CheckIn
	if err := r.db.SelectContext(ctx, &rows, q, userID, limit); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *CheckInsRepositoryImpl) ExistsSince(ctx context.Context, userID string, cutoff time.Time) (bool, error) {
	const q = `SELECT COUNT(1) FROM checkins WHERE user_id = ? AND created_at >= ?`
	var n int
	if err := r.db.GetContext(ctx, &n, q, userID, cutoff); err != nil {
		return false, err
	}
	return n > 0, nil
}
