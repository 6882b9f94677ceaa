package repository

import (
	"context"
	"time"

	"github.com/carelink/notify-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// UsersRepository reads and updates the local user projection.
type UsersRepository interface {
	Get(ctx context.Context, userID string) (*model.User, error)
	ListMonitored(ctx context.Context) ([]model.User, error)
	SetLastCheckIn(ctx context.Context, tx *sqlx.Tx, userID string, at time.Time) error

	// ClaimReminder stamps last_reminder_at iff no reminder was issued
	// today (compare-and-set on the throttle anchor). Returns true when
	// this call won the stamp.
	ClaimReminder(ctx context.Context, userID string, now, todayStart time.Time) (bool, error)

	// ReleaseReminder undoes a claim that emitted nothing, guarded on
	// the stamp still holding the value this process wrote.
	ReleaseReminder(ctx context.Context, userID string, claimedAt time.Time) error
}

type UsersRepositoryImpl struct {
	db *sqlx.DB
}

func NewUsersRepository(db *sqlx.DB) *UsersRepositoryImpl {
	return &UsersRepositoryImpl{db: db}
}

var _ UsersRepository = (*UsersRepositoryImpl)(nil)

func (r *UsersRepositoryImpl) Get(ctx context.Context, userID string) (*model.User, error) {
	const q = `
		SELECT user_id, name, email, last_check_in_at, last_reminder_at, created_at
		  FROM users
		 WHERE user_id = ? LIMIT 1
	`
	var u model.User
	err := r.db.GetContext(ctx, &u, q, userID)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *UsersRepositoryImpl) ListMonitored(ctx context.Context) ([]model.User, error) {
	const q = `
		SELECT user_id, name, email, last_check_in_at, last_reminder_at, created_at
		  FROM users
		 ORDER BY user_id
	`
	var rows []model.User
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *UsersRepositoryImpl) SetLastCheckIn(ctx context.Context, tx *sqlx.Tx, userID string, at time.Time) error {
	const q = `UPDATE users SET last_check_in_at = ? WHERE user_id = ?`
	if tx != nil {
		_, err := tx.ExecContext(ctx, q, at, userID)
		return err
	}
	_, err := r.db.ExecContext(ctx, q, at, userID)
	return err
}

func (r *UsersRepositoryImpl) ClaimReminder(ctx context.Context, userID string, now, todayStart time.Time) (bool, error) {
	const q = `
		UPDATE users
		   SET last_reminder_at = ?
		 WHERE user_id = ?
		   AND (last_reminder_at IS NULL OR last_reminder_at < ?)
	`
	res, err := r.db.ExecContext(ctx, q, now, userID, todayStart)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *UsersRepositoryImpl) ReleaseReminder(ctx context.Context, userID string, claimedAt time.Time) error {
	const q = `
		UPDATE users
		   SET last_reminder_at = NULL
		 WHERE user_id = ?
		   AND last_reminder_at = ?
	`
	_, err := r.db.ExecContext(ctx, q, userID, claimedAt)
	return err
}
