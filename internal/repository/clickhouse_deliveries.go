package repository

import (
	"context"

	"github.com/carelink/notify-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// CHDeliveriesRepository stores per-token push delivery attempts in
// ClickHouse for operator reporting. Writes are best effort: the caller
// logs and moves on when the sink is down.
type CHDeliveriesRepository interface {
	InsertBatch(ctx context.Context, rows []model.DeliveryAttempt) error
	ListRecent(ctx context.Context, userID string, limit, offset int) ([]model.DeliveryAttempt, error)
}

type chDeliveriesRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHDeliveriesRepository(ch *sqlx.DB) CHDeliveriesRepository {
	return &chDeliveriesRepository{ch: ch}
}

func (r *chDeliveriesRepository) InsertBatch(ctx context.Context, rows []model.DeliveryAttempt) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := r.ch.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
		INSERT INTO carelink.delivery_attempts (event_id, user_id, token, outcome, detail, attempted_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	for _, a := range rows {
		if _, err := tx.ExecContext(ctx, q, a.EventID, a.UserID, a.Token, a.Outcome, a.Detail, a.AttemptedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *chDeliveriesRepository) ListRecent(ctx context.Context, userID string, limit, offset int) ([]model.DeliveryAttempt, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT event_id, user_id, token, outcome, detail, attempted_at
		FROM carelink.delivery_attempts
	`
	args := []any{}

	if userID != "" {
		q += " WHERE user_id = ?"
		args = append(args, userID)
	}

	q += " ORDER BY attempted_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.DeliveryAttempt
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
