package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// ProcessedMessagesRepository is the deduplication gate. Claim must stay a
// single atomic insert: a prior existence check would race between replicas
// consuming the same redelivered message.
type ProcessedMessagesRepository interface {
	// Claim attempts to take ownership of messageID. It returns
	// (true, nil) for the first claimer, (false, nil) when the id was
	// already claimed, and (false, err) for any other failure.
	Claim(ctx context.Context, messageID string) (bool, error)
}

type ProcessedMessagesRepositoryImpl struct {
	db *sqlx.DB
}

func NewProcessedMessagesRepository(db *sqlx.DB) *ProcessedMessagesRepositoryImpl {
	return &ProcessedMessagesRepositoryImpl{db: db}
}

var _ ProcessedMessagesRepository = (*ProcessedMessagesRepositoryImpl)(nil)

func (r *ProcessedMessagesRepositoryImpl) Claim(ctx context.Context, messageID string) (bool, error) {
	const q = `INSERT INTO processed_messages (message_id, processed_at) VALUES (?, NOW())`
	_, err := r.db.ExecContext(ctx, q, messageID)
	if err != nil {
		if isDuplicateKey(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
