package repository

import (
	"context"
	"time"

	"github.com/carelink/notify-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// OutboxRepository defines persistence for the events (outbox) table.
// Rows are only ever inserted and flag-updated, never deleted; the table
// doubles as the event audit log.
type OutboxRepository interface {
	// Insert writes a single event row. If tx is nil, it will open/commit
	// an internal transaction; otherwise it uses the given tx.
	Insert(ctx context.Context, tx *sqlx.Tx, ev model.Event) error

	// FetchPending returns up to limit unpublished rows whose
	// next_attempt_at is unset or due, oldest first.
	FetchPending(ctx context.Context, now time.Time, limit int) ([]model.Event, error)

	// MarkPublished flips the row to its terminal published state.
	MarkPublished(ctx context.Context, id string, at time.Time) error

	// MarkFailed records a failed publish attempt and schedules the retry.
	MarkFailed(ctx context.Context, id string, attempts int, lastError string, nextAttemptAt time.Time) error

	// MarkTerminal closes an exhausted row so it never blocks the queue.
	MarkTerminal(ctx context.Context, id string, attempts int, lastError string) error

	// Get returns a single event row by id, or nil when absent.
	Get(ctx context.Context, id string) (*model.Event, error)
}

// OutboxRepositoryImpl is a sqlx-backed implementation.
type OutboxRepositoryImpl struct {
	db *sqlx.DB
}

// NewOutboxRepository constructs an OutboxRepositoryImpl.
func NewOutboxRepository(db *sqlx.DB) *OutboxRepositoryImpl {
	return &OutboxRepositoryImpl{db: db}
}

var _ OutboxRepository = (*OutboxRepositoryImpl)(nil)

// withTx runs fn in the provided tx, or starts a new transaction when tx is nil.
func (r *OutboxRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}

	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}

	return t.Commit()
}

func (r *OutboxRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, ev model.Event) error {
	const q = `
		INSERT INTO events (id, event_type, payload, published, attempts, created_at)
		VALUES (?, ?, ?, FALSE, 0, NOW())
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, ev.ID, ev.EventType, []byte(ev.Payload))

		return err
	})
}

func (r *OutboxRepositoryImpl) FetchPending(ctx context.Context, now time.Time, limit int) ([]model.Event, error) {
	const q = `
		SELECT id, event_type, payload, published, attempts, last_error, next_attempt_at, created_at, published_at
		  FROM events
		 WHERE published = FALSE
		   AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		 ORDER BY created_at ASC
		 LIMIT ?
	`
	var rows []model.Event
	if err := r.db.SelectContext(ctx, &rows, q, now, limit); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *OutboxRepositoryImpl) MarkPublished(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE events SET published = TRUE, published_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, q, at, id)
	return err
}

func (r *OutboxRepositoryImpl) MarkFailed(ctx context.Context, id string, attempts int, lastError string, nextAttemptAt time.Time) error {
	const q = `
		UPDATE events
		   SET attempts = ?, last_error = ?, next_attempt_at = ?
		 WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, q, attempts, lastError, nextAttemptAt, id)
	return err
}

func (r *OutboxRepositoryImpl) MarkTerminal(ctx context.Context, id string, attempts int, lastError string) error {
	const q = `
		UPDATE events
		   SET published = TRUE, published_at = NOW(), attempts = ?, last_error = ?
		 WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, q, attempts, lastError, id)
	return err
}

func (r *OutboxRepositoryImpl) Get(ctx context.Context, id string) (*model.Event, error) {
	const q = `
		SELECT id, event_type, payload, published, attempts, last_error, next_attempt_at, created_at, published_at
		  FROM events
		 WHERE id = ? LIMIT 1
	`
	var ev model.Event
	err := r.db.GetContext(ctx, &ev, q, id)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &ev, nil
}
