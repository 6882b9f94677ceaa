package repository

import (
	"context"

	"github.com/carelink/notify-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// NotificationEventsRepository persists the received-event audit log.
type NotificationEventsRepository interface {
	Insert(ctx context.Context, ev model.NotificationEvent) error
	ListPage(ctx context.Context, limit, page int) ([]model.NotificationEvent, error)
	// AppendReadBy adds userID to the read_by set of an audit row.
	AppendReadBy(ctx context.Context, eventID, userID string) error
}

type NotificationEventsRepositoryImpl struct {
	db *sqlx.DB
}

func NewNotificationEventsRepository(db *sqlx.DB) *NotificationEventsRepositoryImpl {
	return &NotificationEventsRepositoryImpl{db: db}
}

var _ NotificationEventsRepository = (*NotificationEventsRepositoryImpl)(nil)

func (r *NotificationEventsRepositoryImpl) Insert(ctx context.Context, ev model.NotificationEvent) error {
	const q = `
		INSERT INTO notification_events (event_id, event_type, payload, source_topic, received_at, read_by)
		VALUES (?, ?, ?, ?, NOW(), JSON_ARRAY())
	`
	_, err := r.db.ExecContext(ctx, q, ev.EventID, ev.EventType, []byte(ev.Payload), ev.SourceTopic)
	return err
}

func (r *NotificationEventsRepositoryImpl) ListPage(ctx context.Context, limit, page int) ([]model.NotificationEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if page < 1 {
		page = 1
	}
	const q = `
		SELECT event_id, event_type, payload, source_topic, received_at, read_by
		  FROM notification_events
		 ORDER BY received_at DESC
		 LIMIT ? OFFSET ?
	`
	var rows []model.NotificationEvent
	if err := r.db.SelectContext(ctx, &rows, q, limit, (page-1)*limit); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *NotificationEventsRepositoryImpl) AppendReadBy(ctx context.Context, eventID, userID string) error {
	// JSON append is idempotent per user via the JSON_CONTAINS guard.
	const q = `
		UPDATE notification_events
		   SET read_by = JSON_ARRAY_APPEND(read_by, '$', ?)
		 WHERE event_id = ?
		   AND NOT JSON_CONTAINS(read_by, JSON_QUOTE(?), '$')
	`
	_, err := r.db.ExecContext(ctx, q, userID, eventID, userID)
	return err
}
