package repository

import (
	"context"

	"github.com/carelink/notify-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// RelationshipsRepository reads senior-caregiver links. The table is owned
// by the CRUD domain; this pipeline only queries it.
type RelationshipsRepository interface {
	ListCaregivers(ctx context.Context, seniorID string) ([]model.Relationship, error)
}

type RelationshipsRepositoryImpl struct {
	db *sqlx.DB
}

func NewRelationshipsRepository(db *sqlx.DB) *RelationshipsRepositoryImpl {
	return &RelationshipsRepositoryImpl{db: db}
}

var _ RelationshipsRepository = (*RelationshipsRepositoryImpl)(nil)

func (r *RelationshipsRepositoryImpl) ListCaregivers(ctx context.Context, seniorID string) ([]model.Relationship, error) {
	const q = `
		SELECT senior_id, link_acc_id, relation
		  FROM relationships
		 WHERE senior_id = ?
	`
	var rows []model.Relationship
	if err := r.db.SelectContext(ctx, &rows, q, seniorID); err != nil {
		return nil, err
	}
	return rows, nil
}
