package model

// Relationship links a monitored senior to a caregiver account. Owned by
// the CRUD domain; read-only from this pipeline's perspective.
type Relationship struct {
	SeniorID  string `db:"senior_id" json:"seniorId"`
	LinkAccID string `db:"link_acc_id" json:"linkAccId"`
	Relation  string `db:"relation" json:"relation"`
}
