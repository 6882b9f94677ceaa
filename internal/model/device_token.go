package model

import "time"

// DeviceToken is a registered push target. Tokens are never physically
// deleted; the gateway confirming a token as permanently invalid sets
// revoked instead.
type DeviceToken struct {
	UserID     string    `db:"user_id" json:"userId"`
	Token      string    `db:"token" json:"token"`
	Platform   string    `db:"platform" json:"platform"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	LastSeenAt time.Time `db:"last_seen_at" json:"lastSeenAt"`
	Revoked    bool      `db:"revoked" json:"revoked"`
}
