package model

import "time"

// AccessCode is keyed by its own value: looking up a code is a primary key read.
type AccessCode struct {
	Code      string     `db:"code" json:"code"`
	Kind      CodeKind   `db:"kind" json:"kind"`
	Active    bool       `db:"active" json:"active"`
	InUse     bool       `db:"in_use" json:"inUse"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	LastUsed  *time.Time `db:"last_used" json:"lastUsed,omitempty"`
}

// Redeemable reports whether the code can open a session of the given kind.
func (c *AccessCode) Redeemable(kind CodeKind) bool {
	return c != nil && c.Active && c.Kind == kind
}

type CreateAccessCodeParams struct {
	Code string
	Kind CodeKind
}
