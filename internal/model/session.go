package model

import (
	"time"
)

// ChatSession is addressed by the sha256 of its bearer token. The token itself is
// only ever returned once, at redemption time.
type ChatSession struct {
	ID           string     `db:"id" json:"id"`
	TokenHash    string     `db:"token_hash" json:"-"`
	SourceCode   string     `db:"source_code" json:"sourceCode"`
	Active       bool       `db:"active" json:"active"`
	StartedAt    time.Time  `db:"started_at" json:"startedAt"`
	LastActivity time.Time  `db:"last_activity" json:"lastActivity"`
	EndedAt      *time.Time `db:"ended_at" json:"endedAt,omitempty"`
}

type CreateSessionParams struct {
	TokenHash  string
	SourceCode string
}
