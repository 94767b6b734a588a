package model

import (
	"time"
)

type AdminSession struct {
	ID           string     `db:"id" json:"id"`
	TokenHash    string     `db:"token_hash" json:"-"`
	SourceCode   string     `db:"source_code" json:"-"`
	Active       bool       `db:"active" json:"active"`
	StartedAt    time.Time  `db:"started_at" json:"startedAt"`
	LastActivity time.Time  `db:"last_activity" json:"lastActivity"`
	EndedAt      *time.Time `db:"ended_at" json:"endedAt,omitempty"`
}

// Stats is the aggregate view shown on the admin dashboard.
type Stats struct {
	Codes          int `json:"codes"`
	ActiveCodes    int `json:"activeCodes"`
	Sessions       int `json:"sessions"`
	ActiveSessions int `json:"activeSessions"`
	Messages       int `json:"messages"`
}
