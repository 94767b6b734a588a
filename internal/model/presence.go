package model

import "time"

type Presence struct {
	ParticipantID string          `json:"participantId"`
	Role          ParticipantRole `json:"role"`
	DisplayName   string          `json:"displayName,omitempty"`
	Online        bool            `json:"online"`
	LastActive    time.Time       `json:"lastActive"`
}

// Live reports whether the entry is online and was refreshed within ttl.
func (p Presence) Live(now time.Time, ttl time.Duration) bool {
	return p.Online && now.Sub(p.LastActive) <= ttl
}

type ChatStatus struct {
	KlumOnline    bool `json:"klumOnline"`
	HasActiveUser bool `json:"hasActiveUser"`
	ChatAvailable bool `json:"chatAvailable"`
}
