package model

type CodeKind string

const (
	CodeKindAccess CodeKind = "access"
	CodeKindAdmin  CodeKind = "admin"
)

type ParticipantRole string

const (
	RoleKlum ParticipantRole = "klum"
	RoleUser ParticipantRole = "user"
)

// KlumSender is the sender name stamped on messages written from the admin side.
const KlumSender = "KLUM"

// KlumParticipantID is the presence key of the admin persona.
const KlumParticipantID = "klum"

// Event types published on session channels.
const (
	EventMessage      = "message"
	EventSessionEnded = "session_ended"
	EventPresence     = "presence"
	EventConnected    = "connected"
)
