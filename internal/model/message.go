package model

import "time"

type Message struct {
	ID          string    `db:"id" json:"id"`
	SessionID   string    `db:"session_id" json:"sessionId"`
	Sender      string    `db:"sender" json:"sender"`
	Content     string    `db:"content" json:"content"`
	IsVoice     bool      `db:"is_voice" json:"isVoice"`
	IsImage     bool      `db:"is_image" json:"isImage"`
	IsRolePlay  bool      `db:"is_role_play" json:"isRolePlay"`
	Character   *string   `db:"character_name" json:"character,omitempty"`
	AIGenerated bool      `db:"ai_generated" json:"aiGenerated"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// Speaker is the name used for the message in generated prompts.
func (m *Message) Speaker() string {
	if m.Character != nil && *m.Character != "" {
		return *m.Character
	}
	return m.Sender
}

type CreateMessageParams struct {
	ID          string
	SessionID   string
	Sender      string
	Content     string
	IsVoice     bool
	IsImage     bool
	IsRolePlay  bool
	Character   *string
	AIGenerated bool
}
