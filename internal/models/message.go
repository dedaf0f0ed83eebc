package models

import (
	"time"
)

// ChatTurn is one persisted exchange between a visitor and the assistant.
type ChatTurn struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	SessionID string    `json:"sessionId" gorm:"size:36;index"`
	UserText  string    `json:"userText"`
	ReplyText string    `json:"replyText"`
	Intent    string    `json:"intent,omitempty"`
	Outcome   string    `json:"outcome" gorm:"size:16"`
	LatencyMS int64     `json:"latencyMs"`
	CreatedAt time.Time `json:"createdAt" gorm:"index"`
}

// TableName keeps the table name stable if the struct is renamed.
func (ChatTurn) TableName() string {
	return "chat_turns"
}
