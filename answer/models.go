package answer

import (
	"time"

	"gorm.io/datatypes"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Conversation struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"size:64;not null;uniqueIndex" json:"session_id"`
	Title     string    `gorm:"size:200" json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Conversation) TableName() string {
	return "gw_conversations"
}

type Message struct {
	ID             uint64 `gorm:"primaryKey" json:"id"`
	ConversationID uint64 `gorm:"not null;index:idx_conversation_seq" json:"conversation_id"`
	Seq            int    `gorm:"not null;index:idx_conversation_seq" json:"seq"`
	Role           string `gorm:"size:16;not null" json:"role"`
	Content        string `gorm:"type:text;not null" json:"content"`
	// Provenance stores the sources summary for assistant turns so the chat
	// UI can show which tiers produced an answer long after the fact.
	Provenance datatypes.JSON `gorm:"type:json" json:"provenance,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (Message) TableName() string {
	return "gw_chat_messages"
}
