package answer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultHistoryLimit = 10

// ConversationStore persists chat history keyed by an opaque session id.
// Conversations are created implicitly on the first appended message.
type ConversationStore struct {
	db *gorm.DB
}

func NewConversationStore(db *gorm.DB) (*ConversationStore, error) {
	if db == nil {
		return nil, errors.New("answer: database connection is required")
	}
	return &ConversationStore{db: db}, nil
}

func (s *ConversationStore) AutoMigrate() error {
	return s.db.AutoMigrate(&Conversation{}, &Message{})
}

// EnsureConversation returns the conversation for sessionID, creating it on
// first use. The title is seeded from the first user message.
func (s *ConversationStore) EnsureConversation(ctx context.Context, sessionID, seedTitle string) (*Conversation, error) {
	trimmed := strings.TrimSpace(sessionID)
	if trimmed == "" {
		return nil, errors.New("answer: session id is required")
	}

	var conv Conversation
	err := s.db.WithContext(ctx).Take(&conv, "session_id = ?", trimmed).Error
	if err == nil {
		return &conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	conv = Conversation{
		SessionID: trimmed,
		Title:     truncateTitle(seedTitle),
	}
	if err := s.db.WithContext(ctx).Create(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// Append adds one message at the next sequence number. The provenance
// summary, when non-nil, is stored as JSON alongside assistant turns.
func (s *ConversationStore) Append(ctx context.Context, conversationID uint64, role, content string, provenance any) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("answer: message content is required")
	}

	var raw datatypes.JSON
	if provenance != nil {
		encoded, err := json.Marshal(provenance)
		if err != nil {
			return err
		}
		raw = datatypes.JSON(encoded)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxSeq int
		if err := tx.Model(&Message{}).
			Where("conversation_id = ?", conversationID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&maxSeq).Error; err != nil {
			return err
		}
		message := Message{
			ConversationID: conversationID,
			Seq:            maxSeq + 1,
			Role:           role,
			Content:        content,
			Provenance:     raw,
		}
		return tx.Create(&message).Error
	})
}

// History returns the last limit messages in chronological order. A missing
// session yields an empty slice, not an error.
func (s *ConversationStore) History(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	var conv Conversation
	err := s.db.WithContext(ctx).Take(&conv, "session_id = ?", strings.TrimSpace(sessionID)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []Message{}, nil
		}
		return nil, err
	}

	var recent []Message
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conv.ID).
		Order("seq DESC").
		Limit(limit).
		Find(&recent).Error; err != nil {
		return nil, err
	}

	// Reverse back into chronological order.
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return recent, nil
}

// Clear removes a conversation and all of its messages.
func (s *ConversationStore) Clear(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv Conversation
		err := tx.Take(&conv, "session_id = ?", strings.TrimSpace(sessionID)).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if err := tx.Where("conversation_id = ?", conv.ID).Delete(&Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Conversation{}, conv.ID).Error
	})
}

func truncateTitle(value string) string {
	trimmed := strings.TrimSpace(value)
	runes := []rune(trimmed)
	if len(runes) > 120 {
		return string(runes[:120])
	}
	return trimmed
}
