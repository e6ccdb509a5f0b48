package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"phyrisk/internal/model"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(message *model.Message) error {
	if err := r.db.Create(message).Error; err != nil {
		return fmt.Errorf("create message failed: %w", err)
	}
	return nil
}

// Append inserts message and bumps its conversation's updated_at atomically.
func (r *MessageRepository) Append(message *model.Message) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return fmt.Errorf("create message failed: %w", err)
		}
		res := tx.Model(&model.Conversation{}).Where("id = ?", message.ConversationID).Update("updated_at", time.Now())
		if res.Error != nil {
			return fmt.Errorf("touch conversation failed: %w", res.Error)
		}
		return nil
	})
}

func (r *MessageRepository) ListByConversationID(conversationID uint, limit int) ([]model.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}

	var messages []model.Message
	if err := r.db.Where("conversation_id = ?", conversationID).Order("created_at ASC, id ASC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	return messages, nil
}

// ListRecentByConversationID returns the newest limit messages in chronological order.
func (r *MessageRepository) ListRecentByConversationID(conversationID uint, limit int) ([]model.Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	var messages []model.Message
	if err := r.db.Where("conversation_id = ?", conversationID).Order("created_at DESC, id DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list recent messages failed: %w", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *MessageRepository) DeleteByConversationID(conversationID uint) error {
	if err := r.db.Where("conversation_id = ?", conversationID).Delete(&model.Message{}).Error; err != nil {
		return fmt.Errorf("delete messages failed: %w", err)
	}
	return nil
}
