package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"phyrisk/internal/model"
)

type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) Create(conversation *model.Conversation) error {
	if err := r.db.Create(conversation).Error; err != nil {
		return fmt.Errorf("create conversation failed: %w", err)
	}
	return nil
}

func (r *ConversationRepository) ListByUserID(userID uint) ([]model.Conversation, error) {
	var conversations []model.Conversation
	if err := r.db.Where("user_id = ?", userID).Order("updated_at DESC").Find(&conversations).Error; err != nil {
		return nil, fmt.Errorf("list conversations failed: %w", err)
	}
	return conversations, nil
}

func (r *ConversationRepository) GetByIDAndUserID(conversationID, userID uint) (*model.Conversation, error) {
	var conversation model.Conversation
	if err := r.db.Where("id = ? AND user_id = ?", conversationID, userID).First(&conversation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get conversation failed: %w", err)
	}
	return &conversation, nil
}

func (r *ConversationRepository) DeleteByIDAndUserID(conversationID, userID uint) error {
	if err := r.db.Where("id = ? AND user_id = ?", conversationID, userID).Delete(&model.Conversation{}).Error; err != nil {
		return fmt.Errorf("delete conversation failed: %w", err)
	}
	return nil
}
