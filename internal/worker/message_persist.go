package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"phyrisk/internal/model"
	"phyrisk/internal/repository"
)

// MessagePersistHandler writes chat messages queued by the chat service.
type MessagePersistHandler struct {
	messageRepo *repository.MessageRepository
}

func NewMessagePersistHandler(messageRepo *repository.MessageRepository) *MessagePersistHandler {
	return &MessagePersistHandler{messageRepo: messageRepo}
}

func (h *MessagePersistHandler) Handle(_ context.Context, body []byte) error {
	var msg model.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: decode message: %v", ErrDrop, err)
	}
	if msg.ConversationID == 0 || msg.Content == "" {
		return fmt.Errorf("%w: message without conversation or content", ErrDrop)
	}
	msg.ID = 0
	return h.messageRepo.Append(&msg)
}
