package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"phyrisk/internal/app"
	"phyrisk/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
	logger      *zap.Logger
}

type CreateConversationRequest struct {
	Title    string `json:"title" binding:"max=128"`
	RecordID *uint  `json:"record_id"`
}

type SendMessageRequest struct {
	ConversationID uint       `json:"conversation_id" binding:"required,gt=0"`
	Content        string     `json:"content" binding:"required"`
	LLM            LLMRequest `json:"llm"`
}

type LLMRequest struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
}

func NewChatHandler(chatService *app.ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{chatService: chatService, logger: logger}
}

func (h *ChatHandler) CreateConversation(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request payload")
		return
	}

	conversation, err := h.chatService.CreateConversation(app.CreateConversationInput{
		UserID:   userID,
		Title:    req.Title,
		RecordID: req.RecordID,
	})
	if err != nil {
		writeError(c, h.logger, err, "create conversation failed")
		return
	}
	response.Created(c, conversation)
}

func (h *ChatHandler) ListConversations(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	list, err := h.chatService.ListConversations(userID)
	if err != nil {
		writeError(c, h.logger, err, "list conversations failed")
		return
	}
	response.OK(c, list)
}

func (h *ChatHandler) DeleteConversation(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	conversationID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.chatService.DeleteConversation(c.Request.Context(), userID, conversationID); err != nil {
		writeError(c, h.logger, err, "delete conversation failed")
		return
	}
	response.OK(c, gin.H{"deleted_conversation_id": conversationID})
}

func (h *ChatHandler) GetHistory(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	conversationID, err := strconv.ParseUint(c.Query("conversation_id"), 10, 64)
	if err != nil || conversationID == 0 {
		badRequest(c, "invalid conversation_id")
		return
	}

	history, err := h.chatService.GetHistory(c.Request.Context(), userID, uint(conversationID), queryInt(c, "limit", 100))
	if err != nil {
		writeError(c, h.logger, err, "get history failed")
		return
	}
	response.OK(c, history)
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request payload")
		return
	}

	result, err := h.chatService.SendMessage(c.Request.Context(), req.toInput(userID))
	if err != nil {
		writeError(c, h.logger, err, "send message failed")
		return
	}
	response.OK(c, result)
}

// StreamMessage answers with server-sent events: unnamed events carry reply
// chunks, then a single "done" event with the full reply or an "error" event.
func (h *ChatHandler) StreamMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request payload")
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}

	// The stream opens on the first chunk, so failures before it keep their HTTP status.
	streaming := false
	openStream := func() {
		if streaming {
			return
		}
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
		streaming = true
	}

	full, err := h.chatService.StreamMessage(c.Request.Context(), req.toInput(userID), func(chunk string) error {
		openStream()
		if _, writeErr := c.Writer.Write([]byte("data: " + sanitizeSSE(chunk) + "\n\n")); writeErr != nil {
			return writeErr
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		if !streaming {
			writeError(c, h.logger, err, "stream message failed")
			return
		}
		_, _, message, known := statusFor(err)
		if !known {
			h.logger.Error("stream message failed", zap.Uint("user_id", userID), zap.Error(err))
			message = "stream failed"
		}
		if _, writeErr := c.Writer.Write([]byte(fmt.Sprintf("event: error\ndata: %s\n\n", sanitizeSSE(message)))); writeErr == nil {
			flusher.Flush()
		}
		return
	}

	openStream()
	if _, writeErr := c.Writer.Write([]byte("event: done\ndata: " + sanitizeSSE(full) + "\n\n")); writeErr == nil {
		flusher.Flush()
	}
}

func (r SendMessageRequest) toInput(userID uint) app.SendMessageInput {
	return app.SendMessageInput{
		UserID:         userID,
		ConversationID: r.ConversationID,
		Content:        r.Content,
		LLM: app.LLMOverride{
			BaseURL: r.LLM.BaseURL,
			APIKey:  r.LLM.APIKey,
			Model:   r.LLM.Model,
		},
	}
}

func sanitizeSSE(input string) string {
	replaced := strings.ReplaceAll(input, "\r\n", "\\n")
	replaced = strings.ReplaceAll(replaced, "\n", "\\n")
	return replaced
}
