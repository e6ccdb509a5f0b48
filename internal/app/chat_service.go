package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"phyrisk/internal/ai"
	"phyrisk/internal/model"
	"phyrisk/internal/repository"
	"phyrisk/internal/riskmodel"
)

const (
	maxHistoryLimit = 200
	riskContextTop  = 3
	emptyReply      = "The model returned an empty response."
)

const systemPrompt = `You are the PhyRISK assistant, a supportive guide for mental health risk insights.
Explain risk scores and the factors behind them in plain, kind language.
You do not diagnose. Encourage healthy routines and, when risk is High, gently suggest reaching out to a qualified professional or a local crisis line.
Keep answers concise.`

type LLMClient interface {
	Complete(ctx context.Context, cfg ai.Config, messages []ai.Message) (string, error)
	Stream(ctx context.Context, cfg ai.Config, messages []ai.Message, onChunk func(string) error) (string, error)
}

type HistoryCache interface {
	Get(ctx context.Context, conversationID uint) ([]model.Message, bool, error)
	Set(ctx context.Context, conversationID uint, messages []model.Message) error
	Invalidate(ctx context.Context, conversationID uint) error
}

type ChatService struct {
	conversationRepo *repository.ConversationRepository
	messageRepo      *repository.MessageRepository
	xai              *XAIService
	risk             *RiskService
	// publisher nil writes messages synchronously
	publisher    Publisher
	historyCache HistoryCache
	llm          LLMClient
	defaultLLM   ai.Config
	maxContext   int
	logger       *zap.Logger
}

type CreateConversationInput struct {
	UserID   uint
	Title    string
	RecordID *uint
}

type SendMessageInput struct {
	UserID         uint
	ConversationID uint
	Content        string
	LLM            LLMOverride
}

type LLMOverride struct {
	BaseURL string
	APIKey  string
	Model   string
}

type LLMRequestLog struct {
	BaseURL      string       `json:"base_url"`
	Model        string       `json:"model"`
	APIKeyMasked string       `json:"api_key_masked"`
	Messages     []ai.Message `json:"messages"`
}

type SendMessageResult struct {
	Messages   []model.Message `json:"messages"`
	LLMRequest LLMRequestLog   `json:"llm_request"`
}

func NewChatService(
	conversationRepo *repository.ConversationRepository,
	messageRepo *repository.MessageRepository,
	xaiService *XAIService,
	riskService *RiskService,
	publisher Publisher,
	historyCache HistoryCache,
	llm LLMClient,
	defaultLLM ai.Config,
	maxContext int,
	logger *zap.Logger,
) *ChatService {
	if maxContext <= 0 {
		maxContext = 20
	}
	return &ChatService{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		xai:              xaiService,
		risk:             riskService,
		publisher:        publisher,
		historyCache:     historyCache,
		llm:              llm,
		defaultLLM:       defaultLLM,
		maxContext:       maxContext,
		logger:           logger,
	}
}

func (s *ChatService) CreateConversation(input CreateConversationInput) (*model.Conversation, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}
	if input.RecordID != nil {
		if _, err := s.risk.GetRecord(input.UserID, *input.RecordID); err != nil {
			return nil, err
		}
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "New Chat"
	}
	if len(title) > 128 {
		title = title[:128]
	}
	conversation := &model.Conversation{
		UserID:   input.UserID,
		Title:    title,
		RecordID: input.RecordID,
	}
	if err := s.conversationRepo.Create(conversation); err != nil {
		return nil, err
	}
	return conversation, nil
}

func (s *ChatService) ListConversations(userID uint) ([]model.Conversation, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.conversationRepo.ListByUserID(userID)
}

func (s *ChatService) getConversation(userID, conversationID uint) (*model.Conversation, error) {
	if userID == 0 || conversationID == 0 {
		return nil, ErrInvalidInput
	}
	conversation, err := s.conversationRepo.GetByIDAndUserID(conversationID, userID)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}
	return conversation, nil
}

func (s *ChatService) DeleteConversation(ctx context.Context, userID, conversationID uint) error {
	if _, err := s.getConversation(userID, conversationID); err != nil {
		return err
	}
	if err := s.messageRepo.DeleteByConversationID(conversationID); err != nil {
		return err
	}
	if err := s.conversationRepo.DeleteByIDAndUserID(conversationID, userID); err != nil {
		return err
	}
	s.invalidate(ctx, conversationID)
	return nil
}

// GetHistory returns the newest limit messages in chronological order.
func (s *ChatService) GetHistory(ctx context.Context, userID, conversationID uint, limit int) ([]model.Message, error) {
	if _, err := s.getConversation(userID, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	if s.historyCache != nil {
		cached, hit, err := s.historyCache.Get(ctx, conversationID)
		if err != nil {
			s.logger.Debug("history cache get failed", zap.Uint("conversation_id", conversationID), zap.Error(err))
		}
		if hit {
			return trimMessages(cached, limit), nil
		}
	}

	messages, err := s.messageRepo.ListRecentByConversationID(conversationID, maxHistoryLimit)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if err := s.historyCache.Set(ctx, conversationID, messages); err != nil {
			s.logger.Debug("history cache set failed", zap.Uint("conversation_id", conversationID), zap.Error(err))
		}
	}
	return trimMessages(messages, limit), nil
}

func trimMessages(messages []model.Message, limit int) []model.Message {
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[len(messages)-limit:]
}

type preparedTurn struct {
	cfg    ai.Config
	prompt []ai.Message
	user   model.Message
}

func (s *ChatService) prepare(ctx context.Context, input SendMessageInput) (*preparedTurn, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, ErrMessageEmpty
	}
	conversation, err := s.getConversation(input.UserID, input.ConversationID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.resolveLLM(input.LLM)
	if err != nil {
		return nil, err
	}
	prompt, err := s.buildPrompt(ctx, conversation, content)
	if err != nil {
		return nil, err
	}
	return &preparedTurn{
		cfg:    cfg,
		prompt: prompt,
		user: model.Message{
			ConversationID: conversation.ID,
			UserID:         input.UserID,
			Role:           model.RoleChatUser,
			Content:        content,
			CreatedAt:      time.Now(),
		},
	}, nil
}

func (s *ChatService) SendMessage(ctx context.Context, input SendMessageInput) (*SendMessageResult, error) {
	turn, err := s.prepare(ctx, input)
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, &turn.user); err != nil {
		return nil, err
	}

	reply, err := s.llm.Complete(ctx, turn.cfg, turn.prompt)
	if err != nil {
		return nil, fmt.Errorf("llm complete failed: %w", err)
	}
	assistant, err := s.saveReply(ctx, turn, reply)
	if err != nil {
		return nil, err
	}

	return &SendMessageResult{
		Messages: []model.Message{turn.user, *assistant},
		LLMRequest: LLMRequestLog{
			BaseURL:      turn.cfg.BaseURL,
			Model:        turn.cfg.Model,
			APIKeyMasked: maskSecret(turn.cfg.APIKey),
			Messages:     turn.prompt,
		},
	}, nil
}

// StreamMessage forwards reply chunks to onChunk and returns the full reply.
func (s *ChatService) StreamMessage(ctx context.Context, input SendMessageInput, onChunk func(string) error) (string, error) {
	turn, err := s.prepare(ctx, input)
	if err != nil {
		return "", err
	}
	if err := s.persist(ctx, &turn.user); err != nil {
		return "", err
	}

	reply, err := s.llm.Stream(ctx, turn.cfg, turn.prompt, onChunk)
	if err != nil {
		return "", fmt.Errorf("llm stream failed: %w", err)
	}
	assistant, err := s.saveReply(ctx, turn, reply)
	if err != nil {
		return "", err
	}
	return assistant.Content, nil
}

func (s *ChatService) saveReply(ctx context.Context, turn *preparedTurn, reply string) (*model.Message, error) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		reply = emptyReply
	}
	assistant := &model.Message{
		ConversationID: turn.user.ConversationID,
		UserID:         turn.user.UserID,
		Role:           model.RoleChatAssistant,
		Content:        reply,
		CreatedAt:      time.Now(),
	}
	if err := s.persist(ctx, assistant); err != nil {
		return nil, err
	}
	return assistant, nil
}

// persist queues the message for the persist worker, or writes it directly
// when no queue is configured. The history cache is invalidated either way.
func (s *ChatService) persist(ctx context.Context, msg *model.Message) error {
	s.invalidate(ctx, msg.ConversationID)
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, msg); err != nil {
			s.logger.Error("publish message failed", zap.Uint("conversation_id", msg.ConversationID), zap.Error(err))
			return ErrMessageEnqueue
		}
		return nil
	}
	return s.messageRepo.Append(msg)
}

func (s *ChatService) invalidate(ctx context.Context, conversationID uint) {
	if s.historyCache == nil {
		return
	}
	if err := s.historyCache.Invalidate(ctx, conversationID); err != nil {
		s.logger.Debug("history cache invalidate failed", zap.Uint("conversation_id", conversationID), zap.Error(err))
	}
}

func (s *ChatService) resolveLLM(override LLMOverride) (ai.Config, error) {
	cfg := s.defaultLLM
	if v := strings.TrimSpace(override.BaseURL); v != "" {
		cfg.BaseURL = v
	}
	if v := strings.TrimSpace(override.APIKey); v != "" {
		cfg.APIKey = v
	}
	if v := strings.TrimSpace(override.Model); v != "" {
		cfg.Model = v
	}
	if cfg.BaseURL == "" || cfg.APIKey == "" || cfg.Model == "" {
		return ai.Config{}, ErrLLMConfig
	}
	return cfg, nil
}

func maskSecret(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}

func (s *ChatService) buildPrompt(ctx context.Context, conversation *model.Conversation, content string) ([]ai.Message, error) {
	recent, err := s.messageRepo.ListRecentByConversationID(conversation.ID, s.maxContext)
	if err != nil {
		return nil, err
	}

	messages := make([]ai.Message, 0, len(recent)+3)
	messages = append(messages, ai.Message{Role: ai.RoleSystem, Content: systemPrompt})
	if conversation.RecordID != nil {
		riskContext, err := s.riskContext(ctx, conversation.UserID, *conversation.RecordID)
		if err != nil {
			return nil, err
		}
		if riskContext != "" {
			messages = append(messages, ai.Message{Role: ai.RoleSystem, Content: riskContext})
		}
	}
	for _, item := range recent {
		role := item.Role
		if role == "" {
			role = ai.RoleUser
		}
		messages = append(messages, ai.Message{Role: role, Content: item.Content})
	}
	messages = append(messages, ai.Message{Role: ai.RoleUser, Content: content})
	return messages, nil
}

// riskContext describes the linked record; a record deleted since is skipped.
func (s *ChatService) riskContext(ctx context.Context, userID, recordID uint) (string, error) {
	exp, err := s.xai.ExplainRecord(ctx, userID, recordID)
	if errors.Is(err, ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Risk context for this conversation: the user's assessed risk is %s (score %.2f).", exp.Label, exp.Score)
	if exp.Label == riskmodel.LabelHigh {
		b.WriteString(" This is a High risk result.")
	}
	top := exp.Values
	if len(top) > riskContextTop {
		top = top[:riskContextTop]
	}
	if len(top) > 0 {
		b.WriteString(" Main contributing factors:")
		for _, v := range top {
			direction := "raises"
			if v.SHAP < 0 {
				direction = "lowers"
			}
			fmt.Fprintf(&b, " %s = %g (%s risk, shap %.3f);", v.Feature, v.Value, direction, v.SHAP)
		}
	}
	return b.String(), nil
}
