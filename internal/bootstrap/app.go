package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"phyrisk/internal/ai"
	"phyrisk/internal/app"
	"phyrisk/internal/cache"
	"phyrisk/internal/config"
	"phyrisk/internal/model"
	"phyrisk/internal/pkg/storage"
	"phyrisk/internal/platform/database"
	rabbitmqClient "phyrisk/internal/platform/rabbitmq"
	redisClient "phyrisk/internal/platform/redis"
	"phyrisk/internal/repository"
	"phyrisk/internal/riskmodel"
	"phyrisk/internal/worker"
	"phyrisk/internal/xai"
)

type Services struct {
	Auth    *app.AuthService
	Dataset *app.DatasetService
	Risk    *app.RiskService
	XAI     *app.XAIService
	Chat    *app.ChatService
	Admin   *app.AdminService
}

type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	DB        *gorm.DB
	Redis     *redis.Client
	MQConn    *amqp.Connection
	Predictor riskmodel.Predictor
	Services  *Services
	Consumers []*worker.Consumer

	StartedAt time.Time
}

// New connects every backing service named in cfg. Redis and RabbitMQ are
// optional; without them caching is skipped and async work runs inline.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := database.New(ctx, cfg.Database.URL, logger)
	if err != nil {
		return nil, err
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		_ = closeDB(db)
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		if redisCli != nil {
			_ = redisCli.Close()
		}
		_ = closeDB(db)
		return nil, err
	}

	a, err := Build(cfg, logger, db, redisCli, mqConn)
	if err != nil {
		if a != nil {
			_ = a.Close()
		}
		return nil, err
	}
	if err := a.StartWorkers(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// Build migrates the schema and wires repositories and services over already
// opened connections. redisCli and mqConn may be nil.
func Build(cfg *config.Config, logger *zap.Logger, db *gorm.DB, redisCli *redis.Client, mqConn *amqp.Connection) (*App, error) {
	a := &App{
		Config:    cfg,
		Logger:    logger,
		DB:        db,
		Redis:     redisCli,
		MQConn:    mqConn,
		StartedAt: time.Now(),
	}

	if err := db.AutoMigrate(model.All()...); err != nil {
		return a, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	predictor, thresholds, err := riskmodel.Load(cfg.Model.Path, cfg.Model.ONNXSharedLibPath, riskmodel.Thresholds{
		Low:  cfg.Model.LowThreshold,
		High: cfg.Model.HighThreshold,
	})
	if err != nil {
		return a, fmt.Errorf("load risk model failed: %w", err)
	}
	a.Predictor = predictor
	logger.Info("risk model loaded",
		zap.String("model", predictor.Name()),
		zap.Int("features", len(predictor.Features())),
		zap.Float64("low_threshold", thresholds.Low),
		zap.Float64("high_threshold", thresholds.High),
	)

	store, err := storage.NewLocalStore(cfg.Storage.UploadDir)
	if err != nil {
		return a, err
	}

	userRepo := repository.NewUserRepository(db)
	datasetRepo := repository.NewDatasetRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	explanationRepo := repository.NewExplanationRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	// Interfaces stay nil unless the backing connection exists.
	var (
		historyCache     app.HistoryCache
		explanationCache app.ExplanationCache
		jobPublisher     app.Publisher
		messagePublisher app.Publisher
	)
	if redisCli != nil {
		historyCache = cache.NewHistoryCache(redisCli,
			time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
			time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
		)
		explanationCache = cache.NewExplanationCache(redisCli, time.Duration(cfg.Redis.ExplanationTTLSeconds)*time.Second)
	}
	if mqConn != nil {
		jobPublisher = rabbitmqClient.NewPublisher(mqConn, cfg.RabbitMQ.AssessmentQueue)
		messagePublisher = rabbitmqClient.NewPublisher(mqConn, cfg.RabbitMQ.MessagePersistQueue)
	}

	svc := &Services{}
	svc.Auth = app.NewAuthService(userRepo, cfg.Auth.JWTSecret, cfg.Auth.JWTExpireMinute, cfg.Auth.AdminEmails)
	svc.Dataset = app.NewDatasetService(datasetRepo, store, cfg.MaxUploadBytes(), logger)
	svc.Risk = app.NewRiskService(assessmentRepo, datasetRepo, svc.Dataset, predictor, thresholds, jobPublisher, logger)
	svc.XAI = app.NewXAIService(
		assessmentRepo,
		explanationRepo,
		xai.NewExplainer(predictor, cfg.XAI.Permutations),
		predictor.Features(),
		explanationCache,
		cfg.XAI.GlobalSampleLimit,
		logger,
	)
	svc.Chat = app.NewChatService(
		conversationRepo,
		messageRepo,
		svc.XAI,
		svc.Risk,
		messagePublisher,
		historyCache,
		ai.NewClient(time.Duration(cfg.LLM.TimeoutSeconds)*time.Second),
		ai.Config{BaseURL: cfg.LLM.BaseURL, APIKey: cfg.LLM.APIKey, Model: cfg.LLM.Model},
		cfg.LLM.MaxContextMessage,
		logger,
	)
	svc.Admin = app.NewAdminService(userRepo, datasetRepo, assessmentRepo)
	a.Services = svc

	if mqConn != nil {
		a.Consumers = []*worker.Consumer{
			worker.NewConsumer(mqConn, cfg.RabbitMQ.MessagePersistQueue,
				worker.NewMessagePersistHandler(messageRepo), 0, logger),
			worker.NewConsumer(mqConn, cfg.RabbitMQ.AssessmentQueue,
				worker.NewAssessmentHandler(svc.Risk), 2, logger),
		}
	}
	return a, nil
}

func (a *App) StartWorkers(ctx context.Context) error {
	for _, c := range a.Consumers {
		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("start worker failed: %w", err)
		}
	}
	return nil
}

func (a *App) Close() error {
	var errs []error
	for _, c := range a.Consumers {
		c.Close()
	}
	if closer, ok := a.Predictor.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		if err := a.MQConn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.DB != nil {
		if err := closeDB(a.DB); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
