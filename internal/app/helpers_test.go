package app

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"phyrisk/internal/ai"
	"phyrisk/internal/model"
	"phyrisk/internal/pkg/storage"
	"phyrisk/internal/repository"
	"phyrisk/internal/riskmodel"
	"phyrisk/internal/xai"
)

const surveyCSV = "age,sleep_hours,stress_level,anxiety_score,depression_score,social_support,physical_activity_hours,screen_time_hours\n" +
	"35,7,5,7,8,6,3,5\n" +
	"52,3,10,18,20,1,0,12\n" +
	"24,9,1,2,2,9,8,1\n"

type fakePublisher struct {
	mu       sync.Mutex
	payloads []any
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.payloads = append(p.payloads, payload)
	return nil
}

type fakeLLM struct {
	reply   string
	prompts [][]ai.Message
	configs []ai.Config
}

func (f *fakeLLM) Complete(_ context.Context, cfg ai.Config, messages []ai.Message) (string, error) {
	f.prompts = append(f.prompts, messages)
	f.configs = append(f.configs, cfg)
	return f.reply, nil
}

func (f *fakeLLM) Stream(_ context.Context, cfg ai.Config, messages []ai.Message, onChunk func(string) error) (string, error) {
	f.prompts = append(f.prompts, messages)
	f.configs = append(f.configs, cfg)
	for _, word := range strings.SplitAfter(f.reply, " ") {
		if err := onChunk(word); err != nil {
			return "", err
		}
	}
	return f.reply, nil
}

type memoryExplanationCache struct {
	items map[uint]*xai.Explanation
	gets  int
}

func (c *memoryExplanationCache) Get(_ context.Context, id uint) (*xai.Explanation, bool, error) {
	c.gets++
	e, ok := c.items[id]
	return e, ok, nil
}

func (c *memoryExplanationCache) Set(_ context.Context, id uint, e *xai.Explanation) error {
	c.items[id] = e
	return nil
}

type memoryHistoryCache struct {
	items       map[uint][]model.Message
	invalidated int
}

func (c *memoryHistoryCache) Get(_ context.Context, id uint) ([]model.Message, bool, error) {
	m, ok := c.items[id]
	return m, ok, nil
}

func (c *memoryHistoryCache) Set(_ context.Context, id uint, messages []model.Message) error {
	c.items[id] = messages
	return nil
}

func (c *memoryHistoryCache) Invalidate(_ context.Context, id uint) error {
	delete(c.items, id)
	c.invalidated++
	return nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(model.All()...))
	return db
}

// testEnv wires every service against one in-memory database.
type testEnv struct {
	db          *gorm.DB
	store       *storage.LocalStore
	users       *repository.UserRepository
	auth        *AuthService
	datasets    *DatasetService
	risk        *RiskService
	xai         *XAIService
	chat        *ChatService
	admin       *AdminService
	llm         *fakeLLM
	explanation *memoryExplanationCache
	history     *memoryHistoryCache
}

type envOptions struct {
	jobs     Publisher
	messages Publisher
	maxBytes int64
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	db := newTestDB(t)
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	if opts.maxBytes == 0 {
		opts.maxBytes = 1 << 20
	}

	logger := zap.NewNop()
	userRepo := repository.NewUserRepository(db)
	datasetRepo := repository.NewDatasetRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	explanationRepo := repository.NewExplanationRepository(db)

	predictor := riskmodel.DefaultLinearModel()
	thresholds := riskmodel.Thresholds{Low: 0.33, High: 0.66}

	env := &testEnv{
		db:          db,
		store:       store,
		users:       userRepo,
		llm:         &fakeLLM{reply: "Take care of your sleep."},
		explanation: &memoryExplanationCache{items: map[uint]*xai.Explanation{}},
		history:     &memoryHistoryCache{items: map[uint][]model.Message{}},
	}
	env.auth = NewAuthService(userRepo, "test-secret", 60, []string{"Admin@PhyRisk.io"})
	env.datasets = NewDatasetService(datasetRepo, store, opts.maxBytes, logger)
	env.risk = NewRiskService(assessmentRepo, datasetRepo, env.datasets, predictor, thresholds, opts.jobs, logger)
	env.xai = NewXAIService(assessmentRepo, explanationRepo, xai.NewExplainer(predictor, 0), predictor.Features(), env.explanation, 0, logger)
	env.chat = NewChatService(
		repository.NewConversationRepository(db),
		repository.NewMessageRepository(db),
		env.xai,
		env.risk,
		opts.messages,
		env.history,
		env.llm,
		ai.Config{BaseURL: "http://llm.local/v1", APIKey: "sk-default-key", Model: "gpt-test"},
		20,
		logger,
	)
	env.admin = NewAdminService(userRepo, datasetRepo, assessmentRepo)
	return env
}

func (e *testEnv) register(t *testing.T, email string) *model.User {
	t.Helper()
	res, err := e.auth.Register(RegisterInput{Email: email, Password: "password123", FullName: "Test User"})
	require.NoError(t, err)
	return res.User
}

func (e *testEnv) uploadSurvey(t *testing.T, userID uint) (*model.Dataset, *model.DatasetVersion) {
	t.Helper()
	ds, err := e.datasets.Create(CreateDatasetInput{UserID: userID, Name: "Campus Survey"})
	require.NoError(t, err)
	v, err := e.datasets.Upload(UploadInput{UserID: userID, DatasetID: ds.ID, Filename: "survey.csv", Body: strings.NewReader(surveyCSV)})
	require.NoError(t, err)
	return ds, v
}
