package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"phyrisk/internal/bootstrap"
	"phyrisk/internal/config"
	"phyrisk/internal/model"
	"phyrisk/internal/transport/http/response"
)

const surveyCSV = "age,sleep_hours,stress_level,anxiety_score,depression_score,social_support,physical_activity_hours,screen_time_hours\n" +
	"35,7,5,7,8,6,3,5\n" +
	"52,3,10,18,20,1,0,12\n" +
	"24,9,1,2,2,9,8,1\n"

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
	app    *bootstrap.App
}

func newTestServer(t *testing.T, llmURL string) *testServer {
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

	cfg := &config.Config{
		App:     config.AppConfig{Name: "PhyRISK", Env: "test", GinMode: gin.TestMode},
		Auth:    config.AuthConfig{JWTSecret: "test-secret", JWTExpireMinute: 60, AdminEmails: []string{"admin@phyrisk.io"}},
		LLM:     config.LLMConfig{BaseURL: llmURL, APIKey: "sk-test", Model: "gpt-test", MaxContextMessage: 10, TimeoutSeconds: 5},
		Model:   config.ModelConfig{LowThreshold: 0.33, HighThreshold: 0.66},
		Storage: config.StorageConfig{UploadDir: t.TempDir(), MaxUploadMB: 1},
		XAI:     config.XAIConfig{Permutations: 16, GlobalSampleLimit: 100},
	}
	app, err := bootstrap.Build(cfg, zap.NewNop(), db, nil, nil)
	require.NoError(t, err)

	return &testServer{t: t, router: NewRouter(app), app: app}
}

func (s *testServer) do(req *http.Request, token string) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func (s *testServer) json(method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, token)
}

func (s *testServer) upload(path, token, filename, content string) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(s.t, err)
	_, err = part.Write([]byte(content))
	require.NoError(s.t, err)
	require.NoError(s.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.do(req, token)
}

func (s *testServer) register(email string) string {
	s.t.Helper()
	w, env := s.json(http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email":     email,
		"password":  "password123",
		"full_name": "Test User",
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())

	var result struct {
		AccessToken string `json:"access_token"`
	}
	decode(s.t, env, &result)
	require.NotEmpty(s.t, result.AccessToken)
	return result.AccessToken
}

func decode(t *testing.T, env envelope, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func TestAuthEndpoints(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1/v1")
	token := s.register("Alice@Example.com")

	w, env := s.json(http.MethodPost, "/api/v1/auth/register", "", gin.H{"email": "alice@example.com", "password": "password123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.CodeEmailExists, env.Code)

	w, env = s.json(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "alice@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, response.CodeInvalidCredentials, env.Code)

	w, _ = s.json(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "ALICE@example.com", "password": "password123"})
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = s.json(http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var me model.User
	decode(t, env, &me)
	assert.Equal(t, "alice@example.com", me.Email)
	assert.Equal(t, model.RoleUser, me.Role)

	w, env = s.json(http.MethodGet, "/api/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, response.CodeUnauthorized, env.Code)

	w, _ = s.json(http.MethodGet, "/api/v1/datasets", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDatasetAssessmentAndExplanationFlow(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1/v1")
	token := s.register("bob@example.com")

	w, env := s.json(http.MethodPost, "/api/v1/datasets", token, gin.H{"name": "Campus Survey"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var ds model.Dataset
	decode(t, env, &ds)
	assert.Equal(t, "campus-survey", ds.Slug)

	uploadPath := fmt.Sprintf("/api/v1/datasets/%d/upload", ds.ID)
	w, env = s.upload(uploadPath, token, "notes.txt", "hello")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.CodeUnsupportedFormat, env.Code)

	w, env = s.upload(uploadPath, token, "survey.csv", surveyCSV)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var v model.DatasetVersion
	decode(t, env, &v)
	assert.Equal(t, 1, v.Version)
	assert.Equal(t, 3, v.RowCount)

	other := s.register("eve@example.com")
	w, env = s.json(http.MethodGet, fmt.Sprintf("/api/v1/datasets/%d", ds.ID), other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.CodeDatasetNotFound, env.Code)

	w, env = s.json(http.MethodPost, "/api/v1/risk/assessments", token, gin.H{"dataset_id": ds.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var a model.RiskAssessment
	decode(t, env, &a)
	assert.Equal(t, model.AssessmentCompleted, a.Status)
	assert.Equal(t, 3, a.RecordCount)
	assert.Equal(t, 1, a.HighCount)

	w, env = s.json(http.MethodGet, fmt.Sprintf("/api/v1/risk/assessments/%d/records?limit=10", a.ID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var records []model.RiskRecord
	decode(t, env, &records)
	require.Len(t, records, 3)
	assert.Equal(t, "High", records[1].Label)

	w, env = s.json(http.MethodGet, fmt.Sprintf("/api/v1/xai/local/%d", records[1].ID), token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var local struct {
		RecordID   uint              `json:"record_id"`
		Method     string            `json:"method"`
		BaseValue  float64           `json:"base_value"`
		Prediction float64           `json:"prediction"`
		Values     []model.SHAPValue `json:"values"`
	}
	decode(t, env, &local)
	assert.Equal(t, records[1].ID, local.RecordID)
	assert.Equal(t, "linear", local.Method)
	sum := local.BaseValue
	for _, sv := range local.Values {
		sum += sv.SHAP
	}
	assert.InDelta(t, local.Prediction, sum, 1e-9)

	w, _ = s.json(http.MethodGet, fmt.Sprintf("/api/v1/xai/local/%d", records[1].ID), other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = s.json(http.MethodGet, fmt.Sprintf("/api/v1/xai/global/%d", a.ID), token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var global struct {
		SampleSize  int `json:"sample_size"`
		Importances []struct {
			Feature     string  `json:"feature"`
			MeanAbsSHAP float64 `json:"mean_abs_shap"`
		} `json:"importances"`
	}
	decode(t, env, &global)
	assert.Equal(t, 3, global.SampleSize)
	assert.NotEmpty(t, global.Importances)

	w, env = s.json(http.MethodPost, "/api/v1/risk/predict", token, gin.H{"features": gin.H{"sleep_hours": 4, "stress_level": 9}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env = s.json(http.MethodPost, "/api/v1/risk/predict", token, gin.H{"features": gin.H{"unrelated": 1}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.CodeNoFeatureColumns, env.Code)
}

func TestAdminEndpoints(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1/v1")
	admin := s.register("admin@phyrisk.io")
	user := s.register("carol@example.com")

	w, env := s.json(http.MethodGet, "/api/v1/admin/metrics", user, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, response.CodeForbidden, env.Code)

	w, env = s.json(http.MethodGet, "/api/v1/admin/metrics", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var metrics struct {
		Users             int64            `json:"users"`
		LabelDistribution map[string]int64 `json:"label_distribution"`
	}
	decode(t, env, &metrics)
	assert.Equal(t, int64(2), metrics.Users)
	assert.Len(t, metrics.LabelDistribution, 3)

	w, env = s.json(http.MethodGet, "/api/v1/admin/users", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var users []model.User
	decode(t, env, &users)
	require.Len(t, users, 2)

	var carolID uint
	for _, u := range users {
		if u.Email == "carol@example.com" {
			carolID = u.ID
		}
	}
	require.NotZero(t, carolID)

	w, env = s.json(http.MethodPatch, fmt.Sprintf("/api/v1/admin/users/%d", carolID), admin, gin.H{"is_active": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env = s.json(http.MethodGet, "/api/v1/auth/me", user, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "deactivated users lose access immediately")
	assert.Equal(t, response.CodeUserInactive, env.Code)

	w, env = s.json(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "carol@example.com", "password": "password123"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, response.CodeUserInactive, env.Code)
}

func TestChatEndpoints(t *testing.T) {
	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Stream bool `json:"stream"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Stream {
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Rest \"}}]}\n\n")
			_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"well.\"}}]}\n\n")
			_, _ = io.WriteString(w, "data: [DONE]\n\n")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"Sleep is important."}}]}`)
	}))
	defer llm.Close()

	s := newTestServer(t, llm.URL+"/v1")
	token := s.register("dana@example.com")

	w, env := s.json(http.MethodPost, "/api/v1/chat/conversations", token, gin.H{})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var conv model.Conversation
	decode(t, env, &conv)
	assert.Equal(t, "New Chat", conv.Title)

	w, env = s.json(http.MethodPost, "/api/v1/chat/message", token, gin.H{"conversation_id": conv.ID, "content": "How do I sleep better?"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = s.json(http.MethodPost, "/api/v1/chat/stream", token, gin.H{"conversation_id": conv.ID, "content": "Anything else?"})
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "data: Rest \n\n")
	assert.Contains(t, body, "event: done\ndata: Rest well.\n\n")

	w, env = s.json(http.MethodGet, fmt.Sprintf("/api/v1/chat/history?conversation_id=%d", conv.ID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []model.Message
	decode(t, env, &history)
	require.Len(t, history, 4)
	assert.Equal(t, "Sleep is important.", history[1].Content)
	assert.Equal(t, "Rest well.", history[3].Content)

	w, env = s.json(http.MethodGet, "/api/v1/chat/history?conversation_id=abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.json(http.MethodDelete, fmt.Sprintf("/api/v1/chat/conversations/%d", conv.ID), token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, env = s.json(http.MethodGet, fmt.Sprintf("/api/v1/chat/history?conversation_id=%d", conv.ID), token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.CodeConversationNotFound, env.Code)

	w, env = s.json(http.MethodPost, "/api/v1/chat/stream", token, gin.H{"conversation_id": conv.ID, "content": "Still there?"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.CodeConversationNotFound, env.Code)
	assert.NotContains(t, w.Header().Get("Content-Type"), "text/event-stream")
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1/v1")
	w, _ := s.json(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Dependencies map[string]struct {
			OK       bool `json:"ok"`
			Disabled bool `json:"disabled"`
		} `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Dependencies["database"].OK)
	assert.True(t, body.Dependencies["model"].OK)
	assert.True(t, body.Dependencies["redis"].Disabled)
	assert.True(t, body.Dependencies["rabbitmq"].Disabled)
}
