package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig      `toml:"app"`
	Auth     AuthConfig     `toml:"auth"`
	Database DatabaseConfig `toml:"database"`
	LLM      LLMConfig      `toml:"llm"`
	Redis    RedisConfig    `toml:"redis"`
	RabbitMQ RabbitMQConfig `toml:"rabbitmq"`
	Model    ModelConfig    `toml:"model"`
	Storage  StorageConfig  `toml:"storage"`
	XAI      XAIConfig      `toml:"xai"`
}

type AppConfig struct {
	Name    string `toml:"name"`
	Env     string `toml:"env"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	GinMode string `toml:"gin_mode"`
}

type DatabaseConfig struct {
	// URL selects the driver by scheme: sqlite:///path, postgres://..., mysql://...
	URL string `toml:"url"`
}

// RedisConfig leaves caching disabled when Addr is empty.
type RedisConfig struct {
	Addr                   string `toml:"addr"`
	Password               string `toml:"password"`
	DB                     int    `toml:"db"`
	HistoryTTLSeconds      int    `toml:"history_ttl_seconds"`
	HistoryDirtyTTLSeconds int    `toml:"history_dirty_ttl_seconds"`
	ExplanationTTLSeconds  int    `toml:"explanation_ttl_seconds"`
}

// RabbitMQConfig leaves async work disabled when URL is empty.
type RabbitMQConfig struct {
	URL                 string `toml:"url"`
	MessagePersistQueue string `toml:"message_persist_queue"`
	AssessmentQueue     string `toml:"assessment_queue"`
}

type AuthConfig struct {
	JWTSecret       string   `toml:"jwt_secret"`
	JWTExpireMinute int      `toml:"jwt_expire_minute"`
	AdminEmails     []string `toml:"admin_emails"`
}

type LLMConfig struct {
	BaseURL           string `toml:"base_url"`
	APIKey            string `toml:"api_key"`
	Model             string `toml:"model"`
	MaxContextMessage int    `toml:"max_context_message"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
}

type ModelConfig struct {
	// Path to a linear model artifact (.json) or an ONNX model (.onnx).
	// Empty uses the built-in linear model.
	Path              string  `toml:"path"`
	ONNXSharedLibPath string  `toml:"onnx_shared_lib_path"`
	LowThreshold      float64 `toml:"low_threshold"`
	HighThreshold     float64 `toml:"high_threshold"`
}

type StorageConfig struct {
	UploadDir   string `toml:"upload_dir"`
	MaxUploadMB int    `toml:"max_upload_mb"`
}

type XAIConfig struct {
	Permutations      int `toml:"permutations"`
	GlobalSampleLimit int `toml:"global_sample_limit"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(getEnv("ENV_FILE", ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file failed: %w", err)
	}

	cfg := defaultConfig()

	configPath := getEnv("CONFIG_FILE", "configs/config.toml")
	if _, err := os.Stat(configPath); err == nil {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("decode config file failed: %w", err)
		}
	}

	overrideByEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.App.Host, c.App.Port)
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Env, "prod") || strings.EqualFold(c.App.Env, "production")
}

func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Storage.MaxUploadMB) << 20
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.URL) == "" {
		return errors.New("database url is required")
	}
	if c.Model.LowThreshold <= 0 || c.Model.HighThreshold >= 1 || c.Model.LowThreshold >= c.Model.HighThreshold {
		return fmt.Errorf("invalid risk thresholds: low=%v high=%v", c.Model.LowThreshold, c.Model.HighThreshold)
	}
	if c.IsProduction() && c.Auth.JWTSecret == defaultJWTSecret {
		return errors.New("jwt secret must be set in production")
	}
	return nil
}

const defaultJWTSecret = "CHANGE_ME"

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:    "PhyRISK",
			Env:     "dev",
			Host:    "0.0.0.0",
			Port:    8000,
			GinMode: "debug",
		},
		Auth: AuthConfig{
			JWTSecret:       defaultJWTSecret,
			JWTExpireMinute: 60,
		},
		Database: DatabaseConfig{
			URL: "sqlite:///./dev.db",
		},
		LLM: LLMConfig{
			BaseURL:           "https://api.openai.com/v1",
			Model:             "gpt-4o-mini",
			MaxContextMessage: 20,
			TimeoutSeconds:    90,
		},
		Redis: RedisConfig{
			HistoryTTLSeconds:      60,
			HistoryDirtyTTLSeconds: 5,
			ExplanationTTLSeconds:  3600,
		},
		RabbitMQ: RabbitMQConfig{
			MessagePersistQueue: "phyrisk.chat.message.persist",
			AssessmentQueue:     "phyrisk.risk.assessment.run",
		},
		Model: ModelConfig{
			LowThreshold:  0.33,
			HighThreshold: 0.66,
		},
		Storage: StorageConfig{
			UploadDir:   "data/uploads",
			MaxUploadMB: 20,
		},
		XAI: XAIConfig{
			Permutations:      64,
			GlobalSampleLimit: 500,
		},
	}
}

func overrideByEnv(cfg *Config) {
	cfg.App.Name = getEnv("APP_NAME", cfg.App.Name)
	cfg.App.Env = getEnv("APP_ENV", cfg.App.Env)
	cfg.App.Host = getEnv("APP_HOST", cfg.App.Host)
	cfg.App.Port = getEnvAsInt("APP_PORT", cfg.App.Port)
	cfg.App.GinMode = getEnv("GIN_MODE", cfg.App.GinMode)

	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.JWTSecret = getEnv("JWT_SECRET_KEY", cfg.Auth.JWTSecret)
	cfg.Auth.JWTExpireMinute = getEnvAsInt("JWT_EXPIRE_MINUTE", cfg.Auth.JWTExpireMinute)
	cfg.Auth.JWTExpireMinute = getEnvAsInt("ACCESS_TOKEN_EXPIRE_MINUTES", cfg.Auth.JWTExpireMinute)
	cfg.Auth.AdminEmails = getEnvAsList("ADMIN_EMAILS", cfg.Auth.AdminEmails)

	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKey = getEnv("OPENAI_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.APIKey = getEnv("LLM_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.MaxContextMessage = getEnvAsInt("LLM_MAX_CONTEXT_MESSAGE", cfg.LLM.MaxContextMessage)
	cfg.LLM.TimeoutSeconds = getEnvAsInt("LLM_TIMEOUT_SECONDS", cfg.LLM.TimeoutSeconds)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.HistoryTTLSeconds = getEnvAsInt("REDIS_HISTORY_TTL_SECONDS", cfg.Redis.HistoryTTLSeconds)
	cfg.Redis.HistoryDirtyTTLSeconds = getEnvAsInt("REDIS_HISTORY_DIRTY_TTL_SECONDS", cfg.Redis.HistoryDirtyTTLSeconds)
	cfg.Redis.ExplanationTTLSeconds = getEnvAsInt("REDIS_EXPLANATION_TTL_SECONDS", cfg.Redis.ExplanationTTLSeconds)

	cfg.RabbitMQ.URL = getEnv("RABBITMQ_URL", cfg.RabbitMQ.URL)
	cfg.RabbitMQ.MessagePersistQueue = getEnv("RABBITMQ_MESSAGE_PERSIST_QUEUE", cfg.RabbitMQ.MessagePersistQueue)
	cfg.RabbitMQ.AssessmentQueue = getEnv("RABBITMQ_ASSESSMENT_QUEUE", cfg.RabbitMQ.AssessmentQueue)

	cfg.Model.Path = getEnv("MODEL_PATH", cfg.Model.Path)
	cfg.Model.ONNXSharedLibPath = getEnv("MODEL_ONNX_LIB", cfg.Model.ONNXSharedLibPath)
	cfg.Model.LowThreshold = getEnvAsFloat("MODEL_LOW_THRESHOLD", cfg.Model.LowThreshold)
	cfg.Model.HighThreshold = getEnvAsFloat("MODEL_HIGH_THRESHOLD", cfg.Model.HighThreshold)

	cfg.Storage.UploadDir = getEnv("STORAGE_UPLOAD_DIR", cfg.Storage.UploadDir)
	cfg.Storage.MaxUploadMB = getEnvAsInt("STORAGE_MAX_UPLOAD_MB", cfg.Storage.MaxUploadMB)

	cfg.XAI.Permutations = getEnvAsInt("XAI_PERMUTATIONS", cfg.XAI.Permutations)
	cfg.XAI.GlobalSampleLimit = getEnvAsInt("XAI_GLOBAL_SAMPLE_LIMIT", cfg.XAI.GlobalSampleLimit)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
