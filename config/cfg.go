package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type AppConfig struct {
	Port           string         `json:"port"`
	Database       DatabaseConfig `json:"database"`
	AssemblyAI     AssemblyAIConfig
	Gemini         GeminiConfig
	Storage        StorageConfig
	Pipeline       PipelineConfig
	MaxUploadBytes int64 `json:"max_upload_bytes"`
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type AssemblyAIConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

type GeminiConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
}

type StorageConfig struct {
	UploadDir string `json:"upload_dir"`
	S3Bucket  string `json:"s3_bucket"`
	S3Region  string `json:"s3_region"`
}

type PipelineConfig struct {
	MaxConcurrentRuns int64         `json:"max_concurrent_runs"`
	PollInterval      time.Duration `json:"poll_interval"`
	PollTimeout       time.Duration `json:"poll_timeout"`
}

// Load builds the application config from environment variables. Only the
// provider API keys and database credentials are required; everything else
// has a sensible default.
func Load() (AppConfig, error) {
	cfg := AppConfig{
		Port: envOrDefault("PORT", "8080"),
		Database: DatabaseConfig{
			Host:     envOrDefault("DB_HOST", "localhost"),
			Port:     envOrDefault("DB_PORT", "3306"),
			User:     os.Getenv("DB_USERNAME"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     envOrDefault("DB_DATABASE", "lecture_notes"),
		},
		AssemblyAI: AssemblyAIConfig{
			APIKey:  os.Getenv("ASSEMBLYAI_API_KEY"),
			BaseURL: envOrDefault("ASSEMBLYAI_BASE_URL", "https://api.assemblyai.com/v2"),
		},
		Gemini: GeminiConfig{
			APIKey:  os.Getenv("GEMINI_API_KEY"),
			BaseURL: envOrDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
			Model:   envOrDefault("GEMINI_MODEL", "gemini-flash-latest"),
		},
		Storage: StorageConfig{
			UploadDir: envOrDefault("UPLOAD_DIR", "uploads"),
			S3Bucket:  os.Getenv("AWS_BUCKET"),
			S3Region:  envOrDefault("AWS_REGION", "eu-west-2"),
		},
	}

	maxRuns, err := parseIntEnv("MAX_CONCURRENT_RUNS", 4)
	if err != nil {
		return AppConfig{}, fmt.Errorf("parse MAX_CONCURRENT_RUNS: %w", err)
	}
	cfg.Pipeline.MaxConcurrentRuns = maxRuns

	pollSeconds, err := parseIntEnv("TRANSCRIPT_POLL_INTERVAL_SECONDS", 5)
	if err != nil {
		return AppConfig{}, fmt.Errorf("parse TRANSCRIPT_POLL_INTERVAL_SECONDS: %w", err)
	}
	cfg.Pipeline.PollInterval = time.Duration(pollSeconds) * time.Second

	pollTimeoutMinutes, err := parseIntEnv("TRANSCRIPT_POLL_TIMEOUT_MINUTES", 30)
	if err != nil {
		return AppConfig{}, fmt.Errorf("parse TRANSCRIPT_POLL_TIMEOUT_MINUTES: %w", err)
	}
	cfg.Pipeline.PollTimeout = time.Duration(pollTimeoutMinutes) * time.Minute

	maxUploadMB, err := parseIntEnv("MAX_UPLOAD_MB", 100)
	if err != nil {
		return AppConfig{}, fmt.Errorf("parse MAX_UPLOAD_MB: %w", err)
	}
	cfg.MaxUploadBytes = maxUploadMB * 1024 * 1024

	return cfg, nil
}

func (c AppConfig) DSN() string {
	return c.Database.User + ":" + c.Database.Password + "@tcp(" + c.Database.Host + ":" + c.Database.Port + ")/" + c.Database.Name + "?parseTime=false"
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func parseIntEnv(key string, fallback int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseInt(value, 10, 64)
}
