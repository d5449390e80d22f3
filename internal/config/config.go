package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	LogLevel string

	// Database
	DatabaseFile string

	// S3
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3BucketName      string
	S3UseSSL          bool

	// Notebook service
	NotebookBaseURL      string
	NotebookClientID     string
	NotebookClientSecret string
	NotebookTimeout      time.Duration

	// Auth
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration

	// Upload limits
	MaxFileSize      int64
	AllowedFileTypes []string
}

func Load() (*Config, error) {
	// .env is optional; real deployments set env vars directly
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		DatabaseFile:         getEnv("DATABASE_FILE", "data/knowledgebase.db"),
		S3Endpoint:           getEnv("S3_ENDPOINT", "localhost:9000"),
		S3AccessKeyID:        getEnv("S3_ACCESS_KEY_ID", "minioadmin"),
		S3SecretAccessKey:    getEnv("S3_SECRET_ACCESS_KEY", "minioadmin"),
		S3BucketName:         getEnv("S3_BUCKET_NAME", "documents"),
		S3UseSSL:             getEnv("S3_USE_SSL", "false") == "true",
		NotebookBaseURL:      getEnv("NOTEBOOK_BASE_URL", "http://localhost:9500/v1"),
		NotebookClientID:     getEnv("NOTEBOOK_CLIENT_ID", ""),
		NotebookClientSecret: getEnv("NOTEBOOK_CLIENT_SECRET", ""),
		NotebookTimeout:      getDurationEnv("NOTEBOOK_TIMEOUT", 30*time.Second),
		JWTSecret:            getEnv("JWT_SECRET", ""),
		AccessTokenExpiry:    getDurationEnv("ACCESS_TOKEN_EXPIRY", 30*time.Minute),
		RefreshTokenExpiry:   getDurationEnv("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
		MaxFileSize:          getInt64Env("MAX_FILE_SIZE", 50<<20),
		AllowedFileTypes:     getListEnv("ALLOWED_FILE_TYPES", []string{"pdf", "docx", "txt", "html"}),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.NotebookClientID == "" || cfg.NotebookClientSecret == "" {
		return nil, fmt.Errorf("NOTEBOOK_CLIENT_ID and NOTEBOOK_CLIENT_SECRET are required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
