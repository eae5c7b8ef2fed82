package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// ModelsConfig names the model per remote tool.
type ModelsConfig struct {
	Generate         string
	Recognize        string
	RemoveBackground string
}

// AIConfig defines the chat-completions endpoint and payload tuning.
type AIConfig struct {
	Endpoint            string
	APIKey              string
	Timeout             time.Duration
	Models              ModelsConfig
	GenerateMaxTokens   int
	GenerateTemperature float64
	VisionMaxTokens     int
}

// CompressConfig holds the compressor's reset values.
type CompressConfig struct {
	Quality float64
	MaxEdge int
}

// ServerConfig defines the HTTP surface and asset loading limits.
type ServerConfig struct {
	Port           string
	MaxUploadBytes int64
	FetchTimeout   time.Duration
	S3Bucket       string
}

// Config is the top-level configuration.
type Config struct {
	Logging  LoggingConfig
	Axiom    AxiomConfig
	AI       AIConfig
	Compress CompressConfig
	Server   ServerConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	// Logging defaults
	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/imagetools.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	// Axiom defaults
	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_imagetools",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	// AI defaults
	cfg.AI = AIConfig{
		Endpoint: getEnv("AI_API_URL", "https://ai.kaiho.cc/v1/chat/completions"),
		APIKey:   getEnv("AI_API_KEY", ""),
		Timeout:  parseDuration(getEnv("AI_REQUEST_TIMEOUT", "120s"), 120*time.Second),
		Models: ModelsConfig{
			Generate:         getEnv("AI_GENERATE_MODEL", "deepseek-r1"),
			Recognize:        getEnv("AI_RECOGNIZE_MODEL", "gpt-4o"),
			RemoveBackground: getEnv("AI_REMOVE_BG_MODEL", "gemini-2.5-flash-image"),
		},
		GenerateMaxTokens:   parseInt(getEnv("AI_GENERATE_MAX_TOKENS", "1688"), 1688),
		GenerateTemperature: parseFloat(getEnv("AI_TEMPERATURE", "0.5"), 0.5),
		VisionMaxTokens:     parseInt(getEnv("AI_VISION_MAX_TOKENS", "800"), 800),
	}

	// Compression defaults
	cfg.Compress = CompressConfig{
		Quality: parseFloat(getEnv("COMPRESS_QUALITY", "0.7"), 0.7),
		MaxEdge: parseInt(getEnv("COMPRESS_MAX_EDGE", "1920"), 1920),
	}
	if cfg.Compress.Quality <= 0 || cfg.Compress.Quality > 1 {
		cfg.Compress.Quality = 0.7
	}
	if cfg.Compress.MaxEdge <= 0 {
		cfg.Compress.MaxEdge = 1920
	}

	// Server defaults
	cfg.Server = ServerConfig{
		Port:           getEnv("PORT", "8080"),
		MaxUploadBytes: int64(parseInt(getEnv("MAX_UPLOAD_BYTES", "20971520"), 20<<20)),
		FetchTimeout:   parseDuration(getEnv("FETCH_TIMEOUT", "30s"), 30*time.Second),
		S3Bucket:       getEnv("AWS_S3_BUCKET", ""),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
