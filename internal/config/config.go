package config

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	APIPort   string `yaml:"api_port"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	StoragePath    string `yaml:"storage_path"`
	StagingPath    string `yaml:"staging_path"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`

	OllamaURL            string `yaml:"ollama_url"`
	OllamaGenModel       string `yaml:"ollama_gen_model"`
	OllamaEmbedModel     string `yaml:"ollama_embed_model"`
	OllamaTimeoutSeconds int    `yaml:"ollama_timeout_seconds"`

	EmbedBatchSize      int `yaml:"embed_batch_size"`
	SegmentChunkWords   int `yaml:"segment_chunk_words"`
	SegmentMaxPages     int `yaml:"segment_max_pages"`
	RAGTopK             int `yaml:"rag_top_k"`
	ExcerptChars        int `yaml:"excerpt_chars"`
	DocumentConcurrency int `yaml:"document_concurrency"`
	AskTimeoutSeconds   int `yaml:"ask_timeout_seconds"`

	APIRateLimitRPS       float64 `yaml:"api_rate_limit_rps"`
	APIRateLimitBurst     int     `yaml:"api_rate_limit_burst"`
	APIMaxInFlight        int     `yaml:"api_max_in_flight"`
	APIBackpressureWaitMS int     `yaml:"api_backpressure_wait_ms"`

	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`

	RetryMaxAttempts       int  `yaml:"retry_max_attempts"`
	RetryInitialBackoffMS  int  `yaml:"retry_initial_backoff_ms"`
	RetryMaxBackoffMS      int  `yaml:"retry_max_backoff_ms"`
	BreakerEnabled         bool `yaml:"breaker_enabled"`
	BreakerOpenTimeoutSecs int  `yaml:"breaker_open_timeout_seconds"`

	SweepMaxAgeHours int `yaml:"sweep_max_age_hours"`
}

func Defaults() Config {
	return Config{
		APIPort:   "8080",
		LogLevel:  "info",
		LogFormat: "json",

		StoragePath:    "./data/uploads",
		MaxUploadBytes: 100 << 20,

		OllamaURL:            "http://localhost:11434",
		OllamaGenModel:       "llama3.1:8b",
		OllamaEmbedModel:     "nomic-embed-text",
		OllamaTimeoutSeconds: 120,

		EmbedBatchSize:      8,
		SegmentChunkWords:   300,
		SegmentMaxPages:     400,
		RAGTopK:             5,
		ExcerptChars:        1500,
		DocumentConcurrency: 1,
		AskTimeoutSeconds:   300,

		APIBackpressureWaitMS: 250,

		NATSSubject: "sessions.events",

		RetryMaxAttempts:       3,
		RetryInitialBackoffMS:  200,
		RetryMaxBackoffMS:      2000,
		BreakerEnabled:         true,
		BreakerOpenTimeoutSecs: 30,

		SweepMaxAgeHours: 72,
	}
}

// Load layers configuration: defaults, then the YAML file named by
// CONFIG_FILE, then environment variables (a local .env file is loaded
// first and never overrides variables that are already set).
func Load() Config {
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			slog.Warn("config_file_ignored", "path", path, "error", err)
		}
	}

	return Config{
		APIPort:   mustEnv("API_PORT", cfg.APIPort),
		LogLevel:  mustEnv("LOG_LEVEL", cfg.LogLevel),
		LogFormat: mustEnv("LOG_FORMAT", cfg.LogFormat),

		StoragePath:    mustEnv("STORAGE_PATH", cfg.StoragePath),
		StagingPath:    mustEnv("STAGING_PATH", cfg.StagingPath),
		MaxUploadBytes: mustEnvInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes),

		OllamaURL:            mustEnv("OLLAMA_URL", cfg.OllamaURL),
		OllamaGenModel:       mustEnv("OLLAMA_GEN_MODEL", cfg.OllamaGenModel),
		OllamaEmbedModel:     mustEnv("OLLAMA_EMBED_MODEL", cfg.OllamaEmbedModel),
		OllamaTimeoutSeconds: mustEnvInt("OLLAMA_TIMEOUT_SECONDS", cfg.OllamaTimeoutSeconds),

		EmbedBatchSize:      mustEnvInt("EMBED_BATCH_SIZE", cfg.EmbedBatchSize),
		SegmentChunkWords:   mustEnvInt("SEGMENT_CHUNK_WORDS", cfg.SegmentChunkWords),
		SegmentMaxPages:     mustEnvInt("SEGMENT_MAX_PAGES", cfg.SegmentMaxPages),
		RAGTopK:             mustEnvInt("RAG_TOP_K", cfg.RAGTopK),
		ExcerptChars:        mustEnvInt("EXCERPT_CHARS", cfg.ExcerptChars),
		DocumentConcurrency: mustEnvInt("DOCUMENT_CONCURRENCY", cfg.DocumentConcurrency),
		AskTimeoutSeconds:   mustEnvInt("ASK_TIMEOUT_SECONDS", cfg.AskTimeoutSeconds),

		APIRateLimitRPS:       mustEnvFloat("API_RATE_LIMIT_RPS", cfg.APIRateLimitRPS),
		APIRateLimitBurst:     mustEnvInt("API_RATE_LIMIT_BURST", cfg.APIRateLimitBurst),
		APIMaxInFlight:        mustEnvInt("API_MAX_IN_FLIGHT", cfg.APIMaxInFlight),
		APIBackpressureWaitMS: mustEnvInt("API_BACKPRESSURE_WAIT_MS", cfg.APIBackpressureWaitMS),

		NATSURL:     mustEnv("NATS_URL", cfg.NATSURL),
		NATSSubject: mustEnv("NATS_SUBJECT", cfg.NATSSubject),

		RetryMaxAttempts:       mustEnvInt("RESILIENCE_RETRY_MAX_ATTEMPTS", cfg.RetryMaxAttempts),
		RetryInitialBackoffMS:  mustEnvInt("RESILIENCE_RETRY_INITIAL_BACKOFF_MS", cfg.RetryInitialBackoffMS),
		RetryMaxBackoffMS:      mustEnvInt("RESILIENCE_RETRY_MAX_BACKOFF_MS", cfg.RetryMaxBackoffMS),
		BreakerEnabled:         mustEnvBool("RESILIENCE_BREAKER_ENABLED", cfg.BreakerEnabled),
		BreakerOpenTimeoutSecs: mustEnvInt("RESILIENCE_BREAKER_OPEN_TIMEOUT_SECONDS", cfg.BreakerOpenTimeoutSecs),

		SweepMaxAgeHours: mustEnvInt("SWEEP_MAX_AGE_HOURS", cfg.SweepMaxAgeHours),
	}
}

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(raw, cfg)
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
