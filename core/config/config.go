package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	OTel       OTelConfig
	PlannerLLM LLMConfig
	Renderer   RendererConfig
	Fetcher    FetcherConfig
	Submission SubmissionConfig
	Queue      QueueConfig
	Env        string
	Port       string
	AppSecret  string
	LogLevel   string
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
	Environment    string
	SampleRatio    float64
}

type LLMConfig struct {
	Provider        string // "openai" or "anthropic"
	APIKey          string
	BaseURL         string // Optional: for custom endpoints
	Model           string
	MaxTokens       int
	ReasoningEffort string // Optional: "low", "medium", "high" for reasoning models
	Timeout         time.Duration
}

type RendererConfig struct {
	Mode       string // "chrome" or "http"
	Timeout    time.Duration
	ChromePath string // Optional: explicit browser binary
}

type FetcherConfig struct {
	TmpDir      string
	Timeout     time.Duration
	MaxFileSize int64
}

type SubmissionConfig struct {
	MaxAttempts           int
	MaxDuration           time.Duration
	MaxBodyBytes          int
	PromptResourceChars   int
	Timeout               time.Duration
	MaxRefinementsPerPage int // 0 = bounded only by MaxAttempts/MaxDuration
}

type QueueConfig struct {
	Backend          string // "local" or "redis"
	Workers          int
	Size             int
	RedisURL         string
	RedisStream      string
	RedisGroup       string
	RedisConsumer    string
	RedisDLQStream   string
	MaxDeliveries    int
	ReclaimMinIdle   time.Duration
	ReclaimInterval  time.Duration
	TraceHeaderName  string
	ShutdownDeadline time.Duration
}

type ServiceType string

const (
	ServiceTypeServer ServiceType = "server"
	ServiceTypeSolve  ServiceType = "solve"
)

const (
	RendererModeChrome = "chrome"
	RendererModeHTTP   = "http"

	QueueBackendLocal = "local"
	QueueBackendRedis = "redis"
)

// Load loads configuration from environment variables.
// In development, it loads from service-specific .env files:
//   - .env.server for the API server
//   - .env.solve for the one-shot CLI
//
// Falls back to .env if service-specific file doesn't exist.
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("QUIZ_ENV", "development") == "development" {
		envFile := fmt.Sprintf(".env.%s", serviceType)
		if err := godotenv.Load(envFile); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	env := getEnv("QUIZ_ENV", "development")
	cfg := Config{
		Env:       env,
		Port:      getEnv("PORT", "8080"),
		AppSecret: getEnv("APP_SECRET", ""),
		LogLevel:  getEnv("LOG_LEVEL", ""),
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "quizsolver"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			Environment:    env,
			SampleRatio:    getEnvFloat("OTEL_TRACES_SAMPLE_RATIO", 1.0),
		},
		PlannerLLM: LLMConfig{
			Provider:        getEnv("PLANNER_LLM_PROVIDER", "openai"),
			APIKey:          getEnv("PLANNER_LLM_API_KEY", os.Getenv("OPENAI_API_KEY")),
			BaseURL:         getEnv("PLANNER_LLM_BASE_URL", ""),
			Model:           getEnv("PLANNER_LLM_MODEL", "gpt-4o-mini"),
			MaxTokens:       getEnvInt("PLANNER_LLM_MAX_TOKENS", 800),
			ReasoningEffort: getEnv("PLANNER_LLM_REASONING_EFFORT", ""),
			Timeout:         getEnvDuration("PLANNER_LLM_TIMEOUT", 40*time.Second),
		},
		Renderer: RendererConfig{
			Mode:       getEnv("RENDERER_MODE", RendererModeChrome),
			Timeout:    getEnvDuration("RENDERER_TIMEOUT", 15*time.Second),
			ChromePath: getEnv("RENDERER_CHROME_PATH", ""),
		},
		Fetcher: FetcherConfig{
			TmpDir:      getEnv("FETCHER_TMP_DIR", os.TempDir()+"/llm_quiz"),
			Timeout:     getEnvDuration("FETCHER_TIMEOUT", 30*time.Second),
			MaxFileSize: int64(getEnvInt("FETCHER_MAX_FILE_SIZE", 50<<20)),
		},
		Submission: SubmissionConfig{
			MaxAttempts:           getEnvInt("SUBMISSION_MAX_ATTEMPTS", 10),
			MaxDuration:           getEnvDuration("SUBMISSION_MAX_DURATION", 180*time.Second),
			MaxBodyBytes:          getEnvInt("SUBMISSION_MAX_BODY_BYTES", 1_000_000),
			PromptResourceChars:   getEnvInt("PROMPT_RESOURCE_CHARS", 15000),
			Timeout:               getEnvDuration("SUBMISSION_TIMEOUT", 40*time.Second),
			MaxRefinementsPerPage: getEnvInt("SUBMISSION_MAX_REFINEMENTS_PER_PAGE", 0),
		},
		Queue: QueueConfig{
			Backend:          getEnv("QUEUE_BACKEND", QueueBackendLocal),
			Workers:          getEnvInt("QUEUE_WORKERS", 4),
			Size:             getEnvInt("QUEUE_SIZE", 256),
			RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
			RedisStream:      getEnv("REDIS_STREAM", "quiz_jobs"),
			RedisGroup:       getEnv("REDIS_CONSUMER_GROUP", "quiz_group"),
			RedisConsumer:    getEnv("REDIS_CONSUMER_NAME", "quiz-server"),
			RedisDLQStream:   getEnv("REDIS_DLQ_STREAM", "quiz_jobs_dlq"),
			MaxDeliveries:    getEnvInt("QUEUE_MAX_DELIVERIES", 3),
			ReclaimMinIdle:   getEnvDuration("QUEUE_RECLAIM_MIN_IDLE", 5*time.Minute),
			ReclaimInterval:  getEnvDuration("QUEUE_RECLAIM_INTERVAL", time.Minute),
			TraceHeaderName:  getEnv("TRACE_HEADER_NAME", "X-Trace-Id"),
			ShutdownDeadline: getEnvDuration("QUEUE_SHUTDOWN_DEADLINE", 10*time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	switch c.Renderer.Mode {
	case RendererModeChrome, RendererModeHTTP:
	default:
		return fmt.Errorf("RENDERER_MODE must be %q or %q, got %q", RendererModeChrome, RendererModeHTTP, c.Renderer.Mode)
	}

	switch c.Queue.Backend {
	case QueueBackendLocal, QueueBackendRedis:
	default:
		return fmt.Errorf("QUEUE_BACKEND must be %q or %q, got %q", QueueBackendLocal, QueueBackendRedis, c.Queue.Backend)
	}

	if c.Queue.Workers <= 0 {
		return fmt.Errorf("QUEUE_WORKERS must be positive")
	}
	if c.Submission.MaxAttempts <= 0 {
		return fmt.Errorf("SUBMISSION_MAX_ATTEMPTS must be positive")
	}
	if c.Submission.MaxBodyBytes <= 0 {
		return fmt.Errorf("SUBMISSION_MAX_BODY_BYTES must be positive")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c LLMConfig) Enabled() bool {
	return c.APIKey != "" && (c.Provider == "openai" || c.Provider == "anthropic")
}

func (c QueueConfig) UsesRedis() bool {
	return c.Backend == QueueBackendRedis
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("40s") or bare seconds ("40").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}
