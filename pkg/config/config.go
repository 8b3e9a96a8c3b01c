package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env       string // development, staging, production
	Port      string
	AdminPort string // metrics, health and pprof

	// Database
	DBDriver          string // postgres or mysql
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime int // minutes
	DBConnMaxIdleTime int // minutes
	DBReadTimeout     time.Duration
	DBWriteTimeout    time.Duration

	// Model provider
	ModelProvider        string // openai or gemini
	OpenAIAPIKey         string
	OpenAIModel          string
	OpenAIBaseURL        string
	OpenAIRequestTimeout time.Duration
	GeminiAPIKey         string
	GeminiModel          string

	// Retry and pacing against the model provider
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	TargetRPM   int
	TargetTPM   int

	// Analysis batching
	AnalyzeDefaultLimit    int
	AnalyzeMaxLimit        int
	AnalyzeBatchSize       int
	AnalyzeMaxBatches      int // 0 = no cap per run
	AnalyzeProviderRatio   float64
	AnalyzeMaxReviewLength int
	AnalyzeMaxOutputTokens int
	AnalyzePostBatchDelay  time.Duration
	AnalyzeClaimTTL        time.Duration

	// Auth
	SupabaseURL           string
	SupabaseAnonKey       string
	AuthServiceTokensFile string
	AuthCacheTTL          time.Duration

	// Google Places
	GoogleMapsAPIKey string
	PlacesCountry    string
	PlacesLanguage   string

	// Optional infrastructure
	RedisURL     string
	AMQPURL      string
	AMQPExchange string

	// Monitoring and logging
	LogLevel          string
	LogFormat         string // "json" or "text"
	LogFile           string
	EnableFileLogging bool
	MetricsEnabled    bool
	MetricsPath       string
	ProfilingEnabled  bool

	CORSAllowOrigin string
}

func Load() *Config {
	env := strings.ToLower(getEnv("ENV", "development"))
	devLike := env == "development" || env == "staging"

	return &Config{
		Env:       env,
		Port:      getEnv("PORT", "8080"),
		AdminPort: getEnv("ADMIN_PORT", "6060"),

		DBDriver:          strings.ToLower(getEnv("DB_DRIVER", "postgres")),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		DBMaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 20),
		DBMaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: getInt("DB_CONN_MAX_LIFETIME_MINUTES", 10),
		DBConnMaxIdleTime: getInt("DB_CONN_MAX_IDLE_TIME_MINUTES", 5),
		DBReadTimeout:     getDuration("DB_READ_TIMEOUT", 8*time.Second),
		DBWriteTimeout:    getDuration("DB_WRITE_TIMEOUT", 6*time.Second),

		ModelProvider:        strings.ToLower(getEnv("ANALYZE_MODEL_PROVIDER", "openai")),
		OpenAIAPIKey:         getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:          getEnv("OPENAI_MODEL", "gpt-4o-mini-2024-07-18"),
		OpenAIBaseURL:        getEnv("OPENAI_BASE_URL", ""),
		OpenAIRequestTimeout: time.Duration(getInt("OPENAI_REQUEST_TIMEOUT_SECONDS", 90)) * time.Second,
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiModel:          getEnv("GEMINI_MODEL", "gemini-2.0-flash"),

		MaxRetries:  getInt("OPENAI_MAX_RETRIES", 5),
		BackoffBase: getMillis("OPENAI_BACKOFF_BASE_MS", 500),
		BackoffMax:  getMillis("OPENAI_BACKOFF_MAX_MS", 8000),
		TargetRPM:   getInt("OPENAI_TARGET_RPM", 4000),
		TargetTPM:   getInt("OPENAI_TARGET_TPM", 1600000),

		AnalyzeDefaultLimit:    getInt("ANALYZE_DEFAULT_LIMIT", 10),
		AnalyzeMaxLimit:        getInt("ANALYZE_MAX_LIMIT", 500),
		AnalyzeBatchSize:       getInt("ANALYZE_BATCH_SIZE", 5),
		AnalyzeMaxBatches:      getInt("ANALYZE_MAX_BATCHES", 0),
		AnalyzeProviderRatio:   getFloat("ANALYZE_PROVIDER_RATIO", 0.5),
		AnalyzeMaxReviewLength: getInt("ANALYZE_MAX_REVIEW_LENGTH", 1200),
		AnalyzeMaxOutputTokens: getInt("ANALYZE_MAX_OUTPUT_TOKENS", 4096),
		AnalyzePostBatchDelay:  getMillis("ANALYZE_POST_BATCH_DELAY_MS", 50),
		AnalyzeClaimTTL:        getDuration("ANALYZE_CLAIM_TTL", 10*time.Minute),

		SupabaseURL:           strings.TrimRight(getEnv("SUPABASE_URL", ""), "/"),
		SupabaseAnonKey:       getEnv("SUPABASE_ANON_KEY", ""),
		AuthServiceTokensFile: getEnv("AUTH_SERVICE_TOKENS_FILE", ""),
		AuthCacheTTL:          getDuration("AUTH_CACHE_TTL", 5*time.Minute),

		GoogleMapsAPIKey: getEnv("GOOGLE_MAPS_API_KEY", ""),
		PlacesCountry:    getEnv("PLACES_COUNTRY", "ar"),
		PlacesLanguage:   getEnv("PLACES_LANGUAGE", "es-AR"),

		RedisURL:     getEnv("REDIS_URL", ""),
		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "review-insights.events"),

		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		LogFile:           getEnv("LOG_FILE", "/var/log/review-insights/app.log"),
		EnableFileLogging: getBool("ENABLE_FILE_LOGGING", false),
		MetricsEnabled:    getBool("METRICS_ENABLED", true),
		MetricsPath:       getEnv("METRICS_PATH", "/metrics"),
		ProfilingEnabled:  getBool("PROFILING_ENABLED", devLike),

		CORSAllowOrigin: getEnv("CORS_ALLOW_ORIGIN", "*"),
	}
}

// ModelAPIKey returns the key for the configured model provider.
func (c *Config) ModelAPIKey() string {
	if c.ModelProvider == "gemini" {
		return c.GeminiAPIKey
	}
	return c.OpenAIAPIKey
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(getEnv(key, "")))
	if err != nil {
		return def
	}
	return v
}

func getFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(getEnv(key, "")), 64)
	if err != nil {
		return def
	}
	return v
}

func getBool(key string, def bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(getEnv(key, "")))
	if err != nil {
		return def
	}
	return v
}

// getMillis reads an integer number of milliseconds.
func getMillis(key string, defMs int) time.Duration {
	return time.Duration(getInt(key, defMs)) * time.Millisecond
}

func getDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(getEnv(key, "")))
	if err != nil {
		return def
	}
	return d
}
