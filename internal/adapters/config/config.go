package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"enlitens/pkg/errors"
)

type Config struct {
	App           AppConfig
	Postgres      PostgresConfig
	Redis         RedisConfig
	AI            AIConfig
	Extraction    ExtractionConfig
	Chunking      ChunkingConfig
	Retrieval     RetrievalConfig
	Retry         RetryConfig
	Validation    ValidationConfig
	Concurrency   ConcurrencyConfig
	Observability ObservabilityConfig
	ErrorTracking ErrorTrackingConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"enlitens"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

// PostgresConfig configures the pgvector-backed vector store. When the
// database is unreachable the store falls back to an in-memory index.
type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"enlitens"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	Database string `envconfig:"POSTGRES_DB" default:"enlitens"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"10"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Enabled reports whether an agent output cache backend is configured.
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

type AIConfig struct {
	OpenAIKey       string        `envconfig:"OPENAI_API_KEY"`
	GeminiKey       string        `envconfig:"GEMINI_API_KEY"`
	DefaultProvider string        `envconfig:"DEFAULT_AI_PROVIDER" default:"openai"`
	ChatModel       string        `envconfig:"AI_CHAT_MODEL" default:"gpt-4o-mini"`
	JudgeModel      string        `envconfig:"AI_JUDGE_MODEL" default:"gpt-4o-mini"`
	EmbeddingModel  string        `envconfig:"AI_EMBEDDING_MODEL" default:"text-embedding-3-small"`
	RequestTimeout  time.Duration `envconfig:"AI_REQUEST_TIMEOUT" default:"120s"`
	RateLimitRPS    float64       `envconfig:"AI_RATE_LIMIT_RPS" default:"2"`
}

// ExtractionConfig configures the document extraction collaborators. PDFs
// are read from a pre-rendered markdown cache; entity extraction is an
// optional external HTTP service.
type ExtractionConfig struct {
	MarkdownCacheDir string        `envconfig:"EXTRACTION_MARKDOWN_CACHE_DIR"`
	RetryAttempts    int           `envconfig:"EXTRACTION_RETRY_ATTEMPTS" default:"3"`
	EntityEndpoint   string        `envconfig:"ENTITY_EXTRACTOR_ENDPOINT"`
	EntityTimeout    time.Duration `envconfig:"ENTITY_EXTRACTOR_TIMEOUT" default:"60s"`
}

type ChunkingConfig struct {
	ChunkSizeTokens   int     `envconfig:"CHUNK_SIZE_TOKENS" default:"900"`
	ChunkOverlapRatio float64 `envconfig:"CHUNK_OVERLAP_RATIO" default:"0.15"`
}

type RetrievalConfig struct {
	DenseLimit      int    `envconfig:"RETRIEVAL_DENSE_LIMIT" default:"50"`
	RerankLimit     int    `envconfig:"RETRIEVAL_RERANK_LIMIT" default:"50"`
	FinalK          int    `envconfig:"RETRIEVAL_FINAL_K" default:"5"`
	FusionConstantK int    `envconfig:"RETRIEVAL_FUSION_CONSTANT_K" default:"60"`
	RerankerModel   string `envconfig:"RERANKER_MODEL_PATH"`
	RerankerVocab   string `envconfig:"RERANKER_VOCAB_PATH"`
}

type RetryConfig struct {
	MaxAttempts   int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	BaseDelay     time.Duration `envconfig:"RETRY_BASE_DELAY" default:"2s"`
	BackoffFactor float64       `envconfig:"RETRY_BACKOFF_FACTOR" default:"1.8"`
}

type ValidationConfig struct {
	SimilarityThreshold   float64 `envconfig:"VALIDATION_SIMILARITY_THRESHOLD" default:"0.68"`
	CitationThreshold     float64 `envconfig:"VALIDATION_CITATION_THRESHOLD" default:"0.80"`
	SelfCritiqueThreshold float64 `envconfig:"VALIDATION_SELF_CRITIQUE_THRESHOLD" default:"0.75"`
	AcceptanceThreshold   float64 `envconfig:"VALIDATION_ACCEPTANCE_THRESHOLD" default:"0.65"`
	SelfConsistencyVotes  int     `envconfig:"VALIDATION_SELF_CONSISTENCY_VOTES" default:"3"`
	WebCorroboration      bool    `envconfig:"VALIDATION_WEB_CORROBORATION" default:"true"`
	WebCorroborationLimit int     `envconfig:"VALIDATION_WEB_CORROBORATION_LIMIT" default:"3"`
}

type ConcurrencyConfig struct {
	MaxConcurrentDocuments int           `envconfig:"MAX_CONCURRENT_DOCUMENTS" default:"1"`
	AgentTimeout           time.Duration `envconfig:"AGENT_TIMEOUT" default:"300s"`
	CleanupInterval        int           `envconfig:"CLEANUP_INTERVAL_DOCS" default:"3"`
}

type ObservabilityConfig struct {
	BroadcastURL string   `envconfig:"OBSERVABILITY_BROADCAST_URL"`
	KafkaBrokers []string `envconfig:"OBSERVABILITY_KAFKA_BROKERS"`
	MetricsAddr  string   `envconfig:"METRICS_ADDR"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"false"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// WebSearchConfig configures the optional web corroboration backend.
type WebSearchConfig struct {
	Endpoint   string        `envconfig:"WEB_SEARCH_ENDPOINT"`
	APIKey     string        `envconfig:"WEB_SEARCH_API_KEY"`
	MaxResults int           `envconfig:"WEB_SEARCH_MAX_RESULTS" default:"5"`
	Timeout    time.Duration `envconfig:"WEB_SEARCH_TIMEOUT" default:"12s"`
}

// Load reads configuration from the environment, loading .env first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadWebSearch reads the web search section separately; the section is
// optional and absence simply disables corroboration.
func LoadWebSearch() (*WebSearchConfig, error) {
	var cfg WebSearchConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process web search config")
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Chunking.ChunkSizeTokens <= 0 {
		return errors.Wrapf(errors.ErrInvalidInput, "chunk size must be positive, got %d", c.Chunking.ChunkSizeTokens)
	}
	if c.Chunking.ChunkOverlapRatio < 0 || c.Chunking.ChunkOverlapRatio >= 1 {
		return errors.Wrapf(errors.ErrInvalidInput, "chunk overlap ratio must be in [0,1), got %f", c.Chunking.ChunkOverlapRatio)
	}
	if c.Retry.MaxAttempts < 1 {
		return errors.Wrapf(errors.ErrInvalidInput, "retry max attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Validation.AcceptanceThreshold < 0 || c.Validation.AcceptanceThreshold > 1 {
		return errors.Wrapf(errors.ErrInvalidInput, "acceptance threshold must be in [0,1], got %f", c.Validation.AcceptanceThreshold)
	}
	if c.Concurrency.MaxConcurrentDocuments < 1 {
		return errors.Wrapf(errors.ErrInvalidInput, "max concurrent documents must be >= 1, got %d", c.Concurrency.MaxConcurrentDocuments)
	}
	return nil
}
