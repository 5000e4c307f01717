package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalid         = errors.New("invalid configuration")
)

const (
	IndexModeBackground = "background"
	IndexModeSync       = "sync"

	BackendDisk     = "disk"
	BackendMemory   = "memory"
	BackendWeaviate = "weaviate"

	QueueInProcess = "inprocess"
	QueueNSQ       = "nsq"

	EmbedderLocal  = "local"
	EmbedderGemini = "gemini"
	EmbedderOpenAI = "openai"
)

type Config struct {
	// Answer generation
	OpenRouterAPIKey  string `envconfig:"OPENROUTER_API_KEY"`
	LLMBaseURL        string `envconfig:"LLM_BASE_URL" default:"https://openrouter.ai/api/v1"`
	LLMModel          string `envconfig:"LLM_MODEL" default:"openrouter/horizon-beta"`
	LLMSystemPrompt   string `envconfig:"LLM_SYSTEM_PROMPT" default:"You're an expert on policy and legal document questions."`
	LLMTimeoutSeconds int    `envconfig:"LLM_TIMEOUT_SECONDS" default:"60"`

	// Embeddings
	EmbedderProvider  string `envconfig:"EMBEDDER_PROVIDER" default:"local"`
	GeminiAPIKey      string `envconfig:"GEMINI_API_KEY"`
	EmbeddingAPIKey   string `envconfig:"EMBEDDING_API_KEY"`
	EmbeddingBaseURL  string `envconfig:"EMBEDDING_BASE_URL" default:"https://api.openai.com/v1"`
	EmbeddingModel    string `envconfig:"EMBEDDING_MODEL"`
	EmbedBatchSize    int    `envconfig:"EMBED_BATCH_SIZE" default:"64"`
	LocalEmbeddingDim int    `envconfig:"LOCAL_EMBEDDING_DIM" default:"384"`

	// Retrieval pipeline
	ChunkSize    int    `envconfig:"CHUNK_SIZE" default:"500"`
	ChunkOverlap int    `envconfig:"CHUNK_OVERLAP" default:"50"`
	TopK         int    `envconfig:"TOP_K" default:"4"`
	PrefixChunks int    `envconfig:"PREFIX_CHUNKS" default:"3"`
	IndexMode    string `envconfig:"INDEX_MODE" default:"background"`

	// Index storage
	VectorBackend  string `envconfig:"VECTOR_BACKEND" default:"disk"`
	CacheDir       string `envconfig:"CACHE_DIR" default:"data/index_cache"`
	DocHashLength  int    `envconfig:"DOC_HASH_LENGTH" default:"16"`
	WorkDir        string `envconfig:"WORK_DIR"`
	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	// Background indexing
	IndexQueue string `envconfig:"INDEX_QUEUE" default:"inprocess"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	// Matches nsqd's default --max-msg-size. Larger tasks are built in process.
	NSQMaxMessageBytes int `envconfig:"NSQ_MAX_MSG_BYTES" default:"1048576"`

	// Document registry. An empty DB_HOST keeps the registry in memory.
	DBHost        string `envconfig:"DB_HOST"`
	DBPort        int    `envconfig:"DB_PORT" default:"5432"`
	DBUser        string `envconfig:"DB_USER" default:"hackrx"`
	DBPass        string `envconfig:"DB_PASS" default:"password"`
	DBName        string `envconfig:"DB_NAME" default:"hackrx"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	RerankProvider string `envconfig:"RERANK_PROVIDER" default:"none"`
	RerankAPIKey   string `envconfig:"RERANK_API_KEY"`

	// Server
	ServerPort             int    `envconfig:"SERVER_PORT" default:"8000"`
	LogLevel               string `envconfig:"LOG_LEVEL" default:"info"`
	QueryLogPath           string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	MaxUploadSizeMB        int64  `envconfig:"MAX_UPLOAD_SIZE_MB" default:"50"`
	MaxDocumentSizeMB      int64  `envconfig:"MAX_DOCUMENT_SIZE_MB" default:"50"`
	DownloadTimeoutSeconds int    `envconfig:"DOWNLOAD_TIMEOUT_SECONDS" default:"60"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars set in the shell take precedence over .env files
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.OpenRouterAPIKey == "" {
		return fmt.Errorf("%w: OPENROUTER_API_KEY", ErrMissingRequired)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: CHUNK_SIZE must be positive", ErrInvalid)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: CHUNK_OVERLAP must be in [0, CHUNK_SIZE)", ErrInvalid)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: TOP_K must be positive", ErrInvalid)
	}
	if c.DocHashLength <= 0 || c.DocHashLength > 64 {
		return fmt.Errorf("%w: DOC_HASH_LENGTH must be in [1, 64]", ErrInvalid)
	}

	switch c.IndexMode {
	case IndexModeBackground, IndexModeSync:
	default:
		return fmt.Errorf("%w: INDEX_MODE %q", ErrInvalid, c.IndexMode)
	}

	switch c.VectorBackend {
	case BackendDisk, BackendMemory, BackendWeaviate:
	default:
		return fmt.Errorf("%w: VECTOR_BACKEND %q", ErrInvalid, c.VectorBackend)
	}

	switch c.IndexQueue {
	case QueueInProcess, QueueNSQ:
	default:
		return fmt.Errorf("%w: INDEX_QUEUE %q", ErrInvalid, c.IndexQueue)
	}

	switch c.EmbedderProvider {
	case EmbedderLocal:
	case EmbedderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY", ErrMissingRequired)
		}
	case EmbedderOpenAI:
		if c.EmbeddingAPIKey == "" {
			return fmt.Errorf("%w: EMBEDDING_API_KEY", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: EMBEDDER_PROVIDER %q", ErrInvalid, c.EmbedderProvider)
	}

	return nil
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
