package config

import (
	"log/slog"
	"time"
)

const (
	IS_PROD                         = false
	LOG_LEVEL_PROD                  = slog.LevelInfo
	FALLBACK_REDIS_TO_INTERNALSTORE = true //if redis init fails, the api falls back to an in-memory job store
	TRACE_ID_KEY                    = "traceId"
	RATE_LIMIT_PER_SECOND           = 20
	BURST_RATE_LIMIT_PER_SECOND     = 40
	RateLimiterIdleTTL              = 10 * time.Minute

	//settings file, relative to the home directory
	SettingsFileName = ".mirage.json"
	DataDirName      = ".mirage"
	EnvFileName      = ".env"
	LogFileName      = "mirage.log"

	//retrieval
	DefaultTopK                 = 5
	DefaultTopN                 = 10
	DefaultMaxChunkTokens       = 1000
	DefaultTransientTokenBudget = 75000
	EmbeddingBatchSize          = 100
	RemoteFanOut                = 10
	TokenEncoding               = "cl100k_base"

	//embeddings
	//dimension is whatever the backend returns, collections record it on creation
	OpenAIEmbeddingModel          = "text-embedding-3-small"
	GoogleEmbeddingModel          = "gemini-embedding-001"
	EmbeddingOutputDimensionality int32 = 1536

	//llm
	DefaultProvider     = "openai"
	DefaultChatModel    = "gpt-4o-mini"
	GeminiModelName     = "gemini-2.5-flash"
	ModelTemperature    = 0.7
	DefaultSystemPrompt = "You are a helpful assistant."
	DefaultPromptName   = "default"
	CompletionTimeout   = 5 * time.Minute

	//crawler
	MaxCrawlPages      = 50
	CrawlConcurrency   = 8
	PageExtractTimeout = 10 * time.Second
	MaxFetchBytes      = 5 << 20

	//remote service
	DefaultRemoteURL     = "http://localhost:3000"
	RemoteRequestTimeout = 60 * time.Second

	MaxWorkerCount            int64 = 10
	MinWorkerCount            int64 = 1
	IdleWorkerTimeout               = 1 * time.Minute
	IndexJobTimeout                 = 10 * time.Minute

	//serverTimeouts
	ReadTimeout            = 30 * time.Second
	WriteTimeout           = 5 * time.Minute //chat streams stay open
	IdleTimeout            = 120 * time.Second
	ShutdownContextTimeout = 10 * time.Second

	//server listening port
	ServerListenAddr = ":3000"
	MaxRequestBytes  = 32 << 20

	//job requests buffer limit
	BufferLimit = 100

	//vectorDB
	QdrantHost             = "localhost"
	QdrantGrpcPort         = 6334
	QdrantUseTLS           = false
	QdrantPoolSize         = 2
	QdrantKeepAliveTimeout = 30 * time.Second
	UserCollectionPrefix   = "u_"
	UserCollectionSep      = "__"

	MaxIdleConns        = 50
	MaxIdleConnsPerHost = 25
	IdleConnTimeout     = 60 * time.Second

	//redis
	redisHost     = "127.0.0.1"
	redisPort     = "6379"
	RedisAddr     = redisHost + ":" + redisPort
	RedisPassword = ""

	//redis has 16 DB we can use
	RedisJobStore = 0

	//redis timeouts
	RedisJobStoreTTL = 24 * time.Hour
)
