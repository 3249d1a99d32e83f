// Package config loads runtime configuration for the retrieval and
// analytics engine from the environment, following the same
// godotenv-plus-os.Getenv idiom the rest of this codebase's ancestry uses.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LLMConfig configures the chat model used by the RAG pipeline and by
// analytics agents for AI-insight generation.
type LLMConfig struct {
	Provider       string // openai | anthropic | google
	BaseURL        string
	Model          string
	APIKey         string
	Temperature    float64
	MaxTokens      int
	TimeoutSeconds int
	MaxRetries     int
}

// OpenAIConfig configures the OpenAI-compatible chat client (also used for
// self-hosted completions servers such as llama.cpp/mlx_lm via a custom
// BaseURL).
type OpenAIConfig struct {
	API         string // "completions" (default) or "responses"
	APIKey      string
	BaseURL     string
	Model       string
	LogPayloads bool
	ExtraParams map[string]any
}

// AnthropicPromptCacheConfig controls which message segments get Anthropic
// prompt-cache breakpoints.
type AnthropicPromptCacheConfig struct {
	Enabled       bool
	CacheSystem   bool
	CacheTools    bool
	CacheMessages bool
	TTL           string
}

// AnthropicConfig configures the Anthropic Messages API client.
type AnthropicConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	PromptCache AnthropicPromptCacheConfig
	ExtraParams map[string]any
}

// GoogleConfig configures the Gemini (genai) client.
type GoogleConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout int // seconds
}

// LLMClientConfig selects and configures the concrete chat provider backend;
// Provider picks which of OpenAI/Anthropic/Google is built by
// internal/llm/providers.Build.
type LLMClientConfig struct {
	Provider  string // "openai" | "local" | "anthropic" | "google"
	OpenAI    OpenAIConfig
	Anthropic AnthropicConfig
	Google    GoogleConfig
}

// EmbeddingConfig configures the embedding provider used to produce query
// and chunk vectors for the vector store.
type EmbeddingConfig struct {
	BaseURL        string
	Path           string // request path appended to BaseURL, e.g. "/v1/embeddings"
	Model          string
	APIKey         string
	APIHeader      string            // legacy single-header auth, e.g. "Authorization" or "x-api-key"
	Headers        map[string]string // extra headers merged in, taking precedence for overlapping keys
	Dimension      int
	Timeout        int // request timeout in seconds
	TimeoutSeconds int
	InstructPrefix string // prepended to queries, e.g. "Instruct: ...\nQuery: "
}

// VectorDBConfig configures the vector index client.
type VectorDBConfig struct {
	DSN                string
	Metric             string // IP | L2 | COSINE
	Dimension          int
	HierarchicalOrder  []string
	StandardsColl      string
	ProjectsColl       string
	ContractsColl      string
}

// GraphDBConfig configures the graph store client.
type GraphDBConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

// RelationalConfig configures the pooled Postgres connection backing the
// relational reads and the durable side of the workflow log.
type RelationalConfig struct {
	DSN             string
	MaxConns        int
	MaxOverflow     int
	ConnMaxLifeMins int
	PrePing         bool
}

// CacheConfig configures the cache's Redis backend.
type CacheConfig struct {
	Addr              string
	Password          string
	DB                int
	DefaultTTLSeconds int
	PermissionTTLSecs int
	HistoryTTLDays    int
	HistoryMaxLen     int
}

// FusionConfig holds the hybrid-retriever tuning knobs.
type FusionConfig struct {
	BM25Weight         float64
	VectorWeight       float64
	GraphWeight        float64
	RRFK               int
	Method             string // rrf | weighted
	Rerank             bool
	GraphAugment       bool
	GraphRelationDepth int
	GraphFanoutCap     int
}

// ClickHouseConfig configures the optional secondary workflow-log sink.
type ClickHouseConfig struct {
	Enabled bool
	DSN     string
	Table   string
}

// KafkaConfig configures the optional drawing-ingestion event stream.
type KafkaConfig struct {
	Enabled            bool
	Brokers            string
	DrawingEventsTopic string
}

// ObsConfig configures the optional OTLP tracing/metrics exporters used by
// internal/obs.InitExporters. Left disabled (OTLP == "") by default;
// the engine runs fine without a collector since retrieval and answer
// stage timings are
// always recorded through the in-process Metrics interface regardless.
type ObsConfig struct {
	OTLP           string
	ServiceName    string
	ServiceVersion string
	Environment    string
}

type Config struct {
	LogLevel string
	LogPath  string

	LLM       LLMConfig
	LLMClient LLMClientConfig
	Embedding EmbeddingConfig
	VectorDB  VectorDBConfig
	GraphDB   GraphDBConfig
	Relational RelationalConfig
	Cache     CacheConfig
	Fusion    FusionConfig
	ClickHouse ClickHouseConfig
	Kafka     KafkaConfig
	Obs       ObsConfig

	MaxContextChars  int
	GraphPreambleChars int
	CacheTTLHours    int
}

// Load reads configuration from the environment (optionally a .env file
// whose values override the process environment, so local-dev overrides
// stay deterministic).
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{
		LogLevel: firstNonEmpty(os.Getenv("LOG_LEVEL"), "info"),
		LogPath:  firstNonEmpty(os.Getenv("LOG_PATH"), "engine.log"),
		LLM: LLMConfig{
			Provider:       strings.ToLower(firstNonEmpty(os.Getenv("LLM_PROVIDER"), "anthropic")),
			BaseURL:        os.Getenv("LLM_BASE_URL"),
			Model:          os.Getenv("LLM_MODEL"),
			APIKey:         firstNonEmpty(os.Getenv("ANTHROPIC_API_KEY"), os.Getenv("OPENAI_API_KEY"), os.Getenv("GOOGLE_LLM_API_KEY")),
			Temperature:    envFloat("LLM_TEMPERATURE", 0.2),
			MaxTokens:      envInt("LLM_MAX_TOKENS", 1024),
			TimeoutSeconds: envInt("LLM_TIMEOUT_SECONDS", 30),
			MaxRetries:     envInt("LLM_MAX_RETRIES", 3),
		},
		LLMClient: LLMClientConfig{
			Provider: strings.ToLower(firstNonEmpty(os.Getenv("LLM_PROVIDER"), "anthropic")),
			OpenAI: OpenAIConfig{
				API:         firstNonEmpty(os.Getenv("OPENAI_API"), "completions"),
				APIKey:      os.Getenv("OPENAI_API_KEY"),
				BaseURL:     os.Getenv("LLM_BASE_URL"),
				Model:       os.Getenv("LLM_MODEL"),
				LogPayloads: envBool("LLM_LOG_PAYLOADS", false),
			},
			Anthropic: AnthropicConfig{
				APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
				BaseURL: os.Getenv("LLM_BASE_URL"),
				Model:   os.Getenv("LLM_MODEL"),
				PromptCache: AnthropicPromptCacheConfig{
					Enabled: envBool("ANTHROPIC_PROMPT_CACHE_ENABLED", false),
				},
			},
			Google: GoogleConfig{
				APIKey:  os.Getenv("GOOGLE_LLM_API_KEY"),
				BaseURL: os.Getenv("LLM_BASE_URL"),
				Model:   os.Getenv("LLM_MODEL"),
				Timeout: envInt("LLM_TIMEOUT_SECONDS", 30),
			},
		},
		Embedding: EmbeddingConfig{
			BaseURL:        firstNonEmpty(os.Getenv("EMBED_BASE_URL"), "https://api.openai.com"),
			Path:           firstNonEmpty(os.Getenv("EMBED_PATH"), "/v1/embeddings"),
			Model:          firstNonEmpty(os.Getenv("EMBED_MODEL"), "text-embedding-3-small"),
			APIKey:         os.Getenv("EMBED_API_KEY"),
			APIHeader:      firstNonEmpty(os.Getenv("EMBED_API_HEADER"), "Authorization"),
			Headers:        EmbeddingHeaders(),
			Dimension:      envInt("EMBED_DIMENSION", 1536),
			Timeout:        envInt("EMBED_TIMEOUT_SECONDS", 30),
			TimeoutSeconds: envInt("EMBED_TIMEOUT_SECONDS", 30),
			InstructPrefix: os.Getenv("EMBED_INSTRUCT_PREFIX"),
		},
		VectorDB: VectorDBConfig{
			DSN:               firstNonEmpty(os.Getenv("VECTOR_DSN"), "localhost:6334"),
			Metric:            strings.ToUpper(firstNonEmpty(os.Getenv("VECTOR_METRIC"), "IP")),
			Dimension:         envInt("VECTOR_DIMENSION", 1536),
			HierarchicalOrder: parseCSV(firstNonEmpty(os.Getenv("VECTOR_HIERARCHY_ORDER"), "standards,projects,contracts")),
			StandardsColl:     firstNonEmpty(os.Getenv("VECTOR_COLLECTION_STANDARDS"), "standards"),
			ProjectsColl:      firstNonEmpty(os.Getenv("VECTOR_COLLECTION_PROJECTS"), "projects"),
			ContractsColl:     firstNonEmpty(os.Getenv("VECTOR_COLLECTION_CONTRACTS"), "contracts"),
		},
		GraphDB: GraphDBConfig{
			URI:      firstNonEmpty(os.Getenv("GRAPH_URI"), "neo4j://localhost:7687"),
			Username: os.Getenv("GRAPH_USERNAME"),
			Password: os.Getenv("GRAPH_PASSWORD"),
			Database: firstNonEmpty(os.Getenv("GRAPH_DATABASE"), "neo4j"),
		},
		Relational: RelationalConfig{
			DSN:             firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("POSTGRES_DSN")),
			MaxConns:        envInt("DB_POOL_MAX_CONNS", 10),
			MaxOverflow:     envInt("DB_POOL_MAX_OVERFLOW", 20),
			ConnMaxLifeMins: envInt("DB_POOL_CONN_MAX_LIFE_MINUTES", 60),
			PrePing:         envBool("DB_POOL_PRE_PING", true),
		},
		Cache: CacheConfig{
			Addr:              firstNonEmpty(os.Getenv("REDIS_ADDR"), "localhost:6379"),
			Password:          os.Getenv("REDIS_PASSWORD"),
			DB:                envInt("REDIS_DB", 0),
			DefaultTTLSeconds: envInt("CACHE_QUERY_TTL_SECONDS", 6*3600),
			PermissionTTLSecs: envInt("CACHE_PERMISSION_TTL_SECONDS", 3600),
			HistoryTTLDays:    envInt("CACHE_HISTORY_TTL_DAYS", 30),
			HistoryMaxLen:     envInt("CACHE_HISTORY_MAX_LEN", 50),
		},
		Fusion: FusionConfig{
			BM25Weight:         envFloat("FUSION_BM25_WEIGHT", 0.3),
			VectorWeight:       envFloat("FUSION_VECTOR_WEIGHT", 0.4),
			GraphWeight:        envFloat("FUSION_GRAPH_WEIGHT", 0.3),
			RRFK:               envInt("FUSION_RRF_K", 60),
			Method:             strings.ToLower(firstNonEmpty(os.Getenv("FUSION_METHOD"), "rrf")),
			Rerank:             envBool("RERANK_ENABLED", false),
			GraphAugment:       envBool("GRAPH_RETRIEVAL_ENABLED", true),
			GraphRelationDepth: envInt("GRAPH_RELATION_DEPTH", 2),
			GraphFanoutCap:     envInt("GRAPH_FANOUT_CAP", 20),
		},
		ClickHouse: ClickHouseConfig{
			Enabled: envBool("CLICKHOUSE_ENABLED", false),
			DSN:     os.Getenv("CLICKHOUSE_DSN"),
			Table:   firstNonEmpty(os.Getenv("CLICKHOUSE_WORKFLOW_TABLE"), "workflow_log"),
		},
		Kafka: KafkaConfig{
			Enabled:            envBool("KAFKA_ENABLED", false),
			Brokers:            firstNonEmpty(os.Getenv("KAFKA_BROKERS"), "localhost:9092"),
			DrawingEventsTopic: firstNonEmpty(os.Getenv("KAFKA_DRAWING_EVENTS_TOPIC"), "drawing.processing.events"),
		},
		Obs: ObsConfig{
			OTLP:           os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName:    firstNonEmpty(os.Getenv("OTEL_SERVICE_NAME"), "ragengine"),
			ServiceVersion: firstNonEmpty(os.Getenv("OTEL_SERVICE_VERSION"), "dev"),
			Environment:    firstNonEmpty(os.Getenv("APP_ENV"), "development"),
		},
		MaxContextChars:    envInt("RAG_MAX_CONTEXT_CHARS", 3000),
		GraphPreambleChars: envInt("RAG_GRAPH_PREAMBLE_CHARS", 500),
		CacheTTLHours:      envInt("CACHE_DEFAULT_TTL_HOURS", 6),
	}

	switch cfg.LLM.Provider {
	case "openai", "local", "anthropic", "google":
	default:
		return Config{}, fmt.Errorf("LLM_PROVIDER must be one of openai, local, anthropic, google (got %q)", cfg.LLM.Provider)
	}
	switch cfg.Fusion.Method {
	case "rrf", "weighted":
	default:
		return Config{}, fmt.Errorf("FUSION_METHOD must be rrf or weighted (got %q)", cfg.Fusion.Method)
	}
	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseCSV(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// EmbeddingHeaders builds the extra HTTP headers for the embedding client
// from an optional JSON-encoded env var, so gateways that want custom
// auth headers can set them without code changes.
func EmbeddingHeaders() map[string]string {
	v := strings.TrimSpace(os.Getenv("EMBED_API_HEADERS"))
	if v == "" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(v), &m); err == nil {
		return m
	}
	return nil
}
