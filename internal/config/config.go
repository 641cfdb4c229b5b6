// Package config provides configuration management for docenrich.
package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Defaults.
const (
	DefaultWorkerHost     = "127.0.0.1"
	DefaultWorkerPort     = 37820
	DefaultEmbeddingURL   = "https://api.openai.com/v1"
	DefaultEmbeddingModel = "text-embedding-3-large"
	DefaultLLMURL         = "http://localhost:8000/v1"
	DefaultModel          = "hugging-quants/Meta-Llama-3.1-8B-Instruct-AWQ-INT4"
	DefaultQdrantURL      = "http://localhost:6333"
	DefaultDimensions     = 1024
	DefaultBatchSize      = 100

	dataDirName      = ".docenrich"
	settingsFileName = "settings.json"
	journalFileName  = "journal.db"
)

// Config holds every tunable of the pipeline. JSON keys double as
// environment variable names.
type Config struct {
	// Worker
	WorkerHost string `json:"DOCENRICH_WORKER_HOST"`
	WorkerPort int    `json:"DOCENRICH_WORKER_PORT"`

	// Stores
	DatabaseDSN string `json:"DOCENRICH_DATABASE_DSN"`
	MaxConns    int    `json:"DOCENRICH_DB_MAX_CONNS"`
	JournalPath string `json:"DOCENRICH_JOURNAL_PATH"`

	// Vector index
	QdrantURL         string `json:"DOCENRICH_QDRANT_URL"`
	QdrantAPIKey      string `json:"DOCENRICH_QDRANT_API_KEY"`
	ContentCollection string `json:"DOCENRICH_QDRANT_CONTENT_COLLECTION"`
	SummaryCollection string `json:"DOCENRICH_QDRANT_SUMMARY_COLLECTION"`
	KeywordCollection string `json:"DOCENRICH_QDRANT_KEYWORD_COLLECTION"`
	VectorSize        int    `json:"DOCENRICH_QDRANT_VECTOR_SIZE"`

	// Embeddings
	EmbeddingURL        string `json:"DOCENRICH_EMBEDDING_URL"`
	EmbeddingAPIKey     string `json:"DOCENRICH_EMBEDDING_API_KEY"`
	EmbeddingModel      string `json:"DOCENRICH_EMBEDDING_MODEL"`
	EmbeddingDimensions int    `json:"DOCENRICH_EMBEDDING_DIMENSIONS"`
	EmbeddingBatchSize  int    `json:"DOCENRICH_EMBEDDING_BATCH_SIZE"`
	EmbeddingCacheSize  int    `json:"DOCENRICH_EMBEDDING_CACHE_SIZE"`

	// Language model
	LLMURL               string  `json:"DOCENRICH_LLM_URL"`
	LLMAPIKey            string  `json:"DOCENRICH_LLM_API_KEY"`
	Model                string  `json:"DOCENRICH_MODEL"`
	LLMMaxTokens         int     `json:"DOCENRICH_LLM_MAX_TOKENS"`
	LLMConcurrency       int     `json:"DOCENRICH_LLM_CONCURRENCY"`
	LLMRequestsPerSecond float64 `json:"DOCENRICH_LLM_RPS"`
	LLMRetryAttempts     int     `json:"DOCENRICH_LLM_RETRY_ATTEMPTS"`

	// Chunking
	SingleChunkTokens int `json:"DOCENRICH_SINGLE_CHUNK_TOKENS"`
	MediumDocTokens   int `json:"DOCENRICH_MEDIUM_DOC_TOKENS"`
	MediumChunkSize   int `json:"DOCENRICH_MEDIUM_CHUNK_SIZE"`
	MediumOverlap     int `json:"DOCENRICH_MEDIUM_OVERLAP"`
	LargeChunkSize    int `json:"DOCENRICH_LARGE_CHUNK_SIZE"`
	LargeOverlap      int `json:"DOCENRICH_LARGE_OVERLAP"`
	CombineTokenLimit int `json:"DOCENRICH_COMBINE_TOKEN_LIMIT"`

	// Clustering
	ClusterMethod         string  `json:"DOCENRICH_CLUSTER_METHOD"`
	ClusterMinSize        int     `json:"DOCENRICH_CLUSTER_MIN_SIZE"`
	ClusterMinSamples     int     `json:"DOCENRICH_CLUSTER_MIN_SAMPLES"`
	ClusterNoiseDistance  float64 `json:"DOCENRICH_CLUSTER_NOISE_DISTANCE"`
	ClusterTimeoutSeconds int     `json:"DOCENRICH_CLUSTER_TIMEOUT_SECONDS"`

	// Batching and sources
	BatchSize          int      `json:"DOCENRICH_BATCH_SIZE"`
	InboxDir           string   `json:"DOCENRICH_INBOX_DIR"`
	CollectionsFile    string   `json:"DOCENRICH_COLLECTIONS_FILE"`
	Collections        []string `json:"-"`
	HTTPTimeoutSeconds int      `json:"DOCENRICH_HTTP_TIMEOUT_SECONDS"`
}

var (
	globalConfig *Config
	configOnce   sync.Once
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		WorkerHost:            DefaultWorkerHost,
		WorkerPort:            DefaultWorkerPort,
		MaxConns:              4,
		JournalPath:           DBPath(),
		QdrantURL:             DefaultQdrantURL,
		ContentCollection:     "contentColA",
		SummaryCollection:     "summaryColA",
		KeywordCollection:     "keywordColA",
		VectorSize:            DefaultDimensions,
		EmbeddingURL:          DefaultEmbeddingURL,
		EmbeddingModel:        DefaultEmbeddingModel,
		EmbeddingDimensions:   DefaultDimensions,
		EmbeddingBatchSize:    1024,
		EmbeddingCacheSize:    4096,
		LLMURL:                DefaultLLMURL,
		Model:                 DefaultModel,
		LLMMaxTokens:          2048,
		LLMConcurrency:        10,
		LLMRequestsPerSecond:  5,
		LLMRetryAttempts:      3,
		SingleChunkTokens:     2536,
		MediumDocTokens:       11264,
		MediumChunkSize:       768,
		MediumOverlap:         128,
		LargeChunkSize:        1536,
		LargeOverlap:          512,
		CombineTokenLimit:     60000,
		ClusterMethod:         "leaf",
		ClusterMinSize:        2,
		ClusterNoiseDistance:  math.Sqrt2,
		ClusterTimeoutSeconds: 30,
		BatchSize:             DefaultBatchSize,
		InboxDir:              filepath.Join(DataDir(), "inbox"),
		HTTPTimeoutSeconds:    60,
	}
}

// DataDir returns the data directory path.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, dataDirName)
}

// DBPath returns the run journal database path.
func DBPath() string {
	return filepath.Join(DataDir(), journalFileName)
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), settingsFileName)
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// EnsureSettings writes a default settings file if none exists. API keys are
// left out; they belong in the environment or .env.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	d := Default()
	settings := map[string]any{
		"DOCENRICH_WORKER_PORT":         d.WorkerPort,
		"DOCENRICH_QDRANT_URL":          d.QdrantURL,
		"DOCENRICH_EMBEDDING_MODEL":     d.EmbeddingModel,
		"DOCENRICH_LLM_URL":             d.LLMURL,
		"DOCENRICH_MODEL":               d.Model,
		"DOCENRICH_BATCH_SIZE":          d.BatchSize,
		"DOCENRICH_COMBINE_TOKEN_LIMIT": d.CombineTokenLimit,
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// EnsureAll creates the data directory, the inbox and the settings file.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(DataDir(), "inbox"), 0750); err != nil {
		return err
	}
	return EnsureSettings()
}

// Load reads configuration from the settings file, then .env, then the
// process environment. Later sources win. A malformed settings file is
// logged and ignored.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(SettingsPath())
	switch {
	case err == nil:
		var settings map[string]json.RawMessage
		if err := json.Unmarshal(data, &settings); err != nil {
			log.Warn().Err(err).Str("path", SettingsPath()).Msg("Ignoring malformed settings file")
			break
		}
		for _, b := range cfg.bindings() {
			if raw, found := settings[b.key]; found {
				b.setJSON(raw)
			}
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	// .env never overrides variables that are already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Could not load .env")
	}
	for _, b := range cfg.bindings() {
		if v, found := os.LookupEnv(b.key); found {
			b.setString(v)
		}
	}

	return cfg, nil
}

// Get returns the process-wide configuration, loading it on first use.
func Get() *Config {
	configOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			log.Warn().Err(err).Msg("Falling back to default configuration")
			cfg = Default()
		}
		globalConfig = cfg
	})
	return globalConfig
}

// GetWorkerPort returns the worker port, preferring a valid
// DOCENRICH_WORKER_PORT over the loaded configuration.
func GetWorkerPort() int {
	if v := os.Getenv("DOCENRICH_WORKER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			return port
		}
	}
	return Get().WorkerPort
}

// HTTPTimeout returns the outbound HTTP timeout.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// ClusterTimeout returns the wall-clock limit for one clustering call.
func (c *Config) ClusterTimeout() time.Duration {
	return time.Duration(c.ClusterTimeoutSeconds) * time.Second
}

type binding struct {
	target any
	key    string
}

func (c *Config) bindings() []binding {
	return []binding{
		{key: "DOCENRICH_WORKER_HOST", target: &c.WorkerHost},
		{key: "DOCENRICH_WORKER_PORT", target: &c.WorkerPort},
		{key: "DOCENRICH_DATABASE_DSN", target: &c.DatabaseDSN},
		{key: "DOCENRICH_DB_MAX_CONNS", target: &c.MaxConns},
		{key: "DOCENRICH_JOURNAL_PATH", target: &c.JournalPath},
		{key: "DOCENRICH_QDRANT_URL", target: &c.QdrantURL},
		{key: "DOCENRICH_QDRANT_API_KEY", target: &c.QdrantAPIKey},
		{key: "DOCENRICH_QDRANT_CONTENT_COLLECTION", target: &c.ContentCollection},
		{key: "DOCENRICH_QDRANT_SUMMARY_COLLECTION", target: &c.SummaryCollection},
		{key: "DOCENRICH_QDRANT_KEYWORD_COLLECTION", target: &c.KeywordCollection},
		{key: "DOCENRICH_QDRANT_VECTOR_SIZE", target: &c.VectorSize},
		{key: "DOCENRICH_EMBEDDING_URL", target: &c.EmbeddingURL},
		{key: "DOCENRICH_EMBEDDING_API_KEY", target: &c.EmbeddingAPIKey},
		{key: "DOCENRICH_EMBEDDING_MODEL", target: &c.EmbeddingModel},
		{key: "DOCENRICH_EMBEDDING_DIMENSIONS", target: &c.EmbeddingDimensions},
		{key: "DOCENRICH_EMBEDDING_BATCH_SIZE", target: &c.EmbeddingBatchSize},
		{key: "DOCENRICH_EMBEDDING_CACHE_SIZE", target: &c.EmbeddingCacheSize},
		{key: "DOCENRICH_LLM_URL", target: &c.LLMURL},
		{key: "DOCENRICH_LLM_API_KEY", target: &c.LLMAPIKey},
		{key: "DOCENRICH_MODEL", target: &c.Model},
		{key: "DOCENRICH_LLM_MAX_TOKENS", target: &c.LLMMaxTokens},
		{key: "DOCENRICH_LLM_CONCURRENCY", target: &c.LLMConcurrency},
		{key: "DOCENRICH_LLM_RPS", target: &c.LLMRequestsPerSecond},
		{key: "DOCENRICH_LLM_RETRY_ATTEMPTS", target: &c.LLMRetryAttempts},
		{key: "DOCENRICH_SINGLE_CHUNK_TOKENS", target: &c.SingleChunkTokens},
		{key: "DOCENRICH_MEDIUM_DOC_TOKENS", target: &c.MediumDocTokens},
		{key: "DOCENRICH_MEDIUM_CHUNK_SIZE", target: &c.MediumChunkSize},
		{key: "DOCENRICH_MEDIUM_OVERLAP", target: &c.MediumOverlap},
		{key: "DOCENRICH_LARGE_CHUNK_SIZE", target: &c.LargeChunkSize},
		{key: "DOCENRICH_LARGE_OVERLAP", target: &c.LargeOverlap},
		{key: "DOCENRICH_COMBINE_TOKEN_LIMIT", target: &c.CombineTokenLimit},
		{key: "DOCENRICH_CLUSTER_METHOD", target: &c.ClusterMethod},
		{key: "DOCENRICH_CLUSTER_MIN_SIZE", target: &c.ClusterMinSize},
		{key: "DOCENRICH_CLUSTER_MIN_SAMPLES", target: &c.ClusterMinSamples},
		{key: "DOCENRICH_CLUSTER_NOISE_DISTANCE", target: &c.ClusterNoiseDistance},
		{key: "DOCENRICH_CLUSTER_TIMEOUT_SECONDS", target: &c.ClusterTimeoutSeconds},
		{key: "DOCENRICH_BATCH_SIZE", target: &c.BatchSize},
		{key: "DOCENRICH_INBOX_DIR", target: &c.InboxDir},
		{key: "DOCENRICH_COLLECTIONS_FILE", target: &c.CollectionsFile},
		{key: "DOCENRICH_COLLECTIONS", target: &c.Collections},
		{key: "DOCENRICH_HTTP_TIMEOUT_SECONDS", target: &c.HTTPTimeoutSeconds},
	}
}

// setJSON applies a settings file value. Values of the wrong type are
// ignored.
func (b binding) setJSON(raw json.RawMessage) {
	if t, isList := b.target.(*[]string); isList {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			*t = splitTrim(s)
			return
		}
		var list []string
		if err := json.Unmarshal(raw, &list); err == nil {
			*t = list
		}
		return
	}
	if err := json.Unmarshal(raw, b.target); err != nil {
		log.Warn().Err(err).Str("key", b.key).Msg("Ignoring invalid setting")
	}
}

// setString applies an environment value. Unparseable numbers are ignored.
func (b binding) setString(v string) {
	switch t := b.target.(type) {
	case *string:
		*t = v
	case *int:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*t = n
		}
	case *float64:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			*t = f
		}
	case *[]string:
		*t = splitTrim(v)
	}
}

// splitTrim splits a comma-separated list, dropping blanks.
func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
