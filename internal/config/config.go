package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
	MaxRetries  int    `yaml:"max_retries"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type        string                `yaml:"type"`
	Dimension   int                   `yaml:"dimension"`
	TimeoutSecs int                   `yaml:"timeout_secs"`
	OpenAI      *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector backend.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// IndexConfig configures the vector index.
type IndexConfig struct {
	Backend        string        `yaml:"backend"`
	Path           string        `yaml:"path"`
	DefaultTopK    int           `yaml:"default_top_k"`
	ComparisonTopK int           `yaml:"comparison_top_k"`
	BuildOnStart   bool          `yaml:"build_on_start"`
	Qdrant         *QdrantConfig `yaml:"qdrant,omitempty"`
}

// PostgresConfig locates the real Structured Store.
type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// StoreConfig selects the Structured Store.
type StoreConfig struct {
	Type     string          `yaml:"type"`
	SeedFile string          `yaml:"seed_file"`
	Postgres *PostgresConfig `yaml:"postgres,omitempty"`
}

// GenerationConfig selects the generation backend. Type "none" leaves
// answers to the templated fallbacks.
type GenerationConfig struct {
	Type        string  `yaml:"type"`
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	TimeoutSecs int     `yaml:"timeout_secs"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// RedisConfig locates the redis session store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SessionConfig selects where conversation turns and feedback live.
type SessionConfig struct {
	Type         string       `yaml:"type"`
	TTLMinutes   int          `yaml:"ttl_minutes"`
	HistoryTurns int          `yaml:"history_turns"`
	Redis        *RedisConfig `yaml:"redis,omitempty"`
}

// IngestConfig lists the sources a rebuild reads.
type IngestConfig struct {
	Documents         []string `yaml:"documents"`
	RecordsFile       string   `yaml:"records_file"`
	SentencesPerChunk int      `yaml:"sentences_per_chunk"`
	OverlapSentences  int      `yaml:"overlap_sentences"`
	SummarySentences  int      `yaml:"summary_sentences"`
	DebounceMillis    int      `yaml:"debounce_ms"`
}

// RetrievalConfig caps structured lookups.
type RetrievalConfig struct {
	Limit    int `yaml:"limit"`
	RawLimit int `yaml:"raw_limit"`
}

// TelemetryConfig exposes prometheus metrics when MetricsAddress is set.
type TelemetryConfig struct {
	MetricsAddress string `yaml:"metrics_address"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder   EmbedderConfig   `yaml:"embedder"`
	Index      IndexConfig      `yaml:"index"`
	Store      StoreConfig      `yaml:"store"`
	Generation GenerationConfig `yaml:"generation"`
	Session    SessionConfig    `yaml:"session"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// INGRES_* environment variables override file values in both cases.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnv(cfg)
			applyConfigDefaults(cfg)
			return cfg, nil
		}
		return nil, err
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyEnv(cfg)
	applyConfigDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/ingres/config.yaml.
// If neither exists, it writes defaults to ~/.config/ingres/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	applyEnv(cfg)
	applyConfigDefaults(cfg)
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects unknown component types and non-positive limits.
func (c *AppConfig) Validate() error {
	var errs []error
	oneOf := func(field, got string, allowed ...string) {
		for _, a := range allowed {
			if got == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: unknown type %q (want one of %s)", field, got, strings.Join(allowed, ", ")))
	}
	positive := func(field string, n int) {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", field, n))
		}
	}

	oneOf("embedder.type", c.Embedder.Type, "hashing", "openai")
	oneOf("index.backend", c.Index.Backend, "memory", "qdrant")
	oneOf("store.type", c.Store.Type, "memory", "postgres")
	oneOf("generation.type", c.Generation.Type, "none", "openai")
	oneOf("session.type", c.Session.Type, "none", "memory", "redis")

	positive("index.default_top_k", c.Index.DefaultTopK)
	positive("index.comparison_top_k", c.Index.ComparisonTopK)
	positive("retrieval.limit", c.Retrieval.Limit)
	positive("retrieval.raw_limit", c.Retrieval.RawLimit)
	positive("ingest.sentences_per_chunk", c.Ingest.SentencesPerChunk)
	if c.Ingest.OverlapSentences < 0 || c.Ingest.OverlapSentences >= c.Ingest.SentencesPerChunk {
		errs = append(errs, fmt.Errorf("ingest.overlap_sentences must be in [0, %d)", c.Ingest.SentencesPerChunk))
	}

	if c.Store.Type == "postgres" && (c.Store.Postgres == nil || c.Store.Postgres.DSN == "") {
		errs = append(errs, errors.New("store.postgres.dsn is required for the postgres store"))
	}
	if c.Index.Backend == "qdrant" && (c.Index.Qdrant == nil || c.Index.Qdrant.URL == "") {
		errs = append(errs, errors.New("index.qdrant.url is required for the qdrant backend"))
	}
	if c.Generation.Type == "openai" && c.Generation.Model == "" {
		errs = append(errs, errors.New("generation.model is required for openai generation"))
	}
	return errors.Join(errs...)
}

// EmbedTimeout is the per-call embedding deadline.
func (c *AppConfig) EmbedTimeout() time.Duration {
	return time.Duration(c.Embedder.TimeoutSecs) * time.Second
}

// GenerationTimeout is the per-call generation deadline.
func (c *AppConfig) GenerationTimeout() time.Duration {
	return time.Duration(c.Generation.TimeoutSecs) * time.Second
}

// SessionTTL is how long an idle session is kept by stores that expire.
func (c *AppConfig) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLMinutes) * time.Minute
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ingres", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder: EmbedderConfig{Type: "hashing", Dimension: 384, TimeoutSecs: 30},
		Index: IndexConfig{
			Backend:        "memory",
			Path:           "data/groundwater.gwix",
			DefaultTopK:    5,
			ComparisonTopK: 8,
			BuildOnStart:   true,
		},
		Store:      StoreConfig{Type: "memory"},
		Generation: GenerationConfig{Type: "none", TimeoutSecs: 60, Temperature: 0.3, MaxTokens: 800},
		Session:    SessionConfig{Type: "memory", TTLMinutes: 24 * 60, HistoryTurns: 3},
		Ingest: IngestConfig{
			Documents:         []string{"data/documents/**/*.jsonl", "data/documents/**/*.txt"},
			SentencesPerChunk: 5,
			OverlapSentences:  1,
			SummarySentences:  3,
			DebounceMillis:    500,
		},
		Retrieval: RetrievalConfig{Limit: 10, RawLimit: 100},
	}
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Ingest.SentencesPerChunk == 0 {
		cfg.Ingest.SentencesPerChunk = 5
	}
	if cfg.Index.DefaultTopK == 0 {
		cfg.Index.DefaultTopK = 5
	}
	if cfg.Index.ComparisonTopK == 0 {
		cfg.Index.ComparisonTopK = 8
	}
	if cfg.Retrieval.Limit == 0 {
		cfg.Retrieval.Limit = 10
	}
	if cfg.Retrieval.RawLimit == 0 {
		cfg.Retrieval.RawLimit = 100
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 32
		}
	}
	if cfg.Generation.Type == "openai" && cfg.Generation.APIKeyEnv == "" {
		cfg.Generation.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Store.Type == "postgres" {
		if cfg.Store.Postgres == nil {
			cfg.Store.Postgres = &PostgresConfig{}
		}
		if cfg.Store.Postgres.Table == "" {
			cfg.Store.Postgres.Table = "groundwater_records"
		}
	}
	if cfg.Session.Type == "redis" {
		if cfg.Session.Redis == nil {
			cfg.Session.Redis = &RedisConfig{}
		}
		if cfg.Session.Redis.Addr == "" {
			cfg.Session.Redis.Addr = "localhost:6379"
		}
	}
	if cfg.Index.Backend == "qdrant" {
		if cfg.Index.Qdrant == nil {
			cfg.Index.Qdrant = &QdrantConfig{}
		}
		if cfg.Index.Qdrant.Collection == "" {
			cfg.Index.Qdrant.Collection = "groundwater"
		}
	}
}

// applyEnv overlays INGRES_* variables, e.g. INGRES_GENERATION_MODEL for
// generation.model. Only the keys listed here are honoured.
func applyEnv(cfg *AppConfig) {
	v := viper.New()
	v.SetEnvPrefix("INGRES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	num := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}

	str("embedder.type", &cfg.Embedder.Type)
	num("embedder.dimension", &cfg.Embedder.Dimension)
	if v.IsSet("embedder.openai.model") || v.IsSet("embedder.openai.base_url") {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		str("embedder.openai.model", &cfg.Embedder.OpenAI.Model)
		str("embedder.openai.base_url", &cfg.Embedder.OpenAI.BaseURL)
	}

	str("index.backend", &cfg.Index.Backend)
	str("index.path", &cfg.Index.Path)
	num("index.default_top_k", &cfg.Index.DefaultTopK)
	num("index.comparison_top_k", &cfg.Index.ComparisonTopK)
	if v.IsSet("index.build_on_start") {
		cfg.Index.BuildOnStart = v.GetBool("index.build_on_start")
	}
	if v.IsSet("index.qdrant.url") {
		if cfg.Index.Qdrant == nil {
			cfg.Index.Qdrant = &QdrantConfig{}
		}
		str("index.qdrant.url", &cfg.Index.Qdrant.URL)
		str("index.qdrant.api_key", &cfg.Index.Qdrant.APIKey)
	}

	str("store.type", &cfg.Store.Type)
	str("store.seed_file", &cfg.Store.SeedFile)
	if v.IsSet("store.postgres.dsn") {
		if cfg.Store.Postgres == nil {
			cfg.Store.Postgres = &PostgresConfig{}
		}
		str("store.postgres.dsn", &cfg.Store.Postgres.DSN)
	}

	str("generation.type", &cfg.Generation.Type)
	str("generation.base_url", &cfg.Generation.BaseURL)
	str("generation.api_key_env", &cfg.Generation.APIKeyEnv)
	str("generation.model", &cfg.Generation.Model)
	num("generation.timeout_secs", &cfg.Generation.TimeoutSecs)

	str("session.type", &cfg.Session.Type)
	if v.IsSet("session.redis.addr") {
		if cfg.Session.Redis == nil {
			cfg.Session.Redis = &RedisConfig{}
		}
		str("session.redis.addr", &cfg.Session.Redis.Addr)
		str("session.redis.password", &cfg.Session.Redis.Password)
	}

	str("telemetry.metrics_address", &cfg.Telemetry.MetricsAddress)
}
