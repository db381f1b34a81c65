package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"ingres/internal/chunker"
	"ingres/internal/config"
	"ingres/internal/contextbuilder"
	"ingres/internal/domain"
	"ingres/internal/embedding/hashing"
	embedopenai "ingres/internal/embedding/openai"
	genopenai "ingres/internal/generation/openai"
	"ingres/internal/ingest"
	"ingres/internal/intent"
	"ingres/internal/metrics"
	"ingres/internal/service"
	"ingres/internal/session"
	sessionmemory "ingres/internal/session/memory"
	sessionredis "ingres/internal/session/redis"
	"ingres/internal/structured"
	"ingres/internal/structured/memory"
	"ingres/internal/structured/postgres"
	"ingres/internal/summarizer"
	"ingres/internal/vectorindex"
	"ingres/internal/vectorindex/qdrant"
)

// App is the process-scoped set of components, built once from config.
// Call Initialize before serving queries and Shutdown when done.
type App struct {
	Config    *config.AppConfig
	Embedder  domain.Embedder
	Index     vectorindex.Backend
	Records   domain.RecordStore
	Retriever *structured.Retriever
	Generator domain.Generator
	Sessions  session.Store
	Metrics   *metrics.Recorder
	Service   *service.QueryService
	Rebuilder *ingest.Rebuilder

	logOut io.Writer
	logger *log.Logger

	mu          sync.Mutex
	initialized bool
	indexLoaded bool
	lastRebuild *ingest.Report
}

// Health is what the stats command and the chat header report.
type Health struct {
	Initialized          bool              `json:"initialized"`
	Index                domain.IndexStats `json:"index"`
	IndexBackend         string            `json:"index_backend"`
	IndexLoaded          bool              `json:"index_loaded_from_disk"`
	Store                string            `json:"structured_store"`
	GenerationConfigured bool              `json:"generation_configured"`
	Sessions             string            `json:"session_store"`
	LastRebuild          *ingest.Report    `json:"last_rebuild,omitempty"`
}

// New assembles every component named by cfg. Connections to external
// stores are opened here; logs go to logOut, or stderr when nil.
func New(ctx context.Context, cfg *config.AppConfig, logOut io.Writer) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logOut == nil {
		logOut = os.Stderr
	}
	a := &App{Config: cfg, logOut: logOut, Metrics: metrics.New()}
	a.logger = a.newLogger("APP")

	var err error
	if a.Embedder, err = a.buildEmbedder(); err != nil {
		return nil, err
	}
	a.Index = a.buildIndex()

	var seed []domain.Record
	if a.Records, seed, err = a.buildStore(ctx); err != nil {
		return nil, err
	}
	if a.Generator, err = a.buildGenerator(); err != nil {
		a.closeStores()
		return nil, err
	}
	if a.Sessions, err = a.buildSessions(); err != nil {
		a.closeStores()
		return nil, err
	}

	a.Retriever = structured.NewRetriever(a.Records, cfg.Retrieval.Limit, cfg.Retrieval.RawLimit, a.newLogger("STRUCTURED"))
	extractor := intent.NewExtractor(intent.DefaultVocabulary)
	deps := service.Deps{
		Extractor:  extractor,
		Classifier: intent.NewClassifier(extractor, nil),
		Structured: a.Retriever,
		Documents:  a.Index,
		Builder:    contextbuilder.New(contextbuilder.Options{Logger: a.newLogger("CONTEXT")}),
		Generator:  a.Generator,
		Sessions:   a.Sessions,
		Metrics:    a.Metrics,
		Logger:     a.newLogger("ORCHESTRATOR"),
	}
	a.Service = service.NewQueryService(deps, service.Options{
		DefaultTopK:    cfg.Index.DefaultTopK,
		ComparisonTopK: cfg.Index.ComparisonTopK,
		HistoryTurns:   cfg.Session.HistoryTurns,
	})

	writer, _ := a.Records.(domain.RecordWriter)
	a.Rebuilder = ingest.NewRebuilder(a.Index, writer,
		chunker.NewSentenceChunker(cfg.Ingest.SentencesPerChunk, cfg.Ingest.OverlapSentences),
		summarizer.NewFrequencySummarizer(),
		structured.DefaultAliases,
		ingest.Options{
			Documents:        cfg.Ingest.Documents,
			RecordsFile:      cfg.Ingest.RecordsFile,
			Records:          seed,
			SummarySentences: cfg.Ingest.SummarySentences,
			Persist:          cfg.Index.Backend == "qdrant" || cfg.Index.Path != "",
			Logger:           a.newLogger("INGEST"),
		})
	return a, nil
}

func (a *App) newLogger(component string) *log.Logger {
	return log.New(a.logOut, "["+component+"] ", log.LstdFlags)
}

func (a *App) buildEmbedder() (domain.Embedder, error) {
	cfg := a.Config.Embedder
	switch cfg.Type {
	case "hashing":
		return hashing.NewEmbedder(cfg.Dimension), nil
	case "openai":
		client, err := embedopenai.NewClient(embedopenai.Config{
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKeyEnv:  cfg.OpenAI.APIKeyEnv,
			Model:      cfg.OpenAI.Model,
			BatchSize:  cfg.OpenAI.BatchSize,
			MaxRetries: cfg.OpenAI.MaxRetries,
			Timeout:    time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}

func (a *App) buildIndex() vectorindex.Backend {
	cfg := a.Config.Index
	switch cfg.Backend {
	case "qdrant":
		return qdrant.NewStore(qdrant.Config{
			URL:          cfg.Qdrant.URL,
			APIKey:       cfg.Qdrant.APIKey,
			Collection:   cfg.Qdrant.Collection,
			Timeout:      time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
			DefaultTopK:  cfg.DefaultTopK,
			EmbedTimeout: a.Config.EmbedTimeout(),
			Logger:       a.newLogger("QDRANT"),
		}, a.Embedder)
	default:
		dim := 0
		if a.Config.Embedder.Type == "hashing" {
			dim = a.Embedder.Dimension()
		}
		return vectorindex.New(a.Embedder, vectorindex.Options{
			Path:         cfg.Path,
			DefaultTopK:  cfg.DefaultTopK,
			Dimension:    dim,
			EmbedTimeout: a.Config.EmbedTimeout(),
			Logger:       a.newLogger("INDEX"),
		})
	}
}

// buildStore also returns the seed records of the in-memory store, which a
// rebuild indexes when no records file is configured.
func (a *App) buildStore(ctx context.Context) (domain.RecordStore, []domain.Record, error) {
	cfg := a.Config.Store
	logger := a.newLogger("STORE")
	switch cfg.Type {
	case "postgres":
		st, err := postgres.Open(ctx, cfg.Postgres.DSN, cfg.Postgres.Table, structured.DefaultAliases, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres store: %w", err)
		}
		return st, nil, nil
	default:
		seed := memory.DefaultRecords()
		if cfg.SeedFile != "" {
			recs, err := memory.ReadRecords(cfg.SeedFile)
			if err != nil {
				return nil, nil, fmt.Errorf("memory store: %w", err)
			}
			seed = recs
		}
		st, err := memory.New(seed, structured.DefaultAliases, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("memory store: %w", err)
		}
		return st, seed, nil
	}
}

// buildGenerator returns nil for type none; the orchestrator then answers
// from templates.
func (a *App) buildGenerator() (domain.Generator, error) {
	cfg := a.Config.Generation
	if cfg.Type != "openai" {
		return nil, nil
	}
	key := ""
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	gen, err := genopenai.New(genopenai.Config{
		BaseURL:     cfg.BaseURL,
		APIKey:      key,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     a.Config.GenerationTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("generation: %w", err)
	}
	return gen, nil
}

func (a *App) buildSessions() (session.Store, error) {
	cfg := a.Config.Session
	switch cfg.Type {
	case "none":
		return nil, nil
	case "redis":
		return sessionredis.New(sessionredis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      a.Config.SessionTTL(),
		}), nil
	default:
		return sessionmemory.New(), nil
	}
}

// Initialize loads the persisted index and, on a cold start with
// index.build_on_start, rebuilds it from sources. A missing index is not an
// error.
func (a *App) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialized {
		return nil
	}
	if rs, ok := a.Sessions.(*sessionredis.Store); ok {
		if err := rs.Ping(ctx); err != nil {
			return fmt.Errorf("redis sessions: %w", err)
		}
	}

	a.indexLoaded = a.Index.Load()
	if !a.indexLoaded {
		a.logger.Printf("no persisted index found")
		if a.Config.Index.BuildOnStart {
			rep, err := a.Rebuilder.Rebuild(ctx)
			if err != nil {
				return fmt.Errorf("initial index build: %w", err)
			}
			a.lastRebuild = &rep
		}
	}
	a.Metrics.SetIndexDocuments(a.Index.Stats().Documents)
	a.initialized = true
	a.logger.Printf("initialized: %d documents indexed, store=%s, generation=%t",
		a.Index.Stats().Documents, a.Records.Name(), a.Generator != nil)
	return nil
}

// Reindex runs a full rebuild and records it for Health.
func (a *App) Reindex(ctx context.Context) (ingest.Report, error) {
	rep, err := a.Rebuilder.Rebuild(ctx)
	a.AfterRebuild(rep, err)
	return rep, err
}

// AfterRebuild records the outcome of a rebuild triggered elsewhere, such
// as the source watcher.
func (a *App) AfterRebuild(rep ingest.Report, err error) {
	if err != nil {
		return
	}
	a.mu.Lock()
	a.lastRebuild = &rep
	a.mu.Unlock()
	a.Metrics.SetIndexDocuments(rep.IndexedStats.Documents)
}

// Health reports component status.
func (a *App) Health() Health {
	a.mu.Lock()
	defer a.mu.Unlock()
	h := Health{
		Initialized:          a.initialized,
		Index:                a.Index.Stats(),
		IndexBackend:         a.Config.Index.Backend,
		IndexLoaded:          a.indexLoaded,
		Store:                a.Records.Name(),
		GenerationConfigured: a.Generator != nil,
		Sessions:             a.Config.Session.Type,
		LastRebuild:          a.lastRebuild,
	}
	return h
}

// Shutdown closes external connections.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.Sessions != nil {
		if err := a.Sessions.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sessions: %w", err))
		}
	}
	if err := a.closeStores(); err != nil {
		errs = append(errs, err)
	}
	a.logger.Printf("shut down")
	return errors.Join(errs...)
}

func (a *App) closeStores() error {
	if a.Records == nil {
		return nil
	}
	if err := a.Records.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
