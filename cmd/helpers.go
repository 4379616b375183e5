package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/ziadkadry99/distill/internal/cluster"
	"github.com/ziadkadry99/distill/internal/config"
	"github.com/ziadkadry99/distill/internal/db"
	"github.com/ziadkadry99/distill/internal/distill"
	"github.com/ziadkadry99/distill/internal/embeddings"
	"github.com/ziadkadry99/distill/internal/extract"
	"github.com/ziadkadry99/distill/internal/llm"
	"github.com/ziadkadry99/distill/internal/logger"
	"github.com/ziadkadry99/distill/internal/state"
	"github.com/ziadkadry99/distill/internal/store"
	"github.com/ziadkadry99/distill/internal/vectordb"
)

// workspace bundles the configuration and the opened persistent store.
type workspace struct {
	cfg     *config.Config
	db      *db.DB
	store   *store.Store
	tracker *state.Tracker
}

// openWorkspace loads the config and opens the database it points at.
func openWorkspace() (*workspace, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	database, err := db.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return &workspace{
		cfg:     cfg,
		db:      database,
		store:   store.New(database),
		tracker: state.NewTracker(database),
	}, nil
}

func (w *workspace) Close() error {
	return w.db.Close()
}

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `distill init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

func backoffFromConfig(cfg *config.Config) llm.Backoff {
	b := llm.DefaultBackoff
	b.MaxRetries = cfg.MaxRetries
	return b
}

// createLLMProviderFromConfig creates the text-generation provider wrapped
// in rate limiting, retries and usage metering.
func createLLMProviderFromConfig(cfg *config.Config) (*llm.MeteredProvider, error) {
	p, err := llm.NewProvider(string(cfg.Provider), cfg.Model)
	if err != nil {
		return nil, err
	}
	return llm.Stack(p, cfg.Model, llm.StackOptions{
		RequestsPerMinute: cfg.RequestsPerMinute,
		Backoff:           backoffFromConfig(cfg),
	}), nil
}

// createEmbedderFromConfig creates the embedding service used by run,
// query, serve and server.
func createEmbedderFromConfig(cfg *config.Config) (*embeddings.Service, error) {
	var e embeddings.Embedder
	switch cfg.EmbeddingProvider {
	case config.ProviderOpenAI:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI))
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required for OpenAI embeddings")
		}
		e = embeddings.NewOpenAIEmbedder(apiKey, embeddings.OpenAIModel(cfg.EmbeddingModel), os.Getenv("OPENAI_BASE_URL"))
	case config.ProviderOllama:
		e = embeddings.NewOllamaEmbedder(cfg.EmbeddingModel, cfg.EmbeddingDimensions, llm.OllamaHost())
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.EmbeddingProvider)
	}
	return embeddings.NewService(e, embeddings.ServiceOptions{
		MaxChars:          cfg.EmbeddingMaxChars,
		Backoff:           backoffFromConfig(cfg),
		RequestsPerMinute: cfg.RequestsPerMinute,
	}), nil
}

// openIndex loads the persisted search index. A missing index is empty.
func openIndex(ctx context.Context, cfg *config.Config, svc *embeddings.Service) (*vectordb.ChromemStore, error) {
	idx, err := vectordb.NewChromemStore(embeddings.ChromemFunc(svc))
	if err != nil {
		return nil, fmt.Errorf("creating search index: %w", err)
	}
	if err := idx.Load(ctx, cfg.IndexDir()); err != nil {
		return nil, fmt.Errorf("loading search index from %s: %w", cfg.IndexDir(), err)
	}
	return idx, nil
}

// openIndexOrWarn is openIndex for read-only commands, which keep working
// without search when the index is unavailable.
func openIndexOrWarn(ctx context.Context, cfg *config.Config) vectordb.VectorStore {
	svc, err := createEmbedderFromConfig(cfg)
	if err != nil {
		logger.Warn("search disabled", "err", err)
		return nil
	}
	idx, err := openIndex(ctx, cfg, svc)
	if err != nil {
		logger.Warn("search disabled", "err", err)
		return nil
	}
	return idx
}

func extractOptions(cfg *config.Config) extract.Options {
	return extract.Options{
		ChunkWords:       cfg.ChunkWords,
		MaxNotesPerChunk: cfg.MaxNotesPerChunk,
	}
}

func clusterOptions(cfg *config.Config) cluster.Options {
	return cluster.Options{
		Seed:               cfg.RandomSeed,
		MinClusterSize:     cfg.MinClusterSize,
		MinNotesForDensity: cfg.MinNotesForDensity,
		FallbackDistance:   cfg.FallbackDistanceThreshold,
	}
}

// createStrategy builds the configured distillation strategy. A nil
// provider gives the group strategy without merge calls.
func createStrategy(cfg *config.Config, provider llm.Provider) (distill.Strategy, error) {
	var synth distill.Synthesizer
	if provider != nil {
		synth = distill.NewLLMSynthesizer(provider, cfg.Model)
	}
	return distill.New(cfg.DistillationStrategy, synth, distill.Options{
		SimilarityThreshold:    cfg.SimilarityThreshold,
		MinSimilarityGroupSize: cfg.MinSimilarityGroupSize,
	})
}
