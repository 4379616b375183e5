package config

import (
	"path/filepath"

	"github.com/ziadkadry99/distill/internal/model"
)

// DefaultFile is the configuration file looked up in the working directory.
const DefaultFile = ".distill.yml"

// QualityPreset describes the models to use for a given quality tier.
type QualityPreset struct {
	Model          string
	EmbeddingModel string
}

// qualityPresets maps each provider+quality combination to its model choices.
var qualityPresets = map[ProviderType]map[QualityTier]QualityPreset{
	ProviderAnthropic: {
		QualityLite:   {Model: "claude-haiku-4-5-20251001", EmbeddingModel: "text-embedding-3-small"},
		QualityNormal: {Model: "claude-sonnet-4-5-20250929", EmbeddingModel: "text-embedding-3-small"},
		QualityMax:    {Model: "claude-opus-4-1-20250805", EmbeddingModel: "text-embedding-3-large"},
	},
	ProviderOpenAI: {
		QualityLite:   {Model: "gpt-4o-mini", EmbeddingModel: "text-embedding-3-small"},
		QualityNormal: {Model: "gpt-4o", EmbeddingModel: "text-embedding-3-small"},
		QualityMax:    {Model: "gpt-4.1", EmbeddingModel: "text-embedding-3-large"},
	},
	ProviderOpenRouter: {
		QualityLite:   {Model: "openai/gpt-4o-mini", EmbeddingModel: "text-embedding-3-small"},
		QualityNormal: {Model: "anthropic/claude-sonnet-4.5", EmbeddingModel: "text-embedding-3-small"},
		QualityMax:    {Model: "anthropic/claude-opus-4.1", EmbeddingModel: "text-embedding-3-large"},
	},
	ProviderOllama: {
		QualityLite:   {Model: "llama3", EmbeddingModel: "nomic-embed-text"},
		QualityNormal: {Model: "llama3", EmbeddingModel: "nomic-embed-text"},
		QualityMax:    {Model: "llama3:70b", EmbeddingModel: "nomic-embed-text"},
	},
}

// DefaultIncludes are the document patterns read from the source root.
var DefaultIncludes = []string{"**/*.md", "**/*.markdown", "**/*.txt"}

// DefaultExcludes are glob patterns never read as documents.
var DefaultExcludes = []string{
	".git/**",
	".distill/**",
	"node_modules/**",
	".obsidian/**",
	".trash/**",
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider:          ProviderAnthropic,
		Model:             "claude-sonnet-4-5-20250929",
		EmbeddingProvider: ProviderOpenAI,
		EmbeddingModel:    "text-embedding-3-small",
		Quality:           QualityNormal,
		DataDir:           ".distill",
		Source: SourceConfig{
			Root:    ".",
			Include: DefaultIncludes,
			Exclude: DefaultExcludes,
		},
		DistillationStrategy:      model.StrategyGroup,
		SimilarityThreshold:       0.85,
		MinClusterSize:            5,
		MinSimilarityGroupSize:    2,
		WorkerPoolSize:            5,
		RandomSeed:                42,
		ChunkWords:                300,
		MaxNotesPerChunk:          5,
		MinNotesForDensity:        20,
		FallbackDistanceThreshold: 0.5,
		EmbeddingMaxChars:         24000,
		MaxRetries:                4,
	}
}

// GetPreset returns the quality preset for the given provider and tier.
// Returns the Normal Anthropic preset if the combination is not found.
func GetPreset(provider ProviderType, tier QualityTier) QualityPreset {
	if tiers, ok := qualityPresets[provider]; ok {
		if preset, ok := tiers[tier]; ok {
			return preset
		}
	}
	return qualityPresets[ProviderAnthropic][QualityNormal]
}

// DBPath is the SQLite database inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "distill.db")
}

// IndexDir is where the vector index is persisted.
func (c *Config) IndexDir() string {
	return filepath.Join(c.DataDir, "index")
}
