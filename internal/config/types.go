package config

import "github.com/ziadkadry99/distill/internal/model"

// QualityTier controls the model selection and trade-off between speed/cost and quality.
type QualityTier string

const (
	QualityLite   QualityTier = "lite"
	QualityNormal QualityTier = "normal"
	QualityMax    QualityTier = "max"
)

// ProviderType identifies an LLM or embedding provider.
type ProviderType string

const (
	ProviderAnthropic  ProviderType = "anthropic"
	ProviderOpenAI     ProviderType = "openai"
	ProviderOpenRouter ProviderType = "openrouter"
	ProviderOllama     ProviderType = "ollama"
)

// Config is the top-level distill configuration, corresponding to .distill.yml.
type Config struct {
	Provider          ProviderType `yaml:"provider" koanf:"provider"`
	Model             string       `yaml:"model" koanf:"model"`
	EmbeddingProvider ProviderType `yaml:"embedding_provider" koanf:"embedding_provider"`
	EmbeddingModel    string       `yaml:"embedding_model" koanf:"embedding_model"`
	Quality           QualityTier  `yaml:"quality" koanf:"quality"`
	DataDir           string       `yaml:"data_dir" koanf:"data_dir"`
	Source            SourceConfig `yaml:"source" koanf:"source"`

	DistillationStrategy   model.Strategy `yaml:"distillation_strategy" koanf:"distillation_strategy"`
	SimilarityThreshold    float64        `yaml:"similarity_threshold" koanf:"similarity_threshold"`
	MinClusterSize         int            `yaml:"min_cluster_size" koanf:"min_cluster_size"`
	MinSimilarityGroupSize int            `yaml:"min_similarity_group_size" koanf:"min_similarity_group_size"`
	WorkerPoolSize         int            `yaml:"worker_pool_size" koanf:"worker_pool_size"`
	RandomSeed             int64          `yaml:"random_seed" koanf:"random_seed"`

	ChunkWords                int     `yaml:"chunk_words" koanf:"chunk_words"`
	MaxNotesPerChunk          int     `yaml:"max_notes_per_chunk" koanf:"max_notes_per_chunk"`
	MinNotesForDensity        int     `yaml:"min_notes_for_density" koanf:"min_notes_for_density"`
	FallbackDistanceThreshold float64 `yaml:"fallback_distance_threshold" koanf:"fallback_distance_threshold"`
	EmbeddingMaxChars         int     `yaml:"embedding_max_chars" koanf:"embedding_max_chars"`
	EmbeddingDimensions       int     `yaml:"embedding_dimensions" koanf:"embedding_dimensions"`
	MaxRetries                int     `yaml:"max_retries" koanf:"max_retries"`
	RequestsPerMinute         int     `yaml:"requests_per_minute" koanf:"requests_per_minute"`
}

// SourceConfig selects the documents the file system source yields.
type SourceConfig struct {
	Root    string   `yaml:"root" koanf:"root"`
	Include []string `yaml:"include" koanf:"include"`
	Exclude []string `yaml:"exclude" koanf:"exclude"`
}
