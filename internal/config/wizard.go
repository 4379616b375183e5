package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"

	"github.com/ziadkadry99/distill/internal/model"
)

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to .distill.yml.
func RunWizard() (*Config, error) {
	fmt.Println("Welcome to distill! Let's configure your vault.")
	fmt.Println()

	providerPrompt := promptui.Select{
		Label: "Select LLM provider",
		Items: []string{"anthropic", "openai", "openrouter", "ollama"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	provider := ProviderType(providerStr)

	qualityPrompt := promptui.Select{
		Label: "Select quality tier",
		Items: []string{
			"lite   - fast & cheap",
			"normal - balanced",
			"max    - highest quality",
		},
	}
	qualityIdx, _, err := qualityPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("quality selection: %w", err)
	}
	tiers := []QualityTier{QualityLite, QualityNormal, QualityMax}
	quality := tiers[qualityIdx]
	preset := GetPreset(provider, quality)

	rootPrompt := promptui.Prompt{
		Label:   "Folder containing your notes",
		Default: ".",
	}
	root, err := rootPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("source root: %w", err)
	}

	excludePrompt := promptui.Prompt{
		Label:   "Extra exclude patterns (comma-separated, leave blank for defaults)",
		Default: "",
	}
	excludeStr, err := excludePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("exclude patterns: %w", err)
	}
	exclude := append([]string(nil), DefaultExcludes...)
	exclude = append(exclude, splitAndTrim(excludeStr)...)

	strategyPrompt := promptui.Select{
		Label: "Distillation strategy",
		Items: []string{
			"group   - collapse near-duplicate notes into one concept",
			"cluster - one concept per topic, keeping every perspective",
		},
	}
	strategyIdx, _, err := strategyPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("strategy selection: %w", err)
	}
	strategy := []model.Strategy{model.StrategyGroup, model.StrategyCluster}[strategyIdx]

	thresholdPrompt := promptui.Prompt{
		Label:   "Similarity threshold",
		Default: "0.85",
		Validate: func(s string) error {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil || v <= 0 || v > 1 {
				return fmt.Errorf("enter a number in (0,1]")
			}
			return nil
		},
	}
	thresholdStr, err := thresholdPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("similarity threshold: %w", err)
	}
	threshold, _ := strconv.ParseFloat(thresholdStr, 64)

	cfg := DefaultConfig()
	cfg.Provider = provider
	cfg.Model = preset.Model
	cfg.EmbeddingProvider = embeddingProviderFor(provider)
	cfg.EmbeddingModel = preset.EmbeddingModel
	cfg.Quality = quality
	cfg.Source.Root = root
	cfg.Source.Exclude = exclude
	cfg.DistillationStrategy = strategy
	cfg.SimilarityThreshold = threshold

	for _, envVar := range []string{APIKeyEnvVar(provider), APIKeyEnvVar(cfg.EmbeddingProvider)} {
		if envVar != "" && os.Getenv(envVar) == "" {
			fmt.Printf("\nNote: Set %s in your environment (or .env) before running distill run.\n", envVar)
		}
	}

	if err := cfg.Save(DefaultFile); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("\nConfiguration saved to %s\n", DefaultFile)
	return cfg, nil
}

// embeddingProviderFor returns the default embedding provider for a given
// LLM provider. OpenAI embeddings are used for all cloud providers.
func embeddingProviderFor(p ProviderType) ProviderType {
	if p == ProviderOllama {
		return ProviderOllama
	}
	return ProviderOpenAI
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if token := strings.TrimSpace(part); token != "" {
			result = append(result, token)
		}
	}
	return result
}
