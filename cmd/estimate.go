package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/distill/internal/config"
	"github.com/ziadkadry99/distill/internal/extract"
	"github.com/ziadkadry99/distill/internal/llm"
	"github.com/ziadkadry99/distill/internal/model"
	"github.com/ziadkadry99/distill/internal/source"
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate the extraction cost of the next run",
	Long:  `Counts the documents the next run would extract, estimates tokens from the prompts it would send, and prices them without making any calls.`,
	RunE:  runEstimate,
}

func init() {
	rootCmd.AddCommand(estimateCmd)
}

func runEstimate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()
	cfg := ws.cfg

	docs, err := source.FileSystem{
		Root:    cfg.Source.Root,
		Include: cfg.Source.Include,
		Exclude: cfg.Source.Exclude,
	}.Documents(ctx)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println("No documents found under", cfg.Source.Root)
		return nil
	}

	extractor := extract.New(nil, extractOptions(cfg))
	var est extract.Estimate
	for _, doc := range docs {
		pending, err := ws.tracker.Pending(ctx, doc, model.StageExtract)
		if err != nil {
			return err
		}
		if pending {
			est.Add(extractor.Estimate(doc))
		}
	}

	fmt.Println("Cost Estimate")
	fmt.Println("=============")
	fmt.Printf("  Documents found:     %d\n", len(docs))
	fmt.Printf("  Documents to extract: %d (%d chunks)\n", est.Documents, est.Chunks)
	fmt.Printf("  Service calls:       %d\n", est.Calls)
	fmt.Printf("  Estimated tokens:    %d in / %d out\n", est.InputTokens, est.OutputTokens)
	fmt.Println()

	fmt.Println("  Tier Comparison:")
	fmt.Println("  ────────────────────────────────────────")
	for _, tier := range []config.QualityTier{config.QualityLite, config.QualityNormal, config.QualityMax} {
		preset := config.GetPreset(cfg.Provider, tier)
		marker := " "
		if preset.Model == cfg.Model {
			marker = "*"
		}
		fmt.Printf("  %s %-8s  ~$%.4f  (model: %s)\n", marker, tier,
			llm.EstimateCost(preset.Model, est.InputTokens, est.OutputTokens), preset.Model)
	}
	fmt.Println()
	fmt.Println("  * = current model")
	fmt.Println("  Distillation calls depend on the clusters found and are not included.")
	return nil
}
