package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/distill/internal/extract"
	"github.com/ziadkadry99/distill/internal/llm"
	"github.com/ziadkadry99/distill/internal/logger"
	"github.com/ziadkadry99/distill/internal/model"
	"github.com/ziadkadry99/distill/internal/pipeline"
	"github.com/ziadkadry99/distill/internal/progress"
	"github.com/ziadkadry99/distill/internal/source"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Extract, embed, cluster and distill the note collection",
	Long: `Reads every document under source.root, extracts atomic notes from new and
changed documents, embeds them, clusters the whole collection by topic and
distills each cluster into concepts. Interrupting a run (Ctrl-C) keeps all
finished work; the next run resumes where it stopped. With --watch, the run
repeats whenever documents under source.root change.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().Int("workers", 0, "concurrent documents (overrides worker_pool_size)")
	runCmd.Flags().String("strategy", "", "distillation strategy: group or cluster (overrides config)")
	runCmd.Flags().Bool("anchor-only", false, "group strategy: use the anchor note as theme instead of asking for a merged one")
	runCmd.Flags().Bool("json", false, "print the run result as JSON")
	runCmd.Flags().Bool("watch", false, "keep running and re-run when documents change")
	runCmd.Flags().Duration("debounce", source.DefaultDebounce, "with --watch, quiet period before a re-run")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	start := time.Now()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()
	cfg := ws.cfg

	if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
		cfg.WorkerPoolSize = workers
	}
	if s, _ := cmd.Flags().GetString("strategy"); s != "" {
		cfg.DistillationStrategy = model.Strategy(s)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	anchorOnly, _ := cmd.Flags().GetBool("anchor-only")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	provider, err := createLLMProviderFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("creating LLM provider: %w", err)
	}
	embedder, err := createEmbedderFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}

	var synthProvider llm.Provider = provider
	if anchorOnly {
		synthProvider = nil
	}
	strategy, err := createStrategy(cfg, synthProvider)
	if err != nil {
		return err
	}

	extractor := extract.New(extract.NewLLMService(provider, cfg.Model), extractOptions(cfg))
	p := pipeline.New(ws.store, ws.tracker, extractor, embedder, strategy, pipeline.Options{
		Workers:        cfg.WorkerPoolSize,
		Cluster:        clusterOptions(cfg),
		IndexDir:       cfg.IndexDir(),
		EmbeddingModel: string(cfg.EmbeddingProvider) + "/" + cfg.EmbeddingModel,
	})
	if idx, err := openIndex(ctx, cfg, embedder); err != nil {
		logger.Warn("search index will not be refreshed", "err", err)
	} else {
		p.SetIndex(idx)
	}
	if !jsonOutput {
		p.SetReporter(progress.NewReporter())
	}

	src := source.FileSystem{
		Root:    cfg.Source.Root,
		Include: cfg.Source.Include,
		Exclude: cfg.Source.Exclude,
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "Reading documents under %s (strategy %s, %d workers)\n",
			cfg.Source.Root, strategy.Name(), cfg.WorkerPoolSize)
	}

	runOnce := func(start time.Time) error {
		before := provider.Usage()
		res, runErr := p.Run(ctx, src)
		if res == nil {
			return runErr
		}
		usage := provider.Usage().Sub(before)

		if jsonOutput {
			if err := printJSON(struct {
				*pipeline.Result
				Usage llm.Usage `json:"usage"`
			}{res, usage}); err != nil {
				return err
			}
			return runErr
		}
		printRunResult(res, usage, time.Since(start))
		return runErr
	}

	if watch, _ := cmd.Flags().GetBool("watch"); !watch {
		return runOnce(start)
	}

	debounce, _ := cmd.Flags().GetDuration("debounce")
	changes, err := src.Watch(ctx, debounce)
	if err != nil {
		return err
	}
	for {
		if err := runOnce(start); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("run failed", "err", err)
		}
		if !jsonOutput {
			fmt.Fprintf(os.Stderr, "\nWatching %s for changes (Ctrl-C to stop)\n", cfg.Source.Root)
		}
		if _, ok := <-changes; !ok {
			return nil
		}
		start = time.Now()
	}
}

func printRunResult(res *pipeline.Result, usage llm.Usage, elapsed time.Duration) {
	fmt.Printf("Run %s %s in %s\n\n", res.RunID, res.Status, elapsed.Round(time.Millisecond))
	fmt.Printf("  Documents:  %d total, %d ingested, %d unchanged, %d with failures\n",
		res.Documents, res.DocumentsIngested, res.DocumentsSkipped, res.DocumentsFailed)
	fmt.Printf("  Notes:      %d new, %d revised, %d retired, %d embedded\n",
		res.NotesCreated, res.NotesRevised, res.NotesRetired, res.Embedded)
	if res.ClusterMethod != "" {
		fmt.Printf("  Clusters:   %d (%s), %d notes unclustered\n", res.Clusters, res.ClusterMethod, res.Unclustered)
	}
	fmt.Printf("  Concepts:   %d new, %d reused, %d superseded (%d units)\n",
		res.ConceptsCreated, res.ConceptsReused, res.ConceptsSuperseded, res.Units)
	fmt.Printf("  Service:    %d calls, %d in / %d out tokens, ~$%.4f\n",
		usage.Calls, usage.InputTokens, usage.OutputTokens, usage.CostUSD)

	if res.ErrorCount == 0 {
		return
	}
	fmt.Printf("\n%d unit(s) failed:\n", res.ErrorCount)
	for i, ue := range res.Errors {
		if i == 10 {
			fmt.Printf("  ... and %d more (see `distill status --errors`)\n", res.ErrorCount-i)
			break
		}
		fmt.Printf("  - %s\n", ue.Error())
	}
}
