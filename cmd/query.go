package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/distill/internal/vectordb"
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Semantically search distilled concepts or atomic notes",
	Long:  `Searches the index built by the last run using a natural language query and returns the closest concepts (or notes with --notes).`,
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().Int("limit", 10, "maximum number of results")
	queryCmd.Flags().Bool("notes", false, "search atomic notes instead of concepts")
	queryCmd.Flags().String("strategy", "", "only concepts from this strategy: group or cluster")
	queryCmd.Flags().String("document", "", "only notes of this document (with --notes)")
	queryCmd.Flags().Bool("json", false, "output results as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	queryText := args[0]

	limit, _ := cmd.Flags().GetInt("limit")
	notes, _ := cmd.Flags().GetBool("notes")
	strategy, _ := cmd.Flags().GetString("strategy")
	document, _ := cmd.Flags().GetString("document")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	embedder, err := createEmbedderFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	idx, err := openIndex(ctx, cfg, embedder)
	if err != nil {
		return err
	}

	kind := vectordb.KindConcept
	if notes {
		kind = vectordb.KindNote
	}
	if idx.Count(kind) == 0 {
		fmt.Printf("The %s index is empty. Run `distill run` first.\n", kind)
		return nil
	}

	var filter *vectordb.SearchFilter
	switch {
	case notes && document != "":
		filter = &vectordb.SearchFilter{DocumentID: &document}
	case !notes && strategy != "":
		filter = &vectordb.SearchFilter{Strategy: &strategy}
	}

	results, err := idx.Search(ctx, kind, queryText, limit, filter)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if jsonOutput {
		return printQueryResultsJSON(results)
	}
	fmt.Print(vectordb.FormatResults(results))
	return nil
}

type queryResultJSON struct {
	Rank       int     `json:"rank"`
	ID         string  `json:"id"`
	Kind       string  `json:"kind"`
	Similarity float64 `json:"similarity"`
	DocumentID string  `json:"document_id,omitempty"`
	Strategy   string  `json:"strategy,omitempty"`
	Content    string  `json:"content"`
}

func printQueryResultsJSON(results []vectordb.SearchResult) error {
	out := make([]queryResultJSON, 0, len(results))
	for i, r := range results {
		out = append(out, queryResultJSON{
			Rank:       i + 1,
			ID:         r.Entry.ID,
			Kind:       string(r.Kind),
			Similarity: float64(r.Similarity),
			DocumentID: r.Entry.Metadata.DocumentID,
			Strategy:   r.Entry.Metadata.Strategy,
			Content:    r.Entry.Content,
		})
	}
	return printJSON(out)
}
