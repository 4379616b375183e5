package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/distill/internal/model"
	"github.com/ziadkadry99/distill/internal/pipeline"
	"github.com/ziadkadry99/distill/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what has been distilled and what is still pending",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().Bool("json", false, "output as JSON")
	statusCmd.Flags().Bool("errors", false, "list open unit errors")
	statusCmd.Flags().String("document", "", "with --errors, only errors of this document")
	statusCmd.Flags().Int("limit", 50, "with --errors, maximum errors listed")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	jsonOutput, _ := cmd.Flags().GetBool("json")
	showErrors, _ := cmd.Flags().GetBool("errors")

	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	if showErrors {
		docID, _ := cmd.Flags().GetString("document")
		limit, _ := cmd.Flags().GetInt("limit")
		records, err := ws.tracker.OpenErrors(ctx, state.ErrorFilter{DocumentID: docID, Limit: limit})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(records)
		}
		printOpenErrors(records)
		return nil
	}

	st, err := pipeline.ReadStatus(ctx, ws.store, ws.tracker)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(st)
	}

	fmt.Println("distill status")
	fmt.Println("==============")
	fmt.Printf("  Documents:        %d\n", st.Documents)
	fmt.Printf("  Notes:            %d (%d embedded)\n", st.Notes, st.EmbeddedNotes)
	fmt.Printf("  Concepts:         %d active, %d total\n", st.ActiveConcepts, st.Concepts)
	fmt.Println()
	fmt.Println("  Stages complete:")
	for _, stage := range model.DocumentStages {
		fmt.Printf("    %-8s %d/%d\n", stage, st.StagesComplete[stage], st.Documents)
	}
	fmt.Println()
	fmt.Printf("  Open errors:      %d\n", st.OpenErrors)
	if st.LastRun != nil {
		r := st.LastRun
		fmt.Printf("  Last run:         %s %s (%s, started %s)\n",
			r.ID, r.Status, r.Strategy, r.StartedAt.Local().Format("2006-01-02 15:04"))
	} else {
		fmt.Println("  Last run:         never. Run `distill run` to start.")
	}
	return nil
}

func printOpenErrors(records []state.ErrorRecord) {
	if len(records) == 0 {
		fmt.Println("No open errors.")
		return
	}
	fmt.Printf("%d open error(s):\n\n", len(records))
	for _, r := range records {
		where := r.DocumentID
		if r.Unit != "" {
			if where != "" {
				where += " "
			}
			where += r.Unit
		}
		retry := "retryable"
		if !r.Retryable {
			retry = "permanent"
		}
		fmt.Printf("  [%s] %s %s (%s, %s)\n", r.RecordedAt.Local().Format("2006-01-02 15:04"), r.Stage, where, r.Kind, retry)
		fmt.Printf("      %s\n", truncate(r.Message, 200))
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
