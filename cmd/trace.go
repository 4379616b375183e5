package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/distill/internal/provenance"
)

var traceCmd = &cobra.Command{
	Use:   "trace [concept-id]",
	Short: "Trace a concept back to its source notes and documents",
	Long: `Prints a concept with every note it was distilled from and the document
version each note was extracted from. With --verify, checks that every
provenance link in the store resolves instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTrace,
}

func init() {
	traceCmd.Flags().Bool("verify", false, "check every concept's provenance links")
	traceCmd.Flags().Bool("json", false, "output as JSON")
	rootCmd.AddCommand(traceCmd)
}

func runTrace(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	verify, _ := cmd.Flags().GetBool("verify")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	if !verify && len(args) == 0 {
		return errors.New("a concept id is required unless --verify is set")
	}

	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()
	graph := provenance.New(ws.store)

	if verify {
		dangling, err := graph.Verify(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			if dangling == nil {
				dangling = []provenance.Dangling{}
			}
			return printJSON(dangling)
		}
		if len(dangling) == 0 {
			fmt.Println("All provenance links resolve.")
			return nil
		}
		fmt.Printf("%d dangling link(s):\n", len(dangling))
		for _, d := range dangling {
			fmt.Printf("  %s -> %s: %s\n", d.ConceptID, d.Source.NoteID, d.Reason)
		}
		return fmt.Errorf("provenance graph has %d dangling link(s)", len(dangling))
	}

	tr, err := graph.Trace(ctx, args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(tr)
	}
	fmt.Print(provenance.Format(tr))
	return nil
}
