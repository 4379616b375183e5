package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/distill/internal/model"
	"github.com/ziadkadry99/distill/internal/provenance"
)

var conceptsCmd = &cobra.Command{
	Use:   "concepts",
	Short: "List distilled concepts",
	RunE:  runConcepts,
}

func init() {
	conceptsCmd.Flags().Bool("all", false, "include superseded concepts")
	conceptsCmd.Flags().String("document", "", "only concepts citing notes of this document")
	conceptsCmd.Flags().Bool("json", false, "output as JSON")
	rootCmd.AddCommand(conceptsCmd)
}

func runConcepts(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	all, _ := cmd.Flags().GetBool("all")
	document, _ := cmd.Flags().GetString("document")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	var concepts []model.DistilledConcept
	if document != "" {
		concepts, err = provenance.New(ws.store).ConceptsForDocument(ctx, document)
	} else {
		concepts, err = ws.store.AllConcepts(ctx, all)
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		if concepts == nil {
			concepts = []model.DistilledConcept{}
		}
		return printJSON(concepts)
	}
	if len(concepts) == 0 {
		fmt.Println("No concepts yet. Run `distill run` to distill the collection.")
		return nil
	}

	fmt.Printf("%d concept(s):\n\n", len(concepts))
	for _, c := range concepts {
		marker := ""
		if !c.Active() {
			marker = " [superseded]"
		}
		fmt.Printf("  %s%s (%s, %d source note(s))\n", c.ID, marker, c.Strategy, len(c.Sources))
		fmt.Printf("     %s\n", truncate(c.Theme, 160))
		for _, p := range c.Perspectives {
			fmt.Printf("       - %s\n", truncate(p.Statement, 140))
		}
		if n := len(c.Contradictions); n > 0 {
			fmt.Printf("       %d contradiction(s)\n", n)
		}
		fmt.Println()
	}
	return nil
}
