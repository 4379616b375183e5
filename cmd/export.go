package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/distill/internal/export"
	"github.com/ziadkadry99/distill/internal/provenance"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export active concepts as markdown or a static HTML site",
	Long: `Writes one page per active concept, with its perspectives, contradictions
and every source note, plus an index page. The markdown format mirrors the
page tree; the html format renders it into a static site.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().String("format", "markdown", "output format: markdown or html")
	exportCmd.Flags().StringP("output", "o", "", "output directory (default <data_dir>/export)")
	exportCmd.Flags().String("title", "", "title for the index page")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	format, _ := cmd.Flags().GetString("format")
	outDir, _ := cmd.Flags().GetString("output")
	title, _ := cmd.Flags().GetString("title")
	if format != "markdown" && format != "html" {
		return fmt.Errorf("unknown format %q (use markdown or html)", format)
	}

	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()
	if outDir == "" {
		outDir = filepath.Join(ws.cfg.DataDir, "export")
	}

	exp := export.New(ws.store, provenance.New(ws.store), title)
	pages, err := exp.Build(ctx)
	if err != nil {
		return err
	}

	if format == "html" {
		err = export.WriteHTML(outDir, exp.Title, pages)
	} else {
		err = export.WriteMarkdown(outDir, pages)
	}
	if err != nil {
		return fmt.Errorf("writing export: %w", err)
	}
	fmt.Printf("Exported %d concept page(s) to %s\n", len(pages)-1, outDir)
	return nil
}
