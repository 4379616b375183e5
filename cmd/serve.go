package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/ziadkadry99/distill/internal/mcp"
	"github.com/ziadkadry99/distill/internal/vectordb"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server for AI agent integration",
	Long:  `Starts a Model Context Protocol (MCP) server on stdio, exposing concept search, concept lookup, provenance tracing and pipeline status to AI agents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		idx := openIndexOrWarn(context.Background(), ws.cfg)

		// Set version from the cmd package variable.
		mcpserver.Version = Version

		concepts := 0
		if idx != nil {
			concepts = idx.Count(vectordb.KindConcept)
		}
		fmt.Fprintf(os.Stderr, "distill MCP server started on stdio (db=%s, indexed concepts=%d)\n", ws.cfg.DBPath(), concepts)

		srv := mcpserver.NewServer(ws.store, ws.tracker, idx)
		return srv.Serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
