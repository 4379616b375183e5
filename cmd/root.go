package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/distill/internal/config"
	"github.com/ziadkadry99/distill/internal/logger"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "distill",
	Short: "Distill a personal note collection into linked concepts",
	Long: `distill breaks a collection of markdown and text notes into atomic notes,
embeds and clusters them by topic, and merges near-duplicates into distilled
concepts. Every concept links back to the exact note and document versions it
came from. Runs are incremental: unchanged documents are never reprocessed.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// API keys may live in .env; a missing file is fine.
		_ = godotenv.Load()
		logger.SetVerbose(verbose)
	},
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultFile, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
