package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/distill/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize distill configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to configure distill for your note collection and generates a .distill.yml file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard()
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
