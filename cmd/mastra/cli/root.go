package cli

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:          "mastra",
	Short:        "Inspect persisted workflow runs",
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to the run snapshot database (default ~/.mastra/runs.db)")

	viper.SetEnvPrefix("MASTRA")
	viper.AutomaticEnv()
	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))

	rootCmd.AddCommand(runsCmd)
}
