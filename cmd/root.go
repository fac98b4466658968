// Package cmd implements the command-line interface for the orchestration
// engine. It provides the root command and subcommands for running the engine
// and inspecting its configured cycles, jobs, and query sets.
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cicconel11/TruthLayer-sub001/cmd/common"
	"github.com/cicconel11/TruthLayer-sub001/cmd/cycles"
	"github.com/cicconel11/TruthLayer-sub001/cmd/jobs"
	cmdqueries "github.com/cicconel11/TruthLayer-sub001/cmd/queries"
	"github.com/cicconel11/TruthLayer-sub001/cmd/serve"
)

var rootCmd = &cobra.Command{
	Use:   "truthlayer-engine",
	Short: "Search collection orchestration engine",
	Long: `The orchestration engine schedules and runs search result collection
cycles for the TruthLayer platform: a priority job queue, a cron scheduler,
and a collection orchestrator behind one HTTP API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	// Load .env early so the viper bindings below see its values.
	_ = godotenv.Load()

	if err := initViper(); err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}
	return rootCmd.ExecuteContext(context.Background())
}

// init initializes the root command and its subcommands.
func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default is ./config.yml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("truthlayer-engine version %s\n", common.Version)
		},
	})

	rootCmd.AddCommand(serve.Command())
	rootCmd.AddCommand(cycles.Command())
	rootCmd.AddCommand(jobs.Command())
	rootCmd.AddCommand(cmdqueries.Command())
}

// initViper binds the persistent flags and TRUTHLAYER_-prefixed environment
// variables so every subcommand reads effective values from one place.
func initViper() error {
	viper.SetEnvPrefix("TRUTHLAYER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		return fmt.Errorf("failed to bind config flag: %w", err)
	}
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("failed to bind debug flag: %w", err)
	}
	return nil
}
