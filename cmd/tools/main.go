package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "stashbase-tools",
	Short: "Operational tools for stashbase",
	Long:  `Administrative commands for a stashbase deployment: database bootstrap and snapshot export.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(initDBCmd)
	rootCmd.AddCommand(exportCmd)
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Errorf("failed to set up logger: %w", err))
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
