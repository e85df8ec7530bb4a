package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ringkv/internal/config"
)

var (
	verbose    bool
	paramsFile string
)

var rootCmd = &cobra.Command{
	Use:   "ringkv",
	Short: "Replicated key-value store over gossip membership",
	Long: `ringkv keeps an eventually consistent view of group membership with a
heartbeat protocol and stores keys on three replicas of a consistent hashing
ring, resolving operations by quorum.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&paramsFile, "params", "", "YAML file with protocol parameters")
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	return cfg.Build()
}

func loadParams() (config.Params, error) {
	if paramsFile == "" {
		return config.Default(), nil
	}
	return config.LoadFile(paramsFile)
}
