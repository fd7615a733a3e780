package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skgma1019/music-player-app/internal/config"
)

const defaultConfigPath = "configs/config.yaml"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Audio analysis relay",
	Long: `relay accepts multipart audio uploads on POST /analyze, stages them on
disk and forwards them to the analysis service. The analysis result is
returned to the caller unchanged.

Running relay without a subcommand is the same as "relay serve".`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", defaultConfigPath, "config file path")
	addServeFlags(rootCmd)
}

// loadConfig reads the --config file. The default path may be absent.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	allowMissing := !cmd.Flags().Changed("config")
	cfg, err := config.Load(cfgFile, allowMissing)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
