package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/skgma1019/music-player-app/internal/server"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the configuration and print the effective values",
	Long: `Load the config file, apply .env and RELAY_* overrides, validate the
result and print it as YAML. Credentials in the analyzer endpoint are redacted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		out, err := yaml.Marshal(server.Sanitize(cfg))
		if err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# configuration is valid\n%s", out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkConfigCmd)
}
