package cmd

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as TOML",
	RunE:  runConfigShow,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	shown := globalConfig
	if shown.APIKey != "" {
		shown.APIKey = "[redacted]"
	}

	encoder := toml.NewEncoder(os.Stdout)
	if err := encoder.Encode(shown); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	return nil
}
