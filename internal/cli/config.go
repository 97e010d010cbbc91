package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/metadata"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage nwb-assistant configuration",
	Long: `Manage nwb-assistant configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (NWB_*)
3. Config file (~/.nwb-assistant/config.yaml)
4. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		if configFile := viper.ConfigFileUsed(); configFile != "" {
			fmt.Fprintf(os.Stderr, "Configuration file: %s\n\n", configFile)
		} else {
			fmt.Fprintf(os.Stderr, "No configuration file found (using defaults)\n\n")
		}

		yamlData, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		fmt.Println(string(yamlData))

		fmt.Println("Configuration hierarchy (highest to lowest priority):")
		fmt.Println("  1. CLI flags")
		fmt.Println("  2. Environment variables (NWB_*, OPENAI_API_KEY, ANTHROPIC_API_KEY)")
		fmt.Println("  3. Config file (~/.nwb-assistant/config.yaml)")
		fmt.Println("  4. Defaults")

		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize default configuration file",
	Long:  `Create a default configuration file at ~/.nwb-assistant/config.yaml.`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("find home directory: %w", err)
		}

		configDir := home + "/.nwb-assistant"
		configPath := configDir + "/config.yaml"

		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config file already exists: %s\nUse 'nwb-assistant config show' to view it, or delete it first to recreate", configPath)
		}

		if err := os.MkdirAll(configDir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}

		f, err := os.Create(configPath)
		if err != nil {
			return fmt.Errorf("create config file: %w", err)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("close config file: %w", closeErr)
			}
		}()

		yamlData, err := yaml.Marshal(metadata.DefaultConfig())
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}

		header := `# nwb-assistant configuration file
#
# Configuration hierarchy (highest to lowest priority):
#   1. CLI flags
#   2. Environment variables (NWB_*)
#   3. This config file
#   4. Built-in defaults

`
		footer := `
# API keys (use environment variables, not this file):
#   export OPENAI_API_KEY=sk-...
#   export ANTHROPIC_API_KEY=sk-ant-...
#   export OLLAMA_BASE_URL=http://localhost:11434
`
		if _, err := f.WriteString(header); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		if _, err := f.Write(yamlData); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		if _, err := f.WriteString(footer); err != nil {
			return fmt.Errorf("write config: %w", err)
		}

		fmt.Printf("✓ Created default configuration: %s\n", configPath)
		fmt.Printf("\nTo view the configuration:\n  nwb-assistant config show\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
