package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/metadata"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "nwb-assistant",
	Short: "NWB metadata negotiation and enrichment assistant",
	Long: `nwb-assistant helps researchers fill in the metadata an NWB
(Neurodata Without Borders) file needs before archival.

It negotiates missing fields in plain language: it decides what to ask
in priority order, parses free-text answers into schema-compliant values
with confidence scores, and applies a transparent three-tier auto-apply
policy when the user defers. Every value in the final report carries its
provenance and confidence.

An LLM provider is optional. Without one, every step falls back to
deterministic parsing and keyword classification.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("nwb-assistant v0.1.0")
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.nwb-assistant/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	_ = viper.BindPFlag("output.verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(home + "/.nwb-assistant")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match NWB_*
	viper.SetEnvPrefix("NWB")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig builds the effective configuration: defaults, overridden by the
// config file and environment, overridden by command flags (applied by each
// command after this call).
func loadConfig() *metadata.Config {
	cfg := metadata.DefaultConfig()

	if v := viper.GetString("llm.provider"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := viper.GetString("llm.model"); v != "" {
		cfg.LLM.Model = v
	}
	if v := viper.GetInt("llm.timeout"); v > 0 {
		cfg.LLM.Timeout = v
	}
	if v := viper.GetInt("llm.max_tokens"); v > 0 {
		cfg.LLM.MaxTokens = v
	}
	if v := viper.GetInt("llm.requests_per_minute"); v > 0 {
		cfg.LLM.RequestsPerMinute = v
	}
	if v := viper.GetInt("negotiation.max_ask_rounds"); v > 0 {
		cfg.Negotiation.MaxAskRounds = v
	}
	if viper.IsSet("negotiation.sequential") {
		cfg.Negotiation.Sequential = viper.GetBool("negotiation.sequential")
	}
	if v := viper.GetInt("enrichment.cache_ttl_seconds"); v > 0 {
		cfg.Enrichment.CacheTTLSeconds = v
	}
	if v := viper.GetString("server.addr"); v != "" {
		cfg.Server.Addr = v
	}
	if viper.IsSet("output.include_footer") {
		cfg.Output.IncludeFooter = viper.GetBool("output.include_footer")
	}
	cfg.Output.Verbose = verbose

	return cfg
}

// resolveAPIKey fills the API key for the configured provider from the
// environment, matching the provider's conventional variable.
func resolveAPIKey(cfg *metadata.Config) error {
	switch cfg.LLM.Provider {
	case "openai":
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		if cfg.LLM.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	case "anthropic", "claude":
		cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		if cfg.LLM.APIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
		}
	case "ollama":
		if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
			cfg.LLM.BaseURL = baseURL
		}
	}
	return nil
}

// newLogger builds the process logger. Verbose mode enables debug output;
// logs always go to stderr so stdout stays clean for the conversation.
func newLogger(verbose bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		zcfg.Development = true
	} else {
		zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return zcfg.Build()
}
