package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/llm"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/schema"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/server"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve negotiation sessions over HTTP and WebSocket",
	Long: `Serve exposes the negotiation machine to other tools:

  GET  /healthz        liveness check
  POST /sessions       create a session, returns its id and opening prompt
  GET  /ws/{session}   WebSocket; send {"text": ...}, receive replies

Each session owns its own state; turns within a session are processed
strictly in order.

Example:
  nwb-assistant serve
  nwb-assistant serve --addr :9090 --llm-provider ollama --llm-model llama3`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :8080)")
	serveCmd.Flags().StringVar(&llmProvider, "llm-provider", "", "LLM provider (openai, anthropic, ollama; empty = deterministic only)")
	serveCmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if llmProvider != "" {
		cfg.LLM.Provider = llmProvider
	}
	if llmModel != "" {
		cfg.LLM.Model = llmModel
	}
	if err := resolveAPIKey(cfg); err != nil {
		return err
	}

	logger, err := newLogger(verbose)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	registry, err := schema.Load()
	if err != nil {
		return fmt.Errorf("load field definitions: %w", err)
	}

	client, err := llm.NewClient(llm.ConfigFromMetadata(cfg.LLM), logger)
	if err != nil {
		return fmt.Errorf("init LLM client: %w", err)
	}

	srv := server.NewServer(registry, client, *cfg, logger)
	return srv.ListenAndServe()
}
