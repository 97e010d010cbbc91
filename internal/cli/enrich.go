package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/enrich"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/worker"
)

var enrichWorkers int

// enrichCmd represents the enrich command
var enrichCmd = &cobra.Command{
	Use:   "enrich <snapshot.json> [more.json...]",
	Short: "Suggest inferred metadata for existing snapshots",
	Long: `Enrich reads flat field->value JSON snapshots and proposes additional
inferred metadata: species from strain, standardized age and sex values,
protocol hints from the session description, and device capabilities
from the built-in knowledge graph. Files are processed concurrently.

Suggestions are printed as JSON, one document per input file. Nothing is
applied automatically; feed the suggestions into a chat session or your
own tooling.

Example:
  nwb-assistant enrich metadata.json
  nwb-assistant enrich sessions/*.json --workers 8`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEnrich,
}

func init() {
	rootCmd.AddCommand(enrichCmd)
	enrichCmd.Flags().IntVar(&enrichWorkers, "workers", 4, "concurrent files")
}

// enrichOutput is the per-file JSON document printed to stdout.
type enrichOutput struct {
	Path        string              `json:"path"`
	Suggestions []enrich.Suggestion `json:"suggestions"`
	Error       string              `json:"error,omitempty"`
}

func runEnrich(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	logger, err := newLogger(verbose)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	advisor := enrich.NewAdvisor(newKnowledgeGraph(cfg), logger)
	results := worker.NewBatchProcessor(advisor, enrichWorkers).ProcessFiles(cmd.Context(), args)

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")

	var failures int
	for _, r := range results {
		out := enrichOutput{Path: r.Path, Suggestions: r.Suggestions}
		if r.Error != nil {
			out.Error = r.Error.Error()
			failures++
		}
		if err := encoder.Encode(out); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d file(s) failed", failures, len(results))
	}
	return nil
}
