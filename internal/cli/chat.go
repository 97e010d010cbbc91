package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/cache"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/enrich"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/llm"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/metadata"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/negotiate"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/nwbinspector"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/report"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/schema"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/worker"
)

var (
	chatIssues     string
	chatSnapshot   string
	chatOutJSON    string
	chatOutMD      string
	chatNoFooter   bool
	chatSequential bool
	llmProvider    string
	llmModel       string
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactively negotiate missing NWB metadata",
	Long: `Chat runs a metadata-gathering conversation on stdin/stdout.

The assistant asks for missing fields in priority order (critical first,
then recommended, then optional), parses your answers, and shows what it
understood before applying anything. Answer in plain language, confirm
with "yes", correct with "edit", or "skip" what you don't know.

Example:
  nwb-assistant chat
  nwb-assistant chat --issues inspector.json --json report.json --md report.md
  nwb-assistant chat --snapshot metadata.json --llm-provider openai --llm-model gpt-4o-mini`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVar(&chatIssues, "issues", "", "NWB Inspector report (JSON); narrows the fields to negotiate")
	chatCmd.Flags().StringVar(&chatSnapshot, "snapshot", "", "existing metadata snapshot (JSON) to enrich before starting")
	chatCmd.Flags().StringVar(&chatOutJSON, "json", "report.json", "output JSON report path")
	chatCmd.Flags().StringVar(&chatOutMD, "md", "", "output Markdown report path (optional)")
	chatCmd.Flags().BoolVar(&chatNoFooter, "no-footer", false, "disable footer in Markdown reports")
	chatCmd.Flags().BoolVar(&chatSequential, "sequential", false, "ask one field at a time from the start")
	chatCmd.Flags().StringVar(&llmProvider, "llm-provider", "", "LLM provider (openai, anthropic, ollama; empty = deterministic only)")
	chatCmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if llmProvider != "" {
		cfg.LLM.Provider = llmProvider
	}
	if llmModel != "" {
		cfg.LLM.Model = llmModel
	}
	if chatNoFooter {
		cfg.Output.IncludeFooter = false
	}
	if chatSequential {
		cfg.Negotiation.Sequential = true
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
	if verbose && client.Enabled() {
		fmt.Fprintf(os.Stderr, "LLM provider: %s\n", client.ProviderName())
	}

	missing, err := missingFields(chatIssues, registry)
	if err != nil {
		return err
	}

	machine := negotiate.NewMachine(registry, client, missing, cfg.Negotiation.MaxAskRounds, logger)
	if cfg.Negotiation.Sequential {
		machine.State().SequentialPreference = true
	}

	// Enrichment suggestions from an existing snapshot join the pending
	// pool before the conversation starts.
	if chatSnapshot != "" {
		if err := stageEnrichment(cmd.Context(), machine, chatSnapshot, cfg, logger); err != nil {
			return err
		}
	}

	start := machine.Start()
	fmt.Println(start.Reply)

	if !start.Done {
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				break
			}
			result, err := machine.HandleTurn(cmd.Context(), scanner.Text())
			if err != nil {
				return fmt.Errorf("process turn: %w", err)
			}
			fmt.Println(result.Reply)
			if result.Done {
				break
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read input: %w", err)
		}
	}

	return writeReports(machine, registry, cfg.Output.IncludeFooter)
}

// missingFields derives the negotiation scope: inspector issues when a
// report is given, otherwise every schema field.
func missingFields(issuesPath string, registry *schema.Registry) ([]string, error) {
	if issuesPath == "" {
		var all []string
		for _, f := range registry.All() {
			all = append(all, f.Name)
		}
		return all, nil
	}

	issues, err := nwbinspector.LoadIssues(issuesPath)
	if err != nil {
		return nil, err
	}
	return nwbinspector.MissingFields(issues, registry), nil
}

// stageEnrichment runs the advisor over a snapshot file and merges its
// suggestions into the machine's pending pool.
func stageEnrichment(ctx context.Context, machine *negotiate.Machine, path string, cfg *metadata.Config, logger *zap.Logger) error {
	snapshot, err := worker.ReadSnapshot(path)
	if err != nil {
		return err
	}

	advisor := enrich.NewAdvisor(newKnowledgeGraph(cfg), logger)
	suggestions := advisor.Suggest(ctx, snapshot)

	candidates := make([]metadata.CandidateValue, 0, len(suggestions))
	for _, s := range suggestions {
		candidates = append(candidates, s.Candidate())
	}
	machine.MergeCandidates(candidates)

	if verbose {
		fmt.Fprintf(os.Stderr, "✓ Staged %d enrichment suggestion(s) from %s\n", len(candidates), path)
	}
	return nil
}

// newKnowledgeGraph builds the built-in device graph behind a query cache.
func newKnowledgeGraph(cfg *metadata.Config) enrich.KnowledgeGraph {
	ttl := time.Duration(cfg.Enrichment.CacheTTLSeconds) * time.Second
	return enrich.NewCachedGraph(
		enrich.BuiltinGraph(),
		cache.NewMemoryCache(ttl, ttl),
		ttl,
	)
}

func writeReports(machine *negotiate.Machine, registry *schema.Registry, includeFooter bool) error {
	r := report.Build("", machine.Snapshot(), machine.Warnings(), registry)
	renderer := report.NewRenderer(includeFooter)

	fmt.Println()
	renderer.RenderSummary(os.Stdout, r)

	if chatOutJSON != "" {
		if err := renderer.RenderJSON(r, chatOutJSON); err != nil {
			return err
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "✓ Wrote JSON: %s\n", chatOutJSON)
		}
	}
	if chatOutMD != "" {
		if err := renderer.RenderMarkdown(r, chatOutMD); err != nil {
			return err
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "✓ Wrote Markdown: %s\n", chatOutMD)
		}
	}
	return nil
}
