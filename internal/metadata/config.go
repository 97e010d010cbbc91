package metadata

// Config is the top-level application configuration, loadable from
// ~/.nwb-assistant/config.yaml, NWB_* environment variables, or flags.
type Config struct {
	LLM         LLMConfig         `yaml:"llm"`
	Negotiation NegotiationConfig `yaml:"negotiation"`
	Enrichment  EnrichmentConfig  `yaml:"enrichment"`
	Server      ServerConfig      `yaml:"server"`
	Output      OutputConfig      `yaml:"output"`
}

// LLMConfig configures the LLM collaborator. An empty Provider disables the
// LLM entirely; every consumer has a deterministic fallback.
type LLMConfig struct {
	Provider          string `yaml:"provider"` // openai, anthropic, ollama, "" = disabled
	Model             string `yaml:"model"`
	APIKey            string `yaml:"api_key,omitempty"`
	BaseURL           string `yaml:"base_url,omitempty"`
	Timeout           int    `yaml:"timeout"` // seconds
	MaxTokens         int    `yaml:"max_tokens"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

// NegotiationConfig tunes the negotiation state machine.
type NegotiationConfig struct {
	// MaxAskRounds is the session request budget: after this many proactive
	// ask rounds the machine proceeds with minimal metadata.
	MaxAskRounds int `yaml:"max_ask_rounds"`
	// Sequential starts the session in single-field mode.
	Sequential bool `yaml:"sequential"`
}

// EnrichmentConfig tunes the enrichment advisor.
type EnrichmentConfig struct {
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
}

// ServerConfig configures the session transport.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// OutputConfig configures report rendering.
type OutputConfig struct {
	Verbose       bool `yaml:"verbose"`
	IncludeFooter bool `yaml:"include_footer"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:          "", // Disabled by default
			Timeout:           30,
			MaxTokens:         1000,
			RequestsPerMinute: 30,
		},
		Negotiation: NegotiationConfig{
			MaxAskRounds: 2,
		},
		Enrichment: EnrichmentConfig{
			CacheTTLSeconds: 600,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Output: OutputConfig{
			IncludeFooter: true,
		},
	}
}
