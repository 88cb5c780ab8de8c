package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	SerpAPI    SerpAPIConfig    `yaml:"serpapi" mapstructure:"serpapi"`
	Serper     SerperConfig     `yaml:"serper" mapstructure:"serper"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Parser     ParserConfig     `yaml:"parser" mapstructure:"parser"`
	Vision     VisionConfig     `yaml:"vision" mapstructure:"vision"`
	Registry   RegistryConfig   `yaml:"registry" mapstructure:"registry"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
}

// NotionConfig holds the Notion credentials for the seller registry database.
type NotionConfig struct {
	Token     string `yaml:"token" mapstructure:"token"`
	SellersDB string `yaml:"sellers_db" mapstructure:"sellers_db"`
}

// Configured reports whether the Notion registry source is usable.
func (c NotionConfig) Configured() bool {
	return c.Token != "" && c.SellersDB != ""
}

// SerpAPIConfig holds SerpApi (Google Lens) settings.
type SerpAPIConfig struct {
	Key        string  `yaml:"key" mapstructure:"key"`
	BaseURL    string  `yaml:"base_url" mapstructure:"base_url"`
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst      int     `yaml:"burst" mapstructure:"burst"`
}

// Configured reports whether visual search can run.
func (c SerpAPIConfig) Configured() bool { return c.Key != "" }

// SerperConfig holds Serper (Google web search) settings.
type SerperConfig struct {
	Key        string  `yaml:"key" mapstructure:"key"`
	BaseURL    string  `yaml:"base_url" mapstructure:"base_url"`
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst      int     `yaml:"burst" mapstructure:"burst"`
}

// Configured reports whether text search can run.
func (c SerperConfig) Configured() bool { return c.Key != "" }

// AnthropicConfig holds Anthropic API settings for parsing and visual
// comparison.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	ParseModel  string `yaml:"parse_model" mapstructure:"parse_model"`
	VisionModel string `yaml:"vision_model" mapstructure:"vision_model"`
	MaxTokens   int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// Configured reports whether AI parsing and verification can run.
func (c AnthropicConfig) Configured() bool { return c.Key != "" }

// SearchConfig bounds the search stages.
type SearchConfig struct {
	MaxResults          int `yaml:"max_results" mapstructure:"max_results"`
	MaxGeneratedQueries int `yaml:"max_generated_queries" mapstructure:"max_generated_queries"`
	ParallelQueries     int `yaml:"parallel_queries" mapstructure:"parallel_queries"`
}

// ParserConfig configures the listing parser and consensus.
type ParserConfig struct {
	MaxAIResults       int     `yaml:"max_ai_results" mapstructure:"max_ai_results"`
	TierDecay          float64 `yaml:"tier_decay" mapstructure:"tier_decay"`
	MinMatchConfidence float64 `yaml:"min_match_confidence" mapstructure:"min_match_confidence"`
}

// VisionConfig bounds the visual re-verification stage.
type VisionConfig struct {
	MaxVerifications int     `yaml:"max_verifications" mapstructure:"max_verifications"`
	Concurrency      int     `yaml:"concurrency" mapstructure:"concurrency"`
	MinMatchScore    float64 `yaml:"min_match_score" mapstructure:"min_match_score"`
}

// RegistryConfig selects where the seller registry is loaded from.
// Source "auto" resolves to notion when configured, then store, then the
// built-in fixture.
type RegistryConfig struct {
	Source      string `yaml:"source" mapstructure:"source"`
	FixturePath string `yaml:"fixture_path" mapstructure:"fixture_path"`
}

// PricingConfig holds per-provider cost rates. RatesFile optionally points to
// a YAML file whose rates override these values.
type PricingConfig struct {
	SerpAPI   SearchPricing           `yaml:"serpapi" mapstructure:"serpapi"`
	Serper    SearchPricing           `yaml:"serper" mapstructure:"serper"`
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	RatesFile string                  `yaml:"rates_file" mapstructure:"rates_file"`
}

// SearchPricing holds flat per-search pricing.
type SearchPricing struct {
	PerSearch float64 `yaml:"per_search" mapstructure:"per_search"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port                  int `yaml:"port" mapstructure:"port"`
	MaxConcurrentSessions int `yaml:"max_concurrent_sessions" mapstructure:"max_concurrent_sessions"`
}

// MonitoringConfig configures the background metrics checker run by serve
// mode. A zero threshold disables that alert; an empty webhook URL means
// alerts are logged but not delivered anywhere.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	CreditThreshold      int     `yaml:"credit_threshold" mapstructure:"credit_threshold"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("POSTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "poster_research.db")
	v.SetDefault("serpapi.base_url", "https://serpapi.com")
	v.SetDefault("serpapi.rate_per_sec", 1.0)
	v.SetDefault("serpapi.burst", 2)
	v.SetDefault("serper.base_url", "https://google.serper.dev")
	v.SetDefault("serper.rate_per_sec", 5.0)
	v.SetDefault("serper.burst", 5)
	v.SetDefault("anthropic.parse_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.vision_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("search.max_results", 30)
	v.SetDefault("search.max_generated_queries", 3)
	v.SetDefault("search.parallel_queries", 3)
	v.SetDefault("parser.max_ai_results", 30)
	v.SetDefault("parser.tier_decay", 0.15)
	v.SetDefault("parser.min_match_confidence", 0.3)
	v.SetDefault("vision.max_verifications", 10)
	v.SetDefault("vision.concurrency", 5)
	v.SetDefault("vision.min_match_score", 0.6)
	v.SetDefault("registry.source", "auto")
	v.SetDefault("pricing.serpapi.per_search", 0.015)
	v.SetDefault("pricing.serper.per_search", 0.001)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_concurrent_sessions", 4)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// ProviderStatus reports which external providers have credentials, keyed the
// way session responses report them.
func (c *Config) ProviderStatus() map[string]bool {
	return map[string]bool{
		"serpapi":   c.SerpAPI.Configured(),
		"serper":    c.Serper.Configured(),
		"anthropic": c.Anthropic.Configured(),
		"notion":    c.Notion.Configured(),
	}
}

// Validate checks the configuration for the given run mode ("search",
// "serve", "sellers", "export"). All problems are reported at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for the sqlite driver")
		}
	case "":
		problems = append(problems, "store.driver is required")
	default:
		problems = append(problems, "store.driver must be postgres or sqlite")
	}

	if c.Search.MaxResults < 1 || c.Search.MaxResults > 100 {
		problems = append(problems, "search.max_results must be between 1 and 100")
	}
	if c.Search.ParallelQueries < 1 || c.Search.ParallelQueries > 10 {
		problems = append(problems, "search.parallel_queries must be between 1 and 10")
	}
	if c.Parser.TierDecay < 0 || c.Parser.TierDecay >= 1 {
		problems = append(problems, "parser.tier_decay must be in [0, 1)")
	}
	if c.Parser.MinMatchConfidence < 0 || c.Parser.MinMatchConfidence > 1 {
		problems = append(problems, "parser.min_match_confidence must be in [0, 1]")
	}
	if c.Vision.MaxVerifications < 0 || c.Vision.MaxVerifications > 50 {
		problems = append(problems, "vision.max_verifications must be between 0 and 50")
	}
	if c.Vision.Concurrency < 1 || c.Vision.Concurrency > 20 {
		problems = append(problems, "vision.concurrency must be between 1 and 20")
	}

	switch mode {
	case "search":
		if !c.SerpAPI.Configured() && !c.Serper.Configured() {
			problems = append(problems, "at least one of serpapi.key or serper.key is required")
		}
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Server.MaxConcurrentSessions < 1 || c.Server.MaxConcurrentSessions > 32 {
			problems = append(problems, "server.max_concurrent_sessions must be between 1 and 32")
		}
		if c.Monitoring.FailureRateThreshold < 0 || c.Monitoring.FailureRateThreshold > 1 {
			problems = append(problems, "monitoring.failure_rate_threshold must be in [0, 1]")
		}
	case "sellers":
		if c.Registry.Source == "notion" && !c.Notion.Configured() {
			problems = append(problems, "notion.token and notion.sellers_db are required for the notion registry source")
		}
	case "export":
		// Store checks above cover it.
	default:
		problems = append(problems, "unknown mode "+mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
