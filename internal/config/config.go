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
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Schema    SchemaConfig    `yaml:"schema" mapstructure:"schema"`
	Normalize NormalizeConfig `yaml:"normalize" mapstructure:"normalize"`
	Notion    NotionConfig    `yaml:"notion" mapstructure:"notion"`
	Feishu    FeishuConfig    `yaml:"feishu" mapstructure:"feishu"`
	Archive   ArchiveConfig   `yaml:"archive" mapstructure:"archive"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// LLMConfig holds language model provider settings.
type LLMConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"` // "anthropic" or "openai"
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// FetchConfig configures page content acquisition.
type FetchConfig struct {
	ReaderKey     string `yaml:"reader_key" mapstructure:"reader_key"`
	ReaderBaseURL string `yaml:"reader_base_url" mapstructure:"reader_base_url"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent     string `yaml:"user_agent" mapstructure:"user_agent"`
}

// SchemaConfig configures the schema snapshot cache.
type SchemaConfig struct {
	CacheTTLMins int `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
}

// NormalizeConfig configures value normalization.
type NormalizeConfig struct {
	FuzzyThreshold int  `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
	StrictOptions  bool `yaml:"strict_options" mapstructure:"strict_options"`
	MaxTextLen     int  `yaml:"max_text_len" mapstructure:"max_text_len"`
}

// NotionConfig holds Notion credentials and target database.
type NotionConfig struct {
	Token       string `yaml:"token" mapstructure:"token"`
	DatabaseID  string `yaml:"database_id" mapstructure:"database_id"`
	URLProperty string `yaml:"url_property" mapstructure:"url_property"`
}

// FeishuConfig holds Feishu Bitable credentials and target table.
type FeishuConfig struct {
	AppID     string `yaml:"app_id" mapstructure:"app_id"`
	AppSecret string `yaml:"app_secret" mapstructure:"app_secret"`
	AppToken  string `yaml:"app_token" mapstructure:"app_token"`
	TableID   string `yaml:"table_id" mapstructure:"table_id"`
	URLField  string `yaml:"url_field" mapstructure:"url_field"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
}

// ArchiveConfig configures the local archive sink. An empty DSN disables it.
type ArchiveConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// PipelineConfig configures clip processing.
type PipelineConfig struct {
	MaxConcurrent      int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	RequestTimeoutSecs int `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	RepairRetries      int `yaml:"repair_retries" mapstructure:"repair_retries"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("JOBCLIP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("fetch.reader_base_url", "https://r.jina.ai")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	v.SetDefault("schema.cache_ttl_mins", 30)
	v.SetDefault("normalize.fuzzy_threshold", 80)
	v.SetDefault("normalize.strict_options", true)
	v.SetDefault("normalize.max_text_len", 2000)
	v.SetDefault("notion.url_property", "URL")
	v.SetDefault("feishu.url_field", "URL")
	v.SetDefault("feishu.base_url", "https://open.feishu.cn")
	v.SetDefault("archive.driver", "sqlite")
	v.SetDefault("pipeline.max_concurrent", 5)
	v.SetDefault("pipeline.request_timeout_secs", 120)
	v.SetDefault("pipeline.repair_retries", 2)
	v.SetDefault("server.port", 8080)
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

// SinkCount returns the number of sinks with enough configuration to be
// constructed.
func (c *Config) SinkCount() int {
	n := 0
	if c.Notion.Token != "" && c.Notion.DatabaseID != "" {
		n++
	}
	if c.Feishu.AppID != "" && c.Feishu.AppSecret != "" && c.Feishu.AppToken != "" && c.Feishu.TableID != "" {
		n++
	}
	if c.Archive.DSN != "" {
		n++
	}
	return n
}

// Validate checks that the configuration is usable for the given mode
// ("clip" or "serve"). All problems are reported at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "clip":
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.LLM.Key == "" {
		problems = append(problems, "llm.key is required")
	}
	if c.LLM.Provider != "anthropic" && c.LLM.Provider != "openai" {
		problems = append(problems, "llm.provider must be anthropic or openai")
	}
	if c.SinkCount() == 0 {
		problems = append(problems, "at least one sink (notion, feishu or archive) must be configured")
	}
	if c.Pipeline.MaxConcurrent < 1 || c.Pipeline.MaxConcurrent > 50 {
		problems = append(problems, "pipeline.max_concurrent must be between 1 and 50")
	}
	if c.Normalize.FuzzyThreshold < 0 || c.Normalize.FuzzyThreshold > 100 {
		problems = append(problems, "normalize.fuzzy_threshold must be between 0 and 100")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
