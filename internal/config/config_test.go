package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chTempDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 4096, cfg.LLM.MaxTokens)
	assert.Equal(t, "https://r.jina.ai", cfg.Fetch.ReaderBaseURL)
	assert.Equal(t, 30, cfg.Fetch.TimeoutSecs)
	assert.Equal(t, 30, cfg.Schema.CacheTTLMins)
	assert.Equal(t, 80, cfg.Normalize.FuzzyThreshold)
	assert.True(t, cfg.Normalize.StrictOptions)
	assert.Equal(t, 2000, cfg.Normalize.MaxTextLen)
	assert.Equal(t, "URL", cfg.Notion.URLProperty)
	assert.Equal(t, "https://open.feishu.cn", cfg.Feishu.BaseURL)
	assert.Equal(t, "sqlite", cfg.Archive.Driver)
	assert.Equal(t, 5, cfg.Pipeline.MaxConcurrent)
	assert.Equal(t, 2, cfg.Pipeline.RepairRetries)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	chTempDir(t)

	yaml := `
llm:
  provider: openai
  model: gpt-4o-mini
log:
  level: debug
  format: console
server:
  port: 9090
pipeline:
  max_concurrent: 10
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Pipeline.MaxConcurrent)
	// Defaults still apply for unset values
	assert.Equal(t, 80, cfg.Normalize.FuzzyThreshold)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	chTempDir(t)

	yaml := `
llm:
  provider: openai
log:
  level: debug
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("JOBCLIP_LLM_PROVIDER", "anthropic")
	t.Setenv("JOBCLIP_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chTempDir(t)

	t.Setenv("JOBCLIP_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func validClipConfig() *Config {
	return &Config{
		LLM:       LLMConfig{Provider: "anthropic", Key: "sk-ant-key"},
		Notion:    NotionConfig{Token: "ntn_token", DatabaseID: "db-id"},
		Pipeline:  PipelineConfig{MaxConcurrent: 5},
		Normalize: NormalizeConfig{FuzzyThreshold: 80},
		Server:    ServerConfig{Port: 8080},
	}
}

func TestValidateClip(t *testing.T) {
	assert.NoError(t, validClipConfig().Validate("clip"))
}

func TestValidateMissingLLMKey(t *testing.T) {
	cfg := validClipConfig()
	cfg.LLM.Key = ""

	err := cfg.Validate("clip")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.key is required")
}

func TestValidateNoSinks(t *testing.T) {
	cfg := validClipConfig()
	cfg.Notion = NotionConfig{}

	err := cfg.Validate("clip")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one sink")
}

func TestValidateServePort(t *testing.T) {
	cfg := validClipConfig()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validClipConfig()

	cfg.Pipeline.MaxConcurrent = 0
	assert.Error(t, cfg.Validate("clip"))

	cfg.Pipeline.MaxConcurrent = 51
	assert.Error(t, cfg.Validate("clip"))

	cfg.Pipeline.MaxConcurrent = 50
	assert.NoError(t, cfg.Validate("clip"))
}

func TestValidateUnknownMode(t *testing.T) {
	err := validClipConfig().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestSinkCount(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, 0, cfg.SinkCount())

	cfg.Notion = NotionConfig{Token: "t", DatabaseID: "d"}
	cfg.Archive = ArchiveConfig{Driver: "sqlite", DSN: "file:clips.db"}
	assert.Equal(t, 2, cfg.SinkCount())

	cfg.Feishu = FeishuConfig{AppID: "a", AppSecret: "s", AppToken: "at", TableID: "tb"}
	assert.Equal(t, 3, cfg.SinkCount())
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
