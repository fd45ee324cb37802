package config

import (
	"errors"
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config defines the global application configuration structure.
// This structure maps directly to the config.json file and holds
// business-level settings like channel settings and LLM provider choices.
type Config struct {
	// Channels contains a map of channel identifiers (e.g., "web", "telegram")
	// to their specific configuration payloads in raw JSON format.
	Channels map[string]jsoniter.RawMessage `json:"channels"`
	// LLM holds the list of provider groups in raw JSON.
	LLM jsoniter.RawMessage `json:"llm"`
}

// Validate ensures the configuration structure contains all mandatory fields.
func (c *Config) Validate() error {
	if len(c.LLM) == 0 {
		return errors.New("mandatory 'llm' configuration is missing or empty")
	}
	return nil
}

// SystemConfig defines engine-level technical parameters.
// These settings are stored in system.json and control the
// reliability and technical behavior of the agent.
type SystemConfig struct {
	// MaxRetries is the number of attempts per provider when a stream
	// fails to start with a transient error.
	MaxRetries int `json:"max_retries"`
	// RetryDelayMs is the duration to wait (in milliseconds) between
	// consecutive retry attempts.
	RetryDelayMs int `json:"retry_delay_ms"`
	// LLMTimeoutMs is the hard cutoff (in milliseconds) for one whole
	// conversation request, model calls and tools included.
	LLMTimeoutMs int `json:"llm_timeout_ms"`
	// MaxTurns caps the number of model consultations per request.
	MaxTurns int `json:"max_turns"`
	// DefaultLanguage is used in the system instruction when the
	// conversation does not carry a language preference.
	DefaultLanguage string `json:"default_language"`
	// TelegramMessageLimit is the maximum character count for a single
	// Telegram message. Longer responses will be split into multiple chunks.
	TelegramMessageLimit int `json:"telegram_message_limit"`
	// DebugChunks enables saving every raw LLM response chunk to the /debug
	// folder for inspection and troubleshooting purposes.
	DebugChunks bool `json:"debug_chunks"`
	// LogLevel sets the minimum severity for log output.
	// Accepted values: "debug", "info", "warn", "error". Default: "info".
	LogLevel string `json:"log_level"`
	// EnableTools globally toggles tool calling. If false, the model is
	// not offered any tool declarations.
	EnableTools bool `json:"enable_tools"`
}

// DefaultSystemConfig returns a SystemConfig pointer initialized with hardcoded
// safe default values. This is used as a fallback when the system.json file
// is missing or corrupt, ensuring the engine can always start.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		MaxRetries:           3,
		RetryDelayMs:         500,
		LLMTimeoutMs:         120000,
		MaxTurns:             10,
		DefaultLanguage:      "english",
		TelegramMessageLimit: 4000,
		LogLevel:             "info",
		EnableTools:          true,
	}
}

// Load reads and parses the JSON configuration files.
// The app config at appPath is mandatory; the system config at systemPath
// falls back to defaults.
func Load(appPath, systemPath string) (*Config, *SystemConfig, error) {
	if _, err := os.Stat(appPath); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("config file '%s' not found. please create one", appPath)
	}

	appFile, err := os.ReadFile(appPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(appFile, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	return &cfg, LoadSystemConfig(systemPath), nil
}

// LoadSystemConfig attempts to load system settings, returns defaults if it fails.
// Zero or negative numeric values are replaced by their defaults.
func LoadSystemConfig(path string) *SystemConfig {
	cfg := DefaultSystemConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		return cfg // File not found, use defaults
	}

	if err := json.Unmarshal(file, cfg); err != nil {
		return DefaultSystemConfig() // Parse failed, use defaults
	}

	cfg.normalize()
	return cfg
}

func (c *SystemConfig) normalize() {
	def := DefaultSystemConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.RetryDelayMs < 0 {
		c.RetryDelayMs = def.RetryDelayMs
	}
	if c.LLMTimeoutMs <= 0 {
		c.LLMTimeoutMs = def.LLMTimeoutMs
	}
	if c.MaxTurns <= 0 {
		c.MaxTurns = def.MaxTurns
	}
	if c.DefaultLanguage == "" {
		c.DefaultLanguage = def.DefaultLanguage
	}
	if c.TelegramMessageLimit <= 0 {
		c.TelegramMessageLimit = def.TelegramMessageLimit
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
}
