package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/mikey/llm-email-analyzer/internal/core"
)

// LLMConfig represents the configuration for the LLM provider
type LLMConfig struct {
	Provider string
}

// OllamaConfig represents the configuration for a local Ollama server
type OllamaConfig struct {
	BaseURL     string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// OpenAIConfig represents the configuration for OpenAI or an OpenAI-compatible server
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// GatewayConfig holds the transport policy for model gateway calls
type GatewayConfig struct {
	Timeout      time.Duration
	MaxAttempts  int
	Backoff      time.Duration
	CheckOnStart bool
}

// SourceConfig selects where emails are read from
type SourceConfig struct {
	Type            string
	CSVPath         string
	EMLDir          string
	ExcludedDomains []string
}

// StoreConfig selects where analysis records are written
type StoreConfig struct {
	Type        string
	SQLitePath  string
	MySQLDSN    string
	PostgresDSN string
}

// IntakeConfig configures the SMTP intake daemon
type IntakeConfig struct {
	ListenAddress   string
	Domain          string
	QueueSize       int
	MaxMessageBytes int64
}

// MetricsConfig configures the prometheus endpoint
type MetricsConfig struct {
	Enabled       bool
	ListenAddress string
}

var (
	providers   = []string{"ollama", "openai", "gemini", "bedrock"}
	storeTypes  = []string{"memory", "sqlite", "mysql", "postgres"}
	sourceTypes = []string{"csv", "eml"}
)

// GetLLM returns the LLM configuration
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider: c.GetString("llm.provider"),
	}
}

// GetOllama returns the Ollama configuration
func (c *Config) GetOllama() OllamaConfig {
	return OllamaConfig{
		BaseURL:     c.GetString("ollama.base_url"),
		ModelName:   c.GetString("ollama.model_name"),
		MaxTokens:   c.GetInt("ollama.max_tokens"),
		Temperature: float32(c.GetFloat64("ollama.temperature")),
		TopP:        float32(c.GetFloat64("ollama.top_p")),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		BaseURL:     c.GetString("openai.base_url"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
	}
}

// GetGateway returns the gateway transport policy
func (c *Config) GetGateway() (GatewayConfig, error) {
	timeout, err := c.GetDuration("gateway.timeout")
	if err != nil {
		return GatewayConfig{}, err
	}
	backoff, err := c.GetDuration("gateway.backoff")
	if err != nil {
		return GatewayConfig{}, err
	}
	return GatewayConfig{
		Timeout:      timeout,
		MaxAttempts:  c.GetInt("gateway.max_attempts"),
		Backoff:      backoff,
		CheckOnStart: c.GetBool("gateway.check_on_start"),
	}, nil
}

// GetEngine assembles the engine configuration for the selected provider
func (c *Config) GetEngine() (core.EngineConfig, error) {
	gateway, err := c.GetGateway()
	if err != nil {
		return core.EngineConfig{}, err
	}
	retryDelay, err := c.GetDuration("analysis.retry_delay")
	if err != nil {
		return core.EngineConfig{}, err
	}
	strategy, err := core.ParseRetryStrategy(c.GetString("analysis.retry_strategy"))
	if err != nil {
		return core.EngineConfig{}, err
	}

	cfg := core.EngineConfig{
		ConfidenceThreshold: c.GetFloat64("analysis.confidence_threshold"),
		MaxRetries:          c.GetInt("analysis.max_retries"),
		RetryDelay:          retryDelay,
		RetryStrategy:       strategy,
		GatewayTimeout:      gateway.Timeout,
		GatewayMaxAttempts:  gateway.MaxAttempts,
		GatewayBackoff:      gateway.Backoff,
	}

	switch c.GetLLM().Provider {
	case "openai":
		p := c.GetOpenAI()
		cfg.Model, cfg.MaxTokens, cfg.Temperature, cfg.TopP = p.ModelName, p.MaxTokens, p.Temperature, p.TopP
	case "gemini":
		p := c.GetGemini()
		cfg.Model, cfg.MaxTokens, cfg.Temperature, cfg.TopP = p.ModelName, p.MaxTokens, p.Temperature, p.TopP
	case "bedrock":
		p := c.GetBedrock()
		cfg.Model, cfg.MaxTokens, cfg.Temperature, cfg.TopP = p.ModelID, p.MaxTokens, p.Temperature, p.TopP
	default:
		p := c.GetOllama()
		cfg.Model, cfg.MaxTokens, cfg.Temperature, cfg.TopP = p.ModelName, p.MaxTokens, p.Temperature, p.TopP
	}
	return cfg, nil
}

// GetBatch returns the batch runner configuration
func (c *Config) GetBatch() (core.BatchConfig, error) {
	delay, err := c.GetDuration("batch.inter_request_delay")
	if err != nil {
		return core.BatchConfig{}, err
	}
	return core.BatchConfig{
		MaxEmails:         c.GetInt("batch.max_emails"),
		InterRequestDelay: delay,
	}, nil
}

// GetSource returns the email source configuration
func (c *Config) GetSource() SourceConfig {
	return SourceConfig{
		Type:            c.GetString("sources.type"),
		CSVPath:         c.GetString("sources.csv_path"),
		EMLDir:          c.GetString("sources.eml_dir"),
		ExcludedDomains: c.GetStringSlice("sources.excluded_domains"),
	}
}

// GetStore returns the record store configuration
func (c *Config) GetStore() StoreConfig {
	return StoreConfig{
		Type:        c.GetString("store.type"),
		SQLitePath:  c.GetString("store.sqlite_path"),
		MySQLDSN:    c.GetString("store.mysql_dsn"),
		PostgresDSN: c.GetString("store.postgres_dsn"),
	}
}

// GetIntake returns the SMTP intake configuration
func (c *Config) GetIntake() IntakeConfig {
	return IntakeConfig{
		ListenAddress:   c.GetString("intake.listen_address"),
		Domain:          c.GetString("intake.domain"),
		QueueSize:       c.GetInt("intake.queue_size"),
		MaxMessageBytes: int64(c.GetInt("intake.max_message_bytes")),
	}
}

// GetMetrics returns the metrics endpoint configuration
func (c *Config) GetMetrics() MetricsConfig {
	return MetricsConfig{
		Enabled:       c.GetBool("metrics.enabled"),
		ListenAddress: c.GetString("metrics.listen_address"),
	}
}

// Validate checks the configuration before any work starts
func (c *Config) Validate() error {
	var errs []error

	if !oneOf(c.GetLLM().Provider, providers) {
		errs = append(errs, fmt.Errorf("unsupported llm.provider %q", c.GetLLM().Provider))
	}
	if !oneOf(c.GetStore().Type, storeTypes) {
		errs = append(errs, fmt.Errorf("unsupported store.type %q", c.GetStore().Type))
	}
	if !oneOf(c.GetSource().Type, sourceTypes) {
		errs = append(errs, fmt.Errorf("unsupported sources.type %q", c.GetSource().Type))
	}
	if c.GetInt("batch.max_emails") < 0 {
		errs = append(errs, fmt.Errorf("batch.max_emails must not be negative"))
	}
	if c.GetInt("analysis.max_body_size") < 0 {
		errs = append(errs, fmt.Errorf("analysis.max_body_size must not be negative"))
	}

	engine, err := c.GetEngine()
	if err != nil {
		errs = append(errs, err)
	} else if err := engine.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.GetBatch(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", core.ErrValidation, errors.Join(errs...))
}

func oneOf(value string, allowed []string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
