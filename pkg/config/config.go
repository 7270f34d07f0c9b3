// Package config loads and validates the process configuration from
// environment variables (and an optional config file), per §6 of the
// external-interfaces design: every numeric and URL field is validated at
// boot, and invalid config fails startup with a clear message before the
// listener opens.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// MCPSource describes one upstream MCP server the discovery service polls.
type MCPSource struct {
	Name        string   `mapstructure:"name" validate:"required"`
	URL         string   `mapstructure:"url" validate:"required,url"`
	Description string   `mapstructure:"description"`
	Category    string   `mapstructure:"category"`
	Tags        []string `mapstructure:"tags"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address           string        `mapstructure:"address" validate:"required"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" validate:"required,gt=0"`
	ShutdownGrace     time.Duration `mapstructure:"shutdown_grace" validate:"required,gt=0"`
	CORSOrigins       []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig configures the sqlite system-of-record.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,gt=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,gt=0"`
}

// EmbeddingConfig configures the embedding endpoint (C1).
type EmbeddingConfig struct {
	Endpoint  string        `mapstructure:"endpoint" validate:"required,url"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model" validate:"required"`
	Dimension int           `mapstructure:"dimension" validate:"required,dim_gt0"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"required,gt=0"`
	CacheSize int           `mapstructure:"cache_size" validate:"gte=0"`
}

// VectorStoreConfig configures the Weaviate-backed index (C3).
type VectorStoreConfig struct {
	URL       string `mapstructure:"url" validate:"required,url"`
	APIKey    string `mapstructure:"api_key"`
	ClassName string `mapstructure:"class_name" validate:"required"`
}

// LLMGatewayConfig configures the upstream chat-completions gateway,
// consumed by both LLM_GATEWAY tools and the summarizer.
type LLMGatewayConfig struct {
	URL          string        `mapstructure:"url" validate:"required,url"`
	APIKey       string        `mapstructure:"api_key"`
	DefaultModel string        `mapstructure:"default_model" validate:"required"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"required,gt=0"`
}

// DiscoveryConfig configures the MCP discovery synchronizer (C8).
type DiscoveryConfig struct {
	Sources           []MCPSource   `mapstructure:"sources"`
	AutoSyncOnStartup bool          `mapstructure:"auto_sync_on_startup"`
	PerSourceTimeout  time.Duration `mapstructure:"per_source_timeout" validate:"required,gt=0"`
	IncludeGateway    bool          `mapstructure:"include_gateway"`
}

// RetrievalConfig configures defaults for find_tool (C5).
type RetrievalConfig struct {
	DefaultThreshold float64       `mapstructure:"default_threshold" validate:"gte=0,lte=1"`
	DefaultLimit     int           `mapstructure:"default_limit" validate:"required,gt=0"`
	HybridEnabled    bool          `mapstructure:"hybrid_enabled"`
	HybridAlpha      float64       `mapstructure:"hybrid_alpha" validate:"gte=0,lte=1"`
	Timeout          time.Duration `mapstructure:"timeout" validate:"required,gt=0"`
}

// SummarizationConfig configures the output summarizer (C7).
type SummarizationConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Model           string        `mapstructure:"model"`
	DefaultMaxTokens int          `mapstructure:"default_max_tokens" validate:"required,gt=0"`
	Timeout         time.Duration `mapstructure:"timeout" validate:"required,gt=0"`
	MaxInputChars   int           `mapstructure:"max_input_chars" validate:"required,gt=0"`
}

// ExecutionConfig configures the router's timeouts (C6).
type ExecutionConfig struct {
	DefaultCallTimeout time.Duration `mapstructure:"default_call_timeout" validate:"required,gt=0"`
	MaxCallTimeout     time.Duration `mapstructure:"max_call_timeout" validate:"required,gt=0"`
	WorkerPoolSize     int           `mapstructure:"worker_pool_size" validate:"required,gt=0"`
}

// PythonExecutorConfig configures the PYTHON_CALLABLE registration table.
type PythonExecutorConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	AllowPrefixes []string `mapstructure:"allow_prefixes"`
	DenyPrefixes []string `mapstructure:"deny_prefixes"`
}

// RequestLimitsConfig caps inbound payload size, the only rate protection
// the core itself enforces (§5: the facade runs behind an external
// rate-limit layer).
type RequestLimitsConfig struct {
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" validate:"required,gt=0"`
	MaxArgBytes  int64 `mapstructure:"max_arg_bytes" validate:"required,gt=0"`
}

// AdminConfig configures the shared admin API key.
type AdminConfig struct {
	APIKey string `mapstructure:"api_key" validate:"required"`
}

// TelemetryConfig selects the telemetry backend at boot (§9: no conditional
// imports, a capability interface selected by config).
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	PrometheusAddr string `mapstructure:"prometheus_addr"`
}

// Config is the fully validated process configuration.
type Config struct {
	Server        ServerConfig         `mapstructure:"server" validate:"required"`
	Database      DatabaseConfig       `mapstructure:"database" validate:"required"`
	Embedding     EmbeddingConfig      `mapstructure:"embedding" validate:"required"`
	VectorStore   VectorStoreConfig    `mapstructure:"vector_store" validate:"required"`
	LLMGateway    LLMGatewayConfig     `mapstructure:"llm_gateway" validate:"required"`
	Discovery     DiscoveryConfig      `mapstructure:"discovery"`
	Retrieval     RetrievalConfig      `mapstructure:"retrieval" validate:"required"`
	Summarization SummarizationConfig  `mapstructure:"summarization" validate:"required"`
	Execution     ExecutionConfig      `mapstructure:"execution" validate:"required"`
	Python        PythonExecutorConfig `mapstructure:"python"`
	RequestLimits RequestLimitsConfig  `mapstructure:"request_limits" validate:"required"`
	Admin         AdminConfig          `mapstructure:"admin" validate:"required"`
	Telemetry     TelemetryConfig      `mapstructure:"telemetry"`
	DebugMode     bool                 `mapstructure:"debug_mode"`
	Production    bool                 `mapstructure:"production"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_grace", 15*time.Second)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("embedding.timeout", 10*time.Second)
	v.SetDefault("embedding.cache_size", 1024)
	v.SetDefault("vector_store.class_name", "Tool")
	v.SetDefault("llm_gateway.timeout", 30*time.Second)
	v.SetDefault("discovery.per_source_timeout", 30*time.Second)
	v.SetDefault("retrieval.default_threshold", 0.7)
	v.SetDefault("retrieval.default_limit", 5)
	v.SetDefault("retrieval.hybrid_enabled", true)
	v.SetDefault("retrieval.hybrid_alpha", 0.7)
	v.SetDefault("retrieval.timeout", 10*time.Second)
	v.SetDefault("summarization.default_max_tokens", 2000)
	v.SetDefault("summarization.timeout", 20*time.Second)
	v.SetDefault("summarization.max_input_chars", 20000)
	v.SetDefault("execution.default_call_timeout", 30*time.Second)
	v.SetDefault("execution.max_call_timeout", 120*time.Second)
	v.SetDefault("execution.worker_pool_size", 16)
	v.SetDefault("python.deny_prefixes", []string{"os", "sys", "subprocess", "pickle", "importlib", "builtins"})
	v.SetDefault("request_limits.max_body_bytes", 1<<20)
	v.SetDefault("request_limits.max_arg_bytes", 1<<18)
	v.SetDefault("telemetry.enabled", false)
}

// Load reads configuration from the environment (prefix REGISTRY_) and an
// optional file at configPath, applies defaults, and validates the result.
// It returns before any listener opens, per §6.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("registry")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	defaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %q: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	if cfg.Production {
		for _, origin := range cfg.Server.CORSOrigins {
			if origin == "*" {
				return nil, fmt.Errorf("invalid config: wildcard CORS origin is not permitted with production=true")
			}
		}
	}

	return &cfg, nil
}

// Validate runs struct-tag validation plus the cross-field checks the tag
// language can't express.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.RegisterValidation("dim_gt0", dimGreaterThanZero); err != nil {
		return fmt.Errorf("registering validator: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Execution.DefaultCallTimeout > cfg.Execution.MaxCallTimeout {
		return fmt.Errorf("invalid config: execution.default_call_timeout must not exceed execution.max_call_timeout")
	}
	return nil
}

func dimGreaterThanZero(fl validator.FieldLevel) bool {
	return fl.Field().Int() > 0
}
