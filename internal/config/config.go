// Package config provides configuration for the assistant service.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "EDITH"

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort int `yaml:"http_port" envconfig:"HTTP_PORT"`

	Database     DatabaseConfig     `yaml:"database" envconfig:"DATABASE"`
	LLM          LLMConfig          `yaml:"llm" envconfig:"LLM"`
	Agent        AgentConfig        `yaml:"agent" envconfig:"AGENT"`
	Approval     ApprovalConfig     `yaml:"approval" envconfig:"APPROVAL"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" envconfig:"ORCHESTRATOR"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	Redis        RedisConfig        `yaml:"redis" envconfig:"REDIS"`
	RabbitMQ     RabbitMQConfig     `yaml:"rabbitmq" envconfig:"RABBITMQ"`
	ClickHouse   ClickHouseConfig   `yaml:"clickhouse" envconfig:"CLICKHOUSE"`
	Backend      BackendConfig      `yaml:"backend" envconfig:"BACKEND"`

	WorkflowsFile string `yaml:"workflows_file" envconfig:"WORKFLOWS_FILE"`
	PolicyFile    string `yaml:"policy_file" envconfig:"POLICY_FILE"`

	// Logging
	LogLevel  string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" envconfig:"LOG_FORMAT"`

	// MockMode swaps the model and backend for in-process fakes.
	MockMode bool `yaml:"mock_mode" envconfig:"MOCK_MODE"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver" envconfig:"DRIVER"` // sqlite3, pgx or mysql
	DSN    string `yaml:"dsn" envconfig:"DSN"`
}

type LLMConfig struct {
	Provider  string  `yaml:"provider" envconfig:"PROVIDER"` // openai or gemini
	Model     string  `yaml:"model" envconfig:"MODEL"`
	BaseURL   string  `yaml:"base_url" envconfig:"BASE_URL"`
	APIKey    string  `yaml:"api_key" envconfig:"API_KEY"`
	MaxTokens int     `yaml:"max_tokens" envconfig:"MAX_TOKENS"`
	Temp      float32 `yaml:"temperature" envconfig:"TEMPERATURE"`
}

type AgentConfig struct {
	MaxIterations int `yaml:"max_iterations" envconfig:"MAX_ITERATIONS"`
	HistoryLimit  int `yaml:"history_limit" envconfig:"HISTORY_LIMIT"`
}

type ApprovalConfig struct {
	Window        time.Duration `yaml:"window" envconfig:"WINDOW"`
	SweepInterval time.Duration `yaml:"sweep_interval" envconfig:"SWEEP_INTERVAL"`
}

type OrchestratorConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold" envconfig:"CONFIDENCE_THRESHOLD"`
}

type RateLimitConfig struct {
	Limit  int           `yaml:"limit" envconfig:"LIMIT"`
	Window time.Duration `yaml:"window" envconfig:"WINDOW"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"ADDR"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
	DB       int    `yaml:"db" envconfig:"DB"`
}

type RabbitMQConfig struct {
	URL      string `yaml:"url" envconfig:"URL"`
	Exchange string `yaml:"exchange" envconfig:"EXCHANGE"`
}

type ClickHouseConfig struct {
	DSN string `yaml:"dsn" envconfig:"DSN"`
}

type BackendConfig struct {
	RPCAddr string        `yaml:"rpc_addr" envconfig:"RPC_ADDR"`
	Timeout time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTPPort: 8080,
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "file:edith.db?cache=shared&mode=rwc",
		},
		LLM: LLMConfig{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			MaxTokens: 4096,
			Temp:      0.2,
		},
		Agent: AgentConfig{
			MaxIterations: 10,
			HistoryLimit:  20,
		},
		Approval: ApprovalConfig{
			Window:        24 * time.Hour,
			SweepInterval: time.Minute,
		},
		Orchestrator: OrchestratorConfig{ConfidenceThreshold: 0.7},
		RateLimit: RateLimitConfig{
			Limit:  60,
			Window: time.Hour,
		},
		RabbitMQ:  RabbitMQConfig{Exchange: "edith.notifications"},
		Backend:   BackendConfig{Timeout: 10 * time.Second},
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// Load builds the configuration from defaults, an optional YAML file,
// .env files, and EDITH_* environment variables, in increasing precedence.
// An empty path falls back to $EDITH_CONFIG.
func Load(path string) (*Config, error) {
	// .env files are optional
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process env vars: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "pgx", "mysql":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent max iterations must be positive")
	}
	if c.Orchestrator.ConfidenceThreshold < 0 || c.Orchestrator.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be within [0,1]")
	}
	if c.RateLimit.Limit <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit and window must be positive")
	}
	if c.Approval.Window <= 0 {
		return fmt.Errorf("approval window must be positive")
	}
	return nil
}
