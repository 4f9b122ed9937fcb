package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the lifecycle engine.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Ongage    OngageConfig    `yaml:"ongage"`
	Slack     SlackConfig     `yaml:"slack"`
	Bedrock   BedrockConfig   `yaml:"bedrock"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig holds HTTP control-surface configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the listen host, with container detection.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the durable job-queue backend settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// OngageConfig holds mail-platform API configuration.
type OngageConfig struct {
	BaseURL        string `yaml:"base_url"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	AccountCode    string `yaml:"account_code"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration.
func (c OngageConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SlackConfig holds chat-poster configuration.
type SlackConfig struct {
	BaseURL        string `yaml:"base_url"`
	BotToken       string `yaml:"bot_token"`
	Channel        string `yaml:"channel"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration.
func (c SlackConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BedrockConfig holds the language-model endpoint configuration.
type BedrockConfig struct {
	Region  string `yaml:"region"`
	ModelID string `yaml:"model_id"`
	Enabled bool   `yaml:"enabled"`
}

// SchedulerConfig holds job-runner tuning and the stage offsets.
// Offsets are overridable only for testing; zero values take the
// production defaults (T-21h, T-3h15m, T-15m, T+0, T+30m).
type SchedulerConfig struct {
	Workers               int `yaml:"workers"`
	LeaseSeconds          int `yaml:"lease_seconds"`
	SafetyNetWindowMins   int `yaml:"safety_net_window_mins"`
	PreLaunchOffsetMins   int `yaml:"prelaunch_offset_mins"`
	PreFlightOffsetMins   int `yaml:"preflight_offset_mins"`
	LaunchWarnOffsetMins  int `yaml:"launch_warning_offset_mins"`
	WrapUpOffsetMins      int `yaml:"wrapup_offset_mins"`
	StageTimeoutSeconds   int `yaml:"stage_timeout_seconds"`
	AgentTimeoutSeconds   int `yaml:"agent_timeout_seconds"`
}

// StageTimeout returns the whole-stage deadline.
func (c SchedulerConfig) StageTimeout() time.Duration {
	return time.Duration(c.StageTimeoutSeconds) * time.Second
}

// AgentTimeout returns the per-agent deadline.
func (c SchedulerConfig) AgentTimeout() time.Duration {
	return time.Duration(c.AgentTimeoutSeconds) * time.Second
}

// Load reads and parses the configuration file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 5
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 2
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Ongage.TimeoutSeconds == 0 {
		cfg.Ongage.TimeoutSeconds = 30
	}
	if cfg.Slack.BaseURL == "" {
		cfg.Slack.BaseURL = "https://slack.com/api"
	}
	if cfg.Slack.TimeoutSeconds == 0 {
		cfg.Slack.TimeoutSeconds = 15
	}
	if cfg.Bedrock.Region == "" {
		cfg.Bedrock.Region = "us-east-1"
	}
	if cfg.Bedrock.ModelID == "" {
		cfg.Bedrock.ModelID = "anthropic.claude-3-sonnet-20240229-v1:0"
	}
	if cfg.Scheduler.Workers == 0 {
		cfg.Scheduler.Workers = 4
	}
	if cfg.Scheduler.LeaseSeconds == 0 {
		cfg.Scheduler.LeaseSeconds = 180
	}
	if cfg.Scheduler.SafetyNetWindowMins == 0 {
		cfg.Scheduler.SafetyNetWindowMins = 15
	}
	if cfg.Scheduler.StageTimeoutSeconds == 0 {
		cfg.Scheduler.StageTimeoutSeconds = 120
	}
	if cfg.Scheduler.AgentTimeoutSeconds == 0 {
		cfg.Scheduler.AgentTimeoutSeconds = 30
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets can
// live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("ONGAGE_BASE_URL"); v != "" {
		cfg.Ongage.BaseURL = v
	}
	if v := os.Getenv("ONGAGE_USERNAME"); v != "" {
		cfg.Ongage.Username = v
	}
	if v := os.Getenv("ONGAGE_PASSWORD"); v != "" {
		cfg.Ongage.Password = v
	}
	if v := os.Getenv("ONGAGE_ACCOUNT_CODE"); v != "" {
		cfg.Ongage.AccountCode = v
	}
	if v := os.Getenv("SLACK_BOT_TOKEN"); v != "" {
		cfg.Slack.BotToken = v
	}
	if v := os.Getenv("SLACK_CHANNEL"); v != "" {
		cfg.Slack.Channel = v
	}
	if v := os.Getenv("BEDROCK_MODEL_ID"); v != "" {
		cfg.Bedrock.ModelID = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Bedrock.Region = v
	}

	return cfg, nil
}
