// internal/common/config/config.go
package config

import "time"

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig               `mapstructure:"app"`
	Camunda  CamundaConfig           `mapstructure:"camunda"`
	Database DatabaseConfig          `mapstructure:"database"`
	Workers  map[string]WorkerConfig `mapstructure:"workers"`
	APIs     APIsConfig              `mapstructure:"apis"`
	Ranking  RankingConfig           `mapstructure:"ranking"`
	Cache    CacheConfig             `mapstructure:"cache"`
	Logging  LoggingConfig           `mapstructure:"logging"`
	Metrics  MetricsConfig           `mapstructure:"metrics"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
}

// APIsConfig holds settings for the ranking provider backends.
type APIsConfig struct {
	// Provider selects the backend: "http" (OpenAI-compatible) or "genai".
	Provider string `mapstructure:"provider"`

	GenAI struct {
		BaseURL     string  `mapstructure:"base_url"`
		APIKey      string  `mapstructure:"api_key"`
		Model       string  `mapstructure:"model"`
		Temperature float64 `mapstructure:"temperature"`
		MaxTokens   int     `mapstructure:"max_tokens"`
	} `mapstructure:"genai"`
}

// RankingConfig carries every tunable of the ranking engine. It is read once
// at startup and converted into engine.Config; the engine never reads the
// environment itself.
type RankingConfig struct {
	BaseTimeout          int     `mapstructure:"base_timeout"`      // milliseconds
	MaxTimeout           int     `mapstructure:"max_timeout"`       // milliseconds
	TimeoutStep          int     `mapstructure:"timeout_step"`      // milliseconds added per step
	CandidateStep        int     `mapstructure:"candidate_step"`    // candidates per timeout step
	PayloadStepBytes     int     `mapstructure:"payload_step_bytes"`
	CompressPayloadBytes int     `mapstructure:"compress_payload_bytes"`
	CompressCandidates   int     `mapstructure:"compress_candidates"`
	ShrinkFraction       float64 `mapstructure:"shrink_fraction"`
	ShrinkMinCandidates  int     `mapstructure:"shrink_min_candidates"`
	MaxRetries           int     `mapstructure:"max_retries"`
	DescriptionMaxChars  int     `mapstructure:"description_max_chars"`
	CompressedDescChars  int     `mapstructure:"compressed_description_chars"`
	RelevanceShare       float64 `mapstructure:"relevance_share"`
}

// CacheConfig controls the optional outcome cache.
type CacheConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	TTL         int    `mapstructure:"ttl"`          // seconds
	ReadTimeout int    `mapstructure:"read_timeout"` // milliseconds
	KeyPrefix   string `mapstructure:"key_prefix"`
	QueueSize   int    `mapstructure:"queue_size"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type MetricsConfig struct {
	Address string `mapstructure:"address"`
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
