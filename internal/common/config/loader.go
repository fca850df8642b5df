// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	ProviderHTTP  = "http"
	ProviderGenAI = "genai"
)

func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment overlay, e.g. configs/config.production.yaml. Missing is fine.
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills secrets that are usually injected as plain env vars.
func overrideEmptyConfig(cfg *Config) {
	if cfg.APIs.GenAI.APIKey == "" {
		if val := os.Getenv("GENAI_API_KEY"); val != "" {
			cfg.APIs.GenAI.APIKey = val
		}
	}
	if val := os.Getenv("RANKING_PROVIDER_BACKEND"); val != "" {
		cfg.APIs.Provider = val
	}
	if cfg.Database.Redis.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Database.Redis.Password = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "ranking-service"
	}

	if cfg.Camunda.BrokerAddress == "" {
		cfg.Camunda.BrokerAddress = "localhost:26500"
	}
	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Database.Redis.PoolSize == 0 {
		cfg.Database.Redis.PoolSize = 10
	}

	if cfg.APIs.Provider == "" {
		cfg.APIs.Provider = ProviderHTTP
	}
	if cfg.APIs.GenAI.Temperature == 0 {
		cfg.APIs.GenAI.Temperature = 0.2
	}
	if cfg.APIs.GenAI.MaxTokens == 0 {
		cfg.APIs.GenAI.MaxTokens = 2000
	}

	applyRankingDefaults(&cfg.Ranking)

	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 900
	}
	if cfg.Cache.ReadTimeout == 0 {
		cfg.Cache.ReadTimeout = 50
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = "ranking:outcome:"
	}
	if cfg.Cache.QueueSize == 0 {
		cfg.Cache.QueueSize = 64
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":8080"
	}

	if cfg.Workers == nil {
		cfg.Workers = map[string]WorkerConfig{}
	}
	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 60000
		}
		cfg.Workers[key] = worker
	}
}

func applyRankingDefaults(r *RankingConfig) {
	if r.BaseTimeout == 0 {
		r.BaseTimeout = 12000
	}
	if r.MaxTimeout == 0 {
		r.MaxTimeout = 30000
	}
	if r.TimeoutStep == 0 {
		r.TimeoutStep = 3000
	}
	if r.CandidateStep == 0 {
		r.CandidateStep = 40
	}
	if r.PayloadStepBytes == 0 {
		r.PayloadStepBytes = 40000
	}
	if r.CompressPayloadBytes == 0 {
		r.CompressPayloadBytes = 60000
	}
	if r.CompressCandidates == 0 {
		r.CompressCandidates = 80
	}
	if r.ShrinkFraction == 0 {
		r.ShrinkFraction = 0.3
	}
	if r.ShrinkMinCandidates == 0 {
		r.ShrinkMinCandidates = 30
	}
	if r.MaxRetries == 0 {
		r.MaxRetries = 1
	}
	if r.DescriptionMaxChars == 0 {
		r.DescriptionMaxChars = 400
	}
	if r.CompressedDescChars == 0 {
		r.CompressedDescChars = 120
	}
	if r.RelevanceShare == 0 {
		r.RelevanceShare = 0.7
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	switch cfg.APIs.Provider {
	case ProviderHTTP:
		if cfg.APIs.GenAI.BaseURL == "" {
			return fmt.Errorf("apis.genai.base_url is required for the http provider")
		}
	case ProviderGenAI:
		if cfg.APIs.GenAI.APIKey == "" {
			return fmt.Errorf("apis.genai.api_key is required for the genai provider")
		}
	default:
		return fmt.Errorf("apis.provider must be %q or %q, got %q", ProviderHTTP, ProviderGenAI, cfg.APIs.Provider)
	}

	if cfg.Ranking.MaxTimeout < cfg.Ranking.BaseTimeout {
		return fmt.Errorf("ranking.max_timeout must be >= ranking.base_timeout")
	}
	if cfg.Ranking.ShrinkFraction <= 0 || cfg.Ranking.ShrinkFraction >= 1 {
		return fmt.Errorf("ranking.shrink_fraction must be in (0,1)")
	}
	// A negative max_retries disables the retry; zero means the default.
	if cfg.Ranking.MaxRetries > 1 {
		return fmt.Errorf("ranking.max_retries must be at most 1")
	}
	if cfg.Ranking.RelevanceShare <= 0 || cfg.Ranking.RelevanceShare > 1 {
		return fmt.Errorf("ranking.relevance_share must be in (0,1]")
	}

	if cfg.Cache.Enabled && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required when cache is enabled")
	}

	return nil
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}

	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       60000,
	}
}
