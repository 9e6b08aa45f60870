package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "ragline.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "RAGLINE_PORT")
	setString(&cfg.Server.CORSOrigin, "RAGLINE_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "RAGLINE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "RAGLINE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "RAGLINE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "RAGLINE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "RAGLINE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.LLM.URL, "LITELLM_URL")
	setString(&cfg.LLM.APIKey, "LITELLM_MASTER_KEY")
	setString(&cfg.Logging.Level, "RAGLINE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "RAGLINE_LOG_SERVICE")
	setInt(&cfg.Breaker.MaxFailures, "RAGLINE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "RAGLINE_BREAKER_TIMEOUT")
	setString(&cfg.Agent.Model, "RAGLINE_AGENT_MODEL")
	setInt(&cfg.Agent.MaxIterations, "RAGLINE_AGENT_MAX_ITERATIONS")
	setInt(&cfg.Agent.SoftRetrievalLimit, "RAGLINE_AGENT_SOFT_RETRIEVAL_LIMIT")
	setInt(&cfg.Agent.HistoryWindow, "RAGLINE_AGENT_HISTORY_WINDOW")
	setString(&cfg.Agent.SystemPrompt, "RAGLINE_AGENT_SYSTEM_PROMPT")
	setInt(&cfg.Retrieval.TopK, "RAGLINE_RETRIEVAL_TOP_K")
	setString(&cfg.Retrieval.PlannerModel, "RAGLINE_RETRIEVAL_PLANNER_MODEL")
	setString(&cfg.Retrieval.RelevanceModel, "RAGLINE_RETRIEVAL_RELEVANCE_MODEL")
	setFloat64(&cfg.Retrieval.MinRelevanceScore, "RAGLINE_RETRIEVAL_MIN_SCORE")
	setDuration(&cfg.Retrieval.CacheTTL, "RAGLINE_RETRIEVAL_CACHE_TTL")
	setDuration(&cfg.Retrieval.SearchTimeout, "RAGLINE_RETRIEVAL_SEARCH_TIMEOUT")
	setInt64(&cfg.Cache.MaxSizeMB, "RAGLINE_CACHE_SIZE_MB")
	setString(&cfg.Auth.APIKeyHash, "RAGLINE_API_KEY_HASH")
	setString(&cfg.Telemetry.OTLPEndpoint, "RAGLINE_OTLP_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.LLM.URL == "" {
		return errors.New("llm.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Agent.MaxIterations < 1 {
		return errors.New("agent.max_iterations must be >= 1")
	}
	if cfg.Agent.SoftRetrievalLimit < 0 {
		return errors.New("agent.soft_retrieval_limit must be >= 0")
	}
	if cfg.Agent.HistoryWindow < 2 {
		return errors.New("agent.history_window must be >= 2")
	}
	if cfg.Retrieval.TopK < 1 {
		return errors.New("retrieval.top_k must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
