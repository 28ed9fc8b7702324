package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location, overridable with
// JOURNEY_CONFIG.
var ConfigPath = defaultConfigPath()

func defaultConfigPath() string {
	if v := os.Getenv("JOURNEY_CONFIG"); v != "" {
		return v
	}
	return "config.yaml"
}

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port               string `yaml:"port"`
	LogLevel           string `yaml:"logLevel"`
	DBDriver           string `yaml:"dbDriver"`
	DatabaseDSN        string `yaml:"databaseDSN"`
	RedisAddr          string `yaml:"redisAddr"`
	RedisPassword      string `yaml:"redisPassword"`
	AMQPURL            string `yaml:"amqpURL"`
	AMQPExchange       string `yaml:"amqpExchange"`
	GenerationProvider string `yaml:"generationProvider"`
	GenerationBaseURL  string `yaml:"generationBaseURL"`
	GenerationAPIKey   string `yaml:"generationAPIKey"`
	GenerationModel    string `yaml:"generationModel"`
	ExtractionProvider string `yaml:"extractionProvider"`
	ExtractionBaseURL  string `yaml:"extractionBaseURL"`
	ExtractionAPIKey   string `yaml:"extractionAPIKey"`
	ExtractionModel    string `yaml:"extractionModel"`
	GeminiAPIKey       string   `yaml:"geminiAPIKey"`
	OllamaBaseURL      string   `yaml:"ollamaBaseURL"`
	FallbackKeywords   bool     `yaml:"fallbackKeywords"`
	SchemaFile         string   `yaml:"schemaFile"`
	RateLimitPerMin    int      `yaml:"rateLimitPerMin"`
	TrustedProxyCIDRs  []string `yaml:"trustedProxyCidrs"`
	SentinelWindow     int      `yaml:"sentinelWindow"`
	HistoryLimit       int      `yaml:"historyLimit"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		cfg.DBDriver = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.GenerationAPIKey = v
		if cfg.ExtractionAPIKey == "" {
			cfg.ExtractionAPIKey = v
		}
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.GenerationBaseURL = v
		if cfg.ExtractionBaseURL == "" {
			cfg.ExtractionBaseURL = v
		}
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.GeminiAPIKey = v
	}
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		cfg.OllamaBaseURL = v
	}
	if v := os.Getenv("JOURNEY_SCHEMA_FILE"); v != "" {
		cfg.SchemaFile = v
	}
	if v := os.Getenv("JOURNEY_FALLBACK_KEYWORDS"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.FallbackKeywords = enabled
		}
	}
	if v := os.Getenv("JOURNEY_RATE_LIMIT_PER_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitPerMin = n
		}
	}
	if v := os.Getenv("JOURNEY_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("config: databaseDSN is required (set in config.yaml or DATABASE_DSN)")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.DBDriver)) {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown dbDriver %q (want sqlite or postgres)", cfg.DBDriver)
	}
	if cfg.GenerationModel == "" {
		return errors.New("config: generationModel is required (set in config.yaml)")
	}
	if cfg.ExtractionModel == "" {
		return errors.New("config: extractionModel is required (set in config.yaml)")
	}
	if strings.EqualFold(cfg.GenerationProvider, "gemini") && cfg.GeminiAPIKey == "" {
		return errors.New("config: geminiAPIKey is required for the gemini provider (set in config.yaml or GEMINI_API_KEY)")
	}
	if cfg.RateLimitPerMin < 0 {
		return errors.New("config: rateLimitPerMin must be >= 0")
	}
	if cfg.SentinelWindow < 0 {
		return errors.New("config: sentinelWindow must be >= 0")
	}
	if cfg.HistoryLimit < 0 {
		return errors.New("config: historyLimit must be >= 0")
	}
	return nil
}
