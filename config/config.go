package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete knowledge service configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	OpenAI        OpenAIConfig
	Retrieval     RetrievalConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration for the knowledge store.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over
// individual fields.
type DatabaseConfig struct {
	ConnectionString string
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// OpenAIConfig holds the language-model provider configuration. An empty
// APIKey means the provider is not configured and the service answers with
// rule-based templates only.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxRetries  int
	MaxTokens   int
	Temperature float64
}

// Configured reports whether an API credential is present
func (c *OpenAIConfig) Configured() bool {
	return c.APIKey != ""
}

// RetrievalConfig holds the ranking and escalation parameters. Defaults
// preserve the constants observed in production; they are configuration
// rather than hard constants because no documented derivation exists for
// them.
type RetrievalConfig struct {
	// CacheTTL is the freshness window of the in-memory entry snapshot
	CacheTTL time.Duration
	// SearchTopK / AnswerTopK bound the ranked shortlist per operation
	SearchTopK int
	AnswerTopK int
	// Scoring weights: score = confidence*ConfidenceWeight +
	// priority*PriorityWeight + wordMatchFraction*WordMatchWeight +
	// min(usageCount*UsageWeight, UsageBonusCap)
	ConfidenceWeight float64
	PriorityWeight   float64
	WordMatchWeight  float64
	UsageWeight      float64
	UsageBonusCap    float64
	// MinWordLength is the minimum query-word length considered for the
	// literal word-match fallback and the word-match fraction
	MinWordLength int
	// PriorityBonusWeight scales the highest candidate priority into the
	// result-level confidence estimate
	PriorityBonusWeight float64
	// EmptyResultConfidence is the fixed baseline when nothing matches
	EmptyResultConfidence float64
	// EscalationThreshold flags answers below this overall confidence
	EscalationThreshold float64
	// EscalationKeywords is the urgent/billing denylist checked against the
	// raw query
	EscalationKeywords []string
	// HandoffPhrases flag replies that themselves suggest a human handoff
	HandoffPhrases []string
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or text
}

// defaultEscalationKeywords is the urgent/billing denylist used by the
// command center's support flow
var defaultEscalationKeywords = []string{
	"refund",
	"cancel",
	"urgent",
	"emergency",
	"broken",
	"not working",
	"complaint",
	"speak to human",
	"speak to a human",
}

var defaultHandoffPhrases = []string{
	"support ticket",
	"contact support",
	"escalate",
}

// New creates a Config by loading environment variables. A .env file is
// loaded first when present.
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: loadDatabaseConfig(),
		OpenAI: OpenAIConfig{
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 5*time.Second),
			MaxRetries:  getEnvAsInt("OPENAI_MAX_RETRIES", 0),
			MaxTokens:   getEnvAsInt("OPENAI_MAX_TOKENS", 500),
			Temperature: getEnvAsFloat("OPENAI_TEMPERATURE", 0.4),
		},
		Retrieval: RetrievalConfig{
			CacheTTL:              getEnvAsDuration("KNOWLEDGE_CACHE_TTL", 5*time.Minute),
			SearchTopK:            getEnvAsInt("KNOWLEDGE_SEARCH_TOP_K", 3),
			AnswerTopK:            getEnvAsInt("KNOWLEDGE_ANSWER_TOP_K", 5),
			ConfidenceWeight:      getEnvAsFloat("KNOWLEDGE_CONFIDENCE_WEIGHT", 0.3),
			PriorityWeight:        getEnvAsFloat("KNOWLEDGE_PRIORITY_WEIGHT", 0.2),
			WordMatchWeight:       getEnvAsFloat("KNOWLEDGE_WORD_MATCH_WEIGHT", 50),
			UsageWeight:           getEnvAsFloat("KNOWLEDGE_USAGE_WEIGHT", 0.1),
			UsageBonusCap:         getEnvAsFloat("KNOWLEDGE_USAGE_BONUS_CAP", 5),
			MinWordLength:         getEnvAsInt("KNOWLEDGE_MIN_WORD_LENGTH", 4),
			PriorityBonusWeight:   getEnvAsFloat("KNOWLEDGE_PRIORITY_BONUS_WEIGHT", 0.001),
			EmptyResultConfidence: getEnvAsFloat("KNOWLEDGE_EMPTY_RESULT_CONFIDENCE", 0.3),
			EscalationThreshold:   getEnvAsFloat("KNOWLEDGE_ESCALATION_THRESHOLD", 0.65),
			EscalationKeywords:    getEnvAsList("KNOWLEDGE_ESCALATION_KEYWORDS", defaultEscalationKeywords),
			HandoffPhrases:        getEnvAsList("KNOWLEDGE_HANDOFF_PHRASES", defaultHandoffPhrases),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration fields are set and that the
// retrieval parameters are sane
func (c *Config) Validate() error {
	if c.Database.ConnectionString == "" && c.Database.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}
	if c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.Retrieval.CacheTTL <= 0 {
		return fmt.Errorf("knowledge cache TTL must be positive")
	}
	if c.Retrieval.SearchTopK <= 0 || c.Retrieval.AnswerTopK <= 0 {
		return fmt.Errorf("knowledge top-K limits must be positive")
	}
	if c.Retrieval.EscalationThreshold < 0 || c.Retrieval.EscalationThreshold > 1 {
		return fmt.Errorf("escalation threshold must be within [0,1]")
	}
	if c.Retrieval.MinWordLength <= 0 {
		return fmt.Errorf("minimum word length must be positive")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string. Uses ConnectionString (from
// DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password)
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "yobot"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "command_center"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8090
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList parses a comma-separated env var into a lowercased list
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
