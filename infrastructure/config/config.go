package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends
const (
	StorageMemory   = "memory"
	StorageDynamoDB = "dynamodb"
)

// GenerationConfig holds the text-generation provider settings
type GenerationConfig struct {
	// Provider is openai, gemini or static
	Provider string
	Model    string
	APIKey   string
	BaseURL  string

	Temperature float64
	MaxTokens   int
	// Timeout bounds a single generation call
	Timeout time.Duration

	// StaticFollowUps is the follow-up count of the offline provider
	StaticFollowUps int

	RequestsPerSecond float64
	Burst             int
}

// OperationConfig holds the background operation settings
type OperationConfig struct {
	Workers int
	Timeout time.Duration
	TTL     time.Duration
}

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string
	Environment   string
	ServiceName   string

	// AWS configuration
	AWSRegion     string
	Storage       string
	DynamoDBTable string
	IndexName     string // GSI1 - canvases by update time
	EventBusName  string

	// Lambda configuration
	IsLambda         bool
	ColdStartTimeout int // milliseconds

	// Logging
	LogLevel string

	// Feature flags
	EnableMetrics    bool
	EnableCloudWatch bool
	EnableTracing    bool
	EnableCORS       bool
	EnableEvents     bool
	AutoSave         bool
	EnableStream     bool

	AllowedOrigins   []string
	MetricsNamespace string
	OTLPEndpoint     string

	// LayoutFile is an optional YAML file overriding the layout defaults
	LayoutFile  string
	WatchLayout bool

	Generation GenerationConfig
	Operations OperationConfig
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	provider := strings.ToLower(getEnv("GENERATION_PROVIDER", "static"))

	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		ServiceName:   getEnv("SERVICE_NAME", "canvas-backend"),

		AWSRegion:     getEnv("AWS_REGION", "us-west-2"),
		Storage:       strings.ToLower(getEnv("STORAGE", StorageMemory)),
		DynamoDBTable: getEnv("TABLE_NAME", getEnv("DYNAMODB_TABLE", "canvas")),
		IndexName:     getEnv("INDEX_NAME", "GSI1"),
		EventBusName:  getEnv("EVENT_BUS_NAME", ""),

		IsLambda:         getEnvBool("IS_LAMBDA", os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""),
		ColdStartTimeout: getEnvInt("COLD_START_TIMEOUT", 3000),

		LogLevel:         getEnv("LOG_LEVEL", "info"),
		EnableMetrics:    getEnvBool("ENABLE_METRICS", true),
		EnableCloudWatch: getEnvBool("ENABLE_CLOUDWATCH", false),
		EnableTracing:    getEnvBool("ENABLE_TRACING", false),
		EnableCORS:       getEnvBool("ENABLE_CORS", true),
		EnableEvents:     getEnvBool("ENABLE_EVENTS", true),
		AutoSave:         getEnvBool("AUTO_SAVE", false),
		EnableStream:     getEnvBool("ENABLE_STREAM", true),

		AllowedOrigins:   getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "canvas"),
		OTLPEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		LayoutFile:  getEnv("LAYOUT_FILE", ""),
		WatchLayout: getEnvBool("WATCH_LAYOUT", false),

		Generation: GenerationConfig{
			Provider:          provider,
			Model:             getEnv("GENERATION_MODEL", ""),
			APIKey:            getEnv("GENERATION_API_KEY", providerKey(provider)),
			BaseURL:           getEnv("GENERATION_BASE_URL", ""),
			Temperature:       getEnvFloat("GENERATION_TEMPERATURE", 0.7),
			MaxTokens:         getEnvInt("GENERATION_MAX_TOKENS", 1024),
			Timeout:           getEnvDuration("GENERATION_TIMEOUT", 60*time.Second),
			StaticFollowUps:   getEnvInt("STATIC_FOLLOW_UPS", 3),
			RequestsPerSecond: getEnvFloat("GENERATION_RPS", 5),
			Burst:             getEnvInt("GENERATION_BURST", 10),
		},

		Operations: OperationConfig{
			Workers: getEnvInt("OPERATION_WORKERS", 16),
			Timeout: getEnvDuration("OPERATION_TIMEOUT", 2*time.Minute),
			TTL:     getEnvDuration("OPERATION_TTL", time.Hour),
		},
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory:
	case StorageDynamoDB:
		if c.DynamoDBTable == "" {
			return fmt.Errorf("TABLE_NAME is required for dynamodb storage")
		}
	default:
		return fmt.Errorf("unknown STORAGE %q", c.Storage)
	}

	switch c.Generation.Provider {
	case "", "static":
	case "openai", "gemini":
		if c.Generation.APIKey == "" {
			return fmt.Errorf("GENERATION_API_KEY is required for provider %s", c.Generation.Provider)
		}
	default:
		return fmt.Errorf("unknown GENERATION_PROVIDER %q", c.Generation.Provider)
	}

	if c.Operations.Workers < 1 {
		return fmt.Errorf("OPERATION_WORKERS must be at least 1")
	}

	if c.IsProduction() && c.Storage == StorageMemory {
		return fmt.Errorf("memory storage is not allowed in production")
	}

	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func providerKey(provider string) string {
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "gemini":
		return getEnv("GEMINI_API_KEY", os.Getenv("GOOGLE_API_KEY"))
	}
	return ""
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat gets a float environment variable with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty entries
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
