package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string
	Environment   string

	// AWS configuration
	AWSRegion        string
	DynamoDBEndpoint string // overrides the service endpoint, e.g. DynamoDB Local

	// Schema of the tables the graph is stored in
	SchemaPath string

	// Lambda configuration
	IsLambda           bool
	LambdaFunctionName string

	// Batch operations
	BatchTimeout        time.Duration
	BatchInitialDelay   time.Duration
	BatchMaxConcurrency int

	// Logging
	LogLevel string

	// Observability
	MetricsNamespace   string
	CloudWatchInterval time.Duration

	// Authentication
	JWTSecret string
	JWTIssuer string

	// Feature flags
	EnableMetrics        bool
	EnableTracing        bool
	EnableCloudWatch     bool
	EnableCircuitBreaker bool
	EnableAuth           bool
	EnableCORS           bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerAddress:    getEnv("SERVER_ADDRESS", ":8080"),
		Environment:      getEnv("ENVIRONMENT", "development"),
		AWSRegion:        getEnv("AWS_REGION", "us-west-2"),
		DynamoDBEndpoint: getEnv("DYNAMODB_ENDPOINT", ""),
		SchemaPath:       getEnv("SCHEMA_PATH", "schema.yaml"),

		// Lambda configuration
		IsLambda:           getEnvBool("IS_LAMBDA", false),
		LambdaFunctionName: getEnv("AWS_LAMBDA_FUNCTION_NAME", ""),

		// Batch operations
		BatchTimeout:        getEnvDuration("BATCH_TIMEOUT", 60*time.Second),
		BatchInitialDelay:   getEnvDuration("BATCH_INITIAL_DELAY", 50*time.Millisecond),
		BatchMaxConcurrency: getEnvInt("BATCH_MAX_CONCURRENCY", 8),

		// Authentication
		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "relay-graph"),

		// Logging and features
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		MetricsNamespace:     getEnv("METRICS_NAMESPACE", "RelayGraph"),
		CloudWatchInterval:   getEnvDuration("CLOUDWATCH_FLUSH_INTERVAL", time.Minute),
		EnableMetrics:        getEnvBool("ENABLE_METRICS", false),
		EnableTracing:        getEnvBool("ENABLE_TRACING", false),
		EnableCloudWatch:     getEnvBool("ENABLE_CLOUDWATCH", false),
		EnableCircuitBreaker: getEnvBool("ENABLE_CIRCUIT_BREAKER", true),
		EnableAuth:           getEnvBool("ENABLE_AUTH", false),
		EnableCORS:           getEnvBool("ENABLE_CORS", true),
	}

	// Lambda sets this for every function
	if cfg.LambdaFunctionName != "" {
		cfg.IsLambda = true
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if c.SchemaPath == "" {
		return fmt.Errorf("SCHEMA_PATH is required")
	}
	if c.BatchTimeout <= 0 {
		return fmt.Errorf("BATCH_TIMEOUT must be positive")
	}
	if c.BatchMaxConcurrency <= 0 {
		return fmt.Errorf("BATCH_MAX_CONCURRENCY must be positive")
	}
	if c.EnableAuth && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENABLE_AUTH is set")
	}

	if c.Environment == "production" {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.DynamoDBEndpoint != "" {
			return fmt.Errorf("DYNAMODB_ENDPOINT must not be set in production")
		}
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

// getEnvDuration gets a duration environment variable such as "250ms" with a
// default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
