package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Port string

	// Logging configuration
	LogLevel string

	// AWS configuration
	AWSRegion string

	// DynamoDB configuration
	TasksTableName     string
	DevicesTableName   string
	GroupsTableName    string
	TemplatesTableName string

	// Queue configuration. When TaskQueueURL is empty the service runs
	// with the in-process queue instead of SQS.
	TaskQueueURL    string
	QueueBufferSize int
	WorkerCount     int
}

// New creates a new Config instance by loading environment variables
// from .env file (if present) and OS environment.
// OS environment variables take precedence over .env file values.
// Panics if configuration values are invalid.
func New() *Config {
	// Load .env file from the working directory (silently ignore if absent)
	_ = godotenv.Load(filepath.Join(".", ".env"))

	cfg := &Config{
		Port:     getEnvOrDefault("PORT", "3002"),
		LogLevel: getEnvOrDefault("LOG_LEVEL", "INFO"),

		AWSRegion: getEnvOrDefault("AWS_REGION", "us-east-1"),

		TasksTableName:     getEnvOrDefault("DYNAMODB_TASKS_TABLE", "DeviceAssociationTasks"),
		DevicesTableName:   getEnvOrDefault("DYNAMODB_DEVICES_TABLE", "Devices"),
		GroupsTableName:    getEnvOrDefault("DYNAMODB_GROUPS_TABLE", "GreengrassGroups"),
		TemplatesTableName: getEnvOrDefault("DYNAMODB_TEMPLATES_TABLE", "GroupTemplates"),

		TaskQueueURL:    os.Getenv("TASK_QUEUE_URL"),
		QueueBufferSize: getEnvIntOrDefault("QUEUE_BUFFER_SIZE", 100),
		WorkerCount:     getEnvIntOrDefault("WORKER_COUNT", 5),
	}

	cfg.validate()

	return cfg
}

// validate checks that all configuration values are usable
func (c *Config) validate() {
	if c.WorkerCount < 1 {
		panic(fmt.Sprintf("WORKER_COUNT must be at least 1 (got %d)", c.WorkerCount))
	}
	if c.QueueBufferSize < 1 {
		panic(fmt.Sprintf("QUEUE_BUFFER_SIZE must be at least 1 (got %d)", c.QueueBufferSize))
	}
}

// getEnvOrDefault returns the value of an environment variable or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault returns the integer value of an environment variable
// or a default value if unset. Panics if the value is not an integer.
func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		panic(fmt.Sprintf("%s must be an integer (got '%s')", key, value))
	}
	return n
}
