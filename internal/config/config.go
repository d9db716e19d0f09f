package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Env          string
	DatabaseURL  string
	HTTPPort     string
	LogLevel     string
	GeminiAPIKey string

	// Pagination
	DefaultPageSize int
	MaxPageSize     int

	// Export
	ExportDir         string
	ExportUniquePaths bool
	ExportRolePolicy  string // "sharegpt" or "strict"

	// Object storage for finished exports. Disabled when S3Endpoint is empty.
	S3Endpoint   string
	S3AccessKey  string
	S3SecretKey  string
	S3BucketName string
	S3UseSSL     bool
}

var AppConfig Config

// LoadConfig populates AppConfig from the environment, reading a .env file
// first when one exists. It reports whether a .env file was loaded.
func LoadConfig() bool {
	envLoaded := godotenv.Load() == nil

	AppConfig = Config{
		Env:          getEnv("ENV", "development"),
		DatabaseURL:  getEnv("DATABASE_URL", "chat_dataset.db"),
		HTTPPort:     getEnv("HTTP_PORT", "8080"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),

		DefaultPageSize: getEnvAsInt("DEFAULT_PAGE_SIZE", 20),
		MaxPageSize:     getEnvAsInt("MAX_PAGE_SIZE", 100),

		ExportDir:         getEnv("EXPORT_DIR", os.TempDir()),
		ExportUniquePaths: getEnvAsBool("EXPORT_UNIQUE_PATHS", true),
		ExportRolePolicy:  strings.ToLower(getEnv("EXPORT_ROLE_POLICY", "sharegpt")),

		S3Endpoint:   getEnv("S3_ENDPOINT", ""),
		S3AccessKey:  getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:  getEnv("S3_SECRET_KEY", ""),
		S3BucketName: getEnv("S3_BUCKET_NAME", "dataset-exports"),
		S3UseSSL:     getEnvAsBool("S3_USE_SSL", false),
	}

	if AppConfig.DefaultPageSize > AppConfig.MaxPageSize {
		AppConfig.DefaultPageSize = AppConfig.MaxPageSize
	}
	return envLoaded
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil && value > 0 {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
