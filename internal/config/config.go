package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort        string
	ModelServiceURL string
	CORSOrigins     string

	MaxUploadSizeMB int
	MaxUploadFiles  int
	ModelTimeoutSec int
	LogLevel        string
	Environment     string

	DBPath        string
	AdminUser     string
	AdminPassword string
}

func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadSizeMB) << 20
}

func (c *Config) ModelTimeout() time.Duration {
	return time.Duration(c.ModelTimeoutSec) * time.Second
}

func (c *Config) IsDev() bool {
	return c.Environment == "dev"
}

func LoadConfig() *Config {
	// Загрузка .env файла (если существует)
	if err := godotenv.Load(); err != nil {
		// Игнорируем ошибку, если файл не найден - используем переменные окружения системы
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ModelServiceURL: getEnv("MODEL_SERVICE_URL", "http://localhost:9000"),
		CORSOrigins:     getEnv("CORS_ORIGINS", "*"),
		MaxUploadSizeMB: getEnvInt("MAX_UPLOAD_SIZE_MB", 200),
		MaxUploadFiles:  getEnvInt("MAX_UPLOAD_FILES", 4),
		ModelTimeoutSec: getEnvInt("MODEL_TIMEOUT_SEC", 30),
		LogLevel:        getEnv("LOG_LEVEL", "INFO"),
		Environment:     getEnv("ENVIRONMENT", "production"),
		DBPath:          getEnv("DB_PATH", "storm_vision.db"),
		AdminUser:       getEnv("ADMIN_USER", "admin"),
		AdminPassword:   getEnv("ADMIN_PASSWORD", ""),
	}

	// Проверка обязательных полей
	if cfg.AdminPassword == "" {
		fmt.Println("WARNING: ADMIN_PASSWORD is not set, admin account will not be seeded!")
	}

	return cfg
}

func getEnv(key string, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if intVal, err := strconv.Atoi(v); err == nil {
			return intVal
		}
	}
	return defaultVal
}
