package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Preferences backends
const (
	PreferencesRedis    = "redis"
	PreferencesPostgres = "postgres"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL    string        `env:"DATABASE_URL,required"`
	ServerPort     string        `env:"SERVER_PORT"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`
	LogLevel       string        `env:"LOG_LEVEL"`
	LogFormat      string        `env:"LOG_FORMAT"`
	MainLoopQueue  int           `env:"MAIN_LOOP_QUEUE"`

	// Настройки Flickr
	FlickrAPIKey      string        `env:"FLICKR_API_KEY,required"`
	FlickrBaseURL     string        `env:"FLICKR_BASE_URL"`
	FlickrImageHost   string        `env:"FLICKR_IMAGE_HOST"`
	HTTPClientTimeout time.Duration `env:"HTTP_CLIENT_TIMEOUT"`

	// Настройки для MinIO; без MINIO_ENABLED изображения хранятся в бд
	MinioEnabled         bool   `env:"MINIO_ENABLED"`
	MinioEndpoint        string `env:"MINIO_ENDPOINT"`
	MinioAccessKeyID     string `env:"MINIO_ACCESS_KEY_ID"`
	MinioSecretAccessKey string `env:"MINIO_SECRET_ACCESS_KEY"`
	MinioUseSSL          bool   `env:"MINIO_USE_SSL"`
	MinioBucketName      string `env:"MINIO_BUCKET_NAME"`
	MinioRegion          string `env:"MINIO_REGION"`

	RabbitMQ struct {
		RabbitMQURL       string `env:"RABBITMQ_URL,required"`
		RabbitMQQueueName string `env:"RABBITMQ_QUEUE_NAME" envDefault:"store_batch_queue"`
	}

	// Хранилище настроек карты: redis или postgres
	PreferencesBackend string `env:"PREFERENCES_BACKEND"`
	Redis              struct {
		Addr     string `env:"REDIS_ADDR"`
		Password string `env:"REDIS_PASSWORD"`
		DB       int    `env:"REDIS_DB"`
	}
}

// LoadConfig загружает конфигурацию из переменных окружения.
// В режиме разработки пытается загрузить .env файл.
func LoadConfig() (*Config, error) {
	if _, err := os.Stat(".env"); !os.IsNotExist(err) {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("ошибка загрузки .env файла: %w", err)
		}
	}

	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("ошибка парсинга конфигурации из окружения: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults вручную выставляет значения по умолчанию
func (cfg *Config) applyDefaults() {
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.HTTPClientTimeout <= 0 {
		cfg.HTTPClientTimeout = 10 * time.Second
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	if cfg.MainLoopQueue <= 0 {
		cfg.MainLoopQueue = 256
	}
	if cfg.PreferencesBackend == "" {
		cfg.PreferencesBackend = PreferencesPostgres
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
}

func (cfg *Config) validate() error {
	switch cfg.PreferencesBackend {
	case PreferencesRedis, PreferencesPostgres:
	default:
		return fmt.Errorf("неизвестный PREFERENCES_BACKEND: %q (используйте 'redis' или 'postgres')", cfg.PreferencesBackend)
	}

	if cfg.MinioEnabled {
		if cfg.MinioAccessKeyID == "" || cfg.MinioSecretAccessKey == "" || cfg.MinioBucketName == "" || cfg.MinioEndpoint == "" || cfg.MinioRegion == "" {
			return fmt.Errorf("MinIO credentials (MINIO_ACCESS_KEY_ID, MINIO_SECRET_ACCESS_KEY, MINIO_BUCKET_NAME, MINIO_ENDPOINT, MINIO_REGION) must be set when MINIO_ENABLED=true")
		}
	}
	return nil
}
