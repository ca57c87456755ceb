package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppMode  string
	HTTPAddr string

	DBHost        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBPort        string
	RedisAddr     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	JWTSecret     string

	// Queue configuration
	QueueDriver         string // redis | asynq | nats
	QueueTopic          string
	QueueGroup          string
	QueuePartitions     int
	QueueRedeliverAfter time.Duration
	NATSURL             string

	// Worker configuration
	WorkerConcurrency int
	WorkerClaimTTL    time.Duration

	// Grading service configuration
	GradingAPIURL      string
	GradingAPIKey      string
	GradingModel       string
	GradingAudioFormat string
	GradingTimeout     time.Duration
	GradingTemperature float64
	GradingMaxTokens   int

	// Object storage configuration
	StorageDriver     string // minio | oss
	StorageEndpoint   string
	StorageAccessKey  string
	StorageSecretKey  string
	StorageBucket     string
	StorageRegion     string
	StorageUseSSL     bool
	StoragePresignTTL time.Duration
	MediaFetchTimeout time.Duration
	MediaMaxBytes     int64

	// Log configuration
	LogLevel      string
	LogFilename   string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int
	LogCompress   bool
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

func (c *Config) RedisFullAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisAddr, c.RedisPort)
}

// Validate reports settings that would make the selected mode unusable.
func (c *Config) Validate() error {
	switch c.AppMode {
	case "api", "worker", "all":
	default:
		return fmt.Errorf("invalid APP_MODE %q", c.AppMode)
	}
	switch c.QueueDriver {
	case "redis", "asynq", "nats":
	default:
		return fmt.Errorf("invalid QUEUE_DRIVER %q", c.QueueDriver)
	}
	switch c.StorageDriver {
	case "minio", "oss":
	default:
		return fmt.Errorf("invalid STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.QueuePartitions <= 0 {
		return fmt.Errorf("QUEUE_PARTITIONS must be greater than zero (got %d)", c.QueuePartitions)
	}
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be greater than zero (got %d)", c.WorkerConcurrency)
	}
	if c.WorkerClaimTTL <= c.GradingTimeout+c.MediaFetchTimeout {
		return fmt.Errorf("WORKER_CLAIM_TTL (%s) must exceed GRADING_TIMEOUT + MEDIA_FETCH_TIMEOUT (%s)",
			c.WorkerClaimTTL, c.GradingTimeout+c.MediaFetchTimeout)
	}
	// A redelivery must find the previous claim expired, or the task waits
	// for yet another redelivery round.
	if c.QueueRedeliverAfter <= c.WorkerClaimTTL {
		return fmt.Errorf("QUEUE_REDELIVER_AFTER (%s) must exceed WORKER_CLAIM_TTL (%s)",
			c.QueueRedeliverAfter, c.WorkerClaimTTL)
	}
	if c.AppMode != "api" && c.GradingAPIKey == "" {
		return fmt.Errorf("GRADING_API_KEY is required for worker mode")
	}
	return nil
}

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		// Ignore error if .env file is not found
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	workers := getEnvAsInt("WORKER_CONCURRENCY", 5)

	return &Config{
		AppMode:  getEnv("APP_MODE", "all"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DBHost:        os.Getenv("DB_HOST"),
		DBUser:        os.Getenv("DB_USER"),
		DBPassword:    os.Getenv("DB_PASSWORD"),
		DBName:        os.Getenv("DB_NAME"),
		DBPort:        os.Getenv("DB_PORT"),
		RedisAddr:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		JWTSecret:     os.Getenv("JWT_SECRET"),

		QueueDriver:         getEnv("QUEUE_DRIVER", "redis"),
		QueueTopic:          getEnv("QUEUE_TOPIC", "grading-tasks"),
		QueueGroup:          getEnv("QUEUE_GROUP", "grading-workers"),
		QueuePartitions:     getEnvAsInt("QUEUE_PARTITIONS", workers),
		QueueRedeliverAfter: getEnvAsDuration("QUEUE_REDELIVER_AFTER", 10*time.Minute),
		NATSURL:             getEnv("NATS_URL", "nats://127.0.0.1:4222"),

		WorkerConcurrency: workers,
		WorkerClaimTTL:    getEnvAsDuration("WORKER_CLAIM_TTL", 5*time.Minute),

		GradingAPIURL:      getEnv("GRADING_API_URL", "https://api.openai.com/v1/chat/completions"),
		GradingAPIKey:      os.Getenv("GRADING_API_KEY"),
		GradingModel:       getEnv("GRADING_MODEL", "gpt-4o-audio-preview"),
		GradingAudioFormat: getEnv("GRADING_AUDIO_FORMAT", "mp3"),
		GradingTimeout:     getEnvAsDuration("GRADING_TIMEOUT", 60*time.Second),
		GradingTemperature: getEnvAsFloat("GRADING_TEMPERATURE", 0.2),
		GradingMaxTokens:   getEnvAsInt("GRADING_MAX_TOKENS", 1024),

		StorageDriver:     getEnv("STORAGE_DRIVER", "minio"),
		StorageEndpoint:   getEnv("STORAGE_ENDPOINT", "localhost:9000"),
		StorageAccessKey:  os.Getenv("STORAGE_ACCESS_KEY"),
		StorageSecretKey:  os.Getenv("STORAGE_SECRET_KEY"),
		StorageBucket:     getEnv("STORAGE_BUCKET", "inpeak-media"),
		StorageRegion:     getEnv("STORAGE_REGION", "us-east-1"),
		StorageUseSSL:     getEnvAsBool("STORAGE_USE_SSL", false),
		StoragePresignTTL: getEnvAsDuration("STORAGE_PRESIGN_TTL", 10*time.Minute),
		MediaFetchTimeout: getEnvAsDuration("MEDIA_FETCH_TIMEOUT", 30*time.Second),
		MediaMaxBytes:     int64(getEnvAsInt("MEDIA_MAX_BYTES", 25<<20)),

		LogLevel:      getEnv("LOG_LEVEL", "INFO"),
		LogFilename:   getEnv("LOG_FILENAME", "logs/app.log"),
		LogMaxSize:    getEnvAsInt("LOG_MAX_SIZE", 100),
		LogMaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 3),
		LogMaxAge:     getEnvAsInt("LOG_MAX_AGE", 28),
		LogCompress:   getEnvAsBool("LOG_COMPRESS", true),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}
