package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 저장소 종류
const (
	StoragePostgres = "postgres"
	StorageMongo    = "mongo"
	StorageMemory   = "memory"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Storage
	StorageBackend string
	DatabaseURL    string
	MongoURI       string
	MongoDatabase  string

	// Redis (비어 있으면 outbox/이벤트 발행 비활성)
	RedisURL string

	// Rooms
	RoomsFile string

	// Billing
	SplitInterpreterPct int64
	SplitPlatformPct    int64
	BillingMinMinutes   int64

	// Provider 자격 토큰 (비어 있으면 검증 없이 허용)
	ProviderJWTSecret string

	// Join rate limit (연결당)
	JoinRateCapacity int
	JoinRateRefill   float64

	// HTTP rate limit (IP 당)
	HTTPRateBurst int
	HTTPRateLimit float64

	// Session recorder
	RecorderInterval   time.Duration
	RecorderMaxRetries int

	// CORS
	CORSAllowedOrigins []string
}

func Load() (*Config, error) {
	// .env 파일 로드 (있는 경우)
	_ = godotenv.Load()

	var errs []string
	intEnv := func(key string, def int64) int64 {
		v, err := strconv.ParseInt(getEnv(key, strconv.FormatInt(def, 10)), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
			return def
		}
		return v
	}
	floatEnv := func(key string, def float64) float64 {
		v, err := strconv.ParseFloat(getEnv(key, strconv.FormatFloat(def, 'f', -1, 64)), 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
			return def
		}
		return v
	}
	durationEnv := func(key string, def time.Duration) time.Duration {
		v, err := time.ParseDuration(getEnv(key, def.String()))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
			return def
		}
		return v
	}

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		Env:                 getEnv("ENV", "development"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		MongoURI:            getEnv("MONGO_URI", ""),
		MongoDatabase:       getEnv("MONGO_DATABASE", "vrs"),
		RedisURL:            getEnv("REDIS_URL", ""),
		RoomsFile:           getEnv("ROOMS_FILE", "config/rooms.yaml"),
		SplitInterpreterPct: intEnv("SPLIT_INTERPRETER_PCT", 45),
		SplitPlatformPct:    intEnv("SPLIT_PLATFORM_PCT", 45),
		BillingMinMinutes:   intEnv("BILLING_MIN_MINUTES", 0),
		ProviderJWTSecret:   getEnv("PROVIDER_JWT_SECRET", ""),
		JoinRateCapacity:    int(intEnv("JOIN_RATE_CAPACITY", 5)),
		JoinRateRefill:      floatEnv("JOIN_RATE_REFILL", 0.5),
		HTTPRateBurst:       int(intEnv("HTTP_RATE_BURST", 100)),
		HTTPRateLimit:       floatEnv("HTTP_RATE_LIMIT", 10),
		RecorderInterval:    durationEnv("RECORDER_INTERVAL", 5*time.Second),
		RecorderMaxRetries:  int(intEnv("RECORDER_MAX_RETRIES", 5)),
		CORSAllowedOrigins:  splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
	}
	cfg.StorageBackend = getEnv("STORAGE_BACKEND", cfg.defaultStorage())

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaultStorage 설정된 URL 로 저장소 결정
func (c *Config) defaultStorage() string {
	switch {
	case c.DatabaseURL != "":
		return StoragePostgres
	case c.MongoURI != "":
		return StorageMongo
	default:
		return StorageMemory
	}
}

// Validate 설정값 검증
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for postgres storage")
		}
	case StorageMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required for mongo storage")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}

	if c.SplitInterpreterPct < 0 || c.SplitPlatformPct < 0 || c.SplitInterpreterPct+c.SplitPlatformPct > 100 {
		return fmt.Errorf("split percentages must be non-negative and sum to at most 100")
	}
	if c.BillingMinMinutes < 0 {
		return fmt.Errorf("BILLING_MIN_MINUTES must be non-negative")
	}
	if c.JoinRateCapacity <= 0 || c.JoinRateRefill <= 0 {
		return fmt.Errorf("join rate limit must be positive")
	}
	if c.HTTPRateBurst <= 0 || c.HTTPRateLimit <= 0 {
		return fmt.Errorf("HTTP rate limit must be positive")
	}
	if c.RecorderInterval <= 0 || c.RecorderMaxRetries <= 0 {
		return fmt.Errorf("recorder interval and retries must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
