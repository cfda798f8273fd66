package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	LogLevel  string
	LogFormat string

	OTLPEndpoint      string
	OTLPProtocol      string
	OTELEnabled       bool
	OTELSamplingRatio float64

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	WriteRateLimit WriteRateLimitConfig

	// BusinessTZOffsetHours is the fixed offset, in hours east of UTC, used
	// to decide which calendar day a document belongs to.
	BusinessTZOffsetHours int
}

type WriteRateLimitConfig struct {
	Enabled   bool
	PerSecond float64
	Burst     int
	// DocumentLockTTL bounds how long one write may hold a document's
	// in-flight marker in Redis.
	DocumentLockTTL time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("APP_SERVICE", "officeflow")
	v.SetDefault("APP_VERSION", "0.1.0")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SAMPLING_RATIO", 0.1)
	v.SetDefault("DATABASE_TYPE", "postgres")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", "5432")
	v.SetDefault("DATABASE_NAME", "officeflow")
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_IDLE_CONN", 10)
	v.SetDefault("DATABASE_MAX_OPEN_CONN", 50)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", 300)
	v.SetDefault("DATABASE_CONN_MAX_IDLE_TIME", 60)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("WRITE_RATE_LIMIT_ENABLED", true)
	v.SetDefault("WRITE_RATE_LIMIT_PER_SECOND", 5.0)
	v.SetDefault("WRITE_RATE_LIMIT_BURST", 20)
	v.SetDefault("WRITE_RATE_LIMIT_DOCUMENT_LOCK_TTL_SECONDS", 10)
	v.SetDefault("BUSINESS_TZ_OFFSET_HOURS", 8)

	redisAddr := strings.TrimSpace(v.GetString("REDIS_ADDR"))

	return Config{
		AppName:           v.GetString("APP_SERVICE"),
		AppVersion:        v.GetString("APP_VERSION"),
		Environment:       strings.ToLower(strings.TrimSpace(v.GetString("ENVIRONMENT"))),
		HTTPAddr:          strings.TrimSpace(v.GetString("HTTP_ADDR")),
		LogLevel:          strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
		LogFormat:         strings.ToLower(strings.TrimSpace(v.GetString("LOG_FORMAT"))),
		OTLPEndpoint:      otlpEndpoint(v),
		OTLPProtocol:      strings.ToLower(strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_PROTOCOL"))),
		OTELEnabled:       v.GetBool("OTEL_ENABLED"),
		OTELSamplingRatio: v.GetFloat64("OTEL_SAMPLING_RATIO"),
		DBType:            strings.ToLower(strings.TrimSpace(v.GetString("DATABASE_TYPE"))),
		DBHost:            v.GetString("DATABASE_HOST"),
		DBPort:            v.GetString("DATABASE_PORT"),
		DBName:            v.GetString("DATABASE_NAME"),
		DBUser:            v.GetString("DATABASE_USER"),
		DBPassword:        v.GetString("DATABASE_PASSWORD"),
		DBSSLMode:         v.GetString("DATABASE_SSLMODE"),
		DBMaxIdleConn:     v.GetInt("DATABASE_MAX_IDLE_CONN"),
		DBMaxOpenConn:     v.GetInt("DATABASE_MAX_OPEN_CONN"),
		DBConnMaxLifetime: v.GetInt("DATABASE_CONN_MAX_LIFETIME"),
		DBConnMaxIdleTime: v.GetInt("DATABASE_CONN_MAX_IDLE_TIME"),
		RedisAddr:         redisAddr,
		RedisPassword:     strings.TrimSpace(v.GetString("REDIS_PASSWORD")),
		RedisDB:           v.GetInt("REDIS_DB"),
		WriteRateLimit: WriteRateLimitConfig{
			Enabled:         v.GetBool("WRITE_RATE_LIMIT_ENABLED") && redisAddr != "",
			PerSecond:       v.GetFloat64("WRITE_RATE_LIMIT_PER_SECOND"),
			Burst:           v.GetInt("WRITE_RATE_LIMIT_BURST"),
			DocumentLockTTL: time.Duration(v.GetInt("WRITE_RATE_LIMIT_DOCUMENT_LOCK_TTL_SECONDS")) * time.Second,
		},
		BusinessTZOffsetHours: v.GetInt("BUSINESS_TZ_OFFSET_HOURS"),
	}
}

// otlpEndpoint prefers the standard OTEL variable over the short form.
func otlpEndpoint(v *viper.Viper) string {
	if endpoint := strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT")); endpoint != "" {
		return endpoint
	}
	return strings.TrimSpace(v.GetString("OTLP_ENDPOINT"))
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// BusinessLocation returns the fixed business time zone. It never consults
// the server's local zone database.
func (c Config) BusinessLocation() *time.Location {
	return time.FixedZone("business", c.BusinessTZOffsetHours*60*60)
}
