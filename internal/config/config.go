package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port               string        `mapstructure:"PORT"`
	Env                string        `mapstructure:"ENV"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL           string        `mapstructure:"REDIS_URL"`
	AuthIssuer         string        `mapstructure:"AUTH_ISSUER"`
	JWTSecret          string        `mapstructure:"JWT_SECRET"`
	EmailAPIURL        string        `mapstructure:"EMAIL_API_URL"`
	EmailAPIKey        string        `mapstructure:"EMAIL_API_KEY"`
	EmailFrom          string        `mapstructure:"EMAIL_FROM"`
	EmailTo            string        `mapstructure:"EMAIL_TO"`
	ProbeURL           string        `mapstructure:"PROBE_URL"`
	QueueDrainInterval time.Duration `mapstructure:"QUEUE_DRAIN_INTERVAL"`
	CORSOrigins        []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS       float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst     int           `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("EMAIL_API_URL", "https://api.resend.com/emails")
	v.SetDefault("PROBE_URL", "https://www.google.com")
	v.SetDefault("QUEUE_DRAIN_INTERVAL", "30s")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("REDIS_URL")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("EMAIL_API_URL")
	v.BindEnv("EMAIL_API_KEY")
	v.BindEnv("EMAIL_FROM")
	v.BindEnv("EMAIL_TO")
	v.BindEnv("PROBE_URL")
	v.BindEnv("QUEUE_DRAIN_INTERVAL")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active — all requests get admin access.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: Set ENV=production and configure JWT_SECRET for production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. In production the
// staff endpoints must be guarded by real JWT authentication and submission
// summaries must have a delivery address.
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production. " +
				"Refusing to start with unauthenticated staff endpoints")
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters, got %d", len(c.JWTSecret))
		}
		if c.EmailAPIKey == "" {
			return fmt.Errorf("EMAIL_API_KEY is required in production")
		}
		if c.EmailTo == "" {
			return fmt.Errorf("EMAIL_TO is required in production")
		}
	}
	if c.QueueDrainInterval < 0 {
		return fmt.Errorf("QUEUE_DRAIN_INTERVAL must not be negative, got %s", c.QueueDrainInterval)
	}
	return nil
}
