package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port                  string        `mapstructure:"PORT"`
	Env                   string        `mapstructure:"ENV"`
	DatabaseURL           string        `mapstructure:"DATABASE_URL"`
	DBMaxConns            int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns            int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir         string        `mapstructure:"MIGRATIONS_DIR"`
	AuthSigningKey        string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthJWKSURL           string        `mapstructure:"AUTH_JWKS_URL"`
	AuthIssuer            string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience          string        `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins           []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS          float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst        int           `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit             string        `mapstructure:"BODY_LIMIT"`
	CDSBaseURL            string        `mapstructure:"CDS_BASE_URL"`
	CDSTimeout            time.Duration `mapstructure:"CDS_TIMEOUT"`
	CDSDropStaleResponses bool          `mapstructure:"CDS_DROP_STALE_RESPONSES"`
	DebounceWindow        time.Duration `mapstructure:"DEBOUNCE_WINDOW"`
	SessionIdleTTL        time.Duration `mapstructure:"SESSION_IDLE_TTL"`
	LogLevel              string        `mapstructure:"LOG_LEVEL"`
	LogFile               string        `mapstructure:"LOG_FILE"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR",
	"AUTH_SIGNING_KEY", "AUTH_JWKS_URL", "AUTH_ISSUER", "AUTH_AUDIENCE", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BODY_LIMIT",
	"CDS_BASE_URL", "CDS_TIMEOUT", "CDS_DROP_STALE_RESPONSES",
	"DEBOUNCE_WINDOW", "SESSION_IDLE_TTL", "LOG_LEVEL", "LOG_FILE",
}

// Load reads the environment, after preloading the given dotenv files
// (".env" when none are named). Variables already set win over the files.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// A missing file is not an error.
		_ = godotenv.Load(f)
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("CDS_TIMEOUT", "12s")
	v.SetDefault("CDS_DROP_STALE_RESPONSES", true)
	v.SetDefault("DEBOUNCE_WINDOW", "1s")
	v.SetDefault("SESSION_IDLE_TTL", "2h")
	v.SetDefault("LOG_LEVEL", "info")

	for _, k := range keys {
		v.BindEnv(k)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if origins := v.GetString("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = nil
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// HasDatabase reports whether audit records go to Postgres. Without it the
// service keeps them in memory.
func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

// Validate refuses to start a non-development server without token
// verification, and rejects out-of-range timings.
func (c *Config) Validate() error {
	if !c.IsDev() {
		if c.AuthSigningKey == "" && c.AuthJWKSURL == "" {
			return fmt.Errorf("AUTH_SIGNING_KEY or AUTH_JWKS_URL is required when ENV=%q", c.Env)
		}
		if c.AuthIssuer == "" {
			return fmt.Errorf("AUTH_ISSUER is required when ENV=%q", c.Env)
		}
	}
	if c.CDSTimeout < time.Second || c.CDSTimeout > time.Minute {
		return fmt.Errorf("CDS_TIMEOUT must be between 1s and 60s, got %s", c.CDSTimeout)
	}
	if c.DebounceWindow < 0 {
		return fmt.Errorf("DEBOUNCE_WINDOW must not be negative, got %s", c.DebounceWindow)
	}
	if c.SessionIdleTTL <= 0 {
		return fmt.Errorf("SESSION_IDLE_TTL must be positive, got %s", c.SessionIdleTTL)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
