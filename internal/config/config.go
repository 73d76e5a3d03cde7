package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all environment-sourced settings. It is loaded once at
// process start and treated as read-only afterwards.
type Config struct {
	Env      string `env:"ENV" envDefault:"prod"`
	Port     int    `env:"PORT" envDefault:"8000"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DBHost     string `env:"DB_HOST,required,notEmpty"`
	DBPort     int    `env:"DB_PORT,required"`
	DBName     string `env:"DB_NAME,required,notEmpty"`
	DBUser     string `env:"DB_USER,required,notEmpty"`
	DBPassword string `env:"DB_PASSWORD,required,notEmpty"`
	DBSSLMode  string `env:"DB_SSLMODE"`
	DBSSLRoot  string `env:"DB_SSLROOTCERT"`

	OpenAIAPIKey    string `env:"OPENAI_API_KEY,required,notEmpty"`
	OpenAIModelName string `env:"OPENAI_MODEL_NAME" envDefault:"gpt-4o-mini"`

	AuthJWKSURL           string   `env:"AUTH_JWKS_URL"`
	AuthJWTSecret         string   `env:"AUTH_JWT_SECRET"`
	AuthIssuer            string   `env:"AUTH_ISSUER"`
	AuthAudience          string   `env:"AUTH_AUDIENCE"`
	AuthAuthorizedParties []string `env:"AUTH_AUTHORIZED_PARTIES" envSeparator:","`

	ToolRegistryURL string `env:"TOOL_REGISTRY_URL"`

	// Derived connection parameters, computed once by Load.
	databaseURL   string
	checkpointURL string
	connArgs      map[string]string
}

// Load reads .env (without overriding real environment values), parses the
// environment into a Config, and precomputes the derived connection
// parameters. Missing required values fail here, before the process serves
// anything.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.AuthJWKSURL == "" && cfg.AuthJWTSecret == "" {
		return nil, fmt.Errorf("one of AUTH_JWKS_URL or AUTH_JWT_SECRET is required")
	}

	cfg.connArgs = buildConnArgs(&cfg)
	cfg.databaseURL = buildURL(&cfg, "postgres", nil)
	cfg.checkpointURL = buildURL(&cfg, "postgresql", cfg.connArgs)
	return &cfg, nil
}

// Debug reports whether the process runs in development mode.
func (c *Config) Debug() bool { return c.Env == "dev" }

// DatabaseURL returns the DSN used by the user store's connection pool.
func (c *Config) DatabaseURL() string { return c.databaseURL }

// CheckpointURL returns the same database target with the postgresql://
// scheme and the checkpoint connection arguments applied. Scheme and
// arguments differ from DatabaseURL; credentials and target do not.
func (c *Config) CheckpointURL() string { return c.checkpointURL }

// CheckpointConnArgs returns the auxiliary connection arguments applied to
// the checkpoint store: statement caching is disabled, and SSL parameters
// are injected when configured.
func (c *Config) CheckpointConnArgs() map[string]string {
	out := make(map[string]string, len(c.connArgs))
	for k, v := range c.connArgs {
		out[k] = v
	}
	return out
}

func buildConnArgs(c *Config) map[string]string {
	args := map[string]string{
		// Per-request checkpoint connections never reuse prepared statements.
		"default_query_exec_mode": "exec",
	}
	if c.DBSSLMode != "" {
		args["sslmode"] = c.DBSSLMode
	}
	if c.DBSSLRoot != "" {
		args["sslrootcert"] = c.DBSSLRoot
	}
	return args
}

func buildURL(c *Config, scheme string, args map[string]string) string {
	u := url.URL{
		Scheme: scheme,
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:   "/" + c.DBName,
	}
	if scheme == "postgres" && c.DBSSLMode != "" {
		q := u.Query()
		q.Set("sslmode", c.DBSSLMode)
		u.RawQuery = q.Encode()
	}
	if args != nil {
		keys := make([]string, 0, len(args))
		for k := range args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var parts []string
		for _, k := range keys {
			parts = append(parts, k+"="+url.QueryEscape(args[k]))
		}
		u.RawQuery = strings.Join(parts, "&")
	}
	return u.String()
}
