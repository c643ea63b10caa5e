package clubauth

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EnvConfig is the default Config implementation, populated from environment
// variables (optionally loaded from .env files).
type EnvConfig struct {
	BackendBaseURL    string
	SignInPath        string
	NotAuthorizedPath string
	RejectedRouteKey  string
	RoleCacheTTL      time.Duration
	RoleCacheSize     int
	RetryMaxAttempts  uint64
	HTTPTimeout       time.Duration
	TokenStorageKey   string
	TokenStoragePath  string
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *EnvConfig {
	return &EnvConfig{
		BackendBaseURL:    "http://localhost:5000/api",
		SignInPath:        "/log-in",
		NotAuthorizedPath: "/not-authorized",
		RejectedRouteKey:  "clubauth_redirect",
		RoleCacheTTL:      DefaultRoleCacheTTL,
		RoleCacheSize:     DefaultRoleCacheSize,
		RetryMaxAttempts:  3,
		HTTPTimeout:       10 * time.Second,
		TokenStorageKey:   "jwt_token",
		TokenStoragePath:  "clubauth.db",
	}
}

// LoadConfig loads .env files (missing files are ignored) and overlays
// CLUBAUTH_* environment variables on the defaults.
func LoadConfig(files ...string) *EnvConfig {
	for _, file := range files {
		// Best effort: a missing .env file is not an error.
		_ = godotenv.Load(file)
	}

	cfg := DefaultConfig()

	cfg.BackendBaseURL = envString("CLUBAUTH_BACKEND_URL", cfg.BackendBaseURL)
	cfg.SignInPath = envString("CLUBAUTH_SIGNIN_PATH", cfg.SignInPath)
	cfg.NotAuthorizedPath = envString("CLUBAUTH_NOT_AUTHORIZED_PATH", cfg.NotAuthorizedPath)
	cfg.RejectedRouteKey = envString("CLUBAUTH_REJECTED_ROUTE_KEY", cfg.RejectedRouteKey)
	cfg.RoleCacheTTL = envDuration("CLUBAUTH_ROLE_CACHE_TTL", cfg.RoleCacheTTL)
	cfg.RoleCacheSize = envInt("CLUBAUTH_ROLE_CACHE_SIZE", cfg.RoleCacheSize)
	cfg.RetryMaxAttempts = envUint("CLUBAUTH_RETRY_MAX_ATTEMPTS", cfg.RetryMaxAttempts)
	cfg.HTTPTimeout = envDuration("CLUBAUTH_HTTP_TIMEOUT", cfg.HTTPTimeout)
	cfg.TokenStorageKey = envString("CLUBAUTH_TOKEN_KEY", cfg.TokenStorageKey)
	cfg.TokenStoragePath = envString("CLUBAUTH_TOKEN_DB", cfg.TokenStoragePath)

	return cfg
}

func (c *EnvConfig) GetBackendBaseURL() string { return c.BackendBaseURL }

func (c *EnvConfig) GetSignInPath() string { return c.SignInPath }

func (c *EnvConfig) GetNotAuthorizedPath() string { return c.NotAuthorizedPath }

func (c *EnvConfig) GetRejectedRouteKey() string { return c.RejectedRouteKey }

func (c *EnvConfig) GetRoleCacheTTL() time.Duration { return c.RoleCacheTTL }

func (c *EnvConfig) GetRoleCacheSize() int { return c.RoleCacheSize }

func (c *EnvConfig) GetRetryMaxAttempts() uint64 { return c.RetryMaxAttempts }

func (c *EnvConfig) GetHTTPTimeout() time.Duration { return c.HTTPTimeout }

func (c *EnvConfig) GetTokenStorageKey() string { return c.TokenStorageKey }

func (c *EnvConfig) GetTokenStoragePath() string { return c.TokenStoragePath }

var _ Config = (*EnvConfig)(nil)

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}

func envUint(key string, def uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return parsed
}
