package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr             string
	DatabaseURL          string
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	JWTSecret string

	RateLimitRPS   float64
	RateLimitBurst int

	ToggleTimeout      time.Duration
	WorkerPollInterval time.Duration

	LogSQL bool
}

// Load reads the environment, after a best-effort .env load.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		DatabaseURL:          getenv("DATABASE_URL", ""),
		CORSAllowCredentials: getenv("CORS_ALLOW_CREDENTIALS", "false") == "true",
		JWTSecret:            getenv("JWT_SECRET", ""),
		LogSQL:               getenv("LOG_SQL", "false") == "true",
	}

	origins := strings.Split(getenv("CORS_ALLOWED_ORIGINS", ""), ",")
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	var err error
	if cfg.RateLimitRPS, err = strconv.ParseFloat(getenv("RATE_LIMIT_RPS", "5"), 64); err != nil {
		return cfg, errors.New("invalid RATE_LIMIT_RPS")
	}
	if cfg.RateLimitBurst, err = strconv.Atoi(getenv("RATE_LIMIT_BURST", "30")); err != nil {
		return cfg, errors.New("invalid RATE_LIMIT_BURST")
	}
	if cfg.ToggleTimeout, err = time.ParseDuration(getenv("TOGGLE_TIMEOUT", "10s")); err != nil {
		return cfg, errors.New("invalid TOGGLE_TIMEOUT")
	}
	if cfg.WorkerPollInterval, err = time.ParseDuration(getenv("WORKER_POLL_INTERVAL", "800ms")); err != nil {
		return cfg, errors.New("invalid WORKER_POLL_INTERVAL")
	}

	if cfg.DatabaseURL == "" {
		return cfg, errors.New("missing env: DATABASE_URL")
	}
	return cfg, nil
}

// RequireJWT is checked by commands that serve HTTP.
func (c Config) RequireJWT() error {
	if c.JWTSecret == "" {
		return errors.New("missing env: JWT_SECRET")
	}
	return nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}
