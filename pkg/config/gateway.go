package config

import (
	"flag"
	"fmt"
)

// Gateway defaults. Overridable via flags or GATEWAY_* environment variables.
const (
	DefaultGatewayHost     = "0.0.0.0"
	DefaultGatewayPort     = 8000
	DefaultInferenceURL    = "http://localhost:8001"
	DefaultRateLimitMinute = 60
	DefaultRateLimitHour   = 1000
	DefaultRedisURL        = "redis://localhost:6379/0"
)

// GatewayConfig holds the configuration for the edge gateway service.
type GatewayConfig struct {
	// Host and Port to bind the HTTP server to.
	Host string
	Port int

	// InferenceURL is the base URL of the internal inference service.
	InferenceURL string

	// RateLimitMinute and RateLimitHour are the default per-user limits
	// assigned to the seeded development API key.
	RateLimitMinute int
	RateLimitHour   int

	// RedisURL is the connection URL for distributed rate limiting.
	RedisURL string

	// BypassRateLimits disables rate limiting entirely. Every request is
	// admitted and usage is reported as zero.
	BypassRateLimits bool
}

// LoadGatewayConfig parses gateway configuration from the given command-line
// arguments, falling back to environment variables and then to defaults.
//
// BYPASS_RATE_LIMITS=true has the same effect as --bypass-rate-limits, so
// operators can flip the switch without changing the process invocation.
func LoadGatewayConfig(args []string) (*GatewayConfig, error) {
	cfg := &GatewayConfig{}

	fs := flag.NewFlagSet("gateway", flag.ContinueOnError)
	fs.StringVar(&cfg.Host, "host",
		GetEnvString("GATEWAY_HOST", DefaultGatewayHost),
		"host to bind the server to")
	fs.IntVar(&cfg.Port, "port",
		GetEnvInt("GATEWAY_PORT", DefaultGatewayPort),
		"port to bind the server to")
	fs.StringVar(&cfg.InferenceURL, "inference-url",
		GetEnvString("INFERENCE_URL", DefaultInferenceURL),
		"URL of the inference service")
	fs.IntVar(&cfg.RateLimitMinute, "rate-limit-minute",
		GetEnvInt("RATE_LIMIT_MINUTE", DefaultRateLimitMinute),
		"default requests per minute rate limit")
	fs.IntVar(&cfg.RateLimitHour, "rate-limit-hour",
		GetEnvInt("RATE_LIMIT_HOUR", DefaultRateLimitHour),
		"default requests per hour rate limit")
	fs.StringVar(&cfg.RedisURL, "redis-url",
		GetEnvString("REDIS_URL", DefaultRedisURL),
		"Redis connection URL for distributed rate limiting")
	fs.BoolVar(&cfg.BypassRateLimits, "bypass-rate-limits",
		GetEnvBool("BYPASS_RATE_LIMITS", false),
		"disable rate limiting entirely")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *GatewayConfig) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.InferenceURL == "" {
		return fmt.Errorf("inference URL must not be empty")
	}
	if c.RateLimitMinute <= 0 {
		return fmt.Errorf("rate limit per minute must be positive, got %d", c.RateLimitMinute)
	}
	if c.RateLimitHour <= 0 {
		return fmt.Errorf("rate limit per hour must be positive, got %d", c.RateLimitHour)
	}
	return nil
}

// Addr returns the host:port listen address for the gateway server.
func (c *GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
