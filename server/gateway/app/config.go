package app

import (
	"time"

	cmnenv "s4/server/common/env"
	"s4/server/common/infra/object"
	commonlog "s4/server/common/log"
	"s4/server/files/repository"
)

type Config struct {
	Log commonlog.Config

	Port          string
	JWTSecret     string
	JWTTTLMinutes int

	CapabilityTTL      time.Duration
	PageTokenTTL       time.Duration
	RateLimitPerMinute int
	CORSAllowedOrigins []string

	Storage  object.Config
	Metadata repository.BackendConfig
}

// LoadConfig reads the gateway configuration from the environment once at startup.
func LoadConfig() Config {
	region := cmnenv.String("AWS_REGION", "ap-southeast-2")
	return Config{
		Log:                commonlog.ConfigFromEnv("gateway"),
		Port:               cmnenv.String("GATEWAY_PORT", "8080"),
		JWTSecret:          cmnenv.String("JWT_SECRET", "change-me-in-production"),
		JWTTTLMinutes:      cmnenv.Int("JWT_TTL_MINUTES", 1440),
		CapabilityTTL:      cmnenv.Duration("CAPABILITY_TTL", 5*time.Minute),
		PageTokenTTL:       cmnenv.Duration("PAGE_TOKEN_TTL", 15*time.Minute),
		RateLimitPerMinute: cmnenv.Int("RATE_LIMIT_PER_MINUTE", 120),
		CORSAllowedOrigins: cmnenv.CSV("CORS_ALLOWED_ORIGINS", []string{"*"}),
		Storage:            object.ConfigFromEnv(region),
		Metadata:           repository.BackendConfigFromEnv(region),
	}
}
