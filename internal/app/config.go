package app

import (
	"time"

	"github.com/yungbote/inkwell-backend/internal/platform/envutil"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

type Config struct {
	Port            string
	JWTSecretKey    string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	AppBaseURL  string
	InviteTTL   time.Duration
	AdminEmails []string
	CORSOrigins []string

	ToolRatePerSecond float64
	ToolRateBurst     int

	RedisChannel   string
	OTelEnabled    bool
	ServiceVersion string
	Environment    string
}

const defaultJWTSecret = "defaultsecret"

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:              envutil.String("PORT", "8080"),
		JWTSecretKey:      envutil.String("JWT_SECRET_KEY", defaultJWTSecret),
		AccessTokenTTL:    envutil.Duration("ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL:   envutil.Duration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		AppBaseURL:        envutil.String("APP_BASE_URL", "http://localhost:3000"),
		InviteTTL:         envutil.Duration("INVITE_TTL", 7*24*time.Hour),
		AdminEmails:       envutil.List("ADMIN_EMAILS"),
		CORSOrigins:       envutil.List("CORS_ALLOWED_ORIGINS"),
		ToolRatePerSecond: envutil.Float("TOOL_RATE_PER_SECOND", 1),
		ToolRateBurst:     envutil.Int("TOOL_RATE_BURST", 5),
		RedisChannel:      envutil.String("SSE_REDIS_CHANNEL", "inkwell:sse"),
		OTelEnabled:       envutil.Bool("OTEL_ENABLED", false),
		ServiceVersion:    envutil.String("SERVICE_VERSION", "dev"),
		Environment:       envutil.String("ENVIRONMENT", "development"),
	}
	if cfg.JWTSecretKey == defaultJWTSecret {
		log.Warn("JWT_SECRET_KEY not set, using the development default")
	}
	return cfg
}
