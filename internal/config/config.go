package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config centraliza a configuração carregada do ambiente.
type Config struct {
	Port          int           `env:"PORT" envDefault:"8080"`
	Env           string        `env:"APP_ENV" envDefault:"development"`
	DBDSN         string        `env:"DB_DSN"`
	RedisURL      string        `env:"REDIS_URL"`
	AutoMigrate   bool          `env:"DB_AUTOMIGRATE" envDefault:"true"`
	JWTSecret     string        `env:"JWT_SECRET"`
	JWTIssuer     string        `env:"JWT_ISSUER" envDefault:"rhsenso-erp"`
	JWTAccessTTL  time.Duration `env:"JWT_ACCESS_TTL" envDefault:"15m"`
	JWTRefreshTTL time.Duration `env:"JWT_REFRESH_TTL" envDefault:"168h"`
	AllowOrigins  []string      `env:"ALLOW_ORIGINS" envSeparator:","`

	RateLimitPublic RateLimitConfig `envPrefix:"RATE_LIMIT_PUBLIC_"`
	RateLimitAuth   RateLimitConfig `envPrefix:"RATE_LIMIT_AUTH_"`

	Permission PermissionConfig `envPrefix:"PERMISSION_"`
	LoginGuard LoginGuardConfig `envPrefix:"LOGIN_GUARD_"`
	Janitor    JanitorConfig    `envPrefix:"REFRESH_JANITOR_"`
	WebAuthn   WebAuthnConfig   `envPrefix:"WEBAUTHN_"`
	Telemetry  TelemetryConfig  `envPrefix:"OTEL_"`
}

// RateLimitConfig representa limites simples para throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64 `env:"RPS" envDefault:"10"`
	Burst             int     `env:"BURST" envDefault:"20"`
}

// PermissionConfig define o sistema/função que protege a área de segurança
// e o tempo de cache das habilitações.
type PermissionConfig struct {
	CacheTTL       time.Duration `env:"CACHE_TTL" envDefault:"5m"`
	SecuritySystem string        `env:"SECURITY_SYSTEM" envDefault:"SEG"`
	UsersFunction  string        `env:"USERS_FUNCTION" envDefault:"SEG_USUARIOS"`
	CatalogFunc    string        `env:"CATALOG_FUNCTION" envDefault:"SEG_SISTEMAS"`
}

// LoginGuardConfig controla o bloqueio temporário após falhas de login.
type LoginGuardConfig struct {
	MaxAttempts     int           `env:"MAX_ATTEMPTS" envDefault:"5"`
	Window          time.Duration `env:"WINDOW" envDefault:"15m"`
	SlackWebhookURL string        `env:"SLACK_WEBHOOK_URL"`
}

// JanitorConfig controla a limpeza periódica de refresh tokens.
type JanitorConfig struct {
	Enabled   bool          `env:"ENABLED" envDefault:"true"`
	Interval  time.Duration `env:"INTERVAL" envDefault:"1h"`
	Retention time.Duration `env:"RETENTION" envDefault:"720h"`
}

// WebAuthnConfig descreve o relying party das passkeys.
type WebAuthnConfig struct {
	RPID     string   `env:"RP_ID" envDefault:"localhost"`
	RPName   string   `env:"RP_NAME" envDefault:"RhSenso ERP"`
	RPOrigin []string `env:"RP_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`
}

// TelemetryConfig habilita exportação de traces OTLP quando Endpoint é informado.
type TelemetryConfig struct {
	Endpoint    string `env:"EXPORTER_ENDPOINT"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"rhsenso-api"`
}

// IsDevelopment indica ambiente local (cookies sem Secure, log em console).
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development") || strings.EqualFold(c.Env, "dev")
}

// Load carrega variáveis de ambiente e aplica defaults seguros.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate verifica campos obrigatórios e normaliza listas.
func (c *Config) Validate() error {
	if c.Port <= 0 {
		return errors.New("PORT inválida")
	}

	c.DBDSN = strings.TrimSpace(c.DBDSN)
	if c.DBDSN == "" {
		return errors.New("DB_DSN obrigatório")
	}

	c.RedisURL = strings.TrimSpace(c.RedisURL)
	if c.RedisURL == "" {
		return errors.New("REDIS_URL obrigatório")
	}

	c.JWTSecret = strings.TrimSpace(c.JWTSecret)
	if len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET deve ter pelo menos 32 caracteres")
	}

	if c.JWTAccessTTL <= 0 {
		return errors.New("JWT_ACCESS_TTL inválido")
	}
	if c.JWTRefreshTTL <= c.JWTAccessTTL {
		return errors.New("JWT_REFRESH_TTL deve ser maior que JWT_ACCESS_TTL")
	}

	if c.LoginGuard.MaxAttempts <= 0 {
		c.LoginGuard.MaxAttempts = 5
	}
	if c.LoginGuard.Window <= 0 {
		c.LoginGuard.Window = 15 * time.Minute
	}
	if c.Permission.CacheTTL < 0 {
		c.Permission.CacheTTL = 0
	}

	c.AllowOrigins = cleanList(c.AllowOrigins)
	c.WebAuthn.RPOrigin = cleanList(c.WebAuthn.RPOrigin)
	c.Permission.SecuritySystem = strings.ToUpper(strings.TrimSpace(c.Permission.SecuritySystem))
	c.Permission.UsersFunction = strings.ToUpper(strings.TrimSpace(c.Permission.UsersFunction))
	c.Permission.CatalogFunc = strings.ToUpper(strings.TrimSpace(c.Permission.CatalogFunc))

	return nil
}

func cleanList(values []string) []string {
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
