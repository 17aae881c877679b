package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DB_DSN", "postgres://rh:rh@localhost:5432/rhsenso")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("JWT_SECRET", strings.Repeat("s", 32))
}

func TestLoadAppliesDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected port 8080, got %d", cfg.Port)
	}
	if cfg.JWTAccessTTL != 15*time.Minute {
		t.Fatalf("unexpected access ttl %s", cfg.JWTAccessTTL)
	}
	if cfg.Permission.SecuritySystem != "SEG" || cfg.Permission.UsersFunction != "SEG_USUARIOS" {
		t.Fatalf("unexpected permission defaults %+v", cfg.Permission)
	}
	if cfg.LoginGuard.MaxAttempts != 5 {
		t.Fatalf("expected 5 attempts, got %d", cfg.LoginGuard.MaxAttempts)
	}
	if len(cfg.WebAuthn.RPOrigin) != 1 {
		t.Fatalf("expected default rp origin, got %v", cfg.WebAuthn.RPOrigin)
	}
}

func TestLoadRejectsShortSecret(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_SECRET", "curto")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestLoadRequiresDSN(t *testing.T) {
	setRequired(t)
	t.Setenv("DB_DSN", "  ")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for empty DB_DSN")
	}
}

func TestLoadRejectsRefreshShorterThanAccess(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_ACCESS_TTL", "2h")
	t.Setenv("JWT_REFRESH_TTL", "1h")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for refresh ttl <= access ttl")
	}
}

func TestLoadCleansOrigins(t *testing.T) {
	setRequired(t)
	t.Setenv("ALLOW_ORIGINS", " https://rh.example.com , ,http://localhost:5173")
	t.Setenv("PERMISSION_SECURITY_SYSTEM", " seg ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.AllowOrigins) != 2 || cfg.AllowOrigins[0] != "https://rh.example.com" {
		t.Fatalf("unexpected origins %v", cfg.AllowOrigins)
	}
	if cfg.Permission.SecuritySystem != "SEG" {
		t.Fatalf("expected normalized system, got %q", cfg.Permission.SecuritySystem)
	}
}
