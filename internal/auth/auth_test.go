package auth

import (
	"strings"
	"testing"
	"time"
)

func TestJWTRoundTrip(t *testing.T) {
	mgr := NewJWTManager(strings.Repeat("k", 32), "rhsenso-erp", time.Minute)

	tok, err := mgr.GenerateAccessToken(Identity{
		CdUsuario: "MARIA",
		Nome:      "Maria Souza",
		Empresa:   "01",
		Grupos:    []string{"RHU:ADMIN"},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if tok.ID == "" || tok.ExpiresAt.IsZero() {
		t.Fatalf("expected jti and expiry, got %+v", tok)
	}

	claims, err := mgr.ParseAndValidate(tok.Token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "MARIA" || claims.Nome != "Maria Souza" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if len(claims.Grupos) != 1 || claims.Grupos[0] != "RHU:ADMIN" {
		t.Fatalf("unexpected grupos %v", claims.Grupos)
	}
}

func TestJWTRejectsOtherSecret(t *testing.T) {
	a := NewJWTManager(strings.Repeat("a", 32), "rhsenso-erp", time.Minute)
	b := NewJWTManager(strings.Repeat("b", 32), "rhsenso-erp", time.Minute)

	tok, err := a.GenerateAccessToken(Identity{CdUsuario: "JOAO"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := b.ParseAndValidate(tok.Token); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestJWTRejectsExpired(t *testing.T) {
	mgr := NewJWTManager(strings.Repeat("c", 32), "rhsenso-erp", time.Minute)
	issued := time.Now().Add(-2 * time.Hour)
	mgr.now = func() time.Time { return issued }

	tok, err := mgr.GenerateAccessToken(Identity{CdUsuario: "JOAO"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	mgr.now = time.Now
	if _, err := mgr.ParseAndValidate(tok.Token); err == nil {
		t.Fatal("expected expiration error")
	}
}

func TestJWTRequiresSubject(t *testing.T) {
	mgr := NewJWTManager(strings.Repeat("d", 32), "", time.Minute)
	if _, err := mgr.GenerateAccessToken(Identity{}); err == nil {
		t.Fatal("expected error without subject")
	}
}

func TestRefreshTokenHash(t *testing.T) {
	raw, hashed, err := GenerateRefreshToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if raw == hashed {
		t.Fatal("hash must differ from raw token")
	}
	if HashRefreshToken(raw) != hashed {
		t.Fatal("hash must be deterministic")
	}

	other, _, err := GenerateRefreshToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if other == raw {
		t.Fatal("tokens must be random")
	}
}

func TestRefreshRedisKeyNormalizesUser(t *testing.T) {
	if got := RefreshRedisKey(" maria ", "h"); got != "refresh:MARIA:h" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestVerifyLegacy(t *testing.T) {
	if !VerifyLegacy("segredo", "segredo   ") {
		t.Fatal("expected padded legacy password to match")
	}
	if VerifyLegacy("outra", "segredo") {
		t.Fatal("expected mismatch")
	}
	if VerifyLegacy("", "   ") {
		t.Fatal("blank stored password must never match")
	}
}

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("SenhaForte123!")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	ok, err := Verify("SenhaForte123!", hash)
	if err != nil || !ok {
		t.Fatalf("expected match, ok=%v err=%v", ok, err)
	}
	ok, err = Verify("errada", hash)
	if err != nil || ok {
		t.Fatalf("expected mismatch, ok=%v err=%v", ok, err)
	}
}
