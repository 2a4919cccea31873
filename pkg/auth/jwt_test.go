package auth_test

import (
	"testing"

	"roulette-service/internal/config"
	pkgAuth "roulette-service/pkg/auth"
)

func setConfig() {
	config.GlobalConfig = &config.Config{
		JWT: config.JWTConfig{Secret: "test-secret", Expire: 1},
	}
}

func TestGenerateAndParsePlayerToken(t *testing.T) {
	setConfig()

	token, expireAt, err := pkgAuth.GenerateToken(42)
	if err != nil {
		t.Fatalf("generate token failed: %v", err)
	}
	if expireAt.IsZero() {
		t.Fatalf("expected expiry to be set")
	}

	claims, err := pkgAuth.ParsePlayerToken(token)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if claims.SubjectID != 42 {
		t.Fatalf("expected subject 42, got %d", claims.SubjectID)
	}
}

func TestParseTokenWrongSecret(t *testing.T) {
	setConfig()
	token, _, err := pkgAuth.GenerateToken(7)
	if err != nil {
		t.Fatalf("generate token failed: %v", err)
	}

	config.GlobalConfig.JWT.Secret = "other-secret"
	if _, err := pkgAuth.ParsePlayerToken(token); err == nil {
		t.Fatalf("expected parse failure with rotated secret")
	}
}
