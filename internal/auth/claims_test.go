package auth

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-at-least-32-chars!"

func testCodec(t *testing.T, opts ...CodecOption) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec(TokenConfig{
		Secret:     testSecret,
		Algorithm:  "HS256",
		AccessTTL:  30 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}, opts...)
	if err != nil {
		t.Fatalf("NewTokenCodec() error = %v", err)
	}
	return codec
}

func TestTokenCodec_RoundTrip(t *testing.T) {
	codec := testCodec(t)
	id := Identity{Subject: "usr-001", Email: "teacher@school.test", Role: RoleTeacher}

	issued, err := codec.Issue(id, TokenAccess, codec.AccessTTL())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims, err := codec.Verify(issued.Token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if claims.Subject != id.Subject || claims.Email != id.Email || claims.Role != id.Role {
		t.Errorf("identity = (%q, %q, %q), want %+v", claims.Subject, claims.Email, claims.Role, id)
	}
	if claims.Type != TokenAccess {
		t.Errorf("Type = %q, want access", claims.Type)
	}
	if claims.ID != issued.JTI {
		t.Errorf("jti = %q, want %q", claims.ID, issued.JTI)
	}
	if !claims.ExpiresAt.Time.Equal(issued.ExpiresAt) {
		t.Errorf("exp = %v, want %v", claims.ExpiresAt.Time, issued.ExpiresAt)
	}
}

func TestTokenCodec_JTIEntropy(t *testing.T) {
	seen := make(map[string]bool)
	for range 50 {
		jti, err := NewJTI()
		if err != nil {
			t.Fatalf("NewJTI() error = %v", err)
		}
		raw, err := base64.RawURLEncoding.DecodeString(jti)
		if err != nil {
			t.Fatalf("jti %q is not URL-safe base64: %v", jti, err)
		}
		if len(raw) < 32 {
			t.Fatalf("jti carries %d bytes, want >= 32", len(raw))
		}
		if seen[jti] {
			t.Fatalf("duplicate jti %q", jti)
		}
		seen[jti] = true
	}
}

func TestTokenCodec_ResetTokenCarriesEmailOnly(t *testing.T) {
	codec := testCodec(t)

	issued, err := codec.Issue(Identity{Subject: "p@vyon.com", Email: "p@vyon.com", Role: RoleParent}, TokenPasswordReset, ResetTokenTTL)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims, err := codec.Verify(issued.Token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Type != TokenPasswordReset || claims.Email != "p@vyon.com" || claims.Role != "" {
		t.Errorf("reset claims = %+v", claims)
	}
}

func TestTokenCodec_VerifyRejects(t *testing.T) {
	codec := testCodec(t)
	id := Identity{Subject: "usr-001", Email: "a@vyon.com", Role: RoleStudent}

	valid, err := codec.Issue(id, TokenAccess, time.Minute)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	expired, err := codec.Issue(id, TokenAccess, -time.Minute)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	other, err := NewTokenCodec(TokenConfig{Secret: strings.Repeat("x", 32), Algorithm: "HS256", AccessTTL: time.Minute, RefreshTTL: time.Hour})
	if err != nil {
		t.Fatalf("NewTokenCodec() error = %v", err)
	}
	foreign, err := other.Issue(id, TokenAccess, time.Minute)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "usr-001", ID: "x", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Type:             TokenAccess,
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing none token: %v", err)
	}

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "usr-001", ID: "x"},
		Type:             TokenAccess,
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing token without exp: %v", err)
	}

	validParts := strings.Split(valid.Token, ".")
	foreignParts := strings.Split(foreign.Token, ".")
	tampered := validParts[0] + "." + foreignParts[1] + "." + validParts[2]

	tests := map[string]string{
		"expired":        expired.Token,
		"wrong secret":   foreign.Token,
		"alg none":       none,
		"missing exp":    noExp,
		"garbage":        "not.a.jwt",
		"empty":          "",
		"tampered claim": tampered,
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := codec.Verify(token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestTokenCodec_DoesNotEnforceKind(t *testing.T) {
	codec := testCodec(t)

	refresh, err := codec.Issue(Identity{Subject: "usr-001"}, TokenRefresh, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims, err := codec.Verify(refresh.Token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Type != TokenRefresh {
		t.Errorf("Type = %q, want refresh", claims.Type)
	}
}

func TestTokenCodec_Clock(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	codec := testCodec(t, WithClock(func() time.Time { return now }))

	issued, err := codec.Issue(Identity{Subject: "usr-001"}, TokenAccess, 30*time.Minute)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if want := now.Add(30 * time.Minute); !issued.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", issued.ExpiresAt, want)
	}

	if _, err := codec.Verify(issued.Token); err != nil {
		t.Fatalf("Verify() before expiry error = %v", err)
	}

	now = now.Add(31 * time.Minute)
	if _, err := codec.Verify(issued.Token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify() after expiry error = %v, want ErrInvalidToken", err)
	}
}

func TestNewTokenCodec_RejectsBadConfig(t *testing.T) {
	tests := map[string]TokenConfig{
		"empty secret":  {Secret: "", Algorithm: "HS256", AccessTTL: time.Minute, RefreshTTL: time.Hour},
		"RSA algorithm": {Secret: testSecret, Algorithm: "RS256", AccessTTL: time.Minute, RefreshTTL: time.Hour},
		"unknown alg":   {Secret: testSecret, Algorithm: "HS999", AccessTTL: time.Minute, RefreshTTL: time.Hour},
		"zero ttl":      {Secret: testSecret, Algorithm: "HS512", AccessTTL: 0, RefreshTTL: time.Hour},
	}

	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := NewTokenCodec(cfg); err == nil {
				t.Error("NewTokenCodec() expected error")
			}
		})
	}
}
