package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenKind distinguishes the three token families signed with the same key.
type TokenKind string

// Token kinds carried in the "type" claim.
const (
	TokenAccess        TokenKind = "access"
	TokenRefresh       TokenKind = "refresh"
	TokenPasswordReset TokenKind = "password_reset"
)

// ResetTokenTTL is the fixed lifetime of password reset tokens.
const ResetTokenTTL = time.Hour

// jtiBytes is the entropy of a token identifier.
const jtiBytes = 32

// Claims is the claim set of every token the service signs.
type Claims struct {
	jwt.RegisteredClaims
	Type  TokenKind `json:"type"`
	Email string    `json:"email,omitempty"`
	Role  string    `json:"role,omitempty"`
}

// Identity is the subject data copied into a token.
type Identity struct {
	Subject string
	Email   string
	Role    string
}

// IssuedToken is a signed token with the identifiers the session ledger needs.
type IssuedToken struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

// TokenConfig is the immutable signing configuration built from config.yaml.
type TokenConfig struct {
	Secret     string
	Algorithm  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenCodec signs and verifies HMAC JWTs.
//
// Verify checks signature, structure and expiry only. Callers check the
// token kind for their call site.
type TokenCodec struct {
	secret     []byte
	method     jwt.SigningMethod
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// CodecOption customises a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock overrides the codec's time source for issuing and expiry checks.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) { c.now = now }
}

// NewTokenCodec validates cfg and returns a codec. Only HMAC algorithms
// are accepted.
func NewTokenCodec(cfg TokenConfig, opts ...CodecOption) (*TokenCodec, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token secret is required")
	}

	method := jwt.GetSigningMethod(cfg.Algorithm)
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", cfg.Algorithm)
	}

	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}

	c := &TokenCodec{
		secret:     []byte(cfg.Secret),
		method:     method,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AccessTTL returns the configured access token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// NewJTI returns a URL-safe token identifier with 256 bits of entropy.
func NewJTI() (string, error) {
	b := make([]byte, jtiBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Issue signs a token of the given kind that expires ttl from now.
func (c *TokenCodec) Issue(id Identity, kind TokenKind, ttl time.Duration) (IssuedToken, error) {
	jti, err := NewJTI()
	if err != nil {
		return IssuedToken{}, err
	}
	return c.IssueWith(id, kind, jti, c.now().Add(ttl))
}

// IssueWith signs a token with a caller-chosen identifier and absolute expiry.
// Refresh rotation uses it to keep the original refresh deadline.
func (c *TokenCodec) IssueWith(id Identity, kind TokenKind, jti string, expiresAt time.Time) (IssuedToken, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(c.now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Type:  kind,
		Email: id.Email,
	}
	if kind != TokenPasswordReset {
		claims.Role = id.Role
	}

	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("signing %s token: %w", kind, err)
	}

	return IssuedToken{Token: signed, JTI: jti, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify parses token and returns its claims. Any signature, structure or
// expiry problem yields ErrInvalidToken with the parser error attached.
func (c *TokenCodec) Verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(_ *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, ErrInvalidToken.withCause(err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	switch {
	case claims.Subject == "":
		return nil, ErrInvalidToken.withCause(errors.New("missing subject"))
	case claims.ID == "":
		return nil, ErrInvalidToken.withCause(errors.New("missing jti"))
	case claims.Type == "":
		return nil, ErrInvalidToken.withCause(errors.New("missing type"))
	}

	return claims, nil
}
