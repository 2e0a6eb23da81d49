// Package auth verifies the bearer tokens issued to operators and monitors.
//
// Tokens are HS256 JWTs carrying a role claim. The admin session layer that
// logs operators in is external; it signs tokens with the shared key, and
// statusctl can mint tokens for monitors and break-glass access.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenExpiry is used when GenerateToken is called without a ttl.
const DefaultTokenExpiry = 1 * time.Hour

// Predefined token errors.
var (
	ErrInvalidToken = errors.New("invalid access token")
	ErrTokenExpired = errors.New("access token has expired")
	ErrUnknownRole  = errors.New("unknown role")
)

// Role is the permission level carried by a token.
type Role string

// Roles. Admin implies monitor.
const (
	RoleMonitor Role = "monitor"
	RoleAdmin   Role = "admin"
)

// ParseRole converts a claim value into a Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleMonitor, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownRole, s)
	}
}

// Allows reports whether a token with role r may act as required.
func (r Role) Allows(required Role) bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleMonitor:
		return required == RoleMonitor
	default:
		return false
	}
}

// Claims are the claims of an operator or monitor token.
type Claims struct {
	jwt.RegisteredClaims

	Role Role `json:"role"`
}

// Principal is the authenticated caller.
type Principal struct {
	Subject string
	Role    Role
}

// JWTConfig holds configuration for the JWT service.
type JWTConfig struct {
	// SigningKey is the shared HS256 secret.
	SigningKey string

	// Issuer is the issuer claim, e.g. "https://status.example.org".
	Issuer string

	// Audience is the audience claim, e.g. "statuspage-api".
	Audience string

	Now func() time.Time
}

// JWTService creates and validates tokens.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	now        func() time.Time
}

// NewJWTService creates a new JWT service.
func NewJWTService(cfg JWTConfig) *JWTService {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &JWTService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		now:        now,
	}
}

// GenerateToken signs a token for subject with the given role.
func (s *JWTService) GenerateToken(subject string, role Role, ttl time.Duration) (string, time.Time, error) {
	if _, err := ParseRole(string(role)); err != nil {
		return "", time.Time{}, err
	}
	if ttl <= 0 {
		ttl = DefaultTokenExpiry
	}

	now := s.now()
	expiresAt := now.Add(ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        generateTokenID(),
		},
		Role: role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken verifies signature, issuer, audience, expiry and role and
// returns the caller.
func (s *JWTService) ValidateToken(tokenString string) (*Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	role, err := ParseRole(string(claims.Role))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &Principal{Subject: claims.Subject, Role: role}, nil
}

func generateTokenID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}
