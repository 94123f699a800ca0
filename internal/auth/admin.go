package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultTokenTTL = 30 * time.Minute
	tokenIssuer     = "fortune-api"
	tokenAudience   = "fortune-admin"
	adminSubject    = "admin"
)

var (
	// ErrUnauthorized indicates the request carried no valid admin credential.
	ErrUnauthorized = errors.New("auth: unauthorized")

	errMissingAdminKey = errors.New("auth: admin key is required")
)

// AdminConfig configures the admin credential checks.
type AdminConfig struct {
	AdminKey string
	TokenTTL time.Duration
	Clock    func() time.Time
}

// Admin validates the shared admin key and issues short-lived HS256 tokens so
// dashboards do not have to keep the raw key in every request.
type Admin struct {
	adminKey []byte
	tokenTTL time.Duration
	clock    func() time.Time
}

// NewAdmin constructs the admin authenticator.
func NewAdmin(cfg AdminConfig) (*Admin, error) {
	key := strings.TrimSpace(cfg.AdminKey)
	if key == "" {
		return nil, errMissingAdminKey
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Admin{
		adminKey: []byte(key),
		tokenTTL: ttl,
		clock:    clock,
	}, nil
}

// CheckKey compares the supplied key against the shared admin key in
// constant time.
func (a *Admin) CheckKey(key string) error {
	if subtle.ConstantTimeCompare([]byte(key), a.adminKey) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// IssueToken exchanges a valid admin key for a signed JWT and its expiry in
// seconds.
func (a *Admin) IssueToken(key string) (string, int64, error) {
	if err := a.CheckKey(key); err != nil {
		return "", 0, err
	}

	now := a.clock().UTC()
	expiresAt := now.Add(a.tokenTTL)

	claims := jwt.RegisteredClaims{
		Subject:   adminSubject,
		Issuer:    tokenIssuer,
		Audience:  []string{tokenAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.adminKey)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(expiresAt.Sub(now).Seconds()), nil
}

// ValidateToken checks a previously issued admin JWT.
func (a *Admin) ValidateToken(tokenString string) error {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrUnauthorized, token.Method.Alg())
			}
			return a.adminKey, nil
		},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.clock),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.Subject != adminSubject {
		return ErrUnauthorized
	}
	return nil
}
