package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var ErrUnauthorized = errors.New("unauthorized")

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// JWTManager validates the platform-wide bearer tokens. The signing secret
// is shared with the identity service that issues them; this service only
// mints tokens in tests and local development.
type JWTManager struct {
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
}

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type AccessClaims struct {
	UserID    int64
	Role      string
	ExpiresAt time.Time
}

func NewJWTManager(secret string, accessTTL time.Duration) *JWTManager {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}

	return &JWTManager{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		now:       time.Now,
	}
}

func (m *JWTManager) GenerateAccessToken(userID int64, role string) (string, time.Time, error) {
	if len(m.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("jwt secret is empty")
	}
	if userID <= 0 {
		return "", time.Time{}, fmt.Errorf("invalid access token payload")
	}
	if strings.TrimSpace(role) == "" {
		role = RoleUser
	}

	now := m.now().UTC()
	expiresAt := now.Add(m.accessTTL)
	claims := tokenClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}

	return signed, expiresAt, nil
}

func (m *JWTManager) ParseAccessToken(raw string) (AccessClaims, error) {
	if strings.TrimSpace(raw) == "" {
		return AccessClaims{}, ErrUnauthorized
	}

	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(_ *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil || token == nil || !token.Valid {
		return AccessClaims{}, ErrUnauthorized
	}

	userID, parseErr := strconv.ParseInt(claims.Subject, 10, 64)
	if parseErr != nil || userID <= 0 {
		return AccessClaims{}, ErrUnauthorized
	}
	if claims.ExpiresAt == nil {
		return AccessClaims{}, ErrUnauthorized
	}

	role := claims.Role
	if strings.TrimSpace(role) == "" {
		role = RoleUser
	}

	return AccessClaims{
		UserID:    userID,
		Role:      role,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
