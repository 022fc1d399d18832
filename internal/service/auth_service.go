package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-papers/internal/config"
	"github.com/stemsi/exstem-papers/internal/model"
)

// Common auth errors.
var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrMissingUserID = errors.New("user uid is required")
)

// TokenType distinguishes exam takers from staff.
type TokenType string

const (
	TokenTypeUser  TokenType = "user"
	TokenTypeStaff TokenType = "staff"
)

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	TokenType   TokenType `json:"token_type"`
	UserUID     string    `json:"user_uid"`
	Permissions []string  `json:"permissions,omitempty"` // Staff only
}

// HasPermission reports whether the claims carry the permission code.
func (c *Claims) HasPermission(p model.Permission) bool {
	for _, have := range c.Permissions {
		if have == string(p) {
			return true
		}
	}
	return false
}

// AuthService issues and validates the bearer tokens that carry a
// pre-authenticated user uid.
type AuthService struct {
	cfg *config.Config
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{cfg: cfg}
}

// IssueToken mints a signed token for userUID.
func (s *AuthService) IssueToken(userUID string, tokenType TokenType, permissions []string, ttl time.Duration) (string, error) {
	if userUID == "" {
		return "", ErrMissingUserID
	}
	if ttl <= 0 {
		ttl = s.cfg.JWTExpiry
	}
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   userUID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TokenType:   tokenType,
		UserUID:     userUID,
		Permissions: permissions,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserUID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
