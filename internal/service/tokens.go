package service

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"storefront/internal/models"
)

// Token types
const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

var ErrInvalidToken = errors.New("token is invalid or expired")

// Principal is the authenticated caller as carried by an access token.
type Principal struct {
	UserID  int64
	Email   string
	IsStaff bool
}

type Claims struct {
	Email   string `json:"email"`
	IsStaff bool   `json:"is_staff"`
	Type    string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// RefreshTTL is the lifetime of refresh tokens, used for the cookie max-age.
func (t *TokenIssuer) RefreshTTL() time.Duration {
	return t.refreshTTL
}

// Pair issues an access and a refresh token for u.
func (t *TokenIssuer) Pair(u *models.User) (access, refresh string, err error) {
	access, err = t.sign(u.ID, u.Email, u.IsStaff, TokenAccess, t.accessTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err = t.sign(u.ID, u.Email, u.IsStaff, TokenRefresh, t.refreshTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (t *TokenIssuer) sign(userID int64, email string, isStaff bool, typ string, ttl time.Duration) (string, error) {
	now := t.now()
	claims := Claims{
		Email:   email,
		IsStaff: isStaff,
		Type:    typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token of the expected type and returns its principal.
func (t *TokenIssuer) Verify(raw, wantType string) (Principal, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Type != wantType {
		return Principal{}, fmt.Errorf("%w: expected %s token", ErrInvalidToken, wantType)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return Principal{UserID: id, Email: claims.Email, IsStaff: claims.IsStaff}, nil
}
