package gotrue

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/bytebank-ledger/internal/domain/identity"
)

// Claims are the access-token claims the auth server issues
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// TokenVerifier checks HS256 access tokens signed with the auth server's secret
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify validates signature and expiry
func (v *TokenVerifier) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, identity.ErrInvalidToken
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("token expired: %w", identity.ErrInvalidToken)
		}
		return nil, identity.ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, identity.ErrInvalidToken
	}
	return claims, nil
}

// Principal verifies tokenString and returns the caller it identifies
func (v *TokenVerifier) Principal(tokenString string) (identity.Principal, error) {
	claims, err := v.Verify(tokenString)
	if err != nil {
		return identity.Principal{}, err
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return identity.Principal{}, identity.ErrInvalidToken
	}
	return identity.Principal{UserID: userID, Email: claims.Email, AccessToken: tokenString}, nil
}
