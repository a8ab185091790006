// Package security issues and verifies the short-lived tokens that let the
// reminder web form authenticate a submission back to a chat user.
package security

import (
	"fmt"
	"time"

	apperrors "carelink/internal/errors"
	"github.com/golang-jwt/jwt/v5"
)

// FormTokens mints and verifies form deep-link tokens.
type FormTokens struct {
	secret []byte
	ttl    time.Duration
}

// NewFormTokens creates a token issuer. ttl bounds how long a handed-out
// form link stays submittable.
func NewFormTokens(secret string, ttl time.Duration) *FormTokens {
	return &FormTokens{secret: []byte(secret), ttl: ttl}
}

// Mint issues a token scoped to one user and one reminder target.
func (t *FormTokens) Mint(userID, memberName string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    userID,
		"member": memberName,
		"iat":    now.Unix(),
		"exp":    now.Add(t.ttl).Unix(),
	})
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign form token: %w", err)
	}
	return signed, nil
}

// Verify checks the token and returns the user and member it was minted for.
func (t *FormTokens) Verify(tokenString string) (userID, memberName string, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return "", "", apperrors.ErrFormTokenInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", apperrors.ErrFormTokenInvalid
	}
	sub, _ := claims["sub"].(string)
	member, _ := claims["member"].(string)
	if sub == "" || member == "" {
		return "", "", apperrors.ErrFormTokenInvalid
	}
	return sub, member, nil
}
