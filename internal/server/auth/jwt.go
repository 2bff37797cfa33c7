// Package auth mints and verifies the session token issued after a
// successful second-factor check.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the verified subject and the second-factor marker. MFA is
// set only by the verifier, never by the client.
type Claims struct {
	jwt.RegisteredClaims
	Purpose string `json:"purpose"`
	MFA     bool   `json:"mfa"`
}

// GenerateToken signs an HS256 token for subject valid for validityDuration
// from now. It returns the token and its expiry.
func GenerateToken(subject, purpose string, secretKey []byte, validityDuration time.Duration, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(validityDuration)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Purpose: purpose,
		MFA:     true,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// ParseToken validates signature, algorithm and expiry.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
