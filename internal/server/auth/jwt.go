// Package auth mints and parses the signed session tokens issued by the
// credential guard.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lifexhealth/medvault/internal/common"
	"github.com/lifexhealth/medvault/internal/server/models"
)

// Claims carries the registered claims plus the authenticated principal.
// The registered ID claim is the session token identifier used by the
// revocation set.
type Claims struct {
	jwt.RegisteredClaims
	AccountID string
	Role      models.Role
}

func GenerateToken(tokenID, accountID string, role models.Role, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		AccountID: accountID,
		Role:      role,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken verifies the signature and returns the claims. An expired but
// otherwise valid token returns the parsed claims together with
// common.ErrSessionExpired: the revocation check has to run before the
// expiry check, so callers need the token ID either way.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return claims, common.ErrSessionExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
