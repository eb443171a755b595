package entitlement

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the payload of the signed entitlement token issued by the
// backend. Active distinguishes a live subscription from a canceled one that
// still carries a token; Tier 0 means free.
type Claims struct {
	Active bool `json:"active"`
	Tier   int  `json:"tier"`
	jwt.RegisteredClaims
}

// parseToken verifies the HMAC signature and returns the claims. Expired
// tokens parse successfully here; expiry is evaluated by the validator so an
// expired-but-authentic token can still overwrite the cache with an invalid
// verdict.
func parseToken(tokenString string, key []byte) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, fmt.Errorf("parse entitlement token: %w", err)
	}
	return claims, nil
}
