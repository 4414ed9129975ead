package auth

import (
	"fmt"  // Error formatting
	"time" // Time for token expiration

	"github.com/golang-jwt/jwt/v5" // JWT library
)

// Claims carried by an app token
type Claims struct {
	AppID                string   `json:"app_id"` // App the token was issued to
	Scopes               []string `json:"scopes"` // Scopes granted at issue time
	jwt.RegisteredClaims          // Standard JWT claims
}

// HasScope reports whether the token carries scope
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// GenerateJWT creates a token for an app, valid for ttl
func GenerateJWT(appID string, scopes []string, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	// Set token claims
	claims := Claims{
		AppID:  appID,  // Custom claim for app ID
		Scopes: scopes, // Custom claim for granted scopes
		// Standard claims
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   appID,                            // Subject is the app
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)), // Token expiry
			IssuedAt:  jwt.NewNumericDate(now),          // Issued at current time
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims) // Create token with claims
	return token.SignedString([]byte(secret))                  // Sign the token with the secret
}

// ParseJWT parses and validates a token string
func ParseJWT(tokenStr, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		// Reject tokens signed with anything but HMAC
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil // Return the secret key for validation
	})
	// Check for parsing errors
	if err != nil {
		return nil, err // Return error if parsing fails
	}
	// Validate token and extract claims
	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.AppID != "" {
		return claims, nil // Return claims if valid
	}
	// Return error if token is invalid
	return nil, jwt.ErrSignatureInvalid
}
