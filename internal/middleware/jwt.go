package middleware

import (
	"net/http" // HTTP status codes
	"strings"  // String manipulation

	"github.com/gin-gonic/gin" // Gin web framework
)

// TokenKey is the context key holding the caller's bearer token
const TokenKey = "token"

// BearerTokenMiddleware extracts the Authorization bearer token into the
// context. Requests without the header continue, since legacy clients send
// the token in the JSON body; a malformed header is rejected.
func BearerTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization") // Get Authorization header
		if authHeader == "" {
			c.Next() // Token may come from the body
			return
		}
		// Check if the Authorization header is properly formatted
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid Authorization header"})
			return
		}
		c.Set(TokenKey, strings.TrimPrefix(authHeader, "Bearer ")) // Store token in context
		c.Next()                                                   // Proceed to the next handler
	}
}

// Token returns the bearer token, falling back to fallback when the header
// was absent
func Token(c *gin.Context, fallback string) string {
	if token := c.GetString(TokenKey); token != "" {
		return token
	}
	return fallback
}
