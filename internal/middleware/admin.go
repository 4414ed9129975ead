package middleware

import (
	"net/http" // HTTP status codes

	"banker_api/internal/auth" // Token checks

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// BankerOnlyMiddleware lets through only requests carrying the banker app's token
func BankerOnlyMiddleware(gate *auth.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := gate.Parse(Token(c, "")) // Parse the bearer token
		if err != nil {
			// Missing or invalid token
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Banker access required"})
			return
		}
		// Check that the token belongs to the banker
		if !gate.IsBanker(claims) {
			Logger(c).WithFields(logrus.Fields{
				"app_id": claims.AppID, // Caller app
			}).Warn("Banker access denied")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Banker access required"})
			return
		}
		c.Next() // Banker, proceed
	}
}
