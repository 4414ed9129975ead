package api

import (
	"net/http" // HTTP status codes

	"banker_api/internal/auth"       // App tokens and scopes
	"banker_api/internal/middleware" // Bearer token, request logger

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// TokenRequest exchanges app credentials for a token
type TokenRequest struct {
	AppID  string `json:"app_id" binding:"required"` // App id must be provided
	Secret string `json:"secret" binding:"required"` // Secret must be provided
}

// TokenResponse carries a signed app token
type TokenResponse struct {
	Token string `json:"token"` // JWT token
}

// RegisterAppRequest creates a new app
type RegisterAppRequest struct {
	Token  string   `json:"token"`                     // Legacy body token
	AppID  string   `json:"app_id" binding:"required"` // New app id
	Secret string   `json:"secret" binding:"required"` // New app secret
	Scopes []string `json:"scopes"`                    // Granted scopes
}

// TokenHandler authenticates an app and returns a token
func TokenHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TokenRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
		ctx, cancel := d.opContext(c)
		defer cancel()
		// Compare the provided secret with the stored hash
		app, err := d.Apps.Authenticate(ctx, req.AppID, req.Secret)
		if err != nil {
			writeError(c, err)
			return
		}
		token, err := d.Gate.Issue(app) // Sign a token for the app
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, TokenResponse{Token: token})
	}
}

// RegisterAppHandler registers a new app; needs manageApps
func RegisterAppHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterAppRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
		claims, err := d.Gate.Authorize(middleware.Token(c, req.Token), "", auth.ScopeManageApps)
		if err != nil {
			writeError(c, err)
			return
		}
		ctx, cancel := d.opContext(c)
		defer cancel()
		app, err := d.Apps.Register(ctx, req.AppID, req.Secret, req.Scopes)
		if err != nil {
			writeError(c, err)
			return
		}
		middleware.Logger(c).WithFields(logrus.Fields{
			"app_id":     app.ID,       // New app
			"created_by": claims.AppID, // Registering app
		}).Info("App created")
		c.JSON(http.StatusCreated, gin.H{"app": app})
	}
}
