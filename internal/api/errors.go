package api

import (
	"errors"   // Error matching
	"net/http" // HTTP status codes

	"banker_api/internal/domain"     // Error kinds
	"banker_api/internal/middleware" // Request logger

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// StatusFor maps an error kind to its HTTP status
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrAuth):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyProcessed), errors.Is(err, domain.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err and sends it with the mapped status
func writeError(c *gin.Context, err error) {
	status := StatusFor(err)
	entry := middleware.Logger(c).WithFields(logrus.Fields{
		"status": status,      // Response status
		"error":  err.Error(), // Error message
	})
	body := gin.H{"error": err.Error()}
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
		if errors.Is(err, domain.ErrPendingCredit) {
			body["pending_credit"] = true // Debit committed, an operator must reconcile
		}
		if errors.Is(err, domain.ErrUnrecorded) {
			body["unrecorded"] = true // Funds moved, ledger entry missing; do not retry
		}
	} else {
		entry.Warn("Request rejected")
	}
	c.AbortWithStatusJSON(status, body)
}

// bindError reports a malformed request body
func bindError(c *gin.Context, err error) {
	writeError(c, domain.Invalid("body", err.Error()))
}
