package api

import (
	"context"  // Context for health checks
	"net/http" // HTTP status codes
	"strconv"  // String conversion

	"banker_api/internal/auth"       // Scopes
	"banker_api/internal/domain"     // Validation errors
	"banker_api/internal/ledger"     // Ledger filters
	"banker_api/internal/middleware" // Bearer token

	"github.com/gin-gonic/gin" // Gin web framework
)

const maxLedgerPage = 1000 // Upper bound on ledger entries per request

// LedgerHandler lists ledger entries for auditing; needs audit
func LedgerHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := d.Gate.Authorize(middleware.Token(c, ""), "", auth.ScopeAudit); err != nil {
			writeError(c, err)
			return
		}
		f := ledger.Filter{User: c.Query("user"), Limit: 100} // Newest 100 by default
		// If limit exists in query
		if l := c.Query("limit"); l != "" {
			v, err := strconv.Atoi(l)
			if err != nil || v <= 0 || v > maxLedgerPage {
				writeError(c, domain.Invalid("limit", "must be between 1 and 1000"))
				return
			}
			f.Limit = v
		}
		// If success exists in query
		if s := c.Query("success"); s != "" {
			v, err := strconv.ParseBool(s)
			if err != nil {
				writeError(c, domain.Invalid("success", "must be true or false"))
				return
			}
			f.Success = &v
		}
		ctx, cancel := d.opContext(c)
		defer cancel()
		entries, err := d.Ledger.List(ctx, f)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
	}
}

// LedgerEntryHandler returns one ledger entry; needs audit
func LedgerEntryHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := d.Gate.Authorize(middleware.Token(c, ""), "", auth.ScopeAudit); err != nil {
			writeError(c, err)
			return
		}
		ctx, cancel := d.opContext(c)
		defer cancel()
		entry, err := d.Ledger.Get(ctx, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, entry)
	}
}

// HealthHandler reports whether the backing services respond
func HealthHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d.timeout())
		defer cancel()
		for name, check := range d.Health {
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "failing": name, "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
