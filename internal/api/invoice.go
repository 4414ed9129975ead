package api

import (
	"context"  // Context for cache operations
	"net/http" // HTTP status codes

	"banker_api/internal/auth"       // Scopes
	"banker_api/internal/invoice"    // Invoice roles
	"banker_api/internal/middleware" // Bearer token, request logger

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// CreateInvoiceRequest asks To to pay From
type CreateInvoiceRequest struct {
	Token  string `json:"token"`                     // Legacy body token
	From   string `json:"from" binding:"required"`   // Payee, must be the caller or managed by it
	To     string `json:"to" binding:"required"`     // Payer
	Amount int64  `json:"amount" binding:"required"` // Positive amount
	Reason string `json:"reason"`                    // Shown to the payer
}

// PendingInvoicesRequest lists open invoices of a user
type PendingInvoicesRequest struct {
	Token string `json:"token"`                   // Legacy body token
	User  string `json:"user" binding:"required"` // User whose invoices are listed
	As    string `json:"as"`                      // "payer" (default) or "payee"
}

// InvoiceActionRequest names an invoice to pay or deny
type InvoiceActionRequest struct {
	Token     string `json:"token"`                         // Legacy body token
	InvoiceID string `json:"invoice_id" binding:"required"` // Invoice id
}

// CreateInvoiceHandler creates an invoice in Processing
func CreateInvoiceHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateInvoiceRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
		if _, err := d.Gate.Authorize(middleware.Token(c, req.Token), req.From, auth.ScopeSendInvoice); err != nil {
			writeError(c, err)
			return
		}
		ctx, cancel := d.opContext(c)
		defer cancel()
		id, err := d.Invoices.CreateInvoice(ctx, req.From, req.To, req.Reason, req.Amount)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id})
	}
}

// PendingInvoicesHandler returns the user's invoices still in Processing
func PendingInvoicesHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PendingInvoicesRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
		role, err := invoice.ParseRole(req.As)
		if err != nil {
			writeError(c, err)
			return
		}
		if _, err := d.Gate.Authorize(middleware.Token(c, req.Token), req.User, auth.ScopeGetInvoices); err != nil {
			writeError(c, err)
			return
		}
		ctx, cancel := d.opContext(c)
		defer cancel()
		invoices, err := d.Invoices.ListPendingInvoices(ctx, req.User, role)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, invoices) // Legacy clients expect a bare array
	}
}

// DenyInvoiceHandler denies an invoice; only its payer may
func DenyInvoiceHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req InvoiceActionRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
		ctx, cancel := d.opContext(c)
		defer cancel()
		inv, err := d.Invoices.GetInvoice(ctx, req.InvoiceID)
		if err != nil {
			writeError(c, err)
			return
		}
		if _, err := d.Gate.Authorize(middleware.Token(c, req.Token), inv.To, auth.ScopeDenyInvoice); err != nil {
			writeError(c, err)
			return
		}
		if err := d.Invoices.DenyInvoice(ctx, req.InvoiceID); err != nil {
			writeError(c, err)
			return
		}
		middleware.Logger(c).WithFields(logrus.Fields{
			"invoice_id": inv.ID, // Denied invoice
			"payer":      inv.To, // Denying user
		}).Info("Invoice denied")
		c.JSON(http.StatusOK, gin.H{"id": inv.ID, "status": "Denied"})
	}
}

// PayInvoiceHandler pays an invoice; only its payer may
func PayInvoiceHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req InvoiceActionRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
		ctx, cancel := d.opContext(c)
		defer cancel()
		inv, err := d.Invoices.GetInvoice(ctx, req.InvoiceID)
		if err != nil {
			writeError(c, err)
			return
		}
		if _, err := d.Gate.Authorize(middleware.Token(c, req.Token), inv.To, auth.ScopePayInvoice); err != nil {
			writeError(c, err)
			return
		}
		err = d.Invoices.PayInvoice(ctx, req.InvoiceID)
		// Balances may have moved even when settling failed
		if cerr := d.Cache.InvalidateBalances(context.WithoutCancel(ctx), inv.To, inv.From); cerr != nil {
			middleware.Logger(c).WithError(cerr).Warn("Failed to invalidate balance cache")
		}
		if err != nil {
			writeError(c, err)
			return
		}
		middleware.Logger(c).WithFields(logrus.Fields{
			"invoice_id": inv.ID,     // Paid invoice
			"payer":      inv.To,     // Debited user
			"payee":      inv.From,   // Credited user
			"amount":     inv.Amount, // Amount moved
		}).Info("Invoice paid")
		c.JSON(http.StatusOK, gin.H{"id": inv.ID, "status": "Paid"})
	}
}
