// Package api binds the accounting core to HTTP with gin.
package api

import (
	"context" // Per request deadlines
	"time"    // Time durations

	"banker_api/internal/account"    // AccountStore
	"banker_api/internal/auth"       // AuthGate and app store
	"banker_api/internal/cache"      // Balance cache
	"banker_api/internal/invoice"    // InvoiceManager
	"banker_api/internal/ledger"     // LedgerRecorder
	"banker_api/internal/middleware" // Request id, tokens, banker guard
	"banker_api/internal/transfer"   // TransferEngine

	"github.com/gin-gonic/gin" // Gin web framework
)

const defaultOpTimeout = 10 * time.Second

// Deps are the collaborators the handlers close over
type Deps struct {
	Gate      *auth.Gate                             // Scope checks
	Apps      *auth.AppStore                         // App credentials
	Accounts  *account.Store                         // Balances
	Transfers *transfer.Engine                       // Money movement
	Invoices  *invoice.Manager                       // Invoices
	Ledger    *ledger.Recorder                       // Audit listing
	Cache     *cache.Cache                           // Optional, nil disables caching
	OpTimeout time.Duration                          // Deadline for each operation
	Health    map[string]func(context.Context) error // Checks run by /health
}

func (d *Deps) timeout() time.Duration {
	if d.OpTimeout > 0 {
		return d.OpTimeout
	}
	return defaultOpTimeout
}

// opContext bounds an operation by the request and the operation timeout
func (d *Deps) opContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), d.timeout())
}

// NewRouter returns the gin engine serving every route
func NewRouter(d *Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestIDMiddleware(), middleware.BearerTokenMiddleware())

	r.GET("/health", HealthHandler(d)) // Liveness and dependency check

	// App credentials
	r.POST("/token", TokenHandler(d))      // Exchange app secret for a token
	r.POST("/apps", RegisterAppHandler(d)) // Register an app

	// Balances and transfers
	r.POST("/balance", BalanceHandler(d))   // Balance lookup
	r.POST("/transfer", TransferHandler(d)) // User to user transfer
	r.POST("/give", GiveHandler(d))         // Banker pays a user
	r.POST("/fine", FineHandler(d))         // User pays the banker

	// Invoices
	r.POST("/invoice", CreateInvoiceHandler(d))           // Create an invoice
	r.POST("/pendingInvoices", PendingInvoicesHandler(d)) // Open invoices of a user
	r.POST("/denyInvoice", DenyInvoiceHandler(d))         // Deny an invoice
	r.POST("/payInvoice", PayInvoiceHandler(d))           // Pay an invoice

	// Audit and banker operations
	r.GET("/ledger", LedgerHandler(d))          // Ledger listing
	r.GET("/ledger/:id", LedgerEntryHandler(d)) // Single ledger entry
	bankerGroup := r.Group("")
	bankerGroup.Use(middleware.BankerOnlyMiddleware(d.Gate))
	bankerGroup.POST("/deposit", DepositHandler(d)) // Mint into the banker account

	return r
}
