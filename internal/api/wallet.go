package api

import (
	"context"  // Context for cache operations
	"net/http" // HTTP status codes

	"banker_api/internal/auth"       // Scopes
	"banker_api/internal/cache"      // Balance cache keys
	"banker_api/internal/domain"     // Ledger entries
	"banker_api/internal/middleware" // Bearer token, request logger

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// BalanceRequest asks for a user's balance
type BalanceRequest struct {
	Token string `json:"token"`                     // Legacy body token
	AppID string `json:"app_id" binding:"required"` // Calling app
	User  string `json:"user" binding:"required"`   // User to look up
}

// TransferRequest moves funds between two users
type TransferRequest struct {
	Token  string `json:"token"`                     // Legacy body token
	From   string `json:"from" binding:"required"`   // Debited user, must be the caller or managed by it
	To     string `json:"to" binding:"required"`     // Credited user
	Amount int64  `json:"amount" binding:"required"` // Positive amount
	Reason string `json:"reason"`                    // Ledger note
}

// LegacyRequest is the body of the give and fine endpoints
type LegacyRequest struct {
	Token  string `json:"token"`                      // Legacy body token
	BotID  string `json:"bot_id" binding:"required"`  // Calling bot
	SendID string `json:"send_id" binding:"required"` // User paid or fined
	GP     int64  `json:"gp" binding:"required"`      // Amount
	Reason string `json:"reason"`                     // Ledger note
}

// DepositRequest mints funds into the banker account
type DepositRequest struct {
	Amount int64  `json:"amount" binding:"required"` // Positive amount
	Reason string `json:"reason"`                    // Ledger note
}

// TransferResponse identifies the ledger entry written for a movement
type TransferResponse struct {
	EntryID string `json:"entry_id"` // Ledger entry id
	From    string `json:"from"`     // Debited user
	To      string `json:"to"`       // Credited user
	Amount  int64  `json:"amount"`   // Amount moved
}

// BalanceHandler returns a user's balance, creating the account if needed
func BalanceHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BalanceRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
		if _, err := d.Gate.Authorize(middleware.Token(c, req.Token), req.AppID, auth.ScopeCheckBalance); err != nil {
			writeError(c, err)
			return
		}
		ctx, cancel := d.opContext(c)
		defer cancel()
		cacheKey := cache.BalanceKey(req.User) // Cache key for the balance
		var balance int64
		found, err := d.Cache.Get(ctx, cacheKey, &balance) // Try to get from cache
		// If found in cache, return it
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{"balance": balance, "cached": true})
			return
		}
		balance, _, err = d.Accounts.GetBalance(ctx, req.User) // Read or create the account
		if err != nil {
			writeError(c, err)
			return
		}
		if err := d.Cache.Set(ctx, cacheKey, balance); err != nil {
			middleware.Logger(c).WithError(err).Warn("Failed to cache balance")
		}
		c.JSON(http.StatusOK, gin.H{"balance": balance, "cached": false})
	}
}

// TransferHandler moves funds from one user to another
func TransferHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TransferRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
		if _, err := d.Gate.Authorize(middleware.Token(c, req.Token), req.From, auth.ScopeTransfer); err != nil {
			writeError(c, err)
			return
		}
		ctx, cancel := d.opContext(c)
		defer cancel()
		entry, err := d.Transfers.Transfer(ctx, req.From, req.To, req.Amount, req.Reason)
		d.moved(c, req.From, req.To, entry, err, "transfer")
	}
}

// GiveHandler pays a user from the banker account
func GiveHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LegacyRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
		if _, err := d.Gate.Authorize(middleware.Token(c, req.Token), req.BotID, auth.ScopeGive); err != nil {
			writeError(c, err)
			return
		}
		ctx, cancel := d.opContext(c)
		defer cancel()
		entry, err := d.Transfers.Give(ctx, req.SendID, req.GP, req.Reason)
		d.moved(c, d.Transfers.Banker(), req.SendID, entry, err, "give")
	}
}

// FineHandler charges a user into the banker account
func FineHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LegacyRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
		if _, err := d.Gate.Authorize(middleware.Token(c, req.Token), req.BotID, auth.ScopeFine); err != nil {
			writeError(c, err)
			return
		}
		ctx, cancel := d.opContext(c)
		defer cancel()
		entry, err := d.Transfers.Fine(ctx, req.SendID, req.GP, req.Reason)
		d.moved(c, req.SendID, d.Transfers.Banker(), entry, err, "fine")
	}
}

// DepositHandler mints funds into the banker account; banker only
func DepositHandler(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req DepositRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
		ctx, cancel := d.opContext(c)
		defer cancel()
		entry, err := d.Transfers.Deposit(ctx, req.Amount, req.Reason)
		d.moved(c, domain.MintAccount, d.Transfers.Banker(), entry, err, "deposit")
	}
}

// moved answers a money movement and drops the cached balances it touched
func (d *Deps) moved(c *gin.Context, from, to string, entry *domain.LedgerEntry, err error, kind string) {
	// A failed movement may still have changed balances
	if err == nil || domain.MovedFunds(err) {
		if err := d.Cache.InvalidateBalances(context.WithoutCancel(c.Request.Context()), from, to); err != nil {
			middleware.Logger(c).WithError(err).Warn("Failed to invalidate balance cache")
		}
	}
	if err != nil {
		writeError(c, err)
		return
	}
	middleware.Logger(c).WithFields(logrus.Fields{
		"type":     kind,         // Movement type
		"entry_id": entry.ID,     // Ledger entry
		"from":     entry.From,   // Debited user
		"to":       entry.To,     // Credited user
		"amount":   entry.Amount, // Amount moved
	}).Info("Funds moved")
	c.JSON(http.StatusOK, TransferResponse{
		EntryID: entry.ID,
		From:    entry.From,
		To:      entry.To,
		Amount:  entry.Amount,
	})
}
