// Package auth decides whether a caller may act on behalf of a user.
// Apps authenticate with an id and secret, receive a signed token carrying
// their scopes, and present it on every request.
package auth

import (
	"fmt"  // Error formatting
	"time" // Token lifetime

	"github.com/sirupsen/logrus" // Logging library

	"banker_api/internal/domain" // Models and error kinds
)

// Scopes understood by the API.
const (
	ScopeCheckBalance = "checkBalance"
	ScopeTransfer     = "transfer"
	ScopeSendInvoice  = "sendInvoice"
	ScopeGetInvoices  = "getInvoices"
	ScopeDenyInvoice  = "denyInvoice"
	ScopePayInvoice   = "payInvoice"
	ScopeGive         = "give"
	ScopeFine         = "fine"
	ScopeAudit        = "audit"
	ScopeManageApps   = "manageApps"

	// ScopeManageUser lets an app act for users other than itself. It is
	// never requested directly.
	ScopeManageUser = "manageUser"

	// ScopeBanker is held only by the banker app and cannot be granted.
	ScopeBanker = "banker"
)

// DefaultTokenTTL is how long issued tokens stay valid.
const DefaultTokenTTL = 24 * time.Hour

// Gate is the AuthGate consulted by the API layer before any core call.
type Gate struct {
	secret string
	banker string
	ttl    time.Duration
}

// NewGate returns a Gate signing with secret. Tokens issued to banker pass
// every check.
func NewGate(secret, banker string) *Gate {
	return &Gate{secret: secret, banker: banker, ttl: DefaultTokenTTL}
}

// Issue signs a token for app.
func (g *Gate) Issue(app domain.App) (string, error) {
	return GenerateJWT(app.ID, app.Scopes, g.secret, g.ttl)
}

// Parse validates token and returns its claims.
func (g *Gate) Parse(token string) (*Claims, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", domain.ErrAuth)
	}
	claims, err := ParseJWT(token, g.secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAuth, err)
	}
	return claims, nil
}

// IsBanker reports whether claims belong to the banker app.
func (g *Gate) IsBanker(claims *Claims) bool {
	return claims != nil && g.banker != "" && claims.AppID == g.banker
}

// Authorize checks that token may use scope on behalf of actor. An empty
// actor skips the ownership check, for scopes that are not tied to a user.
func (g *Gate) Authorize(token, actor, scope string) (*Claims, error) {
	claims, err := g.Parse(token)
	if err != nil {
		return nil, err
	}
	if g.IsBanker(claims) {
		return claims, nil
	}
	if scope == ScopeBanker || !claims.HasScope(scope) {
		logrus.WithFields(logrus.Fields{
			"app_id": claims.AppID,
			"scope":  scope,
		}).Warn("Scope denied")
		return nil, fmt.Errorf("%w: %s not granted to %s", domain.ErrAuth, scope, claims.AppID)
	}
	if actor != "" && actor != claims.AppID && !claims.HasScope(ScopeManageUser) {
		logrus.WithFields(logrus.Fields{
			"app_id": claims.AppID,
			"actor":  actor,
			"scope":  scope,
		}).Warn("Actor denied")
		return nil, fmt.Errorf("%w: %s may not act for %s", domain.ErrAuth, claims.AppID, actor)
	}
	return claims, nil
}

// CheckScope is Authorize reduced to a yes/no answer.
func (g *Gate) CheckScope(token, actor, scope string) bool {
	_, err := g.Authorize(token, actor, scope)
	return err == nil
}
