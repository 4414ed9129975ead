package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banker_api/internal/domain"
)

const testSecret = "test-secret"

func issue(t *testing.T, g *Gate, appID string, scopes ...string) string {
	t.Helper()
	token, err := g.Issue(domain.App{ID: appID, Scopes: scopes})
	require.NoError(t, err)
	return token
}

func TestGenerateAndParseJWT(t *testing.T) {
	token, err := GenerateJWT("bot", []string{ScopeTransfer}, testSecret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "bot", claims.AppID)
	assert.True(t, claims.HasScope(ScopeTransfer))
	assert.False(t, claims.HasScope(ScopeGive))

	_, err = ParseJWT(token, "other-secret")
	assert.Error(t, err)
}

func TestParseJWTExpired(t *testing.T) {
	token, err := GenerateJWT("bot", nil, testSecret, -time.Minute)
	require.NoError(t, err)
	_, err = ParseJWT(token, testSecret)
	assert.Error(t, err)
}

func TestAuthorize(t *testing.T) {
	g := NewGate(testSecret, "UBANKER")
	bot := issue(t, g, "UBOT", ScopeTransfer, ScopeCheckBalance)
	manager := issue(t, g, "USLACK", ScopeTransfer, ScopeManageUser)
	banker := issue(t, g, "UBANKER")

	tests := []struct {
		name  string
		token string
		actor string
		scope string
		ok    bool
	}{
		{"own account", bot, "UBOT", ScopeTransfer, true},
		{"missing scope", bot, "UBOT", ScopeGive, false},
		{"other actor", bot, "UALICE", ScopeTransfer, false},
		{"no actor", bot, "", ScopeCheckBalance, true},
		{"manageUser acts for others", manager, "UALICE", ScopeTransfer, true},
		{"manageUser still needs scope", manager, "UALICE", ScopeFine, false},
		{"banker passes everything", banker, "UALICE", ScopeFine, true},
		{"banker scope", banker, "", ScopeBanker, true},
		{"banker scope not grantable", manager, "", ScopeBanker, false},
		{"empty token", "", "UBOT", ScopeTransfer, false},
		{"garbage token", "not-a-jwt", "UBOT", ScopeTransfer, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Authorize(tt.token, tt.actor, tt.scope)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, domain.ErrAuth)
			}
			assert.Equal(t, tt.ok, g.CheckScope(tt.token, tt.actor, tt.scope))
		})
	}
}

func TestGateRejectsForeignSecret(t *testing.T) {
	other := NewGate("another-secret", "UBANKER")
	token := issue(t, other, "UBANKER")

	g := NewGate(testSecret, "UBANKER")
	assert.False(t, g.CheckScope(token, "UALICE", ScopeGive))
}
