package domain

// App Model: a bot allowed to call the API
type App struct {
	ID         string   `json:"id"`     // Slack app / bot id
	SecretHash string   `json:"-"`      // bcrypt hash of the app secret
	Scopes     []string `json:"scopes"` // Granted scopes
}

// HasScope reports whether the app was granted scope.
func (a App) HasScope(scope string) bool {
	for _, s := range a.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
