package domain

// Account Model
type Account struct {
	RecordID string `json:"-"`       // Backing record id
	UserID   string `json:"user"`    // Owner of the balance
	Balance  int64  `json:"balance"` // Never negative once committed
	Version  int64  `json:"version"` // Optimistic concurrency token
}
