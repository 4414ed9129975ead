package domain

// MintAccount is the pseudo-account deposits into the banker account come from.
const MintAccount = "mint"

// LedgerEntry Model
type LedgerEntry struct {
	ID        string  `json:"id"`         // Assigned on append, monotonically increasing
	From      string  `json:"from"`       // Debited user
	To        string  `json:"to"`         // Credited user
	Amount    int64   `json:"amount"`     // Always positive
	Note      string  `json:"note"`       // Caller supplied reason
	Success   bool    `json:"success"`    // False only for debits left pending credit
	AdminNote *string `json:"admin_note"` // Operator facing note
	Timestamp int64   `json:"timestamp"`  // Server time in milliseconds
}
