package domain

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoiceProcessing InvoiceStatus = "Processing"
	InvoicePaid       InvoiceStatus = "Paid"
	InvoiceDenied     InvoiceStatus = "Denied"
)

// Terminal reports whether no further transition is allowed.
func (s InvoiceStatus) Terminal() bool {
	return s == InvoicePaid || s == InvoiceDenied
}

// CanTransition reports whether moving from s to next is a legal transition.
func (s InvoiceStatus) CanTransition(next InvoiceStatus) bool {
	return s == InvoiceProcessing && next.Terminal()
}

// Invoice Model
type Invoice struct {
	ID        string        `json:"id"`     // Invoice id
	From      string        `json:"from"`   // Payee, receives the funds
	To        string        `json:"to"`     // Payer, funds move from here
	Reason    string        `json:"reason"` // Why the payee is asking
	Amount    int64         `json:"amount"` // Always positive
	Status    InvoiceStatus `json:"status"` // Processing, Paid or Denied
	Claim     string        `json:"-"`      // Set while a payment is in flight
	ClaimedAt int64         `json:"-"`      // When the claim was taken, Unix millis
	Version   int64         `json:"-"`      // Optimistic concurrency token
}
