// Package app wires the accounting core on top of a RecordStore.
package app

import (
	"banker_api/internal/account"  // AccountStore
	"banker_api/internal/auth"     // AuthGate and app store
	"banker_api/internal/config"   // Configuration
	"banker_api/internal/invoice"  // InvoiceManager
	"banker_api/internal/ledger"   // LedgerRecorder
	"banker_api/internal/store"    // RecordStore contract
	"banker_api/internal/transfer" // TransferEngine
)

// Services are the core components sharing one RecordStore.
type Services struct {
	Records   store.RecordStore
	Accounts  *account.Store
	Ledger    *ledger.Recorder
	Transfers *transfer.Engine
	Invoices  *invoice.Manager
	Apps      *auth.AppStore
	Gate      *auth.Gate
}

// NewServices builds the core. publisher may be nil.
func NewServices(cfg *config.Config, records store.RecordStore, publisher ledger.Publisher) *Services {
	var opts []ledger.Option
	if publisher != nil {
		opts = append(opts, ledger.WithPublisher(publisher))
	}
	accounts := account.NewStore(records)
	recorder := ledger.NewRecorder(records, opts...)
	engine := transfer.NewEngine(accounts, recorder, cfg.Retry, cfg.BankerID)
	return &Services{
		Records:   records,
		Accounts:  accounts,
		Ledger:    recorder,
		Transfers: engine,
		Invoices:  invoice.NewManager(records, engine, cfg.Retry),
		Apps:      auth.NewAppStore(records),
		Gate:      auth.NewGate(cfg.JWTSecret, cfg.BankerID),
	}
}
