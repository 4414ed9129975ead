package main

import (
	"fmt" // Error formatting
	"os"  // CONFIG_FILE override

	"github.com/sirupsen/logrus" // Logging library
	"github.com/spf13/cobra"     // CLI framework

	"banker_api/internal/app"            // Core services
	"banker_api/internal/config"         // Configuration
	"banker_api/internal/db"             // Database connection
	"banker_api/internal/store/sqlstore" // SQL RecordStore
)

// opener builds the core services and returns a func releasing them.
type opener func() (*app.Services, func(), error)

func newRootCmd(open opener) *cobra.Command {
	var (
		cfgFile string
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "bankctl",
		Short: "Operator tool for the banker ledger",
		Long: `bankctl works directly against the ledger database.

It inspects balances, the ledger and invoices, registers API apps and
mints funds into the banker account.

Examples:
  bankctl balance U012AB
  bankctl accounts
  bankctl ledger --failed
  bankctl invoices U012AB --payee
  bankctl invoices claimed
  bankctl invoices settle 01J9Z3K8M2Q4
  bankctl app register slack-bot s3cret-value --scopes transfer,checkBalance
  bankctl deposit 1000 initial supply`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !verbose {
				logrus.SetLevel(logrus.WarnLevel)
			}
			if cfgFile != "" {
				return os.Setenv("CONFIG_FILE", cfgFile)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML config file (overrides CONFIG_FILE)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every store write")

	cmd.AddCommand(
		newBalanceCmd(open),
		newAccountsCmd(open),
		newLedgerCmd(open),
		newInvoicesCmd(open),
		newAppCmd(open),
		newDepositCmd(open),
	)
	return cmd
}

// openServices connects to the configured database.
func openServices() (*app.Services, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	cfg.IsProd = true // keep SQL logs quiet
	gdb, err := db.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() { _ = db.Close(gdb) }
	return app.NewServices(cfg, sqlstore.New(gdb), nil), closeDB, nil
}
