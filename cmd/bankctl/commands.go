package main

import (
	"fmt"            // Output formatting
	"strconv"        // Amount parsing
	"strings"        // Joining arguments
	"text/tabwriter" // Column output
	"time"           // Timestamp formatting

	"github.com/spf13/cobra" // CLI framework

	"banker_api/internal/domain"  // Models and error kinds
	"banker_api/internal/invoice" // InvoiceManager
	"banker_api/internal/ledger"  // LedgerRecorder
)

func newBalanceCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <user>",
		Short: "Show a user's balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, done, err := open()
			if err != nil {
				return err
			}
			defer done()

			acct, err := s.Accounts.Get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("balance: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t(version %d)\n", acct.UserID, acct.Balance, acct.Version)
			return nil
		},
	}
}

func newAccountsCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List every account and the total in circulation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, done, err := open()
			if err != nil {
				return err
			}
			defer done()

			accts, err := s.Accounts.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("accounts: %w", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "USER\tBALANCE\tVERSION")
			var total int64
			for _, a := range accts {
				total += a.Balance
				fmt.Fprintf(w, "%s\t%d\t%d\n", a.UserID, a.Balance, a.Version)
			}
			fmt.Fprintf(w, "TOTAL\t%d\t\n", total)
			return w.Flush()
		},
	}
}

func newLedgerCmd(open opener) *cobra.Command {
	var (
		user   string
		failed bool
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "List ledger entries",
		Long: `List ledger entries, oldest first.

--failed shows only debits whose credit is still pending; each one needs
an operator to reconcile the credited account. An invoice paid that way
stays claimed; see "bankctl invoices claimed".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, done, err := open()
			if err != nil {
				return err
			}
			defer done()

			f := ledger.Filter{User: user, Limit: limit}
			if failed {
				ok := false
				f.Success = &ok
			}
			entries, err := s.Ledger.List(cmd.Context(), f)
			if err != nil {
				return fmt.Errorf("ledger: %w", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTIME\tFROM\tTO\tAMOUNT\tOK\tNOTE")
			for _, e := range entries {
				note := e.Note
				if e.AdminNote != nil {
					note = *e.AdminNote
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%t\t%s\n",
					e.ID, time.UnixMilli(e.Timestamp).UTC().Format(time.RFC3339), e.From, e.To, e.Amount, e.Success, note)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "only entries from or to this user")
	cmd.Flags().BoolVar(&failed, "failed", false, "only pending-credit entries")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "newest N entries, 0 for all")
	return cmd
}

func newInvoicesCmd(open opener) *cobra.Command {
	var payee bool
	cmd := &cobra.Command{
		Use:   "invoices <user>",
		Short: "List open invoices the user has to pay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, done, err := open()
			if err != nil {
				return err
			}
			defer done()

			role := invoice.Payer
			if payee {
				role = invoice.Payee
			}
			invoices, err := s.Invoices.ListPendingInvoices(cmd.Context(), args[0], role)
			if err != nil {
				return fmt.Errorf("invoices: %w", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tFROM\tTO\tAMOUNT\tREASON")
			for _, inv := range invoices {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", inv.ID, inv.From, inv.To, inv.Amount, inv.Reason)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&payee, "payee", false, "list invoices the user issued instead")
	cmd.AddCommand(newClaimedCmd(open), newResolveCmd(open, "release"), newResolveCmd(open, "settle"))
	return cmd
}

func newClaimedCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "claimed",
		Short: "List invoices stuck with a payment in progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, done, err := open()
			if err != nil {
				return err
			}
			defer done()

			invoices, err := s.Invoices.ListClaimedInvoices(cmd.Context())
			if err != nil {
				return fmt.Errorf("invoices: %w", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCLAIMED\tFROM\tTO\tAMOUNT\tREASON")
			for _, inv := range invoices {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					inv.ID, time.UnixMilli(inv.ClaimedAt).UTC().Format(time.RFC3339), inv.From, inv.To, inv.Amount, inv.Reason)
			}
			return w.Flush()
		},
	}
}

// newResolveCmd builds "release" or "settle" for a claimed invoice.
func newResolveCmd(open opener, action string) *cobra.Command {
	short := "Drop a stuck claim so the invoice can be paid or denied again"
	if action == "settle" {
		short = "Mark a claimed invoice Paid after reconciling it by hand"
	}
	return &cobra.Command{
		Use:   action + " <invoice-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, done, err := open()
			if err != nil {
				return err
			}
			defer done()

			resolve := s.Invoices.ReleaseInvoice
			if action == "settle" {
				resolve = s.Invoices.SettleInvoice
			}
			if err := resolve(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("%s: %w", action, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%sd invoice %s\n", action, args[0])
			return nil
		},
	}
}

func newAppCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "app",
		Short: "Manage API apps",
	}
	var scopes []string
	register := &cobra.Command{
		Use:   "register <app-id> <secret>",
		Short: "Register an app allowed to request tokens",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, done, err := open()
			if err != nil {
				return err
			}
			defer done()

			app, err := s.Apps.Register(cmd.Context(), args[0], args[1], scopes)
			if err != nil {
				return fmt.Errorf("register: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s with scopes [%s]\n", app.ID, strings.Join(app.Scopes, ","))
			return nil
		},
	}
	register.Flags().StringSliceVar(&scopes, "scopes", nil, "comma separated scopes to grant")
	cmd.AddCommand(register)
	return cmd
}

func newDepositCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "deposit <amount> <reason>...",
		Short: "Mint funds into the banker account",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return domain.Invalid("amount", "must be an integer")
			}
			s, done, err := open()
			if err != nil {
				return err
			}
			defer done()

			entry, err := s.Transfers.Deposit(cmd.Context(), amount, strings.Join(args[1:], " "))
			if err != nil {
				return fmt.Errorf("deposit: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deposited %d into %s (entry %s)\n", entry.Amount, entry.To, entry.ID)
			return nil
		},
	}
}
