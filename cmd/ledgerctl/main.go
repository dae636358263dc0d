// Command ledgerctl runs wallet operations directly against the Postgres ledger.
//
//	ledgerctl create
//	ledgerctl deposit -wallet ID -amount 10.50
//	ledgerctl withdraw -from ID -to ID -amount 2
//	ledgerctl statement -wallet ID [-type income] [-from "2020-01-01 00:00:00"] [-to ...] [-csv]
//	ledgerctl migrate
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/olekukonko/tablewriter"

	"github.com/congo-pay/wallet_ledger/internal/config"
	"github.com/congo-pay/wallet_ledger/internal/history"
	"github.com/congo-pay/wallet_ledger/internal/infra"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/logging"
	"github.com/congo-pay/wallet_ledger/internal/notification"
	"github.com/congo-pay/wallet_ledger/internal/payments"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

var errUsage = errors.New("usage: ledgerctl create|deposit|withdraw|statement|migrate [flags]")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := realMain(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "ledgerctl: %v\n", err)
		os.Exit(1)
	}
}

func realMain(ctx context.Context, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL must be set")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL, "ledgerctl")
	if err != nil {
		return err
	}
	defer db.Close()

	if len(args) > 0 && args[0] == "migrate" {
		applied, err := infra.RunMigrations(ctx, db)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "applied %d migration(s) %v\n", len(applied), applied)
		return nil
	}

	led := ledger.NewPostgresLedger(db, cfg.LedgerLockTimeout)
	app := newApp(led, payments.Options{MaxAttempts: cfg.LedgerMaxAttempts, Logger: logger}, notification.NewLoggerNotifier(logger))
	return app.run(ctx, args, os.Stdout)
}

type cli struct {
	wallets  *wallet.Service
	payments *payments.Service
	history  *history.Service
}

func newApp(led ledger.Ledger, opts payments.Options, notifier notification.Notifier) *cli {
	wallets := wallet.NewService(led)
	return &cli{
		wallets:  wallets,
		payments: payments.NewService(led, wallets, notifier, opts),
		history:  history.NewService(led, wallets),
	}
}

func (a *cli) run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "create":
		w, err := a.wallets.Create(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\t%s\n", w.ID, ledger.FormatAmount(w.Balance))
		return nil

	case "deposit":
		fs := flag.NewFlagSet("deposit", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		walletID := fs.String("wallet", "", "wallet id to credit")
		amount := fs.String("amount", "", "positive amount, up to 4 decimals")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		res, err := a.payments.Deposit(ctx, payments.DepositInput{WalletID: *walletID, Amount: *amount})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\t%s\n", res.Wallet.ID, ledger.FormatAmount(res.Wallet.Balance))
		return nil

	case "withdraw":
		fs := flag.NewFlagSet("withdraw", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		from := fs.String("from", "", "wallet id to debit")
		to := fs.String("to", "", "wallet id to credit")
		amount := fs.String("amount", "", "positive amount, up to 4 decimals")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		res, err := a.payments.Withdraw(ctx, payments.WithdrawInput{FromWalletID: *from, ToWalletID: *to, Amount: *amount})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\t%s\n", res.From.ID, ledger.FormatAmount(res.From.Balance))
		fmt.Fprintf(out, "%s\t%s\n", res.To.ID, ledger.FormatAmount(res.To.Balance))
		return nil

	case "statement":
		fs := flag.NewFlagSet("statement", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		walletID := fs.String("wallet", "", "wallet id")
		kind := fs.String("type", "", "income, deposit, withdrawal or empty for all")
		from := fs.String("from", "", "inclusive lower bound, "+history.TimeLayout)
		to := fs.String("to", "", "exclusive upper bound, "+history.TimeLayout)
		asCSV := fs.Bool("csv", false, "write CSV instead of a table")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		txs, err := a.history.List(ctx, *walletID, history.Query{Type: *kind, DateFrom: *from, DateTo: *to})
		if err != nil {
			return err
		}
		if *asCSV {
			return history.WriteCSV(out, txs)
		}
		w, err := a.wallets.Resolve(ctx, *walletID)
		if err != nil {
			return err
		}
		printStatement(out, w, txs)
		return nil

	default:
		return errUsage
	}
}

// printStatement renders txs as a table from the point of view of w. Debits
// are shown with a leading minus.
func printStatement(out io.Writer, w ledger.Wallet, txs []ledger.Transaction) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"ID", "Created", "Type", "Counterparty", "Amount"})
	for _, tx := range txs {
		kind, counterparty, amount := "deposit", "", ledger.FormatAmount(tx.Amount)
		switch {
		case tx.IsDeposit():
		case *tx.WalletFrom == w.ID:
			kind, counterparty, amount = "outgoing", tx.WalletTo, "-"+amount
		default:
			kind, counterparty = "incoming", *tx.WalletFrom
		}
		table.Append([]string{
			fmt.Sprint(tx.ID),
			tx.Created.UTC().Format(history.TimeLayout),
			kind,
			counterparty,
			amount,
		})
	}
	table.SetFooter([]string{"", "", "", "Balance", ledger.FormatAmount(w.Balance)})
	table.Render()
}
