package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount is returned for non-positive, malformed or out of range amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientFunds occurs when the source wallet lacks the balance to cover
	// a withdrawal at commit time.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrWalletNotFound indicates no wallet row matches the identifier.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrWalletExists is returned when a freshly generated identifier is already taken.
	ErrWalletExists = errors.New("wallet exists")

	// ErrSameWallet rejects transfers whose source and destination are the same wallet.
	ErrSameWallet = errors.New("source and destination wallet are the same")

	// ErrConflict marks a transient failure (lock timeout, serialization failure,
	// deadlock). The unit was rolled back and may be retried as a whole.
	ErrConflict = errors.New("ledger conflict")
)

// Wallet is a balance holder. Balance is derived from the transaction history and
// only ever changes together with a transaction insert.
type Wallet struct {
	ID      string
	Balance decimal.Decimal
}

// Transaction is an immutable record of value moving into WalletTo, optionally
// from WalletFrom. A nil WalletFrom marks a deposit.
type Transaction struct {
	ID         int64
	Created    time.Time
	Amount     decimal.Decimal
	WalletFrom *string
	WalletTo   string
}

// IsDeposit reports whether the transaction funds a wallet from outside the ledger.
func (t Transaction) IsDeposit() bool {
	return t.WalletFrom == nil
}

// Posting captures the committed outcome of a deposit or transfer. Balances are the
// values written inside the atomic unit, not re-read afterwards.
type Posting struct {
	Transaction Transaction
	From        *Wallet
	To          Wallet
}

// Ledger defines the contract implemented by ledger backends (e.g. Postgres).
type Ledger interface {
	CreateWallet(ctx context.Context, id string) (Wallet, error)
	Wallet(ctx context.Context, id string) (Wallet, error)
	Deposit(ctx context.Context, walletID string, amount decimal.Decimal) (Posting, error)
	Transfer(ctx context.Context, fromID, toID string, amount decimal.Decimal) (Posting, error)
	Transactions(ctx context.Context, walletID string, filter Filter) ([]Transaction, error)
}
