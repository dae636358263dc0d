package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	pgCheckViolation      = "23514"
	pgForeignKeyViolation = "23503"
	pgNumericOutOfRange   = "22003"
	pgSerializationFail   = "40001"
	pgDeadlockDetected    = "40P01"
	pgLockNotAvailable    = "55P03"

	balanceConstraint = "wallets_balance_non_negative"
)

// PostgresLedger keeps wallet balances and the transaction history in PostgreSQL.
// Balance changes are conditional updates evaluated by the database inside the
// same transaction that inserts the history row.
type PostgresLedger struct {
	db          *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPostgresLedger constructs a Postgres-backed ledger. A positive lockTimeout
// bounds how long a unit waits for wallet row locks.
func NewPostgresLedger(db *pgxpool.Pool, lockTimeout time.Duration) *PostgresLedger {
	return &PostgresLedger{db: db, lockTimeout: lockTimeout}
}

// CreateWallet inserts an empty wallet row.
func (l *PostgresLedger) CreateWallet(ctx context.Context, id string) (Wallet, error) {
	const query = `INSERT INTO wallets (id, balance) VALUES ($1, 0)
        ON CONFLICT (id) DO NOTHING
        RETURNING balance`
	w := Wallet{ID: id}
	if err := l.db.QueryRow(ctx, query, id).Scan(&w.Balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletExists
		}
		return Wallet{}, fmt.Errorf("insert wallet: %w", err)
	}
	return w, nil
}

// Wallet returns the committed balance of a wallet.
func (l *PostgresLedger) Wallet(ctx context.Context, id string) (Wallet, error) {
	w := Wallet{ID: id}
	if err := l.db.QueryRow(ctx, `SELECT balance FROM wallets WHERE id = $1`, id).Scan(&w.Balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, fmt.Errorf("select wallet: %w", err)
	}
	return w, nil
}

// Deposit credits a wallet and records a source-less transaction in one unit.
func (l *PostgresLedger) Deposit(ctx context.Context, walletID string, amount decimal.Decimal) (Posting, error) {
	if err := ValidateAmount(amount); err != nil {
		return Posting{}, err
	}

	tx, err := l.begin(ctx)
	if err != nil {
		return Posting{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	to := Wallet{ID: walletID}
	const credit = `UPDATE wallets SET balance = balance + $1 WHERE id = $2 RETURNING balance`
	if err := tx.QueryRow(ctx, credit, amount, walletID).Scan(&to.Balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Posting{}, ErrWalletNotFound
		}
		return Posting{}, classify(err)
	}

	record, err := insertTransaction(ctx, tx, nil, walletID, amount)
	if err != nil {
		return Posting{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Posting{}, classify(err)
	}
	return Posting{Transaction: record, To: to}, nil
}

// Transfer debits fromID and credits toID in one unit. Both rows are locked in
// ascending id order before the conditional debit.
func (l *PostgresLedger) Transfer(ctx context.Context, fromID, toID string, amount decimal.Decimal) (Posting, error) {
	if err := ValidateAmount(amount); err != nil {
		return Posting{}, err
	}
	if fromID == toID {
		return Posting{}, ErrSameWallet
	}

	tx, err := l.begin(ctx)
	if err != nil {
		return Posting{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	lockOrder := []string{fromID, toID}
	if toID < fromID {
		lockOrder = []string{toID, fromID}
	}
	for _, id := range lockOrder {
		if err := lockWallet(ctx, tx, id); err != nil {
			return Posting{}, err
		}
	}

	from := Wallet{ID: fromID}
	const debit = `UPDATE wallets SET balance = balance - $1
        WHERE id = $2 AND balance >= $1
        RETURNING balance`
	if err := tx.QueryRow(ctx, debit, amount, fromID).Scan(&from.Balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Posting{}, ErrInsufficientFunds
		}
		return Posting{}, classify(err)
	}

	to := Wallet{ID: toID}
	const credit = `UPDATE wallets SET balance = balance + $1 WHERE id = $2 RETURNING balance`
	if err := tx.QueryRow(ctx, credit, amount, toID).Scan(&to.Balance); err != nil {
		return Posting{}, classify(err)
	}

	source := fromID
	record, err := insertTransaction(ctx, tx, &source, toID, amount)
	if err != nil {
		return Posting{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Posting{}, classify(err)
	}
	return Posting{Transaction: record, From: &from, To: to}, nil
}

// Transactions lists a wallet's history from a read-only snapshot, ordered by
// creation time then id.
func (l *PostgresLedger) Transactions(ctx context.Context, walletID string, filter Filter) ([]Transaction, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, classify(err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM wallets WHERE id = $1)`, walletID).Scan(&exists); err != nil {
		return nil, classify(err)
	}
	if !exists {
		return nil, ErrWalletNotFound
	}

	query, args := transactionsQuery(walletID, filter)
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Transaction, error) {
		var t Transaction
		err := row.Scan(&t.ID, &t.Created, &t.Amount, &t.WalletFrom, &t.WalletTo)
		t.Created = t.Created.UTC()
		return t, err
	})
	if err != nil {
		return nil, classify(err)
	}
	return out, tx.Commit(ctx)
}

func transactionsQuery(walletID string, filter Filter) (string, []any) {
	args := []any{walletID}
	var where []string

	switch filter.Direction {
	case DirectionIncoming:
		where = append(where, "wallet_to = $1")
	case DirectionOutgoing:
		where = append(where, "wallet_from = $1")
	case DirectionDeposit:
		where = append(where, "wallet_to = $1", "wallet_from IS NULL")
	default:
		where = append(where, "(wallet_to = $1 OR wallet_from = $1)")
	}
	if filter.CreatedFrom != nil {
		args = append(args, filter.CreatedFrom.UTC())
		where = append(where, fmt.Sprintf("created >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, filter.CreatedTo.UTC())
		where = append(where, fmt.Sprintf("created < $%d", len(args)))
	}

	query := `SELECT id, created, amount, wallet_from, wallet_to FROM transactions WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY created, id`
	return query, args
}

func (l *PostgresLedger) begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, classify(err)
	}
	if l.lockTimeout > 0 {
		timeout := fmt.Sprintf("%dms", l.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, timeout); err != nil {
			tx.Rollback(ctx) // nolint:errcheck
			return nil, classify(err)
		}
	}
	return tx, nil
}

func lockWallet(ctx context.Context, tx pgx.Tx, id string) error {
	var locked string
	if err := tx.QueryRow(ctx, `SELECT id FROM wallets WHERE id = $1 FOR UPDATE`, id).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrWalletNotFound
		}
		return classify(err)
	}
	return nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, from *string, to string, amount decimal.Decimal) (Transaction, error) {
	const query = `INSERT INTO transactions (created, amount, wallet_from, wallet_to)
        VALUES (date_trunc('second', clock_timestamp()), $1, $2, $3)
        RETURNING id, created`
	t := Transaction{Amount: amount, WalletFrom: from, WalletTo: to}
	if err := tx.QueryRow(ctx, query, amount, from, to).Scan(&t.ID, &t.Created); err != nil {
		return Transaction{}, classify(err)
	}
	t.Created = t.Created.UTC()
	return t, nil
}

// classify maps database failures onto ledger sentinels.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgCheckViolation:
		if pgErr.ConstraintName == balanceConstraint {
			return fmt.Errorf("%w: %s", ErrInsufficientFunds, pgErr.Message)
		}
		return fmt.Errorf("%w: %s", ErrInvalidAmount, pgErr.Message)
	case pgNumericOutOfRange:
		return fmt.Errorf("%w: %s", ErrInvalidAmount, pgErr.Message)
	case pgForeignKeyViolation:
		return fmt.Errorf("%w: %s", ErrWalletNotFound, pgErr.Message)
	case pgSerializationFail, pgDeadlockDetected, pgLockNotAvailable:
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
	}
	return err
}
