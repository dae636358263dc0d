package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/logging"
	"github.com/congo-pay/wallet_ledger/internal/notification"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

const (
	defaultMaxAttempts = 3
	defaultBackoff     = 20 * time.Millisecond
)

// Service executes deposits and wallet-to-wallet withdrawals as single ledger units.
type Service struct {
	ledger      ledger.Ledger
	wallets     *wallet.Service
	notifier    notification.Notifier
	logger      *slog.Logger
	maxAttempts int
	backoff     time.Duration
}

// Options tunes the contention retry policy. Zero values fall back to defaults.
type Options struct {
	MaxAttempts int
	Backoff     time.Duration
	Logger      *slog.Logger
}

// NewService constructs a payment service.
func NewService(ledger ledger.Ledger, wallets *wallet.Service, notifier notification.Notifier, opts Options) *Service {
	s := &Service{
		ledger:      ledger,
		wallets:     wallets,
		notifier:    notifier,
		logger:      opts.Logger,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.backoff <= 0 {
		s.backoff = defaultBackoff
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	return s
}

// DepositInput captures a funding request. Amount is a decimal string.
type DepositInput struct {
	WalletID string
	Amount   string
}

// DepositResult is the committed state after a deposit.
type DepositResult struct {
	Wallet      ledger.Wallet
	Transaction ledger.Transaction
}

// WithdrawInput captures the data needed to move funds between wallets.
type WithdrawInput struct {
	FromWalletID string
	ToWalletID   string
	Amount       string
}

// WithdrawResult is the committed state of both wallets after a withdrawal.
type WithdrawResult struct {
	From        ledger.Wallet
	To          ledger.Wallet
	Transaction ledger.Transaction
}

// Deposit credits a wallet from outside the ledger.
func (s *Service) Deposit(ctx context.Context, input DepositInput) (DepositResult, error) {
	amount, err := ledger.ParseAmount(input.Amount)
	if err != nil {
		return DepositResult{}, err
	}
	w, err := s.wallets.Resolve(ctx, input.WalletID)
	if err != nil {
		return DepositResult{}, err
	}

	var posting ledger.Posting
	err = s.withRetry(ctx, "deposit", func() error {
		var err error
		posting, err = s.ledger.Deposit(ctx, w.ID, amount)
		return err
	})
	if err != nil {
		return DepositResult{}, err
	}

	s.logger.DebugContext(ctx, "deposit committed",
		slog.String("wallet_id", w.ID),
		slog.Int64("transaction_id", posting.Transaction.ID),
	)
	s.notify(ctx, notification.Message{
		Kind:          notification.KindDeposit,
		WalletID:      w.ID,
		Amount:        ledger.FormatAmount(amount),
		TransactionID: posting.Transaction.ID,
	})

	return DepositResult{Wallet: posting.To, Transaction: posting.Transaction}, nil
}

// Withdraw moves funds from one wallet to another. The balance check happens in
// the ledger unit that performs the debit.
func (s *Service) Withdraw(ctx context.Context, input WithdrawInput) (WithdrawResult, error) {
	amount, err := ledger.ParseAmount(input.Amount)
	if err != nil {
		return WithdrawResult{}, err
	}
	from, err := s.wallets.Resolve(ctx, input.FromWalletID)
	if err != nil {
		return WithdrawResult{}, err
	}
	to, err := s.wallets.Resolve(ctx, input.ToWalletID)
	if err != nil {
		return WithdrawResult{}, err
	}
	if from.ID == to.ID {
		return WithdrawResult{}, ledger.ErrSameWallet
	}

	var posting ledger.Posting
	err = s.withRetry(ctx, "withdraw", func() error {
		var err error
		posting, err = s.ledger.Transfer(ctx, from.ID, to.ID, amount)
		return err
	})
	if err != nil {
		return WithdrawResult{}, err
	}

	s.logger.DebugContext(ctx, "withdrawal committed",
		slog.String("from_wallet_id", from.ID),
		slog.String("to_wallet_id", to.ID),
		slog.Int64("transaction_id", posting.Transaction.ID),
	)
	s.notify(ctx, notification.Message{
		Kind:          notification.KindTransfer,
		WalletID:      to.ID,
		Counterparty:  from.ID,
		Amount:        ledger.FormatAmount(amount),
		TransactionID: posting.Transaction.ID,
	})

	return WithdrawResult{From: *posting.From, To: posting.To, Transaction: posting.Transaction}, nil
}

// withRetry reruns a ledger unit that was rolled back because of contention.
func (s *Service) withRetry(ctx context.Context, op string, unit func() error) error {
	for attempt := 1; ; attempt++ {
		err := unit()
		if err == nil || !errors.Is(err, ledger.ErrConflict) {
			return err
		}
		if attempt == s.maxAttempts {
			return fmt.Errorf("%s after %d attempts: %w", op, attempt, err)
		}

		s.logger.WarnContext(ctx, "ledger conflict, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)

		timer := time.NewTimer(s.backoff * time.Duration(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "notification failed", slog.String("kind", msg.Kind), slog.Any("error", err))
	}
}
