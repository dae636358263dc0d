package payments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/notification"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

type testNotifier struct {
	mu       sync.Mutex
	messages []notification.Message
}

func (n *testNotifier) Send(_ context.Context, msg notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return nil
}

func (n *testNotifier) last() notification.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.messages[len(n.messages)-1]
}

type fixture struct {
	ledger   ledger.Ledger
	wallets  *wallet.Service
	notifier *testNotifier
	svc      *Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	led := ledger.NewInMemory()
	wallets := wallet.NewService(led)
	notifier := &testNotifier{}
	return fixture{
		ledger:   led,
		wallets:  wallets,
		notifier: notifier,
		svc:      NewService(led, wallets, notifier, Options{}),
	}
}

func (f fixture) wallet(t *testing.T, funding string) ledger.Wallet {
	t.Helper()
	ctx := context.Background()
	w, err := f.wallets.Create(ctx)
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	if funding != "" {
		if _, err := f.svc.Deposit(ctx, DepositInput{WalletID: w.ID, Amount: funding}); err != nil {
			t.Fatalf("fund wallet: %v", err)
		}
	}
	return w
}

func (f fixture) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	w, err := f.wallets.Resolve(context.Background(), id)
	if err != nil {
		t.Fatalf("resolve %s: %v", id, err)
	}
	return w.Balance
}

func (f fixture) history(t *testing.T, id string) []ledger.Transaction {
	t.Helper()
	txs, err := f.ledger.Transactions(context.Background(), id, ledger.Filter{})
	if err != nil {
		t.Fatalf("transactions %s: %v", id, err)
	}
	return txs
}

func TestDeposit(t *testing.T) {
	f := newFixture(t)
	w := f.wallet(t, "")

	res, err := f.svc.Deposit(context.Background(), DepositInput{WalletID: w.ID, Amount: "100.01"})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if ledger.FormatAmount(res.Wallet.Balance) != "100.0100" {
		t.Fatalf("expected balance 100.0100, got %s", ledger.FormatAmount(res.Wallet.Balance))
	}
	if !res.Transaction.IsDeposit() || res.Transaction.WalletTo != w.ID {
		t.Fatalf("unexpected transaction: %+v", res.Transaction)
	}
	if msg := f.notifier.last(); msg.Kind != notification.KindDeposit || msg.WalletID != w.ID {
		t.Fatalf("expected deposit notification, got %+v", msg)
	}
}

func TestDepositInvalidAmount(t *testing.T) {
	f := newFixture(t)
	w := f.wallet(t, "")

	for _, amount := range []string{"-10", "0", "abc", ""} {
		if _, err := f.svc.Deposit(context.Background(), DepositInput{WalletID: w.ID, Amount: amount}); !errors.Is(err, ledger.ErrInvalidAmount) {
			t.Fatalf("deposit %q: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
	if !f.balance(t, w.ID).IsZero() {
		t.Fatalf("expected balance unchanged")
	}
	if len(f.history(t, w.ID)) != 0 {
		t.Fatalf("expected no transactions")
	}
}

func TestDepositUnknownWallet(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Deposit(context.Background(), DepositInput{WalletID: "123", Amount: "1"}); !errors.Is(err, ledger.ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}
}

func TestWithdrawSuccess(t *testing.T) {
	f := newFixture(t)
	from := f.wallet(t, "100")
	to := f.wallet(t, "")

	res, err := f.svc.Withdraw(context.Background(), WithdrawInput{FromWalletID: from.ID, ToWalletID: to.ID, Amount: "12.34"})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !res.From.Balance.Equal(decimal.RequireFromString("87.66")) || !res.To.Balance.Equal(decimal.RequireFromString("12.34")) {
		t.Fatalf("unexpected balances: from=%s to=%s", res.From.Balance, res.To.Balance)
	}
	if !f.balance(t, from.ID).Equal(res.From.Balance) || !f.balance(t, to.ID).Equal(res.To.Balance) {
		t.Fatalf("returned balances differ from committed state")
	}

	txs := f.history(t, to.ID)
	if len(txs) != 1 {
		t.Fatalf("expected exactly one transaction for destination, got %d", len(txs))
	}
	tx := txs[0]
	if !tx.Amount.Equal(decimal.RequireFromString("12.34")) || tx.WalletFrom == nil || *tx.WalletFrom != from.ID || tx.WalletTo != to.ID {
		t.Fatalf("unexpected transaction: %+v", tx)
	}
	if msg := f.notifier.last(); msg.Kind != notification.KindTransfer || msg.WalletID != to.ID || msg.Counterparty != from.ID {
		t.Fatalf("expected transfer notification, got %+v", msg)
	}
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	from := f.wallet(t, "100")
	to := f.wallet(t, "")

	_, err := f.svc.Withdraw(context.Background(), WithdrawInput{FromWalletID: from.ID, ToWalletID: to.ID, Amount: "110"})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if !f.balance(t, from.ID).Equal(decimal.NewFromInt(100)) || !f.balance(t, to.ID).IsZero() {
		t.Fatalf("balances changed after rejected withdrawal")
	}
	if len(f.history(t, from.ID)) != 1 {
		t.Fatalf("expected only the funding deposit in history")
	}
}

func TestWithdrawRejections(t *testing.T) {
	f := newFixture(t)
	from := f.wallet(t, "10")
	to := f.wallet(t, "")
	ctx := context.Background()

	if _, err := f.svc.Withdraw(ctx, WithdrawInput{FromWalletID: from.ID, ToWalletID: "missing", Amount: "1"}); !errors.Is(err, ledger.ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}
	if _, err := f.svc.Withdraw(ctx, WithdrawInput{FromWalletID: from.ID, ToWalletID: from.ID, Amount: "1"}); !errors.Is(err, ledger.ErrSameWallet) {
		t.Fatalf("expected ErrSameWallet, got %v", err)
	}
	if _, err := f.svc.Withdraw(ctx, WithdrawInput{FromWalletID: from.ID, ToWalletID: to.ID, Amount: "-1"}); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if !f.balance(t, from.ID).Equal(decimal.NewFromInt(10)) {
		t.Fatalf("balance changed after rejections")
	}
}

func TestWithdrawConcurrentRaceForSameFunds(t *testing.T) {
	f := newFixture(t)
	const workers = 25
	from := f.wallet(t, "240") // (workers-1) x 10
	to := f.wallet(t, "")

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		successes    int
		insufficient int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.Withdraw(context.Background(), WithdrawInput{FromWalletID: from.ID, ToWalletID: to.ID, Amount: "10"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ledger.ErrInsufficientFunds):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if successes != workers-1 || insufficient != 1 {
		t.Fatalf("expected %d successes and 1 insufficient, got %d and %d", workers-1, successes, insufficient)
	}
	if !f.balance(t, from.ID).IsZero() {
		t.Fatalf("expected drained source wallet, got %s", f.balance(t, from.ID))
	}
	if !f.balance(t, to.ID).Equal(decimal.NewFromInt(240)) {
		t.Fatalf("expected destination 240, got %s", f.balance(t, to.ID))
	}
}

// conflictLedger fails the first n mutating calls with ErrConflict.
type conflictLedger struct {
	ledger.Ledger
	mu        sync.Mutex
	remaining int
	calls     int
}

func (l *conflictLedger) conflict() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.remaining > 0 {
		l.remaining--
		return true
	}
	return false
}

func (l *conflictLedger) Deposit(ctx context.Context, id string, amount decimal.Decimal) (ledger.Posting, error) {
	if l.conflict() {
		return ledger.Posting{}, ledger.ErrConflict
	}
	return l.Ledger.Deposit(ctx, id, amount)
}

func (l *conflictLedger) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) (ledger.Posting, error) {
	if l.conflict() {
		return ledger.Posting{}, ledger.ErrConflict
	}
	return l.Ledger.Transfer(ctx, from, to, amount)
}

func TestRetriesConflictsWithinBudget(t *testing.T) {
	led := &conflictLedger{Ledger: ledger.NewInMemory(), remaining: 2}
	wallets := wallet.NewService(led)
	svc := NewService(led, wallets, nil, Options{MaxAttempts: 3, Backoff: time.Millisecond})
	ctx := context.Background()

	w, _ := wallets.Create(ctx)
	res, err := svc.Deposit(ctx, DepositInput{WalletID: w.ID, Amount: "5"})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if led.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", led.calls)
	}
	if !res.Wallet.Balance.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected single application of the deposit, got %s", res.Wallet.Balance)
	}
}

func TestRetriesGiveUpAfterBudget(t *testing.T) {
	led := &conflictLedger{Ledger: ledger.NewInMemory(), remaining: 10}
	wallets := wallet.NewService(led)
	svc := NewService(led, wallets, nil, Options{MaxAttempts: 2, Backoff: time.Millisecond})
	ctx := context.Background()

	from, _ := wallets.Create(ctx)
	to, _ := wallets.Create(ctx)
	_, err := svc.Withdraw(ctx, WithdrawInput{FromWalletID: from.ID, ToWalletID: to.ID, Amount: "1"})
	if !errors.Is(err, ledger.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if led.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", led.calls)
	}
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	led := &conflictLedger{Ledger: ledger.NewInMemory(), remaining: 10}
	wallets := wallet.NewService(led)
	svc := NewService(led, wallets, nil, Options{MaxAttempts: 5, Backoff: time.Hour})

	w, _ := wallets.Create(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := svc.Deposit(ctx, DepositInput{WalletID: w.ID, Amount: "1"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
