package ledger

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// walletRow owns its id. Ids handed in by callers may alias request buffers, so
// everything the ledger stores or returns uses row.id.
type walletRow struct {
	id      string
	mu      sync.Mutex
	balance decimal.Decimal
}

type inMemoryLedger struct {
	mu      sync.RWMutex
	wallets map[string]*walletRow

	logMu  sync.RWMutex
	log    []Transaction
	nextID int64

	now func() time.Time
}

// Option customises the in-memory ledger.
type Option func(*inMemoryLedger)

// WithClock overrides the commit timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *inMemoryLedger) { l.now = now }
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit tests and
// local development. Wallet rows carry their own lock; multi-row units acquire
// them in ascending id order.
func NewInMemory(opts ...Option) Ledger {
	l := &inMemoryLedger{
		wallets: make(map[string]*walletRow),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *inMemoryLedger) CreateWallet(_ context.Context, id string) (Wallet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.wallets[id]; exists {
		return Wallet{}, ErrWalletExists
	}
	row := &walletRow{id: strings.Clone(id), balance: decimal.Zero}
	l.wallets[row.id] = row
	return Wallet{ID: row.id, Balance: decimal.Zero}, nil
}

func (l *inMemoryLedger) Wallet(_ context.Context, id string) (Wallet, error) {
	row, err := l.row(id)
	if err != nil {
		return Wallet{}, err
	}
	row.mu.Lock()
	defer row.mu.Unlock()
	return Wallet{ID: row.id, Balance: row.balance}, nil
}

func (l *inMemoryLedger) Deposit(ctx context.Context, walletID string, amount decimal.Decimal) (Posting, error) {
	if err := ValidateAmount(amount); err != nil {
		return Posting{}, err
	}
	row, err := l.row(walletID)
	if err != nil {
		return Posting{}, err
	}

	row.mu.Lock()
	defer row.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Posting{}, err
	}

	balance := row.balance.Add(amount)
	if balance.GreaterThan(MaxAmount) {
		return Posting{}, ErrInvalidAmount
	}

	tx := l.append(nil, row.id, amount)
	row.balance = balance

	return Posting{Transaction: tx, To: Wallet{ID: row.id, Balance: balance}}, nil
}

func (l *inMemoryLedger) Transfer(ctx context.Context, fromID, toID string, amount decimal.Decimal) (Posting, error) {
	if err := ValidateAmount(amount); err != nil {
		return Posting{}, err
	}
	if fromID == toID {
		return Posting{}, ErrSameWallet
	}
	from, err := l.row(fromID)
	if err != nil {
		return Posting{}, err
	}
	to, err := l.row(toID)
	if err != nil {
		return Posting{}, err
	}

	first, second := from, to
	if toID < fromID {
		first, second = to, from
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Posting{}, err
	}
	if from.balance.LessThan(amount) {
		return Posting{}, ErrInsufficientFunds
	}
	toBalance := to.balance.Add(amount)
	if toBalance.GreaterThan(MaxAmount) {
		return Posting{}, ErrInvalidAmount
	}
	fromBalance := from.balance.Sub(amount)

	source := from.id
	tx := l.append(&source, to.id, amount)
	from.balance = fromBalance
	to.balance = toBalance

	return Posting{
		Transaction: tx,
		From:        &Wallet{ID: from.id, Balance: fromBalance},
		To:          Wallet{ID: to.id, Balance: toBalance},
	}, nil
}

func (l *inMemoryLedger) Transactions(_ context.Context, walletID string, filter Filter) ([]Transaction, error) {
	if _, err := l.row(walletID); err != nil {
		return nil, err
	}

	l.logMu.RLock()
	out := make([]Transaction, 0)
	for _, tx := range l.log {
		if filter.Matches(walletID, tx) {
			out = append(out, tx)
		}
	}
	l.logMu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID < out[j].ID
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out, nil
}

func (l *inMemoryLedger) row(id string) (*walletRow, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	row, ok := l.wallets[id]
	if !ok {
		return nil, ErrWalletNotFound
	}
	return row, nil
}

// append records a transaction. Callers hold the row locks of every wallet it touches.
func (l *inMemoryLedger) append(from *string, to string, amount decimal.Decimal) Transaction {
	l.logMu.Lock()
	defer l.logMu.Unlock()
	l.nextID++
	tx := Transaction{
		ID:         l.nextID,
		Created:    l.now().UTC().Truncate(time.Second),
		Amount:     amount,
		WalletFrom: from,
		WalletTo:   to,
	}
	l.log = append(l.log, tx)
	return tx
}
