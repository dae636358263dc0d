package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
)

// IDLength is the fixed length of a wallet identifier.
const IDLength = 36

const createAttempts = 3

// Service creates and resolves wallets backed by the ledger.
type Service struct {
	ledger ledger.Ledger
	newID  func() string
}

// NewService builds a wallet service instance.
func NewService(ledger ledger.Ledger) *Service {
	return &Service{ledger: ledger, newID: uuid.NewString}
}

// Create provisions an empty wallet under a fresh identifier. Identifier
// collisions are retried with a new identifier.
func (s *Service) Create(ctx context.Context) (ledger.Wallet, error) {
	for attempt := 1; ; attempt++ {
		w, err := s.ledger.CreateWallet(ctx, s.newID())
		if err == nil {
			return w, nil
		}
		if !errors.Is(err, ledger.ErrWalletExists) || attempt == createAttempts {
			return ledger.Wallet{}, fmt.Errorf("create wallet: %w", err)
		}
	}
}

// Resolve looks a wallet up by exact identifier.
func (s *Service) Resolve(ctx context.Context, id string) (ledger.Wallet, error) {
	if len(id) != IDLength {
		return ledger.Wallet{}, ledger.ErrWalletNotFound
	}
	return s.ledger.Wallet(ctx, id)
}
