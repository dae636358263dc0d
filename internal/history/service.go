// Package history serves the read side of the ledger: filtered, ordered views of
// a wallet's immutable transaction history and their JSON/CSV renderings.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

// TimeLayout is the canonical textual timestamp format for filters and output.
const TimeLayout = "2006-01-02 15:04:05"

// ErrInvalidDateFormat is returned when a filter timestamp does not parse.
var ErrInvalidDateFormat = errors.New("invalid date format")

// Query holds raw filter parameters as received from a caller.
type Query struct {
	Type     string
	DateFrom string
	DateTo   string
}

// ParseFilter validates raw parameters. Unknown types select the full history.
func ParseFilter(q Query) (ledger.Filter, error) {
	f := ledger.Filter{Direction: parseDirection(q.Type)}

	from, err := parseTime(q.DateFrom)
	if err != nil {
		return ledger.Filter{}, err
	}
	to, err := parseTime(q.DateTo)
	if err != nil {
		return ledger.Filter{}, err
	}
	f.CreatedFrom, f.CreatedTo = from, to
	return f, nil
}

func parseDirection(raw string) ledger.Direction {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "income", "incoming":
		return ledger.DirectionIncoming
	case "withdrawal", "outgoing":
		return ledger.DirectionOutgoing
	case "deposit", "deposit-only":
		return ledger.DirectionDeposit
	default:
		return ledger.DirectionAll
	}
}

func parseTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(TimeLayout, raw, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDateFormat, raw)
	}
	return &t, nil
}

// Service lists wallet histories.
type Service struct {
	ledger  ledger.Ledger
	wallets *wallet.Service
}

// NewService constructs a history service.
func NewService(ledger ledger.Ledger, wallets *wallet.Service) *Service {
	return &Service{ledger: ledger, wallets: wallets}
}

// List returns the wallet's transactions matching q, oldest first. The filter is
// validated before the store is queried.
func (s *Service) List(ctx context.Context, walletID string, q Query) ([]ledger.Transaction, error) {
	filter, err := ParseFilter(q)
	if err != nil {
		return nil, err
	}
	w, err := s.wallets.Resolve(ctx, walletID)
	if err != nil {
		return nil, err
	}
	return s.ledger.Transactions(ctx, w.ID, filter)
}
