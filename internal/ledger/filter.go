package ledger

import "time"

// Direction selects which side of a wallet's history a query returns.
type Direction string

const (
	// DirectionAll returns incoming and outgoing transactions.
	DirectionAll Direction = "all"
	// DirectionIncoming returns transactions credited to the wallet, deposits included.
	DirectionIncoming Direction = "incoming"
	// DirectionOutgoing returns transactions debited from the wallet.
	DirectionOutgoing Direction = "outgoing"
	// DirectionDeposit returns incoming transactions without a source wallet.
	DirectionDeposit Direction = "deposit-only"
)

// Filter narrows a wallet's transaction history. CreatedFrom is inclusive and
// CreatedTo exclusive; nil bounds are open.
type Filter struct {
	Direction   Direction
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// Matches reports whether t belongs to walletID's view under the filter.
func (f Filter) Matches(walletID string, t Transaction) bool {
	incoming := t.WalletTo == walletID
	outgoing := t.WalletFrom != nil && *t.WalletFrom == walletID

	switch f.Direction {
	case DirectionIncoming:
		if !incoming {
			return false
		}
	case DirectionOutgoing:
		if !outgoing {
			return false
		}
	case DirectionDeposit:
		if !incoming || !t.IsDeposit() {
			return false
		}
	default:
		if !incoming && !outgoing {
			return false
		}
	}

	if f.CreatedFrom != nil && t.Created.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && !t.Created.Before(*f.CreatedTo) {
		return false
	}
	return true
}
