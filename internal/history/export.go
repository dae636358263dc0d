package history

import (
	"encoding/csv"
	"io"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
)

// Item is the rendered form of a transaction.
type Item struct {
	Created    string  `json:"created"`
	Amount     string  `json:"amount"`
	WalletFrom *string `json:"wallet_from,omitempty"`
	WalletTo   string  `json:"wallet_to"`
}

// Render converts transactions into their rendered form, preserving order.
func Render(txs []ledger.Transaction) []Item {
	items := make([]Item, 0, len(txs))
	for _, tx := range txs {
		items = append(items, Item{
			Created:    tx.Created.UTC().Format(TimeLayout),
			Amount:     ledger.FormatAmount(tx.Amount),
			WalletFrom: tx.WalletFrom,
			WalletTo:   tx.WalletTo,
		})
	}
	return items
}

var csvHeader = []string{"created", "from", "to", "amount"}

// WriteCSV writes transactions as CSV with a header row. Deposits have an empty
// "from" column.
func WriteCSV(w io.Writer, txs []ledger.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, item := range Render(txs) {
		from := ""
		if item.WalletFrom != nil {
			from = *item.WalletFrom
		}
		if err := cw.Write([]string{item.Created, from, item.WalletTo, item.Amount}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
