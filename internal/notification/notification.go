package notification

import (
	"context"
	"log/slog"
)

const (
	// KindDeposit indicates a wallet was funded from outside the ledger.
	KindDeposit = "deposit"
	// KindTransfer indicates a wallet received funds from another wallet.
	KindTransfer = "transfer"
)

// Message describes a committed ledger event.
type Message struct {
	Kind          string
	WalletID      string
	Counterparty  string
	Amount        string
	TransactionID int64
}

// Notifier delivers notifications to downstream systems. It is only called after
// the ledger unit has committed.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	attrs := []any{
		slog.String("kind", message.Kind),
		slog.String("wallet_id", message.WalletID),
		slog.String("amount", message.Amount),
		slog.Int64("transaction_id", message.TransactionID),
	}
	if message.Counterparty != "" {
		attrs = append(attrs, slog.String("counterparty", message.Counterparty))
	}
	n.logger.InfoContext(ctx, "notification", attrs...)
	return nil
}
