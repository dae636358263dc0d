package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/payments"
)

// RegisterPaymentRoutes wires the balance-changing endpoints. limit runs before
// each write and may be a pass-through.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler, limit fiber.Handler) {
	r.Post("/wallets/:walletId/transactions/deposit", limit, h.Deposit)
	r.Post("/wallets/:walletId/transactions/withdrawal", limit, h.Withdrawal)
}
