package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/history"
)

// RegisterHistoryRoutes wires the read-only transaction history endpoints.
func RegisterHistoryRoutes(r fiber.Router, h *history.Handler) {
	r.Get("/wallets/:walletId/transactions", h.List)
	r.Get("/wallets/:walletId/transactions/export", h.Export)
}
