package wallet

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Response is the rendered form of a wallet.
type Response struct {
	ID      string `json:"id"`
	Balance string `json:"balance"`
}

// ToResponse renders a wallet with the fixed ledger scale.
func ToResponse(w ledger.Wallet) Response {
	return Response{ID: w.ID, Balance: ledger.FormatAmount(w.Balance)}
}

// Create provisions an empty wallet.
func (h *Handler) Create(c *fiber.Ctx) error {
	w, err := h.service.Create(c.UserContext())
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(ToResponse(w))
}

// Get returns the wallet and its current balance.
func (h *Handler) Get(c *fiber.Ctx) error {
	w, err := h.service.Resolve(c.UserContext(), c.Params("walletId"))
	if err != nil {
		if errors.Is(err, ledger.ErrWalletNotFound) {
			return fiber.NewError(http.StatusNotFound, "Wallet not found")
		}
		return err
	}
	return c.Status(http.StatusOK).JSON(ToResponse(w))
}
