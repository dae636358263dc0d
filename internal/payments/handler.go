package payments

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

// Handler exposes deposit and withdrawal endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Amounts are accepted as JSON numbers or numeric strings and parsed from their
// literal text, never through float64.
type depositRequest struct {
	Amount json.Number `json:"amount" form:"amount"`
}

type withdrawalRequest struct {
	Amount   json.Number `json:"amount" form:"amount"`
	WalletTo string      `json:"wallet_to" form:"wallet_to"`
}

// Deposit funds the wallet in the path.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "Wrong amount")
	}

	res, err := h.service.Deposit(c.UserContext(), DepositInput{
		WalletID: c.Params("walletId"),
		Amount:   req.Amount.String(),
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusCreated).JSON(wallet.ToResponse(res.Wallet))
}

// Withdrawal moves funds from the wallet in the path to wallet_to.
func (h *Handler) Withdrawal(c *fiber.Ctx) error {
	var req withdrawalRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "Wrong amount")
	}

	res, err := h.service.Withdraw(c.UserContext(), WithdrawInput{
		FromWalletID: c.Params("walletId"),
		ToWalletID:   req.WalletTo,
		Amount:       req.Amount.String(),
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusCreated).JSON(wallet.ToResponse(res.From))
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInsufficientFunds):
		return fiber.NewError(http.StatusBadRequest, "Wrong amount")
	case errors.Is(err, ledger.ErrWalletNotFound):
		return fiber.NewError(http.StatusNotFound, "Wallet not found")
	case errors.Is(err, ledger.ErrSameWallet):
		return fiber.NewError(http.StatusBadRequest, "Cannot transfer to the same wallet")
	case errors.Is(err, ledger.ErrConflict):
		return fiber.NewError(http.StatusConflict, "Transaction conflict, retry")
	default:
		return err
	}
}
