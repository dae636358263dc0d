package history

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
)

// Handler exposes transaction history endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a history handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// List returns the filtered history as JSON.
func (h *Handler) List(c *fiber.Ctx) error {
	txs, err := h.list(c)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(Render(txs))
}

// Export returns the filtered history as a CSV attachment.
func (h *Handler) Export(c *fiber.Ctx) error {
	txs, err := h.list(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, txs); err != nil {
		return err
	}
	c.Attachment("transactions.csv")
	return c.Status(http.StatusOK).Send(buf.Bytes())
}

func (h *Handler) list(c *fiber.Ctx) ([]ledger.Transaction, error) {
	txs, err := h.service.List(c.UserContext(), c.Params("walletId"), Query{
		Type:     c.Query("type"),
		DateFrom: c.Query("date_from"),
		DateTo:   c.Query("date_to"),
	})
	switch {
	case err == nil:
		return txs, nil
	case errors.Is(err, ErrInvalidDateFormat):
		return nil, fiber.NewError(http.StatusBadRequest, "Wrong date format")
	case errors.Is(err, ledger.ErrWalletNotFound):
		return nil, fiber.NewError(http.StatusNotFound, "Wallet not found")
	default:
		return nil, err
	}
}
