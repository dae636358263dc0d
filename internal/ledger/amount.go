package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// AmountScale is the number of fractional digits stored for amounts and balances.
	AmountScale = 4
	// AmountDigits is the total number of significant digits a stored amount may carry.
	AmountDigits = 12
)

// MaxAmount is the largest value a numeric(12,4) column holds.
var MaxAmount = decimal.New(1, AmountDigits-AmountScale).Sub(decimal.New(1, -AmountScale))

// ParseAmount converts a decimal string into a strictly positive fixed-point amount.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: amount is required", ErrInvalidAmount)
	}
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q is not a decimal", ErrInvalidAmount, raw)
	}
	if err := ValidateAmount(amount); err != nil {
		return decimal.Decimal{}, err
	}
	return amount, nil
}

// ValidateAmount checks sign, scale and magnitude of an amount. Scale counts the
// fractional digits as written, so "12.340000" is rejected while "1e3" is not.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	if amount.Exponent() < -AmountScale {
		return fmt.Errorf("%w: at most %d fractional digits", ErrInvalidAmount, AmountScale)
	}
	if amount.GreaterThan(MaxAmount) {
		return fmt.Errorf("%w: amount exceeds %s", ErrInvalidAmount, FormatAmount(MaxAmount))
	}
	return nil
}

// FormatAmount renders an amount with the fixed ledger scale, e.g. "12.3400".
func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(AmountScale)
}
