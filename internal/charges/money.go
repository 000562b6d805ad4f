package charges

import (
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/learnbill-backend/pkg/errors"
)

// toCents converts a decimal price into minor units, rounding half up.
func toCents(price decimal.Decimal) (int64, error) {
	if price.IsNegative() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "learning service price must be non-negative")
	}
	return price.Shift(2).Round(0).IntPart(), nil
}
