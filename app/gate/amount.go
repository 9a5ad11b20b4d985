package gate

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// AmountUnit is the unit a gateway expects amounts in. Amounts inside the
// service are always minor units.
type AmountUnit string

const (
	AmountUnitMinor AmountUnit = "minor"
	AmountUnitMajor AmountUnit = "major"
)

var ErrFractionalAmount = errors.New("amount is not representable in gateway unit")

var minorPerMajor = decimal.NewFromInt(10)

func ParseAmountUnit(raw string) (AmountUnit, error) {
	switch AmountUnit(raw) {
	case AmountUnitMinor, "":
		return AmountUnitMinor, nil
	case AmountUnitMajor:
		return AmountUnitMajor, nil
	default:
		return "", fmt.Errorf("unknown amount unit %q", raw)
	}
}

func ToGatewayAmount(amount int64, unit AmountUnit) (decimal.Decimal, error) {
	value := decimal.NewFromInt(amount)
	if unit != AmountUnitMajor {
		return value, nil
	}
	converted := value.Div(minorPerMajor)
	if !converted.IsInteger() {
		return decimal.Zero, fmt.Errorf("%w: %d", ErrFractionalAmount, amount)
	}
	return converted, nil
}

func FromGatewayAmount(value decimal.Decimal, unit AmountUnit) (int64, error) {
	if unit == AmountUnitMajor {
		value = value.Mul(minorPerMajor)
	}
	if !value.IsInteger() {
		return 0, fmt.Errorf("%w: %s", ErrFractionalAmount, value.String())
	}
	return value.IntPart(), nil
}
