package enums

import "fmt"

type ChargeType string

const (
	ChargeTypeSession   ChargeType = "SESSION"
	ChargeTypeNoShowFee ChargeType = "NO_SHOW_FEE"
)

var validChargeTypes = []ChargeType{
	ChargeTypeSession,
	ChargeTypeNoShowFee,
}

// String implements fmt.Stringer.
func (c ChargeType) String() string {
	return string(c)
}

// IsValid reports whether the value is known.
func (c ChargeType) IsValid() bool {
	for _, candidate := range validChargeTypes {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseChargeType converts raw input into a ChargeType.
func ParseChargeType(value string) (ChargeType, error) {
	for _, candidate := range validChargeTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid charge type %q", value)
}
