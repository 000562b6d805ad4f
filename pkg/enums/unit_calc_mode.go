package enums

import "fmt"

// UnitCalcMode selects how billed minutes are rounded into units.
type UnitCalcMode string

const (
	UnitCalcNone  UnitCalcMode = "NONE"
	UnitCalcFloor UnitCalcMode = "FLOOR"
	UnitCalcCeil  UnitCalcMode = "CEIL"
	UnitCalcRound UnitCalcMode = "ROUND"
)

var validUnitCalcModes = []UnitCalcMode{
	UnitCalcNone,
	UnitCalcFloor,
	UnitCalcCeil,
	UnitCalcRound,
}

// String implements fmt.Stringer.
func (u UnitCalcMode) String() string {
	return string(u)
}

// IsValid reports whether the value is known.
func (u UnitCalcMode) IsValid() bool {
	for _, candidate := range validUnitCalcModes {
		if candidate == u {
			return true
		}
	}
	return false
}

// ParseUnitCalcMode converts raw input into a UnitCalcMode.
func ParseUnitCalcMode(value string) (UnitCalcMode, error) {
	for _, candidate := range validUnitCalcModes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid unit calc mode %q", value)
}
