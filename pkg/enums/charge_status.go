package enums

import "fmt"

// ChargeStatus tracks a session charge from pending to a terminal state.
type ChargeStatus string

const (
	ChargeStatusPending    ChargeStatus = "PENDING"
	ChargeStatusAuthorized ChargeStatus = "AUTHORIZED"
	ChargeStatusCaptured   ChargeStatus = "CAPTURED"
	ChargeStatusFailed     ChargeStatus = "FAILED"
)

var validChargeStatuses = []ChargeStatus{
	ChargeStatusPending,
	ChargeStatusAuthorized,
	ChargeStatusCaptured,
	ChargeStatusFailed,
}

// String implements fmt.Stringer.
func (c ChargeStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is known.
func (c ChargeStatus) IsValid() bool {
	for _, candidate := range validChargeStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseChargeStatus converts raw input into a ChargeStatus.
func ParseChargeStatus(value string) (ChargeStatus, error) {
	for _, candidate := range validChargeStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid charge status %q", value)
}

// IsTerminal reports whether no further transition is allowed.
func (c ChargeStatus) IsTerminal() bool {
	return c == ChargeStatusCaptured || c == ChargeStatusFailed
}
