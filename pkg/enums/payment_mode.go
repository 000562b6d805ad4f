package enums

import "fmt"

// PaymentMode is the coverage mechanism used to settle a session charge.
type PaymentMode string

const (
	PaymentModePayPerEvent  PaymentMode = "PAY_PER_EVENT"
	PaymentModeToken        PaymentMode = "TOKEN"
	PaymentModeSubscription PaymentMode = "SUBSCRIPTION"
)

var validPaymentModes = []PaymentMode{
	PaymentModePayPerEvent,
	PaymentModeToken,
	PaymentModeSubscription,
}

// String implements fmt.Stringer.
func (p PaymentMode) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p PaymentMode) IsValid() bool {
	for _, candidate := range validPaymentModes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentMode converts raw input into a PaymentMode.
func ParsePaymentMode(value string) (PaymentMode, error) {
	for _, candidate := range validPaymentModes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment mode %q", value)
}
