package enums

import (
	"fmt"
	"strings"
)

// PaymentMethodType lists the tokenized instruments a guardian can store.
// Only the processor token is kept; card numbers and account numbers never
// reach learnbill.
type PaymentMethodType string

const (
	PaymentMethodTypeCard          PaymentMethodType = "card"
	PaymentMethodTypeUSBankAccount PaymentMethodType = "us_bank_account"
)

// String implements fmt.Stringer.
func (p PaymentMethodType) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p PaymentMethodType) IsValid() bool {
	return p == PaymentMethodTypeCard || p == PaymentMethodTypeUSBankAccount
}

// HasExpiry reports whether the instrument carries a card expiry that must
// be checked before it can back a renewal or fallback charge.
func (p PaymentMethodType) HasExpiry() bool {
	return p == PaymentMethodTypeCard
}

// ParsePaymentMethodType converts raw input into a PaymentMethodType. Blank
// input means card, the type office systems send when they omit it.
func ParsePaymentMethodType(value string) (PaymentMethodType, error) {
	v := PaymentMethodType(strings.ToLower(strings.TrimSpace(value)))
	if v == "" {
		return PaymentMethodTypeCard, nil
	}
	if !v.IsValid() {
		return "", fmt.Errorf("invalid payment method type %q", value)
	}
	return v, nil
}
