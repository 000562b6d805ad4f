package enums

import "fmt"

// LedgerReason records why a token entry was written.
type LedgerReason string

const (
	LedgerReasonSessionCoverage       LedgerReason = "SESSION_COVERAGE"
	LedgerReasonSubscriptionRenewal   LedgerReason = "SUBSCRIPTION_RENEWAL"
	LedgerReasonSubscriptionReplenish LedgerReason = "SUBSCRIPTION_REPLENISH"
	LedgerReasonManualAdminCredit     LedgerReason = "MANUAL_ADMIN_CREDIT"
)

var validLedgerReasons = []LedgerReason{
	LedgerReasonSessionCoverage,
	LedgerReasonSubscriptionRenewal,
	LedgerReasonSubscriptionReplenish,
	LedgerReasonManualAdminCredit,
}

// String implements fmt.Stringer.
func (l LedgerReason) String() string {
	return string(l)
}

// IsValid reports whether the value is known.
func (l LedgerReason) IsValid() bool {
	for _, candidate := range validLedgerReasons {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseLedgerReason converts raw input into a LedgerReason.
func ParseLedgerReason(value string) (LedgerReason, error) {
	for _, candidate := range validLedgerReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger reason %q", value)
}
