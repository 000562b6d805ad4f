package enums

import "fmt"

// LedgerDirection determines the sign of a ledger entry when balances are summed.
type LedgerDirection string

const (
	LedgerDirectionCredit LedgerDirection = "CREDIT"
	LedgerDirectionDebit  LedgerDirection = "DEBIT"
)

var validLedgerDirections = []LedgerDirection{
	LedgerDirectionCredit,
	LedgerDirectionDebit,
}

// String implements fmt.Stringer.
func (l LedgerDirection) String() string {
	return string(l)
}

// IsValid reports whether the value is known.
func (l LedgerDirection) IsValid() bool {
	for _, candidate := range validLedgerDirections {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseLedgerDirection converts raw input into a LedgerDirection.
func ParseLedgerDirection(value string) (LedgerDirection, error) {
	for _, candidate := range validLedgerDirections {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger direction %q", value)
}

// Sign returns +1 for credits and -1 for debits.
func (l LedgerDirection) Sign() int64 {
	if l == LedgerDirectionDebit {
		return -1
	}
	return 1
}
