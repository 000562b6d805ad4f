package enums

import "fmt"

type RenewalLockStatus string

const (
	RenewalLockRunning   RenewalLockStatus = "RUNNING"
	RenewalLockCompleted RenewalLockStatus = "COMPLETED"
	RenewalLockFailed    RenewalLockStatus = "FAILED"
)

var validRenewalLockStatuses = []RenewalLockStatus{
	RenewalLockRunning,
	RenewalLockCompleted,
	RenewalLockFailed,
}

// String implements fmt.Stringer.
func (r RenewalLockStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is known.
func (r RenewalLockStatus) IsValid() bool {
	for _, candidate := range validRenewalLockStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRenewalLockStatus converts raw input into a RenewalLockStatus.
func ParseRenewalLockStatus(value string) (RenewalLockStatus, error) {
	for _, candidate := range validRenewalLockStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid renewal lock status %q", value)
}
