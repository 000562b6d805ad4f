package enums

import "fmt"

// SubscriptionStatus mirrors learning_subscriptions.status.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusPaused    SubscriptionStatus = "PAUSED"
	SubscriptionStatusCancelled SubscriptionStatus = "CANCELLED"
	SubscriptionStatusExpired   SubscriptionStatus = "EXPIRED"
)

var validSubscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusActive,
	SubscriptionStatusPaused,
	SubscriptionStatusCancelled,
	SubscriptionStatusExpired,
}

// String implements fmt.Stringer.
func (s SubscriptionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s SubscriptionStatus) IsValid() bool {
	for _, candidate := range validSubscriptionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSubscriptionStatus converts raw input into a SubscriptionStatus.
func ParseSubscriptionStatus(value string) (SubscriptionStatus, error) {
	for _, candidate := range validSubscriptionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription status %q", value)
}

// CanTransitionTo reports whether the lifecycle permits moving to next.
// ACTIVE and PAUSED toggle, anything non-terminal may be cancelled, and only
// ACTIVE subscriptions expire.
func (s SubscriptionStatus) CanTransitionTo(next SubscriptionStatus) bool {
	switch next {
	case SubscriptionStatusPaused:
		return s == SubscriptionStatusActive
	case SubscriptionStatusActive:
		return s == SubscriptionStatusPaused
	case SubscriptionStatusCancelled:
		return s == SubscriptionStatusActive || s == SubscriptionStatusPaused
	case SubscriptionStatusExpired:
		return s == SubscriptionStatusActive
	}
	return false
}
