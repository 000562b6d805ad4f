package sessions

import (
	"strings"

	"github.com/google/uuid"
)

const (
	SlotStateAssignedBooked = "ASSIGNED_BOOKED"
	EventStatusBooked       = "BOOKED"
)

// OfficeEvent is the calendar record a session is linked from. Start and end
// are naive wall-clock strings in Timezone.
type OfficeEvent struct {
	ID               uuid.UUID  `json:"id"`
	Status           string     `json:"status"`
	SlotState        string     `json:"slot_state"`
	StartAt          string     `json:"start_at"`
	EndAt            string     `json:"end_at"`
	Timezone         string     `json:"timezone"`
	BookedProviderID *uuid.UUID `json:"booked_provider_id,omitempty"`
	ServiceCode      *string    `json:"service_code,omitempty"`
}

// IsBookedOfficeEvent checks both the current slot state and the legacy
// status field.
func IsBookedOfficeEvent(event OfficeEvent) bool {
	return strings.EqualFold(strings.TrimSpace(event.SlotState), SlotStateAssignedBooked) ||
		strings.EqualFold(strings.TrimSpace(event.Status), EventStatusBooked)
}
