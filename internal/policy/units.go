package policy

import (
	"github.com/angelmondragon/learnbill-backend/pkg/db/models"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
)

// ComputeUnits converts session minutes into billable units. Minutes are
// clamped into the rule's bounds before division. A nil rule yields zero.
func ComputeUnits(minutes int, rule *models.BillingPolicyRule) int {
	if rule == nil || rule.UnitCalcMode == enums.UnitCalcNone || rule.UnitMinutes <= 0 {
		return 0
	}
	if minutes < 0 {
		minutes = 0
	}
	if rule.MinMinutes != nil && minutes < *rule.MinMinutes {
		minutes = *rule.MinMinutes
	}
	if rule.MaxMinutes != nil && minutes > *rule.MaxMinutes {
		minutes = *rule.MaxMinutes
	}

	per := rule.UnitMinutes
	switch rule.UnitCalcMode {
	case enums.UnitCalcCeil:
		return (minutes + per - 1) / per
	case enums.UnitCalcRound:
		// half up
		return (2*minutes + per) / (2 * per)
	default:
		return minutes / per
	}
}
