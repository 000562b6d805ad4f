package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/learnbill-backend/pkg/db/models"
	"github.com/angelmondragon/learnbill-backend/pkg/enums"
)

func intPtr(v int) *int { return &v }

func TestComputeUnits(t *testing.T) {
	bounded := func(mode enums.UnitCalcMode) *models.BillingPolicyRule {
		return &models.BillingPolicyRule{
			MinMinutes:   intPtr(30),
			MaxMinutes:   intPtr(120),
			UnitMinutes:  15,
			UnitCalcMode: mode,
		}
	}

	tests := []struct {
		name    string
		minutes int
		rule    *models.BillingPolicyRule
		want    int
	}{
		{name: "nil rule", minutes: 60, rule: nil, want: 0},
		{name: "none mode", minutes: 60, rule: bounded(enums.UnitCalcNone), want: 0},
		{name: "at min", minutes: 30, rule: bounded(enums.UnitCalcFloor), want: 2},
		{name: "below min clamps up", minutes: 10, rule: bounded(enums.UnitCalcFloor), want: 2},
		{name: "at max", minutes: 120, rule: bounded(enums.UnitCalcFloor), want: 8},
		{name: "above max clamps down", minutes: 500, rule: bounded(enums.UnitCalcFloor), want: 8},
		{name: "floor partial", minutes: 50, rule: bounded(enums.UnitCalcFloor), want: 3},
		{name: "ceil partial", minutes: 50, rule: bounded(enums.UnitCalcCeil), want: 4},
		{name: "round below half", minutes: 52, rule: bounded(enums.UnitCalcRound), want: 3},
		{name: "round at half", minutes: 52 + 1, rule: &models.BillingPolicyRule{UnitMinutes: 2, UnitCalcMode: enums.UnitCalcRound}, want: 27},
		{name: "unbounded floor", minutes: 95, rule: &models.BillingPolicyRule{UnitMinutes: 60, UnitCalcMode: enums.UnitCalcFloor}, want: 1},
		{name: "negative minutes", minutes: -5, rule: &models.BillingPolicyRule{UnitMinutes: 15, UnitCalcMode: enums.UnitCalcCeil}, want: 0},
		{name: "zero unit minutes", minutes: 60, rule: &models.BillingPolicyRule{UnitMinutes: 0, UnitCalcMode: enums.UnitCalcFloor}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := ComputeUnits(tt.minutes, tt.rule)
			assert.Equal(t, tt.want, first)
			assert.Equal(t, first, ComputeUnits(tt.minutes, tt.rule))
		})
	}
}
