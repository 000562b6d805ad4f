package charges

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/learnbill-backend/pkg/enums"
)

const metadataVersion = 1

// CoverageMetadata is the reconciliation snapshot stored on a captured charge.
type CoverageMetadata struct {
	Version        int               `json:"version"`
	CoverageMode   enums.PaymentMode `json:"coverage_mode"`
	CoveredAt      time.Time         `json:"covered_at"`
	PolicyRuleID   *uuid.UUID        `json:"policy_rule_id,omitempty"`
	SubscriptionID *uuid.UUID        `json:"subscription_id,omitempty"`
	LedgerEntryID  *uuid.UUID        `json:"ledger_entry_id,omitempty"`
	PaymentID      *uuid.UUID        `json:"payment_id,omitempty"`
}

// FailureMetadata is stored when a charge is abandoned.
type FailureMetadata struct {
	Version  int       `json:"version"`
	Reason   string    `json:"failure_reason"`
	FailedAt time.Time `json:"failed_at"`
}

// DecodeCoverage reads the coverage snapshot of a charge. ok is false when
// the charge carries no coverage metadata.
func DecodeCoverage(raw json.RawMessage) (CoverageMetadata, bool) {
	var meta CoverageMetadata
	if len(raw) == 0 {
		return meta, false
	}
	if err := json.Unmarshal(raw, &meta); err != nil || meta.CoverageMode == "" {
		return CoverageMetadata{}, false
	}
	return meta, true
}
