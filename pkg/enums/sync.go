package enums

import "fmt"

// SyncJobStatus maps to learning_sync_jobs.status.
type SyncJobStatus string

const (
	SyncJobPending    SyncJobStatus = "PENDING"
	SyncJobProcessing SyncJobStatus = "PROCESSING"
	SyncJobSucceeded  SyncJobStatus = "SUCCEEDED"
	SyncJobFailed     SyncJobStatus = "FAILED"
	SyncJobDead       SyncJobStatus = "DEAD"
)

var validSyncJobStatuses = []SyncJobStatus{
	SyncJobPending,
	SyncJobProcessing,
	SyncJobSucceeded,
	SyncJobFailed,
	SyncJobDead,
}

// IsValid reports whether the value matches a known job status.
func (s SyncJobStatus) IsValid() bool {
	for _, candidate := range validSyncJobStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// SyncEntityType names the billing record a sync job propagates.
type SyncEntityType string

const (
	SyncEntityCharge  SyncEntityType = "LEARNING_CHARGE"
	SyncEntityPayment SyncEntityType = "LEARNING_PAYMENT"
)

var validSyncEntityTypes = []SyncEntityType{
	SyncEntityCharge,
	SyncEntityPayment,
}

// IsValid reports whether the value matches a known entity type.
func (e SyncEntityType) IsValid() bool {
	for _, candidate := range validSyncEntityTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseSyncEntityType converts raw input into SyncEntityType.
func ParseSyncEntityType(value string) (SyncEntityType, error) {
	for _, candidate := range validSyncEntityTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sync entity type %q", value)
}

// SyncOperation is the accounting-side action requested by a job.
type SyncOperation string

const (
	SyncOperationCreateInvoice SyncOperation = "CREATE_INVOICE"
	SyncOperationCreatePayment SyncOperation = "CREATE_PAYMENT"
)

var validSyncOperations = []SyncOperation{
	SyncOperationCreateInvoice,
	SyncOperationCreatePayment,
}

// IsValid reports whether the value matches a known operation.
func (o SyncOperation) IsValid() bool {
	for _, candidate := range validSyncOperations {
		if candidate == o {
			return true
		}
	}
	return false
}

// SyncEvent is the state transition that triggered an enqueue. It is part of
// the job idempotency key.
type SyncEvent string

const (
	SyncEventChargeCreated   SyncEvent = "CHARGE_CREATED"
	SyncEventPaymentCaptured SyncEvent = "PAYMENT_CAPTURED"
)

// ParseSyncEvent converts raw input into SyncEvent.
func ParseSyncEvent(value string) (SyncEvent, error) {
	switch SyncEvent(value) {
	case SyncEventChargeCreated, SyncEventPaymentCaptured:
		return SyncEvent(value), nil
	}
	return "", fmt.Errorf("invalid sync event %q", value)
}
