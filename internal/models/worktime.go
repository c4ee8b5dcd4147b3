package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TimestampStatus is the kind of clock event.
type TimestampStatus string

const (
	TimestampWork TimestampStatus = "WORK"
	TimestampRest TimestampStatus = "REST"
	TimestampEnd  TimestampStatus = "END"
)

func (s TimestampStatus) Valid() bool {
	return s == TimestampWork || s == TimestampRest || s == TimestampEnd
}

// LinkStatus is a timestamp's linkage to a time application.
type LinkStatus string

const (
	LinkNone     LinkStatus = "NONE"
	LinkPending  LinkStatus = "PENDING"
	LinkApproved LinkStatus = "APPROVED"
	LinkRejected LinkStatus = "REJECTED"
	LinkPaid     LinkStatus = "PAID"
)

// WorkTimestamp is one clock event of a worker.
type WorkTimestamp struct {
	ID                string          `json:"id"`
	WorkerID          string          `json:"worker_id"`
	Timestamp         time.Time       `json:"timestamp"`
	Status            TimestampStatus `json:"status"`
	ApplicationStatus LinkStatus      `json:"application_status"`
	Memo              string          `json:"memo,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// TimestampLog is an immutable record of a timestamp mutation.
type TimestampLog struct {
	ID             string          `json:"id"`
	TimestampID    string          `json:"timestamp_id"`
	WorkerID       string          `json:"worker_id"`
	Action         string          `json:"action"`
	PreviousStatus TimestampStatus `json:"previous_status,omitempty"`
	NewStatus      TimestampStatus `json:"new_status,omitempty"`
	PreviousTime   *time.Time      `json:"previous_time,omitempty"`
	NewTime        *time.Time      `json:"new_time,omitempty"`
	Memo           string          `json:"memo,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

const (
	TimestampActionCreated = "CREATED"
	TimestampActionUpdated = "UPDATED"
	TimestampActionDeleted = "DELETED"
)

// ApplicationType is derived from the span of the claimed dates.
type ApplicationType string

const (
	ApplicationSingle ApplicationType = "SINGLE"
	ApplicationBatch  ApplicationType = "BATCH"
	ApplicationPeriod ApplicationType = "PERIOD"
)

type ApplicationStatus string

const (
	ApplicationPending   ApplicationStatus = "PENDING"
	ApplicationApproved  ApplicationStatus = "APPROVED"
	ApplicationRejected  ApplicationStatus = "REJECTED"
	ApplicationRequested ApplicationStatus = "REQUESTED"
	ApplicationPaid      ApplicationStatus = "PAID"
	ApplicationCancelled ApplicationStatus = "CANCELLED"
)

// TimeApplication is a worker's claim over a set of timestamps.
type TimeApplication struct {
	ID             string            `json:"id"`
	WorkerID       string            `json:"worker_id"`
	OrganizationID string            `json:"organization_id"`
	Type           ApplicationType   `json:"type"`
	StartDate      time.Time         `json:"start_date"`
	EndDate        time.Time         `json:"end_date"`
	TimestampIDs   []string          `json:"timestamp_ids"`
	TotalMinutes   int64             `json:"total_minutes"`
	HourlyRateUSD  decimal.Decimal   `json:"hourly_rate_usd"`
	TotalAmountUSD decimal.Decimal   `json:"total_amount_usd"`
	Status         ApplicationStatus `json:"status"`
	Memo           string            `json:"memo,omitempty"`

	RejectionReason   string     `json:"rejection_reason,omitempty"`
	RejectionCategory string     `json:"rejection_category,omitempty"`
	ApprovedBy        string     `json:"approved_by,omitempty"`
	ApprovedAt        *time.Time `json:"approved_at,omitempty"`
	RejectedBy        string     `json:"rejected_by,omitempty"`
	RejectedAt        *time.Time `json:"rejected_at,omitempty"`

	// HourlyRateAtApproval and ApprovedAmountUSD freeze the worker's rate at
	// approval time. They may differ from the submission figures above.
	HourlyRateAtApproval decimal.NullDecimal `json:"hourly_rate_at_approval"`
	ApprovedAmountUSD    decimal.NullDecimal `json:"approved_amount_usd"`

	ResubmitCount         int    `json:"resubmit_count"`
	OriginalApplicationID string `json:"original_application_id,omitempty"`
	PaymentRequestID      string `json:"payment_request_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot serializes the application for an immutable log row.
func (a *TimeApplication) Snapshot() json.RawMessage {
	b, err := json.Marshal(a)
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}

// Application log actions.
const (
	ApplicationActionCreated         = "CREATED"
	ApplicationActionResubmitted     = "RESUBMITTED"
	ApplicationActionApproved        = "APPROVED"
	ApplicationActionRejected        = "REJECTED"
	ApplicationActionCancelled       = "CANCELLED"
	ApplicationActionRequested       = "REQUESTED"
	ApplicationActionRequestReverted = "REQUEST_REVERTED"
	ApplicationActionPaid            = "PAID"
	ApplicationActionPaidReverted    = "PAID_REVERTED"
)

// ApplicationLog is an immutable record of an application transition.
type ApplicationLog struct {
	ID             string            `json:"id"`
	ApplicationID  string            `json:"application_id"`
	WorkerID       string            `json:"worker_id"`
	OrganizationID string            `json:"organization_id"`
	Action         string            `json:"action"`
	PreviousStatus ApplicationStatus `json:"previous_status,omitempty"`
	NewStatus      ApplicationStatus `json:"new_status,omitempty"`
	ActorID        string            `json:"actor_id"`
	Snapshot       json.RawMessage   `json:"snapshot"`
	CreatedAt      time.Time         `json:"created_at"`
}

// ApprovalLog records an approve or reject decision.
type ApprovalLog struct {
	ID            string              `json:"id"`
	ApplicationID string              `json:"application_id"`
	Action        string              `json:"action"`
	ActorID       string              `json:"actor_id"`
	HourlyRateUSD decimal.NullDecimal `json:"hourly_rate_usd"`
	AmountUSD     decimal.NullDecimal `json:"amount_usd"`
	Reason        string              `json:"reason,omitempty"`
	Category      string              `json:"category,omitempty"`
	Snapshot      json.RawMessage     `json:"snapshot"`
	CreatedAt     time.Time           `json:"created_at"`
}
