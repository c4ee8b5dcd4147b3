package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	// PaymentProcessing marks a request claimed by an in-flight settlement.
	PaymentProcessing PaymentStatus = "PROCESSING"
	PaymentCompleted  PaymentStatus = "COMPLETED"
	PaymentFailed     PaymentStatus = "FAILED"
)

// PaymentRequest bundles approved applications into one on-chain transfer.
// Amount, rate and crypto amount are fixed at creation.
type PaymentRequest struct {
	ID             string     `json:"id" gorm:"column:id;primaryKey;size:36"`
	OrganizationID string     `json:"organization_id" gorm:"column:organization_id;index;not null"`
	WorkerID       string     `json:"worker_id" gorm:"column:worker_id;index;not null"`
	ApplicationIDs StringList `json:"application_ids" gorm:"column:application_ids;type:jsonb;not null"`
	// AmountUSD is the sum of the applications' submission amounts.
	AmountUSD decimal.Decimal `json:"amount_usd" gorm:"column:amount_usd;type:numeric(20,2);not null"`
	// ApprovedAmountUSD is the sum of the amounts frozen at approval.
	ApprovedAmountUSD decimal.Decimal `json:"approved_amount_usd" gorm:"column:approved_amount_usd;type:numeric(20,2)"`
	CurrencyType      CurrencyType    `json:"currency_type" gorm:"column:currency_type;size:16;not null"`
	ExchangeRate      decimal.Decimal `json:"exchange_rate" gorm:"column:exchange_rate;type:numeric(30,10);not null"`
	CryptoAmount      decimal.Decimal `json:"crypto_amount" gorm:"column:crypto_amount;type:numeric(30,6);not null"`
	Status            PaymentStatus   `json:"status" gorm:"column:status;size:16;index;not null"`

	IdempotencyKey *string `json:"idempotency_key,omitempty" gorm:"column:idempotency_key;uniqueIndex"`
	// TransactionHash is set once the transfer settled.
	TransactionHash *string `json:"transaction_hash,omitempty" gorm:"column:transaction_hash;uniqueIndex"`
	// PendingTxHash is a submitted transfer whose outcome is not yet known.
	PendingTxHash string `json:"pending_tx_hash,omitempty" gorm:"column:pending_tx_hash;index"`
	// PendingLastLedger is the LastLedgerSequence of PendingTxHash.
	PendingLastLedger uint32 `json:"pending_last_ledger,omitempty" gorm:"column:pending_last_ledger"`
	// PendingSigningMode is how PendingTxHash was signed.
	PendingSigningMode string `json:"pending_signing_mode,omitempty" gorm:"column:pending_signing_mode;size:16"`

	DestinationAddress string `json:"destination_address" gorm:"column:destination_address"`
	CanonicalData      string `json:"canonical_data,omitempty" gorm:"column:canonical_data;type:text"`
	DataHash           string `json:"data_hash,omitempty" gorm:"column:data_hash;size:64;index"`

	FailureCode   string     `json:"failure_code,omitempty" gorm:"column:failure_code"`
	FailureReason string     `json:"failure_reason,omitempty" gorm:"column:failure_reason"`
	ApprovedBy    string     `json:"approved_by,omitempty" gorm:"column:approved_by"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty" gorm:"column:processed_at"`
	CreatedAt     time.Time  `json:"created_at" gorm:"column:created_at"`
	UpdatedAt     time.Time  `json:"updated_at" gorm:"column:updated_at;index"`
}

// Signing modes of a payment transaction.
const (
	SigningCustodial = "custodial"
	SigningManual    = "manual"
)

// PaymentTransaction records the ledger outcome of a settlement attempt.
type PaymentTransaction struct {
	ID               string          `json:"id" gorm:"column:id;primaryKey;size:36"`
	PaymentRequestID string          `json:"payment_request_id" gorm:"column:payment_request_id;index;not null"`
	OrganizationID   string          `json:"organization_id" gorm:"column:organization_id;index"`
	WorkerID         string          `json:"worker_id" gorm:"column:worker_id;index"`
	TransactionHash  string          `json:"transaction_hash" gorm:"column:transaction_hash;index"`
	LedgerIndex      uint32          `json:"ledger_index" gorm:"column:ledger_index"`
	Fee              string          `json:"fee" gorm:"column:fee"`
	DeliveredAmount  string          `json:"delivered_amount" gorm:"column:delivered_amount"`
	ResultCode       string          `json:"result_code" gorm:"column:result_code"`
	CurrencyType     CurrencyType    `json:"currency_type" gorm:"column:currency_type;size:16"`
	Amount           decimal.Decimal `json:"amount" gorm:"column:amount;type:numeric(30,6)"`
	FromAddress      string          `json:"from_address" gorm:"column:from_address"`
	ToAddress        string          `json:"to_address" gorm:"column:to_address"`
	Succeeded        bool            `json:"succeeded" gorm:"column:succeeded"`
	SigningMode      string          `json:"signing_mode" gorm:"column:signing_mode;size:16"`
	CreatedAt        time.Time       `json:"created_at" gorm:"column:created_at"`
}

// Payment request log actions.
const (
	PaymentActionCreated   = "CREATED"
	PaymentActionClaimed   = "CLAIMED"
	PaymentActionReleased  = "RELEASED"
	PaymentActionCompleted = "COMPLETED"
	PaymentActionFailed    = "FAILED"
)

// PaymentRequestLog is an append-only status history of a payment request.
type PaymentRequestLog struct {
	ID               int64         `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	PaymentRequestID string        `json:"payment_request_id" gorm:"column:payment_request_id;index;not null"`
	Action           string        `json:"action" gorm:"column:action;size:32;not null"`
	PreviousStatus   PaymentStatus `json:"previous_status" gorm:"column:previous_status;size:16"`
	NewStatus        PaymentStatus `json:"new_status" gorm:"column:new_status;size:16"`
	ActorID          string        `json:"actor_id" gorm:"column:actor_id"`
	Details          string        `json:"details,omitempty" gorm:"column:details;type:text"`
	CreatedAt        time.Time     `json:"created_at" gorm:"column:created_at"`
}

// PaymentHashLog is the audit record of a payment's canonical data. It is
// write-once except for the transaction hash and the verification outcome.
type PaymentHashLog struct {
	ID                 int64      `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	PaymentRequestID   string     `json:"payment_request_id" gorm:"column:payment_request_id;uniqueIndex;not null"`
	DataHash           string     `json:"data_hash" gorm:"column:data_hash;size:64;not null"`
	CanonicalData      string     `json:"canonical_data" gorm:"column:canonical_data;type:text;not null"`
	TransactionHash    string     `json:"transaction_hash,omitempty" gorm:"column:transaction_hash"`
	VerifiedAt         *time.Time `json:"verified_at,omitempty" gorm:"column:verified_at"`
	VerificationResult *bool      `json:"verification_result,omitempty" gorm:"column:verification_result"`
	CreatedAt          time.Time  `json:"created_at" gorm:"column:created_at"`
}

// ExchangeRateLog is one observed market rate.
type ExchangeRateLog struct {
	ID            int64           `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Source        string          `json:"source" gorm:"column:source;size:64"`
	BaseCurrency  CurrencyType    `json:"base_currency" gorm:"column:base_currency;size:16;index"`
	QuoteCurrency string          `json:"quote_currency" gorm:"column:quote_currency;size:16"`
	Rate          decimal.Decimal `json:"rate" gorm:"column:rate;type:numeric(30,10);not null"`
	FetchedAt     time.Time       `json:"fetched_at" gorm:"column:fetched_at;index"`
}
