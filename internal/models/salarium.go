package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Caller is the authenticated identity supplied by the session provider.
// Exactly one of WorkerID and AdminID is set.
type Caller struct {
	WorkerID       string
	AdminID        string
	OrganizationID string
}

func (c Caller) IsAdmin() bool {
	return c.AdminID != ""
}

// ActorID returns whichever id acts for the caller.
func (c Caller) ActorID() string {
	if c.AdminID != "" {
		return c.AdminID
	}
	return c.WorkerID
}

type TimestampInput struct {
	Status    TimestampStatus
	Timestamp time.Time
	Memo      string
}

// TimestampUpdate carries the fields a worker changes; nil fields are kept.
type TimestampUpdate struct {
	Status    *TimestampStatus
	Timestamp *time.Time
	Memo      *string
}

// TimestampQuery selects timestamps in [From, To). Admins name the worker.
type TimestampQuery struct {
	WorkerID string
	From     time.Time
	To       time.Time
}

type ApplicationInput struct {
	StartDate    time.Time
	EndDate      time.Time
	TimestampIDs []string
	Memo         string
	// OriginalApplicationID marks a resubmission of a rejected application.
	OriginalApplicationID string
}

type RejectionInput struct {
	Reason   string
	Category string
}

type PaymentRequestInput struct {
	ApplicationIDs []string
	CurrencyType   CurrencyType
	// IdempotencyKey makes retried creations return the original request.
	IdempotencyKey string
}

type AddressInput struct {
	Address        string
	DestinationTag *uint32
	MakeDefault    bool
}

type WalletInput struct {
	Address      string
	CurrencyType CurrencyType
	// Secret is the wallet seed; it must be empty for manual-signing wallets.
	Secret        string
	ManualSigning bool
	MakeDefault   bool
}

type HashVerification struct {
	RequestID  string    `json:"request_id"`
	DataHash   string    `json:"data_hash"`
	Valid      bool      `json:"valid"`
	VerifiedAt time.Time `json:"verified_at"`
}

type ReconcileReport struct {
	Completed    int      `json:"completed"`
	Failed       int      `json:"failed"`
	StillPending int      `json:"still_pending"`
	Repaired     int      `json:"repaired"`
	Stuck        int      `json:"stuck"`
	Errors       []string `json:"errors,omitempty"`
}

// SalariumI is the set of use cases served by the core.
type SalariumI interface {
	RecordTimestamp(ctx context.Context, caller Caller, in TimestampInput) (*WorkTimestamp, error)
	UpdateTimestamp(ctx context.Context, caller Caller, id string, upd TimestampUpdate) (*WorkTimestamp, error)
	DeleteTimestamp(ctx context.Context, caller Caller, id string) error
	ListTimestamps(ctx context.Context, caller Caller, in TimestampQuery) ([]*WorkTimestamp, error)

	CreateApplication(ctx context.Context, caller Caller, in ApplicationInput) (*TimeApplication, error)
	ApproveApplication(ctx context.Context, caller Caller, id string) (*TimeApplication, error)
	RejectApplication(ctx context.Context, caller Caller, id string, in RejectionInput) (*TimeApplication, error)
	CancelApplication(ctx context.Context, caller Caller, id string) error
	GetApplicationHistory(ctx context.Context, caller Caller, id string) ([]*ApplicationLog, error)

	CreatePaymentRequest(ctx context.Context, caller Caller, in PaymentRequestInput) (*PaymentRequest, error)
	GetPaymentRequest(ctx context.Context, caller Caller, id string) (*PaymentRequest, error)
	ExecutePayment(ctx context.Context, caller Caller, requestID string) (*PaymentRequest, error)
	CompleteManualPayment(ctx context.Context, caller Caller, requestID, txHash string) (*PaymentRequest, error)
	// ReconcilePayments reconciles one organization, or every organization
	// when organizationID is empty.
	ReconcilePayments(ctx context.Context, organizationID string) (*ReconcileReport, error)
	VerifyPaymentHash(ctx context.Context, requestID string) (*HashVerification, error)
	GetBalance(ctx context.Context, address string, currency CurrencyType) (decimal.Decimal, error)

	AddCryptoAddress(ctx context.Context, caller Caller, in AddressInput) (*CryptoAddress, error)
	ListCryptoAddresses(ctx context.Context, caller Caller) ([]*CryptoAddress, error)
	SetDefaultCryptoAddress(ctx context.Context, caller Caller, id string) error
	DeleteCryptoAddress(ctx context.Context, caller Caller, id string) error
	AddOrganizationWallet(ctx context.Context, caller Caller, in WalletInput) (*OrganizationWallet, error)
}
