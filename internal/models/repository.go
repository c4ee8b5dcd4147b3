package models

import (
	"context"
	"time"
)

// Directory is the read side of the relational store used by the core:
// workers, wallets, payout addresses and token issuers.
type Directory interface {
	GetWorker(ctx context.Context, id string) (*Worker, error)
	GetDefaultOrganizationWallet(ctx context.Context, organizationID string, currency CurrencyType) (*OrganizationWallet, error)
	GetDefaultCryptoAddress(ctx context.Context, workerID string) (*CryptoAddress, error)
	GetTokenIssuerConfig(ctx context.Context, currency CurrencyType) (*TokenIssuerConfig, error)
}

// Settlement completes a claimed payment request.
type Settlement struct {
	RequestID       string
	ActorID         string
	TransactionHash string
	ProcessedAt     time.Time
	Transaction     *PaymentTransaction
}

// SettlementFailure fails a claimed payment request.
type SettlementFailure struct {
	RequestID   string
	ActorID     string
	Code        string
	Reason      string
	FailedAt    time.Time
	Transaction *PaymentTransaction
}

// Release returns a claimed payment request to PENDING.
type Release struct {
	RequestID     string
	ActorID       string
	Reason        string
	PendingTxHash string
	LastLedger    uint32
	SigningMode   string
}

type PaymentRequestFilter struct {
	Status PaymentStatus
	// OrganizationID limits the result to one tenant when set.
	OrganizationID string
	// WithPendingTx selects only requests carrying an in-flight transaction.
	WithPendingTx bool
	UpdatedSince  time.Time
	Limit         int
}

// PaymentStore is the relational store of payment requests and their audit
// trails. Status changes are conditional on the current status.
type PaymentStore interface {
	CreatePaymentRequest(ctx context.Context, req *PaymentRequest, log *PaymentRequestLog, hashLog *PaymentHashLog) error
	GetPaymentRequest(ctx context.Context, id string) (*PaymentRequest, error)
	GetPaymentRequestByIdempotencyKey(ctx context.Context, key string) (*PaymentRequest, error)
	ListPaymentRequests(ctx context.Context, filter PaymentRequestFilter) ([]*PaymentRequest, error)

	// ClaimPaymentRequest moves PENDING to PROCESSING and reports whether
	// this caller won the claim.
	ClaimPaymentRequest(ctx context.Context, id, actorID string) (bool, error)
	// ReleasePaymentRequest moves PROCESSING back to PENDING, recording a
	// submitted transaction whose outcome is unknown (may be empty).
	ReleasePaymentRequest(ctx context.Context, r *Release) error
	CompletePaymentRequest(ctx context.Context, s *Settlement) error
	FailPaymentRequest(ctx context.Context, f *SettlementFailure) error

	GetPaymentHashLog(ctx context.Context, requestID string) (*PaymentHashLog, error)
	RecordHashVerification(ctx context.Context, requestID string, ok bool, at time.Time) error
}

// AddressBook manages payout addresses and funding wallets. Each scope keeps
// exactly one default entry.
type AddressBook interface {
	AddCryptoAddress(ctx context.Context, addr *CryptoAddress) error
	ListCryptoAddresses(ctx context.Context, workerID string) ([]*CryptoAddress, error)
	SetDefaultCryptoAddress(ctx context.Context, workerID, id string) error
	DeleteCryptoAddress(ctx context.Context, workerID, id string) error
	AddOrganizationWallet(ctx context.Context, wallet *OrganizationWallet) error
}

// RateLogStore keeps the exchange-rate history.
type RateLogStore interface {
	AddExchangeRateLog(ctx context.Context, log *ExchangeRateLog) error
}

// Locker grants time-bounded leases to one instance at a time.
type Locker interface {
	AcquireLock(ctx context.Context, name, instanceID string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name, instanceID string) error
}

// WorkStore is the time-series store of timestamps, applications and their
// logs. Each method is one transaction; status-guarded updates that touch
// fewer rows than requested roll back with a conflict error.
type WorkStore interface {
	CreateTimestamp(ctx context.Context, ts *WorkTimestamp, log *TimestampLog) error
	GetTimestamps(ctx context.Context, workerID string, ids []string) ([]*WorkTimestamp, error)
	ListTimestamps(ctx context.Context, workerID string, from, to time.Time) ([]*WorkTimestamp, error)
	UpdateTimestamp(ctx context.Context, ts *WorkTimestamp, log *TimestampLog) error
	DeleteTimestamp(ctx context.Context, workerID, id string, log *TimestampLog) error

	CreateApplication(ctx context.Context, app *TimeApplication, log *ApplicationLog) error
	GetApplication(ctx context.Context, id string) (*TimeApplication, error)
	GetApplications(ctx context.Context, ids []string) ([]*TimeApplication, error)
	ApproveApplication(ctx context.Context, app *TimeApplication, log *ApplicationLog, approval *ApprovalLog) error
	RejectApplication(ctx context.Context, app *TimeApplication, log *ApplicationLog, approval *ApprovalLog) error
	CancelApplication(ctx context.Context, app *TimeApplication, log *ApplicationLog) error
	ListApplicationLogs(ctx context.Context, applicationID string) ([]*ApplicationLog, error)

	// MarkApplicationsRequested links APPROVED, unlinked applications of the
	// worker to requestID. All or none are updated.
	MarkApplicationsRequested(ctx context.Context, workerID, requestID, actorID string, ids []string) error
	// RevertApplicationsRequested returns REQUESTED applications of requestID
	// to APPROVED and clears the link.
	RevertApplicationsRequested(ctx context.Context, requestID, actorID string) (int, error)
	MarkApplicationsPaid(ctx context.Context, requestID, actorID string) (int, error)
	RevertApplicationsPaid(ctx context.Context, requestID, actorID string) (int, error)
	// ListRequestedApplications returns REQUESTED applications last updated
	// before the given time, of one organization when organizationID is set.
	ListRequestedApplications(ctx context.Context, organizationID string, updatedBefore time.Time, limit int) ([]*TimeApplication, error)
}

// Repository is the relational store as a whole.
type Repository interface {
	Directory
	PaymentStore
	AddressBook
	RateLogStore
	Locker
}
