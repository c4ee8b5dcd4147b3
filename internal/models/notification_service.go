package models

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

type NotificationService interface {
	SendNotification(notification *Notification)
}

// EventPublisher publishes lifecycle events to the message bus.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, payload interface{}) error
}

// Notification describes a settlement outcome.
type Notification struct {
	RequestID   string          `json:"request_id"`
	WorkerID    string          `json:"worker_id"`
	WorkerEmail string          `json:"-"`
	Status      PaymentStatus   `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    CurrencyType    `json:"currency"`
	TxHash      string          `json:"tx_hash,omitempty"`
	Reason      string          `json:"reason,omitempty"`
}

func (n *Notification) String() string {
	switch n.Status {
	case PaymentCompleted:
		return fmt.Sprintf("Payment %s completed: %s %s sent (tx %s)", n.RequestID, n.Amount.String(), n.Currency, n.TxHash)
	case PaymentFailed:
		return fmt.Sprintf("Payment %s failed: %s", n.RequestID, n.Reason)
	default:
		return fmt.Sprintf("Payment %s is %s", n.RequestID, n.Status)
	}
}

// Event subjects.
const (
	SubjectPaymentRequested = "salarium.payment.requested"
	SubjectPaymentCompleted = "salarium.payment.completed"
	SubjectPaymentFailed    = "salarium.payment.failed"
	SubjectPaymentPending   = "salarium.payment.pending"
)

// PaymentEvent is the payload of payment subjects.
type PaymentEvent struct {
	RequestID      string          `json:"request_id"`
	OrganizationID string          `json:"organization_id"`
	WorkerID       string          `json:"worker_id"`
	Status         PaymentStatus   `json:"status"`
	CurrencyType   CurrencyType    `json:"currency_type"`
	CryptoAmount   decimal.Decimal `json:"crypto_amount"`
	AmountUSD      decimal.Decimal `json:"amount_usd"`
	TxHash         string          `json:"tx_hash,omitempty"`
	FailureCode    string          `json:"failure_code,omitempty"`
}
