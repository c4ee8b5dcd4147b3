package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Organization is a tenant that employs workers and funds payouts.
type Organization struct {
	ID        string    `json:"id" gorm:"column:id;primaryKey;size:36"`
	Name      string    `json:"name" gorm:"column:name;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
}

// Worker is paid by the hour.
type Worker struct {
	ID             string `json:"id" gorm:"column:id;primaryKey;size:36"`
	OrganizationID string `json:"organization_id" gorm:"column:organization_id;index;not null"`
	Name           string `json:"name" gorm:"column:name"`
	// Email receives settlement notifications.
	Email string `json:"email" gorm:"column:email"`
	// HourlyRateUSD is the current rate. Applications copy it at submission
	// and again at approval.
	HourlyRateUSD decimal.Decimal `json:"hourly_rate_usd" gorm:"column:hourly_rate_usd;type:numeric(12,2);not null"`
	Active        bool            `json:"active" gorm:"column:active;default:true"`
	CreatedAt     time.Time       `json:"created_at" gorm:"column:created_at"`
}

// OrganizationWallet is the funding source of an organization's payouts.
type OrganizationWallet struct {
	ID             string       `json:"id" gorm:"column:id;primaryKey;size:36"`
	OrganizationID string       `json:"organization_id" gorm:"column:organization_id;index;not null"`
	Address        string       `json:"address" gorm:"column:address;not null"`
	CurrencyType   CurrencyType `json:"currency_type" gorm:"column:currency_type;size:16;not null"`
	// EncryptedSecret is the "ivHex:cipherHex" envelope of the wallet seed.
	// Empty for manual-signing wallets.
	EncryptedSecret string `json:"-" gorm:"column:encrypted_secret"`
	IsDefault       bool   `json:"is_default" gorm:"column:is_default;index"`
	IsActive        bool   `json:"is_active" gorm:"column:is_active;default:true"`
	// ManualSigning marks wallets whose transactions are signed outside the system.
	ManualSigning bool      `json:"manual_signing" gorm:"column:manual_signing"`
	CreatedAt     time.Time `json:"created_at" gorm:"column:created_at"`
}

// CryptoAddress is a worker's payout destination.
type CryptoAddress struct {
	ID             string    `json:"id" gorm:"column:id;primaryKey;size:36"`
	WorkerID       string    `json:"worker_id" gorm:"column:worker_id;index;not null"`
	Address        string    `json:"address" gorm:"column:address;not null"`
	DestinationTag *uint32   `json:"destination_tag,omitempty" gorm:"column:destination_tag"`
	IsDefault      bool      `json:"is_default" gorm:"column:is_default;index"`
	IsActive       bool      `json:"is_active" gorm:"column:is_active;default:true"`
	CreatedAt      time.Time `json:"created_at" gorm:"column:created_at"`
}
