package models

// TokenIssuerConfig describes the issuer of an issued-token currency.
type TokenIssuerConfig struct {
	// CurrencyType is the payout currency this issuer backs (e.g. RLUSD).
	CurrencyType CurrencyType `json:"currency_type" gorm:"column:currency_type;primaryKey;size:16"`
	// IssuerAddress is the account that issues the token.
	IssuerAddress string `json:"issuer_address" gorm:"column:issuer_address;not null"`
	// CurrencyCode is the on-ledger code, either short ASCII or 40 hex characters.
	CurrencyCode string `json:"currency_code" gorm:"column:currency_code;not null"`
	// Network is the ledger network the issuer lives on (mainnet, testnet).
	Network string `json:"network" gorm:"column:network"`
	Active  bool   `json:"active" gorm:"column:active;default:true"`
}
