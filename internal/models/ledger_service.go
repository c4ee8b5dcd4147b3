package models

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrAccountNotFound is returned for accounts that do not exist on the ledger.
	ErrAccountNotFound = errors.New("account not found")
	// ErrTxNotFound is returned when the ledger does not know a transaction.
	ErrTxNotFound = errors.New("transaction not found")
)

type AccountInfo struct {
	Account string
	// Balance is the native balance in drops.
	Balance  string
	Sequence uint32
}

// TrustLine is one trust line as seen from the queried account.
type TrustLine struct {
	// Account is the counterparty (the issuer).
	Account  string
	Currency string
	Balance  string
	Limit    string
}

// LedgerAmount is an amount as reported by the ledger. Native amounts carry
// CurrencyXRP in whole units and no issuer.
type LedgerAmount struct {
	Currency string
	Issuer   string
	Value    decimal.Decimal
}

// SignedTx is a signed transaction that is not yet broadcast.
type SignedTx struct {
	TxBlob string
	Hash   string
}

type SubmitResult struct {
	EngineResult        string
	EngineResultMessage string
	Hash                string
}

type TxResult struct {
	Hash            string
	Validated       bool
	ResultCode      string
	LedgerIndex     uint32
	Fee             string
	DeliveredAmount string
	Delivered       *LedgerAmount
	Account         string
	Destination     string

	// LastLedgerSequence is the last ledger the transaction may appear in.
	LastLedgerSequence uint32
}

// LedgerClient is the remote consensus network. Transactions reach it signed.
type LedgerClient interface {
	AccountInfo(ctx context.Context, account string) (*AccountInfo, error)
	AccountLines(ctx context.Context, account, peer string) ([]TrustLine, error)
	LedgerCurrent(ctx context.Context) (uint32, error)
	LedgerValidated(ctx context.Context) (uint32, error)
	// Fee returns the open ledger transaction cost in drops.
	Fee(ctx context.Context) (string, error)
	Submit(ctx context.Context, txBlob string) (*SubmitResult, error)
	Tx(ctx context.Context, hash string) (*TxResult, error)
	Close() error
}

// TxSigner signs transactions in process. The hash is known before the
// transaction is broadcast.
type TxSigner interface {
	Sign(secret string, tx map[string]interface{}) (*SignedTx, error)
}

// TransferOutcome is the settlement state of a submitted transfer.
type TransferOutcome string

const (
	OutcomeSuccess TransferOutcome = "success"
	// OutcomePending means the network has not reported a final result yet.
	OutcomePending TransferOutcome = "pending"
)

// Memo is attached to a transfer in plain text and hex-encoded on submit.
type Memo struct {
	Type   string
	Format string
	Data   string
}

type TransferRequest struct {
	Currency       CurrencyType
	SourceAddress  string
	SourceSecret   string
	Destination    string
	DestinationTag *uint32
	Amount         decimal.Decimal
	// Issuer is required for issued-token currencies.
	Issuer *TokenIssuerConfig
	Memos  []Memo
}

type TransferResult struct {
	Outcome         TransferOutcome
	TxHash          string
	LedgerIndex     uint32
	Fee             string
	DeliveredAmount string
	Delivered       *LedgerAmount
	ResultCode      string
	Account         string
	Destination     string
	// LastLedgerSequence bounds where a pending transfer can still appear.
	LastLedgerSequence uint32
}

// PaymentGateway moves funds on the ledger and reads balances.
type PaymentGateway interface {
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	TransactionStatus(ctx context.Context, hash string, lastLedger uint32) (*TransferResult, error)
	Balance(ctx context.Context, address string, currency CurrencyType, issuer *TokenIssuerConfig) (decimal.Decimal, error)
}

// RateService converts USD amounts into payout currencies.
type RateService interface {
	ConvertFiatToCrypto(ctx context.Context, amountUSD decimal.Decimal, currency CurrencyType) (crypto, rate decimal.Decimal, err error)
}

// SecretCipher protects wallet secrets at rest.
type SecretCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(envelope string) (string, error)
}
