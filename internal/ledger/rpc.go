package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/core-coin/salarium/internal/models"
	"github.com/core-coin/salarium/pkg/logger"
)

const (
	// linesPageLimit is the page size used with account_lines
	linesPageLimit = 400
	// maxLinePages bounds marker pagination of account_lines
	maxLinePages = 50
)

// RPCClient talks to a rippled node over JSON-RPC.
type RPCClient struct {
	logger  *logger.Logger
	url     string
	timeout time.Duration
	client  *http.Client
	calls   atomic.Int64
}

// NewRPCClient creates a new RPCClient instance.
func NewRPCClient(url string, timeout time.Duration, logger *logger.Logger) *RPCClient {
	return &RPCClient{
		logger:  logger,
		url:     url,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

type rpcRequest struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

type rpcEnvelope struct {
	Result json.RawMessage `json:"result"`
}

type rpcStatus struct {
	Status       string `json:"status"`
	Error        string `json:"error"`
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// RPCError is an error reported by the node inside a well-formed response.
type RPCError struct {
	Method  string
	Code    string
	Message string
}

func (e *RPCError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %s", e.Method, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Method, e.Code)
}

func (c *RPCClient) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(rpcRequest{Method: method, Params: []interface{}{params}})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.calls.Add(1)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status code %d from %s: %s", resp.StatusCode, method, string(raw))
	}

	var env rpcEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if len(env.Result) == 0 {
		return fmt.Errorf("empty %s response", method)
	}

	var status rpcStatus
	if err := json.Unmarshal(env.Result, &status); err != nil {
		return fmt.Errorf("failed to decode %s status: %w", method, err)
	}
	if status.Status == "error" || status.Error != "" {
		return &RPCError{Method: method, Code: status.Error, Message: status.ErrorMessage}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

func isRPCCode(err error, code string) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == code
}

func (c *RPCClient) AccountInfo(ctx context.Context, account string) (*models.AccountInfo, error) {
	var result struct {
		AccountData struct {
			Account  string `json:"Account"`
			Balance  string `json:"Balance"`
			Sequence uint32 `json:"Sequence"`
		} `json:"account_data"`
	}
	params := map[string]interface{}{"account": account, "ledger_index": "validated"}
	if err := c.call(ctx, "account_info", params, &result); err != nil {
		if isRPCCode(err, "actNotFound") {
			return nil, models.ErrAccountNotFound
		}
		return nil, err
	}
	return &models.AccountInfo{
		Account:  result.AccountData.Account,
		Balance:  result.AccountData.Balance,
		Sequence: result.AccountData.Sequence,
	}, nil
}

// AccountLines returns the trust lines of account, restricted to peer when set.
func (c *RPCClient) AccountLines(ctx context.Context, account, peer string) ([]models.TrustLine, error) {
	var lines []models.TrustLine
	var marker json.RawMessage
	for page := 0; page < maxLinePages; page++ {
		params := map[string]interface{}{
			"account":      account,
			"ledger_index": "validated",
			"limit":        linesPageLimit,
		}
		if peer != "" {
			params["peer"] = peer
		}
		if len(marker) > 0 {
			params["marker"] = marker
		}

		var result struct {
			Lines []struct {
				Account  string `json:"account"`
				Balance  string `json:"balance"`
				Currency string `json:"currency"`
				Limit    string `json:"limit"`
			} `json:"lines"`
			Marker json.RawMessage `json:"marker"`
		}
		if err := c.call(ctx, "account_lines", params, &result); err != nil {
			if isRPCCode(err, "actNotFound") {
				return nil, models.ErrAccountNotFound
			}
			return nil, err
		}
		for _, l := range result.Lines {
			lines = append(lines, models.TrustLine{
				Account:  l.Account,
				Currency: l.Currency,
				Balance:  l.Balance,
				Limit:    l.Limit,
			})
		}
		if len(result.Marker) == 0 || string(result.Marker) == "null" {
			return lines, nil
		}
		marker = result.Marker
	}
	c.logger.Warn("Trust line pagination truncated", "account", account, "pages", maxLinePages)
	return lines, nil
}

func (c *RPCClient) LedgerCurrent(ctx context.Context) (uint32, error) {
	var result struct {
		LedgerCurrentIndex uint32 `json:"ledger_current_index"`
	}
	if err := c.call(ctx, "ledger_current", map[string]interface{}{}, &result); err != nil {
		return 0, err
	}
	return result.LedgerCurrentIndex, nil
}

func (c *RPCClient) LedgerValidated(ctx context.Context) (uint32, error) {
	var result struct {
		LedgerIndex json.Number `json:"ledger_index"`
	}
	if err := c.call(ctx, "ledger", map[string]interface{}{"ledger_index": "validated"}, &result); err != nil {
		return 0, err
	}
	index, err := strconv.ParseUint(result.LedgerIndex.String(), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("malformed validated ledger index %q: %w", result.LedgerIndex, err)
	}
	return uint32(index), nil
}

// Fee returns the open ledger cost of a reference transaction in drops.
func (c *RPCClient) Fee(ctx context.Context) (string, error) {
	var result struct {
		Drops struct {
			BaseFee       string `json:"base_fee"`
			OpenLedgerFee string `json:"open_ledger_fee"`
		} `json:"drops"`
	}
	if err := c.call(ctx, "fee", map[string]interface{}{}, &result); err != nil {
		return "", err
	}
	fee := result.Drops.OpenLedgerFee
	if fee == "" {
		fee = result.Drops.BaseFee
	}
	if _, err := strconv.ParseUint(fee, 10, 64); err != nil {
		return "", fmt.Errorf("malformed fee %q: %w", fee, err)
	}
	return fee, nil
}

// Submit broadcasts a signed blob and returns the preliminary result.
func (c *RPCClient) Submit(ctx context.Context, txBlob string) (*models.SubmitResult, error) {
	var result struct {
		EngineResult        string `json:"engine_result"`
		EngineResultMessage string `json:"engine_result_message"`
		TxJSON              struct {
			Hash string `json:"hash"`
		} `json:"tx_json"`
	}
	if err := c.call(ctx, "submit", map[string]interface{}{"tx_blob": txBlob}, &result); err != nil {
		return nil, err
	}
	return &models.SubmitResult{
		EngineResult:        result.EngineResult,
		EngineResultMessage: result.EngineResultMessage,
		Hash:                result.TxJSON.Hash,
	}, nil
}

func (c *RPCClient) Tx(ctx context.Context, hash string) (*models.TxResult, error) {
	var result struct {
		Hash               string `json:"hash"`
		Validated          bool   `json:"validated"`
		LedgerIndex        uint32 `json:"ledger_index"`
		Fee                string `json:"Fee"`
		Account            string `json:"Account"`
		Destination        string `json:"Destination"`
		LastLedgerSequence uint32 `json:"LastLedgerSequence"`
		Meta               struct {
			TransactionResult string          `json:"TransactionResult"`
			DeliveredAmount   json.RawMessage `json:"delivered_amount"`
		} `json:"meta"`
	}
	if err := c.call(ctx, "tx", map[string]interface{}{"transaction": hash, "binary": false}, &result); err != nil {
		if isRPCCode(err, "txnNotFound") {
			return nil, models.ErrTxNotFound
		}
		return nil, err
	}
	return &models.TxResult{
		Hash:               result.Hash,
		Validated:          result.Validated,
		ResultCode:         result.Meta.TransactionResult,
		LedgerIndex:        result.LedgerIndex,
		Fee:                result.Fee,
		DeliveredAmount:    deliveredAmount(result.Meta.DeliveredAmount),
		Delivered:          parseDelivered(result.Meta.DeliveredAmount),
		Account:            result.Account,
		Destination:        result.Destination,
		LastLedgerSequence: result.LastLedgerSequence,
	}, nil
}

// deliveredAmount flattens drops strings and issued amounts into one string.
func deliveredAmount(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var drops string
	if err := json.Unmarshal(raw, &drops); err == nil {
		return drops
	}
	var issued struct {
		Currency string `json:"currency"`
		Issuer   string `json:"issuer"`
		Value    string `json:"value"`
	}
	if err := json.Unmarshal(raw, &issued); err == nil && issued.Value != "" {
		return fmt.Sprintf("%s %s/%s", issued.Value, NormalizeCurrencyCode(issued.Currency), issued.Issuer)
	}
	return string(raw)
}

// parseDelivered reads a delivered amount. Drops become XRP.
func parseDelivered(raw json.RawMessage) *models.LedgerAmount {
	if len(raw) == 0 {
		return nil
	}
	var drops string
	if err := json.Unmarshal(raw, &drops); err == nil {
		value, err := decimal.NewFromString(drops)
		if err != nil {
			return nil
		}
		return &models.LedgerAmount{Currency: string(models.CurrencyXRP), Value: value.Shift(-dropsPerXRP)}
	}
	var issued struct {
		Currency string `json:"currency"`
		Issuer   string `json:"issuer"`
		Value    string `json:"value"`
	}
	if err := json.Unmarshal(raw, &issued); err != nil {
		return nil
	}
	value, err := decimal.NewFromString(issued.Value)
	if err != nil {
		return nil
	}
	return &models.LedgerAmount{Currency: NormalizeCurrencyCode(issued.Currency), Issuer: issued.Issuer, Value: value}
}

// Close releases idle connections.
func (c *RPCClient) Close() error {
	c.client.CloseIdleConnections()
	c.logger.Debug("Ledger RPC client closed", "calls", c.calls.Load())
	return nil
}
