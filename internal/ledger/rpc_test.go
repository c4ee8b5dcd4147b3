package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/salarium/internal/models"
	"github.com/core-coin/salarium/pkg/logger"
)

// rippledStub answers JSON-RPC calls with canned results keyed by method.
func rippledStub(t *testing.T, handle func(method string, params map[string]interface{}) interface{}) *RPCClient {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string                   `json:"method"`
			Params []map[string]interface{} `json:"params"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) || !assert.Len(t, req.Params, 1) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": handle(req.Method, req.Params[0])})
	}))
	t.Cleanup(srv.Close)
	return NewRPCClient(srv.URL, time.Second, logger.NewNop())
}

func TestRPCAccountInfo(t *testing.T) {
	c := rippledStub(t, func(method string, params map[string]interface{}) interface{} {
		assert.Equal(t, "account_info", method)
		if params["account"] == "rMissing" {
			return map[string]interface{}{"status": "error", "error": "actNotFound", "error_message": "Account not found."}
		}
		return map[string]interface{}{
			"status":       "success",
			"account_data": map[string]interface{}{"Account": params["account"], "Balance": "25000000", "Sequence": 7},
		}
	})

	info, err := c.AccountInfo(context.Background(), destination)
	require.NoError(t, err)
	assert.Equal(t, "25000000", info.Balance)
	assert.Equal(t, uint32(7), info.Sequence)

	_, err = c.AccountInfo(context.Background(), "rMissing")
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
}

func TestRPCAccountLinesPaginates(t *testing.T) {
	c := rippledStub(t, func(method string, params map[string]interface{}) interface{} {
		assert.Equal(t, issuer, params["peer"])
		if params["marker"] == nil {
			return map[string]interface{}{
				"status": "success",
				"lines":  []map[string]string{{"account": issuer, "currency": "USD", "balance": "1", "limit": "10"}},
				"marker": "next",
			}
		}
		return map[string]interface{}{
			"status": "success",
			"lines":  []map[string]string{{"account": issuer, "currency": rlusdHex, "balance": "2", "limit": "20"}},
		}
	})

	lines, err := c.AccountLines(context.Background(), destination, issuer)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, rlusdHex, lines[1].Currency)
	assert.Equal(t, "20", lines[1].Limit)
}

func TestRPCFeeSubmitAndTx(t *testing.T) {
	c := rippledStub(t, func(method string, params map[string]interface{}) interface{} {
		switch method {
		case "fee":
			return map[string]interface{}{"status": "success", "drops": map[string]string{"base_fee": "10", "open_ledger_fee": "15"}}
		case "submit":
			assert.NotContains(t, params, "secret")
			assert.Equal(t, "BLOB", params["tx_blob"])
			return map[string]interface{}{"status": "success", "engine_result": "tesSUCCESS", "tx_json": map[string]string{"hash": "H1"}}
		case "tx":
			if params["transaction"] != "H1" {
				return map[string]interface{}{"status": "error", "error": "txnNotFound"}
			}
			return map[string]interface{}{
				"status":             "success",
				"hash":               "H1",
				"validated":          true,
				"ledger_index":       88,
				"Fee":                "12",
				"LastLedgerSequence": 90,
				"meta": map[string]interface{}{
					"TransactionResult": "tesSUCCESS",
					"delivered_amount":  map[string]string{"currency": rlusdHex, "issuer": issuer, "value": "5"},
				},
			}
		case "ledger":
			return map[string]interface{}{"status": "success", "ledger_index": 91, "validated": true}
		case "ledger_current":
			return map[string]interface{}{"status": "success", "ledger_current_index": 92}
		}
		t.Errorf("unexpected method %s", method)
		return nil
	})
	ctx := context.Background()

	fee, err := c.Fee(ctx)
	require.NoError(t, err)
	assert.Equal(t, "15", fee)

	sub, err := c.Submit(ctx, "BLOB")
	require.NoError(t, err)
	assert.Equal(t, "tesSUCCESS", sub.EngineResult)

	tx, err := c.Tx(ctx, "H1")
	require.NoError(t, err)
	assert.True(t, tx.Validated)
	assert.Equal(t, uint32(88), tx.LedgerIndex)
	assert.Equal(t, uint32(90), tx.LastLedgerSequence)
	assert.Equal(t, "5 RLUSD/"+issuer, tx.DeliveredAmount)
	require.NotNil(t, tx.Delivered)
	assert.Equal(t, "RLUSD", tx.Delivered.Currency)
	assert.Equal(t, issuer, tx.Delivered.Issuer)
	assert.Equal(t, "5", tx.Delivered.Value.String())

	_, err = c.Tx(ctx, "H2")
	assert.ErrorIs(t, err, models.ErrTxNotFound)

	validated, err := c.LedgerValidated(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(91), validated)

	current, err := c.LedgerCurrent(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(92), current)
}

func TestParseDelivered(t *testing.T) {
	xrp := parseDelivered(json.RawMessage(`"320000000"`))
	require.NotNil(t, xrp)
	assert.Equal(t, "XRP", xrp.Currency)
	assert.Empty(t, xrp.Issuer)
	assert.Equal(t, "320", xrp.Value.String())

	oneDrop := parseDelivered(json.RawMessage(`"1"`))
	require.NotNil(t, oneDrop)
	assert.Equal(t, "0.000001", oneDrop.Value.String())

	assert.Nil(t, parseDelivered(nil))
	assert.Nil(t, parseDelivered(json.RawMessage(`"unavailable"`)))
	assert.Nil(t, parseDelivered(json.RawMessage(`{"currency":"USD","issuer":"rX"}`)))
}

func TestRPCHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	c := NewRPCClient(srv.URL, time.Second, logger.NewNop())

	_, err := c.LedgerCurrent(context.Background())
	assert.ErrorContains(t, err, "503")
}
