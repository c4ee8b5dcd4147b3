package ledger

import (
	"context"
	"sync"

	"github.com/core-coin/salarium/internal/models"
)

// fakeClient is an in-memory ledger.
type fakeClient struct {
	mu sync.Mutex

	accounts  map[string]*models.AccountInfo
	lines     map[string][]models.TrustLine
	current   uint32
	validated uint32
	fee       string

	signed       []map[string]interface{}
	secrets      []string
	submitResult *models.SubmitResult
	submitErr    error
	submitted    int

	txs     map[string]*models.TxResult
	txCalls int
	// onTx runs before every tx lookup with the call number.
	onTx func(f *fakeClient, call int)
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		accounts:     map[string]*models.AccountInfo{},
		lines:        map[string][]models.TrustLine{},
		current:      100,
		validated:    99,
		fee:          "12",
		submitResult: &models.SubmitResult{EngineResult: resultSuccess},
		txs:          map[string]*models.TxResult{},
	}
}

func (f *fakeClient) fund(address, drops string) {
	f.accounts[address] = &models.AccountInfo{Account: address, Balance: drops, Sequence: 5}
}

func (f *fakeClient) AccountInfo(_ context.Context, account string) (*models.AccountInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.accounts[account]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	return info, nil
}

func (f *fakeClient) AccountLines(_ context.Context, account, peer string) ([]models.TrustLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[account]; !ok {
		return nil, models.ErrAccountNotFound
	}
	var out []models.TrustLine
	for _, l := range f.lines[account] {
		if peer == "" || l.Account == peer {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeClient) LedgerCurrent(context.Context) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, nil
}

func (f *fakeClient) LedgerValidated(context.Context) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.validated, nil
}

func (f *fakeClient) Fee(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fee, nil
}

// Sign records tx; the fake doubles as the gateway's signer.
func (f *fakeClient) Sign(secret string, tx map[string]interface{}) (*models.SignedTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signed = append(f.signed, tx)
	f.secrets = append(f.secrets, secret)
	return &models.SignedTx{TxBlob: "BLOB", Hash: "HASH1"}, nil
}

func (f *fakeClient) Submit(context.Context, string) (*models.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted++
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	res := *f.submitResult
	res.Hash = "HASH1"
	return &res, nil
}

func (f *fakeClient) Tx(_ context.Context, hash string) (*models.TxResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txCalls++
	if f.onTx != nil {
		f.onTx(f, f.txCalls)
	}
	tx, ok := f.txs[hash]
	if !ok {
		return nil, models.ErrTxNotFound
	}
	return tx, nil
}

func (f *fakeClient) Close() error {
	return nil
}
