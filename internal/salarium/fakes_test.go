package salarium

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/core-coin/salarium/internal/models"
	"github.com/core-coin/salarium/pkg/apperr"
)

// memRepo is an in-memory models.Repository with the same status guards as
// the relational store.
type memRepo struct {
	mu sync.Mutex

	workers   map[string]*models.Worker
	wallets   []*models.OrganizationWallet
	addresses []*models.CryptoAddress
	issuers   map[models.CurrencyType]*models.TokenIssuerConfig

	requests map[string]*models.PaymentRequest
	logs     []*models.PaymentRequestLog
	hashLogs map[string]*models.PaymentHashLog
	txs      []*models.PaymentTransaction
	locks    map[string]string

	createErr   error
	completeErr error
	releaseErr  error

	now func() time.Time
}

func newMemRepo() *memRepo {
	return &memRepo{
		workers:  map[string]*models.Worker{},
		issuers:  map[models.CurrencyType]*models.TokenIssuerConfig{},
		requests: map[string]*models.PaymentRequest{},
		hashLogs: map[string]*models.PaymentHashLog{},
		locks:    map[string]string{},
		now:      time.Now,
	}
}

func (m *memRepo) GetWorker(_ context.Context, id string) (*models.Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[id]
	if !ok {
		return nil, apperr.NotFound("worker")
	}
	cp := *w
	return &cp, nil
}

func (m *memRepo) GetDefaultOrganizationWallet(_ context.Context, organizationID string, currency models.CurrencyType) (*models.OrganizationWallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.wallets {
		if w.OrganizationID == organizationID && w.CurrencyType == currency && w.IsDefault && w.IsActive {
			cp := *w
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("organization_wallet")
}

func (m *memRepo) GetDefaultCryptoAddress(_ context.Context, workerID string) (*models.CryptoAddress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.addresses {
		if a.WorkerID == workerID && a.IsDefault && a.IsActive {
			cp := *a
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("crypto_address")
}

func (m *memRepo) GetTokenIssuerConfig(_ context.Context, currency models.CurrencyType) (*models.TokenIssuerConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.issuers[currency]
	if !ok {
		return nil, apperr.NotFound("token_issuer_config")
	}
	return cfg, nil
}

func (m *memRepo) AddCryptoAddress(_ context.Context, addr *models.CryptoAddress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, a := range m.addresses {
		if a.WorkerID == addr.WorkerID {
			count++
		}
	}
	if count == 0 {
		addr.IsDefault = true
	}
	if addr.IsDefault {
		for _, a := range m.addresses {
			if a.WorkerID == addr.WorkerID {
				a.IsDefault = false
			}
		}
	}
	cp := *addr
	m.addresses = append(m.addresses, &cp)
	return nil
}

func (m *memRepo) ListCryptoAddresses(_ context.Context, workerID string) ([]*models.CryptoAddress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.CryptoAddress
	for _, a := range m.addresses {
		if a.WorkerID == workerID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRepo) SetDefaultCryptoAddress(_ context.Context, workerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var target *models.CryptoAddress
	for _, a := range m.addresses {
		if a.WorkerID == workerID && a.ID == id {
			target = a
		}
	}
	if target == nil {
		return apperr.NotFound("crypto_address")
	}
	for _, a := range m.addresses {
		if a.WorkerID == workerID {
			a.IsDefault = a.ID == id
		}
	}
	return nil
}

func (m *memRepo) DeleteCryptoAddress(_ context.Context, workerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := -1
	for i, a := range m.addresses {
		if a.WorkerID == workerID && a.ID == id {
			idx = i
		}
	}
	if idx < 0 {
		return apperr.NotFound("crypto_address")
	}
	if m.addresses[idx].IsDefault {
		var next *models.CryptoAddress
		for _, a := range m.addresses {
			if a.WorkerID == workerID && a.ID != id && a.IsActive {
				next = a
				break
			}
		}
		if next == nil {
			return apperr.Conflict("sole_default_address", "the only default address cannot be deleted")
		}
		next.IsDefault = true
	}
	m.addresses = append(m.addresses[:idx], m.addresses[idx+1:]...)
	return nil
}

func (m *memRepo) AddOrganizationWallet(_ context.Context, wallet *models.OrganizationWallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, w := range m.wallets {
		if w.OrganizationID == wallet.OrganizationID && w.CurrencyType == wallet.CurrencyType {
			count++
		}
	}
	if count == 0 {
		wallet.IsDefault = true
	}
	if wallet.IsDefault {
		for _, w := range m.wallets {
			if w.OrganizationID == wallet.OrganizationID && w.CurrencyType == wallet.CurrencyType {
				w.IsDefault = false
			}
		}
	}
	cp := *wallet
	m.wallets = append(m.wallets, &cp)
	return nil
}

func (m *memRepo) CreatePaymentRequest(_ context.Context, req *models.PaymentRequest, log *models.PaymentRequestLog, hashLog *models.PaymentHashLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if req.IdempotencyKey != nil {
		for _, r := range m.requests {
			if r.IdempotencyKey != nil && *r.IdempotencyKey == *req.IdempotencyKey {
				return apperr.Conflict("duplicate_payment_request", "payment request already exists")
			}
		}
	}
	cp := *req
	m.requests[req.ID] = &cp
	m.logs = append(m.logs, log)
	if hashLog != nil {
		h := *hashLog
		m.hashLogs[req.ID] = &h
	}
	return nil
}

func (m *memRepo) GetPaymentRequest(_ context.Context, id string) (*models.PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, apperr.NotFound("payment_request")
	}
	cp := *r
	return &cp, nil
}

func (m *memRepo) GetPaymentRequestByIdempotencyKey(_ context.Context, key string) (*models.PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.IdempotencyKey != nil && *r.IdempotencyKey == key {
			cp := *r
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("payment_request")
}

func (m *memRepo) ListPaymentRequests(_ context.Context, filter models.PaymentRequestFilter) ([]*models.PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PaymentRequest
	for _, r := range m.requests {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.OrganizationID != "" && r.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.WithPendingTx && r.PendingTxHash == "" {
			continue
		}
		if !filter.UpdatedSince.IsZero() && r.UpdatedAt.Before(filter.UpdatedSince) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memRepo) transition(id string, from, to models.PaymentStatus, action, actorID string, fn func(r *models.PaymentRequest)) error {
	r, ok := m.requests[id]
	if !ok {
		return apperr.NotFound("payment_request")
	}
	if r.Status != from {
		return apperr.Conflict("payment_request_status", "payment request status changed")
	}
	r.Status = to
	if fn != nil {
		fn(r)
	}
	r.UpdatedAt = m.now().UTC()
	m.logs = append(m.logs, &models.PaymentRequestLog{
		PaymentRequestID: id,
		Action:           action,
		PreviousStatus:   from,
		NewStatus:        to,
		ActorID:          actorID,
	})
	return nil
}

func (m *memRepo) ClaimPaymentRequest(_ context.Context, id, actorID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.transition(id, models.PaymentPending, models.PaymentProcessing, models.PaymentActionClaimed, actorID, nil)
	if apperr.Is(err, apperr.KindConflict) {
		return false, nil
	}
	return err == nil, err
}

func (m *memRepo) ReleasePaymentRequest(_ context.Context, rel *models.Release) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.releaseErr != nil {
		return m.releaseErr
	}
	return m.transition(rel.RequestID, models.PaymentProcessing, models.PaymentPending, models.PaymentActionReleased, rel.ActorID,
		func(r *models.PaymentRequest) {
			r.PendingTxHash = rel.PendingTxHash
			r.PendingLastLedger = rel.LastLedger
			r.PendingSigningMode = ""
			if rel.PendingTxHash != "" {
				r.PendingSigningMode = rel.SigningMode
			}
		})
}

func (m *memRepo) CompletePaymentRequest(_ context.Context, s *models.Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completeErr != nil {
		return m.completeErr
	}
	for _, r := range m.requests {
		if r.ID != s.RequestID && r.TransactionHash != nil && *r.TransactionHash == s.TransactionHash {
			return apperr.Conflict(codeDuplicateTransaction, "transaction already settles another payment request")
		}
	}
	err := m.transition(s.RequestID, models.PaymentProcessing, models.PaymentCompleted, models.PaymentActionCompleted, s.ActorID,
		func(r *models.PaymentRequest) {
			hash := s.TransactionHash
			at := s.ProcessedAt
			r.TransactionHash = &hash
			r.ProcessedAt = &at
			r.ApprovedBy = s.ActorID
			r.PendingTxHash = ""
			r.PendingLastLedger = 0
			r.PendingSigningMode = ""
		})
	if err != nil {
		return err
	}
	if s.Transaction != nil {
		m.txs = append(m.txs, s.Transaction)
	}
	if h, ok := m.hashLogs[s.RequestID]; ok {
		h.TransactionHash = s.TransactionHash
	}
	return nil
}

func (m *memRepo) FailPaymentRequest(_ context.Context, f *models.SettlementFailure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.transition(f.RequestID, models.PaymentProcessing, models.PaymentFailed, models.PaymentActionFailed, f.ActorID,
		func(r *models.PaymentRequest) {
			r.FailureCode = f.Code
			r.FailureReason = f.Reason
			r.PendingTxHash = ""
			r.PendingLastLedger = 0
			r.PendingSigningMode = ""
		})
	if err != nil {
		return err
	}
	if f.Transaction != nil {
		m.txs = append(m.txs, f.Transaction)
	}
	return nil
}

func (m *memRepo) GetPaymentHashLog(_ context.Context, requestID string) (*models.PaymentHashLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashLogs[requestID]
	if !ok {
		return nil, apperr.NotFound("payment_hash_log")
	}
	cp := *h
	return &cp, nil
}

func (m *memRepo) RecordHashVerification(_ context.Context, requestID string, ok bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, found := m.hashLogs[requestID]
	if !found {
		return apperr.NotFound("payment_hash_log")
	}
	h.VerificationResult = &ok
	h.VerifiedAt = &at
	return nil
}

func (m *memRepo) AddExchangeRateLog(context.Context, *models.ExchangeRateLog) error {
	return nil
}

func (m *memRepo) AcquireLock(_ context.Context, name, instanceID string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	holder, ok := m.locks[name]
	if ok && holder != instanceID {
		return false, nil
	}
	m.locks[name] = instanceID
	return true, nil
}

func (m *memRepo) ReleaseLock(_ context.Context, name, instanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[name] == instanceID {
		delete(m.locks, name)
	}
	return nil
}

func (m *memRepo) request(id string) *models.PaymentRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.requests[id]
	return &cp
}

func (m *memRepo) requestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *memRepo) transactions() []*models.PaymentTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.PaymentTransaction(nil), m.txs...)
}

// memWork is an in-memory models.WorkStore enforcing the same all-or-none
// guards as the time-series store.
type memWork struct {
	mu sync.Mutex

	stamps    map[string]*models.WorkTimestamp
	apps      map[string]*models.TimeApplication
	appLogs   []*models.ApplicationLog
	tsLogs    []*models.TimestampLog
	approvals []*models.ApprovalLog

	markPaidErr error

	now func() time.Time
}

func newMemWork() *memWork {
	return &memWork{
		stamps: map[string]*models.WorkTimestamp{},
		apps:   map[string]*models.TimeApplication{},
		now:    time.Now,
	}
}

func copyApp(a *models.TimeApplication) *models.TimeApplication {
	cp := *a
	cp.TimestampIDs = append([]string(nil), a.TimestampIDs...)
	return &cp
}

func (w *memWork) CreateTimestamp(_ context.Context, ts *models.WorkTimestamp, log *models.TimestampLog) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	cp := *ts
	w.stamps[ts.ID] = &cp
	w.tsLogs = append(w.tsLogs, log)
	return nil
}

func (w *memWork) GetTimestamps(_ context.Context, workerID string, ids []string) ([]*models.WorkTimestamp, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []*models.WorkTimestamp
	for _, id := range ids {
		if ts, ok := w.stamps[id]; ok && ts.WorkerID == workerID {
			cp := *ts
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (w *memWork) ListTimestamps(_ context.Context, workerID string, from, to time.Time) ([]*models.WorkTimestamp, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []*models.WorkTimestamp
	for _, ts := range w.stamps {
		if ts.WorkerID == workerID && !ts.Timestamp.Before(from) && ts.Timestamp.Before(to) {
			cp := *ts
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (w *memWork) UpdateTimestamp(_ context.Context, ts *models.WorkTimestamp, log *models.TimestampLog) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	cur, ok := w.stamps[ts.ID]
	if !ok || cur.WorkerID != ts.WorkerID || cur.ApplicationStatus != models.LinkNone {
		return apperr.Conflict("timestamp_linked", "timestamp is linked to an application")
	}
	cp := *ts
	w.stamps[ts.ID] = &cp
	w.tsLogs = append(w.tsLogs, log)
	return nil
}

func (w *memWork) DeleteTimestamp(_ context.Context, workerID, id string, log *models.TimestampLog) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	cur, ok := w.stamps[id]
	if !ok || cur.WorkerID != workerID || cur.ApplicationStatus != models.LinkNone {
		return apperr.Conflict("timestamp_linked", "timestamp is linked to an application")
	}
	delete(w.stamps, id)
	w.tsLogs = append(w.tsLogs, log)
	return nil
}

func (w *memWork) setLinks(ids []string, from, to models.LinkStatus) {
	for _, id := range ids {
		if ts, ok := w.stamps[id]; ok && ts.ApplicationStatus == from {
			ts.ApplicationStatus = to
		}
	}
}

func (w *memWork) CreateApplication(_ context.Context, app *models.TimeApplication, log *models.ApplicationLog) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if app.OriginalApplicationID != "" {
		orig, ok := w.apps[app.OriginalApplicationID]
		if !ok {
			return apperr.NotFound("application")
		}
		if orig.Status != models.ApplicationRejected {
			return apperr.Conflict("application_status", "only rejected applications can be resubmitted")
		}
	}
	for _, id := range app.TimestampIDs {
		ts, ok := w.stamps[id]
		if !ok || ts.WorkerID != app.WorkerID || ts.ApplicationStatus != models.LinkNone {
			return apperr.Conflict("timestamp_linked", "some timestamps are already linked to an application")
		}
	}
	w.setLinks(app.TimestampIDs, models.LinkNone, models.LinkPending)
	w.apps[app.ID] = copyApp(app)
	w.appLogs = append(w.appLogs, log)
	return nil
}

func (w *memWork) GetApplication(_ context.Context, id string) (*models.TimeApplication, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	a, ok := w.apps[id]
	if !ok {
		return nil, apperr.NotFound("application")
	}
	return copyApp(a), nil
}

func (w *memWork) GetApplications(_ context.Context, ids []string) ([]*models.TimeApplication, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []*models.TimeApplication
	for _, id := range ids {
		if a, ok := w.apps[id]; ok {
			out = append(out, copyApp(a))
		}
	}
	return out, nil
}

func (w *memWork) decide(app *models.TimeApplication, log *models.ApplicationLog, approval *models.ApprovalLog, link models.LinkStatus) error {
	cur, ok := w.apps[app.ID]
	if !ok {
		return apperr.NotFound("application")
	}
	if cur.Status != models.ApplicationPending {
		return apperr.Conflict("application_status", "application is not pending")
	}
	w.apps[app.ID] = copyApp(app)
	w.setLinks(app.TimestampIDs, models.LinkPending, link)
	w.appLogs = append(w.appLogs, log)
	w.approvals = append(w.approvals, approval)
	return nil
}

func (w *memWork) ApproveApplication(_ context.Context, app *models.TimeApplication, log *models.ApplicationLog, approval *models.ApprovalLog) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.decide(app, log, approval, models.LinkApproved)
}

func (w *memWork) RejectApplication(_ context.Context, app *models.TimeApplication, log *models.ApplicationLog, approval *models.ApprovalLog) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.decide(app, log, approval, models.LinkNone)
}

func (w *memWork) CancelApplication(_ context.Context, app *models.TimeApplication, log *models.ApplicationLog) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	cur, ok := w.apps[app.ID]
	if !ok || cur.WorkerID != app.WorkerID || cur.Status != models.ApplicationPending {
		return apperr.Conflict("application_status", "application is not pending")
	}
	delete(w.apps, app.ID)
	w.setLinks(app.TimestampIDs, models.LinkPending, models.LinkNone)
	w.appLogs = append(w.appLogs, log)
	return nil
}

func (w *memWork) ListApplicationLogs(_ context.Context, applicationID string) ([]*models.ApplicationLog, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []*models.ApplicationLog
	for _, l := range w.appLogs {
		if l.ApplicationID == applicationID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (w *memWork) MarkApplicationsRequested(_ context.Context, workerID, requestID, _ string, ids []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, id := range ids {
		a, ok := w.apps[id]
		if !ok || a.WorkerID != workerID || a.Status != models.ApplicationApproved || a.PaymentRequestID != "" {
			return apperr.Conflict("application_status", "every application must be approved and not yet requested")
		}
	}
	for _, id := range ids {
		w.apps[id].Status = models.ApplicationRequested
		w.apps[id].PaymentRequestID = requestID
		w.apps[id].UpdatedAt = w.now().UTC()
	}
	return nil
}

func (w *memWork) ListRequestedApplications(_ context.Context, organizationID string, updatedBefore time.Time, limit int) ([]*models.TimeApplication, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []*models.TimeApplication
	for _, a := range w.apps {
		if a.Status != models.ApplicationRequested || !a.UpdatedAt.Before(updatedBefore) {
			continue
		}
		if organizationID != "" && a.OrganizationID != organizationID {
			continue
		}
		out = append(out, copyApp(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (w *memWork) byRequest(requestID string, from, to models.ApplicationStatus, linkFrom, linkTo models.LinkStatus, unlink bool) int {
	moved := 0
	for _, a := range w.apps {
		if a.PaymentRequestID != requestID || a.Status != from {
			continue
		}
		a.Status = to
		if unlink {
			a.PaymentRequestID = ""
		}
		w.setLinks(a.TimestampIDs, linkFrom, linkTo)
		moved++
	}
	return moved
}

func (w *memWork) RevertApplicationsRequested(_ context.Context, requestID, _ string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.byRequest(requestID, models.ApplicationRequested, models.ApplicationApproved,
		models.LinkApproved, models.LinkApproved, true), nil
}

func (w *memWork) MarkApplicationsPaid(_ context.Context, requestID, _ string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.markPaidErr != nil {
		return 0, w.markPaidErr
	}
	return w.byRequest(requestID, models.ApplicationRequested, models.ApplicationPaid,
		models.LinkApproved, models.LinkPaid, false), nil
}

func (w *memWork) RevertApplicationsPaid(_ context.Context, requestID, _ string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.byRequest(requestID, models.ApplicationPaid, models.ApplicationRequested,
		models.LinkPaid, models.LinkApproved, false), nil
}

func (w *memWork) app(id string) *models.TimeApplication {
	w.mu.Lock()
	defer w.mu.Unlock()
	return copyApp(w.apps[id])
}

func (w *memWork) stamp(id string) *models.WorkTimestamp {
	w.mu.Lock()
	defer w.mu.Unlock()
	cp := *w.stamps[id]
	return &cp
}

type fakeRates struct {
	mu    sync.Mutex
	rate  decimal.Decimal
	err   error
	calls int
}

func (f *fakeRates) ConvertFiatToCrypto(_ context.Context, amountUSD decimal.Decimal, _ models.CurrencyType) (decimal.Decimal, decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return decimal.Zero, decimal.Zero, f.err
	}
	return amountUSD.Div(f.rate).Round(6), f.rate, nil
}

type fakeGateway struct {
	mu sync.Mutex

	transfers   []models.TransferRequest
	transferRes *models.TransferResult
	transferErr error

	statusCalls int
	status      map[string]*models.TransferResult
	statusErr   error
	balance     decimal.Decimal
}

func (g *fakeGateway) Transfer(_ context.Context, req models.TransferRequest) (*models.TransferResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transfers = append(g.transfers, req)
	if g.transferErr != nil {
		return nil, g.transferErr
	}
	res := *g.transferRes
	return &res, nil
}

func (g *fakeGateway) TransactionStatus(_ context.Context, hash string, lastLedger uint32) (*models.TransferResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusCalls++
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	if res, ok := g.status[hash]; ok {
		cp := *res
		return &cp, nil
	}
	return &models.TransferResult{Outcome: models.OutcomePending, TxHash: hash, LastLedgerSequence: lastLedger}, nil
}

func (g *fakeGateway) Balance(context.Context, string, models.CurrencyType, *models.TokenIssuerConfig) (decimal.Decimal, error) {
	return g.balance, nil
}

func (g *fakeGateway) transferCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.transfers)
}

type recordingEvents struct {
	mu       sync.Mutex
	subjects []string
	err      error
}

func (e *recordingEvents) Publish(_ context.Context, subject string, _ interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subjects = append(e.subjects, subject)
	return e.err
}

func (e *recordingEvents) published() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.subjects...)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []*models.Notification
}

func (n *recordingNotifier) SendNotification(notification *models.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

var errStoreDown = errors.New("store unavailable")
