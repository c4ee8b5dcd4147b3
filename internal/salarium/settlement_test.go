package salarium

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/salarium/internal/models"
	"github.com/core-coin/salarium/pkg/apperr"
)

func TestExecutePaymentCompletes(t *testing.T) {
	f := newFixture(t)
	req := f.paymentRequest(t)

	paid, err := f.svc.ExecutePayment(context.Background(), f.admin, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, paid.Status)
	require.NotNil(t, paid.TransactionHash)
	assert.Equal(t, txHash, *paid.TransactionHash)

	require.Equal(t, 1, f.gateway.transferCount())
	sent := f.gateway.transfers[0]
	assert.Equal(t, "sEdTestSecret", sent.SourceSecret)
	assert.Equal(t, walletAddress, sent.SourceAddress)
	assert.Equal(t, workerAddress, sent.Destination)
	assert.True(t, decimal.RequireFromString("320").Equal(sent.Amount))
	require.Len(t, sent.Memos, 1)
	assert.Equal(t, req.DataHash, sent.Memos[0].Data)

	stored := f.repo.request(req.ID)
	assert.Equal(t, models.PaymentCompleted, stored.Status)
	assert.Equal(t, "admin-1", stored.ApprovedBy)

	app := f.work.app(req.ApplicationIDs[0])
	assert.Equal(t, models.ApplicationPaid, app.Status)
	for _, id := range app.TimestampIDs {
		assert.Equal(t, models.LinkPaid, f.work.stamp(id).ApplicationStatus)
	}

	txs := f.repo.transactions()
	require.Len(t, txs, 1)
	assert.True(t, txs[0].Succeeded)
	assert.Equal(t, models.SigningCustodial, txs[0].SigningMode)

	hashLog, err := f.repo.GetPaymentHashLog(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, txHash, hashLog.TransactionHash)

	assert.Contains(t, f.events.published(), models.SubjectPaymentCompleted)
	assert.Eventually(t, func() bool { return f.notifier.count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestConcurrentExecutePaysOnce(t *testing.T) {
	f := newFixture(t)
	req := f.paymentRequest(t)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.ExecutePayment(context.Background(), f.admin, req.ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, apperr.Is(err, apperr.KindConflict), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, f.gateway.transferCount())
	assert.Equal(t, models.PaymentCompleted, f.repo.request(req.ID).Status)
	assert.Len(t, f.repo.transactions(), 1)
}

func TestExecutePaymentPendingResolvesWithoutResubmitting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.paymentRequest(t)
	f.gateway.transferRes = &models.TransferResult{Outcome: models.OutcomePending, TxHash: txHash, LastLedgerSequence: 120}

	pending, err := f.svc.ExecutePayment(ctx, f.admin, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, pending.Status)
	assert.Equal(t, txHash, pending.PendingTxHash)

	stored := f.repo.request(req.ID)
	assert.Equal(t, models.PaymentPending, stored.Status)
	assert.Equal(t, uint32(120), stored.PendingLastLedger)
	assert.Equal(t, models.ApplicationRequested, f.work.app(req.ApplicationIDs[0]).Status)

	f.gateway.mu.Lock()
	f.gateway.status[txHash] = &models.TransferResult{Outcome: models.OutcomeSuccess, TxHash: txHash, LedgerIndex: 115,
		ResultCode: "tesSUCCESS", Account: walletAddress, Destination: workerAddress}
	f.gateway.mu.Unlock()

	paid, err := f.svc.ExecutePayment(ctx, f.admin, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, paid.Status)
	assert.Equal(t, 1, f.gateway.transferCount())
	assert.Equal(t, models.ApplicationPaid, f.work.app(req.ApplicationIDs[0]).Status)
}

func TestExecutePaymentDefiniteFailureFreesApplications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.paymentRequest(t)
	f.gateway.transferErr = apperr.LedgerFailure("tecPATH_DRY", "transfer failed on the ledger")

	_, err := f.svc.ExecutePayment(ctx, f.admin, req.ID)
	assert.Equal(t, apperr.CodeLedgerFailure, apperr.CodeOf(err))

	stored := f.repo.request(req.ID)
	assert.Equal(t, models.PaymentFailed, stored.Status)
	assert.Equal(t, apperr.CodeLedgerFailure, stored.FailureCode)
	assert.Contains(t, stored.FailureReason, "tecPATH_DRY")

	app := f.work.app(req.ApplicationIDs[0])
	assert.Equal(t, models.ApplicationApproved, app.Status)
	assert.Empty(t, app.PaymentRequestID)
	assert.Contains(t, f.events.published(), models.SubjectPaymentFailed)

	_, err = f.svc.ExecutePayment(ctx, f.admin, req.ID)
	assert.Equal(t, "payment_request_status", apperr.CodeOf(err))

	again, err := f.svc.CreatePaymentRequest(ctx, f.worker, models.PaymentRequestInput{
		ApplicationIDs: []string{app.ID},
		CurrencyType:   models.CurrencyXRP,
	})
	require.NoError(t, err)
	assert.NotEqual(t, req.ID, again.ID)
}

func TestExecutePaymentTransportErrorReleases(t *testing.T) {
	f := newFixture(t)
	req := f.paymentRequest(t)
	f.gateway.transferErr = apperr.Payment(apperr.CodeLedgerUnavailable, "failed to sign transfer", errStoreDown)

	_, err := f.svc.ExecutePayment(context.Background(), f.admin, req.ID)
	assert.Equal(t, apperr.CodeLedgerUnavailable, apperr.CodeOf(err))

	stored := f.repo.request(req.ID)
	assert.Equal(t, models.PaymentPending, stored.Status)
	assert.Empty(t, stored.PendingTxHash)
	assert.Equal(t, models.ApplicationRequested, f.work.app(req.ApplicationIDs[0]).Status)
}

func TestExecutePaymentDestinationChanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.paymentRequest(t)

	_, err := f.svc.AddCryptoAddress(ctx, f.worker, models.AddressInput{Address: otherAddress, MakeDefault: true})
	require.NoError(t, err)

	_, err = f.svc.ExecutePayment(ctx, f.admin, req.ID)
	assert.Equal(t, apperr.CodeDestinationChanged, apperr.CodeOf(err))
	assert.Zero(t, f.gateway.transferCount())
	assert.Equal(t, models.PaymentFailed, f.repo.request(req.ID).Status)
	assert.Equal(t, models.ApplicationApproved, f.work.app(req.ApplicationIDs[0]).Status)
}

func TestExecutePaymentRefusesTamperedRequest(t *testing.T) {
	f := newFixture(t)
	req := f.paymentRequest(t)

	f.repo.mu.Lock()
	f.repo.requests[req.ID].CanonicalData = req.CanonicalData + " "
	f.repo.mu.Unlock()

	_, err := f.svc.ExecutePayment(context.Background(), f.admin, req.ID)
	assert.Equal(t, apperr.CodeHashMismatch, apperr.CodeOf(err))
	assert.Zero(t, f.gateway.transferCount())
	assert.Equal(t, models.PaymentPending, f.repo.request(req.ID).Status)
}

func TestCompletionFailureKeepsTransactionForReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.paymentRequest(t)
	f.repo.completeErr = errStoreDown

	_, err := f.svc.ExecutePayment(ctx, f.admin, req.ID)
	assert.ErrorIs(t, err, errStoreDown)

	stored := f.repo.request(req.ID)
	assert.Equal(t, models.PaymentPending, stored.Status)
	assert.Equal(t, txHash, stored.PendingTxHash)
	assert.Equal(t, models.ApplicationRequested, f.work.app(req.ApplicationIDs[0]).Status, "paid step compensated")

	f.repo.mu.Lock()
	f.repo.completeErr = nil
	f.repo.mu.Unlock()
	f.gateway.mu.Lock()
	f.gateway.status[txHash] = &models.TransferResult{Outcome: models.OutcomeSuccess, TxHash: txHash, LedgerIndex: 101,
		ResultCode: "tesSUCCESS", Account: walletAddress, Destination: workerAddress}
	f.gateway.mu.Unlock()

	report, err := f.svc.ReconcilePayments(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Completed)
	assert.Equal(t, models.PaymentCompleted, f.repo.request(req.ID).Status)
	assert.Equal(t, models.ApplicationPaid, f.work.app(req.ApplicationIDs[0]).Status)
	assert.Equal(t, 1, f.gateway.transferCount())
}

func TestCompleteManualPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.paymentRequest(t)

	_, err := f.svc.CompleteManualPayment(ctx, f.admin, req.ID, txHash)
	assert.Equal(t, "custodial_wallet", apperr.CodeOf(err))

	f.repo.mu.Lock()
	f.repo.wallets[0].ManualSigning = true
	f.repo.wallets[0].EncryptedSecret = ""
	f.repo.mu.Unlock()

	_, err = f.svc.ExecutePayment(ctx, f.admin, req.ID)
	assert.Equal(t, "manual_signing_required", apperr.CodeOf(err))

	_, err = f.svc.CompleteManualPayment(ctx, f.admin, req.ID, "not-a-hash")
	assert.Equal(t, "invalid_tx_hash", apperr.CodeOf(err))

	f.gateway.mu.Lock()
	f.gateway.status[txHash] = &models.TransferResult{Outcome: models.OutcomeSuccess, TxHash: txHash, LedgerIndex: 99,
		ResultCode: "tesSUCCESS", Account: walletAddress, Destination: otherAddress}
	f.gateway.mu.Unlock()
	_, err = f.svc.CompleteManualPayment(ctx, f.admin, req.ID, txHash)
	assert.Equal(t, "invalid_tx_hash", apperr.CodeOf(err), "wrong destination")
	assert.Equal(t, models.PaymentPending, f.repo.request(req.ID).Status)

	f.gateway.mu.Lock()
	f.gateway.status[txHash].Destination = workerAddress
	f.gateway.status[txHash].Delivered = &models.LedgerAmount{Currency: "XRP", Value: decimal.RequireFromString("320")}
	f.gateway.mu.Unlock()
	paid, err := f.svc.CompleteManualPayment(ctx, f.admin, req.ID, strings.ToLower(txHash))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, paid.Status)
	assert.Zero(t, f.gateway.transferCount())

	txs := f.repo.transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, models.SigningManual, txs[0].SigningMode)
}

func TestManualPaymentUnconfirmedIsKeptPending(t *testing.T) {
	f := newFixture(t)
	req := f.paymentRequest(t)
	f.repo.mu.Lock()
	f.repo.wallets[0].ManualSigning = true
	f.repo.mu.Unlock()

	pending, err := f.svc.CompleteManualPayment(context.Background(), f.admin, req.ID, txHash)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, pending.Status)
	assert.Equal(t, txHash, f.repo.request(req.ID).PendingTxHash)
}

// manualFixture returns a fixture whose organization wallet is signed
// externally, with one payment request of 320 XRP.
func manualFixture(t *testing.T) (*fixture, *models.PaymentRequest) {
	t.Helper()
	f := newFixture(t)
	req := f.paymentRequest(t)
	f.repo.mu.Lock()
	f.repo.wallets[0].ManualSigning = true
	f.repo.wallets[0].EncryptedSecret = ""
	f.repo.mu.Unlock()
	return f, req
}

func (f *fixture) validated(hash string, delivered *models.LedgerAmount) {
	f.gateway.mu.Lock()
	defer f.gateway.mu.Unlock()
	f.gateway.status[hash] = &models.TransferResult{Outcome: models.OutcomeSuccess, TxHash: hash, LedgerIndex: 99,
		ResultCode: "tesSUCCESS", Account: walletAddress, Destination: workerAddress, Delivered: delivered}
}

func TestCompleteManualPaymentRejectsShortDelivery(t *testing.T) {
	f, req := manualFixture(t)
	f.validated(txHash, &models.LedgerAmount{Currency: "XRP", Value: decimal.RequireFromString("0.000001")})

	_, err := f.svc.CompleteManualPayment(context.Background(), f.admin, req.ID, txHash)
	assert.Equal(t, "invalid_tx_hash", apperr.CodeOf(err))

	stored := f.repo.request(req.ID)
	assert.Equal(t, models.PaymentPending, stored.Status)
	assert.Empty(t, stored.PendingTxHash)
	assert.Empty(t, f.repo.transactions())
	assert.Equal(t, models.ApplicationRequested, f.work.app(req.ApplicationIDs[0]).Status)
}

func TestCompleteManualPaymentRejectsWrongCurrency(t *testing.T) {
	tests := []struct {
		name      string
		delivered *models.LedgerAmount
	}{
		{"issued token", &models.LedgerAmount{Currency: "USD", Issuer: otherAddress, Value: decimal.RequireFromString("320")}},
		{"xrp with issuer", &models.LedgerAmount{Currency: "XRP", Issuer: otherAddress, Value: decimal.RequireFromString("320")}},
		{"nothing delivered", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, req := manualFixture(t)
			f.validated(txHash, tt.delivered)

			_, err := f.svc.CompleteManualPayment(context.Background(), f.admin, req.ID, txHash)
			assert.Equal(t, "invalid_tx_hash", apperr.CodeOf(err))
			assert.Equal(t, models.PaymentPending, f.repo.request(req.ID).Status)
			assert.Empty(t, f.repo.transactions())
		})
	}
}

func TestCompleteManualPaymentAcceptsOverpayment(t *testing.T) {
	f, req := manualFixture(t)
	f.validated(txHash, &models.LedgerAmount{Currency: "XRP", Value: decimal.RequireFromString("320.5")})

	paid, err := f.svc.CompleteManualPayment(context.Background(), f.admin, req.ID, txHash)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, paid.Status)
}

func TestReconcileDropsManualHashThatDoesNotPay(t *testing.T) {
	f, req := manualFixture(t)
	ctx := context.Background()

	pending, err := f.svc.CompleteManualPayment(ctx, f.admin, req.ID, txHash)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, pending.Status)
	assert.Equal(t, models.SigningManual, f.repo.request(req.ID).PendingSigningMode)

	f.validated(txHash, &models.LedgerAmount{Currency: "XRP", Value: decimal.RequireFromString("320")})
	f.gateway.mu.Lock()
	f.gateway.status[txHash].Destination = otherAddress
	f.gateway.mu.Unlock()

	report, err := f.svc.ReconcilePayments(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, report.Completed)
	require.Len(t, report.Errors, 1)

	stored := f.repo.request(req.ID)
	assert.Equal(t, models.PaymentPending, stored.Status)
	assert.Empty(t, stored.PendingTxHash)
	assert.Empty(t, stored.PendingSigningMode)
	assert.Empty(t, f.repo.transactions())
	assert.Equal(t, models.ApplicationRequested, f.work.app(req.ApplicationIDs[0]).Status)

	// nothing left to resolve
	report, err = f.svc.ReconcilePayments(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, report.Errors)
}

func TestReconcileCompletesManualHashThatPays(t *testing.T) {
	f, req := manualFixture(t)
	ctx := context.Background()

	_, err := f.svc.CompleteManualPayment(ctx, f.admin, req.ID, txHash)
	require.NoError(t, err)
	f.validated(txHash, &models.LedgerAmount{Currency: "XRP", Value: decimal.RequireFromString("320")})

	report, err := f.svc.ReconcilePayments(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Completed)
	assert.Equal(t, models.PaymentCompleted, f.repo.request(req.ID).Status)

	txs := f.repo.transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, models.SigningManual, txs[0].SigningMode)
}

func TestReconcileReleasesOrphanedApplications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orphan := f.approvedApplication(t, workDay)
	recent := f.approvedApplication(t, workDay.AddDate(0, 0, 1))

	// applications marked for requests whose row was never written
	f.work.now = func() time.Time { return testNow.Add(-time.Hour) }
	require.NoError(t, f.work.MarkApplicationsRequested(ctx, "worker-1", "lost-request", "worker-1", []string{orphan.ID}))
	f.work.now = func() time.Time { return testNow.Add(-time.Minute) }
	require.NoError(t, f.work.MarkApplicationsRequested(ctx, "worker-1", "creating-request", "worker-1", []string{recent.ID}))

	report, err := f.svc.ReconcilePayments(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Repaired)

	released := f.work.app(orphan.ID)
	assert.Equal(t, models.ApplicationApproved, released.Status)
	assert.Empty(t, released.PaymentRequestID)
	assert.Equal(t, models.ApplicationRequested, f.work.app(recent.ID).Status, "within grace period")

	req, err := f.svc.CreatePaymentRequest(ctx, f.worker, models.PaymentRequestInput{
		ApplicationIDs: []string{orphan.ID},
		CurrencyType:   models.CurrencyXRP,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, req.Status)
}

func TestReconcileKeepsApplicationsOfStoredRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.work.now = func() time.Time { return testNow.Add(-time.Hour) }
	req := f.paymentRequest(t)

	report, err := f.svc.ReconcilePayments(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, report.Repaired)
	assert.Equal(t, models.ApplicationRequested, f.work.app(req.ApplicationIDs[0]).Status)
}

func TestReleaseFailureIsReported(t *testing.T) {
	f := newFixture(t)
	req := f.paymentRequest(t)
	errRelease := errors.New("release lost")
	f.gateway.transferErr = apperr.Payment(apperr.CodeLedgerUnavailable, "ledger unreachable", errStoreDown)
	f.repo.releaseErr = errRelease

	_, err := f.svc.ExecutePayment(context.Background(), f.admin, req.ID)
	assert.ErrorIs(t, err, errRelease)
	assert.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, apperr.CodeLedgerUnavailable, apperr.CodeOf(err))
	assert.Equal(t, models.PaymentProcessing, f.repo.request(req.ID).Status)
}

func TestReconcileIsScopedToOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.paymentRequest(t)
	f.gateway.transferRes = &models.TransferResult{Outcome: models.OutcomePending, TxHash: txHash, LastLedgerSequence: 120}
	_, err := f.svc.ExecutePayment(ctx, f.admin, req.ID)
	require.NoError(t, err)
	f.validated(txHash, &models.LedgerAmount{Currency: "XRP", Value: decimal.RequireFromString("320")})
	calls := f.gateway.statusCalls

	report, err := f.svc.ReconcilePayments(ctx, "org-2")
	require.NoError(t, err)
	assert.Zero(t, report.Completed)
	assert.Equal(t, calls, f.gateway.statusCalls)
	assert.Equal(t, models.PaymentPending, f.repo.request(req.ID).Status)

	report, err = f.svc.ReconcilePayments(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Completed)
	assert.Equal(t, models.PaymentCompleted, f.repo.request(req.ID).Status)
}

func TestReconcileFailsExpiredTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.paymentRequest(t)
	f.gateway.transferRes = &models.TransferResult{Outcome: models.OutcomePending, TxHash: txHash, LastLedgerSequence: 120}
	_, err := f.svc.ExecutePayment(ctx, f.admin, req.ID)
	require.NoError(t, err)

	f.gateway.mu.Lock()
	f.gateway.statusErr = apperr.LedgerFailure("tefMAX_LEDGER", "transfer expired without being validated")
	f.gateway.mu.Unlock()

	report, err := f.svc.ReconcilePayments(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	stored := f.repo.request(req.ID)
	assert.Equal(t, models.PaymentFailed, stored.Status)
	assert.Empty(t, stored.PendingTxHash)
	assert.Equal(t, models.ApplicationApproved, f.work.app(req.ApplicationIDs[0]).Status)

	txs := f.repo.transactions()
	require.Len(t, txs, 1)
	assert.False(t, txs[0].Succeeded)
	assert.Equal(t, "tefMAX_LEDGER", txs[0].ResultCode)
}

func TestReconcileLeavesUnresolvedPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.paymentRequest(t)
	f.gateway.transferRes = &models.TransferResult{Outcome: models.OutcomePending, TxHash: txHash, LastLedgerSequence: 120}
	_, err := f.svc.ExecutePayment(ctx, f.admin, req.ID)
	require.NoError(t, err)

	report, err := f.svc.ReconcilePayments(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.StillPending)
	stored := f.repo.request(req.ID)
	assert.Equal(t, models.PaymentPending, stored.Status)
	assert.Equal(t, txHash, stored.PendingTxHash)
}

func TestReconcileRepairsInterruptedCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.paymentRequest(t)
	_, err := f.svc.ExecutePayment(ctx, f.admin, req.ID)
	require.NoError(t, err)

	// applications left behind as if the process died between the two steps
	_, err = f.work.RevertApplicationsPaid(ctx, req.ID, "test")
	require.NoError(t, err)

	report, err := f.svc.ReconcilePayments(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Repaired)
	assert.Equal(t, models.ApplicationPaid, f.work.app(req.ApplicationIDs[0]).Status)

	report, err = f.svc.ReconcilePayments(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, report.Repaired)
}

func TestReconcilerTakesLease(t *testing.T) {
	f := newFixture(t)
	f.repo.locks[reconcilerLockName] = "other-instance"

	f.svc.StartReconciler(5 * time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	f.svc.Stop()

	assert.Equal(t, "other-instance", f.repo.locks[reconcilerLockName])
}
