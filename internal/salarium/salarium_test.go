package salarium

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/salarium/internal/config"
	"github.com/core-coin/salarium/internal/models"
	"github.com/core-coin/salarium/pkg/logger"
	"github.com/core-coin/salarium/pkg/secret"
)

const (
	workerAddress = "rPT1Sjq2YGrBMTttX4GZHjKu9dyfzbpAYe"
	walletAddress = "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh"
	otherAddress  = "rMQ98K56yXJbDGv49ZSmW51sLn94Xe1mu1"
)

var (
	testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	workDay = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	txHash  = strings.Repeat("AB", 32)
)

type fixture struct {
	svc      *Salarium
	repo     *memRepo
	work     *memWork
	rates    *fakeRates
	gateway  *fakeGateway
	events   *recordingEvents
	notifier *recordingNotifier
	cipher   *secret.Encryptor

	worker models.Caller
	other  models.Caller
	admin  models.Caller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cipher, err := secret.NewEncryptor("test-encryption-key")
	require.NoError(t, err)
	sealed, err := cipher.Encrypt("sEdTestSecret")
	require.NoError(t, err)

	repo := newMemRepo()
	repo.now = func() time.Time { return testNow }
	repo.workers["worker-1"] = &models.Worker{ID: "worker-1", OrganizationID: "org-1", Email: "worker@example.com",
		HourlyRateUSD: decimal.RequireFromString("20"), Active: true}
	repo.workers["worker-2"] = &models.Worker{ID: "worker-2", OrganizationID: "org-1",
		HourlyRateUSD: decimal.RequireFromString("25"), Active: true}
	repo.addresses = append(repo.addresses, &models.CryptoAddress{ID: "addr-1", WorkerID: "worker-1",
		Address: workerAddress, IsDefault: true, IsActive: true})
	repo.wallets = append(repo.wallets, &models.OrganizationWallet{ID: "wallet-1", OrganizationID: "org-1",
		Address: walletAddress, CurrencyType: models.CurrencyXRP, EncryptedSecret: sealed, IsDefault: true, IsActive: true})
	repo.issuers[models.CurrencyRLUSD] = &models.TokenIssuerConfig{CurrencyType: models.CurrencyRLUSD,
		IssuerAddress: otherAddress, CurrencyCode: "RLUSD", Active: true}

	f := &fixture{
		repo:     repo,
		work:     newMemWork(),
		rates:    &fakeRates{rate: decimal.RequireFromString("0.5")},
		cipher:   cipher,
		events:   &recordingEvents{},
		notifier: &recordingNotifier{},
		gateway: &fakeGateway{
			transferRes: &models.TransferResult{
				Outcome:         models.OutcomeSuccess,
				TxHash:          txHash,
				LedgerIndex:     101,
				Fee:             "12",
				DeliveredAmount: "320000000",
				Delivered:       &models.LedgerAmount{Currency: "XRP", Value: decimal.RequireFromString("320")},
				ResultCode:      "tesSUCCESS",
				Account:         walletAddress,
				Destination:     workerAddress,
			},
			status: map[string]*models.TransferResult{},
		},
		worker: models.Caller{WorkerID: "worker-1", OrganizationID: "org-1"},
		other:  models.Caller{WorkerID: "worker-2", OrganizationID: "org-1"},
		admin:  models.Caller{AdminID: "admin-1", OrganizationID: "org-1"},
	}
	cfg := &config.Config{InstanceID: "test-instance", LedgerTimeout: time.Minute}
	f.svc = NewSalarium(repo, f.work, f.rates, f.gateway, cipher, f.notifier, f.events, logger.NewNop(), cfg)
	f.svc.now = func() time.Time { return testNow }
	f.work.now = func() time.Time { return testNow }
	return f
}

func (f *fixture) stamp(t *testing.T, caller models.Caller, status models.TimestampStatus, at time.Time) string {
	t.Helper()
	ts, err := f.svc.RecordTimestamp(context.Background(), caller, models.TimestampInput{Status: status, Timestamp: at})
	require.NoError(t, err)
	return ts.ID
}

// workDayStamps records a 09:00 to 17:00 shift on day.
func (f *fixture) workDayStamps(t *testing.T, day time.Time) []string {
	t.Helper()
	return []string{
		f.stamp(t, f.worker, models.TimestampWork, day.Add(9*time.Hour)),
		f.stamp(t, f.worker, models.TimestampEnd, day.Add(17*time.Hour)),
	}
}

func (f *fixture) pendingApplication(t *testing.T, day time.Time) *models.TimeApplication {
	t.Helper()
	app, err := f.svc.CreateApplication(context.Background(), f.worker, models.ApplicationInput{
		StartDate:    day,
		EndDate:      day,
		TimestampIDs: f.workDayStamps(t, day),
	})
	require.NoError(t, err)
	return app
}

func (f *fixture) approvedApplication(t *testing.T, day time.Time) *models.TimeApplication {
	t.Helper()
	app, err := f.svc.ApproveApplication(context.Background(), f.admin, f.pendingApplication(t, day).ID)
	require.NoError(t, err)
	return app
}

// paymentRequest creates a request over one approved 8h application:
// 160 USD, 320 XRP at 0.5.
func (f *fixture) paymentRequest(t *testing.T) *models.PaymentRequest {
	t.Helper()
	app := f.approvedApplication(t, workDay)
	req, err := f.svc.CreatePaymentRequest(context.Background(), f.worker, models.PaymentRequestInput{
		ApplicationIDs: []string{app.ID},
		CurrencyType:   models.CurrencyXRP,
	})
	require.NoError(t, err)
	return req
}
