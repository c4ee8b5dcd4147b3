package salarium

import (
	"context"
	"time"

	"github.com/core-coin/salarium/internal/config"
	"github.com/core-coin/salarium/internal/models"
	"github.com/core-coin/salarium/pkg/apperr"
	"github.com/core-coin/salarium/pkg/logger"
)

const (
	// reconcilerActor is recorded as the actor of background settlements
	reconcilerActor = "reconciler"

	// reconcileBatch caps the requests looked at per status in one pass
	reconcileBatch = 100

	// repairWindow is how far back completed and failed requests are
	// checked for applications left behind by an interrupted saga
	repairWindow = 7 * 24 * time.Hour

	paymentHashMemoType   = "salarium/payment-hash"
	paymentHashMemoFormat = "text/plain"
)

// Salarium serves the payroll use cases: work time capture, the application
// lifecycle and settlement of payment requests on the ledger.
type Salarium struct {
	logger *logger.Logger
	config *config.Config

	repo        models.Repository
	work        models.WorkStore
	rates       models.RateService
	gateway     models.PaymentGateway
	cipher      models.SecretCipher
	notificator models.NotificationService
	events      models.EventPublisher

	now func() time.Time

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSalarium creates a new Salarium instance
func NewSalarium(
	repo models.Repository,
	work models.WorkStore,
	rates models.RateService,
	gateway models.PaymentGateway,
	cipher models.SecretCipher,
	notificator models.NotificationService,
	events models.EventPublisher,
	logger *logger.Logger,
	config *config.Config,
) *Salarium {
	return &Salarium{
		repo:        repo,
		work:        work,
		rates:       rates,
		gateway:     gateway,
		cipher:      cipher,
		notificator: notificator,
		events:      events,
		logger:      logger,
		config:      config,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

var _ models.SalariumI = (*Salarium)(nil)

func requireWorker(caller models.Caller) error {
	if caller.WorkerID == "" {
		return apperr.Authorization("only workers can perform this action")
	}
	return nil
}

func requireAdmin(caller models.Caller) error {
	if !caller.IsAdmin() {
		return apperr.Authorization("only administrators can perform this action")
	}
	return nil
}

// sameOrganization rejects callers acting on another tenant's data.
func sameOrganization(caller models.Caller, organizationID string) error {
	if caller.OrganizationID == "" || caller.OrganizationID != organizationID {
		return apperr.Authorization("resource belongs to another organization")
	}
	return nil
}

// canRead reports whether caller may see a record owned by workerID in
// organizationID: the worker themself or an administrator of the tenant.
func canRead(caller models.Caller, workerID, organizationID string) error {
	if caller.IsAdmin() {
		return sameOrganization(caller, organizationID)
	}
	if caller.WorkerID == "" || caller.WorkerID != workerID {
		return apperr.Authorization("resource belongs to another worker")
	}
	return nil
}

// loadWorker returns the caller's active worker record.
func (s *Salarium) loadWorker(ctx context.Context, caller models.Caller) (*models.Worker, error) {
	worker, err := s.repo.GetWorker(ctx, caller.WorkerID)
	if err != nil {
		return nil, err
	}
	if err := sameOrganization(caller, worker.OrganizationID); err != nil {
		return nil, err
	}
	if !worker.Active {
		return nil, apperr.Authorization("worker is not active")
	}
	return worker, nil
}

// publish sends an event to the bus. The bus is best effort.
func (s *Salarium) publish(ctx context.Context, subject string, req *models.PaymentRequest) {
	if s.events == nil {
		return
	}
	event := &models.PaymentEvent{
		RequestID:      req.ID,
		OrganizationID: req.OrganizationID,
		WorkerID:       req.WorkerID,
		Status:         req.Status,
		CurrencyType:   req.CurrencyType,
		CryptoAmount:   req.CryptoAmount,
		AmountUSD:      req.AmountUSD,
		FailureCode:    req.FailureCode,
	}
	if req.TransactionHash != nil {
		event.TxHash = *req.TransactionHash
	} else {
		event.TxHash = req.PendingTxHash
	}
	if err := s.events.Publish(context.WithoutCancel(ctx), subject, event); err != nil {
		s.logger.Warn("Failed to publish event", "subject", subject, "request_id", req.ID, "error", err)
	}
}

// notify tells the worker and the operators about a settlement outcome.
func (s *Salarium) notify(ctx context.Context, req *models.PaymentRequest) {
	if s.notificator == nil {
		return
	}
	notification := &models.Notification{
		RequestID: req.ID,
		WorkerID:  req.WorkerID,
		Status:    req.Status,
		Amount:    req.CryptoAmount,
		Currency:  req.CurrencyType,
		Reason:    req.FailureReason,
	}
	if req.TransactionHash != nil {
		notification.TxHash = *req.TransactionHash
	}
	if worker, err := s.repo.GetWorker(context.WithoutCancel(ctx), req.WorkerID); err == nil {
		notification.WorkerEmail = worker.Email
	}
	go s.notificator.SendNotification(notification)
}
