package http_api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/core-coin/salarium/internal/models"
	"github.com/core-coin/salarium/pkg/apperr"
)

const dateLayout = "2006-01-02"

// envelope is the body of every API response.
type envelope struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
	Field   string      `json:"field,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type TimestampRequest struct {
	Status    models.TimestampStatus `json:"status" binding:"required"`
	Timestamp *time.Time             `json:"timestamp"`
	Memo      string                 `json:"memo"`
}

type TimestampPatch struct {
	Status    *models.TimestampStatus `json:"status"`
	Timestamp *time.Time              `json:"timestamp"`
	Memo      *string                 `json:"memo"`
}

type ApplicationRequest struct {
	StartDate             string   `json:"start_date" binding:"required"`
	EndDate               string   `json:"end_date" binding:"required"`
	TimestampIDs          []string `json:"timestamp_ids" binding:"required"`
	Memo                  string   `json:"memo"`
	OriginalApplicationID string   `json:"original_application_id"`
}

type RejectRequest struct {
	Reason   string `json:"reason"`
	Category string `json:"category"`
}

type PaymentRequestBody struct {
	ApplicationIDs []string            `json:"application_ids" binding:"required"`
	CurrencyType   models.CurrencyType `json:"currency_type" binding:"required"`
	IdempotencyKey string              `json:"idempotency_key"`
}

type ManualCompletionRequest struct {
	TxHash string `json:"tx_hash" binding:"required"`
}

type AddressRequest struct {
	Address        string  `json:"address" binding:"required"`
	DestinationTag *uint32 `json:"destination_tag"`
	MakeDefault    bool    `json:"make_default"`
}

type WalletRequest struct {
	Address       string              `json:"address" binding:"required"`
	CurrencyType  models.CurrencyType `json:"currency_type" binding:"required"`
	Secret        string              `json:"secret"`
	ManualSigning bool                `json:"manual_signing"`
	MakeDefault   bool                `json:"make_default"`
}

func statusOf(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindPayment:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, envelope{Success: true, Data: data})
}

// fail writes err as an envelope. Internal errors are logged and hidden from
// the client.
func (s *HTTPServer) fail(c *gin.Context, err error) {
	status := statusOf(err)
	body := envelope{Error: "internal error", Code: "internal"}

	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Kind != apperr.KindInternal {
		body.Error = appErr.Message
		if appErr.Detail != "" {
			body.Error += " (" + appErr.Detail + ")"
		}
		body.Code = appErr.Code
		body.Field = appErr.Field
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	} else {
		s.logger.Debug("Request rejected", "path", c.FullPath(), "code", body.Code, "error", err)
	}
	c.JSON(status, body)
}

func (s *HTTPServer) bind(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		s.logger.Debug("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, envelope{Error: "Invalid request body: " + err.Error(), Code: "invalid_body"})
		return false
	}
	return true
}

func (s *HTTPServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *HTTPServer) recordTimestamp(c *gin.Context) {
	var req TimestampRequest
	if !s.bind(c, &req) {
		return
	}
	in := models.TimestampInput{Status: req.Status, Memo: req.Memo}
	if req.Timestamp != nil {
		in.Timestamp = *req.Timestamp
	}
	ts, err := s.salarium.RecordTimestamp(c.Request.Context(), callerFrom(c), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respond(c, http.StatusCreated, ts)
}

func (s *HTTPServer) updateTimestamp(c *gin.Context) {
	var req TimestampPatch
	if !s.bind(c, &req) {
		return
	}
	ts, err := s.salarium.UpdateTimestamp(c.Request.Context(), callerFrom(c), c.Param("id"), models.TimestampUpdate{
		Status:    req.Status,
		Timestamp: req.Timestamp,
		Memo:      req.Memo,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respond(c, http.StatusOK, ts)
}

func (s *HTTPServer) deleteTimestamp(c *gin.Context) {
	if err := s.salarium.DeleteTimestamp(c.Request.Context(), callerFrom(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	s.respond(c, http.StatusOK, nil)
}

// listTimestamps answers GET /timestamps?from=YYYY-MM-DD&to=YYYY-MM-DD, both
// days included.
func (s *HTTPServer) listTimestamps(c *gin.Context) {
	from, err := time.Parse(dateLayout, c.Query("from"))
	if err != nil {
		s.fail(c, apperr.Validation("from", "from must be YYYY-MM-DD"))
		return
	}
	to, err := time.Parse(dateLayout, c.Query("to"))
	if err != nil {
		s.fail(c, apperr.Validation("to", "to must be YYYY-MM-DD"))
		return
	}
	stamps, err := s.salarium.ListTimestamps(c.Request.Context(), callerFrom(c), models.TimestampQuery{
		WorkerID: c.Query("worker_id"),
		From:     from,
		To:       to.AddDate(0, 0, 1),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respond(c, http.StatusOK, stamps)
}

func (s *HTTPServer) createApplication(c *gin.Context) {
	var req ApplicationRequest
	if !s.bind(c, &req) {
		return
	}
	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		s.fail(c, apperr.Validation("start_date", "start_date must be YYYY-MM-DD"))
		return
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		s.fail(c, apperr.Validation("end_date", "end_date must be YYYY-MM-DD"))
		return
	}

	app, err := s.salarium.CreateApplication(c.Request.Context(), callerFrom(c), models.ApplicationInput{
		StartDate:             start,
		EndDate:               end,
		TimestampIDs:          req.TimestampIDs,
		Memo:                  req.Memo,
		OriginalApplicationID: req.OriginalApplicationID,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respond(c, http.StatusCreated, app)
}

func (s *HTTPServer) approveApplication(c *gin.Context) {
	app, err := s.salarium.ApproveApplication(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respond(c, http.StatusOK, app)
}

func (s *HTTPServer) rejectApplication(c *gin.Context) {
	var req RejectRequest
	if !s.bind(c, &req) {
		return
	}
	app, err := s.salarium.RejectApplication(c.Request.Context(), callerFrom(c), c.Param("id"), models.RejectionInput{
		Reason:   req.Reason,
		Category: req.Category,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respond(c, http.StatusOK, app)
}

func (s *HTTPServer) cancelApplication(c *gin.Context) {
	if err := s.salarium.CancelApplication(c.Request.Context(), callerFrom(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	s.respond(c, http.StatusOK, nil)
}

func (s *HTTPServer) applicationHistory(c *gin.Context) {
	logs, err := s.salarium.GetApplicationHistory(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respond(c, http.StatusOK, logs)
}

func (s *HTTPServer) createPaymentRequest(c *gin.Context) {
	var req PaymentRequestBody
	if !s.bind(c, &req) {
		return
	}
	// the header wins over the body
	key := c.GetHeader("Idempotency-Key")
	if key == "" {
		key = req.IdempotencyKey
	}

	pr, err := s.salarium.CreatePaymentRequest(c.Request.Context(), callerFrom(c), models.PaymentRequestInput{
		ApplicationIDs: req.ApplicationIDs,
		CurrencyType:   req.CurrencyType,
		IdempotencyKey: key,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respond(c, http.StatusCreated, pr)
}

func (s *HTTPServer) getPaymentRequest(c *gin.Context) {
	pr, err := s.salarium.GetPaymentRequest(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respond(c, http.StatusOK, pr)
}

// settled answers 202 while the transfer awaits validation on the ledger.
func (s *HTTPServer) settled(c *gin.Context, pr *models.PaymentRequest, err error) {
	if err != nil {
		s.fail(c, err)
		return
	}
	if pr.Status == models.PaymentPending {
		s.respond(c, http.StatusAccepted, pr)
		return
	}
	s.respond(c, http.StatusOK, pr)
}

func (s *HTTPServer) executePayment(c *gin.Context) {
	pr, err := s.salarium.ExecutePayment(c.Request.Context(), callerFrom(c), c.Param("id"))
	s.settled(c, pr, err)
}

func (s *HTTPServer) completeManualPayment(c *gin.Context) {
	var req ManualCompletionRequest
	if !s.bind(c, &req) {
		return
	}
	pr, err := s.salarium.CompleteManualPayment(c.Request.Context(), callerFrom(c), c.Param("id"), req.TxHash)
	s.settled(c, pr, err)
}

func (s *HTTPServer) verifyPaymentHash(c *gin.Context) {
	caller := callerFrom(c)
	if _, err := s.salarium.GetPaymentRequest(c.Request.Context(), caller, c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	result, err := s.salarium.VerifyPaymentHash(c.Request.Context(), c.Param("id"))
	if err != nil && result == nil {
		s.fail(c, err)
		return
	}
	if err != nil {
		s.logger.Warn("Payment hash verification failed", "request_id", result.RequestID, "admin_id", caller.AdminID)
		c.JSON(http.StatusConflict, envelope{Error: "payment data does not match its recorded hash",
			Code: apperr.CodeHashMismatch, Data: result})
		return
	}
	s.respond(c, http.StatusOK, result)
}

func (s *HTTPServer) listAddresses(c *gin.Context) {
	addrs, err := s.salarium.ListCryptoAddresses(c.Request.Context(), callerFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respond(c, http.StatusOK, addrs)
}

func (s *HTTPServer) addAddress(c *gin.Context) {
	var req AddressRequest
	if !s.bind(c, &req) {
		return
	}
	addr, err := s.salarium.AddCryptoAddress(c.Request.Context(), callerFrom(c), models.AddressInput{
		Address:        req.Address,
		DestinationTag: req.DestinationTag,
		MakeDefault:    req.MakeDefault,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respond(c, http.StatusCreated, addr)
}

func (s *HTTPServer) setDefaultAddress(c *gin.Context) {
	if err := s.salarium.SetDefaultCryptoAddress(c.Request.Context(), callerFrom(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	s.respond(c, http.StatusOK, nil)
}

func (s *HTTPServer) deleteAddress(c *gin.Context) {
	if err := s.salarium.DeleteCryptoAddress(c.Request.Context(), callerFrom(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	s.respond(c, http.StatusOK, nil)
}

func (s *HTTPServer) addWallet(c *gin.Context) {
	var req WalletRequest
	if !s.bind(c, &req) {
		return
	}
	wallet, err := s.salarium.AddOrganizationWallet(c.Request.Context(), callerFrom(c), models.WalletInput{
		Address:       req.Address,
		CurrencyType:  req.CurrencyType,
		Secret:        req.Secret,
		ManualSigning: req.ManualSigning,
		MakeDefault:   req.MakeDefault,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respond(c, http.StatusCreated, wallet)
}

func (s *HTTPServer) balance(c *gin.Context) {
	currency := models.CurrencyType(c.DefaultQuery("currency", string(models.CurrencyXRP)))
	balance, err := s.salarium.GetBalance(c.Request.Context(), c.Param("address"), currency)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respond(c, http.StatusOK, gin.H{"address": c.Param("address"), "currency": currency, "balance": balance})
}

func (s *HTTPServer) reconcile(c *gin.Context) {
	report, err := s.salarium.ReconcilePayments(c.Request.Context(), callerFrom(c).OrganizationID)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respond(c, http.StatusOK, report)
}
