package service

import (
	"encoding/json"
	"fmt"

	"market/internal/gateway"
	"market/internal/metrics"
	"market/internal/models"
	"market/pkg/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentStore is the persistence surface the payment service needs.
type PaymentStore interface {
	Create(p *models.Payment) error
	Save(p *models.Payment) error
	GetByPaymentID(paymentID string) (*models.Payment, error)
	CompleteByPaymentID(paymentID string) (*models.Payment, error)
	Refund(p *models.Payment, txn *models.Transaction) error
	LogTransaction(t *models.Transaction) error
}

// InitiateResult is the soft-failure shape returned to callers: gateway
// trouble never surfaces as an error from InitiatePayment.
type InitiateResult struct {
	Success    bool   `json:"success"`
	PaymentURL string `json:"payment_url,omitempty"`
	Error      string `json:"error,omitempty"`
}

type PaymentService struct {
	payments PaymentStore
	registry *gateway.Registry
	siteURL  string
}

func NewPaymentService(payments PaymentStore, registry *gateway.Registry, siteURL string) *PaymentService {
	return &PaymentService{payments: payments, registry: registry, siteURL: siteURL}
}

// CreatePayment persists a pending payment for the order plus the initial
// authorization audit row.
func (s *PaymentService) CreatePayment(order *models.Order, gatewayName, ipAddress, userAgent string) (*models.Payment, error) {
	payment := &models.Payment{
		OrderID:   order.ID,
		Gateway:   gatewayName,
		Amount:    order.TotalAmount,
		Currency:  order.Currency,
		Status:    models.PaymentStatusPending,
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
	if err := s.payments.Create(payment); err != nil {
		return nil, err
	}

	_ = s.payments.LogTransaction(&models.Transaction{
		PaymentID:       payment.ID,
		TransactionType: models.TransactionTypeAuthorization,
		Status:          models.PaymentStatusPending,
		IPAddress:       ipAddress,
	})
	return payment, nil
}

// InitiatePayment asks the gateway adapter for a redirect target. Adapter
// failure marks the payment failed and comes back as a soft result, not
// an error. Cash and card have no adapter; they settle on delivery and the
// payment just stays pending.
func (s *PaymentService) InitiatePayment(payment *models.Payment, order *models.Order) InitiateResult {
	if payment.Gateway == models.PaymentMethodCash || payment.Gateway == models.PaymentMethodCard {
		return InitiateResult{Success: true}
	}

	g, ok := s.registry.Get(payment.Gateway)
	if !ok {
		return InitiateResult{Success: false, Error: fmt.Sprintf("Unsupported payment gateway: %s", payment.Gateway)}
	}

	returnURL := fmt.Sprintf("%s/api/v1/payments/success?payment_id=%s", s.siteURL, payment.PaymentID)
	result, err := g.CreatePayment(payment.Amount, payment.Currency, order.OrderNumber,
		fmt.Sprintf("Order #%s", order.OrderNumber), returnURL)
	if err != nil {
		s.markFailed(payment, err.Error())
		return InitiateResult{Success: false, Error: err.Error()}
	}

	raw, _ := json.Marshal(result)
	payment.GatewayTransactionID = &result.TransactionID
	payment.Status = models.PaymentStatusProcessing
	payment.GatewayResponse = string(raw)
	if err := s.payments.Save(payment); err != nil {
		return InitiateResult{Success: false, Error: err.Error()}
	}

	_ = s.payments.LogTransaction(&models.Transaction{
		PaymentID:            payment.ID,
		TransactionType:      models.TransactionTypeAuthorization,
		Status:               models.PaymentStatusProcessing,
		GatewayTransactionID: result.TransactionID,
		RequestData:          `{"action":"initiate"}`,
		ResponseData:         string(raw),
	})

	return InitiateResult{Success: true, PaymentURL: result.PaymentURL}
}

// VerifyPayment polls the gateway for the payment's state. Used by the
// success-return handler as an independent check next to the webhook; a
// positive answer completes the payment.
func (s *PaymentService) VerifyPayment(payment *models.Payment) (*gateway.VerifyResult, error) {
	g, ok := s.registry.Get(payment.Gateway)
	if !ok {
		return nil, fmt.Errorf("unsupported payment gateway: %s", payment.Gateway)
	}

	result, err := g.VerifyPayment(payment.GatewayTxnID())
	if err != nil {
		return nil, err
	}

	status := models.PaymentStatusFailed
	if result.IsSuccessful {
		status = models.PaymentStatusCompleted
	}
	raw, _ := json.Marshal(result)
	_ = s.payments.LogTransaction(&models.Transaction{
		PaymentID:            payment.ID,
		TransactionType:      models.TransactionTypeCapture,
		Status:               status,
		GatewayTransactionID: payment.GatewayTxnID(),
		ResponseData:         string(raw),
	})

	if result.IsSuccessful {
		if _, err := s.payments.CompleteByPaymentID(payment.PaymentID); err != nil {
			return nil, err
		}
		metrics.PaymentsCompletedTotal.WithLabelValues(payment.Gateway).Inc()
	}
	return result, nil
}

// RefundPayment runs the provider call and the resulting status change +
// audit row as one unit of work.
func (s *PaymentService) RefundPayment(payment *models.Payment, amount *decimal.Decimal, reason string) (*gateway.RefundResult, error) {
	g, ok := s.registry.Get(payment.Gateway)
	if !ok {
		return &gateway.RefundResult{Success: false, Message: fmt.Sprintf("unsupported payment gateway: %s", payment.Gateway)}, nil
	}

	result, err := g.RefundPayment(payment.GatewayTxnID(), amount, reason)
	if err != nil {
		logger.Log.Warn("refund failed",
			zap.String("payment_id", payment.PaymentID),
			zap.Error(err),
		)
		return &gateway.RefundResult{Success: false, Message: err.Error()}, nil
	}

	refundAmount := payment.Amount
	if amount != nil {
		refundAmount = *amount
	}
	status := models.PaymentStatusFailed
	if result.Success {
		status = models.PaymentStatusCompleted
	}
	raw, _ := json.Marshal(result)
	reqData, _ := json.Marshal(map[string]string{"reason": reason})
	txn := &models.Transaction{
		PaymentID:            payment.ID,
		TransactionType:      models.TransactionTypeRefund,
		Amount:               &refundAmount,
		Status:               status,
		GatewayTransactionID: payment.GatewayTxnID(),
		RequestData:          string(reqData),
		ResponseData:         string(raw),
	}

	if result.Success {
		payment.Status = models.PaymentStatusRefunded
		if err := s.payments.Refund(payment, txn); err != nil {
			return nil, err
		}
	} else {
		_ = s.payments.LogTransaction(txn)
	}
	return result, nil
}

func (s *PaymentService) GetByPaymentID(paymentID string) (*models.Payment, error) {
	return s.payments.GetByPaymentID(paymentID)
}

// CancelPayment flips a pending/processing payment to cancelled, for the
// customer-abandoned return flow.
func (s *PaymentService) CancelPayment(payment *models.Payment) error {
	if payment.Status == models.PaymentStatusCompleted {
		return &models.InvalidStateError{Current: payment.Status, Attempted: models.PaymentStatusCancelled}
	}
	payment.Status = models.PaymentStatusCancelled
	return s.payments.Save(payment)
}

func (s *PaymentService) markFailed(payment *models.Payment, message string) {
	payment.Status = models.PaymentStatusFailed
	payment.ErrorMessage = message
	metrics.PaymentsFailedTotal.WithLabelValues(payment.Gateway).Inc()
	_ = s.payments.Save(payment)
}
