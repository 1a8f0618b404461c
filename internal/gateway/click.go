package gateway

import (
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"

	"market/config"
	"market/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Click error codes returned in webhook responses.
const (
	ClickSuccess           = 0
	ClickErrBadSignature   = -1
	ClickErrAmountMismatch = -2
	ClickErrAlreadyPaid    = -4
	ClickErrOrderNotFound  = -5
)

// Click webhook actions.
const (
	ClickActionPrepare  = "0"
	ClickActionComplete = "1"
)

// ClickRequest is the form payload Click posts to the merchant endpoint.
// Numeric fields stay strings: the signature is computed over the raw
// values exactly as received.
type ClickRequest struct {
	ClickTransID    string `form:"click_trans_id" json:"click_trans_id"`
	ServiceID       string `form:"service_id" json:"service_id"`
	ClickPaydocID   string `form:"click_paydoc_id" json:"click_paydoc_id"`
	MerchantTransID string `form:"merchant_trans_id" json:"merchant_trans_id"`
	Amount          string `form:"amount" json:"amount"`
	Action          string `form:"action" json:"action"`
	SignTime        string `form:"sign_time" json:"sign_time"`
	SignString      string `form:"sign_string" json:"sign_string"`
}

type ClickResponse struct {
	Error             int    `json:"error"`
	ErrorNote         string `json:"error_note"`
	ClickTransID      string `json:"click_trans_id,omitempty"`
	MerchantTransID   string `json:"merchant_trans_id,omitempty"`
	MerchantPrepareID uint   `json:"merchant_prepare_id,omitempty"`
	MerchantConfirmID uint   `json:"merchant_confirm_id,omitempty"`
}

// Click implements the Click merchant flow: redirect-URL payments plus the
// two-phase PREPARE/COMPLETE webhook.
type Click struct {
	merchantID string
	serviceID  string
	secretKey  string
	orders     OrderStore
}

func NewClick(cfg config.ClickConfig, orders OrderStore) *Click {
	return &Click{
		merchantID: cfg.MerchantID,
		serviceID:  cfg.ServiceID,
		secretKey:  cfg.SecretKey,
		orders:     orders,
	}
}

func (c *Click) Name() string {
	return models.PaymentMethodClick
}

// CreatePayment builds the hosted checkout URL. Click carries amounts in
// tiyin, so the decimal total is scaled by 100 on the way out.
func (c *Click) CreatePayment(amount decimal.Decimal, currency, orderRef, description, returnURL string) (*CreateResult, error) {
	if c.serviceID == "" || c.merchantID == "" {
		return nil, &GatewayError{Gateway: c.Name(), Message: "merchant credentials not configured"}
	}
	amountTiyin := amount.Mul(decimal.NewFromInt(100)).IntPart()
	paymentURL := fmt.Sprintf(
		"https://my.click.uz/services/pay?service_id=%s&merchant_id=%s&amount=%d&transaction_param=%s&return_url=%s",
		c.serviceID, c.merchantID, amountTiyin, orderRef, url.QueryEscape(returnURL),
	)
	return &CreateResult{
		TransactionID: "CLICK-" + orderRef,
		PaymentURL:    paymentURL,
		Status:        models.PaymentStatusPending,
		Gateway:       c.Name(),
	}, nil
}

// VerifyPayment has no status endpoint to poll on the merchant API; the
// webhook is authoritative. The return-URL hit is reported as successful.
func (c *Click) VerifyPayment(transactionID string) (*VerifyResult, error) {
	return &VerifyResult{
		IsSuccessful: true,
		Status:       models.PaymentStatusCompleted,
		Details:      map[string]interface{}{"transaction_id": transactionID},
	}, nil
}

// RefundPayment is unsupported on the merchant API. Reported as a soft
// failure, never an error.
func (c *Click) RefundPayment(transactionID string, amount *decimal.Decimal, reason string) (*RefundResult, error) {
	return &RefundResult{
		Success:       false,
		TransactionID: transactionID,
		Message:       "Click refunds must be processed manually through merchant dashboard",
	}, nil
}

// HandleWebhook dispatches a Click callback by its action discriminator.
func (c *Click) HandleWebhook(req *ClickRequest) *ClickResponse {
	switch req.Action {
	case ClickActionPrepare:
		return c.handlePrepare(req)
	case ClickActionComplete:
		return c.handleComplete(req)
	default:
		return &ClickResponse{Error: ClickErrBadSignature, ErrorNote: fmt.Sprintf("Unknown action: %s", req.Action)}
	}
}

// handlePrepare is the dry-run phase: validate signature, order and amount
// without mutating anything.
func (c *Click) handlePrepare(req *ClickRequest) *ClickResponse {
	if !c.validateSignature(req) {
		return &ClickResponse{Error: ClickErrBadSignature, ErrorNote: "Invalid signature"}
	}

	order, err := c.orders.GetByNumber(req.MerchantTransID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &ClickResponse{Error: ClickErrOrderNotFound, ErrorNote: "Order not found"}
		}
		return &ClickResponse{Error: ClickErrOrderNotFound, ErrorNote: "Order lookup failed"}
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return &ClickResponse{Error: ClickErrAmountMismatch, ErrorNote: "Incorrect amount"}
	}
	// wire amount is in tiyin
	amount = amount.Div(decimal.NewFromInt(100))
	if !order.TotalAmount.Equal(amount) {
		return &ClickResponse{Error: ClickErrAmountMismatch, ErrorNote: "Incorrect amount"}
	}

	if order.IsPaid {
		return &ClickResponse{Error: ClickErrAlreadyPaid, ErrorNote: "Already paid"}
	}

	return &ClickResponse{
		Error:             ClickSuccess,
		ErrorNote:         "Success",
		ClickTransID:      req.ClickTransID,
		MerchantTransID:   req.MerchantTransID,
		MerchantPrepareID: order.ID,
	}
}

// handleComplete is the commit phase. Marking an already paid order paid
// again is a no-op, so duplicate deliveries are safe.
func (c *Click) handleComplete(req *ClickRequest) *ClickResponse {
	if !c.validateSignature(req) {
		return &ClickResponse{Error: ClickErrBadSignature, ErrorNote: "Invalid signature"}
	}

	order, err := c.orders.MarkPaid(req.MerchantTransID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &ClickResponse{Error: ClickErrOrderNotFound, ErrorNote: "Order not found"}
		}
		return &ClickResponse{Error: ClickErrOrderNotFound, ErrorNote: "Order lookup failed"}
	}

	return &ClickResponse{
		Error:             ClickSuccess,
		ErrorNote:         "Success",
		ClickTransID:      req.ClickTransID,
		MerchantTransID:   req.MerchantTransID,
		MerchantConfirmID: order.ID,
	}
}

// validateSignature checks the MD5 over the documented concatenation:
// click_trans_id + service_id + secret_key + merchant_trans_id + amount +
// action + sign_time. Hex digests compare case-sensitively.
func (c *Click) validateSignature(req *ClickRequest) bool {
	signString := req.ClickTransID + c.serviceID + c.secretKey + req.MerchantTransID + req.Amount + req.Action + req.SignTime
	sum := md5.Sum([]byte(signString))
	expected := hex.EncodeToString(sum[:])
	return hmac.Equal([]byte(req.SignString), []byte(expected))
}
